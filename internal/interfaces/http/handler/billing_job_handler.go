package handler

import (
	"context"
	"time"

	appbilling "github.com/academy/billing/internal/application/billing"
	"github.com/academy/billing/internal/domain/access"
	"github.com/academy/billing/internal/domain/billing"
	"github.com/academy/billing/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BillingJobs are the batch operations of the billing engine.
type BillingJobs interface {
	GenerateInvoicesForPeriod(ctx context.Context, scope access.Scope, period billing.Period) (*appbilling.GenerationResult, error)
	ChargeDueInvoices(ctx context.Context, scope access.Scope, asOf time.Time) (*appbilling.ChargeRunResult, error)
	MarkOverdue(ctx context.Context, scope access.Scope, asOf time.Time) (*appbilling.SweepResult, error)
	ExpireSubscriptions(ctx context.Context, scope access.Scope, asOf time.Time) (*appbilling.SweepResult, error)
}

// BillingJobHandler serves /billing, the manual triggers of the
// scheduled jobs.
type BillingJobHandler struct {
	BaseHandler
	jobs BillingJobs
	now  func() time.Time
}

// NewBillingJobHandler creates a BillingJobHandler.
func NewBillingJobHandler(jobs BillingJobs) *BillingJobHandler {
	return &BillingJobHandler{jobs: jobs, now: time.Now}
}

// GenerateRequest is the body of POST /billing/generate.
type GenerateRequest struct {
	Period string `json:"period" binding:"required,period"`
	UnitID string `json:"unit_id" binding:"omitempty,uuid"`
}

// AsOfRequest sets the reference day of a sweep. It defaults to today.
type AsOfRequest struct {
	AsOf string `json:"as_of" binding:"omitempty,datetime=2006-01-02"`
}

// Generate handles POST /billing/generate. With unit_id the run is
// limited to that unit.
func (h *BillingJobHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if !bind(c, &req) {
		return
	}
	period, err := billing.ParsePeriod(req.Period)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	scope := middleware.GetScope(c)
	if req.UnitID != "" {
		scope, err = scope.Narrow(uuid.MustParse(req.UnitID))
		if err != nil {
			h.HandleError(c, err)
			return
		}
	}
	resp, err := h.jobs.GenerateInvoicesForPeriod(c.Request.Context(), scope, period)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// ChargeDue handles POST /billing/charge-due.
func (h *BillingJobHandler) ChargeDue(c *gin.Context) {
	asOf, ok := h.asOf(c)
	if !ok {
		return
	}
	resp, err := h.jobs.ChargeDueInvoices(c.Request.Context(), middleware.GetScope(c), asOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// MarkOverdue handles POST /billing/mark-overdue.
func (h *BillingJobHandler) MarkOverdue(c *gin.Context) {
	asOf, ok := h.asOf(c)
	if !ok {
		return
	}
	resp, err := h.jobs.MarkOverdue(c.Request.Context(), middleware.GetScope(c), asOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Expire handles POST /billing/expire.
func (h *BillingJobHandler) Expire(c *gin.Context) {
	asOf, ok := h.asOf(c)
	if !ok {
		return
	}
	resp, err := h.jobs.ExpireSubscriptions(c.Request.Context(), middleware.GetScope(c), asOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// asOf reads the optional body. An empty body means today.
func (h *BillingJobHandler) asOf(c *gin.Context) (time.Time, bool) {
	var req AsOfRequest
	if c.Request.ContentLength != 0 {
		if !bind(c, &req) {
			return time.Time{}, false
		}
	}
	if req.AsOf == "" {
		return h.now(), true
	}
	t, err := parseDate(req.AsOf)
	if err != nil {
		h.BadRequest(c, "as_of must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}
