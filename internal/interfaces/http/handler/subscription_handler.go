package handler

import (
	"context"

	appbilling "github.com/academy/billing/internal/application/billing"
	"github.com/academy/billing/internal/domain/access"
	"github.com/academy/billing/internal/domain/billing"
	"github.com/academy/billing/internal/interfaces/http/dto"
	"github.com/academy/billing/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubscriptionService manages subscriptions.
type SubscriptionService interface {
	Create(ctx context.Context, scope access.Scope, req appbilling.CreateSubscriptionRequest) (*appbilling.SubscriptionResponse, error)
	Get(ctx context.Context, scope access.Scope, id uuid.UUID) (*appbilling.SubscriptionResponse, error)
	List(ctx context.Context, scope access.Scope, filter appbilling.ListSubscriptionsFilter) ([]appbilling.SubscriptionResponse, int64, error)
	Pause(ctx context.Context, scope access.Scope, id uuid.UUID) (*appbilling.SubscriptionResponse, error)
	Resume(ctx context.Context, scope access.Scope, id uuid.UUID) (*appbilling.SubscriptionResponse, error)
	Cancel(ctx context.Context, scope access.Scope, id uuid.UUID, reason string) (*appbilling.SubscriptionResponse, error)
	Renew(ctx context.Context, scope access.Scope, id uuid.UUID, months int) (*appbilling.SubscriptionResponse, error)
	ChangeValue(ctx context.Context, scope access.Scope, id uuid.UUID, value decimal.Decimal, planName string) (*appbilling.SubscriptionResponse, error)
}

// PaymentEngine applies payment outcomes and charges subscriptions.
type PaymentEngine interface {
	RecordPaymentOutcome(ctx context.Context, scope access.Scope, id uuid.UUID, outcome appbilling.PaymentOutcome) (*appbilling.PaymentOutcomeResult, error)
	ChargeSubscription(ctx context.Context, tenantID, id uuid.UUID) (*appbilling.ChargeRunResult, error)
}

// SubscriptionHandler serves /subscriptions.
type SubscriptionHandler struct {
	BaseHandler
	subscriptions SubscriptionService
	engine        PaymentEngine
}

// NewSubscriptionHandler creates a SubscriptionHandler.
func NewSubscriptionHandler(subscriptions SubscriptionService, engine PaymentEngine) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions, engine: engine}
}

// CreateSubscriptionRequest is the body of POST /subscriptions.
type CreateSubscriptionRequest struct {
	PayerID        string          `json:"payer_id" binding:"omitempty,uuid"`
	StudentID      string          `json:"student_id" binding:"required,uuid"`
	UnitID         string          `json:"unit_id" binding:"required,uuid"`
	PlanName       string          `json:"plan_name" binding:"required,max=100"`
	Value          decimal.Decimal `json:"value"`
	PaymentMethod  string          `json:"payment_method" binding:"required"`
	BillingDay     int             `json:"billing_day" binding:"omitempty,min=1,max=28"`
	StartDate      string          `json:"start_date" binding:"omitempty,datetime=2006-01-02"`
	DurationMonths int             `json:"duration_months" binding:"omitempty,min=1,max=120"`
}

// RenewRequest extends a subscription.
type RenewRequest struct {
	Months int `json:"months" binding:"required,min=1,max=120"`
}

// ChangeValueRequest changes the recurring value.
type ChangeValueRequest struct {
	Value    decimal.Decimal `json:"value"`
	PlanName string          `json:"plan_name" binding:"omitempty,max=100"`
}

// PaymentOutcomeRequest reports the result of a charge made elsewhere.
type PaymentOutcomeRequest struct {
	Success       *bool            `json:"success" binding:"required"`
	Amount        *decimal.Decimal `json:"amount"`
	GatewayRef    string           `json:"gateway_ref" binding:"omitempty,max=100"`
	DeclineCode   string           `json:"decline_code" binding:"omitempty,max=50"`
	PaymentMethod string           `json:"payment_method"`
}

// ListSubscriptionsQuery are the query parameters of GET /subscriptions.
type ListSubscriptionsQuery struct {
	dto.ListRequest
	Status    string `form:"status" binding:"omitempty,oneof=ATIVA PAUSADA CANCELADA EXPIRADA INADIMPLENTE"`
	StudentID string `form:"student_id" binding:"omitempty,uuid"`
	PayerID   string `form:"payer_id" binding:"omitempty,uuid"`
}

// List handles GET /subscriptions.
func (h *SubscriptionHandler) List(c *gin.Context) {
	var q ListSubscriptionsQuery
	if !bindQuery(c, &q) {
		return
	}
	q.Normalize()
	// Both ids were validated by binding.
	studentID, _ := optionalID(q.StudentID)
	payerID, _ := optionalID(q.PayerID)
	items, total, err := h.subscriptions.List(c.Request.Context(), middleware.GetScope(c), appbilling.ListSubscriptionsFilter{
		Page:      q.Page,
		PageSize:  q.PageSize,
		OrderBy:   q.OrderBy,
		OrderDir:  q.OrderDir,
		Status:    billing.SubscriptionStatus(q.Status),
		StudentID: studentID,
		PayerID:   payerID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, items, total, q.Page, q.PageSize)
}

// Create handles POST /subscriptions.
func (h *SubscriptionHandler) Create(c *gin.Context) {
	var req CreateSubscriptionRequest
	if !bind(c, &req) {
		return
	}
	method, err := billing.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	start, err := optionalDate(req.StartDate)
	if err != nil {
		h.BadRequest(c, "start_date must be YYYY-MM-DD")
		return
	}
	in := appbilling.CreateSubscriptionRequest{
		StudentID:      uuid.MustParse(req.StudentID),
		UnitID:         uuid.MustParse(req.UnitID),
		PlanName:       req.PlanName,
		Value:          req.Value,
		PaymentMethod:  method,
		BillingDay:     req.BillingDay,
		DurationMonths: req.DurationMonths,
	}
	if req.PayerID != "" {
		in.PayerID = uuid.MustParse(req.PayerID)
	}
	if start != nil {
		in.StartDate = *start
	}
	resp, err := h.subscriptions.Create(c.Request.Context(), middleware.GetScope(c), in)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// Get handles GET /subscriptions/:id.
func (h *SubscriptionHandler) Get(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	resp, err := h.subscriptions.Get(c.Request.Context(), middleware.GetScope(c), id)
	h.respond(c, resp, err)
}

// Pause handles POST /subscriptions/:id/pause.
func (h *SubscriptionHandler) Pause(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	resp, err := h.subscriptions.Pause(c.Request.Context(), middleware.GetScope(c), id)
	h.respond(c, resp, err)
}

// Resume handles POST /subscriptions/:id/resume.
func (h *SubscriptionHandler) Resume(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	resp, err := h.subscriptions.Resume(c.Request.Context(), middleware.GetScope(c), id)
	h.respond(c, resp, err)
}

// Cancel handles POST /subscriptions/:id/cancel.
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req CancelRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.subscriptions.Cancel(c.Request.Context(), middleware.GetScope(c), id, req.Reason)
	h.respond(c, resp, err)
}

// Renew handles POST /subscriptions/:id/renew.
func (h *SubscriptionHandler) Renew(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req RenewRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.subscriptions.Renew(c.Request.Context(), middleware.GetScope(c), id, req.Months)
	h.respond(c, resp, err)
}

// ChangeValue handles POST /subscriptions/:id/change-value.
func (h *SubscriptionHandler) ChangeValue(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req ChangeValueRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.subscriptions.ChangeValue(c.Request.Context(), middleware.GetScope(c), id, req.Value, req.PlanName)
	h.respond(c, resp, err)
}

// RecordPayment handles POST /subscriptions/:id/payments.
func (h *SubscriptionHandler) RecordPayment(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req PaymentOutcomeRequest
	if !bind(c, &req) {
		return
	}
	outcome := appbilling.PaymentOutcome{
		Success:     *req.Success,
		Amount:      req.Amount,
		GatewayRef:  req.GatewayRef,
		DeclineCode: req.DeclineCode,
	}
	if req.PaymentMethod != "" {
		method, err := billing.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		outcome.Method = method
	}
	resp, err := h.engine.RecordPaymentOutcome(c.Request.Context(), middleware.GetScope(c), id, outcome)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Charge handles POST /subscriptions/:id/charge. The subscription is read
// through the caller's scope first since the engine call is unscoped.
func (h *SubscriptionHandler) Charge(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	scope := middleware.GetScope(c)
	if _, err := h.subscriptions.Get(ctx, scope, id); err != nil {
		h.HandleError(c, err)
		return
	}
	resp, err := h.engine.ChargeSubscription(ctx, scope.TenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

func (h *SubscriptionHandler) respond(c *gin.Context, resp *appbilling.SubscriptionResponse, err error) {
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
