package handler

import (
	"context"
	"fmt"

	appbilling "github.com/academy/billing/internal/application/billing"
	"github.com/academy/billing/internal/domain/access"
	"github.com/academy/billing/internal/domain/billing"
	"github.com/academy/billing/internal/interfaces/http/dto"
	"github.com/academy/billing/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceLedger reads and settles invoices.
type InvoiceLedger interface {
	Get(ctx context.Context, scope access.Scope, id uuid.UUID) (*appbilling.InvoiceResponse, error)
	List(ctx context.Context, scope access.Scope, filter appbilling.ListInvoicesFilter) ([]appbilling.InvoiceResponse, int64, error)
	Summary(ctx context.Context, scope access.Scope) ([]appbilling.UnitSummaryResponse, error)
	RecordManualPayment(ctx context.Context, scope access.Scope, id uuid.UUID, req appbilling.ManualPaymentRequest) (*appbilling.InvoiceResponse, error)
	Cancel(ctx context.Context, scope access.Scope, id uuid.UUID, reason string) (*appbilling.InvoiceResponse, error)
	RenderReceipt(ctx context.Context, scope access.Scope, id uuid.UUID) ([]byte, error)
}

// InvoiceHandler serves /invoices.
type InvoiceHandler struct {
	BaseHandler
	invoices InvoiceLedger
}

// NewInvoiceHandler creates an InvoiceHandler.
func NewInvoiceHandler(invoices InvoiceLedger) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

// ListInvoicesQuery are the query parameters of GET /invoices.
type ListInvoicesQuery struct {
	dto.ListRequest
	Status         string `form:"status" binding:"omitempty,oneof=PENDENTE PAGA ATRASADA CANCELADA"`
	Kind           string `form:"kind" binding:"omitempty,oneof=RECURRING VALIDATION"`
	SubscriptionID string `form:"subscription_id" binding:"omitempty,uuid"`
	Period         string `form:"period" binding:"omitempty,period"`
}

// ManualPaymentRequest records an offline payment.
type ManualPaymentRequest struct {
	PaymentMethod string          `json:"payment_method" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Notes         string          `json:"notes" binding:"omitempty,max=500"`
}

// List handles GET /invoices.
func (h *InvoiceHandler) List(c *gin.Context) {
	var q ListInvoicesQuery
	if !bindQuery(c, &q) {
		return
	}
	q.Normalize()
	subID, _ := optionalID(q.SubscriptionID)
	items, total, err := h.invoices.List(c.Request.Context(), middleware.GetScope(c), appbilling.ListInvoicesFilter{
		Page:           q.Page,
		PageSize:       q.PageSize,
		OrderBy:        q.OrderBy,
		OrderDir:       q.OrderDir,
		Status:         billing.InvoiceStatus(q.Status),
		Kind:           billing.InvoiceKind(q.Kind),
		SubscriptionID: subID,
		Period:         q.Period,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, items, total, q.Page, q.PageSize)
}

// Summary handles GET /invoices/summary.
func (h *InvoiceHandler) Summary(c *gin.Context) {
	resp, err := h.invoices.Summary(c.Request.Context(), middleware.GetScope(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Get handles GET /invoices/:id.
func (h *InvoiceHandler) Get(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	resp, err := h.invoices.Get(c.Request.Context(), middleware.GetScope(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// RecordPayment handles POST /invoices/:id/payments.
func (h *InvoiceHandler) RecordPayment(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req ManualPaymentRequest
	if !bind(c, &req) {
		return
	}
	method, err := billing.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	resp, err := h.invoices.RecordManualPayment(c.Request.Context(), middleware.GetScope(c), id, appbilling.ManualPaymentRequest{
		Method: method,
		Amount: req.Amount,
		Notes:  req.Notes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Cancel handles POST /invoices/:id/cancel.
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req CancelRequest
	if !bind(c, &req) {
		return
	}
	resp, err := h.invoices.Cancel(c.Request.Context(), middleware.GetScope(c), id, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Receipt handles GET /invoices/:id/receipt.
func (h *InvoiceHandler) Receipt(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	data, err := h.invoices.RenderReceipt(c.Request.Context(), middleware.GetScope(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SendPDF(c, fmt.Sprintf("recibo-%s.pdf", id), data)
}
