package billing

import (
	"context"

	"github.com/academy/billing/internal/domain/access"
	"github.com/academy/billing/internal/domain/billing"
	"github.com/academy/billing/internal/domain/document"
	"github.com/academy/billing/internal/domain/organization"
	"github.com/academy/billing/internal/domain/shared"
	"github.com/academy/billing/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InvoiceService is the invoice ledger: manual settlement, cancellation,
// receipts and receivable queries.
type InvoiceService struct {
	options
	tx       shared.Transactor
	invoices billing.InvoiceRepository
	units    organization.UnitRepository
	renderer document.Renderer
}

// NewInvoiceService creates an InvoiceService.
func NewInvoiceService(
	tx shared.Transactor,
	invoices billing.InvoiceRepository,
	units organization.UnitRepository,
	renderer document.Renderer,
	opts ...Option,
) *InvoiceService {
	return &InvoiceService{
		options:  buildOptions(opts),
		tx:       tx,
		invoices: invoices,
		units:    units,
		renderer: renderer,
	}
}

// Get returns an invoice within the caller's scope.
func (s *InvoiceService) Get(ctx context.Context, scope access.Scope, id uuid.UUID) (*InvoiceResponse, error) {
	inv, err := s.load(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// List returns the invoices of units in scope.
func (s *InvoiceService) List(ctx context.Context, scope access.Scope, filter ListInvoicesFilter) ([]InvoiceResponse, int64, error) {
	items, total, err := s.invoices.List(ctx, scope.TenantID, billing.InvoiceFilter{
		Filter:          listFilter(filter.Page, filter.PageSize, filter.OrderBy, filter.OrderDir),
		UnitRestriction: restriction(scope),
		Status:          filter.Status,
		Kind:            filter.Kind,
		SubscriptionID:  filter.SubscriptionID,
		Period:          filter.Period,
	})
	if err != nil {
		return nil, 0, err
	}
	return toInvoiceResponses(items), total, nil
}

// Summary aggregates PENDENTE and ATRASADA receivables per unit in scope.
func (s *InvoiceService) Summary(ctx context.Context, scope access.Scope) ([]UnitSummaryResponse, error) {
	rows, err := s.invoices.Summarize(ctx, scope.TenantID, restriction(scope))
	if err != nil {
		return nil, err
	}
	out := make([]UnitSummaryResponse, len(rows))
	for i, r := range rows {
		out[i] = UnitSummaryResponse(r)
	}
	return out, nil
}

// RecordManualPayment settles an open invoice paid outside the gateway.
// An amount below the original is recorded as is.
func (s *InvoiceService) RecordManualPayment(ctx context.Context, scope access.Scope, id uuid.UUID, req ManualPaymentRequest) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "record_manual_payment",
		telemetry.SpanAttrTenantID, scope.TenantID, telemetry.SpanAttrInvoiceID, id)
	defer span.End()

	if !req.Amount.IsPositive() {
		return nil, shared.InvalidInput("amount", "paid amount must be greater than zero")
	}
	if req.Method != "" && !req.Method.IsValid() {
		return nil, shared.InvalidInput("payment_method", "unknown payment method")
	}
	inv, err := s.mutate(ctx, scope, id, func(inv *billing.Invoice) error {
		return inv.Pay(req.Method, req.Amount, "", req.Notes, s.now())
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.metrics.RecordPaymentOutcome(ctx, string(inv.PaymentMethod), true)
	s.logger.Info("Manual payment recorded",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("number", inv.Number),
		zap.String("amount", req.Amount.StringFixed(2)),
	)
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// Cancel cancels an open invoice. The row is kept and the subscription is
// not touched.
func (s *InvoiceService) Cancel(ctx context.Context, scope access.Scope, id uuid.UUID, reason string) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "cancel",
		telemetry.SpanAttrTenantID, scope.TenantID, telemetry.SpanAttrInvoiceID, id)
	defer span.End()

	if isBlank(reason) {
		return nil, shared.InvalidInput("reason", "cancellation reason is required")
	}
	inv, err := s.mutate(ctx, scope, id, func(inv *billing.Invoice) error {
		return inv.Cancel(reason, s.now())
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.logger.Info("Invoice cancelled", zap.String("invoice_id", inv.ID.String()), zap.String("number", inv.Number))
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// RenderReceipt renders the receipt of a PAGA invoice and archives it under
// receipts/<number>.pdf when an archive is configured.
func (s *InvoiceService) RenderReceipt(ctx context.Context, scope access.Scope, id uuid.UUID) ([]byte, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "render_receipt",
		telemetry.SpanAttrTenantID, scope.TenantID, telemetry.SpanAttrInvoiceID, id)
	defer span.End()

	inv, err := s.load(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != billing.InvoicePaid || inv.PaidAt == nil {
		return nil, shared.InvalidState("receipts are only available for paid invoices")
	}
	unit, err := s.units.FindByID(ctx, scope.TenantID, inv.UnitID)
	if err != nil {
		return nil, err
	}
	data := document.ReceiptData{
		InvoiceID:     inv.ID,
		Number:        inv.Number,
		UnitName:      unit.Name,
		Description:   inv.Description,
		Period:        inv.Period,
		Amount:        inv.OriginalAmount,
		PaidAmount:    inv.PaidAmount,
		PaymentMethod: string(inv.PaymentMethod),
		PaidAt:        *inv.PaidAt,
		DueDate:       inv.DueDate,
		GatewayRef:    inv.GatewayRef,
	}
	pdf, err := document.RenderWithin(ctx, s.renderer, s.callTimeout, document.KindReceipt, data)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if s.archive != nil {
		key := document.ReceiptKey(inv.Number)
		if err := s.archive.Upload(ctx, key, pdf, document.ContentTypePDF); err != nil {
			s.logger.Warn("Failed to archive receipt", zap.String("key", key), zap.Error(err))
		}
	}
	return pdf, nil
}

func (s *InvoiceService) mutate(ctx context.Context, scope access.Scope, id uuid.UUID, fn func(*billing.Invoice) error) (*billing.Invoice, error) {
	if _, err := s.load(ctx, scope, id); err != nil {
		return nil, err
	}
	var inv *billing.Invoice
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.invoices.FindByIDForUpdate(ctx, scope.TenantID, id)
		if err != nil {
			return err
		}
		if err := fn(inv); err != nil {
			return err
		}
		return s.invoices.Save(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, inv)
	return inv, nil
}

func (s *InvoiceService) load(ctx context.Context, scope access.Scope, id uuid.UUID) (*billing.Invoice, error) {
	if scope.IsDenied() {
		return nil, scope.Require(uuid.Nil)
	}
	inv, err := s.invoices.FindByID(ctx, scope.TenantID, id)
	if err != nil {
		return nil, err
	}
	if err := scope.Require(inv.UnitID); err != nil {
		return nil, err
	}
	return inv, nil
}
