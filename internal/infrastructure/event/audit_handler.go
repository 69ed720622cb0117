package event

import (
	"context"

	"github.com/academy/billing/internal/domain/billing"
	"github.com/academy/billing/internal/domain/shared"
	"go.uber.org/zap"
)

// AuditLogHandler writes one structured log line per billing event.
type AuditLogHandler struct {
	logger *zap.Logger
}

// NewAuditLogHandler creates the handler
func NewAuditLogHandler(logger *zap.Logger) *AuditLogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLogHandler{logger: logger.Named("audit")}
}

// EventTypes subscribes to every event
func (h *AuditLogHandler) EventTypes() []string { return nil }

// Handle logs the event with fields specific to its type
func (h *AuditLogHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
		zap.String("tenant_id", event.TenantID().String()),
		zap.String("aggregate_type", event.AggregateType()),
		zap.String("aggregate_id", event.AggregateID().String()),
		zap.Time("occurred_at", event.OccurredAt()),
	}
	level := zap.InfoLevel

	switch e := event.(type) {
	case *billing.SubscriptionStatusChangedEvent:
		fields = append(fields,
			zap.String("from", string(e.From)),
			zap.String("to", string(e.To)),
			zap.Int("retry_count", e.RetryCount),
			zap.String("unit_id", e.UnitID.String()),
		)
		if e.To == billing.SubscriptionDelinquent {
			level = zap.WarnLevel
		}
	case *billing.PaymentFailedEvent:
		fields = append(fields, zap.Int("retry_count", e.RetryCount))
		level = zap.WarnLevel
	case *billing.CardReplacedEvent:
		fields = append(fields, zap.String("brand", e.Brand), zap.String("last4", e.Last4))
	case *billing.InvoiceIssuedEvent:
		fields = append(fields,
			zap.String("number", e.Number),
			zap.String("period", e.Period),
			zap.String("amount", e.Amount.StringFixed(2)),
			zap.Time("due_date", e.DueDate),
		)
	case *billing.InvoicePaidEvent:
		fields = append(fields,
			zap.String("number", e.Number),
			zap.String("paid_amount", e.PaidAmount.StringFixed(2)),
			zap.String("payment_method", string(e.PaymentMethod)),
		)
	case *billing.InvoiceCancelledEvent:
		fields = append(fields, zap.String("number", e.Number), zap.String("reason", e.Reason))
	case *billing.InvoiceOverdueEvent:
		fields = append(fields, zap.String("number", e.Number), zap.Time("due_date", e.DueDate))
		level = zap.WarnLevel
	}

	if ce := h.logger.Check(level, "billing event"); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

var _ shared.EventHandler = (*AuditLogHandler)(nil)
