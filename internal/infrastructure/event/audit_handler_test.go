package event

import (
	"context"
	"testing"
	"time"

	"github.com/academy/billing/internal/domain/billing"
	"github.com/academy/billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func base(eventType, aggType string) shared.BaseDomainEvent {
	return shared.NewBaseDomainEvent(eventType, aggType, uuid.New(), uuid.New(), time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))
}

func TestAuditLogHandler(t *testing.T) {
	tests := []struct {
		name   string
		event  shared.DomainEvent
		level  zapcore.Level
		fields map[string]any
	}{
		{
			name: "delinquency is a warning",
			event: &billing.SubscriptionStatusChangedEvent{
				BaseDomainEvent: base(billing.EventTypeSubscriptionStatusChanged, billing.AggregateTypeSubscription),
				From:            billing.SubscriptionActive,
				To:              billing.SubscriptionDelinquent,
				RetryCount:      3,
			},
			level:  zapcore.WarnLevel,
			fields: map[string]any{"from": "ATIVA", "to": "INADIMPLENTE", "retry_count": int64(3)},
		},
		{
			name: "pause is info",
			event: &billing.SubscriptionStatusChangedEvent{
				BaseDomainEvent: base(billing.EventTypeSubscriptionStatusChanged, billing.AggregateTypeSubscription),
				From:            billing.SubscriptionActive,
				To:              billing.SubscriptionPaused,
			},
			level:  zapcore.InfoLevel,
			fields: map[string]any{"to": "PAUSADA"},
		},
		{
			name: "payment failure",
			event: &billing.PaymentFailedEvent{
				BaseDomainEvent: base(billing.EventTypePaymentFailed, billing.AggregateTypeSubscription),
				RetryCount:      1,
			},
			level:  zapcore.WarnLevel,
			fields: map[string]any{"retry_count": int64(1)},
		},
		{
			name: "invoice paid",
			event: &billing.InvoicePaidEvent{
				BaseDomainEvent: base(billing.EventTypeInvoicePaid, billing.AggregateTypeInvoice),
				Number:          "FAT-000007",
				PaidAmount:      decimal.RequireFromString("250"),
				PaymentMethod:   billing.PaymentMethodPix,
			},
			level:  zapcore.InfoLevel,
			fields: map[string]any{"number": "FAT-000007", "paid_amount": "250.00", "payment_method": "PIX"},
		},
		{
			name: "card replaced keeps only the masked data",
			event: &billing.CardReplacedEvent{
				BaseDomainEvent: base(billing.EventTypeCardReplaced, billing.AggregateTypeSubscription),
				Brand:           "VISA",
				Last4:           "4242",
			},
			level:  zapcore.InfoLevel,
			fields: map[string]any{"brand": "VISA", "last4": "4242"},
		},
		{
			name:   "unknown events carry the envelope",
			event:  newTestEvent("Custom"),
			level:  zapcore.InfoLevel,
			fields: map[string]any{"event_type": "Custom", "aggregate_type": "Subscription"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			h := NewAuditLogHandler(zap.New(core))
			require.NoError(t, h.Handle(context.Background(), tt.event))

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, tt.level, entry.Level)
			ctx := entry.ContextMap()
			assert.Equal(t, tt.event.TenantID().String(), ctx["tenant_id"])
			for k, v := range tt.fields {
				assert.Equal(t, v, ctx[k], k)
			}
		})
	}

	t.Run("subscribes to everything", func(t *testing.T) {
		assert.Empty(t, NewAuditLogHandler(nil).EventTypes())
	})
}
