package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/academy/billing/internal/domain/billing"
	"github.com/academy/billing/internal/domain/document"
	"github.com/academy/billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestInvoiceService_RecordManualPayment(t *testing.T) {
	t.Run("pays and then rejects cancellation", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		inv := f.seedInvoice(t, f.seedSubscription(t, f.unitA), "2026-10")

		paid, err := f.ledger.RecordManualPayment(ctx, f.owner(), inv.ID, ManualPaymentRequest{
			Method: billing.PaymentMethodPix,
			Amount: inv.OriginalAmount,
		})
		require.NoError(t, err)
		assert.Equal(t, string(billing.InvoicePaid), paid.Status)
		require.NotNil(t, paid.PaidAt)
		assert.Equal(t, string(billing.PaymentMethodPix), paid.PaymentMethod)

		_, err = f.ledger.Cancel(ctx, f.owner(), inv.ID, "engano")
		assert.True(t, shared.IsInvalidState(err))
		assert.Equal(t, billing.InvoicePaid, f.reloadInvoice(t, inv.ID).Status)
	})

	t.Run("accepts a partial amount", func(t *testing.T) {
		f := newFixture(t)
		inv := f.seedInvoice(t, f.seedSubscription(t, f.unitA), "2026-10")
		amount := decimal.NewFromInt(100)

		paid, err := f.ledger.RecordManualPayment(context.Background(), f.master(), inv.ID, ManualPaymentRequest{
			Method: billing.PaymentMethodCash, Amount: amount, Notes: "pago na recepção",
		})
		require.NoError(t, err)
		assert.True(t, paid.PaidAmount.Equal(amount))
		assert.True(t, paid.OriginalAmount.Equal(decimal.NewFromInt(250)))
		assert.Contains(t, paid.Notes, "pago na recepção")
	})

	t.Run("pays an overdue invoice", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		inv := f.seedInvoice(t, f.seedSubscription(t, f.unitA), "2026-09")
		_, err := f.engine.MarkOverdue(ctx, f.system(), f.clock.Now())
		require.NoError(t, err)

		paid, err := f.ledger.RecordManualPayment(ctx, f.master(), inv.ID, ManualPaymentRequest{Method: billing.PaymentMethodTransfer, Amount: inv.OriginalAmount})
		require.NoError(t, err)
		assert.Equal(t, string(billing.InvoicePaid), paid.Status)
	})

	tests := []struct {
		name   string
		amount decimal.Decimal
		method billing.PaymentMethod
	}{
		{"zero amount", decimal.Zero, billing.PaymentMethodPix},
		{"negative amount", decimal.NewFromInt(-5), billing.PaymentMethodPix},
		{"unknown method", decimal.NewFromInt(10), billing.PaymentMethod("CHEQUE")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			inv := f.seedInvoice(t, f.seedSubscription(t, f.unitA), "2026-10")
			_, err := f.ledger.RecordManualPayment(context.Background(), f.master(), inv.ID, ManualPaymentRequest{Method: tt.method, Amount: tt.amount})
			assert.True(t, shared.IsInvalidInput(err))
			assert.Equal(t, billing.InvoicePending, f.reloadInvoice(t, inv.ID).Status)
		})
	}

	t.Run("invalid amount is rejected before the lookup", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ledger.RecordManualPayment(context.Background(), f.master(), uuid.New(), ManualPaymentRequest{Amount: decimal.Zero})
		assert.True(t, shared.IsInvalidInput(err))
	})

	t.Run("cancelled invoice cannot be paid", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		inv := f.seedInvoice(t, f.seedSubscription(t, f.unitA), "2026-10")
		_, err := f.ledger.Cancel(ctx, f.master(), inv.ID, "duplicada")
		require.NoError(t, err)

		_, err = f.ledger.RecordManualPayment(ctx, f.master(), inv.ID, ManualPaymentRequest{Method: billing.PaymentMethodPix, Amount: inv.OriginalAmount})
		assert.True(t, shared.IsInvalidState(err))
	})
}

func TestInvoiceService_Cancel(t *testing.T) {
	t.Run("cancels with a reason and keeps the subscription", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		sub := f.seedSubscription(t, f.unitA)
		inv := f.seedInvoice(t, sub, "2026-10")

		got, err := f.ledger.Cancel(ctx, f.owner(), inv.ID, "bolsa integral")
		require.NoError(t, err)
		assert.Equal(t, string(billing.InvoiceCancelled), got.Status)
		assert.Equal(t, "bolsa integral", got.CancelReason)
		assert.Contains(t, got.Notes, "Cancelada: bolsa integral")

		stored := f.reload(t, sub.ID)
		assert.Equal(t, billing.SubscriptionActive, stored.Status)
		assert.Equal(t, sub.Version, stored.Version)
		assert.Contains(t, f.events.Types(), billing.EventTypeInvoiceCancelled)
	})

	for _, reason := range []string{"", "   "} {
		t.Run("blank reason "+`"`+reason+`"`, func(t *testing.T) {
			f := newFixture(t)
			inv := f.seedInvoice(t, f.seedSubscription(t, f.unitA), "2026-10")
			_, err := f.ledger.Cancel(context.Background(), f.owner(), inv.ID, reason)
			assert.True(t, shared.IsInvalidInput(err))
			assert.Equal(t, billing.InvoicePending, f.reloadInvoice(t, inv.ID).Status)
		})
	}

	t.Run("blank reason is rejected before the lookup", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ledger.Cancel(context.Background(), f.owner(), uuid.New(), "")
		assert.True(t, shared.IsInvalidInput(err))
	})

	t.Run("out of scope", func(t *testing.T) {
		f := newFixture(t)
		inv := f.seedInvoice(t, f.seedSubscription(t, f.unitC), "2026-10")
		_, err := f.ledger.Cancel(context.Background(), f.owner(), inv.ID, "motivo")
		assert.True(t, shared.IsForbidden(err))
	})
}

func TestInvoiceService_RenderReceipt(t *testing.T) {
	pdf := []byte("%PDF-1.7 receipt")

	t.Run("renders and archives a paid invoice", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		inv := f.seedInvoice(t, f.seedSubscription(t, f.unitA), "2026-10")
		_, err := f.ledger.RecordManualPayment(ctx, f.master(), inv.ID, ManualPaymentRequest{Method: billing.PaymentMethodPix, Amount: inv.OriginalAmount})
		require.NoError(t, err)

		f.renderer.On("Render", mock.Anything, document.KindReceipt, mock.MatchedBy(func(d document.ReceiptData) bool {
			return d.Number == inv.Number && d.UnitName == "Unidade Centro" && d.PaidAmount.Equal(inv.OriginalAmount)
		})).Return(pdf, nil)
		f.archive.On("Upload", mock.Anything, "receipts/"+inv.Number+".pdf", pdf, document.ContentTypePDF).Return(nil)

		out, err := f.ledger.RenderReceipt(ctx, f.owner(), inv.ID)
		require.NoError(t, err)
		assert.Equal(t, pdf, out)
		f.renderer.AssertExpectations(t)
		f.archive.AssertExpectations(t)
	})

	t.Run("archive failure still returns the document", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		inv := f.seedInvoice(t, f.seedSubscription(t, f.unitA), "2026-10")
		_, err := f.ledger.RecordManualPayment(ctx, f.master(), inv.ID, ManualPaymentRequest{Method: billing.PaymentMethodPix, Amount: inv.OriginalAmount})
		require.NoError(t, err)
		f.renderer.On("Render", mock.Anything, document.KindReceipt, mock.Anything).Return(pdf, nil)
		f.archive.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("s3: unavailable"))

		out, err := f.ledger.RenderReceipt(ctx, f.owner(), inv.ID)
		require.NoError(t, err)
		assert.Equal(t, pdf, out)
	})

	t.Run("only paid invoices", func(t *testing.T) {
		f := newFixture(t)
		inv := f.seedInvoice(t, f.seedSubscription(t, f.unitA), "2026-10")
		_, err := f.ledger.RenderReceipt(context.Background(), f.owner(), inv.ID)
		assert.True(t, shared.IsInvalidState(err))
		f.renderer.AssertNotCalled(t, "Render", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("renderer timeout", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		inv := f.seedInvoice(t, f.seedSubscription(t, f.unitA), "2026-10")
		_, err := f.ledger.RecordManualPayment(ctx, f.master(), inv.ID, ManualPaymentRequest{Method: billing.PaymentMethodPix, Amount: inv.OriginalAmount})
		require.NoError(t, err)
		f.renderer.On("Render", mock.Anything, document.KindReceipt, mock.Anything).
			Run(func(args mock.Arguments) {
				select {
				case <-args.Get(0).(context.Context).Done():
				case <-time.After(time.Second):
				}
			}).
			Return(nil, document.ErrRenderTimeout)

		_, err = f.ledger.RenderReceipt(ctx, f.owner(), inv.ID)
		assert.True(t, shared.IsGatewayTimeout(err))
		f.archive.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestInvoiceService_ListAndSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subA := f.seedSubscription(t, f.unitA)
	subC := f.seedSubscription(t, f.unitC)
	f.seedInvoice(t, subA, "2026-09")
	f.seedInvoice(t, subA, "2026-10")
	f.seedInvoice(t, subC, "2026-10")
	_, err := f.engine.MarkOverdue(ctx, f.system(), f.clock.Now())
	require.NoError(t, err)

	t.Run("list is scoped", func(t *testing.T) {
		items, total, err := f.ledger.List(ctx, f.owner(), ListInvoicesFilter{})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		for _, it := range items {
			assert.Equal(t, f.unitA, it.UnitID)
		}

		overdue, _, err := f.ledger.List(ctx, f.master(), ListInvoicesFilter{Status: billing.InvoiceOverdue})
		require.NoError(t, err)
		assert.Len(t, overdue, 3)

		none, total, err := f.ledger.List(ctx, f.student(uuid.New()), ListInvoicesFilter{})
		require.NoError(t, err)
		assert.Empty(t, none)
		assert.Zero(t, total)
	})

	t.Run("get is scoped", func(t *testing.T) {
		items, _, err := f.ledger.List(ctx, f.master(), ListInvoicesFilter{SubscriptionID: &subC.ID})
		require.NoError(t, err)
		require.Len(t, items, 1)
		_, err = f.ledger.Get(ctx, f.owner(), items[0].ID)
		assert.True(t, shared.IsForbidden(err))
		got, err := f.ledger.Get(ctx, f.master(), items[0].ID)
		require.NoError(t, err)
		assert.Equal(t, subC.ID, got.SubscriptionID)
	})

	t.Run("summary per unit", func(t *testing.T) {
		rows, err := f.ledger.Summary(ctx, f.owner())
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, f.unitA, rows[0].UnitID)
		assert.EqualValues(t, 2, rows[0].OverdueCount)
		assert.True(t, rows[0].OverdueTotal.Equal(decimal.NewFromInt(500)))
		assert.Zero(t, rows[0].PendingCount)

		all, err := f.ledger.Summary(ctx, f.master())
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}
