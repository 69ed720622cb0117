package billing

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/academy/billing/internal/domain/billing"
	"github.com/academy/billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

const testPAN = "4111111111111111"

func validCardRequest() StoreCardRequest {
	return StoreCardRequest{
		Card: billing.CardFields{
			Number:     testPAN,
			HolderName: "Maria Souza",
			ExpMonth:   "08",
			ExpYear:    "2030",
			CVV:        "123",
		},
		Address: billing.Address{
			Street:       "Rua das Flores",
			Number:       "100",
			Neighborhood: "Centro",
			City:         "Curitiba",
			State:        "PR",
			ZipCode:      "80010000",
		},
		Antifraud: billing.AntifraudSession{SessionID: "sess-1", Kind: billing.AntifraudIDPay},
		IPAddress: "10.0.0.7",
	}
}

func (f *fixture) approveAntifraud() {
	f.antifraud.On("Evaluate", mock.Anything, "sess-1", mock.Anything).
		Return(&billing.AntifraudDecision{Approved: true, RiskScore: 0.12}, nil)
}

func (f *fixture) approveValidation(token, ref string) {
	f.gateway.On("Charge", mock.Anything, cardCharge()).
		Return(&billing.ChargeResult{Approved: true, GatewayRef: ref, Token: token}, nil).Once()
}

func TestVaultService_ValidateAndStoreCard(t *testing.T) {
	t.Run("stores the token and records the reversed validation charge", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		sub := f.seedSubscription(t, f.unitA)
		f.approveAntifraud()
		f.approveValidation("tok_new", "ch_val")
		f.gateway.On("Reverse", mock.Anything, "ch_val").Return(nil)

		res, err := f.vault.ValidateAndStoreCard(ctx, f.owner(), sub.ID, validCardRequest())
		require.NoError(t, err)
		assert.False(t, res.Reactivated)
		assert.False(t, res.ReversalPending)
		assert.Nil(t, res.Charged)
		require.NotNil(t, res.Subscription.Card)
		assert.Equal(t, "1111", res.Subscription.Card.Last4)
		assert.Equal(t, "VISA", res.Subscription.Card.Brand)

		stored := f.reload(t, sub.ID)
		require.NotNil(t, stored.Card)
		assert.Equal(t, "tok_new", stored.Card.Token)
		assert.Equal(t, billing.PaymentMethodCard, stored.PaymentMethod)
		assert.Equal(t, "08", stored.Card.ExpMonth)
		assert.NotContains(t, stored.Card.Fingerprint, testPAN)

		h, err := blake2b.New256([]byte("test-fingerprint-key"))
		require.NoError(t, err)
		h.Write([]byte(testPAN))
		assert.Equal(t, hex.EncodeToString(h.Sum(nil)), stored.Card.Fingerprint)

		val := f.reloadInvoice(t, res.ValidationInvoice.ID)
		assert.Equal(t, billing.InvoiceValidation, val.Kind)
		assert.Equal(t, billing.InvoiceCancelled, val.Status)
		assert.Equal(t, billing.ValidationReversalReason, val.CancelReason)
		assert.True(t, val.PaidAmount.Equal(DefaultValidationAmount))
		assert.Equal(t, "ch_val", val.GatewayRef)

		assert.Contains(t, f.events.Types(), billing.EventTypeCardReplaced)
		f.gateway.AssertExpectations(t)
		f.antifraud.AssertExpectations(t)
	})

	t.Run("never logs the card number or security code", func(t *testing.T) {
		f := newFixture(t)
		sub := f.seedSubscription(t, f.unitA)
		f.approveAntifraud()
		f.approveValidation("tok_new", "ch_val")
		f.gateway.On("Reverse", mock.Anything, "ch_val").Return(errors.New("payment: reverse failed"))

		_, err := f.vault.ValidateAndStoreCard(context.Background(), f.owner(), sub.ID, validCardRequest())
		require.NoError(t, err)
		require.NotZero(t, f.logs.Len())
		for _, entry := range f.logs.All() {
			line := fmt.Sprintf("%s %v", entry.Message, entry.ContextMap())
			assert.NotContains(t, line, testPAN)
			assert.NotContains(t, line, "cvv")
		}
	})

	t.Run("reactivates a delinquent subscription and charges its due invoices", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		sub := f.seedSubscription(t, f.unitA, withMethod(billing.PaymentMethodCard))
		inv := f.seedInvoice(t, sub, "2026-10")
		for range billing.MaxRetries {
			_, err := f.engine.RecordPaymentOutcome(ctx, f.master(), sub.ID, PaymentOutcome{Success: false})
			require.NoError(t, err)
		}
		require.Equal(t, billing.SubscriptionDelinquent, f.reload(t, sub.ID).Status)

		f.approveAntifraud()
		f.approveValidation("tok_new", "ch_val")
		f.gateway.On("Reverse", mock.Anything, "ch_val").Return(nil)
		f.gateway.On("Charge", mock.Anything, tokenCharge("tok_new")).
			Return(&billing.ChargeResult{Approved: true, GatewayRef: "ch_due"}, nil).Once()

		res, err := f.vault.ValidateAndStoreCard(ctx, f.master(), sub.ID, validCardRequest())
		require.NoError(t, err)
		assert.True(t, res.Reactivated)
		require.NotNil(t, res.Charged)
		assert.Equal(t, 1, res.Charged.Paid)
		assert.Equal(t, string(billing.SubscriptionActive), res.Subscription.Status)
		assert.Zero(t, res.Subscription.RetryCount)

		got := f.reload(t, sub.ID)
		assert.Equal(t, billing.SubscriptionActive, got.Status)
		assert.Zero(t, got.RetryCount)
		assert.Equal(t, billing.InvoicePaid, f.reloadInvoice(t, inv.ID).Status)
		f.gateway.AssertExpectations(t)
	})

	t.Run("antifraud denial leaves the subscription untouched", func(t *testing.T) {
		f := newFixture(t)
		sub := f.seedSubscription(t, f.unitA)
		f.antifraud.On("Evaluate", mock.Anything, "sess-1", mock.Anything).
			Return(&billing.AntifraudDecision{Approved: false, RiskScore: 0.97, Reason: "device mismatch"}, nil)

		_, err := f.vault.ValidateAndStoreCard(context.Background(), f.owner(), sub.ID, validCardRequest())
		code, ok := shared.IsPaymentDeclined(err)
		require.True(t, ok)
		assert.Equal(t, ReasonAntifraudDenied, code)
		assert.Contains(t, err.Error(), "0.97")

		got := f.reload(t, sub.ID)
		assert.Equal(t, sub.Status, got.Status)
		assert.Equal(t, sub.RetryCount, got.RetryCount)
		assert.Nil(t, got.Card)
		f.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
	})

	t.Run("gateway decline", func(t *testing.T) {
		f := newFixture(t)
		sub := f.seedSubscription(t, f.unitA)
		f.approveAntifraud()
		f.gateway.On("Charge", mock.Anything, cardCharge()).
			Return(&billing.ChargeResult{Approved: false, DeclineCode: "05", DeclineReason: "do not honor"}, nil)

		_, err := f.vault.ValidateAndStoreCard(context.Background(), f.owner(), sub.ID, validCardRequest())
		code, ok := shared.IsPaymentDeclined(err)
		require.True(t, ok)
		assert.Equal(t, "05", code)
		assert.Nil(t, f.reload(t, sub.ID).Card)
		f.gateway.AssertNotCalled(t, "Reverse", mock.Anything, mock.Anything)
	})

	t.Run("gateway timeout surfaces without state change", func(t *testing.T) {
		f := newFixture(t)
		sub := f.seedSubscription(t, f.unitA)
		f.approveAntifraud()
		f.gateway.On("Charge", mock.Anything, cardCharge()).
			Return(nil, fmt.Errorf("payment: %w", billing.ErrProviderTimeout))

		_, err := f.vault.ValidateAndStoreCard(context.Background(), f.owner(), sub.ID, validCardRequest())
		assert.True(t, shared.IsGatewayTimeout(err))
		assert.Nil(t, f.reload(t, sub.ID).Card)

		total, err := countInvoices(f, sub.ID)
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("antifraud timeout", func(t *testing.T) {
		f := newFixture(t)
		sub := f.seedSubscription(t, f.unitA)
		f.antifraud.On("Evaluate", mock.Anything, "sess-1", mock.Anything).
			Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
			Return(nil, context.DeadlineExceeded)

		_, err := f.vault.ValidateAndStoreCard(context.Background(), f.owner(), sub.ID, validCardRequest())
		assert.True(t, shared.IsGatewayTimeout(err))
		f.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
	})

	t.Run("reversal failure is reported and the token kept", func(t *testing.T) {
		f := newFixture(t)
		sub := f.seedSubscription(t, f.unitA)
		f.approveAntifraud()
		f.approveValidation("tok_new", "ch_val")
		f.gateway.On("Reverse", mock.Anything, "ch_val").Return(errors.New("payment: reverse failed"))

		res, err := f.vault.ValidateAndStoreCard(context.Background(), f.owner(), sub.ID, validCardRequest())
		require.NoError(t, err)
		assert.True(t, res.ReversalPending)
		assert.Equal(t, "tok_new", f.reload(t, sub.ID).Card.Token)
	})

	t.Run("tokenless approval is reversed and a failed reversal logged", func(t *testing.T) {
		f := newFixture(t)
		sub := f.seedSubscription(t, f.unitA)
		f.approveAntifraud()
		f.approveValidation("", "ch_notok")
		f.gateway.On("Reverse", mock.Anything, "ch_notok").Return(errors.New("payment: reverse failed"))

		_, err := f.vault.ValidateAndStoreCard(context.Background(), f.owner(), sub.ID, validCardRequest())
		assert.True(t, shared.IsInvalidInput(err))
		assert.Nil(t, f.reload(t, sub.ID).Card)
		f.gateway.AssertCalled(t, "Reverse", mock.Anything, "ch_notok")

		entries := f.logs.FilterMessage("Failed to reverse tokenless validation charge").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "ch_notok", entries[0].ContextMap()["gateway_ref"])
	})

	t.Run("the payer may store their own card", func(t *testing.T) {
		f := newFixture(t)
		sub := f.seedSubscription(t, f.unitC)
		f.approveAntifraud()
		f.approveValidation("tok_self", "ch_self")
		f.gateway.On("Reverse", mock.Anything, "ch_self").Return(nil)

		_, err := f.vault.ValidateAndStoreCard(context.Background(), f.student(sub.PayerID), sub.ID, validCardRequest())
		require.NoError(t, err)

		_, err = f.vault.ValidateAndStoreCard(context.Background(), f.student(uuid.New()), sub.ID, validCardRequest())
		assert.True(t, shared.IsForbidden(err))
	})

	t.Run("out of scope", func(t *testing.T) {
		f := newFixture(t)
		sub := f.seedSubscription(t, f.unitA)
		_, err := f.vault.ValidateAndStoreCard(context.Background(), f.manager(), sub.ID, validCardRequest())
		assert.True(t, shared.IsForbidden(err))
		f.antifraud.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("terminal subscription", func(t *testing.T) {
		f := newFixture(t)
		sub := f.seedSubscription(t, f.unitA)
		_, err := f.subsSvc.Cancel(context.Background(), f.owner(), sub.ID, "mudança")
		require.NoError(t, err)

		_, err = f.vault.ValidateAndStoreCard(context.Background(), f.owner(), sub.ID, validCardRequest())
		assert.True(t, shared.IsInvalidState(err))
		f.antifraud.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestVaultService_ValidationOrder(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*StoreCardRequest)
		field  string
	}{
		{"short number", func(r *StoreCardRequest) { r.Card.Number = "4111" }, "card.number"},
		{"letters in number", func(r *StoreCardRequest) { r.Card.Number = "4111abcd11111111" }, "card.number"},
		{"short holder", func(r *StoreCardRequest) { r.Card.HolderName = "Al" }, "card.holder_name"},
		{"month 13", func(r *StoreCardRequest) { r.Card.ExpMonth = "13" }, "card.expiration_month"},
		{"two digit year", func(r *StoreCardRequest) { r.Card.ExpYear = "30" }, "card.expiration_year"},
		{"cvv", func(r *StoreCardRequest) { r.Card.CVV = "12" }, "card.security_code"},
		{"card before address", func(r *StoreCardRequest) { r.Card.CVV = ""; r.Address.State = "pr" }, "card.security_code"},
		{"street", func(r *StoreCardRequest) { r.Address.Street = " " }, "address.street"},
		{"lowercase state", func(r *StoreCardRequest) { r.Address.State = "pr" }, "address.state"},
		{"zip code", func(r *StoreCardRequest) { r.Address.ZipCode = "80010-000" }, "address.zip_code"},
		{"antifraud session", func(r *StoreCardRequest) { r.Antifraud.SessionID = "" }, "antifraud.session_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			sub := f.seedSubscription(t, f.unitA)
			req := validCardRequest()
			tt.mutate(&req)

			_, err := f.vault.ValidateAndStoreCard(context.Background(), f.owner(), sub.ID, req)
			require.True(t, shared.IsInvalidInput(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.field)
			f.antifraud.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything, mock.Anything)
			f.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
		})
	}
}

func TestNewVaultService_RejectsLongKey(t *testing.T) {
	_, err := NewVaultService(nil, nil, nil, nil, nil, nil, nil, VaultConfig{FingerprintKey: make([]byte, 65)})
	assert.Error(t, err)
}

func countInvoices(f *fixture, subID uuid.UUID) (int64, error) {
	var n int64
	err := f.db.Table("invoices").Where("subscription_id = ?", subID).Count(&n).Error
	return n, err
}
