package billing

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/academy/billing/internal/domain/access"
	"github.com/academy/billing/internal/domain/billing"
	"github.com/academy/billing/internal/domain/shared"
	"github.com/academy/billing/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

const (
	providerAntifraud = "antifraud"

	// ReasonAntifraudDenied is the decline reason code of an antifraud deny.
	ReasonAntifraudDenied = "ANTIFRAUD_DENIED"
)

// DefaultValidationAmount is charged and reversed to validate a card.
var DefaultValidationAmount = decimal.NewFromInt(1)

// VaultConfig configures card validation.
type VaultConfig struct {
	// FingerprintKey keys the BLAKE2b card fingerprint. At most 64 bytes.
	FingerprintKey   []byte
	ValidationAmount decimal.Decimal
}

// VaultService validates cards with a reversible charge and stores the
// resulting token on the subscription.
type VaultService struct {
	options
	tx        shared.Transactor
	subs      billing.SubscriptionRepository
	invoices  billing.InvoiceRepository
	numberer  billing.InvoiceNumberer
	gateway   billing.PaymentGateway
	antifraud billing.AntifraudProvider
	engine    *Engine
	cfg       VaultConfig
}

// NewVaultService creates a VaultService. The engine charges the open
// invoices of subscriptions reactivated by a new card.
func NewVaultService(
	tx shared.Transactor,
	subs billing.SubscriptionRepository,
	invoices billing.InvoiceRepository,
	numberer billing.InvoiceNumberer,
	gateway billing.PaymentGateway,
	antifraud billing.AntifraudProvider,
	engine *Engine,
	cfg VaultConfig,
	opts ...Option,
) (*VaultService, error) {
	if len(cfg.FingerprintKey) > blake2b.Size {
		return nil, fmt.Errorf("fingerprint key must be at most %d bytes", blake2b.Size)
	}
	if !cfg.ValidationAmount.IsPositive() {
		cfg.ValidationAmount = DefaultValidationAmount
	}
	return &VaultService{
		options:   buildOptions(opts),
		tx:        tx,
		subs:      subs,
		invoices:  invoices,
		numberer:  numberer,
		gateway:   gateway,
		antifraud: antifraud,
		engine:    engine,
		cfg:       cfg,
	}, nil
}

// ValidateAndStoreCard validates the card with antifraud and a reversible
// charge, then swaps the token into the subscription. A delinquent
// subscription is reactivated and its due invoices are charged with the
// new card.
func (v *VaultService) ValidateAndStoreCard(ctx context.Context, scope access.Scope, subscriptionID uuid.UUID, req StoreCardRequest) (*StoreCardResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "vault", "validate_and_store_card",
		telemetry.SpanAttrTenantID, scope.TenantID, telemetry.SpanAttrSubscriptionID, subscriptionID)
	defer span.End()

	result, err := v.validateAndStore(ctx, scope, subscriptionID, req)
	if err != nil {
		telemetry.RecordError(span, err)
		v.metrics.RecordCardValidation(ctx, validationOutcome(err))
		return nil, err
	}
	v.metrics.RecordCardValidation(ctx, telemetry.OutcomeApproved)
	return result, nil
}

func (v *VaultService) validateAndStore(ctx context.Context, scope access.Scope, subscriptionID uuid.UUID, req StoreCardRequest) (*StoreCardResult, error) {
	if err := req.Card.Validate(); err != nil {
		return nil, err
	}
	if err := req.Address.Validate(); err != nil {
		return nil, err
	}
	if err := req.Antifraud.Validate(); err != nil {
		return nil, err
	}

	sub, err := v.subs.FindByID(ctx, scope.TenantID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if !scope.Allows(sub.UnitID) && (scope.UserID == uuid.Nil || scope.UserID != sub.PayerID) {
		return nil, scope.Require(sub.UnitID)
	}
	if sub.Status.IsTerminal() {
		return nil, shared.InvalidState(fmt.Sprintf("cannot update card of subscription in %s status", sub.Status))
	}

	log := v.logger.With(
		zap.String("subscription_id", sub.ID.String()),
		zap.Stringer("card", req.Card),
	)

	if err := v.evaluate(ctx, sub, req); err != nil {
		log.Warn("Card validation rejected by antifraud", zap.Error(err))
		return nil, err
	}

	charge, err := v.charge(ctx, sub, req)
	if err != nil {
		log.Warn("Card validation charge failed", zap.Error(err))
		return nil, err
	}

	token := billing.CardToken{
		Token:       charge.Token,
		Last4:       req.Card.Last4(),
		Brand:       req.Card.Brand(),
		ExpMonth:    req.Card.ExpMonth,
		ExpYear:     req.Card.ExpYear,
		Fingerprint: v.fingerprint(req.Card.Number),
	}

	var (
		stored      *billing.Subscription
		validation  *billing.Invoice
		reactivated bool
	)
	err = v.withLock(ctx, sub.ID, func() error {
		return v.tx.InTx(ctx, func(ctx context.Context) error {
			var err error
			stored, err = v.subs.FindByIDForUpdate(ctx, scope.TenantID, sub.ID)
			if err != nil {
				return err
			}
			now := v.now()
			number, err := v.numberer.Next(ctx, stored.TenantID)
			if err != nil {
				return err
			}
			validation, err = billing.NewValidationInvoice(stored, v.cfg.ValidationAmount, number, now)
			if err != nil {
				return err
			}
			if err := validation.CloseValidation(charge.GatewayRef, now); err != nil {
				return err
			}
			if err := v.invoices.Create(ctx, validation); err != nil {
				return err
			}
			reactivated, err = stored.ReplaceCard(token, now)
			if err != nil {
				return err
			}
			return v.subs.Save(ctx, stored)
		})
	})
	if err != nil {
		log.Error("Failed to store validated card; reversing charge", zap.Error(err))
		if rerr := v.reverse(ctx, charge.GatewayRef); rerr != nil {
			log.Error("Failed to reverse validation charge", zap.String("gateway_ref", charge.GatewayRef), zap.Error(rerr))
		}
		return nil, err
	}
	v.publish(ctx, stored, validation)

	result := &StoreCardResult{Reactivated: reactivated}
	if err := v.reverse(ctx, charge.GatewayRef); err != nil {
		result.ReversalPending = true
		log.Error("Validation charge reversal pending", zap.String("gateway_ref", charge.GatewayRef), zap.Error(err))
	}
	log.Info("Card stored",
		zap.String("brand", token.Brand),
		zap.Bool("reactivated", reactivated),
		zap.Bool("reversal_pending", result.ReversalPending),
	)

	if reactivated && v.engine != nil {
		charged, err := v.engine.ChargeSubscription(ctx, stored.TenantID, stored.ID)
		if err != nil {
			log.Error("Failed to charge open invoices after reactivation", zap.Error(err))
		} else {
			result.Charged = charged
		}
		if fresh, err := v.subs.FindByID(ctx, stored.TenantID, stored.ID); err == nil {
			stored = fresh
		}
	}

	result.Subscription = ToSubscriptionResponse(stored)
	result.ValidationInvoice = ToInvoiceResponse(validation)
	return result, nil
}

func (v *VaultService) evaluate(ctx context.Context, sub *billing.Subscription, req StoreCardRequest) error {
	ctx, span := telemetry.StartClientSpan(ctx, providerAntifraud, "evaluate")
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, v.callTimeout)
	defer cancel()
	start := time.Now()
	decision, err := v.antifraud.Evaluate(callCtx, req.Antifraud.SessionID, billing.TransactionContext{
		SubscriptionID: sub.ID,
		PayerID:        sub.PayerID,
		Amount:         v.cfg.ValidationAmount,
		CardBIN:        req.Card.BIN(),
		CardLast4:      req.Card.Last4(),
		HolderName:     req.Card.HolderName,
		Address:        req.Address,
		Kind:           req.Antifraud.Kind,
		IPAddress:      req.IPAddress,
	})
	switch {
	case err != nil && (isTimeout(err) || callCtx.Err() != nil):
		v.metrics.RecordExternalCall(ctx, providerAntifraud, telemetry.OutcomeTimeout, time.Since(start))
		telemetry.RecordError(span, err)
		return shared.GatewayTimeout("antifraud provider")
	case err != nil:
		v.metrics.RecordExternalCall(ctx, providerAntifraud, telemetry.OutcomeError, time.Since(start))
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to evaluate antifraud: %w", err)
	case !decision.Approved:
		v.metrics.RecordExternalCall(ctx, providerAntifraud, telemetry.OutcomeDeclined, time.Since(start))
		msg := fmt.Sprintf("transaction denied by antifraud (risk score %.2f)", decision.RiskScore)
		if decision.Reason != "" {
			msg += ": " + decision.Reason
		}
		return shared.NewPaymentDeclined(ReasonAntifraudDenied, msg)
	}
	v.metrics.RecordExternalCall(ctx, providerAntifraud, telemetry.OutcomeApproved, time.Since(start))
	return nil
}

func (v *VaultService) charge(ctx context.Context, sub *billing.Subscription, req StoreCardRequest) (*billing.ChargeResult, error) {
	card := req.Card
	address := req.Address
	res, err := v.callCharge(ctx, v.gateway, &billing.ChargeRequest{
		Reference:          "VAL-" + sub.ID.String(),
		Amount:             v.cfg.ValidationAmount,
		Description:        "Validação de cartão",
		Card:               &card,
		Tokenize:           true,
		BillingAddress:     &address,
		AntifraudSessionID: req.Antifraud.SessionID,
		PayerID:            sub.PayerID,
	})
	if err != nil {
		if isTimeout(err) {
			return nil, shared.GatewayTimeout("payment gateway")
		}
		return nil, fmt.Errorf("failed to charge validation amount: %w", err)
	}
	if !res.Approved {
		return nil, shared.NewPaymentDeclined(declineCodeOrDefault(res.DeclineCode), res.DeclineReason)
	}
	if res.Token == "" {
		if err := v.reverse(ctx, res.GatewayRef); err != nil {
			v.logger.Error("Failed to reverse tokenless validation charge",
				zap.String("subscription_id", sub.ID.String()),
				zap.String("gateway_ref", res.GatewayRef),
				zap.Error(err),
			)
		}
		return nil, shared.InvalidInput("token", "gateway approved the charge without a token")
	}
	return res, nil
}

func (v *VaultService) reverse(ctx context.Context, gatewayRef string) error {
	ctx, span := telemetry.StartClientSpan(ctx, providerGateway, "reverse")
	defer span.End()

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.callTimeout)
	defer cancel()
	start := time.Now()
	if err := v.gateway.Reverse(callCtx, gatewayRef); err != nil {
		v.metrics.RecordExternalCall(ctx, providerGateway, telemetry.OutcomeError, time.Since(start))
		telemetry.RecordError(span, err)
		return err
	}
	v.metrics.RecordExternalCall(ctx, providerGateway, telemetry.OutcomeApproved, time.Since(start))
	return nil
}

// fingerprint identifies a card number without storing it.
func (v *VaultService) fingerprint(number string) string {
	h, err := blake2b.New256(v.cfg.FingerprintKey)
	if err != nil {
		return ""
	}
	h.Write([]byte(number))
	return hex.EncodeToString(h.Sum(nil))
}

func validationOutcome(err error) string {
	if _, ok := shared.IsPaymentDeclined(err); ok {
		return telemetry.OutcomeDeclined
	}
	if shared.IsGatewayTimeout(err) {
		return telemetry.OutcomeTimeout
	}
	return telemetry.OutcomeError
}
