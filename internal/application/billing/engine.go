// Package billing implements the billing use cases: period invoice
// generation, dunning, card charging, the payment method vault and the
// invoice ledger.
package billing

import (
	"context"
	"time"

	"github.com/academy/billing/internal/domain/access"
	"github.com/academy/billing/internal/domain/billing"
	"github.com/academy/billing/internal/domain/shared"
	"github.com/academy/billing/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const providerGateway = "gateway"

// Engine generates period invoices and drives subscriptions through the
// dunning state machine. Work on one subscription is serialized by a row
// lock and, when configured, a cross-process lock.
type Engine struct {
	options
	tx       shared.Transactor
	subs     billing.SubscriptionRepository
	invoices billing.InvoiceRepository
	numberer billing.InvoiceNumberer
	gateway  billing.PaymentGateway
}

// NewEngine creates a billing Engine.
func NewEngine(
	tx shared.Transactor,
	subs billing.SubscriptionRepository,
	invoices billing.InvoiceRepository,
	numberer billing.InvoiceNumberer,
	gateway billing.PaymentGateway,
	opts ...Option,
) *Engine {
	return &Engine{
		options:  buildOptions(opts),
		tx:       tx,
		subs:     subs,
		invoices: invoices,
		numberer: numberer,
		gateway:  gateway,
	}
}

// GenerateInvoicesForPeriod issues the PENDENTE invoice of period for every
// ATIVA subscription in scope that does not have one yet. Repeated runs
// for the same period create nothing new.
func (e *Engine) GenerateInvoicesForPeriod(ctx context.Context, scope access.Scope, period billing.Period) (*GenerationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "generate_invoices",
		telemetry.SpanAttrTenantID, scope.TenantID, telemetry.SpanAttrPeriod, period.String())
	defer span.End()

	if scope.IsDenied() {
		return nil, scope.Require(uuid.Nil)
	}
	if period.IsZero() {
		return nil, shared.InvalidInput("period", "is required")
	}
	ids, err := e.subs.FindIDsByStatus(ctx, scope.TenantID, billing.SubscriptionActive, restriction(scope))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result := &GenerationResult{Period: period.String(), Invoices: []InvoiceResponse{}}
	for _, id := range ids {
		inv, err := e.generateOne(ctx, scope.TenantID, id, period)
		switch {
		case err != nil && shared.IsConflict(err):
			result.Skipped++
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, ItemError{ID: id, Error: err.Error()})
			e.logger.Error("Failed to generate invoice",
				zap.String("subscription_id", id.String()),
				zap.String("period", period.String()),
				zap.Error(err),
			)
		case inv == nil:
			result.Skipped++
		default:
			result.Created++
			result.Invoices = append(result.Invoices, ToInvoiceResponse(inv))
		}
	}

	e.metrics.RecordGeneration(ctx, result.Created, result.Skipped)
	telemetry.SetAttributes(span, "created", result.Created, "skipped", result.Skipped, "failed", result.Failed)
	e.logger.Info("Period invoices generated",
		zap.String("tenant_id", scope.TenantID.String()),
		zap.String("period", period.String()),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// generateOne returns the created invoice, or nil when the subscription
// was not billable or already invoiced for period.
func (e *Engine) generateOne(ctx context.Context, tenantID, subscriptionID uuid.UUID, period billing.Period) (*billing.Invoice, error) {
	var (
		created *billing.Invoice
		sub     *billing.Subscription
	)
	err := e.withLock(ctx, subscriptionID, func() error {
		return e.tx.InTx(ctx, func(ctx context.Context) error {
			var err error
			sub, err = e.subs.FindByIDForUpdate(ctx, tenantID, subscriptionID)
			if err != nil {
				return err
			}
			if !sub.IsBillableIn(period, e.loc) {
				return nil
			}
			if _, err := e.invoices.FindActiveForPeriod(ctx, tenantID, subscriptionID, period.String()); err == nil {
				return nil
			} else if !shared.IsNotFound(err) {
				return err
			}
			inv, err := e.issue(ctx, sub, period)
			if err != nil {
				return err
			}
			created = inv
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if created != nil {
		e.publish(ctx, created, sub)
	}
	return created, nil
}

// issue creates the period invoice of a row-locked subscription and
// advances its billing date. It must run inside a transaction.
func (e *Engine) issue(ctx context.Context, sub *billing.Subscription, period billing.Period) (*billing.Invoice, error) {
	now := e.now()
	number, err := e.numberer.Next(ctx, sub.TenantID)
	if err != nil {
		return nil, err
	}
	inv, err := billing.NewPeriodInvoice(sub, period, number, e.loc, now)
	if err != nil {
		return nil, err
	}
	if err := e.invoices.Create(ctx, inv); err != nil {
		return nil, err
	}
	sub.AdvanceBilling(period, e.loc, now)
	if err := e.subs.Save(ctx, sub); err != nil {
		return nil, err
	}
	return inv, nil
}

// RecordPaymentOutcome applies a payment result to the subscription. A
// success settles the oldest open recurring invoice and resets the retry
// counter. A failure counts toward delinquency and leaves invoices open.
func (e *Engine) RecordPaymentOutcome(ctx context.Context, scope access.Scope, subscriptionID uuid.UUID, outcome PaymentOutcome) (*PaymentOutcomeResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "record_payment_outcome",
		telemetry.SpanAttrTenantID, scope.TenantID, telemetry.SpanAttrSubscriptionID, subscriptionID)
	defer span.End()

	sub, err := e.subs.FindByID(ctx, scope.TenantID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := scope.Require(sub.UnitID); err != nil {
		return nil, err
	}

	var result *PaymentOutcomeResult
	err = e.withLock(ctx, subscriptionID, func() error {
		var err error
		result, err = e.applyOutcome(ctx, scope.TenantID, subscriptionID, uuid.Nil, outcome, false)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// applyOutcome runs without taking the subscription lock; callers hold
// it. invoiceID selects the invoice a gateway charge was made for; Nil
// picks the oldest open one. charged records the attempt on the invoice.
func (e *Engine) applyOutcome(ctx context.Context, tenantID, subscriptionID, invoiceID uuid.UUID, outcome PaymentOutcome, charged bool) (*PaymentOutcomeResult, error) {
	var (
		sub  *billing.Subscription
		paid *billing.Invoice
		inv  *billing.Invoice
	)
	err := e.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		sub, err = e.subs.FindByIDForUpdate(ctx, tenantID, subscriptionID)
		if err != nil {
			return err
		}
		inv, err = e.targetInvoice(ctx, tenantID, subscriptionID, invoiceID)
		if err != nil {
			return err
		}
		now := e.now()

		if !outcome.Success {
			if err := sub.RecordFailure(now); err != nil {
				return err
			}
			if inv != nil && charged {
				inv.RecordChargeAttempt(declineCodeOrDefault(outcome.DeclineCode), now)
				if err := e.invoices.Save(ctx, inv); err != nil {
					return err
				}
			}
			return e.subs.Save(ctx, sub)
		}

		if inv != nil {
			if charged {
				inv.RecordChargeAttempt("", now)
			}
			amount := inv.OriginalAmount
			if outcome.Amount != nil {
				amount = *outcome.Amount
			}
			method := outcome.Method
			if method == "" {
				method = sub.PaymentMethod
			}
			if err := inv.Pay(method, amount, outcome.GatewayRef, "", now); err != nil {
				return err
			}
			if err := e.invoices.Save(ctx, inv); err != nil {
				return err
			}
			paid = inv
		}
		sub.RecordSuccess(now)
		return e.subs.Save(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	if inv != nil {
		e.publish(ctx, sub, inv)
	} else {
		e.publish(ctx, sub)
	}
	method := outcome.Method
	if method == "" {
		method = sub.PaymentMethod
	}
	e.metrics.RecordPaymentOutcome(ctx, string(method), outcome.Success)

	result := &PaymentOutcomeResult{
		SubscriptionID:     sub.ID,
		SubscriptionStatus: string(sub.Status),
		RetryCount:         sub.RetryCount,
		BecameDelinquent:   !outcome.Success && sub.Status == billing.SubscriptionDelinquent,
	}
	if paid != nil {
		resp := ToInvoiceResponse(paid)
		result.PaidInvoice = &resp
	}
	if result.BecameDelinquent {
		e.metrics.RecordDelinquency(ctx)
		e.logger.Warn("Subscription became delinquent",
			zap.String("subscription_id", sub.ID.String()),
			zap.Int("retry_count", sub.RetryCount),
		)
	}
	return result, nil
}

func (e *Engine) targetInvoice(ctx context.Context, tenantID, subscriptionID, invoiceID uuid.UUID) (*billing.Invoice, error) {
	if invoiceID != uuid.Nil {
		inv, err := e.invoices.FindByIDForUpdate(ctx, tenantID, invoiceID)
		if err != nil {
			return nil, err
		}
		if inv.SubscriptionID != subscriptionID {
			return nil, shared.InvalidInput("invoice_id", "invoice belongs to another subscription")
		}
		return inv, nil
	}
	open, err := e.invoices.FindOpenBySubscription(ctx, tenantID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}
	return e.invoices.FindByIDForUpdate(ctx, tenantID, open[0].ID)
}

func declineCodeOrDefault(code string) string {
	if code == "" {
		return "DECLINED"
	}
	return code
}

// ChargeDueInvoices charges every open recurring invoice due by asOf whose
// subscription is ATIVA and paid by a stored card. Charges of a
// subscription stop once a decline makes it delinquent.
func (e *Engine) ChargeDueInvoices(ctx context.Context, scope access.Scope, asOf time.Time) (*ChargeRunResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "charge_due_invoices",
		telemetry.SpanAttrTenantID, scope.TenantID)
	defer span.End()

	if scope.IsDenied() {
		return nil, scope.Require(uuid.Nil)
	}
	due, err := e.invoices.FindChargeable(ctx, scope.TenantID, asOf, restriction(scope))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	result := e.chargeAll(ctx, scope.TenantID, due)
	telemetry.SetAttributes(span, "attempted", result.Attempted, "paid", result.Paid, "declined", result.Declined)
	e.logger.Info("Due invoices charged",
		zap.String("tenant_id", scope.TenantID.String()),
		zap.Int("attempted", result.Attempted),
		zap.Int("paid", result.Paid),
		zap.Int("declined", result.Declined),
		zap.Int("timed_out", result.TimedOut),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// ChargeSubscription charges the open invoices of one subscription that
// are due by now, oldest first, with the card on file.
func (e *Engine) ChargeSubscription(ctx context.Context, tenantID, subscriptionID uuid.UUID) (*ChargeRunResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "charge_subscription",
		telemetry.SpanAttrTenantID, tenantID, telemetry.SpanAttrSubscriptionID, subscriptionID)
	defer span.End()

	open, err := e.invoices.FindOpenBySubscription(ctx, tenantID, subscriptionID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	now := e.now()
	due := make([]billing.Invoice, 0, len(open))
	for _, inv := range open {
		if !inv.DueDate.After(now) {
			due = append(due, inv)
		}
	}
	return e.chargeAll(ctx, tenantID, due), nil
}

type chargeOutcome int

const (
	chargeSkipped chargeOutcome = iota
	chargePaid
	chargeDeclined
	chargeTimedOut
)

func (e *Engine) chargeAll(ctx context.Context, tenantID uuid.UUID, due []billing.Invoice) *ChargeRunResult {
	result := &ChargeRunResult{}
	stopped := make(map[uuid.UUID]bool)
	for _, inv := range due {
		if stopped[inv.SubscriptionID] {
			result.Skipped++
			continue
		}
		outcome, delinquent, err := e.chargeInvoice(ctx, tenantID, inv.SubscriptionID, inv.ID)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ItemError{ID: inv.ID, Error: err.Error()})
			e.logger.Error("Failed to charge invoice",
				zap.String("invoice_id", inv.ID.String()),
				zap.String("subscription_id", inv.SubscriptionID.String()),
				zap.Error(err),
			)
			continue
		}
		switch outcome {
		case chargePaid:
			result.Attempted++
			result.Paid++
		case chargeDeclined:
			result.Attempted++
			result.Declined++
		case chargeTimedOut:
			result.Attempted++
			result.TimedOut++
			stopped[inv.SubscriptionID] = true
		default:
			result.Skipped++
		}
		if delinquent {
			stopped[inv.SubscriptionID] = true
		}
	}
	return result
}

// chargeInvoice charges one invoice under the subscription lock. The
// gateway call runs outside any database transaction. A timeout leaves
// every row untouched.
func (e *Engine) chargeInvoice(ctx context.Context, tenantID, subscriptionID, invoiceID uuid.UUID) (chargeOutcome, bool, error) {
	var (
		outcome    = chargeSkipped
		delinquent bool
	)
	err := e.withLock(ctx, subscriptionID, func() error {
		sub, err := e.subs.FindByID(ctx, tenantID, subscriptionID)
		if err != nil {
			return err
		}
		inv, err := e.invoices.FindByID(ctx, tenantID, invoiceID)
		if err != nil {
			return err
		}
		if sub.Status != billing.SubscriptionActive || !sub.HasCard() || !inv.Status.IsOpen() {
			return nil
		}

		res, err := e.callCharge(ctx, e.gateway, &billing.ChargeRequest{
			Reference:   inv.Number,
			Amount:      inv.OriginalAmount,
			Description: inv.Description,
			Token:       sub.Card.Token,
			PayerID:     sub.PayerID,
		})
		if err != nil {
			if isTimeout(err) {
				outcome = chargeTimedOut
				e.logger.Warn("Gateway timed out charging invoice; outcome unknown",
					zap.String("invoice_id", inv.ID.String()),
					zap.String("invoice_number", inv.Number),
				)
				return nil
			}
			return err
		}

		po := PaymentOutcome{
			Success:     res.Approved,
			GatewayRef:  res.GatewayRef,
			DeclineCode: res.DeclineCode,
			Method:      billing.PaymentMethodCard,
		}
		applied, err := e.applyOutcome(ctx, tenantID, subscriptionID, invoiceID, po, true)
		if err != nil {
			return err
		}
		if res.Approved {
			outcome = chargePaid
		} else {
			outcome = chargeDeclined
			delinquent = applied.BecameDelinquent
		}
		return nil
	})
	return outcome, delinquent, err
}

// callCharge charges req under the call timeout. A deadline maps to
// billing.ErrProviderTimeout.
func (o *options) callCharge(ctx context.Context, gateway billing.PaymentGateway, req *billing.ChargeRequest) (*billing.ChargeResult, error) {
	ctx, span := telemetry.StartClientSpan(ctx, providerGateway, "charge")
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	start := time.Now()
	res, err := gateway.Charge(callCtx, req)
	switch {
	case err != nil && (isTimeout(err) || callCtx.Err() != nil):
		o.metrics.RecordExternalCall(ctx, providerGateway, telemetry.OutcomeTimeout, time.Since(start))
		telemetry.RecordError(span, err)
		return nil, billing.ErrProviderTimeout
	case err != nil:
		o.metrics.RecordExternalCall(ctx, providerGateway, telemetry.OutcomeError, time.Since(start))
		telemetry.RecordError(span, err)
		return nil, err
	case !res.Approved:
		o.metrics.RecordExternalCall(ctx, providerGateway, telemetry.OutcomeDeclined, time.Since(start))
		telemetry.SetAttributes(span, telemetry.SpanAttrDeclineCode, res.DeclineCode)
	default:
		o.metrics.RecordExternalCall(ctx, providerGateway, telemetry.OutcomeApproved, time.Since(start))
	}
	return res, nil
}

// MarkOverdue moves PENDENTE invoices due before the day of asOf to
// ATRASADA. It requires an unrestricted scope.
func (e *Engine) MarkOverdue(ctx context.Context, scope access.Scope, asOf time.Time) (*SweepResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "mark_overdue",
		telemetry.SpanAttrTenantID, scope.TenantID)
	defer span.End()

	if err := scope.RequireAll(); err != nil {
		return nil, err
	}
	today := dayStart(asOf, e.loc)
	pending, err := e.invoices.FindPendingDueBefore(ctx, scope.TenantID, today)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result := &SweepResult{}
	for _, p := range pending {
		var changed *billing.Invoice
		err := e.tx.InTx(ctx, func(ctx context.Context) error {
			inv, err := e.invoices.FindByIDForUpdate(ctx, scope.TenantID, p.ID)
			if err != nil {
				return err
			}
			if !inv.MarkOverdue(today) {
				return nil
			}
			changed = inv
			return e.invoices.Save(ctx, inv)
		})
		if err != nil {
			result.fail(p.ID, err)
			e.logger.Error("Failed to mark invoice overdue", zap.String("invoice_id", p.ID.String()), zap.Error(err))
			continue
		}
		if changed != nil {
			result.Changed++
			e.publish(ctx, changed)
		}
	}
	return result, nil
}

// ExpireSubscriptions moves ATIVA subscriptions whose term ended before
// the day of asOf to EXPIRADA. It requires an unrestricted scope.
func (e *Engine) ExpireSubscriptions(ctx context.Context, scope access.Scope, asOf time.Time) (*SweepResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "expire_subscriptions",
		telemetry.SpanAttrTenantID, scope.TenantID)
	defer span.End()

	if err := scope.RequireAll(); err != nil {
		return nil, err
	}
	today := dayStart(asOf, e.loc)
	ids, err := e.subs.FindExpiredIDs(ctx, scope.TenantID, today)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result := &SweepResult{}
	for _, id := range ids {
		var expired *billing.Subscription
		err := e.withLock(ctx, id, func() error {
			return e.tx.InTx(ctx, func(ctx context.Context) error {
				sub, err := e.subs.FindByIDForUpdate(ctx, scope.TenantID, id)
				if err != nil {
					return err
				}
				if err := sub.Expire(today); err != nil {
					if shared.IsInvalidState(err) {
						return nil
					}
					return err
				}
				expired = sub
				return e.subs.Save(ctx, sub)
			})
		})
		if err != nil {
			result.fail(id, err)
			e.logger.Error("Failed to expire subscription", zap.String("subscription_id", id.String()), zap.Error(err))
			continue
		}
		if expired != nil {
			result.Changed++
			e.publish(ctx, expired)
		}
	}
	return result, nil
}

func (r *SweepResult) fail(id uuid.UUID, err error) {
	r.Failed++
	r.Errors = append(r.Errors, ItemError{ID: id, Error: err.Error()})
}

func dayStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
