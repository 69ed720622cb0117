package billing

import (
	"context"
	"time"

	"github.com/academy/billing/internal/domain/access"
	"github.com/academy/billing/internal/domain/billing"
	"github.com/academy/billing/internal/domain/organization"
	"github.com/academy/billing/internal/domain/shared"
	"github.com/academy/billing/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SubscriptionService manages the subscription lifecycle outside the
// dunning flow.
type SubscriptionService struct {
	options
	tx     shared.Transactor
	subs   billing.SubscriptionRepository
	units  organization.UnitRepository
	engine *Engine
}

// NewSubscriptionService creates a SubscriptionService. The engine issues
// the first period invoice of new subscriptions.
func NewSubscriptionService(
	tx shared.Transactor,
	subs billing.SubscriptionRepository,
	units organization.UnitRepository,
	engine *Engine,
	opts ...Option,
) *SubscriptionService {
	return &SubscriptionService{
		options: buildOptions(opts),
		tx:      tx,
		subs:    subs,
		units:   units,
		engine:  engine,
	}
}

// Create opens an ATIVA subscription and issues the invoice of the period
// holding its first billing date. A student may have one ATIVA
// subscription at a time.
func (s *SubscriptionService) Create(ctx context.Context, scope access.Scope, req CreateSubscriptionRequest) (*SubscriptionResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "subscription", "create",
		telemetry.SpanAttrTenantID, scope.TenantID, telemetry.SpanAttrUnitID, req.UnitID)
	defer span.End()

	if err := scope.Require(req.UnitID); err != nil {
		return nil, err
	}
	if _, err := s.units.FindByID(ctx, scope.TenantID, req.UnitID); err != nil {
		return nil, err
	}

	var (
		sub *billing.Subscription
		inv *billing.Invoice
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		exists, err := s.subs.ExistsActiveForStudent(ctx, scope.TenantID, req.StudentID)
		if err != nil {
			return err
		}
		if exists {
			return errActiveSubscription
		}
		now := s.now()
		sub, err = billing.NewSubscription(scope.TenantID, billing.NewSubscriptionInput{
			PayerID:        req.PayerID,
			StudentID:      req.StudentID,
			UnitID:         req.UnitID,
			PlanName:       req.PlanName,
			Value:          req.Value,
			PaymentMethod:  req.PaymentMethod,
			BillingDay:     req.BillingDay,
			StartDate:      req.StartDate,
			DurationMonths: req.DurationMonths,
			CreatedBy:      scope.UserID,
		}, s.loc, now)
		if err != nil {
			return err
		}
		if err := s.subs.Create(ctx, sub); err != nil {
			return err
		}
		first := billing.PeriodOf(sub.NextBillingDate, s.loc)
		if !sub.IsBillableIn(first, s.loc) {
			return nil
		}
		inv, err = s.engine.issue(ctx, sub, first)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if inv != nil {
		s.publish(ctx, sub, inv)
	} else {
		s.publish(ctx, sub)
	}
	s.logger.Info("Subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("unit_id", sub.UnitID.String()),
		zap.String("value", sub.Value.StringFixed(2)),
	)
	resp := ToSubscriptionResponse(sub)
	return &resp, nil
}

// Get returns a subscription within the caller's scope.
func (s *SubscriptionService) Get(ctx context.Context, scope access.Scope, id uuid.UUID) (*SubscriptionResponse, error) {
	sub, err := s.load(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	resp := ToSubscriptionResponse(sub)
	return &resp, nil
}

// List returns the subscriptions of units in scope.
func (s *SubscriptionService) List(ctx context.Context, scope access.Scope, filter ListSubscriptionsFilter) ([]SubscriptionResponse, int64, error) {
	items, total, err := s.subs.List(ctx, scope.TenantID, billing.SubscriptionFilter{
		Filter:          listFilter(filter.Page, filter.PageSize, filter.OrderBy, filter.OrderDir),
		UnitRestriction: restriction(scope),
		Status:          filter.Status,
		StudentID:       filter.StudentID,
		PayerID:         filter.PayerID,
	})
	if err != nil {
		return nil, 0, err
	}
	out := make([]SubscriptionResponse, len(items))
	for i := range items {
		out[i] = ToSubscriptionResponse(&items[i])
	}
	return out, total, nil
}

// Pause moves an ATIVA subscription to PAUSADA.
func (s *SubscriptionService) Pause(ctx context.Context, scope access.Scope, id uuid.UUID) (*SubscriptionResponse, error) {
	return s.mutate(ctx, scope, id, "pause", func(sub *billing.Subscription, now time.Time) error {
		return sub.Pause(now)
	})
}

// Resume moves a PAUSADA subscription back to ATIVA.
func (s *SubscriptionService) Resume(ctx context.Context, scope access.Scope, id uuid.UUID) (*SubscriptionResponse, error) {
	return s.mutate(ctx, scope, id, "resume", func(sub *billing.Subscription, now time.Time) error {
		return sub.Resume(s.loc, now)
	})
}

// Cancel terminates a subscription. Issued invoices are left as they are.
func (s *SubscriptionService) Cancel(ctx context.Context, scope access.Scope, id uuid.UUID, reason string) (*SubscriptionResponse, error) {
	return s.mutate(ctx, scope, id, "cancel", func(sub *billing.Subscription, now time.Time) error {
		return sub.Cancel(reason, scope.UserID, now)
	})
}

// Renew extends the subscription term by months.
func (s *SubscriptionService) Renew(ctx context.Context, scope access.Scope, id uuid.UUID, months int) (*SubscriptionResponse, error) {
	return s.mutate(ctx, scope, id, "renew", func(sub *billing.Subscription, now time.Time) error {
		return sub.Renew(months, now)
	})
}

// ChangeValue updates the plan value used by invoices generated from now on.
func (s *SubscriptionService) ChangeValue(ctx context.Context, scope access.Scope, id uuid.UUID, value decimal.Decimal, planName string) (*SubscriptionResponse, error) {
	return s.mutate(ctx, scope, id, "change_value", func(sub *billing.Subscription, now time.Time) error {
		return sub.ChangeValue(value, planName, now)
	})
}

func (s *SubscriptionService) mutate(ctx context.Context, scope access.Scope, id uuid.UUID, op string, fn func(*billing.Subscription, time.Time) error) (*SubscriptionResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "subscription", op,
		telemetry.SpanAttrTenantID, scope.TenantID, telemetry.SpanAttrSubscriptionID, id)
	defer span.End()

	if _, err := s.load(ctx, scope, id); err != nil {
		return nil, err
	}
	var sub *billing.Subscription
	err := s.withLock(ctx, id, func() error {
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			var err error
			sub, err = s.subs.FindByIDForUpdate(ctx, scope.TenantID, id)
			if err != nil {
				return err
			}
			if err := fn(sub, s.now()); err != nil {
				return err
			}
			return s.subs.Save(ctx, sub)
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.publish(ctx, sub)
	s.logger.Info("Subscription updated",
		zap.String("subscription_id", id.String()),
		zap.String("operation", op),
		zap.String("status", string(sub.Status)),
	)
	resp := ToSubscriptionResponse(sub)
	return &resp, nil
}

func (s *SubscriptionService) load(ctx context.Context, scope access.Scope, id uuid.UUID) (*billing.Subscription, error) {
	if scope.IsDenied() {
		return nil, scope.Require(uuid.Nil)
	}
	sub, err := s.subs.FindByID(ctx, scope.TenantID, id)
	if err != nil {
		return nil, err
	}
	if err := scope.Require(sub.UnitID); err != nil {
		return nil, err
	}
	return sub, nil
}
