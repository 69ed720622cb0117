package scheduler

import (
	"context"
	"fmt"
	"time"

	billingapp "github.com/academy/billing/internal/application/billing"
	"github.com/academy/billing/internal/domain/access"
	"github.com/academy/billing/internal/domain/billing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BillingEngine is the part of the billing engine the jobs drive.
type BillingEngine interface {
	GenerateInvoicesForPeriod(ctx context.Context, scope access.Scope, period billing.Period) (*billingapp.GenerationResult, error)
	MarkOverdue(ctx context.Context, scope access.Scope, asOf time.Time) (*billingapp.SweepResult, error)
	ExpireSubscriptions(ctx context.Context, scope access.Scope, asOf time.Time) (*billingapp.SweepResult, error)
	ChargeDueInvoices(ctx context.Context, scope access.Scope, asOf time.Time) (*billingapp.ChargeRunResult, error)
}

// BillingExecutor runs jobs against the billing engine with a system
// scope. Per-item failures are logged by the engine and do not fail the
// job; only a failed run does.
type BillingExecutor struct {
	engine BillingEngine
	loc    *time.Location
	logger *zap.Logger
}

var _ JobExecutor = (*BillingExecutor)(nil)

// NewBillingExecutor creates a BillingExecutor. Periods are derived from
// job.AsOf in loc.
func NewBillingExecutor(engine BillingEngine, loc *time.Location, logger *zap.Logger) *BillingExecutor {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillingExecutor{engine: engine, loc: loc, logger: logger}
}

// Execute implements JobExecutor
func (e *BillingExecutor) Execute(ctx context.Context, job *Job) error {
	scope := access.SystemScope(job.TenantID)
	if job.UnitID != nil {
		if job.Kind != JobGenerateInvoices {
			return fmt.Errorf("%w: %s cannot be narrowed to a unit", ErrInvalidJobKind, job.Kind)
		}
		scope = access.SystemUnitScope(job.TenantID, *job.UnitID)
	}
	logger := e.logger.With(zap.String("kind", string(job.Kind)), zap.String("tenant_id", job.TenantID.String()))

	switch job.Kind {
	case JobGenerateInvoices:
		period := billing.PeriodOf(job.AsOf, e.loc)
		res, err := e.engine.GenerateInvoicesForPeriod(ctx, scope, period)
		if err != nil {
			return err
		}
		logger.Info("Invoice generation finished",
			zap.String("period", period.String()),
			zap.Int("created", res.Created),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed),
		)
	case JobMarkOverdue:
		res, err := e.engine.MarkOverdue(ctx, scope, job.AsOf)
		if err != nil {
			return err
		}
		logger.Info("Overdue sweep finished", zap.Int("changed", res.Changed), zap.Int("failed", res.Failed))
	case JobExpire:
		res, err := e.engine.ExpireSubscriptions(ctx, scope, job.AsOf)
		if err != nil {
			return err
		}
		logger.Info("Expiry sweep finished", zap.Int("changed", res.Changed), zap.Int("failed", res.Failed))
	case JobChargeDue:
		res, err := e.engine.ChargeDueInvoices(ctx, scope, job.AsOf)
		if err != nil {
			return err
		}
		logger.Info("Charge run finished",
			zap.Int("attempted", res.Attempted),
			zap.Int("paid", res.Paid),
			zap.Int("declined", res.Declined),
			zap.Int("timed_out", res.TimedOut),
			zap.Int("failed", res.Failed),
		)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidJobKind, job.Kind)
	}
	return nil
}

// RunAll executes kinds in order for every tenant synchronously. It
// keeps going after a failed job and returns the first error.
func RunAll(ctx context.Context, exec JobExecutor, tenants []uuid.UUID, kinds []JobKind, asOf time.Time, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	var firstErr error
	for _, kind := range kinds {
		for _, tenantID := range tenants {
			job := NewJob(tenantID, kind, asOf, 0)
			job.Start(time.Now())
			if err := exec.Execute(ctx, job); err != nil {
				job.Fail(err.Error(), time.Now())
				logger.Error("Job failed",
					zap.String("kind", string(kind)),
					zap.String("tenant_id", tenantID.String()),
					zap.Error(err),
				)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			job.Complete(time.Now())
		}
	}
	return firstErr
}
