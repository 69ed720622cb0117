package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/academy/billing/internal/domain/access"
	"github.com/academy/billing/internal/domain/billing"
	"github.com/academy/billing/internal/domain/document"
	"github.com/academy/billing/internal/domain/shared"
	"github.com/academy/billing/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultCallTimeout = 8 * time.Second

// options holds the collaborators shared by the billing services.
type options struct {
	logger      *zap.Logger
	events      shared.EventPublisher
	metrics     *telemetry.BillingMetrics
	locker      billing.SubscriptionLocker
	archive     document.Archive
	now         func() time.Time
	loc         *time.Location
	callTimeout time.Duration
}

func defaultOptions() options {
	return options{
		logger:      zap.NewNop(),
		locker:      noopLocker{},
		now:         time.Now,
		loc:         time.UTC,
		callTimeout: defaultCallTimeout,
	}
}

// Option configures a billing service.
type Option func(*options)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEventPublisher publishes domain events after commit.
func WithEventPublisher(p shared.EventPublisher) Option {
	return func(o *options) { o.events = p }
}

// WithMetrics records billing counters.
func WithMetrics(m *telemetry.BillingMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLocker adds a cross-process lock around per-subscription work.
func WithLocker(l billing.SubscriptionLocker) Option {
	return func(o *options) {
		if l != nil {
			o.locker = l
		}
	}
}

// WithArchive archives rendered receipts.
func WithArchive(a document.Archive) Option {
	return func(o *options) { o.archive = a }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLocation sets the timezone periods and due dates are computed in.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithCallTimeout bounds every gateway, antifraud and renderer call.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.callTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o *options) publish(ctx context.Context, sources ...shared.EventSource) {
	if err := shared.PublishAndClear(ctx, o.events, sources...); err != nil {
		o.logger.Warn("Failed to publish billing events", zap.Error(err))
	}
}

// withLock runs fn while holding the subscription's cross-process lock.
func (o *options) withLock(ctx context.Context, subscriptionID uuid.UUID, fn func() error) error {
	release, err := o.locker.Lock(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to lock subscription %s: %w", subscriptionID, err)
	}
	defer release()
	return fn()
}

type noopLocker struct{}

func (noopLocker) Lock(context.Context, uuid.UUID) (func(), error) {
	return func() {}, nil
}

func restriction(scope access.Scope) billing.UnitRestriction {
	units, restricted := scope.UnitFilter()
	return billing.UnitRestriction{UnitIDs: units, Restricted: restricted}
}

func listFilter(page, size int, orderBy, orderDir string) shared.Filter {
	f := shared.DefaultFilter()
	if page > 0 {
		f.Page = page
	}
	if size > 0 {
		f.PageSize = min(size, 100)
	}
	if orderBy != "" {
		f.OrderBy = orderBy
	}
	if orderDir != "" {
		f.OrderDir = orderDir
	}
	return f
}

func isTimeout(err error) bool {
	return errors.Is(err, billing.ErrProviderTimeout) || errors.Is(err, context.DeadlineExceeded)
}

var errActiveSubscription = shared.Conflict("the student already has an active subscription")

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }
