package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TenantProvider lists the tenants the daily jobs run for
type TenantProvider interface {
	TenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Submitter queues jobs. *Scheduler implements it.
type Submitter interface {
	ScheduleForTenants(tenants []uuid.UUID, kind JobKind, asOf time.Time) error
}

// CronTriggerConfig holds the hour each job kind runs at. A negative
// hour disables that kind.
type CronTriggerConfig struct {
	Hours         map[JobKind]int
	Location      *time.Location
	CheckInterval time.Duration
}

// DefaultCronTriggerConfig returns the daily schedule: generation at
// 00:00, overdue at 01:00, expiry at 02:00, charging at 06:00.
func DefaultCronTriggerConfig(loc *time.Location) CronTriggerConfig {
	return CronTriggerConfig{
		Hours: map[JobKind]int{
			JobGenerateInvoices: 0,
			JobMarkOverdue:      1,
			JobExpire:           2,
			JobChargeDue:        6,
		},
		Location:      loc,
		CheckInterval: time.Minute,
	}
}

// CronTrigger submits each job kind once per local day, during its hour
type CronTrigger struct {
	config    CronTriggerConfig
	submitter Submitter
	tenants   TenantProvider
	logger    *zap.Logger
	now       func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	lastRun   map[JobKind]string
}

// NewCronTrigger creates a new cron trigger
func NewCronTrigger(config CronTriggerConfig, submitter Submitter, tenants TenantProvider, logger *zap.Logger) *CronTrigger {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CronTrigger{
		config:    config,
		submitter: submitter,
		tenants:   tenants,
		logger:    logger,
		now:       time.Now,
		lastRun:   make(map[JobKind]string),
	}
}

// Start starts the cron trigger
func (c *CronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isRunning {
		return nil
	}
	c.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Billing cron trigger started",
		zap.String("timezone", c.config.Location.String()),
		zap.Duration("check_interval", c.config.CheckInterval),
	)
	return nil
}

// Stop stops the cron trigger
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		c.logger.Info("Billing cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndTrigger(ctx, c.now())
		}
	}
}

// checkAndTrigger submits every kind whose hour matches now and that has
// not run yet on now's local date. It returns the kinds triggered.
func (c *CronTrigger) checkAndTrigger(ctx context.Context, now time.Time) []JobKind {
	local := now.In(c.config.Location)
	date := local.Format("2006-01-02")

	var due []JobKind
	c.mu.Lock()
	for _, kind := range AllJobKinds() {
		hour, ok := c.config.Hours[kind]
		if !ok || hour < 0 || local.Hour() != hour || c.lastRun[kind] == date {
			continue
		}
		c.lastRun[kind] = date
		due = append(due, kind)
	}
	c.mu.Unlock()
	if len(due) == 0 {
		return nil
	}

	tenantIDs, err := c.tenants.TenantIDs(ctx)
	if err != nil {
		c.logger.Error("Failed to list tenants for billing jobs", zap.Error(err))
		c.mu.Lock()
		for _, kind := range due {
			delete(c.lastRun, kind)
		}
		c.mu.Unlock()
		return nil
	}

	for _, kind := range due {
		c.logger.Info("Triggering billing job", zap.String("kind", string(kind)), zap.Int("tenant_count", len(tenantIDs)))
		if err := c.submitter.ScheduleForTenants(tenantIDs, kind, now); err != nil {
			c.logger.Error("Failed to schedule billing job", zap.String("kind", string(kind)), zap.Error(err))
		}
	}
	return due
}
