package main

import (
	"context"
	"fmt"
	"time"

	billingapp "github.com/academy/billing/internal/application/billing"
	"github.com/academy/billing/internal/infrastructure/cache"
	"github.com/academy/billing/internal/infrastructure/config"
	"github.com/academy/billing/internal/infrastructure/event"
	"github.com/academy/billing/internal/infrastructure/logger"
	"github.com/academy/billing/internal/infrastructure/payment"
	"github.com/academy/billing/internal/infrastructure/persistence"
	"github.com/academy/billing/internal/infrastructure/scheduler"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// app is the server's billing composition without HTTP.
type app struct {
	log     *zap.Logger
	loc     *time.Location
	exec    scheduler.JobExecutor
	units   *persistence.GormUnitRepository
	closers []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	loc, err := cfg.App.Location()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.FromAppConfig(cfg))
	if err != nil {
		return nil, err
	}
	a := &app{log: log.Named("billingctl"), loc: loc}

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database,
		logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.GormMode)))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)

	locker, closeLocker, err := cache.NewSubscriptionLocker(ctx, cfg.Redis, log)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, closeLocker)

	gateway, err := payment.NewGatewayClient(payment.GatewayConfig{
		BaseURL:       cfg.Gateway.BaseURL,
		APIKey:        cfg.Gateway.APIKey,
		Timeout:       cfg.Gateway.Timeout,
		RatePerSecond: cfg.Gateway.RatePerSecond,
		Burst:         cfg.Gateway.Burst,
		Sandbox:       cfg.Gateway.Sandbox,
	}, nil)
	if err != nil {
		a.close()
		return nil, err
	}

	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(event.NewAuditLogHandler(log))

	a.units = persistence.NewGormUnitRepository(db.DB)
	engine := billingapp.NewEngine(
		persistence.NewTxManager(db.DB),
		persistence.NewGormSubscriptionRepository(db.DB),
		persistence.NewGormInvoiceRepository(db.DB),
		persistence.NewGormInvoiceNumberer(db.DB),
		gateway,
		billingapp.WithLogger(log),
		billingapp.WithEventPublisher(bus),
		billingapp.WithLocker(locker),
		billingapp.WithLocation(loc),
	)
	a.exec = scheduler.NewBillingExecutor(engine, loc, log)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("Close failed", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

// tenants returns the parsed --tenant values, or every tenant that owns a
// unit when none was given.
func (a *app) tenants(ctx context.Context, raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		ids, err := a.units.TenantIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list tenants: %w", err)
		}
		return ids, nil
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid tenant id %q", s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
