package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	billingapp "github.com/academy/billing/internal/application/billing"
	contractapp "github.com/academy/billing/internal/application/contract"
	"github.com/academy/billing/internal/domain/document"
	"github.com/academy/billing/internal/infrastructure/auth"
	"github.com/academy/billing/internal/infrastructure/cache"
	"github.com/academy/billing/internal/infrastructure/config"
	"github.com/academy/billing/internal/infrastructure/event"
	"github.com/academy/billing/internal/infrastructure/logger"
	"github.com/academy/billing/internal/infrastructure/payment"
	"github.com/academy/billing/internal/infrastructure/persistence"
	"github.com/academy/billing/internal/infrastructure/printing"
	"github.com/academy/billing/internal/infrastructure/scheduler"
	"github.com/academy/billing/internal/infrastructure/storage"
	"github.com/academy/billing/internal/infrastructure/telemetry"
	"github.com/academy/billing/internal/interfaces/http/handler"
	"github.com/academy/billing/internal/interfaces/http/middleware"
	"github.com/academy/billing/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.FromAppConfig(cfg))
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

// closer is a shutdown step run in reverse registration order.
type closer struct {
	name string
	fn   func(context.Context) error
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []closer
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGrace)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].fn(shutdownCtx); err != nil {
				log.Error("Shutdown step failed", zap.String("step", closers[i].name), zap.Error(err))
			}
		}
	}()

	loc, err := cfg.App.Location()
	if err != nil {
		return err
	}

	log.Info("Starting billing API",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("timezone", loc.String()),
	)

	// Telemetry
	tracer, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return err
	}
	closers = append(closers, closer{"tracer", tracer.Shutdown})

	meters, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return err
	}
	closers = append(closers, closer{"meter", meters.Shutdown})

	if cfg.Telemetry.LogsEnabled {
		logs, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
			Enabled:           true,
			CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
			ServiceName:       cfg.Telemetry.ServiceName,
			Insecure:          cfg.Telemetry.Insecure,
		}, log)
		if err != nil {
			return err
		}
		closers = append(closers, closer{"logs", logs.Shutdown})
		log = logs.Bridge(log, zapcore.InfoLevel)
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.PyroscopeAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		return err
	}
	closers = append(closers, closer{"profiler", func(context.Context) error { return profiler.Stop() }})
	if profiler.IsEnabled() {
		tracer.EnableSpanProfiles()
	}

	billingMetrics, err := telemetry.NewBillingMetrics(meters.Meter("billing"))
	if err != nil {
		return err
	}

	// Storage
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.GormMode))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		return err
	}
	closers = append(closers, closer{"database", func(context.Context) error { return db.Close() }})
	log.Info("Database connected", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))

	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:          cfg.Telemetry.DBTraceEnabled,
		SlowQueryThresh:  200 * time.Millisecond,
		DBName:           cfg.Database.DBName,
		IncludeVariables: cfg.Telemetry.DBLogFullSQL,
	}, log); err != nil {
		return err
	}

	locker, closeLocker, err := cache.NewSubscriptionLocker(ctx, cfg.Redis, log)
	if err != nil {
		return err
	}
	closers = append(closers, closer{"redis", func(context.Context) error { return closeLocker() }})

	var archive document.Archive
	if cfg.Storage.Enabled {
		s3, err := storage.NewS3Archive(ctx, &cfg.Storage, storage.WithLogger(log))
		if err != nil {
			return err
		}
		archive = s3
	}

	// Events
	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(event.NewAuditLogHandler(log))
	closers = append(closers, closer{"event bus", func(context.Context) error { bus.Stop(); return nil }})

	// Providers
	gateway, err := payment.NewGatewayClient(payment.GatewayConfig{
		BaseURL:       cfg.Gateway.BaseURL,
		APIKey:        cfg.Gateway.APIKey,
		Timeout:       cfg.Gateway.Timeout,
		RatePerSecond: cfg.Gateway.RatePerSecond,
		Burst:         cfg.Gateway.Burst,
		Sandbox:       cfg.Gateway.Sandbox,
	}, nil)
	if err != nil {
		return err
	}
	antifraud, err := payment.NewAntifraudClient(payment.AntifraudConfig{
		BaseURL: cfg.Antifraud.BaseURL,
		APIKey:  cfg.Antifraud.APIKey,
		Timeout: cfg.Antifraud.Timeout,
		Sandbox: cfg.Antifraud.Sandbox,
	}, nil)
	if err != nil {
		return err
	}

	pdf, err := printing.NewChromedpRenderer(&printing.ChromedpConfig{
		DefaultTimeout: cfg.Renderer.Timeout,
		RemoteURL:      cfg.Renderer.RemoteURL,
		ExecPath:       cfg.Renderer.ExecPath,
		NoSandbox:      true,
		Logger:         log,
	})
	if err != nil {
		return err
	}
	closers = append(closers, closer{"renderer", func(context.Context) error { return pdf.Close() }})
	renderer := printing.NewDocumentRenderer(printing.NewTemplateEngine(printing.WithLocation(loc)), pdf)

	// Application
	tx := persistence.NewTxManager(db.DB)
	contracts := persistence.NewGormContractRepository(db.DB)
	signatures := persistence.NewGormSignatureRepository(db.DB)
	subscriptions := persistence.NewGormSubscriptionRepository(db.DB)
	invoices := persistence.NewGormInvoiceRepository(db.DB)
	units := persistence.NewGormUnitRepository(db.DB)
	numberer := persistence.NewGormInvoiceNumberer(db.DB)

	contractOpts := []contractapp.Option{
		contractapp.WithLogger(log),
		contractapp.WithEventPublisher(bus),
		contractapp.WithRenderTimeout(cfg.Renderer.Timeout),
	}
	billingOpts := []billingapp.Option{
		billingapp.WithLogger(log),
		billingapp.WithEventPublisher(bus),
		billingapp.WithMetrics(billingMetrics),
		billingapp.WithLocker(locker),
		billingapp.WithLocation(loc),
	}
	if archive != nil {
		contractOpts = append(contractOpts, contractapp.WithArchive(archive))
		billingOpts = append(billingOpts, billingapp.WithArchive(archive))
	}

	contractSvc := contractapp.NewService(tx, contracts, signatures, units, renderer, contractOpts...)
	engine := billingapp.NewEngine(tx, subscriptions, invoices, numberer, gateway, billingOpts...)
	subscriptionSvc := billingapp.NewSubscriptionService(tx, subscriptions, units, engine, billingOpts...)
	invoiceSvc := billingapp.NewInvoiceService(tx, invoices, units, renderer, billingOpts...)

	vaultCfg := billingapp.VaultConfig{FingerprintKey: []byte(cfg.Vault.FingerprintKey)}
	if cfg.Vault.ValidationAmount != "" {
		amount, err := decimal.NewFromString(cfg.Vault.ValidationAmount)
		if err != nil {
			return fmt.Errorf("invalid vault.validation_amount: %w", err)
		}
		vaultCfg.ValidationAmount = amount
	}
	vault, err := billingapp.NewVaultService(tx, subscriptions, invoices, numberer, gateway, antifraud, engine, vaultCfg, billingOpts...)
	if err != nil {
		return err
	}

	// Scheduler
	if cfg.Scheduler.Enabled {
		schedCfg := scheduler.DefaultConfig()
		if cfg.Scheduler.Workers > 0 {
			schedCfg.Workers = cfg.Scheduler.Workers
		}
		if cfg.Scheduler.JobTimeout > 0 {
			schedCfg.JobTimeout = cfg.Scheduler.JobTimeout
		}
		sched, err := scheduler.NewScheduler(schedCfg, scheduler.NewBillingExecutor(engine, loc, log), log)
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		closers = append(closers, closer{"scheduler", sched.Stop})

		cronCfg := scheduler.DefaultCronTriggerConfig(loc)
		cronCfg.Hours = map[scheduler.JobKind]int{
			scheduler.JobGenerateInvoices: cfg.Scheduler.GenerateHour,
			scheduler.JobMarkOverdue:      cfg.Scheduler.OverdueHour,
			scheduler.JobExpire:           cfg.Scheduler.ExpireHour,
			scheduler.JobChargeDue:        cfg.Scheduler.ChargeDueHour,
		}
		cron := scheduler.NewCronTrigger(cronCfg, sched, units, log)
		if err := cron.Start(ctx); err != nil {
			return err
		}
		closers = append(closers, closer{"cron", cron.Stop})
		log.Info("Billing scheduler started",
			zap.Int("workers", schedCfg.Workers),
			zap.Duration("job_timeout", schedCfg.JobTimeout),
		)
	}

	// HTTP
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	httpEngine, err := router.NewEngine(router.EngineConfig{
		Logger: log,
		HTTP:   cfg.HTTP,
		Auth: middleware.AuthConfig{
			Tokens:   auth.NewJWTService(cfg.JWT),
			Resolver: auth.NewResolver(units),
			Logger:   log,
		},
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
			SkipPaths:   []string{"/health", "/ready"},
		},
		Meter:     meters.Meter("http"),
		Profiling: profiler.IsEnabled(),
		Version:   telemetry.ServiceVersion,
		Checks: map[string]handler.ReadinessCheck{
			"database": db.PingContext,
		},
	}, router.Handlers{
		Contracts:     handler.NewContractHandler(contractSvc),
		Subscriptions: handler.NewSubscriptionHandler(subscriptionSvc, engine),
		Cards:         handler.NewCardHandler(vault),
		Invoices:      handler.NewInvoiceHandler(invoiceSvc),
		Jobs:          handler.NewBillingJobHandler(engine),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        httpEngine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server exited gracefully")
	return nil
}
