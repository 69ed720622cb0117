package router

import (
	"fmt"
	"time"

	"github.com/academy/billing/internal/infrastructure/config"
	"github.com/academy/billing/internal/infrastructure/logger"
	"github.com/academy/billing/internal/interfaces/http/handler"
	"github.com/academy/billing/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// rateLimitIdle is how long an idle client keeps its token bucket.
const rateLimitIdle = 10 * time.Minute

// EngineConfig configures NewEngine.
type EngineConfig struct {
	Logger    *zap.Logger
	HTTP      config.HTTPConfig
	Auth      middleware.AuthConfig
	Tracing   middleware.TracingConfig
	Meter     metric.Meter
	Profiling bool
	Version   string
	Checks    map[string]handler.ReadinessCheck
}

// NewEngine builds the gin engine: the global middleware chain, the
// unauthenticated system routes and the authenticated /api/v1 groups.
func NewEngine(cfg EngineConfig, h Handlers) (*gin.Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if err := middleware.SetupValidator(); err != nil {
		return nil, err
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	skip := []string{"/health", "/ready"}
	engine.Use(
		logger.Recovery(cfg.Logger),
		logger.GinMiddleware(cfg.Logger, skip...),
		middleware.Tracing(cfg.Tracing),
		middleware.Secure(),
		middleware.CORS(middleware.DefaultCORSConfig(cfg.HTTP.AllowOrigins...)),
		middleware.BodyLimit(cfg.HTTP.MaxBodyBytes),
		middleware.Timeout(cfg.HTTP.RequestTimeout),
	)

	system := handler.NewSystemHandler(cfg.Version, cfg.Checks)
	engine.GET("/health", system.Health)
	engine.GET("/ready", system.Ready)
	engine.GET("/system/info", system.GetSystemInfo)
	engine.GET("/system/ping", system.Ping)

	api := []gin.HandlerFunc{
		middleware.Authenticate(cfg.Auth),
		middleware.TracingAttributeInjector(),
	}
	if cfg.HTTP.RateLimit > 0 {
		api = append(api, middleware.RateLimit(middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst, rateLimitIdle)))
	}
	metrics, err := middleware.HTTPMetrics(cfg.Meter)
	if err != nil {
		return nil, err
	}
	api = append(api, metrics)
	if cfg.Profiling {
		api = append(api, middleware.Profiling())
	}

	r := NewRouter(engine, WithAPIMiddleware(api...))
	for _, g := range BillingGroups(h) {
		r.Register(g)
	}
	r.Setup()
	return engine, nil
}
