package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/academy/billing/internal/domain/access"
	"github.com/academy/billing/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func newTracedRouter(caller *access.Caller) (*gin.Engine, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	cfg := DefaultTracingConfig()
	cfg.TracerProvider = tp

	r := gin.New()
	r.Use(logger.GinMiddleware(zap.NewNop()), Tracing(cfg))
	r.Use(func(c *gin.Context) {
		if caller != nil {
			c.Set(callerKey, *caller)
		}
		c.Next()
	}, TracingAttributeInjector())
	r.GET("/api/v1/invoices/:id", func(c *gin.Context) {
		if c.Param("id") == "missing" {
			c.Status(http.StatusNotFound)
			return
		}
		c.Status(http.StatusOK)
	})
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r, recorder
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]string {
	out := map[attribute.Key]string{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value.Emit()
	}
	return out
}

func TestTracing(t *testing.T) {
	caller := access.Caller{UserID: uuid.New(), TenantID: uuid.New(), Role: access.RoleMaster}

	t.Run("span named by route with caller attributes", func(t *testing.T) {
		r, recorder := newTracedRouter(&caller)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices/"+uuid.NewString(), nil)
		req.Header.Set(logger.RequestIDHeader, "req-42")
		r.ServeHTTP(httptest.NewRecorder(), req)

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Contains(t, spans[0].Name(), "/api/v1/invoices/:id")
		attrs := spanAttrs(spans[0])
		assert.Equal(t, "req-42", attrs["request_id"])
		assert.Equal(t, caller.TenantID.String(), attrs["tenant_id"])
		assert.Equal(t, string(access.RoleMaster), attrs["role"])
		assert.NotEqual(t, codes.Error, spans[0].Status().Code)
	})

	t.Run("client errors mark the span", func(t *testing.T) {
		r, recorder := newTracedRouter(nil)
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/invoices/missing", nil))

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)
		assert.NotContains(t, spanAttrs(spans[0]), attribute.Key("tenant_id"))
	})

	t.Run("health probes are not traced", func(t *testing.T) {
		r, recorder := newTracedRouter(nil)
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Empty(t, recorder.Ended())
	})

	t.Run("disabled", func(t *testing.T) {
		r := gin.New()
		r.Use(Tracing(TracingConfig{Enabled: false}))
		r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
