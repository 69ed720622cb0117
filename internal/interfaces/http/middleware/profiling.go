package middleware

import (
	"context"
	"slices"
	"strings"

	"github.com/academy/billing/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// Profiling label keys for HTTP requests.
const (
	ProfilingLabelRoute      = "route"
	ProfilingLabelMethod     = "method"
	ProfilingLabelController = "controller"
)

// Profiling tags the CPU samples of each request with its route, method
// and resource so profiles can be split by endpoint. Paths in skip are
// left untagged.
func Profiling(skip ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if slices.Contains(skip, c.Request.URL.Path) {
			c.Next()
			return
		}
		route := c.FullPath()
		labels := map[string]string{
			ProfilingLabelMethod:     c.Request.Method,
			ProfilingLabelRoute:      route,
			ProfilingLabelController: controllerFromRoute(route),
		}
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

// controllerFromRoute returns the first resource segment after the API
// version: "/api/v1/invoices/:id" gives "invoices".
func controllerFromRoute(route string) string {
	for _, seg := range strings.Split(route, "/") {
		if seg == "" || seg == "api" || isVersionSegment(seg) || strings.HasPrefix(seg, ":") {
			continue
		}
		return seg
	}
	return ""
}

func isVersionSegment(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
