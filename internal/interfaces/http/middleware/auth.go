package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/academy/billing/internal/domain/access"
	"github.com/academy/billing/internal/infrastructure/auth"
	"github.com/academy/billing/internal/infrastructure/logger"
	"github.com/academy/billing/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// AuthHeaderKey is the header carrying the bearer token
	AuthHeaderKey = "Authorization"
	// BearerPrefix prefixes the token in the header
	BearerPrefix = "Bearer "

	callerKey = "auth_caller"
	scopeKey  = "auth_scope"
)

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// ScopeResolver turns a caller into its access scope.
type ScopeResolver interface {
	Resolve(ctx context.Context, caller access.Caller) (access.Scope, error)
}

// AuthConfig configures Authenticate.
type AuthConfig struct {
	Tokens   TokenValidator
	Resolver ScopeResolver
	Logger   *zap.Logger
	// SkipPaths are served without authentication
	SkipPaths []string
}

// Authenticate validates the bearer token, resolves the caller's scope
// once and stores both in the gin context. The request logger gains the
// tenant, user and role fields.
func Authenticate(cfg AuthConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		if slices.Contains(cfg.SkipPaths, c.Request.URL.Path) {
			c.Next()
			return
		}

		header := c.GetHeader(AuthHeaderKey)
		if header == "" || !strings.HasPrefix(header, BearerPrefix) {
			abortUnauthorized(c, auth.ErrInvalidToken)
			return
		}
		token := strings.TrimPrefix(header, BearerPrefix)

		claims, err := cfg.Tokens.Validate(token)
		if err != nil {
			log.Debug("token rejected", zap.Error(err), zap.String("path", c.Request.URL.Path))
			abortUnauthorized(c, err)
			return
		}
		caller, err := claims.Caller()
		if err != nil {
			log.Debug("claims rejected", zap.Error(err))
			abortUnauthorized(c, err)
			return
		}

		ctx := c.Request.Context()
		scope, err := cfg.Resolver.Resolve(ctx, caller)
		if err != nil {
			logger.L(ctx).Error("failed to resolve access scope", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				dto.NewErrorResponseWithRequestID(dto.ErrCodeInternal, "failed to resolve access scope", logger.GetRequestID(ctx)))
			return
		}

		SetIdentity(c, caller, scope)
		c.Next()
	}
}

// SetIdentity stores the caller and scope on the request.
func SetIdentity(c *gin.Context, caller access.Caller, scope access.Scope) {
	c.Set(callerKey, caller)
	c.Set(scopeKey, scope)
	c.Request = c.Request.WithContext(logger.WithCaller(c.Request.Context(), caller))
}

func abortUnauthorized(c *gin.Context, err error) {
	code, message := dto.ErrCodeUnauthorized, "authentication required"
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		code, message = dto.ErrCodeTokenExpired, "token has expired"
	case errors.Is(err, auth.ErrUnknownRole):
		message = "unknown role"
	case errors.Is(err, auth.ErrInvalidClaims), errors.Is(err, auth.ErrMissingTenantID), errors.Is(err, auth.ErrMissingUserID):
		message = "invalid token claims"
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized,
		dto.NewErrorResponseWithRequestID(code, message, logger.GetRequestID(c.Request.Context())))
}

// GetCaller returns the authenticated caller.
func GetCaller(c *gin.Context) (access.Caller, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return access.Caller{}, false
	}
	caller, ok := v.(access.Caller)
	return caller, ok
}

// GetScope returns the caller's scope. Without Authenticate it is the
// zero Scope, which denies everything.
func GetScope(c *gin.Context) access.Scope {
	if v, ok := c.Get(scopeKey); ok {
		if s, ok := v.(access.Scope); ok {
			return s
		}
	}
	return access.Scope{}
}

// RequireRoles aborts with 403 unless the caller has one of roles.
func RequireRoles(roles ...access.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := GetCaller(c)
		if !ok {
			abortUnauthorized(c, auth.ErrInvalidToken)
			return
		}
		if !slices.Contains(roles, caller.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeForbidden, "role "+string(caller.Role)+" may not perform this operation",
				logger.GetRequestID(c.Request.Context())))
			return
		}
		c.Next()
	}
}
