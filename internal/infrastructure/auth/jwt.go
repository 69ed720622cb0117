// Package auth decodes the bearer tokens issued by the identity service
// into an access.Caller. Issuing is only used by operator tooling and
// tests; the platform's identity service owns login.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/academy/billing/internal/domain/access"
	"github.com/academy/billing/internal/domain/organization"
	"github.com/academy/billing/internal/domain/shared"
	"github.com/academy/billing/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrMissingTenantID  = errors.New("missing tenant_id in claims")
	ErrMissingUserID    = errors.New("missing user_id in claims")
	ErrUnknownRole      = errors.New("unknown role in claims")
)

// Claims carries the caller's identity and, when the identity service
// includes them, its unit associations.
type Claims struct {
	jwt.RegisteredClaims
	TenantID      string   `json:"tenant_id"`
	UserID        string   `json:"user_id"`
	Role          string   `json:"role"`
	OwnedUnitIDs  []string `json:"owned_unit_ids,omitempty"`
	ManagedUnitID string   `json:"managed_unit_id,omitempty"`
}

// JWTService signs and validates HS256 tokens.
type JWTService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{secret: []byte(cfg.Secret), issuer: cfg.Issuer, now: time.Now}
}

// Issue signs a token for caller that expires after ttl.
func (s *JWTService) Issue(caller access.Caller, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   caller.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		TenantID: caller.TenantID.String(),
		UserID:   caller.UserID.String(),
		Role:     string(caller.Role),
	}
	for _, id := range caller.OwnedUnits {
		claims.OwnedUnitIDs = append(claims.OwnedUnitIDs, id.String())
	}
	if caller.ManagedUnit != nil {
		claims.ManagedUnitID = caller.ManagedUnit.String()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Validate parses and verifies a token.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.TenantID == "" {
		return nil, ErrMissingTenantID
	}
	if claims.UserID == "" {
		return nil, ErrMissingUserID
	}
	return claims, nil
}

// Caller converts claims into an access.Caller. Unit associations are
// taken as-is from the claims; Resolver replaces them from the unit
// directory.
func (c *Claims) Caller() (access.Caller, error) {
	tenantID, err := uuid.Parse(c.TenantID)
	if err != nil {
		return access.Caller{}, fmt.Errorf("%w: tenant_id", ErrInvalidClaims)
	}
	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		return access.Caller{}, fmt.Errorf("%w: user_id", ErrInvalidClaims)
	}
	role, err := access.ParseRole(c.Role)
	if err != nil {
		return access.Caller{}, ErrUnknownRole
	}

	caller := access.Caller{UserID: userID, TenantID: tenantID, Role: role}
	for _, raw := range c.OwnedUnitIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return access.Caller{}, fmt.Errorf("%w: owned_unit_ids", ErrInvalidClaims)
		}
		caller.OwnedUnits = append(caller.OwnedUnits, id)
	}
	if c.ManagedUnitID != "" {
		id, err := uuid.Parse(c.ManagedUnitID)
		if err != nil {
			return access.Caller{}, fmt.Errorf("%w: managed_unit_id", ErrInvalidClaims)
		}
		caller.ManagedUnit = &id
	}
	return caller, nil
}

// Resolver replaces a caller's unit associations with the ones in the
// unit directory, so a stale token cannot widen the caller's scope.
type Resolver struct {
	units organization.UnitRepository
}

// NewResolver creates a resolver over units
func NewResolver(units organization.UnitRepository) *Resolver {
	return &Resolver{units: units}
}

// Resolve returns the caller's scope. Owners get the units of their
// franchises; managers get the unit they manage, or a denied scope when
// there is none. Unit claims in the token are ignored.
func (r *Resolver) Resolve(ctx context.Context, caller access.Caller) (access.Scope, error) {
	switch caller.Role {
	case access.RoleFranchiseOwner:
		units, err := r.units.FindByOwner(ctx, caller.TenantID, caller.UserID)
		if err != nil {
			return access.Scope{}, fmt.Errorf("failed to load owned units: %w", err)
		}
		caller.OwnedUnits = nil
		for _, u := range units {
			caller.OwnedUnits = append(caller.OwnedUnits, u.ID)
		}
	case access.RoleUnitManager:
		caller.ManagedUnit = nil
		unit, err := r.units.FindManagedBy(ctx, caller.TenantID, caller.UserID)
		switch {
		case shared.IsNotFound(err):
		case err != nil:
			return access.Scope{}, fmt.Errorf("failed to load managed unit: %w", err)
		default:
			caller.ManagedUnit = &unit.ID
		}
	}
	return access.ScopeFor(caller), nil
}
