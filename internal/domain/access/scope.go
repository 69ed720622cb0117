package access

import (
	"slices"

	"github.com/academy/billing/internal/domain/shared"
	"github.com/google/uuid"
)

// ScopeKind enumerates the shapes a Scope can take.
type ScopeKind string

const (
	ScopeAll        ScopeKind = "ALL"
	ScopeUnitSet    ScopeKind = "UNIT_SET"
	ScopeSingleUnit ScopeKind = "SINGLE_UNIT"
	ScopeDenied     ScopeKind = "DENIED"
)

// Scope is the resolved set of units a caller may act on. The zero value
// is DENIED.
type Scope struct {
	Kind     ScopeKind
	UnitIDs  []uuid.UUID
	UserID   uuid.UUID
	TenantID uuid.UUID
	Role     Role
}

// ScopeFor resolves a caller into its Scope. It is a pure function of the
// caller value.
func ScopeFor(c Caller) Scope {
	s := Scope{Kind: ScopeDenied, UserID: c.UserID, TenantID: c.TenantID, Role: c.Role}
	switch c.Role {
	case RoleMaster, RoleSystem:
		s.Kind = ScopeAll
	case RoleFranchiseOwner:
		units := dedupe(c.OwnedUnits)
		if len(units) > 0 {
			s.Kind = ScopeUnitSet
			s.UnitIDs = units
		}
	case RoleUnitManager:
		if c.ManagedUnit != nil && *c.ManagedUnit != uuid.Nil {
			s.Kind = ScopeSingleUnit
			s.UnitIDs = []uuid.UUID{*c.ManagedUnit}
		}
	}
	return s
}

// SystemScope is the scope used by scheduled jobs.
func SystemScope(tenantID uuid.UUID) Scope {
	return Scope{Kind: ScopeAll, TenantID: tenantID, Role: RoleSystem}
}

// SystemUnitScope is a system scope narrowed to one unit, used for
// operator runs against a single unit.
func SystemUnitScope(tenantID, unitID uuid.UUID) Scope {
	return Scope{Kind: ScopeSingleUnit, UnitIDs: []uuid.UUID{unitID}, TenantID: tenantID, Role: RoleSystem}
}

// IsAll reports whether the scope has no unit restriction.
func (s Scope) IsAll() bool { return s.Kind == ScopeAll }

// IsDenied reports whether the scope grants nothing at all.
func (s Scope) IsDenied() bool {
	return s.Kind == ScopeDenied || s.Kind == ""
}

// Allows reports whether the scope covers unitID.
func (s Scope) Allows(unitID uuid.UUID) bool {
	switch s.Kind {
	case ScopeAll:
		return true
	case ScopeUnitSet, ScopeSingleUnit:
		return slices.Contains(s.UnitIDs, unitID)
	}
	return false
}

// Require returns a Forbidden error unless the scope covers unitID.
func (s Scope) Require(unitID uuid.UUID) error {
	if s.Allows(unitID) {
		return nil
	}
	if s.IsDenied() {
		return shared.Forbidden("role " + string(s.Role) + " may not act on units")
	}
	return shared.Forbidden("unit " + unitID.String() + " is outside the caller's scope")
}

// RequireAll returns Forbidden unless the scope is unrestricted.
func (s Scope) RequireAll() error {
	if s.IsAll() {
		return nil
	}
	return shared.Forbidden("operation requires the unit-admin role")
}

// UnitFilter returns the unit restriction for queries. restricted is false
// for ALL. A DENIED scope returns restricted=true with no units, which
// must match nothing.
func (s Scope) UnitFilter() (units []uuid.UUID, restricted bool) {
	if s.IsAll() {
		return nil, false
	}
	if s.IsDenied() {
		return nil, true
	}
	return s.UnitIDs, true
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Narrow restricts the scope to a single unit it already covers.
func (s Scope) Narrow(unitID uuid.UUID) (Scope, error) {
	if err := s.Require(unitID); err != nil {
		return Scope{}, err
	}
	return Scope{Kind: ScopeSingleUnit, UnitIDs: []uuid.UUID{unitID}, UserID: s.UserID, TenantID: s.TenantID, Role: s.Role}, nil
}
