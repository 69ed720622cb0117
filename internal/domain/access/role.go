// Package access resolves an authenticated caller into the set of units it
// may act on. Every contract, subscription and invoice operation takes the
// resulting Scope as a precondition.
package access

import (
	"strings"

	"github.com/academy/billing/internal/domain/shared"
	"github.com/google/uuid"
)

// Role is the closed set of caller roles known to the billing core.
type Role string

const (
	RoleMaster         Role = "MASTER"
	RoleFranchiseOwner Role = "FRANCHISE_OWNER"
	RoleUnitManager    Role = "UNIT_MANAGER"
	RoleInstructor     Role = "INSTRUCTOR"
	RoleStudent        Role = "STUDENT"
	RoleGuardian       Role = "GUARDIAN"
	// RoleSystem is used by scheduled jobs and operator tooling.
	RoleSystem Role = "SYSTEM"
)

var roleAliases = map[string]Role{
	"master":          RoleMaster,
	"admin":           RoleMaster,
	"franqueado":      RoleFranchiseOwner,
	"franchise_owner": RoleFranchiseOwner,
	"gerente":         RoleUnitManager,
	"gerente_unidade": RoleUnitManager,
	"unit_manager":    RoleUnitManager,
	"instrutor":       RoleInstructor,
	"instructor":      RoleInstructor,
	"aluno":           RoleStudent,
	"student":         RoleStudent,
	"responsavel":     RoleGuardian,
	"guardian":        RoleGuardian,
}

// ParseRole maps a claim value onto a Role. Matching is case-insensitive
// and accepts the legacy Portuguese role names.
func ParseRole(s string) (Role, error) {
	if r, ok := roleAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return r, nil
	}
	return "", shared.InvalidInput("role", "unknown role "+s)
}

// IsValid reports whether r is a known caller role.
func (r Role) IsValid() bool {
	switch r {
	case RoleMaster, RoleFranchiseOwner, RoleUnitManager, RoleInstructor, RoleStudent, RoleGuardian, RoleSystem:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// Caller is the authenticated principal handed over by the identity
// collaborator. OwnedUnits is populated for franchise owners and
// ManagedUnit for unit managers.
type Caller struct {
	UserID      uuid.UUID
	TenantID    uuid.UUID
	Role        Role
	OwnedUnits  []uuid.UUID
	ManagedUnit *uuid.UUID
}
