// Package datascope provides unit-level permission filtering for GORM
// queries.
//
// A Filter is built once from the caller's resolved access scope (or
// from an explicit unit restriction carried by a repository filter) and
// applied per resource:
//
//	filter := datascope.NewFilter(scope)
//	db.Scopes(datascope.Tenant(tenantID), filter.Scope("invoices")).Find(&rows)
//
// An unrestricted filter adds nothing. A restricted filter with no units
// matches no rows.
package datascope

import (
	"slices"

	"github.com/academy/billing/internal/domain/access"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Filter applies unit scope filtering to GORM queries
type Filter struct {
	unitIDs    []uuid.UUID
	restricted bool
}

// NewFilter creates a filter from a resolved scope
func NewFilter(scope access.Scope) Filter {
	units, restricted := scope.UnitFilter()
	return Filter{unitIDs: units, restricted: restricted}
}

// ForUnits creates a filter from an explicit restriction
func ForUnits(unitIDs []uuid.UUID, restricted bool) Filter {
	return Filter{unitIDs: unitIDs, restricted: restricted}
}

// Unrestricted reports whether the filter adds no condition
func (f Filter) Unrestricted() bool { return !f.restricted }

// Allows reports whether rows of unitID pass the filter
func (f Filter) Allows(unitID uuid.UUID) bool {
	return !f.restricted || slices.Contains(f.unitIDs, unitID)
}

// Apply restricts db to the filter's units on the resource's unit column
func (f Filter) Apply(db *gorm.DB, resource string) *gorm.DB {
	if !f.restricted {
		return db
	}
	if len(f.unitIDs) == 0 {
		return db.Where("1 = 0")
	}
	column, ok := unitScopedResources[resource]
	if !ok {
		// Unknown resource under a restricted scope: match nothing.
		return db.Where("1 = 0")
	}
	return db.Where(column+" IN ?", f.unitIDs)
}

// Scope returns Apply as a GORM scope function
func (f Filter) Scope(resource string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return f.Apply(db, resource)
	}
}

// Tenant applies tenant filtering to GORM queries
func Tenant(tenantID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", tenantID)
	}
}

// unitScopedResources maps each table to the column holding its unit.
// Column names never come from callers.
var unitScopedResources = map[string]string{
	"contracts":     "unit_id",
	"subscriptions": "unit_id",
	"invoices":      "unit_id",
}
