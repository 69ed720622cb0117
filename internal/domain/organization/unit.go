// Package organization holds the franchise units that contracts and
// subscriptions are bound to. Units are owned by the identity context and
// are read-only here.
package organization

import (
	"context"

	"github.com/google/uuid"
)

// Unit is a single franchise location.
type Unit struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	FranchiseID uuid.UUID
	Name        string
	Document    string
	ManagerID   *uuid.UUID
}

// UnitRepository looks up units.
type UnitRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Unit, error)
	// FindByOwner returns the units of every franchise owned by userID.
	FindByOwner(ctx context.Context, tenantID, userID uuid.UUID) ([]Unit, error)
	// FindManagedBy returns the unit managed by userID.
	FindManagedBy(ctx context.Context, tenantID, userID uuid.UUID) (*Unit, error)
	// TenantIDs lists every tenant that has at least one unit. Scheduled
	// jobs iterate it.
	TenantIDs(ctx context.Context) ([]uuid.UUID, error)
}
