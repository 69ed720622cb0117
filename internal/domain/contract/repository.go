package contract

import (
	"context"

	"github.com/academy/billing/internal/domain/shared"
	"github.com/google/uuid"
)

// Filter narrows contract listings.
type Filter struct {
	shared.Filter
	UnitIDs    []uuid.UUID
	Restricted bool
	Type       string
	Status     Status
}

// Repository persists contract revisions. Create and Save join the
// transaction carried by ctx.
type Repository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Contract, error)
	// FindActive returns the ACTIVE revision for (unit, type) or ErrNotFound.
	// With lock=true the row is locked for update.
	FindActive(ctx context.Context, tenantID, unitID uuid.UUID, contractType string, lock bool) (*Contract, error)
	// LockUnitType serializes writers of (tenant, unit, type) for the
	// current transaction.
	LockUnitType(ctx context.Context, tenantID, unitID uuid.UUID, contractType string) error
	FindRevisions(ctx context.Context, tenantID, groupID uuid.UUID) ([]Contract, error)
	List(ctx context.Context, tenantID uuid.UUID, filter Filter) ([]Contract, int64, error)
	// Create inserts a new revision. A second ACTIVE row for the same
	// (unit, type) fails with a Conflict error.
	Create(ctx context.Context, c *Contract) error
	// Save updates an existing revision with an optimistic version check.
	Save(ctx context.Context, c *Contract) error
}

// SignatureRepository stores immutable signature records.
type SignatureRepository interface {
	Create(ctx context.Context, s *Signature) error
	FindByGroup(ctx context.Context, tenantID, groupID uuid.UUID) ([]Signature, error)
}
