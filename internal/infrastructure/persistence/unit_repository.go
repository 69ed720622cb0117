package persistence

import (
	"context"

	"github.com/academy/billing/internal/domain/organization"
	"github.com/academy/billing/internal/infrastructure/persistence/datascope"
	"github.com/academy/billing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormUnitRepository implements organization.UnitRepository using GORM
type GormUnitRepository struct {
	db *gorm.DB
}

// NewGormUnitRepository creates a new GormUnitRepository
func NewGormUnitRepository(db *gorm.DB) *GormUnitRepository {
	return &GormUnitRepository{db: db}
}

// FindByID finds a unit by ID within a tenant
func (r *GormUnitRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*organization.Unit, error) {
	var model models.UnitModel
	if err := conn(ctx, r.db).
		Scopes(datascope.Tenant(tenantID)).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		return nil, notFound(err, "unit")
	}
	return model.ToDomain(), nil
}

// FindByOwner returns the units of every franchise owned by userID
func (r *GormUnitRepository) FindByOwner(ctx context.Context, tenantID, userID uuid.UUID) ([]organization.Unit, error) {
	var rows []models.UnitModel
	if err := conn(ctx, r.db).
		Joins("JOIN franchises ON franchises.id = units.franchise_id").
		Where("units.tenant_id = ? AND franchises.owner_id = ?", tenantID, userID).
		Order("units.name ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]organization.Unit, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// FindManagedBy returns the unit managed by userID
func (r *GormUnitRepository) FindManagedBy(ctx context.Context, tenantID, userID uuid.UUID) (*organization.Unit, error) {
	var model models.UnitModel
	if err := conn(ctx, r.db).
		Scopes(datascope.Tenant(tenantID)).
		Where("manager_id = ?", userID).
		Order("created_at ASC").
		First(&model).Error; err != nil {
		return nil, notFound(err, "managed unit")
	}
	return model.ToDomain(), nil
}

// TenantIDs lists the distinct tenants owning units
func (r *GormUnitRepository) TenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := conn(ctx, r.db).Model(&models.UnitModel{}).
		Distinct("tenant_id").
		Order("tenant_id").
		Pluck("tenant_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
