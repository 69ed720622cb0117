package persistence

import (
	"context"
	"fmt"

	"github.com/academy/billing/internal/domain/contract"
	"github.com/academy/billing/internal/domain/shared"
	"github.com/academy/billing/internal/infrastructure/persistence/datascope"
	"github.com/academy/billing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormContractRepository implements contract.Repository using GORM
type GormContractRepository struct {
	db *gorm.DB
}

// NewGormContractRepository creates a new GormContractRepository
func NewGormContractRepository(db *gorm.DB) *GormContractRepository {
	return &GormContractRepository{db: db}
}

// FindByID finds a contract revision by ID within a tenant
func (r *GormContractRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*contract.Contract, error) {
	var model models.ContractModel
	if err := conn(ctx, r.db).
		Scopes(datascope.Tenant(tenantID)).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		return nil, notFound(err, "contract")
	}
	return model.ToDomain(), nil
}

// FindActive finds the ACTIVE revision of a unit contract type
func (r *GormContractRepository) FindActive(ctx context.Context, tenantID, unitID uuid.UUID, contractType string, lock bool) (*contract.Contract, error) {
	query := conn(ctx, r.db).
		Scopes(datascope.Tenant(tenantID)).
		Where("unit_id = ? AND type = ? AND status = ?", unitID, contract.NormalizeType(contractType), contract.StatusActive)
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model models.ContractModel
	if err := query.Order("revision DESC").First(&model).Error; err != nil {
		return nil, notFound(err, "active contract")
	}
	return model.ToDomain(), nil
}

// LockUnitType takes a transaction-scoped advisory lock on (tenant, unit,
// type). SQLite has no advisory locks and serializes writers already.
func (r *GormContractRepository) LockUnitType(ctx context.Context, tenantID, unitID uuid.UUID, contractType string) error {
	db := conn(ctx, r.db)
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	key := fmt.Sprintf("contract:%s:%s:%s", tenantID, unitID, contract.NormalizeType(contractType))
	if err := db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error; err != nil {
		return fmt.Errorf("failed to lock contract unit type: %w", err)
	}
	return nil
}

// FindRevisions returns every revision of a group, oldest first
func (r *GormContractRepository) FindRevisions(ctx context.Context, tenantID, groupID uuid.UUID) ([]contract.Contract, error) {
	var rows []models.ContractModel
	if err := conn(ctx, r.db).
		Scopes(datascope.Tenant(tenantID)).
		Where("group_id = ?", groupID).
		Order("revision ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return contractsToDomain(rows), nil
}

// List returns contracts within the filter's unit restriction
func (r *GormContractRepository) List(ctx context.Context, tenantID uuid.UUID, filter contract.Filter) ([]contract.Contract, int64, error) {
	query := conn(ctx, r.db).Model(&models.ContractModel{}).
		Scopes(
			datascope.Tenant(tenantID),
			datascope.ForUnits(filter.UnitIDs, filter.Restricted).Scope("contracts"),
		)
	if filter.Type != "" {
		query = query.Where("type = ?", contract.NormalizeType(filter.Type))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	query = query.Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.ContractModel
	if err := paginate(query, filter.Filter, ContractSortFields).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return contractsToDomain(rows), total, nil
}

// Create inserts a new contract revision
func (r *GormContractRepository) Create(ctx context.Context, c *contract.Contract) error {
	if err := conn(ctx, r.db).Create(models.ContractModelFromDomain(c)).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.Conflict("an active contract of this type already exists for the unit")
		}
		return fmt.Errorf("failed to create contract: %w", err)
	}
	return nil
}

// Save updates a contract revision. The row version must not have moved
// past the entity's version.
func (r *GormContractRepository) Save(ctx context.Context, c *contract.Contract) error {
	model := models.ContractModelFromDomain(c)
	result := conn(ctx, r.db).Model(&models.ContractModel{}).
		Where("tenant_id = ? AND id = ? AND version <= ?", c.TenantID, c.ID, c.Version).
		Select("*").Omit("id", "tenant_id", "created_at", "created_by").
		Updates(model)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return shared.Conflict("an active contract of this type already exists for the unit")
		}
		return fmt.Errorf("failed to save contract: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errStaleVersion
	}
	return nil
}

func contractsToDomain(rows []models.ContractModel) []contract.Contract {
	out := make([]contract.Contract, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}

// GormSignatureRepository implements contract.SignatureRepository using GORM
type GormSignatureRepository struct {
	db *gorm.DB
}

// NewGormSignatureRepository creates a new GormSignatureRepository
func NewGormSignatureRepository(db *gorm.DB) *GormSignatureRepository {
	return &GormSignatureRepository{db: db}
}

// Create inserts a signature record. Signatures are never updated.
func (r *GormSignatureRepository) Create(ctx context.Context, s *contract.Signature) error {
	if err := conn(ctx, r.db).Create(models.ContractSignatureModelFromDomain(s)).Error; err != nil {
		return fmt.Errorf("failed to create signature: %w", err)
	}
	return nil
}

// FindByGroup returns the signatures of every revision in a group
func (r *GormSignatureRepository) FindByGroup(ctx context.Context, tenantID, groupID uuid.UUID) ([]contract.Signature, error) {
	var rows []models.ContractSignatureModel
	if err := conn(ctx, r.db).
		Scopes(datascope.Tenant(tenantID)).
		Where("group_id = ?", groupID).
		Order("signed_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]contract.Signature, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}
