package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/academy/billing/internal/domain/billing"
	"github.com/academy/billing/internal/domain/shared"
	"github.com/academy/billing/internal/infrastructure/persistence/datascope"
	"github.com/academy/billing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errActiveSubscription = shared.Conflict("the student already has an active subscription")

// GormSubscriptionRepository implements billing.SubscriptionRepository using GORM
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewGormSubscriptionRepository creates a new GormSubscriptionRepository
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// FindByID finds a subscription by ID within a tenant
func (r *GormSubscriptionRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*billing.Subscription, error) {
	return r.findOne(conn(ctx, r.db), tenantID, id)
}

// FindByIDForUpdate finds a subscription and locks its row
func (r *GormSubscriptionRepository) FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*billing.Subscription, error) {
	return r.findOne(conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}), tenantID, id)
}

func (r *GormSubscriptionRepository) findOne(db *gorm.DB, tenantID, id uuid.UUID) (*billing.Subscription, error) {
	var model models.SubscriptionModel
	if err := db.Scopes(datascope.Tenant(tenantID)).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, notFound(err, "subscription")
	}
	return model.ToDomain(), nil
}

// FindIDsByStatus returns the ids of subscriptions in status
func (r *GormSubscriptionRepository) FindIDsByStatus(ctx context.Context, tenantID uuid.UUID, status billing.SubscriptionStatus, units billing.UnitRestriction) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := conn(ctx, r.db).Model(&models.SubscriptionModel{}).
		Scopes(
			datascope.Tenant(tenantID),
			datascope.ForUnits(units.UnitIDs, units.Restricted).Scope("subscriptions"),
		).
		Where("status = ?", status).
		Order("created_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// FindExpiredIDs returns ATIVA subscriptions whose term ended before asOf
func (r *GormSubscriptionRepository) FindExpiredIDs(ctx context.Context, tenantID uuid.UUID, asOf time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := conn(ctx, r.db).Model(&models.SubscriptionModel{}).
		Scopes(datascope.Tenant(tenantID)).
		Where("status = ? AND end_date IS NOT NULL AND end_date < ?", billing.SubscriptionActive, asOf).
		Order("end_date ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ExistsActiveForStudent reports whether the student has an ATIVA subscription
func (r *GormSubscriptionRepository) ExistsActiveForStudent(ctx context.Context, tenantID, studentID uuid.UUID) (bool, error) {
	var count int64
	if err := conn(ctx, r.db).Model(&models.SubscriptionModel{}).
		Scopes(datascope.Tenant(tenantID)).
		Where("student_id = ? AND status = ?", studentID, billing.SubscriptionActive).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// List returns subscriptions within the filter's unit restriction
func (r *GormSubscriptionRepository) List(ctx context.Context, tenantID uuid.UUID, filter billing.SubscriptionFilter) ([]billing.Subscription, int64, error) {
	query := conn(ctx, r.db).Model(&models.SubscriptionModel{}).
		Scopes(
			datascope.Tenant(tenantID),
			datascope.ForUnits(filter.UnitIDs, filter.Restricted).Scope("subscriptions"),
		)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}
	if filter.PayerID != nil {
		query = query.Where("payer_id = ?", *filter.PayerID)
	}

	query = query.Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.SubscriptionModel
	if err := paginate(query, filter.Filter, SubscriptionSortFields).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]billing.Subscription, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, total, nil
}

// Create inserts a new subscription
func (r *GormSubscriptionRepository) Create(ctx context.Context, s *billing.Subscription) error {
	if err := conn(ctx, r.db).Create(models.SubscriptionModelFromDomain(s)).Error; err != nil {
		if isUniqueViolation(err) {
			return errActiveSubscription
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// Save updates a subscription with an optimistic version check
func (r *GormSubscriptionRepository) Save(ctx context.Context, s *billing.Subscription) error {
	result := conn(ctx, r.db).Model(&models.SubscriptionModel{}).
		Where("tenant_id = ? AND id = ? AND version <= ?", s.TenantID, s.ID, s.Version).
		Select("*").Omit("id", "tenant_id", "created_at", "created_by").
		Updates(models.SubscriptionModelFromDomain(s))
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return errActiveSubscription
		}
		return fmt.Errorf("failed to save subscription: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errStaleVersion
	}
	return nil
}
