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
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormInvoiceRepository implements billing.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// FindByID finds an invoice by ID within a tenant
func (r *GormInvoiceRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*billing.Invoice, error) {
	return r.findOne(conn(ctx, r.db), tenantID, "id = ?", id)
}

// FindByIDForUpdate finds an invoice and locks its row
func (r *GormInvoiceRepository) FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*billing.Invoice, error) {
	return r.findOne(conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}), tenantID, "id = ?", id)
}

// FindActiveForPeriod finds the non-cancelled recurring invoice of a period
func (r *GormInvoiceRepository) FindActiveForPeriod(ctx context.Context, tenantID, subscriptionID uuid.UUID, period string) (*billing.Invoice, error) {
	return r.findOne(conn(ctx, r.db), tenantID,
		"subscription_id = ? AND period = ? AND kind = ? AND status <> ?",
		subscriptionID, period, billing.InvoiceRecurring, billing.InvoiceCancelled)
}

func (r *GormInvoiceRepository) findOne(db *gorm.DB, tenantID uuid.UUID, cond string, args ...any) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := db.Scopes(datascope.Tenant(tenantID)).Where(cond, args...).First(&model).Error; err != nil {
		return nil, notFound(err, "invoice")
	}
	return model.ToDomain(), nil
}

// FindOpenBySubscription returns open recurring invoices, oldest due first
func (r *GormInvoiceRepository) FindOpenBySubscription(ctx context.Context, tenantID, subscriptionID uuid.UUID) ([]billing.Invoice, error) {
	var rows []models.InvoiceModel
	if err := conn(ctx, r.db).
		Scopes(datascope.Tenant(tenantID)).
		Where("subscription_id = ? AND kind = ? AND status IN ?",
			subscriptionID, billing.InvoiceRecurring, openStatuses()).
		Order("due_date ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return invoicesToDomain(rows), nil
}

// FindChargeable returns open recurring invoices due by asOf whose
// subscription can be charged on the stored card
func (r *GormInvoiceRepository) FindChargeable(ctx context.Context, tenantID uuid.UUID, asOf time.Time, units billing.UnitRestriction) ([]billing.Invoice, error) {
	db := conn(ctx, r.db)
	chargeable := db.Session(&gorm.Session{NewDB: true}).
		Model(&models.SubscriptionModel{}).
		Select("id").
		Where("tenant_id = ? AND status = ? AND payment_method = ? AND card_token IS NOT NULL AND card_token <> ''",
			tenantID, billing.SubscriptionActive, billing.PaymentMethodCard)

	var rows []models.InvoiceModel
	if err := db.
		Scopes(
			datascope.Tenant(tenantID),
			datascope.ForUnits(units.UnitIDs, units.Restricted).Scope("invoices"),
		).
		Where("kind = ? AND status IN ? AND due_date <= ?", billing.InvoiceRecurring, openStatuses(), asOf).
		Where("subscription_id IN (?)", chargeable).
		Order("due_date ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return invoicesToDomain(rows), nil
}

// FindPendingDueBefore returns PENDENTE invoices due before asOf
func (r *GormInvoiceRepository) FindPendingDueBefore(ctx context.Context, tenantID uuid.UUID, asOf time.Time) ([]billing.Invoice, error) {
	var rows []models.InvoiceModel
	if err := conn(ctx, r.db).
		Scopes(datascope.Tenant(tenantID)).
		Where("status = ? AND due_date < ?", billing.InvoicePending, asOf).
		Order("due_date ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return invoicesToDomain(rows), nil
}

// List returns invoices within the filter's unit restriction
func (r *GormInvoiceRepository) List(ctx context.Context, tenantID uuid.UUID, filter billing.InvoiceFilter) ([]billing.Invoice, int64, error) {
	query := conn(ctx, r.db).Model(&models.InvoiceModel{}).
		Scopes(
			datascope.Tenant(tenantID),
			datascope.ForUnits(filter.UnitIDs, filter.Restricted).Scope("invoices"),
		)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.SubscriptionID != nil {
		query = query.Where("subscription_id = ?", *filter.SubscriptionID)
	}
	if filter.Period != "" {
		query = query.Where("period = ?", filter.Period)
	}

	query = query.Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.InvoiceModel
	if err := paginate(query, filter.Filter, InvoiceSortFields).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return invoicesToDomain(rows), total, nil
}

type unitSummaryRow struct {
	UnitID       uuid.UUID
	PendingCount int64
	PendingTotal decimal.Decimal
	OverdueCount int64
	OverdueTotal decimal.Decimal
}

// Summarize aggregates open receivables per unit
func (r *GormInvoiceRepository) Summarize(ctx context.Context, tenantID uuid.UUID, units billing.UnitRestriction) ([]billing.UnitSummary, error) {
	var rows []unitSummaryRow
	if err := conn(ctx, r.db).Model(&models.InvoiceModel{}).
		Scopes(
			datascope.Tenant(tenantID),
			datascope.ForUnits(units.UnitIDs, units.Restricted).Scope("invoices"),
		).
		Select(`unit_id,
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS pending_count,
			SUM(CASE WHEN status = ? THEN original_amount ELSE 0 END) AS pending_total,
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS overdue_count,
			SUM(CASE WHEN status = ? THEN original_amount ELSE 0 END) AS overdue_total`,
			billing.InvoicePending, billing.InvoicePending, billing.InvoiceOverdue, billing.InvoiceOverdue).
		Where("kind = ? AND status IN ?", billing.InvoiceRecurring, openStatuses()).
		Group("unit_id").
		Order("unit_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to summarize invoices: %w", err)
	}
	out := make([]billing.UnitSummary, len(rows))
	for i, row := range rows {
		out[i] = billing.UnitSummary(row)
	}
	return out, nil
}

// Create inserts an invoice
func (r *GormInvoiceRepository) Create(ctx context.Context, i *billing.Invoice) error {
	if err := conn(ctx, r.db).Create(models.InvoiceModelFromDomain(i)).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.Conflict(fmt.Sprintf("an invoice for period %s already exists", i.Period))
		}
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

// Save updates an invoice with an optimistic version check
func (r *GormInvoiceRepository) Save(ctx context.Context, i *billing.Invoice) error {
	result := conn(ctx, r.db).Model(&models.InvoiceModel{}).
		Where("tenant_id = ? AND id = ? AND version <= ?", i.TenantID, i.ID, i.Version).
		Select("*").Omit("id", "tenant_id", "created_at", "created_by").
		Updates(models.InvoiceModelFromDomain(i))
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return shared.Conflict(fmt.Sprintf("an invoice for period %s already exists", i.Period))
		}
		return fmt.Errorf("failed to save invoice: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errStaleVersion
	}
	return nil
}

func openStatuses() []billing.InvoiceStatus {
	return []billing.InvoiceStatus{billing.InvoicePending, billing.InvoiceOverdue}
}

func invoicesToDomain(rows []models.InvoiceModel) []billing.Invoice {
	out := make([]billing.Invoice, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}
