package persistence

import (
	"context"
	"fmt"

	"github.com/academy/billing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InvoiceNumberFormat renders the per-tenant invoice sequence value.
const InvoiceNumberFormat = "FAT-%06d"

// GormInvoiceNumberer issues invoice numbers from a per-tenant counter
// row. The counter row is locked until the surrounding transaction ends,
// so numbers are gap-free per committed invoice.
type GormInvoiceNumberer struct {
	db *gorm.DB
}

// NewGormInvoiceNumberer creates a new GormInvoiceNumberer
func NewGormInvoiceNumberer(db *gorm.DB) *GormInvoiceNumberer {
	return &GormInvoiceNumberer{db: db}
}

// Next implements billing.InvoiceNumberer
func (n *GormInvoiceNumberer) Next(ctx context.Context, tenantID uuid.UUID) (string, error) {
	var number string
	err := NewTxManager(n.db).InTx(ctx, func(ctx context.Context) error {
		db := conn(ctx, n.db)
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.InvoiceSequenceModel{TenantID: tenantID}).Error; err != nil {
			return err
		}
		var seq models.InvoiceSequenceModel
		if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ?", tenantID).
			First(&seq).Error; err != nil {
			return err
		}
		seq.LastValue++
		if err := db.Model(&models.InvoiceSequenceModel{}).
			Where("tenant_id = ?", tenantID).
			Update("last_value", seq.LastValue).Error; err != nil {
			return err
		}
		number = fmt.Sprintf(InvoiceNumberFormat, seq.LastValue)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to allocate invoice number: %w", err)
	}
	return number, nil
}
