package models

import (
	"time"

	"github.com/academy/billing/internal/domain/organization"
	"github.com/google/uuid"
)

// FranchiseModel is a read model of a franchise and its owner. Rows are
// written by the identity service.
type FranchiseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `gorm:"type:uuid;not null;index"`
	OwnerID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Name      string    `gorm:"type:varchar(200);not null"`
	CreatedAt time.Time
}

// TableName returns the table name for GORM
func (FranchiseModel) TableName() string {
	return "franchises"
}

// UnitModel is a read model of a franchise unit
type UnitModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TenantID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	FranchiseID uuid.UUID  `gorm:"type:uuid;not null;index"`
	Name        string     `gorm:"type:varchar(200);not null"`
	Document    string     `gorm:"type:varchar(20)"`
	ManagerID   *uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt   time.Time
}

// TableName returns the table name for GORM
func (UnitModel) TableName() string {
	return "units"
}

// ToDomain converts the persistence model to a domain entity
func (m *UnitModel) ToDomain() *organization.Unit {
	return &organization.Unit{
		ID:          m.ID,
		TenantID:    m.TenantID,
		FranchiseID: m.FranchiseID,
		Name:        m.Name,
		Document:    m.Document,
		ManagerID:   m.ManagerID,
	}
}

// All returns every model migrated by the billing core, in dependency order.
func All() []any {
	return []any{
		&FranchiseModel{},
		&UnitModel{},
		&ContractModel{},
		&ContractSignatureModel{},
		&SubscriptionModel{},
		&InvoiceModel{},
		&InvoiceSequenceModel{},
	}
}
