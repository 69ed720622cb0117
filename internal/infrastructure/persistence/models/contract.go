package models

import (
	"time"

	"github.com/academy/billing/internal/domain/contract"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ContractModel is one append-only revision of a unit contract
type ContractModel struct {
	TenantAggregateModel
	GroupID               uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_contracts_group_revision"`
	Revision              int             `gorm:"not null;uniqueIndex:idx_contracts_group_revision"`
	UnitID                uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_contracts_one_active,where:status = 'ACTIVE'"`
	Type                  string          `gorm:"type:varchar(50);not null;uniqueIndex:idx_contracts_one_active,where:status = 'ACTIVE'"`
	Title                 string          `gorm:"type:varchar(200);not null"`
	Body                  string          `gorm:"type:text;not null"`
	ValidFrom             time.Time       `gorm:"not null"`
	ValidUntil            *time.Time
	MonthlyValue          decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	TransactionFeePercent decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	Status                string          `gorm:"type:varchar(20);not null;index"`
	Signed                bool            `gorm:"not null;default:false"`
	SignerName            string          `gorm:"type:varchar(200)"`
	SignerDocument        string          `gorm:"type:varchar(50)"`
	SignedAt              *time.Time
	SupersededBy          *uuid.UUID `gorm:"type:uuid"`
	CancelReason          string     `gorm:"type:text"`
	CancelledAt           *time.Time
}

// TableName returns the table name for GORM
func (ContractModel) TableName() string {
	return "contracts"
}

// ToDomain converts the persistence model to a domain entity
func (m *ContractModel) ToDomain() *contract.Contract {
	c := &contract.Contract{
		GroupID:  m.GroupID,
		Revision: m.Revision,
		UnitID:   m.UnitID,
		Type:     m.Type,
		Fields: contract.Fields{
			Title:                 m.Title,
			Body:                  m.Body,
			ValidFrom:             m.ValidFrom,
			ValidUntil:            m.ValidUntil,
			MonthlyValue:          m.MonthlyValue,
			TransactionFeePercent: m.TransactionFeePercent,
		},
		Status:         contract.Status(m.Status),
		Signed:         m.Signed,
		SignerName:     m.SignerName,
		SignerDocument: m.SignerDocument,
		SignedAt:       m.SignedAt,
		SupersededBy:   m.SupersededBy,
		CancelReason:   m.CancelReason,
		CancelledAt:    m.CancelledAt,
	}
	m.PopulateTenantAggregateRoot(&c.TenantAggregateRoot)
	return c
}

// ContractModelFromDomain creates a persistence model from a domain entity
func ContractModelFromDomain(c *contract.Contract) *ContractModel {
	m := &ContractModel{
		GroupID:               c.GroupID,
		Revision:              c.Revision,
		UnitID:                c.UnitID,
		Type:                  c.Type,
		Title:                 c.Fields.Title,
		Body:                  c.Fields.Body,
		ValidFrom:             c.Fields.ValidFrom,
		ValidUntil:            c.Fields.ValidUntil,
		MonthlyValue:          c.Fields.MonthlyValue,
		TransactionFeePercent: c.Fields.TransactionFeePercent,
		Status:                string(c.Status),
		Signed:                c.Signed,
		SignerName:            c.SignerName,
		SignerDocument:        c.SignerDocument,
		SignedAt:              c.SignedAt,
		SupersededBy:          c.SupersededBy,
		CancelReason:          c.CancelReason,
		CancelledAt:           c.CancelledAt,
	}
	m.FromDomainTenantAggregateRoot(c.TenantAggregateRoot)
	return m
}

// ContractSignatureModel is an immutable signature audit row
type ContractSignatureModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID `gorm:"type:uuid;not null;index"`
	ContractID     uuid.UUID `gorm:"type:uuid;not null;index"`
	GroupID        uuid.UUID `gorm:"type:uuid;not null;index"`
	SignerID       uuid.UUID `gorm:"type:uuid;not null;index"`
	SignerType     string    `gorm:"type:varchar(20);not null"`
	SignerName     string    `gorm:"type:varchar(200);not null"`
	SignerDocument string    `gorm:"type:varchar(50);not null"`
	RevisionSigned int       `gorm:"not null"`
	SignedAt       time.Time `gorm:"not null"`
	IPAddress      string    `gorm:"type:varchar(64)"`
	UserAgent      string    `gorm:"type:varchar(500)"`
	Accepted       bool      `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (ContractSignatureModel) TableName() string {
	return "contract_signatures"
}

// ToDomain converts the persistence model to a domain entity
func (m *ContractSignatureModel) ToDomain() *contract.Signature {
	return &contract.Signature{
		ID:             m.ID,
		TenantID:       m.TenantID,
		ContractID:     m.ContractID,
		GroupID:        m.GroupID,
		SignerID:       m.SignerID,
		SignerType:     contract.SignerType(m.SignerType),
		SignerName:     m.SignerName,
		SignerDocument: m.SignerDocument,
		RevisionSigned: m.RevisionSigned,
		SignedAt:       m.SignedAt,
		IPAddress:      m.IPAddress,
		UserAgent:      m.UserAgent,
		Accepted:       m.Accepted,
	}
}

// ContractSignatureModelFromDomain creates a persistence model from a domain entity
func ContractSignatureModelFromDomain(s *contract.Signature) *ContractSignatureModel {
	return &ContractSignatureModel{
		ID:             s.ID,
		TenantID:       s.TenantID,
		ContractID:     s.ContractID,
		GroupID:        s.GroupID,
		SignerID:       s.SignerID,
		SignerType:     string(s.SignerType),
		SignerName:     s.SignerName,
		SignerDocument: s.SignerDocument,
		RevisionSigned: s.RevisionSigned,
		SignedAt:       s.SignedAt,
		IPAddress:      s.IPAddress,
		UserAgent:      s.UserAgent,
		Accepted:       s.Accepted,
	}
}

