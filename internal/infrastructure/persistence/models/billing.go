package models

import (
	"time"

	"github.com/academy/billing/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SubscriptionModel is the persistence model for subscriptions. The card
// columns hold only the gateway token and display fields.
type SubscriptionModel struct {
	TenantAggregateModel
	PayerID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	StudentID       uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_subscriptions_one_active,where:status = 'ATIVA'"`
	UnitID          uuid.UUID       `gorm:"type:uuid;not null;index"`
	PlanName        string          `gorm:"type:varchar(200)"`
	Value           decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	PaymentMethod   string          `gorm:"type:varchar(20);not null"`
	BillingDay      int             `gorm:"not null;default:10"`
	Status          string          `gorm:"type:varchar(20);not null;index"`
	RetryCount      int             `gorm:"not null;default:0"`
	LastAttemptAt   *time.Time
	StartDate       time.Time `gorm:"not null"`
	EndDate         *time.Time
	NextBillingDate time.Time  `gorm:"not null"`
	ResumedAt       *time.Time
	CardToken       *string    `gorm:"type:varchar(200)"`
	CardLast4       string     `gorm:"type:varchar(4)"`
	CardBrand       string     `gorm:"type:varchar(20)"`
	CardExpMonth    string     `gorm:"type:varchar(2)"`
	CardExpYear     string     `gorm:"type:varchar(4)"`
	CardFingerprint string     `gorm:"type:varchar(64);index"`
	CardStoredAt    *time.Time
	CancelledBy     *uuid.UUID `gorm:"type:uuid"`
	CancelledAt     *time.Time
	CancelReason    string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// ToDomain converts the persistence model to a domain entity
func (m *SubscriptionModel) ToDomain() *billing.Subscription {
	s := &billing.Subscription{
		PayerID:         m.PayerID,
		StudentID:       m.StudentID,
		UnitID:          m.UnitID,
		PlanName:        m.PlanName,
		Value:           m.Value,
		PaymentMethod:   billing.PaymentMethod(m.PaymentMethod),
		BillingDay:      m.BillingDay,
		Status:          billing.SubscriptionStatus(m.Status),
		RetryCount:      m.RetryCount,
		LastAttemptAt:   m.LastAttemptAt,
		StartDate:       m.StartDate,
		EndDate:         m.EndDate,
		NextBillingDate: m.NextBillingDate,
		ResumedAt:       m.ResumedAt,
		CancelledBy:     m.CancelledBy,
		CancelledAt:     m.CancelledAt,
		CancelReason:    m.CancelReason,
	}
	if m.CardToken != nil && *m.CardToken != "" {
		card := &billing.CardToken{
			Token:       *m.CardToken,
			Last4:       m.CardLast4,
			Brand:       m.CardBrand,
			ExpMonth:    m.CardExpMonth,
			ExpYear:     m.CardExpYear,
			Fingerprint: m.CardFingerprint,
		}
		if m.CardStoredAt != nil {
			card.StoredAt = *m.CardStoredAt
		}
		s.Card = card
	}
	m.PopulateTenantAggregateRoot(&s.TenantAggregateRoot)
	return s
}

// SubscriptionModelFromDomain creates a persistence model from a domain entity
func SubscriptionModelFromDomain(s *billing.Subscription) *SubscriptionModel {
	m := &SubscriptionModel{
		PayerID:         s.PayerID,
		StudentID:       s.StudentID,
		UnitID:          s.UnitID,
		PlanName:        s.PlanName,
		Value:           s.Value,
		PaymentMethod:   string(s.PaymentMethod),
		BillingDay:      s.BillingDay,
		Status:          string(s.Status),
		RetryCount:      s.RetryCount,
		LastAttemptAt:   s.LastAttemptAt,
		StartDate:       s.StartDate,
		EndDate:         s.EndDate,
		NextBillingDate: s.NextBillingDate,
		ResumedAt:       s.ResumedAt,
		CancelledBy:     s.CancelledBy,
		CancelledAt:     s.CancelledAt,
		CancelReason:    s.CancelReason,
	}
	if s.Card != nil {
		token := s.Card.Token
		stored := s.Card.StoredAt
		m.CardToken = &token
		m.CardLast4 = s.Card.Last4
		m.CardBrand = s.Card.Brand
		m.CardExpMonth = s.Card.ExpMonth
		m.CardExpYear = s.Card.ExpYear
		m.CardFingerprint = s.Card.Fingerprint
		m.CardStoredAt = &stored
	}
	m.FromDomainTenantAggregateRoot(s.TenantAggregateRoot)
	return m
}

// InvoiceMetadata is the JSON document kept alongside each invoice.
type InvoiceMetadata struct {
	ChargeAttempts  int        `json:"charge_attempts,omitempty"`
	LastDeclineCode string     `json:"last_decline_code,omitempty"`
	LastAttemptAt   *time.Time `json:"last_attempt_at,omitempty"`
}

// InvoiceModel is the persistence model for invoices. At most one
// non-cancelled recurring invoice may exist per subscription and period.
type InvoiceModel struct {
	TenantAggregateModel
	Number         string                              `gorm:"type:varchar(20);not null;index"`
	SubscriptionID uuid.UUID                           `gorm:"type:uuid;not null;index;uniqueIndex:idx_invoices_one_per_period,where:status <> 'CANCELADA' AND kind = 'RECURRING'"`
	Period         string                              `gorm:"type:varchar(7);not null;uniqueIndex:idx_invoices_one_per_period,where:status <> 'CANCELADA' AND kind = 'RECURRING'"`
	PayerID        uuid.UUID                           `gorm:"type:uuid;not null;index"`
	UnitID         uuid.UUID                           `gorm:"type:uuid;not null;index"`
	Kind           string                              `gorm:"type:varchar(20);not null;default:RECURRING"`
	Description    string                              `gorm:"type:varchar(300)"`
	OriginalAmount decimal.Decimal                     `gorm:"type:decimal(18,2);not null"`
	PaidAmount     decimal.Decimal                     `gorm:"type:decimal(18,2);not null;default:0"`
	Status         string                              `gorm:"type:varchar(20);not null;index"`
	DueDate        time.Time                           `gorm:"not null;index"`
	PaidAt         *time.Time
	PaymentMethod  string                              `gorm:"type:varchar(20)"`
	GatewayRef     string                              `gorm:"type:varchar(100)"`
	Notes          string                              `gorm:"type:text"`
	CancelReason   string                              `gorm:"type:text"`
	CancelledAt    *time.Time
	Metadata       datatypes.JSONType[InvoiceMetadata]
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain entity
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	meta := m.Metadata.Data()
	inv := &billing.Invoice{
		Number:          m.Number,
		SubscriptionID:  m.SubscriptionID,
		PayerID:         m.PayerID,
		UnitID:          m.UnitID,
		Kind:            billing.InvoiceKind(m.Kind),
		Period:          m.Period,
		Description:     m.Description,
		OriginalAmount:  m.OriginalAmount,
		PaidAmount:      m.PaidAmount,
		Status:          billing.InvoiceStatus(m.Status),
		DueDate:         m.DueDate,
		PaidAt:          m.PaidAt,
		PaymentMethod:   billing.PaymentMethod(m.PaymentMethod),
		GatewayRef:      m.GatewayRef,
		Notes:           m.Notes,
		CancelReason:    m.CancelReason,
		CancelledAt:     m.CancelledAt,
		ChargeAttempts:  meta.ChargeAttempts,
		LastDeclineCode: meta.LastDeclineCode,
		LastChargeAt:    meta.LastAttemptAt,
	}
	m.PopulateTenantAggregateRoot(&inv.TenantAggregateRoot)
	return inv
}

// InvoiceModelFromDomain creates a persistence model from a domain entity
func InvoiceModelFromDomain(i *billing.Invoice) *InvoiceModel {
	m := &InvoiceModel{
		Number:         i.Number,
		SubscriptionID: i.SubscriptionID,
		PayerID:        i.PayerID,
		UnitID:         i.UnitID,
		Kind:           string(i.Kind),
		Period:         i.Period,
		Description:    i.Description,
		OriginalAmount: i.OriginalAmount,
		PaidAmount:     i.PaidAmount,
		Status:         string(i.Status),
		DueDate:        i.DueDate,
		PaidAt:         i.PaidAt,
		PaymentMethod:  string(i.PaymentMethod),
		GatewayRef:     i.GatewayRef,
		Notes:          i.Notes,
		CancelReason:   i.CancelReason,
		CancelledAt:    i.CancelledAt,
		Metadata: datatypes.NewJSONType(InvoiceMetadata{
			ChargeAttempts:  i.ChargeAttempts,
			LastDeclineCode: i.LastDeclineCode,
			LastAttemptAt:   i.LastChargeAt,
		}),
	}
	m.FromDomainTenantAggregateRoot(i.TenantAggregateRoot)
	return m
}

// InvoiceSequenceModel holds the last invoice number issued per tenant
type InvoiceSequenceModel struct {
	TenantID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	LastValue int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// TableName returns the table name for GORM
func (InvoiceSequenceModel) TableName() string {
	return "invoice_sequences"
}
