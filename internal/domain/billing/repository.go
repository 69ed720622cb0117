package billing

import (
	"context"
	"time"

	"github.com/academy/billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UnitRestriction limits a query to a set of units. When Restricted is
// true and UnitIDs is empty the query matches nothing.
type UnitRestriction struct {
	UnitIDs    []uuid.UUID
	Restricted bool
}

// SubscriptionFilter narrows subscription listings.
type SubscriptionFilter struct {
	shared.Filter
	UnitRestriction
	Status    SubscriptionStatus
	StudentID *uuid.UUID
	PayerID   *uuid.UUID
}

// SubscriptionRepository persists subscriptions. All methods join the
// transaction carried by ctx.
type SubscriptionRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Subscription, error)
	// FindByIDForUpdate loads and row-locks the subscription for the
	// remainder of the current transaction.
	FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Subscription, error)
	// FindIDsByStatus returns ids in status within the restriction.
	FindIDsByStatus(ctx context.Context, tenantID uuid.UUID, status SubscriptionStatus, units UnitRestriction) ([]uuid.UUID, error)
	// FindExpiredIDs returns ATIVA subscriptions whose end date is before asOf.
	FindExpiredIDs(ctx context.Context, tenantID uuid.UUID, asOf time.Time) ([]uuid.UUID, error)
	ExistsActiveForStudent(ctx context.Context, tenantID, studentID uuid.UUID) (bool, error)
	List(ctx context.Context, tenantID uuid.UUID, filter SubscriptionFilter) ([]Subscription, int64, error)
	Create(ctx context.Context, s *Subscription) error
	Save(ctx context.Context, s *Subscription) error
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	shared.Filter
	UnitRestriction
	Status         InvoiceStatus
	Kind           InvoiceKind
	SubscriptionID *uuid.UUID
	Period         string
}

// UnitSummary aggregates open receivables of one unit.
type UnitSummary struct {
	UnitID       uuid.UUID
	PendingCount int64
	PendingTotal decimal.Decimal
	OverdueCount int64
	OverdueTotal decimal.Decimal
}

// InvoiceRepository persists invoices. All methods join the transaction
// carried by ctx.
type InvoiceRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error)
	// FindActiveForPeriod returns the non-cancelled recurring invoice of
	// the subscription for period, or ErrNotFound.
	FindActiveForPeriod(ctx context.Context, tenantID, subscriptionID uuid.UUID, period string) (*Invoice, error)
	// FindOpenBySubscription returns PENDENTE and ATRASADA recurring
	// invoices, oldest due date first.
	FindOpenBySubscription(ctx context.Context, tenantID, subscriptionID uuid.UUID) ([]Invoice, error)
	// FindChargeable returns open recurring invoices due on or before asOf
	// whose subscription is ATIVA, paid by card and has a token on file.
	FindChargeable(ctx context.Context, tenantID uuid.UUID, asOf time.Time, units UnitRestriction) ([]Invoice, error)
	// FindPendingDueBefore returns PENDENTE invoices due before asOf.
	FindPendingDueBefore(ctx context.Context, tenantID uuid.UUID, asOf time.Time) ([]Invoice, error)
	List(ctx context.Context, tenantID uuid.UUID, filter InvoiceFilter) ([]Invoice, int64, error)
	Summarize(ctx context.Context, tenantID uuid.UUID, units UnitRestriction) ([]UnitSummary, error)
	// Create inserts an invoice. A second non-cancelled recurring invoice
	// for the same (subscription, period) fails with a Conflict error.
	Create(ctx context.Context, i *Invoice) error
	Save(ctx context.Context, i *Invoice) error
}
