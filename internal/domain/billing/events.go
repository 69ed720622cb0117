package billing

import (
	"time"

	"github.com/academy/billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypeSubscriptionStatusChanged = "SubscriptionStatusChanged"
	EventTypePaymentFailed             = "SubscriptionPaymentFailed"
	EventTypeCardReplaced              = "SubscriptionCardReplaced"
	EventTypeInvoiceIssued             = "InvoiceIssued"
	EventTypeInvoicePaid               = "InvoicePaid"
	EventTypeInvoiceCancelled          = "InvoiceCancelled"
	EventTypeInvoiceOverdue            = "InvoiceOverdue"
)

// SubscriptionStatusChangedEvent is raised on every status transition
type SubscriptionStatusChangedEvent struct {
	shared.BaseDomainEvent
	From       SubscriptionStatus `json:"from"`
	To         SubscriptionStatus `json:"to"`
	RetryCount int                `json:"retry_count"`
	UnitID     uuid.UUID          `json:"unit_id"`
}

func NewSubscriptionStatusChangedEvent(s *Subscription, from SubscriptionStatus, at time.Time) *SubscriptionStatusChangedEvent {
	return &SubscriptionStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSubscriptionStatusChanged, AggregateTypeSubscription, s.ID, s.TenantID, at),
		From:            from,
		To:              s.Status,
		RetryCount:      s.RetryCount,
		UnitID:          s.UnitID,
	}
}

// PaymentFailedEvent is raised for each failed charge
type PaymentFailedEvent struct {
	shared.BaseDomainEvent
	RetryCount int `json:"retry_count"`
}

func NewPaymentFailedEvent(s *Subscription, at time.Time) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentFailed, AggregateTypeSubscription, s.ID, s.TenantID, at),
		RetryCount:      s.RetryCount,
	}
}

// CardReplacedEvent is raised when a new card token is stored
type CardReplacedEvent struct {
	shared.BaseDomainEvent
	Last4 string `json:"last4"`
	Brand string `json:"brand"`
}

func NewCardReplacedEvent(s *Subscription, at time.Time) *CardReplacedEvent {
	e := &CardReplacedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCardReplaced, AggregateTypeSubscription, s.ID, s.TenantID, at),
	}
	if s.Card != nil {
		e.Last4 = s.Card.Last4
		e.Brand = s.Card.Brand
	}
	return e
}

// InvoiceIssuedEvent is raised when a period invoice is created
type InvoiceIssuedEvent struct {
	shared.BaseDomainEvent
	Number         string          `json:"number"`
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	Period         string          `json:"period"`
	Amount         decimal.Decimal `json:"amount"`
	DueDate        time.Time       `json:"due_date"`
}

func NewInvoiceIssuedEvent(i *Invoice, at time.Time) *InvoiceIssuedEvent {
	return &InvoiceIssuedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceIssued, AggregateTypeInvoice, i.ID, i.TenantID, at),
		Number:          i.Number,
		SubscriptionID:  i.SubscriptionID,
		Period:          i.Period,
		Amount:          i.OriginalAmount,
		DueDate:         i.DueDate,
	}
}

// InvoicePaidEvent is raised when an invoice is settled
type InvoicePaidEvent struct {
	shared.BaseDomainEvent
	Number        string          `json:"number"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
}

func NewInvoicePaidEvent(i *Invoice, at time.Time) *InvoicePaidEvent {
	return &InvoicePaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoicePaid, AggregateTypeInvoice, i.ID, i.TenantID, at),
		Number:          i.Number,
		PaidAmount:      i.PaidAmount,
		PaymentMethod:   i.PaymentMethod,
	}
}

// InvoiceCancelledEvent is raised when an invoice is cancelled
type InvoiceCancelledEvent struct {
	shared.BaseDomainEvent
	Number string `json:"number"`
	Reason string `json:"reason"`
}

func NewInvoiceCancelledEvent(i *Invoice, at time.Time) *InvoiceCancelledEvent {
	return &InvoiceCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceCancelled, AggregateTypeInvoice, i.ID, i.TenantID, at),
		Number:          i.Number,
		Reason:          i.CancelReason,
	}
}

// InvoiceOverdueEvent is raised when an invoice passes its due date unpaid
type InvoiceOverdueEvent struct {
	shared.BaseDomainEvent
	Number  string    `json:"number"`
	DueDate time.Time `json:"due_date"`
}

func NewInvoiceOverdueEvent(i *Invoice, at time.Time) *InvoiceOverdueEvent {
	return &InvoiceOverdueEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceOverdue, AggregateTypeInvoice, i.ID, i.TenantID, at),
		Number:          i.Number,
		DueDate:         i.DueDate,
	}
}
