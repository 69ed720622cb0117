package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/academy/billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "PENDENTE"
	InvoicePaid      InvoiceStatus = "PAGA"
	InvoiceOverdue   InvoiceStatus = "ATRASADA"
	InvoiceCancelled InvoiceStatus = "CANCELADA"
)

// IsValid checks if the status is valid
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoicePending, InvoicePaid, InvoiceOverdue, InvoiceCancelled:
		return true
	}
	return false
}

// IsTerminal returns true for paid and cancelled invoices
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoicePaid || s == InvoiceCancelled
}

// IsOpen returns true if the invoice can still be paid
func (s InvoiceStatus) IsOpen() bool {
	return s == InvoicePending || s == InvoiceOverdue
}

func (s InvoiceStatus) String() string { return string(s) }

// InvoiceKind separates period invoices from card validation charges.
type InvoiceKind string

const (
	InvoiceRecurring  InvoiceKind = "RECURRING"
	InvoiceValidation InvoiceKind = "VALIDATION"
)

// Invoice is one billing event for a subscription.
type Invoice struct {
	shared.TenantAggregateRoot
	Number         string
	SubscriptionID uuid.UUID
	PayerID        uuid.UUID
	UnitID         uuid.UUID
	Kind           InvoiceKind
	Period         string
	Description    string
	OriginalAmount decimal.Decimal
	PaidAmount     decimal.Decimal
	Status         InvoiceStatus
	DueDate        time.Time
	PaidAt         *time.Time
	PaymentMethod  PaymentMethod
	GatewayRef     string
	Notes          string
	CancelReason   string
	CancelledAt    *time.Time

	// Charge attempt bookkeeping for card invoices.
	ChargeAttempts  int
	LastDeclineCode string
	LastChargeAt    *time.Time
}

// NewPeriodInvoice creates the PENDENTE invoice of sub for period.
func NewPeriodInvoice(sub *Subscription, period Period, number string, loc *time.Location, now time.Time) (*Invoice, error) {
	if number == "" {
		return nil, shared.InvalidInput("number", "cannot be empty")
	}
	if !sub.Value.IsPositive() {
		return nil, shared.InvalidInput("value", "subscription value must be positive")
	}
	plan := sub.PlanName
	if plan == "" {
		plan = "Plano"
	}
	inv := &Invoice{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(sub.TenantID, now),
		Number:              number,
		SubscriptionID:      sub.ID,
		PayerID:             sub.PayerID,
		UnitID:              sub.UnitID,
		Kind:                InvoiceRecurring,
		Period:              period.String(),
		Description:         fmt.Sprintf("Mensalidade - %s - %s", plan, period.Label()),
		OriginalAmount:      sub.Value,
		PaidAmount:          decimal.Zero,
		Status:              InvoicePending,
		DueDate:             period.DueDate(sub.BillingDay, loc),
		PaymentMethod:       sub.PaymentMethod,
	}
	inv.AddDomainEvent(NewInvoiceIssuedEvent(inv, now))
	return inv, nil
}

// NewValidationInvoice records the card validation charge for sub.
func NewValidationInvoice(sub *Subscription, amount decimal.Decimal, number string, now time.Time) (*Invoice, error) {
	if number == "" {
		return nil, shared.InvalidInput("number", "cannot be empty")
	}
	if !amount.IsPositive() {
		return nil, shared.InvalidInput("amount", "must be positive")
	}
	return &Invoice{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(sub.TenantID, now),
		Number:              number,
		SubscriptionID:      sub.ID,
		PayerID:             sub.PayerID,
		UnitID:              sub.UnitID,
		Kind:                InvoiceValidation,
		Period:              PeriodOf(now, time.UTC).String(),
		Description:         "Validação de cartão",
		OriginalAmount:      amount,
		PaidAmount:          decimal.Zero,
		Status:              InvoicePending,
		DueDate:             now,
		PaymentMethod:       PaymentMethodCard,
	}, nil
}

// Pay settles an open invoice.
func (i *Invoice) Pay(method PaymentMethod, amount decimal.Decimal, gatewayRef, notes string, now time.Time) error {
	if !amount.IsPositive() {
		return shared.InvalidInput("amount", "paid amount must be greater than zero")
	}
	if method != "" && !method.IsValid() {
		return shared.InvalidInput("payment_method", "unknown payment method")
	}
	if !i.Status.IsOpen() {
		return shared.InvalidState(fmt.Sprintf("cannot pay invoice in %s status", i.Status))
	}
	if method != "" {
		i.PaymentMethod = method
	}
	i.PaidAmount = amount
	i.PaidAt = &now
	if gatewayRef != "" {
		i.GatewayRef = gatewayRef
	}
	i.appendNote(notes)
	i.Status = InvoicePaid
	i.Touch(now)
	i.IncrementVersion()
	i.AddDomainEvent(NewInvoicePaidEvent(i, now))
	return nil
}

// Cancel cancels an open invoice. The reason is mandatory.
func (i *Invoice) Cancel(reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return shared.InvalidInput("reason", "cancellation reason is required")
	}
	if i.Status.IsTerminal() {
		return shared.InvalidState(fmt.Sprintf("cannot cancel invoice in %s status", i.Status))
	}
	i.Status = InvoiceCancelled
	i.CancelReason = reason
	i.CancelledAt = &now
	i.appendNote("Cancelada: " + reason)
	i.Touch(now)
	i.IncrementVersion()
	i.AddDomainEvent(NewInvoiceCancelledEvent(i, now))
	return nil
}

// ValidationReversalReason is recorded on validation invoices once the
// charge has been approved and queued for reversal.
const ValidationReversalReason = "validação de cartão estornada"

// CloseValidation records an approved validation charge and closes the
// invoice as reversed. The charged amount is kept in PaidAmount.
func (i *Invoice) CloseValidation(gatewayRef string, now time.Time) error {
	if i.Kind != InvoiceValidation {
		return shared.InvalidState("only validation invoices can be closed as reversed")
	}
	if i.Status != InvoicePending {
		return shared.InvalidState(fmt.Sprintf("cannot close validation invoice in %s status", i.Status))
	}
	i.GatewayRef = gatewayRef
	i.PaidAmount = i.OriginalAmount
	i.PaidAt = &now
	i.Status = InvoiceCancelled
	i.CancelReason = ValidationReversalReason
	i.CancelledAt = &now
	i.appendNote("Cancelada: " + ValidationReversalReason)
	i.Touch(now)
	i.IncrementVersion()
	i.AddDomainEvent(NewInvoiceCancelledEvent(i, now))
	return nil
}

// MarkOverdue moves a PENDENTE invoice whose due date is before asOf to
// ATRASADA. It reports whether the invoice changed.
func (i *Invoice) MarkOverdue(asOf time.Time) bool {
	if i.Status != InvoicePending || !i.DueDate.Before(asOf) {
		return false
	}
	i.Status = InvoiceOverdue
	i.Touch(asOf)
	i.IncrementVersion()
	i.AddDomainEvent(NewInvoiceOverdueEvent(i, asOf))
	return true
}

// RecordChargeAttempt counts a gateway charge of this invoice. An empty
// declineCode records an approval.
func (i *Invoice) RecordChargeAttempt(declineCode string, now time.Time) {
	i.ChargeAttempts++
	i.LastDeclineCode = declineCode
	i.LastChargeAt = &now
	i.Touch(now)
	i.IncrementVersion()
}

func (i *Invoice) appendNote(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	if i.Notes == "" {
		i.Notes = note
		return
	}
	i.Notes += "\n" + note
}
