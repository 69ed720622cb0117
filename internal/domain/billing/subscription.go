// Package billing models recurring subscriptions, their invoices and the
// dunning state machine driven by payment outcomes.
package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/academy/billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregate type names used in events.
const (
	AggregateTypeSubscription = "Subscription"
	AggregateTypeInvoice      = "Invoice"
)

// MaxRetries is the number of consecutive failed charges after which a
// subscription becomes delinquent.
const MaxRetries = 3

// DefaultBillingDay is used when a subscription does not choose one.
const DefaultBillingDay = 10

// SubscriptionStatus represents the lifecycle state of a subscription
type SubscriptionStatus string

const (
	SubscriptionActive     SubscriptionStatus = "ATIVA"
	SubscriptionPaused     SubscriptionStatus = "PAUSADA"
	SubscriptionCancelled  SubscriptionStatus = "CANCELADA"
	SubscriptionExpired    SubscriptionStatus = "EXPIRADA"
	SubscriptionDelinquent SubscriptionStatus = "INADIMPLENTE"
)

// IsValid checks if the status is valid
func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionActive, SubscriptionPaused, SubscriptionCancelled, SubscriptionExpired, SubscriptionDelinquent:
		return true
	}
	return false
}

// IsTerminal returns true if no further transition is allowed
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionCancelled || s == SubscriptionExpired
}

func (s SubscriptionStatus) String() string { return string(s) }

// PaymentMethod is how a subscription or an invoice is paid.
type PaymentMethod string

const (
	PaymentMethodCard     PaymentMethod = "CARTAO"
	PaymentMethodPix      PaymentMethod = "PIX"
	PaymentMethodBoleto   PaymentMethod = "BOLETO"
	PaymentMethodCash     PaymentMethod = "DINHEIRO"
	PaymentMethodTransfer PaymentMethod = "TRANSFERENCIA"
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodPix, PaymentMethodBoleto, PaymentMethodCash, PaymentMethodTransfer:
		return true
	}
	return false
}

// ParsePaymentMethod accepts the canonical names plus CARD/CASH aliases.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s))); m {
	case "CARD", "CREDIT_CARD":
		return PaymentMethodCard, nil
	case "CASH":
		return PaymentMethodCash, nil
	case "TRANSFER":
		return PaymentMethodTransfer, nil
	default:
		if m.IsValid() {
			return m, nil
		}
	}
	return "", shared.InvalidInput("payment_method", "unknown payment method "+s)
}

// CardToken is the display-safe reference to a tokenized card. It never
// carries the PAN or CVV.
type CardToken struct {
	Token       string
	Last4       string
	Brand       string
	ExpMonth    string
	ExpYear     string
	Fingerprint string
	StoredAt    time.Time
}

// NewSubscriptionInput holds the data for a new subscription.
type NewSubscriptionInput struct {
	PayerID        uuid.UUID
	StudentID      uuid.UUID
	UnitID         uuid.UUID
	PlanName       string
	Value          decimal.Decimal
	PaymentMethod  PaymentMethod
	BillingDay     int
	StartDate      time.Time
	DurationMonths int
	CreatedBy      uuid.UUID
}

// Subscription binds a payer to a recurring plan value.
type Subscription struct {
	shared.TenantAggregateRoot
	PayerID         uuid.UUID
	StudentID       uuid.UUID
	UnitID          uuid.UUID
	PlanName        string
	Value           decimal.Decimal
	PaymentMethod   PaymentMethod
	BillingDay      int
	Status          SubscriptionStatus
	RetryCount      int
	LastAttemptAt   *time.Time
	StartDate       time.Time
	EndDate         *time.Time
	NextBillingDate time.Time
	ResumedAt       *time.Time
	Card            *CardToken
	CancelledBy     *uuid.UUID
	CancelledAt     *time.Time
	CancelReason    string
}

// NewSubscription creates an ATIVA subscription.
func NewSubscription(tenantID uuid.UUID, in NewSubscriptionInput, loc *time.Location, now time.Time) (*Subscription, error) {
	if in.StudentID == uuid.Nil {
		return nil, shared.InvalidInput("student_id", "cannot be empty")
	}
	if in.UnitID == uuid.Nil {
		return nil, shared.InvalidInput("unit_id", "cannot be empty")
	}
	if !in.Value.IsPositive() {
		return nil, shared.InvalidInput("value", "must be positive")
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = PaymentMethodPix
	}
	if !in.PaymentMethod.IsValid() {
		return nil, shared.InvalidInput("payment_method", "unknown payment method")
	}
	if in.BillingDay == 0 {
		in.BillingDay = DefaultBillingDay
	}
	if in.BillingDay < 1 || in.BillingDay > 28 {
		return nil, shared.InvalidInput("billing_day", "must be between 1 and 28")
	}
	if in.DurationMonths < 0 {
		return nil, shared.InvalidInput("duration_months", "cannot be negative")
	}
	if in.StartDate.IsZero() {
		in.StartDate = now
	}
	payer := in.PayerID
	if payer == uuid.Nil {
		payer = in.StudentID
	}

	s := &Subscription{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID, now),
		PayerID:             payer,
		StudentID:           in.StudentID,
		UnitID:              in.UnitID,
		PlanName:            strings.TrimSpace(in.PlanName),
		Value:               in.Value,
		PaymentMethod:       in.PaymentMethod,
		BillingDay:          in.BillingDay,
		Status:              SubscriptionActive,
		StartDate:           in.StartDate,
		NextBillingDate:     NextBillingDate(in.StartDate, in.BillingDay, loc),
	}
	if in.DurationMonths > 0 {
		end := in.StartDate.AddDate(0, in.DurationMonths, 0)
		s.EndDate = &end
	}
	s.SetCreatedBy(in.CreatedBy)
	s.AddDomainEvent(NewSubscriptionStatusChangedEvent(s, "", now))
	return s, nil
}

// IsBillableIn reports whether the subscription is ATIVA and the due date
// of the period falls inside its term. Due dates before the start date,
// or before the last resume, are never billed.
func (s *Subscription) IsBillableIn(p Period, loc *time.Location) bool {
	if s.Status != SubscriptionActive {
		return false
	}
	due := p.DueDate(s.BillingDay, loc)
	floor := startOfDay(s.StartDate, loc)
	if s.ResumedAt != nil {
		if r := startOfDay(*s.ResumedAt, loc); r.After(floor) {
			floor = r
		}
	}
	if due.Before(floor) {
		return false
	}
	if s.EndDate != nil && !due.Before(*s.EndDate) {
		return false
	}
	return true
}

// HasCard reports whether a tokenized card is on file.
func (s *Subscription) HasCard() bool {
	return s.Card != nil && s.Card.Token != ""
}

// RecordFailure counts a failed charge. The third consecutive failure
// moves the subscription to INADIMPLENTE.
func (s *Subscription) RecordFailure(now time.Time) error {
	if s.Status != SubscriptionActive {
		return shared.InvalidState(fmt.Sprintf("cannot record payment failure for subscription in %s status", s.Status))
	}
	if s.RetryCount < MaxRetries {
		s.RetryCount++
	}
	s.LastAttemptAt = &now
	s.Touch(now)
	s.IncrementVersion()
	s.AddDomainEvent(NewPaymentFailedEvent(s, now))
	if s.RetryCount >= MaxRetries {
		s.transition(SubscriptionDelinquent, now)
	}
	return nil
}

// RecordSuccess resets the retry counter of an ATIVA subscription. For
// other states the payment is recorded on the invoice only.
func (s *Subscription) RecordSuccess(now time.Time) {
	s.LastAttemptAt = &now
	s.Touch(now)
	s.IncrementVersion()
	if s.Status == SubscriptionActive {
		s.RetryCount = 0
	}
}

// ReplaceCard swaps the stored card reference. An INADIMPLENTE
// subscription is restored to ATIVA with the retry counter reset; the
// returned flag reports whether that happened.
func (s *Subscription) ReplaceCard(card CardToken, now time.Time) (bool, error) {
	if s.Status.IsTerminal() {
		return false, shared.InvalidState(fmt.Sprintf("cannot update card of subscription in %s status", s.Status))
	}
	if card.Token == "" {
		return false, shared.InvalidInput("token", "gateway returned an empty token")
	}
	if card.StoredAt.IsZero() {
		card.StoredAt = now
	}
	s.Card = &card
	s.PaymentMethod = PaymentMethodCard
	s.Touch(now)
	s.IncrementVersion()
	s.AddDomainEvent(NewCardReplacedEvent(s, now))

	if s.Status != SubscriptionDelinquent {
		return false, nil
	}
	s.RetryCount = 0
	s.LastAttemptAt = nil
	s.transition(SubscriptionActive, now)
	return true, nil
}

// Pause moves an ATIVA subscription to PAUSADA.
func (s *Subscription) Pause(now time.Time) error {
	if s.Status != SubscriptionActive {
		return shared.InvalidState(fmt.Sprintf("cannot pause subscription in %s status", s.Status))
	}
	s.IncrementVersion()
	s.transition(SubscriptionPaused, now)
	return nil
}

// Resume moves a PAUSADA subscription back to ATIVA and recomputes the
// next billing date from now.
func (s *Subscription) Resume(loc *time.Location, now time.Time) error {
	if s.Status != SubscriptionPaused {
		return shared.InvalidState(fmt.Sprintf("cannot resume subscription in %s status", s.Status))
	}
	s.NextBillingDate = NextBillingDate(now, s.BillingDay, loc)
	s.ResumedAt = &now
	s.IncrementVersion()
	s.transition(SubscriptionActive, now)
	return nil
}

// Cancel terminates the subscription.
func (s *Subscription) Cancel(reason string, by uuid.UUID, now time.Time) error {
	switch s.Status {
	case SubscriptionActive, SubscriptionPaused, SubscriptionDelinquent:
	default:
		return shared.InvalidState(fmt.Sprintf("cannot cancel subscription in %s status", s.Status))
	}
	s.CancelReason = strings.TrimSpace(reason)
	s.CancelledAt = &now
	if by != uuid.Nil {
		s.CancelledBy = &by
	}
	s.IncrementVersion()
	s.transition(SubscriptionCancelled, now)
	return nil
}

// Expire moves an ATIVA subscription whose term ended before asOf to
// EXPIRADA.
func (s *Subscription) Expire(asOf time.Time) error {
	if s.Status != SubscriptionActive {
		return shared.InvalidState(fmt.Sprintf("cannot expire subscription in %s status", s.Status))
	}
	if s.EndDate == nil || !s.EndDate.Before(asOf) {
		return shared.InvalidState("subscription term has not ended")
	}
	s.IncrementVersion()
	s.transition(SubscriptionExpired, asOf)
	return nil
}

// Renew extends the term by months, counted from the current end date
// or from now for open-ended subscriptions.
func (s *Subscription) Renew(months int, now time.Time) error {
	if s.Status.IsTerminal() {
		return shared.InvalidState(fmt.Sprintf("cannot renew subscription in %s status", s.Status))
	}
	if months < 1 || months > 36 {
		return shared.InvalidInput("months", "must be between 1 and 36")
	}
	base := now
	if s.EndDate != nil && s.EndDate.After(now) {
		base = *s.EndDate
	}
	end := base.AddDate(0, months, 0)
	s.EndDate = &end
	s.Touch(now)
	s.IncrementVersion()
	return nil
}

// ChangeValue updates the plan value for invoices generated from now on.
func (s *Subscription) ChangeValue(value decimal.Decimal, planName string, now time.Time) error {
	if s.Status.IsTerminal() {
		return shared.InvalidState(fmt.Sprintf("cannot change subscription in %s status", s.Status))
	}
	if !value.IsPositive() {
		return shared.InvalidInput("value", "must be positive")
	}
	s.Value = value
	if p := strings.TrimSpace(planName); p != "" {
		s.PlanName = p
	}
	s.Touch(now)
	s.IncrementVersion()
	return nil
}

// AdvanceBilling moves NextBillingDate past the invoiced period.
func (s *Subscription) AdvanceBilling(invoiced Period, loc *time.Location, now time.Time) {
	next := invoiced.Next().DueDate(s.BillingDay, loc)
	if next.After(s.NextBillingDate) {
		s.NextBillingDate = next
		s.Touch(now)
		s.IncrementVersion()
	}
}

func (s *Subscription) transition(to SubscriptionStatus, now time.Time) {
	from := s.Status
	s.Status = to
	s.Touch(now)
	s.AddDomainEvent(NewSubscriptionStatusChangedEvent(s, from, now))
}
