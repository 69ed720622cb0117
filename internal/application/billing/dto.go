package billing

import (
	"time"

	"github.com/academy/billing/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateSubscriptionRequest opens a subscription.
type CreateSubscriptionRequest struct {
	PayerID        uuid.UUID
	StudentID      uuid.UUID
	UnitID         uuid.UUID
	PlanName       string
	Value          decimal.Decimal
	PaymentMethod  billing.PaymentMethod
	BillingDay     int
	StartDate      time.Time
	DurationMonths int
}

// ListSubscriptionsFilter narrows subscription listings.
type ListSubscriptionsFilter struct {
	Page      int
	PageSize  int
	OrderBy   string
	OrderDir  string
	Status    billing.SubscriptionStatus
	StudentID *uuid.UUID
	PayerID   *uuid.UUID
}

// CardResponse is the display-safe view of a stored card.
type CardResponse struct {
	Last4    string    `json:"last4"`
	Brand    string    `json:"brand"`
	ExpMonth string    `json:"exp_month"`
	ExpYear  string    `json:"exp_year"`
	StoredAt time.Time `json:"stored_at"`
}

// SubscriptionResponse is the read model of a subscription.
type SubscriptionResponse struct {
	ID              uuid.UUID       `json:"id"`
	PayerID         uuid.UUID       `json:"payer_id"`
	StudentID       uuid.UUID       `json:"student_id"`
	UnitID          uuid.UUID       `json:"unit_id"`
	PlanName        string          `json:"plan_name"`
	Value           decimal.Decimal `json:"value"`
	PaymentMethod   string          `json:"payment_method"`
	BillingDay      int             `json:"billing_day"`
	Status          string          `json:"status"`
	RetryCount      int             `json:"retry_count"`
	LastAttemptAt   *time.Time      `json:"last_attempt_at,omitempty"`
	StartDate       time.Time       `json:"start_date"`
	EndDate         *time.Time      `json:"end_date,omitempty"`
	NextBillingDate time.Time       `json:"next_billing_date"`
	Card            *CardResponse   `json:"card,omitempty"`
	CancelReason    string          `json:"cancel_reason,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ToSubscriptionResponse converts a domain subscription. The card token
// and fingerprint are never exposed.
func ToSubscriptionResponse(s *billing.Subscription) SubscriptionResponse {
	r := SubscriptionResponse{
		ID:              s.ID,
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
		CancelReason:    s.CancelReason,
		CancelledAt:     s.CancelledAt,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	if s.Card != nil {
		r.Card = &CardResponse{
			Last4:    s.Card.Last4,
			Brand:    s.Card.Brand,
			ExpMonth: s.Card.ExpMonth,
			ExpYear:  s.Card.ExpYear,
			StoredAt: s.Card.StoredAt,
		}
	}
	return r
}

// InvoiceResponse is the read model of an invoice.
type InvoiceResponse struct {
	ID              uuid.UUID       `json:"id"`
	Number          string          `json:"number"`
	SubscriptionID  uuid.UUID       `json:"subscription_id"`
	PayerID         uuid.UUID       `json:"payer_id"`
	UnitID          uuid.UUID       `json:"unit_id"`
	Kind            string          `json:"kind"`
	Period          string          `json:"period"`
	Description     string          `json:"description"`
	OriginalAmount  decimal.Decimal `json:"original_amount"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	Status          string          `json:"status"`
	DueDate         time.Time       `json:"due_date"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	PaymentMethod   string          `json:"payment_method"`
	GatewayRef      string          `json:"gateway_ref,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CancelReason    string          `json:"cancel_reason,omitempty"`
	ChargeAttempts  int             `json:"charge_attempts"`
	LastDeclineCode string          `json:"last_decline_code,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ToInvoiceResponse converts a domain invoice.
func ToInvoiceResponse(i *billing.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:              i.ID,
		Number:          i.Number,
		SubscriptionID:  i.SubscriptionID,
		PayerID:         i.PayerID,
		UnitID:          i.UnitID,
		Kind:            string(i.Kind),
		Period:          i.Period,
		Description:     i.Description,
		OriginalAmount:  i.OriginalAmount,
		PaidAmount:      i.PaidAmount,
		Status:          string(i.Status),
		DueDate:         i.DueDate,
		PaidAt:          i.PaidAt,
		PaymentMethod:   string(i.PaymentMethod),
		GatewayRef:      i.GatewayRef,
		Notes:           i.Notes,
		CancelReason:    i.CancelReason,
		ChargeAttempts:  i.ChargeAttempts,
		LastDeclineCode: i.LastDeclineCode,
		CreatedAt:       i.CreatedAt,
	}
}

func toInvoiceResponses(items []billing.Invoice) []InvoiceResponse {
	out := make([]InvoiceResponse, len(items))
	for i := range items {
		out[i] = ToInvoiceResponse(&items[i])
	}
	return out
}

// ItemError reports one subscription or invoice a job could not process.
type ItemError struct {
	ID    uuid.UUID `json:"id"`
	Error string    `json:"error"`
}

// GenerationResult summarizes a period generation run.
type GenerationResult struct {
	Period   string            `json:"period"`
	Created  int               `json:"created"`
	Skipped  int               `json:"skipped"`
	Failed   int               `json:"failed"`
	Invoices []InvoiceResponse `json:"invoices"`
	Errors   []ItemError       `json:"errors,omitempty"`
}

// PaymentOutcome is a payment result reported for a subscription. Amount
// defaults to the invoice amount; Method to the subscription's.
type PaymentOutcome struct {
	Success     bool
	Amount      *decimal.Decimal
	GatewayRef  string
	DeclineCode string
	Method      billing.PaymentMethod
}

// PaymentOutcomeResult is the state after an outcome was applied.
type PaymentOutcomeResult struct {
	SubscriptionID     uuid.UUID        `json:"subscription_id"`
	SubscriptionStatus string           `json:"subscription_status"`
	RetryCount         int              `json:"retry_count"`
	PaidInvoice        *InvoiceResponse `json:"paid_invoice,omitempty"`
	BecameDelinquent   bool             `json:"became_delinquent"`
}

// ChargeRunResult summarizes a charge run.
type ChargeRunResult struct {
	Attempted int         `json:"attempted"`
	Paid      int         `json:"paid"`
	Declined  int         `json:"declined"`
	TimedOut  int         `json:"timed_out"`
	Skipped   int         `json:"skipped"`
	Failed    int         `json:"failed"`
	Errors    []ItemError `json:"errors,omitempty"`
}

// SweepResult summarizes an overdue or expiry sweep.
type SweepResult struct {
	Changed int         `json:"changed"`
	Failed  int         `json:"failed"`
	Errors  []ItemError `json:"errors,omitempty"`
}

// StoreCardRequest carries raw card data for one validation. It must not
// be logged.
type StoreCardRequest struct {
	Card      billing.CardFields
	Address   billing.Address
	Antifraud billing.AntifraudSession
	IPAddress string
}

// StoreCardResult is returned after a card was validated and stored.
type StoreCardResult struct {
	Subscription      SubscriptionResponse `json:"subscription"`
	ValidationInvoice InvoiceResponse      `json:"validation_invoice"`
	Reactivated       bool                 `json:"reactivated"`
	ReversalPending   bool                 `json:"reversal_pending"`
	Charged           *ChargeRunResult     `json:"charged,omitempty"`
}

// ManualPaymentRequest records an offline payment.
type ManualPaymentRequest struct {
	Method billing.PaymentMethod
	Amount decimal.Decimal
	Notes  string
}

// ListInvoicesFilter narrows invoice listings.
type ListInvoicesFilter struct {
	Page           int
	PageSize       int
	OrderBy        string
	OrderDir       string
	Status         billing.InvoiceStatus
	Kind           billing.InvoiceKind
	SubscriptionID *uuid.UUID
	Period         string
}

// UnitSummaryResponse aggregates the open receivables of one unit.
type UnitSummaryResponse struct {
	UnitID       uuid.UUID       `json:"unit_id"`
	PendingCount int64           `json:"pending_count"`
	PendingTotal decimal.Decimal `json:"pending_total"`
	OverdueCount int64           `json:"overdue_count"`
	OverdueTotal decimal.Decimal `json:"overdue_total"`
}
