package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrProviderTimeout is wrapped by gateway and antifraud adapters when a
// call exceeded its deadline. The outcome of such a call is unknown.
var ErrProviderTimeout = errors.New("billing: provider call timed out")

// ChargeRequest is a single charge submitted to the payment gateway.
// Exactly one of Card and Token is set.
type ChargeRequest struct {
	Reference          string
	Amount             decimal.Decimal
	Description        string
	Card               *CardFields
	Token              string
	Tokenize           bool
	BillingAddress     *Address
	AntifraudSessionID string
	PayerID            uuid.UUID
}

// ChargeResult is the gateway's answer to a charge.
type ChargeResult struct {
	Approved      bool
	GatewayRef    string
	Token         string
	DeclineCode   string
	DeclineReason string
}

// PaymentGateway charges cards and reverses charges.
type PaymentGateway interface {
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)
	Reverse(ctx context.Context, gatewayRef string) error
}

// TransactionContext is what the antifraud provider scores.
type TransactionContext struct {
	SubscriptionID uuid.UUID
	PayerID        uuid.UUID
	Amount         decimal.Decimal
	CardBIN        string
	CardLast4      string
	HolderName     string
	Address        Address
	Kind           AntifraudKind
	IPAddress      string
}

// AntifraudDecision is the provider's verdict.
type AntifraudDecision struct {
	Approved  bool
	RiskScore float64
	Reason    string
}

// AntifraudProvider evaluates a transaction within a client session.
type AntifraudProvider interface {
	Evaluate(ctx context.Context, sessionID string, tx TransactionContext) (*AntifraudDecision, error)
}

// InvoiceNumberer issues sequential invoice numbers within the
// transaction carried by ctx.
type InvoiceNumberer interface {
	Next(ctx context.Context, tenantID uuid.UUID) (string, error)
}

// SubscriptionLocker serializes work on one subscription across
// processes. The returned release func is always non-nil.
type SubscriptionLocker interface {
	Lock(ctx context.Context, subscriptionID uuid.UUID) (release func(), err error)
}
