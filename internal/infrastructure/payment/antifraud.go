package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/academy/billing/internal/domain/billing"
)

// ErrMissingSession is returned when Evaluate is called without a session.
var ErrMissingSession = errors.New("payment: missing antifraud session")

// AntifraudClient implements billing.AntifraudProvider.
type AntifraudClient struct {
	rest restClient
}

var _ billing.AntifraudProvider = (*AntifraudClient)(nil)

// NewAntifraudClient creates an antifraud client. httpClient may be nil.
func NewAntifraudClient(cfg AntifraudConfig, httpClient *http.Client) (*AntifraudClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &AntifraudClient{rest: restClient{
		name:       "antifraud",
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}}, nil
}

// Evaluate scores a transaction. REVIEW verdicts are treated as denials
// since no manual review queue exists.
func (a *AntifraudClient) Evaluate(ctx context.Context, sessionID string, tx billing.TransactionContext) (*billing.AntifraudDecision, error) {
	if sessionID == "" {
		return nil, ErrMissingSession
	}
	body := evaluateRequest{
		SessionID:      sessionID,
		Reference:      tx.SubscriptionID.String(),
		CustomerID:     tx.PayerID.String(),
		Amount:         tx.Amount.StringFixed(2),
		CardBIN:        tx.CardBIN,
		CardLast4:      tx.CardLast4,
		HolderName:     tx.HolderName,
		BillingAddress: toWireAddress(tx.Address),
		Method:         string(tx.Kind),
		IPAddress:      tx.IPAddress,
	}

	var resp evaluateResponse
	if err := a.rest.post(ctx, "/v1/sessions/"+url.PathEscape(sessionID)+"/evaluate", body, &resp); err != nil {
		return nil, err
	}

	switch resp.Decision {
	case decisionApprove:
		return &billing.AntifraudDecision{Approved: true, RiskScore: resp.RiskScore, Reason: resp.Reason}, nil
	case decisionDeny, decisionReview:
		reason := resp.Reason
		if reason == "" {
			reason = resp.Decision
		}
		return &billing.AntifraudDecision{RiskScore: resp.RiskScore, Reason: reason}, nil
	default:
		return nil, fmt.Errorf("%w: unknown antifraud decision %q", ErrInvalidResponse, resp.Decision)
	}
}
