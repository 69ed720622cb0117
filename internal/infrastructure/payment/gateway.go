package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/academy/billing/internal/domain/billing"
	"golang.org/x/time/rate"
)

// ErrMissingChargeSource is returned when a charge carries neither card
// data nor a token.
var ErrMissingChargeSource = errors.New("payment: charge needs card data or a token")

// GatewayClient implements billing.PaymentGateway over the gateway's REST API.
type GatewayClient struct {
	rest restClient
}

var _ billing.PaymentGateway = (*GatewayClient)(nil)

// NewGatewayClient creates a gateway client. httpClient may be nil.
func NewGatewayClient(cfg GatewayConfig, httpClient *http.Client) (*GatewayClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &GatewayClient{rest: restClient{
		name:       "gateway",
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
	}}, nil
}

// Charge submits a charge. A decline is a result, not an error.
func (g *GatewayClient) Charge(ctx context.Context, req *billing.ChargeRequest) (*billing.ChargeResult, error) {
	if req.Card == nil && req.Token == "" {
		return nil, ErrMissingChargeSource
	}
	body := chargeCreateRequest{
		Reference:          req.Reference,
		Amount:             req.Amount.StringFixed(2),
		Currency:           "BRL",
		Description:        req.Description,
		CardToken:          req.Token,
		Tokenize:           req.Tokenize,
		AntifraudSessionID: req.AntifraudSessionID,
		CustomerID:         req.PayerID.String(),
	}
	if req.Card != nil {
		body.Card = &chargeCard{
			Number:     req.Card.Number,
			HolderName: req.Card.HolderName,
			ExpMonth:   req.Card.ExpMonth,
			ExpYear:    req.Card.ExpYear,
			CVV:        req.Card.CVV,
		}
	}
	if req.BillingAddress != nil {
		addr := toWireAddress(*req.BillingAddress)
		body.BillingAddress = &addr
	}

	var resp chargeResponse
	if err := g.rest.post(ctx, "/v1/charges", body, &resp); err != nil {
		return nil, err
	}

	switch resp.Status {
	case chargeStatusApproved:
		if resp.ID == "" {
			return nil, fmt.Errorf("%w: approved charge without id", ErrInvalidResponse)
		}
		return &billing.ChargeResult{Approved: true, GatewayRef: resp.ID, Token: resp.CardToken}, nil
	case chargeStatusDeclined:
		code := resp.DeclineCode
		if code == "" {
			code = "DECLINED"
		}
		return &billing.ChargeResult{GatewayRef: resp.ID, DeclineCode: code, DeclineReason: resp.DeclineReason}, nil
	default:
		return nil, fmt.Errorf("%w: unknown charge status %q", ErrInvalidResponse, resp.Status)
	}
}

// Reverse refunds an approved charge in full.
func (g *GatewayClient) Reverse(ctx context.Context, gatewayRef string) error {
	if gatewayRef == "" {
		return fmt.Errorf("%w: empty gateway reference", ErrRequestFailed)
	}
	return g.rest.post(ctx, "/v1/charges/"+url.PathEscape(gatewayRef)+"/reverse", nil, nil)
}
