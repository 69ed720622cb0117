package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/academy/billing/internal/domain/billing"
	"golang.org/x/time/rate"
)

// Errors returned by the REST clients
var (
	ErrUnavailable     = errors.New("payment: provider unavailable")
	ErrRequestFailed   = errors.New("payment: provider request failed")
	ErrInvalidResponse = errors.New("payment: invalid provider response")
)

const maxResponseBody = 1 << 20

// restClient performs authenticated JSON exchanges with a provider.
type restClient struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func (c *restClient) post(ctx context.Context, path string, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.wrapTransport(ctx, err)
		}
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", c.name, err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, joinURL(c.baseURL, path), body)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.wrapTransport(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return c.wrapTransport(ctx, err)
	}

	switch {
	case resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout:
		return fmt.Errorf("%w: %s HTTP %d", billing.ErrProviderTimeout, c.name, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s HTTP %d", ErrUnavailable, c.name, resp.StatusCode)
	case resp.StatusCode >= 400:
		var apiErr apiError
		_ = json.Unmarshal(respBody, &apiErr)
		return fmt.Errorf("%w: %s HTTP %d %s %s", ErrRequestFailed, c.name, resp.StatusCode, apiErr.Code, apiErr.Message)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidResponse, c.name, err)
	}
	return nil
}

// wrapTransport maps deadline failures to billing.ErrProviderTimeout so
// callers never treat them as declines.
func (c *restClient) wrapTransport(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %s: %v", billing.ErrProviderTimeout, c.name, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, c.name, err)
}

func toWireAddress(a billing.Address) wireAddress {
	return wireAddress{
		Street:       a.Street,
		Number:       a.Number,
		Complement:   a.Complement,
		Neighborhood: a.Neighborhood,
		City:         a.City,
		State:        a.State,
		ZipCode:      a.ZipCode,
	}
}
