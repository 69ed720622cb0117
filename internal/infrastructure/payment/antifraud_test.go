package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/academy/billing/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAntifraudClient_Evaluate(t *testing.T) {
	tx := billing.TransactionContext{
		SubscriptionID: uuid.New(),
		PayerID:        uuid.New(),
		Amount:         decimal.NewFromInt(1),
		CardBIN:        "411111",
		CardLast4:      "1111",
		Kind:           billing.AntifraudIDPay,
		IPAddress:      "203.0.113.9",
	}

	tests := []struct {
		name       string
		resp       evaluateResponse
		wantOK     bool
		wantReason string
	}{
		{"approve", evaluateResponse{Decision: decisionApprove, RiskScore: 12}, true, ""},
		{"deny", evaluateResponse{Decision: decisionDeny, RiskScore: 91, Reason: "velocity"}, false, "velocity"},
		{"review is a denial", evaluateResponse{Decision: decisionReview, RiskScore: 60}, false, decisionReview},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got evaluateRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/sessions/sess-1/evaluate", r.URL.Path)
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				_ = json.NewEncoder(w).Encode(tt.resp)
			}))
			defer srv.Close()
			c, err := NewAntifraudClient(AntifraudConfig{BaseURL: srv.URL, APIKey: "af"}, srv.Client())
			require.NoError(t, err)

			d, err := c.Evaluate(context.Background(), "sess-1", tx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, d.Approved)
			assert.Equal(t, tt.resp.RiskScore, d.RiskScore)
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.Equal(t, "1.00", got.Amount)
			assert.Equal(t, "IDPAY", got.Method)
			assert.Equal(t, tx.SubscriptionID.String(), got.Reference)
		})
	}

	t.Run("missing session", func(t *testing.T) {
		c, err := NewAntifraudClient(AntifraudConfig{BaseURL: "http://localhost:1", APIKey: "af"}, nil)
		require.NoError(t, err)
		_, err = c.Evaluate(context.Background(), "", tx)
		assert.ErrorIs(t, err, ErrMissingSession)
	})

	t.Run("unknown decision", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"decision":"MAYBE"}`))
		}))
		defer srv.Close()
		c, err := NewAntifraudClient(AntifraudConfig{BaseURL: srv.URL, APIKey: "af"}, srv.Client())
		require.NoError(t, err)
		_, err = c.Evaluate(context.Background(), "s", tx)
		assert.ErrorIs(t, err, ErrInvalidResponse)
	})
}
