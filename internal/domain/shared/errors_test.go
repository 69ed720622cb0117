package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesByCode(t *testing.T) {
	err := NotFound("invoice")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))

	wrapped := fmt.Errorf("failed to load invoice: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.True(t, IsNotFound(wrapped))
	assert.Equal(t, "invoice not found", err.Error())
}

func TestPaymentDeclinedError(t *testing.T) {
	err := NewPaymentDeclined("51", "insufficient funds")

	reason, ok := IsPaymentDeclined(fmt.Errorf("charge: %w", err))
	assert.True(t, ok)
	assert.Equal(t, "51", reason)
	assert.True(t, HasCode(err, CodePaymentDeclined))
	assert.Contains(t, err.Error(), "insufficient funds")

	_, ok = IsPaymentDeclined(ErrInvalidInput)
	assert.False(t, ok)
}

func TestHelpers(t *testing.T) {
	tests := []struct {
		name string
		err  error
		fn   func(error) bool
	}{
		{"conflict", Conflict("dup"), IsConflict},
		{"invalid state", InvalidState("paid"), IsInvalidState},
		{"invalid input", InvalidInput("zip", "must have 8 digits"), IsInvalidInput},
		{"forbidden", Forbidden("no"), IsForbidden},
		{"gateway timeout", GatewayTimeout("gateway"), IsGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.fn(tt.err))
			assert.False(t, tt.fn(errors.New("plain")))
		})
	}
}

func TestInvalidInputNamesField(t *testing.T) {
	err := InvalidInput("address.zip", "must have 8 digits")
	assert.Equal(t, "address.zip: must have 8 digits", err.Error())
}
