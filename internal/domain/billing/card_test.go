package billing

import (
	"fmt"
	"testing"

	"github.com/academy/billing/internal/domain/shared"
	"github.com/stretchr/testify/assert"
)

func validCard() CardFields {
	return CardFields{Number: "4111111111111111", HolderName: "MARIA SOUZA", ExpMonth: "12", ExpYear: "2030", CVV: "123"}
}

func validAddress() Address {
	return Address{Street: "Rua A", Number: "10", Neighborhood: "Centro", City: "Curitiba", State: "PR", ZipCode: "80000000"}
}

func TestCardFields_Validate(t *testing.T) {
	assert.NoError(t, validCard().Validate())

	tests := []struct {
		name   string
		mutate func(c *CardFields)
		field  string
	}{
		{"short number", func(c *CardFields) { c.Number = "411111" }, "card.number"},
		{"letters in number", func(c *CardFields) { c.Number = "4111x11111111111" }, "card.number"},
		{"short holder", func(c *CardFields) { c.HolderName = "Al" }, "card.holder_name"},
		{"month 13", func(c *CardFields) { c.ExpMonth = "13" }, "card.expiration_month"},
		{"month without zero", func(c *CardFields) { c.ExpMonth = "1" }, "card.expiration_month"},
		{"two digit year", func(c *CardFields) { c.ExpYear = "30" }, "card.expiration_year"},
		{"cvv", func(c *CardFields) { c.CVV = "12" }, "card.security_code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCard()
			tt.mutate(&c)
			err := c.Validate()
			assert.True(t, shared.IsInvalidInput(err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestAddress_Validate(t *testing.T) {
	assert.NoError(t, validAddress().Validate())

	tests := []struct {
		name   string
		mutate func(a *Address)
		field  string
	}{
		{"street", func(a *Address) { a.Street = " " }, "address.street"},
		{"city", func(a *Address) { a.City = "" }, "address.city"},
		{"lowercase state", func(a *Address) { a.State = "pr" }, "address.state"},
		{"zip with dash", func(a *Address) { a.ZipCode = "80000-000" }, "address.zip_code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validAddress()
			tt.mutate(&a)
			err := a.Validate()
			assert.True(t, shared.IsInvalidInput(err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestCardFields_Redaction(t *testing.T) {
	c := validCard()
	assert.Equal(t, "1111", c.Last4())
	assert.Equal(t, "411111", c.BIN())
	assert.Equal(t, "VISA", c.Brand())
	for _, s := range []string{fmt.Sprint(c), fmt.Sprintf("%v", c), fmt.Sprintf("%#v", c), fmt.Sprintf("%+v", c)} {
		assert.NotContains(t, s, c.Number)
		assert.NotContains(t, s, "123")
	}
}

func TestCardFields_Brand(t *testing.T) {
	assert.Equal(t, "MASTERCARD", CardFields{Number: "5555555555554444"}.Brand())
	assert.Equal(t, "AMEX", CardFields{Number: "378282246310005"}.Brand())
	assert.Equal(t, "ELO", CardFields{Number: "6362970000457013"}.Brand())
	assert.Equal(t, "UNKNOWN", CardFields{Number: "9999999999999999"}.Brand())
}

func TestAntifraudSession_Validate(t *testing.T) {
	assert.NoError(t, AntifraudSession{SessionID: "s1", Kind: AntifraudIDPay}.Validate())
	assert.True(t, shared.IsInvalidInput(AntifraudSession{}.Validate()))
	assert.True(t, shared.IsInvalidInput(AntifraudSession{SessionID: "s", Kind: "OTHER"}.Validate()))
}
