package billing

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/academy/billing/internal/domain/shared"
)

var (
	reCardNumber = regexp.MustCompile(`^\d{13,19}$`)
	reExpMonth   = regexp.MustCompile(`^(0[1-9]|1[0-2])$`)
	reExpYear    = regexp.MustCompile(`^20\d{2}$`)
	reCVV        = regexp.MustCompile(`^\d{3,4}$`)
	reState      = regexp.MustCompile(`^[A-Z]{2}$`)
	reZipCode    = regexp.MustCompile(`^\d{8}$`)
)

// CardFields carry raw card data for a single outbound validation call.
// They must never be persisted or logged; String redacts them.
type CardFields struct {
	Number     string
	HolderName string
	ExpMonth   string
	ExpYear    string
	CVV        string
}

// Validate checks the card fields, naming the first offending field.
func (c CardFields) Validate() error {
	if !reCardNumber.MatchString(c.Number) {
		return shared.InvalidInput("card.number", "must have 13 to 19 digits")
	}
	holder := strings.TrimSpace(c.HolderName)
	if n := utf8.RuneCountInString(holder); n < 3 || n > 100 {
		return shared.InvalidInput("card.holder_name", "must have 3 to 100 characters")
	}
	if !reExpMonth.MatchString(c.ExpMonth) {
		return shared.InvalidInput("card.expiration_month", "must be 01 to 12")
	}
	if !reExpYear.MatchString(c.ExpYear) {
		return shared.InvalidInput("card.expiration_year", "must be a four digit year starting with 20")
	}
	if !reCVV.MatchString(c.CVV) {
		return shared.InvalidInput("card.security_code", "must have 3 or 4 digits")
	}
	return nil
}

// Last4 returns the last four digits of the card number.
func (c CardFields) Last4() string {
	if len(c.Number) < 4 {
		return ""
	}
	return c.Number[len(c.Number)-4:]
}

// BIN returns the first six digits of the card number.
func (c CardFields) BIN() string {
	if len(c.Number) < 6 {
		return ""
	}
	return c.Number[:6]
}

// Brand guesses the card network from the number prefix.
func (c CardFields) Brand() string {
	n := c.Number
	switch {
	case strings.HasPrefix(n, "4011") || strings.HasPrefix(n, "4312") || strings.HasPrefix(n, "4389") ||
		strings.HasPrefix(n, "5041") || strings.HasPrefix(n, "6277") || strings.HasPrefix(n, "6362") ||
		strings.HasPrefix(n, "6363") || strings.HasPrefix(n, "6504") || strings.HasPrefix(n, "6516"):
		return "ELO"
	case strings.HasPrefix(n, "606282") || strings.HasPrefix(n, "3841"):
		return "HIPERCARD"
	case strings.HasPrefix(n, "4"):
		return "VISA"
	case strings.HasPrefix(n, "34") || strings.HasPrefix(n, "37"):
		return "AMEX"
	case len(n) >= 2 && n[0] == '5' && n[1] >= '1' && n[1] <= '5':
		return "MASTERCARD"
	case len(n) >= 4 && n[:4] >= "2221" && n[:4] <= "2720":
		return "MASTERCARD"
	}
	return "UNKNOWN"
}

// String redacts everything but the last four digits.
func (c CardFields) String() string {
	return "card(****" + c.Last4() + ")"
}

// GoString keeps %#v from printing raw card data.
func (c CardFields) GoString() string { return c.String() }

// Address is the billing address sent to the gateway and antifraud
// provider.
type Address struct {
	Street       string
	Number       string
	Complement   string
	Neighborhood string
	City         string
	State        string
	ZipCode      string
}

// Validate checks the address, naming the first offending field.
func (a Address) Validate() error {
	required := []struct{ field, value string }{
		{"address.street", a.Street},
		{"address.number", a.Number},
		{"address.neighborhood", a.Neighborhood},
		{"address.city", a.City},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return shared.InvalidInput(r.field, "is required")
		}
	}
	if !reState.MatchString(a.State) {
		return shared.InvalidInput("address.state", "must be a two-letter uppercase code")
	}
	if !reZipCode.MatchString(a.ZipCode) {
		return shared.InvalidInput("address.zip_code", "must have 8 digits")
	}
	return nil
}

// AntifraudKind is the antifraud mechanism a session was opened with.
type AntifraudKind string

const (
	AntifraudIDPay     AntifraudKind = "IDPAY"
	AntifraudThreeDS   AntifraudKind = "THREEDS"
	AntifraudClearSale AntifraudKind = "CLEARSALE"
)

// IsValid checks if the antifraud kind is valid
func (k AntifraudKind) IsValid() bool {
	switch k {
	case AntifraudIDPay, AntifraudThreeDS, AntifraudClearSale:
		return true
	}
	return false
}

// AntifraudSession identifies the client-side antifraud session.
type AntifraudSession struct {
	SessionID string
	Kind      AntifraudKind
}

// Validate checks the session.
func (s AntifraudSession) Validate() error {
	if strings.TrimSpace(s.SessionID) == "" {
		return shared.InvalidInput("antifraud.session_id", "is required")
	}
	if s.Kind != "" && !s.Kind.IsValid() {
		return shared.InvalidInput("antifraud.type", "must be IDPAY, THREEDS or CLEARSALE")
	}
	return nil
}
