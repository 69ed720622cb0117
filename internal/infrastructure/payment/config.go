package payment

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

const (
	gatewayProductionURL   = "https://api.rykonpay.com.br"
	gatewaySandboxURL      = "https://sandbox.rykonpay.com.br"
	antifraudProductionURL = "https://antifraud.rykonpay.com.br"
	antifraudSandboxURL    = "https://antifraud-sandbox.rykonpay.com.br"
)

// Errors for configuration validation
var (
	ErrMissingAPIKey  = errors.New("payment: missing API key")
	ErrInvalidBaseURL = errors.New("payment: invalid base URL")
	ErrInvalidRate    = errors.New("payment: rate limit must be positive")
)

// GatewayConfig configures the card gateway client.
type GatewayConfig struct {
	// BaseURL overrides the environment URL selected by Sandbox.
	BaseURL string
	APIKey  string
	// Timeout bounds a single HTTP exchange. Callers normally pass a
	// shorter context deadline.
	Timeout time.Duration
	// RatePerSecond and Burst throttle outbound requests.
	RatePerSecond float64
	Burst         int
	Sandbox       bool
}

// Validate validates the configuration and fills defaults.
func (c *GatewayConfig) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.BaseURL == "" {
		c.BaseURL = gatewayProductionURL
		if c.Sandbox {
			c.BaseURL = gatewaySandboxURL
		}
	}
	if err := validateBaseURL(c.BaseURL); err != nil {
		return err
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RatePerSecond < 0 || c.Burst < 0 {
		return ErrInvalidRate
	}
	if c.RatePerSecond == 0 {
		c.RatePerSecond = 10
	}
	if c.Burst == 0 {
		c.Burst = 5
	}
	return nil
}

// AntifraudConfig configures the antifraud client.
type AntifraudConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Sandbox bool
}

// Validate validates the configuration and fills defaults.
func (c *AntifraudConfig) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.BaseURL == "" {
		c.BaseURL = antifraudProductionURL
		if c.Sandbox {
			c.BaseURL = antifraudSandboxURL
		}
	}
	if err := validateBaseURL(c.BaseURL); err != nil {
		return err
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidBaseURL
	}
	return nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
