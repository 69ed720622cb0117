package shared

import (
	"errors"
	"fmt"
)

// Error codes shared by every bounded context. HTTP and CLI layers map
// these to transport-level statuses.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeInvalidState    = "INVALID_STATE"
	CodeInvalidInput    = "INVALID_INPUT"
	CodeForbidden       = "FORBIDDEN"
	CodePaymentDeclined = "PAYMENT_DECLINED"
	CodeGatewayTimeout  = "GATEWAY_TIMEOUT"
	CodeConcurrency     = "CONCURRENCY_CONFLICT"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches any DomainError carrying the same code, so wrapped
// errors built with NewDomainError compare equal to the sentinels below.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrConflict            = NewDomainError(CodeConflict, "Resource conflicts with existing state")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrInvalidInput        = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrForbidden           = NewDomainError(CodeForbidden, "Access to this resource is forbidden")
	ErrGatewayTimeout      = NewDomainError(CodeGatewayTimeout, "External provider did not answer in time")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrency, "Resource was modified by another process")
)

// NotFound builds a NOT_FOUND error naming the missing resource.
func NotFound(resource string) *DomainError {
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

// Conflict builds a CONFLICT error.
func Conflict(message string) *DomainError {
	return NewDomainError(CodeConflict, message)
}

// InvalidState builds an INVALID_STATE error.
func InvalidState(message string) *DomainError {
	return NewDomainError(CodeInvalidState, message)
}

// InvalidInput builds an INVALID_INPUT error naming the offending field.
func InvalidInput(field, message string) *DomainError {
	return NewDomainError(CodeInvalidInput, fmt.Sprintf("%s: %s", field, message))
}

// Forbidden builds a FORBIDDEN error.
func Forbidden(message string) *DomainError {
	return NewDomainError(CodeForbidden, message)
}

// GatewayTimeout builds a GATEWAY_TIMEOUT error naming the provider.
func GatewayTimeout(provider string) *DomainError {
	return NewDomainError(CodeGatewayTimeout, fmt.Sprintf("%s did not answer in time; outcome unknown, retry manually", provider))
}

// PaymentDeclinedError is returned when the gateway or the antifraud
// provider rejects a charge. ReasonCode is the provider's own code.
type PaymentDeclinedError struct {
	DomainError
	ReasonCode string `json:"reason_code"`
}

// Unwrap exposes the embedded DomainError to errors.As.
func (e *PaymentDeclinedError) Unwrap() error {
	return &e.DomainError
}

// NewPaymentDeclined creates a PAYMENT_DECLINED error with a reason code.
func NewPaymentDeclined(reasonCode, message string) *PaymentDeclinedError {
	if message == "" {
		message = "payment declined"
	}
	return &PaymentDeclinedError{
		DomainError: DomainError{Code: CodePaymentDeclined, Message: fmt.Sprintf("%s (%s)", message, reasonCode)},
		ReasonCode:  reasonCode,
	}
}

// HasCode reports whether err is a DomainError with the given code.
func HasCode(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

func IsNotFound(err error) bool     { return HasCode(err, CodeNotFound) }
func IsConflict(err error) bool     { return HasCode(err, CodeConflict) }
func IsInvalidState(err error) bool { return HasCode(err, CodeInvalidState) }
func IsInvalidInput(err error) bool { return HasCode(err, CodeInvalidInput) }
func IsForbidden(err error) bool    { return HasCode(err, CodeForbidden) }
func IsGatewayTimeout(err error) bool {
	return HasCode(err, CodeGatewayTimeout)
}

// IsPaymentDeclined reports whether err is a PaymentDeclinedError and
// returns its reason code.
func IsPaymentDeclined(err error) (string, bool) {
	var pd *PaymentDeclinedError
	if errors.As(err, &pd) {
		return pd.ReasonCode, true
	}
	return "", false
}
