package persistence

import (
	"errors"
	"strings"

	"github.com/academy/billing/internal/domain/shared"
	"gorm.io/gorm"
)

// isUniqueViolation reports whether err came from a unique index.
// Translated errors are checked first; the message match covers
// dialectors that do not translate.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

// notFound maps gorm.ErrRecordNotFound to a NOT_FOUND domain error.
func notFound(err error, resource string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.NotFound(resource)
	}
	return err
}

var errStaleVersion = shared.NewDomainError(shared.CodeConcurrency, "The record has been modified by another transaction")
