// Package contract models unit-level legal agreements. Contracts are
// append-only: editing forks a new revision within the same group and
// expires the previous one, so every signature stays tied to the exact
// text that was signed.
package contract

import (
	"fmt"
	"strings"
	"time"

	"github.com/academy/billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeContract is the aggregate type name used in events.
const AggregateTypeContract = "Contract"

// DefaultType is used when a caller does not name a contract type.
const DefaultType = "standard"

// Status represents the lifecycle state of a contract revision
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// IsValid checks if the status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// IsTerminal returns true for revisions that can no longer change
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusExpired
}

func (s Status) String() string { return string(s) }

// NormalizeType lowercases and trims a contract type, defaulting to
// DefaultType.
func NormalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return DefaultType
	}
	return t
}

// Fields are the editable parts of a contract.
type Fields struct {
	Title                 string
	Body                  string
	ValidFrom             time.Time
	ValidUntil            *time.Time
	MonthlyValue          decimal.Decimal
	TransactionFeePercent decimal.Decimal
}

// Validate checks the editable fields.
func (f Fields) Validate() error {
	if strings.TrimSpace(f.Title) == "" {
		return shared.InvalidInput("title", "cannot be empty")
	}
	if len(f.Title) > 200 {
		return shared.InvalidInput("title", "cannot exceed 200 characters")
	}
	if strings.TrimSpace(f.Body) == "" {
		return shared.InvalidInput("body", "cannot be empty")
	}
	if f.MonthlyValue.IsNegative() {
		return shared.InvalidInput("monthly_value", "cannot be negative")
	}
	if f.TransactionFeePercent.IsNegative() || f.TransactionFeePercent.GreaterThan(decimal.NewFromInt(100)) {
		return shared.InvalidInput("transaction_fee_percent", "must be between 0 and 100")
	}
	if f.ValidUntil != nil && !f.ValidFrom.IsZero() && f.ValidUntil.Before(f.ValidFrom) {
		return shared.InvalidInput("valid_until", "must not be before valid_from")
	}
	return nil
}

// Contract is a single revision of a unit contract.
type Contract struct {
	shared.TenantAggregateRoot
	GroupID        uuid.UUID
	Revision       int
	UnitID         uuid.UUID
	Type           string
	Fields         Fields
	Status         Status
	Signed         bool
	SignerName     string
	SignerDocument string
	SignedAt       *time.Time
	SupersededBy   *uuid.UUID
	CancelReason   string
	CancelledAt    *time.Time
}

// NewContract creates revision 1 of a new contract group in PENDING state.
func NewContract(tenantID, unitID uuid.UUID, contractType string, fields Fields, now time.Time) (*Contract, error) {
	if unitID == uuid.Nil {
		return nil, shared.InvalidInput("unit_id", "cannot be empty")
	}
	if fields.ValidFrom.IsZero() {
		fields.ValidFrom = now
	}
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	c := &Contract{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID, now),
		Revision:            1,
		UnitID:              unitID,
		Type:                NormalizeType(contractType),
		Fields:              fields,
		Status:              StatusPending,
	}
	c.GroupID = c.ID
	c.AddDomainEvent(NewContractCreatedEvent(c, now))
	return c, nil
}

// VersionLabel renders the revision the way documents print it.
func (c *Contract) VersionLabel() string {
	return fmt.Sprintf("%d.0", c.Revision)
}

// Activate moves a PENDING contract to ACTIVE. The caller is responsible
// for checking that no other ACTIVE revision exists for the unit and type.
func (c *Contract) Activate(now time.Time) error {
	if c.Status != StatusPending {
		return shared.InvalidState(fmt.Sprintf("cannot activate contract in %s status", c.Status))
	}
	c.Status = StatusActive
	c.Touch(now)
	c.IncrementVersion()
	c.AddDomainEvent(NewContractActivatedEvent(c, now))
	return nil
}

// Sign records a signature against the current revision.
func (c *Contract) Sign(signer Signer, origin Origin, now time.Time) (*Signature, error) {
	if c.Signed {
		return nil, shared.InvalidState("contract has already been signed")
	}
	if c.Status != StatusActive {
		return nil, shared.InvalidState("only active contracts can be signed")
	}
	if err := signer.Validate(); err != nil {
		return nil, err
	}
	c.Signed = true
	c.SignerName = strings.TrimSpace(signer.Name)
	c.SignerDocument = strings.TrimSpace(signer.Document)
	c.SignedAt = &now
	c.Touch(now)
	c.IncrementVersion()

	sig := newSignature(c, signer, origin, now)
	c.AddDomainEvent(NewContractSignedEvent(c, sig, now))
	return sig, nil
}

// Fork creates the next revision with the given fields and expires this
// one. The new revision inherits this revision's status and starts
// unsigned.
func (c *Contract) Fork(fields Fields, now time.Time) (*Contract, error) {
	if c.Status.IsTerminal() {
		return nil, shared.InvalidState(fmt.Sprintf("cannot edit contract in %s status", c.Status))
	}
	if fields.ValidFrom.IsZero() {
		fields.ValidFrom = c.Fields.ValidFrom
	}
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	next := &Contract{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(c.TenantID, now),
		GroupID:             c.GroupID,
		Revision:            c.Revision + 1,
		UnitID:              c.UnitID,
		Type:                c.Type,
		Fields:              fields,
		Status:              c.Status,
	}
	next.CreatedBy = c.CreatedBy

	c.Status = StatusExpired
	c.SupersededBy = &next.ID
	c.Touch(now)
	c.IncrementVersion()

	next.AddDomainEvent(NewContractRevisedEvent(next, c.Revision, now))
	return next, nil
}

// Cancel cancels a PENDING or ACTIVE contract.
func (c *Contract) Cancel(reason string, now time.Time) error {
	if strings.TrimSpace(reason) == "" {
		return shared.InvalidInput("reason", "cancellation reason is required")
	}
	if c.Status.IsTerminal() {
		return shared.InvalidState(fmt.Sprintf("cannot cancel contract in %s status", c.Status))
	}
	c.Status = StatusCancelled
	c.CancelReason = strings.TrimSpace(reason)
	c.CancelledAt = &now
	c.Touch(now)
	c.IncrementVersion()
	c.AddDomainEvent(NewContractCancelledEvent(c, now))
	return nil
}
