package contract

import (
	"strings"
	"time"

	"github.com/academy/billing/internal/domain/shared"
	"github.com/google/uuid"
)

// SignerType identifies who signed a contract.
type SignerType string

const (
	SignerUnitAdmin  SignerType = "UNIT_ADMIN"
	SignerFranchisee SignerType = "FRANCHISEE"
	SignerManager    SignerType = "MANAGER"
	SignerStudent    SignerType = "STUDENT"
	SignerGuardian   SignerType = "GUARDIAN"
)

// IsValid checks if the signer type is valid
func (t SignerType) IsValid() bool {
	switch t {
	case SignerUnitAdmin, SignerFranchisee, SignerManager, SignerStudent, SignerGuardian:
		return true
	}
	return false
}

// Signer identifies the person signing.
type Signer struct {
	ID       uuid.UUID
	Type     SignerType
	Name     string
	Document string
}

// Validate checks the signer fields.
func (s Signer) Validate() error {
	name := strings.TrimSpace(s.Name)
	if len(name) < 3 {
		return shared.InvalidInput("signer_name", "must have at least 3 characters")
	}
	if strings.TrimSpace(s.Document) == "" {
		return shared.InvalidInput("signer_document", "cannot be empty")
	}
	if s.Type != "" && !s.Type.IsValid() {
		return shared.InvalidInput("signer_type", "unknown signer type "+string(s.Type))
	}
	return nil
}

// Origin captures where a signature came from.
type Origin struct {
	IPAddress string
	UserAgent string
}

// Signature is an immutable audit record of one successful signing.
type Signature struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	ContractID     uuid.UUID
	GroupID        uuid.UUID
	SignerID       uuid.UUID
	SignerType     SignerType
	SignerName     string
	SignerDocument string
	RevisionSigned int
	SignedAt       time.Time
	IPAddress      string
	UserAgent      string
	Accepted       bool
}

func newSignature(c *Contract, signer Signer, origin Origin, now time.Time) *Signature {
	st := signer.Type
	if st == "" {
		st = SignerUnitAdmin
	}
	return &Signature{
		ID:             uuid.New(),
		TenantID:       c.TenantID,
		ContractID:     c.ID,
		GroupID:        c.GroupID,
		SignerID:       signer.ID,
		SignerType:     st,
		SignerName:     strings.TrimSpace(signer.Name),
		SignerDocument: strings.TrimSpace(signer.Document),
		RevisionSigned: c.Revision,
		SignedAt:       now,
		IPAddress:      origin.IPAddress,
		UserAgent:      truncate(origin.UserAgent, 500),
		Accepted:       true,
	}
}

// SignatureStatus tells whether a signer still owes a signature on the
// active revision of a contract group.
type SignatureStatus struct {
	ContractID     uuid.UUID
	ActiveRevision int
	SignedRevision int
	Pending        bool
	LastSignedAt   *time.Time
}

// StatusFor computes the SignatureStatus of signerID against active from
// the group's signature history.
func StatusFor(active *Contract, history []Signature, signerID uuid.UUID) SignatureStatus {
	st := SignatureStatus{ContractID: active.ID, ActiveRevision: active.Revision}
	for i := range history {
		s := history[i]
		if s.SignerID != signerID || !s.Accepted {
			continue
		}
		if s.RevisionSigned >= st.SignedRevision {
			st.SignedRevision = s.RevisionSigned
			st.LastSignedAt = &history[i].SignedAt
		}
	}
	st.Pending = st.SignedRevision < active.Revision
	return st
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
