package contract

import (
	"time"

	"github.com/academy/billing/internal/domain/contract"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FieldsInput carries the editable contract fields.
type FieldsInput struct {
	Title                 string
	Body                  string
	ValidFrom             time.Time
	ValidUntil            *time.Time
	MonthlyValue          decimal.Decimal
	TransactionFeePercent decimal.Decimal
}

func (in FieldsInput) toDomain() contract.Fields {
	return contract.Fields(in)
}

// CreateContractRequest creates a new contract group.
type CreateContractRequest struct {
	UnitID uuid.UUID
	Type   string
	Fields FieldsInput
	// Draft leaves the contract PENDING instead of activating it.
	Draft     bool
	CreatedBy uuid.UUID
}

// SignRequest carries the signer and where the signature came from.
type SignRequest struct {
	SignerID       uuid.UUID
	SignerType     contract.SignerType
	SignerName     string
	SignerDocument string
	IPAddress      string
	UserAgent      string
}

// ListContractsFilter narrows contract listings.
type ListContractsFilter struct {
	Page     int
	PageSize int
	OrderBy  string
	OrderDir string
	Type     string
	Status   contract.Status
}

// ContractResponse is the read model of a contract revision.
type ContractResponse struct {
	ID                    uuid.UUID       `json:"id"`
	GroupID               uuid.UUID       `json:"group_id"`
	UnitID                uuid.UUID       `json:"unit_id"`
	Type                  string          `json:"type"`
	Revision              int             `json:"revision"`
	Version               string          `json:"version"`
	Status                string          `json:"status"`
	Title                 string          `json:"title"`
	Body                  string          `json:"body"`
	ValidFrom             time.Time       `json:"valid_from"`
	ValidUntil            *time.Time      `json:"valid_until,omitempty"`
	MonthlyValue          decimal.Decimal `json:"monthly_value"`
	TransactionFeePercent decimal.Decimal `json:"transaction_fee_percent"`
	Signed                bool            `json:"signed"`
	SignerName            string          `json:"signer_name,omitempty"`
	SignedAt              *time.Time      `json:"signed_at,omitempty"`
	SupersededBy          *uuid.UUID      `json:"superseded_by,omitempty"`
	CancelReason          string          `json:"cancel_reason,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// ToContractResponse converts a domain contract to its read model.
func ToContractResponse(c *contract.Contract) ContractResponse {
	return ContractResponse{
		ID:                    c.ID,
		GroupID:               c.GroupID,
		UnitID:                c.UnitID,
		Type:                  c.Type,
		Revision:              c.Revision,
		Version:               c.VersionLabel(),
		Status:                string(c.Status),
		Title:                 c.Fields.Title,
		Body:                  c.Fields.Body,
		ValidFrom:             c.Fields.ValidFrom,
		ValidUntil:            c.Fields.ValidUntil,
		MonthlyValue:          c.Fields.MonthlyValue,
		TransactionFeePercent: c.Fields.TransactionFeePercent,
		Signed:                c.Signed,
		SignerName:            c.SignerName,
		SignedAt:              c.SignedAt,
		SupersededBy:          c.SupersededBy,
		CancelReason:          c.CancelReason,
		CreatedAt:             c.CreatedAt,
		UpdatedAt:             c.UpdatedAt,
	}
}

// SignatureResponse is the read model of a signature record.
type SignatureResponse struct {
	ID             uuid.UUID `json:"id"`
	ContractID     uuid.UUID `json:"contract_id"`
	SignerID       uuid.UUID `json:"signer_id"`
	SignerType     string    `json:"signer_type"`
	SignerName     string    `json:"signer_name"`
	RevisionSigned int       `json:"revision_signed"`
	SignedAt       time.Time `json:"signed_at"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
}

// ToSignatureResponse converts a signature record. The signer document
// is left out of the read model.
func ToSignatureResponse(s *contract.Signature) SignatureResponse {
	return SignatureResponse{
		ID:             s.ID,
		ContractID:     s.ContractID,
		SignerID:       s.SignerID,
		SignerType:     string(s.SignerType),
		SignerName:     s.SignerName,
		RevisionSigned: s.RevisionSigned,
		SignedAt:       s.SignedAt,
		IPAddress:      s.IPAddress,
		UserAgent:      s.UserAgent,
	}
}

// SignatureStatusResponse tells a signer whether the active revision
// still needs their signature.
type SignatureStatusResponse struct {
	ContractID     uuid.UUID  `json:"contract_id"`
	ActiveVersion  int        `json:"active_version"`
	SignedVersion  int        `json:"signed_version"`
	Pending        bool       `json:"pending"`
	LastSignedAt   *time.Time `json:"last_signed_at,omitempty"`
}
