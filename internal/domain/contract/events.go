package contract

import (
	"time"

	"github.com/academy/billing/internal/domain/shared"
	"github.com/google/uuid"
)

const (
	EventTypeContractCreated   = "ContractCreated"
	EventTypeContractActivated = "ContractActivated"
	EventTypeContractRevised   = "ContractRevised"
	EventTypeContractSigned    = "ContractSigned"
	EventTypeContractCancelled = "ContractCancelled"
)

// ContractCreatedEvent is raised when a new contract group is created
type ContractCreatedEvent struct {
	shared.BaseDomainEvent
	UnitID uuid.UUID `json:"unit_id"`
	Type   string    `json:"type"`
}

func NewContractCreatedEvent(c *Contract, at time.Time) *ContractCreatedEvent {
	return &ContractCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeContractCreated, AggregateTypeContract, c.ID, c.TenantID, at),
		UnitID:          c.UnitID,
		Type:            c.Type,
	}
}

// ContractActivatedEvent is raised when a revision becomes ACTIVE
type ContractActivatedEvent struct {
	shared.BaseDomainEvent
	UnitID   uuid.UUID `json:"unit_id"`
	Revision int       `json:"revision"`
}

func NewContractActivatedEvent(c *Contract, at time.Time) *ContractActivatedEvent {
	return &ContractActivatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeContractActivated, AggregateTypeContract, c.ID, c.TenantID, at),
		UnitID:          c.UnitID,
		Revision:        c.Revision,
	}
}

// ContractRevisedEvent is raised when an edit forks a new revision
type ContractRevisedEvent struct {
	shared.BaseDomainEvent
	GroupID          uuid.UUID `json:"group_id"`
	Revision         int       `json:"revision"`
	PreviousRevision int       `json:"previous_revision"`
}

func NewContractRevisedEvent(c *Contract, previous int, at time.Time) *ContractRevisedEvent {
	return &ContractRevisedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeContractRevised, AggregateTypeContract, c.ID, c.TenantID, at),
		GroupID:          c.GroupID,
		Revision:         c.Revision,
		PreviousRevision: previous,
	}
}

// ContractSignedEvent is raised on a successful signature
type ContractSignedEvent struct {
	shared.BaseDomainEvent
	SignatureID uuid.UUID `json:"signature_id"`
	SignerName  string    `json:"signer_name"`
	Revision    int       `json:"revision"`
}

func NewContractSignedEvent(c *Contract, s *Signature, at time.Time) *ContractSignedEvent {
	return &ContractSignedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeContractSigned, AggregateTypeContract, c.ID, c.TenantID, at),
		SignatureID:     s.ID,
		SignerName:      s.SignerName,
		Revision:        s.RevisionSigned,
	}
}

// ContractCancelledEvent is raised when a contract is cancelled
type ContractCancelledEvent struct {
	shared.BaseDomainEvent
	Reason string `json:"reason"`
}

func NewContractCancelledEvent(c *Contract, at time.Time) *ContractCancelledEvent {
	return &ContractCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeContractCancelled, AggregateTypeContract, c.ID, c.TenantID, at),
		Reason:          c.CancelReason,
	}
}
