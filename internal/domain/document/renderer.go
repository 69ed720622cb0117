// Package document defines the port used to turn contracts and receipts
// into printable bytes.
package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/academy/billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind selects the template a renderer uses
type Kind string

const (
	KindContract Kind = "contract"
	KindReceipt  Kind = "receipt"
)

// ErrRenderTimeout is returned when rendering exceeded its deadline.
var ErrRenderTimeout = errors.New("document: render timed out")

// ErrUnknownKind is returned for a kind the renderer has no template for.
var ErrUnknownKind = errors.New("document: unknown kind")

// Renderer produces a document. Implementations must be read-only with
// respect to the data they are given.
type Renderer interface {
	Render(ctx context.Context, kind Kind, data any) ([]byte, error)
}

// Archive stores rendered documents under a key. Archiving is
// best-effort; callers log failures and still return the document.
type Archive interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

// ContentTypePDF is the content type of rendered documents.
const ContentTypePDF = "application/pdf"

// ContractKey is the archive key of a contract revision.
func ContractKey(groupID uuid.UUID, revision int) string {
	return fmt.Sprintf("contracts/%s/%d.pdf", groupID, revision)
}

// ReceiptKey is the archive key of an invoice receipt.
func ReceiptKey(number string) string {
	return fmt.Sprintf("receipts/%s.pdf", number)
}

// ContractData feeds the contract template.
type ContractData struct {
	ContractID            uuid.UUID
	UnitName              string
	Title                 string
	Body                  string
	VersionLabel          string
	Status                string
	MonthlyValue          decimal.Decimal
	TransactionFeePercent decimal.Decimal
	ValidFrom             time.Time
	ValidUntil            *time.Time
	Signed                bool
	SignerName            string
	SignerDocument        string
	SignedAt              *time.Time
}

// ReceiptData feeds the payment receipt template.
type ReceiptData struct {
	InvoiceID     uuid.UUID
	Number        string
	UnitName      string
	Description   string
	Period        string
	Amount        decimal.Decimal
	PaidAmount    decimal.Decimal
	PaymentMethod string
	PaidAt        time.Time
	DueDate       time.Time
	GatewayRef    string
}

// RenderWithin calls r under timeout. An exceeded deadline surfaces as a
// GATEWAY_TIMEOUT domain error.
func RenderWithin(ctx context.Context, r Renderer, timeout time.Duration, kind Kind, data any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, err := r.Render(ctx, kind, data)
	if err != nil {
		if errors.Is(err, ErrRenderTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, shared.GatewayTimeout("document renderer")
		}
		return nil, err
	}
	return out, nil
}
