package printing

import (
	"context"
	"errors"
	"testing"

	"github.com/academy/billing/internal/domain/document"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPDFRenderer struct {
	mock.Mock
}

func (m *MockPDFRenderer) Render(ctx context.Context, req *RenderRequest) (*RenderResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RenderResult), args.Error(1)
}

func (m *MockPDFRenderer) Close() error { return nil }

func TestDocumentRenderer_Render(t *testing.T) {
	receipt := document.ReceiptData{Number: "FAT-000001", PaidAmount: decimal.NewFromInt(1)}

	t.Run("prints the rendered template", func(t *testing.T) {
		pdf := new(MockPDFRenderer)
		pdf.On("Render", mock.Anything, mock.MatchedBy(func(req *RenderRequest) bool {
			return req.Title == "Recibo FAT-000001" && req.Margins == DefaultMargins() && req.FooterHTML != ""
		})).Return(&RenderResult{PDFData: []byte("%PDF")}, nil)

		out, err := NewDocumentRenderer(NewTemplateEngine(), pdf).Render(context.Background(), document.KindReceipt, receipt)
		require.NoError(t, err)
		assert.Equal(t, []byte("%PDF"), out)
		pdf.AssertExpectations(t)
	})

	t.Run("timeout maps to the document sentinel", func(t *testing.T) {
		pdf := new(MockPDFRenderer)
		pdf.On("Render", mock.Anything, mock.Anything).Return(nil, NewRenderError(ErrCodeRenderTimeout, "timed out", context.DeadlineExceeded))

		_, err := NewDocumentRenderer(NewTemplateEngine(), pdf).Render(context.Background(), document.KindReceipt, receipt)
		assert.ErrorIs(t, err, document.ErrRenderTimeout)
	})

	t.Run("other failures pass through", func(t *testing.T) {
		pdf := new(MockPDFRenderer)
		cause := NewRenderError(ErrCodeRenderFailed, "chrome crashed", nil)
		pdf.On("Render", mock.Anything, mock.Anything).Return(nil, cause)

		_, err := NewDocumentRenderer(NewTemplateEngine(), pdf).Render(context.Background(), document.KindReceipt, receipt)
		assert.True(t, errors.Is(err, cause))
		assert.False(t, errors.Is(err, document.ErrRenderTimeout))
	})

	tests := []struct {
		name string
		kind document.Kind
		data any
	}{
		{"receipt with contract data", document.KindReceipt, document.ContractData{}},
		{"contract with pointer", document.KindContract, &document.ContractData{}},
		{"nil data", document.KindContract, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pdf := new(MockPDFRenderer)
			_, err := NewDocumentRenderer(NewTemplateEngine(), pdf).Render(context.Background(), tt.kind, tt.data)
			var re *RenderError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, ErrCodeInvalidData, re.Code)
			pdf.AssertNotCalled(t, "Render", mock.Anything, mock.Anything)
		})
	}

	t.Run("unknown kind", func(t *testing.T) {
		_, err := NewDocumentRenderer(NewTemplateEngine(), new(MockPDFRenderer)).Render(context.Background(), "boleto", nil)
		assert.ErrorIs(t, err, document.ErrUnknownKind)
	})
}
