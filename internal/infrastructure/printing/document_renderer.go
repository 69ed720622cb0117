package printing

import (
	"context"
	"errors"
	"fmt"

	"github.com/academy/billing/internal/domain/document"
)

// DocumentRenderer implements document.Renderer by rendering the kind's
// template and printing it to PDF.
type DocumentRenderer struct {
	templates *TemplateEngine
	pdf       PDFRenderer
}

var _ document.Renderer = (*DocumentRenderer)(nil)

// NewDocumentRenderer creates a DocumentRenderer
func NewDocumentRenderer(templates *TemplateEngine, pdf PDFRenderer) *DocumentRenderer {
	return &DocumentRenderer{templates: templates, pdf: pdf}
}

// Render renders data, which must be document.ContractData for
// KindContract and document.ReceiptData for KindReceipt.
func (r *DocumentRenderer) Render(ctx context.Context, kind document.Kind, data any) ([]byte, error) {
	title, err := checkData(kind, data)
	if err != nil {
		return nil, err
	}
	html, err := r.templates.RenderHTML(kind, data)
	if err != nil {
		return nil, err
	}
	res, err := r.pdf.Render(ctx, &RenderRequest{
		HTML:       html,
		Title:      title,
		Margins:    DefaultMargins(),
		FooterHTML: `<div style="font-size:8px;width:100%;text-align:center;"><span class="pageNumber"></span>/<span class="totalPages"></span></div>`,
	})
	if err != nil {
		var re *RenderError
		if errors.As(err, &re) && re.Code == ErrCodeRenderTimeout {
			return nil, fmt.Errorf("%w: %v", document.ErrRenderTimeout, err)
		}
		return nil, err
	}
	return res.PDFData, nil
}

func checkData(kind document.Kind, data any) (string, error) {
	switch kind {
	case document.KindContract:
		d, ok := data.(document.ContractData)
		if !ok {
			return "", NewRenderError(ErrCodeInvalidData, fmt.Sprintf("contract needs ContractData, got %T", data), nil)
		}
		return d.Title, nil
	case document.KindReceipt:
		d, ok := data.(document.ReceiptData)
		if !ok {
			return "", NewRenderError(ErrCodeInvalidData, fmt.Sprintf("receipt needs ReceiptData, got %T", data), nil)
		}
		return "Recibo " + d.Number, nil
	}
	return "", fmt.Errorf("%w: %s", document.ErrUnknownKind, kind)
}
