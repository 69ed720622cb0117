package printing

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/academy/billing/internal/domain/document"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TemplateEngine renders the document templates to HTML. Values are
// formatted for pt-BR.
type TemplateEngine struct {
	templates map[document.Kind]*template.Template
	loc       *time.Location
}

// TemplateEngineOption configures the template engine
type TemplateEngineOption func(*TemplateEngine)

// WithLocation sets the timezone dates are printed in.
func WithLocation(loc *time.Location) TemplateEngineOption {
	return func(e *TemplateEngine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithTemplate overrides the template of kind. It panics when content
// does not parse, like template.Must.
func WithTemplate(kind document.Kind, content string) TemplateEngineOption {
	return func(e *TemplateEngine) {
		e.templates[kind] = template.Must(template.New(string(kind)).Funcs(e.funcMap()).Parse(content))
	}
}

// NewTemplateEngine creates an engine with the built-in contract and
// receipt templates.
func NewTemplateEngine(opts ...TemplateEngineOption) *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[document.Kind]*template.Template),
		loc:       time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	if _, ok := e.templates[document.KindContract]; !ok {
		e.templates[document.KindContract] = template.Must(template.New("contract").Funcs(e.funcMap()).Parse(contractTemplate))
	}
	if _, ok := e.templates[document.KindReceipt]; !ok {
		e.templates[document.KindReceipt] = template.Must(template.New("receipt").Funcs(e.funcMap()).Parse(receiptTemplate))
	}
	return e
}

// RenderHTML executes the template of kind with data.
func (e *TemplateEngine) RenderHTML(kind document.Kind, data any) (string, error) {
	tmpl, ok := e.templates[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", document.ErrUnknownKind, kind)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", NewRenderError(ErrCodeRenderFailed, "failed to execute template", err)
	}
	return buf.String(), nil
}

func (e *TemplateEngine) funcMap() template.FuncMap {
	return template.FuncMap{
		"money":      formatMoney,
		"percent":    formatPercent,
		"date":       func(t time.Time) string { return e.formatDate(t) },
		"dateTime":   func(t time.Time) string { return e.formatDateTime(t) },
		"datePtr":    func(t *time.Time) string { return e.formatDatePtr(t) },
		"title":      titleCase,
		"upper":      strings.ToUpper,
		"paragraphs": paragraphs,
		"method":     paymentMethodLabel,
	}
}

var titleCaser = cases.Title(language.BrazilianPortuguese)

func titleCase(s string) string {
	return titleCaser.String(strings.ToLower(s))
}

// formatMoney formats an amount as Brazilian reais.
// Example: 1234.5 -> "R$ 1.234,50"
func formatMoney(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	parts := strings.SplitN(d.StringFixed(2), ".", 2)
	return sign + "R$ " + groupThousands(parts[0], '.') + "," + parts[1]
}

// formatPercent prints a percentage with a comma decimal separator.
// Example: 2.5 -> "2,50%"
func formatPercent(d decimal.Decimal) string {
	return strings.Replace(d.StringFixed(2), ".", ",", 1) + "%"
}

func groupThousands(digits string, sep byte) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func (e *TemplateEngine) formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(e.loc).Format("02/01/2006")
}

func (e *TemplateEngine) formatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(e.loc).Format("02/01/2006 15:04")
}

func (e *TemplateEngine) formatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return e.formatDate(*t)
}

// paragraphs splits a body on blank lines.
func paragraphs(body string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func paymentMethodLabel(m string) string {
	switch m {
	case "CARTAO":
		return "Cartão de crédito"
	case "PIX":
		return "PIX"
	case "BOLETO":
		return "Boleto"
	case "DINHEIRO":
		return "Dinheiro"
	case "TRANSFERENCIA":
		return "Transferência"
	}
	return m
}
