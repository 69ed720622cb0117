package contract

import (
	"fmt"
	"html"
	"time"

	"github.com/shopspring/decimal"
)

// Template describes the default contract synthesized for a unit when no
// ACTIVE contract of a type exists yet.
type Template struct {
	Title                 string
	Clauses               []Clause
	TransactionFeePercent decimal.Decimal
}

// Clause is one titled section of a contract body.
type Clause struct {
	Heading string
	Text    string
}

var templates = map[string]Template{
	"rykon-pay": {
		Title: "CONTRATO DE PRESTAÇÃO DE SERVIÇOS - RYKON-PAY",
		Clauses: []Clause{
			{"CLÁUSULA PRIMEIRA - DO OBJETO", "A CONTRATADA fornecerá à CONTRATANTE acesso à plataforma de pagamentos, com processamento via cartão de crédito, débito e PIX, gestão financeira integrada e controle de recebíveis."},
			{"CLÁUSULA SEGUNDA - DAS TAXAS", "Taxa padrão de 2,5% por transação, acrescida das taxas operacionais dos gateways de pagamento."},
			{"CLÁUSULA TERCEIRA - DA VIGÊNCIA", "Este contrato entra em vigor na data de sua assinatura e vigorará por prazo indeterminado."},
			{"CLÁUSULA QUARTA - DA RESCISÃO", "Qualquer das partes poderá rescindir o presente contrato mediante notificação prévia de 30 (trinta) dias."},
		},
		TransactionFeePercent: decimal.RequireFromString("2.5"),
	},
	"standard": {
		Title: "CONTRATO DE PRESTAÇÃO DE SERVIÇOS",
		Clauses: []Clause{
			{"CLÁUSULA PRIMEIRA - DO OBJETO", "Prestação de serviços de ensino e treinamento nas dependências da unidade."},
			{"CLÁUSULA SEGUNDA - DO PAGAMENTO", "As mensalidades vencem no dia de cobrança escolhido na assinatura do plano."},
			{"CLÁUSULA TERCEIRA - DA RESCISÃO", "A rescisão pode ser solicitada a qualquer tempo, sem multa, com efeito a partir do ciclo seguinte."},
		},
		TransactionFeePercent: decimal.Zero,
	},
	"franchise": {
		Title: "CONTRATO DE FRANQUIA",
		Clauses: []Clause{
			{"CLÁUSULA PRIMEIRA - DO OBJETO", "Concessão do direito de uso da marca e da metodologia na unidade franqueada."},
			{"CLÁUSULA SEGUNDA - DOS ROYALTIES", "Os royalties são apurados mensalmente conforme o valor mensal deste contrato."},
		},
		TransactionFeePercent: decimal.Zero,
	},
	"adhesion": {
		Title: "TERMO DE ADESÃO",
		Clauses: []Clause{
			{"CLÁUSULA ÚNICA - DA ADESÃO", "O aderente declara conhecer e aceitar o regulamento interno da unidade."},
		},
		TransactionFeePercent: decimal.Zero,
	},
}

// TemplateFor returns the template registered for contractType, falling
// back to the standard template.
func TemplateFor(contractType string) Template {
	if t, ok := templates[NormalizeType(contractType)]; ok {
		return t
	}
	return templates[DefaultType]
}

// DefaultFields renders the template for a unit into contract fields.
func DefaultFields(contractType, unitName string, now time.Time) Fields {
	t := TemplateFor(contractType)
	body := fmt.Sprintf("<h1>%s</h1>\n<p>Pelo presente instrumento particular, as partes:</p>\n<h3>CONTRATANTE:</h3>\n<p><strong>%s</strong>, doravante denominada CONTRATANTE.</p>\n",
		html.EscapeString(t.Title), html.EscapeString(unitName))
	for _, c := range t.Clauses {
		body += fmt.Sprintf("<h3>%s</h3>\n<p>%s</p>\n", html.EscapeString(c.Heading), html.EscapeString(c.Text))
	}
	body += "<p>E por estarem assim justas e contratadas, assinam o presente instrumento.</p>\n"
	return Fields{
		Title:                 t.Title,
		Body:                  body,
		ValidFrom:             now,
		MonthlyValue:          decimal.Zero,
		TransactionFeePercent: t.TransactionFeePercent,
	}
}
