package printing

const documentStyle = `<style>
body { font-family: "Helvetica Neue", Arial, sans-serif; font-size: 11pt; color: #222; }
h1 { font-size: 16pt; margin-bottom: 4pt; }
.meta { color: #555; font-size: 9pt; margin-bottom: 16pt; }
table { width: 100%; border-collapse: collapse; margin: 12pt 0; }
td { padding: 4pt 6pt; border-bottom: 1px solid #ddd; }
td.label { color: #555; width: 40%; }
.signature { margin-top: 32pt; border-top: 1px solid #999; padding-top: 6pt; }
.pending { color: #a60; }
</style>`

const contractTemplate = `<!DOCTYPE html>
<html lang="pt-BR"><head><meta charset="UTF-8"><title>{{.Title}}</title>` + documentStyle + `</head>
<body>
<h1>{{.Title}}</h1>
<div class="meta">{{.UnitName}} &middot; Versão {{.VersionLabel}} &middot; {{title .Status}}</div>
<table>
<tr><td class="label">Mensalidade</td><td>{{money .MonthlyValue}}</td></tr>
<tr><td class="label">Taxa por transação</td><td>{{percent .TransactionFeePercent}}</td></tr>
<tr><td class="label">Vigência</td><td>{{date .ValidFrom}}{{if .ValidUntil}} a {{datePtr .ValidUntil}}{{end}}</td></tr>
</table>
{{range paragraphs .Body}}<p>{{.}}</p>
{{end}}
{{if .Signed}}<div class="signature">Assinado por {{.SignerName}} ({{.SignerDocument}}) em {{datePtr .SignedAt}}</div>
{{else}}<div class="signature pending">Aguardando assinatura</div>
{{end}}
</body></html>`

const receiptTemplate = `<!DOCTYPE html>
<html lang="pt-BR"><head><meta charset="UTF-8"><title>Recibo {{.Number}}</title>` + documentStyle + `</head>
<body>
<h1>Recibo de pagamento</h1>
<div class="meta">{{.UnitName}} &middot; Fatura {{.Number}}</div>
<table>
<tr><td class="label">Descrição</td><td>{{.Description}}</td></tr>
{{if .Period}}<tr><td class="label">Competência</td><td>{{.Period}}</td></tr>
{{end}}<tr><td class="label">Valor da fatura</td><td>{{money .Amount}}</td></tr>
<tr><td class="label">Valor pago</td><td>{{money .PaidAmount}}</td></tr>
<tr><td class="label">Forma de pagamento</td><td>{{method .PaymentMethod}}</td></tr>
<tr><td class="label">Vencimento</td><td>{{date .DueDate}}</td></tr>
<tr><td class="label">Pago em</td><td>{{dateTime .PaidAt}}</td></tr>
{{if .GatewayRef}}<tr><td class="label">Autenticação</td><td>{{.GatewayRef}}</td></tr>
{{end}}</table>
</body></html>`
