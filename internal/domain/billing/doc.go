// Package billing holds the recurring billing model of the academy: the
// subscription a payer keeps for a student, the invoices issued for each
// monthly period, and the card token used to charge them.
//
// Subscription status moves ATIVA -> PAUSADA/INADIMPLENTE/EXPIRADA/CANCELADA.
// Three consecutive charge failures mark it INADIMPLENTE; a newly validated
// card reactivates it. CANCELADA and EXPIRADA are terminal.
//
// Invoices are PENDENTE until paid (PAGA), overdue (ATRASADA) or cancelled
// (CANCELADA). Cancelled invoices are kept; they only stop counting toward
// the one-invoice-per-period rule.
//
// The payment gateway and antifraud provider are ports implemented under
// infrastructure/payment.
package billing
