package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Outcome values recorded on payment and job metrics.
const (
	OutcomeApproved = "approved"
	OutcomeDeclined = "declined"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
)

// BillingMetrics records billing-level counters. A nil *BillingMetrics is
// valid and records nothing.
type BillingMetrics struct {
	invoicesGenerated *Counter
	invoicesSkipped   *Counter
	paymentOutcomes   *Counter
	delinquencies     *Counter
	cardValidations   *Counter
	externalLatency   *Histogram
	jobDuration       *Histogram
}

// NewBillingMetrics registers the billing instruments on meter.
func NewBillingMetrics(meter metric.Meter) (*BillingMetrics, error) {
	var (
		m   BillingMetrics
		err error
	)
	if m.invoicesGenerated, err = NewCounter(meter, "billing_invoices_generated_total", "Invoices created by period generation", "{invoices}"); err != nil {
		return nil, err
	}
	if m.invoicesSkipped, err = NewCounter(meter, "billing_invoices_skipped_total", "Subscriptions skipped by period generation", "{subscriptions}"); err != nil {
		return nil, err
	}
	if m.paymentOutcomes, err = NewCounter(meter, "billing_payment_outcomes_total", "Recorded payment outcomes", "{payments}"); err != nil {
		return nil, err
	}
	if m.delinquencies, err = NewCounter(meter, "billing_delinquencies_total", "Subscriptions moved to delinquent", "{subscriptions}"); err != nil {
		return nil, err
	}
	if m.cardValidations, err = NewCounter(meter, "billing_card_validations_total", "Card validation attempts", "{validations}"); err != nil {
		return nil, err
	}
	if m.externalLatency, err = NewHistogram(meter, "billing_external_call_duration_seconds", "Gateway, antifraud and renderer call latency", "s", ExternalCallBuckets); err != nil {
		return nil, err
	}
	if m.jobDuration, err = NewHistogram(meter, "billing_job_duration_seconds", "Scheduled job duration", "s", JobDurationBuckets); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordGeneration records the result of one period generation run.
func (m *BillingMetrics) RecordGeneration(ctx context.Context, created, skipped int) {
	if m == nil {
		return
	}
	m.invoicesGenerated.Add(ctx, int64(created))
	m.invoicesSkipped.Add(ctx, int64(skipped))
}

// RecordPaymentOutcome counts a payment success or failure.
func (m *BillingMetrics) RecordPaymentOutcome(ctx context.Context, method string, success bool) {
	if m == nil {
		return
	}
	outcome := OutcomeApproved
	if !success {
		outcome = OutcomeDeclined
	}
	m.paymentOutcomes.Inc(ctx, AttrPaymentMethod.String(method), AttrOutcome.String(outcome))
}

// RecordDelinquency counts a subscription reaching the retry limit.
func (m *BillingMetrics) RecordDelinquency(ctx context.Context) {
	if m == nil {
		return
	}
	m.delinquencies.Inc(ctx)
}

// RecordCardValidation counts a vault validation by outcome.
func (m *BillingMetrics) RecordCardValidation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.cardValidations.Inc(ctx, AttrOutcome.String(outcome))
}

// RecordExternalCall records the latency of an outbound provider call.
func (m *BillingMetrics) RecordExternalCall(ctx context.Context, provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.externalLatency.RecordDuration(ctx, d, AttrProvider.String(provider), AttrOutcome.String(outcome))
}

// RecordJob records how long a scheduled job took.
func (m *BillingMetrics) RecordJob(ctx context.Context, job string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = OutcomeError
	}
	m.jobDuration.RecordDuration(ctx, d, AttrJob.String(job), AttrOutcome.String(outcome))
}
