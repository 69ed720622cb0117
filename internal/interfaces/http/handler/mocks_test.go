package handler

import (
	"context"
	"time"

	appbilling "github.com/academy/billing/internal/application/billing"
	appcontract "github.com/academy/billing/internal/application/contract"
	"github.com/academy/billing/internal/domain/access"
	"github.com/academy/billing/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// result returns args.Get(0) as T, or the zero T when it is nil.
func result[T any](args mock.Arguments) T {
	var zero T
	if v := args.Get(0); v != nil {
		return v.(T)
	}
	return zero
}

type MockContractService struct {
	mock.Mock
}

func (m *MockContractService) FindActive(ctx context.Context, scope access.Scope, unitID uuid.UUID, contractType string) (*appcontract.ContractResponse, error) {
	args := m.Called(ctx, scope, unitID, contractType)
	return result[*appcontract.ContractResponse](args), args.Error(1)
}

func (m *MockContractService) Create(ctx context.Context, scope access.Scope, req appcontract.CreateContractRequest) (*appcontract.ContractResponse, error) {
	args := m.Called(ctx, scope, req)
	return result[*appcontract.ContractResponse](args), args.Error(1)
}

func (m *MockContractService) Edit(ctx context.Context, scope access.Scope, id uuid.UUID, fields appcontract.FieldsInput) (*appcontract.ContractResponse, error) {
	args := m.Called(ctx, scope, id, fields)
	return result[*appcontract.ContractResponse](args), args.Error(1)
}

func (m *MockContractService) Activate(ctx context.Context, scope access.Scope, id uuid.UUID) (*appcontract.ContractResponse, error) {
	args := m.Called(ctx, scope, id)
	return result[*appcontract.ContractResponse](args), args.Error(1)
}

func (m *MockContractService) Cancel(ctx context.Context, scope access.Scope, id uuid.UUID, reason string) (*appcontract.ContractResponse, error) {
	args := m.Called(ctx, scope, id, reason)
	return result[*appcontract.ContractResponse](args), args.Error(1)
}

func (m *MockContractService) Sign(ctx context.Context, scope access.Scope, id uuid.UUID, req appcontract.SignRequest) (*appcontract.SignatureResponse, error) {
	args := m.Called(ctx, scope, id, req)
	return result[*appcontract.SignatureResponse](args), args.Error(1)
}

func (m *MockContractService) Get(ctx context.Context, scope access.Scope, id uuid.UUID) (*appcontract.ContractResponse, error) {
	args := m.Called(ctx, scope, id)
	return result[*appcontract.ContractResponse](args), args.Error(1)
}

func (m *MockContractService) List(ctx context.Context, scope access.Scope, filter appcontract.ListContractsFilter) ([]appcontract.ContractResponse, int64, error) {
	args := m.Called(ctx, scope, filter)
	return result[[]appcontract.ContractResponse](args), args.Get(1).(int64), args.Error(2)
}

func (m *MockContractService) Revisions(ctx context.Context, scope access.Scope, id uuid.UUID) ([]appcontract.ContractResponse, error) {
	args := m.Called(ctx, scope, id)
	return result[[]appcontract.ContractResponse](args), args.Error(1)
}

func (m *MockContractService) History(ctx context.Context, scope access.Scope, id uuid.UUID) ([]appcontract.SignatureResponse, error) {
	args := m.Called(ctx, scope, id)
	return result[[]appcontract.SignatureResponse](args), args.Error(1)
}

func (m *MockContractService) SignatureStatus(ctx context.Context, scope access.Scope, unitID uuid.UUID, contractType string, signerID uuid.UUID) (*appcontract.SignatureStatusResponse, error) {
	args := m.Called(ctx, scope, unitID, contractType, signerID)
	return result[*appcontract.SignatureStatusResponse](args), args.Error(1)
}

func (m *MockContractService) RenderPDF(ctx context.Context, scope access.Scope, id uuid.UUID) ([]byte, error) {
	args := m.Called(ctx, scope, id)
	return result[[]byte](args), args.Error(1)
}

type MockSubscriptionService struct {
	mock.Mock
}

func (m *MockSubscriptionService) Create(ctx context.Context, scope access.Scope, req appbilling.CreateSubscriptionRequest) (*appbilling.SubscriptionResponse, error) {
	args := m.Called(ctx, scope, req)
	return result[*appbilling.SubscriptionResponse](args), args.Error(1)
}

func (m *MockSubscriptionService) Get(ctx context.Context, scope access.Scope, id uuid.UUID) (*appbilling.SubscriptionResponse, error) {
	args := m.Called(ctx, scope, id)
	return result[*appbilling.SubscriptionResponse](args), args.Error(1)
}

func (m *MockSubscriptionService) List(ctx context.Context, scope access.Scope, filter appbilling.ListSubscriptionsFilter) ([]appbilling.SubscriptionResponse, int64, error) {
	args := m.Called(ctx, scope, filter)
	return result[[]appbilling.SubscriptionResponse](args), args.Get(1).(int64), args.Error(2)
}

func (m *MockSubscriptionService) Pause(ctx context.Context, scope access.Scope, id uuid.UUID) (*appbilling.SubscriptionResponse, error) {
	args := m.Called(ctx, scope, id)
	return result[*appbilling.SubscriptionResponse](args), args.Error(1)
}

func (m *MockSubscriptionService) Resume(ctx context.Context, scope access.Scope, id uuid.UUID) (*appbilling.SubscriptionResponse, error) {
	args := m.Called(ctx, scope, id)
	return result[*appbilling.SubscriptionResponse](args), args.Error(1)
}

func (m *MockSubscriptionService) Cancel(ctx context.Context, scope access.Scope, id uuid.UUID, reason string) (*appbilling.SubscriptionResponse, error) {
	args := m.Called(ctx, scope, id, reason)
	return result[*appbilling.SubscriptionResponse](args), args.Error(1)
}

func (m *MockSubscriptionService) Renew(ctx context.Context, scope access.Scope, id uuid.UUID, months int) (*appbilling.SubscriptionResponse, error) {
	args := m.Called(ctx, scope, id, months)
	return result[*appbilling.SubscriptionResponse](args), args.Error(1)
}

func (m *MockSubscriptionService) ChangeValue(ctx context.Context, scope access.Scope, id uuid.UUID, value decimal.Decimal, planName string) (*appbilling.SubscriptionResponse, error) {
	args := m.Called(ctx, scope, id, value, planName)
	return result[*appbilling.SubscriptionResponse](args), args.Error(1)
}

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) RecordPaymentOutcome(ctx context.Context, scope access.Scope, id uuid.UUID, outcome appbilling.PaymentOutcome) (*appbilling.PaymentOutcomeResult, error) {
	args := m.Called(ctx, scope, id, outcome)
	return result[*appbilling.PaymentOutcomeResult](args), args.Error(1)
}

func (m *MockEngine) ChargeSubscription(ctx context.Context, tenantID, id uuid.UUID) (*appbilling.ChargeRunResult, error) {
	args := m.Called(ctx, tenantID, id)
	return result[*appbilling.ChargeRunResult](args), args.Error(1)
}

func (m *MockEngine) GenerateInvoicesForPeriod(ctx context.Context, scope access.Scope, period billing.Period) (*appbilling.GenerationResult, error) {
	args := m.Called(ctx, scope, period)
	return result[*appbilling.GenerationResult](args), args.Error(1)
}

func (m *MockEngine) ChargeDueInvoices(ctx context.Context, scope access.Scope, asOf time.Time) (*appbilling.ChargeRunResult, error) {
	args := m.Called(ctx, scope, asOf)
	return result[*appbilling.ChargeRunResult](args), args.Error(1)
}

func (m *MockEngine) MarkOverdue(ctx context.Context, scope access.Scope, asOf time.Time) (*appbilling.SweepResult, error) {
	args := m.Called(ctx, scope, asOf)
	return result[*appbilling.SweepResult](args), args.Error(1)
}

func (m *MockEngine) ExpireSubscriptions(ctx context.Context, scope access.Scope, asOf time.Time) (*appbilling.SweepResult, error) {
	args := m.Called(ctx, scope, asOf)
	return result[*appbilling.SweepResult](args), args.Error(1)
}

type MockVault struct {
	mock.Mock
}

func (m *MockVault) ValidateAndStoreCard(ctx context.Context, scope access.Scope, id uuid.UUID, req appbilling.StoreCardRequest) (*appbilling.StoreCardResult, error) {
	args := m.Called(ctx, scope, id, req)
	return result[*appbilling.StoreCardResult](args), args.Error(1)
}

type MockInvoiceLedger struct {
	mock.Mock
}

func (m *MockInvoiceLedger) Get(ctx context.Context, scope access.Scope, id uuid.UUID) (*appbilling.InvoiceResponse, error) {
	args := m.Called(ctx, scope, id)
	return result[*appbilling.InvoiceResponse](args), args.Error(1)
}

func (m *MockInvoiceLedger) List(ctx context.Context, scope access.Scope, filter appbilling.ListInvoicesFilter) ([]appbilling.InvoiceResponse, int64, error) {
	args := m.Called(ctx, scope, filter)
	return result[[]appbilling.InvoiceResponse](args), args.Get(1).(int64), args.Error(2)
}

func (m *MockInvoiceLedger) Summary(ctx context.Context, scope access.Scope) ([]appbilling.UnitSummaryResponse, error) {
	args := m.Called(ctx, scope)
	return result[[]appbilling.UnitSummaryResponse](args), args.Error(1)
}

func (m *MockInvoiceLedger) RecordManualPayment(ctx context.Context, scope access.Scope, id uuid.UUID, req appbilling.ManualPaymentRequest) (*appbilling.InvoiceResponse, error) {
	args := m.Called(ctx, scope, id, req)
	return result[*appbilling.InvoiceResponse](args), args.Error(1)
}

func (m *MockInvoiceLedger) Cancel(ctx context.Context, scope access.Scope, id uuid.UUID, reason string) (*appbilling.InvoiceResponse, error) {
	args := m.Called(ctx, scope, id, reason)
	return result[*appbilling.InvoiceResponse](args), args.Error(1)
}

func (m *MockInvoiceLedger) RenderReceipt(ctx context.Context, scope access.Scope, id uuid.UUID) ([]byte, error) {
	args := m.Called(ctx, scope, id)
	return result[[]byte](args), args.Error(1)
}

var (
	_ ContractService     = (*MockContractService)(nil)
	_ SubscriptionService = (*MockSubscriptionService)(nil)
	_ PaymentEngine       = (*MockEngine)(nil)
	_ BillingJobs         = (*MockEngine)(nil)
	_ CardVault           = (*MockVault)(nil)
	_ InvoiceLedger       = (*MockInvoiceLedger)(nil)
)
