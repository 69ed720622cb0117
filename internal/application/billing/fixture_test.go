package billing

import (
	"context"
	"testing"
	"time"

	"github.com/academy/billing/internal/domain/access"
	"github.com/academy/billing/internal/domain/billing"
	"github.com/academy/billing/internal/domain/document"
	"github.com/academy/billing/internal/infrastructure/persistence"
	"github.com/academy/billing/tests/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Charge(ctx context.Context, req *billing.ChargeRequest) (*billing.ChargeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ChargeResult), args.Error(1)
}

func (m *MockGateway) Reverse(ctx context.Context, gatewayRef string) error {
	return m.Called(ctx, gatewayRef).Error(0)
}

type MockAntifraud struct {
	mock.Mock
}

func (m *MockAntifraud) Evaluate(ctx context.Context, sessionID string, tx billing.TransactionContext) (*billing.AntifraudDecision, error) {
	args := m.Called(ctx, sessionID, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.AntifraudDecision), args.Error(1)
}

type MockRenderer struct {
	mock.Mock
}

func (m *MockRenderer) Render(ctx context.Context, kind document.Kind, data any) ([]byte, error) {
	args := m.Called(ctx, kind, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	return m.Called(ctx, key, data, contentType).Error(0)
}

// tokenCharge matches ChargeRequests made against a stored token.
func tokenCharge(token string) any {
	return mock.MatchedBy(func(req *billing.ChargeRequest) bool {
		return req.Token == token && req.Card == nil
	})
}

// cardCharge matches validation ChargeRequests carrying raw card data.
func cardCharge() any {
	return mock.MatchedBy(func(req *billing.ChargeRequest) bool {
		return req.Card != nil && req.Tokenize && req.Amount.Equal(DefaultValidationAmount)
	})
}

type fixture struct {
	db        *gorm.DB
	subs      *persistence.GormSubscriptionRepository
	invoices  *persistence.GormInvoiceRepository
	engine    *Engine
	subsSvc   *SubscriptionService
	vault     *VaultService
	ledger    *InvoiceService
	gateway   *MockGateway
	antifraud *MockAntifraud
	renderer  *MockRenderer
	archive   *MockArchive
	events    *testutil.RecordingPublisher
	clock     *testutil.Clock
	logs      *observer.ObservedLogs
	tenantID  uuid.UUID
	ownerID   uuid.UUID
	managerID uuid.UUID
	unitA     uuid.UUID
	unitB     uuid.UUID
	unitC     uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	f := &fixture{
		db:        db,
		subs:      persistence.NewGormSubscriptionRepository(db),
		invoices:  persistence.NewGormInvoiceRepository(db),
		gateway:   new(MockGateway),
		antifraud: new(MockAntifraud),
		renderer:  new(MockRenderer),
		archive:   new(MockArchive),
		events:    testutil.NewRecordingPublisher(),
		clock:     testutil.NewClock(testutil.Now),
		tenantID:  testutil.TestTenantID(),
		ownerID:   uuid.New(),
		managerID: uuid.New(),
	}
	franchise := testutil.SeedFranchise(t, db, f.tenantID, f.ownerID)
	other := testutil.SeedFranchise(t, db, f.tenantID, uuid.New())
	f.unitA = testutil.SeedUnit(t, db, f.tenantID, franchise, "Unidade Centro", nil)
	f.unitB = testutil.SeedUnit(t, db, f.tenantID, franchise, "Unidade Norte", &f.managerID)
	f.unitC = testutil.SeedUnit(t, db, f.tenantID, other, "Unidade Sul", nil)

	core, logs := observer.New(zapcore.DebugLevel)
	f.logs = logs

	tx := persistence.NewTxManager(db)
	numberer := persistence.NewGormInvoiceNumberer(db)
	units := persistence.NewGormUnitRepository(db)
	opts := []Option{
		WithLogger(zap.New(core)),
		WithEventPublisher(f.events),
		WithClock(f.clock.Now),
		WithArchive(f.archive),
		WithCallTimeout(200 * time.Millisecond),
	}
	f.engine = NewEngine(tx, f.subs, f.invoices, numberer, f.gateway, opts...)
	f.subsSvc = NewSubscriptionService(tx, f.subs, units, f.engine, opts...)
	f.ledger = NewInvoiceService(tx, f.invoices, units, f.renderer, opts...)
	vault, err := NewVaultService(tx, f.subs, f.invoices, numberer, f.gateway, f.antifraud, f.engine,
		VaultConfig{FingerprintKey: []byte("test-fingerprint-key")}, opts...)
	require.NoError(t, err)
	f.vault = vault
	return f
}

func (f *fixture) master() access.Scope {
	return access.ScopeFor(access.Caller{UserID: uuid.New(), TenantID: f.tenantID, Role: access.RoleMaster})
}

func (f *fixture) owner() access.Scope {
	return access.ScopeFor(access.Caller{UserID: f.ownerID, TenantID: f.tenantID, Role: access.RoleFranchiseOwner, OwnedUnits: []uuid.UUID{f.unitA, f.unitB}})
}

func (f *fixture) manager() access.Scope {
	return access.ScopeFor(access.Caller{UserID: f.managerID, TenantID: f.tenantID, Role: access.RoleUnitManager, ManagedUnit: &f.unitB})
}

func (f *fixture) student(userID uuid.UUID) access.Scope {
	return access.ScopeFor(access.Caller{UserID: userID, TenantID: f.tenantID, Role: access.RoleStudent})
}

func (f *fixture) system() access.Scope {
	return access.SystemScope(f.tenantID)
}

type subOpt func(*billing.NewSubscriptionInput)

func withMethod(m billing.PaymentMethod) subOpt {
	return func(in *billing.NewSubscriptionInput) { in.PaymentMethod = m }
}

func withStart(t time.Time) subOpt {
	return func(in *billing.NewSubscriptionInput) { in.StartDate = t }
}

func withDuration(months int) subOpt {
	return func(in *billing.NewSubscriptionInput) { in.DurationMonths = months }
}

// seedSubscription stores an ATIVA subscription of unit with value 250
// and billing day 10, started on 2026-01-01.
func (f *fixture) seedSubscription(t *testing.T, unitID uuid.UUID, opts ...subOpt) *billing.Subscription {
	t.Helper()
	in := billing.NewSubscriptionInput{
		PayerID:       uuid.New(),
		StudentID:     uuid.New(),
		UnitID:        unitID,
		PlanName:      "Mensal",
		Value:         decimal.NewFromInt(250),
		PaymentMethod: billing.PaymentMethodPix,
		BillingDay:    10,
		StartDate:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, opt := range opts {
		opt(&in)
	}
	s, err := billing.NewSubscription(f.tenantID, in, time.UTC, f.clock.Now())
	require.NoError(t, err)
	if in.PaymentMethod == billing.PaymentMethodCard {
		_, err := s.ReplaceCard(billing.CardToken{Token: "tok_" + s.ID.String()[:8], Last4: "1111", Brand: "VISA", ExpMonth: "12", ExpYear: "2030"}, f.clock.Now())
		require.NoError(t, err)
	}
	s.ClearDomainEvents()
	require.NoError(t, f.subs.Create(context.Background(), s))
	return s
}

// seedInvoice stores a PENDENTE invoice of sub for period.
func (f *fixture) seedInvoice(t *testing.T, sub *billing.Subscription, period string) *billing.Invoice {
	t.Helper()
	p, err := billing.ParsePeriod(period)
	require.NoError(t, err)
	number, err := persistence.NewGormInvoiceNumberer(f.db).Next(context.Background(), f.tenantID)
	require.NoError(t, err)
	inv, err := billing.NewPeriodInvoice(sub, p, number, time.UTC, f.clock.Now())
	require.NoError(t, err)
	inv.ClearDomainEvents()
	require.NoError(t, f.invoices.Create(context.Background(), inv))
	return inv
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *billing.Subscription {
	t.Helper()
	s, err := f.subs.FindByID(context.Background(), f.tenantID, id)
	require.NoError(t, err)
	return s
}

func (f *fixture) reloadInvoice(t *testing.T, id uuid.UUID) *billing.Invoice {
	t.Helper()
	i, err := f.invoices.FindByID(context.Background(), f.tenantID, id)
	require.NoError(t, err)
	return i
}

// nonCancelledFor counts the non-cancelled recurring invoices of a
// subscription for period.
func (f *fixture) nonCancelledFor(t *testing.T, subID uuid.UUID, period string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Table("invoices").
		Where("subscription_id = ? AND period = ? AND kind = ? AND status <> ?",
			subID, period, billing.InvoiceRecurring, billing.InvoiceCancelled).
		Count(&n).Error)
	return n
}

func period(t *testing.T, s string) billing.Period {
	t.Helper()
	p, err := billing.ParsePeriod(s)
	require.NoError(t, err)
	return p
}
