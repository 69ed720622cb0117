//go:build integration

package integration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	billingapp "github.com/academy/billing/internal/application/billing"
	"github.com/academy/billing/internal/domain/access"
	"github.com/academy/billing/internal/domain/billing"
	"github.com/academy/billing/internal/domain/shared"
	"github.com/academy/billing/internal/infrastructure/cache"
	"github.com/academy/billing/internal/infrastructure/persistence"
	"github.com/academy/billing/tests/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// approvingGateway approves every charge and counts them.
type approvingGateway struct {
	charges atomic.Int32
}

func (g *approvingGateway) Charge(_ context.Context, req *billing.ChargeRequest) (*billing.ChargeResult, error) {
	n := g.charges.Add(1)
	// Widen the window in which a second charge could slip in.
	time.Sleep(50 * time.Millisecond)
	return &billing.ChargeResult{Approved: true, GatewayRef: fmt.Sprintf("%s-%d", req.Reference, n)}, nil
}

func (g *approvingGateway) Reverse(context.Context, string) error { return nil }

type billingSetup struct {
	db       *TestDB
	subs     *persistence.GormSubscriptionRepository
	invoices *persistence.GormInvoiceRepository
	numberer *persistence.GormInvoiceNumberer
	engine   *billingapp.Engine
	gateway  *approvingGateway
	tenantID uuid.UUID
	unitID   uuid.UUID
}

func newBillingSetup(t *testing.T) *billingSetup {
	t.Helper()
	tdb := NewTestDB(t)
	s := &billingSetup{
		db:       tdb,
		subs:     persistence.NewGormSubscriptionRepository(tdb.DB),
		invoices: persistence.NewGormInvoiceRepository(tdb.DB),
		numberer: persistence.NewGormInvoiceNumberer(tdb.DB),
		gateway:  &approvingGateway{},
		tenantID: uuid.New(),
	}
	franchise := testutil.SeedFranchise(t, tdb.DB, s.tenantID, uuid.New())
	s.unitID = testutil.SeedUnit(t, tdb.DB, s.tenantID, franchise, "Unidade Centro", nil)
	s.engine = billingapp.NewEngine(persistence.NewTxManager(tdb.DB), s.subs, s.invoices, s.numberer, s.gateway,
		billingapp.WithClock(func() time.Time { return testutil.Now }),
		billingapp.WithLocker(cache.NewInMemoryLocker()))
	return s
}

func (s *billingSetup) seedSubscription(t *testing.T, method billing.PaymentMethod) *billing.Subscription {
	t.Helper()
	sub, err := billing.NewSubscription(s.tenantID, billing.NewSubscriptionInput{
		PayerID:       uuid.New(),
		StudentID:     uuid.New(),
		UnitID:        s.unitID,
		PlanName:      "Mensal",
		Value:         decimal.NewFromInt(250),
		PaymentMethod: method,
		BillingDay:    10,
		StartDate:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}, time.UTC, testutil.Now)
	require.NoError(t, err)
	if method == billing.PaymentMethodCard {
		_, err := sub.ReplaceCard(billing.CardToken{Token: "tok_" + sub.ID.String()[:8], Last4: "1111", Brand: "VISA", ExpMonth: "12", ExpYear: "2030"}, testutil.Now)
		require.NoError(t, err)
	}
	sub.ClearDomainEvents()
	require.NoError(t, s.subs.Create(context.Background(), sub))
	return sub
}

func TestGeneration_ConcurrentRunsIssueOneInvoicePerPeriod(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	s := newBillingSetup(t)
	const subscriptions = 5
	for i := 0; i < subscriptions; i++ {
		s.seedSubscription(t, billing.PaymentMethodPix)
	}
	period, err := billing.ParsePeriod("2026-10")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var created atomic.Int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.engine.GenerateInvoicesForPeriod(context.Background(), access.SystemScope(s.tenantID), period)
			if assert.NoError(t, err) {
				created.Add(int32(res.Created))
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, subscriptions, created.Load())

	var rows []struct {
		SubscriptionID uuid.UUID
		N              int
	}
	require.NoError(t, s.db.DB.Raw(`
		SELECT subscription_id, COUNT(*) AS n FROM invoices
		WHERE period = ? AND status <> ? GROUP BY subscription_id
	`, "2026-10", billing.InvoiceCancelled).Scan(&rows).Error)
	require.Len(t, rows, subscriptions)
	for _, r := range rows {
		assert.Equal(t, 1, r.N, r.SubscriptionID.String())
	}

	var distinct int
	require.NoError(t, s.db.DB.Raw(`SELECT COUNT(DISTINCT number) FROM invoices WHERE tenant_id = ?`, s.tenantID).Scan(&distinct).Error)
	assert.Equal(t, subscriptions, distinct)
}

func TestInvoiceNumberer_ConcurrentAllocation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	s := newBillingSetup(t)
	const n = 20

	numbers := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := s.numberer.Next(context.Background(), s.tenantID)
			if assert.NoError(t, err) {
				numbers <- num
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := map[string]bool{}
	for num := range numbers {
		assert.False(t, seen[num], "duplicate %s", num)
		seen[num] = true
	}
	assert.Len(t, seen, n)
	assert.True(t, seen["FAT-000001"])
	assert.True(t, seen["FAT-000020"])

	other, err := s.numberer.Next(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "FAT-000001", other)
}

func TestCharge_ConcurrentChargesHitGatewayOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	s := newBillingSetup(t)
	sub := s.seedSubscription(t, billing.PaymentMethodCard)

	number, err := s.numberer.Next(context.Background(), s.tenantID)
	require.NoError(t, err)
	inv, err := billing.NewPeriodInvoice(sub, billing.Period{Year: 2026, Month: time.October}, number, time.UTC, testutil.Now)
	require.NoError(t, err)
	inv.ClearDomainEvents()
	require.NoError(t, s.invoices.Create(context.Background(), inv))

	var wg sync.WaitGroup
	var paid atomic.Int32
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.engine.ChargeSubscription(context.Background(), s.tenantID, sub.ID)
			if assert.NoError(t, err) {
				paid.Add(int32(res.Paid))
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, s.gateway.charges.Load())
	assert.EqualValues(t, 1, paid.Load())

	stored, err := s.invoices.FindByID(context.Background(), s.tenantID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoicePaid, stored.Status)
}

func TestSubscriptions_OneActivePerStudentIndex(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	s := newBillingSetup(t)
	first := s.seedSubscription(t, billing.PaymentMethodPix)

	dup, err := billing.NewSubscription(s.tenantID, billing.NewSubscriptionInput{
		PayerID:       first.PayerID,
		StudentID:     first.StudentID,
		UnitID:        s.unitID,
		Value:         decimal.NewFromInt(100),
		PaymentMethod: billing.PaymentMethodBoleto,
		BillingDay:    5,
		StartDate:     testutil.Now,
	}, time.UTC, testutil.Now)
	require.NoError(t, err)

	err = s.subs.Create(context.Background(), dup)
	assert.True(t, shared.IsConflict(err), "got %v", err)
}
