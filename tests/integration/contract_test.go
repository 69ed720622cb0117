//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	contractapp "github.com/academy/billing/internal/application/contract"
	"github.com/academy/billing/internal/domain/access"
	"github.com/academy/billing/internal/domain/contract"
	"github.com/academy/billing/internal/domain/shared"
	"github.com/academy/billing/internal/infrastructure/persistence"
	"github.com/academy/billing/tests/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type contractSetup struct {
	db       *TestDB
	svc      *contractapp.Service
	tenantID uuid.UUID
	unitID   uuid.UUID
}

func newContractSetup(t *testing.T) *contractSetup {
	t.Helper()
	tdb := NewTestDB(t)
	s := &contractSetup{db: tdb, tenantID: uuid.New()}
	franchise := testutil.SeedFranchise(t, tdb.DB, s.tenantID, uuid.New())
	s.unitID = testutil.SeedUnit(t, tdb.DB, s.tenantID, franchise, "Unidade Centro", nil)
	s.svc = contractapp.NewService(
		persistence.NewTxManager(tdb.DB),
		persistence.NewGormContractRepository(tdb.DB),
		persistence.NewGormSignatureRepository(tdb.DB),
		persistence.NewGormUnitRepository(tdb.DB),
		nil,
		contractapp.WithClock(func() time.Time { return testutil.Now }),
	)
	return s
}

func (s *contractSetup) fields() contractapp.FieldsInput {
	return contractapp.FieldsInput{
		Title:                 "Contrato de Franquia",
		Body:                  "Cláusulas da franquia.",
		ValidFrom:             time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		MonthlyValue:          decimal.NewFromInt(1500),
		TransactionFeePercent: decimal.RequireFromString("2.5"),
	}
}

func TestContracts_ConcurrentCreateKeepsOneActive(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	s := newContractSetup(t)
	scope := access.SystemScope(s.tenantID)

	const attempts = 4
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.Create(context.Background(), scope, contractapp.CreateContractRequest{
				UnitID: s.unitID, Type: "franchise", Fields: s.fields(),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, shared.IsConflict(err), "got %v", err)
	}
	assert.Equal(t, 1, succeeded)

	var active int64
	require.NoError(t, s.db.DB.Table("contracts").
		Where("unit_id = ? AND type = ? AND status = ?", s.unitID, "franchise", contract.StatusActive).
		Count(&active).Error)
	assert.EqualValues(t, 1, active)
}

func TestContracts_SignaturesAreAppendOnly(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	s := newContractSetup(t)
	ctx := context.Background()
	scope := access.SystemScope(s.tenantID)

	c, err := s.svc.Create(ctx, scope, contractapp.CreateContractRequest{UnitID: s.unitID, Type: "franchise", Fields: s.fields()})
	require.NoError(t, err)
	sig, err := s.svc.Sign(ctx, scope, c.ID, contractapp.SignRequest{
		SignerID:       uuid.New(),
		SignerType:     contract.SignerFranchisee,
		SignerName:     "Maria Souza",
		SignerDocument: "12345678901",
		IPAddress:      "203.0.113.7",
	})
	require.NoError(t, err)

	err = s.db.DB.Exec(`UPDATE contract_signatures SET signer_name = 'x' WHERE id = ?`, sig.ID).Error
	assert.ErrorContains(t, err, "append-only")
	err = s.db.DB.Exec(`DELETE FROM contract_signatures WHERE id = ?`, sig.ID).Error
	assert.ErrorContains(t, err, "append-only")

	edited, err := s.svc.Edit(ctx, scope, c.ID, s.fields())
	require.NoError(t, err)
	assert.Equal(t, 2, edited.Revision)

	history, err := s.svc.History(ctx, scope, edited.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 1, history[0].RevisionSigned)
}
