package persistence

import (
	"context"
	"testing"

	"github.com/academy/billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormUnitRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormUnitRepository(db)
	ctx := context.Background()

	tenantA, tenantB := uuid.New(), uuid.New()
	owner, manager := uuid.New(), uuid.New()
	franchise := seedFranchise(t, db, tenantA, owner)
	north := seedUnit(t, db, tenantA, franchise, "Norte", &manager)
	center := seedUnit(t, db, tenantA, franchise, "Centro", nil)
	otherFranchise := seedFranchise(t, db, tenantB, uuid.New())
	seedUnit(t, db, tenantB, otherFranchise, "Sul", nil)

	t.Run("find by id is tenant scoped", func(t *testing.T) {
		u, err := repo.FindByID(ctx, tenantA, north)
		require.NoError(t, err)
		assert.Equal(t, "Norte", u.Name)

		_, err = repo.FindByID(ctx, tenantB, north)
		assert.True(t, shared.IsNotFound(err))
	})

	t.Run("find by owner orders by name", func(t *testing.T) {
		units, err := repo.FindByOwner(ctx, tenantA, owner)
		require.NoError(t, err)
		require.Len(t, units, 2)
		assert.Equal(t, center, units[0].ID)
		assert.Equal(t, north, units[1].ID)

		none, err := repo.FindByOwner(ctx, tenantA, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("find managed by", func(t *testing.T) {
		u, err := repo.FindManagedBy(ctx, tenantA, manager)
		require.NoError(t, err)
		assert.Equal(t, north, u.ID)

		_, err = repo.FindManagedBy(ctx, tenantA, owner)
		assert.True(t, shared.IsNotFound(err))
	})

	t.Run("tenant ids", func(t *testing.T) {
		ids, err := repo.TenantIDs(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []uuid.UUID{tenantA, tenantB}, ids)
	})
}
