package persistence

import (
	"testing"
	"time"

	"github.com/academy/billing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an in-memory SQLite database with every billing table.
// A single connection serializes transactions the way row locks would.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), GormConfig(logger.Default.LogMode(logger.Silent)))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func seedUnit(t *testing.T, db *gorm.DB, tenantID, franchiseID uuid.UUID, name string, manager *uuid.UUID) uuid.UUID {
	t.Helper()
	u := models.UnitModel{
		ID:          uuid.New(),
		TenantID:    tenantID,
		FranchiseID: franchiseID,
		Name:        name,
		ManagerID:   manager,
		CreatedAt:   testNow,
	}
	require.NoError(t, db.Create(&u).Error)
	return u.ID
}

func seedFranchise(t *testing.T, db *gorm.DB, tenantID, ownerID uuid.UUID) uuid.UUID {
	t.Helper()
	f := models.FranchiseModel{ID: uuid.New(), TenantID: tenantID, OwnerID: ownerID, Name: "Franquia", CreatedAt: testNow}
	require.NoError(t, db.Create(&f).Error)
	return f.ID
}
