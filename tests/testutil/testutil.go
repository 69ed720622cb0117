// Package testutil provides shared fixtures for billing tests: an
// in-memory database with the billing schema, seed helpers, a fixed clock
// and recording doubles.
package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/academy/billing/internal/infrastructure/persistence"
	"github.com/academy/billing/internal/infrastructure/persistence/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Now is the reference instant used by fixtures.
var Now = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

// NewSQLiteDB opens an in-memory SQLite database with the billing schema.
// One connection serializes transactions the way row locks would.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), persistence.GormConfig(logger.Default.LogMode(logger.Silent)))
	require.NoError(t, err, "Failed to open sqlite")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...), "Failed to migrate")
	return db
}

// SeedFranchise inserts a franchise owned by ownerID.
func SeedFranchise(t *testing.T, db *gorm.DB, tenantID, ownerID uuid.UUID) uuid.UUID {
	t.Helper()
	f := models.FranchiseModel{ID: uuid.New(), TenantID: tenantID, OwnerID: ownerID, Name: "Franquia " + ownerID.String()[:8], CreatedAt: Now}
	require.NoError(t, db.Create(&f).Error)
	return f.ID
}

// SeedUnit inserts a unit of franchiseID. manager may be nil.
func SeedUnit(t *testing.T, db *gorm.DB, tenantID, franchiseID uuid.UUID, name string, manager *uuid.UUID) uuid.UUID {
	t.Helper()
	u := models.UnitModel{
		ID:          uuid.New(),
		TenantID:    tenantID,
		FranchiseID: franchiseID,
		Name:        name,
		ManagerID:   manager,
		CreatedAt:   Now,
	}
	require.NoError(t, db.Create(&u).Error)
	return u.ID
}

// Clock is a settable time source safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock frozen at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// NewTestUUID derives a deterministic UUID from seed.
func NewTestUUID(seed string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed))
}

// TestTenantID returns the standard tenant id for tests.
func TestTenantID() uuid.UUID {
	return NewTestUUID("test-tenant")
}
