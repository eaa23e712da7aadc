// Package dbtest opens the integration-test database named by
// TEST_POSTGRES_DSN. Tests skip when it is unset.
package dbtest

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/database"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var errMissingDSN = errors.New("missing TEST_POSTGRES_DSN")

var (
	dbOnce sync.Once
	db     *sqlx.DB
	dbErr  error
)

func DB(tb testing.TB) *sqlx.DB {
	tb.Helper()

	dbOnce.Do(func() {
		dsn := os.Getenv("TEST_POSTGRES_DSN")
		if dsn == "" {
			dbErr = errMissingDSN
			return
		}
		db, dbErr = database.Open(dsn)
		if dbErr != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		dbErr = database.Migrate(ctx, db)
	})

	if errors.Is(dbErr, errMissingDSN) {
		tb.Skip("set TEST_POSTGRES_DSN to run repository integration tests")
	}
	if dbErr != nil {
		tb.Fatalf("failed to init test db: %v", dbErr)
	}
	return db
}

var tenantTables = []string{
	"variation_vendor_costs",
	"inventory_counts",
	"committed_inventory",
	"sales_velocity",
	"sync_state",
	"retryable_events",
	"catalog_variations",
	"catalog_items",
	"catalog_images",
	"catalog_categories",
	"vendors",
}

// Tenant returns a fresh tenant ID whose rows are removed after the test.
func Tenant(tb testing.TB, db *sqlx.DB) string {
	tb.Helper()
	tenantID := "test-" + uuid.NewString()
	if _, err := db.Exec(`INSERT INTO tenants (id, name, access_token) VALUES ($1, $2, $3)`, tenantID, "Test", "token"); err != nil {
		tb.Fatalf("insert tenant: %v", err)
	}
	tb.Cleanup(func() {
		for _, table := range tenantTables {
			_, _ = db.Exec(`DELETE FROM `+table+` WHERE tenant_id = $1`, tenantID)
		}
		_, _ = db.Exec(`DELETE FROM tenants WHERE id = $1`, tenantID)
	})
	return tenantID
}
