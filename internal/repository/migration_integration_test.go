//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagedrop/pagedrop/internal/testutil"
)

// ============================================================================
// Migration Integration Tests
// ============================================================================

func TestIntegrationMigration_Tables(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)

	tables := map[string][]string{
		"sites": {
			"id", "status", "analytics_configured", "analytics_enabled",
			"analytics_exclude_admin", "hit_count", "session_count", "bot_hit_count",
		},
		"analytics_records": {
			"id", "event_id", "site_id", "session_id", "visitor_id", "ip_hash",
			"path", "query", "event_type", "is_custom", "event_data", "load_time",
			"bandwidth", "is_bot", "occurred_at",
		},
	}

	for table, columns := range tables {
		t.Run(table, func(t *testing.T) {
			exists, err := tableExists(ctx, pool, table)
			if err != nil {
				t.Fatalf("tableExists failed: %v", err)
			}
			if !exists {
				t.Fatalf("Table %q should exist after migrations", table)
			}
			for _, col := range columns {
				ok, err := columnExists(ctx, pool, table, col)
				if err != nil {
					t.Fatalf("columnExists failed: %v", err)
				}
				if !ok {
					t.Errorf("Column %q should exist in %s", col, table)
				}
			}
		})
	}
}

func TestIntegrationMigration_NoRawIPColumn(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)

	for _, col := range []string{"ip", "ip_address", "remote_addr"} {
		exists, err := columnExists(ctx, pool, "analytics_records", col)
		if err != nil {
			t.Fatalf("columnExists failed: %v", err)
		}
		if exists {
			t.Errorf("analytics_records must not have a raw address column %q", col)
		}
	}
}

func TestIntegrationMigration_Idempotency(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)

	// Up migrations use IF NOT EXISTS and can be re-applied.
	for _, name := range []string{testutil.MigrationSites, testutil.MigrationAnalyticsRecords} {
		if err := testutil.ApplyMigration(ctx, pool, name, "up"); err != nil {
			t.Fatalf("reapply %s: %v", name, err)
		}
	}
}

// ============================================================================
// Helper Functions
// ============================================================================

func tableExists(ctx context.Context, pool *pgxpool.Pool, tableName string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`, tableName).Scan(&exists)
	return exists, err
}

func columnExists(ctx context.Context, pool *pgxpool.Pool, tableName, columnName string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.columns
			WHERE table_schema = 'public'
			AND table_name = $1
			AND column_name = $2
		)
	`, tableName, columnName).Scan(&exists)
	return exists, err
}

// ============================================================================
// Test Environment Setup
// ============================================================================

func newMigrationTestEnv(t *testing.T) (context.Context, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "TEST_DATABASE_URL")

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	unlock, err := testutil.AcquireDBLock(ctx, pool)
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetSchema(ctx, pool, testutil.MigrationSites, testutil.MigrationAnalyticsRecords); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, pool
}
