// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/pagedrop/pagedrop/internal/model"
)

// Migration names under migrations/, in apply order.
const (
	MigrationSites            = "000001_sites"
	MigrationAnalyticsRecords = "000002_analytics_records"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 737373

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema runs the down then up migration for each name.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool, names ...string) error {
	for _, name := range names {
		if err := ApplyMigration(ctx, pool, name, "down"); err != nil {
			return err
		}
		if err := ApplyMigration(ctx, pool, name, "up"); err != nil {
			return err
		}
	}
	return nil
}

// ApplyMigration executes migrations/<name>.<direction>.sql.
func ApplyMigration(ctx context.Context, pool *pgxpool.Pool, name, direction string) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	path := filepath.Join(root, "migrations", name+"."+direction+".sql")
	sql, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s migration %s: %w", direction, name, err)
	}
	if _, err := pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("apply %s migration %s: %w", direction, name, err)
	}

	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestSite creates an active, trackable test site.
func NewTestSite(t testing.TB) *model.Site {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	id := ulid.Make().String()
	return &model.Site{
		ID:        id,
		Name:      "Test Site " + id[len(id)-6:],
		Domain:    "test-" + id[len(id)-6:] + ".pagedrop.io",
		Status:    model.SiteStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTestRecord creates a valid analytics record for siteID.
func NewTestRecord(t testing.TB, siteID string) *model.AnalyticsRecord {
	t.Helper()
	now := time.Now().UTC()
	return &model.AnalyticsRecord{
		ID:         ulid.Make().String(),
		EventID:    UniqueID("0"),
		SiteID:     siteID,
		SessionID:  "5e55105e55105e55",
		VisitorID:  "7151702f7151702f",
		IPHash:     "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		UserAgent:  "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0",
		Browser:    "Firefox",
		OS:         "Linux",
		DeviceType: model.DeviceDesktop,
		Path:       "/",
		Query:      map[string]string{},
		EventType:  model.EventTypePageview,
		EventData:  map[string]any{},
		Timestamp:  now,
		CreatedAt:  now,
	}
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
