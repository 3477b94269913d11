package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const schemaTable = "schema_migrations"

// migration is one numbered SQL file pair under the migrations directory.
type migration struct {
	Version string // e.g. "000001_sites"
	Up      string
	Down    string
}

// loadMigrations reads *.up.sql / *.down.sql pairs sorted by version.
func loadMigrations(dir string) ([]migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	byVersion := make(map[string]*migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var version, direction string
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			version, direction = strings.TrimSuffix(name, ".up.sql"), "up"
		case strings.HasSuffix(name, ".down.sql"):
			version, direction = strings.TrimSuffix(name, ".down.sql"), "down"
		default:
			continue
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{Version: version}
			byVersion[version] = m
		}
		path := filepath.Join(dir, name)
		if direction == "up" {
			m.Up = path
		} else {
			m.Down = path
		}
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" {
			return nil, fmt.Errorf("migration %s has no up file", m.Version)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// pending returns the migrations to run for direction. Up applies every
// unapplied version in order; down reverts the newest applied versions.
// steps <= 0 means no limit.
func pending(all []migration, applied map[string]bool, direction string, steps int) []migration {
	var out []migration
	if direction == "down" {
		for i := len(all) - 1; i >= 0; i-- {
			if applied[all[i].Version] {
				out = append(out, all[i])
			}
		}
	} else {
		for _, m := range all {
			if !applied[m.Version] {
				out = append(out, m)
			}
		}
	}
	if steps > 0 && len(out) > steps {
		out = out[:steps]
	}
	return out
}

// migrator applies migrations over database/sql with one transaction per file.
type migrator struct {
	db     *sql.DB
	logger *slog.Logger
}

func (m *migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+schemaTable+` (
		version    VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("create %s: %w", schemaTable, err)
	}
	return nil
}

func (m *migrator) applied(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM `+schemaTable)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *migrator) run(ctx context.Context, mig migration, direction string) error {
	path := mig.Up
	if direction == "down" {
		path = mig.Down
	}
	if path == "" {
		return fmt.Errorf("migration %s has no %s file", mig.Version, direction)
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("%s %s: %w", direction, mig.Version, err)
	}

	if direction == "down" {
		_, err = tx.ExecContext(ctx, `DELETE FROM `+schemaTable+` WHERE version = $1`, mig.Version)
	} else {
		_, err = tx.ExecContext(ctx, `INSERT INTO `+schemaTable+` (version) VALUES ($1)`, mig.Version)
	}
	if err != nil {
		return fmt.Errorf("record %s: %w", mig.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", mig.Version, err)
	}

	m.logger.Info("migration applied", "version", mig.Version, "direction", direction)
	return nil
}
