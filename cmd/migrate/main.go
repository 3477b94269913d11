// Package main applies the SQL migrations under migrations/.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq"
)

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		dir         = flag.String("dir", "migrations", "Directory holding *.up.sql / *.down.sql files")
		direction   = flag.String("direction", "up", "up or down")
		steps       = flag.Int("steps", 0, "Max migrations to run (0 = all for up, 1 for down)")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("component", "migrate")

	if err := run(*databaseURL, *dir, *direction, *steps, logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(databaseURL, dir, direction string, steps int, logger *slog.Logger) error {
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if direction != "up" && direction != "down" {
		return fmt.Errorf("invalid direction %q; use up or down", direction)
	}
	if direction == "down" && steps <= 0 {
		steps = 1
	}

	all, err := loadMigrations(dir)
	if err != nil {
		return err
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	m := &migrator{db: db, logger: logger}
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	todo := pending(all, applied, direction, steps)
	if len(todo) == 0 {
		logger.Info("nothing to migrate", "direction", direction)
		return nil
	}
	for _, mig := range todo {
		if err := m.run(ctx, mig, direction); err != nil {
			return err
		}
	}
	return nil
}
