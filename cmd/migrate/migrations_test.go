package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestLoadMigrations(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFiles(t, dir,
		"000002_records.up.sql", "000002_records.down.sql",
		"000001_sites.up.sql", "000001_sites.down.sql",
		"README.md",
	)

	got, err := loadMigrations(dir)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Version != "000001_sites" || got[1].Version != "000002_records" {
		t.Errorf("order = %s, %s", got[0].Version, got[1].Version)
	}
	if got[0].Down == "" {
		t.Error("down file not paired")
	}
}

func TestLoadMigrations_MissingUp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFiles(t, dir, "000001_sites.down.sql")

	if _, err := loadMigrations(dir); err == nil {
		t.Error("expected error for migration without up file")
	}
}

func TestLoadMigrations_RepoMigrations(t *testing.T) {
	t.Parallel()

	got, err := loadMigrations(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(got) < 2 {
		t.Fatalf("found %d migrations, want at least 2", len(got))
	}
	for _, m := range got {
		if m.Down == "" {
			t.Errorf("migration %s has no down file", m.Version)
		}
	}
}

func TestPending(t *testing.T) {
	t.Parallel()

	all := []migration{{Version: "1"}, {Version: "2"}, {Version: "3"}}

	tests := []struct {
		name      string
		applied   map[string]bool
		direction string
		steps     int
		want      []string
	}{
		{"fresh up", map[string]bool{}, "up", 0, []string{"1", "2", "3"}},
		{"partial up", map[string]bool{"1": true}, "up", 0, []string{"2", "3"}},
		{"up with steps", map[string]bool{}, "up", 1, []string{"1"}},
		{"down newest first", map[string]bool{"1": true, "2": true}, "down", 1, []string{"2"}},
		{"down all", map[string]bool{"1": true, "2": true}, "down", 0, []string{"2", "1"}},
		{"nothing to do", map[string]bool{"1": true, "2": true, "3": true}, "up", 0, nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := pending(all, tt.applied, tt.direction, tt.steps)
			if len(got) != len(tt.want) {
				t.Fatalf("pending() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i].Version != tt.want[i] {
					t.Errorf("pending()[%d] = %s, want %s", i, got[i].Version, tt.want[i])
				}
			}
		})
	}
}
