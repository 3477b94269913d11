package beacon

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	if _, ok, err := s.Get("missing"); ok || err != nil {
		t.Fatalf("Get(missing) ok=%v err=%v", ok, err)
	}
	if err := s.Set("k", "v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if v, ok, _ := s.Get("k"); !ok || v != "v" {
		t.Errorf("Get(k) = %q, %v", v, ok)
	}

	s.SetUnavailable(true)
	if _, _, err := s.Get("k"); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("Get() error = %v, want ErrStorageUnavailable", err)
	}
	if err := s.Set("k", "w"); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("Set() error = %v, want ErrStorageUnavailable", err)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s := NewFileStore(path)

	if _, ok, err := s.Get(keyVisitorID); ok || err != nil {
		t.Fatalf("Get() on missing file ok=%v err=%v", ok, err)
	}
	if err := s.Set(keyVisitorID, "visitor-1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(keySessionID, "session-1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	reopened := NewFileStore(path)
	for key, want := range map[string]string{keyVisitorID: "visitor-1", keySessionID: "session-1"} {
		got, ok, err := reopened.Get(key)
		if err != nil || !ok || got != want {
			t.Errorf("Get(%s) = %q, %v, %v; want %q", key, got, ok, err, want)
		}
	}
}

func TestFileStore_CorruptFileIsEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore(path)
	if _, ok, err := s.Get(keyVisitorID); ok || err != nil {
		t.Errorf("Get() ok=%v err=%v, want empty store", ok, err)
	}
	if err := s.Set(keyVisitorID, "v"); err != nil {
		t.Errorf("Set() over corrupt file error = %v", err)
	}
}

func TestFileStore_Unavailable(t *testing.T) {
	t.Parallel()

	// A regular file where the directory should be.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore(filepath.Join(blocker, "state.json"))
	if err := s.Set(keyVisitorID, "v"); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("Set() error = %v, want ErrStorageUnavailable", err)
	}
}

func TestClient_FileStoreVisitorSurvivesRestart(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "visitor.json")
	opts := Options{Durable: NewFileStore(path), Transports: []Transport{}}

	first := New(siteConfig(), testEnv(), opts)
	second := New(siteConfig(), testEnv(), Options{Durable: NewFileStore(path), Transports: []Transport{}})

	if first.State().VisitorID != second.State().VisitorID {
		t.Errorf("visitor id changed across restarts: %q -> %q", first.State().VisitorID, second.State().VisitorID)
	}
	if first.State().VisitorID == Fingerprint(testEnv()) {
		t.Error("file-backed visitor id should not fall back to the fingerprint")
	}
}
