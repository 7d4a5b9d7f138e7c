package storage

import (
	"errors"
	"strings"
	"testing"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("applied %d migrations, want 1", len(versions))
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not ascending: %v", versions)
		}
	}
}

func TestParseMigrationVersion(t *testing.T) {
	v, err := parseMigrationVersion("001_kv.sql")
	if err != nil {
		t.Fatalf("parseMigrationVersion: %v", err)
	}
	if v != 1 {
		t.Errorf("version = %d, want 1", v)
	}

	if _, err := parseMigrationVersion("kv.sql"); err == nil {
		t.Error("expected error for filename without version prefix")
	}
}

func TestGetItemMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetItem("leafwise.history")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetItem on empty store: err = %v, want ErrNotFound", err)
	}
}

func TestSetGetRemove(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetItem("k", `{"a":1}`); err != nil {
		t.Fatalf("SetItem: %v", err)
	}
	got, err := s.GetItem("k")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got != `{"a":1}` {
		t.Errorf("GetItem = %q", got)
	}

	if err := s.SetItem("k", `{"a":2}`); err != nil {
		t.Fatalf("SetItem overwrite: %v", err)
	}
	got, _ = s.GetItem("k")
	if got != `{"a":2}` {
		t.Errorf("after overwrite GetItem = %q", got)
	}

	if err := s.RemoveItem("k"); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if _, err := s.GetItem("k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after remove err = %v, want ErrNotFound", err)
	}

	// Removing again is a no-op.
	if err := s.RemoveItem("k"); err != nil {
		t.Errorf("second RemoveItem: %v", err)
	}
}

func TestSetItemQuota(t *testing.T) {
	s := openTestStore(t, WithMaxValueBytes(16))

	err := s.SetItem("big", strings.Repeat("x", 17))
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("SetItem over limit: err = %v, want ErrQuotaExceeded", err)
	}
	if _, err := s.GetItem("big"); !errors.Is(err, ErrNotFound) {
		t.Errorf("rejected value was stored: err = %v", err)
	}

	if err := s.SetItem("ok", strings.Repeat("x", 16)); err != nil {
		t.Errorf("SetItem at limit: %v", err)
	}
}

func TestPersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s1.SetItem("leafwise.history", `{"version":2,"scans":[]}`); err != nil {
		t.Fatalf("SetItem: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.GetItem("leafwise.history")
	if err != nil {
		t.Fatalf("GetItem after reopen: %v", err)
	}
	if got != `{"version":2,"scans":[]}` {
		t.Errorf("GetItem = %q", got)
	}
}
