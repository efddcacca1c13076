package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/tablesync/internal/config"
)

// exerciseStore runs the same contract checks against any backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "table-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.Put(ctx, "table-a", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Put(ctx, "table-a", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("Put(overwrite) error = %v", err)
	}
	if err := s.Put(ctx, "table-b", []byte(`{}`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Put(ctx, "sessions", []byte(`[]`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := s.Get(ctx, "table-a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `{"v":2}` {
		t.Errorf("Get() = %s, want overwritten value", got)
	}

	keys, err := s.Keys(ctx, "table-")
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != "table-a" || keys[1] != "table-b" {
		t.Errorf("Keys(table-) = %v, want [table-a table-b]", keys)
	}

	if err := s.Delete(ctx, "table-a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "table-a"); err != nil {
		t.Errorf("Delete(missing) error = %v, want nil", err)
	}
	if _, err := s.Get(ctx, "table-a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(deleted) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	buf := []byte("abc")
	_ = s.Put(ctx, "k", buf)
	buf[0] = 'z'

	got, _ := s.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("stored value mutated through caller buffer: %s", got)
	}
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	s, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer s.Close()

	exerciseStore(t, s)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	if err := s.Put(ctx, "table-x", []byte("persisted")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	s.Close()

	s, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	got, err := s.Get(ctx, "table-x")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if string(got) != "persisted" {
		t.Errorf("Get() = %q, want %q", got, "persisted")
	}
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StoreConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("Open(memory) error = %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("Open(memory) = %T, want *MemoryStore", s)
	}

	s, err = Open(ctx, config.StoreConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "s.db")})
	if err != nil {
		t.Fatalf("Open(sqlite) error = %v", err)
	}
	s.Close()

	if _, err := Open(ctx, config.StoreConfig{Driver: "bolt"}); err == nil {
		t.Error("Open(bolt) expected error for unknown driver")
	}
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TABLESYNC_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TABLESYNC_TEST_DATABASE_URL not set")
	}

	s, err := OpenPostgres(context.Background(), config.StoreConfig{
		DatabaseURL: url,
		MaxConns:    2,
		MinConns:    0,
	})
	if err != nil {
		t.Fatalf("OpenPostgres() error = %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	for _, k := range []string{"table-a", "table-b", "sessions"} {
		_ = s.Delete(ctx, k)
	}
	exerciseStore(t, s)
}
