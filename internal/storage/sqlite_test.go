package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/overhuman/eventstore/internal/event"
	"github.com/overhuman/eventstore/internal/observability"
)

func TestSQLiteStore_Memory(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t, Config{Namespace: "_u1", RootDir: MemoryRoot, Key: testKey}, WithNamespaceLock())

	if err := s.Store(ctx, event.New("evt1", `{"a":1}`)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Fetch(ctx, "evt1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Payload != `{"a":1}` {
		t.Fatalf("Payload = %q", got.Payload)
	}
	if c := s.Metrics().Counter(observability.CounterStoreOK); c != 1 {
		t.Fatalf("store.ok = %d", c)
	}
}

func TestSQLiteStore_DatabaseHiddenFromFileStore(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	db := newTestSQLiteStore(t, Config{Namespace: "_u1", RootDir: root, Key: testKey})
	files := newTestFileStore(t, Config{Namespace: "_u1", RootDir: root, Key: testKey})

	db.Store(ctx, event.New("evt1", "{}"))

	if _, err := os.Stat(filepath.Join(root, DatabaseName)); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
	events, err := files.FetchAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Fatalf("file store sees database artifacts: %v", events)
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	cfg := Config{Namespace: "_u1", RootDir: root, Key: testKey}

	first, err := NewSQLiteStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	first.Store(ctx, event.New("evt1", `{"a":1}`))
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second := newTestSQLiteStore(t, cfg)
	got, err := second.Fetch(ctx, "evt1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Payload != `{"a":1}` {
		t.Fatalf("Payload = %q", got.Payload)
	}
}

func TestSQLiteStore_NamespaceLock(t *testing.T) {
	cfg := Config{Namespace: "_u1", RootDir: t.TempDir(), Key: testKey}
	newTestSQLiteStore(t, cfg, WithNamespaceLock())

	if _, err := NewSQLiteStore(cfg, WithNamespaceLock()); !errors.Is(err, ErrLocked) {
		t.Fatalf("err = %v, want ErrLocked", err)
	}
}

func TestSQLiteStore_InvalidConfig(t *testing.T) {
	if _, err := NewSQLiteStore(Config{RootDir: MemoryRoot, Key: testKey}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}
