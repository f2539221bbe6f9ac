package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/overhuman/eventstore/internal/event"
	"github.com/overhuman/eventstore/internal/observability"
	"github.com/overhuman/eventstore/internal/security"

	_ "modernc.org/sqlite"
)

const (
	// DatabaseName is the SQLite file created under Config.RootDir. The
	// leading dot keeps it out of every namespace filter.
	DatabaseName = ".events.db"

	// MemoryRoot selects a private in-memory database instead of a file.
	MemoryRoot = ":memory:"
)

// SQLiteStore implements EventStore over a single SQLite database. Rows are
// keyed by (namespace, id) and hold the same ciphertext a FileStore would
// write to disk.
type SQLiteStore struct {
	mu      sync.RWMutex
	db      *sql.DB
	cfg     Config
	cipher  security.Cipher
	logger  *observability.Logger
	metrics *observability.MetricsCollector
	audit   *security.AuditLogger
	lock    *NamespaceLock
}

// NewSQLiteStore opens (or creates) the database under cfg.RootDir.
// Use MemoryRoot as the root directory for an in-memory database.
func NewSQLiteStore(cfg Config, opts ...Option) (*SQLiteStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o, err := newOptions("sqlite", cfg.Key, opts)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: %w", err)
	}

	path := cfg.RootDir
	if path != MemoryRoot {
		path = filepath.Join(cfg.RootDir, DatabaseName)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// One connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS events (
		namespace  TEXT NOT NULL,
		id         TEXT NOT NULL,
		ciphertext TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (namespace, id)
	);`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		cfg:     cfg,
		cipher:  o.cipher,
		logger:  o.logger.With("namespace", cfg.Namespace),
		metrics: o.metrics,
		audit:   o.audit,
	}

	if o.lock && cfg.RootDir != MemoryRoot {
		lock := NewNamespaceLock(cfg.RootDir, cfg.Namespace)
		if err := lock.Acquire(); err != nil {
			db.Close()
			s.audit.LogError(security.AuditLockConflict, cfg.Namespace, lock.Path(), err)
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		s.lock = lock
	}

	return s, nil
}

// Metrics returns the collector receiving this store's counters.
func (s *SQLiteStore) Metrics() *observability.MetricsCollector {
	return s.metrics
}

// Store encrypts and upserts an event.
func (s *SQLiteStore) Store(ctx context.Context, e event.Event) error {
	defer s.metrics.Since("store", time.Now())

	if err := e.Validate(); err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalid, err)
		s.metrics.Increment(observability.CounterStoreRejected)
		s.audit.LogError(security.AuditStoreRejected, s.cfg.Namespace, e.ID, err)
		s.logger.Op("store", e.ID, err)
		return err
	}

	ciphertext, err := s.cipher.Encrypt(e.Serialize())
	if err != nil {
		err = fmt.Errorf("encrypt event %q: %w", e.ID, err)
		s.failStore(e.ID, err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (namespace, id, ciphertext, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(namespace, id) DO UPDATE SET
			ciphertext = excluded.ciphertext,
			updated_at = excluded.updated_at`,
		s.cfg.Namespace, e.ID, ciphertext, now, now,
	)
	if err != nil {
		err = fmt.Errorf("put event %q: %w", e.ID, err)
		s.failStore(e.ID, err)
		return err
	}

	s.metrics.Increment(observability.CounterStoreOK)
	s.metrics.Record(observability.MetricPayloadSize, float64(len(e.Payload)), nil)
	s.logger.Op("store", e.ID, nil)
	return nil
}

func (s *SQLiteStore) failStore(id string, err error) {
	s.metrics.Increment(observability.CounterStoreFailed)
	s.audit.LogError(security.AuditWriteFailed, s.cfg.Namespace, id, err)
	s.logger.Op("store", id, err)
}

// StoreAll stores each event independently.
func (s *SQLiteStore) StoreAll(ctx context.Context, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}
	s.metrics.Record(observability.MetricBatchSize, float64(len(events)), observability.Labels{"op": "store"})

	var errs []error
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.Store(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Fetch reads and decrypts the event stored under id.
func (s *SQLiteStore) Fetch(ctx context.Context, id string) (event.Event, error) {
	defer s.metrics.Since("fetch", time.Now())

	if err := event.ValidateID(id); err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalid, err)
		s.metrics.Increment(observability.CounterFetchRejected)
		s.logger.Op("fetch", id, err)
		return event.Event{}, err
	}

	s.mu.RLock()
	var ciphertext string
	err := s.db.QueryRowContext(ctx,
		"SELECT ciphertext FROM events WHERE namespace = ? AND id = ?",
		s.cfg.Namespace, id,
	).Scan(&ciphertext)
	s.mu.RUnlock()

	if errors.Is(err, sql.ErrNoRows) {
		s.metrics.Increment(observability.CounterFetchMiss)
		return event.Event{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if err != nil {
		err = fmt.Errorf("get event %q: %w", id, err)
		s.metrics.Increment(observability.CounterFetchFailed)
		s.audit.LogError(security.AuditReadFailed, s.cfg.Namespace, id, err)
		s.logger.Op("fetch", id, err)
		return event.Event{}, err
	}

	return s.decrypt(id, ciphertext)
}

func (s *SQLiteStore) decrypt(id, ciphertext string) (event.Event, error) {
	plaintext, err := s.cipher.Decrypt(ciphertext)
	if err == nil && plaintext == "" {
		err = errors.New("empty payload")
	}
	if err != nil {
		err = fmt.Errorf("%w: %q: %w", ErrDecrypt, id, err)
		s.metrics.Increment(observability.CounterDecryptFailed)
		s.audit.LogError(security.AuditDecryptFailed, s.cfg.Namespace, id, err)
		s.logger.Op("fetch", id, err)
		return event.Event{}, err
	}
	s.metrics.Increment(observability.CounterFetchOK)
	return event.Deserialize(id, plaintext), nil
}

// FetchAll returns every event in the namespace that decrypts.
func (s *SQLiteStore) FetchAll(ctx context.Context) ([]event.Event, error) {
	type row struct{ id, ciphertext string }

	s.mu.RLock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, ciphertext FROM events WHERE namespace = ?",
		s.cfg.Namespace,
	)
	if err != nil {
		s.mu.RUnlock()
		err = fmt.Errorf("list namespace %q: %w", s.cfg.Namespace, err)
		s.logger.Op("fetch_all", "", err)
		return nil, err
	}
	var raw []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.ciphertext); err != nil {
			rows.Close()
			s.mu.RUnlock()
			return nil, err
		}
		raw = append(raw, r)
	}
	err = rows.Err()
	rows.Close()
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	events := make([]event.Event, 0, len(raw))
	for _, r := range raw {
		e, err := s.decrypt(r.id, r.ciphertext)
		if err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// Delete removes the event stored under id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	if err := event.ValidateID(id); err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalid, err)
		s.logger.Op("delete", id, err)
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM events WHERE namespace = ? AND id = ?",
		s.cfg.Namespace, id,
	)
	if err != nil {
		err = fmt.Errorf("delete event %q: %w", id, err)
		s.metrics.Increment(observability.CounterDeleteFailed)
		s.audit.LogError(security.AuditDeleteFailed, s.cfg.Namespace, id, err)
		s.logger.Op("delete", id, err)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete event %q: %w", id, err)
	}
	if n == 0 {
		s.metrics.Increment(observability.CounterDeleteMiss)
		return false, nil
	}
	s.metrics.Increment(observability.CounterDeleteOK)
	s.logger.Op("delete", id, nil)
	return true, nil
}

// DeleteAll deletes each id independently.
func (s *SQLiteStore) DeleteAll(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := s.Delete(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DeleteAllInNamespace removes every row in the namespace.
func (s *SQLiteStore) DeleteAllInNamespace(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE namespace = ?", s.cfg.Namespace)
	if err != nil {
		err = fmt.Errorf("purge namespace %q: %w", s.cfg.Namespace, err)
		s.logger.Op("purge", "", err)
		return err
	}
	n, _ := res.RowsAffected()

	s.metrics.IncrementBy(observability.CounterNamespacePurged, n)
	s.audit.Log(security.AuditNamespacePurge, security.SeverityInfo, s.cfg.Namespace, DatabaseName,
		map[string]string{"removed": fmt.Sprint(n)})
	s.logger.Info("namespace purged", "removed", n)
	return nil
}

// Close releases the namespace lock and shuts down the database.
func (s *SQLiteStore) Close() error {
	var errs []error
	if s.lock != nil {
		errs = append(errs, s.lock.Release())
		s.lock = nil
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

var _ EventStore = (*SQLiteStore)(nil)
