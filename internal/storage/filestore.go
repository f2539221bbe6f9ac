package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/overhuman/eventstore/internal/event"
	"github.com/overhuman/eventstore/internal/observability"
	"github.com/overhuman/eventstore/internal/security"
)

// FileStore implements EventStore with one encrypted file per event.
type FileStore struct {
	cfg     Config
	filter  NamespaceFilter
	cipher  security.Cipher
	logger  *observability.Logger
	metrics *observability.MetricsCollector
	audit   *security.AuditLogger
	lock    *NamespaceLock
}

// NewFileStore opens a file-backed store. The root directory must already
// exist; the store only manages files inside it.
func NewFileStore(cfg Config, opts ...Option) (*FileStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o, err := newOptions("file", cfg.Key, opts)
	if err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}

	s := &FileStore{
		cfg:     cfg,
		filter:  NamespaceFilter{Suffix: cfg.Namespace},
		cipher:  o.cipher,
		logger:  o.logger.With("namespace", cfg.Namespace),
		metrics: o.metrics,
		audit:   o.audit,
	}

	if o.lock {
		lock := NewNamespaceLock(cfg.RootDir, cfg.Namespace)
		if err := lock.Acquire(); err != nil {
			s.audit.LogError(security.AuditLockConflict, cfg.Namespace, lock.Path(), err)
			return nil, fmt.Errorf("file store: %w", err)
		}
		s.lock = lock
	}

	return s, nil
}

// Config returns the store configuration.
func (s *FileStore) Config() Config {
	return s.cfg
}

// Metrics returns the collector receiving this store's counters.
func (s *FileStore) Metrics() *observability.MetricsCollector {
	return s.metrics
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.cfg.RootDir, s.filter.Filename(id))
}

// Store encrypts the event payload and writes it to <id><namespace>.
// The ciphertext is written to a temporary file and renamed into place, so
// a reader never observes a partially written event.
func (s *FileStore) Store(ctx context.Context, e event.Event) error {
	defer s.metrics.Since("store", time.Now())

	if err := ctx.Err(); err != nil {
		return err
	}
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

	if err := writeFileAtomic(s.cfg.RootDir, s.filter.TempPattern(), s.filter.Filename(e.ID), []byte(ciphertext)); err != nil {
		err = fmt.Errorf("write event %q: %w", e.ID, err)
		s.failStore(e.ID, err)
		return err
	}

	s.metrics.Increment(observability.CounterStoreOK)
	s.metrics.Record(observability.MetricPayloadSize, float64(len(e.Payload)), nil)
	s.logger.Op("store", e.ID, nil)
	return nil
}

func (s *FileStore) failStore(id string, err error) {
	s.metrics.Increment(observability.CounterStoreFailed)
	s.audit.LogError(security.AuditWriteFailed, s.cfg.Namespace, id, err)
	s.logger.Op("store", id, err)
}

// StoreAll stores each event independently.
func (s *FileStore) StoreAll(ctx context.Context, events []event.Event) error {
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

// Fetch reads and decrypts the event stored under id. An invalid id is
// rejected without touching the filesystem.
func (s *FileStore) Fetch(ctx context.Context, id string) (event.Event, error) {
	defer s.metrics.Since("fetch", time.Now())

	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if err := event.ValidateID(id); err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalid, err)
		s.metrics.Increment(observability.CounterFetchRejected)
		s.logger.Op("fetch", id, err)
		return event.Event{}, err
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.metrics.Increment(observability.CounterFetchMiss)
			return event.Event{}, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		err = fmt.Errorf("read event %q: %w", id, err)
		s.metrics.Increment(observability.CounterFetchFailed)
		s.audit.LogError(security.AuditReadFailed, s.cfg.Namespace, id, err)
		s.logger.Op("fetch", id, err)
		return event.Event{}, err
	}

	plaintext, err := s.cipher.Decrypt(string(data))
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
	s.logger.Op("fetch", id, nil)
	return event.Deserialize(id, plaintext), nil
}

// FetchAll returns every readable event in the namespace. Files removed
// between listing and reading are skipped, as are files that fail to
// decrypt. The error is non-nil only if the directory cannot be listed or
// ctx is canceled.
func (s *FileStore) FetchAll(ctx context.Context) ([]event.Event, error) {
	names, err := s.list()
	if err != nil {
		s.logger.Op("fetch_all", "", err)
		return nil, err
	}

	events := make([]event.Event, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return events, err
		}
		id, _ := s.filter.IDFromFilename(name)
		e, err := s.Fetch(ctx, id)
		if err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// Delete removes the file for id. It returns false without error when no
// file exists.
func (s *FileStore) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := event.ValidateID(id); err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalid, err)
		s.logger.Op("delete", id, err)
		return false, err
	}

	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.metrics.Increment(observability.CounterDeleteMiss)
			return false, nil
		}
		err = fmt.Errorf("delete event %q: %w", id, err)
		s.metrics.Increment(observability.CounterDeleteFailed)
		s.audit.LogError(security.AuditDeleteFailed, s.cfg.Namespace, id, err)
		s.logger.Op("delete", id, err)
		return false, err
	}

	s.metrics.Increment(observability.CounterDeleteOK)
	s.logger.Op("delete", id, nil)
	return true, nil
}

// DeleteAll deletes each id independently.
func (s *FileStore) DeleteAll(ctx context.Context, ids []string) error {
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

// DeleteAllInNamespace removes every file matching the namespace filter.
// Files of other namespaces in the same directory are left untouched.
func (s *FileStore) DeleteAllInNamespace(ctx context.Context) error {
	names, err := s.list()
	if err != nil {
		s.logger.Op("purge", "", err)
		return err
	}

	var (
		errs    []error
		removed int
	)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := os.Remove(filepath.Join(s.cfg.RootDir, name)); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			err = fmt.Errorf("purge %q: %w", name, err)
			s.metrics.Increment(observability.CounterDeleteFailed)
			s.audit.LogError(security.AuditDeleteFailed, s.cfg.Namespace, name, err)
			s.logger.Op("purge", name, err)
			errs = append(errs, err)
			continue
		}
		removed++
	}

	// Temporary files left by interrupted writes still hold ciphertext.
	if err := s.sweepTemp(); err != nil {
		errs = append(errs, err)
	}

	s.metrics.IncrementBy(observability.CounterNamespacePurged, int64(removed))
	s.audit.Log(security.AuditNamespacePurge, security.SeverityInfo, s.cfg.Namespace, s.cfg.RootDir,
		map[string]string{"removed": fmt.Sprint(removed)})
	s.logger.Info("namespace purged", "removed", removed)
	return errors.Join(errs...)
}

// Close releases the namespace lock, if held.
func (s *FileStore) Close() error {
	if s.lock == nil {
		return nil
	}
	err := s.lock.Release()
	s.lock = nil
	return err
}

// list returns the names of regular files in the root directory that
// belong to the namespace. The listing is not recursive.
func (s *FileStore) list() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.cfg.RootDir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !s.filter.Matches(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// sweepTemp removes temporary files belonging to the namespace.
func (s *FileStore) sweepTemp() error {
	entries, err := os.ReadDir(s.cfg.RootDir)
	if err != nil {
		return fmt.Errorf("list %s: %w", s.cfg.RootDir, err)
	}
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !s.filter.IsTemp(entry.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.RootDir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove temp %q: %w", entry.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// writeFileAtomic writes data to a temporary file named by pattern in dir
// and renames it to name. The temporary file is removed on failure.
func writeFileAtomic(dir, pattern, name string, data []byte) (err error) {
	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, filepath.Join(dir, name))
}

var _ EventStore = (*FileStore)(nil)
