package security

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// Audit events
// ---------------------------------------------------------------------------

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditStoreRejected  AuditEventType = "STORE_REJECTED"
	AuditWriteFailed    AuditEventType = "WRITE_FAILED"
	AuditReadFailed     AuditEventType = "READ_FAILED"
	AuditDecryptFailed  AuditEventType = "DECRYPT_FAILED"
	AuditDeleteFailed   AuditEventType = "DELETE_FAILED"
	AuditNamespacePurge AuditEventType = "NAMESPACE_PURGE"
	AuditLockConflict   AuditEventType = "LOCK_CONFLICT"
)

// AuditSeverity indicates the importance of an audit event.
type AuditSeverity string

const (
	SeverityInfo     AuditSeverity = "INFO"
	SeverityWarn     AuditSeverity = "WARN"
	SeverityCritical AuditSeverity = "CRITICAL"
)

// AuditEvent is a single immutable audit record. It never carries payload
// plaintext or key material.
type AuditEvent struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Type      AuditEventType    `json:"type"`
	Severity  AuditSeverity     `json:"severity"`
	Namespace string            `json:"namespace"`
	Resource  string            `json:"resource"` // event id or file name
	Details   map[string]string `json:"details,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
}

// ---------------------------------------------------------------------------
// Audit logger (append-only, immutable)
// ---------------------------------------------------------------------------

// AuditStore is an abstraction for persistent audit storage.
type AuditStore interface {
	Append(event AuditEvent) error
	Query(filter AuditFilter) ([]AuditEvent, error)
	Count() (int, error)
}

// AuditFilter defines criteria for querying audit events.
type AuditFilter struct {
	Since     time.Time      // Events after this time
	Until     time.Time      // Events before this time
	Type      AuditEventType // Filter by type (empty = all)
	Severity  AuditSeverity  // Filter by severity (empty = all)
	Namespace string         // Filter by namespace (empty = all)
	Limit     int            // Max results (0 = default 100)
}

// AuditLogger provides an append-only audit trail for store failures and
// destructive operations.
type AuditLogger struct {
	mu     sync.Mutex
	store  AuditStore
	nextID int
}

// NewAuditLogger creates an AuditLogger with the given store.
func NewAuditLogger(store AuditStore) *AuditLogger {
	return &AuditLogger{
		store:  store,
		nextID: 1,
	}
}

func (a *AuditLogger) id() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := fmt.Sprintf("audit-%d", a.nextID)
	a.nextID++
	return id
}

// Log records a successful audit event. Returns the event ID.
// A nil AuditLogger discards the event.
func (a *AuditLogger) Log(eventType AuditEventType, severity AuditSeverity, namespace, resource string, details map[string]string) string {
	if a == nil {
		return ""
	}
	event := AuditEvent{
		ID:        a.id(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Severity:  severity,
		Namespace: namespace,
		Resource:  resource,
		Details:   details,
		Success:   true,
	}
	if a.store != nil {
		_ = a.store.Append(event) // Audit logging never fails the operation.
	}
	return event.ID
}

// LogError records a failed operation. A nil AuditLogger discards the event.
func (a *AuditLogger) LogError(eventType AuditEventType, namespace, resource string, err error) string {
	if a == nil {
		return ""
	}
	event := AuditEvent{
		ID:        a.id(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Severity:  SeverityWarn,
		Namespace: namespace,
		Resource:  resource,
		Success:   false,
	}
	if err != nil {
		event.Error = err.Error()
	}
	if a.store != nil {
		_ = a.store.Append(event)
	}
	return event.ID
}

// Query retrieves audit events matching the filter.
func (a *AuditLogger) Query(filter AuditFilter) ([]AuditEvent, error) {
	if a == nil || a.store == nil {
		return nil, fmt.Errorf("no audit store configured")
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return a.store.Query(filter)
}

// Count returns total number of audit events.
func (a *AuditLogger) Count() (int, error) {
	if a == nil || a.store == nil {
		return 0, nil
	}
	return a.store.Count()
}

// ---------------------------------------------------------------------------
// In-memory audit store
// ---------------------------------------------------------------------------

// MemoryAuditStore is a simple in-memory audit store backed by a slice.
type MemoryAuditStore struct {
	mu     sync.RWMutex
	events []AuditEvent
}

// NewMemoryAuditStore creates a MemoryAuditStore.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{
		events: make([]AuditEvent, 0, 64),
	}
}

// Append adds an event (append-only).
func (s *MemoryAuditStore) Append(event AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Query returns events matching the filter, newest first.
func (s *MemoryAuditStore) Query(filter AuditFilter) ([]AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []AuditEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]

		if !filter.Since.IsZero() && e.Timestamp.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && e.Timestamp.After(filter.Until) {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.Severity != "" && e.Severity != filter.Severity {
			continue
		}
		if filter.Namespace != "" && e.Namespace != filter.Namespace {
			continue
		}

		results = append(results, e)
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results, nil
}

// Count returns the total number of events.
func (s *MemoryAuditStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events), nil
}

// MarshalJSON serializes the audit store for export.
func (s *MemoryAuditStore) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s.events)
}
