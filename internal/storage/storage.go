// Package storage provides encrypted, namespace-scoped persistence for
// telemetry events.
//
// EventStore is the primary abstraction. FileStore is the default
// implementation: one encrypted file per event, named <id><namespace>,
// directly under a root directory that may be shared with stores for other
// namespaces. SQLiteStore offers the same contract over a single database.
//
// Every EventStore method reports failures as explicit errors. BestEffort
// wraps a store for callers that want the log-and-continue contract, where
// nothing is ever propagated.
//
// A store is intended for one caller at a time per namespace. It performs
// blocking I/O on the calling goroutine and provides no multi-record
// atomicity; two stores must never use the same namespace over the same
// root directory concurrently (see WithNamespaceLock).
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/overhuman/eventstore/internal/event"
	"github.com/overhuman/eventstore/internal/security"
)

var (
	// ErrInvalid is returned when an id or event fails validation. The
	// operation does nothing.
	ErrInvalid = errors.New("invalid event")

	// ErrNotFound is returned by Fetch when no event is stored for the id.
	ErrNotFound = errors.New("event not found")

	// ErrDecrypt is returned when stored content cannot be decrypted, for
	// example because of a wrong key or a truncated write.
	ErrDecrypt = errors.New("event could not be decrypted")

	// ErrInvalidConfig is returned by store constructors for unusable
	// configuration.
	ErrInvalidConfig = errors.New("invalid store configuration")
)

// EventStore persists events for a single namespace.
type EventStore interface {
	// Store encrypts and writes an event, replacing any event with the same id.
	Store(ctx context.Context, e event.Event) error

	// StoreAll stores each event independently. A failure does not stop the
	// remaining events; all failures are joined into the returned error.
	StoreAll(ctx context.Context, events []event.Event) error

	// Fetch returns the event stored under id.
	Fetch(ctx context.Context, id string) (event.Event, error)

	// FetchAll returns every readable event in the namespace, in no
	// particular order. Events that cannot be read or decrypted are skipped.
	FetchAll(ctx context.Context) ([]event.Event, error)

	// Delete removes the event stored under id and reports whether an event
	// was actually removed.
	Delete(ctx context.Context, id string) (bool, error)

	// DeleteAll deletes each id independently, joining any failures.
	DeleteAll(ctx context.Context, ids []string) error

	// DeleteAllInNamespace removes every event in the namespace.
	DeleteAllInNamespace(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// Config holds the immutable configuration of a store.
type Config struct {
	Namespace string // Filename suffix that partitions the root directory.
	RootDir   string // Directory holding event files. Not created by the store.
	Key       string // Encryption key passed to the cipher.
}

// Validate checks the configuration. Empty namespaces are rejected because
// they would make every file in the root directory part of the namespace.
func (c Config) Validate() error {
	if c.Namespace == "" {
		return fmt.Errorf("%w: namespace suffix is empty", ErrInvalidConfig)
	}
	if strings.ContainsAny(c.Namespace, "/\\\x00") {
		return fmt.Errorf("%w: namespace %q contains a path separator", ErrInvalidConfig, c.Namespace)
	}
	if c.RootDir == "" {
		return fmt.Errorf("%w: root directory is empty", ErrInvalidConfig)
	}
	return nil
}

// String describes the configuration with the key masked.
func (c Config) String() string {
	return fmt.Sprintf("namespace=%q root=%q key=%q", c.Namespace, c.RootDir, security.MaskSecret(c.Key, 2))
}

// Outcome classifies the result of a store operation.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNotFound
	OutcomeRejected
	OutcomeIOFailure
	OutcomeDecryptFailure
)

// Classify maps an error returned by an EventStore to an Outcome. Errors
// that are neither validation, lookup nor decryption failures are treated
// as I/O failures.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrInvalid):
		return OutcomeRejected
	case errors.Is(err, ErrDecrypt):
		return OutcomeDecryptFailure
	default:
		return OutcomeIOFailure
	}
}

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not-found"
	case OutcomeRejected:
		return "validation-rejected"
	case OutcomeIOFailure:
		return "io-failure"
	case OutcomeDecryptFailure:
		return "decrypt-failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}
