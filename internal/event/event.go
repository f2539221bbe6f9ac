// Package event defines the immutable telemetry record persisted by the store.
//
// An Event pairs a caller-assigned identifier with the canonical serialized
// form of the logical event (usually JSON text). The store never interprets
// the payload; it only encrypts, writes, reads and decrypts it.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrEmptyID is returned when an event identifier is empty.
	ErrEmptyID = errors.New("event id is empty")

	// ErrInvalidID is returned when an identifier cannot be used as a filename.
	ErrInvalidID = errors.New("event id is not a valid filename component")

	// ErrEmptyPayload is returned when an event has no serialized payload.
	ErrEmptyPayload = errors.New("event payload is empty")
)

// Event is an identifier plus serialized payload. The zero value is not valid.
type Event struct {
	ID      string `json:"id" yaml:"id"`
	Payload string `json:"payload" yaml:"payload"`
}

// New returns an event with the given id and serialized payload.
func New(id, payload string) Event {
	return Event{ID: id, Payload: payload}
}

// NewJSON marshals v to JSON and wraps it in an event with a fresh UUID.
func NewJSON(v any) (Event, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Event{}, fmt.Errorf("serialize event: %w", err)
	}
	return Event{ID: NewID(), Payload: string(data)}, nil
}

// NewID returns a random identifier suitable for use as an event id.
func NewID() string {
	return uuid.NewString()
}

// Deserialize reconstructs an event from its id and decrypted payload.
func Deserialize(id, serialized string) Event {
	return Event{ID: id, Payload: serialized}
}

// Serialize returns the canonical serialized form of the event.
func (e Event) Serialize() string {
	return e.Payload
}

// Decode unmarshals the JSON payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal([]byte(e.Payload), v); err != nil {
		return fmt.Errorf("decode event %q: %w", e.ID, err)
	}
	return nil
}

// IsZero reports whether e is the zero event.
func (e Event) IsZero() bool {
	return e.ID == "" && e.Payload == ""
}

// Validate checks that the event can be persisted.
func (e Event) Validate() error {
	if err := ValidateID(e.ID); err != nil {
		return err
	}
	if e.Payload == "" {
		return ErrEmptyPayload
	}
	return nil
}

// ValidateID checks that id can be used verbatim as part of a filename.
// Dot-prefixed ids are rejected; those names are reserved for bookkeeping
// files that share the store directory.
func ValidateID(id string) error {
	switch {
	case id == "":
		return ErrEmptyID
	case id == "." || id == "..":
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	case strings.HasPrefix(id, "."):
		return fmt.Errorf("%w: %q starts with a dot", ErrInvalidID, id)
	case strings.ContainsAny(id, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidID, id)
	}
	return nil
}
