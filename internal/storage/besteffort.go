package storage

import (
	"context"

	"github.com/overhuman/eventstore/internal/event"
	"github.com/overhuman/eventstore/internal/observability"
)

// BestEffort exposes an EventStore with the log-and-continue contract used
// by telemetry callers: no method returns an error, failures are logged and
// turned into empty, false or no-op results.
type BestEffort struct {
	store  EventStore
	logger *observability.Logger
}

// NewBestEffort wraps store. A nil logger discards failure reports.
func NewBestEffort(store EventStore, logger *observability.Logger) *BestEffort {
	if logger == nil {
		logger = observability.Discard()
	}
	return &BestEffort{store: store, logger: logger}
}

// Unwrap returns the underlying store.
func (b *BestEffort) Unwrap() EventStore {
	return b.store
}

// Store persists e, logging any failure.
func (b *BestEffort) Store(ctx context.Context, e event.Event) {
	if err := b.store.Store(ctx, e); err != nil {
		b.report("store", e.ID, err)
	}
}

// StoreAll persists each event, logging failures.
func (b *BestEffort) StoreAll(ctx context.Context, events []event.Event) {
	if len(events) == 0 {
		b.logger.Debug("no events to store")
		return
	}
	if err := b.store.StoreAll(ctx, events); err != nil {
		b.report("store_all", "", err)
	}
}

// Fetch returns the event for id, or false if it is missing or unreadable.
func (b *BestEffort) Fetch(ctx context.Context, id string) (event.Event, bool) {
	e, err := b.store.Fetch(ctx, id)
	if err != nil {
		b.report("fetch", id, err)
		return event.Event{}, false
	}
	return e, true
}

// FetchAll returns the readable events in the namespace, or none if the
// namespace cannot be listed.
func (b *BestEffort) FetchAll(ctx context.Context) []event.Event {
	events, err := b.store.FetchAll(ctx)
	if err != nil {
		b.report("fetch_all", "", err)
	}
	if events == nil {
		events = []event.Event{}
	}
	return events
}

// Delete reports whether an event was removed.
func (b *BestEffort) Delete(ctx context.Context, id string) bool {
	ok, err := b.store.Delete(ctx, id)
	if err != nil {
		b.report("delete", id, err)
	}
	return ok
}

// DeleteAll deletes each id, logging failures.
func (b *BestEffort) DeleteAll(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		b.logger.Debug("no events to delete")
		return
	}
	if err := b.store.DeleteAll(ctx, ids); err != nil {
		b.report("delete_all", "", err)
	}
}

// DeleteAllInNamespace purges the namespace, logging failures.
func (b *BestEffort) DeleteAllInNamespace(ctx context.Context) {
	if err := b.store.DeleteAllInNamespace(ctx); err != nil {
		b.report("purge", "", err)
	}
}

// Close closes the underlying store, logging failures.
func (b *BestEffort) Close() {
	if err := b.store.Close(); err != nil {
		b.report("close", "", err)
	}
}

// report logs err. Missing events are routine and logged at debug level.
func (b *BestEffort) report(op, id string, err error) {
	if Classify(err) == OutcomeNotFound {
		b.logger.Debug("event not found", "op", op, "id", id)
		return
	}
	b.logger.Op(op, id, err, "outcome", Classify(err).String())
}
