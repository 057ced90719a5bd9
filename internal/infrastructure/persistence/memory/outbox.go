// Package memory provides in-memory implementations of the persistence
// interfaces. They back the unit tests and single-process development runs;
// the semantics (uniqueness, optimistic versions, outbox appends) mirror the
// Postgres implementations exactly.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fitpulse/challenge-engine/internal/domain/shared"
)

// Outbox is an in-memory transactional outbox. The repositories append to it
// under their own locks, emulating the shared transaction of the Postgres
// implementation.
type Outbox struct {
	mu      sync.Mutex
	entries []shared.OutboxEntry
}

// NewOutbox creates an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

// Append stores events directly, outside a repository write.
func (o *Outbox) Append(_ context.Context, events ...shared.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.append(events)
	return nil
}

// append is the lock-free insert shared with the repositories, which call it
// while holding their own mutex around the state change.
func (o *Outbox) append(events []shared.Event) {
	for _, ev := range events {
		if ev == nil {
			continue
		}
		o.entries = append(o.entries, shared.NewOutboxEntry(uuid.New().String(), ev))
	}
}

// ListPending returns up to limit undelivered entries, oldest first.
func (o *Outbox) ListPending(_ context.Context, limit int) ([]shared.OutboxEntry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	pending := make([]shared.OutboxEntry, 0)
	for _, e := range o.entries {
		if e.Pending() {
			pending = append(pending, e)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// MarkDispatched marks an entry as delivered.
func (o *Outbox) MarkDispatched(_ context.Context, id string, at time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i := range o.entries {
		if o.entries[i].ID == id {
			at := at.UTC()
			o.entries[i].DispatchedAt = &at
			return nil
		}
	}
	return shared.ErrNotFound
}

// MarkFailed increments the attempt counter after a failed delivery.
func (o *Outbox) MarkFailed(_ context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i := range o.entries {
		if o.entries[i].ID == id {
			o.entries[i].Attempts++
			return nil
		}
	}
	return shared.ErrNotFound
}

// DeleteDispatched removes delivered entries older than the given time.
func (o *Outbox) DeleteDispatched(_ context.Context, olderThan time.Time) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	kept := o.entries[:0]
	removed := 0
	for _, e := range o.entries {
		if e.DispatchedAt != nil && e.DispatchedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	o.entries = kept
	return removed, nil
}

// All returns every entry, for tests.
func (o *Outbox) All() []shared.OutboxEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]shared.OutboxEntry, len(o.entries))
	copy(out, o.entries)
	return out
}
