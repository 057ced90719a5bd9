package shared

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTIONAL OUTBOX
// State-changing operations append their domain events to the outbox in the
// same transaction as the state write. A separate dispatcher delivers them to
// the event bus and external collaborators, so side effects never block or
// roll back the core write.
// ══════════════════════════════════════════════════════════════════════════════

// OutboxEntry is one stored, not-yet-delivered domain event.
type OutboxEntry struct {
	// ID - unique identifier of the entry.
	ID string

	// Type - domain event type.
	Type EventType

	// AggregateID - ID of the aggregate that produced the event.
	AggregateID string

	// Payload - serialized event payload.
	Payload map[string]interface{}

	// CreatedAt - when the entry was appended.
	CreatedAt time.Time

	// DispatchedAt - when the entry was delivered (nil while pending).
	DispatchedAt *time.Time

	// Attempts - delivery attempts so far.
	Attempts int
}

// Pending reports whether the entry still awaits delivery.
func (e *OutboxEntry) Pending() bool {
	return e.DispatchedAt == nil
}

// Event reconstitutes the entry as a deliverable domain event. Consumers on
// the bus side see the stored payload map rather than the original struct.
func (e *OutboxEntry) Event() Event {
	return StoredEvent{entry: *e}
}

// StoredEvent is an outbox entry viewed as a domain event.
type StoredEvent struct {
	entry OutboxEntry
}

func (e StoredEvent) EventType() EventType            { return e.entry.Type }
func (e StoredEvent) OccurredAt() time.Time           { return e.entry.CreatedAt }
func (e StoredEvent) AggregateID() string             { return e.entry.AggregateID }
func (e StoredEvent) Payload() map[string]interface{} { return e.entry.Payload }

// NewOutboxEntry builds an entry from a domain event.
func NewOutboxEntry(id string, event Event) OutboxEntry {
	return OutboxEntry{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Payload:     event.Payload(),
		CreatedAt:   event.OccurredAt(),
	}
}

// Outbox defines the delivery-side contract over stored events.
// The append side is part of each repository's Save operation so the write
// shares the state transaction.
type Outbox interface {
	// Append stores events outside a repository write. Used for events whose
	// trigger is itself a side effect, such as a confirmed ledger credit.
	Append(ctx context.Context, events ...Event) error

	// ListPending returns up to limit undelivered entries, oldest first.
	ListPending(ctx context.Context, limit int) ([]OutboxEntry, error)

	// MarkDispatched marks an entry as delivered.
	MarkDispatched(ctx context.Context, id string, at time.Time) error

	// MarkFailed increments the attempt counter after a failed delivery.
	MarkFailed(ctx context.Context, id string) error

	// DeleteDispatched removes delivered entries older than the given time.
	// Returns the number of removed entries.
	DeleteDispatched(ctx context.Context, olderThan time.Time) (int, error)
}
