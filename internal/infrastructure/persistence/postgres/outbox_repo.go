package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fitpulse/challenge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOX REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// OutboxRepository implements shared.Outbox for PostgreSQL. The aggregate
// repositories append rows through the same transaction as their state
// write; the relay reads them back through this type.
type OutboxRepository struct {
	conn *Connection
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(conn *Connection) *OutboxRepository {
	return &OutboxRepository{conn: conn}
}

// appendEvents inserts events as pending outbox rows using the given querier,
// which may be a transaction.
func appendEvents(ctx context.Context, q Querier, events []shared.Event) error {
	const query = `
		INSERT INTO outbox_events (id, event_type, aggregate_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	for _, event := range events {
		if event == nil {
			continue
		}
		payload, err := json.Marshal(event.Payload())
		if err != nil {
			return fmt.Errorf("failed to marshal event payload: %w", err)
		}
		_, err = q.Exec(ctx, query,
			uuid.New().String(),
			string(event.EventType()),
			event.AggregateID(),
			payload,
			event.OccurredAt().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to append outbox event: %w", err)
		}
	}
	return nil
}

// Append stores events outside an aggregate write.
func (r *OutboxRepository) Append(ctx context.Context, events ...shared.Event) error {
	return appendEvents(ctx, r.conn.Pool(), events)
}

// ListPending returns up to limit undelivered entries, oldest first.
func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]shared.OutboxEntry, error) {
	query := `
		SELECT id, event_type, aggregate_id, payload, created_at, dispatched_at, attempts
		FROM outbox_events
		WHERE dispatched_at IS NULL
		ORDER BY created_at ASC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending outbox events: %w", err)
	}
	defer rows.Close()

	entries := make([]shared.OutboxEntry, 0)
	for rows.Next() {
		var (
			entry       shared.OutboxEntry
			eventType   string
			payloadJSON []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&eventType,
			&entry.AggregateID,
			&payloadJSON,
			&entry.CreatedAt,
			&entry.DispatchedAt,
			&entry.Attempts,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		entry.Type = shared.EventType(eventType)
		if err := json.Unmarshal(payloadJSON, &entry.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal outbox payload: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkDispatched marks an entry as delivered.
func (r *OutboxRepository) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	result, err := r.conn.Exec(ctx,
		"UPDATE outbox_events SET dispatched_at = $1 WHERE id = $2",
		at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event dispatched: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.NewDomainError("outbox", "mark_dispatched", shared.ErrNotFound,
			"outbox entry not found: "+id)
	}
	return nil
}

// MarkFailed increments the attempt counter after a failed delivery.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id string) error {
	result, err := r.conn.Exec(ctx,
		"UPDATE outbox_events SET attempts = attempts + 1 WHERE id = $1",
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.NewDomainError("outbox", "mark_failed", shared.ErrNotFound,
			"outbox entry not found: "+id)
	}
	return nil
}

// DeleteDispatched removes delivered entries older than the given time.
func (r *OutboxRepository) DeleteDispatched(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := r.conn.Exec(ctx,
		"DELETE FROM outbox_events WHERE dispatched_at IS NOT NULL AND dispatched_at < $1",
		olderThan.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete dispatched outbox events: %w", err)
	}
	return int(result.RowsAffected()), nil
}
