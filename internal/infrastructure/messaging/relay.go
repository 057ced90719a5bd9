package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOX RELAY
// ══════════════════════════════════════════════════════════════════════════════

// OutboxRelay polls the transactional outbox and publishes pending entries
// on the event bus. An entry is marked dispatched only after every
// subscribed handler succeeded, so failed deliveries are retried on the
// next poll. Entries past MaxAttempts are parked in a dead letter list.
type OutboxRelay struct {
	outbox     shared.Outbox
	bus        shared.EventBus
	clock      timeutil.Clock
	logger     *slog.Logger
	interval   time.Duration
	batchSize  int
	maxRetries int

	mu         sync.Mutex
	deadLetter []DeadLetterEntry
}

// DeadLetterEntry records an outbox entry that exhausted its delivery attempts.
type DeadLetterEntry struct {
	Entry    shared.OutboxEntry
	Error    error
	FailedAt time.Time
}

// OutboxRelayConfig configures the relay.
type OutboxRelayConfig struct {
	// Outbox is the store to poll.
	Outbox shared.Outbox

	// Bus receives the reconstituted events.
	Bus shared.EventBus

	// PollInterval is the time between polls.
	PollInterval time.Duration

	// BatchSize is the maximum entries fetched per poll.
	BatchSize int

	// MaxAttempts is the delivery attempt limit per entry.
	MaxAttempts int

	// Clock supplies dispatch timestamps.
	Clock timeutil.Clock

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultOutboxRelayConfig returns sensible defaults.
func DefaultOutboxRelayConfig(outbox shared.Outbox, bus shared.EventBus) OutboxRelayConfig {
	return OutboxRelayConfig{
		Outbox:       outbox,
		Bus:          bus,
		PollInterval: 2 * time.Second,
		BatchSize:    50,
		MaxAttempts:  5,
	}
}

// NewOutboxRelay creates a relay from the given config.
func NewOutboxRelay(config OutboxRelayConfig) *OutboxRelay {
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.Clock == nil {
		config.Clock = timeutil.SystemClock{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &OutboxRelay{
		outbox:     config.Outbox,
		bus:        config.Bus,
		clock:      config.Clock,
		logger:     config.Logger.With("component", "outbox_relay"),
		interval:   config.PollInterval,
		batchSize:  config.BatchSize,
		maxRetries: config.MaxAttempts,
	}
}

// Run polls until the context is cancelled. It drains once immediately so
// a fresh worker does not wait a full interval before its first pass.
func (r *OutboxRelay) Run(ctx context.Context) error {
	r.logger.Info("outbox relay started",
		"poll_interval", r.interval,
		"batch_size", r.batchSize,
	)

	if err := r.Drain(ctx); err != nil {
		r.logger.Error("initial drain failed", "error", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Drain(ctx); err != nil {
				r.logger.Error("drain failed", "error", err)
			}
		}
	}
}

// Drain performs a single poll-and-publish pass. It keeps going past
// individual entry failures so one poisoned event cannot stall the queue.
func (r *OutboxRelay) Drain(ctx context.Context) error {
	entries, err := r.outbox.ListPending(ctx, r.batchSize)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		r.deliver(ctx, entry)
	}
	return nil
}

func (r *OutboxRelay) deliver(ctx context.Context, entry shared.OutboxEntry) {
	err := r.bus.Publish(entry.Event())
	if err == nil {
		if markErr := r.outbox.MarkDispatched(ctx, entry.ID, r.clock.Now()); markErr != nil {
			r.logger.Error("failed to mark entry dispatched",
				"entry_id", entry.ID,
				"event_type", entry.Type,
				"error", markErr,
			)
		}
		return
	}

	r.logger.Warn("event delivery failed",
		"entry_id", entry.ID,
		"event_type", entry.Type,
		"attempts", entry.Attempts+1,
		"error", err,
	)

	// Attempts is the count before this delivery.
	if entry.Attempts+1 >= r.maxRetries {
		r.park(ctx, entry, err)
		return
	}

	if markErr := r.outbox.MarkFailed(ctx, entry.ID); markErr != nil {
		r.logger.Error("failed to mark entry failed",
			"entry_id", entry.ID,
			"error", markErr,
		)
	}
}

// park moves an entry to the dead letter list and marks it dispatched so
// the relay stops retrying it. The list is inspectable for manual replay.
func (r *OutboxRelay) park(ctx context.Context, entry shared.OutboxEntry, cause error) {
	now := r.clock.Now()

	r.mu.Lock()
	r.deadLetter = append(r.deadLetter, DeadLetterEntry{
		Entry:    entry,
		Error:    cause,
		FailedAt: now,
	})
	r.mu.Unlock()

	r.logger.Error("entry moved to dead letter list",
		"entry_id", entry.ID,
		"event_type", entry.Type,
		"attempts", entry.Attempts+1,
		"error", cause,
	)

	if err := r.outbox.MarkDispatched(ctx, entry.ID, now); err != nil {
		r.logger.Error("failed to retire dead lettered entry",
			"entry_id", entry.ID,
			"error", err,
		)
	}
}

// DeadLetter returns a copy of the parked entries.
func (r *OutboxRelay) DeadLetter() []DeadLetterEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]DeadLetterEntry, len(r.deadLetter))
	copy(out, r.deadLetter)
	return out
}
