package messaging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/internal/infrastructure/persistence/memory"
	"github.com/fitpulse/challenge-engine/pkg/timeutil"
)

func quietBusConfig() InMemoryEventBusConfig {
	cfg := DefaultInMemoryEventBusConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func TestEventBus_PublishToSubscriber(t *testing.T) {
	bus := NewInMemoryEventBus(quietBusConfig())
	defer bus.Close()

	var got []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventParticipantJoined, func(e shared.Event) error {
		got = append(got, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewParticipantJoinedEvent("ch1", "user1", false)))
	// A different type goes nowhere.
	require.NoError(t, bus.Publish(shared.NewParticipantLeftEvent("ch1", "user1")))

	assert.Equal(t, []shared.EventType{shared.EventParticipantJoined}, got)
}

func TestEventBus_SubscribeAll(t *testing.T) {
	bus := NewInMemoryEventBus(quietBusConfig())
	defer bus.Close()

	count := 0
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		count++
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewParticipantJoinedEvent("ch1", "user1", false)))
	require.NoError(t, bus.Publish(shared.NewParticipantLeftEvent("ch1", "user1")))
	assert.Equal(t, 2, count)
}

func TestEventBus_SyncPublishReturnsHandlerError(t *testing.T) {
	bus := NewInMemoryEventBus(quietBusConfig())
	defer bus.Close()

	want := errors.New("downstream unavailable")
	require.NoError(t, bus.Subscribe(shared.EventParticipantJoined, func(shared.Event) error {
		return want
	}))

	err := bus.Publish(shared.NewParticipantJoinedEvent("ch1", "user1", false))
	assert.ErrorIs(t, err, want)
}

func TestEventBus_RecoversHandlerPanic(t *testing.T) {
	bus := NewInMemoryEventBus(quietBusConfig())
	defer bus.Close()

	require.NoError(t, bus.Subscribe(shared.EventParticipantJoined, func(shared.Event) error {
		panic("boom")
	}))

	err := bus.Publish(shared.NewParticipantJoinedEvent("ch1", "user1", false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler panic")
}

func TestEventBus_NilHandlerRejected(t *testing.T) {
	bus := NewInMemoryEventBus(quietBusConfig())
	defer bus.Close()

	assert.ErrorIs(t, bus.Subscribe(shared.EventParticipantJoined, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.SubscribeAll(nil), ErrNilHandler)
}

func TestEventBus_ClosedBusRejectsOperations(t *testing.T) {
	bus := NewInMemoryEventBus(quietBusConfig())
	require.NoError(t, bus.Close())
	// Closing twice is a no-op.
	require.NoError(t, bus.Close())

	err := bus.Publish(shared.NewParticipantJoinedEvent("ch1", "user1", false))
	assert.ErrorIs(t, err, ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventParticipantJoined, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestEventBus_AsyncModeRunsHandlers(t *testing.T) {
	cfg := quietBusConfig()
	cfg.AsyncMode = true
	cfg.WorkerPoolSize = 2
	bus := NewInMemoryEventBus(cfg)

	var mu sync.Mutex
	count := 0
	require.NoError(t, bus.Subscribe(shared.EventParticipantJoined, func(shared.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(shared.NewParticipantJoinedEvent("ch1", "user1", false)))
	}

	// Close waits for in-flight handlers.
	require.NoError(t, bus.Close())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, count)
}

func TestEventBus_Metrics(t *testing.T) {
	bus := NewInMemoryEventBus(quietBusConfig())
	defer bus.Close()

	require.NoError(t, bus.Subscribe(shared.EventParticipantJoined, func(shared.Event) error { return nil }))
	require.NoError(t, bus.Subscribe(shared.EventParticipantLeft, func(shared.Event) error { return errors.New("nope") }))

	require.NoError(t, bus.Publish(shared.NewParticipantJoinedEvent("ch1", "user1", false)))
	_ = bus.Publish(shared.NewParticipantLeftEvent("ch1", "user1"))

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalPublished)
	assert.Equal(t, int64(2), snap.TotalExecutions)
	assert.Equal(t, int64(1), snap.TotalFailures)
	assert.Equal(t, 0.5, snap.SuccessRate)
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOX RELAY
// ══════════════════════════════════════════════════════════════════════════════

func newRelay(t *testing.T, outbox shared.Outbox, bus shared.EventBus, maxAttempts int) (*OutboxRelay, *timeutil.FrozenClock) {
	t.Helper()
	clock := timeutil.NewFrozenClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	cfg := DefaultOutboxRelayConfig(outbox, bus)
	cfg.Clock = clock
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	return NewOutboxRelay(cfg), clock
}

func TestOutboxRelay_DrainDispatchesPending(t *testing.T) {
	outbox := memory.NewOutbox()
	bus := NewInMemoryEventBus(quietBusConfig())
	defer bus.Close()

	var seen []string
	require.NoError(t, bus.Subscribe(shared.EventParticipantJoined, func(e shared.Event) error {
		seen = append(seen, e.AggregateID())
		return nil
	}))

	ctx := context.Background()
	require.NoError(t, outbox.Append(ctx,
		shared.NewParticipantJoinedEvent("ch1", "user1", false),
		shared.NewParticipantJoinedEvent("ch2", "user2", false),
	))

	relay, _ := newRelay(t, outbox, bus, 0)
	require.NoError(t, relay.Drain(ctx))

	assert.Equal(t, []string{"ch1", "ch2"}, seen)

	pending, err := outbox.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxRelay_RetriesFailedDelivery(t *testing.T) {
	outbox := memory.NewOutbox()
	bus := NewInMemoryEventBus(quietBusConfig())
	defer bus.Close()

	calls := 0
	require.NoError(t, bus.Subscribe(shared.EventParticipantJoined, func(shared.Event) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	}))

	ctx := context.Background()
	require.NoError(t, outbox.Append(ctx, shared.NewParticipantJoinedEvent("ch1", "user1", false)))

	relay, _ := newRelay(t, outbox, bus, 5)

	// First pass fails and the entry stays pending with one attempt recorded.
	require.NoError(t, relay.Drain(ctx))
	pending, err := outbox.ListPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)

	// Second pass succeeds and retires the entry.
	require.NoError(t, relay.Drain(ctx))
	pending, err = outbox.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, 2, calls)
	assert.Empty(t, relay.DeadLetter())
}

func TestOutboxRelay_ParksAfterMaxAttempts(t *testing.T) {
	outbox := memory.NewOutbox()
	bus := NewInMemoryEventBus(quietBusConfig())
	defer bus.Close()

	poison := errors.New("poison event")
	require.NoError(t, bus.Subscribe(shared.EventParticipantJoined, func(shared.Event) error {
		return poison
	}))

	ctx := context.Background()
	require.NoError(t, outbox.Append(ctx, shared.NewParticipantJoinedEvent("ch1", "user1", false)))

	relay, _ := newRelay(t, outbox, bus, 2)

	// First failure counts an attempt, second failure reaches the limit.
	require.NoError(t, relay.Drain(ctx))
	require.NoError(t, relay.Drain(ctx))

	dead := relay.DeadLetter()
	require.Len(t, dead, 1)
	assert.Equal(t, shared.EventParticipantJoined, dead[0].Entry.Type)
	assert.ErrorIs(t, dead[0].Error, poison)

	// The parked entry no longer comes back on subsequent polls.
	pending, err := outbox.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxRelay_RunStopsOnContextCancel(t *testing.T) {
	outbox := memory.NewOutbox()
	bus := NewInMemoryEventBus(quietBusConfig())
	defer bus.Close()

	relay, _ := newRelay(t, outbox, bus, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop after cancellation")
	}
}
