package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitpulse/challenge-engine/internal/domain/challenge"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
)

// seedWindowed stores a challenge with an explicit window around the frozen
// clock, in whatever status the window implies.
func seedWindowed(t *testing.T, f *fixture, id string, start, end time.Time) *challenge.Challenge {
	t.Helper()
	ch, err := challenge.NewChallenge(challenge.NewChallengeParams{
		ID:        id,
		CreatorID: "creator",
		Name:      "Windowed " + id,
		Type:      challenge.TypeIndividual,
		Category:  challenge.Category("running"),
		Rules:     challenge.PointRules{Goal: 100, PointsPerUnit: 10},
		Unit:      "km",
		StartDate: start,
		EndDate:   end,
	}, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.challenges.Create(context.Background(), ch, nil))
	return ch
}

func TestSweep(t *testing.T) {
	f := newFixture()
	h := NewLifecycleHandler(f.challenges, f.clock, f.logger)
	now := f.clock.Now()

	// upcoming: opens in an hour; active: closes in a day; about to close.
	seedWindowed(t, f, "upcoming", now.Add(time.Hour), now.Add(48*time.Hour))
	seedWindowed(t, f, "running", now.Add(-time.Hour), now.Add(24*time.Hour))
	seedWindowed(t, f, "closing", now.Add(-48*time.Hour), now.Add(time.Minute))

	// Nothing crossed a boundary yet.
	result, err := h.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Examined)
	assert.Equal(t, 0, result.Activated)
	assert.Equal(t, 0, result.Completed)

	// Two hours later the upcoming one opened and the closing one ended.
	f.clock.Advance(2 * time.Hour)
	result, err = h.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Activated)
	assert.Equal(t, 1, result.Completed)

	opened, err := f.challenges.GetByID(context.Background(), "upcoming")
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusActive, opened.Status)

	closed, err := f.challenges.GetByID(context.Background(), "closing")
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCompleted, closed.Status)

	// Every transition left a status event behind.
	changes := 0
	for _, typ := range f.eventTypes() {
		if typ == shared.EventChallengeStatusChanged {
			changes++
		}
	}
	assert.Equal(t, 2, changes)
}

func TestSweep_SkipsTerminal(t *testing.T) {
	f := newFixture()
	h := NewLifecycleHandler(f.challenges, f.clock, f.logger)
	now := f.clock.Now()

	ch := seedWindowed(t, f, "cancelled", now.Add(-time.Hour), now.Add(24*time.Hour))
	require.NoError(t, ch.Cancel(now))
	require.NoError(t, f.challenges.Update(context.Background(), ch, nil))

	f.clock.Advance(48 * time.Hour)
	result, err := h.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Completed)

	stored, err := f.challenges.GetByID(context.Background(), "cancelled")
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCancelled, stored.Status)
}

func TestCancel(t *testing.T) {
	f := newFixture()
	ch := f.seedChallenge(t, "ch1", challenge.TypeIndividual)
	h := NewLifecycleHandler(f.challenges, f.clock, f.logger)

	cancelled, err := h.Cancel(context.Background(), CancelChallengeCommand{
		ChallengeID: ch.ID, RequestedBy: "creator",
	})
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCancelled, cancelled.Status)
	assert.Contains(t, f.eventTypes(), shared.EventChallengeStatusChanged)
}

func TestCancel_OnlyCreator(t *testing.T) {
	f := newFixture()
	ch := f.seedChallenge(t, "ch1", challenge.TypeIndividual)
	h := NewLifecycleHandler(f.challenges, f.clock, f.logger)

	_, err := h.Cancel(context.Background(), CancelChallengeCommand{
		ChallengeID: ch.ID, RequestedBy: "stranger",
	})
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestCancel_TerminalRejected(t *testing.T) {
	f := newFixture()
	ch := f.seedChallenge(t, "ch1", challenge.TypeIndividual)
	h := NewLifecycleHandler(f.challenges, f.clock, f.logger)

	_, err := h.Cancel(context.Background(), CancelChallengeCommand{ChallengeID: ch.ID, RequestedBy: "creator"})
	require.NoError(t, err)

	_, err = h.Cancel(context.Background(), CancelChallengeCommand{ChallengeID: ch.ID, RequestedBy: "creator"})
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}
