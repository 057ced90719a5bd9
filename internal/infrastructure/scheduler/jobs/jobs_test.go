package jobs

import (
	"context"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitpulse/challenge-engine/internal/application/command"
	"github.com/fitpulse/challenge-engine/internal/application/query"
	"github.com/fitpulse/challenge-engine/internal/domain/challenge"
	"github.com/fitpulse/challenge-engine/internal/domain/participant"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/internal/infrastructure/persistence/memory"
	"github.com/fitpulse/challenge-engine/internal/infrastructure/persistence/projections"
	"github.com/fitpulse/challenge-engine/pkg/timeutil"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedChallenge(t *testing.T, repo *memory.ChallengeRepository, id string, start, end time.Time) *challenge.Challenge {
	t.Helper()

	ch, err := challenge.NewChallenge(challenge.NewChallengeParams{
		ID:        id,
		CreatorID: "creator",
		Name:      "Challenge " + id,
		Type:      challenge.TypeIndividual,
		Category:  challenge.Category("running"),
		Rules: challenge.PointRules{
			Goal:          100,
			PointsPerUnit: 10,
			BonusPoints:   50,
		},
		Unit:       "km",
		StartDate:  start,
		EndDate:    end,
		Visibility: challenge.VisibilityPublic,
	}, testNow)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), ch, nil))
	return ch
}

func TestLifecycleSweepJob(t *testing.T) {
	outbox := memory.NewOutbox()
	challenges := memory.NewChallengeRepository(outbox)
	clock := timeutil.NewFrozenClock(testNow)

	// Opens in an hour, ends in a day.
	seedChallenge(t, challenges, "ch-upcoming", testNow.Add(time.Hour), testNow.Add(24*time.Hour))
	// Already past its end date but still marked active.
	seedChallenge(t, challenges, "ch-ending", testNow.Add(-48*time.Hour), testNow.Add(time.Hour))

	lifecycle := command.NewLifecycleHandler(challenges, clock, quietLogger())
	job := NewLifecycleSweepJob(lifecycle, quietLogger())

	assert.Equal(t, "lifecycle_sweep", job.Name())

	// Nothing crosses a boundary yet.
	require.NoError(t, job.Run(context.Background()))
	ch, err := challenges.GetByID(context.Background(), "ch-upcoming")
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusUpcoming, ch.Status)

	// Two hours later the upcoming challenge has opened and the other closed.
	clock.Advance(2 * time.Hour)
	require.NoError(t, job.Run(context.Background()))

	ch, err = challenges.GetByID(context.Background(), "ch-upcoming")
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusActive, ch.Status)

	ch, err = challenges.GetByID(context.Background(), "ch-ending")
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCompleted, ch.Status)
}

func TestLeaderboardRefreshJob(t *testing.T) {
	outbox := memory.NewOutbox()
	challenges := memory.NewChallengeRepository(outbox)
	participants := memory.NewParticipantRepository(outbox)
	teams := memory.NewTeamRepository(outbox)
	clock := timeutil.NewFrozenClock(testNow)
	view := projections.NewLeaderboardView(clock)

	seedChallenge(t, challenges, "ch1", testNow.Add(-time.Hour), testNow.Add(24*time.Hour))

	p, err := participant.NewParticipant("p1", "ch1", "user1", testNow)
	require.NoError(t, err)
	require.NoError(t, participants.Create(context.Background(), p, nil))

	boards := query.NewGetLeaderboardHandler(challenges, participants, teams, view, time.Minute, clock, quietLogger())
	job := NewLeaderboardRefreshJob(challenges, boards, quietLogger())

	require.NoError(t, job.Run(context.Background()))

	// The first page is warm now.
	assert.Equal(t, 1, view.Stats().IndividualPages)

	result, err := boards.Handle(context.Background(), query.GetLeaderboardQuery{ChallengeID: "ch1"})
	require.NoError(t, err)
	assert.True(t, result.FromCache)
}

func TestOutboxCleanupJob(t *testing.T) {
	outbox := memory.NewOutbox()
	clock := timeutil.NewFrozenClock(testNow)
	ctx := context.Background()

	require.NoError(t, outbox.Append(ctx,
		shared.NewParticipantJoinedEvent("ch1", "user1", false),
		shared.NewParticipantJoinedEvent("ch1", "user2", false),
		shared.NewParticipantJoinedEvent("ch1", "user3", false),
	))
	entries := outbox.All()
	require.Len(t, entries, 3)

	// The first entry was dispatched long ago, the second just now; the
	// third is still pending.
	require.NoError(t, outbox.MarkDispatched(ctx, entries[0].ID, testNow))
	require.NoError(t, outbox.MarkDispatched(ctx, entries[1].ID, testNow.Add(2*time.Hour)))

	clock.Advance(25 * time.Hour)

	job := NewOutboxCleanupJob(outbox, clock, 24*time.Hour, quietLogger())
	require.NoError(t, job.Run(ctx))

	remaining := outbox.All()
	ids := make([]string, 0, len(remaining))
	for _, entry := range remaining {
		ids = append(ids, entry.ID)
	}
	assert.ElementsMatch(t, []string{entries[1].ID, entries[2].ID}, ids)
}
