package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitpulse/challenge-engine/internal/domain/challenge"
	"github.com/fitpulse/challenge-engine/internal/domain/participant"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
)

// progressFixture joins user1 into an active challenge and returns a fully
// wired handler.
func progressFixture(t *testing.T, ledger PointLedger, inv LeaderboardInvalidator) (*fixture, *ApplyProgressHandler) {
	t.Helper()
	f := newFixture()
	f.seedChallenge(t, "ch1", challenge.TypeIndividual)

	_, err := f.joinHandler().Handle(context.Background(), JoinChallengeCommand{ChallengeID: "ch1", UserID: "user1"})
	require.NoError(t, err)

	h := NewApplyProgressHandler(f.challenges, f.participants, ledger, f.outbox, inv, nil, f.clock, f.logger)
	return f, h
}

func TestApplyProgress(t *testing.T) {
	ledger := &stubLedger{}
	inv := &stubInvalidator{}
	f, h := progressFixture(t, ledger, inv)

	result, err := h.Handle(context.Background(), ApplyProgressCommand{
		ChallengeID: "ch1", UserID: "user1", Value: 60,
	})
	require.NoError(t, err)

	assert.Equal(t, 60.0, result.Outcome.NewProgress)
	assert.Equal(t, 600, result.Outcome.PointsDelta)
	assert.False(t, result.Outcome.CompletedNow)

	// The positive delta was credited and the cache dropped.
	require.NotNil(t, result.Receipt)
	require.Len(t, ledger.requests, 1)
	assert.Equal(t, 600, ledger.requests[0].Points)
	assert.Equal(t, LedgerSource, ledger.requests[0].Reason)
	assert.Equal(t, []string{"ch1"}, inv.invalidated)

	// progress event persisted with state, credit acknowledgment appended after.
	types := f.eventTypes()
	assert.Contains(t, types, shared.EventProgressApplied)
	assert.Contains(t, types, shared.EventPointsCredited)
}

func TestApplyProgress_CompletionEmitsEventOnce(t *testing.T) {
	f, h := progressFixture(t, &stubLedger{}, nil)

	result, err := h.Handle(context.Background(), ApplyProgressCommand{
		ChallengeID: "ch1", UserID: "user1", Value: 100,
	})
	require.NoError(t, err)
	assert.True(t, result.Outcome.CompletedNow)
	assert.Equal(t, 1050, result.Participant.PointsEarned)

	// Past-goal progress never emits a second completion.
	result, err = h.Handle(context.Background(), ApplyProgressCommand{
		ChallengeID: "ch1", UserID: "user1", Value: 20,
	})
	require.NoError(t, err)
	assert.False(t, result.Outcome.CompletedNow)

	completions := 0
	for _, typ := range f.eventTypes() {
		if typ == shared.EventChallengeCompleted {
			completions++
		}
	}
	assert.Equal(t, 1, completions)
}

func TestApplyProgress_DownwardOverwriteSkipsLedger(t *testing.T) {
	ledger := &stubLedger{}
	_, h := progressFixture(t, ledger, nil)

	_, err := h.Handle(context.Background(), ApplyProgressCommand{
		ChallengeID: "ch1", UserID: "user1", Value: 60,
	})
	require.NoError(t, err)
	require.Len(t, ledger.requests, 1)

	result, err := h.Handle(context.Background(), ApplyProgressCommand{
		ChallengeID: "ch1", UserID: "user1", Value: 20, Mode: participant.ModeOverwrite,
	})
	require.NoError(t, err)

	assert.Equal(t, 20.0, result.Outcome.NewProgress)
	assert.Equal(t, -400, result.Outcome.PointsDelta)
	assert.Len(t, ledger.requests, 1, "negative deltas never reach the ledger")
}

func TestApplyProgress_LedgerFailureIsWarning(t *testing.T) {
	ledger := &stubLedger{failWith: errLedgerDown}
	f, h := progressFixture(t, ledger, nil)

	result, err := h.Handle(context.Background(), ApplyProgressCommand{
		ChallengeID: "ch1", UserID: "user1", Value: 30,
	})
	require.NoError(t, err, "the progress write itself committed")

	assert.Nil(t, result.Receipt)
	require.Error(t, result.LedgerWarning)
	assert.True(t, shared.IsSideEffect(result.LedgerWarning))

	stored, err := f.participants.GetByChallengeAndUser(context.Background(), "ch1", "user1")
	require.NoError(t, err)
	assert.Equal(t, 30.0, stored.Progress)
	assert.Equal(t, 300, stored.PointsEarned)
}

func TestApplyProgress_InactiveChallenge(t *testing.T) {
	f := newFixture()
	ch := f.seedChallenge(t, "ch1", challenge.TypeIndividual)
	_, err := f.joinHandler().Handle(context.Background(), JoinChallengeCommand{ChallengeID: "ch1", UserID: "user1"})
	require.NoError(t, err)

	require.NoError(t, ch.Cancel(f.clock.Now()))
	require.NoError(t, f.challenges.Update(context.Background(), ch, nil))

	h := NewApplyProgressHandler(f.challenges, f.participants, nil, f.outbox, nil, nil, f.clock, f.logger)
	_, err = h.Handle(context.Background(), ApplyProgressCommand{ChallengeID: "ch1", UserID: "user1", Value: 10})
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestApplyProgress_NonParticipant(t *testing.T) {
	f := newFixture()
	f.seedChallenge(t, "ch1", challenge.TypeIndividual)

	h := NewApplyProgressHandler(f.challenges, f.participants, nil, f.outbox, nil, nil, f.clock, f.logger)
	_, err := h.Handle(context.Background(), ApplyProgressCommand{ChallengeID: "ch1", UserID: "ghost", Value: 10})
	assert.True(t, shared.IsNotFound(err))
}

func TestApplyProgress_Validation(t *testing.T) {
	f := newFixture()
	h := NewApplyProgressHandler(f.challenges, f.participants, nil, f.outbox, nil, nil, f.clock, f.logger)

	_, err := h.Handle(context.Background(), ApplyProgressCommand{UserID: "user1", Value: 10})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), ApplyProgressCommand{
		ChallengeID: "ch1", UserID: "user1", Value: 10, Mode: participant.Mode("bogus"),
	})
	assert.True(t, shared.IsValidation(err))
}

func TestApplyProgress_TriggersTeamRecalc(t *testing.T) {
	f := newFixture()
	ch := f.seedChallenge(t, "ch1", challenge.TypeTeam)
	recalc := f.recalculator()
	createTeam := NewCreateTeamHandler(f.challenges, f.participants, f.teams, f.clock, f.logger)

	teamResult, err := createTeam.Handle(context.Background(), CreateTeamCommand{
		ChallengeID: ch.ID, CaptainID: "captain", Name: "Road Runners",
	})
	require.NoError(t, err)

	h := NewApplyProgressHandler(f.challenges, f.participants, nil, f.outbox, nil, recalc, f.clock, f.logger)
	result, err := h.Handle(context.Background(), ApplyProgressCommand{
		ChallengeID: ch.ID, UserID: "captain", Value: 70,
	})
	require.NoError(t, err)
	assert.True(t, result.TeamRecalculated)

	stored, err := f.teams.GetByID(context.Background(), teamResult.Team.ID)
	require.NoError(t, err)
	assert.Equal(t, 70.0, stored.TotalProgress)
}
