package participant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitpulse/challenge-engine/internal/domain/challenge"
)

var testRules = challenge.PointRules{
	Goal:          100,
	PointsPerUnit: 10,
	BonusPoints:   50,
}

func newTestParticipant(t *testing.T) *Participant {
	t.Helper()
	p, err := NewParticipant("p1", "ch1", "user1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return p
}

func TestNewParticipant(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	p, err := NewParticipant("p1", "ch1", "user1", now)
	require.NoError(t, err)

	assert.Equal(t, StatusActive, p.Status)
	assert.Equal(t, 0.0, p.Progress)
	assert.Equal(t, 0, p.PointsEarned)
	assert.False(t, p.IsCompleted)
	assert.Nil(t, p.CompletedAt)
	assert.Equal(t, now, p.JoinedAt)
}

func TestNewParticipant_RequiredFields(t *testing.T) {
	now := time.Now()

	_, err := NewParticipant("", "ch1", "user1", now)
	assert.Error(t, err)

	_, err = NewParticipant("p1", "", "user1", now)
	assert.Error(t, err)

	_, err = NewParticipant("p1", "ch1", "", now)
	assert.Error(t, err)
}

func TestPointsFor(t *testing.T) {
	assert.Equal(t, 600, PointsFor(60, false, testRules))
	assert.Equal(t, 0, PointsFor(0, false, testRules))

	// Fractional progress floors before the bonus is added.
	assert.Equal(t, 255, PointsFor(25.55, false, testRules))
	assert.Equal(t, 1050, PointsFor(100, true, testRules))
}

func TestApplyProgress_Increment(t *testing.T) {
	p := newTestParticipant(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	outcome, err := p.ApplyProgress(60, ModeIncrement, testRules, now)
	require.NoError(t, err)

	assert.Equal(t, 0.0, outcome.PreviousProgress)
	assert.Equal(t, 60.0, outcome.NewProgress)
	assert.Equal(t, 600, outcome.NewPoints)
	assert.Equal(t, 600, outcome.PointsDelta)
	assert.False(t, outcome.CompletedNow)
	assert.False(t, p.IsCompleted)
	assert.Equal(t, StatusActive, p.Status)
}

func TestApplyProgress_CompletionLatch(t *testing.T) {
	p := newTestParticipant(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	_, err := p.ApplyProgress(60, ModeIncrement, testRules, now)
	require.NoError(t, err)

	later := now.Add(time.Hour)
	outcome, err := p.ApplyProgress(45, ModeIncrement, testRules, later)
	require.NoError(t, err)

	assert.Equal(t, 105.0, outcome.NewProgress)
	assert.True(t, outcome.CompletedNow)
	// floor(105 * 10) + 50 bonus
	assert.Equal(t, 1100, outcome.NewPoints)
	assert.Equal(t, 500, outcome.PointsDelta)

	assert.True(t, p.IsCompleted)
	assert.Equal(t, StatusCompleted, p.Status)
	require.NotNil(t, p.CompletedAt)
	assert.Equal(t, later, *p.CompletedAt)
}

func TestApplyProgress_LatchFiresOnce(t *testing.T) {
	p := newTestParticipant(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	outcome, err := p.ApplyProgress(100, ModeIncrement, testRules, now)
	require.NoError(t, err)
	assert.True(t, outcome.CompletedNow)
	completedAt := *p.CompletedAt

	// Further progress keeps accumulating but never re-fires the latch
	// or re-adds the bonus.
	later := now.Add(time.Hour)
	outcome, err = p.ApplyProgress(50, ModeIncrement, testRules, later)
	require.NoError(t, err)
	assert.False(t, outcome.CompletedNow)
	assert.Equal(t, 150.0, p.Progress)
	assert.Equal(t, 1550, p.PointsEarned)
	assert.Equal(t, completedAt, *p.CompletedAt)
}

func TestApplyProgress_OverwriteBelowGoalKeepsLatch(t *testing.T) {
	p := newTestParticipant(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	_, err := p.ApplyProgress(120, ModeIncrement, testRules, now)
	require.NoError(t, err)
	require.True(t, p.IsCompleted)

	outcome, err := p.ApplyProgress(40, ModeOverwrite, testRules, now.Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, 40.0, p.Progress)
	assert.True(t, p.IsCompleted, "the latch never un-fires")
	assert.Equal(t, StatusCompleted, p.Status)
	// Points recompute downward but the bonus stays.
	assert.Equal(t, 450, p.PointsEarned)
	assert.Equal(t, -750, outcome.PointsDelta)
}

func TestApplyProgress_InvalidMode(t *testing.T) {
	p := newTestParticipant(t)

	_, err := p.ApplyProgress(10, Mode("bogus"), testRules, time.Now())
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestApplyProgress_InactiveRejected(t *testing.T) {
	p := newTestParticipant(t)
	require.NoError(t, p.Deactivate(time.Now()))

	_, err := p.ApplyProgress(10, ModeIncrement, testRules, time.Now())
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestDeactivateReactivate(t *testing.T) {
	p := newTestParticipant(t)
	now := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

	_, err := p.ApplyProgress(30, ModeIncrement, testRules, now)
	require.NoError(t, err)

	require.NoError(t, p.Deactivate(now))
	assert.Equal(t, StatusInactive, p.Status)
	assert.ErrorIs(t, p.Deactivate(now), ErrNotActive)

	// Reactivation keeps prior progress and points.
	require.NoError(t, p.Reactivate(now))
	assert.Equal(t, StatusActive, p.Status)
	assert.Equal(t, 30.0, p.Progress)
	assert.Equal(t, 300, p.PointsEarned)

	assert.ErrorIs(t, p.Reactivate(now), ErrAlreadyActive)
}

func TestDeactivate_CompletedStays(t *testing.T) {
	p := newTestParticipant(t)
	now := time.Now().UTC()

	_, err := p.ApplyProgress(100, ModeIncrement, testRules, now)
	require.NoError(t, err)
	require.True(t, p.IsCompleted)

	assert.ErrorIs(t, p.Deactivate(now), ErrCompletedParticipant)
	assert.Equal(t, StatusCompleted, p.Status)
}

func TestStatusRanked(t *testing.T) {
	assert.True(t, StatusActive.Ranked())
	assert.True(t, StatusCompleted.Ranked())
	assert.False(t, StatusInactive.Ranked())
}

func TestTeamAssignment(t *testing.T) {
	p := newTestParticipant(t)
	now := time.Now().UTC()

	assert.False(t, p.OnTeam())

	p.AssignTeam("team1", now)
	assert.True(t, p.OnTeam())
	assert.Equal(t, "team1", p.TeamID)

	p.ClearTeam(now)
	assert.False(t, p.OnTeam())
}

func TestClone(t *testing.T) {
	p := newTestParticipant(t)
	now := time.Now().UTC()
	_, err := p.ApplyProgress(100, ModeIncrement, testRules, now)
	require.NoError(t, err)

	clone := p.Clone()
	require.NotNil(t, clone)

	*clone.CompletedAt = clone.CompletedAt.Add(time.Hour)
	clone.Status = StatusInactive

	assert.Equal(t, now, *p.CompletedAt)
	assert.Equal(t, StatusCompleted, p.Status)
}
