package challenge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() NewChallengeParams {
	return NewChallengeParams{
		ID:          "ch1",
		CreatorID:   "user1",
		Name:        "March Pushup Challenge",
		Description: "100 pushups over the month",
		Type:        TypeIndividual,
		Category:    Category("workout"),
		Rules: PointRules{
			Goal:          100,
			PointsPerUnit: 10,
			BonusPoints:   50,
		},
		Unit:       "reps",
		StartDate:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC),
		Visibility: VisibilityPublic,
	}
}

func TestNewChallenge(t *testing.T) {
	now := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)

	ch, err := NewChallenge(validParams(), now)
	require.NoError(t, err)

	assert.Equal(t, "ch1", ch.ID)
	assert.Equal(t, StatusUpcoming, ch.Status)
	assert.Equal(t, 0, ch.ParticipantCount)
	assert.Equal(t, now, ch.CreatedAt)
}

func TestNewChallenge_StatusFromWindow(t *testing.T) {
	params := validParams()

	ch, err := NewChallenge(params, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, StatusActive, ch.Status)

	ch, err = NewChallenge(params, time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, ch.Status)
}

func TestNewChallenge_Validation(t *testing.T) {
	now := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		mutate  func(*NewChallengeParams)
		wantErr error
	}{
		{"missing creator", func(p *NewChallengeParams) { p.CreatorID = "" }, ErrInvalidCreator},
		{"empty name", func(p *NewChallengeParams) { p.Name = "   " }, ErrInvalidName},
		{"bad type", func(p *NewChallengeParams) { p.Type = Type("bogus") }, ErrInvalidType},
		{"empty category", func(p *NewChallengeParams) { p.Category = "" }, ErrInvalidCategory},
		{"bad visibility", func(p *NewChallengeParams) { p.Visibility = Visibility("bogus") }, ErrInvalidVisibility},
		{"empty unit", func(p *NewChallengeParams) { p.Unit = "" }, ErrInvalidUnit},
		{"zero goal", func(p *NewChallengeParams) { p.Rules.Goal = 0 }, ErrInvalidGoal},
		{"negative points per unit", func(p *NewChallengeParams) { p.Rules.PointsPerUnit = -1 }, ErrInvalidPointsPerUnit},
		{"negative bonus", func(p *NewChallengeParams) { p.Rules.BonusPoints = -5 }, ErrInvalidBonusPoints},
		{"inverted window", func(p *NewChallengeParams) { p.EndDate = p.StartDate.Add(-time.Hour) }, ErrInvalidWindow},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := validParams()
			tc.mutate(&params)
			_, err := NewChallenge(params, now)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestSweepStatus(t *testing.T) {
	ch, err := NewChallenge(validParams(), time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, StatusUpcoming, ch.Status)

	// Not yet open.
	assert.False(t, ch.SweepStatus(time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, StatusUpcoming, ch.Status)

	// Window opened.
	assert.True(t, ch.SweepStatus(time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, StatusActive, ch.Status)

	// Window closed.
	assert.True(t, ch.SweepStatus(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, StatusCompleted, ch.Status)

	// Terminal statuses never advance again.
	assert.False(t, ch.SweepStatus(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)))
}

func TestSweepStatus_CancelSticks(t *testing.T) {
	ch, err := NewChallenge(validParams(), time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, StatusActive, ch.Status)

	require.NoError(t, ch.Cancel(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, StatusCancelled, ch.Status)

	// A sweep inside the open window does not resurrect a cancelled challenge.
	assert.False(t, ch.SweepStatus(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, StatusCancelled, ch.Status)

	assert.ErrorIs(t, ch.Cancel(time.Now()), ErrAlreadyTerminal)
}

func TestJoinableBy(t *testing.T) {
	now := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)

	ch, err := NewChallenge(validParams(), now)
	require.NoError(t, err)
	assert.True(t, ch.JoinableBy("anyone"))

	params := validParams()
	params.Visibility = VisibilityPrivate
	private, err := NewChallenge(params, now)
	require.NoError(t, err)
	assert.True(t, private.JoinableBy("user1"))
	assert.False(t, private.JoinableBy("stranger"))

	require.NoError(t, ch.Cancel(now))
	assert.False(t, ch.JoinableBy("user1"))
}

func TestParticipantCounter(t *testing.T) {
	ch, err := NewChallenge(validParams(), time.Now().UTC())
	require.NoError(t, err)

	now := time.Now().UTC()
	ch.AddParticipant(now)
	ch.AddParticipant(now)
	assert.Equal(t, 2, ch.ParticipantCount)

	ch.RemoveParticipant(now)
	ch.RemoveParticipant(now)
	ch.RemoveParticipant(now)
	assert.Equal(t, 0, ch.ParticipantCount, "counter never goes negative")
}

func TestWindowContains(t *testing.T) {
	ch, err := NewChallenge(validParams(), time.Now().UTC())
	require.NoError(t, err)

	assert.True(t, ch.WindowContains(ch.StartDate))
	assert.True(t, ch.WindowContains(ch.EndDate))
	assert.False(t, ch.WindowContains(ch.StartDate.Add(-time.Second)))
	assert.False(t, ch.WindowContains(ch.EndDate.Add(time.Second)))
}

func TestTypeSupportsTeams(t *testing.T) {
	assert.True(t, TypeTeam.SupportsTeams())
	assert.False(t, TypeIndividual.SupportsTeams())
	assert.False(t, TypeGlobal.SupportsTeams())
}
