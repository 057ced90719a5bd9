package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitpulse/challenge-engine/internal/domain/challenge"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/internal/domain/team"
)

// teamFixture seeds a team challenge with a captain-founded team and one
// extra enrolled member.
type teamFixture struct {
	*fixture
	challenge  *challenge.Challenge
	team       *team.Team
	membership *TeamMembershipHandler
	progress   *ApplyProgressHandler
}

func newTeamFixture(t *testing.T) *teamFixture {
	t.Helper()
	f := newFixture()
	ch := f.seedChallenge(t, "ch1", challenge.TypeTeam)
	recalc := f.recalculator()

	createTeam := NewCreateTeamHandler(f.challenges, f.participants, f.teams, f.clock, f.logger)
	result, err := createTeam.Handle(context.Background(), CreateTeamCommand{
		ChallengeID: ch.ID, CaptainID: "captain", Name: "Road Runners",
	})
	require.NoError(t, err)

	_, err = f.joinHandler().Handle(context.Background(), JoinChallengeCommand{ChallengeID: ch.ID, UserID: "user2"})
	require.NoError(t, err)

	return &teamFixture{
		fixture:    f,
		challenge:  ch,
		team:       result.Team,
		membership: NewTeamMembershipHandler(f.challenges, f.participants, f.teams, recalc, f.clock, f.logger),
		progress:   NewApplyProgressHandler(f.challenges, f.participants, nil, f.outbox, nil, recalc, f.clock, f.logger),
	}
}

func TestCreateTeam(t *testing.T) {
	f := newFixture()
	ch := f.seedChallenge(t, "ch1", challenge.TypeTeam)
	h := NewCreateTeamHandler(f.challenges, f.participants, f.teams, f.clock, f.logger)

	result, err := h.Handle(context.Background(), CreateTeamCommand{
		ChallengeID: ch.ID, CaptainID: "captain", Name: "Road Runners",
	})
	require.NoError(t, err)

	assert.Equal(t, "captain", result.Team.CaptainID)
	assert.Equal(t, 1, result.Team.MemberCount)
	assert.True(t, result.CaptainEnrolled, "the captain was not yet a participant")
	assert.Equal(t, result.Team.ID, result.Captain.TeamID)

	types := f.eventTypes()
	assert.Contains(t, types, shared.EventTeamCreated)
	assert.Contains(t, types, shared.EventTeamMemberAdded)
}

func TestCreateTeam_EnrolledCaptain(t *testing.T) {
	f := newFixture()
	ch := f.seedChallenge(t, "ch1", challenge.TypeTeam)
	_, err := f.joinHandler().Handle(context.Background(), JoinChallengeCommand{ChallengeID: ch.ID, UserID: "captain"})
	require.NoError(t, err)

	h := NewCreateTeamHandler(f.challenges, f.participants, f.teams, f.clock, f.logger)
	result, err := h.Handle(context.Background(), CreateTeamCommand{
		ChallengeID: ch.ID, CaptainID: "captain", Name: "Road Runners",
	})
	require.NoError(t, err)
	assert.False(t, result.CaptainEnrolled)
}

func TestCreateTeam_RejectsNonTeamChallenge(t *testing.T) {
	f := newFixture()
	ch := f.seedChallenge(t, "ch1", challenge.TypeIndividual)
	h := NewCreateTeamHandler(f.challenges, f.participants, f.teams, f.clock, f.logger)

	_, err := h.Handle(context.Background(), CreateTeamCommand{
		ChallengeID: ch.ID, CaptainID: "captain", Name: "Road Runners",
	})
	assert.ErrorIs(t, err, shared.ErrInvalidChallengeType)
}

func TestCreateTeam_DuplicateName(t *testing.T) {
	f := newFixture()
	ch := f.seedChallenge(t, "ch1", challenge.TypeTeam)
	h := NewCreateTeamHandler(f.challenges, f.participants, f.teams, f.clock, f.logger)

	_, err := h.Handle(context.Background(), CreateTeamCommand{
		ChallengeID: ch.ID, CaptainID: "captain", Name: "Road Runners",
	})
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), CreateTeamCommand{
		ChallengeID: ch.ID, CaptainID: "other", Name: "Road Runners",
	})
	assert.True(t, shared.IsAlreadyExists(err))
}

func TestCreateTeam_CaptainAlreadyOnTeam(t *testing.T) {
	tf := newTeamFixture(t)
	h := NewCreateTeamHandler(tf.challenges, tf.participants, tf.teams, tf.clock, tf.logger)

	_, err := h.Handle(context.Background(), CreateTeamCommand{
		ChallengeID: tf.challenge.ID, CaptainID: "captain", Name: "Second Wind",
	})
	assert.ErrorIs(t, err, shared.ErrAlreadyOnTeam)
}

func TestAddTeamMember(t *testing.T) {
	tf := newTeamFixture(t)

	result, err := tf.membership.HandleAdd(context.Background(), AddTeamMemberCommand{
		TeamID: tf.team.ID, UserID: "user2",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Team.MemberCount)
	assert.Equal(t, tf.team.ID, result.Member.TeamID)
}

func TestAddTeamMember_Errors(t *testing.T) {
	tf := newTeamFixture(t)
	ctx := context.Background()

	// Not enrolled in the challenge at all.
	_, err := tf.membership.HandleAdd(ctx, AddTeamMemberCommand{TeamID: tf.team.ID, UserID: "ghost"})
	assert.True(t, shared.IsNotFound(err))

	// Already on a team.
	_, err = tf.membership.HandleAdd(ctx, AddTeamMemberCommand{TeamID: tf.team.ID, UserID: "user2"})
	require.NoError(t, err)
	_, err = tf.membership.HandleAdd(ctx, AddTeamMemberCommand{TeamID: tf.team.ID, UserID: "user2"})
	assert.ErrorIs(t, err, shared.ErrAlreadyOnTeam)

	// Unknown team.
	_, err = tf.membership.HandleAdd(ctx, AddTeamMemberCommand{TeamID: "ghost", UserID: "user2"})
	assert.True(t, shared.IsNotFound(err))
}

func TestRemoveTeamMember(t *testing.T) {
	tf := newTeamFixture(t)
	ctx := context.Background()

	_, err := tf.membership.HandleAdd(ctx, AddTeamMemberCommand{TeamID: tf.team.ID, UserID: "user2"})
	require.NoError(t, err)

	result, err := tf.membership.HandleRemove(ctx, RemoveTeamMemberCommand{TeamID: tf.team.ID, UserID: "user2"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Team.MemberCount)
	assert.False(t, result.Member.OnTeam())
}

func TestRemoveTeamMember_CaptainProtected(t *testing.T) {
	tf := newTeamFixture(t)

	_, err := tf.membership.HandleRemove(context.Background(), RemoveTeamMemberCommand{
		TeamID: tf.team.ID, UserID: "captain",
	})
	assert.ErrorIs(t, err, shared.ErrCannotRemoveCaptain)
}

func TestRemoveTeamMember_NotOnTeam(t *testing.T) {
	tf := newTeamFixture(t)

	_, err := tf.membership.HandleRemove(context.Background(), RemoveTeamMemberCommand{
		TeamID: tf.team.ID, UserID: "user2",
	})
	assert.ErrorIs(t, err, shared.ErrNotOnTeam)
}

func TestTeamCompletion_ThroughProgress(t *testing.T) {
	tf := newTeamFixture(t)
	ctx := context.Background()

	_, err := tf.membership.HandleAdd(ctx, AddTeamMemberCommand{TeamID: tf.team.ID, UserID: "user2"})
	require.NoError(t, err)

	// 210 summed progress >= 100 * 2 members fires the total predicate.
	_, err = tf.progress.Handle(ctx, ApplyProgressCommand{ChallengeID: tf.challenge.ID, UserID: "captain", Value: 180})
	require.NoError(t, err)
	result, err := tf.progress.Handle(ctx, ApplyProgressCommand{ChallengeID: tf.challenge.ID, UserID: "user2", Value: 30})
	require.NoError(t, err)
	require.True(t, result.TeamRecalculated)

	stored, err := tf.teams.GetByID(ctx, tf.team.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsCompleted)
	assert.Equal(t, team.ReasonTotalProgress, stored.CompletedBy)

	teamCompletions := 0
	for _, typ := range tf.eventTypes() {
		if typ == shared.EventTeamCompleted {
			teamCompletions++
		}
	}
	assert.Equal(t, 1, teamCompletions)

	// Further progress changes aggregates but never the latch.
	_, err = tf.progress.Handle(ctx, ApplyProgressCommand{ChallengeID: tf.challenge.ID, UserID: "user2", Value: 10})
	require.NoError(t, err)

	after, err := tf.teams.GetByID(ctx, tf.team.ID)
	require.NoError(t, err)
	assert.Equal(t, 220.0, after.TotalProgress)
	assert.Equal(t, *stored.CompletedAt, *after.CompletedAt)
}

func TestRecalculateTeam_Validation(t *testing.T) {
	f := newFixture()
	h := f.recalculator()

	_, err := h.Handle(context.Background(), RecalculateTeamCommand{})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), RecalculateTeamCommand{TeamID: "ghost"})
	assert.True(t, shared.IsNotFound(err))
}
