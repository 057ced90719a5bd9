package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitpulse/challenge-engine/internal/domain/challenge"
	"github.com/fitpulse/challenge-engine/internal/domain/participant"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/internal/domain/team"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newChallenge(t *testing.T, id string, visibility challenge.Visibility) *challenge.Challenge {
	t.Helper()
	ch, err := challenge.NewChallenge(challenge.NewChallengeParams{
		ID:         id,
		CreatorID:  "creator",
		Name:       "Challenge " + id,
		Type:       challenge.TypeIndividual,
		Category:   challenge.Category("running"),
		Rules:      challenge.PointRules{Goal: 100, PointsPerUnit: 10, BonusPoints: 50},
		Unit:       "km",
		StartDate:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Visibility: visibility,
	}, testNow)
	require.NoError(t, err)
	return ch
}

func newParticipant(t *testing.T, id, challengeID, userID string) *participant.Participant {
	t.Helper()
	p, err := participant.NewParticipant(id, challengeID, userID, testNow)
	require.NoError(t, err)
	return p
}

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

func TestChallengeRepository_CreateAndGet(t *testing.T) {
	repo := NewChallengeRepository(nil)
	ch := newChallenge(t, "ch1", challenge.VisibilityPublic)

	require.NoError(t, repo.Create(context.Background(), ch, nil))

	got, err := repo.GetByID(context.Background(), "ch1")
	require.NoError(t, err)
	assert.Equal(t, ch.Name, got.Name)

	// The repository stores a copy, not the caller's pointer.
	got.Name = "mutated"
	again, err := repo.GetByID(context.Background(), "ch1")
	require.NoError(t, err)
	assert.Equal(t, ch.Name, again.Name)

	err = repo.Create(context.Background(), ch, nil)
	assert.ErrorIs(t, err, shared.ErrChallengeExists)

	_, err = repo.GetByID(context.Background(), "ghost")
	assert.True(t, shared.IsNotFound(err))
}

func TestChallengeRepository_ListActiveVisibility(t *testing.T) {
	outbox := NewOutbox()
	repo := NewChallengeRepository(outbox)
	participants := NewParticipantRepository(outbox)
	repo.SetMembership(participants.HasRankedEnrollment)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newChallenge(t, "open", challenge.VisibilityPublic), nil))
	require.NoError(t, repo.Create(ctx, newChallenge(t, "closed", challenge.VisibilityPrivate), nil))
	require.NoError(t, participants.Create(ctx, newParticipant(t, "p1", "closed", "member"), nil))

	anonymous, err := repo.ListActive(ctx, challenge.ListFilter{}, testNow)
	require.NoError(t, err)
	require.Len(t, anonymous, 1)
	assert.Equal(t, "open", anonymous[0].ID)

	asCreator, err := repo.ListActive(ctx, challenge.ListFilter{UserID: "creator"}, testNow)
	require.NoError(t, err)
	assert.Len(t, asCreator, 2)

	asMember, err := repo.ListActive(ctx, challenge.ListFilter{UserID: "member"}, testNow)
	require.NoError(t, err)
	assert.Len(t, asMember, 2)

	asStranger, err := repo.ListActive(ctx, challenge.ListFilter{UserID: "stranger"}, testNow)
	require.NoError(t, err)
	assert.Len(t, asStranger, 1)
}

func TestChallengeRepository_ListActiveOrderAndWindow(t *testing.T) {
	repo := NewChallengeRepository(nil)
	ctx := context.Background()

	early := newChallenge(t, "early", challenge.VisibilityPublic)
	early.EndDate = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	late := newChallenge(t, "late", challenge.VisibilityPublic)
	future := newChallenge(t, "future", challenge.VisibilityPublic)
	future.StartDate = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	future.EndDate = time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)
	future.Status = challenge.StatusUpcoming

	require.NoError(t, repo.Create(ctx, late, nil))
	require.NoError(t, repo.Create(ctx, early, nil))
	require.NoError(t, repo.Create(ctx, future, nil))

	rows, err := repo.ListActive(ctx, challenge.ListFilter{}, testNow)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "early", rows[0].ID)
	assert.Equal(t, "late", rows[1].ID)
}

func TestChallengeRepository_ListByStatus(t *testing.T) {
	repo := NewChallengeRepository(nil)
	ctx := context.Background()

	active := newChallenge(t, "active", challenge.VisibilityPublic)
	require.NoError(t, repo.Create(ctx, active, nil))

	cancelled := newChallenge(t, "cancelled", challenge.VisibilityPublic)
	require.NoError(t, cancelled.Cancel(testNow))
	require.NoError(t, repo.Create(ctx, cancelled, nil))

	rows, err := repo.ListByStatus(ctx, challenge.StatusCancelled)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "cancelled", rows[0].ID)

	count, err := repo.CountActive(ctx, challenge.ListFilter{}, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestChallengeRepository_CountActiveMatchesListing(t *testing.T) {
	outbox := NewOutbox()
	repo := NewChallengeRepository(outbox)
	participants := NewParticipantRepository(outbox)
	repo.SetMembership(participants.HasRankedEnrollment)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newChallenge(t, "open", challenge.VisibilityPublic), nil))
	require.NoError(t, repo.Create(ctx, newChallenge(t, "closed", challenge.VisibilityPrivate), nil))

	squad := newChallenge(t, "squad", challenge.VisibilityPublic)
	squad.Type = challenge.TypeTeam
	require.NoError(t, repo.Create(ctx, squad, nil))

	cases := []struct {
		name   string
		filter challenge.ListFilter
		now    time.Time
		want   int
	}{
		{"anonymous sees public only", challenge.ListFilter{}, testNow, 2},
		{"creator sees restricted too", challenge.ListFilter{UserID: "creator"}, testNow, 3},
		{"type filter applies", challenge.ListFilter{Type: challenge.TypeTeam}, testNow, 1},
		{"closed window excludes everything", challenge.ListFilter{}, testNow.AddDate(1, 0, 0), 0},
	}
	for _, tc := range cases {
		count, err := repo.CountActive(ctx, tc.filter, tc.now)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, count, tc.name)

		// The count is the unpaginated size of the listing.
		listed, err := repo.ListActive(ctx, tc.filter, tc.now)
		require.NoError(t, err, tc.name)
		assert.Len(t, listed, tc.want, tc.name)
	}
}

func TestChallengeRepository_AdjustParticipantCount(t *testing.T) {
	repo := NewChallengeRepository(nil)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newChallenge(t, "ch1", challenge.VisibilityPublic), nil))

	require.NoError(t, repo.AdjustParticipantCount(ctx, "ch1", 1, testNow))
	require.NoError(t, repo.AdjustParticipantCount(ctx, "ch1", 1, testNow))
	ch, err := repo.GetByID(ctx, "ch1")
	require.NoError(t, err)
	assert.Equal(t, 2, ch.ParticipantCount)

	// Floors at zero.
	require.NoError(t, repo.AdjustParticipantCount(ctx, "ch1", -5, testNow))
	ch, err = repo.GetByID(ctx, "ch1")
	require.NoError(t, err)
	assert.Equal(t, 0, ch.ParticipantCount)

	err = repo.AdjustParticipantCount(ctx, "ghost", 1, testNow)
	assert.True(t, shared.IsNotFound(err))
}

func TestChallengeRepository_UpdateKeepsParticipantCount(t *testing.T) {
	repo := NewChallengeRepository(nil)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newChallenge(t, "ch1", challenge.VisibilityPublic), nil))

	// A snapshot taken before the counter moved.
	stale, err := repo.GetByID(ctx, "ch1")
	require.NoError(t, err)

	require.NoError(t, repo.AdjustParticipantCount(ctx, "ch1", 3, testNow))

	stale.Name = "renamed"
	require.NoError(t, repo.Update(ctx, stale, nil))

	fresh, err := repo.GetByID(ctx, "ch1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", fresh.Name)
	assert.Equal(t, 3, fresh.ParticipantCount, "update must not roll the counter back")
}

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPANT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

func TestParticipantRepository_UniqueEnrollment(t *testing.T) {
	repo := NewParticipantRepository(nil)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newParticipant(t, "p1", "ch1", "user1"), nil))

	err := repo.Create(ctx, newParticipant(t, "p2", "ch1", "user1"), nil)
	assert.ErrorIs(t, err, shared.ErrAlreadyJoined)

	// Same user in another challenge is a separate enrollment.
	assert.NoError(t, repo.Create(ctx, newParticipant(t, "p3", "ch2", "user1"), nil))
}

func TestParticipantRepository_OptimisticLock(t *testing.T) {
	repo := NewParticipantRepository(nil)
	ctx := context.Background()
	rules := challenge.PointRules{Goal: 100, PointsPerUnit: 10}

	p := newParticipant(t, "p1", "ch1", "user1")
	require.NoError(t, repo.Create(ctx, p, nil))

	fresh, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	_, err = fresh.ApplyProgress(10, participant.ModeIncrement, rules, testNow)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, fresh, nil))

	// The version on the saved entity was bumped, so saving again works.
	_, err = fresh.ApplyProgress(5, participant.ModeIncrement, rules, testNow)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, fresh, nil))

	// A writer holding the original version loses the race.
	err = repo.Save(ctx, p, nil)
	assert.ErrorIs(t, err, shared.ErrOptimisticLock)
}

func TestParticipantRepository_ListByChallengeOrder(t *testing.T) {
	repo := NewParticipantRepository(nil)
	ctx := context.Background()
	rules := challenge.PointRules{Goal: 1000, PointsPerUnit: 1}

	add := func(id, userID string, progress float64, at time.Time) {
		p := newParticipant(t, id, "ch1", userID)
		if progress > 0 {
			_, err := p.ApplyProgress(progress, participant.ModeIncrement, rules, at)
			require.NoError(t, err)
		}
		require.NoError(t, repo.Create(ctx, p, nil))
	}
	add("p1", "slow", 10, testNow)
	add("p2", "fast", 90, testNow)
	// Same progress as fast, but updated later so it ranks after.
	add("p3", "also-fast", 90, testNow.Add(time.Hour))

	// Inactive rows never appear in the listing.
	gone := newParticipant(t, "p4", "ch1", "quitter")
	require.NoError(t, gone.Deactivate(testNow))
	require.NoError(t, repo.Create(ctx, gone, nil))

	rows, err := repo.ListByChallenge(ctx, "ch1", 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "fast", rows[0].UserID)
	assert.Equal(t, "also-fast", rows[1].UserID)
	assert.Equal(t, "slow", rows[2].UserID)

	pageTwo, err := repo.ListByChallenge(ctx, "ch1", 2, 2)
	require.NoError(t, err)
	require.Len(t, pageTwo, 1)
	assert.Equal(t, "slow", pageTwo[0].UserID)

	count, err := repo.CountByChallenge(ctx, "ch1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestParticipantRepository_HasRankedEnrollment(t *testing.T) {
	repo := NewParticipantRepository(nil)
	ctx := context.Background()

	active := newParticipant(t, "p1", "ch1", "active")
	require.NoError(t, repo.Create(ctx, active, nil))

	gone := newParticipant(t, "p2", "ch1", "gone")
	require.NoError(t, gone.Deactivate(testNow))
	require.NoError(t, repo.Create(ctx, gone, nil))

	assert.True(t, repo.HasRankedEnrollment("ch1", "active"))
	assert.False(t, repo.HasRankedEnrollment("ch1", "gone"))
	assert.False(t, repo.HasRankedEnrollment("ch1", "never"))
}

func TestParticipantRepository_ListByTeamAndUser(t *testing.T) {
	repo := NewParticipantRepository(nil)
	ctx := context.Background()

	a := newParticipant(t, "p1", "ch1", "user1")
	a.TeamID = "t1"
	require.NoError(t, repo.Create(ctx, a, nil))

	b := newParticipant(t, "p2", "ch1", "user2")
	b.TeamID = "t1"
	require.NoError(t, repo.Create(ctx, b, nil))

	c := newParticipant(t, "p3", "ch2", "user1")
	require.NoError(t, repo.Create(ctx, c, nil))

	members, err := repo.ListByTeam(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, members, 2)

	mine, err := repo.ListByUser(ctx, "user1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

// ══════════════════════════════════════════════════════════════════════════════
// TEAM REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

func TestTeamRepository_NameUniqueness(t *testing.T) {
	repo := NewTeamRepository(nil)
	ctx := context.Background()

	first, err := team.NewTeam("t1", "ch1", "Road Runners", "captain", testNow)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, first, nil))

	// Names collide case-insensitively within the same challenge.
	dup, err := team.NewTeam("t2", "ch1", "ROAD runners", "other", testNow)
	require.NoError(t, err)
	assert.True(t, shared.IsAlreadyExists(repo.Create(ctx, dup, nil)))

	// The same name is free in another challenge.
	elsewhere, err := team.NewTeam("t3", "ch2", "Road Runners", "captain", testNow)
	require.NoError(t, err)
	assert.NoError(t, repo.Create(ctx, elsewhere, nil))
}

func TestTeamRepository_SaveOptimisticLock(t *testing.T) {
	repo := NewTeamRepository(nil)
	ctx := context.Background()

	tm, err := team.NewTeam("t1", "ch1", "Road Runners", "captain", testNow)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, tm, nil))

	fresh, err := repo.GetByID(ctx, "t1")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, fresh, nil))

	err = repo.Save(ctx, tm, nil)
	assert.ErrorIs(t, err, shared.ErrOptimisticLock)

	ghost, err := team.NewTeam("t9", "ch1", "Ghosts", "captain", testNow)
	require.NoError(t, err)
	assert.True(t, shared.IsNotFound(repo.Save(ctx, ghost, nil)))
}

func TestTeamRepository_ListByChallengeOrder(t *testing.T) {
	repo := NewTeamRepository(nil)
	ctx := context.Background()

	seed := func(id, name string, total float64, members int) {
		tm, err := team.NewTeam(id, "ch1", name, "captain-"+id, testNow)
		require.NoError(t, err)
		tm.TotalProgress = total
		tm.MemberCount = members
		require.NoError(t, repo.Create(ctx, tm, nil))
	}
	seed("t1", "Alpha", 100, 4)
	seed("t2", "Beta", 200, 2)
	// Same total as Alpha with fewer members ranks ahead of it.
	seed("t3", "Gamma", 100, 2)

	rows, err := repo.ListByChallenge(ctx, "ch1", 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "t2", rows[0].ID)
	assert.Equal(t, "t3", rows[1].ID)
	assert.Equal(t, "t1", rows[2].ID)

	count, err := repo.CountByChallenge(ctx, "ch1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOX
// ══════════════════════════════════════════════════════════════════════════════

func TestOutbox_AppendAndListPending(t *testing.T) {
	outbox := NewOutbox()
	ctx := context.Background()

	require.NoError(t, outbox.Append(ctx,
		shared.NewParticipantJoinedEvent("ch1", "user1", false),
		shared.NewProgressAppliedEvent("ch1", "user1", 10, 100, 100),
	))

	pending, err := outbox.ListPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, shared.EventParticipantJoined, pending[0].Type)
	assert.True(t, pending[0].Pending())

	limited, err := outbox.ListPending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestOutbox_DispatchLifecycle(t *testing.T) {
	outbox := NewOutbox()
	ctx := context.Background()

	require.NoError(t, outbox.Append(ctx, shared.NewParticipantJoinedEvent("ch1", "user1", false)))
	pending, err := outbox.ListPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	id := pending[0].ID

	require.NoError(t, outbox.MarkFailed(ctx, id))
	pending, err = outbox.ListPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)

	require.NoError(t, outbox.MarkDispatched(ctx, id, testNow))
	pending, err = outbox.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.ErrorIs(t, outbox.MarkDispatched(ctx, "ghost", testNow), shared.ErrNotFound)
	assert.ErrorIs(t, outbox.MarkFailed(ctx, "ghost"), shared.ErrNotFound)
}

func TestOutbox_DeleteDispatched(t *testing.T) {
	outbox := NewOutbox()
	ctx := context.Background()

	require.NoError(t, outbox.Append(ctx,
		shared.NewParticipantJoinedEvent("ch1", "user1", false),
		shared.NewParticipantJoinedEvent("ch1", "user2", false),
		shared.NewParticipantJoinedEvent("ch1", "user3", false),
	))
	entries := outbox.All()
	require.Len(t, entries, 3)

	// One dispatched long ago, one recently, one still pending.
	require.NoError(t, outbox.MarkDispatched(ctx, entries[0].ID, testNow.Add(-48*time.Hour)))
	require.NoError(t, outbox.MarkDispatched(ctx, entries[1].ID, testNow))

	removed, err := outbox.DeleteDispatched(ctx, testNow.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Len(t, outbox.All(), 2)
}
