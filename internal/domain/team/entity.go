// Package team contains the team aggregate for team-type challenges.
// A team's progress fields are always derived from its members' rows;
// Recalculate is the only operation that writes them.
package team

import (
	"errors"
	"fmt"
	"time"

	"github.com/fitpulse/challenge-engine/internal/domain/participant"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// CompletionReason records which predicate completed the team.
type CompletionReason string

const (
	// ReasonAllMembers - every member completed individually.
	ReasonAllMembers CompletionReason = "all_members"
	// ReasonTotalProgress - summed progress reached goal * memberCount.
	ReasonTotalProgress CompletionReason = "total_progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: TEAM
// ══════════════════════════════════════════════════════════════════════════════

// Team groups participants of a team challenge. Aggregates are recomputed
// from member rows, never incremented in place.
type Team struct {
	// ID - unique identifier (UUID string).
	ID string

	// ChallengeID - the team challenge this team belongs to.
	ChallengeID string

	// Name - display name, unique per challenge.
	Name string

	// CaptainID - the founding member. Immutable; the captain cannot be
	// removed from the team.
	CaptainID string

	// MemberCount - number of active or completed members.
	MemberCount int

	// TotalProgress - sum of member progress values.
	TotalProgress float64

	// AverageProgress - TotalProgress / MemberCount, zero for empty teams.
	AverageProgress float64

	// IsCompleted - one-way latch, fired by either completion predicate.
	IsCompleted bool

	// CompletedAt - set exactly once, when the latch fires.
	CompletedAt *time.Time

	// CompletedBy - which predicate fired the latch.
	CompletedBy CompletionReason

	// CreatedAt / UpdatedAt - record timestamps. UpdatedAt is the final
	// leaderboard tie-break.
	CreatedAt time.Time
	UpdatedAt time.Time

	// Version - optimistic concurrency token, bumped by the store on save.
	Version int
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEmptyName - team name is required.
	ErrEmptyName = errors.New("team name is required")

	// ErrNameTooLong - team names are capped at 100 characters.
	ErrNameTooLong = errors.New("team name must not exceed 100 characters")
)

const maxNameLength = 100

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY
// ══════════════════════════════════════════════════════════════════════════════

// NewTeam creates a team with the captain as its first member.
func NewTeam(id, challengeID, name, captainID string, now time.Time) (*Team, error) {
	if id == "" {
		return nil, errors.New("team id is required")
	}
	if challengeID == "" {
		return nil, errors.New("challenge id is required")
	}
	if captainID == "" {
		return nil, errors.New("captain id is required")
	}
	if name == "" {
		return nil, ErrEmptyName
	}
	if len(name) > maxNameLength {
		return nil, ErrNameTooLong
	}

	now = now.UTC()

	return &Team{
		ID:          id,
		ChallengeID: challengeID,
		Name:        name,
		CaptainID:   captainID,
		MemberCount: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATION
// ══════════════════════════════════════════════════════════════════════════════

// RecalcOutcome reports what a recalculation changed.
type RecalcOutcome struct {
	// Changed - true if any aggregate field moved.
	Changed bool

	// CompletedNow - true on the single recalculation where the latch fired.
	CompletedNow bool

	// Reason - the predicate that fired, set only when CompletedNow.
	Reason CompletionReason
}

// Recalculate derives the team's aggregate fields from its members' rows.
// Members are the ranked (active and completed) participants assigned to
// this team; the goal is the challenge's per-member goal.
//
// The team completes when every member completed individually, or when the
// summed progress reaches goal * memberCount. The predicates are evaluated
// in that order and the latch is one-way: a team never un-completes, even
// if member progress is later overwritten downward or members leave.
// Recalculating an unchanged roster is a no-op.
func (t *Team) Recalculate(members []*participant.Participant, goal float64, now time.Time) RecalcOutcome {
	var (
		total        float64
		allCompleted = len(members) > 0
	)
	for _, m := range members {
		total += m.Progress
		if !m.IsCompleted {
			allCompleted = false
		}
	}

	count := len(members)
	avg := 0.0
	if count > 0 {
		avg = total / float64(count)
	}

	outcome := RecalcOutcome{
		Changed: t.MemberCount != count || t.TotalProgress != total || t.AverageProgress != avg,
	}

	t.MemberCount = count
	t.TotalProgress = total
	t.AverageProgress = avg

	if !t.IsCompleted && count > 0 {
		var reason CompletionReason
		switch {
		case allCompleted:
			reason = ReasonAllMembers
		case total >= goal*float64(count):
			reason = ReasonTotalProgress
		}
		if reason != "" {
			utc := now.UTC()
			t.IsCompleted = true
			t.CompletedAt = &utc
			t.CompletedBy = reason
			outcome.CompletedNow = true
			outcome.Reason = reason
			outcome.Changed = true
		}
	}

	if outcome.Changed {
		t.UpdatedAt = now.UTC()
	}

	return outcome
}

// String returns a compact representation for logging.
func (t *Team) String() string {
	return fmt.Sprintf(
		"Team{ID: %s, Name: %s, Members: %d, Total: %.1f, Completed: %t}",
		t.ID, t.Name, t.MemberCount, t.TotalProgress, t.IsCompleted,
	)
}

// Clone creates a copy of the team.
func (t *Team) Clone() *Team {
	if t == nil {
		return nil
	}
	clone := *t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		clone.CompletedAt = &at
	}
	return &clone
}
