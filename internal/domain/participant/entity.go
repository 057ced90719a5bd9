// Package participant contains the enrollment and progress state of one user
// within one challenge. The point formula and the completion latch live here,
// as pure state transitions the application layer persists explicitly.
package participant

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fitpulse/challenge-engine/internal/domain/challenge"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Status represents the enrollment state of a participant.
type Status string

const (
	// StatusActive - enrolled and accumulating progress.
	StatusActive Status = "active"
	// StatusInactive - left the challenge; the row survives for history.
	StatusInactive Status = "inactive"
	// StatusCompleted - reached the goal. Never transitions to inactive.
	StatusCompleted Status = "completed"
)

// IsValid checks that the status is one of the known values.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusCompleted:
		return true
	default:
		return false
	}
}

// Ranked returns true if the participant appears on leaderboards.
func (s Status) Ranked() bool {
	return s == StatusActive || s == StatusCompleted
}

// Mode selects how a progress value is applied.
type Mode string

const (
	// ModeIncrement - value is added to the current progress.
	ModeIncrement Mode = "increment"
	// ModeOverwrite - value replaces the current progress.
	ModeOverwrite Mode = "overwrite"
)

// IsValid checks that the mode is one of the known values.
func (m Mode) IsValid() bool {
	return m == ModeIncrement || m == ModeOverwrite
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: PARTICIPANT
// ══════════════════════════════════════════════════════════════════════════════

// Participant is a user's enrollment record and progress state within one
// challenge. Unique per (ChallengeID, UserID); never hard-deleted.
type Participant struct {
	// ID - unique identifier (UUID string).
	ID string

	// ChallengeID / UserID - the unique enrollment key.
	ChallengeID string
	UserID      string

	// TeamID - team membership, set only for team challenges.
	TeamID string

	// Status - active, inactive or completed.
	Status Status

	// Progress - accumulated progress in challenge units. Advanced by
	// increments, but an explicit overwrite may move it anywhere, including
	// below zero - the engine does not clamp (see the progress open question).
	Progress float64

	// IsCompleted - one-way latch, false to true exactly once.
	IsCompleted bool

	// CompletedAt - set exactly once, when the latch fires.
	CompletedAt *time.Time

	// PointsEarned - floor(Progress * PointsPerUnit), plus BonusPoints once
	// completed. Recomputed on every progress write; never diverges from the
	// formula outside the write itself.
	PointsEarned int

	// JoinedAt - first enrollment time. Survives leave/re-join.
	JoinedAt time.Time

	// CreatedAt / UpdatedAt - record timestamps. UpdatedAt is the leaderboard
	// tie-break: whoever reached a tied progress value first ranks higher.
	CreatedAt time.Time
	UpdatedAt time.Time

	// Version - optimistic concurrency token, bumped by the store on save.
	Version int
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidMode - unknown progress mode.
	ErrInvalidMode = errors.New("invalid progress mode")

	// ErrNotActive - only active participants accept progress.
	ErrNotActive = errors.New("participant is not active")

	// ErrAlreadyActive - re-joining an active enrollment.
	ErrAlreadyActive = errors.New("participant is already active")

	// ErrCompletedParticipant - a completed participant cannot be deactivated.
	ErrCompletedParticipant = errors.New("completed participants stay on the leaderboard")
)

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY
// ══════════════════════════════════════════════════════════════════════════════

// NewParticipant creates a fresh enrollment with zero progress.
func NewParticipant(id, challengeID, userID string, now time.Time) (*Participant, error) {
	if id == "" {
		return nil, errors.New("participant id is required")
	}
	if challengeID == "" {
		return nil, errors.New("challenge id is required")
	}
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	now = now.UTC()

	return &Participant{
		ID:          id,
		ChallengeID: challengeID,
		UserID:      userID,
		Status:      StatusActive,
		Progress:    0,
		IsCompleted: false,
		JoinedAt:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS & COMPLETION (the heart of the engine)
// ══════════════════════════════════════════════════════════════════════════════

// ProgressOutcome reports what a progress application changed.
type ProgressOutcome struct {
	// PreviousProgress / NewProgress - progress before and after.
	PreviousProgress float64
	NewProgress      float64

	// PreviousPoints / NewPoints - pointsEarned before and after.
	PreviousPoints int
	NewPoints      int

	// PointsDelta - NewPoints - PreviousPoints. May be negative on a
	// downward overwrite; only positive deltas reach the ledger.
	PointsDelta int

	// CompletedNow - true on the single call where the latch fired.
	CompletedNow bool
}

// PointsFor computes the point formula for a progress value under the given
// rules: floor(progress * pointsPerUnit), plus the bonus once completed.
// Defined as a standalone function so tests and reconciliation can evaluate
// it without a participant.
func PointsFor(progress float64, completed bool, rules challenge.PointRules) int {
	points := int(math.Floor(progress * rules.PointsPerUnit))
	if completed {
		points += rules.BonusPoints
	}
	return points
}

// ApplyProgress applies a progress delta or overwrite under the challenge
// rules, recomputes pointsEarned, and fires the completion latch at most once.
// Re-applying progress after completion keeps updating progress and points
// (a participant keeps accumulating past the goal) but never re-fires the
// latch or re-adds the bonus. The caller persists the new state explicitly.
func (p *Participant) ApplyProgress(value float64, mode Mode, rules challenge.PointRules, now time.Time) (ProgressOutcome, error) {
	if !mode.IsValid() {
		return ProgressOutcome{}, ErrInvalidMode
	}
	if p.Status == StatusInactive {
		return ProgressOutcome{}, ErrNotActive
	}

	outcome := ProgressOutcome{
		PreviousProgress: p.Progress,
		PreviousPoints:   p.PointsEarned,
	}

	switch mode {
	case ModeIncrement:
		p.Progress += value
	case ModeOverwrite:
		p.Progress = value
	}

	// One-way latch: fires once, never un-fires, even if progress is later
	// overwritten below the goal.
	if !p.IsCompleted && p.Progress >= rules.Goal {
		now = now.UTC()
		p.IsCompleted = true
		p.CompletedAt = &now
		p.Status = StatusCompleted
		outcome.CompletedNow = true
	}

	p.PointsEarned = PointsFor(p.Progress, p.IsCompleted, rules)
	p.UpdatedAt = now.UTC()

	outcome.NewProgress = p.Progress
	outcome.NewPoints = p.PointsEarned
	outcome.PointsDelta = outcome.NewPoints - outcome.PreviousPoints

	return outcome, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT TRANSITIONS
// ══════════════════════════════════════════════════════════════════════════════

// Deactivate marks the participant as having left the challenge.
// Progress and points survive for history; completed participants stay
// completed on the leaderboard.
func (p *Participant) Deactivate(now time.Time) error {
	if p.Status == StatusCompleted {
		return ErrCompletedParticipant
	}
	if p.Status == StatusInactive {
		return ErrNotActive
	}
	p.Status = StatusInactive
	p.UpdatedAt = now.UTC()
	return nil
}

// Reactivate re-joins an inactive participant in place, preserving prior
// progress and points (reactivation, not reset).
func (p *Participant) Reactivate(now time.Time) error {
	if p.Status != StatusInactive {
		return ErrAlreadyActive
	}
	p.Status = StatusActive
	p.UpdatedAt = now.UTC()
	return nil
}

// AssignTeam places the participant on a team. Enforcement of the one-team-
// per-challenge rule happens against the stored row at the application layer.
func (p *Participant) AssignTeam(teamID string, now time.Time) {
	p.TeamID = teamID
	p.UpdatedAt = now.UTC()
}

// ClearTeam removes the team assignment. Completed participants remain
// completed; only the membership link changes.
func (p *Participant) ClearTeam(now time.Time) {
	p.TeamID = ""
	p.UpdatedAt = now.UTC()
}

// OnTeam returns true if the participant belongs to a team.
func (p *Participant) OnTeam() bool {
	return p.TeamID != ""
}

// String returns a compact representation for logging.
func (p *Participant) String() string {
	return fmt.Sprintf(
		"Participant{Challenge: %s, User: %s, Progress: %.1f, Points: %d, Status: %s}",
		p.ChallengeID, p.UserID, p.Progress, p.PointsEarned, p.Status,
	)
}

// Clone creates a copy of the participant.
func (p *Participant) Clone() *Participant {
	if p == nil {
		return nil
	}
	clone := *p
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		clone.CompletedAt = &t
	}
	return &clone
}
