// Package challenge contains the domain model for time-boxed fitness
// challenges. This is core business logic - no external dependencies here.
package challenge

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Type classifies how a challenge is contested.
type Type string

const (
	// TypeIndividual - every participant works toward the goal alone.
	TypeIndividual Type = "individual"
	// TypeTeam - participants group into teams whose progress aggregates.
	TypeTeam Type = "team"
	// TypeGlobal - one shared goal for the whole community.
	TypeGlobal Type = "global"
)

// IsValid checks that the type is one of the known values.
func (t Type) IsValid() bool {
	switch t {
	case TypeIndividual, TypeTeam, TypeGlobal:
		return true
	default:
		return false
	}
}

// SupportsTeams returns true if teams may be created for this challenge type.
func (t Type) SupportsTeams() bool {
	return t == TypeTeam
}

// Status represents the lifecycle state of a challenge.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// IsValid checks that the status is one of the known values.
func (s Status) IsValid() bool {
	switch s {
	case StatusUpcoming, StatusActive, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsJoinable returns true if participants may still enroll.
// Upcoming challenges accept early joins, matching the original behavior.
func (s Status) IsJoinable() bool {
	return s == StatusUpcoming || s == StatusActive
}

// IsTerminal returns true once the lifecycle can no longer advance.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Visibility controls who can discover and join a challenge.
type Visibility string

const (
	VisibilityPublic     Visibility = "public"
	VisibilityPrivate    Visibility = "private"
	VisibilityInviteOnly Visibility = "invite-only"
)

// IsValid checks that the visibility is one of the known values.
func (v Visibility) IsValid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityInviteOnly:
		return true
	default:
		return false
	}
}

// IsRestricted returns true if discovery requires a relationship to the challenge.
func (v Visibility) IsRestricted() bool {
	return v != VisibilityPublic
}

// Category tags a challenge for filtering ("workout", "steps", "nutrition", ...).
// Free-form; the boundary validates length only.
type Category string

// IsValid checks the category length.
func (c Category) IsValid() bool {
	return len(c) >= 1 && len(c) <= 50
}

// PointRules bundles the point economy of a challenge.
// It is the only challenge state the Progress Tracker needs, so progress
// computation stays a pure function over (participant, rules).
type PointRules struct {
	// Goal - numeric target in Unit (reps, km, sessions...).
	Goal float64

	// PointsPerUnit - points earned per unit of progress.
	PointsPerUnit float64

	// BonusPoints - awarded once, on completion.
	BonusPoints int
}

// Validate checks the rules invariants: goal > 0, non-negative economy.
func (r PointRules) Validate() error {
	if r.Goal <= 0 {
		return ErrInvalidGoal
	}
	if r.PointsPerUnit < 0 {
		return ErrInvalidPointsPerUnit
	}
	if r.BonusPoints < 0 {
		return ErrInvalidBonusPoints
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: CHALLENGE
// ══════════════════════════════════════════════════════════════════════════════

// Challenge is a time-boxed goal definition with a unit, goal value and
// point economy. Participant state lives in the participant aggregate;
// ParticipantCount is a denormalized counter maintained by the enrollment path.
type Challenge struct {
	// ID - unique identifier (UUID string).
	ID string

	// CreatorID - user who created the challenge (auto-enrolled on create).
	CreatorID string

	// Name - display name.
	Name string

	// Description - longer description shown on detail views.
	Description string

	// Type - individual, team or global.
	Type Type

	// Category - filtering tag.
	Category Category

	// Rules - goal and point economy.
	Rules PointRules

	// Unit - what progress is measured in ("reps", "km", "minutes").
	Unit string

	// StartDate / EndDate - the challenge window. StartDate < EndDate always.
	StartDate time.Time
	EndDate   time.Time

	// Status - lifecycle state. The scheduler sweeps it along the window;
	// this core tolerates the status changing under it.
	Status Status

	// Visibility - public, private or invite-only.
	Visibility Visibility

	// BadgeID - optional achievement granted on individual completion.
	BadgeID string

	// ParticipantCount - denormalized count of active+completed participants.
	ParticipantCount int

	// CreatedAt / UpdatedAt - record timestamps.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidGoal - goal must be positive.
	ErrInvalidGoal = errors.New("invalid goal: must be positive")

	// ErrInvalidPointsPerUnit - pointsPerUnit must be non-negative.
	ErrInvalidPointsPerUnit = errors.New("invalid points per unit: must be non-negative")

	// ErrInvalidBonusPoints - bonusPoints must be non-negative.
	ErrInvalidBonusPoints = errors.New("invalid bonus points: must be non-negative")

	// ErrInvalidName - name must be 1-150 chars.
	ErrInvalidName = errors.New("invalid name: must be 1-150 chars")

	// ErrInvalidUnit - unit must be 1-30 chars.
	ErrInvalidUnit = errors.New("invalid unit: must be 1-30 chars")

	// ErrInvalidWindow - startDate must precede endDate.
	ErrInvalidWindow = errors.New("invalid window: start date must be before end date")

	// ErrInvalidType - unknown challenge type.
	ErrInvalidType = errors.New("invalid challenge type")

	// ErrInvalidCategory - invalid category tag.
	ErrInvalidCategory = errors.New("invalid category")

	// ErrInvalidVisibility - unknown visibility.
	ErrInvalidVisibility = errors.New("invalid visibility")

	// ErrInvalidCreator - creator id is required.
	ErrInvalidCreator = errors.New("creator id is required")

	// ErrAlreadyTerminal - terminal statuses never transition again.
	ErrAlreadyTerminal = errors.New("challenge is already completed or cancelled")
)

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// NewChallengeParams contains parameters for creating a new challenge.
type NewChallengeParams struct {
	ID          string
	CreatorID   string
	Name        string
	Description string
	Type        Type
	Category    Category
	Rules       PointRules
	Unit        string
	StartDate   time.Time
	EndDate     time.Time
	Visibility  Visibility
	BadgeID     string
}

// NewChallenge creates a new challenge with full validation.
// The initial status is derived from the window: upcoming before it opens,
// active while it contains now. ParticipantCount starts at zero - the
// enrollment path owns the counter.
func NewChallenge(params NewChallengeParams, now time.Time) (*Challenge, error) {
	if params.ID == "" {
		return nil, errors.New("challenge id is required")
	}
	if params.CreatorID == "" {
		return nil, ErrInvalidCreator
	}

	name := strings.TrimSpace(params.Name)
	if len(name) == 0 || len(name) > 150 {
		return nil, ErrInvalidName
	}

	if !params.Type.IsValid() {
		return nil, ErrInvalidType
	}
	if !params.Category.IsValid() {
		return nil, ErrInvalidCategory
	}
	if !params.Visibility.IsValid() {
		return nil, ErrInvalidVisibility
	}

	unit := strings.TrimSpace(params.Unit)
	if len(unit) == 0 || len(unit) > 30 {
		return nil, ErrInvalidUnit
	}

	if err := params.Rules.Validate(); err != nil {
		return nil, err
	}

	if !params.StartDate.Before(params.EndDate) {
		return nil, ErrInvalidWindow
	}

	now = now.UTC()

	return &Challenge{
		ID:               params.ID,
		CreatorID:        params.CreatorID,
		Name:             name,
		Description:      strings.TrimSpace(params.Description),
		Type:             params.Type,
		Category:         params.Category,
		Rules:            params.Rules,
		Unit:             unit,
		StartDate:        params.StartDate.UTC(),
		EndDate:          params.EndDate.UTC(),
		Status:           statusForWindow(params.StartDate, params.EndDate, now),
		Visibility:       params.Visibility,
		BadgeID:          params.BadgeID,
		ParticipantCount: 0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// statusForWindow derives the lifecycle status from the time window.
func statusForWindow(start, end, now time.Time) Status {
	switch {
	case now.Before(start):
		return StatusUpcoming
	case now.After(end):
		return StatusCompleted
	default:
		return StatusActive
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS (Business Logic)
// ══════════════════════════════════════════════════════════════════════════════

// WindowContains returns true if the window contains the given instant.
func (c *Challenge) WindowContains(t time.Time) bool {
	return !t.Before(c.StartDate) && !t.After(c.EndDate)
}

// DaysRemaining returns whole days left in the window, never negative.
func (c *Challenge) DaysRemaining(now time.Time) int {
	if now.After(c.EndDate) {
		return 0
	}
	return int(c.EndDate.Sub(now).Hours()/24) + 1
}

// IsJoinable returns true if a user could enroll right now.
func (c *Challenge) IsJoinable() bool {
	return c.Status.IsJoinable()
}

// JoinableBy checks both lifecycle and visibility for the given user.
// Restricted challenges are joinable by their creator only at this layer;
// invitations are resolved by the boundary before the call reaches the core.
func (c *Challenge) JoinableBy(userID string) bool {
	if !c.IsJoinable() {
		return false
	}
	if c.Visibility.IsRestricted() {
		return c.CreatorID == userID
	}
	return true
}

// SweepStatus advances the lifecycle along the time window and reports
// whether it changed. Terminal statuses are never advanced, so an operator
// cancel sticks even while the window is open.
func (c *Challenge) SweepStatus(now time.Time) (changed bool) {
	if c.Status.IsTerminal() {
		return false
	}

	next := statusForWindow(c.StartDate, c.EndDate, now)
	if next == c.Status {
		return false
	}

	c.Status = next
	c.UpdatedAt = now.UTC()
	return true
}

// Cancel marks the challenge as cancelled by explicit operator action.
func (c *Challenge) Cancel(now time.Time) error {
	if c.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}
	c.Status = StatusCancelled
	c.UpdatedAt = now.UTC()
	return nil
}

// AddParticipant increments the denormalized participant counter.
func (c *Challenge) AddParticipant(now time.Time) {
	c.ParticipantCount++
	c.UpdatedAt = now.UTC()
}

// RemoveParticipant decrements the counter, never below zero.
func (c *Challenge) RemoveParticipant(now time.Time) {
	if c.ParticipantCount > 0 {
		c.ParticipantCount--
	}
	c.UpdatedAt = now.UTC()
}

// String returns a compact representation for logging.
func (c *Challenge) String() string {
	return fmt.Sprintf(
		"Challenge{ID: %s, Name: %s, Type: %s, Goal: %.1f %s, Status: %s}",
		c.ID, c.Name, c.Type, c.Rules.Goal, c.Unit, c.Status,
	)
}

// Clone creates a copy of the challenge.
func (c *Challenge) Clone() *Challenge {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}
