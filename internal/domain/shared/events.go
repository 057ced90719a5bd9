// Package shared contains common domain types, errors, events, and contracts
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the domain.
const (
	// Challenge events
	EventChallengeCreated       EventType = "challenge.created"
	EventChallengeStatusChanged EventType = "challenge.status_changed"

	// Enrollment events
	EventParticipantJoined EventType = "participant.joined"
	EventParticipantLeft   EventType = "participant.left"

	// Progress events
	EventProgressApplied    EventType = "participant.progressed"
	EventChallengeCompleted EventType = "challenge.completed"

	// Team events
	EventTeamCreated       EventType = "team.created"
	EventTeamMemberAdded   EventType = "team.member_added"
	EventTeamMemberRemoved EventType = "team.member_removed"
	EventTeamCompleted     EventType = "team.completed"

	// Ledger events
	EventPointsCredited EventType = "points.credited"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Challenge Events
// ═══════════════════════════════════════════════════════════════════════════

// ChallengeCreatedEvent is emitted when a new challenge is created.
type ChallengeCreatedEvent struct {
	BaseEvent
	ChallengeID   string    `json:"challenge_id"`
	CreatorID     string    `json:"creator_id"`
	Name          string    `json:"name"`
	ChallengeType string    `json:"challenge_type"`
	Goal          float64   `json:"goal"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
}

// Payload implements Event interface.
func (e ChallengeCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"challenge_id":   e.ChallengeID,
		"creator_id":     e.CreatorID,
		"name":           e.Name,
		"challenge_type": e.ChallengeType,
		"goal":           e.Goal,
		"start_date":     e.StartDate.Format(time.RFC3339),
		"end_date":       e.EndDate.Format(time.RFC3339),
	}
}

// NewChallengeCreatedEvent creates a new ChallengeCreatedEvent.
func NewChallengeCreatedEvent(challengeID, creatorID, name, challengeType string, goal float64, start, end time.Time) ChallengeCreatedEvent {
	return ChallengeCreatedEvent{
		BaseEvent:     NewBaseEvent(EventChallengeCreated, challengeID),
		ChallengeID:   challengeID,
		CreatorID:     creatorID,
		Name:          name,
		ChallengeType: challengeType,
		Goal:          goal,
		StartDate:     start,
		EndDate:       end,
	}
}

// ChallengeStatusChangedEvent is emitted when a challenge moves through its lifecycle.
type ChallengeStatusChangedEvent struct {
	BaseEvent
	ChallengeID string `json:"challenge_id"`
	OldStatus   string `json:"old_status"`
	NewStatus   string `json:"new_status"`
}

// Payload implements Event interface.
func (e ChallengeStatusChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"challenge_id": e.ChallengeID,
		"old_status":   e.OldStatus,
		"new_status":   e.NewStatus,
	}
}

// NewChallengeStatusChangedEvent creates a new ChallengeStatusChangedEvent.
func NewChallengeStatusChangedEvent(challengeID, oldStatus, newStatus string) ChallengeStatusChangedEvent {
	return ChallengeStatusChangedEvent{
		BaseEvent:   NewBaseEvent(EventChallengeStatusChanged, challengeID),
		ChallengeID: challengeID,
		OldStatus:   oldStatus,
		NewStatus:   newStatus,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Enrollment Events
// ═══════════════════════════════════════════════════════════════════════════

// ParticipantJoinedEvent is emitted when a user joins (or re-joins) a challenge.
type ParticipantJoinedEvent struct {
	BaseEvent
	ChallengeID string `json:"challenge_id"`
	UserID      string `json:"user_id"`
	Reactivated bool   `json:"reactivated"`
}

// Payload implements Event interface.
func (e ParticipantJoinedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"challenge_id": e.ChallengeID,
		"user_id":      e.UserID,
		"reactivated":  e.Reactivated,
	}
}

// NewParticipantJoinedEvent creates a new ParticipantJoinedEvent.
func NewParticipantJoinedEvent(challengeID, userID string, reactivated bool) ParticipantJoinedEvent {
	return ParticipantJoinedEvent{
		BaseEvent:   NewBaseEvent(EventParticipantJoined, challengeID),
		ChallengeID: challengeID,
		UserID:      userID,
		Reactivated: reactivated,
	}
}

// ParticipantLeftEvent is emitted when a user leaves a challenge.
type ParticipantLeftEvent struct {
	BaseEvent
	ChallengeID string `json:"challenge_id"`
	UserID      string `json:"user_id"`
}

// Payload implements Event interface.
func (e ParticipantLeftEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"challenge_id": e.ChallengeID,
		"user_id":      e.UserID,
	}
}

// NewParticipantLeftEvent creates a new ParticipantLeftEvent.
func NewParticipantLeftEvent(challengeID, userID string) ParticipantLeftEvent {
	return ParticipantLeftEvent{
		BaseEvent:   NewBaseEvent(EventParticipantLeft, challengeID),
		ChallengeID: challengeID,
		UserID:      userID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// ProgressAppliedEvent is emitted on every accepted progress update.
type ProgressAppliedEvent struct {
	BaseEvent
	ChallengeID  string  `json:"challenge_id"`
	UserID       string  `json:"user_id"`
	Progress     float64 `json:"progress"`
	PointsEarned int     `json:"points_earned"`
	PointsDelta  int     `json:"points_delta"`
}

// Payload implements Event interface.
func (e ProgressAppliedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"challenge_id":  e.ChallengeID,
		"user_id":       e.UserID,
		"progress":      e.Progress,
		"points_earned": e.PointsEarned,
		"points_delta":  e.PointsDelta,
	}
}

// NewProgressAppliedEvent creates a new ProgressAppliedEvent.
func NewProgressAppliedEvent(challengeID, userID string, progress float64, pointsEarned, pointsDelta int) ProgressAppliedEvent {
	return ProgressAppliedEvent{
		BaseEvent:    NewBaseEvent(EventProgressApplied, challengeID),
		ChallengeID:  challengeID,
		UserID:       userID,
		Progress:     progress,
		PointsEarned: pointsEarned,
		PointsDelta:  pointsDelta,
	}
}

// ChallengeCompletedEvent is emitted exactly once when a participant reaches
// the challenge goal. Downstream consumers grant badges, publish feed posts
// and reconcile the point ledger.
type ChallengeCompletedEvent struct {
	BaseEvent
	ChallengeID   string `json:"challenge_id"`
	ChallengeName string `json:"challenge_name"`
	UserID        string `json:"user_id"`
	BadgeID       string `json:"badge_id,omitempty"`
	PointsEarned  int    `json:"points_earned"`
	BonusPoints   int    `json:"bonus_points"`
}

// Payload implements Event interface.
func (e ChallengeCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"challenge_id":   e.ChallengeID,
		"challenge_name": e.ChallengeName,
		"user_id":        e.UserID,
		"badge_id":       e.BadgeID,
		"points_earned":  e.PointsEarned,
		"bonus_points":   e.BonusPoints,
	}
}

// NewChallengeCompletedEvent creates a new ChallengeCompletedEvent.
func NewChallengeCompletedEvent(challengeID, challengeName, userID, badgeID string, pointsEarned, bonusPoints int) ChallengeCompletedEvent {
	return ChallengeCompletedEvent{
		BaseEvent:     NewBaseEvent(EventChallengeCompleted, challengeID),
		ChallengeID:   challengeID,
		ChallengeName: challengeName,
		UserID:        userID,
		BadgeID:       badgeID,
		PointsEarned:  pointsEarned,
		BonusPoints:   bonusPoints,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Team Events
// ═══════════════════════════════════════════════════════════════════════════

// TeamCreatedEvent is emitted when a captain creates a team.
type TeamCreatedEvent struct {
	BaseEvent
	TeamID      string `json:"team_id"`
	ChallengeID string `json:"challenge_id"`
	CaptainID   string `json:"captain_id"`
	Name        string `json:"name"`
}

// Payload implements Event interface.
func (e TeamCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"team_id":      e.TeamID,
		"challenge_id": e.ChallengeID,
		"captain_id":   e.CaptainID,
		"name":         e.Name,
	}
}

// NewTeamCreatedEvent creates a new TeamCreatedEvent.
func NewTeamCreatedEvent(teamID, challengeID, captainID, name string) TeamCreatedEvent {
	return TeamCreatedEvent{
		BaseEvent:   NewBaseEvent(EventTeamCreated, teamID),
		TeamID:      teamID,
		ChallengeID: challengeID,
		CaptainID:   captainID,
		Name:        name,
	}
}

// TeamMemberAddedEvent is emitted when a user is added to a team.
type TeamMemberAddedEvent struct {
	BaseEvent
	TeamID      string `json:"team_id"`
	ChallengeID string `json:"challenge_id"`
	UserID      string `json:"user_id"`
}

// Payload implements Event interface.
func (e TeamMemberAddedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"team_id":      e.TeamID,
		"challenge_id": e.ChallengeID,
		"user_id":      e.UserID,
	}
}

// NewTeamMemberAddedEvent creates a new TeamMemberAddedEvent.
func NewTeamMemberAddedEvent(teamID, challengeID, userID string) TeamMemberAddedEvent {
	return TeamMemberAddedEvent{
		BaseEvent:   NewBaseEvent(EventTeamMemberAdded, teamID),
		TeamID:      teamID,
		ChallengeID: challengeID,
		UserID:      userID,
	}
}

// TeamMemberRemovedEvent is emitted when a user is removed from a team.
type TeamMemberRemovedEvent struct {
	BaseEvent
	TeamID      string `json:"team_id"`
	ChallengeID string `json:"challenge_id"`
	UserID      string `json:"user_id"`
}

// Payload implements Event interface.
func (e TeamMemberRemovedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"team_id":      e.TeamID,
		"challenge_id": e.ChallengeID,
		"user_id":      e.UserID,
	}
}

// NewTeamMemberRemovedEvent creates a new TeamMemberRemovedEvent.
func NewTeamMemberRemovedEvent(teamID, challengeID, userID string) TeamMemberRemovedEvent {
	return TeamMemberRemovedEvent{
		BaseEvent:   NewBaseEvent(EventTeamMemberRemoved, teamID),
		TeamID:      teamID,
		ChallengeID: challengeID,
		UserID:      userID,
	}
}

// TeamCompletedEvent is emitted exactly once when the team completion latch fires.
type TeamCompletedEvent struct {
	BaseEvent
	TeamID        string  `json:"team_id"`
	ChallengeID   string  `json:"challenge_id"`
	TotalProgress float64 `json:"total_progress"`
	MemberCount   int     `json:"member_count"`
	// CompletedBy names the predicate that fired: "all_members" or "total_progress".
	CompletedBy string `json:"completed_by"`
}

// Payload implements Event interface.
func (e TeamCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"team_id":        e.TeamID,
		"challenge_id":   e.ChallengeID,
		"total_progress": e.TotalProgress,
		"member_count":   e.MemberCount,
		"completed_by":   e.CompletedBy,
	}
}

// NewTeamCompletedEvent creates a new TeamCompletedEvent.
func NewTeamCompletedEvent(teamID, challengeID string, totalProgress float64, memberCount int, completedBy string) TeamCompletedEvent {
	return TeamCompletedEvent{
		BaseEvent:     NewBaseEvent(EventTeamCompleted, teamID),
		TeamID:        teamID,
		ChallengeID:   challengeID,
		TotalProgress: totalProgress,
		MemberCount:   memberCount,
		CompletedBy:   completedBy,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Ledger Events
// ═══════════════════════════════════════════════════════════════════════════

// PointsCreditedEvent is emitted after the point ledger accepts a credit.
type PointsCreditedEvent struct {
	BaseEvent
	UserID       string `json:"user_id"`
	Points       int    `json:"points"`
	BalanceAfter int    `json:"balance_after"`
	Source       string `json:"source"`
}

// Payload implements Event interface.
func (e PointsCreditedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"points":        e.Points,
		"balance_after": e.BalanceAfter,
		"source":        e.Source,
	}
}

// NewPointsCreditedEvent creates a new PointsCreditedEvent.
func NewPointsCreditedEvent(userID string, points, balanceAfter int, source string) PointsCreditedEvent {
	return PointsCreditedEvent{
		BaseEvent:    NewBaseEvent(EventPointsCredited, userID),
		UserID:       userID,
		Points:       points,
		BalanceAfter: balanceAfter,
		Source:       source,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
