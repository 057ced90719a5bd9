package query

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fitpulse/challenge-engine/internal/domain/challenge"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST CHALLENGES QUERY
// Public active challenges whose window contains now, unioned with the
// restricted challenges the given user created or participates in, ordered
// by end date ascending (the soonest deadline first).
// ══════════════════════════════════════════════════════════════════════════════

// ListChallengesQuery contains the listing parameters.
type ListChallengesQuery struct {
	// UserID - optional; adds the user's restricted challenges to the union
	// and sets the participation flag on each row.
	UserID string

	// Type / Category / Visibility - optional filters.
	Type       challenge.Type
	Category   challenge.Category
	Visibility challenge.Visibility

	// Limit - page size (default 20, maximum 100).
	Limit int

	// Offset - pagination offset.
	Offset int
}

// Validate checks and normalizes the query parameters.
func (q *ListChallengesQuery) Validate() error {
	if q.Offset < 0 {
		return errors.New("offset cannot be negative")
	}
	if q.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	return nil
}

// ChallengeDTO is one challenge row on the wire.
type ChallengeDTO struct {
	ID               string    `json:"id"`
	CreatorID        string    `json:"creatorId"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	Type             string    `json:"type"`
	Category         string    `json:"category"`
	Goal             float64   `json:"goal"`
	Unit             string    `json:"unit"`
	PointsPerUnit    float64   `json:"pointsPerUnit"`
	BonusPoints      int       `json:"bonusPoints"`
	StartDate        time.Time `json:"startDate"`
	EndDate          time.Time `json:"endDate"`
	Status           string    `json:"status"`
	Visibility       string    `json:"visibility"`
	BadgeID          string    `json:"badgeId,omitempty"`
	ParticipantCount int       `json:"participantCount"`
	DaysRemaining    int       `json:"daysRemaining"`
}

// ListChallengesResult contains one page of challenges.
type ListChallengesResult struct {
	Challenges []ChallengeDTO `json:"challenges"`
	Count      int            `json:"count"`
	Total      int            `json:"total"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
}

// toChallengeDTO maps a challenge entity to its wire shape.
func toChallengeDTO(ch *challenge.Challenge, now time.Time) ChallengeDTO {
	return ChallengeDTO{
		ID:               ch.ID,
		CreatorID:        ch.CreatorID,
		Name:             ch.Name,
		Description:      ch.Description,
		Type:             string(ch.Type),
		Category:         string(ch.Category),
		Goal:             ch.Rules.Goal,
		Unit:             ch.Unit,
		PointsPerUnit:    ch.Rules.PointsPerUnit,
		BonusPoints:      ch.Rules.BonusPoints,
		StartDate:        ch.StartDate,
		EndDate:          ch.EndDate,
		Status:           string(ch.Status),
		Visibility:       string(ch.Visibility),
		BadgeID:          ch.BadgeID,
		ParticipantCount: ch.ParticipantCount,
		DaysRemaining:    ch.DaysRemaining(now),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ListChallengesHandler handles the ListChallengesQuery.
type ListChallengesHandler struct {
	challengeRepo challenge.Repository
	clock         timeutil.Clock
	logger        *slog.Logger
}

// NewListChallengesHandler creates a new ListChallengesHandler.
func NewListChallengesHandler(
	challengeRepo challenge.Repository,
	clock timeutil.Clock,
	logger *slog.Logger,
) *ListChallengesHandler {
	return &ListChallengesHandler{
		challengeRepo: challengeRepo,
		clock:         clock,
		logger:        logger.With("handler", "list_challenges"),
	}
}

// Handle executes the list challenges query.
func (h *ListChallengesHandler) Handle(ctx context.Context, q ListChallengesQuery) (*ListChallengesResult, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("challenge", "list", shared.ErrValidation, err.Error(), err)
	}

	now := h.clock.Now()

	filter := challenge.ListFilter{
		UserID:     q.UserID,
		Type:       q.Type,
		Category:   q.Category,
		Visibility: q.Visibility,
		Limit:      q.Limit,
		Offset:     q.Offset,
	}

	challenges, err := h.challengeRepo.ListActive(ctx, filter, now)
	if err != nil {
		return nil, err
	}

	total, err := h.challengeRepo.CountActive(ctx, filter, now)
	if err != nil {
		return nil, err
	}

	result := &ListChallengesResult{
		Challenges: make([]ChallengeDTO, 0, len(challenges)),
		Count:      len(challenges),
		Total:      total,
		Limit:      q.Limit,
		Offset:     q.Offset,
	}
	for _, ch := range challenges {
		result.Challenges = append(result.Challenges, toChallengeDTO(ch, now))
	}

	return result, nil
}
