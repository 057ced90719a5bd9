package query

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fitpulse/challenge-engine/internal/domain/challenge"
	"github.com/fitpulse/challenge-engine/internal/domain/participant"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET CHALLENGE QUERY
// Detail view with the viewer's participation state and computed metrics
// (completion rate, average progress, days remaining).
// ══════════════════════════════════════════════════════════════════════════════

// GetChallengeQuery identifies the challenge and the viewer.
type GetChallengeQuery struct {
	ChallengeID string

	// UserID - optional viewer; required to see restricted challenges and
	// to fill the participation fields.
	UserID string
}

// Validate validates the query.
func (q GetChallengeQuery) Validate() error {
	if q.ChallengeID == "" {
		return errors.New("challenge_id is required")
	}
	return nil
}

// ParticipationDTO is the viewer's own state within the challenge.
type ParticipationDTO struct {
	Status       string     `json:"status"`
	TeamID       string     `json:"teamId,omitempty"`
	Progress     float64    `json:"progress"`
	PointsEarned int        `json:"pointsEarned"`
	IsCompleted  bool       `json:"isCompleted"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	JoinedAt     time.Time  `json:"joinedAt"`
}

// ChallengeMetricsDTO carries the computed aggregate metrics.
type ChallengeMetricsDTO struct {
	// ParticipantCount - ranked (active + completed) participants.
	ParticipantCount int `json:"participantCount"`

	// CompletedCount - participants who reached the goal.
	CompletedCount int `json:"completedCount"`

	// CompletionRate - CompletedCount / ParticipantCount, 0 when empty.
	CompletionRate float64 `json:"completionRate"`

	// AverageProgress - mean progress across ranked participants.
	AverageProgress float64 `json:"averageProgress"`
}

// GetChallengeResult contains the detail view.
type GetChallengeResult struct {
	Challenge     ChallengeDTO        `json:"challenge"`
	Metrics       ChallengeMetricsDTO `json:"metrics"`
	IsParticipant bool                `json:"isParticipant"`
	Participation *ParticipationDTO   `json:"participation,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetChallengeHandler handles the GetChallengeQuery.
type GetChallengeHandler struct {
	challengeRepo   challenge.Repository
	participantRepo participant.Repository
	clock           timeutil.Clock
	logger          *slog.Logger
}

// NewGetChallengeHandler creates a new GetChallengeHandler.
func NewGetChallengeHandler(
	challengeRepo challenge.Repository,
	participantRepo participant.Repository,
	clock timeutil.Clock,
	logger *slog.Logger,
) *GetChallengeHandler {
	return &GetChallengeHandler{
		challengeRepo:   challengeRepo,
		participantRepo: participantRepo,
		clock:           clock,
		logger:          logger.With("handler", "get_challenge"),
	}
}

// Handle executes the get challenge query.
func (h *GetChallengeHandler) Handle(ctx context.Context, q GetChallengeQuery) (*GetChallengeResult, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("challenge", "get", shared.ErrValidation, err.Error(), err)
	}

	ch, err := h.challengeRepo.GetByID(ctx, q.ChallengeID)
	if err != nil {
		return nil, err
	}

	var viewer *participant.Participant
	if q.UserID != "" {
		p, err := h.participantRepo.GetByChallengeAndUser(ctx, q.ChallengeID, q.UserID)
		switch {
		case err == nil:
			viewer = p
		case shared.IsNotFound(err):
			// Not enrolled; fine for public challenges.
		default:
			return nil, err
		}
	}

	// Restricted challenges are visible only to their creator and members.
	if ch.Visibility.IsRestricted() && ch.CreatorID != q.UserID && viewer == nil {
		return nil, shared.NewDomainError("challenge", "get", shared.ErrPrivateChallenge,
			"challenge is not visible to this user")
	}

	rows, err := h.participantRepo.ListByChallenge(ctx, q.ChallengeID, 0, 0)
	if err != nil {
		return nil, err
	}

	metrics := ChallengeMetricsDTO{ParticipantCount: len(rows)}
	var totalProgress float64
	for _, p := range rows {
		totalProgress += p.Progress
		if p.IsCompleted {
			metrics.CompletedCount++
		}
	}
	if len(rows) > 0 {
		metrics.CompletionRate = float64(metrics.CompletedCount) / float64(len(rows))
		metrics.AverageProgress = totalProgress / float64(len(rows))
	}

	result := &GetChallengeResult{
		Challenge: toChallengeDTO(ch, h.clock.Now()),
		Metrics:   metrics,
	}

	if viewer != nil && viewer.Status.Ranked() {
		result.IsParticipant = true
		result.Participation = &ParticipationDTO{
			Status:       string(viewer.Status),
			TeamID:       viewer.TeamID,
			Progress:     viewer.Progress,
			PointsEarned: viewer.PointsEarned,
			IsCompleted:  viewer.IsCompleted,
			CompletedAt:  viewer.CompletedAt,
			JoinedAt:     viewer.JoinedAt,
		}
	}

	return result, nil
}
