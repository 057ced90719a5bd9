package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fitpulse/challenge-engine/internal/domain/challenge"
	"github.com/fitpulse/challenge-engine/internal/domain/participant"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE CHALLENGE COMMAND
// Creates a challenge and auto-enrolls its creator. A failed enrollment does
// not undo the creation: the challenge stays and the creator retries join.
// ══════════════════════════════════════════════════════════════════════════════

// CreateChallengeCommand contains the data to create a challenge.
type CreateChallengeCommand struct {
	// CreatorID - the user creating the challenge.
	CreatorID string

	// Name / Description - display fields.
	Name        string
	Description string

	// Type - individual, team or global.
	Type challenge.Type

	// Category - activity category, e.g. running.
	Category challenge.Category

	// Goal / PointsPerUnit / BonusPoints - the point rules.
	Goal          float64
	PointsPerUnit float64
	BonusPoints   int

	// Unit - what progress is measured in, e.g. "km".
	Unit string

	// StartDate / EndDate - the challenge window (UTC).
	StartDate time.Time
	EndDate   time.Time

	// Visibility - public, private or invite-only. Empty means public.
	Visibility challenge.Visibility

	// BadgeID - optional achievement granted on completion.
	BadgeID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command. Full rule validation happens in the
// domain factory; this catches the fields the factory cannot default.
func (c CreateChallengeCommand) Validate() error {
	if c.CreatorID == "" {
		return errors.New("create_challenge: creator_id is required")
	}
	if c.Name == "" {
		return errors.New("create_challenge: name is required")
	}
	return nil
}

// CreateChallengeResult contains the result of creating a challenge.
type CreateChallengeResult struct {
	// Challenge - the created challenge.
	Challenge *challenge.Challenge

	// Participant - the creator's enrollment, nil if enrollment failed.
	Participant *participant.Participant

	// EnrollmentErr - non-nil iff the creator's auto-enrollment failed.
	// The challenge itself was still created.
	EnrollmentErr error
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CreateChallengeHandler handles the CreateChallengeCommand.
type CreateChallengeHandler struct {
	challengeRepo   challenge.Repository
	participantRepo participant.Repository
	clock           timeutil.Clock
	logger          *slog.Logger
}

// NewCreateChallengeHandler creates a new CreateChallengeHandler.
func NewCreateChallengeHandler(
	challengeRepo challenge.Repository,
	participantRepo participant.Repository,
	clock timeutil.Clock,
	logger *slog.Logger,
) *CreateChallengeHandler {
	return &CreateChallengeHandler{
		challengeRepo:   challengeRepo,
		participantRepo: participantRepo,
		clock:           clock,
		logger:          logger.With("handler", "create_challenge"),
	}
}

// Handle executes the create challenge command.
func (h *CreateChallengeHandler) Handle(ctx context.Context, cmd CreateChallengeCommand) (*CreateChallengeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("challenge", "create", shared.ErrValidation, err.Error(), err)
	}

	now := h.clock.Now()

	visibility := cmd.Visibility
	if visibility == "" {
		visibility = challenge.VisibilityPublic
	}

	ch, err := challenge.NewChallenge(challenge.NewChallengeParams{
		ID:          uuid.New().String(),
		CreatorID:   cmd.CreatorID,
		Name:        cmd.Name,
		Description: cmd.Description,
		Type:        cmd.Type,
		Category:    cmd.Category,
		Rules: challenge.PointRules{
			Goal:          cmd.Goal,
			PointsPerUnit: cmd.PointsPerUnit,
			BonusPoints:   cmd.BonusPoints,
		},
		Unit:       cmd.Unit,
		StartDate:  cmd.StartDate,
		EndDate:    cmd.EndDate,
		Visibility: visibility,
		BadgeID:    cmd.BadgeID,
	}, now)
	if err != nil {
		return nil, shared.WrapError("challenge", "create", shared.ErrValidation, "invalid challenge definition", err)
	}

	created := shared.NewChallengeCreatedEvent(
		ch.ID, ch.CreatorID, ch.Name, string(ch.Type), ch.Rules.Goal, ch.StartDate, ch.EndDate,
	)
	if cmd.CorrelationID != "" {
		created.BaseEvent = created.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}

	if err := h.challengeRepo.Create(ctx, ch, []shared.Event{created}); err != nil {
		return nil, fmt.Errorf("create_challenge: failed to persist challenge: %w", err)
	}

	result := &CreateChallengeResult{Challenge: ch}

	// Auto-enroll the creator. The challenge survives an enrollment failure.
	p, err := h.enrollCreator(ctx, ch, cmd.CorrelationID, now)
	if err != nil {
		h.logger.Warn("creator auto-enrollment failed",
			"challenge_id", ch.ID,
			"creator_id", ch.CreatorID,
			"error", err,
		)
		result.EnrollmentErr = shared.WrapError(
			"challenge", "create", shared.ErrEnrollmentFailed,
			"challenge created but creator enrollment failed", err,
		)
		return result, nil
	}

	result.Participant = p

	h.logger.Info("challenge created",
		"challenge_id", ch.ID,
		"creator_id", ch.CreatorID,
		"type", string(ch.Type),
		"status", string(ch.Status),
	)

	return result, nil
}

// enrollCreator creates the creator's participant row and bumps the counter.
func (h *CreateChallengeHandler) enrollCreator(
	ctx context.Context,
	ch *challenge.Challenge,
	correlationID string,
	now time.Time,
) (*participant.Participant, error) {
	p, err := participant.NewParticipant(uuid.New().String(), ch.ID, ch.CreatorID, now)
	if err != nil {
		return nil, err
	}

	joined := shared.NewParticipantJoinedEvent(ch.ID, ch.CreatorID, false)
	if correlationID != "" {
		joined.BaseEvent = joined.BaseEvent.WithCorrelationID(correlationID)
	}

	if err := h.participantRepo.Create(ctx, p, []shared.Event{joined}); err != nil {
		return nil, err
	}

	if err := h.challengeRepo.AdjustParticipantCount(ctx, ch.ID, 1, now); err != nil {
		return nil, err
	}

	// Reflect the counter in the returned view.
	ch.AddParticipant(now)

	return p, nil
}
