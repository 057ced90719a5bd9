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
// JOIN CHALLENGE COMMAND
// Enrolls a user, or reactivates a previous enrollment in place. A second
// join while active yields ErrAlreadyJoined; the row is the idempotency key.
// ══════════════════════════════════════════════════════════════════════════════

// JoinChallengeCommand contains the data to join a challenge.
type JoinChallengeCommand struct {
	ChallengeID string
	UserID      string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c JoinChallengeCommand) Validate() error {
	if c.ChallengeID == "" {
		return errors.New("join_challenge: challenge_id is required")
	}
	if c.UserID == "" {
		return errors.New("join_challenge: user_id is required")
	}
	return nil
}

// JoinChallengeResult contains the result of joining.
type JoinChallengeResult struct {
	// Participant - the active enrollment row.
	Participant *participant.Participant

	// Reactivated - true if a prior enrollment was revived, with its
	// progress and points intact, instead of a fresh row being created.
	Reactivated bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// JoinChallengeHandler handles the JoinChallengeCommand.
type JoinChallengeHandler struct {
	challengeRepo   challenge.Repository
	participantRepo participant.Repository
	clock           timeutil.Clock
	logger          *slog.Logger
}

// NewJoinChallengeHandler creates a new JoinChallengeHandler.
func NewJoinChallengeHandler(
	challengeRepo challenge.Repository,
	participantRepo participant.Repository,
	clock timeutil.Clock,
	logger *slog.Logger,
) *JoinChallengeHandler {
	return &JoinChallengeHandler{
		challengeRepo:   challengeRepo,
		participantRepo: participantRepo,
		clock:           clock,
		logger:          logger.With("handler", "join_challenge"),
	}
}

// Handle executes the join challenge command.
func (h *JoinChallengeHandler) Handle(ctx context.Context, cmd JoinChallengeCommand) (*JoinChallengeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("participant", "join", shared.ErrValidation, err.Error(), err)
	}

	now := h.clock.Now()

	ch, err := h.challengeRepo.GetByID(ctx, cmd.ChallengeID)
	if err != nil {
		return nil, err
	}

	if !ch.IsJoinable() {
		return nil, shared.NewDomainError("participant", "join", shared.ErrChallengeNotJoinable,
			fmt.Sprintf("challenge %s is %s", ch.ID, ch.Status))
	}
	if !ch.JoinableBy(cmd.UserID) {
		return nil, shared.NewDomainError("participant", "join", shared.ErrPrivateChallenge,
			"challenge is not open to this user")
	}

	// Reactivation path: a previous enrollment is revived in place.
	existing, err := h.participantRepo.GetByChallengeAndUser(ctx, cmd.ChallengeID, cmd.UserID)
	switch {
	case err == nil:
		return h.reactivate(ctx, ch, existing, cmd, now)
	case shared.IsNotFound(err):
		// First join, fall through to create.
	default:
		return nil, err
	}

	p, err := participant.NewParticipant(uuid.New().String(), cmd.ChallengeID, cmd.UserID, now)
	if err != nil {
		return nil, shared.WrapError("participant", "join", shared.ErrValidation, "invalid enrollment", err)
	}

	joined := shared.NewParticipantJoinedEvent(cmd.ChallengeID, cmd.UserID, false)
	if cmd.CorrelationID != "" {
		joined.BaseEvent = joined.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}

	// The store's uniqueness constraint decides races between two first
	// joins; the loser observes ErrAlreadyJoined.
	if err := h.participantRepo.Create(ctx, p, []shared.Event{joined}); err != nil {
		return nil, err
	}

	// Relative increment: concurrent joins each land their +1.
	if err := h.challengeRepo.AdjustParticipantCount(ctx, ch.ID, 1, now); err != nil {
		return nil, fmt.Errorf("join_challenge: failed to update participant count: %w", err)
	}

	h.logger.Info("participant joined",
		"challenge_id", cmd.ChallengeID,
		"user_id", cmd.UserID,
	)

	return &JoinChallengeResult{Participant: p}, nil
}

// reactivate revives an inactive row; active or completed rows reject.
func (h *JoinChallengeHandler) reactivate(
	ctx context.Context,
	ch *challenge.Challenge,
	p *participant.Participant,
	cmd JoinChallengeCommand,
	now time.Time,
) (*JoinChallengeResult, error) {
	if p.Status.Ranked() {
		return nil, shared.NewDomainError("participant", "join", shared.ErrAlreadyJoined,
			fmt.Sprintf("user %s already joined challenge %s", cmd.UserID, cmd.ChallengeID))
	}

	if err := p.Reactivate(now); err != nil {
		return nil, shared.WrapError("participant", "join", shared.ErrInvalidState, "reactivation failed", err)
	}

	joined := shared.NewParticipantJoinedEvent(cmd.ChallengeID, cmd.UserID, true)
	if cmd.CorrelationID != "" {
		joined.BaseEvent = joined.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}

	if err := h.participantRepo.Save(ctx, p, []shared.Event{joined}); err != nil {
		return nil, err
	}

	if err := h.challengeRepo.AdjustParticipantCount(ctx, ch.ID, 1, now); err != nil {
		return nil, fmt.Errorf("join_challenge: failed to update participant count: %w", err)
	}

	h.logger.Info("participant reactivated",
		"challenge_id", cmd.ChallengeID,
		"user_id", cmd.UserID,
		"progress", p.Progress,
	)

	return &JoinChallengeResult{Participant: p, Reactivated: true}, nil
}
