package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fitpulse/challenge-engine/internal/domain/challenge"
	"github.com/fitpulse/challenge-engine/internal/domain/participant"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEAVE CHALLENGE COMMAND
// Flips the enrollment to inactive and decrements the counter. Rows are
// never deleted, so a later join reactivates with history intact.
// ══════════════════════════════════════════════════════════════════════════════

// LeaveChallengeCommand contains the data to leave a challenge.
type LeaveChallengeCommand struct {
	ChallengeID string
	UserID      string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c LeaveChallengeCommand) Validate() error {
	if c.ChallengeID == "" {
		return errors.New("leave_challenge: challenge_id is required")
	}
	if c.UserID == "" {
		return errors.New("leave_challenge: user_id is required")
	}
	return nil
}

// LeaveChallengeResult contains the result of leaving.
type LeaveChallengeResult struct {
	// Participant - the now-inactive enrollment row.
	Participant *participant.Participant

	// TeamRecalculated - true if the member's team aggregates were refreshed.
	TeamRecalculated bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// LeaveChallengeHandler handles the LeaveChallengeCommand.
type LeaveChallengeHandler struct {
	challengeRepo   challenge.Repository
	participantRepo participant.Repository
	recalculator    *RecalculateTeamHandler
	clock           timeutil.Clock
	logger          *slog.Logger
}

// NewLeaveChallengeHandler creates a new LeaveChallengeHandler.
func NewLeaveChallengeHandler(
	challengeRepo challenge.Repository,
	participantRepo participant.Repository,
	recalculator *RecalculateTeamHandler,
	clock timeutil.Clock,
	logger *slog.Logger,
) *LeaveChallengeHandler {
	return &LeaveChallengeHandler{
		challengeRepo:   challengeRepo,
		participantRepo: participantRepo,
		recalculator:    recalculator,
		clock:           clock,
		logger:          logger.With("handler", "leave_challenge"),
	}
}

// Handle executes the leave challenge command.
func (h *LeaveChallengeHandler) Handle(ctx context.Context, cmd LeaveChallengeCommand) (*LeaveChallengeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("participant", "leave", shared.ErrValidation, err.Error(), err)
	}

	now := h.clock.Now()

	ch, err := h.challengeRepo.GetByID(ctx, cmd.ChallengeID)
	if err != nil {
		return nil, err
	}

	p, err := h.participantRepo.GetByChallengeAndUser(ctx, cmd.ChallengeID, cmd.UserID)
	if err != nil {
		return nil, err
	}

	if err := p.Deactivate(now); err != nil {
		if errors.Is(err, participant.ErrNotActive) {
			return nil, shared.NewDomainError("participant", "leave", shared.ErrParticipantInactive,
				"participant already left this challenge")
		}
		return nil, shared.WrapError("participant", "leave", shared.ErrInvalidState, "cannot leave", err)
	}

	teamID := p.TeamID
	p.ClearTeam(now)

	left := shared.NewParticipantLeftEvent(cmd.ChallengeID, cmd.UserID)
	if cmd.CorrelationID != "" {
		left.BaseEvent = left.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}

	if err := h.participantRepo.Save(ctx, p, []shared.Event{left}); err != nil {
		return nil, err
	}

	if err := h.challengeRepo.AdjustParticipantCount(ctx, ch.ID, -1, now); err != nil {
		return nil, fmt.Errorf("leave_challenge: failed to update participant count: %w", err)
	}

	result := &LeaveChallengeResult{Participant: p}

	// A departed member changes the team aggregates; refresh best effort.
	if teamID != "" && h.recalculator != nil {
		if _, err := h.recalculator.Handle(ctx, RecalculateTeamCommand{
			TeamID:        teamID,
			CorrelationID: cmd.CorrelationID,
		}); err != nil {
			h.logger.Warn("team recalculation after leave failed",
				"team_id", teamID,
				"challenge_id", cmd.ChallengeID,
				"error", err,
			)
		} else {
			result.TeamRecalculated = true
		}
	}

	h.logger.Info("participant left",
		"challenge_id", cmd.ChallengeID,
		"user_id", cmd.UserID,
	)

	return result, nil
}
