package command

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fitpulse/challenge-engine/internal/domain/challenge"
	"github.com/fitpulse/challenge-engine/internal/domain/participant"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/internal/domain/team"
	"github.com/fitpulse/challenge-engine/pkg/retry"
	"github.com/fitpulse/challenge-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECALCULATE TEAM COMMAND
// Rederives a team's aggregates from its members' rows. Idempotent: redundant
// concurrent invocations converge on the same stored state, and the
// completion latch fires on exactly one of them.
// ══════════════════════════════════════════════════════════════════════════════

// RecalculateTeamCommand identifies the team to recalculate.
type RecalculateTeamCommand struct {
	TeamID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RecalculateTeamCommand) Validate() error {
	if c.TeamID == "" {
		return errors.New("recalculate_team: team_id is required")
	}
	return nil
}

// RecalculateTeamResult contains the result of a recalculation.
type RecalculateTeamResult struct {
	// Team - the team after recalculation.
	Team *team.Team

	// Outcome - what changed, including whether the latch fired here.
	Outcome team.RecalcOutcome
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecalculateTeamHandler handles the RecalculateTeamCommand.
type RecalculateTeamHandler struct {
	challengeRepo   challenge.Repository
	participantRepo participant.Repository
	teamRepo        team.Repository
	clock           timeutil.Clock
	logger          *slog.Logger
}

// NewRecalculateTeamHandler creates a new RecalculateTeamHandler.
func NewRecalculateTeamHandler(
	challengeRepo challenge.Repository,
	participantRepo participant.Repository,
	teamRepo team.Repository,
	clock timeutil.Clock,
	logger *slog.Logger,
) *RecalculateTeamHandler {
	return &RecalculateTeamHandler{
		challengeRepo:   challengeRepo,
		participantRepo: participantRepo,
		teamRepo:        teamRepo,
		clock:           clock,
		logger:          logger.With("handler", "recalculate_team"),
	}
}

// Handle executes the recalculate team command. Version conflicts mean a
// concurrent recalculation landed first; the retry reloads and reapplies,
// which converges because aggregates derive from the member rows alone.
func (h *RecalculateTeamHandler) Handle(ctx context.Context, cmd RecalculateTeamCommand) (*RecalculateTeamResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("team", "recalculate", shared.ErrValidation, err.Error(), err)
	}

	var result *RecalculateTeamResult

	err := retry.ConflictRetrier().Do(ctx, func(ctx context.Context) error {
		r, err := h.recalcOnce(ctx, cmd)
		if err != nil {
			if errors.Is(err, shared.ErrOptimisticLock) {
				return retry.Retryable(err)
			}
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrOptimisticLock) {
			return nil, shared.NewDomainError("team", "recalculate", shared.ErrConflict,
				"team recalculation kept conflicting with concurrent writes")
		}
		return nil, err
	}

	return result, nil
}

func (h *RecalculateTeamHandler) recalcOnce(ctx context.Context, cmd RecalculateTeamCommand) (*RecalculateTeamResult, error) {
	t, err := h.teamRepo.GetByID(ctx, cmd.TeamID)
	if err != nil {
		return nil, err
	}

	ch, err := h.challengeRepo.GetByID(ctx, t.ChallengeID)
	if err != nil {
		return nil, err
	}

	members, err := h.participantRepo.ListByTeam(ctx, t.ID)
	if err != nil {
		return nil, err
	}

	outcome := t.Recalculate(members, ch.Rules.Goal, h.clock.Now())
	if !outcome.Changed {
		return &RecalculateTeamResult{Team: t, Outcome: outcome}, nil
	}

	var events []shared.Event
	if outcome.CompletedNow {
		completed := shared.NewTeamCompletedEvent(
			t.ID, t.ChallengeID, t.TotalProgress, t.MemberCount, string(outcome.Reason),
		)
		if cmd.CorrelationID != "" {
			completed.BaseEvent = completed.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		events = append(events, completed)
	}

	if err := h.teamRepo.Save(ctx, t, events); err != nil {
		return nil, err
	}

	if outcome.CompletedNow {
		h.logger.Info("team completed",
			"team_id", t.ID,
			"challenge_id", t.ChallengeID,
			"completed_by", string(outcome.Reason),
			"total_progress", t.TotalProgress,
		)
	}

	return &RecalculateTeamResult{Team: t, Outcome: outcome}, nil
}
