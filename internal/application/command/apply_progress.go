package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/fitpulse/challenge-engine/internal/domain/challenge"
	"github.com/fitpulse/challenge-engine/internal/domain/participant"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/pkg/retry"
	"github.com/fitpulse/challenge-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLY PROGRESS COMMAND
// The engine's hot path: apply a progress write, recompute points, fire the
// completion latch at most once, persist state plus events in one
// transaction, then run the best-effort side effects (ledger credit,
// leaderboard cache invalidation, team recalculation).
// ══════════════════════════════════════════════════════════════════════════════

// LedgerSource is the transaction source recorded on challenge credits.
const LedgerSource = "challenge_progress"

// ApplyProgressCommand contains the data to apply progress.
type ApplyProgressCommand struct {
	ChallengeID string
	UserID      string

	// Value - the progress delta (increment) or new value (overwrite).
	Value float64

	// Mode - increment or overwrite. Empty defaults to increment.
	Mode participant.Mode

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ApplyProgressCommand) Validate() error {
	if c.ChallengeID == "" {
		return errors.New("apply_progress: challenge_id is required")
	}
	if c.UserID == "" {
		return errors.New("apply_progress: user_id is required")
	}
	if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
		return errors.New("apply_progress: value must be a finite number")
	}
	if c.Mode != "" && !c.Mode.IsValid() {
		return fmt.Errorf("apply_progress: unknown mode: %s", c.Mode)
	}
	return nil
}

// ApplyProgressResult contains the result of a progress write.
type ApplyProgressResult struct {
	// Participant - the row after the write.
	Participant *participant.Participant

	// Outcome - progress and point movement, including CompletedNow.
	Outcome participant.ProgressOutcome

	// Receipt - the ledger's acknowledgment, nil when no credit was due
	// or the credit failed.
	Receipt *CreditReceipt

	// LedgerWarning - non-nil when the credit failed after retries. The
	// progress write itself still committed.
	LedgerWarning error

	// TeamRecalculated - true if the member's team aggregates were refreshed.
	TeamRecalculated bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ApplyProgressHandler handles the ApplyProgressCommand.
type ApplyProgressHandler struct {
	challengeRepo   challenge.Repository
	participantRepo participant.Repository
	ledger          PointLedger
	outbox          shared.Outbox
	invalidator     LeaderboardInvalidator
	recalculator    *RecalculateTeamHandler
	clock           timeutil.Clock
	logger          *slog.Logger
}

// NewApplyProgressHandler creates a new ApplyProgressHandler.
// The invalidator and recalculator may be nil for setups without a cache or
// without team challenges.
func NewApplyProgressHandler(
	challengeRepo challenge.Repository,
	participantRepo participant.Repository,
	ledger PointLedger,
	outbox shared.Outbox,
	invalidator LeaderboardInvalidator,
	recalculator *RecalculateTeamHandler,
	clock timeutil.Clock,
	logger *slog.Logger,
) *ApplyProgressHandler {
	return &ApplyProgressHandler{
		challengeRepo:   challengeRepo,
		participantRepo: participantRepo,
		ledger:          ledger,
		outbox:          outbox,
		invalidator:     invalidator,
		recalculator:    recalculator,
		clock:           clock,
		logger:          logger.With("handler", "apply_progress"),
	}
}

// Handle executes the apply progress command.
func (h *ApplyProgressHandler) Handle(ctx context.Context, cmd ApplyProgressCommand) (*ApplyProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("participant", "apply_progress", shared.ErrValidation, err.Error(), err)
	}

	mode := cmd.Mode
	if mode == "" {
		mode = participant.ModeIncrement
	}

	ch, err := h.challengeRepo.GetByID(ctx, cmd.ChallengeID)
	if err != nil {
		return nil, err
	}
	if ch.Status != challenge.StatusActive {
		return nil, shared.NewDomainError("participant", "apply_progress", shared.ErrInvalidState,
			fmt.Sprintf("challenge %s is %s, progress is only accepted while active", ch.ID, ch.Status))
	}

	// The write itself, retried on optimistic-lock conflicts. Each attempt
	// reloads the row and reapplies, so a lost race never double-applies.
	var (
		p       *participant.Participant
		outcome participant.ProgressOutcome
	)
	err = retry.ConflictRetrier().Do(ctx, func(ctx context.Context) error {
		var attemptErr error
		p, outcome, attemptErr = h.writeOnce(ctx, ch, cmd, mode)
		if attemptErr != nil && errors.Is(attemptErr, shared.ErrOptimisticLock) {
			return retry.Retryable(attemptErr)
		}
		return attemptErr
	})
	if err != nil {
		if errors.Is(err, shared.ErrOptimisticLock) {
			return nil, shared.NewDomainError("participant", "apply_progress", shared.ErrConflict,
				"progress write kept conflicting with concurrent writes")
		}
		return nil, err
	}

	result := &ApplyProgressResult{Participant: p, Outcome: outcome}

	// Side effects run after the committed write and never undo it.
	h.creditLedger(ctx, ch, cmd, outcome, result)
	h.invalidateCache(ctx, cmd.ChallengeID)
	h.recalcTeam(ctx, p, cmd.CorrelationID, result)

	h.logger.Info("progress applied",
		"challenge_id", cmd.ChallengeID,
		"user_id", cmd.UserID,
		"mode", string(mode),
		"progress", outcome.NewProgress,
		"points_delta", outcome.PointsDelta,
		"completed_now", outcome.CompletedNow,
	)

	return result, nil
}

// writeOnce loads, applies and saves a single attempt.
func (h *ApplyProgressHandler) writeOnce(
	ctx context.Context,
	ch *challenge.Challenge,
	cmd ApplyProgressCommand,
	mode participant.Mode,
) (*participant.Participant, participant.ProgressOutcome, error) {
	p, err := h.participantRepo.GetByChallengeAndUser(ctx, cmd.ChallengeID, cmd.UserID)
	if err != nil {
		return nil, participant.ProgressOutcome{}, err
	}

	outcome, err := p.ApplyProgress(cmd.Value, mode, ch.Rules, h.clock.Now())
	if err != nil {
		if errors.Is(err, participant.ErrNotActive) {
			return nil, outcome, shared.NewDomainError("participant", "apply_progress",
				shared.ErrParticipantInactive, "participant is not active in this challenge")
		}
		return nil, outcome, shared.WrapError("participant", "apply_progress",
			shared.ErrValidation, "progress rejected", err)
	}

	events := []shared.Event{h.progressEvent(cmd, outcome)}
	if outcome.CompletedNow {
		completed := shared.NewChallengeCompletedEvent(
			ch.ID, ch.Name, cmd.UserID, ch.BadgeID, p.PointsEarned, ch.Rules.BonusPoints,
		)
		if cmd.CorrelationID != "" {
			completed.BaseEvent = completed.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		events = append(events, completed)
	}

	if err := h.participantRepo.Save(ctx, p, events); err != nil {
		return nil, outcome, err
	}

	return p, outcome, nil
}

func (h *ApplyProgressHandler) progressEvent(cmd ApplyProgressCommand, outcome participant.ProgressOutcome) shared.Event {
	ev := shared.NewProgressAppliedEvent(
		cmd.ChallengeID, cmd.UserID, outcome.NewProgress, outcome.NewPoints, outcome.PointsDelta,
	)
	if cmd.CorrelationID != "" {
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	return ev
}

// creditLedger credits the positive point delta. Failures are warnings.
func (h *ApplyProgressHandler) creditLedger(
	ctx context.Context,
	ch *challenge.Challenge,
	cmd ApplyProgressCommand,
	outcome participant.ProgressOutcome,
	result *ApplyProgressResult,
) {
	if h.ledger == nil || outcome.PointsDelta <= 0 {
		return
	}

	receipt, err := h.ledger.Credit(ctx, CreditRequest{
		UserID:        cmd.UserID,
		Points:        outcome.PointsDelta,
		Reason:        LedgerSource,
		Description:   "Challenge progress: " + ch.Name,
		ChallengeID:   cmd.ChallengeID,
		CorrelationID: cmd.CorrelationID,
	})
	if err != nil {
		result.LedgerWarning = shared.WrapError("ledger", "credit", shared.ErrSideEffectFailed,
			"point credit failed, progress write already committed", err)
		h.logger.Warn("ledger credit failed",
			"challenge_id", cmd.ChallengeID,
			"user_id", cmd.UserID,
			"points_delta", outcome.PointsDelta,
			"error", err,
		)
		return
	}

	result.Receipt = receipt

	if h.outbox != nil {
		credited := shared.NewPointsCreditedEvent(cmd.UserID, outcome.PointsDelta, receipt.BalanceAfter, LedgerSource)
		if cmd.CorrelationID != "" {
			credited.BaseEvent = credited.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		if err := h.outbox.Append(ctx, credited); err != nil {
			h.logger.Warn("failed to record points.credited event", "user_id", cmd.UserID, "error", err)
		}
	}
}

func (h *ApplyProgressHandler) invalidateCache(ctx context.Context, challengeID string) {
	if h.invalidator == nil {
		return
	}
	if err := h.invalidator.Invalidate(ctx, challengeID); err != nil {
		h.logger.Warn("leaderboard cache invalidation failed", "challenge_id", challengeID, "error", err)
	}
}

func (h *ApplyProgressHandler) recalcTeam(
	ctx context.Context,
	p *participant.Participant,
	correlationID string,
	result *ApplyProgressResult,
) {
	if h.recalculator == nil || !p.OnTeam() {
		return
	}
	if _, err := h.recalculator.Handle(ctx, RecalculateTeamCommand{
		TeamID:        p.TeamID,
		CorrelationID: correlationID,
	}); err != nil {
		h.logger.Warn("team recalculation after progress failed",
			"team_id", p.TeamID,
			"challenge_id", p.ChallengeID,
			"error", err,
		)
		return
	}
	result.TeamRecalculated = true
}
