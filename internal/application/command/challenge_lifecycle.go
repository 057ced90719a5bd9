package command

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fitpulse/challenge-engine/internal/domain/challenge"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGE LIFECYCLE
// The sweep advances statuses as windows open and close
// (upcoming -> active -> completed); cancel is the explicit operator path.
// Progress writes tolerate a status changing under them: the status check
// happens at the write, not here.
// ══════════════════════════════════════════════════════════════════════════════

// CancelChallengeCommand cancels a challenge before its window closes.
type CancelChallengeCommand struct {
	ChallengeID string

	// RequestedBy - the operator or creator asking for the cancel. Only the
	// creator may cancel through the public surface.
	RequestedBy string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c CancelChallengeCommand) Validate() error {
	if c.ChallengeID == "" {
		return errors.New("cancel_challenge: challenge_id is required")
	}
	if c.RequestedBy == "" {
		return errors.New("cancel_challenge: requested_by is required")
	}
	return nil
}

// SweepResult reports what a lifecycle sweep changed.
type SweepResult struct {
	// Examined - challenges loaded for the sweep.
	Examined int

	// Activated / Completed - transitions applied.
	Activated int
	Completed int
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// LifecycleHandler owns status transitions outside the progress path.
type LifecycleHandler struct {
	challengeRepo challenge.Repository
	clock         timeutil.Clock
	logger        *slog.Logger
}

// NewLifecycleHandler creates a new LifecycleHandler.
func NewLifecycleHandler(
	challengeRepo challenge.Repository,
	clock timeutil.Clock,
	logger *slog.Logger,
) *LifecycleHandler {
	return &LifecycleHandler{
		challengeRepo: challengeRepo,
		clock:         clock,
		logger:        logger.With("handler", "challenge_lifecycle"),
	}
}

// Sweep advances every upcoming and active challenge whose window boundary
// has passed. Invoked periodically by the scheduler; safe to run
// concurrently because SweepStatus is monotonic and terminal states never
// move again.
func (h *LifecycleHandler) Sweep(ctx context.Context) (*SweepResult, error) {
	now := h.clock.Now()
	result := &SweepResult{}

	for _, status := range []challenge.Status{challenge.StatusUpcoming, challenge.StatusActive} {
		challenges, err := h.challengeRepo.ListByStatus(ctx, status)
		if err != nil {
			return result, err
		}

		for _, ch := range challenges {
			result.Examined++
			oldStatus := ch.Status
			if !ch.SweepStatus(now) {
				continue
			}

			changed := shared.NewChallengeStatusChangedEvent(ch.ID, string(oldStatus), string(ch.Status))
			if err := h.challengeRepo.Update(ctx, ch, []shared.Event{changed}); err != nil {
				h.logger.Warn("lifecycle transition failed", "challenge_id", ch.ID, "error", err)
				continue
			}

			switch ch.Status {
			case challenge.StatusActive:
				result.Activated++
			case challenge.StatusCompleted:
				result.Completed++
			}

			h.logger.Info("challenge status advanced",
				"challenge_id", ch.ID,
				"from", string(oldStatus),
				"to", string(ch.Status),
			)
		}
	}

	return result, nil
}

// Cancel executes the cancel challenge command.
func (h *LifecycleHandler) Cancel(ctx context.Context, cmd CancelChallengeCommand) (*challenge.Challenge, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("challenge", "cancel", shared.ErrValidation, err.Error(), err)
	}

	ch, err := h.challengeRepo.GetByID(ctx, cmd.ChallengeID)
	if err != nil {
		return nil, err
	}
	if ch.CreatorID != cmd.RequestedBy {
		return nil, shared.NewDomainError("challenge", "cancel", shared.ErrForbidden,
			"only the creator may cancel a challenge")
	}

	oldStatus := ch.Status
	if err := ch.Cancel(h.clock.Now()); err != nil {
		return nil, shared.WrapError("challenge", "cancel", shared.ErrInvalidState, "cancel rejected", err)
	}

	changed := shared.NewChallengeStatusChangedEvent(ch.ID, string(oldStatus), string(ch.Status))
	if cmd.CorrelationID != "" {
		changed.BaseEvent = changed.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}

	if err := h.challengeRepo.Update(ctx, ch, []shared.Event{changed}); err != nil {
		return nil, err
	}

	h.logger.Info("challenge cancelled", "challenge_id", ch.ID, "requested_by", cmd.RequestedBy)

	return ch, nil
}
