package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON TEAM COMPLETED HANDLER
// Posts a team completion to the activity feed.
// ══════════════════════════════════════════════════════════════════════════════

// OnTeamCompletedHandler reacts to team.completed events.
type OnTeamCompletedHandler struct {
	feed    ActivityFeed
	retrier *retry.Retrier
	logger  *slog.Logger
	timeout time.Duration
}

// NewOnTeamCompletedHandler creates a new handler.
func NewOnTeamCompletedHandler(feed ActivityFeed, logger *slog.Logger) *OnTeamCompletedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnTeamCompletedHandler{
		feed:    feed,
		retrier: retry.ExternalRetrier(),
		logger:  logger.With("handler", "on_team_completed"),
		timeout: 10 * time.Second,
	}
}

// Handle processes a team.completed event.
func (h *OnTeamCompletedHandler) Handle(event shared.Event) error {
	if event.EventType() != shared.EventTeamCompleted || h.feed == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	payload := event.Payload()
	teamID := payloadString(payload, "team_id")
	challengeID := payloadString(payload, "challenge_id")
	if teamID == "" || challengeID == "" {
		return fmt.Errorf("on_team_completed: malformed payload for aggregate %s", event.AggregateID())
	}

	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		if err := h.feed.PublishPost(ctx, FeedPost{
			TeamID:      teamID,
			ChallengeID: challengeID,
			Kind:        "team_completed",
			OccurredAt:  event.OccurredAt(),
		}); err != nil {
			return retry.Retryable(err)
		}
		return nil
	})
	if err != nil {
		h.logger.Warn("team feed publish failed",
			"team_id", teamID,
			"challenge_id", challengeID,
			"error", err,
		)
		return shared.WrapError("feed", "publish", shared.ErrFeedPublishFailed, "feed publish failed", err)
	}

	return nil
}
