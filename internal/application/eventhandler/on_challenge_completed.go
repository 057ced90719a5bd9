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
// ON CHALLENGE COMPLETED HANDLER
// Fires when a participant's completion latch fires: grants the challenge
// badge (if any) and posts the completion to the activity feed. Both are
// side effects of an already-committed write; a failure here is a warning
// and the dispatcher redelivers the event later.
// ══════════════════════════════════════════════════════════════════════════════

// OnChallengeCompletedHandler reacts to challenge.completed events.
type OnChallengeCompletedHandler struct {
	achievements AchievementService
	feed         ActivityFeed
	retrier      *retry.Retrier
	logger       *slog.Logger
	config       ChallengeCompletedConfig
}

// ChallengeCompletedConfig contains the handler's configuration.
type ChallengeCompletedConfig struct {
	// GrantBadges - grant the challenge badge on completion.
	GrantBadges bool

	// PublishToFeed - post the completion to the activity feed.
	PublishToFeed bool

	// Timeout bounds each external call.
	Timeout time.Duration
}

// DefaultChallengeCompletedConfig returns the default configuration.
func DefaultChallengeCompletedConfig() ChallengeCompletedConfig {
	return ChallengeCompletedConfig{
		GrantBadges:   true,
		PublishToFeed: true,
		Timeout:       10 * time.Second,
	}
}

// NewOnChallengeCompletedHandler creates a new handler.
func NewOnChallengeCompletedHandler(
	achievements AchievementService,
	feed ActivityFeed,
	logger *slog.Logger,
	config ChallengeCompletedConfig,
) *OnChallengeCompletedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	return &OnChallengeCompletedHandler{
		achievements: achievements,
		feed:         feed,
		retrier:      retry.ExternalRetrier(),
		logger:       logger.With("handler", "on_challenge_completed"),
		config:       config,
	}
}

// Handle processes a challenge.completed event.
// Implements shared.EventHandler via closure registration.
func (h *OnChallengeCompletedHandler) Handle(event shared.Event) error {
	if event.EventType() != shared.EventChallengeCompleted {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	payload := event.Payload()
	userID := payloadString(payload, "user_id")
	challengeID := payloadString(payload, "challenge_id")
	challengeName := payloadString(payload, "challenge_name")
	badgeID := payloadString(payload, "badge_id")
	points := payloadInt(payload, "points_earned")

	if userID == "" || challengeID == "" {
		return fmt.Errorf("on_challenge_completed: malformed payload for aggregate %s", event.AggregateID())
	}

	var firstErr error

	if h.config.GrantBadges && badgeID != "" && h.achievements != nil {
		err := h.retrier.Do(ctx, func(ctx context.Context) error {
			if err := h.achievements.GrantBadge(ctx, userID, badgeID); err != nil {
				return retry.Retryable(err)
			}
			return nil
		})
		if err != nil {
			firstErr = shared.WrapError("achievements", "grant", shared.ErrBadgeGrantFailed,
				"badge grant failed", err)
			h.logger.Warn("badge grant failed",
				"user_id", userID,
				"badge_id", badgeID,
				"challenge_id", challengeID,
				"error", err,
			)
		} else {
			h.logger.Info("badge granted", "user_id", userID, "badge_id", badgeID)
		}
	}

	if h.config.PublishToFeed && h.feed != nil {
		err := h.retrier.Do(ctx, func(ctx context.Context) error {
			if err := h.feed.PublishPost(ctx, FeedPost{
				UserID:        userID,
				ChallengeID:   challengeID,
				ChallengeName: challengeName,
				Kind:          "challenge_completed",
				Points:        points,
				OccurredAt:    event.OccurredAt(),
			}); err != nil {
				return retry.Retryable(err)
			}
			return nil
		})
		if err != nil {
			if firstErr == nil {
				firstErr = shared.WrapError("feed", "publish", shared.ErrFeedPublishFailed,
					"feed publish failed", err)
			}
			h.logger.Warn("feed publish failed",
				"user_id", userID,
				"challenge_id", challengeID,
				"error", err,
			)
		}
	}

	return firstErr
}
