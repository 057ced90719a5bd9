// Package eventhandler contains the subscribers that turn domain events into
// external side effects. Handlers run behind the outbox dispatcher: failures
// are logged warnings and the entry stays pending for redelivery, never
// touching the state write that produced the event.
package eventhandler

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOUND PORTS
// ══════════════════════════════════════════════════════════════════════════════

// AchievementService is the port to the external badge service.
type AchievementService interface {
	// GrantBadge awards a badge to a user. Granting an already-held badge
	// must be treated as success by implementations.
	GrantBadge(ctx context.Context, userID, badgeID string) error
}

// FeedPost is an activity feed entry about a completion.
type FeedPost struct {
	// UserID - the author the feed shows the post under. Empty for team
	// posts, which the feed attributes to the team.
	UserID string

	// TeamID - set for team completion posts.
	TeamID string

	// ChallengeID / ChallengeName - what was completed.
	ChallengeID   string
	ChallengeName string

	// Kind - "challenge_completed" or "team_completed".
	Kind string

	// Points - points held at completion, zero for team posts.
	Points int

	// OccurredAt - when the completion happened.
	OccurredAt time.Time
}

// ActivityFeed is the port to the external activity feed service.
type ActivityFeed interface {
	PublishPost(ctx context.Context, post FeedPost) error
}

// ══════════════════════════════════════════════════════════════════════════════
// PAYLOAD HELPERS
// Events arrive from the dispatcher as stored payload maps; these accessors
// tolerate both native values and JSON round-tripped numbers.
// ══════════════════════════════════════════════════════════════════════════════

func payloadString(payload map[string]interface{}, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func payloadInt(payload map[string]interface{}, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
