package service

import (
	"context"

	"github.com/fitpulse/challenge-engine/internal/application/eventhandler"
	"github.com/fitpulse/challenge-engine/internal/infrastructure/external/feed"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY FEED ADAPTER
// ══════════════════════════════════════════════════════════════════════════════

// FeedAdapter implements eventhandler.ActivityFeed over the feed HTTP client.
type FeedAdapter struct {
	client *feed.Client
}

// NewFeedAdapter creates a new FeedAdapter.
func NewFeedAdapter(client *feed.Client) *FeedAdapter {
	return &FeedAdapter{client: client}
}

// PublishPost publishes a completion post to the activity feed.
func (a *FeedAdapter) PublishPost(ctx context.Context, post eventhandler.FeedPost) error {
	return a.client.PublishPost(ctx, feed.PostDTO{
		UserID:        post.UserID,
		TeamID:        post.TeamID,
		ChallengeID:   post.ChallengeID,
		ChallengeName: post.ChallengeName,
		Kind:          post.Kind,
		Points:        post.Points,
		OccurredAt:    post.OccurredAt,
	})
}

var _ eventhandler.ActivityFeed = (*FeedAdapter)(nil)
