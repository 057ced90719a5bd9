package service

import (
	"context"

	"github.com/fitpulse/challenge-engine/internal/application/eventhandler"
	"github.com/fitpulse/challenge-engine/internal/infrastructure/external/achievements"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT SERVICE ADAPTER
// ══════════════════════════════════════════════════════════════════════════════

// AchievementAdapter implements eventhandler.AchievementService over the
// achievements HTTP client. The client already treats duplicate grants as
// success, satisfying the port's idempotency requirement.
type AchievementAdapter struct {
	client *achievements.Client
}

// NewAchievementAdapter creates a new AchievementAdapter.
func NewAchievementAdapter(client *achievements.Client) *AchievementAdapter {
	return &AchievementAdapter{client: client}
}

// GrantBadge awards a badge to a user.
func (a *AchievementAdapter) GrantBadge(ctx context.Context, userID, badgeID string) error {
	return a.client.GrantBadge(ctx, userID, badgeID)
}

var _ eventhandler.AchievementService = (*AchievementAdapter)(nil)
