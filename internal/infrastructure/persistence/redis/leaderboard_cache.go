package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitpulse/challenge-engine/internal/domain/leaderboard"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// keyPrefix namespaces leaderboard keys so Invalidate can drop every page
// of a challenge with one pattern delete.
const keyPrefix = "board:"

// LeaderboardCache implements leaderboard.Cache on Redis. Pages are stored
// per (challenge, scope, limit, offset) so different pagination windows
// never collide.
type LeaderboardCache struct {
	cache *Cache
}

// NewLeaderboardCache creates a LeaderboardCache over the given client.
func NewLeaderboardCache(cache *Cache) *LeaderboardCache {
	return &LeaderboardCache{cache: cache}
}

func individualKey(challengeID string, limit, offset int) string {
	return fmt.Sprintf("%s%s:individual:%d:%d", keyPrefix, challengeID, limit, offset)
}

func teamKey(challengeID string, limit, offset int) string {
	return fmt.Sprintf("%s%s:team:%d:%d", keyPrefix, challengeID, limit, offset)
}

// GetIndividual fetches a cached individual page.
func (c *LeaderboardCache) GetIndividual(ctx context.Context, challengeID string, limit, offset int) (*leaderboard.Snapshot, error) {
	var snap leaderboard.Snapshot
	err := c.cache.Get(ctx, individualKey(challengeID, limit, offset), &snap)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.NewDomainError("leaderboard", "cache_get", shared.ErrNotFound,
				"no cached page for challenge "+challengeID)
		}
		return nil, err
	}
	return &snap, nil
}

// SetIndividual stores an individual page with a TTL.
func (c *LeaderboardCache) SetIndividual(ctx context.Context, snap *leaderboard.Snapshot, limit, offset int, ttl time.Duration) error {
	return c.cache.Set(ctx, individualKey(snap.ChallengeID, limit, offset), snap, ttl)
}

// GetTeam fetches a cached team page.
func (c *LeaderboardCache) GetTeam(ctx context.Context, challengeID string, limit, offset int) (*leaderboard.TeamSnapshot, error) {
	var snap leaderboard.TeamSnapshot
	err := c.cache.Get(ctx, teamKey(challengeID, limit, offset), &snap)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.NewDomainError("leaderboard", "cache_get", shared.ErrNotFound,
				"no cached team page for challenge "+challengeID)
		}
		return nil, err
	}
	return &snap, nil
}

// SetTeam stores a team page with a TTL.
func (c *LeaderboardCache) SetTeam(ctx context.Context, snap *leaderboard.TeamSnapshot, limit, offset int, ttl time.Duration) error {
	return c.cache.Set(ctx, teamKey(snap.ChallengeID, limit, offset), snap, ttl)
}

// Invalidate drops every cached page of a challenge.
func (c *LeaderboardCache) Invalidate(ctx context.Context, challengeID string) error {
	return c.cache.DeleteByPattern(ctx, keyPrefix+challengeID+":*")
}
