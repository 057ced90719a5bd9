package leaderboard

import (
	"context"
	"time"
)

// Snapshot is a cached page of an individual leaderboard.
type Snapshot struct {
	ChallengeID string    `json:"challengeId"`
	Entries     []*Entry  `json:"entries"`
	Total       int       `json:"total"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// TeamSnapshot is a cached page of a team leaderboard.
type TeamSnapshot struct {
	ChallengeID string       `json:"challengeId"`
	Entries     []*TeamEntry `json:"entries"`
	Total       int          `json:"total"`
	GeneratedAt time.Time    `json:"generatedAt"`
}

// Cache fronts leaderboard reads. A miss returns shared.ErrNotFound; cache
// failures degrade to store reads and are never surfaced to callers.
type Cache interface {
	// GetIndividual fetches a cached individual page.
	GetIndividual(ctx context.Context, challengeID string, limit, offset int) (*Snapshot, error)

	// SetIndividual stores an individual page with a TTL.
	SetIndividual(ctx context.Context, snap *Snapshot, limit, offset int, ttl time.Duration) error

	// GetTeam fetches a cached team page.
	GetTeam(ctx context.Context, challengeID string, limit, offset int) (*TeamSnapshot, error)

	// SetTeam stores a team page with a TTL.
	SetTeam(ctx context.Context, snap *TeamSnapshot, limit, offset int, ttl time.Duration) error

	// Invalidate drops every cached page of a challenge. Called after any
	// progress write so ranked reads never serve data older than the TTL.
	Invalidate(ctx context.Context, challengeID string) error
}
