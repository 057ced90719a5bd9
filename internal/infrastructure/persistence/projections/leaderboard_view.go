// Package projections implements denormalized read models for the query
// side. The leaderboard view keeps ranked pages in process memory so a
// deployment without Redis still serves hot leaderboard reads without
// hitting the store on every request.
package projections

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fitpulse/challenge-engine/internal/domain/leaderboard"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD VIEW - In-Process Read Model
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardView implements leaderboard.Cache in process memory. Pages are
// stored per (challenge, scope, limit, offset) exactly like the Redis cache
// so the two are interchangeable behind the query handler.
//
// The view is only coherent within a single process. Multi-instance
// deployments should use the Redis cache so invalidation reaches every
// replica.
type LeaderboardView struct {
	mu sync.RWMutex

	// individual holds cached individual pages by page key.
	individual map[string]*individualPage

	// team holds cached team pages by page key.
	team map[string]*teamPage

	// byChallenge indexes page keys per challenge for invalidation.
	byChallenge map[string]map[string]struct{}

	clock timeutil.Clock

	// version is incremented on every write and invalidation.
	version int64

	hits        atomic.Int64
	misses      atomic.Int64
	lastUpdated time.Time
}

type individualPage struct {
	snap      *leaderboard.Snapshot
	expiresAt time.Time
}

type teamPage struct {
	snap      *leaderboard.TeamSnapshot
	expiresAt time.Time
}

// ViewStats holds aggregate statistics about the view.
type ViewStats struct {
	IndividualPages int       `json:"individualPages"`
	TeamPages       int       `json:"teamPages"`
	Challenges      int       `json:"challenges"`
	Hits            int64     `json:"hits"`
	Misses          int64     `json:"misses"`
	Version         int64     `json:"version"`
	LastUpdated     time.Time `json:"lastUpdated"`
}

// NewLeaderboardView creates a new empty leaderboard view.
func NewLeaderboardView(clock timeutil.Clock) *LeaderboardView {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &LeaderboardView{
		individual:  make(map[string]*individualPage),
		team:        make(map[string]*teamPage),
		byChallenge: make(map[string]map[string]struct{}),
		clock:       clock,
		version:     1,
		lastUpdated: clock.Now(),
	}
}

func individualKey(challengeID string, limit, offset int) string {
	return fmt.Sprintf("%s:individual:%d:%d", challengeID, limit, offset)
}

func teamKey(challengeID string, limit, offset int) string {
	return fmt.Sprintf("%s:team:%d:%d", challengeID, limit, offset)
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetIndividual fetches a cached individual page. Expired pages count as
// misses; they are removed on the next write or sweep.
func (lv *LeaderboardView) GetIndividual(_ context.Context, challengeID string, limit, offset int) (*leaderboard.Snapshot, error) {
	lv.mu.RLock()
	page, ok := lv.individual[individualKey(challengeID, limit, offset)]
	now := lv.clock.Now()
	lv.mu.RUnlock()

	if !ok || now.After(page.expiresAt) {
		lv.misses.Add(1)
		return nil, shared.NewDomainError("leaderboard", "view_get", shared.ErrNotFound,
			"no cached page for challenge "+challengeID)
	}

	lv.hits.Add(1)
	return page.snap, nil
}

// SetIndividual stores an individual page with a TTL.
func (lv *LeaderboardView) SetIndividual(_ context.Context, snap *leaderboard.Snapshot, limit, offset int, ttl time.Duration) error {
	if snap == nil {
		return fmt.Errorf("projections: cannot cache nil snapshot")
	}

	lv.mu.Lock()
	defer lv.mu.Unlock()

	key := individualKey(snap.ChallengeID, limit, offset)
	lv.individual[key] = &individualPage{
		snap:      snap,
		expiresAt: lv.clock.Now().Add(ttl),
	}
	lv.index(snap.ChallengeID, key)
	lv.touch()
	return nil
}

// GetTeam fetches a cached team page.
func (lv *LeaderboardView) GetTeam(_ context.Context, challengeID string, limit, offset int) (*leaderboard.TeamSnapshot, error) {
	lv.mu.RLock()
	page, ok := lv.team[teamKey(challengeID, limit, offset)]
	now := lv.clock.Now()
	lv.mu.RUnlock()

	if !ok || now.After(page.expiresAt) {
		lv.misses.Add(1)
		return nil, shared.NewDomainError("leaderboard", "view_get", shared.ErrNotFound,
			"no cached team page for challenge "+challengeID)
	}

	lv.hits.Add(1)
	return page.snap, nil
}

// SetTeam stores a team page with a TTL.
func (lv *LeaderboardView) SetTeam(_ context.Context, snap *leaderboard.TeamSnapshot, limit, offset int, ttl time.Duration) error {
	if snap == nil {
		return fmt.Errorf("projections: cannot cache nil snapshot")
	}

	lv.mu.Lock()
	defer lv.mu.Unlock()

	key := teamKey(snap.ChallengeID, limit, offset)
	lv.team[key] = &teamPage{
		snap:      snap,
		expiresAt: lv.clock.Now().Add(ttl),
	}
	lv.index(snap.ChallengeID, key)
	lv.touch()
	return nil
}

// Invalidate drops every cached page of a challenge.
func (lv *LeaderboardView) Invalidate(_ context.Context, challengeID string) error {
	lv.mu.Lock()
	defer lv.mu.Unlock()

	keys, ok := lv.byChallenge[challengeID]
	if !ok {
		return nil
	}

	for key := range keys {
		if strings.Contains(key, ":individual:") {
			delete(lv.individual, key)
		} else {
			delete(lv.team, key)
		}
	}
	delete(lv.byChallenge, challengeID)
	lv.touch()
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MAINTENANCE
// ══════════════════════════════════════════════════════════════════════════════

// Compact removes expired pages. Reads already treat expired pages as
// misses, so compaction only reclaims memory.
func (lv *LeaderboardView) Compact() int {
	lv.mu.Lock()
	defer lv.mu.Unlock()

	now := lv.clock.Now()
	removed := 0

	for key, page := range lv.individual {
		if now.After(page.expiresAt) {
			delete(lv.individual, key)
			lv.unindex(page.snap.ChallengeID, key)
			removed++
		}
	}
	for key, page := range lv.team {
		if now.After(page.expiresAt) {
			delete(lv.team, key)
			lv.unindex(page.snap.ChallengeID, key)
			removed++
		}
	}

	if removed > 0 {
		lv.touch()
	}
	return removed
}

// Stats returns aggregate statistics about the view.
func (lv *LeaderboardView) Stats() ViewStats {
	lv.mu.RLock()
	defer lv.mu.RUnlock()

	return ViewStats{
		IndividualPages: len(lv.individual),
		TeamPages:       len(lv.team),
		Challenges:      len(lv.byChallenge),
		Hits:            lv.hits.Load(),
		Misses:          lv.misses.Load(),
		Version:         lv.version,
		LastUpdated:     lv.lastUpdated,
	}
}

// index records a page key under its challenge. Callers hold the lock.
func (lv *LeaderboardView) index(challengeID, key string) {
	keys, ok := lv.byChallenge[challengeID]
	if !ok {
		keys = make(map[string]struct{})
		lv.byChallenge[challengeID] = keys
	}
	keys[key] = struct{}{}
}

// unindex removes a page key from its challenge. Callers hold the lock.
func (lv *LeaderboardView) unindex(challengeID, key string) {
	keys, ok := lv.byChallenge[challengeID]
	if !ok {
		return
	}
	delete(keys, key)
	if len(keys) == 0 {
		delete(lv.byChallenge, challengeID)
	}
}

func (lv *LeaderboardView) touch() {
	lv.version++
	lv.lastUpdated = lv.clock.Now()
}
