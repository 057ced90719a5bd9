package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/internal/domain/team"
)

// TeamRepository is an in-memory team.Repository. Team names are unique
// per challenge, compared case-insensitively like the database collation.
type TeamRepository struct {
	mu     sync.RWMutex
	byID   map[string]*team.Team
	byName map[string]string // "challengeID/lower(name)" -> team ID
	outbox *Outbox
}

// NewTeamRepository creates an empty repository writing events to outbox.
func NewTeamRepository(outbox *Outbox) *TeamRepository {
	return &TeamRepository{
		byID:   make(map[string]*team.Team),
		byName: make(map[string]string),
		outbox: outbox,
	}
}

func teamNameKey(challengeID, name string) string {
	return challengeID + "/" + strings.ToLower(name)
}

// Create inserts a new team, enforcing name uniqueness within the challenge.
func (r *TeamRepository) Create(_ context.Context, t *team.Team, events []shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := teamNameKey(t.ChallengeID, t.Name)
	if _, exists := r.byName[key]; exists {
		return shared.NewDomainError("team", "create", shared.ErrAlreadyExists,
			fmt.Sprintf("team name %q is taken in challenge %s", t.Name, t.ChallengeID))
	}

	r.byID[t.ID] = t.Clone()
	r.byName[key] = t.ID
	if r.outbox != nil {
		r.outbox.append(events)
	}
	return nil
}

// Save updates a team with an optimistic version check.
func (r *TeamRepository) Save(_ context.Context, t *team.Team, events []shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[t.ID]
	if !ok {
		return shared.NewDomainError("team", "save", shared.ErrTeamNotFound,
			"team not found: "+t.ID)
	}
	if stored.Version != t.Version {
		return shared.NewDomainError("team", "save", shared.ErrOptimisticLock,
			fmt.Sprintf("team %s version %d is stale (stored %d)", t.ID, t.Version, stored.Version))
	}

	t.Version++
	r.byID[t.ID] = t.Clone()
	if r.outbox != nil {
		r.outbox.append(events)
	}
	return nil
}

// GetByID fetches a team by its identifier.
func (r *TeamRepository) GetByID(_ context.Context, id string) (*team.Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[id]
	if !ok {
		return nil, shared.NewDomainError("team", "get", shared.ErrTeamNotFound,
			"team not found: "+id)
	}
	return t.Clone(), nil
}

// ListByChallenge returns teams ordered for the team leaderboard:
// totalProgress DESC, memberCount ASC, updatedAt ASC, teamID ASC.
func (r *TeamRepository) ListByChallenge(_ context.Context, challengeID string, limit, offset int) ([]*team.Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*team.Team, 0)
	for _, t := range r.byID {
		if t.ChallengeID == challengeID {
			matched = append(matched, t.Clone())
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.TotalProgress != b.TotalProgress {
			return a.TotalProgress > b.TotalProgress
		}
		if a.MemberCount != b.MemberCount {
			return a.MemberCount < b.MemberCount
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
	return page(matched, limit, offset), nil
}

// CountByChallenge returns the number of teams in a challenge.
func (r *TeamRepository) CountByChallenge(_ context.Context, challengeID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, t := range r.byID {
		if t.ChallengeID == challengeID {
			count++
		}
	}
	return count, nil
}
