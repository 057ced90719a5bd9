package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fitpulse/challenge-engine/internal/domain/participant"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
)

// ParticipantRepository is an in-memory participant.Repository.
// It enforces (challengeID, userID) uniqueness and the optimistic version
// contract the Postgres implementation enforces with constraints.
type ParticipantRepository struct {
	mu     sync.RWMutex
	byID   map[string]*participant.Participant
	byKey  map[string]string // "challengeID/userID" -> participant ID
	outbox *Outbox
}

// NewParticipantRepository creates an empty repository writing events to outbox.
func NewParticipantRepository(outbox *Outbox) *ParticipantRepository {
	return &ParticipantRepository{
		byID:   make(map[string]*participant.Participant),
		byKey:  make(map[string]string),
		outbox: outbox,
	}
}

func enrollmentKey(challengeID, userID string) string {
	return challengeID + "/" + userID
}

// Create inserts a new enrollment, enforcing uniqueness.
func (r *ParticipantRepository) Create(_ context.Context, p *participant.Participant, events []shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := enrollmentKey(p.ChallengeID, p.UserID)
	if _, exists := r.byKey[key]; exists {
		return shared.NewDomainError("participant", "create", shared.ErrAlreadyJoined,
			fmt.Sprintf("user %s already has an enrollment in challenge %s", p.UserID, p.ChallengeID))
	}

	stored := p.Clone()
	r.byID[p.ID] = stored
	r.byKey[key] = p.ID
	if r.outbox != nil {
		r.outbox.append(events)
	}
	return nil
}

// Save updates an enrollment with an optimistic version check. The version
// on the passed entity is bumped on success so the caller can save again.
func (r *ParticipantRepository) Save(_ context.Context, p *participant.Participant, events []shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[p.ID]
	if !ok {
		return shared.NewDomainError("participant", "save", shared.ErrParticipantNotFound,
			"participant not found: "+p.ID)
	}
	if stored.Version != p.Version {
		return shared.NewDomainError("participant", "save", shared.ErrOptimisticLock,
			fmt.Sprintf("participant %s version %d is stale (stored %d)", p.ID, p.Version, stored.Version))
	}

	p.Version++
	r.byID[p.ID] = p.Clone()
	if r.outbox != nil {
		r.outbox.append(events)
	}
	return nil
}

// GetByID fetches a participant by its identifier.
func (r *ParticipantRepository) GetByID(_ context.Context, id string) (*participant.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, shared.NewDomainError("participant", "get", shared.ErrParticipantNotFound,
			"participant not found: "+id)
	}
	return p.Clone(), nil
}

// GetByChallengeAndUser fetches the enrollment row regardless of status.
func (r *ParticipantRepository) GetByChallengeAndUser(_ context.Context, challengeID, userID string) (*participant.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[enrollmentKey(challengeID, userID)]
	if !ok {
		return nil, shared.NewDomainError("participant", "get", shared.ErrParticipantNotFound,
			fmt.Sprintf("user %s never joined challenge %s", userID, challengeID))
	}
	return r.byID[id].Clone(), nil
}

// ListByChallenge returns ranked participants ordered for the leaderboard.
func (r *ParticipantRepository) ListByChallenge(_ context.Context, challengeID string, limit, offset int) ([]*participant.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*participant.Participant, 0)
	for _, p := range r.byID {
		if p.ChallengeID == challengeID && p.Status.Ranked() {
			matched = append(matched, p.Clone())
		}
	}
	sortRanked(matched)
	return page(matched, limit, offset), nil
}

// ListByTeam returns ranked members of a team.
func (r *ParticipantRepository) ListByTeam(_ context.Context, teamID string) ([]*participant.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*participant.Participant, 0)
	for _, p := range r.byID {
		if p.TeamID == teamID && p.Status.Ranked() {
			matched = append(matched, p.Clone())
		}
	}
	sortRanked(matched)
	return matched, nil
}

// ListByUser returns all enrollments of a user across challenges.
func (r *ParticipantRepository) ListByUser(_ context.Context, userID string) ([]*participant.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*participant.Participant, 0)
	for _, p := range r.byID {
		if p.UserID == userID {
			matched = append(matched, p.Clone())
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].JoinedAt.Before(matched[j].JoinedAt)
	})
	return matched, nil
}

// CountByChallenge returns the number of ranked participants.
func (r *ParticipantRepository) CountByChallenge(_ context.Context, challengeID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, p := range r.byID {
		if p.ChallengeID == challengeID && p.Status.Ranked() {
			count++
		}
	}
	return count, nil
}

// HasRankedEnrollment reports active or completed membership, for the
// challenge listing's visibility union.
func (r *ParticipantRepository) HasRankedEnrollment(challengeID, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[enrollmentKey(challengeID, userID)]
	if !ok {
		return false
	}
	return r.byID[id].Status.Ranked()
}

// sortRanked orders by progress DESC, updatedAt ASC, userID ASC.
func sortRanked(rows []*participant.Participant) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Progress != b.Progress {
			return a.Progress > b.Progress
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return a.UserID < b.UserID
	})
}
