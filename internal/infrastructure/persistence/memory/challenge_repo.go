package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fitpulse/challenge-engine/internal/domain/challenge"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
)

// MembershipFn reports whether a user participates in a challenge. The
// wiring points it at the participant store so restricted challenges appear
// in the member's listings, mirroring the SQL join.
type MembershipFn func(challengeID, userID string) bool

// ChallengeRepository is an in-memory challenge.Repository.
type ChallengeRepository struct {
	mu         sync.RWMutex
	byID       map[string]*challenge.Challenge
	outbox     *Outbox
	membership MembershipFn
}

// NewChallengeRepository creates an empty repository writing events to outbox.
func NewChallengeRepository(outbox *Outbox) *ChallengeRepository {
	return &ChallengeRepository{
		byID:   make(map[string]*challenge.Challenge),
		outbox: outbox,
	}
}

// SetMembership installs the participation lookup used by ListActive.
func (r *ChallengeRepository) SetMembership(fn MembershipFn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.membership = fn
}

// Create inserts a new challenge.
func (r *ChallengeRepository) Create(_ context.Context, c *challenge.Challenge, events []shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[c.ID]; exists {
		return shared.NewDomainError("challenge", "create", shared.ErrChallengeExists,
			"challenge already exists: "+c.ID)
	}

	r.byID[c.ID] = c.Clone()
	if r.outbox != nil {
		r.outbox.append(events)
	}
	return nil
}

// GetByID fetches a challenge by its identifier.
func (r *ChallengeRepository) GetByID(_ context.Context, id string) (*challenge.Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, shared.NewDomainError("challenge", "get", shared.ErrChallengeNotFound,
			"challenge not found: "+id)
	}
	return c.Clone(), nil
}

// Update stores the new state of an existing challenge. The participant
// counter is not written here: it only moves through AdjustParticipantCount,
// so a stale caller cannot roll it back.
func (r *ChallengeRepository) Update(_ context.Context, c *challenge.Challenge, events []shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[c.ID]
	if !ok {
		return shared.NewDomainError("challenge", "update", shared.ErrChallengeNotFound,
			"challenge not found: "+c.ID)
	}

	next := c.Clone()
	next.ParticipantCount = stored.ParticipantCount
	r.byID[c.ID] = next
	if r.outbox != nil {
		r.outbox.append(events)
	}
	return nil
}

// AdjustParticipantCount moves the participant counter by delta, never below
// zero. The adjustment is atomic, so concurrent joins and leaves all land.
func (r *ChallengeRepository) AdjustParticipantCount(_ context.Context, id string, delta int, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return shared.NewDomainError("challenge", "adjust_count", shared.ErrChallengeNotFound,
			"challenge not found: "+id)
	}

	switch {
	case delta > 0:
		for i := 0; i < delta; i++ {
			c.AddParticipant(now)
		}
	case delta < 0:
		for i := delta; i < 0; i++ {
			c.RemoveParticipant(now)
		}
	}
	return nil
}

// ListActive returns active challenges visible to the filter's user, ordered
// by end date ascending.
func (r *ChallengeRepository) ListActive(_ context.Context, filter challenge.ListFilter, now time.Time) ([]*challenge.Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*challenge.Challenge, 0)
	for _, c := range r.byID {
		if r.matchesActive(c, filter, now) {
			matched = append(matched, c.Clone())
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].EndDate.Equal(matched[j].EndDate) {
			return matched[i].EndDate.Before(matched[j].EndDate)
		}
		return strings.Compare(matched[i].ID, matched[j].ID) < 0
	})

	return page(matched, filter.Limit, filter.Offset), nil
}

// matchesActive is the predicate shared by ListActive and CountActive, the
// in-memory twin of the SQL WHERE clause.
func (r *ChallengeRepository) matchesActive(c *challenge.Challenge, filter challenge.ListFilter, now time.Time) bool {
	if c.Status != challenge.StatusActive || !c.WindowContains(now) {
		return false
	}
	if !r.visibleTo(c, filter.UserID) {
		return false
	}
	if filter.Type != "" && c.Type != filter.Type {
		return false
	}
	if filter.Category != "" && c.Category != filter.Category {
		return false
	}
	if filter.Visibility != "" && c.Visibility != filter.Visibility {
		return false
	}
	return true
}

// visibleTo mirrors the listing visibility union: public rows for everyone,
// restricted rows for their creator and members.
func (r *ChallengeRepository) visibleTo(c *challenge.Challenge, userID string) bool {
	if !c.Visibility.IsRestricted() {
		return true
	}
	if userID == "" {
		return false
	}
	if c.CreatorID == userID {
		return true
	}
	return r.membership != nil && r.membership(c.ID, userID)
}

// ListByStatus returns challenges in the given lifecycle status.
func (r *ChallengeRepository) ListByStatus(_ context.Context, status challenge.Status) ([]*challenge.Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*challenge.Challenge, 0)
	for _, c := range r.byID {
		if c.Status == status {
			matched = append(matched, c.Clone())
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].ID < matched[j].ID
	})
	return matched, nil
}

// CountActive returns the number of challenges ListActive would return,
// ignoring the filter's pagination window.
func (r *ChallengeRepository) CountActive(_ context.Context, filter challenge.ListFilter, now time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, c := range r.byID {
		if r.matchesActive(c, filter, now) {
			count++
		}
	}
	return count, nil
}

// page applies limit/offset to a sorted slice. Limit zero means no limit.
func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
