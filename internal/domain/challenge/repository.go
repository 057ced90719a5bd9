package challenge

import (
	"context"
	"time"

	"github.com/fitpulse/challenge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// The contract for challenge storage. Implementations live in
// infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines storage operations for challenges.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// CRUD Operations
	// ─────────────────────────────────────────────────────────────────────────

	// Create stores a new challenge together with its creation events.
	// Returns shared.ErrChallengeExists if the ID is already taken.
	Create(ctx context.Context, c *Challenge, events []shared.Event) error

	// GetByID returns a challenge by ID.
	// Returns shared.ErrChallengeNotFound if absent.
	GetByID(ctx context.Context, id string) (*Challenge, error)

	// Update persists challenge changes together with any events, appending
	// the events to the outbox in the same transaction. The participant
	// counter is excluded from the write: it only moves through
	// AdjustParticipantCount.
	Update(ctx context.Context, c *Challenge, events []shared.Event) error

	// AdjustParticipantCount atomically moves the denormalized participant
	// counter by delta, flooring at zero, so concurrent enrollments never
	// lose increments. Returns shared.ErrChallengeNotFound if absent.
	AdjustParticipantCount(ctx context.Context, id string, delta int, now time.Time) error

	// ─────────────────────────────────────────────────────────────────────────
	// Listing
	// ─────────────────────────────────────────────────────────────────────────

	// ListActive returns public active challenges whose window contains now,
	// plus - when filter.UserID is set - restricted challenges where that user
	// is creator or participant. Ordered by end date ascending (soonest-ending
	// first) so urgency surfaces.
	ListActive(ctx context.Context, filter ListFilter, now time.Time) ([]*Challenge, error)

	// ListByStatus returns challenges in the given lifecycle state,
	// for the scheduler's lifecycle sweep.
	ListByStatus(ctx context.Context, status Status) ([]*Challenge, error)

	// CountActive returns the number of challenges ListActive would return.
	CountActive(ctx context.Context, filter ListFilter, now time.Time) (int, error)
}

// ListFilter narrows challenge listings.
type ListFilter struct {
	// UserID - when set, restricted challenges visible to this user are
	// included in the union.
	UserID string

	// Type - filter by challenge type (empty = all).
	Type Type

	// Category - filter by category (empty = all).
	Category Category

	// Visibility - filter by visibility (empty = all the user may see).
	Visibility Visibility

	// Limit / Offset - pagination.
	Limit  int
	Offset int
}

// DefaultListFilter returns the default pagination window.
func DefaultListFilter() ListFilter {
	return ListFilter{Limit: 20}
}

// WithUser includes restricted challenges visible to the user.
func (f ListFilter) WithUser(userID string) ListFilter {
	f.UserID = userID
	return f
}

// WithPage sets the pagination window.
func (f ListFilter) WithPage(limit, offset int) ListFilter {
	f.Limit = limit
	f.Offset = offset
	return f
}
