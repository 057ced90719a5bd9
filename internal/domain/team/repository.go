package team

import (
	"context"

	"github.com/fitpulse/challenge-engine/internal/domain/shared"
)

// Repository defines persistence for teams.
//
// Save uses the same optimistic-concurrency contract as the participant
// store: shared.ErrOptimisticLock on a version mismatch. Events are appended
// to the outbox in the same transaction.
type Repository interface {
	// Create inserts a new team. Returns shared.ErrAlreadyExists if a team
	// with the same name exists in the challenge.
	Create(ctx context.Context, t *Team, events []shared.Event) error

	// Save updates a team with an optimistic version check.
	Save(ctx context.Context, t *Team, events []shared.Event) error

	// GetByID fetches a team by its identifier.
	GetByID(ctx context.Context, id string) (*Team, error)

	// ListByChallenge returns teams of a challenge ordered by
	// totalProgress DESC, memberCount ASC, updatedAt ASC for deterministic
	// leaderboard pagination. A limit of zero means no limit.
	ListByChallenge(ctx context.Context, challengeID string, limit, offset int) ([]*Team, error)

	// CountByChallenge returns the number of teams in a challenge.
	CountByChallenge(ctx context.Context, challengeID string) (int, error)
}
