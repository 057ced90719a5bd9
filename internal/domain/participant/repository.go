package participant

import (
	"context"

	"github.com/fitpulse/challenge-engine/internal/domain/shared"
)

// Repository defines persistence for participants.
//
// Save performs an optimistic-concurrency write: it compares the in-memory
// Version against the stored row and returns shared.ErrOptimisticLock on a
// mismatch, so callers can reload and retry. Events passed to mutating
// methods are appended to the outbox in the same transaction.
type Repository interface {
	// Create inserts a new enrollment. Returns shared.ErrAlreadyJoined if an
	// active or completed row already exists for (challengeID, userID).
	Create(ctx context.Context, p *Participant, events []shared.Event) error

	// Save updates an existing enrollment with an optimistic version check.
	Save(ctx context.Context, p *Participant, events []shared.Event) error

	// GetByID fetches a participant by its identifier.
	GetByID(ctx context.Context, id string) (*Participant, error)

	// GetByChallengeAndUser fetches the enrollment row for a user in a
	// challenge regardless of status. Returns shared.ErrParticipantNotFound
	// if the user never joined.
	GetByChallengeAndUser(ctx context.Context, challengeID, userID string) (*Participant, error)

	// ListByChallenge returns ranked (active and completed) participants of
	// a challenge ordered by progress DESC, updatedAt ASC for deterministic
	// leaderboard pagination. A limit of zero means no limit.
	ListByChallenge(ctx context.Context, challengeID string, limit, offset int) ([]*Participant, error)

	// ListByTeam returns ranked members of a team in the same ordering.
	ListByTeam(ctx context.Context, teamID string) ([]*Participant, error)

	// ListByUser returns all enrollments of a user across challenges.
	ListByUser(ctx context.Context, userID string) ([]*Participant, error)

	// CountByChallenge returns the number of ranked participants.
	CountByChallenge(ctx context.Context, challengeID string) (int, error)
}
