package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fitpulse/challenge-engine/internal/domain/participant"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPANT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ParticipantRepository implements participant.Repository for PostgreSQL.
// Save uses an optimistic version check so concurrent progress writes to the
// same enrollment surface as shared.ErrOptimisticLock instead of silently
// overwriting each other.
type ParticipantRepository struct {
	conn *Connection
}

// NewParticipantRepository creates a new ParticipantRepository.
func NewParticipantRepository(conn *Connection) *ParticipantRepository {
	return &ParticipantRepository{conn: conn}
}

const participantColumns = `
	id, challenge_id, user_id, team_id, status,
	progress, is_completed, completed_at, points_earned,
	joined_at, created_at, updated_at, version
`

// Create inserts a new enrollment and its events in one transaction.
// The (challenge_id, user_id) unique constraint settles concurrent joins.
func (r *ParticipantRepository) Create(ctx context.Context, p *participant.Participant, events []shared.Event) error {
	const query = `
		INSERT INTO participants (
			id, challenge_id, user_id, team_id, status,
			progress, is_completed, completed_at, points_earned,
			joined_at, created_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query,
			p.ID,
			p.ChallengeID,
			p.UserID,
			p.TeamID,
			string(p.Status),
			p.Progress,
			p.IsCompleted,
			p.CompletedAt,
			p.PointsEarned,
			p.JoinedAt,
			p.CreatedAt,
			p.UpdatedAt,
			p.Version,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.ErrAlreadyJoined
			}
			return fmt.Errorf("failed to create participant: %w", err)
		}
		return appendEvents(ctx, tx, events)
	})
}

// Save updates an enrollment, failing with shared.ErrOptimisticLock when the
// stored version moved. On success the version on the passed entity is
// advanced to match the stored row.
func (r *ParticipantRepository) Save(ctx context.Context, p *participant.Participant, events []shared.Event) error {
	const query = `
		UPDATE participants SET
			team_id = $1,
			status = $2,
			progress = $3,
			is_completed = $4,
			completed_at = $5,
			points_earned = $6,
			updated_at = $7,
			version = version + 1
		WHERE id = $8 AND version = $9
	`

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, query,
			p.TeamID,
			string(p.Status),
			p.Progress,
			p.IsCompleted,
			p.CompletedAt,
			p.PointsEarned,
			p.UpdatedAt,
			p.ID,
			p.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to save participant: %w", err)
		}
		if result.RowsAffected() == 0 {
			// Either the row is gone or the version moved.
			var exists bool
			if err := tx.QueryRow(ctx,
				"SELECT EXISTS (SELECT 1 FROM participants WHERE id = $1)", p.ID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check participant existence: %w", err)
			}
			if !exists {
				return shared.ErrParticipantNotFound
			}
			return shared.NewDomainError("participant", "save", shared.ErrOptimisticLock,
				fmt.Sprintf("participant %s version %d is stale", p.ID, p.Version))
		}
		return appendEvents(ctx, tx, events)
	})
	if err != nil {
		return err
	}

	p.Version++
	return nil
}

// GetByID fetches a participant by its identifier.
func (r *ParticipantRepository) GetByID(ctx context.Context, id string) (*participant.Participant, error) {
	query := fmt.Sprintf("SELECT %s FROM participants WHERE id = $1", participantColumns)
	p, err := scanParticipant(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

// GetByChallengeAndUser fetches the enrollment row regardless of status.
func (r *ParticipantRepository) GetByChallengeAndUser(ctx context.Context, challengeID, userID string) (*participant.Participant, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM participants WHERE challenge_id = $1 AND user_id = $2",
		participantColumns,
	)
	p, err := scanParticipant(r.conn.QueryRow(ctx, query, challengeID, userID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

// ListByChallenge returns ranked participants in leaderboard order.
func (r *ParticipantRepository) ListByChallenge(ctx context.Context, challengeID string, limit, offset int) ([]*participant.Participant, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM participants
		WHERE challenge_id = $1 AND status IN ('active', 'completed')
		ORDER BY progress DESC, updated_at ASC, user_id ASC
	`, participantColumns)

	args := []interface{}{challengeID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	return scanParticipants(rows)
}

// ListByTeam returns ranked members of a team in leaderboard order.
func (r *ParticipantRepository) ListByTeam(ctx context.Context, teamID string) ([]*participant.Participant, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM participants
		WHERE team_id = $1 AND status IN ('active', 'completed')
		ORDER BY progress DESC, updated_at ASC, user_id ASC
	`, participantColumns)

	rows, err := r.conn.Query(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	defer rows.Close()

	return scanParticipants(rows)
}

// ListByUser returns all enrollments of a user across challenges.
func (r *ParticipantRepository) ListByUser(ctx context.Context, userID string) ([]*participant.Participant, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM participants
		WHERE user_id = $1
		ORDER BY joined_at ASC
	`, participantColumns)

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user enrollments: %w", err)
	}
	defer rows.Close()

	return scanParticipants(rows)
}

// CountByChallenge returns the number of ranked participants.
func (r *ParticipantRepository) CountByChallenge(ctx context.Context, challengeID string) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx, `
		SELECT COUNT(*) FROM participants
		WHERE challenge_id = $1 AND status IN ('active', 'completed')
	`, challengeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return count, nil
}

func scanParticipant(row pgx.Row) (*participant.Participant, error) {
	var (
		p      participant.Participant
		status string
	)
	err := row.Scan(
		&p.ID,
		&p.ChallengeID,
		&p.UserID,
		&p.TeamID,
		&status,
		&p.Progress,
		&p.IsCompleted,
		&p.CompletedAt,
		&p.PointsEarned,
		&p.JoinedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.Version,
	)
	if err != nil {
		return nil, err
	}
	p.Status = participant.Status(status)
	return &p, nil
}

func scanParticipants(rows pgx.Rows) ([]*participant.Participant, error) {
	participants := make([]*participant.Participant, 0)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}
