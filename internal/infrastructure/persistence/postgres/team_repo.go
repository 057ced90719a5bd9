package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/internal/domain/team"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEAM REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// TeamRepository implements team.Repository for PostgreSQL.
type TeamRepository struct {
	conn *Connection
}

// NewTeamRepository creates a new TeamRepository.
func NewTeamRepository(conn *Connection) *TeamRepository {
	return &TeamRepository{conn: conn}
}

const teamColumns = `
	id, challenge_id, name, captain_id, member_count,
	total_progress, average_progress, is_completed, completed_at, completed_by,
	created_at, updated_at, version
`

// Create inserts a new team and its events in one transaction. The
// (challenge_id, name) unique constraint rejects duplicate names.
func (r *TeamRepository) Create(ctx context.Context, t *team.Team, events []shared.Event) error {
	const query = `
		INSERT INTO teams (
			id, challenge_id, name, captain_id, member_count,
			total_progress, average_progress, is_completed, completed_at, completed_by,
			created_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query,
			t.ID,
			t.ChallengeID,
			t.Name,
			t.CaptainID,
			t.MemberCount,
			t.TotalProgress,
			t.AverageProgress,
			t.IsCompleted,
			t.CompletedAt,
			string(t.CompletedBy),
			t.CreatedAt,
			t.UpdatedAt,
			t.Version,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.NewDomainError("team", "create", shared.ErrAlreadyExists,
					fmt.Sprintf("team name %q is taken in challenge %s", t.Name, t.ChallengeID))
			}
			return fmt.Errorf("failed to create team: %w", err)
		}
		return appendEvents(ctx, tx, events)
	})
}

// Save updates a team with an optimistic version check.
func (r *TeamRepository) Save(ctx context.Context, t *team.Team, events []shared.Event) error {
	const query = `
		UPDATE teams SET
			member_count = $1,
			total_progress = $2,
			average_progress = $3,
			is_completed = $4,
			completed_at = $5,
			completed_by = $6,
			updated_at = $7,
			version = version + 1
		WHERE id = $8 AND version = $9
	`

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, query,
			t.MemberCount,
			t.TotalProgress,
			t.AverageProgress,
			t.IsCompleted,
			t.CompletedAt,
			string(t.CompletedBy),
			t.UpdatedAt,
			t.ID,
			t.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to save team: %w", err)
		}
		if result.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx,
				"SELECT EXISTS (SELECT 1 FROM teams WHERE id = $1)", t.ID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check team existence: %w", err)
			}
			if !exists {
				return shared.ErrTeamNotFound
			}
			return shared.NewDomainError("team", "save", shared.ErrOptimisticLock,
				fmt.Sprintf("team %s version %d is stale", t.ID, t.Version))
		}
		return appendEvents(ctx, tx, events)
	})
	if err != nil {
		return err
	}

	t.Version++
	return nil
}

// GetByID fetches a team by its identifier.
func (r *TeamRepository) GetByID(ctx context.Context, id string) (*team.Team, error) {
	query := fmt.Sprintf("SELECT %s FROM teams WHERE id = $1", teamColumns)
	t, err := scanTeam(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return t, nil
}

// ListByChallenge returns teams in team leaderboard order.
func (r *TeamRepository) ListByChallenge(ctx context.Context, challengeID string, limit, offset int) ([]*team.Team, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM teams
		WHERE challenge_id = $1
		ORDER BY total_progress DESC, member_count ASC, updated_at ASC, id ASC
	`, teamColumns)

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
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	teams := make([]*team.Team, 0)
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team row: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// CountByChallenge returns the number of teams in a challenge.
func (r *TeamRepository) CountByChallenge(ctx context.Context, challengeID string) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx,
		"SELECT COUNT(*) FROM teams WHERE challenge_id = $1", challengeID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count teams: %w", err)
	}
	return count, nil
}

func scanTeam(row pgx.Row) (*team.Team, error) {
	var (
		t           team.Team
		completedBy string
	)
	err := row.Scan(
		&t.ID,
		&t.ChallengeID,
		&t.Name,
		&t.CaptainID,
		&t.MemberCount,
		&t.TotalProgress,
		&t.AverageProgress,
		&t.IsCompleted,
		&t.CompletedAt,
		&completedBy,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.Version,
	)
	if err != nil {
		return nil, err
	}
	t.CompletedBy = team.CompletionReason(completedBy)
	return &t, nil
}
