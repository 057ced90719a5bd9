package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fitpulse/challenge-engine/internal/domain/challenge"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ChallengeRepository implements challenge.Repository for PostgreSQL.
type ChallengeRepository struct {
	conn *Connection
}

// NewChallengeRepository creates a new ChallengeRepository.
func NewChallengeRepository(conn *Connection) *ChallengeRepository {
	return &ChallengeRepository{conn: conn}
}

const challengeColumns = `
	id, creator_id, name, description, type, category,
	goal, points_per_unit, bonus_points, unit,
	start_date, end_date, status, visibility, badge_id,
	participant_count, created_at, updated_at
`

// Create stores a new challenge and its creation events in one transaction.
func (r *ChallengeRepository) Create(ctx context.Context, c *challenge.Challenge, events []shared.Event) error {
	const query = `
		INSERT INTO challenges (
			id, creator_id, name, description, type, category,
			goal, points_per_unit, bonus_points, unit,
			start_date, end_date, status, visibility, badge_id,
			participant_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query,
			c.ID,
			c.CreatorID,
			c.Name,
			c.Description,
			string(c.Type),
			string(c.Category),
			c.Rules.Goal,
			c.Rules.PointsPerUnit,
			c.Rules.BonusPoints,
			c.Unit,
			c.StartDate,
			c.EndDate,
			string(c.Status),
			string(c.Visibility),
			c.BadgeID,
			c.ParticipantCount,
			c.CreatedAt,
			c.UpdatedAt,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.ErrChallengeExists
			}
			return fmt.Errorf("failed to create challenge: %w", err)
		}
		return appendEvents(ctx, tx, events)
	})
}

// GetByID returns a challenge by ID.
func (r *ChallengeRepository) GetByID(ctx context.Context, id string) (*challenge.Challenge, error) {
	query := fmt.Sprintf("SELECT %s FROM challenges WHERE id = $1", challengeColumns)
	row := r.conn.QueryRow(ctx, query, id)

	c, err := scanChallenge(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	return c, nil
}

// Update persists challenge changes and appends events in one transaction.
// participant_count is not in the SET list: the counter only moves through
// AdjustParticipantCount, so a stale snapshot here cannot roll it back.
func (r *ChallengeRepository) Update(ctx context.Context, c *challenge.Challenge, events []shared.Event) error {
	const query = `
		UPDATE challenges SET
			name = $1,
			description = $2,
			status = $3,
			visibility = $4,
			badge_id = $5,
			updated_at = $6
		WHERE id = $7
	`

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, query,
			c.Name,
			c.Description,
			string(c.Status),
			string(c.Visibility),
			c.BadgeID,
			c.UpdatedAt,
			c.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update challenge: %w", err)
		}
		if result.RowsAffected() == 0 {
			return shared.ErrChallengeNotFound
		}
		return appendEvents(ctx, tx, events)
	})
}

// AdjustParticipantCount moves the participant counter by delta with a
// relative increment, flooring at zero. The database serializes concurrent
// adjustments, so no increment is lost to a read-modify-write race.
func (r *ChallengeRepository) AdjustParticipantCount(ctx context.Context, id string, delta int, now time.Time) error {
	const query = `
		UPDATE challenges SET
			participant_count = GREATEST(participant_count + $1, 0),
			updated_at = $2
		WHERE id = $3
	`

	result, err := r.conn.Exec(ctx, query, delta, now.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to adjust participant count: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrChallengeNotFound
	}
	return nil
}

// ListActive returns visible active challenges whose window contains now,
// ordered by end date ascending.
func (r *ChallengeRepository) ListActive(ctx context.Context, filter challenge.ListFilter, now time.Time) ([]*challenge.Challenge, error) {
	query, args := buildActiveQuery(fmt.Sprintf("SELECT %s FROM challenges", challengeColumns), filter, now)
	query += " ORDER BY end_date ASC, id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list active challenges: %w", err)
	}
	defer rows.Close()

	return scanChallenges(rows)
}

// ListByStatus returns challenges in the given lifecycle state.
func (r *ChallengeRepository) ListByStatus(ctx context.Context, status challenge.Status) ([]*challenge.Challenge, error) {
	query := fmt.Sprintf("SELECT %s FROM challenges WHERE status = $1 ORDER BY id", challengeColumns)

	rows, err := r.conn.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges by status: %w", err)
	}
	defer rows.Close()

	return scanChallenges(rows)
}

// CountActive returns the number of challenges ListActive would return.
func (r *ChallengeRepository) CountActive(ctx context.Context, filter challenge.ListFilter, now time.Time) (int, error) {
	query, args := buildActiveQuery("SELECT COUNT(*) FROM challenges", filter, now)

	var count int
	if err := r.conn.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active challenges: %w", err)
	}
	return count, nil
}

// buildActiveQuery assembles the WHERE clause shared by ListActive and
// CountActive. Restricted challenges are included only for their creator or
// an enrolled user.
func buildActiveQuery(base string, filter challenge.ListFilter, now time.Time) (string, []interface{}) {
	args := []interface{}{string(challenge.StatusActive), now.UTC()}
	query := base + `
		WHERE status = $1
		  AND start_date <= $2
		  AND end_date >= $2
	`

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(`
		  AND (visibility = 'public'
		       OR creator_id = $%d
		       OR EXISTS (
		           SELECT 1 FROM participants p
		           WHERE p.challenge_id = challenges.id
		             AND p.user_id = $%d
		             AND p.status IN ('active', 'completed')
		       ))
		`, len(args), len(args))
	} else {
		query += " AND visibility = 'public'"
	}

	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.Category != "" {
		args = append(args, string(filter.Category))
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if filter.Visibility != "" {
		args = append(args, string(filter.Visibility))
		query += fmt.Sprintf(" AND visibility = $%d", len(args))
	}

	return query, args
}

func scanChallenge(row pgx.Row) (*challenge.Challenge, error) {
	var (
		c          challenge.Challenge
		typ        string
		category   string
		status     string
		visibility string
	)
	err := row.Scan(
		&c.ID,
		&c.CreatorID,
		&c.Name,
		&c.Description,
		&typ,
		&category,
		&c.Rules.Goal,
		&c.Rules.PointsPerUnit,
		&c.Rules.BonusPoints,
		&c.Unit,
		&c.StartDate,
		&c.EndDate,
		&status,
		&visibility,
		&c.BadgeID,
		&c.ParticipantCount,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Type = challenge.Type(typ)
	c.Category = challenge.Category(category)
	c.Status = challenge.Status(status)
	c.Visibility = challenge.Visibility(visibility)
	return &c, nil
}

func scanChallenges(rows pgx.Rows) ([]*challenge.Challenge, error) {
	challenges := make([]*challenge.Challenge, 0)
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge row: %w", err)
		}
		challenges = append(challenges, c)
	}
	return challenges, rows.Err()
}
