package jobs

import (
	"context"
	"fmt"

	"log/slog"

	"github.com/fitpulse/challenge-engine/internal/application/query"
	"github.com/fitpulse/challenge-engine/internal/domain/challenge"
)

// LeaderboardRefreshJob re-warms the cached first page of every active
// challenge's leaderboard. Reads stay correct without it; the job only
// keeps the hot pages from expiring between requests.
type LeaderboardRefreshJob struct {
	challengeRepo challenge.Repository
	boards        *query.GetLeaderboardHandler
	pageSize      int
	logger        *slog.Logger
}

// NewLeaderboardRefreshJob creates a new LeaderboardRefreshJob.
func NewLeaderboardRefreshJob(
	challengeRepo challenge.Repository,
	boards *query.GetLeaderboardHandler,
	logger *slog.Logger,
) *LeaderboardRefreshJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeaderboardRefreshJob{
		challengeRepo: challengeRepo,
		boards:        boards,
		pageSize:      20,
		logger:        logger.With("job", "leaderboard_refresh"),
	}
}

// Name returns the job name.
func (j *LeaderboardRefreshJob) Name() string { return "leaderboard_refresh" }

// Description returns the job description.
func (j *LeaderboardRefreshJob) Description() string {
	return "Re-warms the first leaderboard page of every active challenge"
}

// Run refreshes the boards, continuing past per-challenge failures.
func (j *LeaderboardRefreshJob) Run(ctx context.Context) error {
	active, err := j.challengeRepo.ListByStatus(ctx, challenge.StatusActive)
	if err != nil {
		return fmt.Errorf("leaderboard refresh: list active challenges: %w", err)
	}

	refreshed, failed := 0, 0
	for _, ch := range active {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		scopes := []query.Scope{query.ScopeIndividual}
		if ch.Type == challenge.TypeTeam {
			scopes = append(scopes, query.ScopeTeam)
		}

		for _, scope := range scopes {
			_, err := j.boards.Handle(ctx, query.GetLeaderboardQuery{
				ChallengeID: ch.ID,
				Scope:       scope,
				Limit:       j.pageSize,
			})
			if err != nil {
				failed++
				j.logger.Warn("board refresh failed",
					slog.String("challenge_id", ch.ID),
					slog.String("scope", string(scope)),
					slog.Any("error", err),
				)
				continue
			}
			refreshed++
		}
	}

	j.logger.Debug("leaderboard refresh finished",
		slog.Int("challenges", len(active)),
		slog.Int("refreshed", refreshed),
		slog.Int("failed", failed),
	)

	return nil
}
