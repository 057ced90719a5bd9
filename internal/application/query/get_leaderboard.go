// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fitpulse/challenge-engine/internal/domain/challenge"
	"github.com/fitpulse/challenge-engine/internal/domain/leaderboard"
	"github.com/fitpulse/challenge-engine/internal/domain/participant"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/internal/domain/team"
	"github.com/fitpulse/challenge-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Builds the ranked view of a challenge, individual or team scope. Rankings
// are recomputed from the rows on every miss, so the cache is an optimization
// only and reads stay correct without it.
// ══════════════════════════════════════════════════════════════════════════════

// Scope selects which leaderboard to read.
type Scope string

const (
	// ScopeIndividual - participants ranked by progress.
	ScopeIndividual Scope = "individual"
	// ScopeTeam - teams ranked by total progress.
	ScopeTeam Scope = "team"
)

// GetLeaderboardQuery contains the parameters of a leaderboard read.
type GetLeaderboardQuery struct {
	ChallengeID string

	// Scope - individual (default) or team.
	Scope Scope

	// Limit - page size (default 20, maximum 100).
	Limit int

	// Offset - pagination offset over the sorted sequence.
	Offset int
}

// Validate checks and normalizes the query parameters.
func (q *GetLeaderboardQuery) Validate() error {
	if q.ChallengeID == "" {
		return errors.New("challenge_id is required")
	}
	if q.Offset < 0 {
		return errors.New("offset cannot be negative")
	}
	if q.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Scope == "" {
		q.Scope = ScopeIndividual
	}
	if q.Scope != ScopeIndividual && q.Scope != ScopeTeam {
		return fmt.Errorf("unknown leaderboard scope: %s", q.Scope)
	}
	return nil
}

// EntryDTO is one individual leaderboard row on the wire.
type EntryDTO struct {
	Rank         int       `json:"rank"`
	UserID       string    `json:"userId"`
	TeamID       string    `json:"teamId,omitempty"`
	Progress     float64   `json:"progress"`
	PointsEarned int       `json:"pointsEarned"`
	IsCompleted  bool      `json:"isCompleted"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TeamEntryDTO is one team leaderboard row on the wire.
type TeamEntryDTO struct {
	Rank            int       `json:"rank"`
	TeamID          string    `json:"teamId"`
	Name            string    `json:"name"`
	MemberCount     int       `json:"memberCount"`
	TotalProgress   float64   `json:"totalProgress"`
	AverageProgress float64   `json:"averageProgress"`
	IsCompleted     bool      `json:"isCompleted"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// GetLeaderboardResult contains one leaderboard page.
type GetLeaderboardResult struct {
	ChallengeID string         `json:"challengeId"`
	Scope       Scope          `json:"scope"`
	Entries     []EntryDTO     `json:"entries,omitempty"`
	TeamEntries []TeamEntryDTO `json:"teamEntries,omitempty"`
	TotalCount  int            `json:"totalCount"`
	Limit       int            `json:"limit"`
	Offset      int            `json:"offset"`
	FromCache   bool           `json:"-"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardHandler handles the GetLeaderboardQuery.
type GetLeaderboardHandler struct {
	challengeRepo   challenge.Repository
	participantRepo participant.Repository
	teamRepo        team.Repository
	cache           leaderboard.Cache
	cacheTTL        time.Duration
	clock           timeutil.Clock
	logger          *slog.Logger
}

// NewGetLeaderboardHandler creates a new GetLeaderboardHandler.
// The cache may be nil; reads then always hit the store.
func NewGetLeaderboardHandler(
	challengeRepo challenge.Repository,
	participantRepo participant.Repository,
	teamRepo team.Repository,
	cache leaderboard.Cache,
	cacheTTL time.Duration,
	clock timeutil.Clock,
	logger *slog.Logger,
) *GetLeaderboardHandler {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &GetLeaderboardHandler{
		challengeRepo:   challengeRepo,
		participantRepo: participantRepo,
		teamRepo:        teamRepo,
		cache:           cache,
		cacheTTL:        cacheTTL,
		clock:           clock,
		logger:          logger.With("handler", "get_leaderboard"),
	}
}

// Handle executes the leaderboard query.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("leaderboard", "get", shared.ErrValidation, err.Error(), err)
	}

	ch, err := h.challengeRepo.GetByID(ctx, q.ChallengeID)
	if err != nil {
		return nil, err
	}

	if q.Scope == ScopeTeam {
		if !ch.Type.SupportsTeams() {
			return nil, shared.NewDomainError("leaderboard", "get", shared.ErrInvalidChallengeType,
				fmt.Sprintf("challenge %s is %s and has no team leaderboard", ch.ID, ch.Type))
		}
		return h.teamBoard(ctx, q)
	}
	return h.individualBoard(ctx, q)
}

func (h *GetLeaderboardHandler) individualBoard(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if h.cache != nil {
		if snap, err := h.cache.GetIndividual(ctx, q.ChallengeID, q.Limit, q.Offset); err == nil {
			return h.fromSnapshot(q, snap), nil
		} else if !shared.IsNotFound(err) {
			h.logger.Warn("leaderboard cache read failed", "challenge_id", q.ChallengeID, "error", err)
		}
	}

	// Full ranked rebuild: the row count per challenge is modest and a full
	// sort keeps ranks exact for any page.
	rows, err := h.participantRepo.ListByChallenge(ctx, q.ChallengeID, 0, 0)
	if err != nil {
		return nil, err
	}

	ranking := leaderboard.NewRanking()
	for _, p := range rows {
		if err := ranking.Add(&leaderboard.Entry{
			UserID:       p.UserID,
			TeamID:       p.TeamID,
			Progress:     p.Progress,
			PointsEarned: p.PointsEarned,
			IsCompleted:  p.IsCompleted,
			UpdatedAt:    p.UpdatedAt,
		}); err != nil {
			return nil, shared.WrapError("leaderboard", "get", shared.ErrInvalidState, "duplicate participant row", err)
		}
	}
	ranking.Sort()

	page := ranking.Page(q.Limit, q.Offset)
	result := &GetLeaderboardResult{
		ChallengeID: q.ChallengeID,
		Scope:       ScopeIndividual,
		Entries:     make([]EntryDTO, 0, len(page)),
		TotalCount:  ranking.Len(),
		Limit:       q.Limit,
		Offset:      q.Offset,
		GeneratedAt: h.clock.Now(),
	}
	for _, e := range page {
		result.Entries = append(result.Entries, EntryDTO{
			Rank:         int(e.Rank),
			UserID:       e.UserID,
			TeamID:       e.TeamID,
			Progress:     e.Progress,
			PointsEarned: e.PointsEarned,
			IsCompleted:  e.IsCompleted,
			UpdatedAt:    e.UpdatedAt,
		})
	}

	if h.cache != nil {
		snap := &leaderboard.Snapshot{
			ChallengeID: q.ChallengeID,
			Entries:     page,
			Total:       ranking.Len(),
			GeneratedAt: result.GeneratedAt,
		}
		if err := h.cache.SetIndividual(ctx, snap, q.Limit, q.Offset, h.cacheTTL); err != nil {
			h.logger.Warn("leaderboard cache write failed", "challenge_id", q.ChallengeID, "error", err)
		}
	}

	return result, nil
}

func (h *GetLeaderboardHandler) teamBoard(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if h.cache != nil {
		if snap, err := h.cache.GetTeam(ctx, q.ChallengeID, q.Limit, q.Offset); err == nil {
			return h.fromTeamSnapshot(q, snap), nil
		} else if !shared.IsNotFound(err) {
			h.logger.Warn("leaderboard cache read failed", "challenge_id", q.ChallengeID, "error", err)
		}
	}

	rows, err := h.teamRepo.ListByChallenge(ctx, q.ChallengeID, 0, 0)
	if err != nil {
		return nil, err
	}

	ranking := leaderboard.NewTeamRanking()
	for _, t := range rows {
		if err := ranking.Add(&leaderboard.TeamEntry{
			TeamID:          t.ID,
			Name:            t.Name,
			MemberCount:     t.MemberCount,
			TotalProgress:   t.TotalProgress,
			AverageProgress: t.AverageProgress,
			IsCompleted:     t.IsCompleted,
			UpdatedAt:       t.UpdatedAt,
		}); err != nil {
			return nil, shared.WrapError("leaderboard", "get", shared.ErrInvalidState, "duplicate team row", err)
		}
	}
	ranking.Sort()

	page := ranking.Page(q.Limit, q.Offset)
	result := &GetLeaderboardResult{
		ChallengeID: q.ChallengeID,
		Scope:       ScopeTeam,
		TeamEntries: make([]TeamEntryDTO, 0, len(page)),
		TotalCount:  ranking.Len(),
		Limit:       q.Limit,
		Offset:      q.Offset,
		GeneratedAt: h.clock.Now(),
	}
	for _, e := range page {
		result.TeamEntries = append(result.TeamEntries, TeamEntryDTO{
			Rank:            int(e.Rank),
			TeamID:          e.TeamID,
			Name:            e.Name,
			MemberCount:     e.MemberCount,
			TotalProgress:   e.TotalProgress,
			AverageProgress: e.AverageProgress,
			IsCompleted:     e.IsCompleted,
			UpdatedAt:       e.UpdatedAt,
		})
	}

	if h.cache != nil {
		snap := &leaderboard.TeamSnapshot{
			ChallengeID: q.ChallengeID,
			Entries:     page,
			Total:       ranking.Len(),
			GeneratedAt: result.GeneratedAt,
		}
		if err := h.cache.SetTeam(ctx, snap, q.Limit, q.Offset, h.cacheTTL); err != nil {
			h.logger.Warn("leaderboard cache write failed", "challenge_id", q.ChallengeID, "error", err)
		}
	}

	return result, nil
}

func (h *GetLeaderboardHandler) fromSnapshot(q GetLeaderboardQuery, snap *leaderboard.Snapshot) *GetLeaderboardResult {
	result := &GetLeaderboardResult{
		ChallengeID: q.ChallengeID,
		Scope:       ScopeIndividual,
		Entries:     make([]EntryDTO, 0, len(snap.Entries)),
		TotalCount:  snap.Total,
		Limit:       q.Limit,
		Offset:      q.Offset,
		FromCache:   true,
		GeneratedAt: snap.GeneratedAt,
	}
	for _, e := range snap.Entries {
		result.Entries = append(result.Entries, EntryDTO{
			Rank:         int(e.Rank),
			UserID:       e.UserID,
			TeamID:       e.TeamID,
			Progress:     e.Progress,
			PointsEarned: e.PointsEarned,
			IsCompleted:  e.IsCompleted,
			UpdatedAt:    e.UpdatedAt,
		})
	}
	return result
}

func (h *GetLeaderboardHandler) fromTeamSnapshot(q GetLeaderboardQuery, snap *leaderboard.TeamSnapshot) *GetLeaderboardResult {
	result := &GetLeaderboardResult{
		ChallengeID: q.ChallengeID,
		Scope:       ScopeTeam,
		TeamEntries: make([]TeamEntryDTO, 0, len(snap.Entries)),
		TotalCount:  snap.Total,
		Limit:       q.Limit,
		Offset:      q.Offset,
		FromCache:   true,
		GeneratedAt: snap.GeneratedAt,
	}
	for _, e := range snap.Entries {
		result.TeamEntries = append(result.TeamEntries, TeamEntryDTO{
			Rank:            int(e.Rank),
			TeamID:          e.TeamID,
			Name:            e.Name,
			MemberCount:     e.MemberCount,
			TotalProgress:   e.TotalProgress,
			AverageProgress: e.AverageProgress,
			IsCompleted:     e.IsCompleted,
			UpdatedAt:       e.UpdatedAt,
		})
	}
	return result
}
