package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fitpulse/challenge-engine/internal/domain/challenge"
	"github.com/fitpulse/challenge-engine/internal/domain/participant"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/internal/domain/team"
	"github.com/fitpulse/challenge-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEAM MEMBERSHIP COMMANDS
// Adding and removing members. A user holds at most one team per challenge,
// the captain cannot be removed, and every roster change triggers a team
// recalculation.
// ══════════════════════════════════════════════════════════════════════════════

// AddTeamMemberCommand contains the data to add a member to a team.
type AddTeamMemberCommand struct {
	TeamID string
	UserID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c AddTeamMemberCommand) Validate() error {
	if c.TeamID == "" {
		return errors.New("add_team_member: team_id is required")
	}
	if c.UserID == "" {
		return errors.New("add_team_member: user_id is required")
	}
	return nil
}

// RemoveTeamMemberCommand contains the data to remove a member from a team.
type RemoveTeamMemberCommand struct {
	TeamID string
	UserID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RemoveTeamMemberCommand) Validate() error {
	if c.TeamID == "" {
		return errors.New("remove_team_member: team_id is required")
	}
	if c.UserID == "" {
		return errors.New("remove_team_member: user_id is required")
	}
	return nil
}

// TeamMembershipResult contains the state after a membership change.
type TeamMembershipResult struct {
	// Team - the team after recalculation.
	Team *team.Team

	// Member - the affected participant row.
	Member *participant.Participant
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// TeamMembershipHandler handles both membership commands.
type TeamMembershipHandler struct {
	challengeRepo   challenge.Repository
	participantRepo participant.Repository
	teamRepo        team.Repository
	recalculator    *RecalculateTeamHandler
	clock           timeutil.Clock
	logger          *slog.Logger
}

// NewTeamMembershipHandler creates a new TeamMembershipHandler.
func NewTeamMembershipHandler(
	challengeRepo challenge.Repository,
	participantRepo participant.Repository,
	teamRepo team.Repository,
	recalculator *RecalculateTeamHandler,
	clock timeutil.Clock,
	logger *slog.Logger,
) *TeamMembershipHandler {
	return &TeamMembershipHandler{
		challengeRepo:   challengeRepo,
		participantRepo: participantRepo,
		teamRepo:        teamRepo,
		recalculator:    recalculator,
		clock:           clock,
		logger:          logger.With("handler", "team_membership"),
	}
}

// HandleAdd executes the add member command.
func (h *TeamMembershipHandler) HandleAdd(ctx context.Context, cmd AddTeamMemberCommand) (*TeamMembershipResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("team", "add_member", shared.ErrValidation, err.Error(), err)
	}

	now := h.clock.Now()

	t, err := h.teamRepo.GetByID(ctx, cmd.TeamID)
	if err != nil {
		return nil, err
	}

	ch, err := h.challengeRepo.GetByID(ctx, t.ChallengeID)
	if err != nil {
		return nil, err
	}
	if !ch.Type.SupportsTeams() {
		return nil, shared.NewDomainError("team", "add_member", shared.ErrInvalidChallengeType,
			fmt.Sprintf("challenge %s is %s, teams need a team challenge", ch.ID, ch.Type))
	}

	p, err := h.participantRepo.GetByChallengeAndUser(ctx, t.ChallengeID, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if p.Status == participant.StatusInactive {
		return nil, shared.NewDomainError("team", "add_member", shared.ErrParticipantInactive,
			"user left this challenge, rejoin before joining a team")
	}
	if p.OnTeam() {
		return nil, shared.NewDomainError("team", "add_member", shared.ErrAlreadyOnTeam,
			fmt.Sprintf("user %s already belongs to a team in challenge %s", cmd.UserID, t.ChallengeID))
	}

	p.AssignTeam(t.ID, now)

	added := shared.NewTeamMemberAddedEvent(t.ID, t.ChallengeID, cmd.UserID)
	if cmd.CorrelationID != "" {
		added.BaseEvent = added.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}

	if err := h.participantRepo.Save(ctx, p, []shared.Event{added}); err != nil {
		return nil, err
	}

	recalced, err := h.recalculator.Handle(ctx, RecalculateTeamCommand{
		TeamID:        t.ID,
		CorrelationID: cmd.CorrelationID,
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("team member added",
		"team_id", t.ID,
		"challenge_id", t.ChallengeID,
		"user_id", cmd.UserID,
		"member_count", recalced.Team.MemberCount,
	)

	return &TeamMembershipResult{Team: recalced.Team, Member: p}, nil
}

// HandleRemove executes the remove member command.
func (h *TeamMembershipHandler) HandleRemove(ctx context.Context, cmd RemoveTeamMemberCommand) (*TeamMembershipResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("team", "remove_member", shared.ErrValidation, err.Error(), err)
	}

	now := h.clock.Now()

	t, err := h.teamRepo.GetByID(ctx, cmd.TeamID)
	if err != nil {
		return nil, err
	}
	if cmd.UserID == t.CaptainID {
		return nil, shared.NewDomainError("team", "remove_member", shared.ErrCannotRemoveCaptain,
			"the captain cannot be removed from the team")
	}

	p, err := h.participantRepo.GetByChallengeAndUser(ctx, t.ChallengeID, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if p.TeamID != t.ID {
		return nil, shared.NewDomainError("team", "remove_member", shared.ErrNotOnTeam,
			fmt.Sprintf("user %s is not on team %s", cmd.UserID, t.ID))
	}

	p.ClearTeam(now)

	removed := shared.NewTeamMemberRemovedEvent(t.ID, t.ChallengeID, cmd.UserID)
	if cmd.CorrelationID != "" {
		removed.BaseEvent = removed.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}

	if err := h.participantRepo.Save(ctx, p, []shared.Event{removed}); err != nil {
		return nil, err
	}

	recalced, err := h.recalculator.Handle(ctx, RecalculateTeamCommand{
		TeamID:        t.ID,
		CorrelationID: cmd.CorrelationID,
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("team member removed",
		"team_id", t.ID,
		"challenge_id", t.ChallengeID,
		"user_id", cmd.UserID,
		"member_count", recalced.Team.MemberCount,
	)

	return &TeamMembershipResult{Team: recalced.Team, Member: p}, nil
}
