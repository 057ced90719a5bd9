package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fitpulse/challenge-engine/internal/domain/challenge"
	"github.com/fitpulse/challenge-engine/internal/domain/participant"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/internal/domain/team"
	"github.com/fitpulse/challenge-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE TEAM COMMAND
// The captain founds a named team for a team challenge and becomes its first
// member. A captain not yet enrolled in the challenge is enrolled here.
// ══════════════════════════════════════════════════════════════════════════════

// CreateTeamCommand contains the data to create a team.
type CreateTeamCommand struct {
	ChallengeID string
	CaptainID   string
	Name        string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c CreateTeamCommand) Validate() error {
	if c.ChallengeID == "" {
		return errors.New("create_team: challenge_id is required")
	}
	if c.CaptainID == "" {
		return errors.New("create_team: captain_id is required")
	}
	if c.Name == "" {
		return errors.New("create_team: name is required")
	}
	return nil
}

// CreateTeamResult contains the result of creating a team.
type CreateTeamResult struct {
	// Team - the created team.
	Team *team.Team

	// Captain - the captain's participant row, now assigned to the team.
	Captain *participant.Participant

	// CaptainEnrolled - true if the captain was enrolled as part of this
	// command rather than already being a participant.
	CaptainEnrolled bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CreateTeamHandler handles the CreateTeamCommand.
type CreateTeamHandler struct {
	challengeRepo   challenge.Repository
	participantRepo participant.Repository
	teamRepo        team.Repository
	clock           timeutil.Clock
	logger          *slog.Logger
}

// NewCreateTeamHandler creates a new CreateTeamHandler.
func NewCreateTeamHandler(
	challengeRepo challenge.Repository,
	participantRepo participant.Repository,
	teamRepo team.Repository,
	clock timeutil.Clock,
	logger *slog.Logger,
) *CreateTeamHandler {
	return &CreateTeamHandler{
		challengeRepo:   challengeRepo,
		participantRepo: participantRepo,
		teamRepo:        teamRepo,
		clock:           clock,
		logger:          logger.With("handler", "create_team"),
	}
}

// Handle executes the create team command.
func (h *CreateTeamHandler) Handle(ctx context.Context, cmd CreateTeamCommand) (*CreateTeamResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("team", "create", shared.ErrValidation, err.Error(), err)
	}

	now := h.clock.Now()

	ch, err := h.challengeRepo.GetByID(ctx, cmd.ChallengeID)
	if err != nil {
		return nil, err
	}
	if !ch.Type.SupportsTeams() {
		return nil, shared.NewDomainError("team", "create", shared.ErrInvalidChallengeType,
			fmt.Sprintf("challenge %s is %s, teams need a team challenge", ch.ID, ch.Type))
	}
	if !ch.IsJoinable() {
		return nil, shared.NewDomainError("team", "create", shared.ErrChallengeNotJoinable,
			fmt.Sprintf("challenge %s is %s", ch.ID, ch.Status))
	}

	result := &CreateTeamResult{}
	enrolled := false

	// The captain must hold an active enrollment; create one if absent.
	captain, err := h.participantRepo.GetByChallengeAndUser(ctx, cmd.ChallengeID, cmd.CaptainID)
	switch {
	case err == nil:
		if captain.OnTeam() {
			return nil, shared.NewDomainError("team", "create", shared.ErrAlreadyOnTeam,
				"captain already belongs to a team in this challenge")
		}
		if captain.Status == participant.StatusInactive {
			if err := captain.Reactivate(now); err != nil {
				return nil, shared.WrapError("team", "create", shared.ErrInvalidState, "captain reactivation failed", err)
			}
			enrolled = true
		}
	case shared.IsNotFound(err):
		captain, err = participant.NewParticipant(uuid.New().String(), cmd.ChallengeID, cmd.CaptainID, now)
		if err != nil {
			return nil, shared.WrapError("team", "create", shared.ErrValidation, "invalid captain enrollment", err)
		}
		joined := shared.NewParticipantJoinedEvent(cmd.ChallengeID, cmd.CaptainID, false)
		if cmd.CorrelationID != "" {
			joined.BaseEvent = joined.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		if err := h.participantRepo.Create(ctx, captain, []shared.Event{joined}); err != nil {
			return nil, err
		}
		enrolled = true
		result.CaptainEnrolled = true
	default:
		return nil, err
	}

	t, err := team.NewTeam(uuid.New().String(), cmd.ChallengeID, cmd.Name, cmd.CaptainID, now)
	if err != nil {
		return nil, shared.WrapError("team", "create", shared.ErrValidation, "invalid team", err)
	}

	created := shared.NewTeamCreatedEvent(t.ID, t.ChallengeID, t.CaptainID, t.Name)
	added := shared.NewTeamMemberAddedEvent(t.ID, t.ChallengeID, cmd.CaptainID)
	if cmd.CorrelationID != "" {
		created.BaseEvent = created.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		added.BaseEvent = added.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}

	if err := h.teamRepo.Create(ctx, t, []shared.Event{created, added}); err != nil {
		return nil, err
	}

	captain.AssignTeam(t.ID, now)
	if err := h.participantRepo.Save(ctx, captain, nil); err != nil {
		return nil, fmt.Errorf("create_team: failed to assign captain: %w", err)
	}

	if enrolled {
		if err := h.challengeRepo.AdjustParticipantCount(ctx, ch.ID, 1, now); err != nil {
			return nil, fmt.Errorf("create_team: failed to update participant count: %w", err)
		}
	}

	result.Team = t
	result.Captain = captain

	h.logger.Info("team created",
		"team_id", t.ID,
		"challenge_id", t.ChallengeID,
		"captain_id", t.CaptainID,
		"name", t.Name,
	)

	return result, nil
}
