package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"log/slog"

	"github.com/gorilla/mux"

	"github.com/fitpulse/challenge-engine/internal/application/command"
	"github.com/fitpulse/challenge-engine/internal/application/query"
	"github.com/fitpulse/challenge-engine/internal/domain/challenge"
	"github.com/fitpulse/challenge-engine/internal/domain/participant"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/internal/domain/team"
	"github.com/fitpulse/challenge-engine/pkg/logger"
)

// maxBodyBytes caps request bodies; progress and challenge payloads are small.
const maxBodyBytes = 1 << 20

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "Challenge Engine API",
		"version":     "v1",
		"description": "REST API for fitness challenge progress and leaderboards",
		"endpoints": map[string]string{
			"health":      "/health",
			"challenges":  "/api/v1/challenges",
			"leaderboard": "/api/v1/challenges/{id}/leaderboard",
			"metrics":     "/metrics",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// createChallengeRequest is the wire shape of POST /api/v1/challenges.
type createChallengeRequest struct {
	CreatorID     string    `json:"creatorId"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Type          string    `json:"type"`
	Category      string    `json:"category"`
	Goal          float64   `json:"goal"`
	Unit          string    `json:"unit"`
	PointsPerUnit float64   `json:"pointsPerUnit"`
	BonusPoints   int       `json:"bonusPoints"`
	StartDate     time.Time `json:"startDate"`
	EndDate       time.Time `json:"endDate"`
	Visibility    string    `json:"visibility"`
	BadgeID       string    `json:"badgeId"`
}

// handleCreateChallenge handles POST /api/v1/challenges.
func (s *Server) handleCreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req createChallengeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.CreateChallenge.Handle(r.Context(), command.CreateChallengeCommand{
		CreatorID:     req.CreatorID,
		Name:          req.Name,
		Description:   req.Description,
		Type:          challenge.Type(req.Type),
		Category:      challenge.Category(req.Category),
		Goal:          req.Goal,
		Unit:          req.Unit,
		PointsPerUnit: req.PointsPerUnit,
		BonusPoints:   req.BonusPoints,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		Visibility:    challenge.Visibility(req.Visibility),
		BadgeID:       req.BadgeID,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err, "failed to create challenge")
		return
	}

	resp := map[string]interface{}{
		"challenge": toChallengeView(result.Challenge),
	}
	if result.Participant != nil {
		resp["participant"] = toParticipantView(result.Participant)
	}
	if result.EnrollmentErr != nil {
		// Challenge exists but the creator must retry the join themselves.
		resp["warning"] = result.EnrollmentErr.Error()
	}

	writeJSON(w, http.StatusCreated, resp)
}

// handleListChallenges handles GET /api/v1/challenges.
func (s *Server) handleListChallenges(w http.ResponseWriter, r *http.Request) {
	q := query.ListChallengesQuery{
		UserID:     getQueryParam(r, "userId", ""),
		Type:       challenge.Type(getQueryParam(r, "type", "")),
		Category:   challenge.Category(getQueryParam(r, "category", "")),
		Visibility: challenge.Visibility(getQueryParam(r, "visibility", "")),
		Limit:      getQueryParamInt(r, "limit", 20),
		Offset:     getQueryParamInt(r, "offset", 0),
	}

	result, err := s.deps.ListChallenges.Handle(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err, "failed to list challenges")
		return
	}

	meta := &ResponseMeta{
		TotalCount: result.Total,
		Limit:      result.Limit,
		Offset:     result.Offset,
	}
	writeJSONWithMeta(w, r, http.StatusOK, result, meta)
}

// handleGetChallenge handles GET /api/v1/challenges/{id}.
func (s *Server) handleGetChallenge(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetChallenge.Handle(r.Context(), query.GetChallengeQuery{
		ChallengeID: mux.Vars(r)["id"],
		UserID:      getQueryParam(r, "userId", ""),
	})
	if err != nil {
		s.writeError(w, r, err, "failed to get challenge")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// cancelChallengeRequest is the wire shape of POST /api/v1/challenges/{id}/cancel.
type cancelChallengeRequest struct {
	RequestedBy string `json:"requestedBy"`
}

// handleCancelChallenge handles POST /api/v1/challenges/{id}/cancel.
func (s *Server) handleCancelChallenge(w http.ResponseWriter, r *http.Request) {
	var req cancelChallengeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	ch, err := s.deps.Lifecycle.Cancel(r.Context(), command.CancelChallengeCommand{
		ChallengeID:   mux.Vars(r)["id"],
		RequestedBy:   req.RequestedBy,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err, "failed to cancel challenge")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"challenge": toChallengeView(ch)})
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT & PROGRESS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// enrollmentRequest is the shared wire shape of join and leave.
type enrollmentRequest struct {
	UserID string `json:"userId"`
}

// handleJoinChallenge handles POST /api/v1/challenges/{id}/join.
func (s *Server) handleJoinChallenge(w http.ResponseWriter, r *http.Request) {
	var req enrollmentRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.JoinChallenge.Handle(r.Context(), command.JoinChallengeCommand{
		ChallengeID:   mux.Vars(r)["id"],
		UserID:        req.UserID,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err, "failed to join challenge")
		return
	}

	status := http.StatusCreated
	if result.Reactivated {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]interface{}{
		"participant": toParticipantView(result.Participant),
		"reactivated": result.Reactivated,
	})
}

// handleLeaveChallenge handles POST /api/v1/challenges/{id}/leave.
func (s *Server) handleLeaveChallenge(w http.ResponseWriter, r *http.Request) {
	var req enrollmentRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.LeaveChallenge.Handle(r.Context(), command.LeaveChallengeCommand{
		ChallengeID:   mux.Vars(r)["id"],
		UserID:        req.UserID,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err, "failed to leave challenge")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"participant": toParticipantView(result.Participant),
	})
}

// progressRequest is the wire shape of POST /api/v1/challenges/{id}/progress.
type progressRequest struct {
	UserID string  `json:"userId"`
	Value  float64 `json:"value"`
	Mode   string  `json:"mode"`
}

// progressResponse reports a progress write including point movement.
type progressResponse struct {
	Participant      participantView `json:"participant"`
	PreviousProgress float64         `json:"previousProgress"`
	NewProgress      float64         `json:"newProgress"`
	PointsDelta      int             `json:"pointsDelta"`
	CompletedNow     bool            `json:"completedNow"`
	PointsCredited   bool            `json:"pointsCredited"`
	LedgerWarning    string          `json:"ledgerWarning,omitempty"`
}

// handleApplyProgress handles POST /api/v1/challenges/{id}/progress.
func (s *Server) handleApplyProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.ApplyProgress.Handle(r.Context(), command.ApplyProgressCommand{
		ChallengeID:   mux.Vars(r)["id"],
		UserID:        req.UserID,
		Value:         req.Value,
		Mode:          participant.Mode(req.Mode),
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err, "failed to apply progress")
		return
	}

	resp := progressResponse{
		Participant:      toParticipantView(result.Participant),
		PreviousProgress: result.Outcome.PreviousProgress,
		NewProgress:      result.Outcome.NewProgress,
		PointsDelta:      result.Outcome.PointsDelta,
		CompletedNow:     result.Outcome.CompletedNow,
		PointsCredited:   result.Receipt != nil,
	}
	if result.LedgerWarning != nil {
		resp.LedgerWarning = result.LedgerWarning.Error()
	}

	writeJSON(w, http.StatusOK, resp)
}

// ══════════════════════════════════════════════════════════════════════════════
// TEAM HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// createTeamRequest is the wire shape of POST /api/v1/challenges/{id}/teams.
type createTeamRequest struct {
	CaptainID string `json:"captainId"`
	Name      string `json:"name"`
}

// handleCreateTeam handles POST /api/v1/challenges/{id}/teams.
func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req createTeamRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.CreateTeam.Handle(r.Context(), command.CreateTeamCommand{
		ChallengeID:   mux.Vars(r)["id"],
		CaptainID:     req.CaptainID,
		Name:          req.Name,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err, "failed to create team")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"team":            toTeamView(result.Team),
		"captain":         toParticipantView(result.Captain),
		"captainEnrolled": result.CaptainEnrolled,
	})
}

// addMemberRequest is the wire shape of POST /api/v1/teams/{teamId}/members.
type addMemberRequest struct {
	UserID string `json:"userId"`
}

// handleAddTeamMember handles POST /api/v1/teams/{teamId}/members.
func (s *Server) handleAddTeamMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.TeamMembership.HandleAdd(r.Context(), command.AddTeamMemberCommand{
		TeamID:        mux.Vars(r)["teamId"],
		UserID:        req.UserID,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err, "failed to add team member")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"team":   toTeamView(result.Team),
		"member": toParticipantView(result.Member),
	})
}

// handleRemoveTeamMember handles DELETE /api/v1/teams/{teamId}/members/{userId}.
func (s *Server) handleRemoveTeamMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	result, err := s.deps.TeamMembership.HandleRemove(r.Context(), command.RemoveTeamMemberCommand{
		TeamID:        vars["teamId"],
		UserID:        vars["userId"],
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err, "failed to remove team member")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"team":   toTeamView(result.Team),
		"member": toParticipantView(result.Member),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLeaderboard handles GET /api/v1/challenges/{id}/leaderboard.
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := query.GetLeaderboardQuery{
		ChallengeID: mux.Vars(r)["id"],
		Scope:       query.Scope(getQueryParam(r, "scope", "")),
		Limit:       getQueryParamInt(r, "limit", 20),
		Offset:      getQueryParamInt(r, "offset", 0),
	}

	result, err := s.deps.GetLeaderboard.Handle(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err, "failed to get leaderboard")
		return
	}

	meta := &ResponseMeta{
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	}
	writeJSONWithMeta(w, r, http.StatusOK, result, meta)
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRE VIEWS
// ══════════════════════════════════════════════════════════════════════════════

// challengeView is the write-side wire shape of a challenge.
type challengeView struct {
	ID               string    `json:"id"`
	CreatorID        string    `json:"creatorId"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	Type             string    `json:"type"`
	Category         string    `json:"category"`
	Goal             float64   `json:"goal"`
	Unit             string    `json:"unit"`
	PointsPerUnit    float64   `json:"pointsPerUnit"`
	BonusPoints      int       `json:"bonusPoints"`
	StartDate        time.Time `json:"startDate"`
	EndDate          time.Time `json:"endDate"`
	Status           string    `json:"status"`
	Visibility       string    `json:"visibility"`
	BadgeID          string    `json:"badgeId,omitempty"`
	ParticipantCount int       `json:"participantCount"`
}

func toChallengeView(ch *challenge.Challenge) challengeView {
	return challengeView{
		ID:               ch.ID,
		CreatorID:        ch.CreatorID,
		Name:             ch.Name,
		Description:      ch.Description,
		Type:             string(ch.Type),
		Category:         string(ch.Category),
		Goal:             ch.Rules.Goal,
		Unit:             ch.Unit,
		PointsPerUnit:    ch.Rules.PointsPerUnit,
		BonusPoints:      ch.Rules.BonusPoints,
		StartDate:        ch.StartDate,
		EndDate:          ch.EndDate,
		Status:           string(ch.Status),
		Visibility:       string(ch.Visibility),
		BadgeID:          ch.BadgeID,
		ParticipantCount: ch.ParticipantCount,
	}
}

// participantView is the wire shape of an enrollment row.
type participantView struct {
	ID           string     `json:"id"`
	ChallengeID  string     `json:"challengeId"`
	UserID       string     `json:"userId"`
	TeamID       string     `json:"teamId,omitempty"`
	Status       string     `json:"status"`
	Progress     float64    `json:"progress"`
	PointsEarned int        `json:"pointsEarned"`
	IsCompleted  bool       `json:"isCompleted"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	JoinedAt     time.Time  `json:"joinedAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func toParticipantView(p *participant.Participant) participantView {
	return participantView{
		ID:           p.ID,
		ChallengeID:  p.ChallengeID,
		UserID:       p.UserID,
		TeamID:       p.TeamID,
		Status:       string(p.Status),
		Progress:     p.Progress,
		PointsEarned: p.PointsEarned,
		IsCompleted:  p.IsCompleted,
		CompletedAt:  p.CompletedAt,
		JoinedAt:     p.JoinedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// teamView is the wire shape of a team.
type teamView struct {
	ID              string     `json:"id"`
	ChallengeID     string     `json:"challengeId"`
	Name            string     `json:"name"`
	CaptainID       string     `json:"captainId"`
	MemberCount     int        `json:"memberCount"`
	TotalProgress   float64    `json:"totalProgress"`
	AverageProgress float64    `json:"averageProgress"`
	IsCompleted     bool       `json:"isCompleted"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	CompletedBy     string     `json:"completedBy,omitempty"`
}

func toTeamView(t *team.Team) teamView {
	return teamView{
		ID:              t.ID,
		ChallengeID:     t.ChallengeID,
		Name:            t.Name,
		CaptainID:       t.CaptainID,
		MemberCount:     t.MemberCount,
		TotalProgress:   t.TotalProgress,
		AverageProgress: t.AverageProgress,
		IsCompleted:     t.IsCompleted,
		CompletedAt:     t.CompletedAt,
		CompletedBy:     string(t.CompletedBy),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST DECODING & ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// decodeBody decodes a JSON request body into dst. On failure it writes the
// error response and returns false.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return false
	}
	if len(body) == 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Request body is required")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return false
	}
	return true
}

// writeError maps a handler error to an HTTP status and writes the response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	status, code := errorStatus(err)

	if status >= http.StatusInternalServerError {
		s.logger.Error(logMsg, logger.Err(err), slog.String("request_id", getRequestID(r.Context())))
	} else {
		s.logger.Debug(logMsg, logger.Err(err), slog.String("request_id", getRequestID(r.Context())))
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "An unexpected error occurred"
	}
	writeJSONError(w, status, code, message)
}

// errorStatus translates domain errors into HTTP status codes. Conflicts and
// duplicates both come back as 409; stale-version conflicts surface only when
// the built-in retries are exhausted.
func errorStatus(err error) (int, string) {
	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, "already_exists"
	case shared.IsConflict(err):
		return http.StatusConflict, "conflict"
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, shared.ErrInvalidState), errors.Is(err, shared.ErrStateTransition):
		return http.StatusUnprocessableEntity, "invalid_state"
	case errors.Is(err, shared.ErrServiceUnavailable), errors.Is(err, shared.ErrTimeout):
		return http.StatusServiceUnavailable, "service_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
