package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitpulse/challenge-engine/internal/application/command"
	"github.com/fitpulse/challenge-engine/internal/application/query"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/internal/infrastructure/persistence/memory"
	"github.com/fitpulse/challenge-engine/pkg/timeutil"
)

// noopLedger acknowledges every credit without side effects.
type noopLedger struct{}

func (noopLedger) Credit(_ context.Context, req command.CreditRequest) (*command.CreditReceipt, error) {
	return &command.CreditReceipt{TransactionID: "tx-test", BalanceAfter: req.Points}, nil
}

// noopInvalidator drops nothing; the test servers run without a cache.
type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, string) error { return nil }

func newTestServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()

	outbox := memory.NewOutbox()
	challenges := memory.NewChallengeRepository(outbox)
	participants := memory.NewParticipantRepository(outbox)
	teams := memory.NewTeamRepository(outbox)
	challenges.SetMembership(participants.HasRankedEnrollment)

	clock := timeutil.NewFrozenClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	recalculator := command.NewRecalculateTeamHandler(challenges, participants, teams, clock, log)

	deps := Dependencies{
		CreateChallenge: command.NewCreateChallengeHandler(challenges, participants, clock, log),
		JoinChallenge:   command.NewJoinChallengeHandler(challenges, participants, clock, log),
		LeaveChallenge:  command.NewLeaveChallengeHandler(challenges, participants, recalculator, clock, log),
		ApplyProgress: command.NewApplyProgressHandler(
			challenges, participants, noopLedger{}, outbox, noopInvalidator{}, recalculator, clock, log),
		CreateTeam:     command.NewCreateTeamHandler(challenges, participants, teams, clock, log),
		TeamMembership: command.NewTeamMembershipHandler(challenges, participants, teams, recalculator, clock, log),
		Lifecycle:      command.NewLifecycleHandler(challenges, clock, log),
		ListChallenges: query.NewListChallengesHandler(challenges, clock, log),
		GetChallenge:   query.NewGetChallengeHandler(challenges, participants, clock, log),
		GetLeaderboard: query.NewGetLeaderboardHandler(challenges, participants, teams, nil, time.Minute, clock, log),
		Logger:         log,
	}

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	if mutate != nil {
		mutate(&cfg)
	}
	return NewServer(cfg, deps)
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, JSONResponse) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var envelope JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return rec, envelope
}

func createChallengeBody(chType string) map[string]interface{} {
	return map[string]interface{}{
		"creatorId":     "creator",
		"name":          "March Distance",
		"type":          chType,
		"category":      "running",
		"goal":          100.0,
		"unit":          "km",
		"pointsPerUnit": 10.0,
		"bonusPoints":   50,
		"startDate":     "2026-03-01T00:00:00Z",
		"endDate":       "2026-03-31T23:59:59Z",
	}
}

func createChallenge(t *testing.T, s *Server, chType string) string {
	t.Helper()
	rec, envelope := doJSON(t, s, http.MethodPost, "/api/v1/challenges", createChallengeBody(chType), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	data := envelope.Data.(map[string]interface{})
	ch := data["challenge"].(map[string]interface{})
	return ch["id"].(string)
}

func TestCreateChallengeEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	rec, envelope := doJSON(t, s, http.MethodPost, "/api/v1/challenges", createChallengeBody("individual"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, envelope.Success)

	data := envelope.Data.(map[string]interface{})
	ch := data["challenge"].(map[string]interface{})
	assert.Equal(t, "March Distance", ch["name"])
	assert.Equal(t, "active", ch["status"])
	assert.Equal(t, float64(1), ch["participantCount"])

	// The creator is auto-enrolled.
	p := data["participant"].(map[string]interface{})
	assert.Equal(t, "creator", p["userId"])
}

func TestCreateChallengeEndpoint_BadRequests(t *testing.T) {
	s := newTestServer(t, nil)

	// Empty body.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/challenges", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Malformed JSON.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/challenges", bytes.NewReader([]byte("{nope")))
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Domain validation failure.
	body := createChallengeBody("individual")
	body["goal"] = -5.0
	rec2, envelope := doJSON(t, s, http.MethodPost, "/api/v1/challenges", body, nil)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "validation_error", envelope.Error.Code)
}

func TestJoinChallengeEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	id := createChallenge(t, s, "individual")

	rec, envelope := doJSON(t, s, http.MethodPost, "/api/v1/challenges/"+id+"/join",
		map[string]string{"userId": "user1"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, envelope.Success)

	// Joining twice conflicts.
	rec, envelope = doJSON(t, s, http.MethodPost, "/api/v1/challenges/"+id+"/join",
		map[string]string{"userId": "user1"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "already_exists", envelope.Error.Code)

	// Unknown challenge.
	rec, envelope = doJSON(t, s, http.MethodPost, "/api/v1/challenges/ghost/join",
		map[string]string{"userId": "user1"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", envelope.Error.Code)
}

func TestProgressEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	id := createChallenge(t, s, "individual")
	doJSON(t, s, http.MethodPost, "/api/v1/challenges/"+id+"/join", map[string]string{"userId": "user1"}, nil)

	rec, envelope := doJSON(t, s, http.MethodPost, "/api/v1/challenges/"+id+"/progress",
		map[string]interface{}{"userId": "user1", "value": 60.0, "mode": "increment"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, 60.0, data["newProgress"])
	assert.Equal(t, float64(600), data["pointsDelta"])
	assert.Equal(t, false, data["completedNow"])
	assert.Equal(t, true, data["pointsCredited"])

	// Crossing the goal completes.
	_, envelope = doJSON(t, s, http.MethodPost, "/api/v1/challenges/"+id+"/progress",
		map[string]interface{}{"userId": "user1", "value": 50.0, "mode": "increment"}, nil)
	data = envelope.Data.(map[string]interface{})
	assert.Equal(t, true, data["completedNow"])

	// Bogus mode is rejected.
	rec, envelope = doJSON(t, s, http.MethodPost, "/api/v1/challenges/"+id+"/progress",
		map[string]interface{}{"userId": "user1", "value": 5.0, "mode": "sideways"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", envelope.Error.Code)
}

func TestLeaveChallengeEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	id := createChallenge(t, s, "individual")
	doJSON(t, s, http.MethodPost, "/api/v1/challenges/"+id+"/join", map[string]string{"userId": "user1"}, nil)

	rec, envelope := doJSON(t, s, http.MethodPost, "/api/v1/challenges/"+id+"/leave",
		map[string]string{"userId": "user1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Leaving again is an invalid state.
	rec, envelope = doJSON(t, s, http.MethodPost, "/api/v1/challenges/"+id+"/leave",
		map[string]string{"userId": "user1"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_state", envelope.Error.Code)

	// Rejoining reactivates and returns 200 instead of 201.
	rec, envelope = doJSON(t, s, http.MethodPost, "/api/v1/challenges/"+id+"/join",
		map[string]string{"userId": "user1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, true, data["reactivated"])
}

func TestTeamEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	id := createChallenge(t, s, "team")
	doJSON(t, s, http.MethodPost, "/api/v1/challenges/"+id+"/join", map[string]string{"userId": "user2"}, nil)

	rec, envelope := doJSON(t, s, http.MethodPost, "/api/v1/challenges/"+id+"/teams",
		map[string]string{"captainId": "creator", "name": "Road Runners"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	data := envelope.Data.(map[string]interface{})
	teamID := data["team"].(map[string]interface{})["id"].(string)

	// Duplicate name conflicts.
	rec, envelope = doJSON(t, s, http.MethodPost, "/api/v1/challenges/"+id+"/teams",
		map[string]string{"captainId": "user2", "name": "road runners"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_exists", envelope.Error.Code)

	// Add and remove a member.
	rec, envelope = doJSON(t, s, http.MethodPost, "/api/v1/teams/"+teamID+"/members",
		map[string]string{"userId": "user2"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	data = envelope.Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["team"].(map[string]interface{})["memberCount"])

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/teams/"+teamID+"/members/user2", nil)
	rec2 := httptest.NewRecorder()
	s.Router().ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusOK, rec2.Code)

	// The captain is protected.
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/teams/"+teamID+"/members/creator", nil)
	rec2 = httptest.NewRecorder()
	s.Router().ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusForbidden, rec2.Code)
}

func TestTeamEndpoints_IndividualChallengeRejected(t *testing.T) {
	s := newTestServer(t, nil)
	id := createChallenge(t, s, "individual")

	rec, envelope := doJSON(t, s, http.MethodPost, "/api/v1/challenges/"+id+"/teams",
		map[string]string{"captainId": "creator", "name": "Road Runners"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", envelope.Error.Code)
}

func TestListAndGetChallengeEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	id := createChallenge(t, s, "individual")

	rec, envelope := doJSON(t, s, http.MethodGet, "/api/v1/challenges", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, envelope.Meta)
	assert.Equal(t, 1, envelope.Meta.TotalCount)

	rec, envelope = doJSON(t, s, http.MethodGet, "/api/v1/challenges/"+id+"?userId=creator", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, true, data["isParticipant"])

	rec, _ = doJSON(t, s, http.MethodGet, "/api/v1/challenges/ghost", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLeaderboardEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	id := createChallenge(t, s, "individual")
	doJSON(t, s, http.MethodPost, "/api/v1/challenges/"+id+"/join", map[string]string{"userId": "user1"}, nil)
	doJSON(t, s, http.MethodPost, "/api/v1/challenges/"+id+"/progress",
		map[string]interface{}{"userId": "user1", "value": 60.0, "mode": "increment"}, nil)

	rec, envelope := doJSON(t, s, http.MethodGet, "/api/v1/challenges/"+id+"/leaderboard", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := envelope.Data.(map[string]interface{})
	entries := data["entries"].([]interface{})
	require.Len(t, entries, 2)
	top := entries[0].(map[string]interface{})
	assert.Equal(t, "user1", top["userId"])
	assert.Equal(t, float64(1), top["rank"])

	// Team scope is rejected on individual challenges.
	rec, envelope = doJSON(t, s, http.MethodGet, "/api/v1/challenges/"+id+"/leaderboard?scope=team", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", envelope.Error.Code)
}

func TestCancelChallengeEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	id := createChallenge(t, s, "individual")

	// Only the creator may cancel.
	rec, envelope := doJSON(t, s, http.MethodPost, "/api/v1/challenges/"+id+"/cancel",
		map[string]string{"requestedBy": "stranger"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", envelope.Error.Code)

	rec, envelope = doJSON(t, s, http.MethodPost, "/api/v1/challenges/"+id+"/cancel",
		map[string]string{"requestedBy": "creator"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, "cancelled", data["challenge"].(map[string]interface{})["status"])
}

func TestAPIKeyMiddleware(t *testing.T) {
	s := newTestServer(t, func(cfg *Config) {
		cfg.APIKeys = []string{"secret-key"}
	})

	// Reads stay open.
	rec, _ := doJSON(t, s, http.MethodGet, "/api/v1/challenges", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Writes require the key.
	rec, envelope := doJSON(t, s, http.MethodPost, "/api/v1/challenges", createChallengeBody("individual"), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", envelope.Error.Code)

	rec, _ = doJSON(t, s, http.MethodPost, "/api/v1/challenges", createChallengeBody("individual"),
		map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = doJSON(t, s, http.MethodPost, "/api/v1/challenges", createChallengeBody("individual"),
		map[string]string{"X-API-Key": "secret-key"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t, nil)

	// A generated ID comes back on the response.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	// A caller-supplied ID is echoed.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "trace-123")
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, "trace-123", rec.Header().Get("X-Request-ID"))
}

func TestHealthAndStatusEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	for _, path := range []string{"/health", "/healthz", "/ready", "/live", "/"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	// Unknown endpoints return the JSON not-found envelope.
	rec, envelope := doJSON(t, s, http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", envelope.Error.Code)
}

func TestHealthChecker(t *testing.T) {
	s := newTestServer(t, nil)
	s.deps.HealthChecker = healthCheckerFunc(func(context.Context) HealthStatus {
		return HealthStatus{Healthy: false, Ready: false, Message: "database down"}
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type healthCheckerFunc func(ctx context.Context) HealthStatus

func (f healthCheckerFunc) Check(ctx context.Context) HealthStatus { return f(ctx) }

func TestRateLimiting(t *testing.T) {
	s := newTestServer(t, func(cfg *Config) {
		cfg.RateLimitPerMinute = 3
	})

	var lastCode int
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.1")
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		lastCode = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, lastCode)

	// Other clients are unaffected.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.2")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSHeaders(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")
}

func TestCORSDisallowedOrigin(t *testing.T) {
	s := newTestServer(t, func(cfg *Config) {
		cfg.AllowedOrigins = []string{"https://app.example.com"}
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	// Generate some traffic first.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		s.Router().ServeHTTP(httptest.NewRecorder(), req)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "challenge_engine_http_requests_total")
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"validation", shared.ErrInvalidChallengeType, http.StatusBadRequest, "validation_error"},
		{"not found", shared.ErrNotFound, http.StatusNotFound, "not_found"},
		{"already joined", shared.ErrAlreadyJoined, http.StatusConflict, "already_exists"},
		{"stale version", shared.ErrOptimisticLock, http.StatusConflict, "conflict"},
		{"private", shared.ErrPrivateChallenge, http.StatusForbidden, "forbidden"},
		{"not joinable", shared.ErrChallengeNotJoinable, http.StatusUnprocessableEntity, "invalid_state"},
		{"unavailable", shared.ErrServiceUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
		{"internal", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, code := errorStatus(tc.err)
		assert.Equal(t, tc.want, status, tc.name)
		assert.Equal(t, tc.code, code, tc.name)
	}
}
