package command

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fitpulse/challenge-engine/internal/domain/challenge"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/internal/infrastructure/persistence/memory"
	"github.com/fitpulse/challenge-engine/pkg/timeutil"
)

// fixture wires the in-memory stores every handler test runs against.
type fixture struct {
	outbox       *memory.Outbox
	challenges   *memory.ChallengeRepository
	participants *memory.ParticipantRepository
	teams        *memory.TeamRepository
	clock        *timeutil.FrozenClock
	logger       *slog.Logger
}

func newFixture() *fixture {
	outbox := memory.NewOutbox()
	challenges := memory.NewChallengeRepository(outbox)
	participants := memory.NewParticipantRepository(outbox)
	challenges.SetMembership(participants.HasRankedEnrollment)

	return &fixture{
		outbox:       outbox,
		challenges:   challenges,
		participants: participants,
		teams:        memory.NewTeamRepository(outbox),
		clock:        timeutil.NewFrozenClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// seedChallenge stores an active challenge whose window contains the frozen
// clock, with the standard 100-unit goal at 10 points per unit and a 50
// point completion bonus.
func (f *fixture) seedChallenge(t *testing.T, id string, chType challenge.Type) *challenge.Challenge {
	t.Helper()

	ch, err := challenge.NewChallenge(challenge.NewChallengeParams{
		ID:          id,
		CreatorID:   "creator",
		Name:        "Spring Distance Challenge",
		Description: "Cover the distance before the window closes",
		Type:        chType,
		Category:    challenge.Category("running"),
		Rules: challenge.PointRules{
			Goal:          100,
			PointsPerUnit: 10,
			BonusPoints:   50,
		},
		Unit:       "km",
		StartDate:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC),
		Visibility: challenge.VisibilityPublic,
	}, f.clock.Now())
	require.NoError(t, err)
	require.Equal(t, challenge.StatusActive, ch.Status)
	require.NoError(t, f.challenges.Create(context.Background(), ch, nil))
	return ch
}

func (f *fixture) joinHandler() *JoinChallengeHandler {
	return NewJoinChallengeHandler(f.challenges, f.participants, f.clock, f.logger)
}

func (f *fixture) recalculator() *RecalculateTeamHandler {
	return NewRecalculateTeamHandler(f.challenges, f.participants, f.teams, f.clock, f.logger)
}

// eventTypes flattens the outbox into the event type sequence for assertions.
func (f *fixture) eventTypes() []shared.EventType {
	entries := f.outbox.All()
	types := make([]shared.EventType, 0, len(entries))
	for _, e := range entries {
		types = append(types, e.Type)
	}
	return types
}

// stubLedger records credits and optionally fails every call.
type stubLedger struct {
	requests []CreditRequest
	failWith error
	balance  int
}

func (s *stubLedger) Credit(_ context.Context, req CreditRequest) (*CreditReceipt, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.requests = append(s.requests, req)
	s.balance += req.Points
	return &CreditReceipt{
		TransactionID: "txn-1",
		BalanceAfter:  s.balance,
		CreditedAt:    time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}, nil
}

// stubInvalidator records invalidated challenge IDs.
type stubInvalidator struct {
	invalidated []string
}

func (s *stubInvalidator) Invalidate(_ context.Context, challengeID string) error {
	s.invalidated = append(s.invalidated, challengeID)
	return nil
}

var errLedgerDown = errors.New("ledger connection refused")
