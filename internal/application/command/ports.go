// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOUND PORTS
// Interfaces the command handlers need from the outside world. Concrete
// implementations live in infrastructure; the handlers only see these.
// ══════════════════════════════════════════════════════════════════════════════

// CreditRequest describes a point credit for the ledger.
type CreditRequest struct {
	// UserID - the user whose balance is credited.
	UserID string

	// Points - the positive delta to credit. The adapter treats
	// non-positive values as a no-op.
	Points int

	// Reason - ledger transaction source, e.g. "challenge_progress".
	Reason string

	// Description - human-readable transaction text shown in balance
	// history, e.g. the challenge name.
	Description string

	// ChallengeID - the challenge the points came from, recorded on the
	// transaction for audit.
	ChallengeID string

	// CorrelationID for tracing.
	CorrelationID string
}

// CreditReceipt is the ledger's acknowledgment of a credit.
type CreditReceipt struct {
	TransactionID string
	BalanceAfter  int
	CreditedAt    time.Time
}

// PointLedger is the port to the external point ledger service.
// Credit is best effort from the progress write's point of view: the caller
// logs failures as warnings and never rolls back the progress state.
type PointLedger interface {
	Credit(ctx context.Context, req CreditRequest) (*CreditReceipt, error)
}

// LeaderboardInvalidator drops cached leaderboard pages for a challenge.
// Cache failures are swallowed; reads fall through to the store.
type LeaderboardInvalidator interface {
	Invalidate(ctx context.Context, challengeID string) error
}
