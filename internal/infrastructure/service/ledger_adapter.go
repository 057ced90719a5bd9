// Package service adapts external clients to the ports the application
// layer defines. Adapters translate wire DTOs to application types and
// attach the domain error kinds callers dispatch on.
package service

import (
	"context"
	"log/slog"

	"github.com/fitpulse/challenge-engine/internal/application/command"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/internal/infrastructure/external/ledger"
	"github.com/fitpulse/challenge-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// POINT LEDGER ADAPTER
// ══════════════════════════════════════════════════════════════════════════════

// LedgerAdapter implements command.PointLedger over the ledger HTTP client.
// A credit is two calls: the balance credit and the transaction record.
// When the record fails after the credit landed, the receipt is returned
// together with shared.ErrLedgerRecordFailed so the caller can log exactly
// what state the ledger is in.
type LedgerAdapter struct {
	client *ledger.Client
	clock  timeutil.Clock
	logger *slog.Logger
}

// NewLedgerAdapter creates a new LedgerAdapter.
func NewLedgerAdapter(client *ledger.Client, clock timeutil.Clock, logger *slog.Logger) *LedgerAdapter {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &LedgerAdapter{
		client: client,
		clock:  clock,
		logger: logger.With("component", "ledger_adapter"),
	}
}

// Credit credits points to the user's balance and records the transaction.
func (a *LedgerAdapter) Credit(ctx context.Context, req command.CreditRequest) (*command.CreditReceipt, error) {
	if req.Points <= 0 {
		return nil, nil
	}

	creditResp, err := a.client.CreditBalance(ctx, req.UserID, ledger.CreditBalanceRequestDTO{
		Amount:        req.Points,
		Source:        req.Reason,
		ReferenceID:   req.ChallengeID,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		return nil, shared.WrapError("ledger", "credit", shared.ErrServiceUnavailable,
			"balance credit failed", err)
	}

	receipt := &command.CreditReceipt{
		BalanceAfter: creditResp.BalanceAfter,
		CreditedAt:   creditResp.CreditedAt,
	}
	if receipt.CreditedAt.IsZero() {
		receipt.CreditedAt = a.clock.Now()
	}

	txResp, err := a.client.RecordTransaction(ctx, ledger.TransactionRequestDTO{
		UserID:        req.UserID,
		Points:        req.Points,
		Type:          ledger.TransactionTypeEarn,
		Source:        req.Reason,
		Description:   req.Description,
		BalanceAfter:  creditResp.BalanceAfter,
		ReferenceID:   req.ChallengeID,
		CorrelationID: req.CorrelationID,
		OccurredAt:    receipt.CreditedAt,
	})
	if err != nil {
		a.logger.Warn("transaction record failed after credit",
			"user_id", req.UserID,
			"points", req.Points,
			"error", err,
		)
		return receipt, shared.WrapError("ledger", "record_transaction",
			shared.ErrSideEffectFailed, "balance credited but transaction record failed", err)
	}

	receipt.TransactionID = txResp.TransactionID
	return receipt, nil
}
