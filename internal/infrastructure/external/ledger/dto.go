package ledger

import "time"

// ══════════════════════════════════════════════════════════════════════════════
// DATA TRANSFER OBJECTS
// Wire types for the point ledger HTTP API.
// ══════════════════════════════════════════════════════════════════════════════

// CreditBalanceRequestDTO is the body of POST /users/{id}/balance/credit.
type CreditBalanceRequestDTO struct {
	Amount        int    `json:"amount"`
	Source        string `json:"source"`
	ReferenceID   string `json:"referenceId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// CreditBalanceResponseDTO is the ledger's credit acknowledgment.
type CreditBalanceResponseDTO struct {
	UserID       string    `json:"userId"`
	BalanceAfter int       `json:"balanceAfter"`
	CreditedAt   time.Time `json:"creditedAt"`
}

// TransactionTypeEarn marks points flowing into a balance.
const TransactionTypeEarn = "earn"

// TransactionRequestDTO is the body of POST /transactions.
type TransactionRequestDTO struct {
	UserID        string    `json:"userId"`
	Points        int       `json:"points"`
	Type          string    `json:"type"`
	Source        string    `json:"source"`
	Description   string    `json:"description,omitempty"`
	BalanceAfter  int       `json:"balanceAfter"`
	ReferenceID   string    `json:"referenceId,omitempty"`
	CorrelationID string    `json:"correlationId,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// TransactionResponseDTO identifies the recorded transaction.
type TransactionResponseDTO struct {
	TransactionID string    `json:"transactionId"`
	RecordedAt    time.Time `json:"recordedAt"`
}

// APIErrorDTO is the ledger's error body.
type APIErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIErrorDTO) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}
