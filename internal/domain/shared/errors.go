// Package shared contains common domain types, errors, events, and contracts
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrExpired          = errors.New("expired")

	// Authorization errors
	ErrForbidden = errors.New("forbidden")

	// Concurrency errors
	ErrConflict       = errors.New("concurrent modification detected")
	ErrOptimisticLock = errors.New("optimistic lock failure")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrSideEffectFailed   = errors.New("side effect failed")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "challenge", "participant", "team"
	Op      string // Operation that failed, e.g., "Join", "ApplyProgress"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Challenge domain errors
var (
	ErrChallengeNotFound    = NewDomainError("challenge", "Find", ErrNotFound, "challenge not found")
	ErrChallengeExists      = NewDomainError("challenge", "Create", ErrAlreadyExists, "challenge already exists")
	ErrChallengeNotJoinable = NewDomainError("challenge", "Join", ErrInvalidState, "challenge is no longer available to join")
	ErrInvalidChallengeType = NewDomainError("challenge", "Validate", ErrInvalidInput, "operation not supported for this challenge type")
	ErrEnrollmentFailed     = NewDomainError("challenge", "Create", ErrExternalService, "challenge created but creator enrollment failed; retry join")
	ErrPrivateChallenge     = NewDomainError("challenge", "Join", ErrForbidden, "challenge is private")
)

// Participant domain errors
var (
	ErrParticipantNotFound = NewDomainError("participant", "Find", ErrNotFound, "participant not found")
	ErrAlreadyJoined       = NewDomainError("participant", "Join", ErrAlreadyExists, "user is already participating in this challenge")
	ErrParticipantInactive = NewDomainError("participant", "ApplyProgress", ErrInvalidState, "participant is not active in this challenge")
)

// Team domain errors
var (
	ErrTeamNotFound        = NewDomainError("team", "Find", ErrNotFound, "team not found")
	ErrAlreadyOnTeam       = NewDomainError("team", "AddMember", ErrAlreadyExists, "user already belongs to a team in this challenge")
	ErrCannotRemoveCaptain = NewDomainError("team", "RemoveMember", ErrForbidden, "the team captain cannot be removed")
	ErrNotOnTeam           = NewDomainError("team", "RemoveMember", ErrNotFound, "user is not a member of this team")
)

// External service errors
var (
	ErrLedgerUnavailable  = NewDomainError("ledger", "Credit", ErrServiceUnavailable, "point ledger service is unavailable")
	ErrLedgerRecordFailed = NewDomainError("ledger", "RecordTransaction", ErrSideEffectFailed, "balance credited but transaction record failed")
	ErrBadgeGrantFailed   = NewDomainError("achievements", "Grant", ErrSideEffectFailed, "badge grant failed")
	ErrFeedPublishFailed  = NewDomainError("feed", "Publish", ErrSideEffectFailed, "feed post failed")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsConflict checks if the error is a concurrency conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrOptimisticLock)
}

// IsSideEffect reports whether the error is a best-effort side effect failure
// that must be logged as a warning, never rolled back.
func IsSideEffect(err error) bool {
	return errors.Is(err, ErrSideEffectFailed)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrOptimisticLock)
}
