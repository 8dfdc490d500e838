package service

import (
	"errors"

	"github.com/josh-kwaku/atm-ledger/internal/domain"
)

const (
	OutcomeSuccess     = "success"
	OutcomeInvalid     = "invalid"
	OutcomeNotFound    = "not_found"
	OutcomeAuthFailed  = "auth_failed"
	OutcomeRejected    = "rejected"
	OutcomeConflict    = "conflict"
	OutcomePersistence = "persistence_error"
	OutcomeError       = "error"
)

// Outcome classifies an operation result into a small, fixed label set.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidAmount):
		return OutcomeInvalid
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrRecipientNotFound):
		return OutcomeNotFound
	case errors.Is(err, domain.ErrAuthFailed):
		return OutcomeAuthFailed
	case errors.Is(err, domain.ErrBelowMinimumBalance),
		errors.Is(err, domain.ErrDailyLimitExceeded),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrSelfTransfer):
		return OutcomeRejected
	case errors.Is(err, domain.ErrUsernameTaken):
		return OutcomeConflict
	case errors.Is(err, domain.ErrPersistence):
		return OutcomePersistence
	default:
		return OutcomeError
	}
}
