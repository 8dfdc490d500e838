package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUsernameTaken       = errors.New("username already taken")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidAmount       = errors.New("amount must be a positive value with at most two decimal places")
	ErrAuthFailed          = errors.New("incorrect username or password")
	ErrBelowMinimumBalance = errors.New("withdrawal would leave balance below the minimum")
	ErrDailyLimitExceeded  = errors.New("daily withdrawal limit exceeded")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrSelfTransfer        = errors.New("cannot transfer to same account")
	ErrRecipientNotFound   = errors.New("recipient not found")
	ErrPersistence         = errors.New("persistence failure")
)

type DailyLimitError struct {
	Limit          decimal.Decimal
	WithdrawnToday decimal.Decimal
	Remaining      decimal.Decimal
}

func (e *DailyLimitError) Error() string {
	return fmt.Sprintf("daily withdrawal limit exceeded: %s of %s remaining today",
		e.Remaining.StringFixed(2), e.Limit.StringFixed(2))
}

func (e *DailyLimitError) Unwrap() error { return ErrDailyLimitExceeded }
