package policy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/atm-ledger/internal/domain"
)

const dayLayout = "2006-01-02"

var (
	DefaultMinBalance = decimal.RequireFromString("10.00")
	DefaultDailyLimit = decimal.RequireFromString("1000.00")
)

// Limits holds the rule parameters. Location decides which calendar day a
// withdrawal counts against.
type Limits struct {
	MinBalance decimal.Decimal
	DailyLimit decimal.Decimal
	Location   *time.Location
}

func DefaultLimits() Limits {
	return Limits{
		MinBalance: DefaultMinBalance,
		DailyLimit: DefaultDailyLimit,
		Location:   time.Local,
	}
}

func (l Limits) location() *time.Location {
	if l.Location == nil {
		return time.Local
	}
	return l.Location
}

// CheckAmount rejects zero, negative and sub-cent amounts.
func CheckAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("CheckAmount: %w", domain.ErrInvalidAmount)
	}
	if !amount.Equal(amount.Truncate(2)) {
		return fmt.Errorf("CheckAmount: %w", domain.ErrInvalidAmount)
	}
	return nil
}

func CanDeposit(amount decimal.Decimal) error {
	if err := CheckAmount(amount); err != nil {
		return fmt.Errorf("CanDeposit: %w", err)
	}
	return nil
}

// CanWithdraw applies the minimum-balance rule first, then the daily cap.
func (l Limits) CanWithdraw(balance decimal.Decimal, history []domain.Transaction, amount decimal.Decimal, now time.Time) error {
	if err := CheckAmount(amount); err != nil {
		return fmt.Errorf("CanWithdraw: %w", err)
	}

	if balance.Sub(amount).LessThan(l.MinBalance) {
		return fmt.Errorf("CanWithdraw: %w", domain.ErrBelowMinimumBalance)
	}

	withdrawn := l.WithdrawnOn(history, now)
	if withdrawn.Add(amount).GreaterThan(l.DailyLimit) {
		return fmt.Errorf("CanWithdraw: %w", &domain.DailyLimitError{
			Limit:          l.DailyLimit,
			WithdrawnToday: withdrawn,
			Remaining:      decimal.Max(decimal.Zero, l.DailyLimit.Sub(withdrawn)),
		})
	}
	return nil
}

// WithdrawnOn sums the withdrawals recorded on the same local day as now.
// History is ordered, so the scan stops at the first entry from an earlier day.
func (l Limits) WithdrawnOn(history []domain.Transaction, now time.Time) decimal.Decimal {
	loc := l.location()
	today := now.In(loc).Format(dayLayout)

	total := decimal.Zero
	for i := len(history) - 1; i >= 0; i-- {
		tx := history[i]
		day := tx.Timestamp.In(loc).Format(dayLayout)
		if day < today {
			break
		}
		if day == today && tx.Kind == domain.KindWithdrawal {
			total = total.Add(tx.Amount)
		}
	}
	return total
}

// RemainingToday is the part of the daily cap still available.
func (l Limits) RemainingToday(history []domain.Transaction, now time.Time) decimal.Decimal {
	return decimal.Max(decimal.Zero, l.DailyLimit.Sub(l.WithdrawnOn(history, now)))
}

// CanTransfer checks the recipient before the sender's funds. Transfers are
// not held to the minimum balance.
func CanTransfer(senderBalance, amount decimal.Decimal, sender, recipient string, recipientExists bool) error {
	if sender == recipient {
		return fmt.Errorf("CanTransfer: %w", domain.ErrSelfTransfer)
	}
	if !recipientExists {
		return fmt.Errorf("CanTransfer: %w", domain.ErrRecipientNotFound)
	}
	if err := CheckAmount(amount); err != nil {
		return fmt.Errorf("CanTransfer: %w", err)
	}
	if amount.GreaterThan(senderBalance) {
		return fmt.Errorf("CanTransfer: %w", domain.ErrInsufficientFunds)
	}
	return nil
}
