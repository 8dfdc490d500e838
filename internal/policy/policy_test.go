package policy

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/atm-ledger/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func withdrawal(ts time.Time, amount string) domain.Transaction {
	return domain.Transaction{Timestamp: ts, Kind: domain.KindWithdrawal, Amount: d(amount)}
}

func TestCheckAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantErr error
	}{
		{name: "one cent", amount: "0.01"},
		{name: "whole units", amount: "250"},
		{name: "two decimals", amount: "19.99"},
		{name: "trailing zeros", amount: "5.100"},
		{name: "zero", amount: "0", wantErr: domain.ErrInvalidAmount},
		{name: "negative", amount: "-1", wantErr: domain.ErrInvalidAmount},
		{name: "sub cent", amount: "0.005", wantErr: domain.ErrInvalidAmount},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckAmount(d(tc.amount))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCanWithdraw_MinimumBalance(t *testing.T) {
	limits := DefaultLimits()
	now := time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)
	limits.Location = time.UTC

	err := limits.CanWithdraw(d("50.00"), nil, d("41.00"), now)
	require.ErrorIs(t, err, domain.ErrBelowMinimumBalance)

	err = limits.CanWithdraw(d("50.00"), nil, d("40.00"), now)
	require.NoError(t, err)
}

func TestCanWithdraw_DailyLimit(t *testing.T) {
	limits := DefaultLimits()
	limits.Location = time.UTC
	now := time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)

	history := []domain.Transaction{
		withdrawal(now.Add(-48*time.Hour), "700"),
		withdrawal(now.Add(-3*time.Hour), "500"),
		{Timestamp: now.Add(-2 * time.Hour), Kind: domain.KindDeposit, Amount: d("300")},
		withdrawal(now.Add(-time.Hour), "400"),
	}

	err := limits.CanWithdraw(d("5000"), history, d("150"), now)
	require.ErrorIs(t, err, domain.ErrDailyLimitExceeded)

	var dle *domain.DailyLimitError
	require.True(t, errors.As(err, &dle))
	assert.True(t, d("100").Equal(dle.Remaining), "remaining = %s", dle.Remaining)
	assert.True(t, d("900").Equal(dle.WithdrawnToday))
	assert.True(t, d("1000").Equal(dle.Limit))

	require.NoError(t, limits.CanWithdraw(d("5000"), history, d("100"), now))
}

func TestCanWithdraw_MinimumBalanceCheckedFirst(t *testing.T) {
	limits := DefaultLimits()
	limits.Location = time.UTC
	now := time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)
	history := []domain.Transaction{withdrawal(now.Add(-time.Minute), "1000")}

	err := limits.CanWithdraw(d("20"), history, d("15"), now)
	require.ErrorIs(t, err, domain.ErrBelowMinimumBalance)
	assert.False(t, errors.Is(err, domain.ErrDailyLimitExceeded))
}

func TestWithdrawnOn_UsesConfiguredZone(t *testing.T) {
	zone := time.FixedZone("UTC+5", 5*60*60)
	limits := Limits{MinBalance: DefaultMinBalance, DailyLimit: DefaultDailyLimit, Location: zone}

	// 21:00 UTC on the 9th is 02:00 on the 10th in UTC+5.
	history := []domain.Transaction{
		withdrawal(time.Date(2026, 5, 9, 18, 0, 0, 0, time.UTC), "200"),
		withdrawal(time.Date(2026, 5, 9, 21, 0, 0, 0, time.UTC), "300"),
	}
	now := time.Date(2026, 5, 10, 6, 0, 0, 0, time.UTC)

	assert.True(t, d("300").Equal(limits.WithdrawnOn(history, now)))
	assert.True(t, d("700").Equal(limits.RemainingToday(history, now)))
}

func TestRemainingToday_NeverNegative(t *testing.T) {
	limits := Limits{MinBalance: DefaultMinBalance, DailyLimit: d("100"), Location: time.UTC}
	now := time.Date(2026, 5, 10, 6, 0, 0, 0, time.UTC)
	history := []domain.Transaction{withdrawal(now, "150")}

	assert.True(t, decimal.Zero.Equal(limits.RemainingToday(history, now)))
}

func TestCanDeposit(t *testing.T) {
	require.NoError(t, CanDeposit(d("10")))
	require.ErrorIs(t, CanDeposit(d("0")), domain.ErrInvalidAmount)
}

func TestCanTransfer(t *testing.T) {
	tests := []struct {
		name            string
		balance         string
		amount          string
		sender          string
		recipient       string
		recipientExists bool
		wantErr         error
	}{
		{name: "valid", balance: "100", amount: "60", sender: "a", recipient: "b", recipientExists: true},
		{name: "entire balance", balance: "100", amount: "100", sender: "a", recipient: "b", recipientExists: true},
		{name: "insufficient funds", balance: "100", amount: "100.01", sender: "a", recipient: "b", recipientExists: true, wantErr: domain.ErrInsufficientFunds},
		{name: "self transfer before funds", balance: "0", amount: "10", sender: "a", recipient: "a", recipientExists: true, wantErr: domain.ErrSelfTransfer},
		{name: "missing recipient before funds", balance: "0", amount: "10", sender: "a", recipient: "ghost", recipientExists: false, wantErr: domain.ErrRecipientNotFound},
		{name: "invalid amount", balance: "100", amount: "-5", sender: "a", recipient: "b", recipientExists: true, wantErr: domain.ErrInvalidAmount},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CanTransfer(d(tc.balance), d(tc.amount), tc.sender, tc.recipient, tc.recipientExists)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}
