package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountAppend(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	acct := NewAccount("alice", HashedCredential("s", "h"))
	acct.Append(Transaction{Timestamp: base, Kind: KindDeposit, Amount: decimal.RequireFromString("100")})
	acct.Append(Transaction{Timestamp: base.Add(time.Minute), Kind: KindWithdrawal, Amount: decimal.RequireFromString("30.50")})
	acct.Append(Transaction{Timestamp: base.Add(2 * time.Minute), Kind: KindTransferIn, Amount: decimal.RequireFromString("5"), Counterparty: "bob"})
	acct.Append(Transaction{Timestamp: base.Add(3 * time.Minute), Kind: KindTransferOut, Amount: decimal.RequireFromString("10"), Counterparty: "bob"})

	assert.True(t, decimal.RequireFromString("64.50").Equal(acct.Balance), "balance = %s", acct.Balance)
	assert.Len(t, acct.Transactions, 4)
}

func TestAccountAppend_ClampsBackwardsClock(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	acct := NewAccount("alice", HashedCredential("s", "h"))
	acct.Append(Transaction{Timestamp: base, Kind: KindDeposit, Amount: decimal.NewFromInt(1)})
	got := acct.Append(Transaction{Timestamp: base.Add(-time.Hour), Kind: KindDeposit, Amount: decimal.NewFromInt(1)})

	assert.Equal(t, base, got.Timestamp)
	assert.Equal(t, base, acct.Transactions[1].Timestamp)
}

func TestAccountClone_IsIndependent(t *testing.T) {
	acct := NewAccount("alice", HashedCredential("s", "h"))
	acct.Append(Transaction{Timestamp: time.Now(), Kind: KindDeposit, Amount: decimal.NewFromInt(5)})

	clone := acct.Clone()
	clone.Append(Transaction{Timestamp: time.Now(), Kind: KindDeposit, Amount: decimal.NewFromInt(5)})

	assert.Len(t, acct.Transactions, 1)
	assert.Len(t, clone.Transactions, 2)
	assert.True(t, decimal.NewFromInt(5).Equal(acct.Balance))
}

func TestDailyLimitError(t *testing.T) {
	var err error = &DailyLimitError{
		Limit:          decimal.RequireFromString("1000"),
		WithdrawnToday: decimal.RequireFromString("900"),
		Remaining:      decimal.RequireFromString("100"),
	}
	wrapped := fmt.Errorf("Withdraw: %w", err)

	require.ErrorIs(t, wrapped, ErrDailyLimitExceeded)

	var dle *DailyLimitError
	require.True(t, errors.As(wrapped, &dle))
	assert.Equal(t, "100.00", dle.Remaining.StringFixed(2))
}

func TestTransactionKind(t *testing.T) {
	tests := []struct {
		kind         TransactionKind
		valid        bool
		credit       bool
		counterparty bool
	}{
		{KindDeposit, true, true, false},
		{KindWithdrawal, true, false, false},
		{KindTransferOut, true, false, true},
		{KindTransferIn, true, true, true},
		{TransactionKind("refund"), false, false, false},
	}

	for _, tc := range tests {
		t.Run(string(tc.kind), func(t *testing.T) {
			assert.Equal(t, tc.valid, tc.kind.IsValid())
			assert.Equal(t, tc.credit, tc.kind.IsCredit())
			assert.Equal(t, tc.counterparty, tc.kind.HasCounterparty())
		})
	}
}
