package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/atm-ledger/internal/credential"
	"github.com/josh-kwaku/atm-ledger/internal/domain"
)

// FixedTime is the reference instant used by tests that need a stable clock.
var FixedTime = time.Date(2026, 3, 14, 15, 9, 26, 535897000, time.UTC)

func Amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// NewAccount builds an account with a hashed password and, when balance is
// positive, a single opening deposit so the log matches the balance.
func NewAccount(t *testing.T, username, password, balance string) domain.Account {
	t.Helper()

	cred, err := credential.NewHasher().New(password)
	if err != nil {
		t.Fatalf("hash password for %s: %v", username, err)
	}

	a := domain.NewAccount(username, cred)
	if amount := Amount(balance); amount.IsPositive() {
		a.Append(domain.Transaction{
			Timestamp: FixedTime.Add(-72 * time.Hour),
			Kind:      domain.KindDeposit,
			Amount:    amount,
		})
	}
	return a
}

func GetStoredBalance(t *testing.T, db *sql.DB, username string) decimal.Decimal {
	t.Helper()

	var balance decimal.Decimal
	err := db.QueryRow(`SELECT balance FROM ledger_accounts WHERE username = $1`, username).Scan(&balance)
	if err != nil {
		t.Fatalf("get stored balance %s: %v", username, err)
	}
	return balance
}

func CountStoredTransactions(t *testing.T, db *sql.DB, username string) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM ledger_transactions WHERE username = $1`, username).Scan(&count)
	if err != nil {
		t.Fatalf("count stored transactions for %s: %v", username, err)
	}
	return count
}
