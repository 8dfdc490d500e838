package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	Username     string
	Credential   Credential
	Balance      decimal.Decimal
	Transactions []Transaction
}

type Summary struct {
	Username         string
	Balance          decimal.Decimal
	TransactionCount int
}

func NewAccount(username string, cred Credential) Account {
	return Account{
		Username:   username,
		Credential: cred,
		Balance:    decimal.Zero,
	}
}

func (a Account) Clone() Account {
	a.Transactions = slices.Clone(a.Transactions)
	return a
}

// LastActivity is the timestamp of the newest entry, or the zero time for
// an empty log.
func (a Account) LastActivity() time.Time {
	if n := len(a.Transactions); n > 0 {
		return a.Transactions[n-1].Timestamp
	}
	return time.Time{}
}

// Append adds tx to the log and moves the balance by its signed amount. A
// timestamp earlier than the last entry is raised to it so the log stays
// ordered. Policy is not re-checked here.
func (a *Account) Append(tx Transaction) Transaction {
	if n := len(a.Transactions); n > 0 {
		if last := a.Transactions[n-1].Timestamp; tx.Timestamp.Before(last) {
			tx.Timestamp = last
		}
	}
	a.Transactions = append(a.Transactions, tx)
	a.Balance = a.Balance.Add(tx.SignedAmount())
	return tx
}

func (a Account) Summary() Summary {
	return Summary{
		Username:         a.Username,
		Balance:          a.Balance,
		TransactionCount: len(a.Transactions),
	}
}
