package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/atm-ledger/internal/domain"
	"github.com/josh-kwaku/atm-ledger/internal/ledger"
)

type ledgerStore interface {
	Exists(username string) bool
	Get(username string) (domain.Account, error)
	Balance(username string) (decimal.Decimal, error)
	History(username string) ([]domain.Transaction, error)
	List() []domain.Summary
	Create(ctx context.Context, account domain.Account) error
	Update(ctx context.Context, usernames []string, fn ledger.UpdateFunc) error
}

type credentialHasher interface {
	New(password string) (domain.Credential, error)
	Verify(cred domain.Credential, password string) bool
}

type operationObserver interface {
	ObserveOperation(operation, outcome string)
}
