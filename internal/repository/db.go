package repository

import (
	"database/sql"
	"sort"

	"github.com/josh-kwaku/atm-ledger/internal/domain"
)

type scanner interface {
	Scan(dest ...any) error
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func sortAccountsByName(accounts []domain.Account) {
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Username < accounts[j].Username
	})
}
