package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/atm-ledger/internal/domain"
)

const ledgerAccountColumns = `username, salt, password_hash, legacy_password, balance`

// PostgresStore persists accounts in ledger_accounts and their append-only
// logs in ledger_transactions.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("Ping: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ledgerAccountColumns+` FROM ledger_accounts ORDER BY username`,
	)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	index := make(map[string]int)
	for rows.Next() {
		a, err := scanLedgerAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("Load: scan account: %w", err)
		}
		index[a.Username] = len(accounts)
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Load: rows: %w", err)
	}

	txRows, err := s.db.QueryContext(ctx,
		`SELECT username, occurred_at, kind, amount, counterparty
		FROM ledger_transactions ORDER BY username, seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("Load: transactions: %w", err)
	}
	defer txRows.Close()

	for txRows.Next() {
		username, tx, err := scanLedgerTransaction(txRows)
		if err != nil {
			return nil, fmt.Errorf("Load: scan transaction: %w", err)
		}
		i, ok := index[username]
		if !ok {
			return nil, fmt.Errorf("Load: transaction for unknown account %q", username)
		}
		accounts[i].Transactions = append(accounts[i].Transactions, tx)
	}
	if err := txRows.Err(); err != nil {
		return nil, fmt.Errorf("Load: transaction rows: %w", err)
	}

	return accounts, nil
}

// Save writes the changed accounts in one transaction. Logs are append-only,
// so only entries past the stored count are inserted.
func (s *PostgresStore) Save(ctx context.Context, accounts []domain.Account, changed []string) error {
	byName := make(map[string]*domain.Account, len(accounts))
	for i := range accounts {
		byName[accounts[i].Username] = &accounts[i]
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Save: begin: %w", err)
	}
	defer tx.Rollback()

	for _, name := range changed {
		a, ok := byName[name]
		if !ok {
			return fmt.Errorf("Save: changed account %q missing from state", name)
		}
		if err := upsertAccount(ctx, tx, a); err != nil {
			return fmt.Errorf("Save: %w", err)
		}
		if err := appendTransactions(ctx, tx, a); err != nil {
			return fmt.Errorf("Save: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Save: commit: %w", err)
	}
	return nil
}

func upsertAccount(ctx context.Context, tx *sql.Tx, a *domain.Account) error {
	var salt, hash, legacy string
	if a.Credential.IsLegacy() {
		legacy = a.Credential.Password
	} else {
		salt, hash = a.Credential.Salt, a.Credential.Hash
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_accounts (username, salt, password_hash, legacy_password, balance)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (username) DO UPDATE SET
			salt = EXCLUDED.salt,
			password_hash = EXCLUDED.password_hash,
			legacy_password = EXCLUDED.legacy_password,
			balance = EXCLUDED.balance,
			updated_at = now()`,
		a.Username, nullable(salt), nullable(hash), nullable(legacy), a.Balance,
	)
	if err != nil {
		return fmt.Errorf("upsertAccount %q: %w", a.Username, err)
	}
	return nil
}

func appendTransactions(ctx context.Context, tx *sql.Tx, a *domain.Account) error {
	var stored int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_transactions WHERE username = $1`, a.Username,
	).Scan(&stored)
	if err != nil {
		return fmt.Errorf("appendTransactions %q: count: %w", a.Username, err)
	}
	if stored > len(a.Transactions) {
		return fmt.Errorf("appendTransactions %q: %d stored entries but only %d in memory",
			a.Username, stored, len(a.Transactions))
	}

	for seq := stored; seq < len(a.Transactions); seq++ {
		t := a.Transactions[seq]
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_transactions (username, seq, occurred_at, kind, amount, counterparty)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			a.Username, seq, t.Timestamp, string(t.Kind), t.Amount, nullable(t.Counterparty),
		)
		if err != nil {
			return fmt.Errorf("appendTransactions %q: insert %d: %w", a.Username, seq, err)
		}
	}
	return nil
}

func scanLedgerAccount(s scanner) (*domain.Account, error) {
	var (
		a                  domain.Account
		salt, hash, legacy sql.NullString
		balance            decimal.Decimal
	)
	if err := s.Scan(&a.Username, &salt, &hash, &legacy, &balance); err != nil {
		return nil, err
	}
	if legacy.Valid {
		a.Credential = domain.LegacyCredential(legacy.String)
	} else {
		a.Credential = domain.HashedCredential(salt.String, hash.String)
	}
	a.Balance = balance
	return &a, nil
}

func scanLedgerTransaction(s scanner) (string, domain.Transaction, error) {
	var (
		username     string
		t            domain.Transaction
		kind         string
		counterparty sql.NullString
	)
	if err := s.Scan(&username, &t.Timestamp, &kind, &t.Amount, &counterparty); err != nil {
		return "", domain.Transaction{}, err
	}
	t.Kind = domain.TransactionKind(kind)
	t.Counterparty = counterparty.String
	return username, t, nil
}
