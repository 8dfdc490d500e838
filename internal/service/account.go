package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/atm-ledger/internal/credential"
	"github.com/josh-kwaku/atm-ledger/internal/domain"
	"github.com/josh-kwaku/atm-ledger/internal/logging"
	"github.com/josh-kwaku/atm-ledger/internal/policy"
)

// Verified against when the username is unknown so both failure paths do
// the same hashing work.
var decoyCredential = domain.HashedCredential(
	"5f0c4cf4d5b0b7e0e2b1a9d3c8e7f6a1",
	"0000000000000000000000000000000000000000000000000000000000000000",
)

type Option func(*AccountService)

func WithClock(now func() time.Time) Option {
	return func(s *AccountService) { s.now = now }
}

func WithObserver(o operationObserver) Option {
	return func(s *AccountService) { s.observer = o }
}

// AccountService is the only entry point for reading and changing accounts.
type AccountService struct {
	store    ledgerStore
	hasher   credentialHasher
	limits   policy.Limits
	now      func() time.Time
	observer operationObserver
}

func NewAccountService(store ledgerStore, hasher credentialHasher, limits policy.Limits, opts ...Option) *AccountService {
	s := &AccountService{
		store:  store,
		hasher: hasher,
		limits: limits,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// timestamp is truncated to microseconds, the precision both stores keep.
func (s *AccountService) timestamp() time.Time {
	return s.now().Truncate(time.Microsecond)
}

func (s *AccountService) observe(operation string, err error) {
	if s.observer != nil {
		s.observer.ObserveOperation(operation, Outcome(err))
	}
}

func (s *AccountService) Limits() policy.Limits {
	return s.limits
}

func (s *AccountService) Register(ctx context.Context, username, password string) (err error) {
	defer func() { s.observe("register", err) }()
	log := logging.FromContext(ctx)

	if strings.TrimSpace(username) == "" || password == "" {
		return fmt.Errorf("Register: username and password are required: %w", domain.ErrInvalidInput)
	}
	if s.store.Exists(username) {
		return fmt.Errorf("Register: %w", domain.ErrUsernameTaken)
	}

	cred, err := s.hasher.New(password)
	if err != nil {
		return fmt.Errorf("Register: %w", err)
	}

	if err := s.store.Create(ctx, domain.NewAccount(username, cred)); err != nil {
		return fmt.Errorf("Register: %w", err)
	}

	log.Info("account registered", "username", username)
	return nil
}

// Authenticate answers ErrAuthFailed for both unknown users and wrong
// passwords. A legacy plaintext record is replaced by a salted hash after a
// successful check; if that write fails the login still succeeds.
func (s *AccountService) Authenticate(ctx context.Context, username, password string) (err error) {
	defer func() { s.observe("authenticate", err) }()
	log := logging.FromContext(ctx)

	acct, err := s.store.Get(username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.hasher.Verify(decoyCredential, password)
			return fmt.Errorf("Authenticate: %w", domain.ErrAuthFailed)
		}
		return fmt.Errorf("Authenticate: %w", err)
	}

	if !s.hasher.Verify(acct.Credential, password) {
		log.Warn("authentication failed", "username", username)
		return fmt.Errorf("Authenticate: %w", domain.ErrAuthFailed)
	}

	if acct.Credential.IsLegacy() {
		if err := s.migrateLegacy(ctx, username, password); err != nil {
			log.Warn("legacy credential migration failed", "username", username, "error", err)
		} else {
			log.Info("legacy credential migrated", "username", username)
		}
	}
	return nil
}

func (s *AccountService) migrateLegacy(ctx context.Context, username, password string) error {
	cred, err := s.hasher.New(password)
	if err != nil {
		return fmt.Errorf("migrateLegacy: %w", err)
	}

	err = s.store.Update(ctx, []string{username}, func(locked map[string]domain.Account) ([]domain.Account, error) {
		a := locked[username]
		if !a.Credential.IsLegacy() || !s.hasher.Verify(a.Credential, password) {
			return nil, nil
		}
		a.Credential = cred
		return []domain.Account{a}, nil
	})
	if err != nil {
		return fmt.Errorf("migrateLegacy: %w", err)
	}
	return nil
}

// ChangePassword requires the current password. The old credential stays in
// effect until the new one is persisted.
func (s *AccountService) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) (err error) {
	defer func() { s.observe("change_password", err) }()

	if newPassword == "" {
		return fmt.Errorf("ChangePassword: new password is required: %w", domain.ErrInvalidInput)
	}

	cred, err := s.hasher.New(newPassword)
	if err != nil {
		return fmt.Errorf("ChangePassword: %w", err)
	}

	err = s.store.Update(ctx, []string{username}, func(locked map[string]domain.Account) ([]domain.Account, error) {
		a := locked[username]
		if !s.hasher.Verify(a.Credential, oldPassword) {
			return nil, domain.ErrAuthFailed
		}
		a.Credential = cred
		return []domain.Account{a}, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("ChangePassword: %w", domain.ErrAuthFailed)
		}
		return fmt.Errorf("ChangePassword: %w", err)
	}

	logging.FromContext(ctx).Info("password changed", "username", username)
	return nil
}

// ResetPassword is the recovery flow. Unlike login it reports unknown users
// with ErrNotFound.
func (s *AccountService) ResetPassword(ctx context.Context, username, newPassword string) (err error) {
	defer func() { s.observe("reset_password", err) }()

	if newPassword == "" {
		return fmt.Errorf("ResetPassword: new password is required: %w", domain.ErrInvalidInput)
	}
	if !s.store.Exists(username) {
		return fmt.Errorf("ResetPassword: %w", domain.ErrNotFound)
	}

	cred, err := s.hasher.New(newPassword)
	if err != nil {
		return fmt.Errorf("ResetPassword: %w", err)
	}

	err = s.store.Update(ctx, []string{username}, func(locked map[string]domain.Account) ([]domain.Account, error) {
		a := locked[username]
		a.Credential = cred
		return []domain.Account{a}, nil
	})
	if err != nil {
		return fmt.Errorf("ResetPassword: %w", err)
	}

	logging.FromContext(ctx).Info("password reset", "username", username)
	return nil
}

// CredentialVersion identifies the user's current password. Sessions issued
// under a different version are no longer honoured.
func (s *AccountService) CredentialVersion(_ context.Context, username string) (string, error) {
	acct, err := s.store.Get(username)
	if err != nil {
		return "", fmt.Errorf("CredentialVersion: %w", err)
	}
	return credential.Version(acct.Credential), nil
}

func (s *AccountService) Balance(_ context.Context, username string) (decimal.Decimal, error) {
	balance, err := s.store.Balance(username)
	if err != nil {
		return decimal.Zero, fmt.Errorf("Balance: %w", err)
	}
	return balance, nil
}

// History returns the log oldest first.
func (s *AccountService) History(_ context.Context, username string) ([]domain.Transaction, error) {
	history, err := s.store.History(username)
	if err != nil {
		return nil, fmt.Errorf("History: %w", err)
	}
	return history, nil
}

// RemainingDailyLimit reports how much more the user may withdraw today.
func (s *AccountService) RemainingDailyLimit(_ context.Context, username string) (decimal.Decimal, error) {
	history, err := s.store.History(username)
	if err != nil {
		return decimal.Zero, fmt.Errorf("RemainingDailyLimit: %w", err)
	}
	return s.limits.RemainingToday(history, s.timestamp()), nil
}

func (s *AccountService) ListAccounts(_ context.Context) []domain.Summary {
	return s.store.List()
}
