package ledger

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/atm-ledger/internal/domain"
)

// Persister durably writes the committed state. accounts is the full state
// after the commit, sorted by username; changed names the accounts the
// commit touched. Implementations must not retain or modify accounts.
type Persister interface {
	Save(ctx context.Context, accounts []domain.Account, changed []string) error
}

// UpdateFunc receives copies of the locked accounts keyed by username and
// returns the accounts to commit. Returning an error aborts without writing.
type UpdateFunc func(locked map[string]domain.Account) ([]domain.Account, error)

type entry struct {
	mu    sync.Mutex
	state atomic.Pointer[domain.Account]
}

// Store is the in-memory system of record. Writers hold the per-account
// mutexes of every account they touch, taken in username order, then the
// commit mutex, then the map lock. Readers only take the map read lock and
// load the committed value.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry

	commitMu       sync.Mutex
	persister      Persister
	persistTimeout time.Duration
}

// New builds a store over previously loaded accounts. A nil persister keeps
// the store in memory only.
func New(persister Persister, persistTimeout time.Duration, accounts []domain.Account) (*Store, error) {
	s := &Store{
		entries:        make(map[string]*entry, len(accounts)),
		persister:      persister,
		persistTimeout: persistTimeout,
	}

	for _, a := range accounts {
		if a.Username == "" {
			return nil, fmt.Errorf("New: account with empty username: %w", domain.ErrInvalidInput)
		}
		if _, ok := s.entries[a.Username]; ok {
			return nil, fmt.Errorf("New: duplicate account %q: %w", a.Username, domain.ErrInvalidInput)
		}
		if a.Balance.IsNegative() {
			return nil, fmt.Errorf("New: account %q has negative balance: %w", a.Username, domain.ErrInvalidInput)
		}
		s.entries[a.Username] = newEntry(a)
	}
	return s, nil
}

func newEntry(a domain.Account) *entry {
	e := &entry{}
	snapshot := a.Clone()
	e.state.Store(&snapshot)
	return e
}

func (s *Store) lookup(username string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[username]
}

func (s *Store) Exists(username string) bool {
	return s.lookup(username) != nil
}

func (s *Store) Get(username string) (domain.Account, error) {
	e := s.lookup(username)
	if e == nil {
		return domain.Account{}, fmt.Errorf("Get: %w", domain.ErrNotFound)
	}
	return e.state.Load().Clone(), nil
}

func (s *Store) Balance(username string) (decimal.Decimal, error) {
	e := s.lookup(username)
	if e == nil {
		return decimal.Zero, fmt.Errorf("Balance: %w", domain.ErrNotFound)
	}
	return e.state.Load().Balance, nil
}

func (s *Store) History(username string) ([]domain.Transaction, error) {
	e := s.lookup(username)
	if e == nil {
		return nil, fmt.Errorf("History: %w", domain.ErrNotFound)
	}
	return slices.Clone(e.state.Load().Transactions), nil
}

func (s *Store) List() []domain.Summary {
	s.mu.RLock()
	summaries := make([]domain.Summary, 0, len(s.entries))
	for _, e := range s.entries {
		summaries = append(summaries, e.state.Load().Summary())
	}
	s.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Username < summaries[j].Username
	})
	return summaries
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns a copy of every committed account, sorted by username.
func (s *Store) Snapshot() []domain.Account {
	s.mu.RLock()
	accounts := make([]domain.Account, 0, len(s.entries))
	for _, e := range s.entries {
		accounts = append(accounts, e.state.Load().Clone())
	}
	s.mu.RUnlock()

	sortAccounts(accounts)
	return accounts
}

// Create inserts a new account and persists it. The username is reserved
// only once the write has succeeded.
func (s *Store) Create(ctx context.Context, account domain.Account) error {
	if account.Username == "" {
		return fmt.Errorf("Create: %w", domain.ErrInvalidInput)
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if s.Exists(account.Username) {
		return fmt.Errorf("Create: %w", domain.ErrUsernameTaken)
	}

	if err := s.persist(ctx, []domain.Account{account}); err != nil {
		return fmt.Errorf("Create: %w", err)
	}

	s.mu.Lock()
	s.entries[account.Username] = newEntry(account)
	s.mu.Unlock()
	return nil
}

// Update runs fn with the named accounts locked and commits what it returns.
// Every name must exist. Nothing changes in memory unless the write succeeds.
func (s *Store) Update(ctx context.Context, usernames []string, fn UpdateFunc) error {
	names := slices.Clone(usernames)
	slices.Sort(names)
	names = slices.Compact(names)

	locked := make([]*entry, 0, len(names))
	for _, name := range names {
		e := s.lookup(name)
		if e == nil {
			return fmt.Errorf("Update: %q: %w", name, domain.ErrNotFound)
		}
		locked = append(locked, e)
	}

	for _, e := range locked {
		e.mu.Lock()
	}
	defer func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].mu.Unlock()
		}
	}()

	current := make(map[string]domain.Account, len(names))
	for i, name := range names {
		current[name] = locked[i].state.Load().Clone()
	}

	updated, err := fn(current)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if len(updated) == 0 {
		return nil
	}

	for _, a := range updated {
		if _, ok := current[a.Username]; !ok {
			return fmt.Errorf("Update: account %q was not locked", a.Username)
		}
		if a.Balance.IsNegative() {
			return fmt.Errorf("Update: account %q would have negative balance %s", a.Username, a.Balance)
		}
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if err := s.persist(ctx, updated); err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	for _, a := range updated {
		snapshot := a.Clone()
		s.lookup(a.Username).state.Store(&snapshot)
	}
	return nil
}

// persist must be called with commitMu held.
func (s *Store) persist(ctx context.Context, updated []domain.Account) error {
	if s.persister == nil {
		return nil
	}

	overlay := make(map[string]domain.Account, len(updated))
	changed := make([]string, 0, len(updated))
	for _, a := range updated {
		overlay[a.Username] = a
		changed = append(changed, a.Username)
	}
	slices.Sort(changed)

	s.mu.RLock()
	accounts := make([]domain.Account, 0, len(s.entries)+len(updated))
	for name, e := range s.entries {
		if a, ok := overlay[name]; ok {
			accounts = append(accounts, a)
			delete(overlay, name)
			continue
		}
		accounts = append(accounts, *e.state.Load())
	}
	s.mu.RUnlock()
	for _, a := range overlay {
		accounts = append(accounts, a)
	}
	sortAccounts(accounts)

	if s.persistTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.persistTimeout)
		defer cancel()
	}

	if err := s.persister.Save(ctx, accounts, changed); err != nil {
		return fmt.Errorf("persist: %w: %w", domain.ErrPersistence, err)
	}
	return nil
}

func sortAccounts(accounts []domain.Account) {
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Username < accounts[j].Username
	})
}
