package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/atm-ledger/internal/domain"
	"github.com/josh-kwaku/atm-ledger/internal/logging"
)

const (
	timestampLayout = "2006-01-02T15:04:05.000000-07:00"
	filePerm        = 0o600
)

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

type fileAuth struct {
	Salt string `json:"salt"`
	Hash string `json:"hash"`
}

type fileTransaction struct {
	Timestamp string      `json:"timestamp"`
	Type      string      `json:"type"`
	Amount    json.Number `json:"amount"`
	To        string      `json:"to,omitempty"`
	From      string      `json:"from,omitempty"`
}

// unparsedEntry is a history entry that could not be read. It is written back
// verbatim ahead of the typed entry it preceded on disk.
type unparsedEntry struct {
	before int
	raw    json.RawMessage
}

// FileStore keeps every account in one JSON document keyed by username. The
// layout matches the desktop ATM's users.json, including legacy plaintext
// records. Fields it does not manage, such as profile_pic, are carried over
// on every rewrite.
type FileStore struct {
	path string
	loc  *time.Location

	mu       sync.Mutex
	extras   map[string]map[string]json.RawMessage
	unparsed map[string][]unparsedEntry
}

func NewFileStore(path string, loc *time.Location) *FileStore {
	if loc == nil {
		loc = time.Local
	}
	return &FileStore{
		path:     path,
		loc:      loc,
		extras:   make(map[string]map[string]json.RawMessage),
		unparsed: make(map[string][]unparsedEntry),
	}
}

func (s *FileStore) Path() string {
	return s.path
}

// Load returns no accounts when the file does not exist yet and
// ErrCorruptStore when the document or an account record cannot be decoded.
// History entries it cannot read are logged and kept for the next Save.
func (s *FileStore) Load(ctx context.Context) ([]domain.Account, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("Load: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var raw map[string]map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("Load: %w: %w", ErrCorruptStore, err)
	}

	accounts := make([]domain.Account, 0, len(raw))
	extras := make(map[string]map[string]json.RawMessage, len(raw))
	unparsed := make(map[string][]unparsedEntry)
	for username, record := range raw {
		acct, extra, skipped, err := s.decodeUser(ctx, username, record)
		if err != nil {
			return nil, fmt.Errorf("Load: user %q: %w: %w", username, ErrCorruptStore, err)
		}
		accounts = append(accounts, acct)
		if len(extra) > 0 {
			extras[username] = extra
		}
		if len(skipped) > 0 {
			unparsed[username] = skipped
		}
	}
	sortAccountsByName(accounts)

	s.mu.Lock()
	s.extras = extras
	s.unparsed = unparsed
	s.mu.Unlock()

	return accounts, nil
}

func (s *FileStore) decodeUser(ctx context.Context, username string, record map[string]json.RawMessage) (domain.Account, map[string]json.RawMessage, []unparsedEntry, error) {
	if username == "" {
		return domain.Account{}, nil, nil, errors.New("empty username")
	}
	if record == nil {
		return domain.Account{}, nil, nil, errors.New("record is not an object")
	}

	extra := maps.Clone(record)
	acct := domain.Account{Username: username, Balance: decimal.Zero}
	var skipped []unparsedEntry

	if rawAuth, ok := record["auth"]; ok {
		var auth fileAuth
		if err := json.Unmarshal(rawAuth, &auth); err != nil {
			return domain.Account{}, nil, nil, fmt.Errorf("auth: %w", err)
		}
		acct.Credential = domain.HashedCredential(auth.Salt, auth.Hash)
		delete(extra, "auth")
		delete(extra, "password")
	} else if rawPassword, ok := record["password"]; ok {
		var password string
		if err := json.Unmarshal(rawPassword, &password); err != nil {
			return domain.Account{}, nil, nil, fmt.Errorf("password: %w", err)
		}
		acct.Credential = domain.LegacyCredential(password)
		delete(extra, "password")
	} else {
		return domain.Account{}, nil, nil, errors.New("no credential")
	}

	if rawBalance, ok := record["balance"]; ok {
		balance, err := decodeNumber(rawBalance)
		if err != nil {
			return domain.Account{}, nil, nil, fmt.Errorf("balance: %w", err)
		}
		if balance.IsNegative() {
			return domain.Account{}, nil, nil, fmt.Errorf("negative balance %s", balance)
		}
		acct.Balance = balance
		delete(extra, "balance")
	}

	if rawTxs, ok := record["transactions"]; ok {
		var entries []json.RawMessage
		if err := json.Unmarshal(rawTxs, &entries); err != nil {
			return domain.Account{}, nil, nil, fmt.Errorf("transactions: %w", err)
		}
		for i, entry := range entries {
			tx, err := s.decodeTransaction(entry)
			if err != nil {
				logging.FromContext(ctx).Warn("keeping unreadable history entry as is",
					"username", username,
					"index", i,
					"error", err,
				)
				skipped = append(skipped, unparsedEntry{before: len(acct.Transactions), raw: entry})
				continue
			}
			acct.Transactions = append(acct.Transactions, tx)
		}
		delete(extra, "transactions")
	}

	return acct, extra, skipped, nil
}

func (s *FileStore) decodeTransaction(raw json.RawMessage) (domain.Transaction, error) {
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '{' {
		return domain.Transaction{}, errors.New("not an object")
	}

	var ft fileTransaction
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&ft); err != nil {
		return domain.Transaction{}, err
	}

	kind := domain.TransactionKind(ft.Type)
	if !kind.IsValid() {
		return domain.Transaction{}, fmt.Errorf("unknown type %q", ft.Type)
	}

	amount, err := decimal.NewFromString(ft.Amount.String())
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("amount: %w", err)
	}
	if !amount.IsPositive() {
		return domain.Transaction{}, fmt.Errorf("non-positive amount %s", amount)
	}

	ts, err := s.parseTimestamp(ft.Timestamp)
	if err != nil {
		return domain.Transaction{}, err
	}

	tx := domain.Transaction{Timestamp: ts, Kind: kind, Amount: amount}
	switch kind {
	case domain.KindTransferOut:
		tx.Counterparty = ft.To
	case domain.KindTransferIn:
		tx.Counterparty = ft.From
	}
	return tx, nil
}

func (s *FileStore) parseTimestamp(v string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return ts, nil
	}
	for _, layout := range naiveLayouts {
		if ts, err := time.ParseInLocation(layout, v, s.loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", v)
}

func decodeNumber(raw json.RawMessage) (decimal.Decimal, error) {
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(n.String())
}

// Save rewrites the whole document. The new content goes to a temporary file
// in the same directory which then replaces the old one.
func (s *FileStore) Save(ctx context.Context, accounts []domain.Account, _ []string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("Save: %w", err)
	}

	data, err := s.encode(accounts)
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}

	if err := writeAtomic(s.path, data); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

func (s *FileStore) encode(accounts []domain.Account) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := make(map[string]map[string]any, len(accounts))
	for _, a := range accounts {
		record := make(map[string]any, 4+len(s.extras[a.Username]))
		for k, v := range s.extras[a.Username] {
			record[k] = v
		}

		if a.Credential.IsLegacy() {
			record["password"] = a.Credential.Password
		} else {
			record["auth"] = fileAuth{Salt: a.Credential.Salt, Hash: a.Credential.Hash}
		}
		record["balance"] = json.Number(a.Balance.String())

		pending := s.unparsed[a.Username]
		txs := make([]any, 0, len(a.Transactions)+len(pending))
		for i, tx := range a.Transactions {
			for len(pending) > 0 && pending[0].before <= i {
				txs = append(txs, pending[0].raw)
				pending = pending[1:]
			}
			txs = append(txs, s.encodeTransaction(tx))
		}
		for _, u := range pending {
			txs = append(txs, u.raw)
		}
		record["transactions"] = txs

		doc[a.Username] = record
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *FileStore) encodeTransaction(tx domain.Transaction) fileTransaction {
	ft := fileTransaction{
		Timestamp: tx.Timestamp.In(s.loc).Format(timestampLayout),
		Type:      string(tx.Kind),
		Amount:    json.Number(tx.Amount.String()),
	}
	switch tx.Kind {
	case domain.KindTransferOut:
		ft.To = tx.Counterparty
	case domain.KindTransferIn:
		ft.From = tx.Counterparty
	}
	return ft
}

func writeAtomic(path string, data []byte) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return fmt.Errorf("writeAtomic: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writeAtomic: write: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("writeAtomic: sync: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("writeAtomic: close: %w", err)
	}
	if err = os.Chmod(tmpName, filePerm); err != nil {
		return fmt.Errorf("writeAtomic: chmod: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("writeAtomic: rename: %w", err)
	}
	return nil
}

// Quarantine moves an undecodable file aside so a fresh store can start
// without overwriting it. It returns the new location.
func (s *FileStore) Quarantine() (string, error) {
	target := fmt.Sprintf("%s.corrupt-%s", s.path, time.Now().Format("20060102T150405"))
	if err := os.Rename(s.path, target); err != nil {
		return "", fmt.Errorf("Quarantine: %w", err)
	}
	return target, nil
}

// Ping reports whether the store directory is reachable.
func (s *FileStore) Ping(context.Context) error {
	dir := filepath.Dir(s.path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("Ping: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("Ping: %s is not a directory", dir)
	}
	return nil
}
