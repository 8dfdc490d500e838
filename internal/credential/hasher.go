package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/josh-kwaku/atm-ledger/internal/domain"
)

const saltBytes = 16

// Hasher produces and checks the salted SHA-256 records stored per user:
// salt is 16 random bytes hex-encoded, hash is hex(sha256(password + salt)).
type Hasher struct {
	random io.Reader
}

func NewHasher() *Hasher {
	return &Hasher{random: rand.Reader}
}

// NewHasherWithSource is used by tests that need deterministic salts.
func NewHasherWithSource(r io.Reader) *Hasher {
	return &Hasher{random: r}
}

func (h *Hasher) New(password string) (domain.Credential, error) {
	if password == "" {
		return domain.Credential{}, fmt.Errorf("New: empty password: %w", domain.ErrInvalidInput)
	}

	buf := make([]byte, saltBytes)
	if _, err := io.ReadFull(h.random, buf); err != nil {
		return domain.Credential{}, fmt.Errorf("New: read salt: %w", err)
	}
	salt := hex.EncodeToString(buf)

	return domain.HashedCredential(salt, Digest(password, salt)), nil
}

func (h *Hasher) Verify(cred domain.Credential, password string) bool {
	switch cred.Kind {
	case domain.CredentialLegacy:
		if cred.Password == "" {
			return false
		}
		return subtle.ConstantTimeCompare([]byte(cred.Password), []byte(password)) == 1
	case domain.CredentialHashed:
		if cred.Salt == "" || cred.Hash == "" {
			return false
		}
		return subtle.ConstantTimeCompare([]byte(cred.Hash), []byte(Digest(password, cred.Salt))) == 1
	default:
		return false
	}
}

func Digest(password, salt string) string {
	sum := sha256.Sum256([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

// Version identifies a credential without exposing it. Every new credential
// gets a fresh salt, so the version changes on each password change, reset
// or plaintext upgrade.
func Version(cred domain.Credential) string {
	if cred.Kind != domain.CredentialHashed {
		return "legacy"
	}
	sum := sha256.Sum256([]byte("credential-version:" + cred.Salt))
	return hex.EncodeToString(sum[:8])
}
