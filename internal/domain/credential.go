package domain

type CredentialKind int

const (
	CredentialHashed CredentialKind = iota
	CredentialLegacy
)

// Credential is either a salted SHA-256 record or a legacy plaintext password
// that is replaced on the next successful login.
type Credential struct {
	Kind     CredentialKind
	Salt     string
	Hash     string
	Password string
}

func HashedCredential(salt, hash string) Credential {
	return Credential{Kind: CredentialHashed, Salt: salt, Hash: hash}
}

func LegacyCredential(password string) Credential {
	return Credential{Kind: CredentialLegacy, Password: password}
}

func (c Credential) IsLegacy() bool {
	return c.Kind == CredentialLegacy
}

func (c Credential) IsZero() bool {
	return c == Credential{}
}
