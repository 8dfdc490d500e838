package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "atm-ledger"

type Claims struct {
	Username          string
	CredentialVersion string
	ExpiresAt         time.Time
}

type tokenClaims struct {
	CredentialVersion string `json:"cv,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken signs a session for username. credentialVersion ties the
// session to the password it was issued under.
func GenerateToken(username, credentialVersion, secret string, expiry time.Duration) (string, error) {
	if username == "" {
		return "", fmt.Errorf("GenerateToken: empty username")
	}

	now := time.Now()
	claims := tokenClaims{
		CredentialVersion: credentialVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("GenerateToken: %w", err)
	}
	return signed, nil
}

func ValidateToken(tokenString string, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("ValidateToken: %w", err)
	}

	rc, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("ValidateToken: invalid token claims")
	}
	if rc.Subject == "" {
		return nil, fmt.Errorf("ValidateToken: missing subject")
	}

	claims := &Claims{Username: rc.Subject, CredentialVersion: rc.CredentialVersion}
	if rc.ExpiresAt != nil {
		claims.ExpiresAt = rc.ExpiresAt.Time
	}
	return claims, nil
}
