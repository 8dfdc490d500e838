package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/josh-kwaku/atm-ledger/internal/auth"
	"github.com/josh-kwaku/atm-ledger/internal/handler"
)

type credentialVersioner interface {
	CredentialVersion(ctx context.Context, username string) (string, error)
}

// Auth validates the bearer token. When sessions is set, a token issued
// under an older password is rejected.
func Auth(secret string, sessions credentialVersioner) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			claims, err := auth.ValidateToken(token, secret)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			if sessions != nil {
				current, err := sessions.CredentialVersion(r.Context(), claims.Username)
				if err != nil || current != claims.CredentialVersion {
					handler.RespondAppError(w, handler.ErrInvalidToken, nil)
					return
				}
			}

			ctx := auth.ContextWithUsername(r.Context(), claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin must run after Auth. Only the configured administrator
// account passes.
func RequireAdmin(adminUsername string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, ok := auth.UsernameFromContext(r.Context())
			if !ok {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}
			if adminUsername == "" || username != adminUsername {
				handler.RespondAppError(w, handler.ErrForbidden, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
