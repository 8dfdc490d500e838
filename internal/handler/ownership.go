package handler

import (
	"net/http"

	"github.com/josh-kwaku/atm-ledger/internal/auth"
)

// ownerFromPath returns the {username} path value when it matches the
// authenticated user. Other users' accounts are reported as not found.
func ownerFromPath(r *http.Request) (string, *AppError) {
	authUsername, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		return "", ErrMissingToken
	}

	username := r.PathValue("username")
	if username == "" || username != authUsername {
		return "", ErrResourceNotFound
	}

	return username, nil
}
