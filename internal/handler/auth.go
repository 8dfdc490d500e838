package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/josh-kwaku/atm-ledger/internal/auth"
	"github.com/josh-kwaku/atm-ledger/internal/domain"
	"github.com/josh-kwaku/atm-ledger/internal/logging"
)

type authenticator interface {
	Authenticate(ctx context.Context, username, password string) error
	CredentialVersion(ctx context.Context, username string) (string, error)
}

type AuthHandler struct {
	accounts      authenticator
	jwtSecret     string
	jwtExpiry     time.Duration
	adminUsername string
}

func NewAuthHandler(accounts authenticator, jwtSecret string, jwtExpiry time.Duration, adminUsername string) *AuthHandler {
	return &AuthHandler{
		accounts:      accounts,
		jwtSecret:     jwtSecret,
		jwtExpiry:     jwtExpiry,
		adminUsername: adminUsername,
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r credentialsRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Username == "" {
		errs = append(errs, FieldError{Field: "username", Message: "required"})
	}
	if r.Password == "" {
		errs = append(errs, FieldError{Field: "password", Message: "required"})
	}
	return errs
}

type loginResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"is_admin"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	if err := h.accounts.Authenticate(r.Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, domain.ErrAuthFailed) {
			RespondAppError(w, ErrInvalidCredentials, nil)
			return
		}
		logging.FromContext(r.Context()).Error("login failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	// Read after Authenticate, which may have upgraded a plaintext credential.
	version, err := h.accounts.CredentialVersion(r.Context(), req.Username)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	token, err := auth.GenerateToken(req.Username, version, h.jwtSecret, h.jwtExpiry)
	if err != nil {
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	RespondSuccess(w, http.StatusOK, loginResponse{
		Token:     token,
		Username:  req.Username,
		IsAdmin:   h.adminUsername != "" && req.Username == h.adminUsername,
		ExpiresAt: time.Now().Add(h.jwtExpiry).UTC(),
	})
}
