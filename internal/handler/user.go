package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/josh-kwaku/atm-ledger/internal/logging"
)

type registrar interface {
	Register(ctx context.Context, username, password string) error
}

type UserHandler struct {
	accounts registrar
}

func NewUserHandler(accounts registrar) *UserHandler {
	return &UserHandler{accounts: accounts}
}

type userDTO struct {
	Username string `json:"username"`
	Balance  string `json:"balance"`
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	if err := h.accounts.Register(r.Context(), req.Username, req.Password); err != nil {
		logging.FromContext(r.Context()).Warn("registration failed", "username", req.Username, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, userDTO{Username: req.Username, Balance: "0.00"})
}
