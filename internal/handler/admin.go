package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/josh-kwaku/atm-ledger/internal/domain"
	"github.com/josh-kwaku/atm-ledger/internal/logging"
)

type adminService interface {
	ListAccounts(ctx context.Context) []domain.Summary
	ResetPassword(ctx context.Context, username, newPassword string) error
}

type AdminHandler struct {
	accounts adminService
}

func NewAdminHandler(accounts adminService) *AdminHandler {
	return &AdminHandler{accounts: accounts}
}

type accountSummaryDTO struct {
	Username         string `json:"username"`
	Balance          string `json:"balance"`
	TransactionCount int    `json:"transaction_count"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

func (r resetPasswordRequest) Validate() []FieldError {
	var errs []FieldError
	if r.NewPassword == "" {
		errs = append(errs, FieldError{Field: "new_password", Message: "required"})
	}
	return errs
}

func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	summaries := h.accounts.ListAccounts(r.Context())

	dtos := make([]accountSummaryDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = accountSummaryDTO{
			Username:         s.Username,
			Balance:          s.Balance.StringFixed(2),
			TransactionCount: s.TransactionCount,
		}
	}

	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *AdminHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	var req resetPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.accounts.ResetPassword(r.Context(), username, req.NewPassword); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			RespondAppError(w, ErrUserNotFound, nil)
			return
		}
		RespondDomainError(w, err)
		return
	}

	logging.FromContext(r.Context()).Info("password reset by administrator", "username", username)
	w.WriteHeader(http.StatusNoContent)
}
