package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/atm-ledger/internal/domain"
	"github.com/josh-kwaku/atm-ledger/internal/logging"
)

type accountService interface {
	Balance(ctx context.Context, username string) (decimal.Decimal, error)
	Deposit(ctx context.Context, username string, amount decimal.Decimal) (decimal.Decimal, error)
	Withdraw(ctx context.Context, username string, amount decimal.Decimal) (decimal.Decimal, error)
	Transfer(ctx context.Context, sender, recipient string, amount decimal.Decimal) (decimal.Decimal, error)
	History(ctx context.Context, username string) ([]domain.Transaction, error)
	RemainingDailyLimit(ctx context.Context, username string) (decimal.Decimal, error)
	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error
}

type AccountHandler struct {
	accounts accountService
}

func NewAccountHandler(accounts accountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (r amountRequest) Validate() []FieldError {
	var errs []FieldError
	if !r.Amount.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	return errs
}

type transferRequest struct {
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
}

func (r transferRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Recipient == "" {
		errs = append(errs, FieldError{Field: "recipient", Message: "required"})
	}
	if !r.Amount.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	return errs
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (r changePasswordRequest) Validate() []FieldError {
	var errs []FieldError
	if r.OldPassword == "" {
		errs = append(errs, FieldError{Field: "old_password", Message: "required"})
	}
	if r.NewPassword == "" {
		errs = append(errs, FieldError{Field: "new_password", Message: "required"})
	}
	return errs
}

type balanceDTO struct {
	Username string `json:"username"`
	Balance  string `json:"balance"`
}

type withdrawalLimitDTO struct {
	Username       string `json:"username"`
	RemainingToday string `json:"remaining_today"`
}

type transactionDTO struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Amount    string    `json:"amount"`
	To        string    `json:"to,omitempty"`
	From      string    `json:"from,omitempty"`
}

func toTransactionDTO(tx domain.Transaction) transactionDTO {
	dto := transactionDTO{
		Timestamp: tx.Timestamp,
		Type:      string(tx.Kind),
		Amount:    tx.Amount.StringFixed(2),
	}
	switch tx.Kind {
	case domain.KindTransferOut:
		dto.To = tx.Counterparty
	case domain.KindTransferIn:
		dto.From = tx.Counterparty
	}
	return dto
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{ Validate() []FieldError }) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return false
	}
	if fields := dst.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return false
	}
	return true
}

func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	username, appErr := ownerFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	balance, err := h.accounts.Balance(r.Context(), username)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to get balance", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, balanceDTO{Username: username, Balance: balance.StringFixed(2)})
}

func (h *AccountHandler) WithdrawalLimit(w http.ResponseWriter, r *http.Request) {
	username, appErr := ownerFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	remaining, err := h.accounts.RemainingDailyLimit(r.Context(), username)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, withdrawalLimitDTO{Username: username, RemainingToday: remaining.StringFixed(2)})
}

func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	username, appErr := ownerFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	balance, err := h.accounts.Deposit(r.Context(), username, req.Amount)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, balanceDTO{Username: username, Balance: balance.StringFixed(2)})
}

func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	username, appErr := ownerFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	balance, err := h.accounts.Withdraw(r.Context(), username, req.Amount)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, balanceDTO{Username: username, Balance: balance.StringFixed(2)})
}

func (h *AccountHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	username, appErr := ownerFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req transferRequest
	if !decodeBody(w, r, &req) {
		return
	}

	balance, err := h.accounts.Transfer(r.Context(), username, req.Recipient, req.Amount)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, balanceDTO{Username: username, Balance: balance.StringFixed(2)})
}

// History lists the most recent transaction first.
func (h *AccountHandler) History(w http.ResponseWriter, r *http.Request) {
	username, appErr := ownerFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	history, err := h.accounts.History(r.Context(), username)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to get history", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]transactionDTO, len(history))
	for i, tx := range history {
		dtos[i] = toTransactionDTO(tx)
	}
	slices.Reverse(dtos)

	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	username, appErr := ownerFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req changePasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), username, req.OldPassword, req.NewPassword); err != nil {
		RespondDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
