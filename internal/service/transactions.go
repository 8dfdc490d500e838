package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/atm-ledger/internal/domain"
	"github.com/josh-kwaku/atm-ledger/internal/logging"
	"github.com/josh-kwaku/atm-ledger/internal/policy"
)

func (s *AccountService) Deposit(ctx context.Context, username string, amount decimal.Decimal) (balance decimal.Decimal, err error) {
	defer func() { s.observe("deposit", err) }()

	if err := policy.CanDeposit(amount); err != nil {
		return decimal.Zero, fmt.Errorf("Deposit: %w", err)
	}

	err = s.store.Update(ctx, []string{username}, func(locked map[string]domain.Account) ([]domain.Account, error) {
		a := locked[username]
		a.Append(domain.Transaction{
			Timestamp: s.timestamp(),
			Kind:      domain.KindDeposit,
			Amount:    amount,
		})
		balance = a.Balance
		return []domain.Account{a}, nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("Deposit: %w", err)
	}

	logging.FromContext(ctx).Info("deposit applied",
		"username", username,
		"amount", amount.StringFixed(2),
		"balance", balance.StringFixed(2),
	)
	return balance, nil
}

func (s *AccountService) Withdraw(ctx context.Context, username string, amount decimal.Decimal) (balance decimal.Decimal, err error) {
	defer func() { s.observe("withdraw", err) }()
	log := logging.FromContext(ctx)

	if err := policy.CheckAmount(amount); err != nil {
		return decimal.Zero, fmt.Errorf("Withdraw: %w", err)
	}

	err = s.store.Update(ctx, []string{username}, func(locked map[string]domain.Account) ([]domain.Account, error) {
		a := locked[username]
		now := s.timestamp()
		if err := s.limits.CanWithdraw(a.Balance, a.Transactions, amount, now); err != nil {
			return nil, err
		}
		a.Append(domain.Transaction{
			Timestamp: now,
			Kind:      domain.KindWithdrawal,
			Amount:    amount,
		})
		balance = a.Balance
		return []domain.Account{a}, nil
	})
	if err != nil {
		if Outcome(err) == OutcomeRejected {
			log.Info("withdrawal rejected", "username", username, "amount", amount.StringFixed(2), "reason", err)
		}
		return decimal.Zero, fmt.Errorf("Withdraw: %w", err)
	}

	log.Info("withdrawal applied",
		"username", username,
		"amount", amount.StringFixed(2),
		"balance", balance.StringFixed(2),
	)
	return balance, nil
}

// Transfer moves amount between two accounts in a single commit: both
// entries are written or neither is. It returns the sender's new balance.
func (s *AccountService) Transfer(ctx context.Context, sender, recipient string, amount decimal.Decimal) (balance decimal.Decimal, err error) {
	defer func() { s.observe("transfer", err) }()
	log := logging.FromContext(ctx)

	if sender == recipient {
		return decimal.Zero, fmt.Errorf("Transfer: %w", domain.ErrSelfTransfer)
	}
	if !s.store.Exists(recipient) {
		return decimal.Zero, fmt.Errorf("Transfer: %w", domain.ErrRecipientNotFound)
	}
	if err := policy.CheckAmount(amount); err != nil {
		return decimal.Zero, fmt.Errorf("Transfer: %w", err)
	}

	err = s.store.Update(ctx, []string{sender, recipient}, func(locked map[string]domain.Account) ([]domain.Account, error) {
		from, to := locked[sender], locked[recipient]
		if err := policy.CanTransfer(from.Balance, amount, sender, recipient, true); err != nil {
			return nil, err
		}

		// Both sides share one timestamp that neither log sees as going backwards.
		ts := s.timestamp()
		for _, last := range []time.Time{from.LastActivity(), to.LastActivity()} {
			if last.After(ts) {
				ts = last
			}
		}

		from.Append(domain.Transaction{
			Timestamp:    ts,
			Kind:         domain.KindTransferOut,
			Amount:       amount,
			Counterparty: recipient,
		})
		to.Append(domain.Transaction{
			Timestamp:    ts,
			Kind:         domain.KindTransferIn,
			Amount:       amount,
			Counterparty: sender,
		})
		balance = from.Balance
		return []domain.Account{from, to}, nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("Transfer: %w", err)
	}

	log.Info("transfer completed",
		"sender", sender,
		"recipient", recipient,
		"amount", amount.StringFixed(2),
		"sender_balance", balance.StringFixed(2),
	)
	return balance, nil
}
