package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/segyhp/loan-ledger/internal/events"
	"github.com/segyhp/loan-ledger/internal/repository"
	customError "github.com/segyhp/loan-ledger/pkg/errors"
)

// CreateAccount opens a bank account that approvals can disburse into.
func (s *LoanService) CreateAccount(ctx context.Context, request *domain.CreateAccountRequest) (*domain.BankAccount, error) {
	if request.OpeningBalance.IsNegative() {
		return nil, customError.WrapInvalidAmount(request.OpeningBalance.String())
	}
	name := strings.TrimSpace(request.Name)
	if name == "" {
		return nil, customError.WrapInvalidRequest("account name is required")
	}

	now := s.now().UTC()
	account := &domain.BankAccount{
		ID:            uuid.New(),
		Name:          name,
		BankName:      request.BankName,
		AccountNumber: request.AccountNumber,
		BranchID:      request.BranchID,
		Balance:       request.OpeningBalance,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		return tx.CreateAccount(ctx, account)
	})
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	s.logger.InfoContext(ctx, "bank account created",
		slog.String("account_id", account.ID.String()),
		slog.String("branch_id", account.BranchID),
	)
	s.publish(ctx, events.ForAccount(events.AccountCreated, account, now))

	return account, nil
}

func (s *LoanService) GetAccount(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	account, err := s.store.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, customError.ErrAccountNotFound) {
			return nil, customError.WrapAccountNotFound(id.String())
		}
		return nil, customError.WrapDatabaseError(err)
	}
	return account, nil
}
