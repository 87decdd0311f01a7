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

// RecordPayment books a borrower paying back a giving loan (credit).
func (s *LoanService) RecordPayment(ctx context.Context, id uuid.UUID, request *domain.PaymentRequest) (*domain.Loan, error) {
	return s.settle(ctx, id, domain.DirectionGiving, request)
}

// RecordRepayment books us paying back the lender of a receiving loan (debit).
func (s *LoanService) RecordRepayment(ctx context.Context, id uuid.UUID, request *domain.PaymentRequest) (*domain.Loan, error) {
	return s.settle(ctx, id, domain.DirectionReceiving, request)
}

func (s *LoanService) settle(
	ctx context.Context,
	id uuid.UUID,
	direction domain.Direction,
	request *domain.PaymentRequest,
) (*domain.Loan, error) {
	if !request.Amount.IsPositive() {
		return nil, customError.WrapInvalidAmount(request.Amount.String())
	}

	action := "record payment"
	if direction == domain.DirectionReceiving {
		action = "record repayment"
	}

	var key *string
	if request.IdempotencyKey != nil {
		if k := strings.TrimSpace(*request.IdempotencyKey); k != "" {
			key = &k
		}
	}

	var settled *domain.Loan
	var entry *domain.Transaction
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		loan, err := tx.GetLoanForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if loan.Direction != direction {
			return customError.WrapInvalidTransition(id.String(), string(loan.Status), action+" on a "+string(loan.Direction)+" loan")
		}

		if key != nil {
			seen, err := tx.TransactionExists(ctx, id, *key)
			if err != nil {
				return err
			}
			if seen {
				return customError.WrapDuplicateTransaction(id.String(), *key)
			}
		}

		due := loan.DueAmount()
		if _, ok := domain.Transition(loan.Status, domain.EventPayment); !ok {
			if loan.Status == domain.LoanStatusCompleted && !s.policy.AllowOverpayment {
				return customError.WrapOverpaymentRejected(id.String(), request.Amount.String(), due.String())
			}
			return customError.WrapInvalidTransition(id.String(), string(loan.Status), action)
		}
		if !s.policy.AllowOverpayment && request.Amount.GreaterThan(due) {
			return customError.WrapOverpaymentRejected(id.String(), request.Amount.String(), due.String())
		}

		if request.BankAccountID != nil {
			if _, err := tx.GetAccountForUpdate(ctx, *request.BankAccountID); err != nil {
				return accountError(err, *request.BankAccountID)
			}
		}

		now := s.now().UTC()
		entry = &domain.Transaction{
			ID:             uuid.New(),
			LoanID:         loan.ID,
			BankAccountID:  request.BankAccountID,
			Kind:           domain.SettlementKind(direction),
			Purpose:        domain.SettlementPurpose(direction),
			Amount:         request.Amount,
			IdempotencyKey: key,
			PaymentMethod:  request.PaymentMethod,
			Reference:      request.Reference,
			Notes:          request.Notes,
			PerformedBy:    request.PerformedBy,
			CreatedAt:      now,
		}
		if err := tx.RecordTransaction(ctx, entry); err != nil {
			return err
		}

		loan.PaidAmount = loan.PaidAmount.Add(request.Amount)
		to, ok := domain.Transition(loan.Status, domain.SettlementEvent(loan))
		if !ok {
			return customError.WrapInvalidTransition(id.String(), string(loan.Status), action)
		}
		loan.Status = to
		if to == domain.LoanStatusCompleted {
			loan.CompletionDate = &now
		}
		loan.UpdatedAt = now
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		settled = loan
		return nil
	})
	if err != nil {
		if errors.Is(err, customError.ErrDuplicateTransaction) && customError.Code(err) == "" && key != nil {
			return nil, customError.WrapDuplicateTransaction(id.String(), *key)
		}
		return nil, s.storeError(err, id)
	}

	s.logger.InfoContext(ctx, "settlement recorded",
		slog.String("loan_id", id.String()),
		slog.String("kind", string(entry.Kind)),
		slog.String("amount", entry.Amount.String()),
		slog.String("paid_amount", settled.PaidAmount.String()),
		slog.String("status", string(settled.Status)),
	)
	s.publish(ctx, events.ForLoan(events.TransactionAdded, settled, settled.UpdatedAt))

	return settled, nil
}
