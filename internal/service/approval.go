package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/segyhp/loan-ledger/internal/directory"
	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/segyhp/loan-ledger/internal/events"
	"github.com/segyhp/loan-ledger/internal/repository"
	customError "github.com/segyhp/loan-ledger/pkg/errors"
)

// ApproveLoan disburses a pending receiving loan into the target account.
// The credit entry, the balance change and the status flip commit together.
func (s *LoanService) ApproveLoan(ctx context.Context, id uuid.UUID, request *domain.ApproveLoanRequest) (*domain.Loan, error) {
	approverName := directory.Lookup(ctx, s.officers, request.ApprovedBy)

	var approved *domain.Loan
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		loan, err := tx.GetLoanForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if loan.Direction != domain.DirectionReceiving {
			return customError.WrapInvalidTransition(id.String(), string(loan.Status), "approve a "+string(loan.Direction)+" loan")
		}
		to, ok := domain.Transition(loan.Status, domain.EventApprove)
		if !ok {
			return customError.WrapInvalidTransition(id.String(), string(loan.Status), string(domain.EventApprove))
		}

		if _, err := tx.GetAccountForUpdate(ctx, request.TargetAccountID); err != nil {
			return accountError(err, request.TargetAccountID)
		}

		now := s.now().UTC()
		target := request.TargetAccountID
		if err := tx.RecordTransaction(ctx, &domain.Transaction{
			ID:            uuid.New(),
			LoanID:        loan.ID,
			BankAccountID: &target,
			Kind:          domain.DisbursementKind(loan.Direction),
			Purpose:       domain.TransactionPurposeDisbursement,
			Amount:        loan.TotalAmount,
			Notes:         request.Notes,
			PerformedBy:   request.ApprovedBy,
			CreatedAt:     now,
		}); err != nil {
			return err
		}
		if err := tx.AdjustBalance(ctx, target, loan.TotalAmount); err != nil {
			return accountError(err, target)
		}

		approvedBy := request.ApprovedBy
		loan.Status = to
		loan.ApprovedBy = &approvedBy
		loan.ApprovedByName = approverName
		loan.ApprovedAt = &now
		if request.Notes != nil {
			loan.Notes = request.Notes
		}
		loan.UpdatedAt = now
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		approved = loan
		return nil
	})
	if err != nil {
		return nil, s.storeError(err, id)
	}

	s.logger.InfoContext(ctx, "loan approved",
		slog.String("loan_id", id.String()),
		slog.String("account_id", request.TargetAccountID.String()),
		slog.String("amount", approved.TotalAmount.String()),
	)
	event := events.ForLoan(events.LoanApproved, approved, approved.UpdatedAt)
	event.Keys = append(event.Keys, events.AccountKey(request.TargetAccountID))
	s.publish(ctx, event)

	return approved, nil
}

// RejectLoan closes a pending application without touching the ledger.
func (s *LoanService) RejectLoan(ctx context.Context, id uuid.UUID, request *domain.RejectLoanRequest) (*domain.Loan, error) {
	reason := strings.TrimSpace(request.RejectionReason)
	if reason == "" {
		return nil, customError.WrapInvalidRequest("rejection reason is required")
	}
	rejectorName := directory.Lookup(ctx, s.officers, request.RejectedBy)

	var rejected *domain.Loan
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		loan, err := tx.GetLoanForUpdate(ctx, id)
		if err != nil {
			return err
		}
		to, ok := domain.Transition(loan.Status, domain.EventReject)
		if !ok {
			return customError.WrapInvalidTransition(id.String(), string(loan.Status), string(domain.EventReject))
		}

		now := s.now().UTC()
		rejectedBy := request.RejectedBy
		loan.Status = to
		loan.RejectedBy = &rejectedBy
		loan.RejectedByName = rejectorName
		loan.RejectedAt = &now
		loan.RejectionReason = &reason
		if request.Notes != nil {
			loan.Notes = request.Notes
		}
		loan.UpdatedAt = now
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		rejected = loan
		return nil
	})
	if err != nil {
		return nil, s.storeError(err, id)
	}

	s.logger.InfoContext(ctx, "loan rejected",
		slog.String("loan_id", id.String()),
		slog.String("reason", reason),
	)
	s.publish(ctx, events.ForLoan(events.LoanRejected, rejected, rejected.UpdatedAt))

	return rejected, nil
}
