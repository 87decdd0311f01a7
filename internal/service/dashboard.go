package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/segyhp/loan-ledger/internal/repository"
	customError "github.com/segyhp/loan-ledger/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// GetLoanDashboard summarizes loans created in the filter window and the
// ledger entries booked in it. Per-loan paid and due figures always come
// from the loan's full ledger.
func (s *LoanService) GetLoanDashboard(ctx context.Context, filter domain.DashboardFilter) (*domain.Dashboard, error) {
	var (
		loans []*domain.Loan
		txns  []*domain.Transaction
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		loans, _, err = s.store.ListLoans(gctx, repository.LoanFilter{
			Direction: filter.Direction,
			BranchID:  filter.BranchID,
			DateFrom:  filter.DateFrom,
			DateTo:    filter.DateTo,
		})
		return err
	})
	g.Go(func() error {
		var err error
		txns, err = s.store.ListTransactions(gctx, repository.TransactionFilter{
			Direction: filter.Direction,
			BranchID:  filter.BranchID,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return buildDashboard(loans, txns, filter), nil
}

// buildDashboard is a pure function of its inputs. Both slices are sorted
// before use so the result does not depend on the order they arrived in.
func buildDashboard(loans []*domain.Loan, txns []*domain.Transaction, filter domain.DashboardFilter) *domain.Dashboard {
	loans = append([]*domain.Loan(nil), loans...)
	sort.Slice(loans, func(i, j int) bool {
		return loans[i].ID.String() < loans[j].ID.String()
	})
	txns = append([]*domain.Transaction(nil), txns...)
	sort.Slice(txns, func(i, j int) bool {
		return txns[i].Sequence < txns[j].Sequence
	})

	byLoan := make(map[uuid.UUID][]*domain.Transaction)
	owner := make(map[uuid.UUID]domain.Direction)
	for _, t := range txns {
		byLoan[t.LoanID] = append(byLoan[t.LoanID], t)
	}

	dashboard := &domain.Dashboard{
		Giving:    domain.DirectionSummary{Financial: domain.NewFinancialSummary()},
		Receiving: domain.DirectionSummary{Financial: domain.NewFinancialSummary()},
		Transactions: domain.TransactionTotals{
			CashflowSummary: domain.NewCashflowSummary(),
			ByDirection: domain.CashflowByDirection{
				Giving:    domain.NewCashflowSummary(),
				Receiving: domain.NewCashflowSummary(),
			},
		},
	}

	for _, loan := range loans {
		owner[loan.ID] = loan.Direction
		dashboard.Totals.Add(loan.Status)

		summary := &dashboard.Giving
		if loan.Direction == domain.DirectionReceiving {
			summary = &dashboard.Receiving
		}
		summary.Totals.Add(loan.Status)

		paid := domain.LedgerPaid(loan.Direction, byLoan[loan.ID])
		due := decimal.Max(loan.TotalAmount.Sub(paid), decimal.Zero)
		f := &summary.Financial
		f.TotalAmount = f.TotalAmount.Add(loan.TotalAmount)
		f.PaidAmount = f.PaidAmount.Add(paid)
		f.TotalDue = f.TotalDue.Add(due)
	}

	// Ledger entries of loans outside the window still count towards the
	// window's cashflow, so their direction comes from the entry's kind and
	// purpose when the loan was not loaded.
	for _, t := range txns {
		if !inWindow(t.CreatedAt, filter) {
			continue
		}
		direction, ok := owner[t.LoanID]
		if !ok {
			direction = entryDirection(t)
		}

		dashboard.Transactions.Add(t)
		summary := &dashboard.Giving
		cashflow := &dashboard.Transactions.ByDirection.Giving
		if direction == domain.DirectionReceiving {
			summary = &dashboard.Receiving
			cashflow = &dashboard.Transactions.ByDirection.Receiving
		}
		cashflow.Add(t)

		f := &summary.Financial
		if t.Purpose == domain.TransactionPurposeDisbursement {
			f.Disbursed = f.Disbursed.Add(t.Amount)
		} else {
			f.Repaid = f.Repaid.Add(t.Amount)
		}
	}

	return dashboard
}

func inWindow(at time.Time, filter domain.DashboardFilter) bool {
	if filter.DateFrom != nil && at.Before(*filter.DateFrom) {
		return false
	}
	if filter.DateTo != nil && at.After(*filter.DateTo) {
		return false
	}
	return true
}

// entryDirection recovers the loan direction from a ledger entry alone.
func entryDirection(t *domain.Transaction) domain.Direction {
	switch t.Purpose {
	case domain.TransactionPurposePayment:
		return domain.DirectionGiving
	case domain.TransactionPurposeRepayment:
		return domain.DirectionReceiving
	}
	if t.Kind == domain.DisbursementKind(domain.DirectionGiving) {
		return domain.DirectionGiving
	}
	return domain.DirectionReceiving
}
