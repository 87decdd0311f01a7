package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/loan-ledger/internal/config"
	"github.com/segyhp/loan-ledger/internal/directory"
	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/segyhp/loan-ledger/internal/events"
	"github.com/segyhp/loan-ledger/internal/observability"
	"github.com/segyhp/loan-ledger/internal/repository"
	customError "github.com/segyhp/loan-ledger/pkg/errors"
	"github.com/segyhp/loan-ledger/pkg/utils"
	"github.com/shopspring/decimal"
)

// Policy holds the business switches read from configuration.
type Policy struct {
	AllowOverpayment bool
	DefaultPageSize  int
	MaxPageSize      int
}

func defaultPolicy() Policy {
	return Policy{DefaultPageSize: 10, MaxPageSize: 100}
}

type LoanService struct {
	store     repository.Store
	publisher events.Publisher
	officers  directory.Directory
	policy    Policy
	logger    *slog.Logger
	now       func() time.Time
}

func NewLoanService(
	store repository.Store,
	publisher events.Publisher,
	officers directory.Directory,
	cfg *config.Config,
	logger *slog.Logger,
) *LoanService {
	policy := defaultPolicy()
	if cfg != nil {
		policy = Policy{
			AllowOverpayment: cfg.Business.AllowOverpayment,
			DefaultPageSize:  cfg.Business.DefaultPageSize,
			MaxPageSize:      cfg.Business.MaxPageSize,
		}
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = observability.Discard()
	}

	return &LoanService{
		store:     store,
		publisher: publisher,
		officers:  officers,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateLoan registers a loan. A giving loan disburses at creation, so it
// starts Active with its principal debit already in the ledger; a receiving
// loan waits Pending for approval.
func (s *LoanService) CreateLoan(ctx context.Context, request *domain.CreateLoanRequest) (*domain.Loan, error) {
	direction, err := domain.ParseDirection(request.Direction)
	if err != nil {
		return nil, customError.WrapInvalidRequest(err.Error())
	}
	if !request.TotalAmount.IsPositive() {
		return nil, customError.WrapInvalidAmount(request.TotalAmount.String())
	}
	profile := request.Profile
	profile.Name = strings.TrimSpace(profile.Name)
	if profile.Name == "" {
		return nil, customError.WrapInvalidRequest("profile name is required")
	}

	now := s.now().UTC()
	loan := &domain.Loan{
		ID:             uuid.New(),
		Direction:      direction,
		Status:         domain.InitialStatus(direction),
		TotalAmount:    request.TotalAmount,
		PaidAmount:     decimal.Zero,
		BranchID:       request.BranchID,
		Profile:        profile,
		CommitmentDate: request.CommitmentDate,
		CreatedBy:      request.CreatedBy,
		CreatedByName:  directory.Lookup(ctx, s.officers, request.CreatedBy),
		Notes:          request.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		if request.BankAccountID != nil {
			if _, err := tx.GetAccountForUpdate(ctx, *request.BankAccountID); err != nil {
				return accountError(err, *request.BankAccountID)
			}
		}
		if err := tx.CreateLoan(ctx, loan); err != nil {
			return err
		}
		if direction != domain.DirectionGiving {
			return nil
		}
		return tx.RecordTransaction(ctx, &domain.Transaction{
			ID:            uuid.New(),
			LoanID:        loan.ID,
			BankAccountID: request.BankAccountID,
			Kind:          domain.DisbursementKind(direction),
			Purpose:       domain.TransactionPurposeDisbursement,
			Amount:        loan.TotalAmount,
			PerformedBy:   request.CreatedBy,
			CreatedAt:     now,
		})
	})
	if err != nil {
		return nil, s.storeError(err, loan.ID)
	}

	s.logger.InfoContext(ctx, "loan created",
		slog.String("loan_id", loan.ID.String()),
		slog.String("direction", string(loan.Direction)),
		slog.String("status", string(loan.Status)),
		slog.String("amount", loan.TotalAmount.String()),
	)
	s.publish(ctx, events.ForLoan(events.LoanCreated, loan, now))

	return loan, nil
}

// GetLoan returns the loan with its ledger summary. Reconciled is false when
// the ledger does not reproduce the loan's totals.
func (s *LoanService) GetLoan(ctx context.Context, id uuid.UUID) (*domain.LoanDetail, error) {
	loan, err := s.store.GetLoan(ctx, id)
	if err != nil {
		return nil, s.storeError(err, id)
	}

	txns, err := s.store.ListTransactionsByLoan(ctx, id)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	reconciled := true
	if err := domain.Reconcile(loan, txns); err != nil {
		reconciled = false
		s.logger.WarnContext(ctx, "ledger does not reconcile",
			slog.String("loan_id", id.String()),
			slog.String("error", err.Error()),
		)
	}

	return &domain.LoanDetail{
		Loan:               loan,
		TransactionSummary: domain.Summarize(txns),
		Reconciled:         reconciled,
	}, nil
}

func (s *LoanService) ListLoans(ctx context.Context, query domain.ListLoansQuery) (*domain.LoanList, error) {
	filter := repository.LoanFilter{
		BranchID: strings.TrimSpace(query.BranchID),
		DateFrom: query.DateFrom,
		DateTo:   query.DateTo,
		Search:   query.Search,
	}
	if query.Direction != "" {
		direction, err := domain.ParseDirection(query.Direction)
		if err != nil {
			return nil, customError.WrapInvalidRequest(err.Error())
		}
		filter.Direction = direction
	}
	if query.Status != "" {
		status, err := domain.ParseLoanStatus(query.Status)
		if err != nil {
			return nil, customError.WrapInvalidRequest(err.Error())
		}
		filter.Status = status
	}

	page, limit := utils.NormalizePage(query.Page, query.Limit, s.policy.DefaultPageSize, s.policy.MaxPageSize)
	if page-1 > math.MaxInt/limit {
		return nil, customError.WrapInvalidRequest(fmt.Sprintf("page %d is out of range", page))
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	loans, total, err := s.store.ListLoans(ctx, filter)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return &domain.LoanList{
		Loans:       loans,
		Count:       len(loans),
		TotalCount:  total,
		CurrentPage: page,
		TotalPages:  utils.TotalPages(total, limit),
	}, nil
}

// UpdateLoan edits profile fields. Any attempt to send an immutable field
// fails the whole request.
func (s *LoanService) UpdateLoan(ctx context.Context, id uuid.UUID, request *domain.UpdateLoanRequest) (*domain.Loan, error) {
	if fields := request.ImmutableFields(); len(fields) > 0 {
		return nil, customError.WrapImmutableField(fields...)
	}
	if request.Name != nil && strings.TrimSpace(*request.Name) == "" {
		return nil, customError.WrapInvalidRequest("profile name cannot be empty")
	}

	var updated *domain.Loan
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		loan, err := tx.GetLoanForUpdate(ctx, id)
		if err != nil {
			return err
		}
		request.Apply(loan)
		loan.Name = strings.TrimSpace(loan.Name)
		loan.UpdatedAt = s.now().UTC()
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		updated = loan
		return nil
	})
	if err != nil {
		return nil, s.storeError(err, id)
	}

	s.publish(ctx, events.ForLoan(events.LoanUpdated, updated, updated.UpdatedAt))
	return updated, nil
}

// DeleteLoan removes a loan that has never touched the ledger and returns it.
func (s *LoanService) DeleteLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	var deleted *domain.Loan
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		loan, err := tx.GetLoanForUpdate(ctx, id)
		if err != nil {
			return err
		}
		count, err := tx.CountTransactions(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return customError.WrapHasTransactions(id.String(), count)
		}
		if err := tx.DeleteLoan(ctx, id); err != nil {
			return err
		}
		deleted = loan
		return nil
	})
	if err != nil {
		return nil, s.storeError(err, id)
	}

	s.logger.InfoContext(ctx, "loan deleted", slog.String("loan_id", id.String()))
	s.publish(ctx, events.ForLoan(events.LoanDeleted, deleted, s.now().UTC()))
	return deleted, nil
}

// UpdateLoanStatus applies an explicit status change. Only edges without
// ledger side effects are reachable this way; the rest have their own
// operations.
func (s *LoanService) UpdateLoanStatus(ctx context.Context, id uuid.UUID, request *domain.UpdateStatusRequest) (*domain.Loan, error) {
	target, err := domain.ParseLoanStatus(request.Status)
	if err != nil {
		return nil, customError.WrapInvalidRequest(err.Error())
	}

	return s.transition(ctx, id, func(loan *domain.Loan) (domain.LoanEvent, error) {
		ev, ok := domain.StatusUpdateEvent(loan.Status, target)
		if !ok {
			return "", customError.WrapInvalidTransition(id.String(), string(loan.Status), "move to "+string(target))
		}
		return ev, nil
	})
}

// MarkOverdue flags an Active loan whose commitment date has passed.
func (s *LoanService) MarkOverdue(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	return s.transition(ctx, id, func(*domain.Loan) (domain.LoanEvent, error) {
		return domain.EventMarkOverdue, nil
	})
}

// SweepOverdue marks every Active loan past its commitment date as Overdue
// and reports how many were marked. A loan that moved on since it was listed
// is skipped.
func (s *LoanService) SweepOverdue(ctx context.Context) (int, error) {
	now := s.now().UTC()
	loans, _, err := s.store.ListLoans(ctx, repository.LoanFilter{
		Status:           domain.LoanStatusActive,
		CommitmentBefore: &now,
	})
	if err != nil {
		return 0, customError.WrapDatabaseError(err)
	}

	marked := 0
	var errs []error
	for _, loan := range loans {
		if _, err := s.MarkOverdue(ctx, loan.ID); err != nil {
			if errors.Is(err, customError.ErrInvalidTransition) || errors.Is(err, customError.ErrNotFound) {
				continue
			}
			s.logger.ErrorContext(ctx, "failed to mark loan overdue",
				slog.String("loan_id", loan.ID.String()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		marked++
	}

	s.logger.InfoContext(ctx, "overdue sweep finished",
		slog.Int("candidates", len(loans)),
		slog.Int("marked", marked),
	)
	return marked, errors.Join(errs...)
}

// transition runs a ledger-free status change chosen by pick under the
// loan's write lock.
func (s *LoanService) transition(
	ctx context.Context,
	id uuid.UUID,
	pick func(loan *domain.Loan) (domain.LoanEvent, error),
) (*domain.Loan, error) {
	var updated *domain.Loan
	var from domain.LoanStatus
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		loan, err := tx.GetLoanForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if loan.IsTerminal() {
			return customError.WrapInvalidTransition(id.String(), string(loan.Status), "change a closed loan")
		}
		ev, err := pick(loan)
		if err != nil {
			return err
		}
		to, ok := domain.Transition(loan.Status, ev)
		if !ok {
			return customError.WrapInvalidTransition(id.String(), string(loan.Status), string(ev))
		}

		now := s.now().UTC()
		from = loan.Status
		loan.Status = to
		loan.UpdatedAt = now
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		updated = loan
		return nil
	})
	if err != nil {
		return nil, s.storeError(err, id)
	}

	s.logger.InfoContext(ctx, "loan status changed",
		slog.String("loan_id", id.String()),
		slog.String("from", string(from)),
		slog.String("status", string(updated.Status)),
	)
	s.publish(ctx, events.ForLoan(events.LoanStatusChanged, updated, updated.UpdatedAt))
	return updated, nil
}

// publish hands the event to the caching layer. The write has already
// committed, so a failure is only logged.
func (s *LoanService) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		cacheErr := customError.WrapCacheError(err)
		s.logger.WarnContext(ctx, "failed to publish invalidation event",
			slog.String("type", string(event.Type)),
			slog.String("code", cacheErr.Code),
			slog.String("error", cacheErr.Error()),
		)
	}
}

// storeError maps repository sentinels onto business errors. Errors that are
// already business errors pass through.
func (s *LoanService) storeError(err error, loanID uuid.UUID) error {
	var be *customError.BusinessError
	switch {
	case errors.As(err, &be):
		return err
	case errors.Is(err, customError.ErrLoanNotFound):
		return customError.WrapLoanNotFound(loanID.String())
	case errors.Is(err, customError.ErrConcurrencyConflict):
		return customError.WrapConcurrencyConflict(loanID.String())
	case errors.Is(err, customError.ErrHasTransactions):
		return customError.WrapHasTransactions(loanID.String(), 0)
	default:
		return customError.WrapDatabaseError(err)
	}
}

func accountError(err error, accountID uuid.UUID) error {
	if errors.Is(err, customError.ErrAccountNotFound) {
		return customError.WrapAccountNotFound(accountID.String())
	}
	return err
}
