package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/segyhp/loan-ledger/internal/events"
	"github.com/segyhp/loan-ledger/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockStore hands Tx to WithTx callbacks and returns whatever the callback
// returns, so expectations on Tx decide the outcome.
type MockStore struct {
	mock.Mock
	Tx *MockTx
}

func (m *MockStore) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(m.Tx)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}

func (m *MockStore) GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockStore) ListLoans(ctx context.Context, filter repository.LoanFilter) ([]*domain.Loan, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*domain.Loan), args.Int(1), args.Error(2)
}

func (m *MockStore) ListTransactionsByLoan(ctx context.Context, loanID uuid.UUID) ([]*domain.Transaction, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Transaction), args.Error(1)
}

func (m *MockStore) ListTransactions(ctx context.Context, filter repository.TransactionFilter) ([]*domain.Transaction, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Transaction), args.Error(1)
}

func (m *MockStore) GetAccount(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BankAccount), args.Error(1)
}

type MockTx struct {
	mock.Mock
}

func (m *MockTx) GetLoanForUpdate(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockTx) CreateLoan(ctx context.Context, loan *domain.Loan) error {
	return m.Called(ctx, loan).Error(0)
}

func (m *MockTx) UpdateLoan(ctx context.Context, loan *domain.Loan) error {
	return m.Called(ctx, loan).Error(0)
}

func (m *MockTx) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockTx) CountTransactions(ctx context.Context, loanID uuid.UUID) (int, error) {
	args := m.Called(ctx, loanID)
	return args.Int(0), args.Error(1)
}

func (m *MockTx) TransactionExists(ctx context.Context, loanID uuid.UUID, idempotencyKey string) (bool, error) {
	args := m.Called(ctx, loanID, idempotencyKey)
	return args.Bool(0), args.Error(1)
}

func (m *MockTx) RecordTransaction(ctx context.Context, txn *domain.Transaction) error {
	return m.Called(ctx, txn).Error(0)
}

func (m *MockTx) CreateAccount(ctx context.Context, account *domain.BankAccount) error {
	return m.Called(ctx, account).Error(0)
}

func (m *MockTx) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BankAccount), args.Error(1)
}

func (m *MockTx) AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	return m.Called(ctx, id, delta).Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event events.Event) error {
	return m.Called(ctx, event).Error(0)
}
