package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockLoanService struct {
	mock.Mock
}

func (m *MockLoanService) loan(args mock.Arguments) (*domain.Loan, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockLoanService) CreateLoan(ctx context.Context, request *domain.CreateLoanRequest) (*domain.Loan, error) {
	return m.loan(m.Called(ctx, request))
}

func (m *MockLoanService) GetLoan(ctx context.Context, id uuid.UUID) (*domain.LoanDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoanDetail), args.Error(1)
}

func (m *MockLoanService) ListLoans(ctx context.Context, query domain.ListLoansQuery) (*domain.LoanList, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoanList), args.Error(1)
}

func (m *MockLoanService) UpdateLoan(ctx context.Context, id uuid.UUID, request *domain.UpdateLoanRequest) (*domain.Loan, error) {
	return m.loan(m.Called(ctx, id, request))
}

func (m *MockLoanService) DeleteLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	return m.loan(m.Called(ctx, id))
}

func (m *MockLoanService) UpdateLoanStatus(ctx context.Context, id uuid.UUID, request *domain.UpdateStatusRequest) (*domain.Loan, error) {
	return m.loan(m.Called(ctx, id, request))
}

func (m *MockLoanService) MarkOverdue(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	return m.loan(m.Called(ctx, id))
}

func (m *MockLoanService) ApproveLoan(ctx context.Context, id uuid.UUID, request *domain.ApproveLoanRequest) (*domain.Loan, error) {
	return m.loan(m.Called(ctx, id, request))
}

func (m *MockLoanService) RejectLoan(ctx context.Context, id uuid.UUID, request *domain.RejectLoanRequest) (*domain.Loan, error) {
	return m.loan(m.Called(ctx, id, request))
}

func (m *MockLoanService) RecordPayment(ctx context.Context, id uuid.UUID, request *domain.PaymentRequest) (*domain.Loan, error) {
	return m.loan(m.Called(ctx, id, request))
}

func (m *MockLoanService) RecordRepayment(ctx context.Context, id uuid.UUID, request *domain.PaymentRequest) (*domain.Loan, error) {
	return m.loan(m.Called(ctx, id, request))
}

func (m *MockLoanService) GetLoanDashboard(ctx context.Context, filter domain.DashboardFilter) (*domain.Dashboard, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Dashboard), args.Error(1)
}

func (m *MockLoanService) CreateAccount(ctx context.Context, request *domain.CreateAccountRequest) (*domain.BankAccount, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BankAccount), args.Error(1)
}

func (m *MockLoanService) GetAccount(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BankAccount), args.Error(1)
}
