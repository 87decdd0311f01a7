package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// LoanFilter narrows loan listings. Zero values mean "no constraint";
// Limit <= 0 returns every match.
type LoanFilter struct {
	Direction        domain.Direction
	Status           domain.LoanStatus
	BranchID         string
	DateFrom         *time.Time
	DateTo           *time.Time
	CommitmentBefore *time.Time
	Search           string
	Limit            int
	Offset           int
}

// TransactionFilter narrows ledger scans by attributes of the owning loan.
type TransactionFilter struct {
	Direction domain.Direction
	BranchID  string
}

// Reader serves the latest committed snapshot without taking write locks.
type Reader interface {
	// GetLoan retrieves a loan by ID
	GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error)

	// ListLoans returns one page of matching loans, newest first, and the
	// total number of matches
	ListLoans(ctx context.Context, filter LoanFilter) ([]*domain.Loan, int, error)

	// ListTransactionsByLoan returns a loan's ledger in insertion order
	ListTransactionsByLoan(ctx context.Context, loanID uuid.UUID) ([]*domain.Transaction, error)

	// ListTransactions returns matching ledger entries in insertion order
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*domain.Transaction, error)

	// GetAccount retrieves a bank account by ID
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error)
}

// Tx is a unit of work. Everything written through it commits together or
// not at all.
type Tx interface {
	// GetLoanForUpdate retrieves a loan and holds its write lock until the
	// unit of work ends
	GetLoanForUpdate(ctx context.Context, id uuid.UUID) (*domain.Loan, error)

	CreateLoan(ctx context.Context, loan *domain.Loan) error

	// UpdateLoan persists loan if its Version is still current, then bumps
	// Version. A stale version yields ErrConcurrencyConflict.
	UpdateLoan(ctx context.Context, loan *domain.Loan) error

	DeleteLoan(ctx context.Context, id uuid.UUID) error

	CountTransactions(ctx context.Context, loanID uuid.UUID) (int, error)

	// TransactionExists reports whether key was already used on the loan
	TransactionExists(ctx context.Context, loanID uuid.UUID, idempotencyKey string) (bool, error)

	// RecordTransaction appends to the ledger and assigns Sequence. A reused
	// idempotency key yields ErrDuplicateTransaction.
	RecordTransaction(ctx context.Context, txn *domain.Transaction) error

	CreateAccount(ctx context.Context, account *domain.BankAccount) error

	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error)

	AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error
}

// Store is the loan and ledger store of record.
type Store interface {
	Reader

	// WithTx runs fn in a unit of work, committing when fn returns nil
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}
