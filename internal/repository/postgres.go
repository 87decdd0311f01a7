package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/segyhp/loan-ledger/internal/domain"
	customError "github.com/segyhp/loan-ledger/pkg/errors"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

const (
	idempotencyIndex = "loan_transactions_idempotency_key"
	ledgerLoanFK     = "loan_transactions_loan_fk"
)

const loanColumns = `id, direction, status, total_amount, paid_amount, branch_id,
	party_name, party_phone, party_email, party_address, party_identity_type, party_identity_number,
	commitment_date, completion_date, created_by, created_by_name,
	approved_by, approved_by_name, approved_at, rejected_by, rejected_by_name, rejected_at,
	rejection_reason, notes, version, created_at, updated_at`

const transactionColumns = `t.sequence, t.id, t.loan_id, t.bank_account_id, t.kind, t.purpose, t.amount,
	t.idempotency_key, t.payment_method, t.reference, t.notes, t.performed_by, t.created_at`

const accountColumns = `id, name, bank_name, account_number, branch_id, balance, created_at, updated_at`

type postgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) Store {
	return &postgresStore{db: db}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *postgresStore) Close() error {
	return s.db.Close()
}

func (s *postgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", translate(err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&postgresTx{tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", translate(err))
	}
	return nil
}

func (s *postgresStore) GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`

	var loan domain.Loan
	if err := s.db.GetContext(ctx, &loan, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.ErrLoanNotFound
		}
		return nil, translate(err)
	}
	return &loan, nil
}

func (s *postgresStore) ListLoans(ctx context.Context, filter LoanFilter) ([]*domain.Loan, int, error) {
	where, args := loanWhere(filter)

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM loans`+where, args...); err != nil {
		return nil, 0, translate(err)
	}

	var builder strings.Builder
	builder.WriteString(`SELECT ` + loanColumns + ` FROM loans`)
	builder.WriteString(where)
	builder.WriteString(` ORDER BY created_at DESC, id`)
	if filter.Limit > 0 {
		builder.WriteString(` LIMIT $` + strconv.Itoa(len(args)+1))
		builder.WriteString(` OFFSET $` + strconv.Itoa(len(args)+2))
		args = append(args, filter.Limit, max(filter.Offset, 0))
	}

	loans := make([]*domain.Loan, 0)
	if err := s.db.SelectContext(ctx, &loans, builder.String(), args...); err != nil {
		return nil, 0, translate(err)
	}
	return loans, total, nil
}

func (s *postgresStore) ListTransactionsByLoan(ctx context.Context, loanID uuid.UUID) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM loan_transactions t WHERE t.loan_id = $1 ORDER BY t.sequence`

	txns := make([]*domain.Transaction, 0)
	if err := s.db.SelectContext(ctx, &txns, query, loanID); err != nil {
		return nil, translate(err)
	}
	return txns, nil
}

func (s *postgresStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]*domain.Transaction, error) {
	var builder strings.Builder
	builder.WriteString(`SELECT ` + transactionColumns + ` FROM loan_transactions t JOIN loans l ON l.id = t.loan_id WHERE 1=1`)

	args := []any{}
	add := func(clause string, value any) {
		args = append(args, value)
		builder.WriteString(` AND ` + clause + ` $` + strconv.Itoa(len(args)))
	}
	if filter.Direction != "" {
		add("l.direction =", filter.Direction)
	}
	if filter.BranchID != "" {
		add("l.branch_id =", filter.BranchID)
	}
	builder.WriteString(` ORDER BY t.sequence`)

	txns := make([]*domain.Transaction, 0)
	if err := s.db.SelectContext(ctx, &txns, builder.String(), args...); err != nil {
		return nil, translate(err)
	}
	return txns, nil
}

func (s *postgresStore) GetAccount(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM bank_accounts WHERE id = $1`

	var account domain.BankAccount
	if err := s.db.GetContext(ctx, &account, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.ErrAccountNotFound
		}
		return nil, translate(err)
	}
	return &account, nil
}

func loanWhere(f LoanFilter) (string, []any) {
	var builder strings.Builder
	builder.WriteString(` WHERE 1=1`)

	args := []any{}
	add := func(clause string, value any) {
		args = append(args, value)
		builder.WriteString(` AND ` + clause + ` $` + strconv.Itoa(len(args)))
	}
	if f.Direction != "" {
		add("direction =", f.Direction)
	}
	if f.Status != "" {
		add("status =", f.Status)
	}
	if f.BranchID != "" {
		add("branch_id =", f.BranchID)
	}
	if f.DateFrom != nil {
		add("created_at >=", *f.DateFrom)
	}
	if f.DateTo != nil {
		add("created_at <=", *f.DateTo)
	}
	if f.CommitmentBefore != nil {
		add("commitment_date <", *f.CommitmentBefore)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		args = append(args, "%"+term+"%")
		p := `$` + strconv.Itoa(len(args))
		builder.WriteString(` AND (party_name ILIKE ` + p +
			` OR party_phone ILIKE ` + p +
			` OR party_email ILIKE ` + p +
			` OR party_identity_number ILIKE ` + p +
			` OR id::text ILIKE ` + p + `)`)
	}
	return builder.String(), args
}

// translate maps postgres failures onto the domain error taxonomy.
func translate(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "40001", "40P01", "55P03":
		return fmt.Errorf("%w: %s", customError.ErrConcurrencyConflict, pqErr.Message)
	case "23505":
		if pqErr.Constraint == idempotencyIndex {
			return customError.ErrDuplicateTransaction
		}
	case "23503":
		if pqErr.Constraint == ledgerLoanFK {
			return customError.ErrHasTransactions
		}
	}
	return err
}

type postgresTx struct {
	tx *sqlx.Tx
}

func (p *postgresTx) GetLoanForUpdate(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1 FOR UPDATE`

	var loan domain.Loan
	if err := p.tx.GetContext(ctx, &loan, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.ErrLoanNotFound
		}
		return nil, translate(err)
	}
	return &loan, nil
}

func (p *postgresTx) CreateLoan(ctx context.Context, loan *domain.Loan) error {
	query := `
		INSERT INTO loans (` + loanColumns + `)
		VALUES (:id, :direction, :status, :total_amount, :paid_amount, :branch_id,
			:party_name, :party_phone, :party_email, :party_address, :party_identity_type, :party_identity_number,
			:commitment_date, :completion_date, :created_by, :created_by_name,
			:approved_by, :approved_by_name, :approved_at, :rejected_by, :rejected_by_name, :rejected_at,
			:rejection_reason, :notes, :version, :created_at, :updated_at)
	`
	if _, err := p.tx.NamedExecContext(ctx, query, loan); err != nil {
		return translate(err)
	}
	return nil
}

func (p *postgresTx) UpdateLoan(ctx context.Context, loan *domain.Loan) error {
	query := `
		UPDATE loans
		SET status = :status, paid_amount = :paid_amount,
			party_name = :party_name, party_phone = :party_phone, party_email = :party_email,
			party_address = :party_address, party_identity_type = :party_identity_type,
			party_identity_number = :party_identity_number,
			commitment_date = :commitment_date, completion_date = :completion_date,
			approved_by = :approved_by, approved_by_name = :approved_by_name, approved_at = :approved_at,
			rejected_by = :rejected_by, rejected_by_name = :rejected_by_name, rejected_at = :rejected_at,
			rejection_reason = :rejection_reason, notes = :notes,
			updated_at = :updated_at, version = version + 1
		WHERE id = :id AND version = :version
	`
	result, err := p.tx.NamedExecContext(ctx, query, loan)
	if err != nil {
		return translate(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return customError.ErrConcurrencyConflict
	}
	loan.Version++
	return nil
}

func (p *postgresTx) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	result, err := p.tx.ExecContext(ctx, `DELETE FROM loans WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return customError.ErrLoanNotFound
	}
	return nil
}

func (p *postgresTx) CountTransactions(ctx context.Context, loanID uuid.UUID) (int, error) {
	var count int
	if err := p.tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM loan_transactions WHERE loan_id = $1`, loanID); err != nil {
		return 0, translate(err)
	}
	return count, nil
}

func (p *postgresTx) TransactionExists(ctx context.Context, loanID uuid.UUID, idempotencyKey string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM loan_transactions WHERE loan_id = $1 AND idempotency_key = $2)`
	if err := p.tx.GetContext(ctx, &exists, query, loanID, idempotencyKey); err != nil {
		return false, translate(err)
	}
	return exists, nil
}

func (p *postgresTx) RecordTransaction(ctx context.Context, txn *domain.Transaction) error {
	query, args, err := p.tx.BindNamed(`
		INSERT INTO loan_transactions (id, loan_id, bank_account_id, kind, purpose, amount,
			idempotency_key, payment_method, reference, notes, performed_by, created_at)
		VALUES (:id, :loan_id, :bank_account_id, :kind, :purpose, :amount,
			:idempotency_key, :payment_method, :reference, :notes, :performed_by, :created_at)
		RETURNING sequence
	`, txn)
	if err != nil {
		return err
	}
	if err := p.tx.QueryRowxContext(ctx, query, args...).Scan(&txn.Sequence); err != nil {
		return translate(err)
	}
	return nil
}

func (p *postgresTx) CreateAccount(ctx context.Context, account *domain.BankAccount) error {
	query := `
		INSERT INTO bank_accounts (` + accountColumns + `)
		VALUES (:id, :name, :bank_name, :account_number, :branch_id, :balance, :created_at, :updated_at)
	`
	if _, err := p.tx.NamedExecContext(ctx, query, account); err != nil {
		return translate(err)
	}
	return nil
}

func (p *postgresTx) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM bank_accounts WHERE id = $1 FOR UPDATE`

	var account domain.BankAccount
	if err := p.tx.GetContext(ctx, &account, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.ErrAccountNotFound
		}
		return nil, translate(err)
	}
	return &account, nil
}

func (p *postgresTx) AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	query := `
		UPDATE bank_accounts
		SET balance = balance + $2::numeric, updated_at = NOW()
		WHERE id = $1
	`
	result, err := p.tx.ExecContext(ctx, query, id, delta)
	if err != nil {
		return translate(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return customError.ErrAccountNotFound
	}
	return nil
}
