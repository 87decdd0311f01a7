package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/segyhp/loan-ledger/internal/domain"
	customError "github.com/segyhp/loan-ledger/pkg/errors"
	"github.com/shopspring/decimal"
)

type ledgerKey struct {
	loanID uuid.UUID
	key    string
}

// MemoryStore keeps everything in process. Units of work are serialized by
// writeMu and staged privately; readers only wait for the final apply step.
type MemoryStore struct {
	writeMu sync.Mutex

	mu       sync.RWMutex
	loans    map[uuid.UUID]*domain.Loan
	ledger   []*domain.Transaction
	keys     map[ledgerKey]struct{}
	accounts map[uuid.UUID]*domain.BankAccount
	seq      int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		loans:    make(map[uuid.UUID]*domain.Loan),
		keys:     make(map[ledgerKey]struct{}),
		accounts: make(map[uuid.UUID]*domain.BankAccount),
	}
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{
		store:    s,
		loans:    make(map[uuid.UUID]*domain.Loan),
		deleted:  make(map[uuid.UUID]struct{}),
		accounts: make(map[uuid.UUID]*domain.BankAccount),
		keys:     make(map[ledgerKey]struct{}),
	}
	if err := fn(tx); err != nil {
		return err
	}

	s.commit(tx)
	return nil
}

func (s *MemoryStore) commit(tx *memoryTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range tx.deleted {
		delete(s.loans, id)
	}
	for id, loan := range tx.loans {
		s.loans[id] = loan
	}
	for id, account := range tx.accounts {
		s.accounts[id] = account
	}
	s.ledger = append(s.ledger, tx.ledger...)
	for k := range tx.keys {
		s.keys[k] = struct{}{}
	}
	s.seq += int64(len(tx.ledger))
}

func (s *MemoryStore) GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loan, ok := s.loans[id]
	if !ok {
		return nil, customError.ErrLoanNotFound
	}
	return loan.Clone(), nil
}

func (s *MemoryStore) ListLoans(ctx context.Context, filter LoanFilter) ([]*domain.Loan, int, error) {
	s.mu.RLock()
	matched := make([]*domain.Loan, 0)
	for _, loan := range s.loans {
		if matchLoan(loan, filter) {
			matched = append(matched, loan.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	total := len(matched)
	if filter.Limit <= 0 {
		return matched, total, nil
	}
	start := min(max(filter.Offset, 0), total)
	end := total
	if filter.Limit < total-start {
		end = start + filter.Limit
	}
	return matched[start:end], total, nil
}

func (s *MemoryStore) ListTransactionsByLoan(ctx context.Context, loanID uuid.UUID) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Transaction, 0)
	for _, t := range s.ledger {
		if t.LoanID == loanID {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Transaction, 0)
	for _, t := range s.ledger {
		loan, ok := s.loans[t.LoanID]
		if !ok {
			continue
		}
		if filter.Direction != "" && loan.Direction != filter.Direction {
			continue
		}
		if filter.BranchID != "" && loan.BranchID != filter.BranchID {
			continue
		}
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, customError.ErrAccountNotFound
	}
	c := *account
	return &c, nil
}

func matchLoan(loan *domain.Loan, f LoanFilter) bool {
	if f.Direction != "" && loan.Direction != f.Direction {
		return false
	}
	if f.Status != "" && loan.Status != f.Status {
		return false
	}
	if f.BranchID != "" && loan.BranchID != f.BranchID {
		return false
	}
	if f.DateFrom != nil && loan.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && loan.CreatedAt.After(*f.DateTo) {
		return false
	}
	if f.CommitmentBefore != nil && (loan.CommitmentDate == nil || !loan.CommitmentDate.Before(*f.CommitmentBefore)) {
		return false
	}
	if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" {
		fields := []string{loan.ID.String(), loan.Name}
		for _, p := range []*string{loan.Phone, loan.Email, loan.IdentityNumber} {
			if p != nil {
				fields = append(fields, *p)
			}
		}
		found := false
		for _, field := range fields {
			if strings.Contains(strings.ToLower(field), term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// memoryTx stages writes until WithTx commits them.
type memoryTx struct {
	store    *MemoryStore
	loans    map[uuid.UUID]*domain.Loan
	deleted  map[uuid.UUID]struct{}
	accounts map[uuid.UUID]*domain.BankAccount
	ledger   []*domain.Transaction
	keys     map[ledgerKey]struct{}
}

func (tx *memoryTx) loan(id uuid.UUID) *domain.Loan {
	if _, gone := tx.deleted[id]; gone {
		return nil
	}
	if loan, ok := tx.loans[id]; ok {
		return loan
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	return tx.store.loans[id]
}

func (tx *memoryTx) account(id uuid.UUID) *domain.BankAccount {
	if account, ok := tx.accounts[id]; ok {
		return account
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	return tx.store.accounts[id]
}

func (tx *memoryTx) GetLoanForUpdate(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	loan := tx.loan(id)
	if loan == nil {
		return nil, customError.ErrLoanNotFound
	}
	return loan.Clone(), nil
}

func (tx *memoryTx) CreateLoan(ctx context.Context, loan *domain.Loan) error {
	if tx.loan(loan.ID) != nil {
		return customError.ErrConcurrencyConflict
	}
	delete(tx.deleted, loan.ID)
	tx.loans[loan.ID] = loan.Clone()
	return nil
}

func (tx *memoryTx) UpdateLoan(ctx context.Context, loan *domain.Loan) error {
	current := tx.loan(loan.ID)
	if current == nil {
		return customError.ErrLoanNotFound
	}
	if current.Version != loan.Version {
		return customError.ErrConcurrencyConflict
	}
	loan.Version++
	tx.loans[loan.ID] = loan.Clone()
	return nil
}

func (tx *memoryTx) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	if tx.loan(id) == nil {
		return customError.ErrLoanNotFound
	}
	delete(tx.loans, id)
	tx.deleted[id] = struct{}{}
	return nil
}

func (tx *memoryTx) CountTransactions(ctx context.Context, loanID uuid.UUID) (int, error) {
	count := 0
	for _, t := range tx.ledger {
		if t.LoanID == loanID {
			count++
		}
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	for _, t := range tx.store.ledger {
		if t.LoanID == loanID {
			count++
		}
	}
	return count, nil
}

func (tx *memoryTx) TransactionExists(ctx context.Context, loanID uuid.UUID, idempotencyKey string) (bool, error) {
	k := ledgerKey{loanID: loanID, key: idempotencyKey}
	if _, ok := tx.keys[k]; ok {
		return true, nil
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	_, ok := tx.store.keys[k]
	return ok, nil
}

func (tx *memoryTx) RecordTransaction(ctx context.Context, txn *domain.Transaction) error {
	if tx.loan(txn.LoanID) == nil {
		return customError.ErrLoanNotFound
	}
	if txn.IdempotencyKey != nil {
		exists, _ := tx.TransactionExists(ctx, txn.LoanID, *txn.IdempotencyKey)
		if exists {
			return customError.ErrDuplicateTransaction
		}
		tx.keys[ledgerKey{loanID: txn.LoanID, key: *txn.IdempotencyKey}] = struct{}{}
	}

	tx.store.mu.RLock()
	base := tx.store.seq
	tx.store.mu.RUnlock()

	txn.Sequence = base + int64(len(tx.ledger)) + 1
	c := *txn
	tx.ledger = append(tx.ledger, &c)
	return nil
}

func (tx *memoryTx) CreateAccount(ctx context.Context, account *domain.BankAccount) error {
	if tx.account(account.ID) != nil {
		return customError.ErrConcurrencyConflict
	}
	c := *account
	tx.accounts[account.ID] = &c
	return nil
}

func (tx *memoryTx) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	account := tx.account(id)
	if account == nil {
		return nil, customError.ErrAccountNotFound
	}
	c := *account
	return &c, nil
}

func (tx *memoryTx) AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	account := tx.account(id)
	if account == nil {
		return customError.ErrAccountNotFound
	}
	c := *account
	c.Balance = c.Balance.Add(delta)
	tx.accounts[id] = &c
	return nil
}
