package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors
var (
	ErrNotFound             = errors.New("not found")
	ErrLoanNotFound         = fmt.Errorf("loan %w", ErrNotFound)
	ErrAccountNotFound      = fmt.Errorf("bank account %w", ErrNotFound)
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrImmutableField       = errors.New("immutable field violation")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrOverpaymentRejected  = errors.New("overpayment rejected")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrHasTransactions      = errors.New("loan has transactions")
	ErrConcurrencyConflict  = errors.New("concurrency conflict")
	ErrInvalidRequest       = errors.New("invalid request")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeLoanNotFound         = "LOAN_NOT_FOUND"
	ErrCodeAccountNotFound      = "ACCOUNT_NOT_FOUND"
	ErrCodeInvalidTransition    = "INVALID_TRANSITION"
	ErrCodeImmutableField       = "IMMUTABLE_FIELD_VIOLATION"
	ErrCodeInvalidAmount        = "INVALID_AMOUNT"
	ErrCodeOverpaymentRejected  = "OVERPAYMENT_REJECTED"
	ErrCodeDuplicateTransaction = "DUPLICATE_TRANSACTION"
	ErrCodeHasTransactions      = "HAS_TRANSACTIONS"
	ErrCodeConcurrencyConflict  = "CONCURRENCY_CONFLICT"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeDatabaseError        = "DATABASE_ERROR"
	ErrCodeCacheError           = "CACHE_ERROR"
)

// Code returns the business code carried by err, or "" when err is not a
// BusinessError.
func Code(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// IsRetryable reports whether the caller may retry the operation unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

func WrapLoanNotFound(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanNotFound,
		fmt.Sprintf("Loan with ID %s not found", loanID),
		ErrLoanNotFound,
	)
}

func WrapAccountNotFound(accountID string) *BusinessError {
	return NewBusinessError(
		ErrCodeAccountNotFound,
		fmt.Sprintf("Bank account with ID %s not found", accountID),
		ErrAccountNotFound,
	)
}

func WrapInvalidTransition(loanID, from, event string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidTransition,
		fmt.Sprintf("Loan %s cannot %s from status %s", loanID, event, from),
		ErrInvalidTransition,
	)
}

func WrapImmutableField(fields ...string) *BusinessError {
	return NewBusinessError(
		ErrCodeImmutableField,
		fmt.Sprintf("Fields cannot be changed after creation: %s", strings.Join(fields, ", ")),
		ErrImmutableField,
	)
}

func WrapInvalidAmount(amount string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidAmount,
		fmt.Sprintf("Invalid amount: %s", amount),
		ErrInvalidAmount,
	)
}

func WrapOverpaymentRejected(loanID, amount, due string) *BusinessError {
	return NewBusinessError(
		ErrCodeOverpaymentRejected,
		fmt.Sprintf("Amount %s exceeds due amount %s on loan %s", amount, due, loanID),
		ErrOverpaymentRejected,
	)
}

func WrapDuplicateTransaction(loanID, key string) *BusinessError {
	return NewBusinessError(
		ErrCodeDuplicateTransaction,
		fmt.Sprintf("Transaction with idempotency key %q already recorded for loan %s", key, loanID),
		ErrDuplicateTransaction,
	)
}

// WrapHasTransactions reports a blocked delete. A count of zero or less
// means the exact count is unknown and is left out of the message.
func WrapHasTransactions(loanID string, count int) *BusinessError {
	message := fmt.Sprintf("Loan %s has %d transactions and cannot be deleted", loanID, count)
	if count <= 0 {
		message = fmt.Sprintf("Loan %s has transactions and cannot be deleted", loanID)
	}
	return NewBusinessError(ErrCodeHasTransactions, message, ErrHasTransactions)
}

func WrapConcurrencyConflict(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeConcurrencyConflict,
		fmt.Sprintf("Loan %s was modified concurrently, retry the request", loanID),
		ErrConcurrencyConflict,
	)
}

func WrapInvalidRequest(message string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidRequest,
		message,
		ErrInvalidRequest,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}
