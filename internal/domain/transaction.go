package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionKind is seen from the organization: debit is money leaving it,
// credit is money entering it.
type TransactionKind string

const (
	TransactionKindDebit  TransactionKind = "debit"
	TransactionKindCredit TransactionKind = "credit"
)

// TransactionPurpose separates the principal disbursement from the entries
// that count towards PaidAmount.
type TransactionPurpose string

const (
	TransactionPurposeDisbursement TransactionPurpose = "disbursement"
	TransactionPurposePayment      TransactionPurpose = "payment"
	TransactionPurposeRepayment    TransactionPurpose = "repayment"
)

// Transaction is an append-only ledger entry.
type Transaction struct {
	ID             uuid.UUID          `json:"id" db:"id"`
	Sequence       int64              `json:"sequence" db:"sequence"`
	LoanID         uuid.UUID          `json:"loan_id" db:"loan_id"`
	BankAccountID  *uuid.UUID         `json:"bank_account_id,omitempty" db:"bank_account_id"`
	Kind           TransactionKind    `json:"kind" db:"kind"`
	Purpose        TransactionPurpose `json:"purpose" db:"purpose"`
	Amount         decimal.Decimal    `json:"amount" db:"amount"`
	IdempotencyKey *string            `json:"idempotency_key,omitempty" db:"idempotency_key"`
	PaymentMethod  *string            `json:"payment_method,omitempty" db:"payment_method"`
	Reference      *string            `json:"reference,omitempty" db:"reference"`
	Notes          *string            `json:"notes,omitempty" db:"notes"`
	PerformedBy    string             `json:"performed_by" db:"performed_by"`
	CreatedAt      time.Time          `json:"created_at" db:"created_at"`
}

// SettlementKind returns the ledger kind of a payment against a loan of the
// given direction: borrowers paying us back is a credit, us paying a lender
// back is a debit.
func SettlementKind(d Direction) TransactionKind {
	if d == DirectionGiving {
		return TransactionKindCredit
	}
	return TransactionKindDebit
}

// DisbursementKind returns the ledger kind of the principal movement.
func DisbursementKind(d Direction) TransactionKind {
	if d == DirectionGiving {
		return TransactionKindDebit
	}
	return TransactionKindCredit
}

// SettlementPurpose names the repayment entry for the given direction.
func SettlementPurpose(d Direction) TransactionPurpose {
	if d == DirectionGiving {
		return TransactionPurposePayment
	}
	return TransactionPurposeRepayment
}

// TransactionSummary is the ledger view attached to a single loan.
type TransactionSummary struct {
	Count         int             `json:"count"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	TotalReceived decimal.Decimal `json:"total_received"`
	Transactions  []*Transaction  `json:"transactions"`
}

// Summarize totals debits (paid out) and credits (received).
func Summarize(txns []*Transaction) TransactionSummary {
	summary := TransactionSummary{
		Count:         len(txns),
		TotalPaid:     decimal.Zero,
		TotalReceived: decimal.Zero,
		Transactions:  txns,
	}
	if summary.Transactions == nil {
		summary.Transactions = []*Transaction{}
	}
	for _, t := range txns {
		switch t.Kind {
		case TransactionKindDebit:
			summary.TotalPaid = summary.TotalPaid.Add(t.Amount)
		case TransactionKindCredit:
			summary.TotalReceived = summary.TotalReceived.Add(t.Amount)
		}
	}
	return summary
}

// LedgerPaid sums the settlement entries of a loan, i.e. the PaidAmount the
// ledger supports.
func LedgerPaid(d Direction, txns []*Transaction) decimal.Decimal {
	kind := SettlementKind(d)
	paid := decimal.Zero
	for _, t := range txns {
		if t.Purpose != TransactionPurposeDisbursement && t.Kind == kind {
			paid = paid.Add(t.Amount)
		}
	}
	return paid
}

// LedgerDisbursed sums the principal movements of a loan.
func LedgerDisbursed(d Direction, txns []*Transaction) decimal.Decimal {
	kind := DisbursementKind(d)
	total := decimal.Zero
	for _, t := range txns {
		if t.Purpose == TransactionPurposeDisbursement && t.Kind == kind {
			total = total.Add(t.Amount)
		}
	}
	return total
}
