package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DashboardFilter struct {
	DateFrom  *time.Time `json:"date_from,omitempty"`
	DateTo    *time.Time `json:"date_to,omitempty"`
	BranchID  string     `json:"branch_id,omitempty"`
	Direction Direction  `json:"direction,omitempty"`
}

// StatusTotals counts loans by status. Closed counts Completed loans.
type StatusTotals struct {
	TotalLoans int `json:"total_loans"`
	Active     int `json:"active"`
	Pending    int `json:"pending"`
	Closed     int `json:"closed"`
	Rejected   int `json:"rejected"`
	Overdue    int `json:"overdue"`
}

type FinancialSummary struct {
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	TotalDue    decimal.Decimal `json:"total_due"`
	Disbursed   decimal.Decimal `json:"disbursed"`
	Repaid      decimal.Decimal `json:"repaid"`
}

type DirectionSummary struct {
	Totals    StatusTotals     `json:"totals"`
	Financial FinancialSummary `json:"financial"`
}

type CashflowSummary struct {
	TotalTransactions int             `json:"total_transactions"`
	TotalDebit        decimal.Decimal `json:"total_debit"`
	TotalCredit       decimal.Decimal `json:"total_credit"`
	NetCashflow       decimal.Decimal `json:"net_cashflow"`
}

type CashflowByDirection struct {
	Giving    CashflowSummary `json:"giving"`
	Receiving CashflowSummary `json:"receiving"`
}

type TransactionTotals struct {
	CashflowSummary
	ByDirection CashflowByDirection `json:"by_direction"`
}

type Dashboard struct {
	Totals       StatusTotals      `json:"totals"`
	Giving       DirectionSummary  `json:"giving"`
	Receiving    DirectionSummary  `json:"receiving"`
	Transactions TransactionTotals `json:"transactions"`
}

// NewFinancialSummary returns a summary with every amount at zero.
func NewFinancialSummary() FinancialSummary {
	return FinancialSummary{
		TotalAmount: decimal.Zero,
		PaidAmount:  decimal.Zero,
		TotalDue:    decimal.Zero,
		Disbursed:   decimal.Zero,
		Repaid:      decimal.Zero,
	}
}

func NewCashflowSummary() CashflowSummary {
	return CashflowSummary{
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
		NetCashflow: decimal.Zero,
	}
}

// Add accounts one ledger entry.
func (c *CashflowSummary) Add(t *Transaction) {
	c.TotalTransactions++
	switch t.Kind {
	case TransactionKindDebit:
		c.TotalDebit = c.TotalDebit.Add(t.Amount)
	case TransactionKindCredit:
		c.TotalCredit = c.TotalCredit.Add(t.Amount)
	}
	c.NetCashflow = c.TotalCredit.Sub(c.TotalDebit)
}

// Add counts a loan under its status.
func (s *StatusTotals) Add(status LoanStatus) {
	s.TotalLoans++
	switch status {
	case LoanStatusActive:
		s.Active++
	case LoanStatusPending:
		s.Pending++
	case LoanStatusCompleted:
		s.Closed++
	case LoanStatusRejected:
		s.Rejected++
	case LoanStatusOverdue:
		s.Overdue++
	}
}
