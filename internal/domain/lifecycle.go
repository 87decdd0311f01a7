package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LoanEvent drives a status transition.
type LoanEvent string

const (
	EventApprove     LoanEvent = "approve"
	EventReject      LoanEvent = "reject"
	EventPayment     LoanEvent = "record payment"
	EventSettle      LoanEvent = "settle"
	EventMarkOverdue LoanEvent = "mark overdue"
)

// transitions lists every legal edge. Creation is handled by InitialStatus.
var transitions = map[LoanStatus]map[LoanEvent]LoanStatus{
	LoanStatusPending: {
		EventApprove: LoanStatusActive,
		EventReject:  LoanStatusRejected,
	},
	LoanStatusActive: {
		EventPayment:     LoanStatusActive,
		EventSettle:      LoanStatusCompleted,
		EventMarkOverdue: LoanStatusOverdue,
	},
	LoanStatusOverdue: {
		EventPayment: LoanStatusActive,
		EventSettle:  LoanStatusCompleted,
	},
}

// statusUpdateEvents are the edges reachable through a bare status update.
// Every other edge either writes to the ledger or records audit data
// (rejection reason and rejector) and has a dedicated operation.
var statusUpdateEvents = []LoanEvent{EventMarkOverdue}

// InitialStatus is Active for giving loans, since the principal leaves at
// creation, and Pending for receiving loans awaiting approval.
func InitialStatus(d Direction) LoanStatus {
	if d == DirectionGiving {
		return LoanStatusActive
	}
	return LoanStatusPending
}

// Transition returns the status reached from `from` on event ev.
func Transition(from LoanStatus, ev LoanEvent) (LoanStatus, bool) {
	to, ok := transitions[from][ev]
	return to, ok
}

// StatusUpdateEvent finds the event behind an explicit from -> to update.
func StatusUpdateEvent(from, to LoanStatus) (LoanEvent, bool) {
	for _, ev := range statusUpdateEvents {
		if target, ok := transitions[from][ev]; ok && target == to {
			return ev, true
		}
	}
	return "", false
}

// SettlementEvent picks EventSettle when the loan is paid off after applying
// a payment, EventPayment otherwise.
func SettlementEvent(l *Loan) LoanEvent {
	if l.DueAmount().IsZero() {
		return EventSettle
	}
	return EventPayment
}

// Reconcile checks that the ledger reproduces the loan's paid amount and,
// once disbursed, its principal.
func Reconcile(l *Loan, txns []*Transaction) error {
	for _, t := range txns {
		if t.LoanID != l.ID {
			return fmt.Errorf("transaction %s belongs to loan %s, not %s", t.ID, t.LoanID, l.ID)
		}
		if !t.Amount.IsPositive() {
			return fmt.Errorf("transaction %s has non-positive amount %s", t.ID, t.Amount)
		}
	}

	if paid := LedgerPaid(l.Direction, txns); !paid.Equal(l.PaidAmount) {
		return fmt.Errorf("ledger paid %s does not match loan paid amount %s", paid, l.PaidAmount)
	}

	expected := decimal.Zero
	if l.Status != LoanStatusPending && l.Status != LoanStatusRejected {
		expected = l.TotalAmount
	}
	if disbursed := LedgerDisbursed(l.Direction, txns); !disbursed.Equal(expected) {
		return fmt.Errorf("ledger disbursed %s, expected %s", disbursed, expected)
	}
	return nil
}
