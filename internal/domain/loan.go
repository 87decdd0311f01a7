package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction tells whether the organization lent the money out or borrowed it.
type Direction string

const (
	DirectionGiving    Direction = "giving"
	DirectionReceiving Direction = "receiving"
)

// ParseDirection normalizes a direction received at the boundary.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case DirectionGiving:
		return DirectionGiving, nil
	case DirectionReceiving:
		return DirectionReceiving, nil
	}
	return "", fmt.Errorf("unknown loan direction %q", s)
}

// LoanStatus is the closed set of lifecycle states.
type LoanStatus string

const (
	LoanStatusPending   LoanStatus = "Pending"
	LoanStatusActive    LoanStatus = "Active"
	LoanStatusCompleted LoanStatus = "Completed"
	LoanStatusOverdue   LoanStatus = "Overdue"
	LoanStatusRejected  LoanStatus = "Rejected"
)

var loanStatuses = []LoanStatus{
	LoanStatusPending,
	LoanStatusActive,
	LoanStatusCompleted,
	LoanStatusOverdue,
	LoanStatusRejected,
}

// ParseLoanStatus accepts any casing ("active", "ACTIVE", "Active"). "closed"
// is accepted as an alias of Completed.
func ParseLoanStatus(s string) (LoanStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if normalized == "closed" {
		return LoanStatusCompleted, nil
	}
	for _, st := range loanStatuses {
		if strings.ToLower(string(st)) == normalized {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown loan status %q", s)
}

// Profile carries the borrower or lender details. Only Name is required.
type Profile struct {
	Name           string  `json:"name" db:"party_name" validate:"required"`
	Phone          *string `json:"phone,omitempty" db:"party_phone"`
	Email          *string `json:"email,omitempty" db:"party_email"`
	Address        *string `json:"address,omitempty" db:"party_address"`
	IdentityType   *string `json:"identity_type,omitempty" db:"party_identity_type"`
	IdentityNumber *string `json:"identity_number,omitempty" db:"party_identity_number"`
}

// Loan represents a loan entity. DueAmount is never stored; see DueAmount.
type Loan struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	Direction      Direction       `json:"direction" db:"direction"`
	Status         LoanStatus      `json:"status" db:"status"`
	TotalAmount    decimal.Decimal `json:"total_amount" db:"total_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount" db:"paid_amount"`
	BranchID       string          `json:"branch_id" db:"branch_id"`
	Profile        `json:"profile"`
	CommitmentDate *time.Time `json:"commitment_date,omitempty" db:"commitment_date"`
	CompletionDate *time.Time `json:"completion_date,omitempty" db:"completion_date"`

	CreatedBy       string     `json:"created_by" db:"created_by"`
	CreatedByName   *string    `json:"created_by_name,omitempty" db:"created_by_name"`
	ApprovedBy      *string    `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedByName  *string    `json:"approved_by_name,omitempty" db:"approved_by_name"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	RejectedBy      *string    `json:"rejected_by,omitempty" db:"rejected_by"`
	RejectedByName  *string    `json:"rejected_by_name,omitempty" db:"rejected_by_name"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty" db:"rejected_at"`
	RejectionReason *string    `json:"rejection_reason,omitempty" db:"rejection_reason"`
	Notes           *string    `json:"notes,omitempty" db:"notes"`

	Version   int64     `json:"version" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DueAmount is max(0, TotalAmount - PaidAmount).
func (l *Loan) DueAmount() decimal.Decimal {
	due := l.TotalAmount.Sub(l.PaidAmount)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// IsTerminal reports whether no further transition can leave the status.
func (l *Loan) IsTerminal() bool {
	return l.Status == LoanStatusCompleted || l.Status == LoanStatusRejected
}

// MarshalJSON adds the derived due_amount to the serialized loan.
func (l Loan) MarshalJSON() ([]byte, error) {
	type plain Loan
	return json.Marshal(struct {
		plain
		DueAmount decimal.Decimal `json:"due_amount"`
	}{
		plain:     plain(l),
		DueAmount: l.DueAmount(),
	})
}

// Clone returns a shallow copy. Pointer fields are only ever replaced, never
// written through, so sharing them is safe.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}
