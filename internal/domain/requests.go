package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DTOs for requests and responses

type CreateLoanRequest struct {
	Direction      string          `json:"direction" validate:"required"`
	TotalAmount    decimal.Decimal `json:"total_amount" validate:"gt=0"`
	BranchID       string          `json:"branch_id" validate:"required"`
	Profile        Profile         `json:"profile"`
	CommitmentDate *time.Time      `json:"commitment_date,omitempty"`
	BankAccountID  *uuid.UUID      `json:"bank_account_id,omitempty"`
	Notes          *string         `json:"notes,omitempty"`
	CreatedBy      string          `json:"created_by" validate:"required"`
}

type ApproveLoanRequest struct {
	TargetAccountID uuid.UUID `json:"target_account_id" validate:"required"`
	ApprovedBy      string    `json:"approved_by" validate:"required"`
	Notes           *string   `json:"notes,omitempty"`
}

type RejectLoanRequest struct {
	RejectionReason string  `json:"rejection_reason" validate:"required"`
	RejectedBy      string  `json:"rejected_by" validate:"required"`
	Notes           *string `json:"notes,omitempty"`
}

// PaymentRequest serves both RecordPayment (giving) and RecordRepayment
// (receiving). Amount is checked by the service so a non-positive value
// surfaces as INVALID_AMOUNT.
type PaymentRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
	BankAccountID  *uuid.UUID      `json:"bank_account_id,omitempty"`
	PaymentMethod  *string         `json:"payment_method,omitempty"`
	Reference      *string         `json:"reference,omitempty"`
	Notes          *string         `json:"notes,omitempty"`
	PerformedBy    string          `json:"performed_by" validate:"required"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateLoanRequest edits profile data only. The immutable fields are
// decoded so that an attempt to send them can be refused explicitly instead
// of being dropped.
type UpdateLoanRequest struct {
	Name           *string    `json:"name,omitempty"`
	Phone          *string    `json:"phone,omitempty"`
	Email          *string    `json:"email,omitempty"`
	Address        *string    `json:"address,omitempty"`
	IdentityType   *string    `json:"identity_type,omitempty"`
	IdentityNumber *string    `json:"identity_number,omitempty"`
	CommitmentDate *time.Time `json:"commitment_date,omitempty"`
	Notes          *string    `json:"notes,omitempty"`

	ID          *string          `json:"id,omitempty"`
	Direction   *string          `json:"direction,omitempty"`
	TotalAmount *decimal.Decimal `json:"total_amount,omitempty"`
	PaidAmount  *decimal.Decimal `json:"paid_amount,omitempty"`
	Status      *string          `json:"status,omitempty"`
	CreatedBy   *string          `json:"created_by,omitempty"`
	CreatedAt   *time.Time       `json:"created_at,omitempty"`
}

// ImmutableFields lists the protected fields present in the request.
func (r *UpdateLoanRequest) ImmutableFields() []string {
	var fields []string
	if r.ID != nil {
		fields = append(fields, "id")
	}
	if r.Direction != nil {
		fields = append(fields, "direction")
	}
	if r.TotalAmount != nil {
		fields = append(fields, "total_amount")
	}
	if r.PaidAmount != nil {
		fields = append(fields, "paid_amount")
	}
	if r.Status != nil {
		fields = append(fields, "status")
	}
	if r.CreatedBy != nil {
		fields = append(fields, "created_by")
	}
	if r.CreatedAt != nil {
		fields = append(fields, "created_at")
	}
	return fields
}

// Apply copies the provided profile edits onto loan.
func (r *UpdateLoanRequest) Apply(loan *Loan) {
	if r.Name != nil {
		loan.Name = *r.Name
	}
	if r.Phone != nil {
		loan.Phone = r.Phone
	}
	if r.Email != nil {
		loan.Email = r.Email
	}
	if r.Address != nil {
		loan.Address = r.Address
	}
	if r.IdentityType != nil {
		loan.IdentityType = r.IdentityType
	}
	if r.IdentityNumber != nil {
		loan.IdentityNumber = r.IdentityNumber
	}
	if r.CommitmentDate != nil {
		loan.CommitmentDate = r.CommitmentDate
	}
	if r.Notes != nil {
		loan.Notes = r.Notes
	}
}

type ListLoansQuery struct {
	Direction string     `json:"direction,omitempty"`
	Status    string     `json:"status,omitempty"`
	BranchID  string     `json:"branch_id,omitempty"`
	DateFrom  *time.Time `json:"date_from,omitempty"`
	DateTo    *time.Time `json:"date_to,omitempty"`
	Search    string     `json:"search,omitempty"`
	Page      int        `json:"page"`
	Limit     int        `json:"limit"`
}

type LoanList struct {
	Loans       []*Loan `json:"loans"`
	Count       int     `json:"count"`
	TotalCount  int     `json:"total_count"`
	CurrentPage int     `json:"current_page"`
	TotalPages  int     `json:"total_pages"`
}

type LoanDetail struct {
	Loan               *Loan              `json:"loan"`
	TransactionSummary TransactionSummary `json:"transaction_summary"`
	Reconciled         bool               `json:"reconciled"`
}
