package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BankAccount is the account an approved disbursement lands in.
type BankAccount struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	BankName      *string         `json:"bank_name,omitempty" db:"bank_name"`
	AccountNumber *string         `json:"account_number,omitempty" db:"account_number"`
	BranchID      string          `json:"branch_id" db:"branch_id"`
	Balance       decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

type CreateAccountRequest struct {
	Name           string          `json:"name" validate:"required"`
	BankName       *string         `json:"bank_name,omitempty"`
	AccountNumber  *string         `json:"account_number,omitempty"`
	BranchID       string          `json:"branch_id" validate:"required"`
	OpeningBalance decimal.Decimal `json:"opening_balance" validate:"gte=0"`
}
