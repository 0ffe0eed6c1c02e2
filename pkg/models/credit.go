package models

import "time"

type CreditDirection string

const (
	CreditDirectionCredit CreditDirection = "credit"
	CreditDirectionDebit  CreditDirection = "debit"
)

// CreditTransaction is an immutable ledger row. The organization balance is
// the signed sum over its rows.
type CreditTransaction struct {
	ID             string                 `json:"id" db:"id"`
	OrganizationID string                 `json:"organization_id" db:"organization_id"`
	Type           CreditDirection        `json:"type" db:"type"`
	CreditType     string                 `json:"credit_type" db:"credit_type"`
	Amount         int64                  `json:"amount" db:"amount"`
	Reason         string                 `json:"reason" db:"reason"`
	PaymentID      string                 `json:"payment_id,omitempty" db:"payment_id"`
	Metadata       map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt      time.Time              `json:"created_at" db:"created_at"`
}

// Signed returns the amount with the direction applied
func (t CreditTransaction) Signed() int64 {
	if t.Type == CreditDirectionDebit {
		return -t.Amount
	}
	return t.Amount
}

// AdminCreditRequest is the super-admin grant/deduct payload
type AdminCreditRequest struct {
	Direction  CreditDirection `json:"direction" validate:"required,oneof=credit debit"`
	CreditType string          `json:"credit_type" validate:"required,max=64"`
	Amount     int64           `json:"amount" validate:"required,gt=0"`
	Reason     string          `json:"reason" validate:"required,max=500"`
}

// SpendCreditsRequest debits credits for a member-initiated action
type SpendCreditsRequest struct {
	CreditType string `json:"credit_type" validate:"required,max=64"`
	Amount     int64  `json:"amount" validate:"required,gt=0"`
	Reason     string `json:"reason" validate:"required,max=500"`
}
