package models

import "time"

type EngagementStatus string

const (
	EngagementProposed  EngagementStatus = "PROPOSED"
	EngagementActive    EngagementStatus = "ACTIVE"
	EngagementCompleted EngagementStatus = "COMPLETED"
	EngagementCancelled EngagementStatus = "CANCELLED"
)

// Engagement is a contracted unit of work between a client organization and a consultant
type Engagement struct {
	ID           string           `json:"id" db:"id"`
	ConsultantID string           `json:"consultant_id" db:"consultant_id"`
	ClientID     string           `json:"client_id" db:"client_id"`
	Title        string           `json:"title" db:"title"`
	Description  string           `json:"description,omitempty" db:"description"`
	Status       EngagementStatus `json:"status" db:"status"`
	Budget       int64            `json:"budget" db:"budget"`
	CreatedBy    string           `json:"created_by" db:"created_by"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
}

type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "PENDING"
	InvoicePaid      InvoiceStatus = "PAID"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
)

// Invoice amounts are in the smallest currency unit (cents)
type Invoice struct {
	ID                string        `json:"id" db:"id"`
	EngagementID      string        `json:"engagement_id" db:"engagement_id"`
	Amount            int64         `json:"amount" db:"amount"`
	CommissionAmount  int64         `json:"commission_amount" db:"commission_amount"`
	Currency          string        `json:"currency" db:"currency"`
	Description       string        `json:"description,omitempty" db:"description"`
	Status            InvoiceStatus `json:"status" db:"status"`
	CheckoutSessionID string        `json:"checkout_session_id,omitempty" db:"checkout_session_id"`
	PaidAt            *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
}

// MaxChargeAmount Stripe 单笔收款上限（最小货币单位）
const MaxChargeAmount = 99999999

// CreateEngagementRequest is issued by an admin of the client organization
type CreateEngagementRequest struct {
	ConsultantID string `json:"consultant_id" validate:"required"`
	Title        string `json:"title" validate:"required,min=3,max=200"`
	Description  string `json:"description" validate:"max=5000"`
	Budget       int64  `json:"budget" validate:"gte=0,lte=99999999"`
}

// CreateInvoiceRequest is issued by the engagement's consultant
type CreateInvoiceRequest struct {
	Amount      int64  `json:"amount" validate:"required,gt=0,lte=99999999"`
	Description string `json:"description" validate:"max=1000"`
}
