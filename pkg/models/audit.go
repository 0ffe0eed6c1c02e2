package models

import "time"

// Audit actions
const (
	AuditInvoicePaid             = "INVOICE_PAID"
	AuditPayoutInitiated         = "PAYOUT_INITIATED"
	AuditPayoutFailed            = "PAYOUT_FAILED"
	AuditManualPayout            = "MANUAL_PAYOUT"
	AuditCreditsGranted          = "CREDITS_GRANTED"
	AuditCreditsDeducted         = "CREDITS_DEDUCTED"
	AuditConsultantSubmitted     = "CONSULTANT_SUBMITTED"
	AuditConsultantApproved      = "CONSULTANT_APPROVED"
	AuditConsultantRejected      = "CONSULTANT_REJECTED"
	AuditPaypalSubscriptionEnded = "PAYPAL_SUBSCRIPTION_CANCELLED"
)

// AuditLog is an append-only record of privileged or payment-triggering actions.
// ActorID is empty for system actors (webhooks, workers).
type AuditLog struct {
	ID         string                 `json:"id" db:"id"`
	ActorID    string                 `json:"actor_id,omitempty" db:"actor_id"`
	Action     string                 `json:"action" db:"action"`
	EntityType string                 `json:"entity_type" db:"entity_type"`
	EntityID   string                 `json:"entity_id" db:"entity_id"`
	Details    map[string]interface{} `json:"details,omitempty" db:"details"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
}

// ManualPayoutRequest is the super-admin payout payload
type ManualPayoutRequest struct {
	ConsultantID string `json:"consultant_id" validate:"required"`
	Amount       int64  `json:"amount" validate:"required,gt=0"`
	Reason       string `json:"reason" validate:"required,max=500"`
}
