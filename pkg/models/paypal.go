package models

import "time"

type PaypalContextStatus string

const (
	PaypalPending   PaypalContextStatus = "pending"
	PaypalActive    PaypalContextStatus = "active"
	PaypalCancelled PaypalContextStatus = "cancelled"
)

// PaypalContext is one row per PayPal subscription attempt
type PaypalContext struct {
	ID                   string              `json:"id" db:"id"`
	OrganizationID       string              `json:"organization_id" db:"organization_id"`
	UserID               string              `json:"user_id" db:"user_id"`
	PlanID               string              `json:"plan_id" db:"plan_id"`
	Status               PaypalContextStatus `json:"status" db:"status"`
	PaypalSubscriptionID string              `json:"paypal_subscription_id,omitempty" db:"paypal_subscription_id"`
	CreatedAt            time.Time           `json:"created_at" db:"created_at"`
}

// CreatePaypalContextRequest records a subscription attempt started in the PayPal widget
type CreatePaypalContextRequest struct {
	PlanID               string `json:"plan_id" validate:"required"`
	PaypalSubscriptionID string `json:"paypal_subscription_id" validate:"omitempty,max=64"`
}
