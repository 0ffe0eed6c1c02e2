package models

import "time"

type ConsultantStatus string

const (
	ConsultantDraft     ConsultantStatus = "DRAFT"
	ConsultantSubmitted ConsultantStatus = "SUBMITTED"
	ConsultantActive    ConsultantStatus = "ACTIVE"
	ConsultantRejected  ConsultantStatus = "REJECTED"
)

// ConsultantProfile is a user's marketplace-facing profile subject to admin review
type ConsultantProfile struct {
	ID                  string           `json:"id" db:"id"`
	UserID              string           `json:"user_id" db:"user_id"`
	Headline            string           `json:"headline" db:"headline"`
	Bio                 string           `json:"bio,omitempty" db:"bio"`
	HourlyRate          int64            `json:"hourly_rate" db:"hourly_rate"`
	Status              ConsultantStatus `json:"status" db:"status"`
	StripeAccountID     string           `json:"stripe_account_id,omitempty" db:"stripe_account_id"`
	StripeOnboardingURL string           `json:"stripe_onboarding_url,omitempty" db:"stripe_onboarding_url"`
	PayoutsEnabled      bool             `json:"payouts_enabled" db:"payouts_enabled"`
	ReviewedBy          string           `json:"reviewed_by,omitempty" db:"reviewed_by"`
	RejectionReason     string           `json:"rejection_reason,omitempty" db:"rejection_reason"`
	SubmittedAt         *time.Time       `json:"submitted_at,omitempty" db:"submitted_at"`
	ReviewedAt          *time.Time       `json:"reviewed_at,omitempty" db:"reviewed_at"`
	CreatedAt           time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at" db:"updated_at"`
}

// ConsultantProfileRequest is the PUT /api/app/consultant/profile payload
type ConsultantProfileRequest struct {
	Headline   string `json:"headline" validate:"required,min=3,max=200"`
	Bio        string `json:"bio" validate:"max=5000"`
	HourlyRate int64  `json:"hourly_rate" validate:"gte=0"`
}

// RejectConsultantRequest carries the reviewer's reason
type RejectConsultantRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}
