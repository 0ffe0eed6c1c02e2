package models

import "time"

// Organization is the billing/tenant unit. Credits is a derived cache of the
// credit transaction sum and is never written directly.
type Organization struct {
	ID                     string    `json:"id" db:"id"`
	Name                   string    `json:"name" db:"name"`
	PlanID                 string    `json:"plan_id,omitempty" db:"plan_id"`
	StripeCustomerID       string    `json:"stripe_customer_id,omitempty" db:"stripe_customer_id"`
	DodoCustomerID         string    `json:"dodo_customer_id,omitempty" db:"dodo_customer_id"`
	LemonSqueezyCustomerID string    `json:"lemonsqueezy_customer_id,omitempty" db:"lemonsqueezy_customer_id"`
	Credits                int64     `json:"credits" db:"credits"`
	CreatedAt              time.Time `json:"created_at" db:"created_at"`
}

type OrgMemberRole string

const (
	RoleOwner OrgMemberRole = "owner"
	RoleAdmin OrgMemberRole = "admin"
	RoleUser  OrgMemberRole = "user"
)

// Rank orders roles by privilege. Unknown roles rank 0 and never satisfy a gate.
func (r OrgMemberRole) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleUser:
		return 1
	default:
		return 0
	}
}

// Valid reports whether r is one of the known roles
func (r OrgMemberRole) Valid() bool {
	return r.Rank() > 0
}

// OrganizationMembership relates users to organizations with a role
type OrganizationMembership struct {
	ID             string        `json:"id" db:"id"`
	OrganizationID string        `json:"organization_id" db:"organization_id"`
	UserID         string        `json:"user_id" db:"user_id"`
	Role           OrgMemberRole `json:"role" db:"role"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

// Plan describes what an organization's subscription grants
type Plan struct {
	ID             string   `json:"id" db:"id"`
	Name           string   `json:"name" db:"name"`
	Codename       string   `json:"codename" db:"codename"`
	MonthlyCredits int64    `json:"monthly_credits" db:"monthly_credits"`
	Features       []string `json:"features" db:"features"`
}

// CreateOrganizationRequest is the POST /api/app/organizations payload
type CreateOrganizationRequest struct {
	Name   string `json:"name" validate:"required,min=1,max=120"`
	PlanID string `json:"plan_id" validate:"omitempty"`
}

// SwitchOrganizationRequest is the POST /api/app/organizations/current payload
type SwitchOrganizationRequest struct {
	OrganizationID string `json:"organization_id" validate:"required"`
}

// AddMemberRequest adds an existing user to the current organization
type AddMemberRequest struct {
	UserID string        `json:"user_id" validate:"required"`
	Role   OrgMemberRole `json:"role" validate:"required,oneof=owner admin user"`
}

// UpdateMemberRoleRequest changes an existing member's role
type UpdateMemberRoleRequest struct {
	Role OrgMemberRole `json:"role" validate:"required,oneof=owner admin user"`
}
