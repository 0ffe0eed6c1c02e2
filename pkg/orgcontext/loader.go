// Package orgcontext resolves the organization a signed-in user is acting in.
package orgcontext

import (
	"context"
	"errors"
	"fmt"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/billing"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"

	"github.com/rs/zerolog/log"
)

// Store is the storage the loader reads and the one selection write it makes
type Store interface {
	GetSelectedOrganization(ctx context.Context, userID string) (string, error)
	SetSelectedOrganization(ctx context.Context, userID, orgID string) error
	ListUserOrganizations(ctx context.Context, userID string) ([]models.Organization, error)
	GetMembership(ctx context.Context, userID, orgID string) (*models.OrganizationMembership, error)
	GetOrganization(ctx context.Context, orgID string) (*models.Organization, error)
	GetPlan(ctx context.Context, planID string) (*models.Plan, error)
	ListPaypalContexts(ctx context.Context, orgID string) ([]models.PaypalContext, error)
}

// OrgContext is the organization a request acts in, with the caller's role
type OrgContext struct {
	Organization    *models.Organization   `json:"organization"`
	Role            models.OrgMemberRole   `json:"role"`
	Plan            *models.Plan           `json:"plan,omitempty"`
	BillingProvider billing.Provider       `json:"billing_provider"`
	PaypalContexts  []models.PaypalContext `json:"-"`
}

// Loader 当前组织加载器
type Loader struct {
	store Store
}

func NewLoader(store Store) *Loader {
	return &Loader{store: store}
}

// Load returns the user's current organization. A stored selection is used
// while the user is still a member of it; otherwise the first organization in
// creation order is selected and persisted.
func (l *Loader) Load(ctx context.Context, user *models.User) (*OrgContext, error) {
	if user == nil || user.ID == "" {
		return nil, apperrors.ErrUnauthenticated
	}

	selected, err := l.store.GetSelectedOrganization(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if selected != "" {
		m, err := l.store.GetMembership(ctx, user.ID, selected)
		switch {
		case err == nil:
			return l.build(ctx, selected, m.Role)
		case !errors.Is(err, apperrors.ErrNotFound):
			return nil, err
		}
		log.Debug().Str("user_id", user.ID).Str("organization_id", selected).Msg("stale organization selection")
	}

	orgs, err := l.store.ListUserOrganizations(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(orgs) == 0 {
		return nil, apperrors.ErrNoOrganization
	}

	first := orgs[0]
	if first.ID != selected {
		if err := l.store.SetSelectedOrganization(ctx, user.ID, first.ID); err != nil {
			return nil, fmt.Errorf("failed to persist organization selection: %w", err)
		}
	}

	m, err := l.store.GetMembership(ctx, user.ID, first.ID)
	if err != nil {
		return nil, err
	}
	return l.build(ctx, first.ID, m.Role)
}

// Switch persists orgID as the current organization after verifying membership
func (l *Loader) Switch(ctx context.Context, user *models.User, orgID string) (*OrgContext, error) {
	if user == nil || user.ID == "" {
		return nil, apperrors.ErrUnauthenticated
	}
	m, err := l.store.GetMembership(ctx, user.ID, orgID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.ErrNotAMember
	}
	if err != nil {
		return nil, err
	}

	current, err := l.store.GetSelectedOrganization(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if current != orgID {
		if err := l.store.SetSelectedOrganization(ctx, user.ID, orgID); err != nil {
			return nil, fmt.Errorf("failed to persist organization selection: %w", err)
		}
	}
	return l.build(ctx, orgID, m.Role)
}

func (l *Loader) build(ctx context.Context, orgID string, role models.OrgMemberRole) (*OrgContext, error) {
	org, err := l.store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	oc := &OrgContext{Organization: org, Role: role}

	if org.PlanID != "" {
		plan, err := l.store.GetPlan(ctx, org.PlanID)
		switch {
		case err == nil:
			oc.Plan = plan
		case errors.Is(err, apperrors.ErrNotFound):
			log.Warn().Str("organization_id", org.ID).Str("plan_id", org.PlanID).Msg("organization references unknown plan")
		default:
			return nil, err
		}
	}

	paypal, err := l.store.ListPaypalContexts(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	oc.PaypalContexts = paypal
	oc.BillingProvider = billing.ResolveProvider(org, paypal)
	return oc, nil
}
