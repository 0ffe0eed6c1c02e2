package billing

import (
	"context"
	"fmt"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"
)

// RoleAuthorizer is the role gate
type RoleAuthorizer interface {
	Authorize(ctx context.Context, user *models.User, orgID string, required models.OrgMemberRole) (*models.OrganizationMembership, error)
}

// CheckoutStore is the storage CheckoutService needs
type CheckoutStore interface {
	GetInvoice(ctx context.Context, id string) (*models.Invoice, error)
	GetEngagement(ctx context.Context, id string) (*models.Engagement, error)
	SetInvoiceCheckoutSession(ctx context.Context, id, sessionID string) error
}

// CheckoutService opens hosted checkouts for pending invoices
type CheckoutService struct {
	store    CheckoutStore
	gate     RoleAuthorizer
	sessions CheckoutCreator
}

func NewCheckoutService(store CheckoutStore, gate RoleAuthorizer, sessions CheckoutCreator) *CheckoutService {
	return &CheckoutService{store: store, gate: gate, sessions: sessions}
}

// CreateInvoiceCheckout requires admin on the engagement's client organization
func (s *CheckoutService) CreateInvoiceCheckout(ctx context.Context, user *models.User, invoiceID string) (*CheckoutSession, error) {
	inv, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	eng, err := s.store.GetEngagement(ctx, inv.EngagementID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Authorize(ctx, user, eng.ClientID, models.RoleAdmin); err != nil {
		return nil, err
	}
	if inv.Status != models.InvoicePending {
		return nil, fmt.Errorf("%w: invoice is %s", apperrors.ErrInvalidTransition, inv.Status)
	}
	if s.sessions == nil {
		return nil, fmt.Errorf("%w: stripe is not configured", apperrors.ErrNotImplemented)
	}

	cs, err := s.sessions.CreateCheckout(ctx, inv, eng.Title)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetInvoiceCheckoutSession(ctx, inv.ID, cs.ID); err != nil {
		return nil, fmt.Errorf("failed to store checkout session: %w", err)
	}
	return cs, nil
}
