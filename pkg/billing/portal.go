package billing

import (
	"context"
	"fmt"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"
)

// PortalService routes billing-portal requests to the organization's provider
type PortalService struct {
	stripe PortalLinker
	dodo   PortalLinker
}

// NewPortalService accepts nil linkers for providers that are not configured
func NewPortalService(stripe, dodo PortalLinker) *PortalService {
	return &PortalService{stripe: stripe, dodo: dodo}
}

// Link returns the self-service portal URL. Providers without a portal
// integration yield apperrors.ErrNotImplemented.
func (s *PortalService) Link(ctx context.Context, org *models.Organization, provider Provider) (string, error) {
	switch provider {
	case ProviderStripe:
		if s.stripe == nil {
			return "", fmt.Errorf("%w: stripe is not configured", apperrors.ErrNotImplemented)
		}
		return s.stripe.PortalLink(ctx, org.StripeCustomerID)
	case ProviderDodo:
		if s.dodo == nil {
			return "", fmt.Errorf("%w: dodo is not configured", apperrors.ErrNotImplemented)
		}
		return s.dodo.PortalLink(ctx, org.DodoCustomerID)
	default:
		return "", fmt.Errorf("%w: billing portal for provider %q", apperrors.ErrNotImplemented, provider)
	}
}
