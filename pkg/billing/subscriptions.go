package billing

import (
	"context"
	"fmt"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"

	"github.com/rs/zerolog/log"
)

// OwnerOrCreatorAuthorizer is the dual-condition guard used for cancellation
type OwnerOrCreatorAuthorizer interface {
	AuthorizeOwnerOrCreator(ctx context.Context, user *models.User, orgID, creatorID string) error
}

// SubscriptionStore is the storage SubscriptionService needs
type SubscriptionStore interface {
	GetPaypalContext(ctx context.Context, id string) (*models.PaypalContext, error)
	UpdatePaypalContextStatus(ctx context.Context, id string, status models.PaypalContextStatus) error
	AppendAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// SubscriptionService cancels PayPal subscriptions recorded in paypal contexts
type SubscriptionService struct {
	store  SubscriptionStore
	gate   OwnerOrCreatorAuthorizer
	paypal SubscriptionCanceller
}

func NewSubscriptionService(store SubscriptionStore, gate OwnerOrCreatorAuthorizer, paypal SubscriptionCanceller) *SubscriptionService {
	return &SubscriptionService{store: store, gate: gate, paypal: paypal}
}

// CancelSubscription cancels the subscription behind contextID. The caller
// must be an admin or owner of orgID, or the user who created the context.
// Cancelling an already cancelled context is a no-op.
func (s *SubscriptionService) CancelSubscription(ctx context.Context, user *models.User, orgID, contextID string) error {
	if user == nil {
		return apperrors.ErrUnauthenticated
	}
	pc, err := s.store.GetPaypalContext(ctx, contextID)
	if err != nil {
		return err
	}
	if pc.OrganizationID != orgID {
		return apperrors.NotFound("paypal context")
	}

	if err := s.gate.AuthorizeOwnerOrCreator(ctx, user, orgID, pc.UserID); err != nil {
		return err
	}

	if pc.Status == models.PaypalCancelled {
		return nil
	}
	if pc.PaypalSubscriptionID == "" {
		return apperrors.Invalid("paypal context %s has no subscription id", pc.ID)
	}
	if s.paypal == nil {
		return fmt.Errorf("%w: paypal is not configured", apperrors.ErrNotImplemented)
	}

	if err := s.paypal.CancelSubscription(ctx, pc.PaypalSubscriptionID, ""); err != nil {
		log.Error().Err(err).
			Str("context_id", pc.ID).
			Str("subscription_id", pc.PaypalSubscriptionID).
			Str("organization_id", orgID).
			Msg("paypal subscription cancellation failed")
		return err
	}

	if err := s.store.UpdatePaypalContextStatus(ctx, pc.ID, models.PaypalCancelled); err != nil {
		return fmt.Errorf("failed to update paypal context: %w", err)
	}

	audit := &models.AuditLog{
		ActorID:    user.ID,
		Action:     models.AuditPaypalSubscriptionEnded,
		EntityType: "paypal_context",
		EntityID:   pc.ID,
		Details: map[string]interface{}{
			"organizationId":       orgID,
			"paypalSubscriptionId": pc.PaypalSubscriptionID,
		},
	}
	if err := s.store.AppendAuditLog(ctx, audit); err != nil {
		log.Error().Err(err).Str("context_id", pc.ID).Msg("failed to write cancellation audit log")
	}
	return nil
}
