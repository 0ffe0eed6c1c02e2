package billing

import (
	"context"
	"fmt"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"

	"github.com/rs/zerolog/log"
)

// ConnectStore persists a consultant's connected account
type ConnectStore interface {
	SetConsultantStripeAccount(ctx context.Context, id, accountID, onboardingURL string) error
}

// ConnectService onboards consultants onto Stripe Connect
type ConnectService struct {
	store    ConnectStore
	accounts ConnectAccounts
}

func NewConnectService(store ConnectStore, accounts ConnectAccounts) *ConnectService {
	return &ConnectService{store: store, accounts: accounts}
}

// CreateConnectedPayoutAccount reuses the profile's account when it has one,
// otherwise creates an Express account. A fresh onboarding link is generated
// on every call and persisted together with the account id.
func (s *ConnectService) CreateConnectedPayoutAccount(ctx context.Context, user *models.User, profile *models.ConsultantProfile) (*ConnectResult, error) {
	if user == nil {
		return nil, apperrors.ErrUnauthenticated
	}
	if profile.UserID != user.ID {
		return nil, fmt.Errorf("%w: only the profile owner may connect a payout account", apperrors.ErrForbidden)
	}
	if s.accounts == nil {
		return nil, fmt.Errorf("%w: stripe connect is not configured", apperrors.ErrNotImplemented)
	}

	accountID := profile.StripeAccountID
	if accountID == "" {
		id, err := s.accounts.CreateExpressAccount(ctx, user.Email, profile.ID)
		if err != nil {
			log.Error().Err(err).Str("consultant_id", profile.ID).Msg("stripe account creation failed")
			return nil, err
		}
		accountID = id
	}

	url, err := s.accounts.OnboardingLink(ctx, accountID)
	if err != nil {
		log.Error().Err(err).Str("consultant_id", profile.ID).Str("account_id", accountID).Msg("stripe onboarding link failed")
		// keep a newly created account so the next attempt reuses it
		if profile.StripeAccountID == "" {
			if perr := s.store.SetConsultantStripeAccount(ctx, profile.ID, accountID, ""); perr != nil {
				log.Error().Err(perr).Str("consultant_id", profile.ID).Str("account_id", accountID).Msg("persisting new stripe account failed; account is orphaned")
			}
		}
		return nil, err
	}

	if err := s.store.SetConsultantStripeAccount(ctx, profile.ID, accountID, url); err != nil {
		return nil, fmt.Errorf("failed to persist connected account: %w", err)
	}
	profile.StripeAccountID = accountID
	profile.StripeOnboardingURL = url

	return &ConnectResult{AccountID: accountID, URL: url}, nil
}
