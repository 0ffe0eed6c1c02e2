package billing

import (
	"context"

	"github.com/projectelevate-biz/tag-sub001/pkg/models"
)

// CheckoutSession is the hosted payment page for one invoice
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// TransferRequest describes a payout to a connected account. Amounts are in
// the smallest currency unit.
type TransferRequest struct {
	Destination    string
	Amount         int64
	Currency       string
	TransferGroup  string
	IdempotencyKey string
	Metadata       map[string]string
}

// ConnectResult is returned to the consultant after starting onboarding
type ConnectResult struct {
	AccountID string `json:"account_id"`
	URL       string `json:"url"`
}

// PortalLinker returns a customer self-service billing URL
type PortalLinker interface {
	PortalLink(ctx context.Context, customerID string) (string, error)
}

// CheckoutCreator opens a hosted checkout for an invoice
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, inv *models.Invoice, title string) (*CheckoutSession, error)
}

// ConnectAccounts manages Stripe Connect Express accounts
type ConnectAccounts interface {
	CreateExpressAccount(ctx context.Context, email, consultantID string) (string, error)
	OnboardingLink(ctx context.Context, accountID string) (string, error)
}

// Transferer issues transfers to connected accounts
type Transferer interface {
	Transfer(ctx context.Context, req TransferRequest) (string, error)
}

// SubscriptionCanceller cancels a provider-side subscription
type SubscriptionCanceller interface {
	CancelSubscription(ctx context.Context, subscriptionID, reason string) error
}
