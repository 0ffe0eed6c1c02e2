// Package billing adapts the payment providers (Stripe, Stripe Connect,
// PayPal, Dodo) behind small interfaces used by handlers and the payout
// dispatcher.
package billing

import "github.com/projectelevate-biz/tag-sub001/pkg/models"

// Provider identifies which billing backend owns an organization
type Provider string

const (
	ProviderNone         Provider = "none"
	ProviderDodo         Provider = "dodo"
	ProviderStripe       Provider = "stripe"
	ProviderLemonSqueezy Provider = "lemonsqueezy"
	ProviderPaypal       Provider = "paypal"
)

// ResolveProvider picks the organization's billing provider. An organization
// may carry stale ids from several providers; the first populated one in the
// order Dodo, Stripe, LemonSqueezy, PayPal wins.
func ResolveProvider(org *models.Organization, paypal []models.PaypalContext) Provider {
	if org == nil {
		return ProviderNone
	}
	switch {
	case org.DodoCustomerID != "":
		return ProviderDodo
	case org.StripeCustomerID != "":
		return ProviderStripe
	case org.LemonSqueezyCustomerID != "":
		return ProviderLemonSqueezy
	}
	for _, pc := range paypal {
		if pc.PaypalSubscriptionID != "" && pc.Status != models.PaypalCancelled {
			return ProviderPaypal
		}
	}
	return ProviderNone
}
