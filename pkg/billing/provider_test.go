package billing

import (
	"testing"

	"github.com/projectelevate-biz/tag-sub001/pkg/models"
)

func TestResolveProviderPrecedence(t *testing.T) {
	activePaypal := []models.PaypalContext{{PaypalSubscriptionID: "I-1", Status: models.PaypalActive}}

	tests := []struct {
		name   string
		org    models.Organization
		paypal []models.PaypalContext
		want   Provider
	}{
		{"empty", models.Organization{}, nil, ProviderNone},
		{"all populated", models.Organization{DodoCustomerID: "d", StripeCustomerID: "s", LemonSqueezyCustomerID: "l"}, activePaypal, ProviderDodo},
		{"stripe over lemon", models.Organization{StripeCustomerID: "s", LemonSqueezyCustomerID: "l"}, activePaypal, ProviderStripe},
		{"lemon over paypal", models.Organization{LemonSqueezyCustomerID: "l"}, activePaypal, ProviderLemonSqueezy},
		{"paypal only", models.Organization{}, activePaypal, ProviderPaypal},
		{"cancelled paypal ignored", models.Organization{}, []models.PaypalContext{{PaypalSubscriptionID: "I-1", Status: models.PaypalCancelled}}, ProviderNone},
		{"paypal without subscription id", models.Organization{}, []models.PaypalContext{{Status: models.PaypalPending}}, ProviderNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			org := tt.org
			if got := ResolveProvider(&org, tt.paypal); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}
