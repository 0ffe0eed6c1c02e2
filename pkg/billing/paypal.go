package billing

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const defaultPaypalAPIBase = "https://api-m.paypal.com"

// PaypalConfig PayPal REST 凭据
type PaypalConfig struct {
	ClientID     string
	ClientSecret string
	APIBase      string
}

// PaypalClient calls the PayPal subscriptions API with an app access token
type PaypalClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPaypalClient builds a client whose transport fetches and caches the
// client-credentials token.
func NewPaypalClient(cfg PaypalConfig) *PaypalClient {
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = defaultPaypalAPIBase
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     base + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	// the token source keeps this context for refreshes
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: 15 * time.Second})
	client := cc.Client(ctx)
	client.Timeout = 20 * time.Second

	return &PaypalClient{baseURL: base, httpClient: client}
}

// CancelSubscription cancels a billing subscription by its PayPal id
func (c *PaypalClient) CancelSubscription(ctx context.Context, subscriptionID, reason string) error {
	if reason == "" {
		reason = "Cancelled by organization"
	}
	endpoint := c.baseURL + "/v1/billing/subscriptions/" + url.PathEscape(subscriptionID) + "/cancel"
	body := map[string]string{"reason": reason}
	if err := makeRequest(ctx, c.httpClient, http.MethodPost, endpoint, nil, body, nil); err != nil {
		return apperrors.Provider("paypal", "cancel_subscription", err)
	}
	return nil
}
