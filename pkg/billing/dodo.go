package billing

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
)

const defaultDodoAPIBase = "https://live.dodopayments.com"

// DodoClient calls the Dodo Payments REST API
type DodoClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewDodoClient 创建 Dodo 客户端
func NewDodoClient(apiKey, baseURL string) *DodoClient {
	if baseURL == "" {
		baseURL = defaultDodoAPIBase
	}
	return &DodoClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type dodoPortalResponse struct {
	Link string `json:"link"`
}

// PortalLink creates a customer portal session and returns its link
func (c *DodoClient) PortalLink(ctx context.Context, customerID string) (string, error) {
	endpoint := c.baseURL + "/customers/" + url.PathEscape(customerID) + "/customer-portal/session"
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}

	var resp dodoPortalResponse
	if err := makeRequest(ctx, c.httpClient, http.MethodPost, endpoint, headers, nil, &resp); err != nil {
		return "", apperrors.Provider("dodo", "customer_portal", err)
	}
	if resp.Link == "" {
		return "", apperrors.Provider("dodo", "customer_portal", errors.New("response carried no link"))
	}
	return resp.Link, nil
}
