package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/account"
	"github.com/stripe/stripe-go/v83/accountlink"
	portalsession "github.com/stripe/stripe-go/v83/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v83/checkout/session"
	"github.com/stripe/stripe-go/v83/transfer"
)

// StripeConfig holds the Stripe settings
type StripeConfig struct {
	SecretKey string
	Currency  string
	BaseURL   string
}

// StripeClient wraps the Stripe SDK calls the platform makes. It satisfies
// PortalLinker, CheckoutCreator, ConnectAccounts and Transferer.
type StripeClient struct {
	currency string
	baseURL  string
}

// NewStripeClient sets the process-wide Stripe key once and returns a client.
func NewStripeClient(cfg StripeConfig) (*StripeClient, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("stripe secret key is required")
	}
	stripe.Key = cfg.SecretKey

	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = "usd"
	}
	return &StripeClient{currency: currency, baseURL: strings.TrimRight(cfg.BaseURL, "/")}, nil
}

// PortalLink creates a billing portal session for the customer
func (c *StripeClient) PortalLink(ctx context.Context, customerID string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(c.baseURL + "/app/billing"),
	}
	params.Context = ctx
	s, err := portalsession.New(params)
	if err != nil {
		return "", apperrors.Provider("stripe", "billing_portal", err)
	}
	return s.URL, nil
}

// CreateCheckout opens a payment-mode checkout session for a pending invoice.
// The invoice id travels in the session metadata and comes back on
// checkout.session.completed.
func (c *StripeClient) CreateCheckout(ctx context.Context, inv *models.Invoice, title string) (*CheckoutSession, error) {
	currency := inv.Currency
	if currency == "" {
		currency = c.currency
	}
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(c.baseURL + "/app/invoices/" + inv.ID + "?paid=1"),
		CancelURL:  stripe.String(c.baseURL + "/app/invoices/" + inv.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(inv.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(title),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			TransferGroup: stripe.String(TransferGroup(inv.ID)),
		},
		Metadata: map[string]string{"invoiceId": inv.ID},
	}
	params.Context = ctx
	s, err := checkoutsession.New(params)
	if err != nil {
		return nil, apperrors.Provider("stripe", "checkout", err)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// CreateExpressAccount creates an Express connected account for a consultant
func (c *StripeClient) CreateExpressAccount(ctx context.Context, email, consultantID string) (string, error) {
	params := &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: stripe.String(email),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.AddMetadata("consultantId", consultantID)
	params.Context = ctx
	acct, err := account.New(params)
	if err != nil {
		return "", apperrors.Provider("stripe", "create_account", err)
	}
	return acct.ID, nil
}

// OnboardingLink always creates a fresh account_onboarding link
func (c *StripeClient) OnboardingLink(ctx context.Context, accountID string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(c.baseURL + "/app/consultant/connect?refresh=1"),
		ReturnURL:  stripe.String(c.baseURL + "/app/consultant/connect?done=1"),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx
	link, err := accountlink.New(params)
	if err != nil {
		return "", apperrors.Provider("stripe", "account_link", err)
	}
	return link.URL, nil
}

// Transfer moves funds to a connected account
func (c *StripeClient) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	currency := req.Currency
	if currency == "" {
		currency = c.currency
	}
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(currency),
		Destination: stripe.String(req.Destination),
	}
	if req.TransferGroup != "" {
		params.TransferGroup = stripe.String(req.TransferGroup)
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	// 出款 worker 的单任务超时经由 ctx 传到 Stripe
	params.Context = ctx

	tr, err := transfer.New(params)
	if err != nil {
		return "", apperrors.Provider("stripe", "transfer", describeStripeError(err))
	}
	return tr.ID, nil
}

// TransferGroup is the provider-side grouping key for an invoice's money movement
func TransferGroup(invoiceID string) string {
	return "invoice_" + invoiceID
}

func describeStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return fmt.Errorf("%s (%s): %w", stripeErr.Msg, stripeErr.Code, err)
	}
	return err
}
