// Package reconcile applies Stripe payment events to invoices.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"
)

const eventCheckoutCompleted = "checkout.session.completed"

// Ack statuses
const (
	StatusProcessed = "processed"
	StatusDuplicate = "duplicate"
	StatusIgnored   = "ignored"
)

// Store is the conditional invoice write reconciliation depends on
type Store interface {
	MarkInvoicePaid(ctx context.Context, invoiceID string, audit *models.AuditLog) (bool, error)
}

// PayoutEnqueuer hands a paid invoice to the payout workers
type PayoutEnqueuer interface {
	Enqueue(ctx context.Context, invoiceID string) error
}

// Ack is returned to the webhook caller
type Ack struct {
	Received bool   `json:"received"`
	Status   string `json:"status"`
}

// Reconciler 支付事件对账
type Reconciler struct {
	secret  string
	store   Store
	payouts PayoutEnqueuer
}

func NewReconciler(secret string, store Store, payouts PayoutEnqueuer) *Reconciler {
	return &Reconciler{secret: secret, store: store, payouts: payouts}
}

type checkoutSession struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	AmountTotal   int64             `json:"amount_total"`
	Metadata      map[string]string `json:"metadata"`
}

// HandlePaymentEvent verifies payload against the webhook secret and applies
// it. A checkout.session.completed carrying metadata.invoiceId moves that
// invoice from PENDING to PAID; only the delivery that performs the
// transition writes the audit row and enqueues the payout.
func (r *Reconciler) HandlePaymentEvent(ctx context.Context, payload []byte, signature string) (*Ack, error) {
	if r.secret == "" || signature == "" {
		return nil, apperrors.ErrInvalidSignature
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, r.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		log.Warn().Err(err).Msg("stripe webhook signature rejected")
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidSignature, err)
	}

	switch event.Type {
	case eventCheckoutCompleted:
		return r.checkoutCompleted(ctx, &event)
	default:
		log.Info().Str("type", string(event.Type)).Str("event_id", event.ID).Msg("stripe webhook ignored (unhandled type)")
		return &Ack{Received: true, Status: StatusIgnored}, nil
	}
}

func (r *Reconciler) checkoutCompleted(ctx context.Context, event *stripe.Event) (*Ack, error) {
	if event.Data == nil {
		return nil, apperrors.Invalid("event %s has no data", event.ID)
	}
	var session checkoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, apperrors.Invalid("decode checkout.session: %v", err)
	}

	invoiceID := session.Metadata["invoiceId"]
	if invoiceID == "" {
		log.Info().Str("event_id", event.ID).Str("session_id", session.ID).Msg("checkout completed without invoice metadata")
		return &Ack{Received: true, Status: StatusIgnored}, nil
	}

	audit := &models.AuditLog{
		Action:     models.AuditInvoicePaid,
		EntityType: "invoice",
		EntityID:   invoiceID,
		Details: map[string]interface{}{
			"checkoutSessionId": session.ID,
			"paymentIntentId":   session.PaymentIntent,
			"eventId":           event.ID,
		},
	}
	transitioned, err := r.store.MarkInvoicePaid(ctx, invoiceID, audit)
	if err != nil {
		return nil, fmt.Errorf("failed to mark invoice paid: %w", err)
	}
	if !transitioned {
		log.Info().Str("invoice_id", invoiceID).Str("event_id", event.ID).Msg("invoice not pending; webhook acknowledged without changes")
		return &Ack{Received: true, Status: StatusDuplicate}, nil
	}

	log.Info().Str("invoice_id", invoiceID).Str("session_id", session.ID).Msg("invoice marked paid")
	if r.payouts != nil {
		if err := r.payouts.Enqueue(ctx, invoiceID); err != nil {
			// the invoice is already PAID; a manual payout is the recovery path
			log.Error().Err(err).Str("invoice_id", invoiceID).Msg("failed to enqueue payout")
		}
	}
	return &Ack{Received: true, Status: StatusProcessed}, nil
}

// IsSignatureError reports whether err came from signature verification
func IsSignatureError(err error) bool {
	return errors.Is(err, apperrors.ErrInvalidSignature)
}
