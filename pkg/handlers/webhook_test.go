package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/projectelevate-biz/tag-sub001/pkg/database"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"
	"github.com/projectelevate-biz/tag-sub001/pkg/reconcile"

	"github.com/stripe/stripe-go/v83/webhook"
)

const testWebhookSecret = "whsec_test_rebound"

type stubEvents struct {
	ack *reconcile.Ack
	err error
}

func (s stubEvents) HandlePaymentEvent(context.Context, []byte, string) (*reconcile.Ack, error) {
	return s.ack, s.err
}

type countingQueue struct{ n int }

func (q *countingQueue) Enqueue(context.Context, string) error {
	q.n++
	return nil
}

func pendingInvoice(t *testing.T, db *database.LocalDatabase) *models.Invoice {
	t.Helper()
	ctx := context.Background()
	eng := &models.Engagement{ConsultantID: "c1", ClientID: "o1", Title: "Grant audit", Status: models.EngagementActive}
	if err := db.CreateEngagement(ctx, eng); err != nil {
		t.Fatalf("engagement: %v", err)
	}
	inv := &models.Invoice{EngagementID: eng.ID, Amount: 500000, CommissionAmount: 50000, Currency: "usd", Status: models.InvoicePending}
	if err := db.CreateInvoice(ctx, inv); err != nil {
		t.Fatalf("invoice: %v", err)
	}
	return inv
}

func checkoutCompletedPayload(invoiceID string) []byte {
	return []byte(`{
  "id": "evt_rebound_1",
  "object": "event",
  "api_version": "2025-01-27.acacia",
  "type": "checkout.session.completed",
  "data": {"object": {"id": "cs_test_1", "object": "checkout.session", "payment_intent": "pi_1", "amount_total": 500000, "metadata": {"invoiceId": "` + invoiceID + `"}}}
}`)
}

func postWebhook(h *WebhookHandler, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe-rebound", strings.NewReader(string(payload)))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	h.HandleStripe(rec, req)
	return rec
}

func TestStripeWebhookInvalidSignatureChangesNothing(t *testing.T) {
	db := database.NewLocalDatabase()
	inv := pendingInvoice(t, db)
	queue := &countingQueue{}
	h := NewWebhookHandler(reconcile.NewReconciler(testWebhookSecret, db, queue))

	payload := checkoutCompletedPayload(inv.ID)
	bad := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_someone_else",
		Timestamp: time.Now(),
	})

	for _, sig := range []string{"", "t=1,v1=deadbeef", bad.Header} {
		rec := postWebhook(h, payload, sig)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("signature %q: expected 400, got %d", sig, rec.Code)
		}
	}

	got, _ := db.GetInvoice(context.Background(), inv.ID)
	if got.Status != models.InvoicePending {
		t.Fatalf("invoice must stay pending, got %s", got.Status)
	}
	if logs, _ := db.ListAuditLogs(context.Background(), "invoice", inv.ID); len(logs) != 0 {
		t.Fatalf("expected no audit rows, got %d", len(logs))
	}
	if queue.n != 0 {
		t.Fatalf("expected no payouts enqueued, got %d", queue.n)
	}
}

func TestStripeWebhookAcknowledgesRedelivery(t *testing.T) {
	db := database.NewLocalDatabase()
	inv := pendingInvoice(t, db)
	queue := &countingQueue{}
	h := NewWebhookHandler(reconcile.NewReconciler(testWebhookSecret, db, queue))

	payload := checkoutCompletedPayload(inv.ID)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})

	statuses := []string{}
	for i := 0; i < 2; i++ {
		rec := postWebhook(h, payload, signed.Header)
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d: %s", i, rec.Code, rec.Body.String())
		}
		var ack reconcile.Ack
		if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil || !ack.Received {
			t.Fatalf("expected {received:true}, got %s", rec.Body.String())
		}
		statuses = append(statuses, ack.Status)
	}
	if statuses[0] != reconcile.StatusProcessed || statuses[1] != reconcile.StatusDuplicate {
		t.Fatalf("unexpected statuses %v", statuses)
	}
	if queue.n != 1 {
		t.Fatalf("expected exactly one enqueue, got %d", queue.n)
	}
}
