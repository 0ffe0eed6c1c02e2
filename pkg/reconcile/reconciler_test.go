package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/database"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"

	"github.com/stripe/stripe-go/v83/webhook"
)

const testSecret = "whsec_test"

type countingQueue struct {
	mu  sync.Mutex
	ids []string
}

func (q *countingQueue) Enqueue(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return nil
}

func checkoutPayload(invoiceID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_test_1", "object": "checkout.session", "metadata": {"invoiceId": %q}}}
	}`, invoiceID))
}

func sign(payload []byte, secret string) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	}).Header
}

func pendingInvoice(t *testing.T, db *database.LocalDatabase) *models.Invoice {
	t.Helper()
	ctx := context.Background()
	eng := &models.Engagement{ConsultantID: "c1", ClientID: "o1", Title: "Accreditation prep", Status: models.EngagementActive}
	db.CreateEngagement(ctx, eng)
	inv := &models.Invoice{EngagementID: eng.ID, Amount: 500000, CommissionAmount: 50000, Currency: "usd", Status: models.InvoicePending}
	if err := db.CreateInvoice(ctx, inv); err != nil {
		t.Fatalf("invoice: %v", err)
	}
	return inv
}

func TestDuplicateDeliveryPaysOnce(t *testing.T) {
	ctx := context.Background()
	db := database.NewLocalDatabase()
	queue := &countingQueue{}
	r := NewReconciler(testSecret, db, queue)
	inv := pendingInvoice(t, db)

	payload := checkoutPayload(inv.ID)
	first, err := r.HandlePaymentEvent(ctx, payload, sign(payload, testSecret))
	if err != nil || first.Status != StatusProcessed {
		t.Fatalf("first delivery: %+v %v", first, err)
	}
	second, err := r.HandlePaymentEvent(ctx, payload, sign(payload, testSecret))
	if err != nil || !second.Received || second.Status != StatusDuplicate {
		t.Fatalf("second delivery: %+v %v", second, err)
	}

	got, _ := db.GetInvoice(ctx, inv.ID)
	if got.Status != models.InvoicePaid {
		t.Fatalf("invoice not paid: %s", got.Status)
	}
	logs, _ := db.ListAuditLogs(ctx, "invoice", inv.ID)
	if len(logs) != 1 || logs[0].Details["checkoutSessionId"] != "cs_test_1" {
		t.Fatalf("expected one audit row with session id, got %+v", logs)
	}
	if len(queue.ids) != 1 || queue.ids[0] != inv.ID {
		t.Fatalf("expected exactly one payout enqueue, got %v", queue.ids)
	}
}

func TestConcurrentDeliveriesPayOnce(t *testing.T) {
	ctx := context.Background()
	db := database.NewLocalDatabase()
	queue := &countingQueue{}
	r := NewReconciler(testSecret, db, queue)
	inv := pendingInvoice(t, db)
	payload := checkoutPayload(inv.ID)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.HandlePaymentEvent(ctx, payload, sign(payload, testSecret))
		}()
	}
	wg.Wait()

	logs, _ := db.ListAuditLogs(ctx, "invoice", inv.ID)
	if len(logs) != 1 || len(queue.ids) != 1 {
		t.Fatalf("expected one audit row and one enqueue, got %d and %d", len(logs), len(queue.ids))
	}
}

func TestInvalidSignatureChangesNothing(t *testing.T) {
	ctx := context.Background()
	db := database.NewLocalDatabase()
	queue := &countingQueue{}
	r := NewReconciler(testSecret, db, queue)
	inv := pendingInvoice(t, db)
	payload := checkoutPayload(inv.ID)

	for _, sig := range []string{"", "t=1,v1=deadbeef", sign(payload, "whsec_other")} {
		if _, err := r.HandlePaymentEvent(ctx, payload, sig); !errors.Is(err, apperrors.ErrInvalidSignature) {
			t.Fatalf("signature %q: expected invalid signature, got %v", sig, err)
		}
	}

	got, _ := db.GetInvoice(ctx, inv.ID)
	logs, _ := db.ListAuditLogs(ctx, "", "")
	if got.Status != models.InvoicePending || len(logs) != 0 || len(queue.ids) != 0 {
		t.Fatalf("invalid signature mutated state: %s, %d audit rows, %d enqueues", got.Status, len(logs), len(queue.ids))
	}
}

func TestUnknownInvoiceAndOtherEventsAreAcknowledged(t *testing.T) {
	ctx := context.Background()
	db := database.NewLocalDatabase()
	r := NewReconciler(testSecret, db, &countingQueue{})

	payload := checkoutPayload("does-not-exist")
	ack, err := r.HandlePaymentEvent(ctx, payload, sign(payload, testSecret))
	if err != nil || !ack.Received {
		t.Fatalf("unknown invoice: %+v %v", ack, err)
	}

	other := []byte(`{"id":"evt_2","object":"event","type":"invoice.created","data":{"object":{"id":"in_1","object":"invoice"}}}`)
	ack, err = r.HandlePaymentEvent(ctx, other, sign(other, testSecret))
	if err != nil || ack.Status != StatusIgnored {
		t.Fatalf("other event: %+v %v", ack, err)
	}
}
