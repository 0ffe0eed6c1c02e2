package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/reconcile"
	"github.com/projectelevate-biz/tag-sub001/pkg/utils"

	"github.com/rs/zerolog/log"
)

// Stripe 事件体上限
const maxWebhookBody = int64(65536)

// PaymentEventHandler applies a verified payment event
type PaymentEventHandler interface {
	HandlePaymentEvent(ctx context.Context, payload []byte, signature string) (*reconcile.Ack, error)
}

// WebhookHandler 处理webhook相关的请求
type WebhookHandler struct {
	events PaymentEventHandler
}

// NewWebhookHandler 创建新的webhook处理器
func NewWebhookHandler(events PaymentEventHandler) *WebhookHandler {
	return &WebhookHandler{events: events}
}

// POST /api/webhooks/stripe-rebound
// Replies {received:true} once the event is applied or safely ignored.
// Verification and payload errors reply 400 {error}; storage errors reply
// 500 so Stripe redelivers.
func (h *WebhookHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeWebhookError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	ack, err := h.events.HandlePaymentEvent(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		utils.WriteJSON(w, http.StatusOK, ack)
	case reconcile.IsSignatureError(err):
		writeWebhookError(w, http.StatusBadRequest, "Webhook signature verification failed")
	case errors.Is(err, apperrors.ErrInvalidInput):
		writeWebhookError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("stripe webhook processing failed")
		writeWebhookError(w, http.StatusInternalServerError, "Webhook processing failed")
	}
}

func writeWebhookError(w http.ResponseWriter, status int, message string) {
	utils.WriteJSON(w, status, map[string]string{"error": message})
}
