// Package payouts pays consultants their share of paid invoices through
// their connected Stripe account.
package payouts

import (
	"context"
	"fmt"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/billing"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	ReasonNoAccount = "No Stripe account connected"
	ReasonNoAmount  = "No payout amount"
)

// Store 发放所需的存储
type Store interface {
	GetInvoice(ctx context.Context, id string) (*models.Invoice, error)
	GetEngagement(ctx context.Context, id string) (*models.Engagement, error)
	GetConsultantProfile(ctx context.Context, id string) (*models.ConsultantProfile, error)
	AppendAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// SuperAdminChecker guards manual payouts
type SuperAdminChecker interface {
	RequireSuperAdmin(user *models.User) error
}

// Result is either a transfer or a skip with its reason
type Result struct {
	Success    bool   `json:"success"`
	Skipped    bool   `json:"skipped,omitempty"`
	Reason     string `json:"reason,omitempty"`
	TransferID string `json:"transfer_id,omitempty"`
	Amount     int64  `json:"amount"`
}

// Dispatcher 顾问打款
type Dispatcher struct {
	store     Store
	transfers billing.Transferer
	admins    SuperAdminChecker
	currency  string
}

func NewDispatcher(store Store, transfers billing.Transferer, admins SuperAdminChecker, currency string) *Dispatcher {
	if currency == "" {
		currency = "usd"
	}
	return &Dispatcher{store: store, transfers: transfers, admins: admins, currency: currency}
}

// PayoutAmount is what the consultant receives for an invoice
func PayoutAmount(inv *models.Invoice) int64 {
	return inv.Amount - inv.CommissionAmount
}

// Payout transfers invoice.amount - invoice.commission to the consultant.
// A missing connected account or a non-positive amount is a skip, not an
// error. Every transfer attempt is audited with its amount.
func (d *Dispatcher) Payout(ctx context.Context, invoiceID string) (*Result, error) {
	inv, err := d.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	eng, err := d.store.GetEngagement(ctx, inv.EngagementID)
	if err != nil {
		return nil, err
	}
	consultant, err := d.store.GetConsultantProfile(ctx, eng.ConsultantID)
	if err != nil {
		return nil, err
	}

	if consultant.StripeAccountID == "" {
		log.Info().Str("invoice_id", inv.ID).Str("consultant_id", consultant.ID).Msg("payout skipped: no connected account")
		return &Result{Skipped: true, Reason: ReasonNoAccount}, nil
	}
	amount := PayoutAmount(inv)
	if amount <= 0 {
		log.Info().Str("invoice_id", inv.ID).Int64("amount", amount).Msg("payout skipped: nothing to pay")
		return &Result{Skipped: true, Reason: ReasonNoAmount, Amount: amount}, nil
	}

	currency := inv.Currency
	if currency == "" {
		currency = d.currency
	}
	req := billing.TransferRequest{
		Destination:    consultant.StripeAccountID,
		Amount:         amount,
		Currency:       currency,
		TransferGroup:  billing.TransferGroup(inv.ID),
		IdempotencyKey: "payout_" + inv.ID,
		Metadata: map[string]string{
			"invoiceId":    inv.ID,
			"engagementId": eng.ID,
			"consultantId": consultant.ID,
		},
	}
	transferID, err := d.transfer(ctx, req)
	if err != nil {
		d.audit(ctx, &models.AuditLog{
			Action:     models.AuditPayoutFailed,
			EntityType: "invoice",
			EntityID:   inv.ID,
			Details: map[string]interface{}{
				"amount":       amount,
				"consultantId": consultant.ID,
				"error":        err.Error(),
			},
		})
		log.Error().Err(err).Str("invoice_id", inv.ID).Int64("amount", amount).Msg("payout transfer failed")
		return nil, err
	}

	d.audit(ctx, &models.AuditLog{
		Action:     models.AuditPayoutInitiated,
		EntityType: "invoice",
		EntityID:   inv.ID,
		Details: map[string]interface{}{
			"amount":        amount,
			"consultantId":  consultant.ID,
			"transferId":    transferID,
			"transferGroup": req.TransferGroup,
		},
	})
	log.Info().Str("invoice_id", inv.ID).Str("transfer_id", transferID).Int64("amount", amount).Msg("payout initiated")
	return &Result{Success: true, TransferID: transferID, Amount: amount}, nil
}

// ManualPayout sends an explicit amount to a consultant outside the invoice
// flow. Super admins only.
func (d *Dispatcher) ManualPayout(ctx context.Context, actor *models.User, req models.ManualPayoutRequest) (*Result, error) {
	if err := d.admins.RequireSuperAdmin(actor); err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, apperrors.Invalid("amount must be greater than zero")
	}
	consultant, err := d.store.GetConsultantProfile(ctx, req.ConsultantID)
	if err != nil {
		return nil, err
	}
	if consultant.StripeAccountID == "" {
		return &Result{Skipped: true, Reason: ReasonNoAccount}, nil
	}

	transferID, err := d.transfer(ctx, billing.TransferRequest{
		Destination:    consultant.StripeAccountID,
		Amount:         req.Amount,
		Currency:       d.currency,
		IdempotencyKey: "manual_payout_" + uuid.NewString(),
		Metadata: map[string]string{
			"consultantId": consultant.ID,
			"manual":       "true",
		},
	})
	if err != nil {
		log.Error().Err(err).Str("consultant_id", consultant.ID).Int64("amount", req.Amount).Msg("manual payout failed")
		return nil, err
	}

	d.audit(ctx, &models.AuditLog{
		ActorID:    actor.ID,
		Action:     models.AuditManualPayout,
		EntityType: "consultant",
		EntityID:   consultant.ID,
		Details: map[string]interface{}{
			"amount":     req.Amount,
			"reason":     req.Reason,
			"transferId": transferID,
		},
	})
	return &Result{Success: true, TransferID: transferID, Amount: req.Amount}, nil
}

func (d *Dispatcher) transfer(ctx context.Context, req billing.TransferRequest) (string, error) {
	if d.transfers == nil {
		return "", fmt.Errorf("%w: stripe transfers are not configured", apperrors.ErrNotImplemented)
	}
	return d.transfers.Transfer(ctx, req)
}

// audit failures after a transfer are logged and otherwise tolerated
func (d *Dispatcher) audit(ctx context.Context, entry *models.AuditLog) {
	if err := d.store.AppendAuditLog(ctx, entry); err != nil {
		log.Error().Err(err).Str("action", entry.Action).Str("entity_id", entry.EntityID).Msg("failed to write payout audit log")
	}
}
