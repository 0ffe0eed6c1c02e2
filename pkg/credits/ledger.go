// Package credits is the organization credit ledger. Balances are always the
// signed sum of the append-only transaction rows.
package credits

import (
	"context"
	"strings"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"

	"github.com/rs/zerolog/log"
)

// Store 账本存储
type Store interface {
	AppendCreditTransaction(ctx context.Context, tx *models.CreditTransaction) (int64, error)
	GetCreditBalance(ctx context.Context, orgID, creditType string) (int64, error)
	ListCreditTransactions(ctx context.Context, orgID string, limit int) ([]models.CreditTransaction, error)
	RebuildCreditCache(ctx context.Context, orgID string) (int64, error)
	AppendAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// Entry is one requested ledger movement
type Entry struct {
	OrganizationID string
	CreditType     string
	Direction      models.CreditDirection
	Amount         int64
	Reason         string
	PaymentRef     string
	Metadata       map[string]interface{}
	ActorID        string
}

// Ledger 积分账本
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Append validates and records e, returning the new balance of e.CreditType.
// A debit larger than that balance fails with apperrors.ErrInsufficientCredits
// and records nothing.
func (l *Ledger) Append(ctx context.Context, e Entry) (int64, error) {
	if e.Amount <= 0 {
		return 0, apperrors.Invalid("amount must be greater than zero")
	}
	if e.Direction != models.CreditDirectionCredit && e.Direction != models.CreditDirectionDebit {
		return 0, apperrors.Invalid("direction must be credit or debit")
	}
	creditType := strings.TrimSpace(e.CreditType)
	if creditType == "" {
		return 0, apperrors.Invalid("credit type is required")
	}

	metadata := make(map[string]interface{}, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		metadata[k] = v
	}
	if e.ActorID != "" {
		metadata["actorId"] = e.ActorID
	}

	tx := &models.CreditTransaction{
		OrganizationID: e.OrganizationID,
		Type:           e.Direction,
		CreditType:     creditType,
		Amount:         e.Amount,
		Reason:         e.Reason,
		PaymentID:      e.PaymentRef,
		Metadata:       metadata,
	}
	balance, err := l.store.AppendCreditTransaction(ctx, tx)
	if err != nil {
		return 0, err
	}

	log.Info().
		Str("organization_id", e.OrganizationID).
		Str("credit_type", creditType).
		Str("direction", string(e.Direction)).
		Int64("amount", e.Amount).
		Int64("balance", balance).
		Msg("credit transaction recorded")
	return balance, nil
}

// Balance sums every transaction of orgID, filtered by creditType when set
func (l *Ledger) Balance(ctx context.Context, orgID, creditType string) (int64, error) {
	return l.store.GetCreditBalance(ctx, orgID, strings.TrimSpace(creditType))
}

// History returns the latest transactions first
func (l *Ledger) History(ctx context.Context, orgID string, limit int) ([]models.CreditTransaction, error) {
	return l.store.ListCreditTransactions(ctx, orgID, limit)
}

// RebuildCache recomputes the organization's cached credits column
func (l *Ledger) RebuildCache(ctx context.Context, orgID string) (int64, error) {
	return l.store.RebuildCreditCache(ctx, orgID)
}

// AdminAdjust records a super-admin grant or deduction and audits it
func (l *Ledger) AdminAdjust(ctx context.Context, actor *models.User, orgID string, req models.AdminCreditRequest) (int64, error) {
	if actor == nil {
		return 0, apperrors.ErrUnauthenticated
	}
	balance, err := l.Append(ctx, Entry{
		OrganizationID: orgID,
		CreditType:     req.CreditType,
		Direction:      req.Direction,
		Amount:         req.Amount,
		Reason:         req.Reason,
		Metadata:       map[string]interface{}{"adminAction": true},
		ActorID:        actor.ID,
	})
	if err != nil {
		return 0, err
	}

	action := models.AuditCreditsGranted
	if req.Direction == models.CreditDirectionDebit {
		action = models.AuditCreditsDeducted
	}
	audit := &models.AuditLog{
		ActorID:    actor.ID,
		Action:     action,
		EntityType: "organization",
		EntityID:   orgID,
		Details: map[string]interface{}{
			"creditType": req.CreditType,
			"amount":     req.Amount,
			"reason":     req.Reason,
			"balance":    balance,
		},
	}
	if err := l.store.AppendAuditLog(ctx, audit); err != nil {
		log.Error().Err(err).Str("organization_id", orgID).Msg("failed to write credit audit log")
	}
	return balance, nil
}
