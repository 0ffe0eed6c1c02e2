// Package engagements creates engagements between client organizations and
// consultants and the invoices billed against them.
package engagements

import (
	"context"
	"fmt"
	"strings"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"
)

const DefaultCommissionBps int64 = 1000

// Store 合作与发票存储
type Store interface {
	GetConsultantProfile(ctx context.Context, id string) (*models.ConsultantProfile, error)
	CreateEngagement(ctx context.Context, e *models.Engagement) error
	GetEngagement(ctx context.Context, id string) (*models.Engagement, error)
	ListEngagementsByOrganization(ctx context.Context, orgID string) ([]models.Engagement, error)
	CreateInvoice(ctx context.Context, inv *models.Invoice) error
}

// RoleAuthorizer is the role gate
type RoleAuthorizer interface {
	Authorize(ctx context.Context, user *models.User, orgID string, required models.OrgMemberRole) (*models.OrganizationMembership, error)
}

type Service struct {
	store         Store
	gate          RoleAuthorizer
	commissionBps int64
	currency      string
}

func NewService(store Store, gate RoleAuthorizer, commissionBps int64, currency string) *Service {
	if commissionBps < 0 || commissionBps > 10000 {
		commissionBps = DefaultCommissionBps
	}
	if currency == "" {
		currency = "usd"
	}
	return &Service{store: store, gate: gate, commissionBps: commissionBps, currency: strings.ToLower(currency)}
}

// Commission is the platform's cut of amount, rounded down. bps is in
// [0, 10000]; the split keeps the products inside int64.
func Commission(amount, bps int64) int64 {
	return amount/10000*bps + amount%10000*bps/10000
}

// Create opens an engagement for orgID with an ACTIVE consultant. Admins only.
func (s *Service) Create(ctx context.Context, user *models.User, orgID string, req models.CreateEngagementRequest) (*models.Engagement, error) {
	if _, err := s.gate.Authorize(ctx, user, orgID, models.RoleAdmin); err != nil {
		return nil, err
	}
	if req.Budget < 0 || req.Budget > models.MaxChargeAmount {
		return nil, apperrors.Invalid("budget must be between 0 and %d", int64(models.MaxChargeAmount))
	}
	consultant, err := s.store.GetConsultantProfile(ctx, req.ConsultantID)
	if err != nil {
		return nil, err
	}
	if consultant.Status != models.ConsultantActive {
		return nil, apperrors.Invalid("consultant %s is not active", consultant.ID)
	}

	e := &models.Engagement{
		ConsultantID: consultant.ID,
		ClientID:     orgID,
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		Status:       models.EngagementProposed,
		Budget:       req.Budget,
		CreatedBy:    user.ID,
	}
	if err := s.store.CreateEngagement(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// List returns orgID's engagements to any member
func (s *Service) List(ctx context.Context, user *models.User, orgID string) ([]models.Engagement, error) {
	if _, err := s.gate.Authorize(ctx, user, orgID, models.RoleUser); err != nil {
		return nil, err
	}
	return s.store.ListEngagementsByOrganization(ctx, orgID)
}

// CreateInvoice bills an engagement. Only the engagement's consultant may
// invoice, and the platform commission is fixed at creation.
func (s *Service) CreateInvoice(ctx context.Context, user *models.User, engagementID string, req models.CreateInvoiceRequest) (*models.Invoice, error) {
	if user == nil {
		return nil, apperrors.ErrUnauthenticated
	}
	if req.Amount <= 0 || req.Amount > models.MaxChargeAmount {
		return nil, apperrors.Invalid("amount must be between 1 and %d", int64(models.MaxChargeAmount))
	}
	eng, err := s.store.GetEngagement(ctx, engagementID)
	if err != nil {
		return nil, err
	}
	consultant, err := s.store.GetConsultantProfile(ctx, eng.ConsultantID)
	if err != nil {
		return nil, err
	}
	if consultant.UserID != user.ID {
		return nil, fmt.Errorf("%w: only the engagement's consultant may invoice it", apperrors.ErrForbidden)
	}
	if eng.Status == models.EngagementCancelled || eng.Status == models.EngagementCompleted {
		return nil, fmt.Errorf("%w: engagement is %s", apperrors.ErrInvalidTransition, eng.Status)
	}

	inv := &models.Invoice{
		EngagementID:     eng.ID,
		Amount:           req.Amount,
		CommissionAmount: Commission(req.Amount, s.commissionBps),
		Currency:         s.currency,
		Description:      req.Description,
		Status:           models.InvoicePending,
	}
	if err := s.store.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}
