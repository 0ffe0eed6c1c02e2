// Package consultants implements the consultant profile review workflow:
// DRAFT -> SUBMITTED -> ACTIVE | REJECTED, with edits returning reviewed
// profiles to DRAFT.
package consultants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"

	"github.com/rs/zerolog/log"
)

// Store 顾问档案存储
type Store interface {
	CreateConsultantProfile(ctx context.Context, p *models.ConsultantProfile) error
	GetConsultantProfile(ctx context.Context, id string) (*models.ConsultantProfile, error)
	GetConsultantProfileByUser(ctx context.Context, userID string) (*models.ConsultantProfile, error)
	UpdateConsultantDetails(ctx context.Context, p *models.ConsultantProfile) error
	TransitionConsultantStatus(ctx context.Context, p *models.ConsultantProfile, from models.ConsultantStatus, audit *models.AuditLog) (bool, error)
	ListConsultantProfiles(ctx context.Context, status models.ConsultantStatus) ([]models.ConsultantProfile, error)
}

// SuperAdminChecker guards review actions
type SuperAdminChecker interface {
	RequireSuperAdmin(user *models.User) error
}

var transitions = map[models.ConsultantStatus][]models.ConsultantStatus{
	models.ConsultantDraft:     {models.ConsultantSubmitted},
	models.ConsultantSubmitted: {models.ConsultantActive, models.ConsultantRejected},
	models.ConsultantActive:    {models.ConsultantDraft},
	models.ConsultantRejected:  {models.ConsultantDraft},
}

// CanTransition reports whether from -> to is a legal review step
func CanTransition(from, to models.ConsultantStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Service 顾问审核服务
type Service struct {
	store  Store
	admins SuperAdminChecker
	now    func() time.Time
}

func NewService(store Store, admins SuperAdminChecker) *Service {
	return &Service{store: store, admins: admins, now: func() time.Time { return time.Now().UTC() }}
}

// GetOwnProfile returns the caller's profile
func (s *Service) GetOwnProfile(ctx context.Context, user *models.User) (*models.ConsultantProfile, error) {
	if user == nil {
		return nil, apperrors.ErrUnauthenticated
	}
	return s.store.GetConsultantProfileByUser(ctx, user.ID)
}

// SaveProfile creates the caller's profile as DRAFT or updates its details.
// Editing an ACTIVE or REJECTED profile returns it to DRAFT; a SUBMITTED
// profile is locked until reviewed.
func (s *Service) SaveProfile(ctx context.Context, user *models.User, req models.ConsultantProfileRequest) (*models.ConsultantProfile, error) {
	if user == nil {
		return nil, apperrors.ErrUnauthenticated
	}

	existing, err := s.store.GetConsultantProfileByUser(ctx, user.ID)
	if errors.Is(err, apperrors.ErrNotFound) {
		p := &models.ConsultantProfile{
			UserID:     user.ID,
			Headline:   strings.TrimSpace(req.Headline),
			Bio:        req.Bio,
			HourlyRate: req.HourlyRate,
			Status:     models.ConsultantDraft,
		}
		if err := s.store.CreateConsultantProfile(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	}
	if err != nil {
		return nil, err
	}

	if existing.Status == models.ConsultantSubmitted {
		return nil, fmt.Errorf("%w: profile is under review", apperrors.ErrInvalidTransition)
	}

	existing.Headline = strings.TrimSpace(req.Headline)
	existing.Bio = req.Bio
	existing.HourlyRate = req.HourlyRate
	if err := s.store.UpdateConsultantDetails(ctx, existing); err != nil {
		return nil, err
	}

	if existing.Status == models.ConsultantActive || existing.Status == models.ConsultantRejected {
		from := existing.Status
		existing.Status = models.ConsultantDraft
		ok, err := s.store.TransitionConsultantStatus(ctx, existing, from, nil)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: profile changed concurrently", apperrors.ErrConflict)
		}
	}
	return existing, nil
}

// Submit moves the caller's own DRAFT profile to SUBMITTED
func (s *Service) Submit(ctx context.Context, user *models.User, profileID string) (*models.ConsultantProfile, error) {
	if user == nil {
		return nil, apperrors.ErrUnauthenticated
	}
	p, err := s.store.GetConsultantProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if p.UserID != user.ID {
		return nil, fmt.Errorf("%w: only the profile owner may submit it", apperrors.ErrForbidden)
	}

	now := s.now()
	p.SubmittedAt = &now
	p.RejectionReason = ""
	return s.transition(ctx, p, models.ConsultantSubmitted, user.ID, models.AuditConsultantSubmitted, nil)
}

// Approve activates a SUBMITTED profile. Super admins only.
func (s *Service) Approve(ctx context.Context, admin *models.User, profileID string) (*models.ConsultantProfile, error) {
	if err := s.admins.RequireSuperAdmin(admin); err != nil {
		return nil, err
	}
	p, err := s.store.GetConsultantProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	p.ReviewedBy = admin.ID
	p.ReviewedAt = &now
	p.RejectionReason = ""
	return s.transition(ctx, p, models.ConsultantActive, admin.ID, models.AuditConsultantApproved, nil)
}

// Reject rejects a SUBMITTED profile with a reason. Super admins only.
func (s *Service) Reject(ctx context.Context, admin *models.User, profileID, reason string) (*models.ConsultantProfile, error) {
	if err := s.admins.RequireSuperAdmin(admin); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.Invalid("rejection reason is required")
	}
	p, err := s.store.GetConsultantProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	p.ReviewedBy = admin.ID
	p.ReviewedAt = &now
	p.RejectionReason = reason
	return s.transition(ctx, p, models.ConsultantRejected, admin.ID, models.AuditConsultantRejected,
		map[string]interface{}{"reason": reason})
}

// List returns profiles filtered by status. Super admins only.
func (s *Service) List(ctx context.Context, admin *models.User, status models.ConsultantStatus) ([]models.ConsultantProfile, error) {
	if err := s.admins.RequireSuperAdmin(admin); err != nil {
		return nil, err
	}
	return s.store.ListConsultantProfiles(ctx, status)
}

func (s *Service) transition(ctx context.Context, p *models.ConsultantProfile, to models.ConsultantStatus, actorID, action string, details map[string]interface{}) (*models.ConsultantProfile, error) {
	from := p.Status
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition, from, to)
	}

	if details == nil {
		details = map[string]interface{}{}
	}
	details["from"] = string(from)
	details["to"] = string(to)
	audit := &models.AuditLog{
		ActorID:    actorID,
		Action:     action,
		EntityType: "consultant",
		EntityID:   p.ID,
		Details:    details,
	}

	p.Status = to
	ok, err := s.store.TransitionConsultantStatus(ctx, p, from, audit)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: profile is no longer %s", apperrors.ErrInvalidTransition, from)
	}

	log.Info().Str("consultant_id", p.ID).Str("from", string(from)).Str("to", string(to)).Str("actor_id", actorID).Msg("consultant status changed")
	return p, nil
}
