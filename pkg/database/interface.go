package database

import (
	"context"

	"github.com/projectelevate-biz/tag-sub001/pkg/models"
)

// DatabaseInterface 定义数据库访问接口
//
// Lookups that find nothing return an error wrapping apperrors.ErrNotFound.
// Conditional writes (MarkInvoicePaid, TransitionConsultantStatus,
// AppendCreditTransaction) are atomic with their guard.
type DatabaseInterface interface {
	// 用户管理
	UpsertUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error

	// Organizations & Memberships
	CreateOrganization(ctx context.Context, org *models.Organization, ownerID string) error
	GetOrganization(ctx context.Context, orgID string) (*models.Organization, error)
	// ListUserOrganizations returns the user's organizations in creation order
	ListUserOrganizations(ctx context.Context, userID string) ([]models.Organization, error)
	GetMembership(ctx context.Context, userID, orgID string) (*models.OrganizationMembership, error)
	// AddOrganizationMember inserts a new membership; an existing one is
	// apperrors.ErrConflict and is never overwritten.
	AddOrganizationMember(ctx context.Context, m *models.OrganizationMembership) error
	// UpdateOrganizationMemberRole and RemoveOrganizationMember refuse to drop
	// the organization's last owner (apperrors.ErrLastOwner).
	UpdateOrganizationMemberRole(ctx context.Context, orgID, userID string, role models.OrgMemberRole) (*models.OrganizationMembership, error)
	RemoveOrganizationMember(ctx context.Context, orgID, userID string) error
	ListOrganizationMembers(ctx context.Context, orgID string) ([]models.OrganizationMembership, error)
	GetPlan(ctx context.Context, planID string) (*models.Plan, error)

	// 当前组织选择（跨请求持久化）
	GetSelectedOrganization(ctx context.Context, userID string) (string, error)
	SetSelectedOrganization(ctx context.Context, userID, orgID string) error

	// Credit ledger
	// AppendCreditTransaction rejects a debit exceeding the balance of its
	// credit type with apperrors.ErrInsufficientCredits and appends nothing.
	AppendCreditTransaction(ctx context.Context, tx *models.CreditTransaction) (int64, error)
	GetCreditBalance(ctx context.Context, orgID, creditType string) (int64, error)
	ListCreditTransactions(ctx context.Context, orgID string, limit int) ([]models.CreditTransaction, error)
	RebuildCreditCache(ctx context.Context, orgID string) (int64, error)

	// Consultant profiles
	CreateConsultantProfile(ctx context.Context, p *models.ConsultantProfile) error
	GetConsultantProfile(ctx context.Context, id string) (*models.ConsultantProfile, error)
	GetConsultantProfileByUser(ctx context.Context, userID string) (*models.ConsultantProfile, error)
	UpdateConsultantDetails(ctx context.Context, p *models.ConsultantProfile) error
	// TransitionConsultantStatus moves the profile to p.Status only if the stored
	// status equals from. Returns false when the guard did not match.
	TransitionConsultantStatus(ctx context.Context, p *models.ConsultantProfile, from models.ConsultantStatus, audit *models.AuditLog) (bool, error)
	SetConsultantStripeAccount(ctx context.Context, id, accountID, onboardingURL string) error
	ListConsultantProfiles(ctx context.Context, status models.ConsultantStatus) ([]models.ConsultantProfile, error)

	// Engagements & invoices
	CreateEngagement(ctx context.Context, e *models.Engagement) error
	GetEngagement(ctx context.Context, id string) (*models.Engagement, error)
	ListEngagementsByOrganization(ctx context.Context, orgID string) ([]models.Engagement, error)
	CreateInvoice(ctx context.Context, inv *models.Invoice) error
	GetInvoice(ctx context.Context, id string) (*models.Invoice, error)
	SetInvoiceCheckoutSession(ctx context.Context, id, sessionID string) error
	// MarkInvoicePaid performs PENDING -> PAID and appends audit in one unit.
	// Returns false (and writes nothing) when the invoice is not PENDING.
	MarkInvoicePaid(ctx context.Context, invoiceID string, audit *models.AuditLog) (bool, error)

	// PayPal contexts
	CreatePaypalContext(ctx context.Context, pc *models.PaypalContext) error
	GetPaypalContext(ctx context.Context, id string) (*models.PaypalContext, error)
	ListPaypalContexts(ctx context.Context, orgID string) ([]models.PaypalContext, error)
	UpdatePaypalContextStatus(ctx context.Context, id string, status models.PaypalContextStatus) error

	// Audit log
	AppendAuditLog(ctx context.Context, entry *models.AuditLog) error
	ListAuditLogs(ctx context.Context, entityType, entityID string) ([]models.AuditLog, error)

	// 健康检查
	HealthCheck(ctx context.Context) error

	// 关闭连接
	Close() error
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	UseLocalDB  bool
	PostgresDSN string
	Debug       bool
}

// NewDatabase 根据配置选择数据库实现
func NewDatabase(cfg DatabaseConfig) (DatabaseInterface, error) {
	if cfg.PostgresDSN != "" && !cfg.UseLocalDB {
		return NewPostgresDatabase(cfg.PostgresDSN)
	}
	if cfg.UseLocalDB {
		return NewLocalDatabase(), nil
	}
	return nil, errNoDatabase
}
