package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"

	"github.com/google/uuid"
)

var errNoDatabase = errors.New("no valid database configuration found: set POSTGRES_DSN or USE_LOCAL_DB=true")

// LocalDatabase 本地内存数据库实现，用于开发环境和测试。
// A single mutex serialises writes, which gives the same guarantees the
// Postgres implementation gets from row locks and conditional updates.
type LocalDatabase struct {
	mu  sync.RWMutex
	seq int64
	now func() time.Time

	users       map[string]models.User
	orgs        map[string]models.Organization
	orgSeq      map[string]int64
	memberships map[string]models.OrganizationMembership // key: orgID|userID
	plans       map[string]models.Plan
	selections  map[string]string
	credits     []models.CreditTransaction
	consultants map[string]models.ConsultantProfile
	engagements map[string]models.Engagement
	invoices    map[string]models.Invoice
	paypal      map[string]models.PaypalContext
	paypalSeq   map[string]int64
	audit       []models.AuditLog
}

// NewLocalDatabase 创建本地数据库实例
func NewLocalDatabase() *LocalDatabase {
	return &LocalDatabase{
		now:         func() time.Time { return time.Now().UTC() },
		users:       make(map[string]models.User),
		orgs:        make(map[string]models.Organization),
		orgSeq:      make(map[string]int64),
		memberships: make(map[string]models.OrganizationMembership),
		plans: map[string]models.Plan{
			"free": {ID: "free", Name: "Free", Codename: "free", MonthlyCredits: 0, Features: []string{"engagements"}},
			"pro":  {ID: "pro", Name: "Pro", Codename: "pro", MonthlyCredits: 100, Features: []string{"engagements", "priority_matching"}},
		},
		selections:  make(map[string]string),
		consultants: make(map[string]models.ConsultantProfile),
		engagements: make(map[string]models.Engagement),
		invoices:    make(map[string]models.Invoice),
		paypal:      make(map[string]models.PaypalContext),
		paypalSeq:   make(map[string]int64),
	}
}

func memberKey(orgID, userID string) string { return orgID + "|" + userID }

func (db *LocalDatabase) nextSeq() int64 {
	db.seq++
	return db.seq
}

// UpsertUser 创建或更新用户镜像
func (db *LocalDatabase) UpsertUser(_ context.Context, user *models.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	// an existing mirror keeps its profile fields; only the email follows the token
	if existing, ok := db.users[user.ID]; ok {
		existing.Email = user.Email
		db.users[user.ID] = existing
		*user = existing
		return nil
	}
	user.CreatedAt = db.now()
	db.users[user.ID] = *user
	return nil
}

func (db *LocalDatabase) GetUserByID(_ context.Context, id string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	u, ok := db.users[id]
	if !ok {
		return nil, apperrors.NotFound("user")
	}
	return &u, nil
}

func (db *LocalDatabase) UpdateUser(_ context.Context, user *models.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	existing, ok := db.users[user.ID]
	if !ok {
		return apperrors.NotFound("user")
	}
	existing.Name = user.Name
	existing.Image = user.Image
	db.users[user.ID] = existing
	*user = existing
	return nil
}

// CreateOrganization 创建组织并添加 owner 成员
func (db *LocalDatabase) CreateOrganization(_ context.Context, org *models.Organization, ownerID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	org.CreatedAt = db.now()
	org.Credits = 0
	db.orgs[org.ID] = *org
	db.orgSeq[org.ID] = db.nextSeq()
	if ownerID != "" {
		db.memberships[memberKey(org.ID, ownerID)] = models.OrganizationMembership{
			ID:             uuid.NewString(),
			OrganizationID: org.ID,
			UserID:         ownerID,
			Role:           models.RoleOwner,
			CreatedAt:      org.CreatedAt,
		}
	}
	return nil
}

func (db *LocalDatabase) GetOrganization(_ context.Context, orgID string) (*models.Organization, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	o, ok := db.orgs[orgID]
	if !ok {
		return nil, apperrors.NotFound("organization")
	}
	return &o, nil
}

func (db *LocalDatabase) ListUserOrganizations(_ context.Context, userID string) ([]models.Organization, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var result []models.Organization
	for _, m := range db.memberships {
		if m.UserID != userID {
			continue
		}
		if o, ok := db.orgs[m.OrganizationID]; ok {
			result = append(result, o)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return db.orgSeq[result[i].ID] < db.orgSeq[result[j].ID]
	})
	return result, nil
}

func (db *LocalDatabase) GetMembership(_ context.Context, userID, orgID string) (*models.OrganizationMembership, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	m, ok := db.memberships[memberKey(orgID, userID)]
	if !ok {
		return nil, apperrors.NotFound("membership")
	}
	return &m, nil
}

func (db *LocalDatabase) AddOrganizationMember(_ context.Context, m *models.OrganizationMembership) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.orgs[m.OrganizationID]; !ok {
		return apperrors.NotFound("organization")
	}
	key := memberKey(m.OrganizationID, m.UserID)
	if _, ok := db.memberships[key]; ok {
		return fmt.Errorf("%w: user is already a member", apperrors.ErrConflict)
	}
	m.ID = uuid.NewString()
	m.CreatedAt = db.now()
	db.memberships[key] = *m
	return nil
}

func (db *LocalDatabase) UpdateOrganizationMemberRole(_ context.Context, orgID, userID string, role models.OrgMemberRole) (*models.OrganizationMembership, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := memberKey(orgID, userID)
	m, ok := db.memberships[key]
	if !ok {
		return nil, apperrors.NotFound("membership")
	}
	if m.Role == models.RoleOwner && role != models.RoleOwner && db.ownerCountLocked(orgID) <= 1 {
		return nil, apperrors.ErrLastOwner
	}
	m.Role = role
	db.memberships[key] = m
	return &m, nil
}

func (db *LocalDatabase) RemoveOrganizationMember(_ context.Context, orgID, userID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := memberKey(orgID, userID)
	m, ok := db.memberships[key]
	if !ok {
		return apperrors.NotFound("membership")
	}
	if m.Role == models.RoleOwner && db.ownerCountLocked(orgID) <= 1 {
		return apperrors.ErrLastOwner
	}
	delete(db.memberships, key)
	return nil
}

func (db *LocalDatabase) ownerCountLocked(orgID string) int {
	n := 0
	for _, m := range db.memberships {
		if m.OrganizationID == orgID && m.Role == models.RoleOwner {
			n++
		}
	}
	return n
}

func (db *LocalDatabase) ListOrganizationMembers(_ context.Context, orgID string) ([]models.OrganizationMembership, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var result []models.OrganizationMembership
	for _, m := range db.memberships {
		if m.OrganizationID == orgID {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (db *LocalDatabase) GetPlan(_ context.Context, planID string) (*models.Plan, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	p, ok := db.plans[planID]
	if !ok {
		return nil, apperrors.NotFound("plan")
	}
	return &p, nil
}

func (db *LocalDatabase) GetSelectedOrganization(_ context.Context, userID string) (string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.selections[userID], nil
}

func (db *LocalDatabase) SetSelectedOrganization(_ context.Context, userID, orgID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.selections[userID] = orgID
	return nil
}

// AppendCreditTransaction 追加积分流水（持锁完成余额校验与写入）
func (db *LocalDatabase) AppendCreditTransaction(_ context.Context, tx *models.CreditTransaction) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	org, ok := db.orgs[tx.OrganizationID]
	if !ok {
		return 0, apperrors.NotFound("organization")
	}
	if tx.Type == models.CreditDirectionDebit && db.balanceLocked(tx.OrganizationID, tx.CreditType) < tx.Amount {
		return 0, apperrors.ErrInsufficientCredits
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.CreatedAt = db.now()
	db.credits = append(db.credits, *tx)

	org.Credits = db.balanceLocked(tx.OrganizationID, "")
	db.orgs[org.ID] = org
	return db.balanceLocked(tx.OrganizationID, tx.CreditType), nil
}

func (db *LocalDatabase) balanceLocked(orgID, creditType string) int64 {
	var sum int64
	for _, t := range db.credits {
		if t.OrganizationID != orgID {
			continue
		}
		if creditType != "" && t.CreditType != creditType {
			continue
		}
		sum += t.Signed()
	}
	return sum
}

func (db *LocalDatabase) GetCreditBalance(_ context.Context, orgID, creditType string) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if _, ok := db.orgs[orgID]; !ok {
		return 0, apperrors.NotFound("organization")
	}
	return db.balanceLocked(orgID, creditType), nil
}

func (db *LocalDatabase) ListCreditTransactions(_ context.Context, orgID string, limit int) ([]models.CreditTransaction, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var result []models.CreditTransaction
	for i := len(db.credits) - 1; i >= 0; i-- {
		if db.credits[i].OrganizationID != orgID {
			continue
		}
		result = append(result, db.credits[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (db *LocalDatabase) RebuildCreditCache(_ context.Context, orgID string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	org, ok := db.orgs[orgID]
	if !ok {
		return 0, apperrors.NotFound("organization")
	}
	org.Credits = db.balanceLocked(orgID, "")
	db.orgs[orgID] = org
	return org.Credits, nil
}

// Consultant profiles

func (db *LocalDatabase) CreateConsultantProfile(_ context.Context, p *models.ConsultantProfile) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, existing := range db.consultants {
		if existing.UserID == p.UserID {
			return apperrors.ErrConflict
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = db.now()
	p.UpdatedAt = p.CreatedAt
	db.consultants[p.ID] = *p
	return nil
}

func (db *LocalDatabase) GetConsultantProfile(_ context.Context, id string) (*models.ConsultantProfile, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	p, ok := db.consultants[id]
	if !ok {
		return nil, apperrors.NotFound("consultant profile")
	}
	return &p, nil
}

func (db *LocalDatabase) GetConsultantProfileByUser(_ context.Context, userID string) (*models.ConsultantProfile, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, p := range db.consultants {
		if p.UserID == userID {
			return &p, nil
		}
	}
	return nil, apperrors.NotFound("consultant profile")
}

func (db *LocalDatabase) UpdateConsultantDetails(_ context.Context, p *models.ConsultantProfile) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	existing, ok := db.consultants[p.ID]
	if !ok {
		return apperrors.NotFound("consultant profile")
	}
	existing.Headline = p.Headline
	existing.Bio = p.Bio
	existing.HourlyRate = p.HourlyRate
	existing.UpdatedAt = db.now()
	db.consultants[p.ID] = existing
	*p = existing
	return nil
}

func (db *LocalDatabase) TransitionConsultantStatus(_ context.Context, p *models.ConsultantProfile, from models.ConsultantStatus, audit *models.AuditLog) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	existing, ok := db.consultants[p.ID]
	if !ok {
		return false, apperrors.NotFound("consultant profile")
	}
	if existing.Status != from {
		return false, nil
	}
	existing.Status = p.Status
	existing.ReviewedBy = p.ReviewedBy
	existing.RejectionReason = p.RejectionReason
	existing.SubmittedAt = p.SubmittedAt
	existing.ReviewedAt = p.ReviewedAt
	existing.UpdatedAt = db.now()
	db.consultants[p.ID] = existing
	*p = existing
	if audit != nil {
		db.appendAuditLocked(audit)
	}
	return true, nil
}

func (db *LocalDatabase) SetConsultantStripeAccount(_ context.Context, id, accountID, onboardingURL string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	existing, ok := db.consultants[id]
	if !ok {
		return apperrors.NotFound("consultant profile")
	}
	existing.StripeAccountID = accountID
	existing.StripeOnboardingURL = onboardingURL
	existing.UpdatedAt = db.now()
	db.consultants[id] = existing
	return nil
}

func (db *LocalDatabase) ListConsultantProfiles(_ context.Context, status models.ConsultantStatus) ([]models.ConsultantProfile, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var result []models.ConsultantProfile
	for _, p := range db.consultants {
		if status == "" || p.Status == status {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// Engagements & invoices

func (db *LocalDatabase) CreateEngagement(_ context.Context, e *models.Engagement) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = db.now()
	db.engagements[e.ID] = *e
	return nil
}

func (db *LocalDatabase) GetEngagement(_ context.Context, id string) (*models.Engagement, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	e, ok := db.engagements[id]
	if !ok {
		return nil, apperrors.NotFound("engagement")
	}
	return &e, nil
}

func (db *LocalDatabase) ListEngagementsByOrganization(_ context.Context, orgID string) ([]models.Engagement, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var result []models.Engagement
	for _, e := range db.engagements {
		if e.ClientID == orgID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (db *LocalDatabase) CreateInvoice(_ context.Context, inv *models.Invoice) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.engagements[inv.EngagementID]; !ok {
		return apperrors.NotFound("engagement")
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	inv.CreatedAt = db.now()
	db.invoices[inv.ID] = *inv
	return nil
}

func (db *LocalDatabase) GetInvoice(_ context.Context, id string) (*models.Invoice, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	inv, ok := db.invoices[id]
	if !ok {
		return nil, apperrors.NotFound("invoice")
	}
	return &inv, nil
}

func (db *LocalDatabase) SetInvoiceCheckoutSession(_ context.Context, id, sessionID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	inv, ok := db.invoices[id]
	if !ok {
		return apperrors.NotFound("invoice")
	}
	inv.CheckoutSessionID = sessionID
	db.invoices[id] = inv
	return nil
}

func (db *LocalDatabase) MarkInvoicePaid(_ context.Context, invoiceID string, audit *models.AuditLog) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	inv, ok := db.invoices[invoiceID]
	if !ok || inv.Status != models.InvoicePending {
		return false, nil
	}
	paidAt := db.now()
	inv.Status = models.InvoicePaid
	inv.PaidAt = &paidAt
	db.invoices[invoiceID] = inv
	if audit != nil {
		db.appendAuditLocked(audit)
	}
	return true, nil
}

// PayPal contexts

func (db *LocalDatabase) CreatePaypalContext(_ context.Context, pc *models.PaypalContext) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if pc.ID == "" {
		pc.ID = uuid.NewString()
	}
	pc.CreatedAt = db.now()
	db.paypal[pc.ID] = *pc
	db.paypalSeq[pc.ID] = db.nextSeq()
	return nil
}

func (db *LocalDatabase) GetPaypalContext(_ context.Context, id string) (*models.PaypalContext, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	pc, ok := db.paypal[id]
	if !ok {
		return nil, apperrors.NotFound("paypal context")
	}
	return &pc, nil
}

func (db *LocalDatabase) ListPaypalContexts(_ context.Context, orgID string) ([]models.PaypalContext, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var result []models.PaypalContext
	for _, pc := range db.paypal {
		if pc.OrganizationID == orgID {
			result = append(result, pc)
		}
	}
	sort.Slice(result, func(i, j int) bool { return db.paypalSeq[result[i].ID] > db.paypalSeq[result[j].ID] })
	return result, nil
}

func (db *LocalDatabase) UpdatePaypalContextStatus(_ context.Context, id string, status models.PaypalContextStatus) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	pc, ok := db.paypal[id]
	if !ok {
		return apperrors.NotFound("paypal context")
	}
	pc.Status = status
	db.paypal[id] = pc
	return nil
}

// Audit log

func (db *LocalDatabase) AppendAuditLog(_ context.Context, entry *models.AuditLog) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.appendAuditLocked(entry)
	return nil
}

func (db *LocalDatabase) appendAuditLocked(entry *models.AuditLog) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = db.now()
	db.audit = append(db.audit, *entry)
}

func (db *LocalDatabase) ListAuditLogs(_ context.Context, entityType, entityID string) ([]models.AuditLog, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var result []models.AuditLog
	for _, a := range db.audit {
		if (entityType == "" || a.EntityType == entityType) && (entityID == "" || a.EntityID == entityID) {
			result = append(result, a)
		}
	}
	return result, nil
}

func (db *LocalDatabase) HealthCheck(_ context.Context) error { return nil }

func (db *LocalDatabase) Close() error { return nil }
