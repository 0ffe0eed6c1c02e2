package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// PostgresDatabase PostgreSQL数据库实现
type PostgresDatabase struct {
	db *sql.DB
}

// NewPostgresDatabase 创建PostgreSQL数据库实例
func NewPostgresDatabase(dsn string) (DatabaseInterface, error) {
	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)
	strategies := []string{
		addConnectionParams(dsn, "connect_timeout=10"),
		dsn, // 最后尝试原始DSN
	}

	var lastErr error
	for i, strategy := range strategies {
		db, err := sql.Open("postgres", strategy)
		if err != nil {
			log.Warn().Err(err).Int("strategy", i+1).Msg("postgres open failed")
			lastErr = err
			continue
		}

		// 设置连接池参数
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Int("strategy", i+1).Msg("postgres ping failed")
			db.Close()
			lastErr = err
			continue
		}

		log.Info().Int("strategy", i+1).Msg("postgres connection established")
		return &PostgresDatabase{db: db}, nil
	}

	return nil, fmt.Errorf("failed to connect to postgres: %w", lastErr)
}

// addConnectionParams 添加连接参数到DSN
func addConnectionParams(dsn, params string) string {
	if params == "" || !strings.Contains(dsn, "://") {
		return dsn
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}

	return dsn + separator + params
}

// withTx runs fn inside a transaction and commits if fn returns nil
func (db *PostgresDatabase) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func notFoundOr(err error, entity, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound(entity)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func marshalJSONB(v map[string]interface{}) ([]byte, error) {
	if len(v) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

func unmarshalJSONB(raw []byte) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil || len(m) == 0 {
		return nil
	}
	return m
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// ---------------------------------------------------------------------------
// 用户
// ---------------------------------------------------------------------------

// UpsertUser 创建或更新用户镜像
func (db *PostgresDatabase) UpsertUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	query := `
		INSERT INTO users (id, email, name, image, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email
		RETURNING COALESCE(name,''), COALESCE(image,''), created_at
	`
	err := db.db.QueryRowContext(ctx, query, user.ID, user.Email, user.Name, user.Image).
		Scan(&user.Name, &user.Image, &user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// GetUserByID 根据ID获取用户
func (db *PostgresDatabase) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := db.db.QueryRowContext(ctx, `
		SELECT id, email, COALESCE(name,''), COALESCE(image,''), created_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.Name, &u.Image, &u.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "user", "get user")
	}
	return &u, nil
}

// UpdateUser 更新用户资料
func (db *PostgresDatabase) UpdateUser(ctx context.Context, user *models.User) error {
	err := db.db.QueryRowContext(ctx, `
		UPDATE users SET name = $2, image = $3
		WHERE id = $1
		RETURNING email, created_at
	`, user.ID, user.Name, user.Image).Scan(&user.Email, &user.CreatedAt)
	if err != nil {
		return notFoundOr(err, "user", "update user")
	}
	return nil
}

// ---------------------------------------------------------------------------
// 组织 & 成员
// ---------------------------------------------------------------------------

const orgColumns = `o.id, o.name, COALESCE(o.plan_id,''), COALESCE(o.stripe_customer_id,''),
	COALESCE(o.dodo_customer_id,''), COALESCE(o.lemonsqueezy_customer_id,''), o.credits, o.created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrganization(row rowScanner) (*models.Organization, error) {
	var o models.Organization
	if err := row.Scan(&o.ID, &o.Name, &o.PlanID, &o.StripeCustomerID,
		&o.DodoCustomerID, &o.LemonSqueezyCustomerID, &o.Credits, &o.CreatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateOrganization 创建组织并写入 owner 成员关系
func (db *PostgresDatabase) CreateOrganization(ctx context.Context, org *models.Organization, ownerID string) error {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO organizations (id, name, plan_id, stripe_customer_id, dodo_customer_id, lemonsqueezy_customer_id, credits, created_at)
			VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), NULLIF($5,''), NULLIF($6,''), 0, NOW())
			RETURNING created_at
		`, org.ID, org.Name, org.PlanID, org.StripeCustomerID, org.DodoCustomerID, org.LemonSqueezyCustomerID).
			Scan(&org.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create organization: %w", err)
		}
		org.Credits = 0
		if ownerID == "" {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO organization_memberships (id, organization_id, user_id, role, created_at)
			VALUES ($1, $2, $3, $4, NOW())
		`, uuid.NewString(), org.ID, ownerID, models.RoleOwner)
		if err != nil {
			return fmt.Errorf("failed to add organization owner: %w", err)
		}
		return nil
	})
}

// GetOrganization 获取组织
func (db *PostgresDatabase) GetOrganization(ctx context.Context, orgID string) (*models.Organization, error) {
	row := db.db.QueryRowContext(ctx, `SELECT `+orgColumns+` FROM organizations o WHERE o.id = $1`, orgID)
	o, err := scanOrganization(row)
	if err != nil {
		return nil, notFoundOr(err, "organization", "get organization")
	}
	return o, nil
}

// ListUserOrganizations 获取用户所属组织（按创建顺序）
func (db *PostgresDatabase) ListUserOrganizations(ctx context.Context, userID string) ([]models.Organization, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT `+orgColumns+`
		FROM organizations o
		JOIN organization_memberships m ON m.organization_id = o.id
		WHERE m.user_id = $1
		ORDER BY o.created_at ASC, o.id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var result []models.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		result = append(result, *o)
	}
	return result, rows.Err()
}

// GetMembership 获取成员关系
func (db *PostgresDatabase) GetMembership(ctx context.Context, userID, orgID string) (*models.OrganizationMembership, error) {
	var m models.OrganizationMembership
	err := db.db.QueryRowContext(ctx, `
		SELECT id, organization_id, user_id, role, created_at
		FROM organization_memberships
		WHERE user_id = $1 AND organization_id = $2
	`, userID, orgID).Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "membership", "get membership")
	}
	return &m, nil
}

// AddOrganizationMember 添加成员，已存在的成员返回冲突
func (db *PostgresDatabase) AddOrganizationMember(ctx context.Context, m *models.OrganizationMembership) error {
	err := db.db.QueryRowContext(ctx, `
		INSERT INTO organization_memberships (id, organization_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at
	`, uuid.NewString(), m.OrganizationID, m.UserID, m.Role).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user is already a member", apperrors.ErrConflict)
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return apperrors.NotFound("organization")
		}
		return fmt.Errorf("failed to add organization member: %w", err)
	}
	return nil
}

// lockMembership 锁住组织行后读取成员，同一组织的成员变更因此串行执行
func lockMembership(ctx context.Context, tx *sql.Tx, orgID, userID string) (*models.OrganizationMembership, int, error) {
	var id string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM organizations WHERE id = $1 FOR UPDATE`, orgID).Scan(&id); err != nil {
		return nil, 0, notFoundOr(err, "organization", "lock organization")
	}
	var m models.OrganizationMembership
	err := tx.QueryRowContext(ctx, `
		SELECT id, organization_id, user_id, role, created_at
		FROM organization_memberships
		WHERE organization_id = $1 AND user_id = $2
	`, orgID, userID).Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.CreatedAt)
	if err != nil {
		return nil, 0, notFoundOr(err, "membership", "get membership")
	}
	var owners int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM organization_memberships WHERE organization_id = $1 AND role = $2
	`, orgID, models.RoleOwner).Scan(&owners); err != nil {
		return nil, 0, fmt.Errorf("failed to count owners: %w", err)
	}
	return &m, owners, nil
}

// UpdateOrganizationMemberRole 修改成员角色
func (db *PostgresDatabase) UpdateOrganizationMemberRole(ctx context.Context, orgID, userID string, role models.OrgMemberRole) (*models.OrganizationMembership, error) {
	var updated *models.OrganizationMembership
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		m, owners, err := lockMembership(ctx, tx, orgID, userID)
		if err != nil {
			return err
		}
		if m.Role == models.RoleOwner && role != models.RoleOwner && owners <= 1 {
			return apperrors.ErrLastOwner
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE organization_memberships SET role = $3 WHERE organization_id = $1 AND user_id = $2
		`, orgID, userID, role); err != nil {
			return fmt.Errorf("failed to update member role: %w", err)
		}
		m.Role = role
		updated = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveOrganizationMember 移除成员
func (db *PostgresDatabase) RemoveOrganizationMember(ctx context.Context, orgID, userID string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		m, owners, err := lockMembership(ctx, tx, orgID, userID)
		if err != nil {
			return err
		}
		if m.Role == models.RoleOwner && owners <= 1 {
			return apperrors.ErrLastOwner
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM organization_memberships WHERE organization_id = $1 AND user_id = $2
		`, orgID, userID); err != nil {
			return fmt.Errorf("failed to remove organization member: %w", err)
		}
		return nil
	})
}

// ListOrganizationMembers 获取组织成员
func (db *PostgresDatabase) ListOrganizationMembers(ctx context.Context, orgID string) ([]models.OrganizationMembership, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, organization_id, user_id, role, created_at
		FROM organization_memberships
		WHERE organization_id = $1
		ORDER BY created_at ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization members: %w", err)
	}
	defer rows.Close()

	var result []models.OrganizationMembership
	for rows.Next() {
		var m models.OrganizationMembership
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// GetPlan 获取套餐
func (db *PostgresDatabase) GetPlan(ctx context.Context, planID string) (*models.Plan, error) {
	var p models.Plan
	err := db.db.QueryRowContext(ctx, `
		SELECT id, name, codename, monthly_credits, features FROM plans WHERE id = $1
	`, planID).Scan(&p.ID, &p.Name, &p.Codename, &p.MonthlyCredits, pq.Array(&p.Features))
	if err != nil {
		return nil, notFoundOr(err, "plan", "get plan")
	}
	return &p, nil
}

// GetSelectedOrganization 读取已持久化的当前组织
func (db *PostgresDatabase) GetSelectedOrganization(ctx context.Context, userID string) (string, error) {
	var orgID string
	err := db.db.QueryRowContext(ctx, `
		SELECT organization_id FROM organization_selections WHERE user_id = $1
	`, userID).Scan(&orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get selected organization: %w", err)
	}
	return orgID, nil
}

// SetSelectedOrganization 持久化当前组织
func (db *PostgresDatabase) SetSelectedOrganization(ctx context.Context, userID, orgID string) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO organization_selections (user_id, organization_id, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET organization_id = EXCLUDED.organization_id, updated_at = NOW()
	`, userID, orgID)
	if err != nil {
		return fmt.Errorf("failed to set selected organization: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// 积分账本
// ---------------------------------------------------------------------------

const signedAmount = `COALESCE(SUM(CASE WHEN type = 'debit' THEN -amount ELSE amount END), 0)`

// AppendCreditTransaction 追加积分流水
//
// The organization row is locked for the duration of the transaction so that
// concurrent debits observe each other's effect on the balance.
func (db *PostgresDatabase) AppendCreditTransaction(ctx context.Context, ct *models.CreditTransaction) (int64, error) {
	if ct.ID == "" {
		ct.ID = uuid.NewString()
	}
	metadata, err := marshalJSONB(ct.Metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to encode credit metadata: %w", err)
	}

	var balance int64
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		var id string
		if err := tx.QueryRowContext(ctx, `SELECT id FROM organizations WHERE id = $1 FOR UPDATE`, ct.OrganizationID).Scan(&id); err != nil {
			return notFoundOr(err, "organization", "lock organization")
		}

		if ct.Type == models.CreditDirectionDebit {
			var current int64
			if err := tx.QueryRowContext(ctx, `
				SELECT `+signedAmount+` FROM credit_transactions
				WHERE organization_id = $1 AND credit_type = $2
			`, ct.OrganizationID, ct.CreditType).Scan(&current); err != nil {
				return fmt.Errorf("failed to read credit balance: %w", err)
			}
			if current < ct.Amount {
				return apperrors.ErrInsufficientCredits
			}
		}

		err := tx.QueryRowContext(ctx, `
			INSERT INTO credit_transactions (id, organization_id, type, credit_type, amount, reason, payment_id, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''), $8, NOW())
			RETURNING created_at
		`, ct.ID, ct.OrganizationID, ct.Type, ct.CreditType, ct.Amount, ct.Reason, ct.PaymentID, metadata).Scan(&ct.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert credit transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE organizations SET credits = (
				SELECT `+signedAmount+` FROM credit_transactions WHERE organization_id = $1
			) WHERE id = $1
		`, ct.OrganizationID); err != nil {
			return fmt.Errorf("failed to refresh credit cache: %w", err)
		}

		return tx.QueryRowContext(ctx, `
			SELECT `+signedAmount+` FROM credit_transactions
			WHERE organization_id = $1 AND credit_type = $2
		`, ct.OrganizationID, ct.CreditType).Scan(&balance)
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// GetCreditBalance 计算积分余额；creditType 为空时返回全部类型之和
func (db *PostgresDatabase) GetCreditBalance(ctx context.Context, orgID, creditType string) (int64, error) {
	if _, err := db.GetOrganization(ctx, orgID); err != nil {
		return 0, err
	}
	var balance int64
	err := db.db.QueryRowContext(ctx, `
		SELECT `+signedAmount+` FROM credit_transactions
		WHERE organization_id = $1 AND ($2 = '' OR credit_type = $2)
	`, orgID, creditType).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to get credit balance: %w", err)
	}
	return balance, nil
}

// ListCreditTransactions 获取积分流水（最新在前）
func (db *PostgresDatabase) ListCreditTransactions(ctx context.Context, orgID string, limit int) ([]models.CreditTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, organization_id, type, credit_type, amount, reason, COALESCE(payment_id,''), metadata, created_at
		FROM credit_transactions
		WHERE organization_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list credit transactions: %w", err)
	}
	defer rows.Close()

	var result []models.CreditTransaction
	for rows.Next() {
		var t models.CreditTransaction
		var metadata []byte
		if err := rows.Scan(&t.ID, &t.OrganizationID, &t.Type, &t.CreditType, &t.Amount,
			&t.Reason, &t.PaymentID, &metadata, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan credit transaction: %w", err)
		}
		t.Metadata = unmarshalJSONB(metadata)
		result = append(result, t)
	}
	return result, rows.Err()
}

// RebuildCreditCache 从流水重算 organizations.credits
func (db *PostgresDatabase) RebuildCreditCache(ctx context.Context, orgID string) (int64, error) {
	var credits int64
	err := db.db.QueryRowContext(ctx, `
		UPDATE organizations SET credits = (
			SELECT `+signedAmount+` FROM credit_transactions WHERE organization_id = $1
		) WHERE id = $1
		RETURNING credits
	`, orgID).Scan(&credits)
	if err != nil {
		return 0, notFoundOr(err, "organization", "rebuild credit cache")
	}
	return credits, nil
}

// ---------------------------------------------------------------------------
// 顾问档案
// ---------------------------------------------------------------------------

const consultantColumns = `id, user_id, headline, COALESCE(bio,''), hourly_rate, status,
	COALESCE(stripe_account_id,''), COALESCE(stripe_onboarding_url,''), payouts_enabled,
	COALESCE(reviewed_by,''), COALESCE(rejection_reason,''), submitted_at, reviewed_at, created_at, updated_at`

func scanConsultant(row rowScanner) (*models.ConsultantProfile, error) {
	var p models.ConsultantProfile
	var submittedAt, reviewedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.UserID, &p.Headline, &p.Bio, &p.HourlyRate, &p.Status,
		&p.StripeAccountID, &p.StripeOnboardingURL, &p.PayoutsEnabled,
		&p.ReviewedBy, &p.RejectionReason, &submittedAt, &reviewedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.SubmittedAt = timePtr(submittedAt)
	p.ReviewedAt = timePtr(reviewedAt)
	return &p, nil
}

// CreateConsultantProfile 创建顾问档案（每个用户一份）
func (db *PostgresDatabase) CreateConsultantProfile(ctx context.Context, p *models.ConsultantProfile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := db.db.QueryRowContext(ctx, `
		INSERT INTO consultant_profiles (id, user_id, headline, bio, hourly_rate, status, payouts_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, NOW(), NOW())
		RETURNING created_at, updated_at
	`, p.ID, p.UserID, p.Headline, p.Bio, p.HourlyRate, p.Status).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("consultant profile already exists: %w", apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create consultant profile: %w", err)
	}
	return nil
}

func (db *PostgresDatabase) GetConsultantProfile(ctx context.Context, id string) (*models.ConsultantProfile, error) {
	p, err := scanConsultant(db.db.QueryRowContext(ctx, `SELECT `+consultantColumns+` FROM consultant_profiles WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "consultant profile", "get consultant profile")
	}
	return p, nil
}

func (db *PostgresDatabase) GetConsultantProfileByUser(ctx context.Context, userID string) (*models.ConsultantProfile, error) {
	p, err := scanConsultant(db.db.QueryRowContext(ctx, `SELECT `+consultantColumns+` FROM consultant_profiles WHERE user_id = $1`, userID))
	if err != nil {
		return nil, notFoundOr(err, "consultant profile", "get consultant profile")
	}
	return p, nil
}

// UpdateConsultantDetails 更新档案内容（不改变状态）
func (db *PostgresDatabase) UpdateConsultantDetails(ctx context.Context, p *models.ConsultantProfile) error {
	row := db.db.QueryRowContext(ctx, `
		UPDATE consultant_profiles SET headline = $2, bio = $3, hourly_rate = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+consultantColumns, p.ID, p.Headline, p.Bio, p.HourlyRate)
	updated, err := scanConsultant(row)
	if err != nil {
		return notFoundOr(err, "consultant profile", "update consultant profile")
	}
	*p = *updated
	return nil
}

// TransitionConsultantStatus 条件状态迁移，并在同一事务内写入审计日志
func (db *PostgresDatabase) TransitionConsultantStatus(ctx context.Context, p *models.ConsultantProfile, from models.ConsultantStatus, audit *models.AuditLog) (bool, error) {
	transitioned := false
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			UPDATE consultant_profiles
			SET status = $3, reviewed_by = NULLIF($4,''), rejection_reason = NULLIF($5,''),
			    submitted_at = $6, reviewed_at = $7, updated_at = NOW()
			WHERE id = $1 AND status = $2
			RETURNING `+consultantColumns,
			p.ID, from, p.Status, p.ReviewedBy, p.RejectionReason, nullTime(p.SubmittedAt), nullTime(p.ReviewedAt))
		updated, err := scanConsultant(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to transition consultant profile: %w", err)
		}
		*p = *updated
		transitioned = true
		if audit == nil {
			return nil
		}
		return insertAuditLog(ctx, tx, audit)
	})
	if err != nil {
		return false, err
	}
	if !transitioned {
		// distinguish a missing profile from a guard mismatch
		if _, err := db.GetConsultantProfile(ctx, p.ID); err != nil {
			return false, err
		}
	}
	return transitioned, nil
}

// SetConsultantStripeAccount 记录 Stripe Connect 账户
func (db *PostgresDatabase) SetConsultantStripeAccount(ctx context.Context, id, accountID, onboardingURL string) error {
	res, err := db.db.ExecContext(ctx, `
		UPDATE consultant_profiles SET stripe_account_id = $2, stripe_onboarding_url = NULLIF($3,''), updated_at = NOW()
		WHERE id = $1
	`, id, accountID, onboardingURL)
	if err != nil {
		return fmt.Errorf("failed to set consultant stripe account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("consultant profile")
	}
	return nil
}

// ListConsultantProfiles 按状态列出顾问档案；status 为空时返回全部
func (db *PostgresDatabase) ListConsultantProfiles(ctx context.Context, status models.ConsultantStatus) ([]models.ConsultantProfile, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT `+consultantColumns+` FROM consultant_profiles
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at ASC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list consultant profiles: %w", err)
	}
	defer rows.Close()

	var result []models.ConsultantProfile
	for rows.Next() {
		p, err := scanConsultant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consultant profile: %w", err)
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

// ---------------------------------------------------------------------------
// 合作 & 发票
// ---------------------------------------------------------------------------

const engagementColumns = `id, consultant_id, client_id, title, COALESCE(description,''), status, budget, created_by, created_at`

func scanEngagement(row rowScanner) (*models.Engagement, error) {
	var e models.Engagement
	if err := row.Scan(&e.ID, &e.ConsultantID, &e.ClientID, &e.Title, &e.Description,
		&e.Status, &e.Budget, &e.CreatedBy, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (db *PostgresDatabase) CreateEngagement(ctx context.Context, e *models.Engagement) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	err := db.db.QueryRowContext(ctx, `
		INSERT INTO engagements (id, consultant_id, client_id, title, description, status, budget, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING created_at
	`, e.ID, e.ConsultantID, e.ClientID, e.Title, e.Description, e.Status, e.Budget, e.CreatedBy).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create engagement: %w", err)
	}
	return nil
}

func (db *PostgresDatabase) GetEngagement(ctx context.Context, id string) (*models.Engagement, error) {
	e, err := scanEngagement(db.db.QueryRowContext(ctx, `SELECT `+engagementColumns+` FROM engagements WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "engagement", "get engagement")
	}
	return e, nil
}

func (db *PostgresDatabase) ListEngagementsByOrganization(ctx context.Context, orgID string) ([]models.Engagement, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT `+engagementColumns+` FROM engagements WHERE client_id = $1 ORDER BY created_at DESC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list engagements: %w", err)
	}
	defer rows.Close()

	var result []models.Engagement
	for rows.Next() {
		e, err := scanEngagement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan engagement: %w", err)
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

const invoiceColumns = `id, engagement_id, amount, commission_amount, currency, COALESCE(description,''),
	status, COALESCE(checkout_session_id,''), paid_at, created_at`

func (db *PostgresDatabase) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	err := db.db.QueryRowContext(ctx, `
		INSERT INTO invoices (id, engagement_id, amount, commission_amount, currency, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at
	`, inv.ID, inv.EngagementID, inv.Amount, inv.CommissionAmount, inv.Currency, inv.Description, inv.Status).Scan(&inv.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return apperrors.NotFound("engagement")
		}
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

func (db *PostgresDatabase) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	var inv models.Invoice
	var paidAt sql.NullTime
	err := db.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id).Scan(
		&inv.ID, &inv.EngagementID, &inv.Amount, &inv.CommissionAmount, &inv.Currency, &inv.Description,
		&inv.Status, &inv.CheckoutSessionID, &paidAt, &inv.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "invoice", "get invoice")
	}
	inv.PaidAt = timePtr(paidAt)
	return &inv, nil
}

func (db *PostgresDatabase) SetInvoiceCheckoutSession(ctx context.Context, id, sessionID string) error {
	res, err := db.db.ExecContext(ctx, `UPDATE invoices SET checkout_session_id = $2 WHERE id = $1`, id, sessionID)
	if err != nil {
		return fmt.Errorf("failed to set checkout session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("invoice")
	}
	return nil
}

// MarkInvoicePaid PENDING -> PAID 条件更新，审计日志同事务写入
func (db *PostgresDatabase) MarkInvoicePaid(ctx context.Context, invoiceID string, audit *models.AuditLog) (bool, error) {
	transitioned := false
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE invoices SET status = $2, paid_at = NOW()
			WHERE id = $1 AND status = $3
		`, invoiceID, models.InvoicePaid, models.InvoicePending)
		if err != nil {
			return fmt.Errorf("failed to mark invoice paid: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to mark invoice paid: %w", err)
		}
		if n == 0 {
			return nil
		}
		transitioned = true
		if audit == nil {
			return nil
		}
		return insertAuditLog(ctx, tx, audit)
	})
	if err != nil {
		return false, err
	}
	return transitioned, nil
}

// ---------------------------------------------------------------------------
// PayPal
// ---------------------------------------------------------------------------

const paypalColumns = `id, organization_id, user_id, plan_id, status, COALESCE(paypal_subscription_id,''), created_at`

func scanPaypalContext(row rowScanner) (*models.PaypalContext, error) {
	var pc models.PaypalContext
	if err := row.Scan(&pc.ID, &pc.OrganizationID, &pc.UserID, &pc.PlanID, &pc.Status,
		&pc.PaypalSubscriptionID, &pc.CreatedAt); err != nil {
		return nil, err
	}
	return &pc, nil
}

func (db *PostgresDatabase) CreatePaypalContext(ctx context.Context, pc *models.PaypalContext) error {
	if pc.ID == "" {
		pc.ID = uuid.NewString()
	}
	err := db.db.QueryRowContext(ctx, `
		INSERT INTO paypal_contexts (id, organization_id, user_id, plan_id, status, paypal_subscription_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), NOW())
		RETURNING created_at
	`, pc.ID, pc.OrganizationID, pc.UserID, pc.PlanID, pc.Status, pc.PaypalSubscriptionID).Scan(&pc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create paypal context: %w", err)
	}
	return nil
}

func (db *PostgresDatabase) GetPaypalContext(ctx context.Context, id string) (*models.PaypalContext, error) {
	pc, err := scanPaypalContext(db.db.QueryRowContext(ctx, `SELECT `+paypalColumns+` FROM paypal_contexts WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "paypal context", "get paypal context")
	}
	return pc, nil
}

func (db *PostgresDatabase) ListPaypalContexts(ctx context.Context, orgID string) ([]models.PaypalContext, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT `+paypalColumns+` FROM paypal_contexts WHERE organization_id = $1 ORDER BY created_at DESC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list paypal contexts: %w", err)
	}
	defer rows.Close()

	var result []models.PaypalContext
	for rows.Next() {
		pc, err := scanPaypalContext(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan paypal context: %w", err)
		}
		result = append(result, *pc)
	}
	return result, rows.Err()
}

func (db *PostgresDatabase) UpdatePaypalContextStatus(ctx context.Context, id string, status models.PaypalContextStatus) error {
	res, err := db.db.ExecContext(ctx, `UPDATE paypal_contexts SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update paypal context: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("paypal context")
	}
	return nil
}

// ---------------------------------------------------------------------------
// 审计日志
// ---------------------------------------------------------------------------

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertAuditLog(ctx context.Context, q execer, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	details, err := marshalJSONB(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}
	entry.CreatedAt = time.Now().UTC()
	_, err = q.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_id, action, entity_type, entity_id, details, created_at)
		VALUES ($1, NULLIF($2,''), $3, $4, $5, $6, $7)
	`, entry.ID, entry.ActorID, entry.Action, entry.EntityType, entry.EntityID, details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

func (db *PostgresDatabase) AppendAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return insertAuditLog(ctx, db.db, entry)
}

func (db *PostgresDatabase) ListAuditLogs(ctx context.Context, entityType, entityID string) ([]models.AuditLog, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, COALESCE(actor_id,''), action, entity_type, entity_id, details, created_at
		FROM audit_logs
		WHERE ($1 = '' OR entity_type = $1) AND ($2 = '' OR entity_id = $2)
		ORDER BY created_at ASC
	`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var result []models.AuditLog
	for rows.Next() {
		var a models.AuditLog
		var details []byte
		if err := rows.Scan(&a.ID, &a.ActorID, &a.Action, &a.EntityType, &a.EntityID, &details, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		a.Details = unmarshalJSONB(details)
		result = append(result, a)
	}
	return result, rows.Err()
}

// HealthCheck 健康检查
func (db *PostgresDatabase) HealthCheck(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// Close 关闭连接
func (db *PostgresDatabase) Close() error {
	return db.db.Close()
}
