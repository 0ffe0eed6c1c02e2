// Package authz decides whether a resolved user may act on an organization.
package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"
)

// MembershipLookup is the single read the gate depends on
type MembershipLookup interface {
	GetMembership(ctx context.Context, userID, orgID string) (*models.OrganizationMembership, error)
}

// Gate 角色授权
type Gate struct {
	members     MembershipLookup
	superAdmins map[string]struct{}
}

// NewGate 创建授权门；superAdmins 的 key 需为小写邮箱
func NewGate(members MembershipLookup, superAdmins map[string]struct{}) *Gate {
	if superAdmins == nil {
		superAdmins = map[string]struct{}{}
	}
	return &Gate{members: members, superAdmins: superAdmins}
}

// Authorize checks, in order: a user is present, the user is a member of
// orgID, and the member's role ranks at least required.
func (g *Gate) Authorize(ctx context.Context, user *models.User, orgID string, required models.OrgMemberRole) (*models.OrganizationMembership, error) {
	if user == nil || user.ID == "" {
		return nil, apperrors.ErrUnauthenticated
	}

	m, err := g.members.GetMembership(ctx, user.ID, orgID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.ErrNotAMember
	}
	if err != nil {
		return nil, fmt.Errorf("membership lookup: %w", err)
	}

	if !Satisfies(m.Role, required) {
		return nil, fmt.Errorf("%w: %s requires %s", apperrors.ErrInsufficientRole, m.Role, required)
	}
	return m, nil
}

// Satisfies reports whether have ranks at least need. Unknown roles never satisfy.
func Satisfies(have, need models.OrgMemberRole) bool {
	return have.Rank() > 0 && have.Rank() >= need.Rank()
}

// IsSuperAdmin 判断邮箱是否在超级管理员白名单
func (g *Gate) IsSuperAdmin(user *models.User) bool {
	if user == nil {
		return false
	}
	_, ok := g.superAdmins[strings.ToLower(strings.TrimSpace(user.Email))]
	return ok
}

// RequireSuperAdmin 超级管理员校验
func (g *Gate) RequireSuperAdmin(user *models.User) error {
	if user == nil || user.ID == "" {
		return apperrors.ErrUnauthenticated
	}
	if !g.IsSuperAdmin(user) {
		return fmt.Errorf("%w: super admin only", apperrors.ErrForbidden)
	}
	return nil
}

// AuthorizeOwnerOrCreator passes when the user created the resource, or is an
// admin or owner of orgID. Any member who is neither gets ErrForbidden.
func (g *Gate) AuthorizeOwnerOrCreator(ctx context.Context, user *models.User, orgID, creatorID string) error {
	if user == nil || user.ID == "" {
		return apperrors.ErrUnauthenticated
	}

	m, err := g.Authorize(ctx, user, orgID, models.RoleUser)
	if err != nil {
		return err
	}
	if m.UserID == creatorID || Satisfies(m.Role, models.RoleAdmin) {
		return nil
	}
	return fmt.Errorf("%w: only the creator or an organization admin may do this", apperrors.ErrForbidden)
}
