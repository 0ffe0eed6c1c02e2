package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"
)

type stubMembers map[string]models.OrgMemberRole

func (s stubMembers) GetMembership(_ context.Context, userID, orgID string) (*models.OrganizationMembership, error) {
	role, ok := s[userID+"|"+orgID]
	if !ok {
		return nil, apperrors.NotFound("membership")
	}
	return &models.OrganizationMembership{UserID: userID, OrganizationID: orgID, Role: role}, nil
}

func TestAuthorizeRoleOrder(t *testing.T) {
	roles := []models.OrgMemberRole{models.RoleUser, models.RoleAdmin, models.RoleOwner}
	for _, have := range roles {
		for _, need := range roles {
			gate := NewGate(stubMembers{"u1|o1": have}, nil)
			_, err := gate.Authorize(context.Background(), &models.User{ID: "u1"}, "o1", need)
			want := have.Rank() >= need.Rank()
			if want && err != nil {
				t.Errorf("%s should satisfy %s: %v", have, need, err)
			}
			if !want && !errors.Is(err, apperrors.ErrInsufficientRole) {
				t.Errorf("%s should not satisfy %s, got %v", have, need, err)
			}
		}
	}
}

func TestAuthorizeRejectionOrder(t *testing.T) {
	gate := NewGate(stubMembers{"u1|o1": models.RoleUser}, nil)
	ctx := context.Background()

	if _, err := gate.Authorize(ctx, nil, "o1", models.RoleUser); !errors.Is(err, apperrors.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if _, err := gate.Authorize(ctx, &models.User{ID: "u2"}, "o1", models.RoleOwner); !errors.Is(err, apperrors.ErrNotAMember) {
		t.Fatalf("expected not a member, got %v", err)
	}
	if _, err := gate.Authorize(ctx, &models.User{ID: "u1"}, "o1", models.RoleAdmin); !errors.Is(err, apperrors.ErrInsufficientRole) {
		t.Fatalf("expected insufficient role, got %v", err)
	}
}

func TestUnknownRoleNeverSatisfies(t *testing.T) {
	if Satisfies("guest", models.RoleUser) {
		t.Fatalf("unknown role satisfied a gate")
	}
}

func TestOwnerOrCreator(t *testing.T) {
	gate := NewGate(stubMembers{
		"creator|o1": models.RoleUser,
		"other|o1":   models.RoleUser,
		"admin|o1":   models.RoleAdmin,
	}, nil)
	ctx := context.Background()

	if err := gate.AuthorizeOwnerOrCreator(ctx, &models.User{ID: "creator"}, "o1", "creator"); err != nil {
		t.Fatalf("creator should pass: %v", err)
	}
	if err := gate.AuthorizeOwnerOrCreator(ctx, &models.User{ID: "admin"}, "o1", "creator"); err != nil {
		t.Fatalf("admin should pass: %v", err)
	}
	if err := gate.AuthorizeOwnerOrCreator(ctx, &models.User{ID: "other"}, "o1", "creator"); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("plain member should be forbidden, got %v", err)
	}
	if err := gate.AuthorizeOwnerOrCreator(ctx, &models.User{ID: "creator"}, "o2", "creator"); !errors.Is(err, apperrors.ErrNotAMember) {
		t.Fatalf("creator outside org should be rejected, got %v", err)
	}
}

func TestRequireSuperAdmin(t *testing.T) {
	gate := NewGate(stubMembers{}, map[string]struct{}{"root@relay.edu": {}})
	if err := gate.RequireSuperAdmin(&models.User{ID: "u1", Email: " Root@Relay.edu"}); err != nil {
		t.Fatalf("expected super admin: %v", err)
	}
	if err := gate.RequireSuperAdmin(&models.User{ID: "u2", Email: "x@relay.edu"}); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := gate.RequireSuperAdmin(nil); !errors.Is(err, apperrors.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}
