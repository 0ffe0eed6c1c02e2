package orgcontext

import (
	"context"
	"errors"
	"testing"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/billing"
	"github.com/projectelevate-biz/tag-sub001/pkg/database"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"
)

type countingStore struct {
	*database.LocalDatabase
	writes int
}

func (s *countingStore) SetSelectedOrganization(ctx context.Context, userID, orgID string) error {
	s.writes++
	return s.LocalDatabase.SetSelectedOrganization(ctx, userID, orgID)
}

func TestLoadSelectsFirstOrganizationAndReusesIt(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{LocalDatabase: database.NewLocalDatabase()}
	a := &models.Organization{Name: "A", PlanID: "pro", StripeCustomerID: "cus_1"}
	b := &models.Organization{Name: "B"}
	store.CreateOrganization(ctx, a, "u1")
	store.CreateOrganization(ctx, b, "u1")

	loader := NewLoader(store)
	user := &models.User{ID: "u1"}

	first, err := loader.Load(ctx, user)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if first.Organization.ID != a.ID {
		t.Fatalf("expected A, got %s", first.Organization.Name)
	}
	if first.Role != models.RoleOwner || first.Plan == nil || first.BillingProvider != billing.ProviderStripe {
		t.Fatalf("unexpected context: %+v", first)
	}

	second, err := loader.Load(ctx, user)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if second.Organization.ID != a.ID {
		t.Fatalf("expected A to be reused, got %s", second.Organization.Name)
	}
	if store.writes != 1 {
		t.Fatalf("expected exactly one selection write, got %d", store.writes)
	}
}

func TestLoadFallsBackWhenSelectionIsStale(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{LocalDatabase: database.NewLocalDatabase()}
	a := &models.Organization{Name: "A"}
	b := &models.Organization{Name: "B"}
	store.CreateOrganization(ctx, a, "u1")
	store.CreateOrganization(ctx, b, "u1")

	loader := NewLoader(store)
	user := &models.User{ID: "u1"}
	if _, err := loader.Switch(ctx, user, b.ID); err != nil {
		t.Fatalf("switch: %v", err)
	}
	store.AddOrganizationMember(ctx, &models.OrganizationMembership{OrganizationID: b.ID, UserID: "u2", Role: models.RoleOwner})
	if err := store.RemoveOrganizationMember(ctx, b.ID, "u1"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	oc, err := loader.Load(ctx, user)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if oc.Organization.ID != a.ID {
		t.Fatalf("expected fallback to A, got %s", oc.Organization.Name)
	}
	selected, _ := store.GetSelectedOrganization(ctx, "u1")
	if selected != a.ID {
		t.Fatalf("fallback selection not persisted")
	}
}

func TestLoadWithoutOrganizations(t *testing.T) {
	loader := NewLoader(database.NewLocalDatabase())
	if _, err := loader.Load(context.Background(), &models.User{ID: "lonely"}); !errors.Is(err, apperrors.ErrNoOrganization) {
		t.Fatalf("expected no organization, got %v", err)
	}
}

func TestSwitchRequiresMembership(t *testing.T) {
	ctx := context.Background()
	db := database.NewLocalDatabase()
	org := &models.Organization{Name: "A"}
	db.CreateOrganization(ctx, org, "u1")

	if _, err := NewLoader(db).Switch(ctx, &models.User{ID: "u2"}, org.ID); !errors.Is(err, apperrors.ErrNotAMember) {
		t.Fatalf("expected not a member, got %v", err)
	}
}
