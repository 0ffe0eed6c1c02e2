package billing

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/authz"
	"github.com/projectelevate-biz/tag-sub001/pkg/database"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type fakeCanceller struct{ calls []string }

func (f *fakeCanceller) CancelSubscription(_ context.Context, id, _ string) error {
	f.calls = append(f.calls, id)
	return nil
}

type fakeAccounts struct {
	created int
	links   int
	linkErr error
}

func (f *fakeAccounts) CreateExpressAccount(context.Context, string, string) (string, error) {
	f.created++
	return "acct_new", nil
}

func (f *fakeAccounts) OnboardingLink(_ context.Context, accountID string) (string, error) {
	f.links++
	if f.linkErr != nil {
		return "", f.linkErr
	}
	return "https://connect.example/" + accountID, nil
}

type paypalFixture struct {
	db       *database.LocalDatabase
	svc      *SubscriptionService
	canceler *fakeCanceller
	orgID    string
}

func newPaypalFixture(t *testing.T) *paypalFixture {
	t.Helper()
	ctx := context.Background()
	db := database.NewLocalDatabase()
	org := &models.Organization{Name: "State University"}
	if err := db.CreateOrganization(ctx, org, "owner"); err != nil {
		t.Fatalf("create org: %v", err)
	}
	for _, id := range []string{"creator", "bystander"} {
		db.AddOrganizationMember(ctx, &models.OrganizationMembership{OrganizationID: org.ID, UserID: id, Role: models.RoleUser})
	}
	c := &fakeCanceller{}
	return &paypalFixture{
		db:       db,
		svc:      NewSubscriptionService(db, authz.NewGate(db, nil), c),
		canceler: c,
		orgID:    org.ID,
	}
}

func (f *paypalFixture) newContext(t *testing.T) string {
	t.Helper()
	pc := &models.PaypalContext{
		OrganizationID:       f.orgID,
		UserID:               "creator",
		PlanID:               "pro",
		Status:               models.PaypalActive,
		PaypalSubscriptionID: "I-1",
	}
	if err := f.db.CreatePaypalContext(context.Background(), pc); err != nil {
		t.Fatalf("create context: %v", err)
	}
	return pc.ID
}

func TestCancelSubscriptionOwnerOrCreator(t *testing.T) {
	ctx := context.Background()

	t.Run("owner who is not the creator", func(t *testing.T) {
		f := newPaypalFixture(t)
		id := f.newContext(t)
		if err := f.svc.CancelSubscription(ctx, &models.User{ID: "owner"}, f.orgID, id); err != nil {
			t.Fatalf("owner cancel: %v", err)
		}
		pc, _ := f.db.GetPaypalContext(ctx, id)
		if pc.Status != models.PaypalCancelled || len(f.canceler.calls) != 1 {
			t.Fatalf("expected cancelled context and one provider call, got %s %v", pc.Status, f.canceler.calls)
		}
		logs, _ := f.db.ListAuditLogs(ctx, "paypal_context", id)
		if len(logs) != 1 || logs[0].Action != models.AuditPaypalSubscriptionEnded {
			t.Fatalf("expected one cancellation audit row, got %+v", logs)
		}
	})

	t.Run("creator with user role", func(t *testing.T) {
		f := newPaypalFixture(t)
		id := f.newContext(t)
		if err := f.svc.CancelSubscription(ctx, &models.User{ID: "creator"}, f.orgID, id); err != nil {
			t.Fatalf("creator cancel: %v", err)
		}
	})

	t.Run("other user-role member", func(t *testing.T) {
		f := newPaypalFixture(t)
		id := f.newContext(t)
		err := f.svc.CancelSubscription(ctx, &models.User{ID: "bystander"}, f.orgID, id)
		if !errors.Is(err, apperrors.ErrForbidden) {
			t.Fatalf("expected forbidden, got %v", err)
		}
		pc, _ := f.db.GetPaypalContext(ctx, id)
		if pc.Status != models.PaypalActive || len(f.canceler.calls) != 0 {
			t.Fatalf("rejected cancel must not touch state")
		}
	})
}

func TestCancelSubscriptionOtherOrganization(t *testing.T) {
	f := newPaypalFixture(t)
	id := f.newContext(t)
	err := f.svc.CancelSubscription(context.Background(), &models.User{ID: "owner"}, "another-org", id)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found for foreign context, got %v", err)
	}
}

func TestConnectReusesAccountAndRefreshesLink(t *testing.T) {
	ctx := context.Background()
	db := database.NewLocalDatabase()
	profile := &models.ConsultantProfile{UserID: "u1", Headline: "Enrollment strategy", Status: models.ConsultantActive}
	db.CreateConsultantProfile(ctx, profile)

	accounts := &fakeAccounts{}
	svc := NewConnectService(db, accounts)
	user := &models.User{ID: "u1", Email: "c@rebound.io"}

	first, err := svc.CreateConnectedPayoutAccount(ctx, user, profile)
	if err != nil {
		t.Fatalf("first connect: %v", err)
	}
	stored, _ := db.GetConsultantProfile(ctx, profile.ID)
	second, err := svc.CreateConnectedPayoutAccount(ctx, user, stored)
	if err != nil {
		t.Fatalf("second connect: %v", err)
	}

	if accounts.created != 1 || accounts.links != 2 {
		t.Fatalf("expected one account and two links, got %d/%d", accounts.created, accounts.links)
	}
	if first.AccountID != "acct_new" || second.AccountID != "acct_new" {
		t.Fatalf("account id not reused: %+v %+v", first, second)
	}
	stored, _ = db.GetConsultantProfile(ctx, profile.ID)
	if stored.StripeAccountID != "acct_new" || stored.StripeOnboardingURL == "" {
		t.Fatalf("account not persisted: %+v", stored)
	}

	if _, err := svc.CreateConnectedPayoutAccount(ctx, &models.User{ID: "u2"}, stored); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("expected forbidden for another user, got %v", err)
	}
}

type brokenConnectStore struct{}

func (brokenConnectStore) SetConsultantStripeAccount(context.Context, string, string, string) error {
	return errors.New("connection reset")
}

func TestConnectLogsUnpersistedAccount(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	accounts := &fakeAccounts{linkErr: errors.New("link unavailable")}
	svc := NewConnectService(brokenConnectStore{}, accounts)
	profile := &models.ConsultantProfile{ID: "p1", UserID: "u1"}

	_, err := svc.CreateConnectedPayoutAccount(context.Background(), &models.User{ID: "u1"}, profile)
	if err == nil || accounts.created != 1 {
		t.Fatalf("expected link failure after account creation, got %v (created %d)", err, accounts.created)
	}
	out := buf.String()
	if !strings.Contains(out, "connection reset") || !strings.Contains(out, `"account_id":"acct_new"`) {
		t.Fatalf("expected the persistence failure to be logged with the account id, got %s", out)
	}
}

func TestPortalNotImplemented(t *testing.T) {
	svc := NewPortalService(nil, nil)
	for _, p := range []Provider{ProviderPaypal, ProviderLemonSqueezy, ProviderNone} {
		if _, err := svc.Link(context.Background(), &models.Organization{}, p); !errors.Is(err, apperrors.ErrNotImplemented) {
			t.Fatalf("%s: expected not implemented, got %v", p, err)
		}
	}
}
