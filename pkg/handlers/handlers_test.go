package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/authz"
	"github.com/projectelevate-biz/tag-sub001/pkg/billing"
	"github.com/projectelevate-biz/tag-sub001/pkg/config"
	"github.com/projectelevate-biz/tag-sub001/pkg/consultants"
	"github.com/projectelevate-biz/tag-sub001/pkg/credits"
	"github.com/projectelevate-biz/tag-sub001/pkg/database"
	"github.com/projectelevate-biz/tag-sub001/pkg/middleware"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"
	"github.com/projectelevate-biz/tag-sub001/pkg/orgcontext"
	"github.com/projectelevate-biz/tag-sub001/pkg/payouts"

	chiRoute "github.com/go-chi/chi/v5"
)

type fakeCanceller struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeCanceller) CancelSubscription(_ context.Context, subscriptionID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, subscriptionID)
	return nil
}

type testEnv struct {
	db     *database.LocalDatabase
	router *chiRoute.Mux
	paypal *fakeCanceller
}

func newTestEnv(t *testing.T, superAdmins ...string) *testEnv {
	t.Helper()
	db := database.NewLocalDatabase()
	gate := authz.NewGate(db, config.ParseEmailAllowList(strings.Join(superAdmins, ",")))
	loader := orgcontext.NewLoader(db)
	ledger := credits.NewLedger(db)
	paypal := &fakeCanceller{}

	orgs := NewOrgsHandler(db, loader, gate, ledger,
		billing.NewPortalService(nil, nil),
		billing.NewSubscriptionService(db, gate, paypal))
	profiles := consultants.NewService(db, gate)
	admin := NewSuperAdminHandler(db, gate, ledger, profiles, payouts.NewDispatcher(db, nil, gate, "usd"))
	me := NewMeHandler(db, gate, nil)

	r := chiRoute.NewRouter()
	r.Get("/api/app/me", me.GetMe)
	r.Post("/api/app/organizations", orgs.CreateOrganization)
	r.Get("/api/app/organizations/current", orgs.GetCurrent)
	r.Get("/api/app/organizations/current/members", orgs.ListMembers)
	r.Post("/api/app/organizations/current/members", orgs.AddMember)
	r.Patch("/api/app/organizations/current/members/{userId}", orgs.UpdateMemberRole)
	r.Delete("/api/app/organizations/current/members/{userId}", orgs.RemoveMember)
	r.Get("/api/app/organizations/current/credits", orgs.GetCredits)
	r.Post("/api/app/organizations/current/credits/spend", orgs.SpendCredits)
	r.Get("/api/app/organizations/current/billing-portal", orgs.BillingPortal)
	r.Post("/api/app/organizations/current/paypal", orgs.CreatePaypalContext)
	r.Post("/api/app/organizations/current/paypal/{contextId}/cancel", orgs.CancelPaypalSubscription)
	r.Post("/api/super-admin/organizations/{id}/credits", admin.AdjustOrganizationCredits)

	return &testEnv{db: db, router: r, paypal: paypal}
}

func (e *testEnv) user(t *testing.T, id, email string) *models.User {
	t.Helper()
	u := &models.User{ID: id, Email: email}
	if err := e.db.UpsertUser(context.Background(), u); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	return u
}

func (e *testEnv) org(t *testing.T, owner *models.User, members map[*models.User]models.OrgMemberRole) *models.Organization {
	t.Helper()
	ctx := context.Background()
	org := &models.Organization{Name: "Riverside Food Bank"}
	if err := e.db.CreateOrganization(ctx, org, owner.ID); err != nil {
		t.Fatalf("create org: %v", err)
	}
	for u, role := range members {
		if err := e.db.AddOrganizationMember(ctx, &models.OrganizationMembership{OrganizationID: org.ID, UserID: u.ID, Role: role}); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	return org
}

func (e *testEnv) do(t *testing.T, user *models.User, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req = req.WithContext(middleware.WithUser(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	if v != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, v); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env
}

func TestRequiresSession(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/app/me", "/api/app/organizations/current"} {
		rec := env.do(t, nil, http.MethodGet, path, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestCurrentOrganizationWithoutMemberships(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "u1", "solo@example.org")
	rec := env.do(t, u, http.MethodGet, "/api/app/organizations/current", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateOrganizationBecomesCurrent(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "u1", "founder@example.org")

	rec := env.do(t, u, http.MethodPost, "/api/app/organizations", map[string]string{"name": "Harbor Arts", "plan_id": "pro"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created orgcontext.OrgContext
	decode(t, rec, &created)
	if created.Role != models.RoleOwner || created.Plan == nil || created.Plan.ID != "pro" {
		t.Fatalf("unexpected context: %+v", created)
	}

	rec = env.do(t, u, http.MethodGet, "/api/app/organizations/current", nil)
	var current orgcontext.OrgContext
	decode(t, rec, &current)
	if current.Organization == nil || current.Organization.ID != created.Organization.ID {
		t.Fatalf("expected created org to be current, got %+v", current.Organization)
	}

	rec = env.do(t, u, http.MethodPost, "/api/app/organizations", map[string]string{"name": "X", "plan_id": "platinum"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown plan, got %d", rec.Code)
	}
}

func TestMemberManagementRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "owner", "owner@example.org")
	member := env.user(t, "member", "member@example.org")
	newcomer := env.user(t, "newcomer", "new@example.org")
	env.org(t, owner, map[*models.User]models.OrgMemberRole{member: models.RoleUser})

	rec := env.do(t, member, http.MethodGet, "/api/app/organizations/current/members", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("members list: expected 200, got %d", rec.Code)
	}

	add := map[string]string{"user_id": newcomer.ID, "role": "user"}
	rec = env.do(t, member, http.MethodPost, "/api/app/organizations/current/members", add)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("user adding member: expected 403, got %d", rec.Code)
	}
	rec = env.do(t, owner, http.MethodPost, "/api/app/organizations/current/members", add)
	if rec.Code != http.StatusCreated {
		t.Fatalf("owner adding member: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestOwnerMembershipIsProtected(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "owner", "owner@example.org")
	admin := env.user(t, "admin", "admin@example.org")
	org := env.org(t, owner, map[*models.User]models.OrgMemberRole{admin: models.RoleAdmin})

	roleOf := func(u *models.User) models.OrgMemberRole {
		t.Helper()
		m, err := env.db.GetMembership(context.Background(), u.ID, org.ID)
		if err != nil {
			t.Fatalf("membership %s: %v", u.ID, err)
		}
		return m.Role
	}
	member := func(u *models.User) string { return "/api/app/organizations/current/members/" + u.ID }

	// re-adding an existing member never overwrites the role
	rec := env.do(t, admin, http.MethodPost, "/api/app/organizations/current/members", map[string]string{"user_id": owner.ID, "role": "user"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("admin re-adding owner: expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, admin, http.MethodPatch, member(owner), map[string]string{"role": "user"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("admin demoting owner: expected 403, got %d", rec.Code)
	}
	rec = env.do(t, admin, http.MethodDelete, member(owner), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("admin removing owner: expected 403, got %d", rec.Code)
	}
	if got := roleOf(owner); got != models.RoleOwner {
		t.Fatalf("owner role changed to %s", got)
	}

	rec = env.do(t, owner, http.MethodPatch, member(owner), map[string]string{"role": "admin"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("sole owner self-demotion: expected 409, got %d", rec.Code)
	}
	if resp := decode(t, rec, nil); resp.Error != "CONFLICT" {
		t.Fatalf("expected CONFLICT, got %q", resp.Error)
	}
	if got := roleOf(owner); got != models.RoleOwner {
		t.Fatalf("sole owner demoted to %s", got)
	}

	// hand over ownership, then step down
	rec = env.do(t, owner, http.MethodPatch, member(admin), map[string]string{"role": "owner"})
	if rec.Code != http.StatusOK {
		t.Fatalf("promote admin: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, owner, http.MethodPatch, member(owner), map[string]string{"role": "admin"})
	if rec.Code != http.StatusOK {
		t.Fatalf("step down with a second owner: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if roleOf(owner) != models.RoleAdmin || roleOf(admin) != models.RoleOwner {
		t.Fatalf("unexpected roles after handover: %s %s", roleOf(owner), roleOf(admin))
	}
}

func TestCancelPaypalSubscriptionOwnerOrCreator(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "owner", "owner@example.org")
	creator := env.user(t, "creator", "creator@example.org")
	bystander := env.user(t, "bystander", "bystander@example.org")
	env.org(t, owner, map[*models.User]models.OrgMemberRole{
		creator:   models.RoleUser,
		bystander: models.RoleUser,
	})

	create := func(subID string) string {
		rec := env.do(t, creator, http.MethodPost, "/api/app/organizations/current/paypal",
			map[string]string{"plan_id": "pro", "paypal_subscription_id": subID})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create context: expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var data struct {
			Context models.PaypalContext `json:"context"`
		}
		decode(t, rec, &data)
		if data.Context.Status != models.PaypalActive {
			t.Fatalf("expected active context, got %s", data.Context.Status)
		}
		return data.Context.ID
	}
	cancelPath := func(id string) string {
		return "/api/app/organizations/current/paypal/" + id + "/cancel"
	}

	first := create("I-FIRST")
	rec := env.do(t, bystander, http.MethodPost, cancelPath(first), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("bystander: expected 403, got %d", rec.Code)
	}
	if len(env.paypal.calls) != 0 {
		t.Fatalf("bystander must not reach paypal, got %v", env.paypal.calls)
	}

	rec = env.do(t, creator, http.MethodPost, cancelPath(first), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("creator: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	second := create("I-SECOND")
	rec = env.do(t, owner, http.MethodPost, cancelPath(second), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if got := strings.Join(env.paypal.calls, ","); got != "I-FIRST,I-SECOND" {
		t.Fatalf("unexpected paypal calls: %s", got)
	}
	pc, _ := env.db.GetPaypalContext(context.Background(), first)
	if pc.Status != models.PaypalCancelled {
		t.Fatalf("expected cancelled status, got %s", pc.Status)
	}
}

func TestCreditsSpendAndAdminGrant(t *testing.T) {
	env := newTestEnv(t, "root@relay.example")
	root := env.user(t, "root", "root@relay.example")
	owner := env.user(t, "owner", "owner@example.org")
	org := env.org(t, owner, nil)

	grant := map[string]interface{}{"direction": "credit", "credit_type": "ai", "amount": 20, "reason": "pilot"}
	rec := env.do(t, owner, http.MethodPost, "/api/super-admin/organizations/"+org.ID+"/credits", grant)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non super admin: expected 403, got %d", rec.Code)
	}
	rec = env.do(t, root, http.MethodPost, "/api/super-admin/organizations/"+org.ID+"/credits", grant)
	if rec.Code != http.StatusOK {
		t.Fatalf("super admin grant: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	spend := func(amount int64) *httptest.ResponseRecorder {
		return env.do(t, owner, http.MethodPost, "/api/app/organizations/current/credits/spend",
			map[string]interface{}{"credit_type": "ai", "amount": amount, "reason": "summary"})
	}
	rec = spend(30)
	if rec.Code != http.StatusConflict {
		t.Fatalf("overdraft: expected 409, got %d", rec.Code)
	}
	if resp := decode(t, rec, nil); resp.Error != "INSUFFICIENT_CREDITS" {
		t.Fatalf("unexpected error code %q", resp.Error)
	}

	rec = spend(5)
	var data struct {
		Balance int64 `json:"balance"`
	}
	decode(t, rec, &data)
	if rec.Code != http.StatusOK || data.Balance != 15 {
		t.Fatalf("expected balance 15, got %d (%d)", data.Balance, rec.Code)
	}

	rec = env.do(t, owner, http.MethodGet, "/api/app/organizations/current/credits", nil)
	var view struct {
		Credits      int64                      `json:"credits"`
		Transactions []models.CreditTransaction `json:"transactions"`
	}
	decode(t, rec, &view)
	if view.Credits != 15 || len(view.Transactions) != 2 {
		t.Fatalf("unexpected credit view: %+v", view)
	}
}

func TestBillingPortalWithoutProvider(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "owner", "owner@example.org")
	member := env.user(t, "member", "member@example.org")
	env.org(t, owner, map[*models.User]models.OrgMemberRole{member: models.RoleUser})

	if rec := env.do(t, member, http.MethodGet, "/api/app/organizations/current/billing-portal", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("user role: expected 403, got %d", rec.Code)
	}
	if rec := env.do(t, owner, http.MethodGet, "/api/app/organizations/current/billing-portal", nil); rec.Code != http.StatusNotImplemented {
		t.Fatalf("no provider: expected 501, got %d", rec.Code)
	}
}

func TestPaymentEventErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"signature", apperrors.ErrInvalidSignature, http.StatusBadRequest},
		{"payload", apperrors.Invalid("decode checkout.session"), http.StatusBadRequest},
		{"storage", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewWebhookHandler(stubEvents{err: tc.err})
			req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe-rebound", strings.NewReader("{}"))
			rec := httptest.NewRecorder()
			h.HandleStripe(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
				t.Fatalf("expected {error} body, got %s", rec.Body.String())
			}
		})
	}
}
