package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/projectelevate-biz/tag-sub001/pkg/authz"
	"github.com/projectelevate-biz/tag-sub001/pkg/middleware"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"
	"github.com/projectelevate-biz/tag-sub001/pkg/orgcontext"
	"github.com/projectelevate-biz/tag-sub001/pkg/utils"

	chiRoute "github.com/go-chi/chi/v5"
)

// ContextLoader resolves the caller's current organization
type ContextLoader interface {
	Load(ctx context.Context, user *models.User) (*orgcontext.OrgContext, error)
	Switch(ctx context.Context, user *models.User, orgID string) (*orgcontext.OrgContext, error)
}

// ==== helpers: session/role checks ====

// requireUser writes 401 and returns false when the request has no session
func requireUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteAppError(w, err)
		return nil, false
	}
	return user, true
}

// requireCurrentOrg loads the current organization and checks the caller's
// role there with the gate. Any failure is written to w.
func requireCurrentOrg(w http.ResponseWriter, r *http.Request, loader ContextLoader, gate *authz.Gate, required models.OrgMemberRole) (*models.User, *orgcontext.OrgContext, bool) {
	user, ok := requireUser(w, r)
	if !ok {
		return nil, nil, false
	}
	oc, err := loader.Load(r.Context(), user)
	if err != nil {
		utils.WriteAppError(w, err)
		return nil, nil, false
	}
	m, err := gate.Authorize(r.Context(), user, oc.Organization.ID, required)
	if err != nil {
		utils.WriteAppError(w, err)
		return nil, nil, false
	}
	oc.Role = m.Role
	return user, oc, true
}

func urlParam(r *http.Request, name string) string {
	return strings.TrimSpace(chiRoute.URLParam(r, name))
}

func queryLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
