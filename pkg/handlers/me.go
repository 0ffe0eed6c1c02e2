package handlers

import (
	"net/http"
	"strings"

	"github.com/projectelevate-biz/tag-sub001/pkg/authz"
	"github.com/projectelevate-biz/tag-sub001/pkg/database"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"
	"github.com/projectelevate-biz/tag-sub001/pkg/utils"
)

// SessionCache is told when a mirrored user changes
type SessionCache interface {
	Forget(userID string)
}

// MeHandler 当前用户
type MeHandler struct {
	db       database.DatabaseInterface
	gate     *authz.Gate
	sessions SessionCache
}

func NewMeHandler(db database.DatabaseInterface, gate *authz.Gate, sessions SessionCache) *MeHandler {
	return &MeHandler{db: db, gate: gate, sessions: sessions}
}

// GET /api/app/me
func (h *MeHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"user":        user,
		"super_admin": h.gate.IsSuperAdmin(user),
	})
}

// PATCH /api/app/me
func (h *MeHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req models.UpdateMeRequest
	if err := utils.ParseAndValidate(r, &req); err != nil {
		utils.WriteAppError(w, err)
		return
	}

	updated := *user
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Image != nil {
		updated.Image = strings.TrimSpace(*req.Image)
	}
	if err := h.db.UpdateUser(r.Context(), &updated); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	if h.sessions != nil {
		h.sessions.Forget(user.ID)
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"user": updated})
}
