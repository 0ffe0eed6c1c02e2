package handlers

import (
	"net/http"

	"github.com/projectelevate-biz/tag-sub001/pkg/billing"
	"github.com/projectelevate-biz/tag-sub001/pkg/consultants"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"
	"github.com/projectelevate-biz/tag-sub001/pkg/utils"
)

// ConsultantHandler 顾问档案
type ConsultantHandler struct {
	profiles *consultants.Service
	connect  *billing.ConnectService
}

func NewConsultantHandler(profiles *consultants.Service, connect *billing.ConnectService) *ConsultantHandler {
	return &ConsultantHandler{profiles: profiles, connect: connect}
}

// GET /api/app/consultant/profile
func (h *ConsultantHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	p, err := h.profiles.GetOwnProfile(r.Context(), user)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"profile": p})
}

// PUT /api/app/consultant/profile
func (h *ConsultantHandler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req models.ConsultantProfileRequest
	if err := utils.ParseAndValidate(r, &req); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	p, err := h.profiles.SaveProfile(r.Context(), user, req)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"profile": p})
}

// POST /api/app/consultant/profile/submit
func (h *ConsultantHandler) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	own, err := h.profiles.GetOwnProfile(r.Context(), user)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	p, err := h.profiles.Submit(r.Context(), user, own.ID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"profile": p})
}

// POST /api/app/consultant/connect
// Returns a fresh Stripe onboarding link for the caller's payout account.
func (h *ConsultantHandler) Connect(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	p, err := h.profiles.GetOwnProfile(r.Context(), user)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	result, err := h.connect.CreateConnectedPayoutAccount(r.Context(), user, p)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"account_id": result.AccountID,
		"url":        result.URL,
	})
}
