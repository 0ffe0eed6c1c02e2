package handlers

import (
	"net/http"
	"strings"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/authz"
	"github.com/projectelevate-biz/tag-sub001/pkg/consultants"
	"github.com/projectelevate-biz/tag-sub001/pkg/credits"
	"github.com/projectelevate-biz/tag-sub001/pkg/database"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"
	"github.com/projectelevate-biz/tag-sub001/pkg/payouts"
	"github.com/projectelevate-biz/tag-sub001/pkg/utils"
)

// SuperAdminHandler 超级管理员接口，全部要求白名单邮箱
type SuperAdminHandler struct {
	db          database.DatabaseInterface
	gate        *authz.Gate
	ledger      *credits.Ledger
	consultants *consultants.Service
	payouts     *payouts.Dispatcher
}

func NewSuperAdminHandler(db database.DatabaseInterface, gate *authz.Gate, ledger *credits.Ledger, svc *consultants.Service, dispatcher *payouts.Dispatcher) *SuperAdminHandler {
	return &SuperAdminHandler{db: db, gate: gate, ledger: ledger, consultants: svc, payouts: dispatcher}
}

func (h *SuperAdminHandler) requireSuperAdmin(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := requireUser(w, r)
	if !ok {
		return nil, false
	}
	if err := h.gate.RequireSuperAdmin(user); err != nil {
		utils.WriteAppError(w, err)
		return nil, false
	}
	return user, true
}

// GET /api/super-admin/organizations/{id}/credits
func (h *SuperAdminHandler) GetOrganizationCredits(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireSuperAdmin(w, r); !ok {
		return
	}
	orgID := urlParam(r, "id")
	org, err := h.db.GetOrganization(r.Context(), orgID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	history, err := h.ledger.History(r.Context(), orgID, queryLimit(r, 100, 1000))
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	audit, err := h.db.ListAuditLogs(r.Context(), "organization", orgID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	if history == nil {
		history = []models.CreditTransaction{}
	}
	if audit == nil {
		audit = []models.AuditLog{}
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"organization": org,
		"credits":      org.Credits,
		"transactions": history,
		"audit":        audit,
	})
}

// POST /api/super-admin/organizations/{id}/credits
func (h *SuperAdminHandler) AdjustOrganizationCredits(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.requireSuperAdmin(w, r)
	if !ok {
		return
	}
	orgID := urlParam(r, "id")
	var req models.AdminCreditRequest
	if err := utils.ParseAndValidate(r, &req); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	if _, err := h.db.GetOrganization(r.Context(), orgID); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	balance, err := h.ledger.AdminAdjust(r.Context(), admin, orgID, req)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"organization_id": orgID,
		"credit_type":     req.CreditType,
		"balance":         balance,
	})
}

// GET /api/super-admin/consultants?status=SUBMITTED
func (h *SuperAdminHandler) ListConsultants(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.requireSuperAdmin(w, r)
	if !ok {
		return
	}
	status := models.ConsultantStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))))
	switch status {
	case "", models.ConsultantDraft, models.ConsultantSubmitted, models.ConsultantActive, models.ConsultantRejected:
	default:
		utils.WriteAppError(w, apperrors.Invalid("unknown status %q", status))
		return
	}
	list, err := h.consultants.List(r.Context(), admin, status)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	if list == nil {
		list = []models.ConsultantProfile{}
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"consultants": list})
}

// POST /api/super-admin/consultants/{id}/approve
func (h *SuperAdminHandler) ApproveConsultant(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.requireSuperAdmin(w, r)
	if !ok {
		return
	}
	p, err := h.consultants.Approve(r.Context(), admin, urlParam(r, "id"))
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"profile": p})
}

// POST /api/super-admin/consultants/{id}/reject
func (h *SuperAdminHandler) RejectConsultant(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.requireSuperAdmin(w, r)
	if !ok {
		return
	}
	var req models.RejectConsultantRequest
	if err := utils.ParseAndValidate(r, &req); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	p, err := h.consultants.Reject(r.Context(), admin, urlParam(r, "id"), req.Reason)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"profile": p})
}

// POST /api/super-admin/payouts
func (h *SuperAdminHandler) ManualPayout(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.requireSuperAdmin(w, r)
	if !ok {
		return
	}
	var req models.ManualPayoutRequest
	if err := utils.ParseAndValidate(r, &req); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	result, err := h.payouts.ManualPayout(r.Context(), admin, req)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, result)
}
