package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/authz"
	"github.com/projectelevate-biz/tag-sub001/pkg/billing"
	"github.com/projectelevate-biz/tag-sub001/pkg/credits"
	"github.com/projectelevate-biz/tag-sub001/pkg/database"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"
	"github.com/projectelevate-biz/tag-sub001/pkg/utils"

	"github.com/rs/zerolog/log"
)

// OrgsHandler serves the current-organization surface
type OrgsHandler struct {
	db            database.DatabaseInterface
	loader        ContextLoader
	gate          *authz.Gate
	ledger        *credits.Ledger
	portal        *billing.PortalService
	subscriptions *billing.SubscriptionService
}

func NewOrgsHandler(db database.DatabaseInterface, loader ContextLoader, gate *authz.Gate, ledger *credits.Ledger, portal *billing.PortalService, subscriptions *billing.SubscriptionService) *OrgsHandler {
	return &OrgsHandler{
		db:            db,
		loader:        loader,
		gate:          gate,
		ledger:        ledger,
		portal:        portal,
		subscriptions: subscriptions,
	}
}

// GET /api/app/organizations
func (h *OrgsHandler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orgs, err := h.db.ListUserOrganizations(r.Context(), user.ID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	if orgs == nil {
		orgs = []models.Organization{}
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"organizations": orgs})
}

// POST /api/app/organizations
// The creator becomes owner and the new organization becomes current.
func (h *OrgsHandler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req models.CreateOrganizationRequest
	if err := utils.ParseAndValidate(r, &req); err != nil {
		utils.WriteAppError(w, err)
		return
	}

	org := &models.Organization{Name: strings.TrimSpace(req.Name), PlanID: req.PlanID}
	if org.PlanID != "" {
		if _, err := h.db.GetPlan(r.Context(), org.PlanID); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				err = apperrors.Invalid("unknown plan %q", org.PlanID)
			}
			utils.WriteAppError(w, err)
			return
		}
	}
	if err := h.db.CreateOrganization(r.Context(), org, user.ID); err != nil {
		utils.WriteAppError(w, err)
		return
	}

	oc, err := h.loader.Switch(r.Context(), user, org.ID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	log.Info().Str("organization_id", org.ID).Str("user_id", user.ID).Msg("organization created")
	utils.WriteCreatedResponse(w, oc)
}

// GET /api/app/organizations/current
func (h *OrgsHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	oc, err := h.loader.Load(r.Context(), user)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, oc)
}

// POST /api/app/organizations/current
func (h *OrgsHandler) SwitchCurrent(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req models.SwitchOrganizationRequest
	if err := utils.ParseAndValidate(r, &req); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	oc, err := h.loader.Switch(r.Context(), user, req.OrganizationID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, oc)
}

// GET /api/app/organizations/current/members
func (h *OrgsHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	_, oc, ok := requireCurrentOrg(w, r, h.loader, h.gate, models.RoleUser)
	if !ok {
		return
	}
	members, err := h.db.ListOrganizationMembers(r.Context(), oc.Organization.ID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	if members == nil {
		members = []models.OrganizationMembership{}
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"members": members})
}

// POST /api/app/organizations/current/members
// 已是成员时返回 409，改角色走 PATCH
func (h *OrgsHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	_, oc, ok := requireCurrentOrg(w, r, h.loader, h.gate, models.RoleAdmin)
	if !ok {
		return
	}
	var req models.AddMemberRequest
	if err := utils.ParseAndValidate(r, &req); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	// 只有 owner 可以授予 owner
	if req.Role == models.RoleOwner && oc.Role != models.RoleOwner {
		utils.WriteAppError(w, apperrors.ErrInsufficientRole)
		return
	}
	if _, err := h.db.GetUserByID(r.Context(), req.UserID); err != nil {
		utils.WriteAppError(w, err)
		return
	}

	m := &models.OrganizationMembership{OrganizationID: oc.Organization.ID, UserID: req.UserID, Role: req.Role}
	if err := h.db.AddOrganizationMember(r.Context(), m); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteCreatedResponse(w, map[string]interface{}{"member": m})
}

// PATCH /api/app/organizations/current/members/{userId}
func (h *OrgsHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	_, oc, ok := requireCurrentOrg(w, r, h.loader, h.gate, models.RoleAdmin)
	if !ok {
		return
	}
	var req models.UpdateMemberRoleRequest
	if err := utils.ParseAndValidate(r, &req); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	targetID := urlParam(r, "userId")
	target, err := h.db.GetMembership(r.Context(), targetID, oc.Organization.ID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	if !canManageOwner(oc.Role, target.Role, req.Role) {
		utils.WriteAppError(w, apperrors.ErrInsufficientRole)
		return
	}
	// 最后一个 owner 的降级由存储层在锁内拒绝
	m, err := h.db.UpdateOrganizationMemberRole(r.Context(), oc.Organization.ID, targetID, req.Role)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"member": m})
}

// DELETE /api/app/organizations/current/members/{userId}
func (h *OrgsHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	user, oc, ok := requireCurrentOrg(w, r, h.loader, h.gate, models.RoleAdmin)
	if !ok {
		return
	}
	targetID := urlParam(r, "userId")
	if targetID == user.ID {
		utils.WriteAppError(w, apperrors.Invalid("use another admin to remove yourself"))
		return
	}
	target, err := h.db.GetMembership(r.Context(), targetID, oc.Organization.ID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	if !canManageOwner(oc.Role, target.Role, "") {
		utils.WriteAppError(w, apperrors.ErrInsufficientRole)
		return
	}
	if err := h.db.RemoveOrganizationMember(r.Context(), oc.Organization.ID, targetID); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"removed": targetID})
}

// canManageOwner: touching an owner membership, or granting owner, needs an owner
func canManageOwner(caller, current, next models.OrgMemberRole) bool {
	if current == models.RoleOwner || next == models.RoleOwner {
		return caller == models.RoleOwner
	}
	return true
}

// GET /api/app/organizations/current/credits
func (h *OrgsHandler) GetCredits(w http.ResponseWriter, r *http.Request) {
	_, oc, ok := requireCurrentOrg(w, r, h.loader, h.gate, models.RoleUser)
	if !ok {
		return
	}
	history, err := h.ledger.History(r.Context(), oc.Organization.ID, queryLimit(r, 50, 500))
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	if history == nil {
		history = []models.CreditTransaction{}
	}
	resp := map[string]interface{}{
		"credits":      oc.Organization.Credits,
		"transactions": history,
	}
	if creditType := strings.TrimSpace(r.URL.Query().Get("credit_type")); creditType != "" {
		balance, err := h.ledger.Balance(r.Context(), oc.Organization.ID, creditType)
		if err != nil {
			utils.WriteAppError(w, err)
			return
		}
		resp["credit_type"] = creditType
		resp["balance"] = balance
	}
	utils.WriteSuccessResponse(w, resp)
}

// POST /api/app/organizations/current/credits/spend
func (h *OrgsHandler) SpendCredits(w http.ResponseWriter, r *http.Request) {
	user, oc, ok := requireCurrentOrg(w, r, h.loader, h.gate, models.RoleUser)
	if !ok {
		return
	}
	var req models.SpendCreditsRequest
	if err := utils.ParseAndValidate(r, &req); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	balance, err := h.ledger.Append(r.Context(), credits.Entry{
		OrganizationID: oc.Organization.ID,
		CreditType:     req.CreditType,
		Direction:      models.CreditDirectionDebit,
		Amount:         req.Amount,
		Reason:         req.Reason,
		ActorID:        user.ID,
	})
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"credit_type": req.CreditType,
		"balance":     balance,
	})
}

// GET /api/app/organizations/current/billing-portal
func (h *OrgsHandler) BillingPortal(w http.ResponseWriter, r *http.Request) {
	_, oc, ok := requireCurrentOrg(w, r, h.loader, h.gate, models.RoleAdmin)
	if !ok {
		return
	}
	url, err := h.portal.Link(r.Context(), oc.Organization, oc.BillingProvider)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"provider": oc.BillingProvider,
		"url":      url,
	})
}

// GET /api/app/organizations/current/paypal
func (h *OrgsHandler) ListPaypalContexts(w http.ResponseWriter, r *http.Request) {
	_, oc, ok := requireCurrentOrg(w, r, h.loader, h.gate, models.RoleUser)
	if !ok {
		return
	}
	contexts := oc.PaypalContexts
	if contexts == nil {
		contexts = []models.PaypalContext{}
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"contexts": contexts})
}

// POST /api/app/organizations/current/paypal
func (h *OrgsHandler) CreatePaypalContext(w http.ResponseWriter, r *http.Request) {
	user, oc, ok := requireCurrentOrg(w, r, h.loader, h.gate, models.RoleUser)
	if !ok {
		return
	}
	var req models.CreatePaypalContextRequest
	if err := utils.ParseAndValidate(r, &req); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	if _, err := h.db.GetPlan(r.Context(), req.PlanID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			err = apperrors.Invalid("unknown plan %q", req.PlanID)
		}
		utils.WriteAppError(w, err)
		return
	}

	pc := &models.PaypalContext{
		OrganizationID:       oc.Organization.ID,
		UserID:               user.ID,
		PlanID:               req.PlanID,
		Status:               models.PaypalPending,
		PaypalSubscriptionID: strings.TrimSpace(req.PaypalSubscriptionID),
	}
	if pc.PaypalSubscriptionID != "" {
		pc.Status = models.PaypalActive
	}
	if err := h.db.CreatePaypalContext(r.Context(), pc); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteCreatedResponse(w, map[string]interface{}{"context": pc})
}

// POST /api/app/organizations/current/paypal/{contextId}/cancel
// Allowed for the member who created the context and for admins and owners.
func (h *OrgsHandler) CancelPaypalSubscription(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	oc, err := h.loader.Load(r.Context(), user)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	contextID := urlParam(r, "contextId")
	if err := h.subscriptions.CancelSubscription(r.Context(), user, oc.Organization.ID, contextID); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"context_id": contextID,
		"status":     models.PaypalCancelled,
	})
}
