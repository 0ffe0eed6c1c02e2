package handlers

import (
	"net/http"

	"github.com/projectelevate-biz/tag-sub001/pkg/billing"
	"github.com/projectelevate-biz/tag-sub001/pkg/engagements"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"
	"github.com/projectelevate-biz/tag-sub001/pkg/utils"
)

// EngagementsHandler serves engagements, invoices and invoice checkout
type EngagementsHandler struct {
	loader      ContextLoader
	engagements *engagements.Service
	checkout    *billing.CheckoutService
}

func NewEngagementsHandler(loader ContextLoader, svc *engagements.Service, checkout *billing.CheckoutService) *EngagementsHandler {
	return &EngagementsHandler{loader: loader, engagements: svc, checkout: checkout}
}

// GET /api/app/engagements
func (h *EngagementsHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	oc, err := h.loader.Load(r.Context(), user)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	list, err := h.engagements.List(r.Context(), user, oc.Organization.ID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	if list == nil {
		list = []models.Engagement{}
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"engagements": list})
}

// POST /api/app/engagements
func (h *EngagementsHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req models.CreateEngagementRequest
	if err := utils.ParseAndValidate(r, &req); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	oc, err := h.loader.Load(r.Context(), user)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	e, err := h.engagements.Create(r.Context(), user, oc.Organization.ID, req)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteCreatedResponse(w, map[string]interface{}{"engagement": e})
}

// POST /api/app/engagements/{id}/invoices
func (h *EngagementsHandler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req models.CreateInvoiceRequest
	if err := utils.ParseAndValidate(r, &req); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	inv, err := h.engagements.CreateInvoice(r.Context(), user, urlParam(r, "id"), req)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteCreatedResponse(w, map[string]interface{}{"invoice": inv})
}

// POST /api/app/invoices/{id}/checkout
func (h *EngagementsHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	cs, err := h.checkout.CreateInvoiceCheckout(r.Context(), user, urlParam(r, "id"))
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"session_id": cs.ID,
		"url":        cs.URL,
	})
}
