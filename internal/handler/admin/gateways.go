package admin

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/palpitai/platform/internal/handler"
	"github.com/palpitai/platform/internal/service"
)

// GatewaysHandler manages payment gateway configurations.
type GatewaysHandler struct {
	gatewaySvc *service.GatewayService
}

// NewGatewaysHandler creates a new GatewaysHandler.
func NewGatewaysHandler(gatewaySvc *service.GatewayService) *GatewaysHandler {
	return &GatewaysHandler{gatewaySvc: gatewaySvc}
}

// List handles GET /admin/gateways.
func (h *GatewaysHandler) List(w http.ResponseWriter, r *http.Request) {
	gateways, err := h.gatewaySvc.List(r.Context())
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, gateways)
}

// Get handles GET /admin/gateways/{id}.
func (h *GatewaysHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := handler.URLParamUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	gw, err := h.gatewaySvc.Get(r.Context(), id)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, gw)
}

// Create handles POST /admin/gateways.
func (h *GatewaysHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.CreateGatewayInput
	if !handler.DecodeBody(w, r, &input) {
		return
	}

	gw, err := h.gatewaySvc.Create(r.Context(), input)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusCreated, gw)
}

// Update handles PUT /admin/gateways/{id}. Masked credential values are left unchanged.
func (h *GatewaysHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := handler.URLParamUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	var input service.UpdateGatewayInput
	if !handler.DecodeBody(w, r, &input) {
		return
	}

	gw, err := h.gatewaySvc.Update(r.Context(), id, input)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, gw)
}

// Activate handles POST /admin/gateways/{id}/activate.
func (h *GatewaysHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.gatewaySvc.Activate)
}

// Deactivate handles POST /admin/gateways/{id}/deactivate.
func (h *GatewaysHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.gatewaySvc.Deactivate)
}

// Delete handles DELETE /admin/gateways/{id}.
func (h *GatewaysHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := handler.URLParamUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	if err := h.gatewaySvc.Delete(r.Context(), id); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusNoContent, nil)
}

func (h *GatewaysHandler) toggle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id uuid.UUID) error) {
	id, err := handler.URLParamUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	if err := op(r.Context(), id); err != nil {
		handler.RespondError(w, err)
		return
	}

	gw, err := h.gatewaySvc.Get(r.Context(), id)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, gw)
}
