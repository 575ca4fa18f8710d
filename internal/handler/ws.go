package handler

import (
	"net/http"

	"github.com/palpitai/platform/internal/auth"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/infra"
)

// WSHandler upgrades authenticated users onto the notification hub.
type WSHandler struct {
	hub    *infra.WSHub
	jwtMgr *auth.JWTManager
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub *infra.WSHub, jwtMgr *auth.JWTManager) *WSHandler {
	return &WSHandler{hub: hub, jwtMgr: jwtMgr}
}

// Serve handles GET /ws?token=. Browsers cannot set headers on a websocket
// handshake, so the user token travels in the query string.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		RespondError(w, domain.ErrUnauthorized("missing token"))
		return
	}

	claims, err := h.jwtMgr.ValidateTokenForRealm(token, auth.RealmUser)
	if err != nil {
		RespondError(w, domain.ErrUnauthorized("invalid token"))
		return
	}

	h.hub.ServeUser(w, r, claims.Subject)
}
