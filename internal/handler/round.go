package handler

import (
	"net/http"

	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/service"
)

// RoundHandler serves the public round listings.
type RoundHandler struct {
	roundSvc *service.RoundService
}

// NewRoundHandler creates a new RoundHandler.
func NewRoundHandler(roundSvc *service.RoundService) *RoundHandler {
	return &RoundHandler{roundSvc: roundSvc}
}

// List handles GET /rounds.
func (h *RoundHandler) List(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.roundSvc.List(r.Context(), PageFromQuery(r))
	respondRounds(w, rounds, err)
}

// Active handles GET /rounds/active.
func (h *RoundHandler) Active(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.roundSvc.Active(r.Context())
	respondRounds(w, rounds, err)
}

// Get handles GET /rounds/{id}.
func (h *RoundHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := URLParamUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}

	round, err := h.roundSvc.Get(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, round)
}

func respondRounds(w http.ResponseWriter, rounds []domain.Round, err error) {
	if err != nil {
		RespondError(w, err)
		return
	}
	if rounds == nil {
		rounds = []domain.Round{}
	}
	RespondJSON(w, http.StatusOK, rounds)
}
