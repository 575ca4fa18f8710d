package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/service"
)

// BetHandler handles bet slip endpoints.
type BetHandler struct {
	betSvc *service.BetService
}

// NewBetHandler creates a new BetHandler.
func NewBetHandler(betSvc *service.BetService) *BetHandler {
	return &BetHandler{betSvc: betSvc}
}

type placeBetRequest struct {
	RoundID     uuid.UUID           `json:"roundId"`
	Predictions []domain.Prediction `json:"predictions"`
}

// PlaceBet handles POST /bets.
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req placeBetRequest
	if !DecodeBody(w, r, &req) {
		return
	}
	if req.RoundID == uuid.Nil {
		RespondError(w, domain.ErrValidation("roundId is required"))
		return
	}

	slip, err := h.betSvc.PlaceBet(r.Context(), userID, req.RoundID, req.Predictions)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusCreated, slip)
}

// MyBets handles GET /bets/me.
func (h *BetHandler) MyBets(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	slips, err := h.betSvc.MyBets(r.Context(), userID, PageFromQuery(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	if slips == nil {
		slips = []domain.BetSlip{}
	}

	RespondJSON(w, http.StatusOK, slips)
}

// GetBet handles GET /bets/{id}.
func (h *BetHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	slipID, err := URLParamUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}

	slip, err := h.betSvc.GetBet(r.Context(), userID, slipID)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, slip)
}
