package admin

import (
	"net/http"

	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/handler"
	"github.com/palpitai/platform/internal/service"
	"github.com/palpitai/platform/internal/settlement"
)

// RoundsHandler handles round setup, results entry and prize settlement.
type RoundsHandler struct {
	roundSvc *service.RoundService
	prizes   *settlement.PrizeEngine
	reports  *service.ReportService
}

// NewRoundsHandler creates a new RoundsHandler. reports may be nil; when set,
// the cached dashboard stats are dropped after each distribution.
func NewRoundsHandler(roundSvc *service.RoundService, prizes *settlement.PrizeEngine, reports *service.ReportService) *RoundsHandler {
	return &RoundsHandler{roundSvc: roundSvc, prizes: prizes, reports: reports}
}

// Create handles POST /admin/rounds.
func (h *RoundsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.CreateRoundInput
	if !handler.DecodeBody(w, r, &input) {
		return
	}

	round, err := h.roundSvc.Create(r.Context(), input)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusCreated, round)
}

type matchResultRequest struct {
	Result domain.MatchResult `json:"result"`
}

// SetMatchResult handles PUT /admin/matches/{id}/result.
func (h *RoundsHandler) SetMatchResult(w http.ResponseWriter, r *http.Request) {
	matchID, err := handler.URLParamUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	var req matchResultRequest
	if !handler.DecodeBody(w, r, &req) {
		return
	}

	match, err := h.roundSvc.SetMatchResult(r.Context(), matchID, req.Result)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, match)
}

// CalculateHits handles POST /admin/prizes/{roundId}/calculate.
func (h *RoundsHandler) CalculateHits(w http.ResponseWriter, r *http.Request) {
	roundID, err := handler.URLParamUUID(r, "roundId")
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	round, err := h.prizes.CalculateRoundHits(r.Context(), roundID)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, round)
}

// Distribute handles POST /admin/prizes/{roundId}/distribute.
func (h *RoundsHandler) Distribute(w http.ResponseWriter, r *http.Request) {
	roundID, err := handler.URLParamUUID(r, "roundId")
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	result, err := h.prizes.DistributePrizes(r.Context(), roundID)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	if h.reports != nil {
		h.reports.InvalidateStats(r.Context())
	}
	handler.RespondJSON(w, http.StatusOK, result)
}
