package admin

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/handler"
	"github.com/palpitai/platform/internal/service"
)

// WithdrawalsHandler handles the withdrawal review queue.
type WithdrawalsHandler struct {
	withdrawalSvc *service.WithdrawalService
}

// NewWithdrawalsHandler creates a new WithdrawalsHandler.
func NewWithdrawalsHandler(withdrawalSvc *service.WithdrawalService) *WithdrawalsHandler {
	return &WithdrawalsHandler{withdrawalSvc: withdrawalSvc}
}

// List handles GET /admin/withdrawals?status=&page=&limit=.
func (h *WithdrawalsHandler) List(w http.ResponseWriter, r *http.Request) {
	var status *domain.WithdrawalStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.WithdrawalStatus(raw)
		if !s.Valid() {
			handler.RespondError(w, domain.ErrValidation("unknown withdrawal status"))
			return
		}
		status = &s
	}

	list, err := h.withdrawalSvc.List(r.Context(), status, handler.PageFromQuery(r))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	if list == nil {
		list = []domain.Withdrawal{}
	}
	handler.RespondJSON(w, http.StatusOK, list)
}

// Approve handles POST /admin/withdrawals/{id}/approve.
func (h *WithdrawalsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.withdrawalSvc.Approve)
}

// Reject handles POST /admin/withdrawals/{id}/reject.
func (h *WithdrawalsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.withdrawalSvc.Reject)
}

// RetryPayout handles POST /admin/withdrawals/{id}/retry-payout.
func (h *WithdrawalsHandler) RetryPayout(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.withdrawalSvc.RetryPayout)
}

// Recover handles POST /admin/withdrawals/{id}/recover.
func (h *WithdrawalsHandler) Recover(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.withdrawalSvc.Recover)
}

// PayoutStatus handles GET /admin/withdrawals/{id}/payout-status.
func (h *WithdrawalsHandler) PayoutStatus(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.withdrawalSvc.RefreshPayoutStatus)
}

func (h *WithdrawalsHandler) run(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error)) {
	id, err := handler.URLParamUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	wd, err := op(r.Context(), id)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, wd)
}
