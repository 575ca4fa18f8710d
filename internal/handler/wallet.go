package handler

import (
	"net/http"

	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/service"
)

// WalletHandler handles balance, deposit and withdrawal endpoints for the caller's wallet.
type WalletHandler struct {
	walletSvc     *service.WalletService
	paymentSvc    *service.PaymentService
	withdrawalSvc *service.WithdrawalService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc *service.WalletService, paymentSvc *service.PaymentService, withdrawalSvc *service.WithdrawalService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc, paymentSvc: paymentSvc, withdrawalSvc: withdrawalSvc}
}

// GetWallet handles GET /wallet/me?page=&limit=&type=.
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var txType *domain.TransactionType
	if raw := r.URL.Query().Get("type"); raw != "" {
		t := domain.TransactionType(raw)
		if !t.Valid() {
			RespondError(w, domain.ErrValidation("unknown transaction type"))
			return
		}
		txType = &t
	}

	view, err := h.walletSvc.GetWallet(r.Context(), userID, PageFromQuery(r), txType)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, view)
}

type depositRequest struct {
	Amount int64 `json:"amount"`
}

// Deposit handles POST /wallet/deposit. The amount is in centavos.
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req depositRequest
	if !DecodeBody(w, r, &req) {
		return
	}

	result, err := h.paymentSvc.CreateDeposit(r.Context(), userID, req.Amount)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusCreated, result)
}

// PaymentStatus handles GET /wallet/payment-status/{orderId}.
func (h *WalletHandler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	orderID, err := URLParamUUID(r, "orderId")
	if err != nil {
		RespondError(w, err)
		return
	}

	result, err := h.paymentSvc.CheckPaymentStatus(r.Context(), orderID, userID)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

type withdrawRequest struct {
	Amount int64  `json:"amount"`
	PixKey string `json:"pixKey"`
}

// Withdraw handles POST /wallet/withdraw.
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req withdrawRequest
	if !DecodeBody(w, r, &req) {
		return
	}

	result, err := h.withdrawalSvc.Withdraw(r.Context(), userID, req.Amount, req.PixKey)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusCreated, result)
}
