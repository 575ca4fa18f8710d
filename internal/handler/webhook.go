package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/palpitai/platform/internal/service"
)

// WebhookHandler receives gateway payment notifications.
type WebhookHandler struct {
	paymentSvc *service.PaymentService
	logger     *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(paymentSvc *service.PaymentService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{paymentSvc: paymentSvc, logger: logger}
}

// HandlePaymentWebhook handles POST /webhooks/payments.
// The gateway always gets {ok:true}; the payload is only a hint and the
// order status is re-read from the gateway before anything is posted.
func (h *WebhookHandler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		h.logger.Warn("read webhook body", "error", err)
		RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	outcome := h.paymentSvc.HandleWebhook(r.Context(), body)
	h.logger.Debug("payment webhook handled", "outcome", outcome)

	RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
