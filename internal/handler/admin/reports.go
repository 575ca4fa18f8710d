package admin

import (
	"net/http"

	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/handler"
	"github.com/palpitai/platform/internal/service"
)

// ReportsHandler serves the admin dashboard and ledger inspection endpoints.
type ReportsHandler struct {
	reportSvc *service.ReportService
}

// NewReportsHandler creates a new ReportsHandler.
func NewReportsHandler(reportSvc *service.ReportService) *ReportsHandler {
	return &ReportsHandler{reportSvc: reportSvc}
}

// Stats handles GET /admin/reports/stats.
func (h *ReportsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reportSvc.Stats(r.Context())
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, stats)
}

// Users handles GET /admin/reports/users.
func (h *ReportsHandler) Users(w http.ResponseWriter, r *http.Request) {
	list, err := h.reportSvc.ListUsers(r.Context(), handler.PageFromQuery(r))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, list)
}

// Transactions handles GET /admin/reports/transactions?type=&status=&page=&limit=.
func (h *ReportsHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	page := handler.PageFromQuery(r)
	filter := domain.TransactionFilter{Limit: page.Limit, Offset: page.Offset()}

	q := r.URL.Query()
	if raw := q.Get("type"); raw != "" {
		t := domain.TransactionType(raw)
		if !t.Valid() {
			handler.RespondError(w, domain.ErrValidation("unknown transaction type"))
			return
		}
		filter.Type = &t
	}
	if raw := q.Get("status"); raw != "" {
		s := domain.TransactionStatus(raw)
		if !s.Valid() {
			handler.RespondError(w, domain.ErrValidation("unknown transaction status"))
			return
		}
		filter.Status = &s
	}

	txs, err := h.reportSvc.ListTransactions(r.Context(), filter)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	handler.RespondJSON(w, http.StatusOK, txs)
}

// Audit handles GET /admin/reports/audit/{userId}.
func (h *ReportsHandler) Audit(w http.ResponseWriter, r *http.Request) {
	userID, err := handler.URLParamUUID(r, "userId")
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	report, err := h.reportSvc.AuditWallet(r.Context(), userID)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, report)
}
