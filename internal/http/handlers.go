package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"fatura/internal/core"
	applog "fatura/internal/log"
)

func (s *Server) handleOpenInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := s.deps.Reports.OpenInvoices(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (s *Server) handleInvoicesByAccount(w http.ResponseWriter, r *http.Request) {
	totals, err := s.deps.Reports.InvoicesByAccount(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": totals})
}

func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := s.deps.Reports.Periods(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, periods)
}

func (s *Server) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	period, ok := s.period(w, r)
	if !ok {
		return
	}
	report, err := s.deps.Reports.Reconcile(r.Context(), period)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	period, ok := s.period(w, r)
	if !ok {
		return
	}
	summary, err := s.deps.Reports.Summary(r.Context(), period)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	period, ok := s.period(w, r)
	if !ok {
		return
	}
	statement, err := s.deps.Reports.Statement(r.Context(), period)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, statement)
}

func (s *Server) period(w http.ResponseWriter, r *http.Request) (core.Period, bool) {
	period, err := ParsePeriodParam(r.URL.Query())
	if err != nil {
		writeError(r.Context(), w, err)
		return core.Period{}, false
	}
	return period, true
}

func (s *Server) handleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	purchase, err := req.ToPurchase(s.deps.Reports.Now())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	receipt, err := s.deps.Purchases.Record(r.Context(), purchase)
	if err != nil {
		events(r).LogError(r.Context(), "Purchase failed", err, applog.OpRecord, nil)
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

func (s *Server) handleConversationMessage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Conversations == nil {
		writeJSON(w, http.StatusNotFound, ErrorBody{Error: "conversations are disabled"})
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	var req MessageRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	reply, err := s.deps.Conversations.Handle(r.Context(), id, sanitizeInput(req.Text))
	if err != nil {
		writeError(r.Context(), w, &RequestError{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// events returns a structured logger over the request-scoped logger.
func events(r *http.Request) *applog.StructuredLogger {
	return applog.NewStructuredLogger(applog.FromContext(r.Context()))
}
