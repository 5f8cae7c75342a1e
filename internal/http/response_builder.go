package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"fatura/internal/core"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error      string            `json:"error"`
	Fields     map[string]string `json:"fields,omitempty"`
	PurchaseID string            `json:"purchase_id,omitempty"`
	Written    *int              `json:"written,omitempty"`
	Total      *int              `json:"total,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps an error to a status code:
//   - *RequestError and core validation errors: 400
//   - *core.PartialWriteError: 502 with written/total
//   - context cancellation: 503
//   - anything else: 500, logged, message hidden
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var reqErr *RequestError
	var pwe *core.PartialWriteError
	switch {
	case errors.As(err, &reqErr):
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: reqErr.Message, Fields: reqErr.Fields})
	case isValidationError(err):
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: err.Error()})
	case errors.As(err, &pwe):
		written, total := pwe.Written, pwe.Total
		writeJSON(w, http.StatusBadGateway, ErrorBody{
			Error:      "purchase partially written",
			PurchaseID: pwe.PurchaseID,
			Written:    &written,
			Total:      &total,
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, ErrorBody{Error: "request canceled"})
	default:
		slog.ErrorContext(ctx, "Request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorBody{Error: "internal error"})
	}
}

var validationErrors = []error{
	core.ErrInvalidAmount,
	core.ErrInvalidInstallments,
	core.ErrInvalidDate,
	core.ErrInvalidPeriod,
	core.ErrEmptyAccount,
	core.ErrEmptyOwner,
	core.ErrEmptyCategory,
	core.ErrDescriptionTooLong,
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
