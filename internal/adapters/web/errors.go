package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"erp-inventory/internal/core"
	"erp-inventory/internal/logger"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeServiceError maps a core error to its HTTP status. Contention is
// retryable, so the response carries Retry-After.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, r, err.Error(), "NOT_FOUND", http.StatusNotFound)
	case errors.Is(err, core.ErrInvalidInput):
		writeError(w, r, err.Error(), "INVALID_INPUT", http.StatusBadRequest)
	case errors.Is(err, core.ErrInsufficientStock):
		writeError(w, r, err.Error(), "INSUFFICIENT_STOCK", http.StatusConflict)
	case errors.Is(err, core.ErrIdempotencyConflict):
		writeError(w, r, err.Error(), "IDEMPOTENCY_CONFLICT", http.StatusConflict)
	case errors.Is(err, core.ErrContention):
		w.Header().Set("Retry-After", "1")
		writeError(w, r, "stock is being updated concurrently, retry the request", "CONTENTION", http.StatusServiceUnavailable)
	default:
		logger.Error(r.Context()).Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeCreated writes a JSON response with status 201.
func writeCreated(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(v)
}
