package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"erp-inventory/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc    app.ApplicationService
	router chi.Router
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, allowedOrigins string) http.Handler {
	h := &Handler{svc: svc}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recoverer)
	r.Use(CORS(allowedOrigins))

	// ── Operational (public) ──────────────────────────────────────────────────
	r.Get("/api/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/orgs/{org}", func(r chi.Router) {
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB

		// ── Stock ledger ─────────────────────────────────────────────────────
		r.Post("/stock/receipts", h.apiReceiveStock)
		r.Post("/stock/issues", h.apiIssueStock)
		r.Post("/stock/transfers", h.apiTransferStock)
		r.Post("/stock/adjustments", h.apiAdjustStock)
		r.Get("/stock", h.apiStockLevels)
		r.Get("/stock/item", h.apiInventoryItem)
		r.Get("/stock/reorder", h.apiReorderCandidates)
		r.Get("/stock/reconcile", h.apiReconcile)
		r.Get("/ledger", h.apiLedgerEntries)

		// ── Availability & allocation ────────────────────────────────────────
		r.Get("/products/{product}/atp", h.apiATP)
		r.Post("/allocations", h.apiAllocate)
		r.Post("/availability", h.apiAvailability)
		r.Post("/fulfillment-options", h.apiFulfillmentOptions)
	})

	h.router = r
	return r
}

// health reports liveness and whether the database answers a ping.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.svc.Ping(ctx); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(response{Status: "degraded", Database: "unreachable"})
		return
	}
	writeJSON(w, response{Status: "ok", Database: "ok"})
}

// orgID extracts and validates the {org} URL parameter. On failure it writes
// a 400 response and returns false.
func orgID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "org"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, "organization id must be a positive integer", "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
