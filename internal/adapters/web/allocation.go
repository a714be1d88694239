package web

import (
	"net/http"
	"strconv"

	"erp-inventory/internal/app"
	"erp-inventory/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type allocationBody struct {
	ProductCode        string          `json:"product_code"`
	Quantity           decimal.Decimal `json:"quantity"`
	Strategy           string          `json:"strategy"`
	Priority           string          `json:"priority"`
	CustomerID         string          `json:"customer_id"`
	PreferredWarehouse string          `json:"preferred_warehouse"`
	ShipTo             *core.GeoPoint  `json:"ship_to"`
}

type availabilityBody struct {
	Items         map[string]decimal.Decimal `json:"items"`
	WarehouseCode string                     `json:"warehouse_code"`
}

type fulfillmentBody struct {
	Lines              []core.FulfillmentLine `json:"lines"`
	Priority           string                 `json:"priority"`
	PreferredWarehouse string                 `json:"preferred_warehouse"`
	ShipTo             *core.GeoPoint         `json:"ship_to"`
}

// apiATP handles GET /products/{product}/atp?warehouse=&future=true.
func (h *Handler) apiATP(w http.ResponseWriter, r *http.Request) {
	org, ok := orgID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	includeFuture := false
	if raw := q.Get("future"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, "future must be true or false", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		includeFuture = v
	}

	result, err := h.svc.CalculateATP(r.Context(), app.ATPQuery{
		OrganizationID: org,
		ProductCode:    chi.URLParam(r, "product"),
		WarehouseCode:  q.Get("warehouse"),
		IncludeFuture:  includeFuture,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiAllocate returns a proposal; a partial allocation is still a 200.
func (h *Handler) apiAllocate(w http.ResponseWriter, r *http.Request) {
	org, ok := orgID(w, r)
	if !ok {
		return
	}
	var body allocationBody
	if !decodeJSON(w, r, &body) {
		return
	}

	result, err := h.svc.AllocateInventory(r.Context(), app.AllocateRequest{
		OrganizationID:     org,
		ProductCode:        body.ProductCode,
		Quantity:           body.Quantity,
		Strategy:           body.Strategy,
		Priority:           body.Priority,
		CustomerID:         body.CustomerID,
		PreferredWarehouse: body.PreferredWarehouse,
		ShipTo:             body.ShipTo,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) apiAvailability(w http.ResponseWriter, r *http.Request) {
	org, ok := orgID(w, r)
	if !ok {
		return
	}
	var body availabilityBody
	if !decodeJSON(w, r, &body) {
		return
	}

	result, err := h.svc.CheckAvailability(r.Context(), app.AvailabilityRequest{
		OrganizationID: org,
		Items:          body.Items,
		WarehouseCode:  body.WarehouseCode,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) apiFulfillmentOptions(w http.ResponseWriter, r *http.Request) {
	org, ok := orgID(w, r)
	if !ok {
		return
	}
	var body fulfillmentBody
	if !decodeJSON(w, r, &body) {
		return
	}

	result, err := h.svc.GetFulfillmentOptions(r.Context(), app.FulfillmentOptionsRequest{
		OrganizationID:     org,
		Lines:              body.Lines,
		Priority:           body.Priority,
		PreferredWarehouse: body.PreferredWarehouse,
		ShipTo:             body.ShipTo,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}
