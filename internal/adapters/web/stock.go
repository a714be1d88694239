package web

import (
	"net/http"
	"strconv"

	"erp-inventory/internal/app"
	"erp-inventory/internal/core"

	"github.com/shopspring/decimal"
)

// ── Request bodies ────────────────────────────────────────────────────────────

type receiptBody struct {
	core.StockRef
	Quantity       decimal.Decimal     `json:"quantity"`
	UnitCost       decimal.NullDecimal `json:"unit_cost"`
	TxnType        string              `json:"txn_type"`
	ReferenceID    string              `json:"reference_id"`
	IdempotencyKey string              `json:"idempotency_key"`
	TxnDate        string              `json:"txn_date"`
}

type issueBody struct {
	core.StockRef
	Quantity       decimal.Decimal     `json:"quantity"`
	UnitCost       decimal.NullDecimal `json:"unit_cost"`
	TxnType        string              `json:"txn_type"`
	ReferenceID    string              `json:"reference_id"`
	IdempotencyKey string              `json:"idempotency_key"`
	TxnDate        string              `json:"txn_date"`
}

type transferBody struct {
	From           core.StockRef   `json:"from"`
	To             core.StockRef   `json:"to"`
	Quantity       decimal.Decimal `json:"quantity"`
	ReferenceID    string          `json:"reference_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	TxnDate        string          `json:"txn_date"`
}

type adjustmentBody struct {
	core.StockRef
	CountedQuantity decimal.Decimal     `json:"counted_quantity"`
	UnitCost        decimal.NullDecimal `json:"unit_cost"`
	ReferenceID     string              `json:"reference_id"`
	IdempotencyKey  string              `json:"idempotency_key"`
	TxnDate         string              `json:"txn_date"`
}

// idempotencyKey prefers the body field and falls back to the Idempotency-Key header.
func idempotencyKey(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return r.Header.Get("Idempotency-Key")
}

// writePosting answers 201 for a new posting and 200 for a replay.
func writePosting(w http.ResponseWriter, replayed bool, v any) {
	if replayed {
		writeJSON(w, v)
		return
	}
	writeCreated(w, v)
}

// ── Postings ─────────────────────────────────────────────────────────────────

func (h *Handler) apiReceiveStock(w http.ResponseWriter, r *http.Request) {
	org, ok := orgID(w, r)
	if !ok {
		return
	}
	var body receiptBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if !body.UnitCost.Valid {
		writeError(w, r, "unit_cost is required for a receipt", "INVALID_INPUT", http.StatusBadRequest)
		return
	}

	res, err := h.svc.ReceiveStock(r.Context(), app.ReceiveStockRequest{
		OrganizationID: org,
		Ref:            body.StockRef,
		Quantity:       body.Quantity,
		UnitCost:       body.UnitCost.Decimal,
		TxnType:        body.TxnType,
		ReferenceID:    body.ReferenceID,
		IdempotencyKey: idempotencyKey(r, body.IdempotencyKey),
		TxnDate:        body.TxnDate,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writePosting(w, res.Replayed, res)
}

func (h *Handler) apiIssueStock(w http.ResponseWriter, r *http.Request) {
	org, ok := orgID(w, r)
	if !ok {
		return
	}
	var body issueBody
	if !decodeJSON(w, r, &body) {
		return
	}

	res, err := h.svc.IssueStock(r.Context(), app.IssueStockRequest{
		OrganizationID: org,
		Ref:            body.StockRef,
		Quantity:       body.Quantity,
		UnitCost:       body.UnitCost,
		TxnType:        body.TxnType,
		ReferenceID:    body.ReferenceID,
		IdempotencyKey: idempotencyKey(r, body.IdempotencyKey),
		TxnDate:        body.TxnDate,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writePosting(w, res.Replayed, res)
}

func (h *Handler) apiTransferStock(w http.ResponseWriter, r *http.Request) {
	org, ok := orgID(w, r)
	if !ok {
		return
	}
	var body transferBody
	if !decodeJSON(w, r, &body) {
		return
	}

	res, err := h.svc.TransferStock(r.Context(), app.TransferStockRequest{
		OrganizationID: org,
		From:           body.From,
		To:             body.To,
		Quantity:       body.Quantity,
		ReferenceID:    body.ReferenceID,
		IdempotencyKey: idempotencyKey(r, body.IdempotencyKey),
		TxnDate:        body.TxnDate,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writePosting(w, res.Out.Replayed && res.In.Replayed, res)
}

func (h *Handler) apiAdjustStock(w http.ResponseWriter, r *http.Request) {
	org, ok := orgID(w, r)
	if !ok {
		return
	}
	var body adjustmentBody
	if !decodeJSON(w, r, &body) {
		return
	}

	res, err := h.svc.AdjustStock(r.Context(), app.AdjustStockRequest{
		OrganizationID:  org,
		Ref:             body.StockRef,
		CountedQuantity: body.CountedQuantity,
		UnitCost:        body.UnitCost,
		ReferenceID:     body.ReferenceID,
		IdempotencyKey:  idempotencyKey(r, body.IdempotencyKey),
		TxnDate:         body.TxnDate,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	// A count that matches the snapshot posts nothing.
	writePosting(w, res.Replayed || res.Entry == nil, res)
}

// ── Queries ──────────────────────────────────────────────────────────────────

func (h *Handler) apiStockLevels(w http.ResponseWriter, r *http.Request) {
	org, ok := orgID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.GetStockLevels(r.Context(), org)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) apiInventoryItem(w http.ResponseWriter, r *http.Request) {
	org, ok := orgID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	ref := core.StockRef{
		ProductCode:   q.Get("product"),
		WarehouseCode: q.Get("warehouse"),
		LocationCode:  q.Get("location"),
		BatchNumber:   q.Get("batch"),
		SerialNumber:  q.Get("serial"),
	}
	item, err := h.svc.GetInventoryItem(r.Context(), org, ref)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, item)
}

func (h *Handler) apiReorderCandidates(w http.ResponseWriter, r *http.Request) {
	org, ok := orgID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.ListReorderCandidates(r.Context(), org)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) apiReconcile(w http.ResponseWriter, r *http.Request) {
	org, ok := orgID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.Reconcile(r.Context(), org)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) apiLedgerEntries(w http.ResponseWriter, r *http.Request) {
	org, ok := orgID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	query := app.LedgerQuery{
		OrganizationID: org,
		ProductCode:    q.Get("product"),
		WarehouseCode:  q.Get("warehouse"),
		FromDate:       q.Get("from"),
		ToDate:         q.Get("to"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, r, "limit must be a positive integer", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		query.Limit = limit
	}
	result, err := h.svc.ListLedgerEntries(r.Context(), query)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}
