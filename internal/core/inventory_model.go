package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StockRef names a stock key by codes. Empty LocationCode means warehouse-level
// stock; empty BatchNumber and SerialNumber mean the product is not lot tracked.
type StockRef struct {
	ProductCode   string `json:"product_code"`
	WarehouseCode string `json:"warehouse_code"`
	LocationCode  string `json:"location_code,omitempty"`
	BatchNumber   string `json:"batch_number,omitempty"`
	SerialNumber  string `json:"serial_number,omitempty"`
}

func (r StockRef) hasBatch() bool {
	return r.BatchNumber != "" || r.SerialNumber != ""
}

func (r StockRef) String() string {
	parts := []string{r.ProductCode, r.WarehouseCode}
	if r.LocationCode != "" {
		parts = append(parts, r.LocationCode)
	}
	if r.hasBatch() {
		parts = append(parts, strings.TrimSuffix(r.BatchNumber+"#"+r.SerialNumber, "#"))
	}
	return strings.Join(parts, "/")
}

// StockKey is a StockRef resolved to row ids for one organization.
type StockKey struct {
	OrganizationID  int64
	ProductID       int64
	WarehouseID     int64
	LocationID      *int64
	BatchID         *int64
	Ref             StockRef
	TracksInventory bool
}

// id is the canonical key string. Multi-key transactions lock in id order.
func (k StockKey) id() string {
	return fmt.Sprintf("%d:%d:%d:%s:%s", k.OrganizationID, k.ProductID, k.WarehouseID,
		optionalID(k.LocationID), optionalID(k.BatchID))
}

func optionalID(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprintf("%020d", *id)
}

// InventoryItem is the mutable on-hand snapshot for one stock key. It is only
// written by the stock ledger.
type InventoryItem struct {
	ID             int64           `json:"id"`
	OrganizationID int64           `json:"organization_id"`
	ProductID      int64           `json:"product_id"`
	WarehouseID    int64           `json:"warehouse_id"`
	LocationID     *int64          `json:"location_id,omitempty"`
	BatchID        *int64          `json:"batch_id,omitempty"`
	Ref            StockRef        `json:"ref"`
	QuantityOnHand decimal.Decimal `json:"quantity_on_hand"`
	UnitCost       decimal.Decimal `json:"unit_cost"` // weighted average
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Value is on-hand quantity at the current unit cost.
func (i InventoryItem) Value() decimal.Decimal {
	return i.QuantityOnHand.Mul(i.UnitCost)
}

// LedgerEntry is one immutable stock_ledger row. Exactly one of QtyIn and
// QtyOut is non-zero.
type LedgerEntry struct {
	ID             int64           `json:"id"`
	OrganizationID int64           `json:"organization_id"`
	ProductID      int64           `json:"product_id"`
	WarehouseID    int64           `json:"warehouse_id"`
	LocationID     *int64          `json:"location_id,omitempty"`
	BatchID        *int64          `json:"batch_id,omitempty"`
	Ref            StockRef        `json:"ref"`
	TxnType        TxnType         `json:"txn_type"`
	ReferenceID    string          `json:"reference_id"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	TxnDate        time.Time       `json:"txn_date"`
	QtyIn          decimal.Decimal `json:"qty_in"`
	QtyOut         decimal.Decimal `json:"qty_out"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Net is QtyIn - QtyOut.
func (e LedgerEntry) Net() decimal.Decimal {
	return e.QtyIn.Sub(e.QtyOut)
}

func (e LedgerEntry) sameKey(k StockKey) bool {
	return e.OrganizationID == k.OrganizationID &&
		e.ProductID == k.ProductID &&
		e.WarehouseID == k.WarehouseID &&
		sameID(e.LocationID, k.LocationID) &&
		sameID(e.BatchID, k.BatchID)
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// PostingResult is returned by every ledger write. Replayed is true when the
// idempotency key matched an earlier posting and nothing was written.
type PostingResult struct {
	Entry    *LedgerEntry   `json:"entry,omitempty"`
	Item     *InventoryItem `json:"item"`
	Replayed bool           `json:"replayed"`
}

// TransferResult holds both legs of an internal transfer.
type TransferResult struct {
	ReferenceID string         `json:"reference_id"`
	Out         *PostingResult `json:"out"`
	In          *PostingResult `json:"in"`
}

// StockLevel is a product/warehouse rollup of inventory_items.
type StockLevel struct {
	ProductCode   string          `json:"product_code"`
	ProductName   string          `json:"product_name"`
	WarehouseCode string          `json:"warehouse_code"`
	WarehouseName string          `json:"warehouse_name"`
	OnHand        decimal.Decimal `json:"on_hand"`
	UnitCost      decimal.Decimal `json:"unit_cost"` // value-weighted across locations and batches
	Value         decimal.Decimal `json:"value"`
}

// ReorderCandidate is a product whose total on-hand is at or below its reorder level.
type ReorderCandidate struct {
	ProductCode  string          `json:"product_code"`
	ProductName  string          `json:"product_name"`
	OnHand       decimal.Decimal `json:"on_hand"`
	ReorderLevel decimal.Decimal `json:"reorder_level"`
}

// Discrepancy is a stock key whose snapshot disagrees with the sum of its ledger rows.
type Discrepancy struct {
	Ref              StockRef        `json:"ref"`
	SnapshotQuantity decimal.Decimal `json:"snapshot_quantity"`
	LedgerQuantity   decimal.Decimal `json:"ledger_quantity"`
}

// LedgerFilter selects ledger rows. Empty fields do not filter.
type LedgerFilter struct {
	OrganizationID int64
	ProductCode    string
	WarehouseCode  string
	From           *time.Time
	To             *time.Time
	Limit          int
}

// StockPosition is one inventory_items row as seen by the allocation engine.
type StockPosition struct {
	Warehouse       Warehouse       `json:"warehouse"`
	LocationCode    string          `json:"location_code,omitempty"`
	Batch           *Batch          `json:"batch,omitempty"`
	OnHand          decimal.Decimal `json:"on_hand"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	FirstReceivedAt *time.Time      `json:"first_received_at,omitempty"`
}

func (p StockPosition) batchNumber() string {
	if p.Batch == nil {
		return ""
	}
	return p.Batch.BatchNumber
}

func (p StockPosition) serialNumber() string {
	if p.Batch == nil {
		return ""
	}
	return p.Batch.SerialNumber
}
