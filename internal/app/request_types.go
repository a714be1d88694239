package app

import (
	"erp-inventory/internal/core"

	"github.com/shopspring/decimal"
)

// ReceiveStockRequest is the input for a goods receipt.
type ReceiveStockRequest struct {
	OrganizationID int64
	Ref            core.StockRef
	Quantity       decimal.Decimal
	UnitCost       decimal.Decimal
	TxnType        string // empty means purchase
	ReferenceID    string
	IdempotencyKey string
	TxnDate        string // YYYY-MM-DD; empty means today
}

// IssueStockRequest is the input for a goods issue.
type IssueStockRequest struct {
	OrganizationID int64
	Ref            core.StockRef
	Quantity       decimal.Decimal
	UnitCost       decimal.NullDecimal // recorded only; valuation uses the average
	TxnType        string              // empty means sale
	ReferenceID    string
	IdempotencyKey string
	TxnDate        string
}

// TransferStockRequest is the input for an internal transfer.
type TransferStockRequest struct {
	OrganizationID int64
	From           core.StockRef
	To             core.StockRef
	Quantity       decimal.Decimal
	ReferenceID    string
	IdempotencyKey string
	TxnDate        string
}

// AdjustStockRequest is the input for a physical count.
type AdjustStockRequest struct {
	OrganizationID  int64
	Ref             core.StockRef
	CountedQuantity decimal.Decimal
	UnitCost        decimal.NullDecimal // cost of found stock; defaults to the average
	ReferenceID     string
	IdempotencyKey  string
	TxnDate         string
}

// LedgerQuery filters ListLedgerEntries.
type LedgerQuery struct {
	OrganizationID int64
	ProductCode    string
	WarehouseCode  string
	FromDate       string // YYYY-MM-DD, inclusive
	ToDate         string // YYYY-MM-DD, inclusive
	Limit          int
}

// ATPQuery is the input for CalculateATP.
type ATPQuery struct {
	OrganizationID int64
	ProductCode    string
	WarehouseCode  string
	IncludeFuture  bool
}

// AllocateRequest is the input for AllocateInventory.
type AllocateRequest struct {
	OrganizationID     int64
	ProductCode        string
	Quantity           decimal.Decimal
	Strategy           string // empty means fifo
	Priority           string
	CustomerID         string
	PreferredWarehouse string
	ShipTo             *core.GeoPoint
}

// AvailabilityRequest is the input for CheckAvailability.
type AvailabilityRequest struct {
	OrganizationID int64
	Items          map[string]decimal.Decimal
	WarehouseCode  string
}

// FulfillmentOptionsRequest is the input for GetFulfillmentOptions.
type FulfillmentOptionsRequest struct {
	OrganizationID     int64
	Lines              []core.FulfillmentLine
	Priority           string
	PreferredWarehouse string
	ShipTo             *core.GeoPoint
}
