package app

import (
	"erp-inventory/internal/core"
)

// LedgerResult is returned by ListLedgerEntries.
type LedgerResult struct {
	Entries        []core.LedgerEntry `json:"entries"`
	OrganizationID int64              `json:"organization_id"`
}

// StockResult is returned by GetStockLevels.
type StockResult struct {
	Levels         []core.StockLevel `json:"levels"`
	OrganizationID int64             `json:"organization_id"`
}

// ReorderResult is returned by ListReorderCandidates.
type ReorderResult struct {
	Candidates []core.ReorderCandidate `json:"candidates"`
}

// ReconcileResult is returned by Reconcile. Balanced is true when no
// snapshot row disagrees with the ledger.
type ReconcileResult struct {
	Balanced      bool               `json:"balanced"`
	Discrepancies []core.Discrepancy `json:"discrepancies"`
}

// ATPResult is returned by CalculateATP.
type ATPResult struct {
	ProductCode string           `json:"product_code"`
	Warehouses  []core.ATPResult `json:"warehouses"`
}

// AvailabilityResult is returned by CheckAvailability.
type AvailabilityResult struct {
	AllAvailable bool            `json:"all_available"`
	Products     map[string]bool `json:"products"`
}

// FulfillmentOptionsResult is returned by GetFulfillmentOptions.
type FulfillmentOptionsResult struct {
	Options []core.FulfillmentOption `json:"options"`
}
