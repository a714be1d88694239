package app

import (
	"context"

	"erp-inventory/internal/core"
)

// ApplicationService is the single interface all adapters (CLI, Web) call.
// It decouples presentation from business logic. Implementations must contain
// no fmt.Println and no display logic of any kind.
type ApplicationService interface {
	// ReceiveStock posts a receipt at the given unit cost and re-averages the key's cost.
	ReceiveStock(ctx context.Context, req ReceiveStockRequest) (*core.PostingResult, error)

	// IssueStock posts an issue at the key's current average cost.
	IssueStock(ctx context.Context, req IssueStockRequest) (*core.PostingResult, error)

	// TransferStock moves stock between two keys of one product in a single transaction.
	TransferStock(ctx context.Context, req TransferStockRequest) (*core.TransferResult, error)

	// AdjustStock books the difference between a physical count and the snapshot.
	AdjustStock(ctx context.Context, req AdjustStockRequest) (*core.PostingResult, error)

	// GetInventoryItem returns the snapshot row for one stock key.
	GetInventoryItem(ctx context.Context, orgID int64, ref core.StockRef) (*core.InventoryItem, error)

	// ListLedgerEntries returns ledger rows oldest first.
	ListLedgerEntries(ctx context.Context, q LedgerQuery) (*LedgerResult, error)

	// GetStockLevels returns on-hand and value per product and warehouse.
	GetStockLevels(ctx context.Context, orgID int64) (*StockResult, error)

	// ListReorderCandidates returns products at or below their reorder level.
	ListReorderCandidates(ctx context.Context, orgID int64) (*ReorderResult, error)

	// Reconcile compares every snapshot row with the sum of its ledger rows.
	Reconcile(ctx context.Context, orgID int64) (*ReconcileResult, error)

	// CalculateATP returns available-to-promise per warehouse.
	CalculateATP(ctx context.Context, q ATPQuery) (*ATPResult, error)

	// AllocateInventory proposes how to fill a quantity. Nothing is reserved.
	AllocateInventory(ctx context.Context, req AllocateRequest) (*core.AllocationResult, error)

	// CheckAvailability reports per product whether the quantity can be promised.
	CheckAvailability(ctx context.Context, req AvailabilityRequest) (*AvailabilityResult, error)

	// GetFulfillmentOptions ranks the ways a multi-line order could ship.
	GetFulfillmentOptions(ctx context.Context, req FulfillmentOptionsRequest) (*FulfillmentOptionsResult, error)

	// Ping checks the backing store. It is a no-op for the in-memory store.
	Ping(ctx context.Context) error
}
