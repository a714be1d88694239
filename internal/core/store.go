package core

import "context"

// LedgerStore is the persistence boundary of the stock ledger. PostgresStore
// is the production implementation; MemoryStore backs tests and demos.
type LedgerStore interface {
	// InTx runs fn in one transaction. Any error rolls back every write made
	// through tx; row locks taken through tx are released when InTx returns.
	InTx(ctx context.Context, fn func(tx LedgerTx) error) error

	StockReader
	LedgerQueries
}

// LedgerTx is the set of writes a posting needs inside its transaction.
type LedgerTx interface {
	// ResolveKey maps codes to ids. Unknown codes are ErrNotFound.
	ResolveKey(ctx context.Context, orgID int64, ref StockRef) (StockKey, error)
	// LockItem returns the snapshot row for key, creating a zero row if none
	// exists, and holds an exclusive lock on it until the transaction ends.
	// A lock that cannot be acquired in time is ErrContention.
	LockItem(ctx context.Context, key StockKey) (*InventoryItem, error)
	// FindEntryByIdempotencyKey returns nil, nil when the key is unused.
	FindEntryByIdempotencyKey(ctx context.Context, orgID int64, key string) (*LedgerEntry, error)
	// InsertEntry appends e and sets its ID and CreatedAt. A duplicate
	// idempotency key is ErrIdempotencyConflict.
	InsertEntry(ctx context.Context, e *LedgerEntry) error
	// SaveItem writes the quantity and cost of a row obtained from LockItem.
	SaveItem(ctx context.Context, item *InventoryItem) error
}

// StockReader is the read side used by the allocation engine.
type StockReader interface {
	// ProductPositions returns the product and every snapshot row it has,
	// optionally restricted to one warehouse. Unknown product or warehouse
	// codes are ErrNotFound.
	ProductPositions(ctx context.Context, orgID int64, productCode, warehouseCode string) (*Product, []StockPosition, error)
	GetWarehouse(ctx context.Context, orgID int64, code string) (*Warehouse, error)
}

// LedgerQueries are the read-only reports over the ledger and snapshot.
type LedgerQueries interface {
	GetInventoryItem(ctx context.Context, orgID int64, ref StockRef) (*InventoryItem, error)
	ListLedgerEntries(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error)
	GetStockLevels(ctx context.Context, orgID int64) ([]StockLevel, error)
	ListReorderCandidates(ctx context.Context, orgID int64) ([]ReorderCandidate, error)
	// Reconcile lists every key whose snapshot quantity differs from the sum of
	// its ledger rows. An empty result means the books are consistent.
	Reconcile(ctx context.Context, orgID int64) ([]Discrepancy, error)
}

const defaultLedgerLimit = 200
