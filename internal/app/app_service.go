package app

import (
	"context"
	"fmt"
	"time"

	"erp-inventory/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Options carries the tunables read from config.
type Options struct {
	LockTimeout           time.Duration
	AllowNegativeStock    bool
	HorizonDays           int
	MaxSplitShipments     int
	MaxFulfillmentOptions int
}

type appService struct {
	pool   *pgxpool.Pool // nil when running on the in-memory store
	ledger core.StockLedgerService
	alloc  core.AllocationService
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(pool *pgxpool.Pool, ledger core.StockLedgerService, alloc core.AllocationService) ApplicationService {
	return &appService{pool: pool, ledger: ledger, alloc: alloc}
}

// NewPostgresAppService wires the stock ledger and allocation engine to pool.
func NewPostgresAppService(pool *pgxpool.Pool, opts Options) ApplicationService {
	store := core.NewPostgresStore(pool, opts.LockTimeout)
	ledger := core.NewStockLedger(store, core.LedgerOptions{AllowNegativeStock: opts.AllowNegativeStock})
	alloc := core.NewAllocationService(store, core.NewPostgresPlanning(pool), core.AllocationOptions{
		HorizonDays:           opts.HorizonDays,
		MaxSplitShipments:     opts.MaxSplitShipments,
		MaxFulfillmentOptions: opts.MaxFulfillmentOptions,
	})
	return NewAppService(pool, ledger, alloc)
}

// ReceiveStock posts a goods receipt.
func (s *appService) ReceiveStock(ctx context.Context, req ReceiveStockRequest) (*core.PostingResult, error) {
	txnDate, err := parseDate("txn_date", req.TxnDate)
	if err != nil {
		return nil, err
	}
	return s.ledger.ReceiveStock(ctx, core.ReceiptRequest{
		OrganizationID: req.OrganizationID,
		Ref:            req.Ref,
		Quantity:       req.Quantity,
		UnitCost:       req.UnitCost,
		TxnType:        core.TxnType(req.TxnType),
		ReferenceID:    req.ReferenceID,
		IdempotencyKey: req.IdempotencyKey,
		TxnDate:        txnDate,
	})
}

// IssueStock posts a goods issue.
func (s *appService) IssueStock(ctx context.Context, req IssueStockRequest) (*core.PostingResult, error) {
	txnDate, err := parseDate("txn_date", req.TxnDate)
	if err != nil {
		return nil, err
	}
	return s.ledger.IssueStock(ctx, core.IssueRequest{
		OrganizationID: req.OrganizationID,
		Ref:            req.Ref,
		Quantity:       req.Quantity,
		UnitCost:       req.UnitCost,
		TxnType:        core.TxnType(req.TxnType),
		ReferenceID:    req.ReferenceID,
		IdempotencyKey: req.IdempotencyKey,
		TxnDate:        txnDate,
	})
}

// TransferStock moves stock between two keys.
func (s *appService) TransferStock(ctx context.Context, req TransferStockRequest) (*core.TransferResult, error) {
	txnDate, err := parseDate("txn_date", req.TxnDate)
	if err != nil {
		return nil, err
	}
	return s.ledger.TransferStock(ctx, core.TransferRequest{
		OrganizationID: req.OrganizationID,
		From:           req.From,
		To:             req.To,
		Quantity:       req.Quantity,
		ReferenceID:    req.ReferenceID,
		IdempotencyKey: req.IdempotencyKey,
		TxnDate:        txnDate,
	})
}

// AdjustStock books a physical count.
func (s *appService) AdjustStock(ctx context.Context, req AdjustStockRequest) (*core.PostingResult, error) {
	txnDate, err := parseDate("txn_date", req.TxnDate)
	if err != nil {
		return nil, err
	}
	return s.ledger.AdjustStock(ctx, core.AdjustmentRequest{
		OrganizationID:  req.OrganizationID,
		Ref:             req.Ref,
		CountedQuantity: req.CountedQuantity,
		UnitCost:        req.UnitCost,
		ReferenceID:     req.ReferenceID,
		IdempotencyKey:  req.IdempotencyKey,
		TxnDate:         txnDate,
	})
}

func (s *appService) GetInventoryItem(ctx context.Context, orgID int64, ref core.StockRef) (*core.InventoryItem, error) {
	return s.ledger.GetInventoryItem(ctx, orgID, ref)
}

// ListLedgerEntries returns ledger rows matching q.
func (s *appService) ListLedgerEntries(ctx context.Context, q LedgerQuery) (*LedgerResult, error) {
	filter := core.LedgerFilter{
		OrganizationID: q.OrganizationID,
		ProductCode:    q.ProductCode,
		WarehouseCode:  q.WarehouseCode,
		Limit:          q.Limit,
	}
	var err error
	if filter.From, err = parseOptionalDate("from", q.FromDate); err != nil {
		return nil, err
	}
	if filter.To, err = parseOptionalDate("to", q.ToDate); err != nil {
		return nil, err
	}
	entries, err := s.ledger.ListLedgerEntries(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &LedgerResult{Entries: entries, OrganizationID: q.OrganizationID}, nil
}

// GetStockLevels returns current stock levels for an organization.
func (s *appService) GetStockLevels(ctx context.Context, orgID int64) (*StockResult, error) {
	levels, err := s.ledger.GetStockLevels(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return &StockResult{Levels: levels, OrganizationID: orgID}, nil
}

func (s *appService) ListReorderCandidates(ctx context.Context, orgID int64) (*ReorderResult, error) {
	candidates, err := s.ledger.ListReorderCandidates(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return &ReorderResult{Candidates: candidates}, nil
}

func (s *appService) Reconcile(ctx context.Context, orgID int64) (*ReconcileResult, error) {
	discrepancies, err := s.ledger.Reconcile(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if discrepancies == nil {
		discrepancies = []core.Discrepancy{}
	}
	return &ReconcileResult{Balanced: len(discrepancies) == 0, Discrepancies: discrepancies}, nil
}

// CalculateATP returns available-to-promise for one product.
func (s *appService) CalculateATP(ctx context.Context, q ATPQuery) (*ATPResult, error) {
	warehouses, err := s.alloc.CalculateATP(ctx, q.OrganizationID, q.ProductCode, q.WarehouseCode, q.IncludeFuture)
	if err != nil {
		return nil, err
	}
	if warehouses == nil {
		warehouses = []core.ATPResult{}
	}
	return &ATPResult{ProductCode: q.ProductCode, Warehouses: warehouses}, nil
}

// AllocateInventory proposes an allocation; the strategy defaults to fifo.
func (s *appService) AllocateInventory(ctx context.Context, req AllocateRequest) (*core.AllocationResult, error) {
	strategy := core.Strategy(req.Strategy)
	if strategy == "" {
		strategy = core.StrategyFIFO
	}
	return s.alloc.AllocateInventory(ctx, req.OrganizationID, core.AllocationRequest{
		ProductCode:        req.ProductCode,
		Quantity:           req.Quantity,
		Priority:           core.Priority(req.Priority),
		CustomerID:         req.CustomerID,
		PreferredWarehouse: req.PreferredWarehouse,
		ShipTo:             req.ShipTo,
	}, strategy)
}

// CheckAvailability reports availability per product and overall.
func (s *appService) CheckAvailability(ctx context.Context, req AvailabilityRequest) (*AvailabilityResult, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", core.ErrInvalidInput)
	}
	products, err := s.alloc.CheckMultiProductAvailability(ctx, req.OrganizationID, req.Items, req.WarehouseCode)
	if err != nil {
		return nil, err
	}
	all := true
	for _, ok := range products {
		all = all && ok
	}
	return &AvailabilityResult{AllAvailable: all, Products: products}, nil
}

func (s *appService) GetFulfillmentOptions(ctx context.Context, req FulfillmentOptionsRequest) (*FulfillmentOptionsResult, error) {
	options, err := s.alloc.GetFulfillmentOptions(ctx, req.OrganizationID, core.FulfillmentRequest{
		Lines:              req.Lines,
		Priority:           core.Priority(req.Priority),
		PreferredWarehouse: req.PreferredWarehouse,
		ShipTo:             req.ShipTo,
	})
	if err != nil {
		return nil, err
	}
	return &FulfillmentOptionsResult{Options: options}, nil
}

func (s *appService) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// parseDate parses a YYYY-MM-DD field. An empty value yields the zero time,
// which the ledger replaces with today.
func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD, got %q", core.ErrInvalidInput, field, value)
	}
	return t, nil
}

func parseOptionalDate(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := parseDate(field, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ParseDecimal parses a quantity or cost supplied as text by an adapter.
func ParseDecimal(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s must be a decimal number, got %q", core.ErrInvalidInput, field, value)
	}
	return d, nil
}
