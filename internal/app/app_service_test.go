package app

import (
	"context"
	"testing"
	"time"

	"erp-inventory/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) ApplicationService {
	t.Helper()
	store := core.NewMemoryStore(time.Second)
	store.AddProduct(core.Product{OrganizationID: 1, Code: "P-100", Name: "Widget", Unit: "ea",
		ReorderLevel: decimal.NewFromInt(5), IsInventoryItem: true, IsActive: true})
	store.AddWarehouse(core.Warehouse{OrganizationID: 1, Code: "MAIN", Name: "Main", IsActive: true})
	store.AddWarehouse(core.Warehouse{OrganizationID: 1, Code: "EAST", Name: "East", IsActive: true})

	ledger := core.NewStockLedger(store, core.LedgerOptions{})
	alloc := core.NewAllocationService(store, core.NewStaticPlanning(), core.AllocationOptions{})
	return NewAppService(nil, ledger, alloc)
}

func TestAppService_ReceiveAndQuery(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	main := core.StockRef{ProductCode: "P-100", WarehouseCode: "MAIN"}

	res, err := svc.ReceiveStock(ctx, ReceiveStockRequest{
		OrganizationID: 1, Ref: main,
		Quantity: decimal.NewFromInt(4), UnitCost: decimal.NewFromInt(3),
		TxnDate: "2026-03-01",
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), res.Entry.TxnDate)

	levels, err := svc.GetStockLevels(ctx, 1)
	require.NoError(t, err)
	require.Len(t, levels.Levels, 1)
	assert.True(t, levels.Levels[0].Value.Equal(decimal.NewFromInt(12)))

	reorder, err := svc.ListReorderCandidates(ctx, 1)
	require.NoError(t, err)
	require.Len(t, reorder.Candidates, 1)

	rec, err := svc.Reconcile(ctx, 1)
	require.NoError(t, err)
	assert.True(t, rec.Balanced)
	assert.NotNil(t, rec.Discrepancies)

	ledger, err := svc.ListLedgerEntries(ctx, LedgerQuery{OrganizationID: 1, FromDate: "2026-03-01", ToDate: "2026-03-01"})
	require.NoError(t, err)
	assert.Len(t, ledger.Entries, 1)

	require.NoError(t, svc.Ping(ctx))
}

func TestAppService_RejectsMalformedDates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.ReceiveStock(ctx, ReceiveStockRequest{
		OrganizationID: 1, Ref: core.StockRef{ProductCode: "P-100", WarehouseCode: "MAIN"},
		Quantity: decimal.NewFromInt(1), TxnDate: "01/03/2026",
	})
	require.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = svc.ListLedgerEntries(ctx, LedgerQuery{OrganizationID: 1, ToDate: "yesterday"})
	require.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestAppService_AllocationDefaults(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.ReceiveStock(ctx, ReceiveStockRequest{
		OrganizationID: 1, Ref: core.StockRef{ProductCode: "P-100", WarehouseCode: "EAST"},
		Quantity: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	res, err := svc.AllocateInventory(ctx, AllocateRequest{OrganizationID: 1, ProductCode: "P-100", Quantity: decimal.NewFromInt(3)})
	require.NoError(t, err)
	assert.Equal(t, core.StrategyFIFO, res.Strategy)
	assert.True(t, res.Success)

	avail, err := svc.CheckAvailability(ctx, AvailabilityRequest{OrganizationID: 1, Items: map[string]decimal.Decimal{
		"P-100": decimal.NewFromInt(3),
		"P-999": decimal.NewFromInt(1),
	}})
	require.NoError(t, err)
	assert.False(t, avail.AllAvailable)
	assert.True(t, avail.Products["P-100"])

	_, err = svc.CheckAvailability(ctx, AvailabilityRequest{OrganizationID: 1})
	require.ErrorIs(t, err, core.ErrInvalidInput)

	atp, err := svc.CalculateATP(ctx, ATPQuery{OrganizationID: 1, ProductCode: "P-100"})
	require.NoError(t, err)
	require.Len(t, atp.Warehouses, 1)
	assert.Equal(t, "EAST", atp.Warehouses[0].WarehouseCode)
}

func TestParseDecimal(t *testing.T) {
	d, err := ParseDecimal("quantity", "2.5")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("2.5")))

	_, err = ParseDecimal("quantity", "two")
	require.ErrorIs(t, err, core.ErrInvalidInput)
}
