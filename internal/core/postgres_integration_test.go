package core_test

import (
	"context"
	"io/fs"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"erp-inventory/internal/core"
	"erp-inventory/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB applies the embedded migrations to TEST_DATABASE_URL and seeds
// organization 1 with two products and two warehouses.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database; every table touched here is truncated.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err, "connect to test database")
	t.Cleanup(pool.Close)

	names, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	sort.Strings(names)
	for _, name := range names {
		body, err := migrations.FS.ReadFile(name)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, string(body))
		require.NoError(t, err, "apply %s", name)
	}

	_, err = pool.Exec(ctx, `
		ALTER TABLE stock_ledger DISABLE TRIGGER stock_ledger_no_mutation;
		TRUNCATE TABLE stock_ledger, inventory_items, stock_commitments, safety_stock_levels,
			expected_receipts, demand_forecasts, batches, locations, warehouses, products
			RESTART IDENTITY CASCADE;
		ALTER TABLE stock_ledger ENABLE TRIGGER stock_ledger_no_mutation;

		INSERT INTO products (organization_id, code, name, reorder_level, is_inventory_item) VALUES
		(1, 'P-100', 'Widget',       20, true),
		(1, 'SVC-1', 'Installation',  0, false);

		INSERT INTO warehouses (organization_id, code, name, latitude, longitude, handling_cost) VALUES
		(1, 'MAIN', 'New York', 40.7128, -74.0060, 0.50),
		(1, 'EAST', 'Boston',   42.3601, -71.0589, 0.25);
	`)
	require.NoError(t, err, "seed test database")
	return pool
}

func newPostgresLedger(t *testing.T) (*pgxpool.Pool, core.StockLedgerService) {
	pool := setupTestDB(t)
	store := core.NewPostgresStore(pool, 2*time.Second)
	return pool, core.NewStockLedger(store, core.LedgerOptions{})
}

func receipt(ref core.StockRef, qty, cost string) core.ReceiptRequest {
	return core.ReceiptRequest{
		OrganizationID: 1,
		Ref:            ref,
		Quantity:       decimal.RequireFromString(qty),
		UnitCost:       decimal.RequireFromString(cost),
	}
}

func TestPostgresLedger_MovingAverage(t *testing.T) {
	_, ledger := newPostgresLedger(t)
	ctx := context.Background()
	main := core.StockRef{ProductCode: "P-100", WarehouseCode: "MAIN"}

	_, err := ledger.ReceiveStock(ctx, receipt(main, "10", "2.50"))
	require.NoError(t, err)
	res, err := ledger.ReceiveStock(ctx, receipt(main, "10", "4"))
	require.NoError(t, err)
	assert.True(t, res.Item.QuantityOnHand.Equal(decimal.NewFromInt(20)))
	assert.True(t, res.Item.UnitCost.Equal(decimal.RequireFromString("3.25")), "got %s", res.Item.UnitCost)

	res, err = ledger.IssueStock(ctx, core.IssueRequest{OrganizationID: 1, Ref: main, Quantity: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.True(t, res.Item.QuantityOnHand.Equal(decimal.NewFromInt(15)))
	assert.True(t, res.Entry.UnitCost.Equal(decimal.RequireFromString("3.25")))

	_, err = ledger.IssueStock(ctx, core.IssueRequest{OrganizationID: 1, Ref: main, Quantity: decimal.NewFromInt(16)})
	require.ErrorIs(t, err, core.ErrInsufficientStock)

	entries, err := ledger.ListLedgerEntries(ctx, core.LedgerFilter{OrganizationID: 1, ProductCode: "P-100"})
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	discrepancies, err := ledger.Reconcile(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, discrepancies)
}

func TestPostgresLedger_Idempotency(t *testing.T) {
	_, ledger := newPostgresLedger(t)
	ctx := context.Background()
	req := receipt(core.StockRef{ProductCode: "P-100", WarehouseCode: "MAIN"}, "3", "1")
	req.IdempotencyKey = "GRN-1"

	first, err := ledger.ReceiveStock(ctx, req)
	require.NoError(t, err)
	again, err := ledger.ReceiveStock(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Entry.ID, again.Entry.ID)

	req.Quantity = decimal.NewFromInt(4)
	_, err = ledger.ReceiveStock(ctx, req)
	require.ErrorIs(t, err, core.ErrIdempotencyConflict)
}

func TestPostgresLedger_ConcurrentReceipts(t *testing.T) {
	_, ledger := newPostgresLedger(t)
	ctx := context.Background()
	main := core.StockRef{ProductCode: "P-100", WarehouseCode: "MAIN"}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.ReceiveStock(ctx, receipt(main, "1", "2"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	item, err := ledger.GetInventoryItem(ctx, 1, main)
	require.NoError(t, err)
	assert.True(t, item.QuantityOnHand.Equal(decimal.NewFromInt(20)), "got %s", item.QuantityOnHand)
}

func TestPostgresLedger_TransferAndAllocate(t *testing.T) {
	pool, ledger := newPostgresLedger(t)
	ctx := context.Background()
	main := core.StockRef{ProductCode: "P-100", WarehouseCode: "MAIN"}
	east := core.StockRef{ProductCode: "P-100", WarehouseCode: "EAST"}

	_, err := ledger.ReceiveStock(ctx, receipt(main, "10", "4"))
	require.NoError(t, err)
	tr, err := ledger.TransferStock(ctx, core.TransferRequest{
		OrganizationID: 1, From: main, To: east, Quantity: decimal.NewFromInt(8),
	})
	require.NoError(t, err)
	assert.True(t, tr.In.Item.UnitCost.Equal(decimal.NewFromInt(4)))

	_, err = pool.Exec(ctx, `
		INSERT INTO safety_stock_levels (organization_id, product_id, warehouse_id, quantity)
		SELECT 1, p.id, w.id, 2 FROM products p, warehouses w
		WHERE p.code = 'P-100' AND w.code = 'EAST'`)
	require.NoError(t, err)

	alloc := core.NewAllocationService(core.NewPostgresStore(pool, time.Second), core.NewPostgresPlanning(pool), core.AllocationOptions{})
	atp, err := alloc.CalculateATP(ctx, 1, "P-100", "", false)
	require.NoError(t, err)
	require.Len(t, atp, 2)
	assert.Equal(t, "EAST", atp[0].WarehouseCode)
	assert.True(t, atp[0].Available.Equal(decimal.NewFromInt(6)), "got %s", atp[0].Available)

	res, err := alloc.AllocateInventory(ctx, 1, core.AllocationRequest{ProductCode: "P-100", Quantity: decimal.NewFromInt(9)}, core.StrategyCost)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.AllocatedQuantity.Equal(decimal.NewFromInt(8)))

	levels, err := ledger.GetStockLevels(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, levels, 2)
}
