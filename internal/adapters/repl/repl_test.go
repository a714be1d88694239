package repl

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"erp-inventory/internal/app"
	"erp-inventory/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) app.ApplicationService {
	t.Helper()
	store := core.NewMemoryStore(time.Second)
	for _, org := range []int64{1, 2} {
		store.AddProduct(core.Product{OrganizationID: org, Code: "P-100", Name: "Widget", Unit: "ea",
			IsInventoryItem: true, IsActive: true})
		store.AddWarehouse(core.Warehouse{OrganizationID: org, Code: "MAIN", Name: "Main", IsActive: true})
	}
	ledger := core.NewStockLedger(store, core.LedgerOptions{})
	alloc := core.NewAllocationService(store, core.NewStaticPlanning(), core.AllocationOptions{})
	return app.NewAppService(nil, ledger, alloc)
}

func runScript(svc app.ApplicationService, lines ...string) string {
	var out bytes.Buffer
	Run(context.Background(), svc, 1, bufio.NewReader(strings.NewReader(strings.Join(lines, "\n")+"\n")), &out)
	return out.String()
}

func TestRun_DispatchesToCLI(t *testing.T) {
	svc := newTestService(t)
	out := runScript(svc,
		"/receive -product P-100 -warehouse MAIN -qty 10 -cost 2",
		"/stock",
		"/bogus",
		"hello",
		"/exit",
		"/stock",
	)

	assert.Contains(t, out, "Organization: 1")
	assert.Contains(t, out, "POSTED")
	assert.Contains(t, out, "STOCK LEVELS - Organization 1")
	assert.Contains(t, out, "Error: unknown command")
	assert.Contains(t, out, "Commands start with /")
	assert.Contains(t, out, "Goodbye!")
	assert.Equal(t, 1, strings.Count(out, "STOCK LEVELS"))
}

func TestRun_SwitchOrganization(t *testing.T) {
	svc := newTestService(t)
	runScript(svc,
		"/org 2",
		"/receive -product P-100 -warehouse MAIN -qty 4 -cost 1",
		"/org zero",
	)

	item, err := svc.GetInventoryItem(context.Background(), 2, core.StockRef{ProductCode: "P-100", WarehouseCode: "MAIN"})
	require.NoError(t, err)
	assert.True(t, item.QuantityOnHand.Equal(decimal.NewFromInt(4)))

	_, err = svc.GetInventoryItem(context.Background(), 1, core.StockRef{ProductCode: "P-100", WarehouseCode: "MAIN"})
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestCount_PostsAdjustments(t *testing.T) {
	svc := newTestService(t)
	out := runScript(svc,
		"/receive -product P-100 -warehouse MAIN -qty 10 -cost 2",
		"/count MAIN",
		"P-100 7",
		"P-100 x",
		"NOPE 1",
		"done",
		"y",
	)

	assert.Contains(t, out, "Physical count for warehouse: MAIN")
	assert.Contains(t, out, "Invalid counted quantity.")
	assert.Contains(t, out, "on hand 7")
	assert.Contains(t, out, "FAILED")

	item, err := svc.GetInventoryItem(context.Background(), 1, core.StockRef{ProductCode: "P-100", WarehouseCode: "MAIN"})
	require.NoError(t, err)
	assert.True(t, item.QuantityOnHand.Equal(decimal.NewFromInt(7)))
}

func TestCount_Discarded(t *testing.T) {
	svc := newTestService(t)
	out := runScript(svc,
		"/receive -product P-100 -warehouse MAIN -qty 10 -cost 2",
		"/count MAIN",
		"P-100 3",
		"done",
		"n",
	)
	assert.Contains(t, out, "Count discarded.")

	item, err := svc.GetInventoryItem(context.Background(), 1, core.StockRef{ProductCode: "P-100", WarehouseCode: "MAIN"})
	require.NoError(t, err)
	assert.True(t, item.QuantityOnHand.Equal(decimal.NewFromInt(10)))
}

func TestCount_KeepsCodeCase(t *testing.T) {
	store := core.NewMemoryStore(time.Second)
	store.AddProduct(core.Product{OrganizationID: 1, Code: "kit-a", Name: "Kit", Unit: "ea",
		IsInventoryItem: true, IsActive: true})
	store.AddWarehouse(core.Warehouse{OrganizationID: 1, Code: "main", Name: "Main", IsActive: true})
	ledger := core.NewStockLedger(store, core.LedgerOptions{})
	svc := app.NewAppService(nil, ledger, core.NewAllocationService(store, core.NewStaticPlanning(), core.AllocationOptions{}))

	out := runScript(svc,
		"/receive -product kit-a -warehouse main -qty 5 -cost 1",
		"/count main",
		"kit-a 2",
		"done",
		"y",
	)
	assert.NotContains(t, out, "FAILED")

	item, err := svc.GetInventoryItem(context.Background(), 1, core.StockRef{ProductCode: "kit-a", WarehouseCode: "main"})
	require.NoError(t, err)
	assert.True(t, item.QuantityOnHand.Equal(decimal.NewFromInt(2)))
}
