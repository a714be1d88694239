package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testOrg int64 = 1

var testNow = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store    *MemoryStore
	planning *StaticPlanning
	ledger   StockLedgerService
	alloc    AllocationService

	product  Product
	product2 Product
	service  Product
	main     Warehouse
	east     Warehouse
	west     Warehouse
	bin      Location
	lot1     Batch
	lot2     Batch
}

type fixtureOption func(*LedgerOptions, *time.Duration)

func allowNegative() fixtureOption {
	return func(o *LedgerOptions, _ *time.Duration) { o.AllowNegativeStock = true }
}

func withLockTimeout(timeout time.Duration) fixtureOption {
	return func(_ *LedgerOptions, t *time.Duration) { *t = timeout }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	ledgerOpts := LedgerOptions{Now: func() time.Time { return testNow }}
	lockTimeout := 2 * time.Second
	for _, o := range opts {
		o(&ledgerOpts, &lockTimeout)
	}

	f := &fixture{store: NewMemoryStore(lockTimeout), planning: NewStaticPlanning()}
	var tick atomic.Int64
	f.store.now = func() time.Time { return testNow.Add(time.Duration(tick.Add(1)) * time.Millisecond) }
	f.product = f.store.AddProduct(Product{OrganizationID: testOrg, Code: "P-100", Name: "Widget",
		Unit: "ea", ReorderLevel: d("20"), IsInventoryItem: true, IsActive: true})
	f.product2 = f.store.AddProduct(Product{OrganizationID: testOrg, Code: "P-200", Name: "Gadget",
		Unit: "ea", IsInventoryItem: true, IsActive: true})
	f.service = f.store.AddProduct(Product{OrganizationID: testOrg, Code: "SVC-1", Name: "Installation",
		Unit: "hr", IsInventoryItem: false, IsActive: true})

	f.main = f.store.AddWarehouse(Warehouse{OrganizationID: testOrg, Code: "MAIN", Name: "New York",
		Coordinates: &GeoPoint{Latitude: 40.7128, Longitude: -74.0060}, HandlingCost: d("0.50"), IsActive: true})
	f.east = f.store.AddWarehouse(Warehouse{OrganizationID: testOrg, Code: "EAST", Name: "Boston",
		Coordinates: &GeoPoint{Latitude: 42.3601, Longitude: -71.0589}, HandlingCost: d("0.25"), IsActive: true})
	f.west = f.store.AddWarehouse(Warehouse{OrganizationID: testOrg, Code: "WEST", Name: "Los Angeles",
		Coordinates: &GeoPoint{Latitude: 34.0522, Longitude: -118.2437}, IsActive: true})
	f.bin = f.store.AddLocation(Location{WarehouseID: f.main.ID, Code: "A1", Name: "Aisle 1"})

	f.lot1 = f.store.AddBatch(Batch{OrganizationID: testOrg, ProductID: f.product.ID, BatchNumber: "LOT-1",
		ManufactureDate: date(2026, 1, 1), ExpiryDate: date(2026, 12, 1)})
	f.lot2 = f.store.AddBatch(Batch{OrganizationID: testOrg, ProductID: f.product.ID, BatchNumber: "LOT-2",
		ManufactureDate: date(2026, 2, 1), ExpiryDate: date(2026, 11, 1)})

	f.ledger = NewStockLedger(f.store, ledgerOpts)
	f.alloc = NewAllocationService(f.store, f.planning, AllocationOptions{
		HorizonDays:           30,
		MaxSplitShipments:     3,
		MaxFulfillmentOptions: 5,
		Now:                   func() time.Time { return testNow },
	})
	return f
}

func date(y int, m time.Month, day int) *time.Time {
	t := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func ref(product, warehouse string) StockRef {
	return StockRef{ProductCode: product, WarehouseCode: warehouse}
}

func (f *fixture) receive(t *testing.T, r StockRef, qty, cost string) *PostingResult {
	t.Helper()
	res, err := f.ledger.ReceiveStock(context.Background(), ReceiptRequest{
		OrganizationID: testOrg,
		Ref:            r,
		Quantity:       d(qty),
		UnitCost:       d(cost),
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) issue(t *testing.T, r StockRef, qty string) *PostingResult {
	t.Helper()
	res, err := f.ledger.IssueStock(context.Background(), IssueRequest{
		OrganizationID: testOrg,
		Ref:            r,
		Quantity:       d(qty),
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) requireBalanced(t *testing.T) {
	t.Helper()
	discrepancies, err := f.ledger.Reconcile(context.Background(), testOrg)
	require.NoError(t, err)
	require.Empty(t, discrepancies)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(d(want)), "want %s, got %s", want, got)
}

// corruptSnapshot overwrites a committed snapshot quantity without a ledger row.
func (s *MemoryStore) corruptSnapshot(orgID int64, r StockRef, qty decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, err := s.resolveKey(orgID, r)
	if err != nil {
		return err
	}
	item, ok := s.items[key.id()]
	if !ok {
		return notFoundf("no stock recorded for %s", r.String())
	}
	item.QuantityOnHand = qty
	return nil
}
