package core

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func byWarehouse(lines []AllocationLine) map[string]decimal.Decimal {
	out := map[string]decimal.Decimal{}
	for _, l := range lines {
		out[l.WarehouseCode] = out[l.WarehouseCode].Add(l.Quantity)
	}
	return out
}

func allocate(t *testing.T, f *fixture, req AllocationRequest, strategy Strategy) *AllocationResult {
	t.Helper()
	res, err := f.alloc.AllocateInventory(context.Background(), testOrg, req, strategy)
	require.NoError(t, err)
	requireDecimal(t, res.RequestedQuantity.String(), res.AllocatedQuantity.Add(res.BackorderQuantity))
	return res
}

func TestCalculateATP_SubtractsCommitmentsAndClamps(t *testing.T) {
	f := newFixture(t)
	f.receive(t, ref("P-100", "MAIN"), "15", "1")
	f.receive(t, ref("P-100", "EAST"), "5", "1")
	f.planning.SetAllocated(testOrg, "P-100", "MAIN", d("10"))
	f.planning.SetSafetyStock(testOrg, "P-100", "MAIN", d("2"))
	f.planning.SetAllocated(testOrg, "P-100", "EAST", d("20"))

	results, err := f.alloc.CalculateATP(context.Background(), testOrg, "P-100", "", false)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "EAST", results[0].WarehouseCode)
	requireDecimal(t, "0", results[0].Available)

	assert.Equal(t, "MAIN", results[1].WarehouseCode)
	requireDecimal(t, "15", results[1].OnHand)
	requireDecimal(t, "10", results[1].Allocated)
	requireDecimal(t, "2", results[1].SafetyStock)
	requireDecimal(t, "3", results[1].Available)
	assert.Empty(t, results[1].FutureAvailable)

	results, err = f.alloc.CalculateATP(context.Background(), testOrg, "P-100", "MAIN", false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	requireDecimal(t, "3", results[0].Available)
}

func TestCalculateATP_FutureProjection(t *testing.T) {
	f := newFixture(t)
	f.receive(t, ref("P-100", "MAIN"), "5", "1")
	f.planning.SetSafetyStock(testOrg, "P-100", "MAIN", d("2"))
	f.planning.AddExpectedReceipt(testOrg, "P-100", SupplyEvent{WarehouseCode: "MAIN", Date: *date(2026, 10, 14), Quantity: d("2")})
	f.planning.AddExpectedReceipt(testOrg, "P-100", SupplyEvent{WarehouseCode: "MAIN", Date: *date(2026, 10, 20), Quantity: d("10")})
	f.planning.AddExpectedReceipt(testOrg, "P-100", SupplyEvent{WarehouseCode: "MAIN", Date: *date(2026, 12, 1), Quantity: d("50")})
	f.planning.AddExpectedDemand(testOrg, "P-100", SupplyEvent{WarehouseCode: "MAIN", Date: *date(2026, 10, 17), Quantity: d("8")})

	results, err := f.alloc.CalculateATP(context.Background(), testOrg, "P-100", "MAIN", true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	r := results[0]
	requireDecimal(t, "3", r.Available)
	requireDecimal(t, "62", r.InTransit)

	require.Len(t, r.FutureAvailable, 3)
	assert.Equal(t, *date(2026, 10, 15), r.FutureAvailable[0].Date)
	requireDecimal(t, "5", r.FutureAvailable[0].Quantity)
	assert.Equal(t, *date(2026, 10, 17), r.FutureAvailable[1].Date)
	requireDecimal(t, "0", r.FutureAvailable[1].Quantity)
	assert.Equal(t, *date(2026, 10, 20), r.FutureAvailable[2].Date)
	requireDecimal(t, "7", r.FutureAvailable[2].Quantity)
}

func TestCalculateATP_InTransitIgnoresHorizon(t *testing.T) {
	f := newFixture(t)
	f.receive(t, ref("P-100", "MAIN"), "5", "1")
	f.planning.AddExpectedReceipt(testOrg, "P-100", SupplyEvent{WarehouseCode: "MAIN", Date: testNow.AddDate(0, 0, 45), Quantity: d("100")})

	results, err := f.alloc.CalculateATP(context.Background(), testOrg, "P-100", "MAIN", true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	requireDecimal(t, "5", results[0].OnHand)
	requireDecimal(t, "100", results[0].InTransit)

	require.Len(t, results[0].FutureAvailable, 1)
	requireDecimal(t, "5", results[0].FutureAvailable[0].Quantity)
}

func TestCalculateATP_WarehouseKnownOnlyToPlanning(t *testing.T) {
	f := newFixture(t)
	f.receive(t, ref("P-100", "MAIN"), "5", "1")
	f.planning.AddExpectedReceipt(testOrg, "P-100", SupplyEvent{WarehouseCode: "WEST", Date: *date(2026, 10, 25), Quantity: d("4")})

	results, err := f.alloc.CalculateATP(context.Background(), testOrg, "P-100", "", true)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "WEST", results[1].WarehouseCode)
	requireDecimal(t, "0", results[1].OnHand)
	requireDecimal(t, "4", results[1].InTransit)
}

func TestCalculateATP_Lookups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.alloc.CalculateATP(ctx, testOrg, "NOPE", "", true)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.alloc.CalculateATP(ctx, testOrg, "P-100", "NOPE", true)
	require.ErrorIs(t, err, ErrNotFound)

	results, err := f.alloc.CalculateATP(ctx, testOrg, "SVC-1", "", true)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAllocateInventory_PartialAcrossWarehouses(t *testing.T) {
	f := newFixture(t)
	f.receive(t, ref("P-100", "MAIN"), "3", "1")
	f.receive(t, ref("P-100", "EAST"), "10", "1")

	res := allocate(t, f, AllocationRequest{ProductCode: "P-100", Quantity: d("20")}, StrategyFIFO)
	assert.False(t, res.Success)
	requireDecimal(t, "13", res.AllocatedQuantity)
	requireDecimal(t, "7", res.BackorderQuantity)
	assert.Nil(t, res.EstimatedShipDate)
	assert.NotEmpty(t, res.Message)

	split := byWarehouse(res.Lines)
	requireDecimal(t, "3", split["MAIN"])
	requireDecimal(t, "10", split["EAST"])
}

func TestAllocateInventory_FIFOAndFEFOFollowBatchDates(t *testing.T) {
	f := newFixture(t)
	lot1 := StockRef{ProductCode: "P-100", WarehouseCode: "MAIN", BatchNumber: "LOT-1"}
	lot2 := StockRef{ProductCode: "P-100", WarehouseCode: "MAIN", BatchNumber: "LOT-2"}
	f.receive(t, lot2, "10", "1")
	f.receive(t, lot1, "10", "1")

	res := allocate(t, f, AllocationRequest{ProductCode: "P-100", Quantity: d("12")}, StrategyFIFO)
	require.Len(t, res.Lines, 2)
	assert.Equal(t, "LOT-1", res.Lines[0].BatchNumber)
	requireDecimal(t, "10", res.Lines[0].Quantity)
	assert.Equal(t, "LOT-2", res.Lines[1].BatchNumber)
	requireDecimal(t, "2", res.Lines[1].Quantity)

	res = allocate(t, f, AllocationRequest{ProductCode: "P-100", Quantity: d("12")}, StrategyFEFO)
	require.Len(t, res.Lines, 2)
	assert.Equal(t, "LOT-2", res.Lines[0].BatchNumber)
	requireDecimal(t, "10", res.Lines[0].Quantity)
	assert.Equal(t, "LOT-1", res.Lines[1].BatchNumber)
	requireDecimal(t, "2", res.Lines[1].Quantity)
}

func TestAllocateInventory_FIFOWithoutBatchesUsesFirstReceipt(t *testing.T) {
	f := newFixture(t)
	f.receive(t, ref("P-100", "WEST"), "4", "1")
	f.receive(t, ref("P-100", "EAST"), "4", "1")

	res := allocate(t, f, AllocationRequest{ProductCode: "P-100", Quantity: d("5")}, StrategyFIFO)
	require.Len(t, res.Lines, 2)
	assert.Equal(t, "WEST", res.Lines[0].WarehouseCode)
	requireDecimal(t, "4", res.Lines[0].Quantity)
	assert.Equal(t, "EAST", res.Lines[1].WarehouseCode)
}

func TestAllocateInventory_Nearest(t *testing.T) {
	f := newFixture(t)
	for _, wh := range []string{"MAIN", "EAST", "WEST"} {
		f.receive(t, ref("P-100", wh), "10", "1")
	}

	boston := &GeoPoint{Latitude: 42.36, Longitude: -71.06}
	res := allocate(t, f, AllocationRequest{ProductCode: "P-100", Quantity: d("15"), ShipTo: boston}, StrategyNearest)
	require.Len(t, res.Lines, 2)
	assert.Equal(t, "EAST", res.Lines[0].WarehouseCode)
	requireDecimal(t, "10", res.Lines[0].Quantity)
	assert.Equal(t, "MAIN", res.Lines[1].WarehouseCode)
	requireDecimal(t, "5", res.Lines[1].Quantity)
	require.NotNil(t, res.Lines[0].DistanceKm)
	assert.Less(t, *res.Lines[0].DistanceKm, 5.0)
	assert.InDelta(t, 306, *res.Lines[1].DistanceKm, 15)
}

func TestAllocateInventory_PreferredWarehouseFirst(t *testing.T) {
	f := newFixture(t)
	for _, wh := range []string{"MAIN", "EAST", "WEST"} {
		f.receive(t, ref("P-100", wh), "10", "1")
	}

	res := allocate(t, f, AllocationRequest{ProductCode: "P-100", Quantity: d("15"), PreferredWarehouse: "WEST"}, StrategyNearest)
	require.Len(t, res.Lines, 2)
	assert.Equal(t, "WEST", res.Lines[0].WarehouseCode)
	requireDecimal(t, "10", res.Lines[0].Quantity)
	// Los Angeles is closer to New York than to Boston.
	assert.Equal(t, "MAIN", res.Lines[1].WarehouseCode)

	res = allocate(t, f, AllocationRequest{ProductCode: "P-100", Quantity: d("4"), PreferredWarehouse: "EAST"}, StrategyFIFO)
	require.Len(t, res.Lines, 1)
	assert.Equal(t, "EAST", res.Lines[0].WarehouseCode)
	requireDecimal(t, "4", res.Lines[0].Quantity)
}

func TestAllocateInventory_CostUsesLandedCost(t *testing.T) {
	f := newFixture(t)
	f.receive(t, ref("P-100", "MAIN"), "10", "2")   // landed 2.50
	f.receive(t, ref("P-100", "EAST"), "10", "2.4") // landed 2.65
	f.receive(t, ref("P-100", "WEST"), "10", "2.6") // landed 2.60

	res := allocate(t, f, AllocationRequest{ProductCode: "P-100", Quantity: d("25")}, StrategyCost)
	require.Len(t, res.Lines, 3)
	assert.Equal(t, []string{"MAIN", "WEST", "EAST"},
		[]string{res.Lines[0].WarehouseCode, res.Lines[1].WarehouseCode, res.Lines[2].WarehouseCode})
	requireDecimal(t, "2.5", res.Lines[0].LandedCost)
	requireDecimal(t, "5", res.Lines[2].Quantity)
}

func TestAllocateInventory_BalanceLevelsWarehouses(t *testing.T) {
	f := newFixture(t)
	f.receive(t, ref("P-100", "MAIN"), "10", "1")
	f.receive(t, ref("P-100", "EAST"), "4", "1")

	res := allocate(t, f, AllocationRequest{ProductCode: "P-100", Quantity: d("8")}, StrategyBalance)
	assert.True(t, res.Success)
	split := byWarehouse(res.Lines)
	requireDecimal(t, "7", split["MAIN"])
	requireDecimal(t, "1", split["EAST"])
}

func TestAllocateInventory_BalanceDistributesRoundingResidue(t *testing.T) {
	f := newFixture(t)
	for _, wh := range []string{"MAIN", "EAST", "WEST"} {
		f.receive(t, ref("P-100", wh), "1", "1")
	}

	res := allocate(t, f, AllocationRequest{ProductCode: "P-100", Quantity: d("1")}, StrategyBalance)
	assert.True(t, res.Success)
	split := byWarehouse(res.Lines)
	requireDecimal(t, "0.3334", split["EAST"])
	requireDecimal(t, "0.3333", split["MAIN"])
	requireDecimal(t, "0.3333", split["WEST"])
}

func TestAllocateInventory_CriticalMayUseSafetyStock(t *testing.T) {
	f := newFixture(t)
	f.receive(t, ref("P-100", "MAIN"), "10", "1")
	f.planning.SetSafetyStock(testOrg, "P-100", "MAIN", d("4"))

	res := allocate(t, f, AllocationRequest{ProductCode: "P-100", Quantity: d("10")}, StrategyFIFO)
	requireDecimal(t, "6", res.AllocatedQuantity)

	res = allocate(t, f, AllocationRequest{ProductCode: "P-100", Quantity: d("10"), Priority: PriorityCritical}, StrategyFIFO)
	assert.True(t, res.Success)
	requireDecimal(t, "10", res.AllocatedQuantity)
}

func TestAllocateInventory_EstimatedShipDate(t *testing.T) {
	f := newFixture(t)
	f.receive(t, ref("P-100", "MAIN"), "5", "1")
	f.planning.AddExpectedReceipt(testOrg, "P-100", SupplyEvent{WarehouseCode: "MAIN", Date: *date(2026, 10, 18), Quantity: d("10")})

	res := allocate(t, f, AllocationRequest{ProductCode: "P-100", Quantity: d("4")}, StrategyFIFO)
	require.NotNil(t, res.EstimatedShipDate)
	assert.Equal(t, *date(2026, 10, 15), *res.EstimatedShipDate)

	res = allocate(t, f, AllocationRequest{ProductCode: "P-100", Quantity: d("8")}, StrategyFIFO)
	requireDecimal(t, "5", res.AllocatedQuantity)
	requireDecimal(t, "3", res.BackorderQuantity)
	require.NotNil(t, res.EstimatedShipDate)
	assert.Equal(t, *date(2026, 10, 18), *res.EstimatedShipDate)
}

func TestAllocateInventory_CriticalShipDateCountsSafetyStock(t *testing.T) {
	f := newFixture(t)
	f.receive(t, ref("P-100", "MAIN"), "10", "1")
	f.planning.SetSafetyStock(testOrg, "P-100", "MAIN", d("4"))
	f.planning.AddExpectedReceipt(testOrg, "P-100", SupplyEvent{WarehouseCode: "MAIN", Date: *date(2026, 10, 18), Quantity: d("2")})

	res := allocate(t, f, AllocationRequest{ProductCode: "P-100", Quantity: d("12"), Priority: PriorityCritical}, StrategyFIFO)
	requireDecimal(t, "10", res.AllocatedQuantity)
	requireDecimal(t, "2", res.BackorderQuantity)
	require.NotNil(t, res.EstimatedShipDate)
	assert.Equal(t, *date(2026, 10, 18), *res.EstimatedShipDate)

	res = allocate(t, f, AllocationRequest{ProductCode: "P-100", Quantity: d("12")}, StrategyFIFO)
	requireDecimal(t, "6", res.AllocatedQuantity)
	assert.Nil(t, res.EstimatedShipDate)
}

func TestAllocateInventory_ConservesQuantityForEveryStrategy(t *testing.T) {
	f := newFixture(t)
	f.receive(t, StockRef{ProductCode: "P-100", WarehouseCode: "MAIN", LocationCode: "A1", BatchNumber: "LOT-1"}, "7.5", "1")
	f.receive(t, StockRef{ProductCode: "P-100", WarehouseCode: "MAIN", BatchNumber: "LOT-2"}, "2.25", "1.1")
	f.receive(t, ref("P-100", "EAST"), "6", "0.9")
	f.receive(t, ref("P-100", "WEST"), "3", "1.3")
	f.planning.SetAllocated(testOrg, "P-100", "EAST", d("1.5"))
	f.planning.SetSafetyStock(testOrg, "P-100", "WEST", d("1"))

	atp, err := f.alloc.CalculateATP(context.Background(), testOrg, "P-100", "", false)
	require.NoError(t, err)
	budget := map[string]decimal.Decimal{}
	for _, r := range atp {
		budget[r.WarehouseCode] = r.Available
	}

	ship := &GeoPoint{Latitude: 41, Longitude: -73}
	for _, strategy := range []Strategy{StrategyNearest, StrategyCost, StrategyBalance, StrategyFIFO, StrategyFEFO} {
		for _, qty := range []string{"0.0001", "5", "11.7", "16.25", "40"} {
			res := allocate(t, f, AllocationRequest{ProductCode: "P-100", Quantity: d(qty), ShipTo: ship}, strategy)
			for wh, taken := range byWarehouse(res.Lines) {
				assert.True(t, taken.LessThanOrEqual(budget[wh]), "%s/%s took %s from %s", strategy, qty, taken, wh)
			}
			for _, l := range res.Lines {
				assert.True(t, l.Quantity.IsPositive())
			}
		}
	}
}

func TestAllocateInventory_EdgeCases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := allocate(t, f, AllocationRequest{ProductCode: "NOPE", Quantity: d("3")}, StrategyFIFO)
	assert.False(t, res.Success)
	requireDecimal(t, "3", res.BackorderQuantity)
	assert.Empty(t, res.Lines)

	res = allocate(t, f, AllocationRequest{ProductCode: "SVC-1", Quantity: d("3")}, StrategyCost)
	assert.True(t, res.Success)
	requireDecimal(t, "0", res.BackorderQuantity)
	assert.Empty(t, res.Lines)

	res = allocate(t, f, AllocationRequest{ProductCode: "P-100", Quantity: d("3")}, StrategyNearest)
	assert.False(t, res.Success)
	requireDecimal(t, "0", res.AllocatedQuantity)

	_, err := f.alloc.AllocateInventory(ctx, testOrg, AllocationRequest{ProductCode: "P-100", Quantity: d("1")}, "random")
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.alloc.AllocateInventory(ctx, testOrg, AllocationRequest{ProductCode: "P-100", Quantity: d("0")}, StrategyFIFO)
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.alloc.AllocateInventory(ctx, testOrg, AllocationRequest{ProductCode: "P-100", Quantity: d("1"), Priority: "vip"}, StrategyFIFO)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestAllocateInventory_DoesNotWrite(t *testing.T) {
	f := newFixture(t)
	f.receive(t, ref("P-100", "MAIN"), "10", "1")
	allocate(t, f, AllocationRequest{ProductCode: "P-100", Quantity: d("6")}, StrategyFIFO)

	item, err := f.ledger.GetInventoryItem(context.Background(), testOrg, ref("P-100", "MAIN"))
	require.NoError(t, err)
	requireDecimal(t, "10", item.QuantityOnHand)
}

func TestCheckMultiProductAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, ref("P-100", "MAIN"), "10", "1")
	f.receive(t, ref("P-200", "MAIN"), "2", "1")

	got, err := f.alloc.CheckMultiProductAvailability(ctx, testOrg, map[string]decimal.Decimal{
		"P-100": d("5"),
		"P-200": d("3"),
		"NOPE":  d("1"),
		"SVC-1": d("100"),
	}, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"P-100": true, "P-200": false, "NOPE": false, "SVC-1": true}, got)

	got, err = f.alloc.CheckMultiProductAvailability(ctx, testOrg, map[string]decimal.Decimal{"P-100": d("5")}, "EAST")
	require.NoError(t, err)
	assert.False(t, got["P-100"])

	_, err = f.alloc.CheckMultiProductAvailability(ctx, testOrg, map[string]decimal.Decimal{"P-100": d("5")}, "NOPE")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.alloc.CheckMultiProductAvailability(ctx, testOrg, map[string]decimal.Decimal{"P-100": d("-1")}, "")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetFulfillmentOptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, ref("P-100", "MAIN"), "10", "2")
	f.receive(t, ref("P-100", "EAST"), "5", "2")
	f.receive(t, ref("P-100", "WEST"), "20", "3")
	f.receive(t, ref("P-200", "MAIN"), "5", "1")
	f.receive(t, ref("P-200", "WEST"), "3", "1")

	order := FulfillmentRequest{Lines: []FulfillmentLine{
		{ProductCode: "P-100", Quantity: d("12")},
		{ProductCode: "P-200", Quantity: d("3")},
	}}
	options, err := f.alloc.GetFulfillmentOptions(ctx, testOrg, order)
	require.NoError(t, err)
	require.Len(t, options, 5)

	for i, opt := range options {
		assert.Equal(t, i+1, opt.Rank)
		shipped := map[string]decimal.Decimal{}
		for _, sh := range opt.Shipments {
			for _, l := range sh.Lines {
				assert.Equal(t, sh.WarehouseCode, l.WarehouseCode)
				shipped[l.ProductCode] = shipped[l.ProductCode].Add(l.Quantity)
			}
		}
		requireDecimal(t, "12", shipped["P-100"])
		requireDecimal(t, "3", shipped["P-200"])
		assert.Equal(t, len(opt.Shipments), opt.ShipmentCount)
	}

	assert.Equal(t, 1, options[0].ShipmentCount)
	assert.Equal(t, "WEST", options[0].Shipments[0].WarehouseCode)
	requireDecimal(t, "39", options[0].TotalCost)

	assert.Equal(t, 2, options[1].ShipmentCount)
	assert.Equal(t, []string{"EAST", "MAIN"}, []string{options[1].Shipments[0].WarehouseCode, options[1].Shipments[1].WarehouseCode})
	requireDecimal(t, "33.25", options[1].TotalCost)
	requireDecimal(t, "34", options[2].TotalCost)
	requireDecimal(t, "35.25", options[3].TotalCost)
	assert.Equal(t, 3, options[4].ShipmentCount)
}

func TestGetFulfillmentOptions_EdgeCases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, ref("P-100", "MAIN"), "10", "2")

	options, err := f.alloc.GetFulfillmentOptions(ctx, testOrg, FulfillmentRequest{Lines: []FulfillmentLine{
		{ProductCode: "P-100", Quantity: d("1")}, {ProductCode: "NOPE", Quantity: d("1")},
	}})
	require.NoError(t, err)
	assert.Empty(t, options)

	options, err = f.alloc.GetFulfillmentOptions(ctx, testOrg, FulfillmentRequest{Lines: []FulfillmentLine{
		{ProductCode: "P-100", Quantity: d("11")},
	}})
	require.NoError(t, err)
	assert.Empty(t, options)

	options, err = f.alloc.GetFulfillmentOptions(ctx, testOrg, FulfillmentRequest{Lines: []FulfillmentLine{
		{ProductCode: "SVC-1", Quantity: d("2")},
	}})
	require.NoError(t, err)
	require.Len(t, options, 1)
	assert.Empty(t, options[0].Shipments)

	_, err = f.alloc.GetFulfillmentOptions(ctx, testOrg, FulfillmentRequest{})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCombinations(t *testing.T) {
	var got [][]int
	combinations(4, 2, func(idx []int) {
		got = append(got, append([]int(nil), idx...))
	})
	assert.Equal(t, [][]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}, got)

	calls := 0
	combinations(2, 3, func([]int) { calls++ })
	assert.Zero(t, calls)
}

func TestHaversineKm(t *testing.T) {
	ny := GeoPoint{Latitude: 40.7128, Longitude: -74.0060}
	la := GeoPoint{Latitude: 34.0522, Longitude: -118.2437}
	assert.InDelta(t, 3936, haversineKm(ny, la), 10)
	assert.Zero(t, haversineKm(ny, ny))
}
