package core

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ATPResult is the available-to-promise picture of one product in one warehouse.
type ATPResult struct {
	WarehouseCode string          `json:"warehouse_code"`
	WarehouseName string          `json:"warehouse_name"`
	OnHand        decimal.Decimal `json:"on_hand"`
	Allocated     decimal.Decimal `json:"allocated"`
	SafetyStock   decimal.Decimal `json:"safety_stock"`
	InTransit     decimal.Decimal `json:"in_transit"`
	// Available is on_hand - allocated - safety_stock, never below zero.
	Available       decimal.Decimal      `json:"available"`
	FutureAvailable []FutureAvailability `json:"future_available,omitempty"`
}

// FutureAvailability is the projected available quantity on a date.
type FutureAvailability struct {
	Date     time.Time       `json:"date"`
	Quantity decimal.Decimal `json:"quantity"`
}

// warehouseView is everything the engine knows about one product in one warehouse.
type warehouseView struct {
	warehouse Warehouse
	onHand    decimal.Decimal
	allocated decimal.Decimal
	safety    decimal.Decimal
	inTransit decimal.Decimal
	available decimal.Decimal
	future    []FutureAvailability
	receipts  []SupplyEvent
	demand    []SupplyEvent
	// positions with positive on-hand, in tie-break order
	positions []StockPosition
}

// budget is the quantity a request of the given priority may take from the
// warehouse. Critical orders may dig into safety stock.
func (w *warehouseView) budget(p Priority) decimal.Decimal {
	b := w.available
	if p == PriorityCritical {
		b = w.onHand.Sub(w.allocated)
	}
	if b.IsNegative() {
		return decimal.Zero
	}
	return b
}

// capacity is what can physically be picked within the budget.
func (w *warehouseView) capacity(p Priority) decimal.Decimal {
	var stock decimal.Decimal
	for _, pos := range w.positions {
		stock = stock.Add(pos.OnHand)
	}
	return decimal.Min(stock, w.budget(p))
}

// projection is the availability calendar a request of priority p can draw
// on. It starts from the same budget the allocation uses.
func (w *warehouseView) projection(p Priority, asOf, end time.Time) []FutureAvailability {
	if p != PriorityCritical {
		return w.future
	}
	return projectAvailability(w.budget(p), w.receipts, w.demand, asOf, end)
}

// futureAt is the projected quantity on date, falling back to start before
// the first projected point.
func futureAt(points []FutureAvailability, start decimal.Decimal, date time.Time) decimal.Decimal {
	qty := start
	for _, f := range points {
		if f.Date.After(date) {
			break
		}
		qty = f.Quantity
	}
	return qty
}

type productView struct {
	product    *Product
	warehouses []*warehouseView // by warehouse code
	asOf       time.Time
	end        time.Time
}

func (v *productView) warehouse(code string) *warehouseView {
	for _, w := range v.warehouses {
		if w.warehouse.Code == code {
			return w
		}
	}
	return nil
}

func (s *allocationService) asOf() time.Time {
	return truncateDay(s.opts.Now())
}

func (s *allocationService) horizonEnd(asOf time.Time) time.Time {
	return asOf.AddDate(0, 0, s.opts.HorizonDays)
}

// loadView reads positions and planning figures for one product. An empty
// warehouseCode means every warehouse.
func (s *allocationService) loadView(ctx context.Context, orgID int64, productCode, warehouseCode string) (*productView, error) {
	product, positions, err := s.stock.ProductPositions(ctx, orgID, productCode, warehouseCode)
	if err != nil {
		return nil, err
	}
	asOf := s.asOf()
	end := s.horizonEnd(asOf)
	view := &productView{product: product, asOf: asOf, end: end}
	if !product.IsInventoryItem {
		return view, nil
	}

	figures, err := s.planning.Figures(ctx, orgID, productCode, asOf, end)
	if err != nil {
		return nil, err
	}

	byCode := map[string]*warehouseView{}
	add := func(w Warehouse) *warehouseView {
		if wv, ok := byCode[w.Code]; ok {
			return wv
		}
		wv := &warehouseView{warehouse: w}
		byCode[w.Code] = wv
		return wv
	}
	for _, pos := range positions {
		wv := add(pos.Warehouse)
		wv.onHand = wv.onHand.Add(pos.OnHand)
		if pos.OnHand.IsPositive() {
			wv.positions = append(wv.positions, pos)
		}
	}

	// Warehouses with no snapshot row still count when planning knows of them.
	mentioned := map[string]bool{}
	if warehouseCode != "" {
		mentioned[warehouseCode] = true
	} else {
		for code := range figures.Allocated {
			mentioned[code] = true
		}
		for code := range figures.SafetyStock {
			mentioned[code] = true
		}
		for _, ev := range figures.ExpectedReceipts {
			mentioned[ev.WarehouseCode] = true
		}
	}
	for code := range mentioned {
		if _, ok := byCode[code]; ok {
			continue
		}
		w, err := s.stock.GetWarehouse(ctx, orgID, code)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		add(*w)
	}

	for code, wv := range byCode {
		wv.allocated = figures.allocated(code)
		wv.safety = figures.safetyStock(code)
		wv.available = clampZero(wv.onHand.Sub(wv.allocated).Sub(wv.safety))
		for _, ev := range figures.ExpectedReceipts {
			if ev.WarehouseCode == code {
				wv.receipts = append(wv.receipts, ev)
				wv.inTransit = wv.inTransit.Add(ev.Quantity)
			}
		}
		for _, ev := range figures.ExpectedDemand {
			if ev.WarehouseCode == code {
				wv.demand = append(wv.demand, ev)
			}
		}
		wv.future = projectAvailability(wv.available, wv.receipts, wv.demand, asOf, end)
		view.warehouses = append(view.warehouses, wv)
	}
	sort.Slice(view.warehouses, func(i, j int) bool {
		return view.warehouses[i].warehouse.Code < view.warehouses[j].warehouse.Code
	})
	return view, nil
}

// projectAvailability rolls available forward through receipts and demand,
// one point per day with activity, starting at asOf. Overdue receipts land
// on asOf. The running total is carried unclamped; each point is clamped at
// zero.
func projectAvailability(available decimal.Decimal, receipts, demand []SupplyEvent, asOf, end time.Time) []FutureAvailability {
	deltas := map[time.Time]decimal.Decimal{asOf: decimal.Zero}
	for _, ev := range receipts {
		day := truncateDay(ev.Date)
		if day.Before(asOf) {
			day = asOf
		}
		if day.After(end) {
			continue
		}
		deltas[day] = deltas[day].Add(ev.Quantity)
	}
	for _, ev := range demand {
		day := truncateDay(ev.Date)
		if day.Before(asOf) || day.After(end) {
			continue
		}
		deltas[day] = deltas[day].Sub(ev.Quantity)
	}

	days := make([]time.Time, 0, len(deltas))
	for day := range deltas {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	out := make([]FutureAvailability, 0, len(days))
	running := available
	for _, day := range days {
		running = running.Add(deltas[day])
		out = append(out, FutureAvailability{Date: day, Quantity: clampZero(running)})
	}
	return out
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// CalculateATP returns one result per warehouse carrying the product, or
// just the named warehouse.
func (s *allocationService) CalculateATP(ctx context.Context, orgID int64, productCode, warehouseCode string, includeFuture bool) ([]ATPResult, error) {
	ctx, span := tracer.Start(ctx, "allocation.CalculateATP", trace.WithAttributes(
		attribute.Int64("org.id", orgID),
		attribute.String("product.code", productCode),
		attribute.String("warehouse.code", warehouseCode),
	))
	defer span.End()

	if orgID <= 0 || productCode == "" {
		return nil, invalidf("organization id and product code are required")
	}
	view, err := s.loadView(ctx, orgID, productCode, warehouseCode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results := make([]ATPResult, 0, len(view.warehouses))
	for _, wv := range view.warehouses {
		r := ATPResult{
			WarehouseCode: wv.warehouse.Code,
			WarehouseName: wv.warehouse.Name,
			OnHand:        wv.onHand,
			Allocated:     wv.allocated,
			SafetyStock:   wv.safety,
			InTransit:     wv.inTransit,
			Available:     wv.available,
		}
		if includeFuture {
			r.FutureAvailable = wv.future
		}
		results = append(results, r)
	}
	return results, nil
}

// estimateShipDate is the first projected date on which the warehouses
// together can cover qty for a request of priority p, or nil when the
// horizon never does.
func estimateShipDate(view *productView, p Priority, qty decimal.Decimal) *time.Time {
	projections := make([][]FutureAvailability, len(view.warehouses))
	seen := map[time.Time]bool{}
	var days []time.Time
	for i, wv := range view.warehouses {
		projections[i] = wv.projection(p, view.asOf, view.end)
		for _, f := range projections[i] {
			if !seen[f.Date] {
				seen[f.Date] = true
				days = append(days, f.Date)
			}
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	for _, day := range days {
		var total decimal.Decimal
		for i, wv := range view.warehouses {
			total = total.Add(futureAt(projections[i], wv.budget(p), day))
		}
		if total.GreaterThanOrEqual(qty) {
			d := day
			return &d
		}
	}
	return nil
}
