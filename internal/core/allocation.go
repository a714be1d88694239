package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"erp-inventory/internal/logger"
	"erp-inventory/internal/metrics"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Strategy orders candidate stock positions for an allocation.
type Strategy string

const (
	StrategyNearest Strategy = "nearest"
	StrategyCost    Strategy = "cost"
	StrategyBalance Strategy = "balance"
	StrategyFIFO    Strategy = "fifo"
	StrategyFEFO    Strategy = "fefo"
)

func (s Strategy) IsValid() bool {
	switch s {
	case StrategyNearest, StrategyCost, StrategyBalance, StrategyFIFO, StrategyFEFO:
		return true
	}
	return false
}

// Priority is the customer class of a request.
type Priority string

const (
	PriorityStandard  Priority = "standard"
	PriorityB2C       Priority = "b2c"
	PriorityWholesale Priority = "wholesale"
	PriorityCritical  Priority = "critical"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityStandard, PriorityB2C, PriorityWholesale, PriorityCritical:
		return true
	}
	return false
}

// speedFirst reports whether ranking should favour distance over cost.
func (p Priority) speedFirst() bool {
	return p == PriorityB2C || p == PriorityCritical
}

type AllocationRequest struct {
	ProductCode        string          `json:"product_code"`
	Quantity           decimal.Decimal `json:"quantity"`
	Priority           Priority        `json:"priority"`
	CustomerID         string          `json:"customer_id,omitempty"`
	PreferredWarehouse string          `json:"preferred_warehouse,omitempty"`
	// ShipTo drives the nearest strategy. Without it the preferred
	// warehouse's coordinates are used as the origin.
	ShipTo *GeoPoint `json:"ship_to,omitempty"`
}

// AllocationLine says how much one position supplies.
type AllocationLine struct {
	ProductCode   string          `json:"product_code"`
	WarehouseCode string          `json:"warehouse_code"`
	LocationCode  string          `json:"location_code,omitempty"`
	BatchNumber   string          `json:"batch_number,omitempty"`
	SerialNumber  string          `json:"serial_number,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	// LandedCost is UnitCost plus the warehouse handling cost.
	LandedCost decimal.Decimal `json:"landed_cost"`
	DistanceKm *float64        `json:"distance_km,omitempty"`
}

// AllocationResult is a proposal; nothing is reserved or issued.
// AllocatedQuantity + BackorderQuantity always equals RequestedQuantity.
type AllocationResult struct {
	ProductCode       string           `json:"product_code"`
	Strategy          Strategy         `json:"strategy"`
	Success           bool             `json:"success"`
	RequestedQuantity decimal.Decimal  `json:"requested_quantity"`
	AllocatedQuantity decimal.Decimal  `json:"allocated_quantity"`
	BackorderQuantity decimal.Decimal  `json:"backorder_quantity"`
	Lines             []AllocationLine `json:"lines"`
	EstimatedShipDate *time.Time       `json:"estimated_ship_date,omitempty"`
	Message           string           `json:"message"`
}

// AllocationService computes availability and allocation proposals over the
// inventory snapshot. It never writes.
type AllocationService interface {
	CalculateATP(ctx context.Context, orgID int64, productCode, warehouseCode string, includeFuture bool) ([]ATPResult, error)
	AllocateInventory(ctx context.Context, orgID int64, req AllocationRequest, strategy Strategy) (*AllocationResult, error)
	// CheckMultiProductAvailability reports, per product code, whether the
	// requested quantity is available (optionally within one warehouse).
	CheckMultiProductAvailability(ctx context.Context, orgID int64, items map[string]decimal.Decimal, warehouseCode string) (map[string]bool, error)
	GetFulfillmentOptions(ctx context.Context, orgID int64, req FulfillmentRequest) ([]FulfillmentOption, error)
}

type AllocationOptions struct {
	HorizonDays           int
	MaxSplitShipments     int
	MaxFulfillmentOptions int
	Now                   func() time.Time
}

type allocationService struct {
	stock    StockReader
	planning PlanningSource
	opts     AllocationOptions
}

func NewAllocationService(stock StockReader, planning PlanningSource, opts AllocationOptions) AllocationService {
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = 30
	}
	if opts.MaxSplitShipments <= 0 {
		opts.MaxSplitShipments = 3
	}
	if opts.MaxFulfillmentOptions <= 0 {
		opts.MaxFulfillmentOptions = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &allocationService{stock: stock, planning: planning, opts: opts}
}

// ── Allocation ────────────────────────────────────────────────────────────────

func (s *allocationService) AllocateInventory(ctx context.Context, orgID int64, req AllocationRequest, strategy Strategy) (*AllocationResult, error) {
	ctx, span := tracer.Start(ctx, "allocation.AllocateInventory", trace.WithAttributes(
		attribute.Int64("org.id", orgID),
		attribute.String("product.code", req.ProductCode),
		attribute.String("quantity", req.Quantity.String()),
		attribute.String("strategy", string(strategy)),
	))
	defer span.End()

	if req.Priority == "" {
		req.Priority = PriorityStandard
	}
	if err := validateAllocation(orgID, req, strategy); err != nil {
		return nil, err
	}

	result := &AllocationResult{
		ProductCode:       req.ProductCode,
		Strategy:          strategy,
		RequestedQuantity: req.Quantity,
		Lines:             []AllocationLine{},
	}

	view, err := s.loadView(ctx, orgID, req.ProductCode, "")
	switch {
	case errors.Is(err, ErrNotFound):
		result.BackorderQuantity = req.Quantity
		result.Message = err.Error()
		s.recordAllocation(ctx, span, result)
		return result, nil
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if !view.product.IsInventoryItem {
		result.Success = true
		result.AllocatedQuantity = req.Quantity
		asOf := view.asOf
		result.EstimatedShipDate = &asOf
		result.Message = fmt.Sprintf("%s is not stock tracked; no allocation needed", req.ProductCode)
		s.recordAllocation(ctx, span, result)
		return result, nil
	}

	result.Lines = planAllocation(view, req, strategy, nil)
	for _, l := range result.Lines {
		result.AllocatedQuantity = result.AllocatedQuantity.Add(l.Quantity)
	}
	result.BackorderQuantity = req.Quantity.Sub(result.AllocatedQuantity)
	result.Success = result.BackorderQuantity.IsZero()

	if result.Success {
		asOf := view.asOf
		result.EstimatedShipDate = &asOf
	} else {
		result.EstimatedShipDate = estimateShipDate(view, req.Priority, req.Quantity)
	}
	result.Message = allocationMessage(result)
	s.recordAllocation(ctx, span, result)
	return result, nil
}

func validateAllocation(orgID int64, req AllocationRequest, strategy Strategy) error {
	if orgID <= 0 {
		return invalidf("organization id is required")
	}
	if req.ProductCode == "" {
		return invalidf("product code is required")
	}
	if !strategy.IsValid() {
		return invalidf("unknown allocation strategy %q", strategy)
	}
	if !req.Priority.IsValid() {
		return invalidf("unknown priority %q", req.Priority)
	}
	return validateQuantity(req.Quantity)
}

func allocationMessage(r *AllocationResult) string {
	warehouses := map[string]bool{}
	for _, l := range r.Lines {
		warehouses[l.WarehouseCode] = true
	}
	switch {
	case r.Success:
		return fmt.Sprintf("allocated %s from %d warehouse(s)", r.AllocatedQuantity, len(warehouses))
	case r.AllocatedQuantity.IsZero():
		return fmt.Sprintf("no stock available; %s backordered", r.BackorderQuantity)
	default:
		return fmt.Sprintf("allocated %s of %s from %d warehouse(s); %s backordered",
			r.AllocatedQuantity, r.RequestedQuantity, len(warehouses), r.BackorderQuantity)
	}
}

func (s *allocationService) recordAllocation(ctx context.Context, span trace.Span, r *AllocationResult) {
	outcome := "partial"
	switch {
	case r.Success:
		outcome = "full"
	case r.AllocatedQuantity.IsZero():
		outcome = "none"
	}
	metrics.ObserveAllocation(string(r.Strategy), outcome)
	span.SetAttributes(
		attribute.String("allocation.outcome", outcome),
		attribute.String("allocation.allocated", r.AllocatedQuantity.String()),
	)
	logger.Info(ctx).
		Str("product", r.ProductCode).
		Str("strategy", string(r.Strategy)).
		Str("requested", r.RequestedQuantity.String()).
		Str("allocated", r.AllocatedQuantity.String()).
		Str("outcome", outcome).
		Msg("allocation computed")
}

// ── Planning ──────────────────────────────────────────────────────────────────

type candidate struct {
	pos      StockPosition
	distance *float64
	landed   decimal.Decimal
}

// planAllocation splits req.Quantity over the view's positions. When only is
// non-nil, warehouses outside it are ignored.
func planAllocation(view *productView, req AllocationRequest, strategy Strategy, only map[string]bool) []AllocationLine {
	origin := req.ShipTo
	if origin == nil && req.PreferredWarehouse != "" {
		if wv := view.warehouse(req.PreferredWarehouse); wv != nil {
			origin = wv.warehouse.Coordinates
		}
	}

	budgets := map[string]decimal.Decimal{}
	var pool []candidate
	for _, wv := range view.warehouses {
		if only != nil && !only[wv.warehouse.Code] {
			continue
		}
		b := wv.budget(req.Priority)
		if !b.IsPositive() {
			continue
		}
		budgets[wv.warehouse.Code] = b
		for _, pos := range wv.positions {
			pool = append(pool, newCandidate(pos, origin))
		}
	}

	remaining := req.Quantity
	var lines []AllocationLine
	take := func(cands []candidate) {
		for _, c := range cands {
			if !remaining.IsPositive() {
				return
			}
			code := c.pos.Warehouse.Code
			qty := decimal.Min(remaining, c.pos.OnHand, budgets[code])
			if !qty.IsPositive() {
				continue
			}
			budgets[code] = budgets[code].Sub(qty)
			remaining = remaining.Sub(qty)
			lines = append(lines, c.line(view.product.Code, qty))
		}
	}

	less := candidateOrder(strategy)
	if req.PreferredWarehouse != "" {
		var preferred, rest []candidate
		for _, c := range pool {
			if c.pos.Warehouse.Code == req.PreferredWarehouse {
				preferred = append(preferred, c)
			} else {
				rest = append(rest, c)
			}
		}
		if strategy == StrategyBalance {
			sortCandidates(preferred, candidateOrder(StrategyFIFO))
		} else {
			sortCandidates(preferred, less)
		}
		take(preferred)
		pool = rest
	}

	if strategy == StrategyBalance {
		lines = append(lines, balance(view.product.Code, pool, budgets, &remaining)...)
		return lines
	}
	sortCandidates(pool, less)
	take(pool)
	return lines
}

func newCandidate(pos StockPosition, origin *GeoPoint) candidate {
	c := candidate{pos: pos, landed: pos.UnitCost.Add(pos.Warehouse.HandlingCost)}
	if origin != nil && pos.Warehouse.Coordinates != nil {
		d := haversineKm(*origin, *pos.Warehouse.Coordinates)
		c.distance = &d
	}
	return c
}

func (c candidate) line(productCode string, qty decimal.Decimal) AllocationLine {
	return AllocationLine{
		ProductCode:   productCode,
		WarehouseCode: c.pos.Warehouse.Code,
		LocationCode:  c.pos.LocationCode,
		BatchNumber:   c.pos.batchNumber(),
		SerialNumber:  c.pos.serialNumber(),
		Quantity:      qty,
		UnitCost:      c.pos.UnitCost,
		LandedCost:    c.landed,
		DistanceKm:    c.distance,
	}
}

var balanceStep = decimal.New(1, -QuantityScale)

// balance levels what is left in each warehouse: the warehouses with the
// most capacity give first, down to a common level. Within a warehouse
// positions are drained oldest first.
func balance(productCode string, pool []candidate, budgets map[string]decimal.Decimal, remaining *decimal.Decimal) []AllocationLine {
	byWarehouse := map[string][]candidate{}
	var warehouses []string
	for _, c := range pool {
		code := c.pos.Warehouse.Code
		if _, ok := byWarehouse[code]; !ok {
			warehouses = append(warehouses, code)
		}
		byWarehouse[code] = append(byWarehouse[code], c)
	}

	capacity := map[string]decimal.Decimal{}
	var total decimal.Decimal
	for _, code := range warehouses {
		var stock decimal.Decimal
		for _, c := range byWarehouse[code] {
			stock = stock.Add(c.pos.OnHand)
		}
		capacity[code] = decimal.Min(stock, budgets[code])
		total = total.Add(capacity[code])
	}
	sort.Slice(warehouses, func(i, j int) bool {
		ci, cj := capacity[warehouses[i]], capacity[warehouses[j]]
		if !ci.Equal(cj) {
			return ci.GreaterThan(cj)
		}
		return warehouses[i] < warehouses[j]
	})

	shares := map[string]decimal.Decimal{}
	if remaining.GreaterThanOrEqual(total) {
		for _, code := range warehouses {
			shares[code] = capacity[code]
		}
	} else {
		// Find the level L with sum(max(capacity - L, 0)) == remaining.
		var sum decimal.Decimal
		k := 0
		var level decimal.Decimal
		for k < len(warehouses) {
			sum = sum.Add(capacity[warehouses[k]])
			k++
			level = sum.Sub(*remaining).Div(decimal.NewFromInt(int64(k)))
			if k == len(warehouses) || level.GreaterThanOrEqual(capacity[warehouses[k]]) {
				break
			}
		}
		var given decimal.Decimal
		for _, code := range warehouses[:k] {
			share := clampZero(capacity[code].Sub(level)).RoundFloor(QuantityScale)
			shares[code] = share
			given = given.Add(share)
		}
		// Hand out the rounding residue one step at a time.
		residue := remaining.Sub(given)
		for residue.IsPositive() {
			progressed := false
			for _, code := range warehouses {
				if !residue.IsPositive() {
					break
				}
				if shares[code].Add(balanceStep).LessThanOrEqual(capacity[code]) {
					shares[code] = shares[code].Add(balanceStep)
					residue = residue.Sub(balanceStep)
					progressed = true
				}
			}
			if !progressed {
				break
			}
		}
	}

	var lines []AllocationLine
	fifo := candidateOrder(StrategyFIFO)
	for _, code := range warehouses {
		share := shares[code]
		cands := byWarehouse[code]
		sortCandidates(cands, fifo)
		for _, c := range cands {
			if !share.IsPositive() {
				break
			}
			qty := decimal.Min(share, c.pos.OnHand)
			share = share.Sub(qty)
			budgets[code] = budgets[code].Sub(qty)
			*remaining = remaining.Sub(qty)
			lines = append(lines, c.line(productCode, qty))
		}
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].WarehouseCode < lines[j].WarehouseCode })
	return lines
}

// ── Ordering ──────────────────────────────────────────────────────────────────

func sortCandidates(cands []candidate, less func(a, b candidate) int) {
	sort.SliceStable(cands, func(i, j int) bool {
		if c := less(cands[i], cands[j]); c != 0 {
			return c < 0
		}
		return positionTieBreak(cands[i].pos, cands[j].pos) < 0
	})
}

// candidateOrder returns the primary comparison for a strategy. Ties fall
// through to positionTieBreak.
func candidateOrder(strategy Strategy) func(a, b candidate) int {
	switch strategy {
	case StrategyNearest:
		return func(a, b candidate) int { return compareFloatPtr(a.distance, b.distance) }
	case StrategyCost:
		return func(a, b candidate) int { return a.landed.Cmp(b.landed) }
	case StrategyFEFO:
		return func(a, b candidate) int {
			if c := compareTimePtr(expiryDate(a.pos), expiryDate(b.pos)); c != 0 {
				return c
			}
			return compareTimePtr(receivedDate(a.pos), receivedDate(b.pos))
		}
	default:
		return func(a, b candidate) int { return compareTimePtr(receivedDate(a.pos), receivedDate(b.pos)) }
	}
}

// receivedDate is the age of a position: the batch manufacture date, or the
// first receipt into the key.
func receivedDate(p StockPosition) *time.Time {
	if p.Batch != nil && p.Batch.ManufactureDate != nil {
		return p.Batch.ManufactureDate
	}
	return p.FirstReceivedAt
}

func expiryDate(p StockPosition) *time.Time {
	if p.Batch == nil {
		return nil
	}
	return p.Batch.ExpiryDate
}

// compareTimePtr orders earlier first; nil sorts last.
func compareTimePtr(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}

func compareFloatPtr(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}

// positionTieBreak orders by warehouse, location, batch and serial code.
func positionTieBreak(a, b StockPosition) int {
	if c := strings.Compare(a.Warehouse.Code, b.Warehouse.Code); c != 0 {
		return c
	}
	if c := strings.Compare(a.LocationCode, b.LocationCode); c != 0 {
		return c
	}
	if c := strings.Compare(a.batchNumber(), b.batchNumber()); c != 0 {
		return c
	}
	return strings.Compare(a.serialNumber(), b.serialNumber())
}

const earthRadiusKm = 6371.0

// haversineKm is the great-circle distance between two points.
func haversineKm(a, b GeoPoint) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(b.Latitude - a.Latitude)
	dLng := rad(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Latitude))*math.Cos(rad(b.Latitude))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// ── Availability ──────────────────────────────────────────────────────────────

func (s *allocationService) CheckMultiProductAvailability(ctx context.Context, orgID int64, items map[string]decimal.Decimal, warehouseCode string) (map[string]bool, error) {
	ctx, span := tracer.Start(ctx, "allocation.CheckMultiProductAvailability", trace.WithAttributes(
		attribute.Int64("org.id", orgID),
		attribute.Int("items", len(items)),
		attribute.String("warehouse.code", warehouseCode),
	))
	defer span.End()

	if orgID <= 0 {
		return nil, invalidf("organization id is required")
	}
	for code, qty := range items {
		if code == "" {
			return nil, invalidf("product code is required")
		}
		if err := validateQuantity(qty); err != nil {
			return nil, err
		}
	}
	if warehouseCode != "" {
		if _, err := s.stock.GetWarehouse(ctx, orgID, warehouseCode); err != nil {
			return nil, err
		}
	}

	productCodes := make([]string, 0, len(items))
	for code := range items {
		productCodes = append(productCodes, code)
	}
	views, err := s.loadViews(ctx, orgID, productCodes, warehouseCode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out := make(map[string]bool, len(items))
	for i, code := range productCodes {
		view := views[i]
		switch {
		case view == nil:
			out[code] = false
		case !view.product.IsInventoryItem:
			out[code] = true
		default:
			var available decimal.Decimal
			for _, wv := range view.warehouses {
				available = available.Add(wv.available)
			}
			out[code] = available.GreaterThanOrEqual(items[code])
		}
	}
	return out, nil
}

// loadViews loads one view per product code concurrently. Unknown products
// leave a nil entry.
func (s *allocationService) loadViews(ctx context.Context, orgID int64, productCodes []string, warehouseCode string) ([]*productView, error) {
	views := make([]*productView, len(productCodes))
	g, gctx := errgroup.WithContext(ctx)
	for i, code := range productCodes {
		g.Go(func() error {
			v, err := s.loadView(gctx, orgID, code, warehouseCode)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return nil
				}
				return fmt.Errorf("failed to load availability for %s: %w", code, err)
			}
			views[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}
