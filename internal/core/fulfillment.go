package core

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxCandidateWarehouses bounds the combinations enumerated per request.
const maxCandidateWarehouses = 12

type FulfillmentLine struct {
	ProductCode string          `json:"product_code"`
	Quantity    decimal.Decimal `json:"quantity"`
}

type FulfillmentRequest struct {
	Lines              []FulfillmentLine `json:"lines"`
	Priority           Priority          `json:"priority"`
	PreferredWarehouse string            `json:"preferred_warehouse,omitempty"`
	ShipTo             *GeoPoint         `json:"ship_to,omitempty"`
}

// Shipment is everything one warehouse sends for an order.
type Shipment struct {
	WarehouseCode string           `json:"warehouse_code"`
	Lines         []AllocationLine `json:"lines"`
	DistanceKm    *float64         `json:"distance_km,omitempty"`
}

// FulfillmentOption is one way to ship a whole order. Options are ranked by
// shipment count, then cost and distance.
type FulfillmentOption struct {
	Rank              int             `json:"rank"`
	Shipments         []Shipment      `json:"shipments"`
	ShipmentCount     int             `json:"shipment_count"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	MaxDistanceKm     *float64        `json:"max_distance_km,omitempty"`
	EstimatedShipDate time.Time       `json:"estimated_ship_date"`

	key string
}

func (s *allocationService) GetFulfillmentOptions(ctx context.Context, orgID int64, req FulfillmentRequest) ([]FulfillmentOption, error) {
	ctx, span := tracer.Start(ctx, "allocation.GetFulfillmentOptions", trace.WithAttributes(
		attribute.Int64("org.id", orgID),
		attribute.Int("lines", len(req.Lines)),
	))
	defer span.End()

	if req.Priority == "" {
		req.Priority = PriorityStandard
	}
	demand, productCodes, err := validateFulfillment(orgID, req)
	if err != nil {
		return nil, err
	}

	views, err := s.loadViews(ctx, orgID, productCodes, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var stocked []*productView
	for _, v := range views {
		if v == nil {
			return []FulfillmentOption{}, nil
		}
		if v.product.IsInventoryItem {
			stocked = append(stocked, v)
		}
	}
	asOf := s.asOf()
	if len(stocked) == 0 {
		return []FulfillmentOption{{Rank: 1, Shipments: []Shipment{}, EstimatedShipDate: asOf}}, nil
	}

	universe := candidateWarehouses(stocked, req.Priority)
	strategy := StrategyCost
	if req.Priority.speedFirst() && req.ShipTo != nil {
		strategy = StrategyNearest
	}

	seen := map[string]bool{}
	var options []FulfillmentOption
	maxSize := min(s.opts.MaxSplitShipments, len(universe))
	for size := 1; size <= maxSize; size++ {
		combinations(len(universe), size, func(idx []int) {
			subset := make(map[string]bool, len(idx))
			for _, i := range idx {
				subset[universe[i]] = true
			}
			if !feasible(stocked, demand, subset, req.Priority) {
				return
			}
			opt, ok := buildOption(stocked, demand, subset, req, strategy)
			if !ok || seen[opt.key] {
				return
			}
			seen[opt.key] = true
			opt.EstimatedShipDate = asOf
			options = append(options, opt)
		})
	}

	rankOptions(options, req.Priority.speedFirst())
	if len(options) > s.opts.MaxFulfillmentOptions {
		options = options[:s.opts.MaxFulfillmentOptions]
	}
	for i := range options {
		options[i].Rank = i + 1
	}
	span.SetAttributes(attribute.Int("options", len(options)))
	if options == nil {
		options = []FulfillmentOption{}
	}
	return options, nil
}

func validateFulfillment(orgID int64, req FulfillmentRequest) (map[string]decimal.Decimal, []string, error) {
	if orgID <= 0 {
		return nil, nil, invalidf("organization id is required")
	}
	if len(req.Lines) == 0 {
		return nil, nil, invalidf("at least one line is required")
	}
	if !req.Priority.IsValid() {
		return nil, nil, invalidf("unknown priority %q", req.Priority)
	}
	demand := map[string]decimal.Decimal{}
	var productCodes []string
	for _, l := range req.Lines {
		if l.ProductCode == "" {
			return nil, nil, invalidf("product code is required")
		}
		if err := validateQuantity(l.Quantity); err != nil {
			return nil, nil, err
		}
		if _, ok := demand[l.ProductCode]; !ok {
			productCodes = append(productCodes, l.ProductCode)
		}
		demand[l.ProductCode] = demand[l.ProductCode].Add(l.Quantity)
	}
	return demand, productCodes, nil
}

// candidateWarehouses returns the warehouses that can ship anything, most
// available first, capped at maxCandidateWarehouses.
func candidateWarehouses(views []*productView, p Priority) []string {
	totals := map[string]decimal.Decimal{}
	for _, v := range views {
		for _, wv := range v.warehouses {
			if c := wv.capacity(p); c.IsPositive() {
				totals[wv.warehouse.Code] = totals[wv.warehouse.Code].Add(c)
			}
		}
	}
	out := make([]string, 0, len(totals))
	for code := range totals {
		out = append(out, code)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := totals[out[i]].Cmp(totals[out[j]]); c != 0 {
			return c > 0
		}
		return out[i] < out[j]
	})
	if len(out) > maxCandidateWarehouses {
		out = out[:maxCandidateWarehouses]
	}
	return out
}

func feasible(views []*productView, demand map[string]decimal.Decimal, subset map[string]bool, p Priority) bool {
	for _, v := range views {
		var capacity decimal.Decimal
		for _, wv := range v.warehouses {
			if subset[wv.warehouse.Code] {
				capacity = capacity.Add(wv.capacity(p))
			}
		}
		if capacity.LessThan(demand[v.product.Code]) {
			return false
		}
	}
	return true
}

func buildOption(views []*productView, demand map[string]decimal.Decimal, subset map[string]bool, req FulfillmentRequest, strategy Strategy) (FulfillmentOption, bool) {
	byWarehouse := map[string]*Shipment{}
	var opt FulfillmentOption
	for _, v := range views {
		lines := planAllocation(v, AllocationRequest{
			ProductCode:        v.product.Code,
			Quantity:           demand[v.product.Code],
			Priority:           req.Priority,
			PreferredWarehouse: req.PreferredWarehouse,
			ShipTo:             req.ShipTo,
		}, strategy, subset)

		var allocated decimal.Decimal
		for _, l := range lines {
			allocated = allocated.Add(l.Quantity)
			sh, ok := byWarehouse[l.WarehouseCode]
			if !ok {
				sh = &Shipment{WarehouseCode: l.WarehouseCode, DistanceKm: l.DistanceKm}
				byWarehouse[l.WarehouseCode] = sh
			}
			sh.Lines = append(sh.Lines, l)
			opt.TotalCost = opt.TotalCost.Add(l.Quantity.Mul(l.LandedCost))
		}
		if !allocated.Equal(demand[v.product.Code]) {
			return FulfillmentOption{}, false
		}
	}

	used := make([]string, 0, len(byWarehouse))
	for code := range byWarehouse {
		used = append(used, code)
	}
	sort.Strings(used)
	for _, code := range used {
		sh := byWarehouse[code]
		opt.Shipments = append(opt.Shipments, *sh)
		if sh.DistanceKm != nil && (opt.MaxDistanceKm == nil || *sh.DistanceKm > *opt.MaxDistanceKm) {
			d := *sh.DistanceKm
			opt.MaxDistanceKm = &d
		}
	}
	opt.ShipmentCount = len(used)
	opt.key = strings.Join(used, ",")
	return opt, true
}

func rankOptions(options []FulfillmentOption, speedFirst bool) {
	sort.SliceStable(options, func(i, j int) bool {
		a, b := options[i], options[j]
		if a.ShipmentCount != b.ShipmentCount {
			return a.ShipmentCount < b.ShipmentCount
		}
		byCost := a.TotalCost.Cmp(b.TotalCost)
		byDistance := compareFloatPtr(a.MaxDistanceKm, b.MaxDistanceKm)
		first, second := byCost, byDistance
		if speedFirst {
			first, second = byDistance, byCost
		}
		if first != 0 {
			return first < 0
		}
		if second != 0 {
			return second < 0
		}
		return a.key < b.key
	})
}

// combinations calls fn with every k-subset of [0, n) in lexicographic order.
func combinations(n, k int, fn func(idx []int)) {
	if k > n || k <= 0 {
		return
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		fn(idx)
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
