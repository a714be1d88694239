package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// SupplyEvent is a dated quantity expected to arrive at (receipt) or leave
// (demand) a warehouse.
type SupplyEvent struct {
	WarehouseCode string          `json:"warehouse_code"`
	Date          time.Time       `json:"date"`
	Quantity      decimal.Decimal `json:"quantity"`
}

// PlanningFigures are the non-ledger inputs of ATP for one product. Allocated
// and SafetyStock are keyed by warehouse code.
type PlanningFigures struct {
	Allocated        map[string]decimal.Decimal
	SafetyStock      map[string]decimal.Decimal
	ExpectedReceipts []SupplyEvent
	ExpectedDemand   []SupplyEvent
}

func (f *PlanningFigures) allocated(warehouse string) decimal.Decimal {
	if f == nil {
		return decimal.Zero
	}
	return f.Allocated[warehouse]
}

func (f *PlanningFigures) safetyStock(warehouse string) decimal.Decimal {
	if f == nil {
		return decimal.Zero
	}
	return f.SafetyStock[warehouse]
}

// PlanningSource supplies commitments, safety stock and the expected supply
// and demand calendar. Every outstanding expected receipt is returned,
// overdue or beyond `to`; demand is limited to [from, to].
type PlanningSource interface {
	Figures(ctx context.Context, orgID int64, productCode string, from, to time.Time) (*PlanningFigures, error)
}

// ── In-memory ─────────────────────────────────────────────────────────────────

// StaticPlanning is a PlanningSource fed directly by the caller.
type StaticPlanning struct {
	mu      sync.RWMutex
	figures map[string]*PlanningFigures // org:product
}

func NewStaticPlanning() *StaticPlanning {
	return &StaticPlanning{figures: map[string]*PlanningFigures{}}
}

func (p *StaticPlanning) entry(orgID int64, productCode string) *PlanningFigures {
	k := orgCode(orgID, productCode)
	f, ok := p.figures[k]
	if !ok {
		f = &PlanningFigures{Allocated: map[string]decimal.Decimal{}, SafetyStock: map[string]decimal.Decimal{}}
		p.figures[k] = f
	}
	return f
}

// SetAllocated records the quantity committed to open orders.
func (p *StaticPlanning) SetAllocated(orgID int64, productCode, warehouseCode string, qty decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entry(orgID, productCode).Allocated[warehouseCode] = qty
}

func (p *StaticPlanning) SetSafetyStock(orgID int64, productCode, warehouseCode string, qty decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entry(orgID, productCode).SafetyStock[warehouseCode] = qty
}

func (p *StaticPlanning) AddExpectedReceipt(orgID int64, productCode string, ev SupplyEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.entry(orgID, productCode)
	f.ExpectedReceipts = append(f.ExpectedReceipts, ev)
}

func (p *StaticPlanning) AddExpectedDemand(orgID int64, productCode string, ev SupplyEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.entry(orgID, productCode)
	f.ExpectedDemand = append(f.ExpectedDemand, ev)
}

func (p *StaticPlanning) Figures(_ context.Context, orgID int64, productCode string, from, to time.Time) (*PlanningFigures, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := &PlanningFigures{Allocated: map[string]decimal.Decimal{}, SafetyStock: map[string]decimal.Decimal{}}
	f, ok := p.figures[orgCode(orgID, productCode)]
	if !ok {
		return out, nil
	}
	for k, v := range f.Allocated {
		out.Allocated[k] = v
	}
	for k, v := range f.SafetyStock {
		out.SafetyStock[k] = v
	}
	out.ExpectedReceipts = append(out.ExpectedReceipts, f.ExpectedReceipts...)
	for _, ev := range f.ExpectedDemand {
		if !ev.Date.Before(from) && !ev.Date.After(to) {
			out.ExpectedDemand = append(out.ExpectedDemand, ev)
		}
	}
	sortEvents(out.ExpectedReceipts)
	sortEvents(out.ExpectedDemand)
	return out, nil
}

func sortEvents(evs []SupplyEvent) {
	sort.SliceStable(evs, func(i, j int) bool {
		if !evs[i].Date.Equal(evs[j].Date) {
			return evs[i].Date.Before(evs[j].Date)
		}
		return evs[i].WarehouseCode < evs[j].WarehouseCode
	})
}

// ── Postgres ──────────────────────────────────────────────────────────────────

// PostgresPlanning reads stock_commitments, safety_stock_levels,
// expected_receipts and demand_forecasts.
type PostgresPlanning struct {
	pool *pgxpool.Pool
}

func NewPostgresPlanning(pool *pgxpool.Pool) *PostgresPlanning {
	return &PostgresPlanning{pool: pool}
}

func (p *PostgresPlanning) Figures(ctx context.Context, orgID int64, productCode string, from, to time.Time) (*PlanningFigures, error) {
	out := &PlanningFigures{Allocated: map[string]decimal.Decimal{}, SafetyStock: map[string]decimal.Decimal{}}

	if err := p.quantities(ctx, out.Allocated, `
		SELECT w.code, SUM(sc.quantity)
		FROM stock_commitments sc
		JOIN products p   ON p.id = sc.product_id
		JOIN warehouses w ON w.id = sc.warehouse_id
		WHERE sc.organization_id = $1 AND p.code = $2 AND sc.status = 'OPEN'
		GROUP BY w.code
	`, orgID, productCode); err != nil {
		return nil, fmt.Errorf("failed to load stock commitments: %w", err)
	}

	if err := p.quantities(ctx, out.SafetyStock, `
		SELECT w.code, ss.quantity
		FROM safety_stock_levels ss
		JOIN products p   ON p.id = ss.product_id
		JOIN warehouses w ON w.id = ss.warehouse_id
		WHERE ss.organization_id = $1 AND p.code = $2
	`, orgID, productCode); err != nil {
		return nil, fmt.Errorf("failed to load safety stock: %w", err)
	}

	var err error
	out.ExpectedReceipts, err = p.events(ctx, `
		SELECT w.code, er.expected_date, er.quantity
		FROM expected_receipts er
		JOIN products p   ON p.id = er.product_id
		JOIN warehouses w ON w.id = er.warehouse_id
		WHERE er.organization_id = $1 AND p.code = $2 AND er.received = false
		ORDER BY er.expected_date, w.code
	`, orgID, productCode)
	if err != nil {
		return nil, fmt.Errorf("failed to load expected receipts: %w", err)
	}

	out.ExpectedDemand, err = p.events(ctx, `
		SELECT w.code, df.demand_date, df.quantity
		FROM demand_forecasts df
		JOIN products p   ON p.id = df.product_id
		JOIN warehouses w ON w.id = df.warehouse_id
		WHERE df.organization_id = $1 AND p.code = $2
		  AND df.demand_date BETWEEN $3 AND $4
		ORDER BY df.demand_date, w.code
	`, orgID, productCode, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load demand forecast: %w", err)
	}
	return out, nil
}

func (p *PostgresPlanning) quantities(ctx context.Context, into map[string]decimal.Decimal, sql string, args ...any) error {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var code string
		var qty decimal.Decimal
		if err := rows.Scan(&code, &qty); err != nil {
			return err
		}
		into[code] = qty
	}
	return rows.Err()
}

func (p *PostgresPlanning) events(ctx context.Context, sql string, args ...any) ([]SupplyEvent, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SupplyEvent
	for rows.Next() {
		var ev SupplyEvent
		if err := rows.Scan(&ev.WarehouseCode, &ev.Date, &ev.Quantity); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
