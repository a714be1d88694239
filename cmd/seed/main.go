// seed loads a small demo organization: products, warehouses, locations,
// batches, planning figures and opening stock. Safe to re-run; master data is
// upserted and opening receipts replay on their idempotency keys.
//
// Usage: go run ./cmd/seed [-org 1]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"erp-inventory/internal/app"
	"erp-inventory/internal/config"
	"erp-inventory/internal/core"
	"erp-inventory/internal/db"
	"erp-inventory/internal/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type opening struct {
	ref  core.StockRef
	qty  string
	cost string
}

var openings = []opening{
	{core.StockRef{ProductCode: "P-100", WarehouseCode: "MAIN", LocationCode: "A-01"}, "120", "4.20"},
	{core.StockRef{ProductCode: "P-100", WarehouseCode: "EAST"}, "40", "4.35"},
	{core.StockRef{ProductCode: "P-100", WarehouseCode: "WEST"}, "25", "4.10"},
	{core.StockRef{ProductCode: "P-200", WarehouseCode: "MAIN", BatchNumber: "LOT-2601"}, "60", "11.00"},
	{core.StockRef{ProductCode: "P-200", WarehouseCode: "MAIN", BatchNumber: "LOT-2602"}, "30", "11.40"},
	{core.StockRef{ProductCode: "P-300", WarehouseCode: "EAST"}, "8", "52.00"},
}

func main() {
	org := flag.Int64("org", 1, "organization id")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.ServiceName+"-seed", cfg.LogLevel, cfg.IsDevelopment())
	log := logger.Logger

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect")
	}
	defer pool.Close()

	if err := seedMasterData(ctx, pool, *org); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed master data")
	}

	svc := app.NewPostgresAppService(pool, app.Options{LockTimeout: cfg.LockTimeout})
	for _, o := range openings {
		res, err := svc.ReceiveStock(ctx, app.ReceiveStockRequest{
			OrganizationID: *org,
			Ref:            o.ref,
			Quantity:       decimal.RequireFromString(o.qty),
			UnitCost:       decimal.RequireFromString(o.cost),
			TxnType:        string(core.TxnManualReceipt),
			ReferenceID:    "SEED",
			IdempotencyKey: "SEED-OPEN-" + o.ref.String(),
		})
		if err != nil {
			log.Fatal().Err(err).Str("ref", o.ref.String()).Msg("Failed to post opening balance")
		}
		log.Info().
			Str("ref", o.ref.String()).
			Bool("replayed", res.Replayed).
			Str("on_hand", res.Item.QuantityOnHand.String()).
			Msg("Opening balance")
	}

	log.Info().Int64("organization_id", *org).Msg("Seed data restored successfully.")
}

func seedMasterData(ctx context.Context, pool *pgxpool.Pool, orgID int64) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	steps := []struct {
		name string
		sql  string
	}{
		{"products", `
			INSERT INTO products (organization_id, code, name, unit, sale_price, cost_price, reorder_level, is_inventory_item) VALUES
				($1, 'P-100', 'Widget',           'ea', 9.50,  4.20,  50, true),
				($1, 'P-200', 'Coolant 5L',       'ea', 24.00, 11.00, 40, true),
				($1, 'P-300', 'Gearbox assembly', 'ea', 95.00, 52.00, 10, true),
				($1, 'SVC-1', 'Installation',     'hr', 65.00, 0,     0,  false)
			ON CONFLICT (organization_id, code) DO UPDATE SET
				name = EXCLUDED.name, reorder_level = EXCLUDED.reorder_level, is_active = true`},
		{"warehouses", `
			INSERT INTO warehouses (organization_id, code, name, latitude, longitude, handling_cost) VALUES
				($1, 'MAIN', 'Main DC (New York)',     40.7128, -74.0060,  0.50),
				($1, 'EAST', 'East depot (Boston)',    42.3601, -71.0589,  0.25),
				($1, 'WEST', 'West depot (Denver)',    39.7392, -104.9903, 0.75)
			ON CONFLICT (organization_id, code) DO UPDATE SET
				name = EXCLUDED.name, latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
				handling_cost = EXCLUDED.handling_cost, is_active = true`},
		{"locations", `
			INSERT INTO locations (warehouse_id, code, name)
			SELECT w.id, l.code, l.name
			FROM warehouses w
			CROSS JOIN (VALUES ('A-01', 'Aisle A bay 1'), ('B-01', 'Aisle B bay 1')) AS l(code, name)
			WHERE w.organization_id = $1 AND w.code = 'MAIN'
			ON CONFLICT (warehouse_id, code) DO NOTHING`},
		{"batches", `
			INSERT INTO batches (organization_id, product_id, batch_number, manufacture_date, expiry_date)
			SELECT $1::bigint, p.id, b.batch_number, b.mfg::date, b.exp::date
			FROM products p
			CROSS JOIN (VALUES
				('LOT-2601', '2026-01-10', '2027-01-10'),
				('LOT-2602', '2026-03-05', '2026-12-31')
			) AS b(batch_number, mfg, exp)
			WHERE p.organization_id = $1 AND p.code = 'P-200'
			ON CONFLICT (organization_id, product_id, batch_number, serial_number) DO NOTHING`},
		{"safety stock", `
			INSERT INTO safety_stock_levels (organization_id, product_id, warehouse_id, quantity)
			SELECT $1::bigint, p.id, w.id, s.qty
			FROM (VALUES ('P-100', 'MAIN', 20), ('P-100', 'EAST', 5), ('P-200', 'MAIN', 10)) AS s(product, warehouse, qty)
			JOIN products p   ON p.organization_id = $1 AND p.code = s.product
			JOIN warehouses w ON w.organization_id = $1 AND w.code = s.warehouse
			ON CONFLICT (organization_id, product_id, warehouse_id) DO UPDATE SET quantity = EXCLUDED.quantity`},
		{"commitments reset", `
			DELETE FROM stock_commitments WHERE organization_id = $1 AND order_reference LIKE 'SEED-%'`},
		{"expected receipts reset", `
			DELETE FROM expected_receipts WHERE organization_id = $1 AND source_reference LIKE 'SEED-%'`},
		{"forecasts reset", `
			DELETE FROM demand_forecasts WHERE organization_id = $1`},
		{"commitments", `
			INSERT INTO stock_commitments (organization_id, product_id, warehouse_id, order_reference, quantity)
			SELECT $1::bigint, p.id, w.id, c.ref, c.qty
			FROM (VALUES ('P-100', 'MAIN', 'SEED-SO-1001', 30), ('P-200', 'MAIN', 'SEED-SO-1002', 12)) AS c(product, warehouse, ref, qty)
			JOIN products p   ON p.organization_id = $1 AND p.code = c.product
			JOIN warehouses w ON w.organization_id = $1 AND w.code = c.warehouse`},
		{"expected receipts", `
			INSERT INTO expected_receipts (organization_id, product_id, warehouse_id, source_reference, expected_date, quantity)
			SELECT $1::bigint, p.id, w.id, r.ref, CURRENT_DATE + r.days, r.qty
			FROM (VALUES ('P-100', 'EAST', 'SEED-PO-2001', 5, 50), ('P-300', 'WEST', 'SEED-PO-2002', 12, 6)) AS r(product, warehouse, ref, days, qty)
			JOIN products p   ON p.organization_id = $1 AND p.code = r.product
			JOIN warehouses w ON w.organization_id = $1 AND w.code = r.warehouse`},
		{"forecasts", `
			INSERT INTO demand_forecasts (organization_id, product_id, warehouse_id, demand_date, quantity)
			SELECT $1::bigint, p.id, w.id, CURRENT_DATE + f.days, f.qty
			FROM (VALUES ('P-100', 'MAIN', 3, 15), ('P-100', 'EAST', 8, 10), ('P-200', 'MAIN', 4, 6)) AS f(product, warehouse, days, qty)
			JOIN products p   ON p.organization_id = $1 AND p.code = f.product
			JOIN warehouses w ON w.organization_id = $1 AND w.code = f.warehouse`},
	}

	for _, s := range steps {
		if err := execStep(ctx, tx, s.name, s.sql, orgID); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func execStep(ctx context.Context, tx pgx.Tx, name, sql string, orgID int64) error {
	logger.Logger.Info().Msgf("Seeding %s...", name)
	if _, err := tx.Exec(ctx, sql, orgID); err != nil {
		return fmt.Errorf("failed to seed %s: %w", name, err)
	}
	return nil
}
