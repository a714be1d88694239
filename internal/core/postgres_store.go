package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the pgx-backed LedgerStore. Snapshot rows are locked with
// SELECT ... FOR UPDATE; lock waits are bounded per transaction with
// lock_timeout.
type PostgresStore struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func NewPostgresStore(pool *pgxpool.Pool, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{pool: pool, lockTimeout: lockTimeout}
}

// ── Transactions ──────────────────────────────────────────────────────────────

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if s.lockTimeout > 0 {
		if _, err := tx.Exec(ctx, "SELECT set_config('lock_timeout', $1, true)",
			fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	if err := fn(&pgLedgerTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classifyPgError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

type pgLedgerTx struct {
	tx pgx.Tx
}

func (t *pgLedgerTx) ResolveKey(ctx context.Context, orgID int64, ref StockRef) (StockKey, error) {
	return resolveStockKey(ctx, t.tx, orgID, ref)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func resolveStockKey(ctx context.Context, q querier, orgID int64, ref StockRef) (StockKey, error) {
	key := StockKey{OrganizationID: orgID, Ref: ref}

	if err := q.QueryRow(ctx,
		"SELECT id, is_inventory_item FROM products WHERE organization_id = $1 AND code = $2 AND is_active = true",
		orgID, ref.ProductCode,
	).Scan(&key.ProductID, &key.TracksInventory); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockKey{}, notFoundf("product %s not found for organization %d", ref.ProductCode, orgID)
		}
		return StockKey{}, fmt.Errorf("failed to resolve product: %w", err)
	}

	if err := q.QueryRow(ctx,
		"SELECT id FROM warehouses WHERE organization_id = $1 AND code = $2 AND is_active = true",
		orgID, ref.WarehouseCode,
	).Scan(&key.WarehouseID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockKey{}, notFoundf("warehouse %s not found for organization %d", ref.WarehouseCode, orgID)
		}
		return StockKey{}, fmt.Errorf("failed to resolve warehouse: %w", err)
	}

	if ref.LocationCode != "" {
		var id int64
		if err := q.QueryRow(ctx,
			"SELECT id FROM locations WHERE warehouse_id = $1 AND code = $2",
			key.WarehouseID, ref.LocationCode,
		).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return StockKey{}, notFoundf("location %s not found in warehouse %s", ref.LocationCode, ref.WarehouseCode)
			}
			return StockKey{}, fmt.Errorf("failed to resolve location: %w", err)
		}
		key.LocationID = &id
	}

	if ref.hasBatch() {
		var id int64
		if err := q.QueryRow(ctx, `
			SELECT id FROM batches
			WHERE organization_id = $1 AND product_id = $2 AND batch_number = $3 AND serial_number = $4
		`, orgID, key.ProductID, ref.BatchNumber, ref.SerialNumber).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return StockKey{}, notFoundf("batch %s not found for product %s", ref.String(), ref.ProductCode)
			}
			return StockKey{}, fmt.Errorf("failed to resolve batch: %w", err)
		}
		key.BatchID = &id
	}
	return key, nil
}

func (t *pgLedgerTx) LockItem(ctx context.Context, key StockKey) (*InventoryItem, error) {
	var itemID int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO inventory_items (organization_id, product_id, warehouse_id, location_id, batch_id, quantity_on_hand, unit_cost)
		VALUES ($1, $2, $3, $4, $5, 0, 0)
		ON CONFLICT ON CONSTRAINT inventory_items_key DO UPDATE SET updated_at = inventory_items.updated_at
		RETURNING id
	`, key.OrganizationID, key.ProductID, key.WarehouseID, key.LocationID, key.BatchID).Scan(&itemID)
	if err != nil {
		return nil, classifyPgError(fmt.Errorf("failed to upsert inventory item: %w", err))
	}

	item := InventoryItem{Ref: key.Ref}
	err = t.tx.QueryRow(ctx, `
		SELECT id, organization_id, product_id, warehouse_id, location_id, batch_id,
		       quantity_on_hand, unit_cost, updated_at
		FROM inventory_items WHERE id = $1 FOR UPDATE
	`, itemID).Scan(&item.ID, &item.OrganizationID, &item.ProductID, &item.WarehouseID,
		&item.LocationID, &item.BatchID, &item.QuantityOnHand, &item.UnitCost, &item.UpdatedAt)
	if err != nil {
		return nil, classifyPgError(fmt.Errorf("failed to lock inventory item: %w", err))
	}
	return &item, nil
}

const ledgerColumns = `
	sl.id, sl.organization_id, sl.product_id, sl.warehouse_id, sl.location_id, sl.batch_id,
	p.code, w.code, COALESCE(l.code, ''), COALESCE(b.batch_number, ''), COALESCE(b.serial_number, ''),
	sl.txn_type, sl.reference_id, COALESCE(sl.idempotency_key, ''), sl.txn_date,
	sl.qty_in, sl.qty_out, sl.unit_cost, sl.created_at`

const ledgerJoins = `
	FROM stock_ledger sl
	JOIN products p   ON p.id = sl.product_id
	JOIN warehouses w ON w.id = sl.warehouse_id
	LEFT JOIN locations l ON l.id = sl.location_id
	LEFT JOIN batches b   ON b.id = sl.batch_id`

func scanLedgerEntry(row pgx.Row) (*LedgerEntry, error) {
	var e LedgerEntry
	var txnType string
	err := row.Scan(&e.ID, &e.OrganizationID, &e.ProductID, &e.WarehouseID, &e.LocationID, &e.BatchID,
		&e.Ref.ProductCode, &e.Ref.WarehouseCode, &e.Ref.LocationCode, &e.Ref.BatchNumber, &e.Ref.SerialNumber,
		&txnType, &e.ReferenceID, &e.IdempotencyKey, &e.TxnDate,
		&e.QtyIn, &e.QtyOut, &e.UnitCost, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.TxnType = TxnType(txnType)
	return &e, nil
}

func (t *pgLedgerTx) FindEntryByIdempotencyKey(ctx context.Context, orgID int64, key string) (*LedgerEntry, error) {
	row := t.tx.QueryRow(ctx, "SELECT"+ledgerColumns+ledgerJoins+`
		WHERE sl.organization_id = $1 AND sl.idempotency_key = $2`, orgID, key)
	e, err := scanLedgerEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classifyPgError(fmt.Errorf("failed to look up idempotency key: %w", err))
	}
	return e, nil
}

func (t *pgLedgerTx) InsertEntry(ctx context.Context, e *LedgerEntry) error {
	var idemKey *string
	if e.IdempotencyKey != "" {
		idemKey = &e.IdempotencyKey
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO stock_ledger (organization_id, product_id, warehouse_id, location_id, batch_id,
		                          txn_type, reference_id, idempotency_key, txn_date, qty_in, qty_out, unit_cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (organization_id, idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING
		RETURNING id, created_at
	`, e.OrganizationID, e.ProductID, e.WarehouseID, e.LocationID, e.BatchID,
		string(e.TxnType), e.ReferenceID, idemKey, e.TxnDate.Format("2006-01-02"),
		e.QtyIn, e.QtyOut, e.UnitCost,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: key %q already recorded", ErrIdempotencyConflict, e.IdempotencyKey)
		}
		return classifyPgError(fmt.Errorf("failed to insert stock ledger entry: %w", err))
	}
	return nil
}

func (t *pgLedgerTx) SaveItem(ctx context.Context, item *InventoryItem) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE inventory_items
		SET quantity_on_hand = $1, unit_cost = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING updated_at
	`, item.QuantityOnHand, item.UnitCost, item.ID).Scan(&item.UpdatedAt)
	if err != nil {
		return classifyPgError(fmt.Errorf("failed to update inventory item: %w", err))
	}
	return nil
}

// ── Reads ─────────────────────────────────────────────────────────────────────

func (s *PostgresStore) GetWarehouse(ctx context.Context, orgID int64, code string) (*Warehouse, error) {
	var w Warehouse
	var lat, lng *float64
	err := s.pool.QueryRow(ctx, `
		SELECT id, organization_id, code, name, latitude, longitude, handling_cost, is_active
		FROM warehouses
		WHERE organization_id = $1 AND code = $2 AND is_active = true
	`, orgID, code).Scan(&w.ID, &w.OrganizationID, &w.Code, &w.Name, &lat, &lng, &w.HandlingCost, &w.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("warehouse %s not found for organization %d", code, orgID)
		}
		return nil, fmt.Errorf("failed to fetch warehouse: %w", err)
	}
	w.Coordinates = geoPoint(lat, lng)
	return &w, nil
}

func geoPoint(lat, lng *float64) *GeoPoint {
	if lat == nil || lng == nil {
		return nil
	}
	return &GeoPoint{Latitude: *lat, Longitude: *lng}
}

func (s *PostgresStore) getProduct(ctx context.Context, orgID int64, code string) (*Product, error) {
	var p Product
	err := s.pool.QueryRow(ctx, `
		SELECT id, organization_id, code, name, unit, sale_price, cost_price, reorder_level,
		       is_inventory_item, is_active
		FROM products
		WHERE organization_id = $1 AND code = $2 AND is_active = true
	`, orgID, code).Scan(&p.ID, &p.OrganizationID, &p.Code, &p.Name, &p.Unit, &p.SalePrice,
		&p.CostPrice, &p.ReorderLevel, &p.IsInventoryItem, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("product %s not found for organization %d", code, orgID)
		}
		return nil, fmt.Errorf("failed to fetch product: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ProductPositions(ctx context.Context, orgID int64, productCode, warehouseCode string) (*Product, []StockPosition, error) {
	p, err := s.getProduct(ctx, orgID, productCode)
	if err != nil {
		return nil, nil, err
	}
	var warehouseID *int64
	if warehouseCode != "" {
		w, err := s.GetWarehouse(ctx, orgID, warehouseCode)
		if err != nil {
			return nil, nil, err
		}
		warehouseID = &w.ID
	}

	rows, err := s.pool.Query(ctx, `
		SELECT w.id, w.organization_id, w.code, w.name, w.latitude, w.longitude, w.handling_cost, w.is_active,
		       COALESCE(l.code, ''),
		       b.id, b.batch_number, b.serial_number, b.manufacture_date, b.expiry_date,
		       ii.quantity_on_hand, ii.unit_cost,
		       (SELECT MIN(sl.created_at) FROM stock_ledger sl
		         WHERE sl.organization_id = ii.organization_id AND sl.product_id = ii.product_id
		           AND sl.warehouse_id = ii.warehouse_id
		           AND sl.location_id IS NOT DISTINCT FROM ii.location_id
		           AND sl.batch_id IS NOT DISTINCT FROM ii.batch_id
		           AND sl.qty_in > 0)
		FROM inventory_items ii
		JOIN warehouses w ON w.id = ii.warehouse_id AND w.is_active = true
		LEFT JOIN locations l ON l.id = ii.location_id
		LEFT JOIN batches b   ON b.id = ii.batch_id
		WHERE ii.organization_id = $1 AND ii.product_id = $2
		  AND ($3::bigint IS NULL OR ii.warehouse_id = $3)
		ORDER BY w.code, COALESCE(l.code, ''), COALESCE(b.batch_number, ''), COALESCE(b.serial_number, '')
	`, orgID, p.ID, warehouseID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query stock positions: %w", err)
	}
	defer rows.Close()

	var positions []StockPosition
	for rows.Next() {
		var pos StockPosition
		var lat, lng *float64
		var batchID *int64
		var batchNumber, serialNumber *string
		var mfg, exp *time.Time
		if err := rows.Scan(&pos.Warehouse.ID, &pos.Warehouse.OrganizationID, &pos.Warehouse.Code,
			&pos.Warehouse.Name, &lat, &lng, &pos.Warehouse.HandlingCost, &pos.Warehouse.IsActive,
			&pos.LocationCode,
			&batchID, &batchNumber, &serialNumber, &mfg, &exp,
			&pos.OnHand, &pos.UnitCost, &pos.FirstReceivedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan stock position: %w", err)
		}
		pos.Warehouse.Coordinates = geoPoint(lat, lng)
		if batchID != nil {
			pos.Batch = &Batch{
				ID:              *batchID,
				OrganizationID:  orgID,
				ProductID:       p.ID,
				BatchNumber:     deref(batchNumber),
				SerialNumber:    deref(serialNumber),
				ManufactureDate: mfg,
				ExpiryDate:      exp,
			}
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read stock positions: %w", err)
	}
	return p, positions, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *PostgresStore) GetInventoryItem(ctx context.Context, orgID int64, ref StockRef) (*InventoryItem, error) {
	key, err := resolveStockKey(ctx, s.pool, orgID, ref)
	if err != nil {
		return nil, err
	}
	item := InventoryItem{Ref: ref}
	err = s.pool.QueryRow(ctx, `
		SELECT id, organization_id, product_id, warehouse_id, location_id, batch_id,
		       quantity_on_hand, unit_cost, updated_at
		FROM inventory_items
		WHERE organization_id = $1 AND product_id = $2 AND warehouse_id = $3
		  AND location_id IS NOT DISTINCT FROM $4 AND batch_id IS NOT DISTINCT FROM $5
	`, orgID, key.ProductID, key.WarehouseID, key.LocationID, key.BatchID).Scan(
		&item.ID, &item.OrganizationID, &item.ProductID, &item.WarehouseID, &item.LocationID,
		&item.BatchID, &item.QuantityOnHand, &item.UnitCost, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("no stock recorded for %s", ref.String())
		}
		return nil, fmt.Errorf("failed to fetch inventory item: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) ListLedgerEntries(ctx context.Context, f LedgerFilter) ([]LedgerEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLedgerLimit
	}
	rows, err := s.pool.Query(ctx, "SELECT"+ledgerColumns+ledgerJoins+`
		WHERE sl.organization_id = $1
		  AND ($2::text = '' OR p.code = $2)
		  AND ($3::text = '' OR w.code = $3)
		  AND ($4::date IS NULL OR sl.txn_date >= $4)
		  AND ($5::date IS NULL OR sl.txn_date <= $5)
		ORDER BY sl.id
		LIMIT $6
	`, f.OrganizationID, f.ProductCode, f.WarehouseCode, f.From, f.To, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock ledger: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stock ledger: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) GetStockLevels(ctx context.Context, orgID int64) ([]StockLevel, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.code, p.name, w.code, w.name,
		       SUM(ii.quantity_on_hand),
		       SUM(ii.quantity_on_hand * ii.unit_cost)
		FROM inventory_items ii
		JOIN products p   ON p.id = ii.product_id
		JOIN warehouses w ON w.id = ii.warehouse_id
		WHERE ii.organization_id = $1
		GROUP BY p.code, p.name, w.code, w.name
		ORDER BY p.code, w.code
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock levels: %w", err)
	}
	defer rows.Close()

	var levels []StockLevel
	for rows.Next() {
		var sl StockLevel
		if err := rows.Scan(&sl.ProductCode, &sl.ProductName, &sl.WarehouseCode, &sl.WarehouseName,
			&sl.OnHand, &sl.Value); err != nil {
			return nil, fmt.Errorf("failed to scan stock level: %w", err)
		}
		if !sl.OnHand.IsZero() {
			sl.UnitCost = sl.Value.Div(sl.OnHand).Round(CostScale)
		}
		levels = append(levels, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stock levels: %w", err)
	}
	return levels, nil
}

func (s *PostgresStore) ListReorderCandidates(ctx context.Context, orgID int64) ([]ReorderCandidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.code, p.name, COALESCE(SUM(ii.quantity_on_hand), 0), p.reorder_level
		FROM products p
		LEFT JOIN inventory_items ii ON ii.product_id = p.id AND ii.organization_id = p.organization_id
		WHERE p.organization_id = $1 AND p.is_active = true AND p.is_inventory_item = true
		  AND p.reorder_level > 0
		GROUP BY p.id, p.code, p.name, p.reorder_level
		HAVING COALESCE(SUM(ii.quantity_on_hand), 0) <= p.reorder_level
		ORDER BY p.code
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reorder candidates: %w", err)
	}
	defer rows.Close()

	var out []ReorderCandidate
	for rows.Next() {
		var rc ReorderCandidate
		if err := rows.Scan(&rc.ProductCode, &rc.ProductName, &rc.OnHand, &rc.ReorderLevel); err != nil {
			return nil, fmt.Errorf("failed to scan reorder candidate: %w", err)
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reorder candidates: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Reconcile(ctx context.Context, orgID int64) ([]Discrepancy, error) {
	rows, err := s.pool.Query(ctx, `
		WITH ledger AS (
			SELECT product_id, warehouse_id, location_id, batch_id, SUM(qty_in - qty_out) AS qty
			FROM stock_ledger
			WHERE organization_id = $1
			GROUP BY product_id, warehouse_id, location_id, batch_id
		)
		SELECT p.code, w.code, COALESCE(l.code, ''), COALESCE(b.batch_number, ''), COALESCE(b.serial_number, ''),
		       ii.quantity_on_hand, COALESCE(lg.qty, 0)
		FROM inventory_items ii
		JOIN products p   ON p.id = ii.product_id
		JOIN warehouses w ON w.id = ii.warehouse_id
		LEFT JOIN locations l ON l.id = ii.location_id
		LEFT JOIN batches b   ON b.id = ii.batch_id
		LEFT JOIN ledger lg ON lg.product_id = ii.product_id AND lg.warehouse_id = ii.warehouse_id
		                   AND lg.location_id IS NOT DISTINCT FROM ii.location_id
		                   AND lg.batch_id IS NOT DISTINCT FROM ii.batch_id
		WHERE ii.organization_id = $1
		  AND ii.quantity_on_hand <> COALESCE(lg.qty, 0)
		ORDER BY p.code, w.code
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile stock ledger: %w", err)
	}
	defer rows.Close()

	var out []Discrepancy
	for rows.Next() {
		var d Discrepancy
		if err := rows.Scan(&d.Ref.ProductCode, &d.Ref.WarehouseCode, &d.Ref.LocationCode,
			&d.Ref.BatchNumber, &d.Ref.SerialNumber, &d.SnapshotQuantity, &d.LedgerQuantity); err != nil {
			return nil, fmt.Errorf("failed to scan discrepancy: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read discrepancies: %w", err)
	}
	return out, nil
}
