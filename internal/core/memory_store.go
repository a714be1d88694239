package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process LedgerStore. Each stock key has its own lock,
// held from LockItem until the transaction ends, so postings on one key
// serialize while different keys proceed in parallel. Writes are buffered in
// the transaction and applied atomically on commit.
type MemoryStore struct {
	mu          sync.RWMutex
	lockTimeout time.Duration
	now         func() time.Time
	nextID      int64

	products   map[string]*Product   // org:code
	warehouses map[string]*Warehouse // org:code
	locations  map[string]*Location  // warehouseID:code
	batches    map[string]*Batch     // org:productID:batch:serial

	productsByID   map[int64]*Product
	warehousesByID map[int64]*Warehouse
	locationsByID  map[int64]*Location
	batchesByID    map[int64]*Batch

	items       map[string]*InventoryItem // StockKey.id()
	entries     []LedgerEntry
	idempotency map[string]int      // org:key -> index into entries
	pending     map[string]struct{} // keys reserved by open transactions
	keyLocks    map[string]chan struct{}
}

// NewMemoryStore returns an empty store. lockTimeout bounds how long a
// posting waits for a key held by another transaction; zero waits until the
// context is done.
func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		lockTimeout:    lockTimeout,
		now:            time.Now,
		products:       map[string]*Product{},
		warehouses:     map[string]*Warehouse{},
		locations:      map[string]*Location{},
		batches:        map[string]*Batch{},
		productsByID:   map[int64]*Product{},
		warehousesByID: map[int64]*Warehouse{},
		locationsByID:  map[int64]*Location{},
		batchesByID:    map[int64]*Batch{},
		items:          map[string]*InventoryItem{},
		idempotency:    map[string]int{},
		pending:        map[string]struct{}{},
		keyLocks:       map[string]chan struct{}{},
	}
}

// ── Master data ───────────────────────────────────────────────────────────────

func (s *MemoryStore) AddProduct(p Product) Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.allocID()
	}
	s.products[orgCode(p.OrganizationID, p.Code)] = &p
	s.productsByID[p.ID] = &p
	return p
}

func (s *MemoryStore) AddWarehouse(w Warehouse) Warehouse {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == 0 {
		w.ID = s.allocID()
	}
	s.warehouses[orgCode(w.OrganizationID, w.Code)] = &w
	s.warehousesByID[w.ID] = &w
	return w
}

func (s *MemoryStore) AddLocation(l Location) Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == 0 {
		l.ID = s.allocID()
	}
	s.locations[fmt.Sprintf("%d:%s", l.WarehouseID, l.Code)] = &l
	s.locationsByID[l.ID] = &l
	return l
}

func (s *MemoryStore) AddBatch(b Batch) Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == 0 {
		b.ID = s.allocID()
	}
	s.batches[batchKey(b.OrganizationID, b.ProductID, b.BatchNumber, b.SerialNumber)] = &b
	s.batchesByID[b.ID] = &b
	return b
}

func orgCode(orgID int64, code string) string {
	return fmt.Sprintf("%d:%s", orgID, code)
}

func batchKey(orgID, productID int64, batch, serial string) string {
	return fmt.Sprintf("%d:%d:%s:%s", orgID, productID, batch, serial)
}

// allocID must be called with mu held for writing.
func (s *MemoryStore) allocID() int64 {
	s.nextID++
	return s.nextID
}

// resolveKey must be called with mu held.
func (s *MemoryStore) resolveKey(orgID int64, ref StockRef) (StockKey, error) {
	p, ok := s.products[orgCode(orgID, ref.ProductCode)]
	if !ok || !p.IsActive {
		return StockKey{}, notFoundf("product %s not found for organization %d", ref.ProductCode, orgID)
	}
	w, ok := s.warehouses[orgCode(orgID, ref.WarehouseCode)]
	if !ok || !w.IsActive {
		return StockKey{}, notFoundf("warehouse %s not found for organization %d", ref.WarehouseCode, orgID)
	}
	key := StockKey{
		OrganizationID:  orgID,
		ProductID:       p.ID,
		WarehouseID:     w.ID,
		Ref:             ref,
		TracksInventory: p.IsInventoryItem,
	}
	if ref.LocationCode != "" {
		l, ok := s.locations[fmt.Sprintf("%d:%s", w.ID, ref.LocationCode)]
		if !ok {
			return StockKey{}, notFoundf("location %s not found in warehouse %s", ref.LocationCode, ref.WarehouseCode)
		}
		key.LocationID = &l.ID
	}
	if ref.hasBatch() {
		b, ok := s.batches[batchKey(orgID, p.ID, ref.BatchNumber, ref.SerialNumber)]
		if !ok {
			return StockKey{}, notFoundf("batch %s not found for product %s", ref.String(), ref.ProductCode)
		}
		key.BatchID = &b.ID
	}
	return key, nil
}

// refFor rebuilds codes from ids. Must be called with mu held.
func (s *MemoryStore) refFor(productID, warehouseID int64, locationID, batchID *int64) StockRef {
	var ref StockRef
	if p := s.productsByID[productID]; p != nil {
		ref.ProductCode = p.Code
	}
	if w := s.warehousesByID[warehouseID]; w != nil {
		ref.WarehouseCode = w.Code
	}
	if locationID != nil {
		if l := s.locationsByID[*locationID]; l != nil {
			ref.LocationCode = l.Code
		}
	}
	if batchID != nil {
		if b := s.batchesByID[*batchID]; b != nil {
			ref.BatchNumber = b.BatchNumber
			ref.SerialNumber = b.SerialNumber
		}
	}
	return ref
}

func itemKeyID(i *InventoryItem) string {
	return StockKey{
		OrganizationID: i.OrganizationID,
		ProductID:      i.ProductID,
		WarehouseID:    i.WarehouseID,
		LocationID:     i.LocationID,
		BatchID:        i.BatchID,
	}.id()
}

// ── Transactions ──────────────────────────────────────────────────────────────

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	tx := &memoryTx{
		s:     s,
		held:  map[string]chan struct{}{},
		items: map[string]*InventoryItem{},
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx.commit()
	return nil
}

func (s *MemoryStore) keyLock(id string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.keyLocks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.keyLocks[id] = ch
	}
	return ch
}

type memoryTx struct {
	s         *MemoryStore
	held      map[string]chan struct{}
	items     map[string]*InventoryItem
	entries   []LedgerEntry
	reserved  []string
	committed bool
}

func (tx *memoryTx) ResolveKey(_ context.Context, orgID int64, ref StockRef) (StockKey, error) {
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	return tx.s.resolveKey(orgID, ref)
}

func (tx *memoryTx) LockItem(ctx context.Context, key StockKey) (*InventoryItem, error) {
	id := key.id()
	if staged, ok := tx.items[id]; ok {
		item := *staged
		return &item, nil
	}
	if err := tx.acquire(ctx, id); err != nil {
		return nil, err
	}

	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	var item InventoryItem
	if current, ok := tx.s.items[id]; ok {
		item = *current
	} else {
		item = InventoryItem{
			ID:             tx.s.allocID(),
			OrganizationID: key.OrganizationID,
			ProductID:      key.ProductID,
			WarehouseID:    key.WarehouseID,
			LocationID:     key.LocationID,
			BatchID:        key.BatchID,
			Ref:            key.Ref,
			QuantityOnHand: decimal.Zero,
			UnitCost:       decimal.Zero,
			UpdatedAt:      tx.s.now(),
		}
	}
	staged := item
	tx.items[id] = &staged
	return &item, nil
}

func (tx *memoryTx) acquire(ctx context.Context, id string) error {
	ch := tx.s.keyLock(id)
	var timeout <-chan time.Time
	if tx.s.lockTimeout > 0 {
		t := time.NewTimer(tx.s.lockTimeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case ch <- struct{}{}:
		tx.held[id] = ch
		return nil
	case <-timeout:
		return fmt.Errorf("%w: lock wait on stock key %s exceeded %s", ErrContention, id, tx.s.lockTimeout)
	case <-ctx.Done():
		return fmt.Errorf("failed to lock stock key %s: %w", id, ctx.Err())
	}
}

func (tx *memoryTx) FindEntryByIdempotencyKey(_ context.Context, orgID int64, key string) (*LedgerEntry, error) {
	for i := range tx.entries {
		if tx.entries[i].OrganizationID == orgID && tx.entries[i].IdempotencyKey == key {
			e := tx.entries[i]
			return &e, nil
		}
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	if idx, ok := tx.s.idempotency[orgCode(orgID, key)]; ok {
		e := tx.s.entries[idx]
		return &e, nil
	}
	return nil, nil
}

func (tx *memoryTx) InsertEntry(_ context.Context, e *LedgerEntry) error {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	if e.IdempotencyKey != "" {
		k := orgCode(e.OrganizationID, e.IdempotencyKey)
		_, committed := tx.s.idempotency[k]
		_, reserved := tx.s.pending[k]
		if committed || reserved {
			return fmt.Errorf("%w: key %q already recorded", ErrIdempotencyConflict, e.IdempotencyKey)
		}
		tx.s.pending[k] = struct{}{}
		tx.reserved = append(tx.reserved, k)
	}
	e.ID = tx.s.allocID()
	e.CreatedAt = tx.s.now()
	tx.entries = append(tx.entries, *e)
	return nil
}

func (tx *memoryTx) SaveItem(_ context.Context, item *InventoryItem) error {
	id := itemKeyID(item)
	if _, ok := tx.held[id]; !ok {
		return fmt.Errorf("inventory item %d was not locked in this transaction", item.ID)
	}
	saved := *item
	saved.UpdatedAt = tx.s.now()
	tx.items[id] = &saved
	return nil
}

func (tx *memoryTx) commit() {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	for id, item := range tx.items {
		tx.s.items[id] = item
	}
	for _, e := range tx.entries {
		tx.s.entries = append(tx.s.entries, e)
		if e.IdempotencyKey != "" {
			tx.s.idempotency[orgCode(e.OrganizationID, e.IdempotencyKey)] = len(tx.s.entries) - 1
		}
	}
	tx.committed = true
}

func (tx *memoryTx) release() {
	tx.s.mu.Lock()
	for _, k := range tx.reserved {
		delete(tx.s.pending, k)
	}
	tx.s.mu.Unlock()
	for id, ch := range tx.held {
		<-ch
		delete(tx.held, id)
	}
}

// ── Reads ─────────────────────────────────────────────────────────────────────

func (s *MemoryStore) GetWarehouse(_ context.Context, orgID int64, code string) (*Warehouse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.warehouses[orgCode(orgID, code)]
	if !ok || !w.IsActive {
		return nil, notFoundf("warehouse %s not found for organization %d", code, orgID)
	}
	out := *w
	return &out, nil
}

func (s *MemoryStore) ProductPositions(_ context.Context, orgID int64, productCode, warehouseCode string) (*Product, []StockPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[orgCode(orgID, productCode)]
	if !ok || !p.IsActive {
		return nil, nil, notFoundf("product %s not found for organization %d", productCode, orgID)
	}
	var warehouseID int64
	if warehouseCode != "" {
		w, ok := s.warehouses[orgCode(orgID, warehouseCode)]
		if !ok || !w.IsActive {
			return nil, nil, notFoundf("warehouse %s not found for organization %d", warehouseCode, orgID)
		}
		warehouseID = w.ID
	}

	firstIn := map[string]time.Time{}
	for _, e := range s.entries {
		if e.OrganizationID != orgID || e.ProductID != p.ID || !e.QtyIn.IsPositive() {
			continue
		}
		id := StockKey{OrganizationID: orgID, ProductID: e.ProductID, WarehouseID: e.WarehouseID,
			LocationID: e.LocationID, BatchID: e.BatchID}.id()
		if t, seen := firstIn[id]; !seen || e.CreatedAt.Before(t) {
			firstIn[id] = e.CreatedAt
		}
	}

	var positions []StockPosition
	for id, item := range s.items {
		if item.OrganizationID != orgID || item.ProductID != p.ID {
			continue
		}
		if warehouseID != 0 && item.WarehouseID != warehouseID {
			continue
		}
		w := s.warehousesByID[item.WarehouseID]
		if w == nil || !w.IsActive {
			continue
		}
		pos := StockPosition{
			Warehouse: *w,
			OnHand:    item.QuantityOnHand,
			UnitCost:  item.UnitCost,
		}
		if item.LocationID != nil {
			if l := s.locationsByID[*item.LocationID]; l != nil {
				pos.LocationCode = l.Code
			}
		}
		if item.BatchID != nil {
			if b := s.batchesByID[*item.BatchID]; b != nil {
				batch := *b
				pos.Batch = &batch
			}
		}
		if t, ok := firstIn[id]; ok {
			pos.FirstReceivedAt = &t
		}
		positions = append(positions, pos)
	}
	sortPositions(positions)

	out := *p
	return &out, positions, nil
}

func sortPositions(positions []StockPosition) {
	sort.SliceStable(positions, func(i, j int) bool {
		return positionTieBreak(positions[i], positions[j]) < 0
	})
}

func (s *MemoryStore) GetInventoryItem(_ context.Context, orgID int64, ref StockRef) (*InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, err := s.resolveKey(orgID, ref)
	if err != nil {
		return nil, err
	}
	item, ok := s.items[key.id()]
	if !ok {
		return nil, notFoundf("no stock recorded for %s", ref.String())
	}
	out := *item
	return &out, nil
}

func (s *MemoryStore) ListLedgerEntries(_ context.Context, f LedgerFilter) ([]LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLedgerLimit
	}
	var out []LedgerEntry
	for _, e := range s.entries {
		if e.OrganizationID != f.OrganizationID {
			continue
		}
		if f.ProductCode != "" && e.Ref.ProductCode != f.ProductCode {
			continue
		}
		if f.WarehouseCode != "" && e.Ref.WarehouseCode != f.WarehouseCode {
			continue
		}
		if f.From != nil && e.TxnDate.Before(*f.From) {
			continue
		}
		if f.To != nil && e.TxnDate.After(*f.To) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) GetStockLevels(_ context.Context, orgID int64) ([]StockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byKey := map[string]*StockLevel{}
	for _, item := range s.items {
		if item.OrganizationID != orgID {
			continue
		}
		p := s.productsByID[item.ProductID]
		w := s.warehousesByID[item.WarehouseID]
		if p == nil || w == nil {
			continue
		}
		k := p.Code + "\x00" + w.Code
		level, ok := byKey[k]
		if !ok {
			level = &StockLevel{
				ProductCode:   p.Code,
				ProductName:   p.Name,
				WarehouseCode: w.Code,
				WarehouseName: w.Name,
			}
			byKey[k] = level
		}
		level.OnHand = level.OnHand.Add(item.QuantityOnHand)
		level.Value = level.Value.Add(item.Value())
	}

	levels := make([]StockLevel, 0, len(byKey))
	for _, level := range byKey {
		if !level.OnHand.IsZero() {
			level.UnitCost = level.Value.Div(level.OnHand).Round(CostScale)
		}
		levels = append(levels, *level)
	}
	sort.Slice(levels, func(i, j int) bool {
		if levels[i].ProductCode != levels[j].ProductCode {
			return levels[i].ProductCode < levels[j].ProductCode
		}
		return levels[i].WarehouseCode < levels[j].WarehouseCode
	})
	return levels, nil
}

func (s *MemoryStore) ListReorderCandidates(_ context.Context, orgID int64) ([]ReorderCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	onHand := map[int64]decimal.Decimal{}
	for _, item := range s.items {
		if item.OrganizationID == orgID {
			onHand[item.ProductID] = onHand[item.ProductID].Add(item.QuantityOnHand)
		}
	}
	var out []ReorderCandidate
	for _, p := range s.productsByID {
		if p.OrganizationID != orgID || !p.IsActive || !p.IsInventoryItem || !p.ReorderLevel.IsPositive() {
			continue
		}
		if qty := onHand[p.ID]; qty.LessThanOrEqual(p.ReorderLevel) {
			out = append(out, ReorderCandidate{
				ProductCode:  p.Code,
				ProductName:  p.Name,
				OnHand:       qty,
				ReorderLevel: p.ReorderLevel,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductCode < out[j].ProductCode })
	return out, nil
}

func (s *MemoryStore) Reconcile(_ context.Context, orgID int64) ([]Discrepancy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ledger := map[string]decimal.Decimal{}
	for _, e := range s.entries {
		if e.OrganizationID != orgID {
			continue
		}
		id := StockKey{OrganizationID: orgID, ProductID: e.ProductID, WarehouseID: e.WarehouseID,
			LocationID: e.LocationID, BatchID: e.BatchID}.id()
		ledger[id] = ledger[id].Add(e.Net())
	}

	var out []Discrepancy
	for id, item := range s.items {
		if item.OrganizationID != orgID {
			continue
		}
		if sum := ledger[id]; !sum.Equal(item.QuantityOnHand) {
			out = append(out, Discrepancy{
				Ref:              s.refFor(item.ProductID, item.WarehouseID, item.LocationID, item.BatchID),
				SnapshotQuantity: item.QuantityOnHand,
				LedgerQuantity:   sum,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.String() < out[j].Ref.String() })
	return out, nil
}
