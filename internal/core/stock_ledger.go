package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"erp-inventory/internal/logger"
	"erp-inventory/internal/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("erp-inventory/core")

// StockLedgerService is the only writer of stock_ledger and inventory_items.
// Every posting appends exactly one ledger row per leg and updates the
// snapshot in the same transaction, under an exclusive lock on the snapshot row.
type StockLedgerService interface {
	// RecordMovement posts one receipt or issue.
	RecordMovement(ctx context.Context, req MovementRequest) (*PostingResult, error)
	// ReceiveStock posts a receipt; TxnType defaults to purchase.
	ReceiveStock(ctx context.Context, req ReceiptRequest) (*PostingResult, error)
	// IssueStock posts an issue; TxnType defaults to sale.
	IssueStock(ctx context.Context, req IssueRequest) (*PostingResult, error)
	// TransferStock moves stock between two keys of the same product at the
	// source cost. Both legs commit together.
	TransferStock(ctx context.Context, req TransferRequest) (*TransferResult, error)
	// AdjustStock posts the difference between a physical count and the
	// snapshot. A count equal to the snapshot posts nothing.
	AdjustStock(ctx context.Context, req AdjustmentRequest) (*PostingResult, error)

	GetInventoryItem(ctx context.Context, orgID int64, ref StockRef) (*InventoryItem, error)
	ListLedgerEntries(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error)
	GetStockLevels(ctx context.Context, orgID int64) ([]StockLevel, error)
	ListReorderCandidates(ctx context.Context, orgID int64) ([]ReorderCandidate, error)
	Reconcile(ctx context.Context, orgID int64) ([]Discrepancy, error)
}

// LedgerOptions tunes posting behaviour.
type LedgerOptions struct {
	// AllowNegativeStock lets issues drive on-hand below zero.
	AllowNegativeStock bool
	// Now defaults to time.Now. It supplies the transaction date when a
	// request leaves it empty.
	Now func() time.Time
}

type ReceiptRequest struct {
	OrganizationID int64
	Ref            StockRef
	Quantity       decimal.Decimal
	UnitCost       decimal.Decimal
	TxnType        TxnType
	ReferenceID    string
	IdempotencyKey string
	TxnDate        time.Time
}

type IssueRequest struct {
	OrganizationID int64
	Ref            StockRef
	Quantity       decimal.Decimal
	// UnitCost overrides the snapshot cost recorded on the ledger row.
	UnitCost       decimal.NullDecimal
	TxnType        TxnType
	ReferenceID    string
	IdempotencyKey string
	TxnDate        time.Time
}

type TransferRequest struct {
	OrganizationID int64
	From           StockRef
	To             StockRef
	Quantity       decimal.Decimal
	// ReferenceID correlates both legs. A uuid is generated when empty.
	ReferenceID string
	// IdempotencyKey is suffixed with ":out" and ":in" for the two legs.
	IdempotencyKey string
	TxnDate        time.Time
}

type AdjustmentRequest struct {
	OrganizationID  int64
	Ref             StockRef
	CountedQuantity decimal.Decimal
	// UnitCost values a positive difference; the snapshot cost is used when absent.
	UnitCost       decimal.NullDecimal
	ReferenceID    string
	IdempotencyKey string
	TxnDate        time.Time
}

type stockLedger struct {
	store LedgerStore
	opts  LedgerOptions
}

func NewStockLedger(store LedgerStore, opts LedgerOptions) StockLedgerService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &stockLedger{store: store, opts: opts}
}

// ── Postings ──────────────────────────────────────────────────────────────────

func (s *stockLedger) RecordMovement(ctx context.Context, req MovementRequest) (*PostingResult, error) {
	ctx, span := tracer.Start(ctx, "ledger.RecordMovement", trace.WithAttributes(
		attribute.Int64("org.id", req.OrganizationID),
		attribute.String("stock.ref", req.Ref.String()),
		attribute.String("txn.type", string(req.TxnType)),
	))
	defer span.End()
	started := time.Now()

	if err := req.Validate(); err != nil {
		s.observe(ctx, span, string(req.TxnType), started, nil, err)
		return nil, err
	}
	req.TxnDate = s.txnDate(req.TxnDate)

	var result *PostingResult
	err := s.store.InTx(ctx, func(tx LedgerTx) error {
		key, err := tx.ResolveKey(ctx, req.OrganizationID, req.Ref)
		if err != nil {
			return err
		}
		if !key.TracksInventory {
			return invalidf("product %s is not an inventory item", req.Ref.ProductCode)
		}
		item, err := tx.LockItem(ctx, key)
		if err != nil {
			return err
		}
		result, err = s.post(ctx, tx, key, item, req)
		return err
	})
	s.observe(ctx, span, string(req.TxnType), started, result, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *stockLedger) ReceiveStock(ctx context.Context, req ReceiptRequest) (*PostingResult, error) {
	txnType := req.TxnType
	if txnType == "" {
		txnType = TxnPurchase
	}
	return s.RecordMovement(ctx, MovementRequest{
		OrganizationID: req.OrganizationID,
		Ref:            req.Ref,
		TxnType:        txnType,
		ReferenceID:    req.ReferenceID,
		IdempotencyKey: req.IdempotencyKey,
		TxnDate:        req.TxnDate,
		Movement:       Receipt{Quantity: req.Quantity, UnitCost: Cost(req.UnitCost)},
	})
}

func (s *stockLedger) IssueStock(ctx context.Context, req IssueRequest) (*PostingResult, error) {
	txnType := req.TxnType
	if txnType == "" {
		txnType = TxnSale
	}
	return s.RecordMovement(ctx, MovementRequest{
		OrganizationID: req.OrganizationID,
		Ref:            req.Ref,
		TxnType:        txnType,
		ReferenceID:    req.ReferenceID,
		IdempotencyKey: req.IdempotencyKey,
		TxnDate:        req.TxnDate,
		Movement:       Issue{Quantity: req.Quantity, UnitCost: req.UnitCost},
	})
}

func (s *stockLedger) TransferStock(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	ctx, span := tracer.Start(ctx, "ledger.TransferStock", trace.WithAttributes(
		attribute.Int64("org.id", req.OrganizationID),
		attribute.String("stock.from", req.From.String()),
		attribute.String("stock.to", req.To.String()),
	))
	defer span.End()
	started := time.Now()

	if err := validateTransfer(req); err != nil {
		s.observe(ctx, span, "transfer", started, nil, err)
		return nil, err
	}
	ref := req.ReferenceID
	if ref == "" {
		ref = uuid.NewString()
	}
	txnDate := s.txnDate(req.TxnDate)

	var result *TransferResult
	err := s.store.InTx(ctx, func(tx LedgerTx) error {
		fromKey, err := tx.ResolveKey(ctx, req.OrganizationID, req.From)
		if err != nil {
			return err
		}
		toKey, err := tx.ResolveKey(ctx, req.OrganizationID, req.To)
		if err != nil {
			return err
		}
		if fromKey.id() == toKey.id() {
			return invalidf("transfer source and destination are the same stock key %s", req.From.String())
		}
		if !fromKey.TracksInventory {
			return invalidf("product %s is not an inventory item", req.From.ProductCode)
		}

		// Lock in key order so opposing transfers cannot deadlock.
		first, second := fromKey, toKey
		if second.id() < first.id() {
			first, second = second, first
		}
		locked := map[string]*InventoryItem{}
		for _, k := range []StockKey{first, second} {
			item, err := tx.LockItem(ctx, k)
			if err != nil {
				return err
			}
			locked[k.id()] = item
		}
		fromItem, toItem := locked[fromKey.id()], locked[toKey.id()]

		out, err := s.post(ctx, tx, fromKey, fromItem, MovementRequest{
			OrganizationID: req.OrganizationID,
			Ref:            req.From,
			TxnType:        TxnTransferOut,
			ReferenceID:    ref,
			IdempotencyKey: legKey(req.IdempotencyKey, "out"),
			TxnDate:        txnDate,
			Movement:       Issue{Quantity: req.Quantity, UnitCost: Cost(fromItem.UnitCost)},
		})
		if err != nil {
			return err
		}
		in, err := s.post(ctx, tx, toKey, toItem, MovementRequest{
			OrganizationID: req.OrganizationID,
			Ref:            req.To,
			TxnType:        TxnTransferIn,
			ReferenceID:    out.Entry.ReferenceID,
			IdempotencyKey: legKey(req.IdempotencyKey, "in"),
			TxnDate:        txnDate,
			Movement:       Receipt{Quantity: req.Quantity, UnitCost: Cost(out.Entry.UnitCost)},
		})
		if err != nil {
			return err
		}
		result = &TransferResult{ReferenceID: out.Entry.ReferenceID, Out: out, In: in}
		return nil
	})
	var posting *PostingResult
	if result != nil {
		posting = result.Out
	}
	s.observe(ctx, span, "transfer", started, posting, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func validateTransfer(req TransferRequest) error {
	if req.OrganizationID <= 0 {
		return invalidf("organization id is required")
	}
	if req.From.ProductCode == "" || req.From.WarehouseCode == "" || req.To.WarehouseCode == "" {
		return invalidf("product and warehouse codes are required")
	}
	if req.To.ProductCode != req.From.ProductCode {
		return invalidf("transfer cannot change product (%s to %s)", req.From.ProductCode, req.To.ProductCode)
	}
	return validateQuantity(req.Quantity)
}

func legKey(key, leg string) string {
	if key == "" {
		return ""
	}
	return key + ":" + leg
}

func (s *stockLedger) AdjustStock(ctx context.Context, req AdjustmentRequest) (*PostingResult, error) {
	ctx, span := tracer.Start(ctx, "ledger.AdjustStock", trace.WithAttributes(
		attribute.Int64("org.id", req.OrganizationID),
		attribute.String("stock.ref", req.Ref.String()),
		attribute.String("counted", req.CountedQuantity.String()),
	))
	defer span.End()
	started := time.Now()

	if err := validateAdjustment(req); err != nil {
		s.observe(ctx, span, string(TxnAdjustment), started, nil, err)
		return nil, err
	}
	txnDate := s.txnDate(req.TxnDate)

	var result *PostingResult
	err := s.store.InTx(ctx, func(tx LedgerTx) error {
		key, err := tx.ResolveKey(ctx, req.OrganizationID, req.Ref)
		if err != nil {
			return err
		}
		if !key.TracksInventory {
			return invalidf("product %s is not an inventory item", req.Ref.ProductCode)
		}
		item, err := tx.LockItem(ctx, key)
		if err != nil {
			return err
		}

		// The delta depends on the snapshot, so a retry has to be matched on
		// the key alone before the delta is recomputed.
		if req.IdempotencyKey != "" {
			prior, err := tx.FindEntryByIdempotencyKey(ctx, req.OrganizationID, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if prior != nil {
				if !prior.sameKey(key) || prior.TxnType != TxnAdjustment {
					return idempotencyConflict(req.IdempotencyKey)
				}
				result = &PostingResult{Entry: prior, Item: item, Replayed: true}
				return nil
			}
		}

		delta := req.CountedQuantity.Sub(item.QuantityOnHand)
		if delta.IsZero() {
			result = &PostingResult{Item: item}
			return nil
		}
		var m Movement
		if delta.IsPositive() {
			cost := req.UnitCost
			if !cost.Valid {
				cost = Cost(item.UnitCost)
			}
			m = Receipt{Quantity: delta, UnitCost: cost}
		} else {
			m = Issue{Quantity: delta.Neg()}
		}
		result, err = s.post(ctx, tx, key, item, MovementRequest{
			OrganizationID: req.OrganizationID,
			Ref:            req.Ref,
			TxnType:        TxnAdjustment,
			ReferenceID:    req.ReferenceID,
			IdempotencyKey: req.IdempotencyKey,
			TxnDate:        txnDate,
			Movement:       m,
		})
		return err
	})
	s.observe(ctx, span, string(TxnAdjustment), started, result, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func validateAdjustment(req AdjustmentRequest) error {
	if req.OrganizationID <= 0 {
		return invalidf("organization id is required")
	}
	if req.Ref.ProductCode == "" || req.Ref.WarehouseCode == "" {
		return invalidf("product and warehouse codes are required")
	}
	if req.CountedQuantity.IsNegative() {
		return invalidf("counted quantity cannot be negative, got %s", req.CountedQuantity)
	}
	if !req.CountedQuantity.Equal(req.CountedQuantity.Round(QuantityScale)) {
		return invalidf("counted quantity %s has more than %d decimal places", req.CountedQuantity, QuantityScale)
	}
	if req.UnitCost.Valid {
		return validateCost(req.UnitCost.Decimal)
	}
	return nil
}

// post applies one validated movement to a locked snapshot row.
func (s *stockLedger) post(ctx context.Context, tx LedgerTx, key StockKey, item *InventoryItem, req MovementRequest) (*PostingResult, error) {
	if req.IdempotencyKey != "" {
		prior, err := tx.FindEntryByIdempotencyKey(ctx, req.OrganizationID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			if !prior.sameKey(key) || !samePayload(prior, req) {
				return nil, idempotencyConflict(req.IdempotencyKey)
			}
			return &PostingResult{Entry: prior, Item: item, Replayed: true}, nil
		}
	}

	newQty, newCost := ApplyMovement(item.QuantityOnHand, item.UnitCost, req.Movement)
	if _, isIssue := req.Movement.(Issue); isIssue && newQty.IsNegative() && !s.opts.AllowNegativeStock {
		return nil, fmtInsufficient(req.Ref, item.QuantityOnHand, req.Movement.quantity())
	}

	qtyIn, qtyOut := ledgerQuantities(req.Movement)
	entry := &LedgerEntry{
		OrganizationID: key.OrganizationID,
		ProductID:      key.ProductID,
		WarehouseID:    key.WarehouseID,
		LocationID:     key.LocationID,
		BatchID:        key.BatchID,
		Ref:            key.Ref,
		TxnType:        req.TxnType,
		ReferenceID:    req.ReferenceID,
		IdempotencyKey: req.IdempotencyKey,
		TxnDate:        req.TxnDate,
		QtyIn:          qtyIn,
		QtyOut:         qtyOut,
		UnitCost:       entryCost(req.Movement, item.UnitCost),
	}
	if err := tx.InsertEntry(ctx, entry); err != nil {
		return nil, err
	}

	item.QuantityOnHand = newQty
	item.UnitCost = newCost
	if err := tx.SaveItem(ctx, item); err != nil {
		return nil, err
	}
	return &PostingResult{Entry: entry, Item: item}, nil
}

// entryCost is the unit cost written on the ledger row. Issues without an
// explicit cost are valued at the snapshot cost.
func entryCost(m Movement, snapshotCost decimal.Decimal) decimal.Decimal {
	switch mv := m.(type) {
	case Receipt:
		return mv.UnitCost.Decimal.Round(CostScale)
	case Issue:
		if mv.UnitCost.Valid {
			return mv.UnitCost.Decimal.Round(CostScale)
		}
	}
	return snapshotCost
}

func samePayload(prior *LedgerEntry, req MovementRequest) bool {
	qtyIn, qtyOut := ledgerQuantities(req.Movement)
	if prior.TxnType != req.TxnType || !prior.QtyIn.Equal(qtyIn) || !prior.QtyOut.Equal(qtyOut) {
		return false
	}
	if r, ok := req.Movement.(Receipt); ok {
		return prior.UnitCost.Equal(r.UnitCost.Decimal.Round(CostScale))
	}
	return true
}

func idempotencyConflict(key string) error {
	return fmt.Errorf("%w: key %q was already used for a different movement", ErrIdempotencyConflict, key)
}

func fmtInsufficient(ref StockRef, onHand, requested decimal.Decimal) error {
	return fmt.Errorf("%w: cannot issue %s of %s, on hand %s", ErrInsufficientStock, requested, ref.String(), onHand)
}

func (s *stockLedger) txnDate(t time.Time) time.Time {
	if t.IsZero() {
		t = s.opts.Now()
	}
	return truncateDay(t)
}

// truncateDay drops the clock part, keeping the calendar date.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// observe records the outcome of one posting on the span, in metrics and in
// the log.
func (s *stockLedger) observe(ctx context.Context, span trace.Span, txnType string, started time.Time, result *PostingResult, err error) {
	outcome := postingOutcome(result, err)
	metrics.ObserveMovement(txnType, outcome, started)
	span.SetAttributes(attribute.String("posting.outcome", outcome))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		switch outcome {
		case "contention":
			metrics.IncLockContention()
			logger.Warn(ctx).Err(err).Str("txn_type", txnType).Msg("stock posting aborted by lock contention")
		case "error":
			logger.Error(ctx).Err(err).Str("txn_type", txnType).Msg("stock posting failed")
		default:
			logger.Debug(ctx).Err(err).Str("txn_type", txnType).Msg("stock posting rejected")
		}
		return
	}

	ev := logger.Info(ctx).Str("txn_type", txnType).Str("outcome", outcome)
	if result != nil && result.Item != nil {
		ev = ev.Str("ref", result.Item.Ref.String()).
			Str("on_hand", result.Item.QuantityOnHand.String()).
			Str("unit_cost", result.Item.UnitCost.String())
	}
	if result != nil && result.Entry != nil {
		ev = ev.Int64("entry_id", result.Entry.ID)
	}
	ev.Msg("stock posting")
}

func postingOutcome(result *PostingResult, err error) string {
	switch {
	case err == nil && result != nil && result.Replayed:
		return "replayed"
	case err == nil && result != nil && result.Entry == nil:
		return "unchanged"
	case err == nil:
		return "posted"
	case errors.Is(err, ErrContention):
		return "contention"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrIdempotencyConflict):
		return "rejected"
	default:
		return "error"
	}
}

// ── Queries ───────────────────────────────────────────────────────────────────

func (s *stockLedger) GetInventoryItem(ctx context.Context, orgID int64, ref StockRef) (*InventoryItem, error) {
	return s.store.GetInventoryItem(ctx, orgID, ref)
}

func (s *stockLedger) ListLedgerEntries(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	if filter.OrganizationID <= 0 {
		return nil, invalidf("organization id is required")
	}
	return s.store.ListLedgerEntries(ctx, filter)
}

func (s *stockLedger) GetStockLevels(ctx context.Context, orgID int64) ([]StockLevel, error) {
	return s.store.GetStockLevels(ctx, orgID)
}

func (s *stockLedger) ListReorderCandidates(ctx context.Context, orgID int64) ([]ReorderCandidate, error) {
	return s.store.ListReorderCandidates(ctx, orgID)
}

func (s *stockLedger) Reconcile(ctx context.Context, orgID int64) ([]Discrepancy, error) {
	ctx, span := tracer.Start(ctx, "ledger.Reconcile", trace.WithAttributes(attribute.Int64("org.id", orgID)))
	defer span.End()

	out, err := s.store.Reconcile(ctx, orgID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(out) > 0 {
		logger.Warn(ctx).Int64("org_id", orgID).Int("discrepancies", len(out)).Msg("stock ledger out of balance")
	}
	return out, nil
}
