package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxnType classifies a stock ledger row.
type TxnType string

const (
	TxnPurchase      TxnType = "purchase"
	TxnSale          TxnType = "sale"
	TxnTransferIn    TxnType = "transfer_in"
	TxnTransferOut   TxnType = "transfer_out"
	TxnAdjustment    TxnType = "adjustment"
	TxnManualReceipt TxnType = "manual_receipt"
	TxnManualIssue   TxnType = "manual_issue"
	TxnReturnIn      TxnType = "return_in"
	TxnReturnOut     TxnType = "return_out"
	TxnIssue         TxnType = "issue"
)

func (t TxnType) IsValid() bool {
	switch t {
	case TxnPurchase, TxnSale, TxnTransferIn, TxnTransferOut, TxnAdjustment,
		TxnManualReceipt, TxnManualIssue, TxnReturnIn, TxnReturnOut, TxnIssue:
		return true
	}
	return false
}

// allows reports whether a movement of this type may go in the given
// direction. Adjustments go either way.
func (t TxnType) allows(m Movement) bool {
	switch m.(type) {
	case Receipt:
		switch t {
		case TxnPurchase, TxnTransferIn, TxnAdjustment, TxnManualReceipt, TxnReturnIn:
			return true
		}
	case Issue:
		switch t {
		case TxnSale, TxnTransferOut, TxnAdjustment, TxnManualIssue, TxnReturnOut, TxnIssue:
			return true
		}
	}
	return false
}

// Quantities carry at most four decimal places; unit costs at most six.
const (
	QuantityScale = 4
	CostScale     = 6
)

// Movement is either a Receipt or an Issue.
type Movement interface {
	isMovement()
	quantity() decimal.Decimal
}

// Receipt adds Quantity at UnitCost and moves the weighted average cost.
// UnitCost is required.
type Receipt struct {
	Quantity decimal.Decimal
	UnitCost decimal.NullDecimal
}

// Issue removes Quantity. UnitCost, when set, is recorded on the ledger row
// instead of the snapshot cost; it never changes the snapshot cost.
type Issue struct {
	Quantity decimal.Decimal
	UnitCost decimal.NullDecimal
}

func (Receipt) isMovement() {}
func (Issue) isMovement()   {}

func (r Receipt) quantity() decimal.Decimal { return r.Quantity }
func (i Issue) quantity() decimal.Decimal   { return i.Quantity }

// Cost wraps a decimal as a present NullDecimal.
func Cost(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(d)
}

// MovementRequest is the input of RecordMovement.
type MovementRequest struct {
	OrganizationID int64
	Ref            StockRef
	TxnType        TxnType
	ReferenceID    string
	// IdempotencyKey, when set, makes a retried call return the original posting.
	IdempotencyKey string
	TxnDate        time.Time
	Movement       Movement
}

// Validate rejects a request before any lookup or write.
func (r MovementRequest) Validate() error {
	if r.OrganizationID <= 0 {
		return invalidf("organization id is required")
	}
	if r.Ref.ProductCode == "" || r.Ref.WarehouseCode == "" {
		return invalidf("product and warehouse codes are required")
	}
	if !r.TxnType.IsValid() {
		return invalidf("unknown transaction type %q", r.TxnType)
	}
	if r.Movement == nil {
		return invalidf("movement is required")
	}
	if !r.TxnType.allows(r.Movement) {
		return invalidf("transaction type %s cannot be used for a %s", r.TxnType, movementKind(r.Movement))
	}
	if err := validateQuantity(r.Movement.quantity()); err != nil {
		return err
	}
	switch m := r.Movement.(type) {
	case Receipt:
		if !m.UnitCost.Valid {
			return invalidf("unit cost is required for a receipt")
		}
		return validateCost(m.UnitCost.Decimal)
	case Issue:
		if m.UnitCost.Valid {
			return validateCost(m.UnitCost.Decimal)
		}
	}
	return nil
}

func movementKind(m Movement) string {
	if _, ok := m.(Receipt); ok {
		return "receipt"
	}
	return "issue"
}

func validateQuantity(q decimal.Decimal) error {
	if !q.IsPositive() {
		return invalidf("quantity must be positive, got %s", q)
	}
	if !q.Equal(q.Round(QuantityScale)) {
		return invalidf("quantity %s has more than %d decimal places", q, QuantityScale)
	}
	return nil
}

func validateCost(c decimal.Decimal) error {
	if c.IsNegative() {
		return invalidf("unit cost cannot be negative, got %s", c)
	}
	return nil
}
