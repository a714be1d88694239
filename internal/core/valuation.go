package core

import "github.com/shopspring/decimal"

// MovingAverageCost returns the weighted average unit cost after receiving
// inQty at inCost on top of oldQty at oldCost:
//
//	(oldQty*oldCost + inQty*inCost) / (oldQty + inQty)
//
// When nothing (or a negative balance) is on hand the incoming cost is used,
// so a receipt into an empty key never divides by zero.
func MovingAverageCost(oldQty, oldCost, inQty, inCost decimal.Decimal) decimal.Decimal {
	if !oldQty.IsPositive() {
		return inCost.Round(CostScale)
	}
	newQty := oldQty.Add(inQty)
	return oldQty.Mul(oldCost).Add(inQty.Mul(inCost)).Div(newQty).Round(CostScale)
}

// ApplyMovement returns the snapshot quantity and unit cost after m.
// Issues change quantity only.
func ApplyMovement(qty, cost decimal.Decimal, m Movement) (decimal.Decimal, decimal.Decimal) {
	switch mv := m.(type) {
	case Receipt:
		return qty.Add(mv.Quantity), MovingAverageCost(qty, cost, mv.Quantity, mv.UnitCost.Decimal)
	case Issue:
		return qty.Sub(mv.Quantity), cost
	}
	return qty, cost
}

// ledgerQuantities splits a movement into the stored qty_in/qty_out pair.
func ledgerQuantities(m Movement) (qtyIn, qtyOut decimal.Decimal) {
	switch mv := m.(type) {
	case Receipt:
		return mv.Quantity, decimal.Zero
	case Issue:
		return decimal.Zero, mv.Quantity
	}
	return decimal.Zero, decimal.Zero
}
