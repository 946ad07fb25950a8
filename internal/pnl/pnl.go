// Package pnl derives profit-and-loss figures from position and price state.
// It holds no state and performs no mutation.
//
// All monetary values use shopspring/decimal — never float64 for money.
package pnl

import (
	"github.com/shopspring/decimal"

	"github.com/fnf/trading-core/internal/model"
)

// Unrealized computes the mark-to-market P&L of a position at the given
// current price:
//
//	LONG  (quantity > 0): (current − entry) × quantity
//	SHORT (quantity < 0): (entry − current) × |quantity|
//
// The two cases reduce to the same product because the sign of Quantity
// already encodes direction.
func Unrealized(p model.Position, currentPrice decimal.Decimal) decimal.Decimal {
	return currentPrice.Sub(p.EntryPrice).Mul(p.Quantity)
}
