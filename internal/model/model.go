// Package model defines the core domain types shared across the trading core.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position status values.
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// LedgerEvent kinds, one per position mutation.
const (
	EventOpen   = "OPEN"
	EventAdjust = "ADJUST"
	EventClose  = "CLOSE"
	EventSplit  = "SPLIT" // adjustment crossed zero; excess moved to a new position
)

// Position is a held quantity of a symbol at a recorded entry price.
// The sign of Quantity encodes direction: positive = long, negative = short.
// Positions are never deleted, only marked CLOSED (audit retained).
type Position struct {
	ID         string          `json:"id" db:"id"`
	Symbol     string          `json:"symbol" db:"symbol"`
	Quantity   decimal.Decimal `json:"quantity" db:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price" db:"entry_price"` // fixed at creation
	Status     string          `json:"status" db:"status"`
	OpenedAt   time.Time       `json:"opened_at" db:"opened_at"`
	ClosedAt   time.Time       `json:"closed_at,omitempty" db:"closed_at"` // zero unless CLOSED
}

// Side returns "LONG" or "SHORT" from the sign of Quantity.
func (p Position) Side() string {
	if p.Quantity.IsNegative() {
		return "SHORT"
	}
	return "LONG"
}

// IsOpen reports whether the position is still open.
func (p Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// PricePoint is the latest observed market price for a symbol.
// Superseded by newer timestamps, never mutated in place.
type PricePoint struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	Volume     decimal.Decimal `json:"volume"`
	ObservedAt time.Time       `json:"observed_at"`
}

// LedgerEvent is an immutable record of a position mutation.
// Once created, these are never modified or deleted.
type LedgerEvent struct {
	ID            string          `json:"id" db:"id"`
	PositionID    string          `json:"position_id" db:"position_id"`
	Symbol        string          `json:"symbol" db:"symbol"`
	Kind          string          `json:"kind" db:"kind"`
	Delta         decimal.Decimal `json:"delta" db:"delta"`
	Price         decimal.Decimal `json:"price" db:"price"` // zero for CLOSE (no execution price)
	QuantityAfter decimal.Decimal `json:"quantity_after" db:"quantity_after"`
	RelatedID     string          `json:"related_id,omitempty" db:"related_id"` // SPLIT: counterpart position
	Timestamp     time.Time       `json:"timestamp" db:"timestamp"`
}
