// Package risk implements exposure limits that account for correlation
// between instruments sharing a base asset.
//
// A trader long BTCUSD, BTCEUR, and BTCJPY holds one directional bet three
// times over. This package detects related instruments by symbol prefix
// matching and enforces aggregate exposure limits on top of the per-symbol
// cap.
package risk

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/fnf/trading-core/internal/symbol"
)

var (
	// ErrSymbolLimitExceeded is returned when an open or adjustment would
	// push a single symbol's net exposure beyond the per-symbol maximum.
	ErrSymbolLimitExceeded = errors.New("risk: per-symbol exposure limit exceeded")

	// ErrCorrelatedLimitExceeded is returned when an open or adjustment
	// would push the aggregate absolute exposure across instruments sharing
	// a base-asset prefix beyond the correlated maximum.
	ErrCorrelatedLimitExceeded = errors.New("risk: correlated exposure limit exceeded")
)

// Limiter enforces exposure limits with correlation awareness.
//
// Correlation detection uses symbol prefix matching: instruments whose
// normalized symbols share the first PrefixLen characters are treated as one
// correlated group. PrefixLen=3 groups the usual BASE+QUOTE crypto pairs
// (BTCUSD, BTCEUR); a longer prefix narrows the group.
type Limiter struct {
	// MaxPerSymbol is the maximum absolute net exposure in any one symbol.
	MaxPerSymbol decimal.Decimal

	// MaxCorrelated is the maximum aggregate absolute exposure across all
	// symbols sharing the same prefix.
	MaxCorrelated decimal.Decimal

	// PrefixLen is the number of leading characters two symbols must share
	// to be considered correlated.
	PrefixLen int
}

// NewLimiter creates a limiter with the given per-symbol and correlated
// exposure limits.
func NewLimiter(maxPerSymbol, maxCorrelated decimal.Decimal, prefixLen int) *Limiter {
	if prefixLen < 1 {
		prefixLen = 1
	}
	return &Limiter{
		MaxPerSymbol:  maxPerSymbol,
		MaxCorrelated: maxCorrelated,
		PrefixLen:     prefixLen,
	}
}

// CheckLimit validates whether an exposure change respects the limits.
//
// Parameters:
//   - targetSymbol: normalized symbol being opened or adjusted
//   - delta: signed change in net exposure (position quantity delta)
//   - existing: map of symbol → current net open exposure
//
// Returns nil if the change is within limits, or an error describing the
// violation.
func (l *Limiter) CheckLimit(
	targetSymbol string,
	delta decimal.Decimal,
	existing map[string]decimal.Decimal,
) error {
	// 1. Per-symbol limit.
	current := existing[targetSymbol]
	next := current.Add(delta)

	if next.Abs().GreaterThan(l.MaxPerSymbol) {
		return ErrSymbolLimitExceeded
	}

	// 2. Correlated exposure: sum |exposure| across symbols sharing prefix.
	targetBase := symbol.Base(targetSymbol, l.PrefixLen)
	totalCorrelated := next.Abs()

	for sym, exposure := range existing {
		if sym == targetSymbol {
			continue // already counted via next above
		}
		if symbol.Base(sym, l.PrefixLen) == targetBase {
			totalCorrelated = totalCorrelated.Add(exposure.Abs())
		}
	}

	if totalCorrelated.GreaterThan(l.MaxCorrelated) {
		return ErrCorrelatedLimitExceeded
	}

	return nil
}
