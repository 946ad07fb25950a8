// Package symbol handles trading symbol normalization and validation.
package symbol

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// symbolRegex matches normalized symbols: 2-12 upper-case alphanumerics.
// Examples: BTCUSD, ETHUSD, AAPL, TSLA.
var symbolRegex = regexp.MustCompile(`^[A-Z0-9]{2,12}$`)

// ErrInvalidSymbol is returned for symbols that fail validation.
var ErrInvalidSymbol = errors.New("symbol: invalid symbol")

// Normalize upper-cases and validates a symbol string.
func Normalize(s string) (string, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	if !symbolRegex.MatchString(norm) {
		return "", fmt.Errorf("%w: %q (expected 2-12 alphanumerics)", ErrInvalidSymbol, s)
	}
	return norm, nil
}

// Base returns the leading `length` characters of a normalized symbol,
// used to group correlated instruments (BTCUSD and BTCEUR share "BTC").
func Base(sym string, length int) string {
	if length >= len(sym) {
		return sym
	}
	return sym[:length]
}
