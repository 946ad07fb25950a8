// Package feed maintains the latest observed market price per symbol.
//
// For a given symbol only the most recent PricePoint is retained: an update
// carrying a timestamp at or before the stored one is silently dropped
// (supersession). Points are replaced, never mutated in place.
package feed

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fnf/trading-core/internal/model"
	"github.com/fnf/trading-core/internal/symbol"
)

var (
	// ErrNoPrice is returned by Latest when no price has ever been
	// observed for the symbol.
	ErrNoPrice = errors.New("feed: no price observed for symbol")

	// ErrInvalidInput is returned by Update for out-of-range arguments.
	ErrInvalidInput = errors.New("feed: invalid input")
)

// UpdateFunc is invoked after an update is applied, outside the feed lock.
// Used for WebSocket broadcasts and metrics.
type UpdateFunc func(model.PricePoint)

// Feed is the latest-price cache. Safe for concurrent use.
type Feed struct {
	mu       sync.RWMutex
	latest   map[string]model.PricePoint
	onUpdate UpdateFunc
}

// New creates an empty price feed. Pass nil for onUpdate if no hook
// is needed.
func New(onUpdate UpdateFunc) *Feed {
	return &Feed{
		latest:   make(map[string]model.PricePoint),
		onUpdate: onUpdate,
	}
}

// Update records a price observation. The stored point is replaced only if
// observedAt is strictly newer than the current one; a stale update is a
// no-op, not an error (applied=false).
func (f *Feed) Update(sym string, price, volume decimal.Decimal, observedAt time.Time) (bool, error) {
	norm, err := symbol.Normalize(sym)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return false, fmt.Errorf("%w: price must be positive, got %s", ErrInvalidInput, price)
	}
	if volume.IsNegative() {
		return false, fmt.Errorf("%w: volume must be non-negative, got %s", ErrInvalidInput, volume)
	}
	if observedAt.IsZero() {
		return false, fmt.Errorf("%w: observed_at is required", ErrInvalidInput)
	}

	point := model.PricePoint{
		Symbol:     norm,
		Price:      price,
		Volume:     volume,
		ObservedAt: observedAt,
	}

	f.mu.Lock()
	if stored, ok := f.latest[norm]; ok && !observedAt.After(stored.ObservedAt) {
		f.mu.Unlock()
		return false, nil
	}
	f.latest[norm] = point
	f.mu.Unlock()

	if f.onUpdate != nil {
		f.onUpdate(point)
	}
	return true, nil
}

// Latest returns the most recent price point for a symbol.
func (f *Feed) Latest(sym string) (model.PricePoint, error) {
	norm, err := symbol.Normalize(sym)
	if err != nil {
		return model.PricePoint{}, fmt.Errorf("%w: %s", ErrNoPrice, sym)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	point, ok := f.latest[norm]
	if !ok {
		return model.PricePoint{}, fmt.Errorf("%w: %s", ErrNoPrice, norm)
	}
	return point, nil
}

// Symbols returns the sorted list of symbols with an observed price.
func (f *Feed) Symbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	symbols := make([]string, 0, len(f.latest))
	for sym := range f.latest {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}
