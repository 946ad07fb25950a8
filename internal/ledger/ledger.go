// Package ledger is the sole writer of position state. It enforces the
// position lifecycle (open → adjust* → close), records an immutable event
// per mutation, and hands out snapshots — callers never see live references.
//
// Crossing-zero policy: an adjustment whose delta carries the net quantity
// through zero closes the position and opens a new one for the excess at
// the adjustment price (net-position split). An adjustment landing exactly
// on zero just closes.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fnf/trading-core/internal/model"
	"github.com/fnf/trading-core/internal/risk"
	"github.com/fnf/trading-core/internal/store"
	"github.com/fnf/trading-core/internal/symbol"
)

var (
	// ErrInvalidInput is returned for malformed or out-of-range arguments.
	ErrInvalidInput = errors.New("ledger: invalid input")

	// ErrNotFound is returned when a position id is unknown.
	ErrNotFound = errors.New("ledger: position not found")

	// ErrInvalidState is returned when an operation is illegal for the
	// position's current lifecycle state (e.g. adjusting a closed position).
	ErrInvalidState = errors.New("ledger: operation not allowed in current state")
)

// Ledger owns the authoritative set of positions. Mutations on the same
// position id are serialized by a per-id lock; operations on different ids
// do not block each other.
type Ledger struct {
	store   store.Store
	limiter *risk.Limiter // nil disables exposure limits

	// locks holds one mutex per position id for read-modify-write
	// serialization. Entries are never removed (positions are never
	// deleted).
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	// limitMu serializes exposure-limit accounting (check + write) so two
	// concurrent opens cannot both pass a limit only one of them fits in.
	limitMu sync.Mutex
}

// New creates a ledger over the given store. Pass nil for limiter if
// exposure limits are not enforced.
func New(st store.Store, limiter *risk.Limiter) *Ledger {
	return &Ledger{
		store:   st,
		limiter: limiter,
		locks:   make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex guarding one position id.
func (l *Ledger) lockFor(id string) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()

	mu, ok := l.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[id] = mu
	}
	return mu
}

// checkExposure validates an exposure change against the limiter.
// Callers must hold limitMu across the check and the subsequent write.
func (l *Ledger) checkExposure(ctx context.Context, sym string, delta decimal.Decimal) error {
	if l.limiter == nil {
		return nil
	}
	exposures, err := l.store.GetSymbolExposures(ctx)
	if err != nil {
		return fmt.Errorf("check exposure: %w", err)
	}
	return l.limiter.CheckLimit(sym, delta, exposures)
}

// OpenPosition creates a new OPEN position. The result is visible to
// subsequent reads immediately.
func (l *Ledger) OpenPosition(ctx context.Context, sym string, quantity, entryPrice decimal.Decimal) (model.Position, error) {
	norm, err := symbol.Normalize(sym)
	if err != nil {
		return model.Position{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if quantity.IsZero() {
		return model.Position{}, fmt.Errorf("%w: quantity must be non-zero", ErrInvalidInput)
	}
	if entryPrice.LessThanOrEqual(decimal.Zero) {
		return model.Position{}, fmt.Errorf("%w: entry price must be positive, got %s", ErrInvalidInput, entryPrice)
	}

	if l.limiter != nil {
		l.limitMu.Lock()
		defer l.limitMu.Unlock()
		if err := l.checkExposure(ctx, norm, quantity); err != nil {
			return model.Position{}, err
		}
	}

	now := time.Now().UTC()
	p := model.Position{
		ID:         uuid.New().String(),
		Symbol:     norm,
		Quantity:   quantity,
		EntryPrice: entryPrice,
		Status:     model.StatusOpen,
		OpenedAt:   now,
	}

	if err := l.store.InsertPosition(ctx, &p); err != nil {
		return model.Position{}, fmt.Errorf("open position: %w", err)
	}
	l.appendEvent(ctx, model.LedgerEvent{
		PositionID:    p.ID,
		Symbol:        norm,
		Kind:          model.EventOpen,
		Delta:         quantity,
		Price:         entryPrice,
		QuantityAfter: quantity,
		Timestamp:     now,
	})

	return p, nil
}

// AdjustPosition changes an open position's quantity by delta, executed at
// the given price. If delta carries the net quantity across zero, the
// position closes and the excess opens a new position at price; the
// returned snapshot is the surviving open position in that case.
func (l *Ledger) AdjustPosition(ctx context.Context, id string, delta, price decimal.Decimal) (model.Position, error) {
	if delta.IsZero() {
		return model.Position{}, fmt.Errorf("%w: delta must be non-zero", ErrInvalidInput)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return model.Position{}, fmt.Errorf("%w: price must be positive, got %s", ErrInvalidInput, price)
	}

	mu := l.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	p, err := l.getForUpdate(ctx, id)
	if err != nil {
		return model.Position{}, err
	}
	if p.Status != model.StatusOpen {
		return model.Position{}, fmt.Errorf("%w: position %s is %s", ErrInvalidState, id, p.Status)
	}

	newQty := p.Quantity.Add(delta)
	now := time.Now().UTC()

	// Exposure accounting serializes only when limits are enabled, so
	// adjustments on different ids stay independent otherwise.
	if l.limiter != nil {
		l.limitMu.Lock()
		defer l.limitMu.Unlock()
		if err := l.checkExposure(ctx, p.Symbol, delta); err != nil {
			return model.Position{}, err
		}
	}

	switch {
	case newQty.IsZero():
		// Flattened exactly: close in place.
		p.Quantity = decimal.Zero
		p.Status = model.StatusClosed
		p.ClosedAt = now
		if err := l.store.UpdatePosition(ctx, p); err != nil {
			return model.Position{}, fmt.Errorf("adjust position %s: %w", id, err)
		}
		l.appendEvent(ctx, model.LedgerEvent{
			PositionID:    p.ID,
			Symbol:        p.Symbol,
			Kind:          model.EventAdjust,
			Delta:         delta,
			Price:         price,
			QuantityAfter: decimal.Zero,
			Timestamp:     now,
		})
		return *p, nil

	case newQty.Sign() != p.Quantity.Sign():
		// Crossed zero: close this position, open a new one for the excess.
		next := model.Position{
			ID:         uuid.New().String(),
			Symbol:     p.Symbol,
			Quantity:   newQty,
			EntryPrice: price,
			Status:     model.StatusOpen,
			OpenedAt:   now,
		}

		p.Quantity = decimal.Zero
		p.Status = model.StatusClosed
		p.ClosedAt = now
		if err := l.store.UpdatePosition(ctx, p); err != nil {
			return model.Position{}, fmt.Errorf("adjust position %s: %w", id, err)
		}
		if err := l.store.InsertPosition(ctx, &next); err != nil {
			return model.Position{}, fmt.Errorf("adjust position %s: split: %w", id, err)
		}

		l.appendEvent(ctx, model.LedgerEvent{
			PositionID:    p.ID,
			Symbol:        p.Symbol,
			Kind:          model.EventSplit,
			Delta:         delta,
			Price:         price,
			QuantityAfter: decimal.Zero,
			RelatedID:     next.ID,
			Timestamp:     now,
		})
		l.appendEvent(ctx, model.LedgerEvent{
			PositionID:    next.ID,
			Symbol:        next.Symbol,
			Kind:          model.EventOpen,
			Delta:         newQty,
			Price:         price,
			QuantityAfter: newQty,
			RelatedID:     p.ID,
			Timestamp:     now,
		})
		return next, nil

	default:
		p.Quantity = newQty
		if err := l.store.UpdatePosition(ctx, p); err != nil {
			return model.Position{}, fmt.Errorf("adjust position %s: %w", id, err)
		}
		l.appendEvent(ctx, model.LedgerEvent{
			PositionID:    p.ID,
			Symbol:        p.Symbol,
			Kind:          model.EventAdjust,
			Delta:         delta,
			Price:         price,
			QuantityAfter: newQty,
			Timestamp:     now,
		})
		return *p, nil
	}
}

// ClosePosition marks a position CLOSED. Terminal: no further mutation is
// permitted and ClosedAt never changes after the first successful close.
func (l *Ledger) ClosePosition(ctx context.Context, id string) (model.Position, error) {
	mu := l.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	p, err := l.getForUpdate(ctx, id)
	if err != nil {
		return model.Position{}, err
	}
	if p.Status != model.StatusOpen {
		return model.Position{}, fmt.Errorf("%w: position %s already closed", ErrInvalidState, id)
	}

	now := time.Now().UTC()
	p.Status = model.StatusClosed
	p.ClosedAt = now

	if err := l.store.UpdatePosition(ctx, p); err != nil {
		return model.Position{}, fmt.Errorf("close position %s: %w", id, err)
	}
	l.appendEvent(ctx, model.LedgerEvent{
		PositionID:    p.ID,
		Symbol:        p.Symbol,
		Kind:          model.EventClose,
		Delta:         decimal.Zero,
		Price:         decimal.Zero,
		QuantityAfter: p.Quantity,
		Timestamp:     now,
	})

	return *p, nil
}

// GetPosition returns a snapshot of one position.
func (l *Ledger) GetPosition(ctx context.Context, id string) (model.Position, error) {
	p, err := l.getForUpdate(ctx, id)
	if err != nil {
		return model.Position{}, err
	}
	return *p, nil
}

// ListPositions returns snapshots, optionally filtered by status.
func (l *Ledger) ListPositions(ctx context.Context, status string) ([]model.Position, error) {
	if status != "" && status != model.StatusOpen && status != model.StatusClosed {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return l.store.ListPositions(ctx, status)
}

// GetHistory returns the immutable event trail of a position, oldest first.
func (l *Ledger) GetHistory(ctx context.Context, id string) ([]model.LedgerEvent, error) {
	if _, err := l.getForUpdate(ctx, id); err != nil {
		return nil, err
	}
	return l.store.GetEventsByPosition(ctx, id)
}

// getForUpdate fetches a position, mapping the store's not-found error.
func (l *Ledger) getForUpdate(ctx context.Context, id string) (*model.Position, error) {
	p, err := l.store.GetPosition(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get position %s: %w", id, err)
	}
	return p, nil
}

// appendEvent assigns an id and persists an audit event. A journal write
// failure must not roll back the already-applied mutation, so it is logged
// and otherwise dropped.
func (l *Ledger) appendEvent(ctx context.Context, e model.LedgerEvent) {
	e.ID = uuid.New().String()
	if err := l.store.InsertEvent(ctx, &e); err != nil {
		slog.Error("ledger event write failed",
			"position_id", e.PositionID,
			"kind", e.Kind,
			"err", err,
		)
	}
}
