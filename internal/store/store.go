// Package store defines the persistence interface for the trading core.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/fnf/trading-core/internal/model"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a position id is unknown to the store.
var ErrNotFound = errors.New("store: position not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer. The ledger is the only writer.
type Store interface {
	// --- Position state ---

	// InsertPosition persists a newly opened position.
	InsertPosition(ctx context.Context, p *model.Position) error

	// UpdatePosition replaces the mutable fields of an existing position.
	UpdatePosition(ctx context.Context, p *model.Position) error

	// GetPosition retrieves a position by id. Returns a copy.
	GetPosition(ctx context.Context, id string) (*model.Position, error)

	// ListPositions returns positions, optionally filtered by status
	// (model.StatusOpen / model.StatusClosed; "" returns all).
	ListPositions(ctx context.Context, status string) ([]model.Position, error)

	// --- Immutable event journal ---

	// InsertEvent appends an immutable mutation record.
	InsertEvent(ctx context.Context, e *model.LedgerEvent) error

	// GetEventsByPosition returns all events for a position, oldest first.
	GetEventsByPosition(ctx context.Context, positionID string) ([]model.LedgerEvent, error)

	// --- Exposure queries ---

	// GetSymbolExposures returns net open quantity per symbol.
	GetSymbolExposures(ctx context.Context) (map[string]decimal.Decimal, error)
}
