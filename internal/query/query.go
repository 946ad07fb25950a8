// Package query provides read-only projections over the ledger and the
// price feed for external consumption. It holds no state of its own.
package query

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/fnf/trading-core/internal/feed"
	"github.com/fnf/trading-core/internal/ledger"
	"github.com/fnf/trading-core/internal/model"
	"github.com/fnf/trading-core/internal/pnl"
)

// PositionView is a position snapshot enriched with the current market
// price and unrealized P&L. Price and P&L are nil when no price has been
// observed for the symbol (degraded, not an error).
type PositionView struct {
	model.Position
	Side          string           `json:"side"`
	CurrentPrice  *decimal.Decimal `json:"current_price"`
	UnrealizedPnL *decimal.Decimal `json:"unrealized_pnl"`
}

// Service composes ledger snapshots with price-feed lookups.
type Service struct {
	ledger *ledger.Ledger
	feed   *feed.Feed
}

// NewService creates a query service over the given ledger and feed.
func NewService(l *ledger.Ledger, f *feed.Feed) *Service {
	return &Service{ledger: l, feed: f}
}

// view marks a position to market. Closed positions and positions without
// an observed price carry nil price/P&L fields.
func (s *Service) view(p model.Position) PositionView {
	v := PositionView{Position: p, Side: p.Side()}
	if !p.IsOpen() {
		return v
	}

	point, err := s.feed.Latest(p.Symbol)
	if err != nil {
		// Price unavailable: partial data, the call still succeeds.
		return v
	}

	price := point.Price
	unrealized := pnl.Unrealized(p, price)
	v.CurrentPrice = &price
	v.UnrealizedPnL = &unrealized
	return v
}

// PositionsWithPnL returns all positions (optionally filtered by status),
// each marked to the latest observed price.
func (s *Service) PositionsWithPnL(ctx context.Context, status string) ([]PositionView, error) {
	positions, err := s.ledger.ListPositions(ctx, status)
	if err != nil {
		return nil, err
	}

	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, s.view(p))
	}
	return views, nil
}

// PositionWithPnL returns a single position marked to the latest price.
func (s *Service) PositionWithPnL(ctx context.Context, id string) (PositionView, error) {
	p, err := s.ledger.GetPosition(ctx, id)
	if err != nil {
		return PositionView{}, err
	}
	return s.view(p), nil
}

// MarketData returns the latest price point for a symbol. The feed's
// not-found error is surfaced unchanged.
func (s *Service) MarketData(_ context.Context, sym string) (model.PricePoint, error) {
	return s.feed.Latest(sym)
}

// Symbols returns the sorted list of symbols with an observed price.
func (s *Service) Symbols(_ context.Context) []string {
	return s.feed.Symbols()
}

// IsNotFound reports whether err is a missing-position or missing-price
// error from either source the service composes.
func IsNotFound(err error) bool {
	return errors.Is(err, ledger.ErrNotFound) || errors.Is(err, feed.ErrNoPrice)
}
