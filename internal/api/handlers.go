// Package api provides the HTTP handlers exposing the trading core:
// position lifecycle, market data ingestion and lookup, health checks,
// and the WebSocket stream.
//
// The handlers are a thin adapter: every response is built from ledger or
// feed snapshots, never assembled from request state.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fnf/trading-core/internal/feed"
	"github.com/fnf/trading-core/internal/ledger"
	"github.com/fnf/trading-core/internal/metrics"
	"github.com/fnf/trading-core/internal/model"
	"github.com/fnf/trading-core/internal/query"
	"github.com/fnf/trading-core/internal/risk"
)

// Service bundles the core components behind the HTTP handlers.
type Service struct {
	ledger *ledger.Ledger
	query  *query.Service
	feed   *feed.Feed
	hub    *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates the HTTP-facing service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(l *ledger.Ledger, q *query.Service, f *feed.Feed, hub *WSHub) *Service {
	return &Service{ledger: l, query: q, feed: f, hub: hub}
}

// --- Request types ---

// OpenPositionRequest is the JSON body for POST /positions.
// Quantity is signed (+long / -short); a "SHORT" side with a positive
// quantity is accepted and negated for convenience.
type OpenPositionRequest struct {
	Symbol     string          `json:"symbol"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Side       string          `json:"side,omitempty"` // optional: "LONG" or "SHORT"
}

// AdjustPositionRequest is the JSON body for POST /positions/{id}/adjust.
type AdjustPositionRequest struct {
	Delta decimal.Decimal `json:"delta"`
	Price decimal.Decimal `json:"price"`
}

// PriceUpdateRequest is the JSON body for POST /market-data.
type PriceUpdateRequest struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	Volume     decimal.Decimal `json:"volume"`
	ObservedAt time.Time       `json:"observed_at"`
}

// PriceUpdateResponse reports whether the update superseded the stored point.
type PriceUpdateResponse struct {
	Applied bool             `json:"applied"`
	Latest  model.PricePoint `json:"latest"`
}

// --- Position handlers ---

// ListPositions handles GET /api/v1/positions?status=OPEN|CLOSED
func (s *Service) ListPositions(w http.ResponseWriter, r *http.Request) {
	views, err := s.query.PositionsWithPnL(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// OpenPosition handles POST /api/v1/positions
func (s *Service) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req OpenPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	qty := req.Quantity
	if req.Side == "SHORT" && qty.IsPositive() {
		qty = qty.Neg()
	}

	p, err := s.ledger.OpenPosition(r.Context(), req.Symbol, qty, req.EntryPrice)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	metrics.PositionsOpened.WithLabelValues(p.Side()).Inc()
	slog.Info("position opened",
		"id", p.ID,
		"symbol", p.Symbol,
		"side", p.Side(),
		"qty", p.Quantity.String(),
		"entry_price", p.EntryPrice.String(),
	)
	s.broadcastPosition("position_opened", p)

	writeJSON(w, http.StatusCreated, p)
}

// GetPosition handles GET /api/v1/positions/{positionID}
func (s *Service) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "positionID")

	view, err := s.query.PositionWithPnL(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// AdjustPosition handles POST /api/v1/positions/{positionID}/adjust
func (s *Service) AdjustPosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "positionID")

	var req AdjustPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, err := s.ledger.AdjustPosition(r.Context(), id, req.Delta, req.Price)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	slog.Info("position adjusted",
		"id", id,
		"delta", req.Delta.String(),
		"price", req.Price.String(),
		"result_id", p.ID,
		"result_qty", p.Quantity.String(),
	)
	if p.ID != id {
		// Adjustment crossed zero: old position closed, new one opened.
		metrics.PositionsClosed.WithLabelValues("split").Inc()
		metrics.PositionsOpened.WithLabelValues(p.Side()).Inc()
	} else if !p.IsOpen() {
		metrics.PositionsClosed.WithLabelValues("flatten").Inc()
	}
	s.broadcastPosition("position_adjusted", p)

	writeJSON(w, http.StatusOK, p)
}

// ClosePosition handles POST /api/v1/positions/{positionID}/close
func (s *Service) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "positionID")

	p, err := s.ledger.ClosePosition(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	metrics.PositionsClosed.WithLabelValues("close").Inc()
	slog.Info("position closed", "id", p.ID, "symbol", p.Symbol)
	s.broadcastPosition("position_closed", p)

	writeJSON(w, http.StatusOK, p)
}

// GetPositionHistory handles GET /api/v1/positions/{positionID}/history
func (s *Service) GetPositionHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "positionID")

	events, err := s.ledger.GetHistory(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if events == nil {
		events = []model.LedgerEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// --- Market data handlers ---

// GetMarketData handles GET /api/v1/market-data/{symbol}
func (s *Service) GetMarketData(w http.ResponseWriter, r *http.Request) {
	point, err := s.query.MarketData(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, point)
}

// UpdateMarketData handles POST /api/v1/market-data
// Stale updates (observed_at not newer than the stored point) are reported
// as applied=false with status 200, not as errors.
func (s *Service) UpdateMarketData(w http.ResponseWriter, r *http.Request) {
	var req PriceUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	observedAt := req.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	applied, err := s.feed.Update(req.Symbol, req.Price, req.Volume, observedAt)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if applied {
		metrics.PriceUpdates.WithLabelValues("applied").Inc()
	} else {
		metrics.PriceUpdates.WithLabelValues("stale").Inc()
	}

	latest, err := s.feed.Latest(req.Symbol)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PriceUpdateResponse{Applied: applied, Latest: latest})
}

// ListSymbols handles GET /api/v1/symbols
func (s *Service) ListSymbols(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"symbols": s.query.Symbols(r.Context()),
	})
}

// --- Helpers ---

func (s *Service) broadcastPosition(msgType string, p model.Position) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(WSMessage{
		Type:       msgType,
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Quantity:   p.Quantity.String(),
		Status:     p.Status,
	})
}

// writeDomainError maps core errors onto the HTTP status contract:
// not-found → 404, invalid input/state → 400, exposure limits → 409.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case query.IsNotFound(err):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrInvalidInput),
		errors.Is(err, ledger.ErrInvalidState),
		errors.Is(err, feed.ErrInvalidInput):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, risk.ErrSymbolLimitExceeded),
		errors.Is(err, risk.ErrCorrelatedLimitExceeded):
		metrics.ExposureLimitRejections.Inc()
		writeError(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("request failed", "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
