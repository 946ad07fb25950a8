package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fnf/trading-core/internal/api"
	"github.com/fnf/trading-core/internal/feed"
	"github.com/fnf/trading-core/internal/ledger"
	"github.com/fnf/trading-core/internal/model"
	"github.com/fnf/trading-core/internal/query"
	"github.com/fnf/trading-core/internal/risk"
	"github.com/fnf/trading-core/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestEnv wires the full stack over an in-memory store and chi router.
func newTestEnv(t *testing.T, limiter *risk.Limiter) (*feed.Feed, chi.Router) {
	t.Helper()
	f := feed.New(nil)
	l := ledger.New(store.NewMemoryStore(), limiter)
	q := query.NewService(l, f)
	svc := api.NewService(l, q, f, nil)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/positions", svc.ListPositions)
		r.Post("/positions", svc.OpenPosition)
		r.Get("/positions/{positionID}", svc.GetPosition)
		r.Post("/positions/{positionID}/adjust", svc.AdjustPosition)
		r.Post("/positions/{positionID}/close", svc.ClosePosition)
		r.Get("/positions/{positionID}/history", svc.GetPositionHistory)
		r.Get("/market-data/{symbol}", svc.GetMarketData)
		r.Post("/market-data", svc.UpdateMarketData)
		r.Get("/symbols", svc.ListSymbols)
	})
	return f, r
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func openPosition(t *testing.T, router chi.Router, req api.OpenPositionRequest) model.Position {
	t.Helper()
	w := doJSON(t, router, "POST", "/api/v1/positions", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("open position: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var p model.Position
	json.Unmarshal(w.Body.Bytes(), &p)
	return p
}

// --- Position lifecycle ---

func TestOpenPosition_Created(t *testing.T) {
	_, router := newTestEnv(t, nil)

	p := openPosition(t, router, api.OpenPositionRequest{
		Symbol:     "btcusd",
		Quantity:   d(1.5),
		EntryPrice: d(45000),
	})

	if p.ID == "" {
		t.Error("expected non-empty id")
	}
	if p.Symbol != "BTCUSD" {
		t.Errorf("symbol should be normalized, got %q", p.Symbol)
	}
	if p.Status != model.StatusOpen {
		t.Errorf("expected OPEN, got %s", p.Status)
	}
}

func TestOpenPosition_ShortSideNegates(t *testing.T) {
	_, router := newTestEnv(t, nil)

	p := openPosition(t, router, api.OpenPositionRequest{
		Symbol:     "ETHUSD",
		Quantity:   d(4),
		EntryPrice: d(3000),
		Side:       "SHORT",
	})

	if !p.Quantity.Equal(d(-4)) {
		t.Errorf("SHORT side should negate quantity, got %s", p.Quantity)
	}
}

func TestOpenPosition_InvalidInput(t *testing.T) {
	_, router := newTestEnv(t, nil)

	w := doJSON(t, router, "POST", "/api/v1/positions", api.OpenPositionRequest{
		Symbol:     "BTCUSD",
		Quantity:   decimal.Zero,
		EntryPrice: d(45000),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero quantity, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/api/v1/positions", api.OpenPositionRequest{
		Symbol:     "BTCUSD",
		Quantity:   d(1),
		EntryPrice: d(-5),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative entry price, got %d", w.Code)
	}
}

func TestOpenPosition_ExposureLimit(t *testing.T) {
	limiter := risk.NewLimiter(d(10), d(100), 3)
	_, router := newTestEnv(t, limiter)

	openPosition(t, router, api.OpenPositionRequest{
		Symbol: "BTCUSD", Quantity: d(8), EntryPrice: d(45000),
	})

	w := doJSON(t, router, "POST", "/api/v1/positions", api.OpenPositionRequest{
		Symbol: "BTCUSD", Quantity: d(5), EntryPrice: d(45000),
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for exposure limit, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetPosition_NotFound(t *testing.T) {
	_, router := newTestEnv(t, nil)

	w := doJSON(t, router, "GET", "/api/v1/positions/no-such-id", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestAdjustPosition_CrossingReturnsNewPosition(t *testing.T) {
	_, router := newTestEnv(t, nil)

	p := openPosition(t, router, api.OpenPositionRequest{
		Symbol: "BTCUSD", Quantity: d(5), EntryPrice: d(45000),
	})

	w := doJSON(t, router, "POST", "/api/v1/positions/"+p.ID+"/adjust",
		api.AdjustPositionRequest{Delta: d(-8), Price: d(46000)})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got model.Position
	json.Unmarshal(w.Body.Bytes(), &got)
	if got.ID == p.ID {
		t.Error("crossing adjustment should return the split position")
	}
	if !got.Quantity.Equal(d(-3)) {
		t.Errorf("expected quantity -3, got %s", got.Quantity)
	}
}

func TestAdjustPosition_ClosedRejected(t *testing.T) {
	_, router := newTestEnv(t, nil)

	p := openPosition(t, router, api.OpenPositionRequest{
		Symbol: "BTCUSD", Quantity: d(2), EntryPrice: d(45000),
	})
	doJSON(t, router, "POST", "/api/v1/positions/"+p.ID+"/close", nil)

	w := doJSON(t, router, "POST", "/api/v1/positions/"+p.ID+"/adjust",
		api.AdjustPositionRequest{Delta: d(1), Price: d(46000)})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for closed position, got %d", w.Code)
	}
}

func TestClosePosition_DoubleCloseRejected(t *testing.T) {
	_, router := newTestEnv(t, nil)

	p := openPosition(t, router, api.OpenPositionRequest{
		Symbol: "BTCUSD", Quantity: d(2), EntryPrice: d(45000),
	})

	w := doJSON(t, router, "POST", "/api/v1/positions/"+p.ID+"/close", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("first close: expected 200, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/api/v1/positions/"+p.ID+"/close", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("second close: expected 400, got %d", w.Code)
	}
}

func TestGetPositionHistory(t *testing.T) {
	_, router := newTestEnv(t, nil)

	p := openPosition(t, router, api.OpenPositionRequest{
		Symbol: "BTCUSD", Quantity: d(2), EntryPrice: d(45000),
	})
	doJSON(t, router, "POST", "/api/v1/positions/"+p.ID+"/adjust",
		api.AdjustPositionRequest{Delta: d(1), Price: d(45500)})

	w := doJSON(t, router, "GET", "/api/v1/positions/"+p.ID+"/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var events []model.LedgerEvent
	json.Unmarshal(w.Body.Bytes(), &events)
	if len(events) != 2 {
		t.Errorf("expected 2 events (open, adjust), got %d", len(events))
	}
}

// --- Positions with P&L ---

func TestListPositions_PnLScenario(t *testing.T) {
	f, router := newTestEnv(t, nil)

	openPosition(t, router, api.OpenPositionRequest{
		Symbol: "BTCUSD", Quantity: d(1.5), EntryPrice: d(45000),
	})
	f.Update("BTCUSD", d(46500), d(1500.75), time.Now().UTC())

	w := doJSON(t, router, "GET", "/api/v1/positions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var views []query.PositionView
	json.Unmarshal(w.Body.Bytes(), &views)
	if len(views) != 1 {
		t.Fatalf("expected 1 position, got %d", len(views))
	}
	if views[0].UnrealizedPnL == nil || !views[0].UnrealizedPnL.Equal(d(2250)) {
		t.Errorf("expected pnl 2250 exactly, got %v", views[0].UnrealizedPnL)
	}
}

func TestListPositions_NullPnLWithoutPrice(t *testing.T) {
	_, router := newTestEnv(t, nil)

	openPosition(t, router, api.OpenPositionRequest{
		Symbol: "NEWCOIN", Quantity: d(10), EntryPrice: d(1),
	})

	w := doJSON(t, router, "GET", "/api/v1/positions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("missing price must not fail the call: %d", w.Code)
	}

	var raw []map[string]json.RawMessage
	json.Unmarshal(w.Body.Bytes(), &raw)
	if len(raw) != 1 {
		t.Fatalf("expected 1 position, got %d", len(raw))
	}
	if string(raw[0]["unrealized_pnl"]) != "null" {
		t.Errorf("expected unrealized_pnl null, got %s", raw[0]["unrealized_pnl"])
	}
}

func TestListPositions_StatusFilter(t *testing.T) {
	_, router := newTestEnv(t, nil)

	p := openPosition(t, router, api.OpenPositionRequest{
		Symbol: "BTCUSD", Quantity: d(1), EntryPrice: d(45000),
	})
	openPosition(t, router, api.OpenPositionRequest{
		Symbol: "ETHUSD", Quantity: d(2), EntryPrice: d(3000),
	})
	doJSON(t, router, "POST", "/api/v1/positions/"+p.ID+"/close", nil)

	w := doJSON(t, router, "GET", "/api/v1/positions?status=OPEN", nil)
	var views []query.PositionView
	json.Unmarshal(w.Body.Bytes(), &views)
	if len(views) != 1 || views[0].Symbol != "ETHUSD" {
		t.Errorf("expected only the open ETHUSD position, got %d", len(views))
	}

	w = doJSON(t, router, "GET", "/api/v1/positions?status=PENDING", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown status filter: expected 400, got %d", w.Code)
	}
}

// --- Market data ---

func TestMarketData_RoundTrip(t *testing.T) {
	_, router := newTestEnv(t, nil)

	w := doJSON(t, router, "POST", "/api/v1/market-data", api.PriceUpdateRequest{
		Symbol:     "btcusd",
		Price:      d(45000),
		Volume:     d(1500.75),
		ObservedAt: time.Now().UTC(),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp api.PriceUpdateResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Applied {
		t.Error("first update should be applied")
	}

	w = doJSON(t, router, "GET", "/api/v1/market-data/BTCUSD", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	var point model.PricePoint
	json.Unmarshal(w.Body.Bytes(), &point)
	if !point.Price.Equal(d(45000)) {
		t.Errorf("expected price 45000, got %s", point.Price)
	}
}

func TestMarketData_StaleReportedNotFailed(t *testing.T) {
	_, router := newTestEnv(t, nil)
	now := time.Now().UTC()

	doJSON(t, router, "POST", "/api/v1/market-data", api.PriceUpdateRequest{
		Symbol: "BTCUSD", Price: d(45000), ObservedAt: now,
	})

	w := doJSON(t, router, "POST", "/api/v1/market-data", api.PriceUpdateRequest{
		Symbol: "BTCUSD", Price: d(44000), ObservedAt: now.Add(-time.Minute),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("stale update should return 200, got %d", w.Code)
	}

	var resp api.PriceUpdateResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Applied {
		t.Error("stale update should report applied=false")
	}
	if !resp.Latest.Price.Equal(d(45000)) {
		t.Errorf("latest should be unchanged, got %s", resp.Latest.Price)
	}
}

func TestMarketData_UnknownSymbol(t *testing.T) {
	_, router := newTestEnv(t, nil)

	w := doJSON(t, router, "GET", "/api/v1/market-data/UNKNOWN", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestMarketData_InvalidUpdate(t *testing.T) {
	_, router := newTestEnv(t, nil)

	w := doJSON(t, router, "POST", "/api/v1/market-data", api.PriceUpdateRequest{
		Symbol: "BTCUSD", Price: d(-1),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative price, got %d", w.Code)
	}
}

func TestListSymbols(t *testing.T) {
	f, router := newTestEnv(t, nil)
	now := time.Now().UTC()

	f.Update("ETHUSD", d(3000), d(0), now)
	f.Update("BTCUSD", d(45000), d(0), now)

	w := doJSON(t, router, "GET", "/api/v1/symbols", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp map[string][]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	symbols := resp["symbols"]
	if len(symbols) != 2 || symbols[0] != "BTCUSD" || symbols[1] != "ETHUSD" {
		t.Errorf("expected sorted [BTCUSD ETHUSD], got %v", symbols)
	}
}
