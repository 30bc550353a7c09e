package trading

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bibot/internal/binance"
)

// memStore is an in-memory cache.Store for tests
type memStore struct {
	docs    map[string][]byte
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string][]byte)}
}

func (s *memStore) Save(name string, data []byte) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.docs[name] = append([]byte(nil), data...)
	return nil
}

func (s *memStore) Load(name string) ([]byte, error) {
	data, ok := s.docs[name]
	if !ok {
		return nil, nil
	}
	return data, nil
}

func (s *memStore) Clear(name string) error {
	return s.Save(name, []byte("[]"))
}

func testPosition(mainID string, refs ...OrderRef) *Position {
	return &Position{
		MainOrderID: mainID,
		EntryPrice:  65000.0,
		Side:        SideLong,
		Quantity:    0.01,
		Orders:      refs,
		Timestamp:   time.Now().UTC(),
	}
}

func newTestManager(mock *binance.MockFuturesClient, store *memStore) *PositionManager {
	return NewPositionManager(mock, store, nil, testTradingConfig(), zerolog.Nop())
}

func TestAddPositionPersists(t *testing.T) {
	store := newMemStore()
	m := newTestManager(binance.NewMockFuturesClient(65000.0, 10000.0), store)

	m.AddPosition(testPosition("100"))

	if m.GetPositionCount() != 1 {
		t.Fatalf("position count = %d, want 1", m.GetPositionCount())
	}

	var saved []*Position
	if err := json.Unmarshal(store.docs["BTCUSDT"], &saved); err != nil {
		t.Fatalf("persisted document is not valid JSON: %v", err)
	}
	if len(saved) != 1 || saved[0].MainOrderID != "100" {
		t.Errorf("persisted set = %+v", saved)
	}
}

func TestLoadPositionsRoundTrip(t *testing.T) {
	store := newMemStore()
	m := newTestManager(binance.NewMockFuturesClient(65000.0, 10000.0), store)
	m.AddPosition(testPosition("100", OrderRef{ID: "101", Type: OrderTypeStopLoss}, OrderRef{ID: "102", Type: OrderTypeTakeProfit}))

	reloaded := newTestManager(binance.NewMockFuturesClient(65000.0, 10000.0), store)
	if err := reloaded.LoadPositions(); err != nil {
		t.Fatalf("LoadPositions failed: %v", err)
	}

	got := reloaded.Positions()
	if len(got) != 1 {
		t.Fatalf("loaded %d positions, want 1", len(got))
	}
	p := got[0]
	if p.MainOrderID != "100" || p.EntryPrice != 65000.0 || p.Side != SideLong || len(p.Orders) != 2 {
		t.Errorf("loaded position = %+v", p)
	}
}

func TestLoadPositionsCorruptCacheCleared(t *testing.T) {
	store := newMemStore()
	store.docs["BTCUSDT"] = []byte("{not json")

	m := newTestManager(binance.NewMockFuturesClient(65000.0, 10000.0), store)
	if err := m.LoadPositions(); err != nil {
		t.Fatalf("LoadPositions raised on corrupt cache: %v", err)
	}

	if m.GetPositionCount() != 0 {
		t.Errorf("position count = %d after corrupt load, want 0", m.GetPositionCount())
	}
	if string(store.docs["BTCUSDT"]) != "[]" {
		t.Errorf("corrupt cache was not cleared, contains %q", store.docs["BTCUSDT"])
	}
}

func TestLoadPositionsDropsInvalidRecords(t *testing.T) {
	store := newMemStore()
	store.docs["BTCUSDT"] = []byte(`[
		{"main_order_id":"100","entry_price":65000,"side":"LONG","quantity":0.01,"orders":[]},
		{"main_order_id":"","entry_price":65000,"side":"LONG","quantity":0.01,"orders":[]},
		{"main_order_id":"200","entry_price":-1,"side":"LONG","quantity":0.01,"orders":[]}
	]`)

	m := newTestManager(binance.NewMockFuturesClient(65000.0, 10000.0), store)
	if err := m.LoadPositions(); err != nil {
		t.Fatalf("LoadPositions failed: %v", err)
	}

	got := m.Positions()
	if len(got) != 1 || got[0].MainOrderID != "100" {
		t.Errorf("loaded positions = %+v, want only id 100", got)
	}
}

func TestCheckClosedPositionsZeroExposure(t *testing.T) {
	mock := binance.NewMockFuturesClient(65000.0, 10000.0)
	store := newMemStore()
	m := newTestManager(mock, store)

	m.AddPosition(testPosition("100",
		OrderRef{ID: "101", Type: OrderTypeStopLoss},
		OrderRef{ID: "102", Type: OrderTypeTakeProfit}))

	// No exposure on the exchange: the position must be removed, both
	// brackets attempted for cancellation, and the cache rewritten empty.
	if err := m.CheckClosedPositions(); err != nil {
		t.Fatalf("CheckClosedPositions failed: %v", err)
	}

	if m.GetPositionCount() != 0 {
		t.Errorf("position count = %d, want 0", m.GetPositionCount())
	}

	calls := strings.Join(mock.Calls, ",")
	if !strings.Contains(calls, "CancelOrder:101") || !strings.Contains(calls, "CancelOrder:102") {
		t.Errorf("bracket cancellations missing from calls: %v", mock.Calls)
	}

	var saved []*Position
	if err := json.Unmarshal(store.docs["BTCUSDT"], &saved); err != nil {
		t.Fatalf("persisted document invalid: %v", err)
	}
	if len(saved) != 0 {
		t.Errorf("persisted set = %+v, want empty", saved)
	}
}

func TestCheckClosedPositionsBracketsGoneWithExposure(t *testing.T) {
	mock := binance.NewMockFuturesClient(65000.0, 10000.0)
	// Create nonzero exchange exposure without resting bracket orders.
	if _, err := mock.PlaceMarketOrder("BTCUSDT", binance.SideBuy, 0.01); err != nil {
		t.Fatalf("PlaceMarketOrder failed: %v", err)
	}

	m := newTestManager(mock, newMemStore())
	m.AddPosition(testPosition("100",
		OrderRef{ID: "101", Type: OrderTypeStopLoss},
		OrderRef{ID: "102", Type: OrderTypeTakeProfit}))

	// Both bracket ids are absent from the open-order book. Even though the
	// exchange still shows exposure, the position must be judged closed.
	if err := m.CheckClosedPositions(); err != nil {
		t.Fatalf("CheckClosedPositions failed: %v", err)
	}
	if m.GetPositionCount() != 0 {
		t.Errorf("position count = %d, want 0", m.GetPositionCount())
	}
}

func TestCheckClosedPositionsWarnsOnBracketlessExposure(t *testing.T) {
	mock := binance.NewMockFuturesClient(65000.0, 10000.0)
	if _, err := mock.PlaceMarketOrder("BTCUSDT", binance.SideBuy, 0.01); err != nil {
		t.Fatalf("PlaceMarketOrder failed: %v", err)
	}

	var logs bytes.Buffer
	m := NewPositionManager(mock, newMemStore(), nil, testTradingConfig(), zerolog.New(&logs))

	// Both brackets failed at open: the position carries no order refs while
	// the exchange still shows exposure.
	m.AddPosition(testPosition("100"))

	if err := m.CheckClosedPositions(); err != nil {
		t.Fatalf("CheckClosedPositions failed: %v", err)
	}
	if m.GetPositionCount() != 0 {
		t.Errorf("position count = %d, want 0", m.GetPositionCount())
	}
	if !strings.Contains(logs.String(), "no bracket orders while exchange exposure remains") {
		t.Errorf("untracking of unmanaged exposure was not logged: %s", logs.String())
	}
}

func TestCheckClosedPositionsKeepsLivePosition(t *testing.T) {
	mock := binance.NewMockFuturesClient(65000.0, 10000.0)
	om := NewOrderManager(mock, testTradingConfig(), zerolog.Nop())
	m := newTestManager(mock, newMemStore())

	p, err := om.OpenPosition(SideLong, 0.01)
	if err != nil {
		t.Fatalf("OpenPosition failed: %v", err)
	}
	m.AddPosition(p)

	// Exposure exists and both brackets rest on the book: nothing to do.
	if err := m.CheckClosedPositions(); err != nil {
		t.Fatalf("CheckClosedPositions failed: %v", err)
	}
	if m.GetPositionCount() != 1 {
		t.Errorf("position count = %d, want 1", m.GetPositionCount())
	}
}

func TestCheckClosedPositionsAbortsOnExchangeError(t *testing.T) {
	mock := binance.NewMockFuturesClient(65000.0, 10000.0)
	mock.OpenOrdersErr = errors.New("network down")
	m := newTestManager(mock, newMemStore())
	m.AddPosition(testPosition("100", OrderRef{ID: "101", Type: OrderTypeStopLoss}))

	if err := m.CheckClosedPositions(); err == nil {
		t.Fatal("expected error when open-order fetch fails")
	}
	// Previous in-memory state stays untouched.
	if m.GetPositionCount() != 1 {
		t.Errorf("position count = %d after aborted pass, want 1", m.GetPositionCount())
	}
}

func TestCleanupPositionIdempotent(t *testing.T) {
	mock := binance.NewMockFuturesClient(65000.0, 10000.0)
	om := NewOrderManager(mock, testTradingConfig(), zerolog.Nop())
	m := newTestManager(mock, newMemStore())

	p, err := om.OpenPosition(SideLong, 0.01)
	if err != nil {
		t.Fatalf("OpenPosition failed: %v", err)
	}
	m.AddPosition(p)

	if ok := m.CleanupPosition(p); !ok {
		t.Error("first CleanupPosition reported failure")
	}
	if m.GetPositionCount() != 0 {
		t.Errorf("position count = %d after cleanup, want 0", m.GetPositionCount())
	}

	// Second call: all orders already gone, must still succeed.
	if ok := m.CleanupPosition(p); !ok {
		t.Error("second CleanupPosition reported failure")
	}
}

func TestCleanupAllPositions(t *testing.T) {
	mock := binance.NewMockFuturesClient(65000.0, 10000.0)
	om := NewOrderManager(mock, testTradingConfig(), zerolog.Nop())
	store := newMemStore()
	m := newTestManager(mock, store)

	p, err := om.OpenPosition(SideLong, 0.01)
	if err != nil {
		t.Fatalf("OpenPosition failed: %v", err)
	}
	m.AddPosition(p)

	if err := m.CleanupAllPositions(); err != nil {
		t.Fatalf("CleanupAllPositions failed: %v", err)
	}
	if m.GetPositionCount() != 0 {
		t.Errorf("position count = %d, want 0", m.GetPositionCount())
	}
	if mock.OpenOrderCount() != 0 {
		t.Errorf("exchange still has %d resting orders", mock.OpenOrderCount())
	}
	if string(store.docs["BTCUSDT"]) != "[]" {
		t.Errorf("cache not cleared, contains %q", store.docs["BTCUSDT"])
	}
}

func TestPersistFailureNonFatal(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	m := newTestManager(binance.NewMockFuturesClient(65000.0, 10000.0), store)

	m.AddPosition(testPosition("100"))

	// In-memory state remains authoritative despite the failed write.
	if m.GetPositionCount() != 1 {
		t.Errorf("position count = %d, want 1", m.GetPositionCount())
	}
}
