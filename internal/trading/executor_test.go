package trading

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"bibot/config"
	"bibot/internal/binance"
)

func newTestExecutor(mock *binance.MockFuturesClient, cfg config.TradingConfig) (*TradingExecutor, *PositionManager) {
	om := NewOrderManager(mock, cfg, zerolog.Nop())
	pm := NewPositionManager(mock, newMemStore(), nil, cfg, zerolog.Nop())
	return NewTradingExecutor(mock, om, pm, cfg, zerolog.Nop()), pm
}

func TestExecuteTradeEndToEnd(t *testing.T) {
	mock := binance.NewMockFuturesClient(65000.0, 10000.0)
	cfg := testTradingConfig()
	cfg.MaxPositions = 1
	ex, pm := newTestExecutor(mock, cfg)

	result := ex.ExecuteTrade(SideLong, 0.01)
	if !result.Success {
		t.Fatalf("ExecuteTrade failed: %s", result.Message)
	}
	if result.Position == nil {
		t.Fatal("successful trade returned no position")
	}
	if result.Position.EntryPrice != 65000.0 {
		t.Errorf("entry price = %v, want 65000.0", result.Position.EntryPrice)
	}
	if len(result.Position.Orders) != 2 {
		t.Fatalf("position has %d bracket orders, want 2", len(result.Position.Orders))
	}
	if pm.GetPositionCount() != 1 {
		t.Errorf("position count = %d, want 1", pm.GetPositionCount())
	}

	// Second trade while the first is open: rejected at the limit gate with
	// no exchange order placed.
	ordersBefore := countMarketOrders(mock)
	second := ex.ExecuteTrade(SideLong, 0.01)
	if second.Success {
		t.Error("second trade succeeded past the position limit")
	}
	if second.Message != "Maximum position limit reached" {
		t.Errorf("rejection message = %q", second.Message)
	}
	if countMarketOrders(mock) != ordersBefore {
		t.Error("rejected trade still placed a market order")
	}
}

func TestExecuteTradeDefaultsQuantity(t *testing.T) {
	mock := binance.NewMockFuturesClient(65000.0, 10000.0)
	ex, _ := newTestExecutor(mock, testTradingConfig())

	result := ex.ExecuteTrade(SideShort, 0)
	if !result.Success {
		t.Fatalf("ExecuteTrade failed: %s", result.Message)
	}
	if result.Position.Quantity != 0.01 {
		t.Errorf("quantity = %v, want configured 0.01", result.Position.Quantity)
	}
}

func TestExecuteTradePropagatesOrderFailure(t *testing.T) {
	mock := binance.NewMockFuturesClient(65000.0, 10000.0)
	mock.MarketOrderErr = &binance.APIError{StatusCode: 400, Code: -1111, Msg: "Precision is over the maximum"}
	ex, pm := newTestExecutor(mock, testTradingConfig())

	result := ex.ExecuteTrade(SideLong, 0.01)
	if result.Success {
		t.Fatal("trade succeeded despite market order failure")
	}
	if !strings.Contains(result.Message, "market order failed") {
		t.Errorf("message = %q", result.Message)
	}
	if pm.GetPositionCount() != 0 {
		t.Errorf("failed trade was recorded, count = %d", pm.GetPositionCount())
	}
}

func TestGetAccountInfo(t *testing.T) {
	mock := binance.NewMockFuturesClient(65000.0, 12345.67)
	ex, _ := newTestExecutor(mock, testTradingConfig())

	ex.ExecuteTrade(SideLong, 0.01)

	info, err := ex.GetAccountInfo()
	if err != nil {
		t.Fatalf("GetAccountInfo failed: %v", err)
	}
	if info.USDTBalance != 12345.67 {
		t.Errorf("balance = %v, want 12345.67", info.USDTBalance)
	}
	if info.PositionCount != 1 || len(info.Positions) != 1 {
		t.Errorf("positions = %d/%d, want 1/1", info.PositionCount, len(info.Positions))
	}
	if info.MaxPositions != 3 {
		t.Errorf("max positions = %d, want 3", info.MaxPositions)
	}
}

func countMarketOrders(mock *binance.MockFuturesClient) int {
	n := 0
	for _, call := range mock.Calls {
		if strings.HasPrefix(call, "PlaceMarketOrder") {
			n++
		}
	}
	return n
}
