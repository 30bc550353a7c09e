package binance

import (
	"fmt"
	"strconv"
	"sync"
)

// MockFuturesClient is an in-memory exchange simulation used by tests and by
// the --dry-run mode. Orders fill instantly at MarkPrice; stop orders rest in
// the open-order book until cancelled or removed via SimulateOrderGone.
type MockFuturesClient struct {
	mu sync.Mutex

	MarkPrice   float64
	Balance     float64
	nextOrderID int64

	openOrders map[int64]FuturesOrder
	positions  map[string]float64 // symbol -> signed position amount
	entryPrice map[string]float64
	leverage   map[string]int

	// Fail-injection hooks. When set, the matching call returns the error.
	PingErr        error
	KlinesErr      error
	MarketOrderErr error
	StopOrderErr   error
	OpenOrdersErr  error
	PositionsErr   error
	CancelErr      error
	LeverageErr    error

	// Klines returned by GetKlines when KlinesErr is nil.
	Klines []Kline

	// Calls records method invocations in order, for assertions.
	Calls []string
}

// NewMockFuturesClient returns a mock exchange with a starting price and balance
func NewMockFuturesClient(markPrice, balance float64) *MockFuturesClient {
	return &MockFuturesClient{
		MarkPrice:   markPrice,
		Balance:     balance,
		nextOrderID: 1000,
		openOrders:  make(map[int64]FuturesOrder),
		positions:   make(map[string]float64),
		entryPrice:  make(map[string]float64),
		leverage:    make(map[string]int),
	}
}

func (m *MockFuturesClient) record(call string) {
	m.Calls = append(m.Calls, call)
}

func (m *MockFuturesClient) Ping() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Ping")
	return m.PingErr
}

func (m *MockFuturesClient) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetKlines")
	if m.KlinesErr != nil {
		return nil, m.KlinesErr
	}
	if limit > 0 && len(m.Klines) > limit {
		return m.Klines[len(m.Klines)-limit:], nil
	}
	return m.Klines, nil
}

func (m *MockFuturesClient) PlaceMarketOrder(symbol, side string, quantity float64) (*FuturesOrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("PlaceMarketOrder:" + side)
	if m.MarketOrderErr != nil {
		return nil, m.MarketOrderErr
	}

	signed := quantity
	if side == SideSell {
		signed = -quantity
	}
	m.positions[symbol] += signed
	m.entryPrice[symbol] = m.MarkPrice

	id := m.nextID()
	return &FuturesOrderResponse{
		OrderId:     id,
		Symbol:      symbol,
		Status:      string(FuturesOrderStatusFilled),
		AvgPrice:    m.MarkPrice,
		OrigQty:     quantity,
		ExecutedQty: quantity,
		Type:        string(FuturesOrderTypeMarket),
		Side:        side,
	}, nil
}

func (m *MockFuturesClient) PlaceStopOrder(symbol, side string, quantity, stopPrice float64, orderType FuturesOrderType) (*FuturesOrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("PlaceStopOrder:" + string(orderType))
	if m.StopOrderErr != nil {
		return nil, m.StopOrderErr
	}

	id := m.nextID()
	m.openOrders[id] = FuturesOrder{
		OrderId:    id,
		Symbol:     symbol,
		Status:     string(FuturesOrderStatusNew),
		OrigQty:    quantity,
		Type:       string(orderType),
		ReduceOnly: true,
		Side:       side,
		StopPrice:  stopPrice,
	}
	return &FuturesOrderResponse{
		OrderId:    id,
		Symbol:     symbol,
		Status:     string(FuturesOrderStatusNew),
		OrigQty:    quantity,
		Type:       string(orderType),
		ReduceOnly: true,
		Side:       side,
		StopPrice:  stopPrice,
	}, nil
}

func (m *MockFuturesClient) GetOpenOrders(symbol string) ([]FuturesOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetOpenOrders")
	if m.OpenOrdersErr != nil {
		return nil, m.OpenOrdersErr
	}
	orders := make([]FuturesOrder, 0, len(m.openOrders))
	for _, o := range m.openOrders {
		if o.Symbol == symbol {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

func (m *MockFuturesClient) GetPositions(symbol string) ([]FuturesPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetPositions")
	if m.PositionsErr != nil {
		return nil, m.PositionsErr
	}
	return []FuturesPosition{{
		Symbol:      symbol,
		PositionAmt: m.positions[symbol],
		EntryPrice:  m.entryPrice[symbol],
		MarkPrice:   m.MarkPrice,
		Leverage:    m.leverage[symbol],
	}}, nil
}

func (m *MockFuturesClient) CancelOrder(symbol, orderID string) (CancelOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CancelOrder:" + orderID)
	if m.CancelErr != nil {
		return CancelFailed, m.CancelErr
	}
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return CancelFailed, fmt.Errorf("invalid order id %q", orderID)
	}
	if _, ok := m.openOrders[id]; !ok {
		return CancelAlreadyGone, nil
	}
	delete(m.openOrders, id)
	return CancelOK, nil
}

func (m *MockFuturesClient) SetLeverage(symbol string, leverage int) (*LeverageResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SetLeverage")
	if m.LeverageErr != nil {
		return nil, m.LeverageErr
	}
	m.leverage[symbol] = leverage
	return &LeverageResponse{Symbol: symbol, Leverage: leverage}, nil
}

func (m *MockFuturesClient) GetUSDTBalance() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetUSDTBalance")
	return m.Balance, nil
}

// SimulateFill marks the position flat and removes the given resting order,
// imitating a stop-loss or take-profit trigger on the exchange.
func (m *MockFuturesClient) SimulateFill(symbol string, orderID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[symbol] = 0
	delete(m.openOrders, orderID)
}

// SimulateOrderGone removes a resting order without touching the position
func (m *MockFuturesClient) SimulateOrderGone(orderID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.openOrders, orderID)
}

// OpenOrderCount reports how many orders are resting on the mock book
func (m *MockFuturesClient) OpenOrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.openOrders)
}

func (m *MockFuturesClient) nextID() int64 {
	m.nextOrderID++
	return m.nextOrderID
}

var _ FuturesClient = (*MockFuturesClient)(nil)
