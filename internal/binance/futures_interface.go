package binance

// FuturesClient is the exchange capability consumed by the trading layer.
// All implementations retry transient failures internally; callers see either
// a final result or a final error.
type FuturesClient interface {
	// Ping checks connectivity to the exchange.
	Ping() error

	// GetKlines retrieves candlestick data.
	GetKlines(symbol, interval string, limit int) ([]Kline, error)

	// PlaceMarketOrder places a market order and returns the fill result.
	PlaceMarketOrder(symbol, side string, quantity float64) (*FuturesOrderResponse, error)

	// PlaceStopOrder places a reduce-only STOP_MARKET or TAKE_PROFIT_MARKET order.
	PlaceStopOrder(symbol, side string, quantity, stopPrice float64, orderType FuturesOrderType) (*FuturesOrderResponse, error)

	// GetOpenOrders retrieves all open orders for a symbol.
	GetOpenOrders(symbol string) ([]FuturesOrder, error)

	// GetPositions retrieves current positions for a symbol.
	GetPositions(symbol string) ([]FuturesPosition, error)

	// CancelOrder cancels an order. An order that is already gone yields
	// CancelAlreadyGone with a nil error.
	CancelOrder(symbol, orderID string) (CancelOutcome, error)

	// SetLeverage sets the leverage for a symbol.
	SetLeverage(symbol string, leverage int) (*LeverageResponse, error)

	// GetUSDTBalance fetches the USDT wallet balance.
	GetUSDTBalance() (float64, error)
}
