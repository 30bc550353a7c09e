package binance

// ==================== ENUMS ====================

// FuturesOrderType represents order types for futures
type FuturesOrderType string

const (
	FuturesOrderTypeMarket           FuturesOrderType = "MARKET"
	FuturesOrderTypeStopMarket       FuturesOrderType = "STOP_MARKET"
	FuturesOrderTypeTakeProfitMarket FuturesOrderType = "TAKE_PROFIT_MARKET"
)

// Order sides as Binance expects them
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// FuturesOrderStatus represents order status
type FuturesOrderStatus string

const (
	FuturesOrderStatusNew      FuturesOrderStatus = "NEW"
	FuturesOrderStatusFilled   FuturesOrderStatus = "FILLED"
	FuturesOrderStatusCanceled FuturesOrderStatus = "CANCELED"
	FuturesOrderStatusExpired  FuturesOrderStatus = "EXPIRED"
)

// CancelOutcome is the tri-state result of an order cancellation. An order
// that is already filled or cancelled on the exchange side is reported as
// CancelAlreadyGone, not as an error.
type CancelOutcome int

const (
	CancelOK CancelOutcome = iota
	CancelAlreadyGone
	CancelFailed
)

func (o CancelOutcome) String() string {
	switch o {
	case CancelOK:
		return "cancelled"
	case CancelAlreadyGone:
		return "already_absent"
	default:
		return "error"
	}
}

// ==================== MARKET DATA TYPES ====================

// Kline represents a single candlestick
type Kline struct {
	OpenTime  int64   `json:"openTime"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"closeTime"`
}

// ==================== POSITION TYPES ====================

// FuturesPosition represents a futures position from the positionRisk endpoint
type FuturesPosition struct {
	Symbol           string  `json:"symbol"`
	PositionAmt      float64 `json:"positionAmt,string"`
	EntryPrice       float64 `json:"entryPrice,string"`
	MarkPrice        float64 `json:"markPrice,string"`
	UnrealizedProfit float64 `json:"unRealizedProfit,string"`
	LiquidationPrice float64 `json:"liquidationPrice,string"`
	Leverage         int     `json:"leverage,string"`
	MarginType       string  `json:"marginType"`
	PositionSide     string  `json:"positionSide"`
	UpdateTime       int64   `json:"updateTime"`
}

// ==================== ORDER TYPES ====================

// FuturesOrder represents an open or historical futures order
type FuturesOrder struct {
	OrderId       int64   `json:"orderId"`
	Symbol        string  `json:"symbol"`
	Status        string  `json:"status"`
	ClientOrderId string  `json:"clientOrderId"`
	Price         float64 `json:"price,string"`
	AvgPrice      float64 `json:"avgPrice,string"`
	OrigQty       float64 `json:"origQty,string"`
	ExecutedQty   float64 `json:"executedQty,string"`
	Type          string  `json:"type"`
	ReduceOnly    bool    `json:"reduceOnly"`
	Side          string  `json:"side"`
	StopPrice     float64 `json:"stopPrice,string"`
	Time          int64   `json:"time"`
	UpdateTime    int64   `json:"updateTime"`
}

// FuturesOrderResponse represents the response from placing an order
type FuturesOrderResponse struct {
	OrderId       int64   `json:"orderId"`
	Symbol        string  `json:"symbol"`
	Status        string  `json:"status"`
	ClientOrderId string  `json:"clientOrderId"`
	Price         float64 `json:"price,string"`
	AvgPrice      float64 `json:"avgPrice,string"`
	OrigQty       float64 `json:"origQty,string"`
	ExecutedQty   float64 `json:"executedQty,string"`
	CumQuote      float64 `json:"cumQuote,string"`
	Type          string  `json:"type"`
	ReduceOnly    bool    `json:"reduceOnly"`
	Side          string  `json:"side"`
	StopPrice     float64 `json:"stopPrice,string"`
	UpdateTime    int64   `json:"updateTime"`
}

// ==================== ACCOUNT TYPES ====================

// FuturesAccountInfo represents futures account information
type FuturesAccountInfo struct {
	CanTrade           bool           `json:"canTrade"`
	UpdateTime         int64          `json:"updateTime"`
	TotalWalletBalance float64        `json:"totalWalletBalance,string"`
	AvailableBalance   float64        `json:"availableBalance,string"`
	Assets             []FuturesAsset `json:"assets"`
}

// FuturesAsset represents an asset in the futures account
type FuturesAsset struct {
	Asset            string  `json:"asset"`
	WalletBalance    float64 `json:"walletBalance,string"`
	UnrealizedProfit float64 `json:"unrealizedProfit,string"`
	MarginBalance    float64 `json:"marginBalance,string"`
	AvailableBalance float64 `json:"availableBalance,string"`
}

// LeverageResponse represents the response from setting leverage
type LeverageResponse struct {
	Leverage         int     `json:"leverage"`
	MaxNotionalValue float64 `json:"maxNotionalValue,string"`
	Symbol           string  `json:"symbol"`
}
