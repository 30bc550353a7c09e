package trading

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"bibot/config"
	"bibot/internal/binance"
)

// OrderManager turns a trade decision into exchange orders: one market order
// plus its stop-loss and take-profit brackets.
type OrderManager struct {
	client binance.FuturesClient
	cfg    config.TradingConfig
	logger zerolog.Logger
}

// NewOrderManager builds an OrderManager for the configured pair
func NewOrderManager(client binance.FuturesClient, cfg config.TradingConfig, logger zerolog.Logger) *OrderManager {
	return &OrderManager{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "OrderManager").Logger(),
	}
}

// roundPrice rounds to one decimal, matching the tick size of the USDT pairs
// the bot trades. Sub-tick stop prices are rejected by the exchange.
func roundPrice(p float64) float64 {
	return math.Round(p*10) / 10
}

// BracketPrices computes the stop-loss and take-profit trigger prices for a
// fill at entry. For a LONG the stop sits below entry and the take-profit
// above; SHORT inverts both.
func BracketPrices(entry float64, side Side, slPct, tpPct float64) (stopLoss, takeProfit float64) {
	if side == SideLong {
		stopLoss = roundPrice(entry * (1 - slPct/100))
		takeProfit = roundPrice(entry * (1 + tpPct/100))
	} else {
		stopLoss = roundPrice(entry * (1 + slPct/100))
		takeProfit = roundPrice(entry * (1 - tpPct/100))
	}
	return stopLoss, takeProfit
}

// OpenPosition places a market order for quantity at side, then attaches the
// bracket orders. A market-order failure aborts the whole operation. A
// bracket failure does not: the market order already carries real exposure,
// so the position is returned and tracked even when under-bracketed.
// Reconciliation notices positions with fewer than two bracket orders.
func (m *OrderManager) OpenPosition(side Side, quantity float64) (*Position, error) {
	pair := m.cfg.Pair

	marketResp, err := m.client.PlaceMarketOrder(pair, side.OrderSide(), quantity)
	if err != nil {
		return nil, fmt.Errorf("market order failed: %w", err)
	}

	entry := marketResp.AvgPrice
	stopLoss, takeProfit := BracketPrices(entry, side, m.cfg.StopLossPct, m.cfg.TakeProfitPct)

	m.logger.Info().
		Str("pair", pair).
		Str("side", string(side)).
		Float64("quantity", quantity).
		Float64("entry_price", entry).
		Float64("stop_loss", stopLoss).
		Float64("take_profit", takeProfit).
		Int64("order_id", marketResp.OrderId).
		Msg("Market order filled")

	position := &Position{
		MainOrderID: strconv.FormatInt(marketResp.OrderId, 10),
		EntryPrice:  entry,
		Side:        side,
		Quantity:    quantity,
		Orders:      []OrderRef{},
		Timestamp:   time.Now().UTC(),
	}

	closeSide := side.CloseOrderSide()

	slResp, err := m.client.PlaceStopOrder(pair, closeSide, quantity, stopLoss, binance.FuturesOrderTypeStopMarket)
	if err != nil {
		m.logger.Error().
			Err(err).
			Str("main_order_id", position.MainOrderID).
			Float64("stop_price", stopLoss).
			Msg("Stop-loss order failed, position is under-bracketed")
	} else {
		position.Orders = append(position.Orders, OrderRef{
			ID:   strconv.FormatInt(slResp.OrderId, 10),
			Type: OrderTypeStopLoss,
		})
	}

	tpResp, err := m.client.PlaceStopOrder(pair, closeSide, quantity, takeProfit, binance.FuturesOrderTypeTakeProfitMarket)
	if err != nil {
		m.logger.Error().
			Err(err).
			Str("main_order_id", position.MainOrderID).
			Float64("stop_price", takeProfit).
			Msg("Take-profit order failed, position is under-bracketed")
	} else {
		position.Orders = append(position.Orders, OrderRef{
			ID:   strconv.FormatInt(tpResp.OrderId, 10),
			Type: OrderTypeTakeProfit,
		})
	}

	return position, nil
}
