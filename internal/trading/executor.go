package trading

import (
	"github.com/rs/zerolog"

	"bibot/config"
	"bibot/internal/binance"
)

// TradeResult is the outcome of an ExecuteTrade call
type TradeResult struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
	Position *Position `json:"position,omitempty"`
}

// AccountInfo is a read-only summary of balance and active positions
type AccountInfo struct {
	USDTBalance   float64     `json:"usdt_balance"`
	PositionCount int         `json:"position_count"`
	MaxPositions  int         `json:"max_positions"`
	Positions     []*Position `json:"positions"`
}

// TradingExecutor is the orchestration facade: it gates new trades on the
// position limit, opens positions through the OrderManager and registers
// them with the PositionManager.
type TradingExecutor struct {
	client    binance.FuturesClient
	orders    *OrderManager
	positions *PositionManager
	cfg       config.TradingConfig
	logger    zerolog.Logger
}

// NewTradingExecutor wires the executor to its collaborators
func NewTradingExecutor(client binance.FuturesClient, orders *OrderManager, positions *PositionManager, cfg config.TradingConfig, logger zerolog.Logger) *TradingExecutor {
	return &TradingExecutor{
		client:    client,
		orders:    orders,
		positions: positions,
		cfg:       cfg,
		logger:    logger.With().Str("component", "TradingExecutor").Logger(),
	}
}

// ExecuteTrade opens a new position at side. The position limit is the sole
// admission gate and is checked before any exchange call. Quantity <= 0
// falls back to the configured position size. No automatic retry here:
// retry policy lives in the exchange client.
func (e *TradingExecutor) ExecuteTrade(side Side, quantity float64) TradeResult {
	if quantity <= 0 {
		quantity = e.cfg.PositionSize
	}

	if e.positions.HasReachedPositionLimit() {
		e.logger.Info().
			Int("count", e.positions.GetPositionCount()).
			Int("max", e.cfg.MaxPositions).
			Msg("Trade rejected: position limit reached")
		return TradeResult{
			Success: false,
			Message: "Maximum position limit reached",
		}
	}

	position, err := e.orders.OpenPosition(side, quantity)
	if err != nil {
		e.logger.Error().Err(err).Str("side", string(side)).Msg("Trade failed")
		return TradeResult{
			Success: false,
			Message: err.Error(),
		}
	}

	// The only path by which a position enters the durable set.
	e.positions.AddPosition(position)

	return TradeResult{
		Success:  true,
		Message:  "Position opened",
		Position: position,
	}
}

// GetAccountInfo aggregates the USDT balance with the tracked position set.
// Purely derived, no side effects.
func (e *TradingExecutor) GetAccountInfo() (*AccountInfo, error) {
	balance, err := e.client.GetUSDTBalance()
	if err != nil {
		return nil, err
	}

	return &AccountInfo{
		USDTBalance:   balance,
		PositionCount: e.positions.GetPositionCount(),
		MaxPositions:  e.cfg.MaxPositions,
		Positions:     e.positions.Positions(),
	}, nil
}
