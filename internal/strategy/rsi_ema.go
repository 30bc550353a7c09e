package strategy

import (
	"fmt"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"bibot/config"
	"bibot/internal/binance"
)

// RsiEmaStrategy signals entries on RSI extremes confirmed by an EMA
// crossover:
//
//	long:  RSI < oversold  AND fast EMA > slow EMA
//	short: RSI > overbought AND fast EMA < slow EMA
type RsiEmaStrategy struct {
	cfg    config.RsiEmaConfig
	logger zerolog.Logger
}

// NewRsiEmaStrategy builds the strategy from its config section
func NewRsiEmaStrategy(cfg config.RsiEmaConfig, logger zerolog.Logger) *RsiEmaStrategy {
	return &RsiEmaStrategy{
		cfg:    cfg,
		logger: logger.With().Str("component", "RsiEmaStrategy").Logger(),
	}
}

func (s *RsiEmaStrategy) Name() string {
	return "RSI_EMA"
}

// minKlines is the smallest candle count the indicators need to produce a
// stable value on the last candle.
func (s *RsiEmaStrategy) minKlines() int {
	min := s.cfg.RsiPeriod
	if s.cfg.EmaSlow > min {
		min = s.cfg.EmaSlow
	}
	return min + 1
}

func (s *RsiEmaStrategy) Evaluate(klines []binance.Kline) (Signals, error) {
	if len(klines) < s.minKlines() {
		return Signals{}, fmt.Errorf("need at least %d klines, got %d", s.minKlines(), len(klines))
	}

	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}

	rsi := talib.Rsi(closes, s.cfg.RsiPeriod)
	emaFast := talib.Ema(closes, s.cfg.EmaFast)
	emaSlow := talib.Ema(closes, s.cfg.EmaSlow)

	last := len(closes) - 1
	signals := Signals{
		Long:  rsi[last] < s.cfg.RsiOversold && emaFast[last] > emaSlow[last],
		Short: rsi[last] > s.cfg.RsiOverbought && emaFast[last] < emaSlow[last],
	}

	s.logger.Debug().
		Float64("rsi", rsi[last]).
		Float64("ema_fast", emaFast[last]).
		Float64("ema_slow", emaSlow[last]).
		Bool("long", signals.Long).
		Bool("short", signals.Short).
		Msg("Strategy evaluated")

	return signals, nil
}

var _ Strategy = (*RsiEmaStrategy)(nil)
