// Package strategy evaluates market data and produces entry signals.
package strategy

import (
	"github.com/rs/zerolog"

	"bibot/config"
	"bibot/internal/binance"
)

// Signals is the outcome of evaluating one batch of candles. Long and Short
// are never both true for a well-formed strategy.
type Signals struct {
	Long  bool
	Short bool
}

// Strategy turns candlestick data into entry signals
type Strategy interface {
	// Name returns the registry name of the strategy.
	Name() string

	// Evaluate inspects the candles (oldest first) and reports entry signals.
	// Returns an error when there is not enough data to evaluate.
	Evaluate(klines []binance.Kline) (Signals, error)
}

// factory builds a strategy from configuration
type factory func(cfg *config.Config, logger zerolog.Logger) Strategy

var registry = map[string]factory{
	"RSI_EMA": func(cfg *config.Config, logger zerolog.Logger) Strategy {
		return NewRsiEmaStrategy(cfg.RsiEma, logger)
	},
}

// DefaultStrategyName is used when the configured name is not registered
const DefaultStrategyName = "RSI_EMA"

// New looks up the configured strategy by name. An unknown name falls back to
// the default strategy with a warning rather than failing startup.
func New(cfg *config.Config, logger zerolog.Logger) Strategy {
	name := cfg.Trading.Strategy
	build, ok := registry[name]
	if !ok {
		logger.Warn().
			Str("strategy", name).
			Str("fallback", DefaultStrategyName).
			Msg("Unknown strategy, using fallback")
		build = registry[DefaultStrategyName]
	}
	return build(cfg, logger)
}

// Names lists the registered strategy names
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
