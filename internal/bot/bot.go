// Package bot runs the polling loop that ties strategy signals to trade
// execution and periodic reconciliation.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bibot/config"
	"bibot/internal/binance"
	"bibot/internal/strategy"
	"bibot/internal/trading"
)

const (
	pollInterval = 1 * time.Second
	errorSleep   = 60 * time.Second
)

// Bot owns the main trading loop. One iteration completes before the next
// begins: reconciliation and order placement never interleave, so the
// position-limit check always sees a just-reconciled count.
type Bot struct {
	cfg       *config.Config
	client    binance.FuturesClient
	strat     strategy.Strategy
	executor  *trading.TradingExecutor
	positions *trading.PositionManager
	stream    *binance.KlineStream // optional live feed
	logger    zerolog.Logger

	lastTradeAt time.Time
	lastCheckAt time.Time
}

// New wires the bot from already-constructed components
func New(cfg *config.Config, client binance.FuturesClient, strat strategy.Strategy, executor *trading.TradingExecutor, positions *trading.PositionManager, stream *binance.KlineStream, logger zerolog.Logger) *Bot {
	return &Bot{
		cfg:       cfg,
		client:    client,
		strat:     strat,
		executor:  executor,
		positions: positions,
		stream:    stream,
		logger:    logger.With().Str("component", "Bot").Logger(),
	}
}

// Init verifies exchange connectivity, sets leverage and restores tracked
// positions. A leverage failure is fatal: trading with an unknown leverage
// multiplier is worse than not trading.
func (b *Bot) Init() error {
	if err := b.client.Ping(); err != nil {
		return fmt.Errorf("exchange unreachable: %w", err)
	}

	resp, err := b.client.SetLeverage(b.cfg.Trading.Pair, b.cfg.Trading.Leverage)
	if err != nil {
		return fmt.Errorf("failed to set leverage: %w", err)
	}
	b.logger.Info().
		Str("pair", b.cfg.Trading.Pair).
		Int("leverage", resp.Leverage).
		Msg("Leverage configured")

	if err := b.positions.LoadPositions(); err != nil {
		return err
	}

	// Exchange state may have diverged while the process was down.
	if err := b.positions.CheckClosedPositions(); err != nil {
		b.logger.Warn().Err(err).Msg("Initial reconciliation failed, will retry in the loop")
	}

	return nil
}

// Run polls for signals until ctx is cancelled. Iteration errors are logged
// and followed by a long sleep; the loop itself never terminates on them.
func (b *Bot) Run(ctx context.Context) {
	b.logger.Info().
		Str("pair", b.cfg.Trading.Pair).
		Str("strategy", b.strat.Name()).
		Int("max_positions", b.cfg.Trading.MaxPositions).
		Msg("Bot started")

	var events <-chan binance.KlineEvent
	if b.stream != nil {
		events = b.stream.Events()
		go b.stream.Run(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping")
			return
		case <-time.After(pollInterval):
			if err := b.iterate(); err != nil {
				b.logger.Error().Err(err).Dur("sleep", errorSleep).Msg("Iteration failed")
				b.sleep(ctx, errorSleep)
			}
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			b.logger.Debug().
				Float64("close", event.Kline.Close).
				Msg("Candle closed")
			if err := b.iterate(); err != nil {
				b.logger.Error().Err(err).Dur("sleep", errorSleep).Msg("Iteration failed")
				b.sleep(ctx, errorSleep)
			}
		}
	}
}

// iterate runs one loop body: reconcile, then decide whether to trade
func (b *Bot) iterate() error {
	now := time.Now()

	if now.Sub(b.lastCheckAt) >= time.Duration(b.cfg.Trading.CheckPositionsSec)*time.Second {
		if err := b.positions.CheckClosedPositions(); err != nil {
			return err
		}
		b.lastCheckAt = now
	}

	if now.Sub(b.lastTradeAt) < time.Duration(b.cfg.Trading.MinTradeIntervalSec)*time.Second {
		return nil
	}
	if b.positions.HasReachedPositionLimit() {
		return nil
	}

	klines, err := b.client.GetKlines(b.cfg.Trading.Pair, b.cfg.Trading.Interval, b.cfg.Trading.KlineLimit)
	if err != nil {
		return err
	}

	signals, err := b.strat.Evaluate(klines)
	if err != nil {
		b.logger.Debug().Err(err).Msg("Strategy not ready")
		return nil
	}

	// Both signals true means no consensus: execute neither side.
	if signals.Long == signals.Short {
		return nil
	}

	side := trading.SideLong
	if signals.Short {
		side = trading.SideShort
	}

	result := b.executor.ExecuteTrade(side, b.cfg.Trading.PositionSize)
	if result.Success {
		b.lastTradeAt = now
		b.logger.Info().
			Str("side", string(side)).
			Str("main_order_id", result.Position.MainOrderID).
			Msg("Trade executed")
	} else {
		b.logger.Warn().Str("reason", result.Message).Msg("Trade not executed")
	}

	return nil
}

// Cleanup cancels all open orders and clears tracked positions. Invoked by
// the --cleanup flag.
func (b *Bot) Cleanup() error {
	return b.positions.CleanupAllPositions()
}

func (b *Bot) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
