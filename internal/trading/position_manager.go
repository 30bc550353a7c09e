package trading

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"bibot/config"
	"bibot/internal/binance"
	"bibot/internal/cache"
)

// TradeRecorder receives position open/close notifications for historical
// record keeping. Implementations must not block trading: failures are
// handled internally and never surfaced here.
type TradeRecorder interface {
	RecordOpen(pair string, p *Position)
	RecordClose(pair string, p *Position)
}

// PositionManager owns the authoritative set of active positions for the
// configured pair, persists it, and reconciles it against exchange state.
type PositionManager struct {
	client   binance.FuturesClient
	store    cache.Store
	recorder TradeRecorder // optional
	cfg      config.TradingConfig
	logger   zerolog.Logger

	// The trading loop is single-threaded, but the status API reads the
	// active set concurrently.
	mu        sync.Mutex
	positions []*Position
}

// NewPositionManager builds a PositionManager. recorder may be nil.
func NewPositionManager(client binance.FuturesClient, store cache.Store, recorder TradeRecorder, cfg config.TradingConfig, logger zerolog.Logger) *PositionManager {
	return &PositionManager{
		client:   client,
		store:    store,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger.With().Str("component", "PositionManager").Logger(),
	}
}

// AddPosition appends p to the active set and persists immediately.
// Durability over throughput: the bot trades rarely, so every mutation is
// flushed synchronously.
func (m *PositionManager) AddPosition(p *Position) {
	m.mu.Lock()
	m.positions = append(m.positions, p)
	m.persistLocked()
	m.mu.Unlock()

	m.logger.Info().
		Str("main_order_id", p.MainOrderID).
		Str("side", string(p.Side)).
		Float64("entry_price", p.EntryPrice).
		Int("bracket_orders", len(p.Orders)).
		Msg("Position added")

	if m.recorder != nil {
		m.recorder.RecordOpen(m.cfg.Pair, p)
	}
}

// LoadPositions restores the active set from the store at startup. Corrupt
// documents clear the cache rather than crash-looping; individually invalid
// records are dropped with a warning. After a successful load the caller
// should run CheckClosedPositions, since exchange state may have diverged
// while the process was down.
func (m *PositionManager) LoadPositions() error {
	data, err := m.store.Load(m.cfg.Pair)
	if err != nil {
		return fmt.Errorf("error loading positions: %w", err)
	}
	if data == nil {
		m.logger.Info().Str("pair", m.cfg.Pair).Msg("No cached positions found")
		return nil
	}

	var records []*Position
	if err := json.Unmarshal(data, &records); err != nil {
		m.logger.Warn().Err(err).Str("pair", m.cfg.Pair).Msg("Corrupt position cache, clearing")
		if clearErr := m.store.Clear(m.cfg.Pair); clearErr != nil {
			m.logger.Error().Err(clearErr).Msg("Failed to clear corrupt cache")
		}
		return nil
	}

	kept := make([]*Position, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if err := rec.Validate(); err != nil {
			m.logger.Warn().Err(err).Str("main_order_id", rec.MainOrderID).Msg("Dropping invalid cached position")
			continue
		}
		kept = append(kept, rec)
	}

	m.mu.Lock()
	m.positions = kept
	m.mu.Unlock()

	m.logger.Info().Str("pair", m.cfg.Pair).Int("count", len(kept)).Msg("Positions loaded from cache")
	return nil
}

// CheckClosedPositions reconciles tracked positions against exchange truth.
// A position is considered closed when EITHER the exchange reports no
// nonzero exposure for the pair, OR none of its bracket order ids remain
// open. The second condition catches the common case of a bracket firing:
// the other bracket must be cancelled even while the exchange momentarily
// still reports the position. Exchange failures abort the pass; the previous
// in-memory state stays untouched and the next periodic call retries.
func (m *PositionManager) CheckClosedPositions() error {
	openOrders, err := m.client.GetOpenOrders(m.cfg.Pair)
	if err != nil {
		return fmt.Errorf("error fetching open orders: %w", err)
	}
	exchangePositions, err := m.client.GetPositions(m.cfg.Pair)
	if err != nil {
		return fmt.Errorf("error fetching positions: %w", err)
	}

	openOrderIDs := make(map[string]bool, len(openOrders))
	for _, o := range openOrders {
		openOrderIDs[fmt.Sprintf("%d", o.OrderId)] = true
	}

	hasExposure := false
	for _, p := range exchangePositions {
		if p.Symbol == m.cfg.Pair && p.PositionAmt != 0 {
			hasExposure = true
			break
		}
	}

	m.mu.Lock()
	tracked := m.positions
	m.mu.Unlock()

	kept := make([]*Position, 0, len(tracked))
	var closed []*Position
	for _, p := range tracked {
		if m.isClosed(p, hasExposure, openOrderIDs) {
			// A position that never got its brackets placed satisfies the
			// closure rule vacuously. Untracking it leaves live exposure
			// unmanaged, so make that visible.
			if hasExposure && len(p.Orders) == 0 {
				m.logger.Warn().
					Str("main_order_id", p.MainOrderID).
					Str("side", string(p.Side)).
					Float64("quantity", p.Quantity).
					Msg("Untracking position with no bracket orders while exchange exposure remains")
			}
			closed = append(closed, p)
		} else {
			kept = append(kept, p)
		}
	}

	if len(closed) == 0 {
		return nil
	}

	for _, p := range closed {
		m.logger.Info().
			Str("main_order_id", p.MainOrderID).
			Str("side", string(p.Side)).
			Msg("Position closed, cancelling remaining bracket orders")
		m.cancelBrackets(p)
		if m.recorder != nil {
			m.recorder.RecordClose(m.cfg.Pair, p)
		}
	}

	m.mu.Lock()
	m.positions = kept
	m.persistLocked()
	m.mu.Unlock()

	return nil
}

// isClosed applies the closure rule to one tracked position
func (m *PositionManager) isClosed(p *Position, hasExposure bool, openOrderIDs map[string]bool) bool {
	if !hasExposure {
		return true
	}
	for _, ref := range p.Orders {
		if openOrderIDs[ref.ID] {
			return false
		}
	}
	return true
}

// cancelBrackets attempts to cancel every bracket order of p. Orders already
// gone from the exchange are a no-op; other failures are logged, never
// raised. Returns false if any cancel genuinely failed.
func (m *PositionManager) cancelBrackets(p *Position) bool {
	ok := true
	for _, ref := range p.Orders {
		outcome, err := m.client.CancelOrder(m.cfg.Pair, ref.ID)
		switch outcome {
		case binance.CancelOK:
			m.logger.Info().Str("order_id", ref.ID).Str("type", string(ref.Type)).Msg("Bracket order cancelled")
		case binance.CancelAlreadyGone:
			m.logger.Info().Str("order_id", ref.ID).Str("type", string(ref.Type)).Msg("Bracket order already gone")
		default:
			m.logger.Warn().Err(err).Str("order_id", ref.ID).Str("type", string(ref.Type)).Msg("Failed to cancel bracket order")
			ok = false
		}
	}
	return ok
}

// CleanupPosition cancels p's bracket orders and removes it from the active
// set by main order id. Safe to call repeatedly. Returns whether all
// cancellations succeeded.
func (m *PositionManager) CleanupPosition(p *Position) bool {
	ok := m.cancelBrackets(p)

	m.mu.Lock()
	kept := make([]*Position, 0, len(m.positions))
	for _, tracked := range m.positions {
		if tracked.MainOrderID != p.MainOrderID {
			kept = append(kept, tracked)
		}
	}
	removed := len(kept) != len(m.positions)
	m.positions = kept
	if removed {
		m.persistLocked()
	}
	m.mu.Unlock()

	if removed && m.recorder != nil {
		m.recorder.RecordClose(m.cfg.Pair, p)
	}
	return ok
}

// CleanupAllPositions cancels every open order for the pair and clears all
// tracking. This is a broad operator-invoked shutdown action, not part of
// the steady-state loop.
func (m *PositionManager) CleanupAllPositions() error {
	openOrders, err := m.client.GetOpenOrders(m.cfg.Pair)
	if err != nil {
		return fmt.Errorf("error fetching open orders: %w", err)
	}

	for _, o := range openOrders {
		orderID := fmt.Sprintf("%d", o.OrderId)
		outcome, err := m.client.CancelOrder(m.cfg.Pair, orderID)
		if outcome == binance.CancelFailed {
			m.logger.Warn().Err(err).Str("order_id", orderID).Msg("Failed to cancel order during cleanup")
		}
	}

	m.mu.Lock()
	m.positions = nil
	m.mu.Unlock()

	if err := m.store.Clear(m.cfg.Pair); err != nil {
		m.logger.Error().Err(err).Msg("Failed to clear position cache")
	}

	m.logger.Info().Str("pair", m.cfg.Pair).Int("orders_cancelled", len(openOrders)).Msg("All positions cleaned up")
	return nil
}

// GetPositionCount returns the number of tracked positions
func (m *PositionManager) GetPositionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}

// HasReachedPositionLimit reports whether a new position may not be opened
func (m *PositionManager) HasReachedPositionLimit() bool {
	return m.GetPositionCount() >= m.cfg.MaxPositions
}

// Positions returns a snapshot of the active set
func (m *PositionManager) Positions() []*Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make([]*Position, len(m.positions))
	copy(snapshot, m.positions)
	return snapshot
}

// persistLocked flushes the active set to the store. Persistence failures
// are logged, never raised: in-memory state stays authoritative for the
// running process, only durability across restart is at risk.
func (m *PositionManager) persistLocked() {
	data, err := json.Marshal(m.positions)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to serialize positions")
		return
	}
	if err := m.store.Save(m.cfg.Pair, data); err != nil {
		m.logger.Error().Err(err).Msg("Failed to persist positions")
	}
}
