// Package database records trade history in Postgres. Recording is strictly
// best-effort: a database outage must never block or fail trading.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"bibot/internal/trading"
)

const opTimeout = 5 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS trade_history (
	id             BIGSERIAL PRIMARY KEY,
	pair           TEXT NOT NULL,
	main_order_id  TEXT NOT NULL,
	side           TEXT NOT NULL,
	quantity       DOUBLE PRECISION NOT NULL,
	entry_price    DOUBLE PRECISION NOT NULL,
	bracket_count  INT NOT NULL,
	opened_at      TIMESTAMPTZ NOT NULL,
	closed_at      TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_trade_history_pair ON trade_history (pair, opened_at);
`

// Repository persists trade open/close events
type Repository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewRepository connects to Postgres and ensures the schema exists
func NewRepository(ctx context.Context, url string, logger zerolog.Logger) (*Repository, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}

	r := &Repository{
		pool:   pool,
		logger: logger.With().Str("component", "Repository").Logger(),
	}
	if err := r.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) ensureSchema(ctx context.Context) error {
	schemaCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err := r.pool.Exec(schemaCtx, schema); err != nil {
		return fmt.Errorf("error creating schema: %w", err)
	}
	return nil
}

// RecordOpen inserts a row for a newly opened position. Failures are logged,
// never raised.
func (r *Repository) RecordOpen(pair string, p *trading.Position) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO trade_history (pair, main_order_id, side, quantity, entry_price, bracket_count, opened_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		pair, p.MainOrderID, string(p.Side), p.Quantity, p.EntryPrice, len(p.Orders), p.Timestamp)
	if err != nil {
		r.logger.Error().Err(err).Str("main_order_id", p.MainOrderID).Msg("Failed to record trade open")
	}
}

// RecordClose stamps the close time on the matching open row
func (r *Repository) RecordClose(pair string, p *trading.Position) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`UPDATE trade_history SET closed_at = now()
		 WHERE pair = $1 AND main_order_id = $2 AND closed_at IS NULL`,
		pair, p.MainOrderID)
	if err != nil {
		r.logger.Error().Err(err).Str("main_order_id", p.MainOrderID).Msg("Failed to record trade close")
	}
}

// Close releases the connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

var _ trading.TradeRecorder = (*Repository)(nil)
