package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"dai-trader/internal/errs"
)

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// STATE BLOBS
// ============================================================================

// SaveBlob upserts value under key.
func (r *Repository) SaveBlob(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO state_blobs (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	_, err := r.db.Pool.Exec(ctx, query, key, value)
	return err
}

// LoadBlob returns the value under key or an ErrNotFound error.
func (r *Repository) LoadBlob(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.Pool.QueryRow(ctx, `SELECT value FROM state_blobs WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("database.LoadBlob", key)
	}
	return value, err
}

// DeleteBlob removes key.
func (r *Repository) DeleteBlob(ctx context.Context, key string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM state_blobs WHERE key = $1`, key)
	return err
}

// BlobKeys lists every stored key.
func (r *Repository) BlobKeys(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT key FROM state_blobs ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ============================================================================
// TRADES
// ============================================================================

// CreateTrade inserts a closed trade
func (r *Repository) CreateTrade(ctx context.Context, trade *Trade) error {
	query := `
		INSERT INTO trades (symbol, strategy_name, tier, shares, entry_price, exit_price, pnl, pnl_percent, reason, entry_time, exit_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		trade.Symbol, trade.StrategyName, trade.Tier, trade.Shares, trade.EntryPrice, trade.ExitPrice,
		trade.PnL, trade.PnLPercent, trade.Reason, trade.EntryTime, trade.ExitTime,
	).Scan(&trade.ID)
}

// GetTradeHistory retrieves closed trades, newest first
func (r *Repository) GetTradeHistory(ctx context.Context, limit int) ([]*Trade, error) {
	query := `
		SELECT id, symbol, strategy_name, tier, shares, entry_price::float8, exit_price::float8,
		       pnl::float8, pnl_percent::float8, reason, entry_time, exit_time
		FROM trades
		ORDER BY exit_time DESC, id DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*Trade
	for rows.Next() {
		t := &Trade{}
		if err := rows.Scan(
			&t.ID, &t.Symbol, &t.StrategyName, &t.Tier, &t.Shares, &t.EntryPrice, &t.ExitPrice,
			&t.PnL, &t.PnLPercent, &t.Reason, &t.EntryTime, &t.ExitTime,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
