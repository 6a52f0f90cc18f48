package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"dai-trader/internal/errs"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS state_blobs (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol TEXT NOT NULL,
	strategy TEXT,
	tier TEXT,
	shares INTEGER NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	pnl REAL NOT NULL,
	pnl_pct REAL NOT NULL,
	reason TEXT,
	opened_at INTEGER NOT NULL,
	closed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_closed_at ON trades(closed_at);
`

// SQLite stores state in a single database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Load(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state_blobs WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("storage.Load", key)
	}
	return v, err
}

func (s *SQLite) Save(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state_blobs (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli(),
	)
	return err
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM state_blobs WHERE key = ?`, key)
	return err
}

func (s *SQLite) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM state_blobs ORDER BY key`)
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

func (s *SQLite) RecordTrade(ctx context.Context, t TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
		(symbol, strategy, tier, shares, entry_price, exit_price, pnl, pnl_pct, reason, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Symbol, t.Strategy, t.Tier, t.Shares, t.EntryPrice, t.ExitPrice,
		t.PnL, t.PnLPct, t.Reason, t.OpenedAt.UnixMilli(), t.ClosedAt.UnixMilli(),
	)
	return err
}

func (s *SQLite) RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, strategy, tier, shares, entry_price, exit_price, pnl, pnl_pct, reason, opened_at, closed_at
		FROM trades ORDER BY closed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var (
			t              TradeRecord
			opened, closed int64
		)
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Strategy, &t.Tier, &t.Shares, &t.EntryPrice,
			&t.ExitPrice, &t.PnL, &t.PnLPct, &t.Reason, &opened, &closed); err != nil {
			return nil, err
		}
		t.OpenedAt = time.UnixMilli(opened).UTC()
		t.ClosedAt = time.UnixMilli(closed).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
