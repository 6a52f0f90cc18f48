// Package storage persists the trader's state blobs and closed-trade
// journal. Backends: memory, SQLite, PostgreSQL and Redis.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dai-trader/internal/errs"
)

// Keys of the persisted state blobs.
const (
	KeyQTable              = "qtable"
	KeyStrategyPerformance = "strategy_performance"
	KeyLedger              = "principal_ledger"
	KeyOpenTrades          = "open_trades"
	KeyBrokerBook          = "broker_book"
	KeyBreaker             = "circuit_breaker"
	KeyRisk                = "risk_state"
)

// Keys lists every state blob the engine writes.
var Keys = []string{
	KeyQTable, KeyStrategyPerformance, KeyLedger, KeyOpenTrades, KeyBrokerBook, KeyBreaker, KeyRisk,
}

// BlobStore loads and saves opaque values. Load returns an error matching
// errs.ErrNotFound for a missing key.
type BlobStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
}

// TradeRecord is one closed round trip.
type TradeRecord struct {
	ID         int64     `json:"id"`
	Symbol     string    `json:"symbol"`
	Strategy   string    `json:"strategy"`
	Tier       string    `json:"tier"`
	Shares     int       `json:"shares"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	PnL        float64   `json:"pnl"`
	PnLPct     float64   `json:"pnl_pct"`
	Reason     string    `json:"reason"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at"`
}

// Journal records closed trades.
type Journal interface {
	RecordTrade(ctx context.Context, t TradeRecord) error
	RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error)
}

// Store is a backend providing both state and journal.
type Store interface {
	BlobStore
	Journal
	Close() error
}

// LoadJSON decodes key into v. It reports false without error when the key
// is missing.
func LoadJSON(ctx context.Context, s BlobStore, key string, v interface{}) (bool, error) {
	b, err := s.Load(ctx, key)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SaveJSON encodes v under key.
func SaveJSON(ctx context.Context, s BlobStore, key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.Save(ctx, key, b); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
