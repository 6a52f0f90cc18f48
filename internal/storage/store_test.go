package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dai-trader/config"
	"dai-trader/internal/errs"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func backends(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": newTestSQLite(t),
	}
}

func TestBlobRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(ctx, KeyQTable)
			assert.ErrorIs(t, err, errs.ErrNotFound)

			blob := []byte(`{"rsi_neutral_macd_bullish_up_high":{"BUY":0.1,"SELL":0,"HOLD":0}}`)
			require.NoError(t, s.Save(ctx, KeyQTable, blob))
			got, err := s.Load(ctx, KeyQTable)
			require.NoError(t, err)
			assert.Equal(t, blob, got)

			require.NoError(t, s.Save(ctx, KeyQTable, []byte("{}")))
			got, err = s.Load(ctx, KeyQTable)
			require.NoError(t, err)
			assert.Equal(t, []byte("{}"), got, "save overwrites")

			require.NoError(t, s.Save(ctx, KeyLedger, []byte("1")))
			keys, err := s.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{KeyLedger, KeyQTable}, keys)

			require.NoError(t, s.Delete(ctx, KeyQTable))
			_, err = s.Load(ctx, KeyQTable)
			assert.ErrorIs(t, err, errs.ErrNotFound)
		})
	}
}

func TestJournal(t *testing.T) {
	ctx := context.Background()
	opened := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for i, sym := range []string{"SOLUSDT", "LINKUSDT", "ADAUSDT"} {
				require.NoError(t, s.RecordTrade(ctx, TradeRecord{
					Symbol:     sym,
					Strategy:   "momentum",
					Tier:       "MEDIUM",
					Shares:     10,
					EntryPrice: 100,
					ExitPrice:  104,
					PnL:        40,
					PnLPct:     0.04,
					Reason:     "take profit",
					OpenedAt:   opened,
					ClosedAt:   opened.Add(time.Duration(i+1) * time.Hour),
				}))
			}

			recent, err := s.RecentTrades(ctx, 2)
			require.NoError(t, err)
			require.Len(t, recent, 2)
			assert.Equal(t, "ADAUSDT", recent[0].Symbol)
			assert.Equal(t, "LINKUSDT", recent[1].Symbol)
			assert.Equal(t, 0.04, recent[0].PnLPct)
			assert.True(t, recent[0].OpenedAt.Equal(opened))
			assert.NotZero(t, recent[0].ID)
		})
	}
}

type ledgerBlob struct {
	Floor   float64 `json:"floor"`
	Balance float64 `json:"balance"`
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	var v ledgerBlob
	ok, err := LoadJSON(ctx, s, KeyLedger, &v)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SaveJSON(ctx, s, KeyLedger, ledgerBlob{Floor: 103000, Balance: 105000}))
	ok, err = LoadJSON(ctx, s, KeyLedger, &v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ledgerBlob{Floor: 103000, Balance: 105000}, v)

	require.NoError(t, s.Save(ctx, KeyLedger, []byte("not json")))
	_, err = LoadJSON(ctx, s, KeyLedger, &v)
	assert.Error(t, err)
}

func TestSQLitePersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, KeyStrategyPerformance, []byte(`{"momentum":{"wins":3}}`)))
	require.NoError(t, s.Close())

	s, err = NewSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(ctx, KeyStrategyPerformance)
	require.NoError(t, err)
	assert.JSONEq(t, `{"momentum":{"wins":3}}`, string(got))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()

	cfg.StorageConfig.Backend = "memory"
	s, err := Open(ctx, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	cfg.StorageConfig.Backend = "sqlite"
	cfg.StorageConfig.SQLitePath = filepath.Join(t.TempDir(), "open.db")
	s, err = Open(ctx, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	require.NoError(t, s.Close())

	cfg.StorageConfig.Backend = "etcd"
	_, err = Open(ctx, cfg, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestRedisKeyLayout(t *testing.T) {
	r := NewRedisStore(nil, "")
	assert.Equal(t, "dai:state:qtable", r.stateKey(KeyQTable))
	assert.Equal(t, "dai:trades", r.journalKey())
}
