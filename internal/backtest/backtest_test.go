package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dai-trader/internal/errs"
	"dai-trader/internal/logging"
	"dai-trader/internal/market"
	"dai-trader/internal/risk"
	"dai-trader/internal/strategy"
)

const sym = "SOLUSDT"

var t0 = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

// scripted returns the action keyed by the index of the latest bar.
type scripted struct {
	actions map[int]strategy.Action
	shares  int
}

func (s scripted) Name() string { return "scripted" }

func (s scripted) GenerateSignal(_ string, bars []market.Bar) strategy.Action {
	if a, ok := s.actions[len(bars)-1]; ok {
		return a
	}
	return strategy.ActionHold
}

func (s scripted) PositionSize(string, float64, float64) int { return s.shares }

func barsAt(step time.Duration, closes ...float64) []market.Bar {
	out := make([]market.Bar, len(closes))
	for i, c := range closes {
		out[i] = market.Bar{Time: t0.Add(time.Duration(i) * step), Close: c}
	}
	return out
}

func newEngine(t *testing.T, cfg Config, s strategy.Strategy) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, s, WithLogger(logging.Nop()))
	require.NoError(t, err)
	return e
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Warmup = 0
	return cfg
}

func TestSellSignalRoundTrip(t *testing.T) {
	s := scripted{shares: 10, actions: map[int]strategy.Action{0: strategy.ActionBuy, 3: strategy.ActionSell}}
	e := newEngine(t, testConfig(), s)

	res, err := e.Run(context.Background(), []string{sym}, map[string][]market.Bar{
		sym: barsAt(24*time.Hour, 100, 101, 102, 103, 110, 110),
	})
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, ReasonSellSignal, tr.Reason)
	assert.Equal(t, 10, tr.Shares)
	assert.InDelta(t, 30, tr.PnL, 1e-9)
	assert.InDelta(t, 3, tr.PnLPct, 1e-9)
	assert.Equal(t, t0, tr.EntryTime)
	assert.Equal(t, t0.Add(72*time.Hour), tr.ExitTime)

	assert.InDelta(t, 10030, res.FinalCapital, 1e-9)
	assert.InDelta(t, 0.3, res.TotalReturnPct, 1e-9)
	assert.Equal(t, 100.0, res.WinRate)
	assert.Len(t, res.EquityCurve, 6)
	assert.Zero(t, res.MaxDrawdown)
}

func TestStopLossAndEndOfData(t *testing.T) {
	s := scripted{shares: 10, actions: map[int]strategy.Action{
		0: strategy.ActionBuy,
		1: strategy.ActionBuy, // ignored: the stop fired on this bar
		2: strategy.ActionBuy,
	}}
	e := newEngine(t, testConfig(), s)

	res, err := e.Run(context.Background(), []string{sym}, map[string][]market.Bar{
		sym: barsAt(24*time.Hour, 100, 97, 99, 99.5),
	})
	require.NoError(t, err)

	require.Len(t, res.Trades, 2)
	assert.Equal(t, risk.ReasonStopLoss, res.Trades[0].Reason)
	assert.InDelta(t, -30, res.Trades[0].PnL, 1e-9)
	assert.Equal(t, ReasonEndOfData, res.Trades[1].Reason)
	assert.InDelta(t, 99, res.Trades[1].EntryPrice, 1e-9)
	assert.InDelta(t, 5, res.Trades[1].PnL, 1e-9)

	assert.Equal(t, 1, res.WinningTrades)
	assert.Equal(t, 1, res.LosingTrades)
	assert.Equal(t, 50.0, res.WinRate)
	assert.InDelta(t, 5, res.AverageWin, 1e-9)
	assert.InDelta(t, -30, res.AverageLoss, 1e-9)
	assert.InDelta(t, 5.0/30, res.ProfitFactor, 1e-9)
	assert.InDelta(t, 0.3, res.MaxDrawdown, 1e-9)
	assert.InDelta(t, 9975, res.FinalCapital, 1e-9)
	assert.InDelta(t, -25, res.TotalReturn, 1e-9)
}

func TestCommissionOnBothFills(t *testing.T) {
	cfg := testConfig()
	cfg.Commission = 0.001
	s := scripted{shares: 10, actions: map[int]strategy.Action{0: strategy.ActionBuy, 1: strategy.ActionSell}}

	res, err := newEngine(t, cfg, s).Run(context.Background(), []string{sym}, map[string][]market.Bar{
		sym: barsAt(time.Hour, 100, 100),
	})
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.InDelta(t, 2, res.Trades[0].Fees, 1e-9)
	assert.InDelta(t, -2, res.Trades[0].PnL, 1e-9)
	assert.InDelta(t, 9998, res.FinalCapital, 1e-9)
	assert.Equal(t, 1, res.LosingTrades)
}

func TestDailyLossLimitBlocksEntries(t *testing.T) {
	s := scripted{shares: 50, actions: map[int]strategy.Action{
		0: strategy.ActionBuy,
		2: strategy.ActionBuy,
		3: strategy.ActionBuy,
	}}
	closes := []float64{100, 95, 100, 100}
	bars := barsAt(time.Hour, closes...)
	bars[3].Time = t0.Add(25 * time.Hour)

	res, err := newEngine(t, testConfig(), s).Run(context.Background(), []string{sym}, map[string][]market.Bar{sym: bars})
	require.NoError(t, err)

	// 50 shares lost 250 (2.5%), so bar 2 is blocked; the next day trades.
	require.Len(t, res.Trades, 2)
	assert.Equal(t, risk.ReasonStopLoss, res.Trades[0].Reason)
	assert.Equal(t, t0.Add(25*time.Hour), res.Trades[1].EntryTime)
	assert.Equal(t, ReasonEndOfData, res.Trades[1].Reason)
}

func TestSkipsShortSeries(t *testing.T) {
	cfg := DefaultConfig()
	s := scripted{shares: 1}

	res, err := newEngine(t, cfg, s).Run(context.Background(), []string{sym, "ETHUSDT"}, map[string][]market.Bar{
		sym:       barsAt(time.Hour, make([]float64, 60)...),
		"ETHUSDT": barsAt(time.Hour, 1, 2, 3),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ETHUSDT"}, res.Skipped)

	_, err = newEngine(t, cfg, s).Run(context.Background(), []string{"ETHUSDT"}, map[string][]market.Bar{
		"ETHUSDT": barsAt(time.Hour, 1, 2, 3),
	})
	assert.ErrorIs(t, err, errs.ErrDataUnavailable)
}

func TestNewEngineValidates(t *testing.T) {
	s := scripted{}
	tests := []struct {
		name  string
		mod   func(*Config)
		strat strategy.Strategy
	}{
		{"no strategy", func(*Config) {}, nil},
		{"zero capital", func(c *Config) { c.InitialCapital = 0 }, s},
		{"negative commission", func(c *Config) { c.Commission = -0.1 }, s},
		{"full commission", func(c *Config) { c.Commission = 1 }, s},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mod(&cfg)
			_, err := NewEngine(cfg, tt.strat)
			assert.ErrorIs(t, err, errs.ErrInvalidConfig)
		})
	}
}

func TestRegisteredStrategiesBalance(t *testing.T) {
	closes := make([]float64, 300)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/8) + float64(i)*0.05
	}
	bars := market.Enrich(barsAt(time.Hour, closes...))

	for name, strat := range strategy.All(0.10) {
		t.Run(name, func(t *testing.T) {
			res, err := newEngine(t, DefaultConfig(), strat).Run(context.Background(), []string{sym}, map[string][]market.Bar{sym: bars})
			require.NoError(t, err)
			assert.Equal(t, name, res.Strategy)
			assert.Len(t, res.EquityCurve, len(bars)-DefaultConfig().Warmup)

			sum := 0.0
			for _, tr := range res.Trades {
				sum += tr.PnL
			}
			assert.InDelta(t, res.InitialCapital+sum, res.FinalCapital, 1e-6)
			assert.GreaterOrEqual(t, res.MaxDrawdown, 0.0)
		})
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newEngine(t, testConfig(), scripted{}).Run(ctx, []string{sym}, map[string][]market.Bar{sym: barsAt(time.Hour, 1, 2)})
	assert.ErrorIs(t, err, context.Canceled)
}
