package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dai-trader/config"
	"dai-trader/internal/backtest"
)

func setup(t *testing.T) {
	t.Helper()
	orig := loadConfig
	loadConfig = func() (*config.Config, error) {
		cfg := config.Default()
		cfg.BinanceConfig.Mock = true
		cfg.AgentConfig.Seed = 11
		cfg.TradingConfig.Watchlist = []string{"SOLUSDT", "ETHUSDT"}
		return cfg, nil
	}
	t.Cleanup(func() {
		loadConfig = orig
		flagStrategy, flagSymbols, flagInterval = "momentum", nil, ""
		flagBars, flagCapital, flagWarmup, flagJSON = 500, 10000, 50, false
	})
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBacktestReport(t *testing.T) {
	setup(t)
	out, err := run(t, "--strategy", "momentum", "--bars", "200")
	require.NoError(t, err)
	assert.Contains(t, out, "momentum (15m bars)")
	assert.Contains(t, out, "Total trades")
	assert.Contains(t, out, "Max drawdown")
}

func TestBacktestJSON(t *testing.T) {
	setup(t)
	out, err := run(t, "--strategy", "mean_reversion", "--symbols", "BTCUSDT", "--interval", "1h",
		"--bars", "150", "--capital", "5000", "--json")
	require.NoError(t, err)

	var res backtest.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "mean_reversion", res.Strategy)
	assert.Equal(t, 5000.0, res.InitialCapital)
	assert.Len(t, res.EquityCurve, 100)
}

func TestBacktestRejectsUnknownStrategy(t *testing.T) {
	setup(t)
	_, err := run(t, "--strategy", "astrology", "--json=false")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")
}
