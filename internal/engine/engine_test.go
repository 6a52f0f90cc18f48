package engine

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dai-trader/config"
	"dai-trader/internal/aggregator"
	"dai-trader/internal/allocation"
	"dai-trader/internal/binance"
	"dai-trader/internal/broker"
	"dai-trader/internal/errs"
	"dai-trader/internal/market"
	"dai-trader/internal/risk"
	"dai-trader/internal/signals"
	"dai-trader/internal/storage"
	"dai-trader/internal/strategy"
)

const sym = "SOLUSDT"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeMarket serves one flat bar at the mock client's current price.
type fakeMarket struct {
	mc     *binance.MockClient
	closed bool
}

func (f *fakeMarket) HistoricalBars(ctx context.Context, symbol, _ string, _ int) ([]market.Bar, error) {
	p, err := f.mc.GetCurrentPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return []market.Bar{{Close: p, RSI: 50, MACD: 0.1, VolumeRatio: 1}}, nil
}

func (f *fakeMarket) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	return f.mc.GetCurrentPrice(ctx, symbol)
}

func (f *fakeMarket) MarketOpen(context.Context) (bool, error) {
	return !f.closed, nil
}

type harness struct {
	cfg     *config.Config
	clock   *clock
	mc      *binance.MockClient
	market  *fakeMarket
	broker  *broker.Spot
	store   *storage.Memory
	news    *signals.Static
	options *signals.Static
	global  *signals.StaticContext
	engine  *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.StorageConfig.Backend = "memory"
	cfg.TradingConfig.Watchlist = []string{sym}
	cfg.AgentConfig.Epsilon = 0 // the empty table always proposes HOLD

	h := &harness{
		cfg:     cfg,
		clock:   &clock{t: time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)},
		mc:      binance.NewMockClient(1),
		store:   storage.NewMemory(),
		news:    signals.NewStatic(signals.SourceNews),
		options: signals.NewStatic(signals.SourceOptions),
		global: &signals.StaticContext{
			MacroContext:    signals.MacroContext{Regime: signals.LabelNeutral},
			EconomicContext: signals.EconomicContext{RiskLevel: signals.RiskLow},
			CryptoContext:   signals.CryptoContext{Label: signals.LabelNeutral},
		},
	}
	h.mc.SetPrice(sym, 100)
	h.market = &fakeMarket{mc: h.mc}
	h.broker = broker.NewPaper(h.mc, cfg.TradingConfig.PaperCash, broker.WithClock(h.clock.now))
	h.engine = h.build(t)
	return h
}

func (h *harness) build(t *testing.T) *Engine {
	t.Helper()
	collector := signals.NewCollector(signals.CollectorConfig{Prefix: "test"}, nil)
	collector.AddProvider(h.news)
	collector.AddProvider(h.options)
	collector.SetMacroProvider(h.global)
	collector.SetEconomicProvider(h.global)
	collector.SetCryptoProvider(h.global)

	e, err := New(h.cfg, Deps{
		Market:  h.market,
		Broker:  h.broker,
		Store:   h.store,
		Signals: collector,
	}, WithClock(h.clock.now), WithRand(rand.New(rand.NewSource(7))))
	require.NoError(t, err)
	return e
}

// bullish makes the aggregator upgrade HOLD to BUY: 20 + 18 > 25.
func (h *harness) bullish() {
	h.news.Set(sym, signals.Signal{Label: signals.LabelBullish, Confidence: 80})
	h.options.Set(sym, signals.Signal{Label: signals.LabelBullish, Confidence: 80})
}

func (h *harness) openPosition(t *testing.T) *Report {
	t.Helper()
	h.bullish()
	r, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, r.Opened, 1)
	return r
}

func TestNewRejectsInvalidSetup(t *testing.T) {
	h := newHarness(t)

	bad := config.Default()
	bad.TradingConfig.Watchlist = nil
	_, err := New(bad, Deps{Market: h.market, Broker: h.broker, Store: h.store,
		Signals: signals.NewCollector(signals.CollectorConfig{}, nil)})
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = New(h.cfg, Deps{Market: h.market, Store: h.store})
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestCycleOpensOnStrongSignals(t *testing.T) {
	h := newHarness(t)
	r := h.openPosition(t)

	require.Len(t, r.Decisions, 1)
	d := r.Decisions[0]
	assert.Equal(t, strategy.ActionHold, d.Proposed)
	assert.Equal(t, strategy.ActionBuy, d.Action)
	assert.Equal(t, 88, d.Confidence)
	assert.Equal(t, allocation.TierMedium, d.Tier)

	opened := r.Opened[0]
	assert.Equal(t, sym, opened.Symbol)
	assert.Equal(t, 100.0, opened.EntryPrice)
	assert.Equal(t, allocation.TierMedium, opened.Tier)
	// 10% of the untouched MEDIUM tier (30% of 100k) scaled by at most 2.0
	assert.Greater(t, opened.Shares, 0)
	assert.LessOrEqual(t, float64(opened.Shares)*100, 30000*allocation.BudgetFraction*aggregator.MaxMultiplier)

	positions, err := h.broker.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, opened.Shares, positions[0].Qty)

	stops := h.engine.Risk().Stops()
	require.Len(t, stops, 1)
	assert.InDelta(t, 98, stops[0].CurrentStopLoss, 1e-9)
	assert.InDelta(t, 104, stops[0].TakeProfit, 1e-9)

	var saved map[string]OpenTrade
	ok, err := storage.LoadJSON(context.Background(), h.store, storage.KeyOpenTrades, &saved)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, saved, sym)
}

func TestHoldWithoutSignals(t *testing.T) {
	h := newHarness(t)
	r, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, r.Decisions, 1)
	assert.Equal(t, strategy.ActionHold, r.Decisions[0].Action)
	assert.Empty(t, r.Opened)
}

func TestMarketClosedSkipsCycle(t *testing.T) {
	h := newHarness(t)
	h.market.closed = true
	h.bullish()
	r, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, r.MarketOpen)
	assert.Empty(t, r.Decisions)
	assert.Empty(t, h.engine.OpenTrades())
}

func TestEconomicBlockerPreventsEntry(t *testing.T) {
	h := newHarness(t)
	h.global.EconomicContext = signals.EconomicContext{RiskLevel: signals.RiskExtreme, AvoidTrading: true}
	h.bullish()

	r, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, r.Decisions, 1)
	assert.True(t, r.Decisions[0].Blocked)
	assert.Equal(t, 0, r.Decisions[0].Confidence)
	assert.Empty(t, r.Opened)
}

func TestStopLossClosesAndFeedsLearners(t *testing.T) {
	h := newHarness(t)
	opened := h.openPosition(t).Opened[0]

	h.clock.advance(2 * time.Hour)
	h.mc.SetPrice(sym, 97)
	r, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, r.Closed, 1)
	c := r.Closed[0]
	assert.Equal(t, risk.ReasonStopLoss, c.Reason)
	assert.InDelta(t, -3*float64(opened.Shares), c.PnL, 1e-6)
	assert.InDelta(t, -0.03, c.PnLPct, 1e-9)
	assert.InDelta(t, -3.0, c.Reward, 1e-9)
	assert.Equal(t, "closed this cycle", r.Skipped[sym], "no re-entry in the cycle that stopped out")

	assert.Empty(t, h.engine.OpenTrades())
	assert.Equal(t, 1, h.engine.Agent().Stats().TotalTrades)
	assert.Equal(t, 1, h.engine.Breaker().LosingStreak())
	assert.Equal(t, 1, h.engine.Risk().Summary().TradeCountToday)
	assert.Equal(t, 1, h.engine.Selector().Performance()[strategy.Momentum].Losses)
	assert.Empty(t, h.engine.Risk().Stops())

	trades, err := h.engine.RecentTrades(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, sym, trades[0].Symbol)
	assert.Equal(t, string(allocation.TierMedium), trades[0].Tier)
}

func TestTrailingStopRatchets(t *testing.T) {
	h := newHarness(t)
	h.openPosition(t)

	h.mc.SetPrice(sym, 103)
	_, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)
	stop, ok := stopOf(h.engine, sym)
	require.True(t, ok)
	assert.InDelta(t, 103*0.98, stop, 1e-9)

	h.mc.SetPrice(sym, 101.5)
	_, err = h.engine.RunCycle(context.Background())
	require.NoError(t, err)
	after, ok := stopOf(h.engine, sym)
	require.True(t, ok)
	assert.Equal(t, stop, after, "stop never loosens")
}

func stopOf(e *Engine, symbol string) (float64, bool) {
	for _, p := range e.Risk().Stops() {
		if p.Symbol == symbol {
			return p.CurrentStopLoss, true
		}
	}
	return 0, false
}

func TestEmergencyCloseAll(t *testing.T) {
	h := newHarness(t)
	h.openPosition(t)

	vix := 45.0
	h.global.MacroContext = signals.MacroContext{Regime: signals.LabelNeutral, VIX: &vix}
	h.global.CryptoContext = signals.CryptoContext{Label: signals.LabelRiskOff, Confidence: 80, BTCChange24h: -18}

	r, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Emergency)
	assert.True(t, r.Halted)
	require.Len(t, r.Closed, 1)
	assert.Equal(t, ReasonEmergencyClose, r.Closed[0].Reason)
	assert.Empty(t, r.Decisions)

	positions, err := h.broker.Positions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions)
	assert.Empty(t, h.engine.OpenTrades())
}

func TestUnsafeMarketHaltsEntries(t *testing.T) {
	h := newHarness(t)
	vix := 35.0
	spread := -0.5
	h.global.MacroContext = signals.MacroContext{Regime: signals.LabelBearish, Confidence: 80, VIX: &vix, TreasurySpread: &spread}
	h.global.EconomicContext = signals.EconomicContext{RiskLevel: signals.RiskHigh}
	h.bullish()

	r, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)
	// 30 bearish macro + 20 inverted curve + 25 VIX + 15 economic
	assert.Equal(t, 90, r.Safety.DangerScore)
	assert.False(t, r.Safety.IsSafe)
	assert.True(t, r.Halted)
	assert.Empty(t, r.Opened)
	assert.Contains(t, r.Skipped[sym], "trading halted")
}

func TestRestoreRebuildsState(t *testing.T) {
	h := newHarness(t)
	opened := h.openPosition(t).Opened[0]
	book := h.broker.Snapshot()

	// A fresh process: new broker and engine over the same store.
	h.broker = broker.NewPaper(h.mc, 1, broker.WithClock(h.clock.now))
	restored := h.build(t)
	require.NoError(t, restored.Restore(context.Background()))

	trades := restored.OpenTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, opened.Shares, trades[0].Shares)
	assert.Equal(t, book, h.broker.Snapshot())
	require.Len(t, restored.Risk().Stops(), 1)

	status := restored.Status()
	assert.Equal(t, strategy.Momentum, status.Strategy)
	assert.Len(t, status.OpenTrades, 1)
}

func TestRestoreKeepsTrailedStop(t *testing.T) {
	h := newHarness(t)
	h.openPosition(t)

	h.mc.SetPrice(sym, 103)
	_, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)
	before, ok := stopOf(h.engine, sym)
	require.True(t, ok)
	require.InDelta(t, 103*0.98, before, 1e-9)
	startValue := h.engine.Risk().Summary().DailyStartValue

	h.broker = broker.NewPaper(h.mc, 1, broker.WithClock(h.clock.now))
	restored := h.build(t)
	require.NoError(t, restored.Restore(context.Background()))

	after, ok := stopOf(restored, sym)
	require.True(t, ok)
	assert.Equal(t, before, after)
	assert.Equal(t, startValue, restored.Risk().Summary().DailyStartValue)

	// Below the trailed stop but above the entry-based one.
	h.mc.SetPrice(sym, 100.5)
	r, err := restored.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, r.Closed, 1)
	assert.Equal(t, risk.ReasonStopLoss, r.Closed[0].Reason)
}

func TestRestoreKeepsDailyStartValue(t *testing.T) {
	h := newHarness(t)
	h.openPosition(t)
	start := h.engine.Risk().Summary()
	require.Greater(t, start.DailyStartValue, 0.0)

	h.clock.advance(3 * time.Hour)
	h.broker = broker.NewPaper(h.mc, 1, broker.WithClock(h.clock.now))
	restored := h.build(t)
	require.NoError(t, restored.Restore(context.Background()))

	h.mc.SetPrice(sym, 99)
	_, err := restored.RunCycle(context.Background())
	require.NoError(t, err)
	after := restored.Risk().Summary()
	assert.Equal(t, start.DailyStartValue, after.DailyStartValue)
	assert.True(t, start.LastResetDate.Equal(after.LastResetDate))
}

func TestReconcileDropsTradesBrokerNoLongerHolds(t *testing.T) {
	h := newHarness(t)
	h.openPosition(t)

	// The holding vanished outside the engine.
	h.broker.Restore(broker.Book{Cash: h.cfg.TradingConfig.PaperCash})
	r, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{sym}, r.Dropped)
	assert.NotEqual(t, "already held", r.Skipped[sym])
	require.Len(t, r.Opened, 1, "the symbol is tradable again")

	trades := h.engine.OpenTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, r.Opened[0].Shares, trades[0].Shares)
}

func TestReconcileKeepsHeldTrades(t *testing.T) {
	h := newHarness(t)
	h.openPosition(t)

	r, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, r.Dropped)
	assert.Equal(t, "already held", r.Skipped[sym])
	assert.Len(t, h.engine.OpenTrades(), 1)
}

func TestRestoreEmptyStore(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.Restore(context.Background()))
	assert.Empty(t, h.engine.OpenTrades())
	assert.Equal(t, 0, h.engine.Agent().Stats().StatesLearned)
}

func TestSizeTakesSmallestCap(t *testing.T) {
	h := newHarness(t)
	strat, _ := strategy.New(strategy.Momentum, 0.10)
	d := aggregator.Decision{Confidence: 100, SizeMultiplier: 1}

	assert.Equal(t, 30, h.engine.size(sym, 100, 100000, 3000, d, strat))
	assert.Equal(t, 100, h.engine.size(sym, 100, 100000, 1e9, d, strat))
	assert.Equal(t, 0, h.engine.size(sym, 0, 100000, 3000, d, strat))
}

func TestStartStop(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, h.engine.Start(ctx))
	assert.True(t, h.engine.Running())
	assert.Error(t, h.engine.Start(ctx))

	require.Eventually(t, func() bool { return h.engine.LastReport() != nil }, time.Second, 10*time.Millisecond)
	h.engine.Stop()
	assert.False(t, h.engine.Running())
}
