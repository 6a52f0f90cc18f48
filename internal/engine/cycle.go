package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"dai-trader/internal/aggregator"
	"dai-trader/internal/allocation"
	"dai-trader/internal/broker"
	"dai-trader/internal/events"
	"dai-trader/internal/learning"
	"dai-trader/internal/ledger"
	"dai-trader/internal/market"
	"dai-trader/internal/risk"
	"dai-trader/internal/safety"
	"dai-trader/internal/signals"
	"dai-trader/internal/storage"
	"dai-trader/internal/strategy"
)

// Close reasons the engine adds to the risk controller's.
const (
	ReasonSellSignal     = "sell signal"
	ReasonEmergencyClose = "emergency close-all"
)

// ClosedTrade is a round trip completed during a cycle.
type ClosedTrade struct {
	Symbol     string  `json:"symbol"`
	Reason     string  `json:"reason"`
	Shares     int     `json:"shares"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	PnL        float64 `json:"pnl"`
	PnLPct     float64 `json:"pnl_pct"`
	Reward     float64 `json:"reward"`
}

// Report summarizes one cycle.
type Report struct {
	StartedAt    time.Time             `json:"started_at"`
	Duration     time.Duration         `json:"duration"`
	MarketOpen   bool                  `json:"market_open"`
	AccountValue float64               `json:"account_value"`
	Cash         float64               `json:"cash"`
	Ledger       ledger.Update         `json:"ledger"`
	Halted       bool                  `json:"halted"`
	HaltReason   string                `json:"halt_reason,omitempty"`
	Safety       safety.Assessment     `json:"safety"`
	Emergency    bool                  `json:"emergency"`
	Strategy     string                `json:"strategy"`
	Plan         allocation.Plan       `json:"plan,omitempty"`
	Decisions    []aggregator.Decision `json:"decisions,omitempty"`
	Opened       []OpenTrade           `json:"opened,omitempty"`
	Closed       []ClosedTrade         `json:"closed,omitempty"`
	Skipped      map[string]string     `json:"skipped,omitempty"`
	Dropped      []string              `json:"dropped,omitempty"`
	Errors       []string              `json:"errors,omitempty"`
}

func (r *Report) skip(symbol, reason string) {
	if r.Skipped == nil {
		r.Skipped = make(map[string]string)
	}
	r.Skipped[symbol] = reason
}

func (r *Report) closedThisCycle(symbol string) bool {
	for _, c := range r.Closed {
		if c.Symbol == symbol {
			return true
		}
	}
	return false
}

// snapshot is what the fan-out fetched for one symbol.
type snapshot struct {
	bars    []market.Bar
	signals map[signals.Source]signals.Signal
	err     error
}

func (s *snapshot) latest() (market.Bar, bool) {
	if s == nil || s.err != nil {
		return market.Bar{}, false
	}
	return market.Latest(s.bars)
}

// RunCycle performs one full decision cycle. A returned error means the
// cycle could not start (market or account unavailable); per-symbol
// failures are recorded in the report.
func (e *Engine) RunCycle(ctx context.Context) (*Report, error) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	start := e.now()
	report := &Report{StartedAt: start, Strategy: e.selector.Current()}
	defer func() {
		report.Duration = e.now().Sub(start)
		e.mu.Lock()
		e.lastReport = report
		e.mu.Unlock()
	}()

	open, err := e.deps.Market.MarketOpen(ctx)
	if err != nil {
		return report, err
	}
	report.MarketOpen = open
	if !open {
		e.logger.Debug("market closed, skipping cycle")
		return report, nil
	}

	account, err := e.deps.Broker.Account(ctx)
	if err != nil {
		return report, err
	}
	e.setAccountValue(account.PortfolioValue)
	report.AccountValue, report.Cash = account.PortfolioValue, account.Cash

	report.Ledger = e.ledger.UpdateBalance(account.PortfolioValue)
	if report.Ledger.Ratchet != nil || report.Ledger.RolledOver {
		e.publishLedger(report.Ledger)
	}

	positions, err := e.deps.Broker.Positions(ctx)
	if err != nil {
		return report, err
	}
	e.reconcile(positions, report)

	// Fetch every watched and held symbol once.
	symbols := e.symbols(positions)
	snaps := e.fetch(ctx, symbols)
	perSymbol := make(map[string]map[signals.Source]signals.Signal, len(snaps))
	for sym, s := range snaps {
		if s.err == nil {
			perSymbol[sym] = s.signals
		}
	}
	global := e.deps.Signals.Global(ctx, perSymbol)
	if global.Macro.VIX != nil {
		e.ledger.UpdateVolatility(min(100, *global.Macro.VIX*2))
	}

	// Gates. CanTrade runs first so the day's start value is recorded
	// before performance is measured against it.
	canTrade, haltReason := e.risk.CanTrade(account.PortfolioValue)
	if canTrade {
		canTrade, haltReason = e.breaker.CanTrade()
	}

	in := safety.Input{
		Macro:    global.Macro,
		Crypto:   global.Crypto,
		Economic: global.Economic,
		News:     global.News,
		Performance: safety.AccountPerformance{
			DailyPnLPct:  e.risk.DailyPnLPct(account.PortfolioValue),
			LosingStreak: e.breaker.LosingStreak(),
		},
	}
	report.Safety = safety.Evaluate(in)
	e.noteSafety(report.Safety)
	if canTrade && !report.Safety.IsSafe {
		canTrade, haltReason = false, report.Safety.Reason
	}

	if closeAll, reason := safety.ShouldCloseAll(in); closeAll {
		report.Emergency = true
		e.emergencyClose(ctx, reason, snaps, report)
		report.Halted, report.HaltReason = true, reason
		e.noteHalt(reason)
		e.persist(ctx, report)
		e.publishCycle(report)
		return report, nil
	}

	e.manage(ctx, positions, snaps, report)

	report.Halted, report.HaltReason = !canTrade, haltReason
	e.noteHalt(haltReason)

	if len(report.Closed) > 0 {
		if a, err := e.deps.Broker.Account(ctx); err == nil {
			e.setAccountValue(a.PortfolioValue)
			report.AccountValue, report.Cash = a.PortfolioValue, a.Cash
			report.Ledger = e.ledger.UpdateBalance(a.PortfolioValue)
		}
		if positions, err = e.deps.Broker.Positions(ctx); err != nil {
			report.Errors = append(report.Errors, err.Error())
			canTrade = false
		}
	}

	plan := allocation.Compute(report.AccountValue, e.holdings(positions))
	plan = safety.ApplyToAllocation(plan, report.Safety.RiskReduction)
	report.Plan = plan

	e.scan(ctx, snaps, global, plan, canTrade, report)

	e.persist(ctx, report)
	e.publishCycle(report)
	return report, nil
}

func (e *Engine) setAccountValue(v float64) {
	e.mu.Lock()
	e.accountValue = v
	e.mu.Unlock()
}

// symbols is the watchlist followed by held symbols not on it.
func (e *Engine) symbols(positions []broker.Position) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range e.config.TradingConfig.Watchlist {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, p := range positions {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			out = append(out, p.Symbol)
		}
	}
	return out
}

// fetch loads bars and signals for every symbol with bounded parallelism.
// A failing symbol does not cancel the others.
func (e *Engine) fetch(ctx context.Context, symbols []string) map[string]*snapshot {
	results := make([]*snapshot, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	if n := e.config.TradingConfig.FetchParallel; n > 0 {
		g.SetLimit(n)
	}
	interval := e.config.TradingConfig.BarInterval
	lookback := e.config.TradingConfig.BarLookback

	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			s := &snapshot{}
			s.bars, s.err = e.deps.Market.HistoricalBars(gctx, sym, interval, lookback)
			if s.err == nil && len(s.bars) == 0 {
				s.err = fmt.Errorf("%s: no bars", sym)
			}
			if s.err == nil {
				s.signals = e.deps.Signals.Collect(gctx, sym)
			}
			results[i] = s
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]*snapshot, len(symbols))
	for i, sym := range symbols {
		out[sym] = results[i]
		if results[i].err != nil {
			e.logger.Warn("symbol data unavailable", "symbol", sym, "error", results[i].err)
		}
	}
	return out
}

// reconcile drops tracked trades the broker no longer holds, e.g. after a
// manual sale or a lost book.
func (e *Engine) reconcile(positions []broker.Position, report *Report) {
	held := make(map[string]bool, len(positions))
	for _, p := range positions {
		held[p.Symbol] = true
	}

	e.mu.Lock()
	var gone []string
	for sym := range e.trades {
		if !held[sym] {
			delete(e.trades, sym)
			gone = append(gone, sym)
		}
	}
	e.mu.Unlock()

	sort.Strings(gone)
	for _, sym := range gone {
		e.risk.Forget(sym)
		e.logger.Warn("tracked trade no longer held by broker, dropped", "symbol", sym)
		report.Dropped = append(report.Dropped, sym)
	}
}

// manage closes or trails every held position.
func (e *Engine) manage(ctx context.Context, positions []broker.Position, snaps map[string]*snapshot, report *Report) {
	for _, p := range positions {
		e.adopt(p, snaps[p.Symbol])

		if should, reason := e.risk.ShouldClose(p.Symbol, p.CurrentPrice, p.AvgEntryPrice, p.UnrealizedPLPct); should {
			if err := e.closeTrade(ctx, p.Symbol, reason, snaps[p.Symbol], report); err != nil {
				report.Errors = append(report.Errors, err.Error())
			}
			continue
		}

		if upd := e.risk.UpdateTrailingStop(p.Symbol, p.CurrentPrice, p.AvgEntryPrice, 0); upd != nil {
			e.deps.Bus.Publish(events.Event{Type: events.EventStopUpdated, Data: map[string]interface{}{
				"symbol":   upd.Symbol,
				"old_stop": upd.OldStopLoss,
				"new_stop": upd.NewStopLoss,
				"price":    p.CurrentPrice,
			}})
		}
	}
}

// adopt starts tracking a position the engine did not open itself, e.g.
// one restored from the broker without a matching trade record.
func (e *Engine) adopt(p broker.Position, snap *snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.trades[p.Symbol]; ok {
		t.Shares = p.Qty
		return
	}

	state := learning.State("")
	if bar, ok := snap.latest(); ok {
		state = learning.StateOf(bar)
	}
	e.trades[p.Symbol] = &OpenTrade{
		Symbol:     p.Symbol,
		Shares:     p.Qty,
		EntryPrice: p.AvgEntryPrice,
		EntryTime:  e.now(),
		EntryState: state,
		Action:     strategy.ActionBuy,
		Strategy:   e.selector.Current(),
		Tier:       allocation.TierMedium,
	}
	e.armStops(p.Symbol, p.AvgEntryPrice)
	e.logger.Info("adopted untracked position", "symbol", p.Symbol, "qty", p.Qty, "entry", p.AvgEntryPrice)
}

func (e *Engine) armStops(symbol string, entry float64) {
	e.risk.StopLossPrice(symbol, entry, risk.Long)
	e.risk.TakeProfitPrice(symbol, entry, risk.Long)
}

// closeTrade sells symbol and feeds the result to every learner. Nothing
// is mutated when the order fails.
func (e *Engine) closeTrade(ctx context.Context, symbol, reason string, snap *snapshot, report *Report) error {
	order, err := e.deps.Broker.ClosePosition(ctx, symbol)
	if err != nil {
		e.logger.Error("close failed", "symbol", symbol, "reason", reason, "error", err)
		e.deps.Bus.PublishError("engine", "close "+symbol+" failed", err)
		return err
	}
	e.deps.Bus.PublishOrderPlaced(order.ID, symbol, string(order.Side), order.FilledPrice, order.Qty)
	e.settle(ctx, symbol, reason, *order, snap, report)
	return nil
}

// settle books a confirmed exit.
func (e *Engine) settle(ctx context.Context, symbol, reason string, order broker.Order, snap *snapshot, report *Report) {
	e.mu.Lock()
	trade, ok := e.trades[symbol]
	delete(e.trades, symbol)
	accountValue := e.accountValue
	e.mu.Unlock()
	if !ok {
		trade = &OpenTrade{Symbol: symbol, EntryPrice: order.FilledPrice, EntryTime: order.SubmittedAt,
			Action: strategy.ActionBuy, Strategy: e.selector.Current(), Tier: allocation.TierMedium}
	}

	exit := order.FilledPrice
	pnl := (exit - trade.EntryPrice) * float64(order.Qty)
	pnlPct := 0.0
	if trade.EntryPrice > 0 {
		pnlPct = (exit - trade.EntryPrice) / trade.EntryPrice
	}
	hours := order.SubmittedAt.Sub(trade.EntryTime).Hours()

	next := trade.EntryState
	if bar, ok := snap.latest(); ok {
		next = learning.StateOf(bar)
	}
	reward := learning.Reward(pnl, pnlPct, hours)
	if trade.EntryState != "" {
		e.agent.Update(trade.EntryState, trade.Action, reward, next)
		e.agent.AdjustExploration(e.agent.WinRate())
	}

	before := e.selector.Current()
	if e.selector.RecordTrade(trade.Strategy, pnl) {
		after := e.selector.Current()
		e.deps.Bus.Publish(events.Event{Type: events.EventStrategySwitched, Data: map[string]interface{}{
			"from": before,
			"to":   after,
		}})
	}

	e.risk.RecordTrade(symbol, pnl)
	e.risk.Forget(symbol)
	e.breaker.RecordTrade(pnlPct * 100)

	rec := storage.TradeRecord{
		Symbol:     symbol,
		Strategy:   trade.Strategy,
		Tier:       string(trade.Tier),
		Shares:     order.Qty,
		EntryPrice: trade.EntryPrice,
		ExitPrice:  exit,
		PnL:        pnl,
		PnLPct:     pnlPct,
		Reason:     reason,
		OpenedAt:   trade.EntryTime,
		ClosedAt:   order.SubmittedAt,
	}
	if err := e.deps.Store.RecordTrade(ctx, rec); err != nil {
		e.logger.Warn("journal write failed", "symbol", symbol, "error", err)
	}

	e.logger.PositionContext(symbol, trade.EntryPrice, order.Qty).Info("position closed",
		"reason", reason,
		"exit", exit,
		"pnl", pnl,
		"reward", reward,
		"account_value", accountValue,
	)
	e.deps.Bus.PublishTradeClosed(symbol, reason, trade.EntryPrice, exit, order.Qty, pnl, pnlPct)

	report.Closed = append(report.Closed, ClosedTrade{
		Symbol:     symbol,
		Reason:     reason,
		Shares:     order.Qty,
		EntryPrice: trade.EntryPrice,
		ExitPrice:  exit,
		PnL:        pnl,
		PnLPct:     pnlPct,
		Reward:     reward,
	})
}

// emergencyClose liquidates everything the broker holds.
func (e *Engine) emergencyClose(ctx context.Context, reason string, snaps map[string]*snapshot, report *Report) {
	e.logger.Error("emergency close-all", "reason", reason)
	e.deps.Bus.Publish(events.Event{Type: events.EventEmergencyClose, Data: map[string]interface{}{
		"reason": reason,
	}})

	orders, err := e.deps.Broker.CloseAll(ctx)
	for _, o := range orders {
		e.deps.Bus.PublishOrderPlaced(o.ID, o.Symbol, string(o.Side), o.FilledPrice, o.Qty)
		e.settle(ctx, o.Symbol, ReasonEmergencyClose, o, snaps[o.Symbol], report)
	}
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		e.deps.Bus.PublishError("engine", "emergency close incomplete", err)
	}
}

// holdings values the broker's positions by the tier they were opened in.
func (e *Engine) holdings(positions []broker.Position) []allocation.Holding {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]allocation.Holding, 0, len(positions))
	for _, p := range positions {
		tier := allocation.TierMedium
		if t, ok := e.trades[p.Symbol]; ok {
			tier = allocation.ParseTier(string(t.Tier))
		}
		out = append(out, allocation.Holding{Symbol: p.Symbol, Tier: tier, MarketValue: p.MarketValue})
	}
	return out
}

// scan decides every watched symbol in watchlist order.
func (e *Engine) scan(ctx context.Context, snaps map[string]*snapshot, global signals.Global,
	plan allocation.Plan, canTrade bool, report *Report) {

	strat := e.strategies[e.selector.Current()]
	for _, symbol := range e.config.TradingConfig.Watchlist {
		if ctx.Err() != nil {
			report.Errors = append(report.Errors, ctx.Err().Error())
			return
		}
		snap := snaps[symbol]
		bar, ok := snap.latest()
		if !ok {
			report.skip(symbol, "no market data")
			continue
		}

		state := learning.StateOf(bar)
		fallback := strat.GenerateSignal(symbol, snap.bars)
		proposed := e.agent.ChooseAction(state, fallback)
		d := aggregator.Decide(proposed, signals.Bundle{Symbol: symbol, Signals: snap.signals, Global: global})
		report.Decisions = append(report.Decisions, d)
		e.logger.SignalContext(symbol, string(d.Action), d.Confidence).Debug("decision",
			"proposed", d.Proposed, "multiplier", d.SizeMultiplier, "tier", d.Tier, "blocked", d.Blocked)
		e.deps.Bus.PublishDecision(symbol, string(d.Proposed), string(d.Action), d.Confidence, d.SizeMultiplier, string(d.Tier))

		held := e.isHeld(symbol)
		switch {
		case d.Action == strategy.ActionSell && held:
			if err := e.closeTrade(ctx, symbol, ReasonSellSignal, snap, report); err != nil {
				report.Errors = append(report.Errors, err.Error())
			}
			continue
		case d.Action != strategy.ActionBuy:
			continue
		case held:
			report.skip(symbol, "already held")
			continue
		case report.closedThisCycle(symbol):
			report.skip(symbol, "closed this cycle")
			continue
		case !canTrade:
			report.skip(symbol, "trading halted: "+report.HaltReason)
			continue
		case e.openCount() >= e.config.TradingConfig.MaxPositions:
			report.skip(symbol, "max positions reached")
			continue
		}

		if err := e.enter(ctx, symbol, state, strat, d, plan, report); err != nil {
			report.skip(symbol, err.Error())
		}
	}
}

func (e *Engine) isHeld(symbol string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.trades[symbol]
	return ok
}

func (e *Engine) openCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.trades)
}

// enter sizes and places a buy. The tier usage in plan is updated so later
// symbols in the same cycle see it.
func (e *Engine) enter(ctx context.Context, symbol string, state learning.State, strat strategy.Strategy,
	d aggregator.Decision, plan allocation.Plan, report *Report) error {

	budget, err := aggregator.Budget(plan, d)
	if err != nil {
		return err
	}
	price, err := e.deps.Market.LatestPrice(ctx, symbol)
	if err != nil {
		return err
	}

	shares := e.size(symbol, price, report.AccountValue, budget, d, strat)
	if shares <= 0 {
		return fmt.Errorf("position too small (budget %.2f at %.4f)", budget, price)
	}

	order, err := e.deps.Broker.PlaceMarketOrder(ctx, symbol, shares, broker.Buy)
	if err != nil {
		e.deps.Bus.PublishError("engine", "buy "+symbol+" failed", err)
		return err
	}
	e.deps.Bus.PublishOrderPlaced(order.ID, symbol, string(order.Side), order.FilledPrice, order.Qty)

	trade := &OpenTrade{
		Symbol:     symbol,
		Shares:     order.Qty,
		EntryPrice: order.FilledPrice,
		EntryTime:  order.SubmittedAt,
		EntryState: state,
		Action:     strategy.ActionBuy,
		Strategy:   strat.Name(),
		Tier:       d.Tier,
	}
	e.mu.Lock()
	e.trades[symbol] = trade
	e.mu.Unlock()
	e.armStops(symbol, order.FilledPrice)

	a := plan[d.Tier]
	a.Used += float64(order.Qty) * order.FilledPrice
	plan[d.Tier] = a

	e.logger.TradeContext(symbol, string(order.Side), order.Qty, order.FilledPrice).Info("position opened",
		"tier", d.Tier,
		"confidence", d.Confidence,
		"multiplier", d.SizeMultiplier,
		"strategy", strat.Name(),
	)
	e.deps.Bus.PublishTradeOpened(symbol, strat.Name(), string(d.Tier), order.FilledPrice, order.Qty)
	report.Opened = append(report.Opened, *trade)
	return nil
}

// size is the smallest of the tier budget scaled by the ledger's risk
// adjustment, the risk controller's cap and the strategy's full size.
func (e *Engine) size(symbol string, price, accountValue, budget float64, d aggregator.Decision, strat strategy.Strategy) int {
	if price <= 0 || accountValue <= 0 {
		return 0
	}
	byBudget := int(math.Floor(budget * e.ledger.RiskAdjustment() / price))
	strength := min(1.0, float64(d.Confidence)/100*d.SizeMultiplier)
	byRisk := e.risk.PositionSize(symbol, price, accountValue, strength)
	byStrategy := strat.PositionSize(symbol, price, accountValue)
	return min(byBudget, byRisk, byStrategy)
}

func (e *Engine) noteHalt(reason string) {
	e.mu.Lock()
	changed := reason != e.haltReason
	e.haltReason = reason
	accountValue := e.accountValue
	e.mu.Unlock()
	if changed && reason != "" {
		e.logger.RiskContext(e.risk.DailyPnLPct(accountValue), e.breaker.LosingStreak()).
			Warn("new entries halted", "reason", reason)
		e.deps.Bus.PublishRiskHalt(reason)
	}
}

func (e *Engine) noteSafety(a safety.Assessment) {
	reason := ""
	if a.RiskReduction < 1 {
		reason = a.Reason
	}
	e.mu.Lock()
	changed := reason != e.safetyReason
	e.safetyReason = reason
	e.mu.Unlock()
	if changed && reason != "" {
		e.logger.Warn("market safety reduced risk", "danger", a.DangerScore, "risk_reduction", a.RiskReduction, "reason", a.Reason)
		e.deps.Bus.PublishSafeMode(a.Reason, a.DangerScore, a.RiskReduction)
	}
}

func (e *Engine) publishLedger(u ledger.Update) {
	data := map[string]interface{}{
		"daily_floor": u.DailyFloor.InexactFloat64(),
		"in_recovery": u.InRecovery,
		"rolled_over": u.RolledOver,
	}
	if u.Ratchet != nil {
		data["previous_floor"] = u.Ratchet.PreviousFloor.InexactFloat64()
		data["distributable"] = u.Ratchet.Distributable.InexactFloat64()
	}
	e.deps.Bus.Publish(events.Event{Type: events.EventLedgerUpdate, Data: data})
}

func (e *Engine) publishCycle(r *Report) {
	e.deps.Bus.Publish(events.Event{Type: events.EventCycleCompleted, Data: map[string]interface{}{
		"account_value": r.AccountValue,
		"open_trades":   e.openCount(),
		"opened":        len(r.Opened),
		"closed":        len(r.Closed),
		"halted":        r.Halted,
		"danger_score":  r.Safety.DangerScore,
		"strategy":      e.selector.Current(),
	}})
}

func sortTrades(ts []OpenTrade) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Symbol < ts[j].Symbol })
}
