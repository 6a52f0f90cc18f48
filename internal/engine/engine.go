// Package engine runs the trading decision cycle: it gates new risk,
// manages open positions, asks the learner and the intelligence sources
// what to do with every watched symbol, and feeds realized results back
// into every learning and risk component.
package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"dai-trader/config"
	"dai-trader/internal/allocation"
	"dai-trader/internal/broker"
	"dai-trader/internal/circuit"
	"dai-trader/internal/errs"
	"dai-trader/internal/events"
	"dai-trader/internal/learning"
	"dai-trader/internal/ledger"
	"dai-trader/internal/logging"
	"dai-trader/internal/risk"
	"dai-trader/internal/signals"
	"dai-trader/internal/storage"
	"dai-trader/internal/strategy"
)

// OpenTrade is what the engine remembers about a position it opened.
type OpenTrade struct {
	Symbol     string          `json:"symbol"`
	Shares     int             `json:"shares"`
	EntryPrice float64         `json:"entry_price"`
	EntryTime  time.Time       `json:"entry_time"`
	EntryState learning.State  `json:"entry_state"`
	Action     strategy.Action `json:"action"`
	Strategy   string          `json:"strategy"`
	Tier       allocation.Tier `json:"tier"`
}

// Deps are the engine's collaborators. Bus may be nil.
type Deps struct {
	Market  broker.MarketData
	Broker  broker.Broker
	Store   storage.Store
	Signals *signals.Collector
	Bus     *events.EventBus
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now for every time-dependent component.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRand seeds the agent's exploration.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// WithLogger replaces the component logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// bookKeeper is implemented by brokers whose holdings must survive restarts.
type bookKeeper interface {
	Snapshot() broker.Book
	Restore(broker.Book)
}

// Engine owns all trading state. RunCycle must not be called concurrently;
// read-only accessors are safe from other goroutines.
type Engine struct {
	config *config.Config
	deps   Deps

	risk       *risk.Controller
	ledger     *ledger.Ledger
	agent      *learning.Agent
	selector   *learning.StrategySelector
	strategies map[string]strategy.Strategy
	breaker    *circuit.CircuitBreaker

	now    func() time.Time
	rng    *rand.Rand
	logger *logging.Logger

	cycleMu sync.Mutex // serializes RunCycle

	mu           sync.RWMutex
	trades       map[string]*OpenTrade
	lastReport   *Report
	accountValue float64
	haltReason   string
	safetyReason string
	running      bool
	stopCh       chan struct{}
	doneCh       chan struct{}
}

// New validates cfg and builds an engine with fresh learning and risk
// state. Call Restore to load persisted state.
func New(cfg *config.Config, deps Deps, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errs.Config("engine: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Market == nil:
		return nil, errs.Config("engine: market data is required")
	case deps.Broker == nil:
		return nil, errs.Config("engine: broker is required")
	case deps.Store == nil:
		return nil, errs.Config("engine: store is required")
	case deps.Signals == nil:
		return nil, errs.Config("engine: signal collector is required")
	}

	e := &Engine{
		config: cfg,
		deps:   deps,
		now:    time.Now,
		logger: logging.WithComponent("engine"),
		trades: make(map[string]*OpenTrade),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		seed := cfg.AgentConfig.Seed
		if seed == 0 {
			seed = e.now().UnixNano()
		}
		e.rng = rand.New(rand.NewSource(seed))
	}

	rc := cfg.RiskConfig
	e.risk = risk.NewController(risk.Config{
		MaxPositionFraction:  rc.MaxPositionFraction,
		MaxDailyLossFraction: rc.MaxDailyLossFraction,
		UseStopLoss:          rc.UseStopLoss,
		StopLossPct:          rc.StopLossPct,
		UseTakeProfit:        rc.UseTakeProfit,
		TakeProfitPct:        rc.TakeProfitPct,
		TrailingStopPct:      rc.TrailingStopPct,
		EmergencyStopPct:     rc.EmergencyStopPct,
	}, risk.WithClock(e.now))

	e.ledger = ledger.New(ledger.Config{
		DistributionShare: cfg.LedgerConfig.DistributionShare,
		InitialPrincipal:  cfg.LedgerConfig.InitialPrincipal,
	}, ledger.WithClock(e.now))

	ac := learning.DefaultConfig()
	ac.LearningRate = cfg.AgentConfig.LearningRate
	ac.DiscountFactor = cfg.AgentConfig.DiscountFactor
	ac.Epsilon = cfg.AgentConfig.Epsilon
	e.agent = learning.NewAgent(ac, learning.WithRand(e.rng))

	e.strategies = strategy.All(rc.MaxPositionFraction)
	initial, known := strategy.New(cfg.TradingConfig.DefaultStrategy, rc.MaxPositionFraction)
	if !known {
		e.logger.Warn("unknown default strategy, using momentum", "strategy", cfg.TradingConfig.DefaultStrategy)
	}
	e.selector = learning.NewStrategySelector(strategy.Names, initial.Name(), cfg.AgentConfig.EvaluationPeriod)

	e.breaker = circuit.NewCircuitBreaker(cfg.CircuitBreakerConfig,
		circuit.WithClock(e.now), circuit.WithEventBus(deps.Bus))

	return e, nil
}

// Risk exposes the risk controller.
func (e *Engine) Risk() *risk.Controller { return e.risk }

// Ledger exposes the principal ledger.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Agent exposes the Q-learning agent.
func (e *Engine) Agent() *learning.Agent { return e.agent }

// Selector exposes the strategy selector.
func (e *Engine) Selector() *learning.StrategySelector { return e.selector }

// Breaker exposes the circuit breaker.
func (e *Engine) Breaker() *circuit.CircuitBreaker { return e.breaker }

// OpenTrades returns copies of the tracked trades.
func (e *Engine) OpenTrades() []OpenTrade {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]OpenTrade, 0, len(e.trades))
	for _, t := range e.trades {
		out = append(out, *t)
	}
	sortTrades(out)
	return out
}

// LastReport returns the report of the most recent cycle, nil before the
// first one.
func (e *Engine) LastReport() *Report {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastReport
}

// Start runs a cycle immediately and then on every CycleInterval tick until
// ctx is done or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errs.Config("engine already running")
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	stopCh, doneCh := e.stopCh, e.doneCh
	e.mu.Unlock()

	interval := e.config.TradingConfig.CycleInterval.Std()
	e.logger.Info("engine started", "mode", e.config.TradingConfig.Mode,
		"interval", interval.String(), "watchlist", e.config.TradingConfig.Watchlist)
	e.deps.Bus.Publish(events.Event{Type: events.EventBotStarted, Data: map[string]interface{}{
		"mode":      e.config.TradingConfig.Mode,
		"watchlist": e.config.TradingConfig.Watchlist,
	}})

	go func() {
		defer close(doneCh)
		defer func() {
			e.mu.Lock()
			e.running = false
			e.mu.Unlock()
			e.deps.Bus.Publish(events.Event{Type: events.EventBotStopped, Data: map[string]interface{}{}})
			e.logger.Info("engine stopped")
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		e.tick(ctx)
		for {
			select {
			case <-ticker.C:
				e.tick(ctx)
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (e *Engine) tick(ctx context.Context) {
	ctx, logger := logging.WithTraceContext(ctx)
	if _, err := e.RunCycle(ctx); err != nil {
		logger.Error("cycle failed", "error", err)
		e.deps.Bus.PublishError("engine", "cycle failed", err)
	}
}

// Stop ends the loop started by Start and waits for the running cycle.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	stopCh, doneCh := e.stopCh, e.doneCh
	e.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// Running reports whether the loop is active.
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}
