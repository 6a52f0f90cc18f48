package engine

import (
	"context"
	"time"

	"dai-trader/internal/circuit"
	"dai-trader/internal/learning"
	"dai-trader/internal/ledger"
	"dai-trader/internal/risk"
	"dai-trader/internal/storage"
)

// Status is the dashboard view of the engine.
type Status struct {
	Running      bool                               `json:"running"`
	Mode         string                             `json:"mode"`
	AccountValue float64                            `json:"account_value"`
	Strategy     string                             `json:"strategy"`
	HaltReason   string                             `json:"halt_reason,omitempty"`
	SafetyReason string                             `json:"safety_reason,omitempty"`
	LastCycle    *time.Time                         `json:"last_cycle,omitempty"`
	OpenTrades   []OpenTrade                        `json:"open_trades"`
	Risk         risk.Summary                       `json:"risk"`
	Ledger       ledger.Status                      `json:"ledger"`
	Agent        learning.Stats                     `json:"agent"`
	Performance  map[string]learning.StrategyRecord `json:"strategy_performance"`
	Breaker      circuit.Stats                      `json:"circuit_breaker"`
}

// Status collects the current state of every component.
func (e *Engine) Status() Status {
	e.mu.RLock()
	s := Status{
		Running:      e.running,
		Mode:         e.config.TradingConfig.Mode,
		AccountValue: e.accountValue,
		HaltReason:   e.haltReason,
		SafetyReason: e.safetyReason,
	}
	if e.lastReport != nil {
		t := e.lastReport.StartedAt
		s.LastCycle = &t
	}
	e.mu.RUnlock()

	s.Strategy = e.selector.Current()
	s.OpenTrades = e.OpenTrades()
	s.Risk = e.risk.Summary()
	s.Ledger = e.ledger.Status()
	s.Agent = e.agent.Stats()
	s.Performance = e.selector.Performance()
	s.Breaker = e.breaker.Stats()
	return s
}

// RecentTrades reads the closed-trade journal, newest first.
func (e *Engine) RecentTrades(ctx context.Context, limit int) ([]storage.TradeRecord, error) {
	return e.deps.Store.RecentTrades(ctx, limit)
}

// RecordDistribution books a withdrawal against today's distributable gain
// and persists the ledger.
func (e *Engine) RecordDistribution(ctx context.Context, amount float64) error {
	if err := e.ledger.RecordDistribution(amount); err != nil {
		return err
	}
	rec, _ := e.ledger.Snapshot()
	return storage.SaveJSON(ctx, e.deps.Store, storage.KeyLedger, rec)
}

// ResetBreaker closes the circuit breaker by hand.
func (e *Engine) ResetBreaker() {
	e.breaker.ForceReset()
	e.logger.Info("circuit breaker reset manually")
}
