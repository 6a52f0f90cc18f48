package learning

import (
	"math"
	"sort"
	"sync"

	"dai-trader/internal/logging"
)

// StrategyRecord is the running performance of one strategy. Counters only
// increase.
type StrategyRecord struct {
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	TotalPnL float64 `json:"total_pnl"`
}

// Trades returns wins plus losses.
func (r StrategyRecord) Trades() int { return r.Wins + r.Losses }

// Score blends win rate and average P&L equally.
func (r StrategyRecord) Score() float64 {
	n := r.Trades()
	if n == 0 {
		return math.Inf(-1)
	}
	winRate := float64(r.Wins) / float64(n)
	avgPnL := r.TotalPnL / float64(n)
	return winRate*0.5 + (avgPnL/100)*0.5
}

// SelectorSnapshot is the persisted form of the selector.
type SelectorSnapshot struct {
	Performance     map[string]StrategyRecord `json:"performance"`
	CurrentStrategy string                    `json:"current_strategy"`
	TradesSinceEval int                       `json:"trades_since_eval"`
}

// StrategySelector tracks per-strategy results and periodically switches to
// the best scorer.
type StrategySelector struct {
	performance      map[string]*StrategyRecord
	current          string
	evaluationPeriod int
	tradesSinceEval  int
	logger           *logging.Logger
	mu               sync.RWMutex
}

// NewStrategySelector tracks the given strategies, starting with initial.
func NewStrategySelector(names []string, initial string, evaluationPeriod int) *StrategySelector {
	if evaluationPeriod <= 0 {
		evaluationPeriod = 20
	}
	s := &StrategySelector{
		performance:      make(map[string]*StrategyRecord, len(names)),
		current:          initial,
		evaluationPeriod: evaluationPeriod,
		logger:           logging.WithComponent("selector"),
	}
	for _, n := range names {
		s.performance[n] = &StrategyRecord{}
	}
	if _, ok := s.performance[initial]; !ok && len(names) > 0 {
		s.current = names[0]
	}
	return s
}

// Current returns the active strategy.
func (s *StrategySelector) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// RecordTrade books a closed trade. Unknown strategies are ignored. It
// returns true when the active strategy changed.
func (s *StrategySelector) RecordTrade(name string, pnl float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.performance[name]
	if !ok {
		s.logger.Warn("trade for unknown strategy ignored", "strategy", name)
		return false
	}
	if pnl > 0 {
		rec.Wins++
	} else {
		rec.Losses++
	}
	rec.TotalPnL += pnl

	s.tradesSinceEval++
	if s.tradesSinceEval < s.evaluationPeriod {
		return false
	}
	s.tradesSinceEval = 0
	prev := s.current
	s.selectBest()
	return s.current != prev
}

// selectBest switches to the highest scoring strategy with trades. Equal
// scores resolve by name so the outcome is deterministic. Caller holds the lock.
func (s *StrategySelector) selectBest() {
	names := make([]string, 0, len(s.performance))
	for n := range s.performance {
		names = append(names, n)
	}
	sort.Strings(names)

	best := ""
	bestScore := math.Inf(-1)
	for _, n := range names {
		rec := s.performance[n]
		if rec.Trades() == 0 {
			continue
		}
		if score := rec.Score(); score > bestScore {
			best, bestScore = n, score
		}
	}
	if best != "" && best != s.current {
		s.logger.Info("switching strategy", "from", s.current, "to", best, "score", bestScore)
		s.current = best
	}
}

// Performance returns a copy of every record.
func (s *StrategySelector) Performance() map[string]StrategyRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]StrategyRecord, len(s.performance))
	for n, r := range s.performance {
		out[n] = *r
	}
	return out
}

// Snapshot copies the selector for persistence.
func (s *StrategySelector) Snapshot() SelectorSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	perf := make(map[string]StrategyRecord, len(s.performance))
	for n, r := range s.performance {
		perf[n] = *r
	}
	return SelectorSnapshot{
		Performance:     perf,
		CurrentStrategy: s.current,
		TradesSinceEval: s.tradesSinceEval,
	}
}

// Restore loads persisted records for known strategies.
func (s *StrategySelector) Restore(snap SelectorSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for n, r := range snap.Performance {
		if _, ok := s.performance[n]; ok {
			r := r
			s.performance[n] = &r
		}
	}
	if _, ok := s.performance[snap.CurrentStrategy]; ok {
		s.current = snap.CurrentStrategy
	}
	s.tradesSinceEval = snap.TradesSinceEval
	s.logger.Info("strategy performance loaded", "current", s.current)
}
