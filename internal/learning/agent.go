// Package learning holds the tabular Q-learning agent that arbitrates
// strategy signals and the selector that picks the active strategy.
package learning

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"dai-trader/internal/logging"
	"dai-trader/internal/market"
	"dai-trader/internal/strategy"
)

// State is a discretized market condition: rsi_macd_trend_volume.
type State string

// StateOf buckets a bar into a State.
func StateOf(b market.Bar) State {
	rsi := "neutral"
	switch {
	case b.RSI < 30:
		rsi = "oversold"
	case b.RSI > 70:
		rsi = "overbought"
	}

	macd := "bearish"
	if b.MACD > 0 {
		macd = "bullish"
	}

	trend := "flat"
	switch {
	case b.PriceChangePct > 0.5:
		trend = "up"
	case b.PriceChangePct < -0.5:
		trend = "down"
	}

	volume := "normal"
	switch {
	case b.VolumeRatio > 1.3:
		volume = "high"
	case b.VolumeRatio < 0.7:
		volume = "low"
	}

	return State(fmt.Sprintf("%s_%s_%s_%s", rsi, macd, trend, volume))
}

// QValues holds the learned value of each action in one state.
type QValues struct {
	Buy  float64 `json:"BUY"`
	Sell float64 `json:"SELL"`
	Hold float64 `json:"HOLD"`
}

// Get returns the value of a.
func (q QValues) Get(a strategy.Action) float64 {
	switch a {
	case strategy.ActionBuy:
		return q.Buy
	case strategy.ActionSell:
		return q.Sell
	default:
		return q.Hold
	}
}

func (q *QValues) set(a strategy.Action, v float64) {
	switch a {
	case strategy.ActionBuy:
		q.Buy = v
	case strategy.ActionSell:
		q.Sell = v
	default:
		q.Hold = v
	}
}

// Best returns the highest valued action. Ties resolve HOLD, then SELL,
// then BUY.
func (q QValues) Best() strategy.Action {
	best := strategy.Actions[0]
	for _, a := range strategy.Actions[1:] {
		if q.Get(a) > q.Get(best) {
			best = a
		}
	}
	return best
}

// Max returns the highest Q-value.
func (q QValues) Max() float64 {
	return q.Get(q.Best())
}

// Config holds agent hyperparameters.
type Config struct {
	LearningRate   float64
	DiscountFactor float64
	Epsilon        float64
	EpsilonMin     float64
	EpsilonMax     float64
	EpsilonStep    float64
}

// DefaultConfig returns alpha 0.1, gamma 0.95, epsilon 0.2 within [0.1, 0.3].
func DefaultConfig() Config {
	return Config{
		LearningRate:   0.1,
		DiscountFactor: 0.95,
		Epsilon:        0.2,
		EpsilonMin:     0.1,
		EpsilonMax:     0.3,
		EpsilonStep:    0.05,
	}
}

// Stats summarizes what the agent has learned.
type Stats struct {
	StatesLearned   int     `json:"states_learned"`
	TotalTrades     int     `json:"total_trades"`
	WinningTrades   int     `json:"winning_trades"`
	WinRate         float64 `json:"win_rate"` // percent
	TotalReward     float64 `json:"total_reward"`
	AvgReward       float64 `json:"avg_reward"`
	ExplorationRate float64 `json:"exploration_rate"`
}

// Snapshot is the persisted form of the agent.
type Snapshot struct {
	QTable      map[State]QValues `json:"q_table"`
	TotalReward float64           `json:"total_reward"`
	TradeCount  int               `json:"trade_count"`
	WinCount    int               `json:"win_count"`
	Epsilon     float64           `json:"epsilon"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Agent is an epsilon-greedy tabular Q-learner over BUY/SELL/HOLD.
type Agent struct {
	config      Config
	epsilon     float64
	table       map[State]*QValues
	totalReward float64
	tradeCount  int
	winCount    int
	rng         *rand.Rand
	logger      *logging.Logger
	mu          sync.Mutex
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithRand injects the exploration random source.
func WithRand(r *rand.Rand) AgentOption {
	return func(a *Agent) { a.rng = r }
}

// WithAgentLogger replaces the component logger.
func WithAgentLogger(l *logging.Logger) AgentOption {
	return func(a *Agent) { a.logger = l }
}

// NewAgent creates an agent with an empty Q-table.
func NewAgent(config Config, opts ...AgentOption) *Agent {
	a := &Agent{
		config:  config,
		epsilon: config.Epsilon,
		table:   make(map[State]*QValues),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:  logging.WithComponent("learning"),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger.Info("q-learning agent initialized", "learning_rate", config.LearningRate,
		"discount_factor", config.DiscountFactor, "epsilon", config.Epsilon)
	return a
}

// row returns the Q-values of s, creating a zero row. Caller holds the lock.
func (a *Agent) row(s State) *QValues {
	q, ok := a.table[s]
	if !ok {
		q = &QValues{}
		a.table[s] = q
	}
	return q
}

// ChooseAction explores by returning fallback with probability epsilon and
// otherwise exploits the Q-table.
func (a *Agent) ChooseAction(s State, fallback strategy.Action) strategy.Action {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rng.Float64() < a.epsilon {
		a.logger.Debug("exploring", "state", s, "action", fallback)
		return fallback
	}

	q := a.row(s)
	best := q.Best()
	a.logger.Debug("exploiting", "state", s, "buy", q.Buy, "sell", q.Sell, "hold", q.Hold, "action", best)
	return best
}

// Update applies one-step Q-learning and returns the new Q(s,a).
func (a *Agent) Update(s State, action strategy.Action, reward float64, next State) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	q := a.row(s)
	maxNext := a.row(next).Max()
	current := q.Get(action)
	updated := current + a.config.LearningRate*(reward+a.config.DiscountFactor*maxNext-current)
	q.set(action, updated)

	a.totalReward += reward
	a.tradeCount++
	if reward > 0 {
		a.winCount++
	}

	a.logger.Info("q-value updated", "state", s, "action", action, "reward", reward, "q", updated)
	return updated
}

// Reward converts a closed trade into a learning signal. pnlPct is a
// fraction (0.02 = 2%).
func Reward(pnl, pnlPct, holdingHours float64) float64 {
	if pnl == 0 {
		return -0.1
	}
	reward := pnlPct * 100
	if pnl > 0 && holdingHours < 4 {
		reward *= 1.2
	}
	if pnl < 0 && holdingHours > 24 {
		reward *= 1.5
	}
	return reward
}

// AdjustExploration explores more when recent performance (win rate in
// [0,1]) is poor and less when it is good.
func (a *Agent) AdjustExploration(performance float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	before := a.epsilon
	switch {
	case performance < 0.4:
		a.epsilon = min(a.config.EpsilonMax, a.epsilon+a.config.EpsilonStep)
	case performance > 0.6:
		a.epsilon = max(a.config.EpsilonMin, a.epsilon-a.config.EpsilonStep)
	}
	if a.epsilon != before {
		a.logger.Info("exploration adjusted", "performance", performance, "from", before, "to", a.epsilon)
	}
}

// Epsilon returns the current exploration rate.
func (a *Agent) Epsilon() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.epsilon
}

// Q returns the row of s without creating it.
func (a *Agent) Q(s State) (QValues, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	q, ok := a.table[s]
	if !ok {
		return QValues{}, false
	}
	return *q, true
}

// WinRate is the fraction of positive-reward updates, 0 without trades.
func (a *Agent) WinRate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tradeCount == 0 {
		return 0
	}
	return float64(a.winCount) / float64(a.tradeCount)
}

// Stats returns learning performance statistics.
func (a *Agent) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Stats{
		StatesLearned:   len(a.table),
		TotalTrades:     a.tradeCount,
		WinningTrades:   a.winCount,
		TotalReward:     a.totalReward,
		ExplorationRate: a.epsilon,
	}
	if a.tradeCount > 0 {
		s.WinRate = float64(a.winCount) / float64(a.tradeCount) * 100
		s.AvgReward = a.totalReward / float64(a.tradeCount)
	}
	return s
}

// Snapshot copies the agent for persistence.
func (a *Agent) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	table := make(map[State]QValues, len(a.table))
	for s, q := range a.table {
		table[s] = *q
	}
	return Snapshot{
		QTable:      table,
		TotalReward: a.totalReward,
		TradeCount:  a.tradeCount,
		WinCount:    a.winCount,
		Epsilon:     a.epsilon,
		Timestamp:   time.Now().UTC(),
	}
}

// Restore replaces the agent state with a snapshot.
func (a *Agent) Restore(snap Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.table = make(map[State]*QValues, len(snap.QTable))
	for s, q := range snap.QTable {
		q := q
		a.table[s] = &q
	}
	a.totalReward = snap.TotalReward
	a.tradeCount = snap.TradeCount
	a.winCount = snap.WinCount
	if snap.Epsilon > 0 {
		a.epsilon = snap.Epsilon
	}
	a.logger.Info("q-table loaded", "states", len(a.table), "trades", a.tradeCount)
}
