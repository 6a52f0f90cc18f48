package circuit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"dai-trader/config"
	"dai-trader/internal/events"
	"dai-trader/internal/logging"
)

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Normal operation
	StateOpen     BreakerState = "open"      // Trading halted
	StateHalfOpen BreakerState = "half_open" // Testing recovery
)

// Stats is a point-in-time view of the breaker.
type Stats struct {
	State             BreakerState `json:"state"`
	ConsecutiveLosses int          `json:"consecutive_losses"`
	HourlyLoss        float64      `json:"hourly_loss"`
	DailyTrades       int          `json:"daily_trades"`
	TripReason        string       `json:"trip_reason,omitempty"`
	LastTripTime      time.Time    `json:"last_trip_time,omitempty"`
}

// CircuitBreaker halts new entries after a run of losses, a bad hour or
// too many trades in a day.
type CircuitBreaker struct {
	config            config.CircuitBreakerConfig
	state             BreakerState
	consecutiveLosses int
	hourlyLoss        float64
	dailyTrades       int
	lastTripTime      time.Time
	hourlyResetTime   time.Time
	dailyResetTime    time.Time
	tripReason        string
	mu                sync.RWMutex
	now               func() time.Time
	bus               *events.EventBus
	logger            *logging.Logger
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) { cb.now = now }
}

// WithEventBus publishes trips and resets on bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(cb *CircuitBreaker) { cb.bus = bus }
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(cfg config.CircuitBreakerConfig, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		config: cfg,
		state:  StateClosed,
		now:    time.Now,
		logger: logging.WithComponent("circuit"),
	}
	for _, opt := range opts {
		opt(cb)
	}

	now := cb.now()
	cb.hourlyResetTime = now.Add(time.Hour)
	cb.dailyResetTime = nextDay(now)
	return cb
}

func nextDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// CanTrade checks if new entries are allowed
func (cb *CircuitBreaker) CanTrade() (bool, string) {
	if !cb.config.Enabled {
		return true, ""
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.resetCountersIfNeeded()

	if cb.state == StateOpen {
		elapsed := cb.now().Sub(cb.lastTripTime)
		cooldown := time.Duration(cb.config.CooldownMinutes) * time.Minute

		if elapsed < cooldown {
			remaining := cooldown - elapsed
			return false, fmt.Sprintf("circuit breaker open, cooldown remaining: %v (reason: %s)",
				remaining.Round(time.Second), cb.tripReason)
		}

		// Cooldown passed; the next trade decides
		cb.state = StateHalfOpen
		cb.consecutiveLosses = 0
		cb.hourlyLoss = 0
		cb.logger.Info("circuit breaker half-open", "reason", cb.tripReason)
	}

	if cb.config.MaxLossPerHour > 0 && cb.hourlyLoss >= cb.config.MaxLossPerHour {
		return false, fmt.Sprintf("hourly loss limit reached: %.2f%% >= %.2f%%",
			cb.hourlyLoss, cb.config.MaxLossPerHour)
	}

	if cb.config.MaxDailyTrades > 0 && cb.dailyTrades >= cb.config.MaxDailyTrades {
		return false, fmt.Sprintf("daily trade limit reached: %d trades", cb.dailyTrades)
	}

	return true, ""
}

// RecordTrade records a closed trade's P&L in percent of the position.
func (cb *CircuitBreaker) RecordTrade(pnlPercent float64) {
	if math.IsNaN(pnlPercent) || math.IsInf(pnlPercent, 0) {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.resetCountersIfNeeded()
	cb.dailyTrades++

	if pnlPercent < 0 {
		cb.consecutiveLosses++
		cb.hourlyLoss += -pnlPercent
	} else {
		cb.consecutiveLosses = 0
		if cb.state == StateHalfOpen {
			cb.state = StateClosed
			cb.tripReason = ""
			cb.logger.Info("circuit breaker closed after winning trade")
			cb.bus.PublishCircuitBreaker(string(StateClosed), "recovered", "winning_trade_after_cooldown")
		}
	}

	if cb.config.Enabled {
		cb.checkAndTrip()
	}
}

// checkAndTrip checks conditions and trips if needed
func (cb *CircuitBreaker) checkAndTrip() {
	if cb.state == StateOpen {
		return
	}
	var reason string
	switch {
	case cb.config.MaxConsecutiveLosses > 0 && cb.consecutiveLosses >= cb.config.MaxConsecutiveLosses:
		reason = fmt.Sprintf("consecutive losses: %d", cb.consecutiveLosses)
	case cb.config.MaxLossPerHour > 0 && cb.hourlyLoss >= cb.config.MaxLossPerHour:
		reason = fmt.Sprintf("hourly loss: %.2f%%", cb.hourlyLoss)
	}
	if reason != "" {
		cb.trip(reason)
	}
}

// trip opens the circuit breaker
func (cb *CircuitBreaker) trip(reason string) {
	cb.state = StateOpen
	cb.lastTripTime = cb.now()
	cb.tripReason = reason

	cb.logger.Warn("circuit breaker tripped", "reason", reason, "cooldown_minutes", cb.config.CooldownMinutes)
	cb.bus.PublishCircuitBreaker(string(StateOpen), "tripped", reason)
}

// resetCountersIfNeeded resets time-based counters
func (cb *CircuitBreaker) resetCountersIfNeeded() {
	now := cb.now()

	if now.After(cb.hourlyResetTime) {
		cb.hourlyLoss = 0
		cb.hourlyResetTime = now.Add(time.Hour)
	}

	if !now.Before(cb.dailyResetTime) {
		cb.dailyTrades = 0
		cb.dailyResetTime = nextDay(now)
	}
}

// ForceReset manually resets the circuit breaker
func (cb *CircuitBreaker) ForceReset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.consecutiveLosses = 0
	cb.hourlyLoss = 0
	cb.tripReason = ""
	cb.bus.PublishCircuitBreaker(string(StateClosed), "reset", "manual_reset")
}

// State returns current breaker state
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// LosingStreak is the current run of losing trades. It keeps counting
// while the breaker is disabled.
func (cb *CircuitBreaker) LosingStreak() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.consecutiveLosses
}

// Stats returns current statistics
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return Stats{
		State:             cb.state,
		ConsecutiveLosses: cb.consecutiveLosses,
		HourlyLoss:        cb.hourlyLoss,
		DailyTrades:       cb.dailyTrades,
		TripReason:        cb.tripReason,
		LastTripTime:      cb.lastTripTime,
	}
}

// Restore reloads the loss streak after a restart.
func (cb *CircuitBreaker) Restore(consecutiveLosses int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveLosses = max(0, consecutiveLosses)
}
