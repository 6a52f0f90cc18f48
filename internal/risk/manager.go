package risk

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"dai-trader/internal/logging"
)

// Side of a position.
type Side string

const (
	Long  Side = "BUY"
	Short Side = "SELL"
)

// Close reasons returned by ShouldClose. They are checked in this order.
const (
	ReasonStopLoss      = "stop loss"
	ReasonTakeProfit    = "take profit"
	ReasonEmergencyStop = "emergency stop"
)

// buyingPowerBuffer keeps 5% of the account out of any single order.
const buyingPowerBuffer = 0.95

// Config holds risk management configuration. Fractions, not percents.
type Config struct {
	MaxPositionFraction  float64 // Share of account value per position at full signal strength
	MaxDailyLossFraction float64 // Daily drawdown from the start-of-day value that halts trading
	UseStopLoss          bool
	StopLossPct          float64
	UseTakeProfit        bool
	TakeProfitPct        float64
	TrailingStopPct      float64
	EmergencyStopPct     float64 // Hard floor on unrealized loss, independent of stored stops
}

// DefaultConfig returns the conservative defaults.
func DefaultConfig() Config {
	return Config{
		MaxPositionFraction:  0.10,
		MaxDailyLossFraction: 0.02,
		UseStopLoss:          true,
		StopLossPct:          0.02,
		UseTakeProfit:        true,
		TakeProfitPct:        0.04,
		TrailingStopPct:      0.02,
		EmergencyStopPct:     0.05,
	}
}

// State is the daily bookkeeping. DailyStartValue is set once per calendar day.
type State struct {
	DailyPnL        float64   `json:"daily_pnl"`
	DailyStartValue float64   `json:"daily_start_value"`
	TradeCountToday int       `json:"trade_count_today"`
	LastResetDate   time.Time `json:"last_reset_date"`
}

// Snapshot is the controller state persisted between runs.
type Snapshot struct {
	State State              `json:"state"`
	Stops []TrailingPosition `json:"stops,omitempty"`
}

// Summary is a point-in-time view of the controller.
type Summary struct {
	State
	ActiveStopLosses  int     `json:"active_stop_losses"`
	ActiveTakeProfits int     `json:"active_take_profits"`
	DailyLossFraction float64 `json:"daily_loss_fraction"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock injects the time source used for day rollover.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger replaces the component logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Controller enforces per-position stops and the daily loss breaker.
type Controller struct {
	config Config
	state  State
	stops  *TrailingStopManager
	now    func() time.Time
	logger *logging.Logger
	mu     sync.RWMutex
}

// NewController creates a new risk controller
func NewController(config Config, opts ...Option) *Controller {
	c := &Controller{
		config: config,
		now:    time.Now,
		logger: logging.WithComponent("risk"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stops = NewTrailingStopManager(c.logger)
	return c
}

// Config returns the controller configuration.
func (c *Controller) Config() Config {
	return c.config
}

// CanTrade reports whether new risk may be taken. The first call of each
// calendar day records the start-of-day value.
func (c *Controller) CanTrade(accountValue float64) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.checkDailyReset(accountValue)

	if c.state.DailyStartValue <= 0 {
		return false, "no start-of-day account value"
	}

	lossFraction := (accountValue - c.state.DailyStartValue) / c.state.DailyStartValue
	if lossFraction < -c.config.MaxDailyLossFraction {
		reason := fmt.Sprintf("daily loss limit reached (%.2f%% < -%.2f%%)",
			lossFraction*100, c.config.MaxDailyLossFraction*100)
		c.logger.Warn("trading halted", "reason", reason, "account_value", accountValue,
			"daily_start_value", c.state.DailyStartValue)
		return false, reason
	}

	return true, ""
}

// checkDailyReset starts a new risk day. Caller holds the lock.
func (c *Controller) checkDailyReset(accountValue float64) {
	today := dayOf(c.now())
	if !c.state.LastResetDate.IsZero() && !today.After(c.state.LastResetDate) {
		return
	}
	c.state = State{
		DailyStartValue: accountValue,
		LastResetDate:   today,
	}
	c.logger.Info("daily risk stats reset", "daily_start_value", accountValue)
}

// PositionSize returns whole shares for a position of up to
// MaxPositionFraction of the account, scaled by signal strength in [0,1].
func (c *Controller) PositionSize(symbol string, price, accountValue, signalStrength float64) int {
	if price <= 0 || accountValue <= 0 || signalStrength <= 0 {
		return 0
	}
	if signalStrength > 1 {
		signalStrength = 1
	}

	shares := int(math.Floor(accountValue * c.config.MaxPositionFraction * signalStrength / price))
	maxAffordable := int(math.Floor(accountValue * buyingPowerBuffer / price))
	if shares > maxAffordable {
		shares = maxAffordable
	}
	if shares < 0 {
		return 0
	}
	return shares
}

// StopLossPrice computes and stores the stop for a new position.
// It returns 0 and stores nothing when stop losses are disabled.
func (c *Controller) StopLossPrice(symbol string, entryPrice float64, side Side) float64 {
	if !c.config.UseStopLoss || entryPrice <= 0 {
		return 0
	}

	var stop float64
	if side == Short {
		stop = entryPrice * (1 + c.config.StopLossPct)
	} else {
		stop = entryPrice * (1 - c.config.StopLossPct)
	}
	c.stops.SetStop(symbol, side, entryPrice, stop)
	return stop
}

// TakeProfitPrice computes and stores the profit target for a new position.
func (c *Controller) TakeProfitPrice(symbol string, entryPrice float64, side Side) float64 {
	if !c.config.UseTakeProfit || entryPrice <= 0 {
		return 0
	}

	var target float64
	if side == Short {
		target = entryPrice * (1 - c.config.TakeProfitPct)
	} else {
		target = entryPrice * (1 + c.config.TakeProfitPct)
	}
	c.stops.SetTarget(symbol, side, entryPrice, target)
	return target
}

// CheckStopLoss reports whether the stored stop has been crossed.
func (c *Controller) CheckStopLoss(symbol string, currentPrice float64) bool {
	if currentPrice <= 0 {
		return false
	}
	pos := c.stops.GetPosition(symbol)
	if pos == nil || pos.CurrentStopLoss <= 0 {
		return false
	}
	if pos.Side == Short {
		return currentPrice >= pos.CurrentStopLoss
	}
	return currentPrice <= pos.CurrentStopLoss
}

// CheckTakeProfit reports whether the stored target has been reached.
func (c *Controller) CheckTakeProfit(symbol string, currentPrice float64) bool {
	if currentPrice <= 0 {
		return false
	}
	pos := c.stops.GetPosition(symbol)
	if pos == nil || pos.TakeProfit <= 0 {
		return false
	}
	if pos.Side == Short {
		return currentPrice <= pos.TakeProfit
	}
	return currentPrice >= pos.TakeProfit
}

// ShouldClose decides whether an open position must be closed. Reasons are
// mutually exclusive: stop loss, then take profit, then the emergency floor
// on unrealized loss (a fraction, e.g. -0.06).
func (c *Controller) ShouldClose(symbol string, currentPrice, entryPrice, unrealizedPlPct float64) (bool, string) {
	if c.CheckStopLoss(symbol, currentPrice) {
		c.logger.Warn("stop loss triggered", "symbol", symbol, "price", currentPrice)
		return true, ReasonStopLoss
	}
	if c.CheckTakeProfit(symbol, currentPrice) {
		c.logger.Info("take profit triggered", "symbol", symbol, "price", currentPrice)
		return true, ReasonTakeProfit
	}
	if unrealizedPlPct < -c.config.EmergencyStopPct {
		c.logger.Warn("emergency stop triggered", "symbol", symbol, "unrealized_pl_pct", unrealizedPlPct)
		return true, ReasonEmergencyStop
	}
	return false, ""
}

// UpdateTrailingStop ratchets the stored stop toward the price. It only acts
// on positions in profit that already have a stop, and never loosens it.
func (c *Controller) UpdateTrailingStop(symbol string, currentPrice, entryPrice, trailingPct float64) *StopUpdate {
	if trailingPct <= 0 {
		trailingPct = c.config.TrailingStopPct
	}
	return c.stops.Trail(symbol, currentPrice, entryPrice, trailingPct)
}

// RecordTrade books realized P&L for the day.
func (c *Controller) RecordTrade(symbol string, pnl float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.DailyPnL += pnl
	c.state.TradeCountToday++
	c.logger.Info("trade recorded", "symbol", symbol, "pnl", pnl,
		"daily_pnl", c.state.DailyPnL, "trades_today", c.state.TradeCountToday)
}

// Forget drops the stored stop and target after a position is closed.
func (c *Controller) Forget(symbol string) {
	c.stops.RemovePosition(symbol)
}

// Stops returns the tracked stop/target levels.
func (c *Controller) Stops() []*TrailingPosition {
	return c.stops.GetAllPositions()
}

// Levels returns the stored stop and target of symbol.
func (c *Controller) Levels(symbol string) (TrailingPosition, bool) {
	pos := c.stops.GetPosition(symbol)
	if pos == nil {
		return TrailingPosition{}, false
	}
	return *pos, true
}

// Snapshot returns the daily bookkeeping and every stored level, ordered
// by symbol.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	s := Snapshot{State: c.state}
	c.mu.RUnlock()

	for _, p := range c.stops.GetAllPositions() {
		s.Stops = append(s.Stops, *p)
	}
	sort.Slice(s.Stops, func(i, j int) bool { return s.Stops[i].Symbol < s.Stops[j].Symbol })
	return s
}

// Restore replaces the daily bookkeeping and the stored levels. The stored
// LastResetDate is kept, so a restart later the same day measures against
// the original start-of-day value.
func (c *Controller) Restore(s Snapshot) {
	c.mu.Lock()
	c.state = s.State
	c.mu.Unlock()
	c.stops.Restore(s.Stops)
	c.logger.Info("risk state restored", "daily_start_value", s.State.DailyStartValue,
		"last_reset_date", s.State.LastResetDate.Format("2006-01-02"), "stops", len(s.Stops))
}

// DailyPnLPct returns the change since the start of day in percent units.
func (c *Controller) DailyPnLPct(accountValue float64) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state.DailyStartValue <= 0 {
		return 0
	}
	return (accountValue - c.state.DailyStartValue) / c.state.DailyStartValue * 100
}

// Summary returns current risk statistics.
func (c *Controller) Summary() Summary {
	c.mu.RLock()
	state := c.state
	c.mu.RUnlock()

	s := Summary{State: state}
	for _, p := range c.stops.GetAllPositions() {
		if p.CurrentStopLoss > 0 {
			s.ActiveStopLosses++
		}
		if p.TakeProfit > 0 {
			s.ActiveTakeProfits++
		}
	}
	if state.DailyStartValue > 0 {
		s.DailyLossFraction = state.DailyPnL / state.DailyStartValue
	}
	return s
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
