// Package ledger implements the quarterly principal-protection ledger: a
// daily floor that ratchets up with gains and never down within a quarter,
// a 40/60 split of gains between distribution and reinvestment, and a
// recovery mode that blocks distributions while the balance is below the
// floor.
package ledger

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"dai-trader/internal/errs"
	"dai-trader/internal/logging"
)

const dateLayout = "2006-01-02"

// Config controls the split of gains.
type Config struct {
	// DistributionShare of each gain may be withdrawn; the rest raises the floor.
	DistributionShare float64
	// InitialPrincipal seeds a brand new ledger. Zero means "use the first
	// observed balance".
	InitialPrincipal float64
}

// DefaultConfig returns the 40/60 split.
func DefaultConfig() Config {
	return Config{DistributionShare: 0.40}
}

// Record is the persisted ledger for one quarter.
type Record struct {
	Quarter               int             `json:"quarter"`
	Year                  int             `json:"year"`
	StartDate             time.Time       `json:"start_date"`
	QuarterStartPrincipal decimal.Decimal `json:"quarter_start_principal"`
	DailyFloor            decimal.Decimal `json:"daily_floor"`
	YesterdayFloor        decimal.Decimal `json:"yesterday_floor"`
	CurrentBalance        decimal.Decimal `json:"current_balance"`
	TotalDistributed      decimal.Decimal `json:"total_distributed"`
	TotalReinvested       decimal.Decimal `json:"total_reinvested"`
	LastDistribution      *time.Time      `json:"last_distribution,omitempty"`
	LastUpdateDate        string          `json:"last_update_date"`
	InRecovery            bool            `json:"in_recovery"`
	VolatilityScore       float64         `json:"volatility_score"`
	MaxDrawdown           float64         `json:"max_drawdown"`
	PeakBalance           decimal.Decimal `json:"peak_balance"`
}

// Ratchet describes a floor increase performed at a day boundary.
type Ratchet struct {
	PreviousFloor decimal.Decimal `json:"previous_floor"`
	NewFloor      decimal.Decimal `json:"new_floor"`
	Gain          decimal.Decimal `json:"gain"`
	Distributable decimal.Decimal `json:"distributable"`
	Reinvested    decimal.Decimal `json:"reinvested"`
}

// Update is the outcome of UpdateBalance. CanDistribute and InRecovery are
// never both true.
type Update struct {
	CanDistribute  bool            `json:"can_distribute"`
	Distributable  decimal.Decimal `json:"distributable"`
	Reinvest       decimal.Decimal `json:"reinvest"`
	InRecovery     bool            `json:"in_recovery"`
	CurrentGain    decimal.Decimal `json:"current_gain"`
	RecoveryNeeded decimal.Decimal `json:"recovery_needed"`
	DailyFloor     decimal.Decimal `json:"daily_floor"`
	Ratchet        *Ratchet        `json:"ratchet,omitempty"`
	RolledOver     bool            `json:"rolled_over"`
}

// Status is the report shown on dashboards.
type Status struct {
	Quarter               string          `json:"quarter"`
	QuarterStartPrincipal decimal.Decimal `json:"quarter_start_principal"`
	DailyFloor            decimal.Decimal `json:"daily_floor"`
	YesterdayFloor        decimal.Decimal `json:"yesterday_floor"`
	CurrentBalance        decimal.Decimal `json:"current_balance"`
	TodaysGain            decimal.Decimal `json:"todays_gain"`
	QuarterTotalGain      decimal.Decimal `json:"quarter_total_gain"`
	InRecovery            bool            `json:"in_recovery"`
	TotalDistributed      decimal.Decimal `json:"total_distributed"`
	TotalReinvested       decimal.Decimal `json:"total_reinvested"`
	VolatilityScore       float64         `json:"volatility_score"`
	MaxDrawdownPct        float64         `json:"max_drawdown_pct"`
	RiskAdjustment        float64         `json:"risk_adjustment"`
	PeakBalance           decimal.Decimal `json:"peak_balance"`
	ShouldReduceRisk      bool            `json:"should_reduce_risk"`
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock injects the time source for day and quarter boundaries.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger replaces the component logger.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// Ledger is safe for concurrent use.
type Ledger struct {
	config Config
	rec    *Record
	share  decimal.Decimal
	now    func() time.Time
	logger *logging.Logger
	mu     sync.RWMutex
}

// New creates a ledger. Without InitialPrincipal the quarter starts on the
// first UpdateBalance call.
func New(config Config, opts ...Option) *Ledger {
	l := &Ledger{
		config: config,
		share:  decimal.NewFromFloat(config.DistributionShare),
		now:    time.Now,
		logger: logging.WithComponent("ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	if config.InitialPrincipal > 0 {
		l.rec = l.newQuarter(decimal.NewFromFloat(config.InitialPrincipal))
	}
	return l
}

func quarterOf(t time.Time) int {
	return (int(t.Month())-1)/3 + 1
}

func (l *Ledger) newQuarter(balance decimal.Decimal) *Record {
	now := l.now()
	return &Record{
		Quarter:               quarterOf(now),
		Year:                  now.Year(),
		StartDate:             now,
		QuarterStartPrincipal: balance,
		DailyFloor:            balance,
		YesterdayFloor:        balance,
		CurrentBalance:        balance,
		PeakBalance:           balance,
		LastUpdateDate:        now.Format(dateLayout),
	}
}

// Restore replaces the in-memory record with a persisted one.
func (l *Ledger) Restore(rec Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := rec
	l.rec = &r
}

// Snapshot returns a copy of the record and whether one exists yet.
func (l *Ledger) Snapshot() (Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.rec == nil {
		return Record{}, false
	}
	return *l.rec, true
}

// UpdateBalance folds a new balance observation into the ledger.
func (l *Ledger) UpdateBalance(balance float64) Update {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := decimal.NewFromFloat(balance)
	now := l.now()
	var out Update

	// 1. quarterly rollover, carrying the balance forward as principal
	if l.rec == nil {
		l.rec = l.newQuarter(current)
		l.logger.Info("ledger initialized", "quarter", l.rec.Quarter, "year", l.rec.Year, "principal", balance)
	} else if quarterOf(now) != l.rec.Quarter || now.Year() != l.rec.Year {
		prev := l.rec
		l.rec = l.newQuarter(current)
		out.RolledOver = true
		l.logger.Info("new quarter", "quarter", l.rec.Quarter, "year", l.rec.Year,
			"principal", balance, "previous_distributed", prev.TotalDistributed.String())
	}

	// 2. daily ratchet from the last balance seen yesterday
	today := now.Format(dateLayout)
	if today != l.rec.LastUpdateDate {
		yesterdayBalance := l.rec.CurrentBalance
		floor := l.rec.DailyFloor
		if yesterdayBalance.GreaterThan(floor) {
			gain := yesterdayBalance.Sub(floor)
			distributable := gain.Mul(l.share)
			kept := gain.Sub(distributable)

			l.rec.YesterdayFloor = floor
			l.rec.DailyFloor = floor.Add(kept)
			l.rec.TotalReinvested = l.rec.TotalReinvested.Add(kept)
			out.Ratchet = &Ratchet{
				PreviousFloor: floor,
				NewFloor:      l.rec.DailyFloor,
				Gain:          gain,
				Distributable: distributable,
				Reinvested:    kept,
			}
			l.logger.Info("daily ratchet", "previous_floor", floor.String(),
				"new_floor", l.rec.DailyFloor.String(), "distributable", distributable.String())
		}
		l.rec.LastUpdateDate = today
	}

	l.rec.CurrentBalance = current

	// 3. peak and drawdown
	if current.GreaterThan(l.rec.PeakBalance) {
		l.rec.PeakBalance = current
	}
	if l.rec.PeakBalance.IsPositive() {
		drawdown, _ := l.rec.PeakBalance.Sub(current).Div(l.rec.PeakBalance).Float64()
		if drawdown > l.rec.MaxDrawdown {
			l.rec.MaxDrawdown = drawdown
		}
	}

	floor := l.rec.DailyFloor
	out.DailyFloor = floor

	// 4. recovery
	if current.LessThan(floor) {
		if !l.rec.InRecovery {
			l.logger.Warn("recovery mode", "balance", balance, "floor", floor.String())
		}
		l.rec.InRecovery = true
		out.InRecovery = true
		out.CurrentGain = current.Sub(floor)
		out.RecoveryNeeded = floor.Sub(current)
		return out
	}

	// 5. normal
	if l.rec.InRecovery {
		l.logger.Info("recovered above floor", "balance", balance, "floor", floor.String())
		l.rec.InRecovery = false
	}
	gain := current.Sub(floor)
	if gain.IsPositive() {
		out.CanDistribute = true
		out.Distributable = gain.Mul(l.share)
		out.Reinvest = gain.Sub(out.Distributable)
		out.CurrentGain = gain
	}
	return out
}

// RecordDistribution books a withdrawal. It is refused in recovery mode and
// for amounts above today's distributable gain.
func (l *Ledger) RecordDistribution(amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount <= 0 {
		return fmt.Errorf("distribution amount must be positive, got %v", amount)
	}
	if l.rec == nil {
		return errs.Risk("ledger.RecordDistribution", "ledger not initialized")
	}
	if l.rec.InRecovery {
		return errs.Risk("ledger.RecordDistribution", "in recovery mode")
	}

	amt := decimal.NewFromFloat(amount)
	available := l.rec.CurrentBalance.Sub(l.rec.DailyFloor).Mul(l.share)
	if amt.GreaterThan(available) {
		return errs.Risk("ledger.RecordDistribution",
			fmt.Sprintf("amount %s exceeds distributable %s", amt.StringFixed(2), available.StringFixed(2)))
	}

	now := l.now()
	l.rec.TotalDistributed = l.rec.TotalDistributed.Add(amt)
	l.rec.CurrentBalance = l.rec.CurrentBalance.Sub(amt)
	l.rec.LastDistribution = &now
	l.logger.Info("distribution recorded", "amount", amount, "total_distributed", l.rec.TotalDistributed.String())
	return nil
}

// UpdateVolatility sets the volatility score (0-100, higher = more volatile).
func (l *Ledger) UpdateVolatility(score float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rec == nil {
		return
	}
	l.rec.VolatilityScore = math.Max(0, math.Min(100, score))
}

// RiskAdjustment returns a sizing multiplier in [0.2, 1.0].
func (l *Ledger) RiskAdjustment() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.riskAdjustment()
}

func (l *Ledger) riskAdjustment() float64 {
	if l.rec == nil {
		return 1.0
	}
	volFactor := math.Max(0.5, 1.0-l.rec.VolatilityScore/100)
	ddFactor := math.Max(0.5, 1.0-l.rec.MaxDrawdown*2)
	recoveryFactor := 1.0
	if l.rec.InRecovery {
		recoveryFactor = 0.5
	}
	return math.Max(0.2, math.Min(1.0, volFactor*ddFactor*recoveryFactor))
}

// ShouldReduceRisk is true in recovery, high volatility, or after a >10% drawdown.
func (l *Ledger) ShouldReduceRisk() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.shouldReduceRisk()
}

func (l *Ledger) shouldReduceRisk() bool {
	if l.rec == nil {
		return false
	}
	return l.rec.InRecovery || l.rec.VolatilityScore > 70 || l.rec.MaxDrawdown > 0.10
}

// InRecovery reports whether the balance is below the daily floor.
func (l *Ledger) InRecovery() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rec != nil && l.rec.InRecovery
}

// ResetQuarterlyStats clears drawdown and volatility tracking.
func (l *Ledger) ResetQuarterlyStats() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rec == nil {
		return
	}
	l.rec.MaxDrawdown = 0
	l.rec.VolatilityScore = 0
	l.rec.PeakBalance = l.rec.CurrentBalance
}

// Status returns the current quarterly report.
func (l *Ledger) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.rec == nil {
		return Status{RiskAdjustment: 1.0}
	}
	r := l.rec
	return Status{
		Quarter:               fmt.Sprintf("Q%d %d", r.Quarter, r.Year),
		QuarterStartPrincipal: r.QuarterStartPrincipal,
		DailyFloor:            r.DailyFloor,
		YesterdayFloor:        r.YesterdayFloor,
		CurrentBalance:        r.CurrentBalance,
		TodaysGain:            r.CurrentBalance.Sub(r.DailyFloor),
		QuarterTotalGain:      r.CurrentBalance.Sub(r.QuarterStartPrincipal),
		InRecovery:            r.InRecovery,
		TotalDistributed:      r.TotalDistributed,
		TotalReinvested:       r.TotalReinvested,
		VolatilityScore:       r.VolatilityScore,
		MaxDrawdownPct:        r.MaxDrawdown * 100,
		RiskAdjustment:        l.riskAdjustment(),
		PeakBalance:           r.PeakBalance,
		ShouldReduceRisk:      l.shouldReduceRisk(),
	}
}
