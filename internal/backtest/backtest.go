// Package backtest replays historical bars through a strategy and the risk
// controller and reports how the strategy would have done.
package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"dai-trader/internal/errs"
	"dai-trader/internal/logging"
	"dai-trader/internal/market"
	"dai-trader/internal/risk"
	"dai-trader/internal/strategy"
)

// Exit reasons besides the risk controller's.
const (
	ReasonSellSignal = "sell signal"
	ReasonEndOfData  = "end of data"
)

// Config holds backtest configuration
type Config struct {
	InitialCapital float64
	Commission     float64 // fraction of notional charged per fill
	Warmup         int     // bars skipped before the first decision
	Risk           risk.Config
}

// DefaultConfig starts with 10k and the default risk settings.
func DefaultConfig() Config {
	return Config{
		InitialCapital: 10000,
		Warmup:         50,
		Risk:           risk.DefaultConfig(),
	}
}

// Trade is one simulated round trip.
type Trade struct {
	Symbol     string    `json:"symbol"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Shares     int       `json:"shares"`
	Fees       float64   `json:"fees"`
	PnL        float64   `json:"pnl"`     // after fees
	PnLPct     float64   `json:"pnl_pct"` // price change in percent
	Reason     string    `json:"reason"`
}

// EquityPoint is the account value after one bar.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// Result contains backtest performance metrics. Percentages are in
// percent units.
type Result struct {
	Strategy       string        `json:"strategy"`
	InitialCapital float64       `json:"initial_capital"`
	FinalCapital   float64       `json:"final_capital"`
	TotalReturn    float64       `json:"total_return"`
	TotalReturnPct float64       `json:"total_return_pct"`
	TotalTrades    int           `json:"total_trades"`
	WinningTrades  int           `json:"winning_trades"`
	LosingTrades   int           `json:"losing_trades"`
	WinRate        float64       `json:"win_rate"`
	AverageWin     float64       `json:"average_win"`
	AverageLoss    float64       `json:"average_loss"`
	ProfitFactor   float64       `json:"profit_factor"`
	MaxDrawdown    float64       `json:"max_drawdown"`
	SharpeRatio    float64       `json:"sharpe_ratio"`
	Skipped        []string      `json:"skipped,omitempty"` // symbols without enough bars
	Trades         []Trade       `json:"trades"`
	EquityCurve    []EquityPoint `json:"equity_curve"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger replaces the component logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine runs one strategy over historical data.
type Engine struct {
	config   Config
	strategy strategy.Strategy
	logger   *logging.Logger
}

// position is the open simulated holding.
type position struct {
	shares     int
	entryPrice float64
	entryTime  time.Time
	fees       float64
}

// NewEngine creates a backtest engine for strat.
func NewEngine(cfg Config, strat strategy.Strategy, opts ...Option) (*Engine, error) {
	if strat == nil {
		return nil, errs.Config("backtest: strategy is required")
	}
	if cfg.InitialCapital <= 0 {
		return nil, errs.Config("backtest: initial capital must be positive, got %v", cfg.InitialCapital)
	}
	if cfg.Commission < 0 || cfg.Commission >= 1 {
		return nil, errs.Config("backtest: commission must be in [0, 1), got %v", cfg.Commission)
	}
	if cfg.Warmup < 0 {
		cfg.Warmup = 0
	}
	e := &Engine{
		config:   cfg,
		strategy: strat,
		logger:   logging.WithComponent("backtest"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run replays every symbol in order, sharing one cash balance. Each series
// must be indicator-enriched and oldest first. Positions still open at the
// end of a series are closed at its last close.
func (e *Engine) Run(ctx context.Context, symbols []string, series map[string][]market.Bar) (*Result, error) {
	if len(symbols) == 0 {
		return nil, errs.Config("backtest: no symbols")
	}

	var now time.Time
	rc := risk.NewController(e.config.Risk,
		risk.WithClock(func() time.Time { return now }),
		risk.WithLogger(e.logger))

	res := &Result{Strategy: e.strategy.Name(), InitialCapital: e.config.InitialCapital}
	cash := e.config.InitialCapital

	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bars := series[symbol]
		if len(bars) <= e.config.Warmup {
			e.logger.Warn("not enough bars, symbol skipped", "symbol", symbol, "bars", len(bars), "warmup", e.config.Warmup)
			res.Skipped = append(res.Skipped, symbol)
			continue
		}

		var pos *position
		closeAt := func(bar market.Bar, price float64, reason string) {
			t := e.exit(symbol, pos, bar.Time, price, reason)
			cash += float64(pos.shares)*price - e.fee(pos.shares, price)
			rc.RecordTrade(symbol, t.PnL)
			rc.Forget(symbol)
			res.Trades = append(res.Trades, t)
			pos = nil
		}

		for i := e.config.Warmup; i < len(bars); i++ {
			bar := bars[i]
			now = bar.Time
			price := bar.Close
			if price <= 0 {
				continue
			}

			exited := false
			if pos != nil {
				plPct := (price - pos.entryPrice) / pos.entryPrice
				if should, reason := rc.ShouldClose(symbol, price, pos.entryPrice, plPct); should {
					closeAt(bar, price, reason)
					exited = true
				} else {
					rc.UpdateTrailingStop(symbol, price, pos.entryPrice, 0)
				}
			}

			// No re-entry on the bar that stopped out.
			action := e.strategy.GenerateSignal(symbol, bars[:i+1])
			switch {
			case action == strategy.ActionSell && pos != nil:
				closeAt(bar, price, ReasonSellSignal)
			case action == strategy.ActionBuy && pos == nil && !exited:
				equity := cash
				if ok, reason := rc.CanTrade(equity); !ok {
					e.logger.Debug("entry blocked", "symbol", symbol, "time", bar.Time, "reason", reason)
					break
				}
				shares := min(e.strategy.PositionSize(symbol, price, equity),
					int(math.Floor(cash/(price*(1+e.config.Commission)))))
				if shares <= 0 {
					break
				}
				fee := e.fee(shares, price)
				cash -= float64(shares)*price + fee
				pos = &position{shares: shares, entryPrice: price, entryTime: bar.Time, fees: fee}
				rc.StopLossPrice(symbol, price, risk.Long)
				rc.TakeProfitPrice(symbol, price, risk.Long)
			}

			equity := cash
			if pos != nil {
				equity += float64(pos.shares) * price
			}
			res.EquityCurve = append(res.EquityCurve, EquityPoint{Time: bar.Time, Equity: equity})
		}

		if pos != nil {
			last := bars[len(bars)-1]
			closeAt(last, last.Close, ReasonEndOfData)
		}
	}

	if len(res.Skipped) == len(symbols) {
		return nil, errs.Data("backtest.Run", fmt.Errorf("no symbol has more than %d bars", e.config.Warmup))
	}

	res.FinalCapital = cash
	calculateMetrics(res)
	e.logger.Info("backtest finished",
		"strategy", res.Strategy,
		"trades", res.TotalTrades,
		"win_rate", res.WinRate,
		"return_pct", res.TotalReturnPct,
		"max_drawdown", res.MaxDrawdown,
	)
	return res, nil
}

func (e *Engine) fee(shares int, price float64) float64 {
	return float64(shares) * price * e.config.Commission
}

func (e *Engine) exit(symbol string, pos *position, at time.Time, price float64, reason string) Trade {
	fees := pos.fees + e.fee(pos.shares, price)
	return Trade{
		Symbol:     symbol,
		EntryTime:  pos.entryTime,
		ExitTime:   at,
		EntryPrice: pos.entryPrice,
		ExitPrice:  price,
		Shares:     pos.shares,
		Fees:       fees,
		PnL:        (price-pos.entryPrice)*float64(pos.shares) - fees,
		PnLPct:     (price - pos.entryPrice) / pos.entryPrice * 100,
		Reason:     reason,
	}
}
