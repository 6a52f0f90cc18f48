package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"dai-trader/config"
	"dai-trader/internal/backtest"
	"dai-trader/internal/binance"
	"dai-trader/internal/logging"
	"dai-trader/internal/market"
	"dai-trader/internal/risk"
	"dai-trader/internal/strategy"
)

var rootCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical bars through a strategy",
	Long: `backtest fetches recent bars for the watchlist (or --symbols) and replays
them through one strategy and the configured risk controls: stop loss,
take profit, trailing stop and the daily loss limit.

Examples:
  backtest --strategy momentum --bars 1000
  backtest --strategy mean_reversion --symbols BTCUSDT,ETHUSDT --interval 1h --json`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runBacktest,
}

// loadConfig is replaced in tests.
var loadConfig = config.Load

var (
	flagStrategy   string
	flagSymbols    []string
	flagInterval   string
	flagBars       int
	flagCapital    float64
	flagCommission float64
	flagWarmup     int
	flagJSON       bool
)

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flagStrategy, "strategy", strategy.Momentum, "strategy to replay (momentum, mean_reversion, ml_hybrid)")
	f.StringSliceVar(&flagSymbols, "symbols", nil, "symbols to replay instead of the watchlist")
	f.StringVar(&flagInterval, "interval", "", "bar interval instead of trading.bar_interval")
	f.IntVar(&flagBars, "bars", 500, "bars to fetch per symbol")
	f.Float64Var(&flagCapital, "capital", 10000, "starting cash")
	f.Float64Var(&flagCommission, "commission", 0.001, "fee per fill as a fraction of notional")
	f.IntVar(&flagWarmup, "warmup", 50, "bars skipped before the first decision")
	f.BoolVar(&flagJSON, "json", false, "print the full result as JSON")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logging.SetDefault(logging.New(&logging.Config{Level: "WARN", Output: "stderr", Component: "backtest"}))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	strat, known := strategy.New(flagStrategy, cfg.RiskConfig.MaxPositionFraction)
	if !known {
		return fmt.Errorf("unknown strategy %q (known: %v)", flagStrategy, strategy.Names)
	}
	symbols := flagSymbols
	if len(symbols) == 0 {
		symbols = cfg.TradingConfig.Watchlist
	}
	interval := flagInterval
	if interval == "" {
		interval = cfg.TradingConfig.BarInterval
	}

	var exchange binance.BinanceClient
	if cfg.BinanceConfig.Mock {
		exchange = binance.NewMockClient(cfg.AgentConfig.Seed)
	} else {
		exchange = binance.NewClient(cfg.BinanceConfig.APIKey, cfg.BinanceConfig.SecretKey, cfg.BinanceConfig.TestNet)
	}
	feed := market.NewBinanceData(exchange)

	fetched := make([][]market.Bar, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	if n := cfg.TradingConfig.FetchParallel; n > 0 {
		g.SetLimit(n)
	}
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			bars, err := feed.HistoricalBars(gctx, sym, interval, flagBars)
			fetched[i] = bars
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	series := make(map[string][]market.Bar, len(symbols))
	for i, sym := range symbols {
		series[sym] = fetched[i]
	}

	rc := cfg.RiskConfig
	engine, err := backtest.NewEngine(backtest.Config{
		InitialCapital: flagCapital,
		Commission:     flagCommission,
		Warmup:         flagWarmup,
		Risk: risk.Config{
			MaxPositionFraction:  rc.MaxPositionFraction,
			MaxDailyLossFraction: rc.MaxDailyLossFraction,
			UseStopLoss:          rc.UseStopLoss,
			StopLossPct:          rc.StopLossPct,
			UseTakeProfit:        rc.UseTakeProfit,
			TakeProfitPct:        rc.TakeProfitPct,
			TrailingStopPct:      rc.TrailingStopPct,
			EmergencyStopPct:     rc.EmergencyStopPct,
		},
	}, strat)
	if err != nil {
		return err
	}
	res, err := engine.Run(ctx, symbols, series)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if flagJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printResults(out, interval, res)
	return nil
}

func printResults(out io.Writer, interval string, r *backtest.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Strategy\t%s (%s bars)\n", r.Strategy, interval)
	fmt.Fprintf(w, "Initial capital\t%.2f\n", r.InitialCapital)
	fmt.Fprintf(w, "Final capital\t%.2f\n", r.FinalCapital)
	fmt.Fprintf(w, "Total return\t%.2f (%.2f%%)\n", r.TotalReturn, r.TotalReturnPct)
	fmt.Fprintf(w, "Total trades\t%d (%d won, %d lost)\n", r.TotalTrades, r.WinningTrades, r.LosingTrades)
	fmt.Fprintf(w, "Win rate\t%.2f%%\n", r.WinRate)
	fmt.Fprintf(w, "Average win\t%.2f\n", r.AverageWin)
	fmt.Fprintf(w, "Average loss\t%.2f\n", r.AverageLoss)
	fmt.Fprintf(w, "Profit factor\t%.2f\n", r.ProfitFactor)
	fmt.Fprintf(w, "Max drawdown\t%.2f%%\n", r.MaxDrawdown)
	fmt.Fprintf(w, "Sharpe ratio\t%.2f\n", r.SharpeRatio)
	if len(r.Skipped) > 0 {
		fmt.Fprintf(w, "Skipped\t%v\n", r.Skipped)
	}
	w.Flush()

	if len(r.Trades) == 0 {
		return
	}
	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tSHARES\tENTRY\tEXIT\tPNL\tREASON")
	for _, t := range r.Trades {
		fmt.Fprintf(w, "%s\t%d\t%.4f\t%.4f\t%.2f\t%s\n", t.Symbol, t.Shares, t.EntryPrice, t.ExitPrice, t.PnL, t.Reason)
	}
	w.Flush()
}
