package backtest

import "math"

// periodsPerYear annualizes the per-bar Sharpe ratio as for daily bars.
const periodsPerYear = 252

// calculateMetrics fills the summary fields from trades and the equity curve
func calculateMetrics(r *Result) {
	r.TotalReturn = r.FinalCapital - r.InitialCapital
	r.TotalReturnPct = r.TotalReturn / r.InitialCapital * 100
	r.TotalTrades = len(r.Trades)

	var grossWin, grossLoss float64
	for _, t := range r.Trades {
		switch {
		case t.PnL > 0:
			r.WinningTrades++
			grossWin += t.PnL
		case t.PnL < 0:
			r.LosingTrades++
			grossLoss += t.PnL
		}
	}

	if r.TotalTrades > 0 {
		r.WinRate = float64(r.WinningTrades) / float64(r.TotalTrades) * 100
	}
	if r.WinningTrades > 0 {
		r.AverageWin = grossWin / float64(r.WinningTrades)
	}
	if r.LosingTrades > 0 {
		r.AverageLoss = grossLoss / float64(r.LosingTrades)
	}
	if grossLoss < 0 {
		r.ProfitFactor = grossWin / -grossLoss
	}

	r.MaxDrawdown = maxDrawdown(r.EquityCurve)
	r.SharpeRatio = sharpeRatio(r.EquityCurve)
}

// maxDrawdown is the largest fall from a running peak, in percent.
func maxDrawdown(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	worst := 0.0
	peak := curve[0].Equity
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - p.Equity) / peak * 100; dd > worst {
			worst = dd
		}
	}
	return worst
}

// sharpeRatio annualizes the mean over the standard deviation of per-bar
// returns, with a zero risk-free rate.
func sharpeRatio(curve []EquityPoint) float64 {
	if len(curve) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		if prev := curve[i-1].Equity; prev > 0 {
			returns = append(returns, curve[i].Equity/prev-1)
		}
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(returns)-1))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}
