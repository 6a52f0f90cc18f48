// Package safety scores macro, crypto, calendar and account danger into a
// risk reduction factor and decides when to liquidate everything.
package safety

import (
	"fmt"
	"strings"

	"dai-trader/internal/allocation"
	"dai-trader/internal/signals"
)

// AccountPerformance is the account's recent trading record.
type AccountPerformance struct {
	DailyPnLPct  float64 `json:"daily_pnl_pct"` // percent, -2.5 means down 2.5%
	LosingStreak int     `json:"losing_streak"`
}

// Input is everything the evaluator looks at.
type Input struct {
	Macro       signals.MacroContext
	Crypto      signals.CryptoContext
	Economic    signals.EconomicContext
	News        signals.NewsSummary
	Performance AccountPerformance
}

// Factor is one contribution to the danger score.
type Factor struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
	Reason string `json:"reason"`
}

// Assessment is the evaluator's verdict.
type Assessment struct {
	IsSafe        bool     `json:"is_safe"`
	Reason        string   `json:"reason"`
	RiskReduction float64  `json:"risk_reduction"`
	DangerScore   int      `json:"danger_score"`
	Factors       []Factor `json:"factors,omitempty"`
}

// Reasons lists the factor reasons in scoring order.
func (a Assessment) Reasons() []string {
	out := make([]string, 0, len(a.Factors))
	for _, f := range a.Factors {
		out = append(out, f.Reason)
	}
	return out
}

// Score returns every danger factor that crossed its threshold.
func Score(in Input) []Factor {
	var fs []Factor
	add := func(name string, points int, reason string) {
		fs = append(fs, Factor{Name: name, Points: points, Reason: reason})
	}

	if in.Macro.Regime == signals.LabelBearish && in.Macro.Confidence > 75 {
		add("macro", 30, fmt.Sprintf("Bearish macro regime (%d%% conf)", in.Macro.Confidence))
	}
	if s := in.Macro.TreasurySpread; s != nil && *s < 0 {
		add("yield_curve", 20, "Inverted yield curve (recession signal)")
	}
	if v := in.Macro.VIX; v != nil {
		switch {
		case *v > 30:
			add("vix", 25, fmt.Sprintf("High volatility (VIX %.1f)", *v))
		case *v > 25:
			add("vix", 15, fmt.Sprintf("Elevated volatility (VIX %.1f)", *v))
		}
	}

	switch btc := in.Crypto.BTCChange24h; {
	case btc < -10:
		add("crypto", 25, fmt.Sprintf("Crypto crash (BTC %.1f%%)", btc))
	case btc < -5:
		add("crypto", 10, fmt.Sprintf("Crypto selloff (BTC %.1f%%)", btc))
	}

	switch in.Economic.RiskLevel {
	case signals.RiskExtreme:
		add("economic", 30, "Extreme economic event risk")
	case signals.RiskHigh:
		add("economic", 15, "High economic event risk")
	}

	switch pnl := in.Performance.DailyPnLPct; {
	case pnl < -3:
		add("daily_loss", 50, "Daily loss limit hit")
	case pnl < -2:
		add("daily_loss", 30, fmt.Sprintf("Major daily loss (%.1f%%)", pnl))
	case pnl < -1:
		add("daily_loss", 15, fmt.Sprintf("Mounting daily loss (%.1f%%)", pnl))
	}

	switch n := in.Performance.LosingStreak; {
	case n >= 5:
		add("losing_streak", 20, fmt.Sprintf("Losing streak: %d trades", n))
	case n >= 3:
		add("losing_streak", 10, fmt.Sprintf("Losing streak: %d trades", n))
	}

	bear, bull := len(in.News.Bearish), len(in.News.Bullish)
	if bear > 2*bull && bear >= 3 {
		add("news", 15, "Widespread negative news")
	}
	return fs
}

// Evaluate scores in and maps the danger score to a risk reduction factor.
func Evaluate(in Input) Assessment {
	a := Assessment{Factors: Score(in)}
	for _, f := range a.Factors {
		a.DangerScore += f.Points
	}
	reasons := a.Reasons()

	switch s := a.DangerScore; {
	case s >= 80:
		a.RiskReduction = 0.0
		a.Reason = "FULL SAFE MODE ACTIVATED - " + join(reasons, 3)
	case s >= 60:
		a.RiskReduction = 0.25
		a.Reason = "EXTREME CAUTION MODE - " + join(reasons, 2)
	case s >= 40:
		a.RiskReduction = 0.5
		a.Reason = "DEFENSIVE MODE - " + join(reasons, 2)
	case s >= 20:
		a.RiskReduction = 0.75
		a.Reason = "CAUTION - " + join(reasons, 1)
	default:
		a.RiskReduction = 1.0
		a.Reason = "Market conditions favorable"
	}
	a.IsSafe = a.DangerScore < 80
	return a
}

func join(reasons []string, n int) string {
	return strings.Join(reasons[:min(n, len(reasons))], ", ")
}

// ShouldCloseAll reports an emergency when at least two of crypto crash,
// extreme fear and emergency daily loss fire together.
func ShouldCloseAll(in Input) (bool, string) {
	var reasons []string
	if in.Crypto.BTCChange24h < -15 {
		reasons = append(reasons, "Crypto market crash (BTC -15%+)")
	}
	if v := in.Macro.VIX; v != nil && *v > 40 {
		reasons = append(reasons, fmt.Sprintf("Extreme fear (VIX %.1f)", *v))
	}
	if pnl := in.Performance.DailyPnLPct; pnl < -5 {
		reasons = append(reasons, fmt.Sprintf("Emergency stop loss (%.1f%% daily loss)", pnl))
	}
	if len(reasons) >= 2 {
		return true, "EMERGENCY: " + strings.Join(reasons, ", ")
	}
	return false, ""
}

// ApplyToAllocation scales every tier's usable capital by riskReduction.
func ApplyToAllocation(plan allocation.Plan, riskReduction float64) allocation.Plan {
	if riskReduction >= 1.0 {
		return plan
	}
	return plan.Scale(max(0, riskReduction))
}
