package signals

import "fmt"

// MacroContext is the economic regime read from rates, employment, the
// yield curve and VIX.
type MacroContext struct {
	Regime         Label    `json:"regime"` // BULLISH, BEARISH, NEUTRAL
	Confidence     int      `json:"confidence"`
	TreasurySpread *float64 `json:"treasury_spread,omitempty"`
	VIX            *float64 `json:"vix,omitempty"`
	Reasons        []string `json:"reasons,omitempty"`
}

// RiskFactor is the sizing multiplier of the regime, 0.6 to 1.3.
func (m MacroContext) RiskFactor() float64 {
	if m.Confidence < 50 {
		return 1.0
	}
	switch m.Regime {
	case LabelBullish:
		switch {
		case m.Confidence > 80:
			return 1.3
		case m.Confidence > 70:
			return 1.15
		default:
			return 1.05
		}
	case LabelBearish:
		switch {
		case m.Confidence > 80:
			return 0.6
		case m.Confidence > 70:
			return 0.75
		default:
			return 0.9
		}
	}
	return 1.0
}

// RiskLevel grades the economic calendar for today.
type RiskLevel string

const (
	RiskLow     RiskLevel = "LOW"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskHigh    RiskLevel = "HIGH"
	RiskExtreme RiskLevel = "EXTREME"
)

// EconomicContext is today's scheduled-event risk.
type EconomicContext struct {
	RiskLevel    RiskLevel `json:"risk_level"`
	AvoidTrading bool      `json:"avoid_trading"`
	Events       []string  `json:"events,omitempty"`
}

// RiskFactor is the sizing multiplier for event days, 0.5 to 1.0.
func (e EconomicContext) RiskFactor() float64 {
	switch e.RiskLevel {
	case RiskExtreme:
		return 0.5
	case RiskHigh:
		return 0.7
	case RiskMedium:
		return 0.85
	}
	return 1.0
}

// CryptoContext is risk appetite inferred from the crypto market.
type CryptoContext struct {
	Label        Label    `json:"label"` // RISK_ON, RISK_OFF, NEUTRAL
	Confidence   int      `json:"confidence"`
	BTCChange24h float64  `json:"btc_change_24h"` // percent
	BTCChange7d  float64  `json:"btc_change_7d"`
	ETHChange24h float64  `json:"eth_change_24h"`
	Reasons      []string `json:"reasons,omitempty"`
}

// RiskFactor is the sizing multiplier of crypto sentiment, 0.7 to 1.2.
func (c CryptoContext) RiskFactor() float64 {
	if c.Confidence < 50 {
		return 1.0
	}
	switch c.Label {
	case LabelRiskOn:
		switch {
		case c.Confidence > 75:
			return 1.2
		case c.Confidence > 60:
			return 1.1
		default:
			return 1.05
		}
	case LabelRiskOff:
		switch {
		case c.Confidence > 75:
			return 0.7
		case c.Confidence > 60:
			return 0.85
		default:
			return 0.95
		}
	}
	return 1.0
}

// AnalyzeCrypto classifies BTC and ETH moves (percent) into risk appetite.
// A zero ethChange24h means no ETH data.
func AnalyzeCrypto(btcChange24h, btcChange7d, ethChange24h float64) CryptoContext {
	c := CryptoContext{
		Label:        LabelNeutral,
		BTCChange24h: btcChange24h,
		BTCChange7d:  btcChange7d,
		ETHChange24h: ethChange24h,
	}

	switch {
	case btcChange24h > 5:
		c.Label, c.Confidence = LabelRiskOn, 30
		c.Reasons = append(c.Reasons, fmt.Sprintf("Bitcoin up %.1f%% (24h)", btcChange24h))
	case btcChange24h > 2:
		c.Label, c.Confidence = LabelRiskOn, 15
		c.Reasons = append(c.Reasons, fmt.Sprintf("Bitcoin rising (%.1f%%)", btcChange24h))
	case btcChange24h < -5:
		c.Label, c.Confidence = LabelRiskOff, 30
		c.Reasons = append(c.Reasons, fmt.Sprintf("Bitcoin down %.1f%% (24h)", btcChange24h))
	case btcChange24h < -2:
		c.Label, c.Confidence = LabelRiskOff, 15
		c.Reasons = append(c.Reasons, fmt.Sprintf("Bitcoin falling (%.1f%%)", btcChange24h))
	}

	switch {
	case btcChange7d > 10:
		c.Confidence += 20
		c.Reasons = append(c.Reasons, fmt.Sprintf("Strong 7-day rally (%.1f%%)", btcChange7d))
	case btcChange7d < -10:
		c.Confidence += 20
		c.Reasons = append(c.Reasons, fmt.Sprintf("Weak 7-day trend (%.1f%%)", btcChange7d))
	}

	if ethChange24h != 0 && btcChange24h*ethChange24h > 0 {
		c.Confidence += 15
		c.Reasons = append(c.Reasons, "BTC/ETH moving together")
	}

	c.Confidence = min(100, c.Confidence)
	return c
}

// NewsSummary lists the watchlist symbols with confident news sentiment.
type NewsSummary struct {
	Bullish []string `json:"bullish"`
	Bearish []string `json:"bearish"`
}

// Global is the context shared by every symbol in a cycle.
type Global struct {
	Macro    MacroContext    `json:"macro"`
	Economic EconomicContext `json:"economic"`
	Crypto   CryptoContext   `json:"crypto"`
	News     NewsSummary     `json:"news"`
}

// Bundle is the per-symbol signal snapshot one decision sees.
type Bundle struct {
	Symbol  string            `json:"symbol"`
	Signals map[Source]Signal `json:"signals"`
	Global
}

// Get returns the signal of src, neutral when absent.
func (b Bundle) Get(src Source) Signal {
	if s, ok := b.Signals[src]; ok {
		return s
	}
	return Neutral(src, "")
}
