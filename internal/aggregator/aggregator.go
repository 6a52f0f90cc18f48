// Package aggregator merges the learner's proposed action with every
// intelligence source into a final action, confidence, size multiplier
// and capital tier.
package aggregator

import (
	"fmt"
	"math"

	"dai-trader/internal/allocation"
	"dai-trader/internal/signals"
	"dai-trader/internal/strategy"
)

// Weight is a source's contribution to the net score and the confidence
// it must exceed to count.
type Weight struct {
	Bullish   float64
	Bearish   float64
	Threshold int
}

// Weights per source.
var Weights = map[signals.Source]Weight{
	signals.SourceOvernight: {Bullish: 15, Bearish: 15, Threshold: 65},
	signals.SourceNews:      {Bullish: 20, Bearish: 20, Threshold: 60},
	signals.SourceOptions:   {Bullish: 18, Bearish: 18, Threshold: 70},
	signals.SourceInsider:   {Bullish: 17, Bearish: 12, Threshold: 70},
	signals.SourceSocial:    {Bullish: 12, Bearish: 12, Threshold: 65},
	signals.SourceSqueeze:   {Bullish: 10, Bearish: 10, Threshold: 60},
	signals.SourceTrends:    {Bullish: 8, Bearish: 8, Threshold: 60},
}

const (
	MinMultiplier = 0.4
	MaxMultiplier = 2.0

	downgradeBelow = -15.0
	upgradeAbove   = 25.0
)

// Decision is the aggregator's final word on one symbol.
type Decision struct {
	Symbol         string          `json:"symbol"`
	Proposed       strategy.Action `json:"proposed"`
	Action         strategy.Action `json:"action"`
	Confidence     int             `json:"confidence"`
	BullishScore   float64         `json:"bullish_score"`
	BearishScore   float64         `json:"bearish_score"`
	NetScore       float64         `json:"net_score"`
	SizeMultiplier float64         `json:"size_multiplier"`
	Tier           allocation.Tier `json:"tier"`
	Blocked        bool            `json:"blocked,omitempty"`
	Reasons        []string        `json:"reasons,omitempty"`
}

// Decide combines proposed with the bundle.
func Decide(proposed strategy.Action, b signals.Bundle) Decision {
	d := Decision{
		Symbol:         b.Symbol,
		Proposed:       proposed,
		SizeMultiplier: 1.0,
		Tier:           allocation.TierMedium,
	}

	if reason, blocked := blocker(b); blocked {
		d.Action = strategy.ActionHold
		d.Blocked = true
		d.Reasons = []string{reason}
		return d
	}

	for _, src := range signals.Sources {
		sig, ok := b.Signals[src]
		if !ok {
			continue
		}
		w := Weights[src]
		if sig.Confidence <= w.Threshold {
			continue
		}
		c := float64(sig.Confidence) / 100
		switch sig.Direction() {
		case signals.DirectionBullish:
			d.BullishScore += w.Bullish * c
			d.Reasons = append(d.Reasons, fmt.Sprintf("%s bullish (%d%%)", src, sig.Confidence))
		case signals.DirectionBearish:
			d.BearishScore += w.Bearish * c
			d.Reasons = append(d.Reasons, fmt.Sprintf("%s bearish (%d%%)", src, sig.Confidence))
		}
	}
	d.NetScore = d.BullishScore - d.BearishScore
	d.Confidence = int(math.Round(math.Max(0, math.Min(100, 50+d.NetScore))))

	d.Action = proposed
	switch {
	case proposed == strategy.ActionBuy && d.NetScore < downgradeBelow:
		d.Action = strategy.ActionHold
		d.Reasons = append(d.Reasons, fmt.Sprintf("buy overridden by bearish signals (net %.1f)", d.NetScore))
	case proposed == strategy.ActionHold && d.NetScore > upgradeAbove:
		d.Action = strategy.ActionBuy
		d.Reasons = append(d.Reasons, fmt.Sprintf("upgraded to buy on strong signals (net %.1f)", d.NetScore))
	}

	d.SizeMultiplier = SizeMultiplier(b)
	d.Tier = Classify(b, d.Confidence)
	return d
}

func blocker(b signals.Bundle) (string, bool) {
	if b.Economic.AvoidTrading {
		return "economic calendar: avoid trading", true
	}
	news, ok := b.Signals[signals.SourceNews]
	if !ok {
		return "", false
	}
	if news.AvoidTrading {
		return "news: avoid trading", true
	}
	if news.Direction() == signals.DirectionBearish && news.Confidence > 70 {
		return fmt.Sprintf("news: strong bearish (%d%%)", news.Confidence), true
	}
	return "", false
}

// SizeMultiplier is the mean source boost times the macro, economic and
// crypto risk factors, clamped to [MinMultiplier, MaxMultiplier].
func SizeMultiplier(b signals.Bundle) float64 {
	mean := 1.0
	if len(b.Signals) > 0 {
		sum := 0.0
		for _, sig := range b.Signals {
			boost := sig.Boost
			if boost == 0 {
				boost = signals.Boost(sig)
			}
			sum += boost
		}
		mean = sum / float64(len(b.Signals))
	}
	m := mean * b.Macro.RiskFactor() * b.Economic.RiskFactor() * b.Crypto.RiskFactor()
	return math.Max(MinMultiplier, math.Min(MaxMultiplier, m))
}

// Classify assigns the capital tier from high- and low-risk factors.
func Classify(b signals.Bundle, confidence int) allocation.Tier {
	high := 0
	if b.Get(signals.SourceSqueeze).Label == signals.LabelActiveSqueeze {
		high++
	}
	if b.Get(signals.SourceSocial).Mentions > 30 {
		high++
	}
	if b.Get(signals.SourceTrends).Label == signals.LabelSurging {
		high++
	}
	if high >= 2 {
		return allocation.TierHigh
	}

	low := 0
	if b.Get(signals.SourceInsider).BuyCount >= 2 {
		low++
	}
	if b.Macro.Regime == signals.LabelBullish {
		low++
	}
	if confidence > 85 {
		low++
	}
	if low >= 2 {
		return allocation.TierLow
	}
	return allocation.TierMedium
}

// Budget is the capital the decision may commit under plan.
func Budget(plan allocation.Plan, d Decision) (float64, error) {
	return plan.Budget(d.Tier, d.SizeMultiplier)
}
