// Package allocation splits account capital into risk tiers and budgets new
// buys against what each tier already holds.
package allocation

import (
	"fmt"

	"dai-trader/internal/errs"
)

// Tier is a risk classification of a trade.
type Tier string

const (
	TierHigh   Tier = "HIGH"
	TierMedium Tier = "MEDIUM"
	TierLow    Tier = "LOW"
)

// Tiers lists every tier.
var Tiers = []Tier{TierHigh, TierMedium, TierLow}

// Fractions of account value reserved per tier. They sum to 1.0.
var Fractions = map[Tier]float64{
	TierHigh:   0.20,
	TierMedium: 0.30,
	TierLow:    0.50,
}

// BudgetFraction is the share of a tier's remaining capital one buy may use.
const BudgetFraction = 0.10

// ParseTier reads a stored tier, defaulting to MEDIUM.
func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierHigh, TierLow:
		return Tier(s)
	default:
		return TierMedium
	}
}

// Holding is an open position's market value and recorded tier.
type Holding struct {
	Symbol      string  `json:"symbol"`
	Tier        Tier    `json:"tier"`
	MarketValue float64 `json:"market_value"`
}

// Allocation is one tier's capital and usage.
type Allocation struct {
	Tier      Tier    `json:"tier"`
	Fraction  float64 `json:"fraction"`
	Allocated float64 `json:"allocated"`
	Used      float64 `json:"used"`
}

// Remaining is the unused allocated capital, never negative.
func (a Allocation) Remaining() float64 {
	return max(0, a.Allocated-a.Used)
}

// Exhausted reports whether the tier can take no new buy.
func (a Allocation) Exhausted() bool {
	return a.Used >= a.Allocated
}

// Plan is the allocation of every tier for one cycle.
type Plan map[Tier]Allocation

// Compute partitions accountValue and sums holdings by tier. Holdings with
// an unknown tier count against MEDIUM.
func Compute(accountValue float64, holdings []Holding) Plan {
	p := make(Plan, len(Tiers))
	for _, t := range Tiers {
		p[t] = Allocation{
			Tier:      t,
			Fraction:  Fractions[t],
			Allocated: accountValue * Fractions[t],
		}
	}
	for _, h := range holdings {
		t := ParseTier(string(h.Tier))
		a := p[t]
		a.Used += h.MarketValue
		p[t] = a
	}
	return p
}

// Scale multiplies every tier's allocated capital by factor.
func (p Plan) Scale(factor float64) Plan {
	out := make(Plan, len(p))
	for t, a := range p {
		a.Allocated *= factor
		out[t] = a
	}
	return out
}

// TotalFraction sums the tier fractions.
func (p Plan) TotalFraction() float64 {
	total := 0.0
	for _, a := range p {
		total += a.Fraction
	}
	return total
}

// Budget returns the capital a new buy in tier may use: BudgetFraction of
// the remaining tier capital times multiplier. An exhausted tier is a risk
// breach.
func (p Plan) Budget(tier Tier, multiplier float64) (float64, error) {
	a, ok := p[tier]
	if !ok {
		return 0, errs.Risk("allocation.Budget", fmt.Sprintf("unknown tier %s", tier))
	}
	if a.Exhausted() {
		return 0, errs.Risk("allocation.Budget",
			fmt.Sprintf("%s tier capital exhausted (used %.2f of %.2f)", tier, a.Used, a.Allocated))
	}
	return a.Remaining() * BudgetFraction * multiplier, nil
}
