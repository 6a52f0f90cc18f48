package strategy

import (
	"math"
	"strings"

	"dai-trader/internal/market"
)

// Action is a trading decision.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Actions lists every action in tie-break priority order, safest first.
var Actions = []Action{ActionHold, ActionSell, ActionBuy}

// Valid reports whether a is one of the three actions.
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell || a == ActionHold
}

// Strategy defines the interface for trading strategies
type Strategy interface {
	// Name returns the registry name of the strategy
	Name() string

	// GenerateSignal evaluates the latest bar of an indicator-enriched series
	GenerateSignal(symbol string, bars []market.Bar) Action

	// PositionSize returns whole shares for a full-size position
	PositionSize(symbol string, price, accountValue float64) int
}

// Registry names.
const (
	Momentum      = "momentum"
	MeanReversion = "mean_reversion"
	MLHybrid      = "ml_hybrid"
)

// Names lists the registered strategies.
var Names = []string{Momentum, MeanReversion, MLHybrid}

// New returns the named strategy, falling back to momentum for unknown names.
// The bool reports whether the name was known.
func New(name string, maxPositionFraction float64) (Strategy, bool) {
	base := sizer{maxPositionFraction: maxPositionFraction}
	switch strings.ToLower(name) {
	case Momentum:
		return &MomentumStrategy{sizer: base, RSIOversold: 30, RSIOverbought: 70}, true
	case MeanReversion:
		return &MeanReversionStrategy{sizer: base}, true
	case MLHybrid:
		return &MLHybridStrategy{sizer: base, Lookback: 20}, true
	default:
		return &MomentumStrategy{sizer: base, RSIOversold: 30, RSIOverbought: 70}, false
	}
}

// All builds one instance of every registered strategy keyed by name.
func All(maxPositionFraction float64) map[string]Strategy {
	out := make(map[string]Strategy, len(Names))
	for _, name := range Names {
		s, _ := New(name, maxPositionFraction)
		out[name] = s
	}
	return out
}

// sizer implements the shared fixed-fraction sizing, at least one share.
type sizer struct {
	maxPositionFraction float64
}

func (s sizer) PositionSize(symbol string, price, accountValue float64) int {
	if price <= 0 || accountValue <= 0 {
		return 0
	}
	shares := int(math.Floor(accountValue * s.maxPositionFraction / price))
	if shares < 1 {
		return 1
	}
	return shares
}
