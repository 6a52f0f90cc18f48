// Package signals defines the per-symbol intelligence records the
// aggregator consumes and the guarded providers that produce them.
package signals

import "strings"

// Source names an intelligence provider.
type Source string

const (
	SourceOvernight Source = "overnight"
	SourceNews      Source = "news"
	SourceOptions   Source = "options"
	SourceInsider   Source = "insider"
	SourceSocial    Source = "social"
	SourceSqueeze   Source = "short_squeeze"
	SourceTrends    Source = "search_trends"
)

// Sources lists every per-symbol source in aggregation order.
var Sources = []Source{
	SourceOvernight, SourceNews, SourceOptions, SourceInsider,
	SourceSocial, SourceSqueeze, SourceTrends,
}

// Label is a source-specific classification.
type Label string

const (
	LabelNeutral          Label = "NEUTRAL"
	LabelBullish          Label = "BULLISH"
	LabelBearish          Label = "BEARISH"
	LabelUp               Label = "UP"
	LabelDown             Label = "DOWN"
	LabelActiveSqueeze    Label = "ACTIVE_SQUEEZE"
	LabelSqueezePotential Label = "SQUEEZE_POTENTIAL"
	LabelSurging          Label = "SURGING"
	LabelRising           Label = "RISING"
	LabelFalling          Label = "FALLING"
	LabelRiskOn           Label = "RISK_ON"
	LabelRiskOff          Label = "RISK_OFF"
)

// Direction is the market view a label expresses.
type Direction int

const (
	DirectionNeutral Direction = iota
	DirectionBullish
	DirectionBearish
)

// Direction maps a label to its market view.
func (l Label) Direction() Direction {
	switch Label(strings.ToUpper(string(l))) {
	case LabelBullish, LabelUp, LabelActiveSqueeze, LabelSqueezePotential,
		LabelSurging, LabelRising, LabelRiskOn:
		return DirectionBullish
	case LabelBearish, LabelDown, LabelFalling, LabelRiskOff:
		return DirectionBearish
	default:
		return DirectionNeutral
	}
}

// Signal is one source's view of one symbol.
type Signal struct {
	Source     Source   `json:"source"`
	Label      Label    `json:"label"`
	Confidence int      `json:"confidence"` // 0-100
	Reasons    []string `json:"reasons,omitempty"`

	// Boost is the position-size multiplier this source suggests.
	Boost float64 `json:"boost"`

	// Source-specific detail used by boosts and tier classification.
	Score        float64 `json:"score,omitempty"` // news sentiment in [-1, 1]
	ArticleCount int     `json:"article_count,omitempty"`
	AvoidTrading bool    `json:"avoid_trading,omitempty"`
	Mentions     int     `json:"mentions,omitempty"`
	BuyCount     int     `json:"buy_count,omitempty"`
	SellCount    int     `json:"sell_count,omitempty"`

	// Degraded marks a neutral default produced after a provider failure.
	Degraded bool `json:"degraded,omitempty"`
}

// Neutral is the default a source reports when it has nothing to say.
func Neutral(source Source, reason string) Signal {
	s := Signal{Source: source, Label: LabelNeutral, Boost: 1.0}
	if reason != "" {
		s.Reasons = []string{reason}
	}
	return s
}

// Normalize clamps confidence to [0, 100] and upper-cases the label.
func (s Signal) Normalize() Signal {
	s.Confidence = max(0, min(100, s.Confidence))
	s.Label = Label(strings.ToUpper(string(s.Label)))
	if s.Label == "" {
		s.Label = LabelNeutral
	}
	return s
}

// Direction is the direction of the signal's label.
func (s Signal) Direction() Direction { return s.Label.Direction() }
