package strategy

import (
	"math"

	"dai-trader/internal/market"
)

// MomentumStrategy buys strength confirmed by trend and sells on reversal.
type MomentumStrategy struct {
	sizer
	RSIOversold   float64
	RSIOverbought float64
}

func (s *MomentumStrategy) Name() string { return Momentum }

// GenerateSignal needs 50 bars so the long SMA exists.
func (s *MomentumStrategy) GenerateSignal(symbol string, bars []market.Bar) Action {
	if len(bars) < 50 {
		return ActionHold
	}
	b := bars[len(bars)-1]
	if b.SMA20 == 0 || b.SMA50 == 0 {
		return ActionHold
	}

	buy := count(
		b.RSI < s.RSIOversold,
		b.MACD > b.MACDSignal,
		b.Close > b.SMA20,
		b.SMA20 > b.SMA50,
	)
	sell := count(
		b.RSI > s.RSIOverbought,
		b.MACD < b.MACDSignal,
		b.Close < b.SMA20,
	)

	switch {
	case buy >= 3:
		return ActionBuy
	case sell >= 2:
		return ActionSell
	default:
		return ActionHold
	}
}

// MeanReversionStrategy fades Bollinger band extremes.
type MeanReversionStrategy struct {
	sizer
}

func (s *MeanReversionStrategy) Name() string { return MeanReversion }

func (s *MeanReversionStrategy) GenerateSignal(symbol string, bars []market.Bar) Action {
	if len(bars) < 20 {
		return ActionHold
	}
	b := bars[len(bars)-1]
	if b.BBMiddle == 0 {
		return ActionHold
	}

	switch {
	case b.Close <= b.BBLower && b.RSI < 35:
		return ActionBuy
	case b.Close >= b.BBUpper && b.RSI > 65:
		return ActionSell
	case math.Abs(b.Close-b.BBMiddle)/b.BBMiddle < 0.01:
		// back at the mean: take the reversion
		return ActionSell
	default:
		return ActionHold
	}
}

// MLHybridStrategy scores several indicators and trades on the total.
type MLHybridStrategy struct {
	sizer
	Lookback int
}

func (s *MLHybridStrategy) Name() string { return MLHybrid }

func (s *MLHybridStrategy) GenerateSignal(symbol string, bars []market.Bar) Action {
	if len(bars) < s.Lookback {
		return ActionHold
	}
	score := Score(bars[len(bars)-1])
	switch {
	case score >= 4:
		return ActionBuy
	case score <= -3:
		return ActionSell
	default:
		return ActionHold
	}
}

// Score is the hybrid indicator score of a bar, in [-5, 6].
func Score(b market.Bar) int {
	score := 0

	switch {
	case b.RSI < 30:
		score += 2
	case b.RSI < 40:
		score++
	case b.RSI > 70:
		score -= 2
	case b.RSI > 60:
		score--
	}

	if b.MACD > b.MACDSignal {
		score++
	} else {
		score--
	}

	if b.SMA20 > 0 && b.SMA50 > 0 {
		if b.Close > b.SMA20 && b.SMA20 > b.SMA50 {
			score += 2
		} else if b.Close < b.SMA20 && b.SMA20 < b.SMA50 {
			score -= 2
		}
	}

	if b.VolumeMA > 0 && b.Volume > b.VolumeMA*1.3 {
		score++
	}
	return score
}

func count(conds ...bool) int {
	n := 0
	for _, c := range conds {
		if c {
			n++
		}
	}
	return n
}
