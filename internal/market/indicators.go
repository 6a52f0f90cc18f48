package market

import (
	"github.com/markcheno/go-talib"
)

// Indicator periods.
const (
	SMAShortPeriod = 20
	SMALongPeriod  = 50
	RSIPeriod      = 14
	MACDFast       = 12
	MACDSlow       = 26
	MACDSignal     = 9
	BBPeriod       = 20
	BBStdDev       = 2.0
	ATRPeriod      = 14
	VolumeMAPeriod = 20
)

// Enrich computes indicators for every bar in place and returns the slice.
// Series too short for an indicator leave that field zero.
func Enrich(bars []Bar) []Bar {
	n := len(bars)
	if n == 0 {
		return bars
	}

	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
		volumes[i] = b.Volume
	}

	if n >= SMAShortPeriod {
		fill(bars, talib.Sma(closes, SMAShortPeriod), SMAShortPeriod-1, func(b *Bar, v float64) { b.SMA20 = v })
	}
	if n >= SMALongPeriod {
		fill(bars, talib.Sma(closes, SMALongPeriod), SMALongPeriod-1, func(b *Bar, v float64) { b.SMA50 = v })
	}
	if n > RSIPeriod {
		fill(bars, talib.Rsi(closes, RSIPeriod), RSIPeriod, func(b *Bar, v float64) { b.RSI = v })
	}
	if lookback := MACDSlow + MACDSignal - 2; n > lookback {
		macd, signal, _ := talib.Macd(closes, MACDFast, MACDSlow, MACDSignal)
		fill(bars, macd, lookback, func(b *Bar, v float64) { b.MACD = v })
		fill(bars, signal, lookback, func(b *Bar, v float64) { b.MACDSignal = v })
	}
	if n >= BBPeriod {
		upper, middle, lower := talib.BBands(closes, BBPeriod, BBStdDev, BBStdDev, talib.SMA)
		fill(bars, upper, BBPeriod-1, func(b *Bar, v float64) { b.BBUpper = v })
		fill(bars, middle, BBPeriod-1, func(b *Bar, v float64) { b.BBMiddle = v })
		fill(bars, lower, BBPeriod-1, func(b *Bar, v float64) { b.BBLower = v })
	}
	if n > ATRPeriod {
		fill(bars, talib.Atr(highs, lows, closes, ATRPeriod), ATRPeriod, func(b *Bar, v float64) { b.ATR = v })
	}
	if n >= VolumeMAPeriod {
		fill(bars, talib.Sma(volumes, VolumeMAPeriod), VolumeMAPeriod-1, func(b *Bar, v float64) { b.VolumeMA = v })
	}

	for i := range bars {
		if i > 0 && bars[i-1].Close > 0 {
			bars[i].PriceChangePct = (bars[i].Close - bars[i-1].Close) / bars[i-1].Close * 100
		}
		bars[i].VolumeRatio = 1.0
		if bars[i].VolumeMA > 0 {
			bars[i].VolumeRatio = bars[i].Volume / bars[i].VolumeMA
		}
	}
	return bars
}

func fill(bars []Bar, values []float64, from int, set func(*Bar, float64)) {
	for i := from; i < len(bars) && i < len(values); i++ {
		set(&bars[i], values[i])
	}
}
