// Package market holds the bar record shared by strategies and the learning
// agent, and computes indicators on it.
package market

import "time"

// Bar is one OHLCV candle with its indicators. Indicator fields stay zero
// until enough history exists to compute them.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`

	SMA20      float64 `json:"sma_20"`
	SMA50      float64 `json:"sma_50"`
	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	BBUpper    float64 `json:"bb_upper"`
	BBMiddle   float64 `json:"bb_middle"`
	BBLower    float64 `json:"bb_lower"`
	ATR        float64 `json:"atr"`
	VolumeMA   float64 `json:"volume_ma"`

	// PriceChangePct is the 1-bar close change in percent units (0.5 = 0.5%).
	PriceChangePct float64 `json:"price_change_pct"`
	// VolumeRatio is Volume / VolumeMA, 1.0 when the average is unknown.
	VolumeRatio float64 `json:"volume_ratio"`
}

// Latest returns the last bar and false for an empty series.
func Latest(bars []Bar) (Bar, bool) {
	if len(bars) == 0 {
		return Bar{}, false
	}
	return bars[len(bars)-1], true
}
