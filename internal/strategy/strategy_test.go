package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dai-trader/internal/market"
)

func series(n int, last market.Bar) []market.Bar {
	bars := make([]market.Bar, n)
	bars[n-1] = last
	return bars
}

func TestFactory(t *testing.T) {
	for _, name := range Names {
		s, ok := New(name, 0.1)
		assert.True(t, ok)
		assert.Equal(t, name, s.Name())
	}

	s, ok := New("martingale", 0.1)
	assert.False(t, ok)
	assert.Equal(t, Momentum, s.Name())

	assert.Len(t, All(0.1), 3)
}

func TestMomentum(t *testing.T) {
	s, _ := New(Momentum, 0.1)

	tests := []struct {
		name string
		bar  market.Bar
		n    int
		want Action
	}{
		{
			name: "trend plus macd plus price",
			bar:  market.Bar{Close: 105, SMA20: 100, SMA50: 95, RSI: 55, MACD: 1, MACDSignal: 0.5},
			n:    50,
			want: ActionBuy,
		},
		{
			name: "reversal",
			bar:  market.Bar{Close: 95, SMA20: 100, SMA50: 98, RSI: 75, MACD: -1, MACDSignal: 0},
			n:    50,
			want: ActionSell,
		},
		{
			name: "mixed",
			bar:  market.Bar{Close: 101, SMA20: 100, SMA50: 102, RSI: 50, MACD: -1, MACDSignal: 0},
			n:    50,
			want: ActionHold,
		},
		{
			name: "not enough history",
			bar:  market.Bar{Close: 105, SMA20: 100, SMA50: 95, RSI: 55, MACD: 1, MACDSignal: 0.5},
			n:    49,
			want: ActionHold,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.GenerateSignal("AAPL", series(tt.n, tt.bar)))
		})
	}
}

func TestMeanReversion(t *testing.T) {
	s, _ := New(MeanReversion, 0.1)
	bands := market.Bar{BBUpper: 110, BBMiddle: 100, BBLower: 90}

	buy := bands
	buy.Close, buy.RSI = 89, 30
	assert.Equal(t, ActionBuy, s.GenerateSignal("X", series(20, buy)))

	sell := bands
	sell.Close, sell.RSI = 111, 70
	assert.Equal(t, ActionSell, s.GenerateSignal("X", series(20, sell)))

	mean := bands
	mean.Close, mean.RSI = 100.5, 50
	assert.Equal(t, ActionSell, s.GenerateSignal("X", series(20, mean)))

	between := bands
	between.Close, between.RSI = 95, 50
	assert.Equal(t, ActionHold, s.GenerateSignal("X", series(20, between)))
	assert.Equal(t, ActionHold, s.GenerateSignal("X", series(19, buy)))
}

func TestMLHybridScore(t *testing.T) {
	strong := market.Bar{RSI: 25, MACD: 1, MACDSignal: 0, Close: 110, SMA20: 105, SMA50: 100, Volume: 2000, VolumeMA: 1000}
	assert.Equal(t, 6, Score(strong))

	weak := market.Bar{RSI: 75, MACD: -1, MACDSignal: 0, Close: 90, SMA20: 95, SMA50: 100}
	assert.Equal(t, -5, Score(weak))

	s, _ := New(MLHybrid, 0.1)
	assert.Equal(t, ActionBuy, s.GenerateSignal("X", series(20, strong)))
	assert.Equal(t, ActionSell, s.GenerateSignal("X", series(20, weak)))
	assert.Equal(t, ActionHold, s.GenerateSignal("X", series(20, market.Bar{RSI: 50})))
}

func TestPositionSize(t *testing.T) {
	s, _ := New(Momentum, 0.1)
	assert.Equal(t, 50, s.PositionSize("X", 100, 50000))
	assert.Equal(t, 1, s.PositionSize("X", 10000, 50000), "at least one share")
	assert.Zero(t, s.PositionSize("X", 0, 50000))
}

func TestActionValid(t *testing.T) {
	assert.True(t, ActionBuy.Valid())
	assert.False(t, Action("SHORT").Valid())
	assert.Equal(t, []Action{ActionHold, ActionSell, ActionBuy}, Actions)
}
