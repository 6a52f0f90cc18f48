package binance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockKlinesEndAtCurrentPrice(t *testing.T) {
	mc := NewMockClient(42)
	klines, err := mc.GetKlines(context.Background(), "ETHUSDT", "15m", 60)
	require.NoError(t, err)
	require.Len(t, klines, 60)

	assert.InDelta(t, 3900.0, klines[59].Close, 1e-6)
	for i := 1; i < len(klines); i++ {
		assert.Less(t, klines[i-1].OpenTime, klines[i].OpenTime)
		assert.InDelta(t, klines[i-1].Close, klines[i].Open, 1e-6, "series is continuous")
		assert.GreaterOrEqual(t, klines[i].High, klines[i].Low)
	}
}

func TestMockFixedKlines(t *testing.T) {
	mc := NewMockClient(1)
	mc.SetKlines("ETHUSDT", []Kline{{Close: 1}, {Close: 2}, {Close: 3}})

	got, err := mc.GetKlines(context.Background(), "ETHUSDT", "1h", 2)
	require.NoError(t, err)
	assert.Equal(t, []Kline{{Close: 2}, {Close: 3}}, got)
}

func TestMockUnknownSymbol(t *testing.T) {
	mc := NewMockClient(1)
	_, err := mc.GetCurrentPrice(context.Background(), "NOPEUSDT")
	assert.Error(t, err)
	_, err = mc.GetKlines(context.Background(), "NOPEUSDT", "1h", 10)
	assert.Error(t, err)
}

func TestMockOrdersMoveBalance(t *testing.T) {
	ctx := context.Background()
	mc := NewMockClient(1)
	mc.SetPrice("SOLUSDT", 100)

	buy, err := mc.PlaceMarketOrder(ctx, "SOLUSDT", SideBuy, 20)
	require.NoError(t, err)
	assert.Equal(t, "FILLED", buy.Status)
	assert.InDelta(t, 100, buy.AvgPrice(), 1e-9)

	info, err := mc.GetAccountInfo(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 8000, info.Balance("USDT"), 1e-9)
	assert.Zero(t, info.Balance("BTC"))

	_, err = mc.PlaceMarketOrder(ctx, "SOLUSDT", SideBuy, 1000)
	assert.Error(t, err)

	mc.SetPrice("SOLUSDT", 110)
	_, err = mc.PlaceMarketOrder(ctx, "SOLUSDT", SideSell, 20)
	require.NoError(t, err)
	info, _ = mc.GetAccountInfo(ctx)
	assert.InDelta(t, 10200, info.Balance("USDT"), 1e-9)
}

func TestMockTicker(t *testing.T) {
	mc := NewMockClient(1)
	mc.SetChange("BTCUSDT", -12)
	tk, err := mc.Get24hrTicker(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, -12.0, tk.PriceChangePercent)
}

func TestAvgPriceUnfilled(t *testing.T) {
	assert.Zero(t, (&OrderResponse{}).AvgPrice())
}
