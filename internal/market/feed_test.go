package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dai-trader/internal/binance"
	"dai-trader/internal/errs"
)

func TestBinanceDataBars(t *testing.T) {
	mc := binance.NewMockClient(7)
	feed := NewBinanceData(mc)

	bars, err := feed.HistoricalBars(context.Background(), "SOLUSDT", "15m", 80)
	require.NoError(t, err)
	require.Len(t, bars, 80)

	last := bars[79]
	assert.InDelta(t, 220.0, last.Close, 1e-6)
	assert.NotZero(t, last.SMA50, "enriched")
	assert.NotZero(t, last.RSI)
	assert.False(t, last.Time.IsZero())
}

func TestBinanceDataErrors(t *testing.T) {
	feed := NewBinanceData(binance.NewMockClient(7))

	_, err := feed.HistoricalBars(context.Background(), "NOPE", "15m", 10)
	assert.ErrorIs(t, err, errs.ErrDataUnavailable)

	_, err = feed.LatestPrice(context.Background(), "NOPE")
	assert.ErrorIs(t, err, errs.ErrDataUnavailable)

	price, err := feed.LatestPrice(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 3900.0, price)

	open, err := feed.MarketOpen(context.Background())
	require.NoError(t, err)
	assert.True(t, open)
}

func TestFromKlines(t *testing.T) {
	bars := FromKlines([]binance.Kline{{OpenTime: 1700000000000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}})
	require.Len(t, bars, 1)
	assert.Equal(t, 1.5, bars[0].Close)
	assert.Equal(t, int64(1700000000), bars[0].Time.Unix())
}
