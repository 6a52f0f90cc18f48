package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dai-trader/internal/binance"
	"dai-trader/internal/errs"
)

func TestPaperRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := binance.NewMockClient(1)
	mc.SetPrice("SOLUSDT", 100)
	fixed := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	b := NewPaper(mc, 10000, WithClock(func() time.Time { return fixed }))

	o, err := b.PlaceMarketOrder(ctx, "SOLUSDT", 20, Buy)
	require.NoError(t, err)
	assert.Equal(t, 20, o.Qty)
	assert.Equal(t, 100.0, o.FilledPrice)
	assert.Equal(t, fixed, o.SubmittedAt)
	assert.NotEmpty(t, o.ID)

	mc.SetPrice("SOLUSDT", 110)
	_, err = b.PlaceMarketOrder(ctx, "SOLUSDT", 10, Buy)
	require.NoError(t, err)

	positions, err := b.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	p := positions[0]
	assert.Equal(t, 30, p.Qty)
	assert.InDelta(t, 3100.0/30, p.AvgEntryPrice, 1e-9)
	assert.InDelta(t, 3300, p.MarketValue, 1e-9)
	assert.InDelta(t, 200, p.UnrealizedPL, 1e-9)

	acct, err := b.Account(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 6900, acct.Cash, 1e-9)
	assert.InDelta(t, 10200, acct.PortfolioValue, 1e-9)

	o, err = b.ClosePosition(ctx, "SOLUSDT")
	require.NoError(t, err)
	assert.Equal(t, 30, o.Qty)
	acct, err = b.Account(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10200, acct.Cash, 1e-9)
	assert.InDelta(t, 10200, acct.PortfolioValue, 1e-9)
}

func TestPaperRejectsWithoutMutation(t *testing.T) {
	ctx := context.Background()
	mc := binance.NewMockClient(1)
	mc.SetPrice("LINKUSDT", 50)
	b := NewPaper(mc, 1000)

	_, err := b.PlaceMarketOrder(ctx, "LINKUSDT", 21, Buy)
	assert.ErrorIs(t, err, errs.ErrExecution)

	_, err = b.PlaceMarketOrder(ctx, "LINKUSDT", 1, Sell)
	assert.ErrorIs(t, err, errs.ErrExecution)

	_, err = b.PlaceMarketOrder(ctx, "LINKUSDT", 0, Buy)
	assert.ErrorIs(t, err, errs.ErrExecution)

	_, err = b.PlaceMarketOrder(ctx, "NOPEUSDT", 1, Buy)
	assert.ErrorIs(t, err, errs.ErrExecution)

	_, err = b.ClosePosition(ctx, "LINKUSDT")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	book := b.Snapshot()
	assert.Equal(t, 1000.0, book.Cash)
	assert.Empty(t, book.Lots)
}

func TestLiveFollowsExchangeFills(t *testing.T) {
	ctx := context.Background()
	mc := binance.NewMockClient(1)
	mc.SetPrice("ADAUSDT", 2)
	b := NewLive(mc)
	assert.False(t, b.IsPaper())

	o, err := b.PlaceMarketOrder(ctx, "ADAUSDT", 500, Buy)
	require.NoError(t, err)
	assert.Equal(t, "mock_1", o.ID)
	assert.Equal(t, 2.0, o.FilledPrice)

	acct, err := b.Account(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 9000, acct.Cash, 1e-9, "cash comes from the exchange balance")
	assert.InDelta(t, 10000, acct.PortfolioValue, 1e-9)

	_, err = b.PlaceMarketOrder(ctx, "ADAUSDT", 10000, Buy)
	assert.ErrorIs(t, err, errs.ErrExecution)
	assert.Equal(t, 500, b.Snapshot().Lots["ADAUSDT"].Qty)
}

func TestCloseAllAndRestore(t *testing.T) {
	ctx := context.Background()
	mc := binance.NewMockClient(1)
	b := NewPaper(mc, 5000)
	b.Restore(Book{Cash: 1000, Lots: map[string]Lot{
		"XRPUSDT":  {Qty: 100, AvgPrice: 2},
		"ADAUSDT":  {Qty: 200, AvgPrice: 1},
		"GHOSTUSD": {Qty: 0, AvgPrice: 1},
	}})

	book := b.Snapshot()
	assert.Equal(t, 1000.0, book.Cash)
	assert.Len(t, book.Lots, 2)

	orders, err := b.CloseAll(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "ADAUSDT", orders[0].Symbol)
	assert.Equal(t, "XRPUSDT", orders[1].Symbol)

	positions, err := b.Positions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
	assert.InDelta(t, 1000+200*1.05+100*2.35, b.Snapshot().Cash, 1e-9)
}
