package market

import (
	"context"
	"fmt"
	"time"

	"dai-trader/internal/binance"
	"dai-trader/internal/errs"
	"dai-trader/internal/logging"
)

// BinanceData serves indicator-enriched bars and prices from the exchange.
type BinanceData struct {
	client binance.BinanceClient
	logger *logging.Logger
}

// NewBinanceData creates a market data feed over client.
func NewBinanceData(client binance.BinanceClient) *BinanceData {
	return &BinanceData{
		client: client,
		logger: logging.WithComponent("market"),
	}
}

// HistoricalBars returns up to limit enriched bars, oldest first. An empty
// series is not an error.
func (d *BinanceData) HistoricalBars(ctx context.Context, symbol, interval string, limit int) ([]Bar, error) {
	klines, err := d.client.GetKlines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, errs.Data("market.HistoricalBars", fmt.Errorf("%s: %w", symbol, err))
	}
	bars := Enrich(FromKlines(klines))
	d.logger.Debug("bars fetched", "symbol", symbol, "interval", interval, "count", len(bars))
	return bars, nil
}

// LatestPrice returns the last trade price.
func (d *BinanceData) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	price, err := d.client.GetCurrentPrice(ctx, symbol)
	if err != nil {
		return 0, errs.Data("market.LatestPrice", fmt.Errorf("%s: %w", symbol, err))
	}
	if price <= 0 {
		return 0, errs.Data("market.LatestPrice", fmt.Errorf("%s: no price", symbol))
	}
	return price, nil
}

// MarketOpen is always true: spot crypto trades around the clock.
func (d *BinanceData) MarketOpen(context.Context) (bool, error) {
	return true, nil
}

// FromKlines converts exchange candles to bars without indicators.
func FromKlines(klines []binance.Kline) []Bar {
	bars := make([]Bar, len(klines))
	for i, k := range klines {
		bars[i] = Bar{
			Time:   time.UnixMilli(k.OpenTime).UTC(),
			Open:   k.Open,
			High:   k.High,
			Low:    k.Low,
			Close:  k.Close,
			Volume: k.Volume,
		}
	}
	return bars
}
