// Package broker defines the execution and market data contracts of the
// engine and a spot implementation over the exchange client.
package broker

import (
	"context"
	"time"

	"dai-trader/internal/market"
)

// Side is an order direction.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Account is the account's cash and total value in the quote asset.
type Account struct {
	Cash           float64 `json:"cash"`
	BuyingPower    float64 `json:"buying_power"`
	PortfolioValue float64 `json:"portfolio_value"`
}

// Position is an open holding marked to the current price.
type Position struct {
	Symbol          string  `json:"symbol"`
	Qty             int     `json:"qty"`
	AvgEntryPrice   float64 `json:"avg_entry_price"`
	CurrentPrice    float64 `json:"current_price"`
	MarketValue     float64 `json:"market_value"`
	UnrealizedPL    float64 `json:"unrealized_pl"`
	UnrealizedPLPct float64 `json:"unrealized_pl_pct"` // fraction, -0.06 is down 6%
}

// Order is a filled market order.
type Order struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Qty         int       `json:"qty"`
	FilledPrice float64   `json:"filled_price"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Broker executes orders. Failures carry errs.ErrExecution and leave the
// book unchanged.
type Broker interface {
	Account(ctx context.Context) (Account, error)
	Positions(ctx context.Context) ([]Position, error)
	PlaceMarketOrder(ctx context.Context, symbol string, qty int, side Side) (*Order, error)
	ClosePosition(ctx context.Context, symbol string) (*Order, error)
	CloseAll(ctx context.Context) ([]Order, error)
}

// MarketData serves bars and prices. Failures carry errs.ErrDataUnavailable.
type MarketData interface {
	HistoricalBars(ctx context.Context, symbol, interval string, limit int) ([]market.Bar, error)
	LatestPrice(ctx context.Context, symbol string) (float64, error)
	MarketOpen(ctx context.Context) (bool, error)
}

var _ MarketData = (*market.BinanceData)(nil)
var _ Broker = (*Spot)(nil)
