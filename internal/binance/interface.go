// Package binance wraps the exchange REST API behind the small surface the
// market feed, the crypto context and the spot broker need.
package binance

import "context"

// BinanceClient defines the exchange operations the trader uses
type BinanceClient interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
	Get24hrTicker(ctx context.Context, symbol string) (*Ticker24hr, error)
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	GetAccountInfo(ctx context.Context) (*AccountInfo, error)
	PlaceMarketOrder(ctx context.Context, symbol string, side Side, quantity float64) (*OrderResponse, error)
}

// Side is an order direction
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Kline represents a candlestick
type Kline struct {
	OpenTime  int64   `json:"openTime"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"closeTime"`
}

// Ticker24hr represents 24hr price change statistics
type Ticker24hr struct {
	Symbol             string  `json:"symbol"`
	PriceChange        float64 `json:"priceChange"`
	PriceChangePercent float64 `json:"priceChangePercent"`
	LastPrice          float64 `json:"lastPrice"`
	Volume             float64 `json:"volume"`
}

// AccountInfo represents spot account information
type AccountInfo struct {
	CanTrade bool           `json:"canTrade"`
	Balances []AssetBalance `json:"balances"`
}

// AssetBalance represents a single asset balance
type AssetBalance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

// Balance returns free plus locked of asset, 0 when absent.
func (a *AccountInfo) Balance(asset string) float64 {
	for _, b := range a.Balances {
		if b.Asset == asset {
			return b.Free + b.Locked
		}
	}
	return 0
}

// OrderResponse represents a filled or rejected order
type OrderResponse struct {
	Symbol              string  `json:"symbol"`
	OrderID             int64   `json:"orderId"`
	ClientOrderID       string  `json:"clientOrderId"`
	TransactTime        int64   `json:"transactTime"`
	ExecutedQty         float64 `json:"executedQty"`
	CummulativeQuoteQty float64 `json:"cummulativeQuoteQty"`
	Status              string  `json:"status"`
	Side                Side    `json:"side"`
}

// AvgPrice is the average fill price, 0 for an unfilled order.
func (o *OrderResponse) AvgPrice() float64 {
	if o.ExecutedQty <= 0 {
		return 0
	}
	return o.CummulativeQuoteQty / o.ExecutedQty
}

var _ BinanceClient = (*Client)(nil)
var _ BinanceClient = (*MockClient)(nil)
