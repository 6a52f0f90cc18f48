package binance

import (
	"context"
	"fmt"
	"strconv"

	gobinance "github.com/adshao/go-binance/v2"
)

// Client talks to the Binance spot API.
type Client struct {
	api *gobinance.Client
}

// NewClient creates a spot client. Market data endpoints work without keys.
func NewClient(apiKey, secretKey string, testnet bool) *Client {
	gobinance.UseTestnet = testnet
	return &Client{api: gobinance.NewClient(apiKey, secretKey)}
}

// GetKlines fetches candlestick data
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	raw, err := c.api.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("error fetching klines: %w", err)
	}

	klines := make([]Kline, len(raw))
	for i, k := range raw {
		klines[i] = Kline{
			OpenTime:  k.OpenTime,
			Open:      parseFloat(k.Open),
			High:      parseFloat(k.High),
			Low:       parseFloat(k.Low),
			Close:     parseFloat(k.Close),
			Volume:    parseFloat(k.Volume),
			CloseTime: k.CloseTime,
		}
	}
	return klines, nil
}

// Get24hrTicker fetches 24hr statistics for one symbol
func (c *Client) Get24hrTicker(ctx context.Context, symbol string) (*Ticker24hr, error) {
	stats, err := c.api.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("error fetching ticker: %w", err)
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("no ticker for %s", symbol)
	}
	s := stats[0]
	return &Ticker24hr{
		Symbol:             s.Symbol,
		PriceChange:        parseFloat(s.PriceChange),
		PriceChangePercent: parseFloat(s.PriceChangePercent),
		LastPrice:          parseFloat(s.LastPrice),
		Volume:             parseFloat(s.Volume),
	}, nil
}

// GetCurrentPrice fetches the latest trade price for a symbol
func (c *Client) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := c.api.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("error fetching price: %w", err)
	}
	for _, p := range prices {
		if p.Symbol == symbol {
			return parseFloat(p.Price), nil
		}
	}
	return 0, fmt.Errorf("no price for %s", symbol)
}

// GetAccountInfo fetches balances. Requires keys.
func (c *Client) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	acct, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("error fetching account: %w", err)
	}
	info := &AccountInfo{
		CanTrade: acct.CanTrade,
		Balances: make([]AssetBalance, 0, len(acct.Balances)),
	}
	for _, b := range acct.Balances {
		info.Balances = append(info.Balances, AssetBalance{
			Asset:  b.Asset,
			Free:   parseFloat(b.Free),
			Locked: parseFloat(b.Locked),
		})
	}
	return info, nil
}

// PlaceMarketOrder places a market order for quantity base units
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side Side, quantity float64) (*OrderResponse, error) {
	sideType := gobinance.SideTypeBuy
	if side == SideSell {
		sideType = gobinance.SideTypeSell
	}

	resp, err := c.api.NewCreateOrderService().
		Symbol(symbol).
		Side(sideType).
		Type(gobinance.OrderTypeMarket).
		Quantity(strconv.FormatFloat(quantity, 'f', -1, 64)).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("error placing order: %w", err)
	}

	return &OrderResponse{
		Symbol:              resp.Symbol,
		OrderID:             resp.OrderID,
		ClientOrderID:       resp.ClientOrderID,
		TransactTime:        resp.TransactTime,
		ExecutedQty:         parseFloat(resp.ExecutedQuantity),
		CummulativeQuoteQty: parseFloat(resp.CummulativeQuoteQuantity),
		Status:              string(resp.Status),
		Side:                side,
	}, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
