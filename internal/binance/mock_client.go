package binance

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// MockClient provides simulated market data for development and tests.
// Orders fill instantly at the current price.
type MockClient struct {
	prices  map[string]float64
	changes map[string]float64
	klines  map[string][]Kline
	quote   float64
	rng     *rand.Rand
	nextID  int64
	mu      sync.Mutex
}

// NewMockClient creates a mock seeded for reproducible series.
func NewMockClient(seed int64) *MockClient {
	return &MockClient{
		prices: map[string]float64{
			"BTCUSDT":  104500.00,
			"ETHUSDT":  3900.00,
			"BNBUSDT":  710.00,
			"SOLUSDT":  220.00,
			"XRPUSDT":  2.35,
			"ADAUSDT":  1.05,
			"LINKUSDT": 28.00,
			"AVAXUSDT": 50.00,
		},
		changes: make(map[string]float64),
		klines:  make(map[string][]Kline),
		quote:   10000,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// SetPrice fixes the current price of a symbol.
func (mc *MockClient) SetPrice(symbol string, price float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.prices[symbol] = price
}

// SetChange fixes the 24h change percent reported for a symbol.
func (mc *MockClient) SetChange(symbol string, pct float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.changes[symbol] = pct
}

// SetKlines replaces the generated series of a symbol.
func (mc *MockClient) SetKlines(symbol string, klines []Kline) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.klines[symbol] = klines
}

func intervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// GetKlines returns the fixed series if one was set, otherwise a random
// walk that ends at the current price.
func (mc *MockClient) GetKlines(_ context.Context, symbol, interval string, limit int) ([]Kline, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if fixed, ok := mc.klines[symbol]; ok {
		if limit > 0 && len(fixed) > limit {
			fixed = fixed[len(fixed)-limit:]
		}
		out := make([]Kline, len(fixed))
		copy(out, fixed)
		return out, nil
	}

	basePrice, ok := mc.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol %s", symbol)
	}

	step := intervalDuration(interval)
	klines := make([]Kline, limit)
	now := time.Now()

	// Walk backwards so the last close is the current price.
	closePrice := basePrice
	for i := limit - 1; i >= 0; i-- {
		closeTime := now.Add(-time.Duration(limit-1-i) * step)
		openTime := closeTime.Add(-step)

		volatility := 0.02
		change := (mc.rng.Float64() - 0.5) * volatility * 2
		open := closePrice / (1 + change)

		high := math.Max(open, closePrice) * (1 + mc.rng.Float64()*volatility*0.5)
		low := math.Min(open, closePrice) * (1 - mc.rng.Float64()*volatility*0.5)

		klines[i] = Kline{
			OpenTime:  openTime.UnixMilli(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    1000 + mc.rng.Float64()*5000,
			CloseTime: closeTime.UnixMilli(),
		}
		closePrice = open
	}
	return klines, nil
}

// Get24hrTicker returns the fixed change, or a random one within ±5%
func (mc *MockClient) Get24hrTicker(_ context.Context, symbol string) (*Ticker24hr, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	price, ok := mc.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol %s", symbol)
	}
	pct, ok := mc.changes[symbol]
	if !ok {
		pct = (mc.rng.Float64() - 0.5) * 10
	}
	return &Ticker24hr{
		Symbol:             symbol,
		PriceChange:        price * pct / 100,
		PriceChangePercent: pct,
		LastPrice:          price,
		Volume:             1000000 + mc.rng.Float64()*10000000,
	}, nil
}

// GetCurrentPrice returns the simulated current price
func (mc *MockClient) GetCurrentPrice(_ context.Context, symbol string) (float64, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	price, ok := mc.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("unknown symbol %s", symbol)
	}
	return price, nil
}

// GetAccountInfo returns the simulated quote balance
func (mc *MockClient) GetAccountInfo(_ context.Context) (*AccountInfo, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return &AccountInfo{
		CanTrade: true,
		Balances: []AssetBalance{{Asset: "USDT", Free: mc.quote}},
	}, nil
}

// PlaceMarketOrder fills the whole quantity at the current price and moves
// the quote balance.
func (mc *MockClient) PlaceMarketOrder(_ context.Context, symbol string, side Side, quantity float64) (*OrderResponse, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	price, ok := mc.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol %s", symbol)
	}
	notional := price * quantity
	if side == SideBuy {
		if notional > mc.quote {
			return nil, fmt.Errorf("insufficient balance: need %.2f, have %.2f", notional, mc.quote)
		}
		mc.quote -= notional
	} else {
		mc.quote += notional
	}

	mc.nextID++
	return &OrderResponse{
		Symbol:              symbol,
		OrderID:             mc.nextID,
		ClientOrderID:       fmt.Sprintf("mock_%d", mc.nextID),
		TransactTime:        time.Now().UnixMilli(),
		ExecutedQty:         quantity,
		CummulativeQuoteQty: notional,
		Status:              "FILLED",
		Side:                side,
	}, nil
}
