package broker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dai-trader/internal/binance"
	"dai-trader/internal/errs"
	"dai-trader/internal/logging"
)

// Lot is the quantity held of one symbol and its average cost.
type Lot struct {
	Qty      int     `json:"qty"`
	AvgPrice float64 `json:"avg_price"`
}

// Book is the broker's persistent state.
type Book struct {
	Cash float64        `json:"cash"`
	Lots map[string]Lot `json:"lots"`
}

// Spot trades whole units of spot symbols. In paper mode orders fill
// locally at the last price; in live mode they go to the exchange and the
// book follows the confirmed fills.
type Spot struct {
	client binance.BinanceClient
	paper  bool
	quote  string
	now    func() time.Time
	logger *logging.Logger

	mu   sync.Mutex
	cash float64 // paper only
	lots map[string]Lot
}

// SpotOption configures a Spot broker.
type SpotOption func(*Spot)

// WithClock replaces time.Now for order timestamps.
func WithClock(now func() time.Time) SpotOption {
	return func(s *Spot) { s.now = now }
}

// WithQuote sets the quote asset, USDT by default.
func WithQuote(asset string) SpotOption {
	return func(s *Spot) { s.quote = asset }
}

// NewPaper creates a paper broker with starting cash. Prices still come
// from client.
func NewPaper(client binance.BinanceClient, cash float64, opts ...SpotOption) *Spot {
	s := newSpot(client, true, opts...)
	s.cash = cash
	return s
}

// NewLive creates a broker that places real exchange orders.
func NewLive(client binance.BinanceClient, opts ...SpotOption) *Spot {
	return newSpot(client, false, opts...)
}

func newSpot(client binance.BinanceClient, paper bool, opts ...SpotOption) *Spot {
	s := &Spot{
		client: client,
		paper:  paper,
		quote:  "USDT",
		now:    time.Now,
		logger: logging.WithComponent("broker"),
		lots:   make(map[string]Lot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsPaper reports whether orders fill locally.
func (s *Spot) IsPaper() bool { return s.paper }

func (s *Spot) quoteBalance(ctx context.Context) (float64, error) {
	if s.paper {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.cash, nil
	}
	info, err := s.client.GetAccountInfo(ctx)
	if err != nil {
		return 0, errs.Data("broker.Account", err)
	}
	return info.Balance(s.quote), nil
}

// Account values the book at current prices.
func (s *Spot) Account(ctx context.Context) (Account, error) {
	cash, err := s.quoteBalance(ctx)
	if err != nil {
		return Account{}, err
	}
	positions, err := s.Positions(ctx)
	if err != nil {
		return Account{}, err
	}
	a := Account{Cash: cash, BuyingPower: cash, PortfolioValue: cash}
	for _, p := range positions {
		a.PortfolioValue += p.MarketValue
	}
	return a, nil
}

func (s *Spot) snapshotLots() map[string]Lot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Lot, len(s.lots))
	for k, v := range s.lots {
		out[k] = v
	}
	return out
}

// Positions lists holdings sorted by symbol.
func (s *Spot) Positions(ctx context.Context) ([]Position, error) {
	lots := s.snapshotLots()
	symbols := make([]string, 0, len(lots))
	for sym := range lots {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	out := make([]Position, 0, len(symbols))
	for _, sym := range symbols {
		lot := lots[sym]
		price, err := s.client.GetCurrentPrice(ctx, sym)
		if err != nil {
			return nil, errs.Data("broker.Positions", fmt.Errorf("%s: %w", sym, err))
		}
		p := Position{
			Symbol:        sym,
			Qty:           lot.Qty,
			AvgEntryPrice: lot.AvgPrice,
			CurrentPrice:  price,
			MarketValue:   float64(lot.Qty) * price,
			UnrealizedPL:  float64(lot.Qty) * (price - lot.AvgPrice),
		}
		if lot.AvgPrice > 0 {
			p.UnrealizedPLPct = (price - lot.AvgPrice) / lot.AvgPrice
		}
		out = append(out, p)
	}
	return out, nil
}

// PlaceMarketOrder buys or sells qty whole units.
func (s *Spot) PlaceMarketOrder(ctx context.Context, symbol string, qty int, side Side) (*Order, error) {
	const op = "broker.PlaceMarketOrder"
	if qty <= 0 {
		return nil, errs.Execution(op, fmt.Errorf("%s: quantity must be positive, got %d", symbol, qty))
	}
	if side != Buy && side != Sell {
		return nil, errs.Execution(op, fmt.Errorf("unknown side %q", side))
	}
	if side == Sell {
		s.mu.Lock()
		held := s.lots[symbol].Qty
		s.mu.Unlock()
		if held < qty {
			return nil, errs.Execution(op, fmt.Errorf("%s: sell %d exceeds holding %d", symbol, qty, held))
		}
	}

	var (
		order *Order
		err   error
	)
	if s.paper {
		order, err = s.fillPaper(ctx, symbol, qty, side)
	} else {
		order, err = s.fillLive(ctx, symbol, qty, side)
	}
	if err != nil {
		s.logger.Error("order failed", "symbol", symbol, "side", side, "qty", qty, "error", err)
		return nil, err
	}

	s.logger.Info("order filled",
		"order_id", order.ID,
		"symbol", symbol,
		"side", side,
		"qty", order.Qty,
		"price", order.FilledPrice,
		"paper", s.paper,
	)
	return order, nil
}

func (s *Spot) fillPaper(ctx context.Context, symbol string, qty int, side Side) (*Order, error) {
	const op = "broker.PlaceMarketOrder"
	price, err := s.client.GetCurrentPrice(ctx, symbol)
	if err != nil {
		return nil, errs.Execution(op, fmt.Errorf("%s: price: %w", symbol, err))
	}
	if price <= 0 {
		return nil, errs.Execution(op, fmt.Errorf("%s: no price", symbol))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	notional := float64(qty) * price
	switch side {
	case Buy:
		if notional > s.cash {
			return nil, errs.Execution(op, fmt.Errorf("%s: insufficient cash %.2f for %.2f", symbol, s.cash, notional))
		}
		s.cash -= notional
	case Sell:
		if s.lots[symbol].Qty < qty {
			return nil, errs.Execution(op, fmt.Errorf("%s: holding changed", symbol))
		}
		s.cash += notional
	}
	s.apply(symbol, qty, price, side)

	return &Order{
		ID:          uuid.New().String(),
		Symbol:      symbol,
		Side:        side,
		Qty:         qty,
		FilledPrice: price,
		Status:      "FILLED",
		SubmittedAt: s.now(),
	}, nil
}

func (s *Spot) fillLive(ctx context.Context, symbol string, qty int, side Side) (*Order, error) {
	const op = "broker.PlaceMarketOrder"
	bside := binance.SideBuy
	if side == Sell {
		bside = binance.SideSell
	}
	resp, err := s.client.PlaceMarketOrder(ctx, symbol, bside, float64(qty))
	if err != nil {
		return nil, errs.Execution(op, fmt.Errorf("%s: %w", symbol, err))
	}
	filled := int(math.Floor(resp.ExecutedQty + 1e-9))
	if filled <= 0 {
		return nil, errs.Execution(op, fmt.Errorf("%s: order %d not filled (status %s)", symbol, resp.OrderID, resp.Status))
	}

	s.mu.Lock()
	s.apply(symbol, filled, resp.AvgPrice(), side)
	s.mu.Unlock()

	id := resp.ClientOrderID
	if id == "" {
		id = fmt.Sprintf("%d", resp.OrderID)
	}
	submitted := s.now()
	if resp.TransactTime > 0 {
		submitted = time.UnixMilli(resp.TransactTime)
	}
	return &Order{
		ID:          id,
		Symbol:      symbol,
		Side:        side,
		Qty:         filled,
		FilledPrice: resp.AvgPrice(),
		Status:      resp.Status,
		SubmittedAt: submitted,
	}, nil
}

// apply updates the lot for a fill. Caller holds mu.
func (s *Spot) apply(symbol string, qty int, price float64, side Side) {
	lot := s.lots[symbol]
	switch side {
	case Buy:
		cost := float64(lot.Qty)*lot.AvgPrice + float64(qty)*price
		lot.Qty += qty
		lot.AvgPrice = cost / float64(lot.Qty)
	case Sell:
		lot.Qty -= qty
	}
	if lot.Qty <= 0 {
		delete(s.lots, symbol)
		return
	}
	s.lots[symbol] = lot
}

// ClosePosition sells the whole holding of symbol.
func (s *Spot) ClosePosition(ctx context.Context, symbol string) (*Order, error) {
	s.mu.Lock()
	qty := s.lots[symbol].Qty
	s.mu.Unlock()
	if qty <= 0 {
		return nil, errs.NotFound("broker.ClosePosition", symbol)
	}
	return s.PlaceMarketOrder(ctx, symbol, qty, Sell)
}

// CloseAll closes every holding, continuing past failures.
func (s *Spot) CloseAll(ctx context.Context) ([]Order, error) {
	lots := s.snapshotLots()
	symbols := make([]string, 0, len(lots))
	for sym := range lots {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var (
		orders  []Order
		errList []error
	)
	for _, sym := range symbols {
		o, err := s.ClosePosition(ctx, sym)
		if err != nil {
			errList = append(errList, err)
			continue
		}
		orders = append(orders, *o)
	}
	return orders, errors.Join(errList...)
}

// Snapshot returns the book for persistence.
func (s *Spot) Snapshot() Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := Book{Cash: s.cash, Lots: make(map[string]Lot, len(s.lots))}
	for k, v := range s.lots {
		b.Lots[k] = v
	}
	return b
}

// Restore replaces the book. Live brokers ignore the stored cash.
func (s *Spot) Restore(b Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paper {
		s.cash = b.Cash
	}
	s.lots = make(map[string]Lot, len(b.Lots))
	for k, v := range b.Lots {
		if v.Qty > 0 {
			s.lots[k] = v
		}
	}
}
