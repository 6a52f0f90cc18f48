package risk

import (
	"sync"

	"dai-trader/internal/logging"
)

// TrailingStopManager stores the protective levels of open positions
type TrailingStopManager struct {
	positions map[string]*TrailingPosition
	logger    *logging.Logger
	mu        sync.RWMutex
}

// TrailingPosition tracks the levels of one position
type TrailingPosition struct {
	Symbol           string  `json:"symbol"`
	Side             Side    `json:"side"`
	EntryPrice       float64 `json:"entry_price"`
	CurrentStopLoss  float64 `json:"current_stop_loss"`
	OriginalStopLoss float64 `json:"original_stop_loss"`
	TakeProfit       float64 `json:"take_profit"`
	Trailing         bool    `json:"trailing"` // stop has moved at least once
}

// StopUpdate represents a stop loss move
type StopUpdate struct {
	Symbol      string
	OldStopLoss float64
	NewStopLoss float64
}

// NewTrailingStopManager creates a new trailing stop manager
func NewTrailingStopManager(logger *logging.Logger) *TrailingStopManager {
	if logger == nil {
		logger = logging.WithComponent("risk")
	}
	return &TrailingStopManager{
		positions: make(map[string]*TrailingPosition),
		logger:    logger,
	}
}

func (tsm *TrailingStopManager) entry(symbol string, side Side, entryPrice float64) *TrailingPosition {
	pos, ok := tsm.positions[symbol]
	if !ok {
		pos = &TrailingPosition{Symbol: symbol, Side: side, EntryPrice: entryPrice}
		tsm.positions[symbol] = pos
	}
	return pos
}

// SetStop stores the initial stop for a position
func (tsm *TrailingStopManager) SetStop(symbol string, side Side, entryPrice, stop float64) {
	tsm.mu.Lock()
	defer tsm.mu.Unlock()

	pos := tsm.entry(symbol, side, entryPrice)
	pos.CurrentStopLoss = stop
	pos.OriginalStopLoss = stop
	pos.Trailing = false
	tsm.logger.Debug("stop loss set", "symbol", symbol, "side", side, "entry", entryPrice, "stop", stop)
}

// SetTarget stores the take-profit level for a position
func (tsm *TrailingStopManager) SetTarget(symbol string, side Side, entryPrice, target float64) {
	tsm.mu.Lock()
	defer tsm.mu.Unlock()

	tsm.entry(symbol, side, entryPrice).TakeProfit = target
	tsm.logger.Debug("take profit set", "symbol", symbol, "side", side, "entry", entryPrice, "target", target)
}

// RemovePosition removes a position from tracking
func (tsm *TrailingStopManager) RemovePosition(symbol string) {
	tsm.mu.Lock()
	defer tsm.mu.Unlock()
	delete(tsm.positions, symbol)
}

// Restore replaces every tracked position
func (tsm *TrailingStopManager) Restore(positions []TrailingPosition) {
	tsm.mu.Lock()
	defer tsm.mu.Unlock()

	tsm.positions = make(map[string]*TrailingPosition, len(positions))
	for _, p := range positions {
		p := p
		tsm.positions[p.Symbol] = &p
	}
}

// Trail moves the stop toward the current price when the position is in
// profit. Longs only move up, shorts only move down. Returns nil when the
// stop is unchanged.
func (tsm *TrailingStopManager) Trail(symbol string, currentPrice, entryPrice, trailingPct float64) *StopUpdate {
	if currentPrice <= 0 || entryPrice <= 0 {
		return nil
	}

	tsm.mu.Lock()
	defer tsm.mu.Unlock()

	pos, exists := tsm.positions[symbol]
	if !exists || pos.CurrentStopLoss <= 0 {
		return nil
	}

	var newStop float64
	if pos.Side == Short {
		if (entryPrice-currentPrice)/entryPrice <= 0 {
			return nil
		}
		newStop = currentPrice * (1 + trailingPct)
		if newStop >= pos.CurrentStopLoss {
			return nil
		}
	} else {
		if (currentPrice-entryPrice)/entryPrice <= 0 {
			return nil
		}
		newStop = currentPrice * (1 - trailingPct)
		if newStop <= pos.CurrentStopLoss {
			return nil
		}
	}

	update := &StopUpdate{Symbol: symbol, OldStopLoss: pos.CurrentStopLoss, NewStopLoss: newStop}
	pos.CurrentStopLoss = newStop
	pos.Trailing = true
	tsm.logger.Info("trailing stop moved", "symbol", symbol, "old_stop", update.OldStopLoss,
		"new_stop", newStop, "price", currentPrice)
	return update
}

// GetPosition returns a copy of a position's levels
func (tsm *TrailingStopManager) GetPosition(symbol string) *TrailingPosition {
	tsm.mu.RLock()
	defer tsm.mu.RUnlock()

	if pos, exists := tsm.positions[symbol]; exists {
		cp := *pos
		return &cp
	}
	return nil
}

// GetAllPositions returns copies of all tracked positions
func (tsm *TrailingStopManager) GetAllPositions() []*TrailingPosition {
	tsm.mu.RLock()
	defer tsm.mu.RUnlock()

	positions := make([]*TrailingPosition, 0, len(tsm.positions))
	for _, pos := range tsm.positions {
		cp := *pos
		positions = append(positions, &cp)
	}
	return positions
}

// GetCurrentStopLoss returns the current stop loss for a symbol
func (tsm *TrailingStopManager) GetCurrentStopLoss(symbol string) (float64, bool) {
	tsm.mu.RLock()
	defer tsm.mu.RUnlock()

	if pos, exists := tsm.positions[symbol]; exists && pos.CurrentStopLoss > 0 {
		return pos.CurrentStopLoss, true
	}
	return 0, false
}
