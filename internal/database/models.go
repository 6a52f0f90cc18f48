package database

import (
	"time"
)

// Trade is one closed round trip in the journal.
type Trade struct {
	ID           int64     `json:"id"`
	Symbol       string    `json:"symbol"`
	StrategyName string    `json:"strategy_name"`
	Tier         string    `json:"tier"`
	Shares       int       `json:"shares"`
	EntryPrice   float64   `json:"entry_price"`
	ExitPrice    float64   `json:"exit_price"`
	PnL          float64   `json:"pnl"`
	PnLPercent   float64   `json:"pnl_percent"` // fraction of cost basis
	Reason       string    `json:"reason"`
	EntryTime    time.Time `json:"entry_time"`
	ExitTime     time.Time `json:"exit_time"`
}
