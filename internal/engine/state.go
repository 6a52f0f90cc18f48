package engine

import (
	"context"
	"errors"

	"dai-trader/internal/broker"
	"dai-trader/internal/learning"
	"dai-trader/internal/ledger"
	"dai-trader/internal/risk"
	"dai-trader/internal/storage"
)

type breakerState struct {
	ConsecutiveLosses int `json:"consecutive_losses"`
}

// Restore loads every persisted blob. Missing blobs leave the fresh state
// in place; a corrupt blob is an error.
func (e *Engine) Restore(ctx context.Context) error {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	store := e.deps.Store
	var errList []error

	var snap learning.Snapshot
	if ok, err := storage.LoadJSON(ctx, store, storage.KeyQTable, &snap); err != nil {
		errList = append(errList, err)
	} else if ok {
		e.agent.Restore(snap)
	}

	var sel learning.SelectorSnapshot
	if ok, err := storage.LoadJSON(ctx, store, storage.KeyStrategyPerformance, &sel); err != nil {
		errList = append(errList, err)
	} else if ok {
		e.selector.Restore(sel)
	}

	var rec ledger.Record
	if ok, err := storage.LoadJSON(ctx, store, storage.KeyLedger, &rec); err != nil {
		errList = append(errList, err)
	} else if ok {
		e.ledger.Restore(rec)
	}

	var bs breakerState
	if ok, err := storage.LoadJSON(ctx, store, storage.KeyBreaker, &bs); err != nil {
		errList = append(errList, err)
	} else if ok {
		e.breaker.Restore(bs.ConsecutiveLosses)
	}

	if bk, ok := e.deps.Broker.(bookKeeper); ok {
		var book broker.Book
		if found, err := storage.LoadJSON(ctx, store, storage.KeyBrokerBook, &book); err != nil {
			errList = append(errList, err)
		} else if found {
			bk.Restore(book)
		}
	}

	var trades map[string]OpenTrade
	if ok, err := storage.LoadJSON(ctx, store, storage.KeyOpenTrades, &trades); err != nil {
		errList = append(errList, err)
	} else if ok {
		e.mu.Lock()
		e.trades = make(map[string]*OpenTrade, len(trades))
		for sym, t := range trades {
			t := t
			e.trades[sym] = &t
		}
		e.mu.Unlock()
	}

	// Stored levels win over levels rebuilt from the entry price: a stop
	// that already trailed must not move back.
	var rs risk.Snapshot
	if ok, err := storage.LoadJSON(ctx, store, storage.KeyRisk, &rs); err != nil {
		errList = append(errList, err)
	} else if ok {
		kept := rs.Stops[:0]
		for _, lv := range rs.Stops {
			if _, tracked := trades[lv.Symbol]; tracked {
				kept = append(kept, lv)
			}
		}
		rs.Stops = kept
		e.risk.Restore(rs)
	}
	for _, t := range trades {
		if _, ok := e.risk.Levels(t.Symbol); !ok {
			e.armStops(t.Symbol, t.EntryPrice)
		}
	}

	stats := e.agent.Stats()
	e.logger.Info("state restored",
		"states_learned", stats.StatesLearned,
		"trades", stats.TotalTrades,
		"strategy", e.selector.Current(),
		"open_trades", len(trades),
		"errors", len(errList),
	)
	return errors.Join(errList...)
}

// Save persists every blob outside of a cycle, e.g. at shutdown.
func (e *Engine) Save(ctx context.Context) error {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()
	return e.save(ctx)
}

func (e *Engine) persist(ctx context.Context, report *Report) {
	if err := e.save(ctx); err != nil {
		e.logger.Error("state persistence failed", "error", err)
		report.Errors = append(report.Errors, err.Error())
		e.deps.Bus.PublishError("engine", "state persistence failed", err)
	}
}

func (e *Engine) save(ctx context.Context) error {
	store := e.deps.Store
	var errList []error
	put := func(key string, v interface{}) {
		if err := storage.SaveJSON(ctx, store, key, v); err != nil {
			errList = append(errList, err)
		}
	}

	put(storage.KeyQTable, e.agent.Snapshot())
	put(storage.KeyStrategyPerformance, e.selector.Snapshot())
	if rec, ok := e.ledger.Snapshot(); ok {
		put(storage.KeyLedger, rec)
	}
	put(storage.KeyBreaker, breakerState{ConsecutiveLosses: e.breaker.LosingStreak()})
	put(storage.KeyRisk, e.risk.Snapshot())
	if bk, ok := e.deps.Broker.(bookKeeper); ok {
		put(storage.KeyBrokerBook, bk.Snapshot())
	}

	e.mu.RLock()
	trades := make(map[string]OpenTrade, len(e.trades))
	for sym, t := range e.trades {
		trades[sym] = *t
	}
	e.mu.RUnlock()
	put(storage.KeyOpenTrades, trades)

	return errors.Join(errList...)
}
