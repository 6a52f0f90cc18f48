package storage

import (
	"context"

	"dai-trader/internal/database"
)

// Postgres stores state in the state_blobs and trades tables.
type Postgres struct {
	db   *database.DB
	repo *database.Repository
}

// NewPostgres wraps an open pool and runs the migrations.
func NewPostgres(ctx context.Context, db *database.DB) (*Postgres, error) {
	if err := db.RunMigrations(ctx); err != nil {
		return nil, err
	}
	return &Postgres{db: db, repo: database.NewRepository(db)}, nil
}

func (p *Postgres) Load(ctx context.Context, key string) ([]byte, error) {
	return p.repo.LoadBlob(ctx, key)
}

func (p *Postgres) Save(ctx context.Context, key string, value []byte) error {
	return p.repo.SaveBlob(ctx, key, value)
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	return p.repo.DeleteBlob(ctx, key)
}

func (p *Postgres) List(ctx context.Context) ([]string, error) {
	return p.repo.BlobKeys(ctx)
}

func (p *Postgres) RecordTrade(ctx context.Context, t TradeRecord) error {
	return p.repo.CreateTrade(ctx, &database.Trade{
		Symbol:       t.Symbol,
		StrategyName: t.Strategy,
		Tier:         t.Tier,
		Shares:       t.Shares,
		EntryPrice:   t.EntryPrice,
		ExitPrice:    t.ExitPrice,
		PnL:          t.PnL,
		PnLPercent:   t.PnLPct,
		Reason:       t.Reason,
		EntryTime:    t.OpenedAt,
		ExitTime:     t.ClosedAt,
	})
}

func (p *Postgres) RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	rows, err := p.repo.GetTradeHistory(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]TradeRecord, 0, len(rows))
	for _, t := range rows {
		out = append(out, TradeRecord{
			ID:         t.ID,
			Symbol:     t.Symbol,
			Strategy:   t.StrategyName,
			Tier:       t.Tier,
			Shares:     t.Shares,
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			PnL:        t.PnL,
			PnLPct:     t.PnLPercent,
			Reason:     t.Reason,
			OpenedAt:   t.EntryTime,
			ClosedAt:   t.ExitTime,
		})
	}
	return out, nil
}

func (p *Postgres) Close() error {
	p.db.Close()
	return nil
}
