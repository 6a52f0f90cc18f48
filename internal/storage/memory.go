package storage

import (
	"context"
	"sort"
	"sync"

	"dai-trader/internal/errs"
)

// Memory keeps everything in process. Paper runs and tests use it.
type Memory struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	trades []TradeRecord
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.blobs[key]
	if !ok {
		return nil, errs.NotFound("storage.Load", key)
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Save(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

func (m *Memory) List(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) RecordTrade(_ context.Context, t TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = int64(len(m.trades) + 1)
	m.trades = append(m.trades, t)
	return nil
}

// RecentTrades returns up to limit trades, newest first.
func (m *Memory) RecentTrades(_ context.Context, limit int) ([]TradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		return nil, nil
	}
	n := min(limit, len(m.trades))
	out := make([]TradeRecord, 0, n)
	for i := len(m.trades) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.trades[i])
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
