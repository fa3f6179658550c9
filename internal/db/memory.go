package db

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"

	"github.com/amirphl/zeta-trader/internal/journal"
)

type MemoryStorage struct {
	mu sync.RWMutex

	// Trades keyed by ID, plus insertion order
	trades map[string]journal.TradeRecord
	order  []string

	state map[string][]byte
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		trades: make(map[string]journal.TradeRecord),
		order:  make([]string, 0, 1024),
		state:  make(map[string][]byte),
	}
}

// GetDB returns nil for in-memory storage (no SQL database)
func (m *MemoryStorage) GetDB() *sql.DB { return nil }

func (m *MemoryStorage) SaveTrades(ctx context.Context, trades []journal.TradeRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range trades {
		if _, ok := m.trades[t.ID]; ok {
			continue
		}
		m.trades[t.ID] = t
		m.order = append(m.order, t.ID)
	}
	return nil
}

func (m *MemoryStorage) GetTrades(ctx context.Context, symbol string) ([]journal.TradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []journal.TradeRecord
	for _, id := range m.order {
		t := m.trades[id]
		if strings.EqualFold(t.Symbol, symbol) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryStorage) SaveState(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStorage) LoadState(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.state[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStorage) Close() error { return nil }
