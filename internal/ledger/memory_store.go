package ledger

import (
	"context"
	"sync"

	"github.com/chidi150c/sentinel/internal/model"
)

// MemoryStore is the in-memory Store used by tests and dry-run mode
// (SPEC_FULL.md "an in-memory implementation for tests").
type MemoryStore struct {
	mu          sync.RWMutex
	trades      []model.Trade
	rebalances  []RebalanceRecord
	lastSnap    SnapshotRecord
	hasSnap     bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) RecordTrade(ctx context.Context, t model.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, t)
	return nil
}

func (m *MemoryStore) RecordRebalance(ctx context.Context, r RebalanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rebalances = append(m.rebalances, r)
	return nil
}

func (m *MemoryStore) RecordSnapshot(ctx context.Context, s SnapshotRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSnap = s
	m.hasSnap = true
	return nil
}

func (m *MemoryStore) Trades(ctx context.Context) ([]model.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Trade, len(m.trades))
	copy(out, m.trades)
	return out, nil
}

func (m *MemoryStore) Rebalances(ctx context.Context) ([]RebalanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RebalanceRecord, len(m.rebalances))
	copy(out, m.rebalances)
	return out, nil
}

func (m *MemoryStore) LatestSnapshot(ctx context.Context) (SnapshotRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSnap, m.hasSnap, nil
}
