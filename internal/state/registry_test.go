package state

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/zeta-trader/internal/ledger"
	"github.com/amirphl/zeta-trader/internal/position"
)

func testPosition(symbol string) *position.Position {
	pl := position.NewPlanner(position.DefaultParams())
	entry := decimal.NewFromInt(100)
	return position.New(symbol, time.Unix(1700000000, 0), entry, decimal.NewFromInt(3), decimal.RequireFromString("0.03"), pl.BuildDefaultPlan(), pl.InitialStop(entry))
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Register("BTCUSDT")
	require.NoError(t, r.UpdateSafety("BTCUSDT", func(s *SafetyState) { s.ConsecutiveLosses = 2 }))

	r.Register("BTCUSDT")

	s, ok := r.Safety("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 2, s.ConsecutiveLosses)
	assert.Equal(t, []string{"BTCUSDT"}, r.Symbols())
}

func TestOpenPositionLifecycle(t *testing.T) {
	r := NewRegistry()
	r.Register("ETHUSDT")

	sl, err := r.Slot("ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, StatusFlat, sl.Status)
	assert.Nil(t, sl.Position)
	assert.False(t, r.HasOpenPosition("ETHUSDT"))

	require.NoError(t, r.OpenPosition("ETHUSDT", testPosition("ETHUSDT")))
	err = r.OpenPosition("ETHUSDT", testPosition("ETHUSDT"))
	assert.ErrorIs(t, err, ErrPositionExists)

	require.NoError(t, r.UpdatePosition("ETHUSDT", func(p *position.Position) { p.ExitFailures++ }))
	assert.True(t, r.HasOpenPosition("ETHUSDT"))
	p, ok := r.Position("ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, 1, p.ExitFailures)

	closed, err := r.ClosePosition("ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, p.ID, closed.ID)

	sl, _ = r.Slot("ETHUSDT")
	assert.Equal(t, StatusClosed, sl.Status)
	assert.Equal(t, "closed", sl.Status.String())
	_, ok = r.Position("ETHUSDT")
	assert.False(t, ok)

	_, err = r.ClosePosition("ETHUSDT")
	assert.ErrorIs(t, err, ErrNoPosition)
	assert.ErrorIs(t, r.UpdatePosition("ETHUSDT", func(*position.Position) {}), ErrNoPosition)
}

func TestUnregisteredSymbol(t *testing.T) {
	r := NewRegistry()
	assert.ErrorIs(t, r.OpenPosition("XRPUSDT", testPosition("XRPUSDT")), ErrNotRegistered)
	assert.ErrorIs(t, r.UpdateSafety("XRPUSDT", func(*SafetyState) {}), ErrNotRegistered)
	_, err := r.Slot("XRPUSDT")
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestReadsReturnCopies(t *testing.T) {
	r := NewRegistry()
	r.Register("BTCUSDT")
	require.NoError(t, r.OpenPosition("BTCUSDT", testPosition("BTCUSDT")))

	p, _ := r.Position("BTCUSDT")
	p.CurrentStopPrice = decimal.NewFromInt(1)

	again, _ := r.Position("BTCUSDT")
	assert.True(t, again.CurrentStopPrice.Equal(decimal.NewFromInt(99)))
}

func TestConcurrentOpenAllowsOne(t *testing.T) {
	r := NewRegistry()
	r.Register("BTCUSDT")

	var wg sync.WaitGroup
	var opened atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.OpenPosition("BTCUSDT", testPosition("BTCUSDT")) == nil {
				opened.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), opened.Load())
}

func TestSnapshotRestore(t *testing.T) {
	r := NewRegistry()
	r.Register("BTCUSDT")
	r.Register("ETHUSDT")
	require.NoError(t, r.OpenPosition("BTCUSDT", testPosition("BTCUSDT")))
	require.NoError(t, r.UpdateSafety("ETHUSDT", func(s *SafetyState) {
		s.Mode = ModeCooldown
		s.ConsecutiveLosses = 1
		s.CooldownDuration = 30 * time.Second
	}))

	snap := r.Snapshot()
	require.Len(t, snap.Positions, 1)

	restored := NewRegistry()
	require.NoError(t, restored.Restore(snap))

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, restored.Symbols())
	p, ok := restored.Position("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, snap.Positions[0].ID, p.ID)
	s, _ := restored.Safety("ETHUSDT")
	assert.Equal(t, ModeCooldown, s.Mode)
	assert.Equal(t, 30*time.Second, s.CooldownDuration)
}

type memKV struct{ data map[string][]byte }

func (m *memKV) SaveState(_ context.Context, key string, value []byte) error {
	m.data[key] = value
	return nil
}

func (m *memKV) LoadState(_ context.Context, key string) ([]byte, error) {
	return m.data[key], nil
}

func TestSnapshotStores(t *testing.T) {
	stores := map[string]SnapshotStore{
		"file": NewFileStore(filepath.Join(t.TempDir(), "data", "state_backup.json")),
		"kv":   NewKVStore(&memKV{data: map[string][]byte{}}),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			empty, err := store.LoadSnapshot(ctx)
			require.NoError(t, err)
			assert.Nil(t, empty)

			r := NewRegistry()
			r.Register("BTCUSDT")
			require.NoError(t, r.OpenPosition("BTCUSDT", testPosition("BTCUSDT")))
			snap := r.Snapshot()
			snap.Balance = ledger.VirtualBalance{
				Total:     decimal.NewFromInt(200),
				Available: decimal.NewFromInt(197),
				InUse:     decimal.NewFromInt(3),
			}
			require.NoError(t, store.SaveSnapshot(ctx, snap))

			loaded, err := store.LoadSnapshot(ctx)
			require.NoError(t, err)
			require.NotNil(t, loaded)
			assert.True(t, loaded.Balance.Available.Equal(decimal.NewFromInt(197)))
			require.Len(t, loaded.Positions, 1)
			assert.Equal(t, "BTCUSDT", loaded.Positions[0].Symbol)
			assert.Equal(t, ModeActive, loaded.Safety["BTCUSDT"].Mode)
		})
	}
}
