package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconf "github.com/amirphl/zeta-trader/internal/db/conf"
	"github.com/amirphl/zeta-trader/internal/journal"
	"github.com/amirphl/zeta-trader/internal/ledger"
	"github.com/amirphl/zeta-trader/internal/state"
)

type tradeStore interface {
	Storage
	GetTrades(ctx context.Context, symbol string) ([]journal.TradeRecord, error)
}

func trade(id, symbol string, at time.Time, pnl string) journal.TradeRecord {
	return journal.TradeRecord{
		ID:         id,
		Timestamp:  at,
		Symbol:     symbol,
		EntryPrice: decimal.RequireFromString("100"),
		ExitPrice:  decimal.RequireFromString("101.5"),
		EntrySize:  decimal.RequireFromString("3"),
		PnL:        decimal.RequireFromString(pnl),
		PnLPct:     decimal.RequireFromString("1.5"),
		Fees:       decimal.Zero,
		ExitReason: "TP_HIT",
		Mode:       "Paper",
	}
}

func exerciseStorage(t *testing.T, s tradeStore) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("trades", func(t *testing.T) {
		require.NoError(t, s.SaveTrades(ctx, []journal.TradeRecord{
			trade("t2", "BTCUSDT", base.Add(time.Minute), "-0.03"),
			trade("t1", "BTCUSDT", base, "0.045"),
			trade("t3", "ETHUSDT", base, "0.01"),
		}))
		// retried batch
		require.NoError(t, s.SaveTrades(ctx, []journal.TradeRecord{trade("t1", "BTCUSDT", base, "0.045")}))

		got, err := s.GetTrades(ctx, "BTCUSDT")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "t1", got[0].ID)
		assert.Equal(t, "t2", got[1].ID)
		assert.True(t, got[0].PnL.Equal(decimal.RequireFromString("0.045")))
		assert.True(t, got[1].PnL.Equal(decimal.RequireFromString("-0.03")))
		assert.Equal(t, base.Unix(), got[0].Timestamp.Unix())
		assert.Equal(t, "Paper", got[0].Mode)
	})

	t.Run("state", func(t *testing.T) {
		raw, err := s.LoadState(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, raw)

		require.NoError(t, s.SaveState(ctx, "k", []byte(`{"a":1}`)))
		require.NoError(t, s.SaveState(ctx, "k", []byte(`{"a":2}`)))
		raw, err = s.LoadState(ctx, "k")
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":2}`, string(raw))
	})

	t.Run("snapshot round trip", func(t *testing.T) {
		store := state.NewKVStore(s)
		snap := state.Snapshot{
			SavedAt: base,
			Balance: ledger.VirtualBalance{
				Total:     decimal.RequireFromString("200"),
				Available: decimal.RequireFromString("197"),
				InUse:     decimal.RequireFromString("3"),
			},
			Safety: map[string]state.SafetyState{"BTCUSDT": *state.NewSafetyState()},
		}
		require.NoError(t, store.SaveSnapshot(ctx, snap))
		got, err := store.LoadSnapshot(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.Balance.Available.Equal(snap.Balance.Available))
		assert.Equal(t, state.ModeActive, got.Safety["BTCUSDT"].Mode)
	})
}

func TestMemoryStorage(t *testing.T) {
	s, err := Open(dbconf.Config{Driver: dbconf.DriverMemory})
	require.NoError(t, err)
	defer s.Close()
	assert.Nil(t, s.GetDB())
	exerciseStorage(t, s.(*MemoryStorage))
}

func TestSQLiteStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zeta.db")
	cfg, err := dbconf.NewConfig(dbconf.DriverSQLite, path, 1, 1)
	require.NoError(t, err)

	s, err := Open(*cfg)
	require.NoError(t, err)
	defer s.Close()
	exerciseStorage(t, s.(*Default))

	// migrating twice is harmless
	require.NoError(t, s.(*Default).Migrate(context.Background()))
}

func TestPostgresStorage(t *testing.T) {
	cfg, cleanup := dbconf.NewTestConfig(t)
	defer cleanup()

	s, err := New(*cfg)
	require.NoError(t, err)
	exerciseStorage(t, s)
}

func TestTransactionFromContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tx.db")
	cfg, err := dbconf.NewConfig(dbconf.DriverSQLite, path, 1, 1)
	require.NoError(t, err)
	s, err := New(*cfg)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	tx, err := s.GetDB().BeginTx(ctx, nil)
	require.NoError(t, err)
	txCtx := WithTransaction(ctx, tx)
	assert.Same(t, tx, GetTransaction(txCtx))
	assert.Nil(t, GetTransaction(ctx))

	require.NoError(t, s.SaveState(txCtx, "k", []byte("v")))
	require.NoError(t, tx.Rollback())

	raw, err := s.LoadState(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(dbconf.Config{Driver: "mysql"})
	assert.Error(t, err)
	_, err = Open(dbconf.Config{Driver: dbconf.DriverSQLite})
	assert.Error(t, err)
	_, err = dbconf.NewConfig("mysql", "x", 0, 0)
	assert.Error(t, err)
}
