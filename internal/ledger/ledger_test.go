package ledger

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertConserved(t *testing.T, l *Ledger) {
	t.Helper()
	require.NoError(t, l.Snapshot().Validate())
}

func TestReserveRejectsOverdraft(t *testing.T) {
	l := New(d("2.0"))

	ok := l.Reserve(d("3.0"))

	assert.False(t, ok)
	b := l.Snapshot()
	assert.True(t, b.Total.Equal(d("2")))
	assert.True(t, b.Available.Equal(d("2")))
	assert.True(t, b.InUse.IsZero())
}

func TestReserveAndRelease(t *testing.T) {
	tests := []struct {
		name          string
		reserve       string
		pnl           string
		fees          string
		wantTotal     string
		wantAvailable string
	}{
		{"profit", "3", "0.045", "0", "200.045", "200.045"},
		{"loss", "3", "-0.03", "0", "199.97", "199.97"},
		{"flat with fees", "3", "0", "0.006", "199.994", "199.994"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(d("200"))
			require.True(t, l.Reserve(d(tt.reserve)))
			b := l.Snapshot()
			assert.True(t, b.InUse.Equal(d(tt.reserve)))
			assert.True(t, b.Available.Equal(d("200").Sub(d(tt.reserve))))
			assertConserved(t, l)

			l.Release(d(tt.reserve), d(tt.pnl), d(tt.fees))

			b = l.Snapshot()
			assert.True(t, b.Total.Equal(d(tt.wantTotal)), "total %s", b.Total)
			assert.True(t, b.Available.Equal(d(tt.wantAvailable)), "available %s", b.Available)
			assert.True(t, b.InUse.IsZero())
			assertConserved(t, l)
		})
	}
}

func TestUnreserveRestoresAvailable(t *testing.T) {
	l := New(d("10"))
	require.True(t, l.Reserve(d("3")))

	l.Unreserve(d("3"))

	b := l.Snapshot()
	assert.True(t, b.Available.Equal(d("10")))
	assert.True(t, b.InUse.IsZero())
	assertConserved(t, l)
}

func TestReserveNonPositivePanics(t *testing.T) {
	l := New(d("10"))
	assert.Panics(t, func() { l.Reserve(decimal.Zero) })
	assert.Panics(t, func() { l.Reserve(d("-1")) })
}

func TestUnreserveMoreThanInUsePanics(t *testing.T) {
	l := New(d("10"))
	require.True(t, l.Reserve(d("1")))
	assert.Panics(t, func() { l.Unreserve(d("2")) })
}

func TestCanAfford(t *testing.T) {
	l := New(d("5"))
	assert.True(t, l.CanAfford(d("5")))
	assert.False(t, l.CanAfford(d("5.01")))
}

func TestConservationUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	l := New(d("200"))
	var open []decimal.Decimal

	for i := 0; i < 2000; i++ {
		switch rng.Intn(3) {
		case 0:
			amt := decimal.NewFromInt(int64(rng.Intn(10) + 1))
			if l.Reserve(amt) {
				open = append(open, amt)
			}
		case 1:
			if len(open) == 0 {
				continue
			}
			amt := open[len(open)-1]
			open = open[:len(open)-1]
			pnl := amt.Mul(decimal.NewFromFloat(rng.Float64()*0.04 - 0.02)).Round(8)
			l.Release(amt, pnl, decimal.Zero)
		case 2:
			if len(open) == 0 {
				continue
			}
			amt := open[0]
			open = open[1:]
			l.Unreserve(amt)
		}
		assertConserved(t, l)
	}
}

func TestConcurrentReserveNeverOvercommits(t *testing.T) {
	l := New(d("30"))
	var wg sync.WaitGroup
	var granted atomic.Int64

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Reserve(d("3")) {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), granted.Load())
	b := l.Snapshot()
	assert.True(t, b.Available.IsZero())
	assert.True(t, b.InUse.Equal(d("30")))
}

func TestRestoreValidates(t *testing.T) {
	l := New(d("1"))

	err := l.Restore(VirtualBalance{Total: d("10"), Available: d("5"), InUse: d("4")})
	assert.ErrorIs(t, err, ErrInconsistentBalance)

	good := VirtualBalance{Total: d("10"), Available: d("7"), InUse: d("3")}
	require.NoError(t, l.Restore(good))
	assert.Equal(t, good, l.Snapshot())
}
