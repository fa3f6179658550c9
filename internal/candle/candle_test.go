package candle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mk(ts int64, close float64) Candle {
	return Candle{Timestamp: ts, Open: close, High: close, Low: close, Close: close, Volume: 1, Symbol: "BTCUSDT"}
}

func TestCandleValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Candle)
		wantErr bool
	}{
		{"valid", func(*Candle) {}, false},
		{"zero timestamp", func(c *Candle) { c.Timestamp = 0 }, true},
		{"negative price", func(c *Candle) { c.Low = -1 }, true},
		{"high below low", func(c *Candle) { c.High = 0.5 }, true},
		{"close above high", func(c *Candle) { c.Close = 2 }, true},
		{"negative volume", func(c *Candle) { c.Volume = -1 }, true},
		{"no symbol", func(c *Candle) { c.Symbol = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mk(1000, 1)
			tt.mutate(&c)
			if tt.wantErr {
				assert.Error(t, c.Validate())
			} else {
				assert.NoError(t, c.Validate())
			}
		})
	}
}

func TestBufferAppendReplaceReject(t *testing.T) {
	b := NewBuffer(100)

	require.NoError(t, b.Add(mk(60000, 100)))
	require.NoError(t, b.Add(mk(120000, 101)))
	require.NoError(t, b.Add(mk(120000, 102)))
	assert.Equal(t, 2, b.Len())
	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, 102.0, last.Close)

	err := b.Add(mk(60000, 99))
	assert.ErrorIs(t, err, ErrOutOfOrder)
	assert.Equal(t, 2, b.Len())

	assert.Error(t, b.Add(mk(180000, -1)))
}

func TestBufferTrims(t *testing.T) {
	b := NewBuffer(100)
	for i := 1; i <= 120; i++ {
		require.NoError(t, b.Add(mk(int64(i)*60000, float64(i))))
	}
	assert.Equal(t, 120, b.Len())

	require.NoError(t, b.Add(mk(121*60000, 121)))
	assert.Equal(t, 110, b.Len())

	candles := b.Candles()
	assert.Equal(t, 12.0, candles[0].Close)
	assert.Equal(t, 121.0, candles[len(candles)-1].Close)
}

func TestBufferCandlesIsCopy(t *testing.T) {
	b := NewBuffer(10)
	require.NoError(t, b.Add(mk(60000, 1)))
	c := b.Candles()
	c[0].Close = 5
	last, _ := b.Last()
	assert.Equal(t, 1.0, last.Close)
}

func TestNormalizeTimestamp(t *testing.T) {
	ref := time.Date(2024, 3, 1, 12, 30, 15, 250_000_000, time.UTC)
	ms := ref.UnixMilli()

	tests := []struct {
		name    string
		in      any
		want    int64
		wantErr bool
	}{
		{"int64 millis", ms, ms, false},
		{"int seconds", int(ref.Unix()), ref.Unix() * 1000, false},
		{"float seconds", float64(ms) / 1000, ms, false},
		{"float millis", float64(ms), ms, false},
		{"numeric string", "1709296215250", ms, false},
		{"formatted with millis", "2024-03-01T12:30:15.250", ms, false},
		{"formatted without millis", "2024-03-01T12:30:15", ref.Truncate(time.Second).UnixMilli(), false},
		{"rfc3339", "2024-03-01T12:30:15.25Z", ms, false},
		{"time", ref, ms, false},
		{"garbage", "yesterday", 0, true},
		{"empty", "", 0, true},
		{"unsupported type", []byte("1"), 0, true},
		{"zero time", time.Time{}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeTimestamp(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadTimestamp)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAggregator(t *testing.T) {
	a, err := NewAggregator("1m")
	require.NoError(t, err)

	c, err := a.Add("BTCUSDT", 100, 1, 60_500)
	require.NoError(t, err)
	assert.Equal(t, int64(60_000), c.Timestamp)

	_, err = a.Add("BTCUSDT", 103, 2, 61_000)
	require.NoError(t, err)
	c, err = a.Add("BTCUSDT", 99, 1, 119_999)
	require.NoError(t, err)
	assert.Equal(t, Candle{Timestamp: 60_000, Open: 100, High: 103, Low: 99, Close: 99, Volume: 4, Symbol: "BTCUSDT"}, c)

	c, err = a.Add("BTCUSDT", 101, 1, 120_000)
	require.NoError(t, err)
	assert.Equal(t, int64(120_000), c.Timestamp)
	assert.Equal(t, 101.0, c.Open)

	_, err = a.Add("BTCUSDT", 101, 1, 59_000)
	assert.ErrorIs(t, err, ErrOutOfOrder)

	_, err = NewAggregator("3m")
	assert.Error(t, err)
}
