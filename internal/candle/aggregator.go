package candle

import (
	"fmt"
	"sync"
	"time"

	"github.com/amirphl/zeta-trader/internal/tfutils"
)

// Aggregator folds individual trades into timeframe candles per symbol.
type Aggregator struct {
	timeframe time.Duration

	mu      sync.Mutex
	current map[string]Candle
}

// NewAggregator returns an aggregator for timeframe (e.g. "1m").
func NewAggregator(timeframe string) (*Aggregator, error) {
	d, err := tfutils.ParseTimeframe(timeframe)
	if err != nil {
		return nil, fmt.Errorf("failed to create aggregator: %w", err)
	}
	return &Aggregator{timeframe: d, current: make(map[string]Candle)}, nil
}

// Add folds a trade into the symbol's current candle and returns it. A trade
// in a later bucket starts a new candle; a trade in an earlier bucket is
// rejected.
func (a *Aggregator) Add(symbol string, price, qty float64, tsMillis int64) (Candle, error) {
	if price <= 0 {
		return Candle{}, fmt.Errorf("invalid trade price %v", price)
	}
	bucket := tfutils.BucketStart(tsMillis, a.timeframe)

	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.current[symbol]
	switch {
	case !ok || bucket > c.Timestamp:
		c = Candle{Timestamp: bucket, Open: price, High: price, Low: price, Close: price, Volume: qty, Symbol: symbol}
	case bucket == c.Timestamp:
		c.High = max(c.High, price)
		c.Low = min(c.Low, price)
		c.Close = price
		c.Volume += qty
	default:
		return Candle{}, fmt.Errorf("%w: trade at %d before bucket %d", ErrOutOfOrder, tsMillis, c.Timestamp)
	}
	a.current[symbol] = c
	return c, nil
}
