// Package exchange
package exchange

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/amirphl/zeta-trader/internal/candle"
	"github.com/amirphl/zeta-trader/internal/market"
	"github.com/amirphl/zeta-trader/internal/order"
	"github.com/amirphl/zeta-trader/internal/utils"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrNotSupported  = errors.New("operation not supported")
)

// OrderGateway submits and cancels orders.
type OrderGateway interface {
	Name() string
	PlaceOrder(ctx context.Context, req order.Request) (order.Fill, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

// Prober checks exchange reachability and credentials before trading.
type Prober interface {
	Ping(ctx context.Context) (map[string]Balance, error)
}

// CandleFetcher loads recent history for warm-up.
type CandleFetcher interface {
	FetchLatestCandles(ctx context.Context, symbol, timeframe string, count int) ([]candle.Candle, error)
}

// MarketStatsFetcher lists tradable markets with 24h statistics.
type MarketStatsFetcher interface {
	FetchMarketStats(ctx context.Context) ([]market.Stat, error)
}

// MarketDataSource produces candle events. Stream fails when the first
// connection cannot be made; the channel closes when ctx is done or the
// source is exhausted.
type MarketDataSource interface {
	Stream(ctx context.Context) (<-chan candle.Event, error)
}

// Balance represents an asset balance from an exchange
type Balance struct {
	Asset     string  `json:"asset"`
	Available float64 `json:"available"`
	Locked    float64 `json:"locked"`
	Fiat      bool    `json:"fiat"`
}

// NormalizeSymbol converts e.g. btc-usdt or btc_usdt to BTCUSDT for Wallex API
func NormalizeSymbol(symbol string) string {
	r := strings.NewReplacer("-", "", "_", "", "/", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(symbol)))
}

// retry wraps a function with retry logic for transient errors, using
// exponential backoff capped at 5 minutes. It stops early when ctx is done.
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	backoff := delay
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		utils.GetLogger().Printf("Exchange | Retry attempt %d/%d failed: %v. Backing off for %v", i, attempts, err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 5*time.Minute {
			backoff *= 2
			if backoff > 5*time.Minute {
				backoff = 5 * time.Minute
			}
		}
	}
	return errors.Join(errors.New("all retry attempts failed"), err)
}

// callWithContext runs a blocking client call and gives up when ctx is done.
// The call itself keeps running in the background.
func callWithContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}

// cancelRemainder gives immediate-or-cancel semantics on exchanges that only
// accept resting limit orders: whatever did not fill at once is cancelled.
// A fill with nothing executed comes back as canceled.
func cancelRemainder(ctx context.Context, fill order.Fill, cancel func(ctx context.Context, symbol, orderID string) error) order.Fill {
	if fill.OrderID == "" {
		return fill
	}
	if fill.Status != order.StatusNew && fill.Status != order.StatusPartiallyFilled {
		return fill
	}
	cancelCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer stop()
	if err := cancel(cancelCtx, fill.Symbol, fill.OrderID); err != nil {
		utils.GetLogger().Printf("Exchange | failed to cancel rest of %s on %s: %v", fill.OrderID, fill.Symbol, err)
		return fill
	}
	if fill.FilledQty <= 0 {
		fill.Status = order.StatusCanceled
	}
	return fill
}
