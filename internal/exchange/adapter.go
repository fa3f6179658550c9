// Package exchange adapter
package exchange

import (
	"fmt"
	"strconv"
	"time"

	wallex "github.com/wallexchange/wallex-go"

	"github.com/amirphl/zeta-trader/internal/candle"
)

// WallexTrade represents a trade message from Wallex
type WallexTrade struct {
	IsBuyOrder bool      `json:"isBuyOrder"`
	Quantity   string    `json:"quantity"`
	Price      string    `json:"price"`
	Timestamp  time.Time `json:"timestamp"`
}

// parse returns price, quantity and the trade time in unix milliseconds.
func (t WallexTrade) parse() (float64, float64, int64, error) {
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid trade price %q: %w", t.Price, err)
	}
	qty, err := strconv.ParseFloat(t.Quantity, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid trade quantity %q: %w", t.Quantity, err)
	}
	ts, err := candle.NormalizeTimestamp(t.Timestamp)
	if err != nil {
		return 0, 0, 0, err
	}
	return price, qty, ts, nil
}

func candleFromWallex(symbol string, wc *wallex.Candle) candle.Candle {
	return candle.Candle{
		Timestamp: wc.Timestamp.UTC().Truncate(time.Minute).UnixMilli(),
		Open:      float64Ptr(&wc.Open),
		High:      float64Ptr(&wc.High),
		Low:       float64Ptr(&wc.Low),
		Close:     float64Ptr(&wc.Close),
		Volume:    float64Ptr(&wc.Volume),
		Symbol:    symbol,
	}
}

func balanceFromWallex(asset string, wb *wallex.Balance) Balance {
	return Balance{
		Asset:     asset,
		Available: float64Ptr(&wb.Value),
		Locked:    float64Ptr(&wb.Locked),
		Fiat:      wb.Fiat,
	}
}

// Helper to safely dereference *wallex.Number
func float64Ptr(n *wallex.Number) float64 {
	if n == nil {
		return 0
	}
	out, _ := strconv.ParseFloat(string(*n), 64)
	return out
}
