package indicator

import (
	"math"

	"github.com/amirphl/zeta-trader/internal/candle"
)

// Snapshot keys.
const (
	EMAFast = "EMA8"
	EMASlow = "EMA21"
	ATR     = "ATR14"
	RSI     = "RSI14"
	BBUpper = "BB_UPPER"
	BBLower = "BB_LOWER"
	ATRPct  = "ATR_PCT"
)

// Snapshot is the latest value of each indicator. An empty snapshot means
// there was not enough history.
type Snapshot map[string]float64

// Get returns the value for key, or def when it is missing or NaN.
func (s Snapshot) Get(key string, def float64) float64 {
	v, ok := s[key]
	if !ok || math.IsNaN(v) {
		return def
	}
	return v
}

// Engine computes indicators over a candle window.
type Engine interface {
	Compute(candles []candle.Candle) Snapshot
}

// Params configures the default engine.
type Params struct {
	EMAFastPeriod int
	EMASlowPeriod int
	ATRPeriod     int
	RSIPeriod     int
	BBPeriod      int
	BBStdDev      float64
	MinCandles    int
}

// DefaultParams returns EMA 8/21, ATR 14, RSI 14, Bollinger 20x2 and a
// 50 candle minimum.
func DefaultParams() Params {
	return Params{
		EMAFastPeriod: 8,
		EMASlowPeriod: 21,
		ATRPeriod:     14,
		RSIPeriod:     14,
		BBPeriod:      20,
		BBStdDev:      2,
		MinCandles:    50,
	}
}

// DefaultEngine computes the full indicator set.
type DefaultEngine struct {
	params Params
}

// NewEngine returns an engine using params.
func NewEngine(params Params) *DefaultEngine {
	lookback := max(params.BBPeriod, params.EMASlowPeriod)
	if params.MinCandles < lookback {
		params.MinCandles = lookback
	}
	return &DefaultEngine{params: params}
}

// MinCandles is the history required before Compute returns values.
func (e *DefaultEngine) MinCandles() int { return e.params.MinCandles }

// Compute returns an empty snapshot when fewer than MinCandles are given.
func (e *DefaultEngine) Compute(candles []candle.Candle) Snapshot {
	if len(candles) < e.params.MinCandles {
		return Snapshot{}
	}

	n := len(candles)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	snap := Snapshot{
		EMAFast: last(CalculateEMA(closes, e.params.EMAFastPeriod)),
		EMASlow: last(CalculateEMA(closes, e.params.EMASlowPeriod)),
		ATR:     last(CalculateATR(highs, lows, closes, e.params.ATRPeriod)),
		RSI:     last(CalculateRSI(closes, e.params.RSIPeriod)),
	}
	upper, lower := CalculateBollinger(closes, e.params.BBPeriod, e.params.BBStdDev)
	snap[BBUpper] = upper
	snap[BBLower] = lower

	if lastClose := closes[n-1]; lastClose > 0 {
		snap[ATRPct] = snap[ATR] / lastClose * 100
	} else {
		snap[ATRPct] = 0
	}
	return snap
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}
