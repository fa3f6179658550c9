package strategy

import (
	"fmt"
	"math"

	"github.com/amirphl/zeta-trader/internal/indicator"
)

const TrendRangeVersion = "v2"

// Params holds the TrendRange thresholds. Percentages are in percent units
// (0.5 == 0.5%).
type Params struct {
	MinATRPct           float64 `yaml:"min_atr_pct"`
	MaxATRPct           float64 `yaml:"max_atr_pct"`
	RangeMaxATRPct      float64 `yaml:"range_max_atr_pct"`
	TrendEMADistancePct float64 `yaml:"trend_ema_distance_pct"`
	RSITrendMin         float64 `yaml:"rsi_trend_min"`
	RSITrendMax         float64 `yaml:"rsi_trend_max"`
	RSIRangeMax         float64 `yaml:"rsi_range_max"`
	RangeBandTolerance  float64 `yaml:"range_band_tolerance"`
}

func DefaultParams() Params {
	return Params{
		MinATRPct:           0.2,
		MaxATRPct:           5.0,
		RangeMaxATRPct:      2.0,
		TrendEMADistancePct: 0.5,
		RSITrendMin:         45,
		RSITrendMax:         68,
		RSIRangeMax:         30,
		RangeBandTolerance:  0.003,
	}
}

// TrendRangePolicy buys pullback continuations in trends and oversold
// touches of the lower Bollinger band in ranges.
type TrendRangePolicy struct {
	params Params
}

func NewTrendRangePolicy(params Params) *TrendRangePolicy {
	return &TrendRangePolicy{params: params}
}

func (p *TrendRangePolicy) Name() string { return "trend_range_" + TrendRangeVersion }

func (p *TrendRangePolicy) Evaluate(price float64, snap indicator.Snapshot) Signal {
	if len(snap) == 0 {
		return none(RegimeUnknown, "no indicators")
	}
	atrPct := snap.Get(indicator.ATRPct, 0)
	if atrPct < p.params.MinATRPct || atrPct > p.params.MaxATRPct {
		return none(RegimeUnknown, fmt.Sprintf("atr%% %.3f outside [%.2f, %.2f]", atrPct, p.params.MinATRPct, p.params.MaxATRPct))
	}

	regime := p.regime(atrPct, price, snap)
	if regime == RegimeRange {
		return p.rangeEntry(price, snap)
	}
	return p.trendEntry(price, snap)
}

// regime falls back to TREND when inputs are missing.
func (p *TrendRangePolicy) regime(atrPct, price float64, snap indicator.Snapshot) Regime {
	ema8 := snap.Get(indicator.EMAFast, 0)
	ema21 := snap.Get(indicator.EMASlow, 0)
	if ema8 == 0 || ema21 == 0 || price == 0 {
		return RegimeTrend
	}
	distPct := math.Abs(ema8-ema21) / ema21 * 100
	if atrPct < p.params.RangeMaxATRPct && distPct < p.params.TrendEMADistancePct {
		return RegimeRange
	}
	return RegimeTrend
}

func (p *TrendRangePolicy) trendEntry(price float64, snap indicator.Snapshot) Signal {
	ema8 := snap.Get(indicator.EMAFast, 0)
	ema21 := snap.Get(indicator.EMASlow, 0)
	rsi := snap.Get(indicator.RSI, 50)

	if ema8 <= ema21 {
		return none(RegimeTrend, "ema8 not above ema21")
	}
	if rsi < p.params.RSITrendMin || rsi > p.params.RSITrendMax {
		return none(RegimeTrend, fmt.Sprintf("rsi %.1f outside trend band", rsi))
	}
	if price <= ema8 {
		return none(RegimeTrend, "price not above ema8")
	}
	return Signal{Action: ActionBuy, Regime: RegimeTrend, Reason: "trend continuation"}
}

func (p *TrendRangePolicy) rangeEntry(price float64, snap indicator.Snapshot) Signal {
	lower := snap.Get(indicator.BBLower, 0)
	rsi := snap.Get(indicator.RSI, 50)

	if lower == 0 {
		return none(RegimeRange, "bollinger band not ready")
	}
	if price > lower*(1+p.params.RangeBandTolerance) {
		return none(RegimeRange, "price away from lower band")
	}
	if rsi >= p.params.RSIRangeMax {
		return none(RegimeRange, fmt.Sprintf("rsi %.1f not oversold", rsi))
	}
	return Signal{Action: ActionBuy, Regime: RegimeRange, Reason: "range lower band bounce"}
}

func none(r Regime, reason string) Signal {
	return Signal{Action: ActionNone, Regime: r, Reason: reason}
}
