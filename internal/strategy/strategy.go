// Package strategy
package strategy

import (
	"fmt"

	"github.com/amirphl/zeta-trader/internal/indicator"
)

// Action is what a policy asks the trading loop to do.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionNone Action = "NONE"
)

// Regime is the detected market state.
type Regime int

const (
	RegimeUnknown Regime = iota
	RegimeTrend
	RegimeRange
)

func (r Regime) String() string {
	switch r {
	case RegimeTrend:
		return "TREND"
	case RegimeRange:
		return "RANGE"
	default:
		return "UNKNOWN"
	}
}

type Signal struct {
	Action Action `json:"action"`
	Regime Regime `json:"regime"`
	Reason string `json:"reason"` // which filter passed or failed
}

// SignalPolicy turns a price and an indicator snapshot into an entry
// signal. Implementations are pure.
type SignalPolicy interface {
	Name() string
	Evaluate(price float64, snap indicator.Snapshot) Signal
}

// New returns the policy registered under version.
func New(version string, params Params) (SignalPolicy, error) {
	switch version {
	case "", TrendRangeVersion:
		return NewTrendRangePolicy(params), nil
	default:
		return nil, fmt.Errorf("unknown strategy version: %q", version)
	}
}
