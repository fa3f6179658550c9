package position

import (
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Params configures the exit ladder. All values are fractions.
type Params struct {
	InitialStopPct     decimal.Decimal
	FrictionCostPct    decimal.Decimal
	RiskFreeTriggerPct decimal.Decimal
	TP1TriggerPct      decimal.Decimal
	TP1LockPct         decimal.Decimal
	FinalTakeProfitPct decimal.Decimal
}

// DefaultParams returns the stock ladder: 1% initial stop, breakeven plus
// friction at +0.45%, lock +0.45% at +0.9%, take profit at +1.5%.
func DefaultParams() Params {
	return Params{
		InitialStopPct:     decimal.RequireFromString("0.01"),
		FrictionCostPct:    decimal.RequireFromString("0.003"),
		RiskFreeTriggerPct: decimal.RequireFromString("0.0045"),
		TP1TriggerPct:      decimal.RequireFromString("0.009"),
		TP1LockPct:         decimal.RequireFromString("0.0045"),
		FinalTakeProfitPct: decimal.RequireFromString("0.015"),
	}
}

// Planner builds exit plans and evaluates them against prices. It holds no
// per-position state.
type Planner struct {
	params Params
}

// NewPlanner returns a planner using params.
func NewPlanner(params Params) *Planner {
	return &Planner{params: params}
}

// Params returns the planner configuration.
func (pl *Planner) Params() Params { return pl.params }

// BuildDefaultPlan returns the breakeven step followed by the TP1 lock step.
func (pl *Planner) BuildDefaultPlan() ExitPlan {
	return ExitPlan{
		FinalTakeProfitPct: pl.params.FinalTakeProfitPct,
		BreakevenPct:       pl.params.FrictionCostPct,
		Steps: []Step{
			{TriggerPct: pl.params.RiskFreeTriggerPct, TargetStopPct: decimal.Zero, IsBreakeven: true},
			{TriggerPct: pl.params.TP1TriggerPct, TargetStopPct: pl.params.TP1LockPct},
		},
	}
}

// InitialStop returns the stop placed at entry.
func (pl *Planner) InitialStop(entry decimal.Decimal) decimal.Decimal {
	return entry.Mul(one.Sub(pl.params.InitialStopPct))
}

// AdvanceStop applies at most one not-yet-reached step whose trigger price
// is reached and whose stop is above the current stop. The stop never moves
// down. It reports whether the stop changed.
func (pl *Planner) AdvanceStop(p *Position, price decimal.Decimal) (decimal.Decimal, bool) {
	for idx, step := range p.Plan.Steps {
		if idx <= p.LastMilestoneIndex {
			continue
		}

		trigger := p.EntryPrice.Mul(one.Add(step.TriggerPct))
		if price.LessThan(trigger) {
			continue
		}

		var candidate decimal.Decimal
		if step.IsBreakeven {
			candidate = p.EntryPrice.Mul(one.Add(p.Plan.BreakevenPct))
		} else {
			candidate = p.EntryPrice.Mul(one.Add(step.TargetStopPct))
		}

		if candidate.GreaterThan(p.CurrentStopPrice) {
			p.CurrentStopPrice = candidate
			p.LastMilestoneIndex = idx
			return candidate, true
		}
	}
	return p.CurrentStopPrice, false
}

// CheckExit reports whether price closes the position. The stop wins when
// both the stop and the take profit are crossed.
func (pl *Planner) CheckExit(p *Position, price decimal.Decimal) (ExitReason, bool) {
	if price.LessThanOrEqual(p.CurrentStopPrice) {
		return ReasonStopLoss, true
	}
	if price.GreaterThanOrEqual(p.Plan.TakeProfitPrice(p.EntryPrice)) {
		return ReasonTakeProfit, true
	}
	return "", false
}
