// Package position
package position

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/amirphl/zeta-trader/internal/id"
)

// ExitReason explains why a position is closed.
type ExitReason string

const (
	ReasonStopLoss   ExitReason = "SL_HIT"
	ReasonTakeProfit ExitReason = "TP_HIT"
)

// Step is one rung of the stop ladder. Percentages are fractions of the
// entry price (0.0045 == 0.45%).
type Step struct {
	TriggerPct    decimal.Decimal `json:"trigger_pct"`
	TargetStopPct decimal.Decimal `json:"target_stop_pct"`
	IsBreakeven   bool            `json:"is_breakeven"`
}

// ExitPlan is fixed at entry and never changes afterwards.
type ExitPlan struct {
	FinalTakeProfitPct decimal.Decimal `json:"final_tp_pct"`
	BreakevenPct       decimal.Decimal `json:"breakeven_pct"`
	Steps              []Step          `json:"steps"`
}

// TakeProfitPrice returns the price at which the whole position is taken.
func (p ExitPlan) TakeProfitPrice(entry decimal.Decimal) decimal.Decimal {
	return entry.Mul(decimal.NewFromInt(1).Add(p.FinalTakeProfitPct))
}

// Position is an open long holding on one symbol.
type Position struct {
	ID                 string          `json:"id"`
	Symbol             string          `json:"symbol"`
	EntryTime          time.Time       `json:"entry_time"`
	EntryPrice         decimal.Decimal `json:"entry_price"`
	SizeNotional       decimal.Decimal `json:"size_notional"`
	Quantity           decimal.Decimal `json:"quantity"`
	OrderID            string          `json:"order_id,omitempty"`
	Plan               ExitPlan        `json:"plan"`
	CurrentStopPrice   decimal.Decimal `json:"current_stop_price"`
	LastMilestoneIndex int             `json:"last_milestone_index"`
	ExitFailures       int             `json:"exit_failures"`
}

// New creates an open position with no milestone reached yet.
func New(symbol string, entryTime time.Time, entryPrice, sizeNotional, quantity decimal.Decimal, plan ExitPlan, initialStop decimal.Decimal) *Position {
	return &Position{
		ID:                 id.NewAt(entryTime),
		Symbol:             symbol,
		EntryTime:          entryTime,
		EntryPrice:         entryPrice,
		SizeNotional:       sizeNotional,
		Quantity:           quantity,
		Plan:               plan,
		CurrentStopPrice:   initialStop,
		LastMilestoneIndex: -1,
	}
}

// Clone returns a deep copy.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	c.Plan.Steps = append([]Step(nil), p.Plan.Steps...)
	return &c
}

// Result is the realized outcome of closing a position at exitPrice.
type Result struct {
	ExitPrice decimal.Decimal
	PnL       decimal.Decimal
	PnLPct    decimal.Decimal
	Fees      decimal.Decimal
}

// Net is PnL after fees.
func (r Result) Net() decimal.Decimal { return r.PnL.Sub(r.Fees) }

// Settle computes PnL for a full close at exitPrice. Fees are charged on
// both legs at commissionPct.
func (p *Position) Settle(exitPrice, commissionPct decimal.Decimal) Result {
	pct := exitPrice.Sub(p.EntryPrice).Div(p.EntryPrice)
	pnl := pct.Mul(p.SizeNotional)
	exitNotional := p.SizeNotional.Add(pnl)
	fees := p.SizeNotional.Add(exitNotional).Mul(commissionPct)
	return Result{
		ExitPrice: exitPrice,
		PnL:       pnl,
		PnLPct:    pct.Mul(decimal.NewFromInt(100)),
		Fees:      fees,
	}
}
