// Package trading runs the per-tick decision flow for one symbol: manage an
// open position, or evaluate and execute a new entry.
package trading

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/amirphl/zeta-trader/internal/candle"
	"github.com/amirphl/zeta-trader/internal/exchange"
	"github.com/amirphl/zeta-trader/internal/indicator"
	"github.com/amirphl/zeta-trader/internal/journal"
	"github.com/amirphl/zeta-trader/internal/ledger"
	"github.com/amirphl/zeta-trader/internal/metrics"
	"github.com/amirphl/zeta-trader/internal/notifier"
	"github.com/amirphl/zeta-trader/internal/order"
	"github.com/amirphl/zeta-trader/internal/position"
	"github.com/amirphl/zeta-trader/internal/safety"
	"github.com/amirphl/zeta-trader/internal/state"
	"github.com/amirphl/zeta-trader/internal/strategy"
	"github.com/amirphl/zeta-trader/internal/utils"
)

var (
	ErrInvalidTick    = errors.New("invalid tick")
	ErrOrderNotFilled = errors.New("order not filled")
)

// Action is what a tick resulted in.
type Action string

const (
	ActionNone      Action = "none"
	ActionEntered   Action = "entered"
	ActionExited    Action = "exited"
	ActionStopMoved Action = "stop_moved"
	ActionRejected  Action = "rejected"
	ActionError     Action = "error"
)

// Outcome reports what ProcessTick did.
type Outcome struct {
	Action Action
	Reason string
	Err    error
}

// Tick is one price update for a symbol. Indicators may be left nil, in
// which case they are computed from Candles.
type Tick struct {
	Symbol     string
	Price      float64
	Time       time.Time
	Candles    []candle.Candle
	Indicators indicator.Snapshot
}

// Config holds the trading constants.
type Config struct {
	Mode                   string
	PositionSize           decimal.Decimal
	CommissionPct          decimal.Decimal
	MinFillNotional        decimal.Decimal
	OrderTimeout           time.Duration
	ExitFailureNotifyEvery int
}

// DefaultConfig trades 3 USDT per entry in paper mode with a 1 USDT
// minimum fill and a 10 s order timeout.
func DefaultConfig() Config {
	return Config{
		Mode:                   "Paper",
		PositionSize:           decimal.NewFromInt(3),
		CommissionPct:          decimal.Zero,
		MinFillNotional:        decimal.NewFromInt(1),
		OrderTimeout:           10 * time.Second,
		ExitFailureNotifyEvery: 10,
	}
}

// Deps are the collaborators of a Service. Engine, Notifier and Audit are
// optional.
type Deps struct {
	Ledger   *ledger.Ledger
	Registry *state.Registry
	Planner  *position.Planner
	Safety   *safety.Controller
	Policy   strategy.SignalPolicy
	Engine   indicator.Engine
	Gateway  exchange.OrderGateway
	Notifier notifier.Notifier
	Audit    journal.AuditSink
	Now      func() time.Time
}

// Service processes ticks. It is safe for concurrent use across symbols;
// ticks of one symbol must be serialized by the caller.
type Service struct {
	cfg Config
	Deps
}

func NewService(cfg Config, deps Deps) *Service {
	if deps.Notifier == nil {
		deps.Notifier = notifier.Nop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.ExitFailureNotifyEvery <= 0 {
		cfg.ExitFailureNotifyEvery = 10
	}
	return &Service{cfg: cfg, Deps: deps}
}

// Config returns the trading constants.
func (s *Service) Config() Config { return s.cfg }

// ProcessTick runs one decision step for t.Symbol.
func (s *Service) ProcessTick(ctx context.Context, t Tick) Outcome {
	if t.Price <= 0 || math.IsNaN(t.Price) || math.IsInf(t.Price, 0) {
		return Outcome{Action: ActionError, Err: fmt.Errorf("%w: price %v on %s", ErrInvalidTick, t.Price, t.Symbol)}
	}
	if t.Time.IsZero() {
		t.Time = s.Now()
	}

	slot, err := s.Registry.Slot(t.Symbol)
	if err != nil {
		return Outcome{Action: ActionError, Err: err}
	}
	if slot.Status == state.StatusOpen {
		return s.manage(ctx, t)
	}
	return s.evaluateEntry(ctx, t)
}

func (s *Service) manage(ctx context.Context, t Tick) Outcome {
	price := decimal.NewFromFloat(t.Price)

	var (
		newStop decimal.Decimal
		moved   bool
		reason  position.ExitReason
		exit    bool
	)
	err := s.Registry.UpdatePosition(t.Symbol, func(p *position.Position) {
		newStop, moved = s.Planner.AdvanceStop(p, price)
		reason, exit = s.Planner.CheckExit(p, price)
	})
	if err != nil {
		return Outcome{Action: ActionError, Err: err}
	}
	if moved {
		metrics.StopMoves.Inc()
		utils.GetLogger().Printf("Trading | %s stop moved to %s at price %s", t.Symbol, newStop.StringFixed(8), price)
	}
	if !exit {
		if moved {
			return Outcome{Action: ActionStopMoved}
		}
		return Outcome{Action: ActionNone}
	}
	return s.exit(ctx, t, reason)
}

func (s *Service) exit(ctx context.Context, t Tick, reason position.ExitReason) Outcome {
	p, ok := s.Registry.Position(t.Symbol)
	if !ok {
		return Outcome{Action: ActionError, Err: fmt.Errorf("failed to exit %s: %w", t.Symbol, state.ErrNoPosition)}
	}

	req := order.Request{
		Symbol:   t.Symbol,
		Side:     order.Sell,
		Type:     order.Market,
		Price:    t.Price,
		Quantity: p.Quantity.InexactFloat64(),
	}
	orderCtx, cancel := context.WithTimeout(ctx, s.cfg.OrderTimeout)
	fill, err := s.Gateway.PlaceOrder(orderCtx, req)
	cancel()
	if err == nil && !fill.Filled() {
		err = fmt.Errorf("%w: status %s", ErrOrderNotFilled, fill.Status)
	}
	if err != nil {
		return s.exitFailed(t.Symbol, reason, err)
	}

	exitPrice := decimal.NewFromFloat(fill.Price(t.Price))
	res := p.Settle(exitPrice, s.cfg.CommissionPct)

	closed, err := s.Registry.ClosePosition(t.Symbol)
	if err != nil {
		utils.GetLogger().Printf("Trading | %s exit filled but position could not be closed: %v", t.Symbol, err)
		return Outcome{Action: ActionError, Reason: string(reason), Err: err}
	}
	s.Ledger.Release(closed.SizeNotional, res.PnL, res.Fees)
	if err := s.Safety.RecordExit(t.Symbol, res.Net()); err != nil {
		utils.GetLogger().Printf("Trading | %s: %v", t.Symbol, err)
	}

	metrics.Exits.WithLabelValues(t.Symbol, string(reason)).Inc()
	metrics.ObserveNet(res.Net().InexactFloat64())
	s.observeBalance()

	utils.GetLogger().Printf("Trading | %s closed %s: entry=%s exit=%s pnl=%s (%s%%) fees=%s",
		t.Symbol, reason, closed.EntryPrice, exitPrice, res.PnL.StringFixed(8), res.PnLPct.StringFixed(2), res.Fees.StringFixed(8))
	_ = s.Notifier.Send(notifier.ExitMessage(closed, exitPrice, res.PnL, res.PnLPct, reason, t.Time, s.cfg.Mode))
	if s.Audit != nil {
		s.Audit.Enqueue(journal.NewTradeRecord(closed, res, reason, t.Time, s.cfg.Mode))
	}
	return Outcome{Action: ActionExited, Reason: string(reason)}
}

// exitFailed keeps the position open so the next tick retries the exit.
func (s *Service) exitFailed(symbol string, reason position.ExitReason, cause error) Outcome {
	var snapshot *position.Position
	err := s.Registry.UpdatePosition(symbol, func(p *position.Position) {
		p.ExitFailures++
		snapshot = p.Clone()
	})
	metrics.OrderFailures.WithLabelValues(string(order.Sell)).Inc()
	if err != nil {
		return Outcome{Action: ActionError, Reason: string(reason), Err: errors.Join(cause, err)}
	}

	utils.GetLogger().Printf("Trading | %s exit %s failed (%d in a row): %v", symbol, reason, snapshot.ExitFailures, cause)
	if n := snapshot.ExitFailures; n == 1 || n%s.cfg.ExitFailureNotifyEvery == 0 {
		_ = s.Notifier.Send(notifier.ExitFailureMessage(snapshot, reason, cause))
	}
	return Outcome{Action: ActionError, Reason: string(reason), Err: fmt.Errorf("failed to exit %s: %w", symbol, cause)}
}

func (s *Service) evaluateEntry(ctx context.Context, t Tick) Outcome {
	snap := t.Indicators
	if snap == nil && s.Engine != nil && len(t.Candles) > 0 {
		snap = s.Engine.Compute(t.Candles)
	}
	if len(snap) == 0 {
		return Outcome{Action: ActionNone, Reason: "insufficient history"}
	}

	sig := s.Policy.Evaluate(t.Price, snap)
	if sig.Action != strategy.ActionBuy {
		return Outcome{Action: ActionNone, Reason: sig.Reason}
	}

	d := s.Safety.Admit(t.Symbol)
	if !d.Allowed {
		metrics.Rejections.WithLabelValues(string(d.Reason)).Inc()
		utils.GetLogger().Printf("Trading | %s %s signal rejected: %s", t.Symbol, sig.Regime, d.Reason)
		return Outcome{Action: ActionRejected, Reason: string(d.Reason)}
	}
	return s.enter(ctx, t, sig)
}

func (s *Service) enter(ctx context.Context, t Tick, sig strategy.Signal) Outcome {
	size := s.cfg.PositionSize
	if !s.Ledger.Reserve(size) {
		metrics.Rejections.WithLabelValues(string(safety.ReasonInsufficientFunds)).Inc()
		return Outcome{Action: ActionRejected, Reason: string(safety.ReasonInsufficientFunds)}
	}

	req := order.Request{
		Symbol:            t.Symbol,
		Side:              order.Buy,
		Type:              order.Limit,
		Price:             t.Price,
		Notional:          size.InexactFloat64(),
		ImmediateOrCancel: true,
	}
	orderCtx, cancel := context.WithTimeout(ctx, s.cfg.OrderTimeout)
	fill, err := s.Gateway.PlaceOrder(orderCtx, req)
	cancel()

	filled := decimal.NewFromFloat(fill.Notional(t.Price))
	if err == nil && !fill.Filled() {
		err = fmt.Errorf("%w: status %s", ErrOrderNotFilled, fill.Status)
	}
	if err == nil && filled.LessThan(s.cfg.MinFillNotional) {
		err = fmt.Errorf("%w: filled %s below minimum %s", ErrOrderNotFilled, filled.StringFixed(8), s.cfg.MinFillNotional)
	}
	if err != nil {
		s.cancelBestEffort(ctx, t.Symbol, fill.OrderID)
		s.Ledger.Unreserve(size)
		metrics.OrderFailures.WithLabelValues(string(order.Buy)).Inc()
		utils.GetLogger().Printf("Trading | %s entry failed: %v", t.Symbol, err)
		return Outcome{Action: ActionError, Reason: sig.Reason, Err: fmt.Errorf("failed to enter %s: %w", t.Symbol, err)}
	}

	if fill.Status != order.StatusFilled {
		s.cancelBestEffort(ctx, t.Symbol, fill.OrderID)
	}

	notional := decimal.Min(filled, size)
	if rest := size.Sub(notional); rest.IsPositive() {
		s.Ledger.Unreserve(rest)
	}
	entryPrice := decimal.NewFromFloat(fill.Price(t.Price))
	p := position.New(t.Symbol, t.Time, entryPrice, notional, decimal.NewFromFloat(fill.FilledQty),
		s.Planner.BuildDefaultPlan(), s.Planner.InitialStop(entryPrice))
	p.OrderID = fill.OrderID

	if err := s.Registry.OpenPosition(t.Symbol, p); err != nil {
		s.Ledger.Unreserve(notional)
		utils.GetLogger().Printf("Trading | %s filled order %s has no position: %v", t.Symbol, fill.OrderID, err)
		_ = s.Notifier.Send(notifier.ErrorMessage(fmt.Sprintf("Untracked fill: %s", t.Symbol), err.Error()))
		return Outcome{Action: ActionError, Reason: sig.Reason, Err: err}
	}
	if err := s.Safety.RecordEntry(t.Symbol, s.Now()); err != nil {
		utils.GetLogger().Printf("Trading | %s: %v", t.Symbol, err)
	}

	metrics.Entries.WithLabelValues(t.Symbol).Inc()
	s.observeBalance()
	utils.GetLogger().Printf("Trading | %s entered (%s, %s): price=%s size=%s stop=%s",
		t.Symbol, sig.Regime, sig.Reason, entryPrice, notional.StringFixed(4), p.CurrentStopPrice.StringFixed(8))
	_ = s.Notifier.Send(notifier.EntryMessage(p, s.cfg.Mode))
	return Outcome{Action: ActionEntered, Reason: sig.Reason}
}

func (s *Service) cancelBestEffort(ctx context.Context, symbol, orderID string) {
	if orderID == "" {
		return
	}
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.OrderTimeout)
	defer cancel()
	if err := s.Gateway.CancelOrder(cancelCtx, symbol, orderID); err != nil {
		utils.GetLogger().Printf("Trading | %s cancel of %s failed: %v", symbol, orderID, err)
	}
}

func (s *Service) observeBalance() {
	b := s.Ledger.Snapshot()
	metrics.Balance.WithLabelValues("total").Set(b.Total.InexactFloat64())
	metrics.Balance.WithLabelValues("available").Set(b.Available.InexactFloat64())
	metrics.Balance.WithLabelValues("in_use").Set(b.InUse.InexactFloat64())
	metrics.OpenPositions.Set(float64(len(s.Registry.OpenPositions())))
}
