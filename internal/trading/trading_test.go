package trading

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/zeta-trader/internal/indicator"
	"github.com/amirphl/zeta-trader/internal/journal"
	"github.com/amirphl/zeta-trader/internal/ledger"
	"github.com/amirphl/zeta-trader/internal/order"
	"github.com/amirphl/zeta-trader/internal/position"
	"github.com/amirphl/zeta-trader/internal/safety"
	"github.com/amirphl/zeta-trader/internal/state"
	"github.com/amirphl/zeta-trader/internal/strategy"
)

const sym = "BTCUSDT"

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Name() string { return "mock" }

func (m *mockGateway) PlaceOrder(ctx context.Context, req order.Request) (order.Fill, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(order.Fill), args.Error(1)
}

func (m *mockGateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return m.Called(ctx, symbol, orderID).Error(0)
}

type fixedPolicy struct {
	sig strategy.Signal
}

func (p fixedPolicy) Name() string { return "fixed" }

func (p fixedPolicy) Evaluate(float64, indicator.Snapshot) strategy.Signal { return p.sig }

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Send(msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) SendWithRetry(msg string) error { return r.Send(msg) }

func (r *recorder) RetryWithNotification(action func() error, _ string) error { return action() }

func (r *recorder) count(substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

type auditSink struct {
	records []journal.TradeRecord
}

func (a *auditSink) Enqueue(r journal.TradeRecord) bool {
	a.records = append(a.records, r)
	return true
}

type fixture struct {
	svc      *Service
	gw       *mockGateway
	ledger   *ledger.Ledger
	registry *state.Registry
	notes    *recorder
	audit    *auditSink
}

func newFixture(t *testing.T, sig strategy.Signal) *fixture {
	t.Helper()
	l := ledger.New(decimal.NewFromInt(200))
	reg := state.NewRegistry()
	reg.Register(sym)
	notes := &recorder{}
	audit := &auditSink{}
	gw := &mockGateway{}

	cfg := DefaultConfig()
	cfg.OrderTimeout = 50 * time.Millisecond

	svc := NewService(cfg, Deps{
		Ledger:   l,
		Registry: reg,
		Planner:  position.NewPlanner(position.DefaultParams()),
		Safety:   safety.NewController(safety.DefaultParams(), reg, l, notes),
		Policy:   fixedPolicy{sig: sig},
		Gateway:  gw,
		Notifier: notes,
		Audit:    audit,
	})
	return &fixture{svc: svc, gw: gw, ledger: l, registry: reg, notes: notes, audit: audit}
}

var (
	buySignal = strategy.Signal{Action: strategy.ActionBuy, Regime: strategy.RegimeTrend, Reason: "trend"}
	warm      = indicator.Snapshot{indicator.EMAFast: 1}
)

func tick(price float64) Tick {
	return Tick{Symbol: sym, Price: price, Time: time.Now(), Indicators: warm}
}

func filled(side order.Side, qty, price float64) order.Fill {
	return order.Fill{OrderID: "o-" + string(side), Symbol: sym, Side: side, Status: order.StatusFilled, FilledQty: qty, AvgPrice: price}
}

func buyRequest(price float64) any {
	return mock.MatchedBy(func(r order.Request) bool {
		return r.Side == order.Buy && r.Type == order.Limit && r.ImmediateOrCancel && r.Price == price && r.Notional == 3
	})
}

func sellRequest() any {
	return mock.MatchedBy(func(r order.Request) bool { return r.Side == order.Sell && r.Type == order.Market })
}

func (f *fixture) enter(t *testing.T, price float64) {
	t.Helper()
	f.gw.On("PlaceOrder", mock.Anything, buyRequest(price)).Return(filled(order.Buy, 3/price, price), nil).Once()
	out := f.svc.ProcessTick(context.Background(), tick(price))
	require.Equal(t, ActionEntered, out.Action, out.Err)
}

func TestEntrySuccess(t *testing.T) {
	f := newFixture(t, buySignal)
	f.enter(t, 100)

	p, ok := f.registry.Position(sym)
	require.True(t, ok)
	assert.True(t, p.EntryPrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, p.SizeNotional.Equal(decimal.NewFromInt(3)))
	assert.True(t, p.CurrentStopPrice.Equal(decimal.NewFromInt(99)))
	assert.Equal(t, -1, p.LastMilestoneIndex)
	assert.Equal(t, "o-buy", p.OrderID)

	b := f.ledger.Snapshot()
	assert.True(t, b.Available.Equal(decimal.NewFromInt(197)))
	assert.True(t, b.InUse.Equal(decimal.NewFromInt(3)))

	s, _ := f.registry.Safety(sym)
	assert.Len(t, s.EntryTimes, 1)
	assert.Equal(t, 1, f.notes.count("New entry"))
	f.gw.AssertExpectations(t)
}

func TestNoSignalNoOrder(t *testing.T) {
	f := newFixture(t, strategy.Signal{Action: strategy.ActionNone, Reason: "rsi"})
	out := f.svc.ProcessTick(context.Background(), tick(100))
	assert.Equal(t, ActionNone, out.Action)
	assert.Equal(t, "rsi", out.Reason)

	// empty snapshot never reaches the policy
	f = newFixture(t, buySignal)
	out = f.svc.ProcessTick(context.Background(), Tick{Symbol: sym, Price: 100})
	assert.Equal(t, ActionNone, out.Action)
	f.gw.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func TestFailedEntryLeavesNothingBehind(t *testing.T) {
	tests := []struct {
		name  string
		setup func(gw *mockGateway)
	}{
		{
			name: "gateway error",
			setup: func(gw *mockGateway) {
				gw.On("PlaceOrder", mock.Anything, mock.Anything).Return(order.Fill{}, errors.New("rejected"))
			},
		},
		{
			name: "timeout",
			setup: func(gw *mockGateway) {
				gw.On("PlaceOrder", mock.Anything, mock.Anything).
					Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
					Return(order.Fill{}, context.DeadlineExceeded)
			},
		},
		{
			name: "unfilled IOC",
			setup: func(gw *mockGateway) {
				gw.On("PlaceOrder", mock.Anything, mock.Anything).
					Return(order.Fill{OrderID: "x", Status: order.StatusCanceled}, nil)
				gw.On("CancelOrder", mock.Anything, sym, "x").Return(nil).Once()
			},
		},
		{
			name: "fill below minimum notional",
			setup: func(gw *mockGateway) {
				gw.On("PlaceOrder", mock.Anything, mock.Anything).
					Return(order.Fill{OrderID: "y", Status: order.StatusPartiallyFilled, FilledQty: 0.005, AvgPrice: 100}, nil)
				gw.On("CancelOrder", mock.Anything, sym, "y").Return(errors.New("already done")).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, buySignal)
			tt.setup(f.gw)

			out := f.svc.ProcessTick(context.Background(), tick(100))
			assert.Equal(t, ActionError, out.Action)
			assert.Error(t, out.Err)

			assert.False(t, f.registry.HasOpenPosition(sym))
			b := f.ledger.Snapshot()
			assert.True(t, b.Available.Equal(decimal.NewFromInt(200)), b.Available.String())
			assert.True(t, b.InUse.IsZero())
			s, _ := f.registry.Safety(sym)
			assert.Empty(t, s.EntryTimes)
			f.gw.AssertExpectations(t)
		})
	}
}

func TestPartialFillReturnsUnusedHold(t *testing.T) {
	f := newFixture(t, buySignal)
	f.gw.On("PlaceOrder", mock.Anything, mock.Anything).
		Return(order.Fill{OrderID: "p", Status: order.StatusPartiallyFilled, FilledQty: 0.02, AvgPrice: 100}, nil)
	f.gw.On("CancelOrder", mock.Anything, sym, "p").Return(nil).Once()

	out := f.svc.ProcessTick(context.Background(), tick(100))
	require.Equal(t, ActionEntered, out.Action)
	f.gw.AssertCalled(t, "CancelOrder", mock.Anything, sym, "p")

	p, _ := f.registry.Position(sym)
	assert.True(t, p.SizeNotional.Equal(decimal.NewFromInt(2)), p.SizeNotional.String())
	b := f.ledger.Snapshot()
	assert.True(t, b.InUse.Equal(decimal.NewFromInt(2)))
	assert.True(t, b.Available.Equal(decimal.NewFromInt(198)))
}

func TestFullFillIsNotCancelled(t *testing.T) {
	f := newFixture(t, buySignal)
	f.gw.On("PlaceOrder", mock.Anything, mock.Anything).
		Return(order.Fill{OrderID: "f", Status: order.StatusFilled, FilledQty: 0.03, AvgPrice: 100}, nil)

	out := f.svc.ProcessTick(context.Background(), tick(100))
	require.Equal(t, ActionEntered, out.Action)
	f.gw.AssertNotCalled(t, "CancelOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestRejectedAdmission(t *testing.T) {
	f := newFixture(t, buySignal)
	require.NoError(t, f.registry.UpdateSafety(sym, func(s *state.SafetyState) { s.Mode = state.ModeSafe }))

	out := f.svc.ProcessTick(context.Background(), tick(100))
	assert.Equal(t, ActionRejected, out.Action)
	assert.Equal(t, string(safety.ReasonSafeMode), out.Reason)
	f.gw.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)

	out = f.svc.ProcessTick(context.Background(), Tick{Symbol: "ETHUSDT", Price: 1, Indicators: warm})
	assert.Equal(t, ActionError, out.Action)
	assert.ErrorIs(t, out.Err, state.ErrNotRegistered)
}

func TestInsufficientFunds(t *testing.T) {
	f := newFixture(t, buySignal)
	f.svc.Ledger = ledger.New(decimal.NewFromInt(2))
	f.svc.Safety = safety.NewController(safety.DefaultParams(), f.registry, f.svc.Ledger, nil)

	out := f.svc.ProcessTick(context.Background(), tick(100))
	assert.Equal(t, ActionRejected, out.Action)
	assert.Equal(t, string(safety.ReasonInsufficientFunds), out.Reason)
}

func TestExitOnTakeProfit(t *testing.T) {
	f := newFixture(t, buySignal)
	f.enter(t, 100)

	out := f.svc.ProcessTick(context.Background(), tick(100.5))
	assert.Equal(t, ActionStopMoved, out.Action)
	p, _ := f.registry.Position(sym)
	assert.True(t, p.CurrentStopPrice.Equal(decimal.RequireFromString("100.3")), p.CurrentStopPrice.String())

	f.gw.On("PlaceOrder", mock.Anything, sellRequest()).Return(filled(order.Sell, 0.03, 101.6), nil).Once()
	out = f.svc.ProcessTick(context.Background(), tick(101.6))
	require.Equal(t, ActionExited, out.Action, out.Err)
	assert.Equal(t, string(position.ReasonTakeProfit), out.Reason)

	assert.False(t, f.registry.HasOpenPosition(sym))
	b := f.ledger.Snapshot()
	assert.True(t, b.InUse.IsZero())
	assert.True(t, b.Total.Equal(decimal.RequireFromString("200.048")), b.Total.String())
	assert.True(t, b.Available.Equal(b.Total))

	s, _ := f.registry.Safety(sym)
	assert.Equal(t, state.ModeCooldown, s.Mode)
	assert.Equal(t, 0, s.ConsecutiveLosses)

	require.Len(t, f.audit.records, 1)
	assert.Equal(t, "TP_HIT", f.audit.records[0].ExitReason)
	assert.Equal(t, 1, f.notes.count("Position closed"))

	slot, err := f.registry.Slot(sym)
	require.NoError(t, err)
	assert.Equal(t, state.StatusClosed, slot.Status)
}

func TestExitOnStopLoss(t *testing.T) {
	f := newFixture(t, buySignal)
	f.enter(t, 100)

	f.gw.On("PlaceOrder", mock.Anything, sellRequest()).Return(filled(order.Sell, 0.03, 98.9), nil).Once()
	out := f.svc.ProcessTick(context.Background(), tick(98.9))
	require.Equal(t, ActionExited, out.Action)
	assert.Equal(t, string(position.ReasonStopLoss), out.Reason)

	b := f.ledger.Snapshot()
	assert.True(t, b.Total.Equal(decimal.RequireFromString("199.967")), b.Total.String())
	s, _ := f.registry.Safety(sym)
	assert.Equal(t, 1, s.ConsecutiveLosses)
}

func TestExitFailureKeepsPosition(t *testing.T) {
	f := newFixture(t, buySignal)
	f.enter(t, 100)

	f.gw.On("PlaceOrder", mock.Anything, sellRequest()).Return(order.Fill{}, errors.New("exchange down"))
	for i := 0; i < 10; i++ {
		out := f.svc.ProcessTick(context.Background(), tick(98))
		assert.Equal(t, ActionError, out.Action)
		assert.Equal(t, string(position.ReasonStopLoss), out.Reason)
	}

	p, ok := f.registry.Position(sym)
	require.True(t, ok)
	assert.Equal(t, 10, p.ExitFailures)
	assert.Equal(t, 2, f.notes.count("Exit failed"))

	b := f.ledger.Snapshot()
	assert.True(t, b.InUse.Equal(decimal.NewFromInt(3)))
	assert.Empty(t, f.audit.records)
}

func TestInvalidTick(t *testing.T) {
	f := newFixture(t, buySignal)
	out := f.svc.ProcessTick(context.Background(), Tick{Symbol: sym, Price: 0, Indicators: warm})
	assert.ErrorIs(t, out.Err, ErrInvalidTick)
}
