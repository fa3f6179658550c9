package safety

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/zeta-trader/internal/ledger"
	"github.com/amirphl/zeta-trader/internal/state"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type capture struct {
	mu   sync.Mutex
	msgs []string
}

func (c *capture) Send(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}
func (c *capture) SendWithRetry(msg string) error { return c.Send(msg) }
func (c *capture) RetryWithNotification(action func() error, _ string) error {
	return action()
}

func setup(t *testing.T, balance string) (*Controller, *state.Registry, *fakeClock, *capture) {
	t.Helper()
	reg := state.NewRegistry()
	reg.Register("BTCUSDT")
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	n := &capture{}
	c := NewController(DefaultParams(), reg, ledger.New(decimal.RequireFromString(balance)), n).WithClock(clock.now)
	return c, reg, clock, n
}

func TestAdmitUnregistered(t *testing.T) {
	c, _, _, _ := setup(t, "200")
	d := c.Admit("DOGEUSDT")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonUnregistered, d.Reason)
}

func TestAdmitActive(t *testing.T) {
	c, _, _, _ := setup(t, "200")
	assert.Equal(t, Decision{Allowed: true}, c.Admit("BTCUSDT"))
}

func TestAdmitInsufficientFunds(t *testing.T) {
	c, _, _, _ := setup(t, "2")
	d := c.Admit("BTCUSDT")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonInsufficientFunds, d.Reason)
}

func TestRateLimitTriggersCooldown(t *testing.T) {
	c, reg, clock, n := setup(t, "200")

	for i := 0; i < 8; i++ {
		require.True(t, c.Admit("BTCUSDT").Allowed, "entry %d", i+1)
		require.NoError(t, c.RecordEntry("BTCUSDT", clock.now()))
		clock.advance(5 * time.Second)
	}

	d := c.Admit("BTCUSDT")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonRateLimited, d.Reason)

	s, _ := reg.Safety("BTCUSDT")
	assert.Equal(t, state.ModeCooldown, s.Mode)
	assert.Equal(t, 15*time.Second, s.CooldownDuration)
	assert.Len(t, n.msgs, 1)

	// The window drains after the first entries age out, then cooldown expires.
	clock.advance(25 * time.Second)
	assert.True(t, c.Admit("BTCUSDT").Allowed)
	s, _ = reg.Safety("BTCUSDT")
	assert.Equal(t, state.ModeActive, s.Mode)
}

func TestEntryWindowPrunes(t *testing.T) {
	c, reg, clock, _ := setup(t, "200")
	for i := 0; i < 5; i++ {
		require.NoError(t, c.RecordEntry("BTCUSDT", clock.now()))
	}
	clock.advance(61 * time.Second)
	require.NoError(t, c.RecordEntry("BTCUSDT", clock.now()))

	s, _ := reg.Safety("BTCUSDT")
	assert.Len(t, s.EntryTimes, 1)
}

func TestExitCooldown(t *testing.T) {
	c, reg, clock, _ := setup(t, "200")

	require.NoError(t, c.RecordExit("BTCUSDT", decimal.RequireFromString("0.04")))

	s, _ := reg.Safety("BTCUSDT")
	assert.Equal(t, state.ModeCooldown, s.Mode)
	assert.Equal(t, 30*time.Second, s.CooldownDuration)

	clock.advance(29 * time.Second)
	d := c.Admit("BTCUSDT")
	assert.Equal(t, ReasonCooldown, d.Reason)

	clock.advance(time.Second)
	assert.True(t, c.Admit("BTCUSDT").Allowed)
}

func TestCooldownExpiryResetsLosses(t *testing.T) {
	tests := []struct {
		name       string
		resets     bool
		wantLosses int
	}{
		{"resets", true, 0},
		{"keeps", false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, reg, clock, _ := setup(t, "200")
			c.params.CooldownResetsLosses = tt.resets

			require.NoError(t, c.RecordExit("BTCUSDT", decimal.RequireFromString("-0.03")))
			clock.advance(31 * time.Second)
			require.True(t, c.Admit("BTCUSDT").Allowed)

			s, _ := reg.Safety("BTCUSDT")
			assert.Equal(t, tt.wantLosses, s.ConsecutiveLosses)
		})
	}
}

func TestThreeLossesEngageSafeModeUntilWin(t *testing.T) {
	c, reg, clock, n := setup(t, "200")
	c.params.CooldownResetsLosses = false

	for i := 0; i < 3; i++ {
		require.NoError(t, c.RecordExit("BTCUSDT", decimal.RequireFromString("-0.03")))
		clock.advance(time.Minute)
	}

	s, _ := reg.Safety("BTCUSDT")
	assert.Equal(t, state.ModeSafe, s.Mode)
	assert.Equal(t, 3, s.ConsecutiveLosses)

	for i := 0; i < 3; i++ {
		clock.advance(time.Hour)
		d := c.Admit("BTCUSDT")
		assert.Equal(t, ReasonSafeMode, d.Reason)
	}

	require.NoError(t, c.RecordExit("BTCUSDT", decimal.RequireFromString("0.01")))
	s, _ = reg.Safety("BTCUSDT")
	assert.Equal(t, 0, s.ConsecutiveLosses)
	assert.Equal(t, state.ModeCooldown, s.Mode)

	clock.advance(30 * time.Second)
	assert.True(t, c.Admit("BTCUSDT").Allowed)
	assert.NotEmpty(t, n.msgs)
}

func TestAdmitPromotesToSafeMode(t *testing.T) {
	c, reg, _, _ := setup(t, "200")
	require.NoError(t, reg.UpdateSafety("BTCUSDT", func(s *state.SafetyState) { s.ConsecutiveLosses = 3 }))

	d := c.Admit("BTCUSDT")
	assert.Equal(t, ReasonSafeMode, d.Reason)
	s, _ := reg.Safety("BTCUSDT")
	assert.Equal(t, state.ModeSafe, s.Mode)
}

func TestReset(t *testing.T) {
	c, reg, _, _ := setup(t, "200")
	require.NoError(t, reg.UpdateSafety("BTCUSDT", func(s *state.SafetyState) {
		s.Mode = state.ModeSafe
		s.ConsecutiveLosses = 4
	}))

	require.NoError(t, c.Reset("BTCUSDT"))

	s, _ := reg.Safety("BTCUSDT")
	assert.Equal(t, state.ModeActive, s.Mode)
	assert.Zero(t, s.ConsecutiveLosses)
	assert.True(t, c.Admit("BTCUSDT").Allowed)
	assert.Error(t, c.Reset("NOPE"))
}

func TestPrune(t *testing.T) {
	base := time.Unix(1000, 0)
	times := []time.Time{base, base.Add(10 * time.Second), base.Add(50 * time.Second)}

	got := prune(times, base.Add(65*time.Second), time.Minute)
	assert.Equal(t, []time.Time{base.Add(10 * time.Second), base.Add(50 * time.Second)}, got)
	assert.Empty(t, prune(nil, base, time.Minute))
}
