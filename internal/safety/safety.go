// Package safety gates new entries per symbol: anti-spam rate limit,
// post-exit cooldown and a safe mode after consecutive losses.
package safety

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/amirphl/zeta-trader/internal/metrics"
	"github.com/amirphl/zeta-trader/internal/notifier"
	"github.com/amirphl/zeta-trader/internal/state"
	"github.com/amirphl/zeta-trader/internal/utils"
)

// Reason names why an entry was rejected.
type Reason string

const (
	ReasonUnregistered      Reason = "UNREGISTERED"
	ReasonSafeMode          Reason = "SAFE_MODE"
	ReasonRateLimited       Reason = "RATE_LIMITED"
	ReasonCooldown          Reason = "COOLDOWN"
	ReasonInsufficientFunds Reason = "INSUFFICIENT_FUNDS"
)

// Decision is the result of Admit.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Params configures the controller.
type Params struct {
	MaxConsecutiveLosses int
	MaxEntriesPerMinute  int
	EntryWindow          time.Duration
	AntiSpamCooldown     time.Duration
	ExitCooldown         time.Duration
	CooldownResetsLosses bool
	PositionSize         decimal.Decimal
}

// DefaultParams returns 3 losses, 8 entries per 60 s, 15 s anti-spam and
// 30 s post-exit cooldowns, 3 USDT per entry.
func DefaultParams() Params {
	return Params{
		MaxConsecutiveLosses: 3,
		MaxEntriesPerMinute:  8,
		EntryWindow:          time.Minute,
		AntiSpamCooldown:     15 * time.Second,
		ExitCooldown:         30 * time.Second,
		CooldownResetsLosses: true,
		PositionSize:         decimal.NewFromInt(3),
	}
}

// Store is the part of the registry the controller mutates.
type Store interface {
	UpdateSafety(symbol string, fn func(s *state.SafetyState)) error
}

// Funds answers whether a position size can be reserved.
type Funds interface {
	CanAfford(amount decimal.Decimal) bool
}

type transition struct {
	mode   state.Mode
	detail string
}

// Controller applies the admission rules. All state lives in the Store.
type Controller struct {
	params   Params
	store    Store
	funds    Funds
	notifier notifier.Notifier
	now      func() time.Time
}

// NewController returns a controller using the wall clock.
func NewController(params Params, store Store, funds Funds, n notifier.Notifier) *Controller {
	if n == nil {
		n = notifier.Nop{}
	}
	return &Controller{params: params, store: store, funds: funds, notifier: n, now: time.Now}
}

// WithClock replaces the clock, mainly for tests and replays.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

// Admit decides whether symbol may open a position now. Checks run in a
// fixed order: registration, safe mode, rate limit, cooldown, capital.
func (c *Controller) Admit(symbol string) Decision {
	now := c.now()
	var d Decision
	var tr *transition

	err := c.store.UpdateSafety(symbol, func(s *state.SafetyState) {
		if s.ConsecutiveLosses >= c.params.MaxConsecutiveLosses {
			if s.Mode != state.ModeSafe {
				s.Mode = state.ModeSafe
				tr = &transition{state.ModeSafe, fmt.Sprintf("%d consecutive losses, entries halted", s.ConsecutiveLosses)}
			}
			d = Decision{Reason: ReasonSafeMode}
			return
		}
		if s.Mode == state.ModeSafe {
			d = Decision{Reason: ReasonSafeMode}
			return
		}

		s.EntryTimes = prune(s.EntryTimes, now, c.params.EntryWindow)
		if len(s.EntryTimes) >= c.params.MaxEntriesPerMinute {
			if s.Mode != state.ModeCooldown {
				startCooldown(s, now, c.params.AntiSpamCooldown)
				tr = &transition{state.ModeCooldown, fmt.Sprintf("%d entries within %s (anti-spam)", len(s.EntryTimes), c.params.EntryWindow)}
			}
			d = Decision{Reason: ReasonRateLimited}
			return
		}

		if s.Mode == state.ModeCooldown {
			if now.Before(s.CooldownEnds()) {
				d = Decision{Reason: ReasonCooldown}
				return
			}
			s.Mode = state.ModeActive
			if c.params.CooldownResetsLosses && s.ConsecutiveLosses > 0 {
				s.ConsecutiveLosses = 0
			}
			utils.GetLogger().Printf("Safety | %s cooldown over, back to %s", symbol, state.ModeActive)
		}
		d = Decision{Allowed: true}
	})
	if errors.Is(err, state.ErrNotRegistered) {
		return Decision{Reason: ReasonUnregistered}
	}
	if err != nil {
		utils.GetLogger().Printf("Safety | admit %s: %v", symbol, err)
		return Decision{Reason: ReasonUnregistered}
	}

	c.report(symbol, tr)

	if d.Allowed && !c.funds.CanAfford(c.params.PositionSize) {
		d = Decision{Reason: ReasonInsufficientFunds}
	}
	return d
}

// RecordEntry adds t to the symbol's entry window.
func (c *Controller) RecordEntry(symbol string, t time.Time) error {
	return c.store.UpdateSafety(symbol, func(s *state.SafetyState) {
		s.EntryTimes = append(prune(s.EntryTimes, t, c.params.EntryWindow), t)
	})
}

// RecordExit updates the loss streak with a closed position's net result and
// moves the symbol into cooldown, or safe mode once the streak hits the limit.
func (c *Controller) RecordExit(symbol string, netPnL decimal.Decimal) error {
	now := c.now()
	var tr *transition

	err := c.store.UpdateSafety(symbol, func(s *state.SafetyState) {
		if netPnL.IsNegative() {
			s.ConsecutiveLosses++
		} else {
			s.ConsecutiveLosses = 0
		}

		if s.ConsecutiveLosses >= c.params.MaxConsecutiveLosses {
			if s.Mode != state.ModeSafe {
				tr = &transition{state.ModeSafe, fmt.Sprintf("%d consecutive losses, entries halted", s.ConsecutiveLosses)}
			}
			s.Mode = state.ModeSafe
			return
		}
		startCooldown(s, now, c.params.ExitCooldown)
		tr = &transition{state.ModeCooldown, fmt.Sprintf("post-exit cooldown %s", utils.FormatDuration(c.params.ExitCooldown))}
	})
	if err != nil {
		return fmt.Errorf("failed to record exit: %w", err)
	}
	c.report(symbol, tr)
	return nil
}

// Reset returns symbol to ACTIVE with a clean history. It is the operator's
// way out of safe mode.
func (c *Controller) Reset(symbol string) error {
	err := c.store.UpdateSafety(symbol, func(s *state.SafetyState) {
		*s = *state.NewSafetyState()
	})
	if err != nil {
		return fmt.Errorf("failed to reset safety state: %w", err)
	}
	c.report(symbol, &transition{state.ModeActive, "operator reset"})
	return nil
}

func (c *Controller) report(symbol string, tr *transition) {
	if tr == nil {
		return
	}
	utils.GetLogger().Printf("Safety | %s -> %s: %s", symbol, tr.mode, tr.detail)
	metrics.SafetyTransitions.WithLabelValues(string(tr.mode)).Inc()
	_ = c.notifier.Send(notifier.SafetyMessage(symbol, string(tr.mode), tr.detail))
}

func startCooldown(s *state.SafetyState, now time.Time, d time.Duration) {
	s.Mode = state.ModeCooldown
	s.LastCooldownStart = now
	s.CooldownDuration = d
}

// prune drops entry times older than window. times is in ascending order.
func prune(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	return append(times[:0], times[i:]...)
}
