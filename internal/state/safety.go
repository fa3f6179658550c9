package state

import "time"

// Mode is a symbol's admission mode.
type Mode string

const (
	ModeActive   Mode = "ACTIVE"
	ModeCooldown Mode = "COOLDOWN"
	ModeSafe     Mode = "SAFE_MODE"
)

// SafetyState is the per-symbol admission bookkeeping.
type SafetyState struct {
	Mode              Mode          `json:"mode"`
	ConsecutiveLosses int           `json:"consecutive_losses"`
	EntryTimes        []time.Time   `json:"entry_times"`
	LastCooldownStart time.Time     `json:"last_cooldown_start"`
	CooldownDuration  time.Duration `json:"cooldown_duration"`
}

// NewSafetyState returns an ACTIVE state with no history.
func NewSafetyState() *SafetyState {
	return &SafetyState{Mode: ModeActive}
}

// Clone returns a deep copy.
func (s SafetyState) Clone() SafetyState {
	s.EntryTimes = append([]time.Time(nil), s.EntryTimes...)
	return s
}

// CooldownEnds returns when the current cooldown expires.
func (s SafetyState) CooldownEnds() time.Time {
	return s.LastCooldownStart.Add(s.CooldownDuration)
}
