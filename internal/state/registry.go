// Package state holds the shared per-symbol trading state.
package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/amirphl/zeta-trader/internal/position"
	"github.com/amirphl/zeta-trader/internal/utils"
)

var (
	ErrNotRegistered  = errors.New("symbol not registered")
	ErrPositionExists = errors.New("position already open")
	ErrNoPosition     = errors.New("no open position")
)

// SlotStatus tells whether a symbol never traded, holds a position, or
// closed one.
type SlotStatus int

const (
	StatusFlat SlotStatus = iota
	StatusOpen
	StatusClosed
)

func (s SlotStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	default:
		return "flat"
	}
}

type slot struct {
	status SlotStatus
	pos    *position.Position
}

// Registry maps symbols to their position slot and safety state. Every read
// returns a copy; every write goes through one of its methods.
type Registry struct {
	mu     sync.RWMutex
	slots  map[string]*slot
	safety map[string]*SafetyState
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		slots:  make(map[string]*slot),
		safety: make(map[string]*SafetyState),
	}
}

// Register adds symbol with a flat slot and an ACTIVE safety state. It is a
// no-op for known symbols.
func (r *Registry) Register(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registerLocked(symbol)
}

func (r *Registry) registerLocked(symbol string) {
	if _, ok := r.slots[symbol]; !ok {
		r.slots[symbol] = &slot{status: StatusFlat}
	}
	if _, ok := r.safety[symbol]; !ok {
		r.safety[symbol] = NewSafetyState()
	}
}

// IsRegistered reports whether symbol is known.
func (r *Registry) IsRegistered(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.slots[symbol]
	return ok
}

// Symbols returns the registered symbols in sorted order.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.slots))
	for s := range r.slots {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Position returns a copy of the open position for symbol.
func (r *Registry) Position(symbol string) (*position.Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sl, ok := r.slots[symbol]
	if !ok || sl.status != StatusOpen {
		return nil, false
	}
	return sl.pos.Clone(), true
}

// Slot is a read-only view of a symbol's position slot. Position is set
// only when Status is StatusOpen.
type Slot struct {
	Status   SlotStatus
	Position *position.Position
}

// Slot returns a copy of the slot for symbol.
func (r *Registry) Slot(symbol string) (Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sl, ok := r.slots[symbol]
	if !ok {
		return Slot{}, ErrNotRegistered
	}
	return Slot{Status: sl.status, Position: sl.pos.Clone()}, nil
}

// HasOpenPosition reports whether symbol holds a position.
func (r *Registry) HasOpenPosition(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sl, ok := r.slots[symbol]
	return ok && sl.status == StatusOpen
}

// OpenPosition stores p. A symbol holds at most one open position.
func (r *Registry) OpenPosition(symbol string, p *position.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sl, ok := r.slots[symbol]
	if !ok {
		return fmt.Errorf("failed to open position on %s: %w", symbol, ErrNotRegistered)
	}
	if sl.status == StatusOpen {
		utils.GetLogger().Printf("State | duplicate open rejected for %s (existing %s)", symbol, sl.pos.ID)
		return fmt.Errorf("failed to open position on %s: %w", symbol, ErrPositionExists)
	}
	sl.status = StatusOpen
	sl.pos = p.Clone()
	return nil
}

// UpdatePosition runs fn on the stored position under the write lock.
func (r *Registry) UpdatePosition(symbol string, fn func(p *position.Position)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sl, ok := r.slots[symbol]
	if !ok {
		return fmt.Errorf("failed to update position on %s: %w", symbol, ErrNotRegistered)
	}
	if sl.status != StatusOpen {
		return fmt.Errorf("failed to update position on %s: %w", symbol, ErrNoPosition)
	}
	fn(sl.pos)
	return nil
}

// ClosePosition removes and returns the open position for symbol.
func (r *Registry) ClosePosition(symbol string) (*position.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sl, ok := r.slots[symbol]
	if !ok {
		return nil, fmt.Errorf("failed to close position on %s: %w", symbol, ErrNotRegistered)
	}
	if sl.status != StatusOpen {
		return nil, fmt.Errorf("failed to close position on %s: %w", symbol, ErrNoPosition)
	}
	p := sl.pos
	sl.pos = nil
	sl.status = StatusClosed
	return p, nil
}

// OpenPositions returns copies of every open position sorted by symbol.
func (r *Registry) OpenPositions() []*position.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*position.Position, 0)
	for _, sl := range r.slots {
		if sl.status == StatusOpen {
			out = append(out, sl.pos.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Safety returns a copy of the safety state for symbol.
func (r *Registry) Safety(symbol string) (SafetyState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.safety[symbol]
	if !ok {
		return SafetyState{}, false
	}
	return s.Clone(), true
}

// UpdateSafety runs fn on the stored safety state under the write lock.
func (r *Registry) UpdateSafety(symbol string, fn func(s *SafetyState)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.safety[symbol]
	if !ok {
		return fmt.Errorf("failed to update safety state on %s: %w", symbol, ErrNotRegistered)
	}
	fn(s)
	return nil
}
