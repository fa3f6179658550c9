// Package ledger tracks the virtual capital budget shared by every symbol.
package ledger

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrInconsistentBalance is returned by Restore when a balance breaks
// total = available + inUse or carries a negative component.
var ErrInconsistentBalance = errors.New("inconsistent virtual balance")

// VirtualBalance is a point-in-time copy of the budget.
type VirtualBalance struct {
	Total     decimal.Decimal `json:"total"`
	Available decimal.Decimal `json:"available"`
	InUse     decimal.Decimal `json:"in_use"`
}

// Validate checks the conservation invariant.
func (b VirtualBalance) Validate() error {
	if b.Available.IsNegative() || b.InUse.IsNegative() {
		return fmt.Errorf("%w: available=%s in_use=%s", ErrInconsistentBalance, b.Available, b.InUse)
	}
	if !b.Total.Equal(b.Available.Add(b.InUse)) {
		return fmt.Errorf("%w: total=%s available=%s in_use=%s", ErrInconsistentBalance, b.Total, b.Available, b.InUse)
	}
	return nil
}

// Ledger guards a VirtualBalance. All operations are atomic with respect to
// each other.
type Ledger struct {
	mu  sync.Mutex
	bal VirtualBalance
}

// New returns a ledger holding start as available capital.
func New(start decimal.Decimal) *Ledger {
	if start.IsNegative() {
		panic(fmt.Sprintf("ledger: negative starting balance %s", start))
	}
	return &Ledger{bal: VirtualBalance{Total: start, Available: start, InUse: decimal.Zero}}
}

// Reserve moves amount from available to in-use. It returns false and leaves
// the balance untouched when amount exceeds available.
func (l *Ledger) Reserve(amount decimal.Decimal) bool {
	if !amount.IsPositive() {
		panic(fmt.Sprintf("ledger: reserve of non-positive amount %s", amount))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if amount.GreaterThan(l.bal.Available) {
		return false
	}
	l.bal.Available = l.bal.Available.Sub(amount)
	l.bal.InUse = l.bal.InUse.Add(amount)
	return true
}

// Unreserve returns a hold that never turned into a position.
func (l *Ledger) Unreserve(amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if amount.GreaterThan(l.bal.InUse) {
		panic(fmt.Sprintf("ledger: unreserve %s exceeds in-use %s", amount, l.bal.InUse))
	}
	l.bal.InUse = l.bal.InUse.Sub(amount)
	l.bal.Available = l.bal.Available.Add(amount)
}

// Release settles a closed position: the reservation leaves in-use and
// returns to available together with the realized net result.
func (l *Ledger) Release(reserved, pnl, fees decimal.Decimal) {
	net := pnl.Sub(fees)

	l.mu.Lock()
	defer l.mu.Unlock()

	if reserved.GreaterThan(l.bal.InUse) {
		panic(fmt.Sprintf("ledger: release %s exceeds in-use %s", reserved, l.bal.InUse))
	}
	l.bal.InUse = l.bal.InUse.Sub(reserved)
	l.bal.Available = l.bal.Available.Add(reserved).Add(net)
	l.bal.Total = l.bal.Total.Add(net)

	if l.bal.Available.IsNegative() {
		log.Printf("Ledger | available balance went negative after release: %s", l.bal.Available)
	}
}

// CanAfford reports whether amount could be reserved right now.
func (l *Ledger) CanAfford(amount decimal.Decimal) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !amount.GreaterThan(l.bal.Available)
}

// Available returns the free capital.
func (l *Ledger) Available() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bal.Available
}

// Snapshot returns a copy of the balance.
func (l *Ledger) Snapshot() VirtualBalance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bal
}

// Restore replaces the balance with a previously saved one.
func (l *Ledger) Restore(b VirtualBalance) error {
	if err := b.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bal = b
	return nil
}
