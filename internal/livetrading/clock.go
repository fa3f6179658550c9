package livetrading

import (
	"sync/atomic"
	"time"
)

// EventClock reports the latest event time the pipelines have handled.
// Replays pass its Now to the safety controller and the trading service so
// cooldowns and the entry-rate window run in candle time.
type EventClock struct {
	ns atomic.Int64
}

// Advance moves the clock to t. The clock never goes backwards.
func (c *EventClock) Advance(t time.Time) {
	n := t.UnixNano()
	for {
		cur := c.ns.Load()
		if n <= cur || c.ns.CompareAndSwap(cur, n) {
			return
		}
	}
}

// Now returns the latest event time, or the wall clock before the first
// event.
func (c *EventClock) Now() time.Time {
	n := c.ns.Load()
	if n == 0 {
		return time.Now().UTC()
	}
	return time.Unix(0, n).UTC()
}
