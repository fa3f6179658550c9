package livetrading

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/amirphl/zeta-trader/internal/candle"
	"github.com/amirphl/zeta-trader/internal/metrics"
	"github.com/amirphl/zeta-trader/internal/notifier"
	"github.com/amirphl/zeta-trader/internal/utils"
)

// Handler processes one event. It is never called concurrently for the
// same symbol.
type Handler func(ctx context.Context, ev candle.Event)

// Dispatcher runs one worker goroutine per symbol. Events of a symbol are
// handled in arrival order; different symbols run in parallel.
type Dispatcher struct {
	ctx       context.Context
	handler   Handler
	queueSize int
	notifier  notifier.Notifier

	mu      sync.Mutex
	queues  map[string]chan candle.Event
	closed  bool
	wg      sync.WaitGroup
	dropped map[string]int
}

func NewDispatcher(ctx context.Context, queueSize int, handler Handler, n notifier.Notifier) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	if n == nil {
		n = notifier.Nop{}
	}
	return &Dispatcher{
		ctx:       ctx,
		handler:   handler,
		queueSize: queueSize,
		notifier:  n,
		queues:    make(map[string]chan candle.Event),
		dropped:   make(map[string]int),
	}
}

// Dispatch queues ev on its symbol's worker without blocking. It returns
// false when the queue is full or the dispatcher is closed; the event is
// then dropped.
func (d *Dispatcher) Dispatch(ev candle.Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}

	q, ok := d.queues[ev.Symbol]
	if !ok {
		q = make(chan candle.Event, d.queueSize)
		d.queues[ev.Symbol] = q
		d.wg.Add(1)
		go d.work(ev.Symbol, q)
	}

	select {
	case q <- ev:
		return true
	default:
		d.dropped[ev.Symbol]++
		metrics.DroppedTicks.WithLabelValues(ev.Symbol).Inc()
		utils.GetLogger().Printf("Dispatcher | %s queue full, dropped tick at %d (%d dropped so far)",
			ev.Symbol, ev.Candle.Timestamp, d.dropped[ev.Symbol])
		return false
	}
}

// Dropped returns the number of dropped events per symbol.
func (d *Dispatcher) Dropped() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.dropped))
	for k, v := range d.dropped {
		out[k] = v
	}
	return out
}

// Close stops accepting events, lets every worker drain its queue and
// waits for them.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) work(symbol string, q <-chan candle.Event) {
	defer d.wg.Done()
	for ev := range q {
		d.handle(symbol, ev)
	}
}

func (d *Dispatcher) handle(symbol string, ev candle.Event) {
	defer func() {
		if r := recover(); r != nil {
			utils.GetLogger().Printf("Dispatcher | Recovered from panic on %s: %v\n%s", symbol, r, debug.Stack())
			_ = d.notifier.Send(notifier.ErrorMessage(fmt.Sprintf("Worker panic: %s", symbol), fmt.Sprint(r)))
		}
	}()
	d.handler(d.ctx, ev)
}
