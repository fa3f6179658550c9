package notifier

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/amirphl/zeta-trader/internal/metrics"
	"github.com/amirphl/zeta-trader/internal/utils"
)

// Async queues messages and delivers them from a background goroutine so
// callers on the trading path never wait on the network.
type Async struct {
	inner   Notifier
	ch      chan string
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// NewAsync wraps inner with a queue of size capacity.
func NewAsync(inner Notifier, capacity int) *Async {
	if capacity < 1 {
		capacity = 1
	}
	return &Async{inner: inner, ch: make(chan string, capacity)}
}

// Start launches the delivery loop. It drains the queue after ctx is done.
func (a *Async) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case msg := <-a.ch:
				a.deliver(msg)
			case <-ctx.Done():
				for {
					select {
					case msg := <-a.ch:
						a.deliver(msg)
					default:
						return
					}
				}
			}
		}
	}()
}

// Wait blocks until the delivery loop has drained and exited.
func (a *Async) Wait() {
	a.wg.Wait()
}

func (a *Async) deliver(msg string) {
	if err := a.inner.SendWithRetry(msg); err != nil {
		utils.GetLogger().Printf("Notifier | dropped message after retries: %v", err)
	}
}

// Send enqueues msg. A full queue drops it; every drop is logged and
// counted.
func (a *Async) Send(msg string) error {
	select {
	case a.ch <- msg:
	default:
		n := a.dropped.Add(1)
		metrics.NotificationsDropped.Inc()
		utils.GetLogger().Printf("Notifier | queue full, dropped message #%d: %s", n, summary(msg))
	}
	return nil
}

// Dropped returns how many messages Send has dropped.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// summary is the first line of msg, cut to 80 bytes.
func summary(msg string) string {
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	if len(msg) > 80 {
		msg = msg[:80] + "..."
	}
	return msg
}

func (a *Async) SendWithRetry(msg string) error { return a.Send(msg) }

func (a *Async) RetryWithNotification(action func() error, description string) error {
	return a.inner.RetryWithNotification(action, description)
}
