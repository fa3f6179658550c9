package journal

import (
	"context"
	"sync"
	"time"

	"github.com/amirphl/zeta-trader/internal/metrics"
	"github.com/amirphl/zeta-trader/internal/utils"
)

// Queue is a bounded in-memory AuditSink flushed to a Store in the
// background. When full, new records are dropped.
type Queue struct {
	store    Store
	capacity int
	interval time.Duration

	ch chan TradeRecord

	flushMu sync.Mutex
	pending []TradeRecord

	done chan struct{}
}

// NewQueue returns a queue holding at most capacity records and flushing
// every interval.
func NewQueue(store Store, capacity int, interval time.Duration) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Queue{
		store:    store,
		capacity: capacity,
		interval: interval,
		ch:       make(chan TradeRecord, capacity),
		done:     make(chan struct{}),
	}
}

func (q *Queue) Enqueue(r TradeRecord) bool {
	select {
	case q.ch <- r:
		return true
	default:
		metrics.JournalDropped.Inc()
		utils.GetLogger().Printf("Journal | queue full, dropped trade %s %s", r.Symbol, r.ID)
		return false
	}
}

// Start runs the flush loop until ctx is done, then flushes once more.
func (q *Queue) Start(ctx context.Context) {
	go func() {
		defer close(q.done)
		ticker := time.NewTicker(q.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := q.Flush(flushCtx); err != nil {
					utils.GetLogger().Printf("Journal | final flush failed: %v", err)
				}
				cancel()
				return
			case <-ticker.C:
				if err := q.Flush(ctx); err != nil {
					utils.GetLogger().Printf("Journal | flush failed: %v", err)
				}
			}
		}
	}()
}

// Wait blocks until the loop started by Start has exited.
func (q *Queue) Wait() {
	<-q.done
}

// Flush drains queued records into the store. On failure the batch is kept
// for the next flush, bounded by the queue capacity.
func (q *Queue) Flush(ctx context.Context) error {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

drain:
	for {
		select {
		case r := <-q.ch:
			q.pending = append(q.pending, r)
		default:
			break drain
		}
	}
	if len(q.pending) == 0 {
		return nil
	}

	if err := q.store.SaveTrades(ctx, q.pending); err != nil {
		if over := len(q.pending) - q.capacity; over > 0 {
			q.pending = q.pending[:q.capacity]
			metrics.JournalDropped.Add(float64(over))
			utils.GetLogger().Printf("Journal | dropped %d trades after failed flush", over)
		}
		return err
	}
	q.pending = q.pending[:0]
	return nil
}
