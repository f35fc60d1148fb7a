package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// IdentifyInterval is the minimum gap between IDENTIFY frames across every
// shard sharing a queue.
const IdentifyInterval = 5 * time.Second

// Queue paces IDENTIFY admissions across shards. Request blocks until the
// caller is permitted to identify. Implementations must admit at most one
// caller per pacing interval; anything satisfying that contract may be
// used, including one backed by an external coordinator.
type Queue interface {
	Request(ctx context.Context, shardID int) error
}

type queueWaiter struct {
	shardID   int
	admit     chan struct{}
	abandoned int32
}

// LocalQueue is the in-process Queue. Admissions are FIFO across shards and
// paced one per interval. A waiter that cancels before being admitted does
// not consume a slot.
type LocalQueue struct {
	interval time.Duration
	waiters  chan *queueWaiter
	once     sync.Once
}

// NewLocalQueue creates a local identify queue. A non positive interval
// uses the default.
func NewLocalQueue(interval time.Duration) *LocalQueue {
	if interval <= 0 {
		interval = IdentifyInterval
	}

	return &LocalQueue{
		interval: interval,
		waiters:  make(chan *queueWaiter, BufferSize),
	}
}

// Request blocks until this shard is admitted or ctx is done.
func (q *LocalQueue) Request(ctx context.Context, shardID int) error {
	q.once.Do(func() {
		go q.run()
	})

	w := &queueWaiter{shardID: shardID, admit: make(chan struct{})}

	select {
	case q.waiters <- w:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-w.admit:
		return nil
	case <-ctx.Done():
		// Mark the slot abandoned so the pacer hands it to the next
		// waiter instead of burning an interval on it.
		atomic.StoreInt32(&w.abandoned, 1)
		return ctx.Err()
	}
}

func (q *LocalQueue) run() {
	for w := range q.waiters {
		if atomic.LoadInt32(&w.abandoned) == 1 {
			continue
		}

		close(w.admit)
		time.Sleep(q.interval)
	}
}
