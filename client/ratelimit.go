package client

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Bucket tracks the ratelimit state of one server assigned bucket.
// Requests sharing a bucket are serialized through its lock channel, which
// queues blocked acquirers in FIFO order.
type Bucket struct {
	lock chan struct{}

	mu        sync.Mutex
	Key       string
	Limit     int
	Remaining int
	ResetAt   time.Time
}

func newBucket(key string) *Bucket {
	return &Bucket{
		lock:      make(chan struct{}, 1),
		Key:       key,
		Remaining: 1,
	}
}

func (b *Bucket) lockWith(ctx context.Context) error {
	select {
	case b.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bucket) unlock() {
	<-b.lock
}

// Ratelimiter coordinates REST requests through per bucket serialization
// and a process wide global block. Routes start on a provisional bucket
// derived from their own key and migrate to the server assigned bucket
// once the X-RateLimit-Bucket header reveals it.
type Ratelimiter struct {
	mu      sync.Mutex
	buckets map[string]*Bucket
	routes  map[string]string

	// globalUntil is the unix nano instant every acquisition waits for
	globalUntil int64
}

// NewRatelimiter creates an empty ratelimiter.
func NewRatelimiter() *Ratelimiter {
	return &Ratelimiter{
		buckets: make(map[string]*Bucket),
		routes:  make(map[string]string),
	}
}

// Ticket represents a granted slot on a bucket. Exactly one of Release or
// Cancel must be called once the request finishes.
type Ticket struct {
	rl       *Ratelimiter
	bucket   *Bucket
	route    string
	released int32
}

// Acquire blocks until the route's bucket permits a request, honouring the
// global block and the bucket's reset time. Cancelling ctx before the
// ticket is granted gives the slot to the next waiter.
func (r *Ratelimiter) Acquire(ctx context.Context, route string) (*Ticket, error) {
	for {
		if err := r.waitGlobal(ctx); err != nil {
			return nil, err
		}

		bucket := r.bucketFor(route)

		if err := bucket.lockWith(ctx); err != nil {
			return nil, err
		}

		// The route may have migrated to its canonical bucket while we
		// were queued on the provisional one; waiters follow the
		// migration so they serialize against the canonical state.
		if current := r.bucketFor(route); current != bucket {
			bucket.unlock()

			continue
		}

		bucket.mu.Lock()
		var wait time.Duration
		if bucket.Remaining == 0 && !bucket.ResetAt.IsZero() {
			wait = time.Until(bucket.ResetAt)
		}
		bucket.mu.Unlock()

		if wait > 0 {
			if err := sleep(ctx, wait); err != nil {
				bucket.unlock()
				return nil, err
			}
		}

		// the global block may have been raised while we were queued
		if atomic.LoadInt64(&r.globalUntil) > time.Now().UnixNano() {
			bucket.unlock()

			continue
		}

		return &Ticket{rl: r, bucket: bucket, route: route}, nil
	}
}

// Release records the response headers on the bucket and frees the slot.
// status is the HTTP status of the response the headers came from.
func (t *Ticket) Release(status int, headers http.Header) {
	if !atomic.CompareAndSwapInt32(&t.released, 0, 1) {
		return
	}
	defer t.bucket.unlock()

	bucket := t.bucket
	if key := headers.Get("X-RateLimit-Bucket"); key != "" {
		bucket = t.rl.migrate(t.route, t.bucket, key)
	}

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	if limit := headers.Get("X-RateLimit-Limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			bucket.Limit = n
		}
	}

	if remaining := headers.Get("X-RateLimit-Remaining"); remaining != "" {
		if n, err := strconv.Atoi(remaining); err == nil {
			bucket.Remaining = n
		}
	}

	if resetAfter := headers.Get("X-RateLimit-Reset-After"); resetAfter != "" {
		if seconds, err := strconv.ParseFloat(resetAfter, 64); err == nil {
			bucket.ResetAt = time.Now().Add(time.Duration(seconds * float64(time.Second)))
		}
	} else if reset := headers.Get("X-RateLimit-Reset"); reset != "" {
		if epoch, err := strconv.ParseFloat(reset, 64); err == nil {
			bucket.ResetAt = time.Unix(0, int64(epoch*float64(time.Second)))
		}
	}

	if status == http.StatusTooManyRequests {
		retryAfter := time.Second
		if retry := headers.Get("Retry-After"); retry != "" {
			if seconds, err := strconv.ParseFloat(retry, 64); err == nil {
				retryAfter = time.Duration(seconds * float64(time.Second))
			}
		}

		if headers.Get("X-RateLimit-Global") != "" {
			t.rl.setGlobal(time.Now().Add(retryAfter))
		} else {
			bucket.Remaining = 0
			bucket.ResetAt = time.Now().Add(retryAfter)
		}
	}
}

// Cancel frees the slot without header information, accounting the request
// against the bucket. Used when the response could not be observed.
func (t *Ticket) Cancel() {
	if !atomic.CompareAndSwapInt32(&t.released, 0, 1) {
		return
	}

	t.bucket.mu.Lock()
	if t.bucket.Remaining > 0 {
		t.bucket.Remaining--
	}
	t.bucket.mu.Unlock()

	t.bucket.unlock()
}

// bucketFor resolves the route's bucket, creating a provisional one keyed
// by the route itself when the canonical bucket is not yet known.
func (r *Ratelimiter) bucketFor(route string) *Bucket {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := route
	if mapped, ok := r.routes[route]; ok {
		key = mapped
	}

	bucket, ok := r.buckets[key]
	if !ok {
		bucket = newBucket(key)
		r.buckets[key] = bucket
	}

	return bucket
}

// migrate records the canonical bucket for a route. The first route to
// discover a bucket carries its provisional bucket over, so waiters
// already queued keep their place. When the canonical bucket already
// exists, queued waiters re-resolve the route on wake and move across.
func (r *Ratelimiter) migrate(route string, provisional *Bucket, canonicalKey string) *Bucket {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes[route] = canonicalKey

	if existing, ok := r.buckets[canonicalKey]; ok {
		return existing
	}

	provisional.mu.Lock()
	provisional.Key = canonicalKey
	provisional.mu.Unlock()

	r.buckets[canonicalKey] = provisional

	return provisional
}

func (r *Ratelimiter) setGlobal(until time.Time) {
	for {
		current := atomic.LoadInt64(&r.globalUntil)
		if until.UnixNano() <= current || atomic.CompareAndSwapInt64(&r.globalUntil, current, until.UnixNano()) {
			return
		}
	}
}

func (r *Ratelimiter) waitGlobal(ctx context.Context) error {
	for {
		until := atomic.LoadInt64(&r.globalUntil)
		wait := time.Until(time.Unix(0, until))
		if until == 0 || wait <= 0 {
			return nil
		}

		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
