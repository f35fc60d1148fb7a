package client

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatelimiterExhaustedBucketBlocks(t *testing.T) {
	rl := NewRatelimiter()
	ctx := context.Background()
	route := "GET /channels/123/messages"

	ticket, err := rl.Acquire(ctx, route)
	require.NoError(t, err)

	headers := http.Header{}
	headers.Set("X-RateLimit-Limit", "5")
	headers.Set("X-RateLimit-Remaining", "0")
	headers.Set("X-RateLimit-Reset-After", "0.05")
	ticket.Release(http.StatusOK, headers)

	start := time.Now()
	ticket, err = rl.Acquire(ctx, route)
	require.NoError(t, err)
	ticket.Cancel()

	assert.GreaterOrEqual(t, int64(time.Since(start)), int64(40*time.Millisecond))
}

func TestRatelimiterRemainingDoesNotBlock(t *testing.T) {
	rl := NewRatelimiter()
	ctx := context.Background()
	route := "GET /channels/123/messages"

	ticket, err := rl.Acquire(ctx, route)
	require.NoError(t, err)

	headers := http.Header{}
	headers.Set("X-RateLimit-Limit", "5")
	headers.Set("X-RateLimit-Remaining", "3")
	headers.Set("X-RateLimit-Reset-After", "60")
	ticket.Release(http.StatusOK, headers)

	start := time.Now()
	ticket, err = rl.Acquire(ctx, route)
	require.NoError(t, err)
	ticket.Cancel()

	assert.Less(t, int64(time.Since(start)), int64(time.Second))
}

func TestRatelimiterGlobalBlocksEveryRoute(t *testing.T) {
	rl := NewRatelimiter()
	ctx := context.Background()

	ticket, err := rl.Acquire(ctx, "POST /channels/123/messages")
	require.NoError(t, err)

	headers := http.Header{}
	headers.Set("X-RateLimit-Global", "true")
	headers.Set("Retry-After", "0.05")
	ticket.Release(http.StatusTooManyRequests, headers)

	// a route that never saw the 429 still waits it out
	start := time.Now()
	ticket, err = rl.Acquire(ctx, "GET /gateway/bot")
	require.NoError(t, err)
	ticket.Cancel()

	assert.GreaterOrEqual(t, int64(time.Since(start)), int64(40*time.Millisecond))
}

func TestRatelimiterPerRoute429(t *testing.T) {
	rl := NewRatelimiter()
	ctx := context.Background()
	route := "PATCH /guilds/123"

	ticket, err := rl.Acquire(ctx, route)
	require.NoError(t, err)

	headers := http.Header{}
	headers.Set("Retry-After", "0.05")
	ticket.Release(http.StatusTooManyRequests, headers)

	start := time.Now()
	ticket, err = rl.Acquire(ctx, route)
	require.NoError(t, err)
	ticket.Cancel()

	assert.GreaterOrEqual(t, int64(time.Since(start)), int64(40*time.Millisecond))

	// other routes are unaffected
	start = time.Now()
	ticket, err = rl.Acquire(ctx, "GET /gateway")
	require.NoError(t, err)
	ticket.Cancel()

	assert.Less(t, int64(time.Since(start)), int64(40*time.Millisecond))
}

func TestRatelimiterBucketMigration(t *testing.T) {
	rl := NewRatelimiter()
	ctx := context.Background()

	routeA := "GET /channels/123/messages"
	routeB := "POST /channels/123/messages"

	ticket, err := rl.Acquire(ctx, routeA)
	require.NoError(t, err)

	headers := http.Header{}
	headers.Set("X-RateLimit-Bucket", "abcd1234")
	headers.Set("X-RateLimit-Remaining", "4")
	ticket.Release(http.StatusOK, headers)

	ticket, err = rl.Acquire(ctx, routeB)
	require.NoError(t, err)
	ticket.Release(http.StatusOK, headers)

	// both routes now resolve to the server assigned bucket
	bucketA := rl.bucketFor(routeA)
	bucketB := rl.bucketFor(routeB)
	assert.Same(t, bucketA, bucketB)
	assert.Equal(t, "abcd1234", bucketA.Key)
}

func TestRatelimiterMigrationMovesWaiters(t *testing.T) {
	rl := NewRatelimiter()
	ctx := context.Background()

	routeA := "GET /channels/123/messages"
	routeB := "POST /channels/123/messages"

	exhausted := http.Header{}
	exhausted.Set("X-RateLimit-Bucket", "shared")
	exhausted.Set("X-RateLimit-Remaining", "0")
	exhausted.Set("X-RateLimit-Reset-After", "0.2")

	ticket, err := rl.Acquire(ctx, routeA)
	require.NoError(t, err)
	ticket.Release(http.StatusOK, exhausted)

	// routeB still resolves to its provisional bucket
	ticket, err = rl.Acquire(ctx, routeB)
	require.NoError(t, err)

	admitted := make(chan time.Time, 1)
	go func() {
		waiter, err := rl.Acquire(ctx, routeB)
		if err == nil {
			admitted <- time.Now()
			waiter.Cancel()
		}
	}()

	time.Sleep(20 * time.Millisecond)

	// releasing migrates routeB onto the exhausted shared bucket; the
	// queued waiter must follow it and wait out the reset
	start := time.Now()
	ticket.Release(http.StatusOK, exhausted)

	select {
	case at := <-admitted:
		assert.GreaterOrEqual(t, int64(at.Sub(start)), int64(100*time.Millisecond))
	case <-time.After(time.Second):
		t.Fatal("queued waiter was never admitted")
	}
}

func TestRatelimiterSerializesBucket(t *testing.T) {
	rl := NewRatelimiter()
	ctx := context.Background()
	route := "GET /users/@me"

	ticket, err := rl.Acquire(ctx, route)
	require.NoError(t, err)

	// a second acquire queues behind the held ticket
	acquired := make(chan *Ticket, 1)
	go func() {
		second, err := rl.Acquire(ctx, route)
		if err == nil {
			acquired <- second
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire did not wait for the first release")
	case <-time.After(50 * time.Millisecond):
	}

	ticket.Release(http.StatusOK, http.Header{})

	select {
	case second := <-acquired:
		second.Cancel()
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed")
	}
}

func TestRatelimiterAcquireCancel(t *testing.T) {
	rl := NewRatelimiter()
	route := "GET /users/@me"

	ticket, err := rl.Acquire(context.Background(), route)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = rl.Acquire(ctx, route)
	assert.Error(t, err)

	ticket.Release(http.StatusOK, http.Header{})
}

func TestTicketReleaseIdempotent(t *testing.T) {
	rl := NewRatelimiter()

	ticket, err := rl.Acquire(context.Background(), "GET /gateway")
	require.NoError(t, err)

	ticket.Release(http.StatusOK, http.Header{})
	ticket.Release(http.StatusOK, http.Header{})
	ticket.Cancel()

	// the slot is free exactly once
	ticket, err = rl.Acquire(context.Background(), "GET /gateway")
	require.NoError(t, err)
	ticket.Cancel()
}
