package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalQueuePacing(t *testing.T) {
	interval := 40 * time.Millisecond
	queue := NewLocalQueue(interval)

	ctx := context.Background()

	start := time.Now()
	require.NoError(t, queue.Request(ctx, 0))
	require.NoError(t, queue.Request(ctx, 1))
	require.NoError(t, queue.Request(ctx, 2))

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, int64(elapsed), int64(2*interval))
}

func TestLocalQueueCancelReturnsSlot(t *testing.T) {
	interval := 60 * time.Millisecond
	queue := NewLocalQueue(interval)

	require.NoError(t, queue.Request(context.Background(), 0))

	// shard 1 gives up while waiting for the next window
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- queue.Request(ctx, 1)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	assert.Error(t, <-done)

	// shard 2 takes the window shard 1 abandoned
	start := time.Now()
	require.NoError(t, queue.Request(context.Background(), 2))
	assert.Less(t, int64(time.Since(start)), int64(2*interval))
}

func TestLocalQueueDefaultInterval(t *testing.T) {
	queue := NewLocalQueue(0)
	assert.Equal(t, IdentifyInterval, queue.interval)
}
