package gateway

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisQueue implements Queue on top of a shared redis key so multiple
// processes identifying with the same token share one pacing window. The
// holder of the key owns the current interval; everyone else polls the
// key's remaining TTL.
type RedisQueue struct {
	client   *redis.Client
	key      string
	interval time.Duration
}

// NewRedisQueue creates a queue paced through the given redis client. A
// non positive interval uses the default.
func NewRedisQueue(client *redis.Client, key string, interval time.Duration) *RedisQueue {
	if interval <= 0 {
		interval = IdentifyInterval
	}

	return &RedisQueue{
		client:   client,
		key:      key,
		interval: interval,
	}
}

// Request blocks until this process claims the pacing key or ctx is done.
func (q *RedisQueue) Request(ctx context.Context, shardID int) error {
	for {
		ok, err := q.client.SetNX(ctx, q.key, shardID, q.interval).Result()
		if err != nil {
			return err
		}

		if ok {
			return nil
		}

		ttl, err := q.client.PTTL(ctx, q.key).Result()
		if err != nil {
			return err
		}

		if ttl <= 0 {
			ttl = 50 * time.Millisecond
		}

		timer := time.NewTimer(ttl)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
