package refresher

import (
	"context"
	"fmt"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// RedisWindowLimiter is a ProviderLimiter shared across scheduler replicas:
// a fixed window counter (INCR + EXPIRE) per provider, so the fleet as a
// whole respects a provider's documented quota.
type RedisWindowLimiter struct {
	client rdb.Cmdable
	prefix string
	max    int64
	window time.Duration
}

// NewRedisWindowLimiter creates the limiter. max is the number of refresh
// calls allowed per provider per window across all replicas.
func NewRedisWindowLimiter(client rdb.Cmdable, prefix string, max int, window time.Duration) *RedisWindowLimiter {
	if prefix == "" {
		prefix = "refresh:rl:"
	}
	return &RedisWindowLimiter{
		client: client,
		prefix: prefix,
		max:    int64(max),
		window: window,
	}
}

// Allow consumes one slot in the provider's current window.
func (l *RedisWindowLimiter) Allow(ctx context.Context, providerKey string) (bool, error) {
	winStart := time.Now().UTC().Truncate(l.window)
	key := fmt.Sprintf("%s%s:%d", l.prefix, providerKey, winStart.Unix())

	hits, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if hits == 1 {
		_ = l.client.Expire(ctx, key, l.window).Err()
	}
	return hits <= l.max, nil
}
