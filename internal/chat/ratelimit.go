package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter decides whether a sender may send another message now
type RateLimiter interface {
	Allow(ctx context.Context, senderID string) (bool, error)
}

// RedisLimiter is a fixed-window counter per sender shared by every server
// process pointed at the same Redis.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter creates a limiter allowing limit sends per window
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{client: client, limit: limit, window: window, now: time.Now}
}

func sendWindowKey(senderID string, bucket int64) string {
	return fmt.Sprintf("ratelimit:send:%s:%d", senderID, bucket)
}

// Allow counts one send against senderID's current window
func (l *RedisLimiter) Allow(ctx context.Context, senderID string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	bucket := l.now().UnixNano() / int64(l.window)
	key := sendWindowKey(senderID, bucket)

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	return count.Val() <= int64(l.limit), nil
}
