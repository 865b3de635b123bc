package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// windowScript increments the counter and starts its expiry on the first hit.
var windowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// RedisWindow is a WindowLimiter shared by every instance using the same Redis.
type RedisWindow struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewRedisWindow connects to addr and allows limit requests per key per window.
func NewRedisWindow(addr, password string, limit int, window time.Duration) *RedisWindow {
	return &RedisWindow{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		prefix: "circletel:ratelimit:",
		limit:  limit,
		window: window,
	}
}

// Allow implements WindowLimiter.
func (w *RedisWindow) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := windowScript.Run(ctx, w.client, []string{w.prefix + key}, w.window.Milliseconds()).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit: %w", err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return Decision{}, fmt.Errorf("redis rate limit: unexpected reply %v", res)
	}
	count, _ := vals[0].(int64)
	ttl, _ := vals[1].(int64)
	if ttl < 0 {
		ttl = w.window.Milliseconds()
	}
	return decide(int(count), w.limit, time.Now().Add(time.Duration(ttl)*time.Millisecond)), nil
}

// Ping checks the Redis connection.
func (w *RedisWindow) Ping(ctx context.Context) error {
	return w.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (w *RedisWindow) Close() error {
	return w.client.Close()
}
