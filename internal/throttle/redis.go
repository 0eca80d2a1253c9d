package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript runs the token bucket atomically in Redis.
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity
// ARGV[3] = now (unix seconds, microsecond precision)
// ARGV[4] = idle expiry in seconds
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, ttl)

return {allowed, tostring(tokens)}
`)

// RedisLimiter shares vote buckets across engine processes
type RedisLimiter struct {
	client *redis.Client
	rate   float64 // tokens per second
	burst  int
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a limiter backed by the Redis server at addr
func NewRedisLimiter(addr, password string, db int, perMinute float64, burst int) *RedisLimiter {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisLimiterWithClient(rdb, perMinute, burst)
}

// NewRedisLimiterWithClient wraps an existing client
func NewRedisLimiterWithClient(client *redis.Client, perMinute float64, burst int) *RedisLimiter {
	if burst <= 0 {
		burst = 5
	}
	return &RedisLimiter{
		client: client,
		rate:   perMinute / 60,
		burst:  burst,
		prefix: "verdict:votes:",
		now:    time.Now,
	}
}

// Allow consumes a token from key's shared bucket
func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(r.now().UnixMicro()) / 1e6
	res, err := tokenBucketScript.Run(ctx, r.client, []string{r.prefix + key}, r.rate, r.burst, now, r.idleTTL()).Result()
	if err != nil {
		return false, fmt.Errorf("redis limiter: %w", err)
	}

	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, fmt.Errorf("redis limiter: unexpected script result %v", res)
	}
	allowed, _ := results[0].(int64)
	return allowed == 1, nil
}

// Ping checks connectivity
func (r *RedisLimiter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client
func (r *RedisLimiter) Close() error {
	return r.client.Close()
}

// idleTTL is how long a full refill takes, in whole seconds
func (r *RedisLimiter) idleTTL() int {
	return int(refillTime(r.rate, r.burst) / time.Second)
}
