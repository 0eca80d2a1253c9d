// Package throttle limits how fast an identity may cast contest votes.
package throttle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ppiankov/verdict/internal/model"
)

// Limiter decides whether the holder of key may act now
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// New builds the limiter described by config.
// A shared Redis bucket is used when an address is set; a non-positive rate disables throttling.
func New(config model.ContestConfig) Limiter {
	if config.VotesPerMinute <= 0 {
		return Unlimited{}
	}
	if config.RedisAddr != "" {
		return NewRedisLimiter(config.RedisAddr, config.RedisPassword, config.RedisDB, config.VotesPerMinute, config.VoteBurst)
	}
	return NewLocalLimiter(config.VotesPerMinute, config.VoteBurst)
}

// Unlimited allows everything
type Unlimited struct{}

func (Unlimited) Allow(ctx context.Context, key string) (bool, error) { return true, nil }

// LocalLimiter implements per-identity rate limiting in process memory.
// Buckets idle long enough to have refilled are dropped.
type LocalLimiter struct {
	limiters     map[string]*localBucket
	mu           sync.Mutex
	defaultRate  rate.Limit
	defaultBurst int
	idle         time.Duration
	lastPrune    time.Time
	now          func() time.Time
}

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter creates a limiter allowing perMinute actions per key with the given burst
func NewLocalLimiter(perMinute float64, burst int) *LocalLimiter {
	if burst <= 0 {
		burst = 5
	}

	l := &LocalLimiter{
		limiters:     make(map[string]*localBucket),
		defaultRate:  rate.Limit(perMinute / 60),
		defaultBurst: burst,
		now:          time.Now,
	}
	l.idle = refillTime(float64(l.defaultRate), burst)
	return l
}

// Allow consumes a token for key without waiting
func (l *LocalLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	b, exists := l.limiters[key]
	if !exists {
		b = &localBucket{limiter: rate.NewLimiter(l.defaultRate, l.defaultBurst)}
		l.limiters[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1), nil
}

// Len returns the number of tracked keys
func (l *LocalLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// pruneLocked drops idle buckets at most once per idle period
func (l *LocalLimiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < l.idle {
		return
	}
	for key, b := range l.limiters {
		if now.Sub(b.lastSeen) >= l.idle {
			delete(l.limiters, key)
		}
	}
	l.lastPrune = now
}

// refillTime is how long an empty bucket takes to fill, at least a minute
func refillTime(perSecond float64, burst int) time.Duration {
	ttl := time.Minute
	if perSecond > 0 {
		if refill := time.Duration(float64(burst)/perSecond*float64(time.Second)) + time.Second; refill > ttl {
			ttl = refill
		}
	}
	return ttl
}
