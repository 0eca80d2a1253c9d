package throttle

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// Requires a running Redis; skipped when none is reachable
func TestRedisLimiter_Integration(t *testing.T) {
	limiter := NewRedisLimiter("localhost:6379", "", 0, 60, 1) // 1 token/sec
	defer limiter.Close()
	ctx := context.Background()
	if err := limiter.Ping(ctx); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	key := fmt.Sprintf("test-%d", time.Now().UnixNano())

	allowed, err := limiter.Allow(ctx, key)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !allowed {
		t.Errorf("Expected allowed=true for fresh bucket")
	}

	allowed, err = limiter.Allow(ctx, key)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if allowed {
		t.Errorf("Expected allowed=false (rate limited)")
	}

	time.Sleep(1100 * time.Millisecond)
	allowed, err = limiter.Allow(ctx, key)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !allowed {
		t.Errorf("Expected allowed=true after refill")
	}
}

func TestRedisLimiter_IdleTTL(t *testing.T) {
	tests := []struct {
		perMinute float64
		burst     int
		expected  int
	}{
		{60, 5, 60},
		{30, 100, 201},
		{0, 5, 60},
	}
	for _, tt := range tests {
		r := NewRedisLimiterWithClient(nil, tt.perMinute, tt.burst)
		if got := r.idleTTL(); got != tt.expected {
			t.Errorf("perMinute=%v burst=%d: expected ttl %d, got %d", tt.perMinute, tt.burst, tt.expected, got)
		}
	}
}
