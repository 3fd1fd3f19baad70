package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, cfg), mr
}

func TestAllowFixedWindow(t *testing.T) {
	l, mr := newLimiter(t, Config{Prefix: "t", MaxAttempts: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("hit %d: unexpected error %v", i+1, err)
		}
	}
	if err := l.Allow(ctx, "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.Allow(ctx, "10.0.0.2"); err != nil {
		t.Fatalf("other key should be unaffected: %v", err)
	}

	if ttl := mr.TTL("t:rl:10.0.0.1"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected window TTL, got %v", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.Allow(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("expected new window, got %v", err)
	}
}

func TestReset(t *testing.T) {
	l, _ := newLimiter(t, Config{Prefix: "t", MaxAttempts: 1})
	ctx := context.Background()

	_ = l.Allow(ctx, "k")
	if err := l.Allow(ctx, "k"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.Reset(ctx, "k"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.Allow(ctx, "k"); err != nil {
		t.Fatalf("expected allow after reset, got %v", err)
	}
}

func TestDisabledAndNil(t *testing.T) {
	var nilLimiter *Limiter
	if err := nilLimiter.Allow(context.Background(), "k"); err != nil {
		t.Fatalf("nil limiter must allow: %v", err)
	}

	l, _ := newLimiter(t, Config{MaxAttempts: 0})
	for i := 0; i < 10; i++ {
		if err := l.Allow(context.Background(), "k"); err != nil {
			t.Fatalf("disabled limiter must allow: %v", err)
		}
	}
}

func TestRedisDown(t *testing.T) {
	l, mr := newLimiter(t, Config{MaxAttempts: 5})
	mr.Close()
	if err := l.Allow(context.Background(), "k"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
