// Package ratelimit provides token bucket rate limiting: keyed buckets that pace
// outbound explorer calls, and per-client middleware for the ops API.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pendergraft/chainscout/internal/explorer"
)

// DefaultMaxWait is how long Wait will block for a token before rejecting
const DefaultMaxWait = 2 * time.Second

// Limiter holds one token bucket per key (one per explorer provider).
// Bucket rate is the provider's requests per second with an equal burst.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	maxWait time.Duration
	nowFunc func() time.Time
}

// NewLimiter creates a Limiter that rejects calls needing to wait longer than maxWait
func NewLimiter(maxWait time.Duration) *Limiter {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		maxWait: maxWait,
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the clock used to reserve tokens.
func (l *Limiter) SetNowFunc(fn func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nowFunc = fn
}

// Register creates or resizes the bucket for key. A non-positive rps disables limiting.
func (l *Limiter) Register(key string, rps int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit, burst := rate.Inf, 1
	if rps > 0 {
		limit, burst = rate.Limit(rps), rps
	}
	if b, ok := l.buckets[key]; ok {
		if b.Limit() != limit || b.Burst() != burst {
			b.SetLimitAt(l.nowFunc(), limit)
			b.SetBurstAt(l.nowFunc(), burst)
		}
		return
	}
	l.buckets[key] = rate.NewLimiter(limit, burst)
}

// Forget drops the bucket for key
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Wait takes one token for key, blocking up to the configured maximum.
// When the bucket needs longer it returns *explorer.RateLimitExceededError
// carrying the delay, and no token is consumed.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	l.mu.Lock()
	b, ok := l.buckets[key]
	now := l.nowFunc()
	l.mu.Unlock()
	if !ok {
		return nil
	}

	r := b.ReserveN(now, 1)
	if !r.OK() {
		return &explorer.RateLimitExceededError{Explorer: key, RetryAfter: l.maxWait}
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return nil
	}
	if delay > l.maxWait {
		r.CancelAt(now)
		return &explorer.RateLimitExceededError{Explorer: key, RetryAfter: delay}
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// Tokens returns the tokens currently available for key, or -1 when the key is unlimited or unknown
func (l *Limiter) Tokens(key string) float64 {
	l.mu.Lock()
	b, ok := l.buckets[key]
	now := l.nowFunc()
	l.mu.Unlock()
	if !ok || b.Limit() == rate.Inf {
		return -1
	}
	return b.TokensAt(now)
}
