// Package ratelimit provides token-bucket admission control for outbound
// API calls. Every request against the upstream acquires tokens before it
// is sent; bursts up to the bucket capacity pass immediately and sustained
// throughput converges to the configured rate.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiting configuration for an upstream target.
type Config struct {
	// RequestsPerSecond is the sustained rate limit. Tokens refill
	// continuously, so fractional rates are supported.
	RequestsPerSecond float64
	// BurstSize is the bucket capacity.
	BurstSize int
}

// DefaultConfig is a conservative default, well below the Gmail API
// per-user quota to avoid burning quota units on bursts.
var DefaultConfig = Config{RequestsPerSecond: 2.0, BurstSize: 5}

// Limiter is a token-bucket rate limiter with optional backoff for 429
// responses. One Limiter instance guards one upstream target and must be
// shared by every caller hitting that target.
type Limiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

// New creates a limiter for the given configuration. Zero or negative
// fields fall back to DefaultConfig.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultConfig.RequestsPerSecond
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = DefaultConfig.BurstSize
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
	}
}

// Acquire blocks until cost tokens are available, then deducts them.
// It returns how long the caller waited. Acquire only fails when the
// context is cancelled or the cost exceeds the bucket capacity.
func (l *Limiter) Acquire(ctx context.Context, cost int) (time.Duration, error) {
	start := time.Now()

	// Honour any backoff set by a previous 429 before touching the bucket.
	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if until := time.Until(retryAt); until > 0 {
		select {
		case <-ctx.Done():
			return time.Since(start), ctx.Err()
		case <-time.After(until):
		}
	}

	if err := l.limiter.WaitN(ctx, cost); err != nil {
		return time.Since(start), err
	}
	return time.Since(start), nil
}

// Allow reports whether a single request could proceed right now without
// blocking. It does not consume a token on failure.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if time.Now().Before(retryAt) {
		return false
	}
	return l.limiter.Allow()
}

// RecordRateLimitError sets a cool-off period after the upstream returned
// 429. The next Acquire waits out the period before consuming tokens.
// A non-positive retryAfterSeconds applies the default 60s backoff.
func (l *Limiter) RecordRateLimitError(retryAfterSeconds int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if retryAfterSeconds <= 0 {
		retryAfterSeconds = 60
	}
	l.retryAt = time.Now().Add(time.Duration(retryAfterSeconds) * time.Second)
}

// Burst returns the bucket capacity.
func (l *Limiter) Burst() int {
	return l.limiter.Burst()
}
