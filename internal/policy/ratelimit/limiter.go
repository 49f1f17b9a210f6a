// Package ratelimit implements a per-origin token bucket shared by every
// request the crawler makes to that origin.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
	"github.com/JakeFAU/quotes-crawler/internal/metrics"
)

// Config holds rate limiter configuration.
type Config struct {
	// Capacity is the bucket size: how many requests may start back to back.
	Capacity int
	// Refill is the interval at which one token is returned to the bucket.
	// Zero or negative disables limiting.
	Refill time.Duration
}

// Limiter manages per-origin rate limits. Buckets are created lazily and
// start full.
type Limiter struct {
	mu       sync.Mutex
	limiters map[crawler.Origin]*rate.Limiter
	limit    rate.Limit
	burst    int
	clock    crawler.Clock
	pauser   crawler.Pauser
}

// New creates a new Limiter. Time is read from clock and waits go through
// pauser so tests can drive both.
func New(cfg Config, clock crawler.Clock, pauser crawler.Pauser) *Limiter {
	limit := rate.Inf
	if cfg.Refill > 0 {
		limit = rate.Every(cfg.Refill)
	}
	burst := cfg.Capacity
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[crawler.Origin]*rate.Limiter),
		limit:    limit,
		burst:    burst,
		clock:    clock,
		pauser:   pauser,
	}
}

// Acquire takes one token for origin, waiting until the bucket refills if it
// is empty. Waiters on the same origin are served in reservation order. If
// ctx ends first the reservation is returned to the bucket.
func (l *Limiter) Acquire(ctx context.Context, origin crawler.Origin) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	limiter := l.limiterFor(origin)

	now := l.clock.Now()
	r := limiter.ReserveN(now, 1)
	if !r.OK() {
		return fmt.Errorf("rate limit wait: reservation for %s rejected", origin)
	}
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	metrics.ObserveRateLimitDelay(origin.Host, delay)
	if err := l.pauser.Pause(ctx, delay); err != nil {
		r.CancelAt(l.clock.Now())
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func (l *Limiter) limiterFor(origin crawler.Origin) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, exists := l.limiters[origin]
	if !exists {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[origin] = limiter
	}
	return limiter
}
