package crawler

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"

	"go.uber.org/zap"
)

// ExponentialRetryPolicy implements RetryPolicy with jittered backoff.
type ExponentialRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExponentialRetryPolicy builds a policy allowing maxAttempts retries.
func NewExponentialRetryPolicy(maxAttempts int) *ExponentialRetryPolicy {
	return &ExponentialRetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   500 * time.Millisecond,
		maxDelay:    10 * time.Second,
	}
}

// ShouldRetry decides whether the error is retryable. Robots denials, client
// errors and cancellation are never retried.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrDisallowed) {
		return false
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Temporary()
	}
	return false
}

// Backoff returns the wait duration before the next attempt.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := p.randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func (p *ExponentialRetryPolicy) randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// RetryingFetcher wraps a Fetcher with a caller-owned retry policy. The engine
// itself never retries; this decorator is opt-in via configuration.
type RetryingFetcher struct {
	next   Fetcher
	policy RetryPolicy
	pauser Pauser
	logger *zap.Logger
}

// NewRetryingFetcher wraps next. A nil policy disables retries.
func NewRetryingFetcher(next Fetcher, policy RetryPolicy, pauser Pauser, logger *zap.Logger) *RetryingFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingFetcher{next: next, policy: policy, pauser: pauser, logger: logger}
}

// Fetch delegates to the wrapped fetcher, retrying failed outcomes.
func (f *RetryingFetcher) Fetch(ctx context.Context, rawURL string) FetchResult {
	res := f.next.Fetch(ctx, rawURL)
	if f.policy == nil || f.pauser == nil {
		return res
	}
	for attempt := 0; res.Outcome == FetchFailed && f.policy.ShouldRetry(res.Err, attempt); attempt++ {
		delay := f.policy.Backoff(attempt)
		f.logger.Debug("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(res.Err),
		)
		if err := f.pauser.Pause(ctx, delay); err != nil {
			return res
		}
		res = f.next.Fetch(ctx, rawURL)
	}
	return res
}
