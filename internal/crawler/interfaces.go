package crawler

import (
	"context"
	"net/url"
	"time"
)

// Fetcher issues one gated GET and reports a tagged outcome.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) FetchResult
}

// RobotsPolicy decides whether a path on an origin may be fetched.
type RobotsPolicy interface {
	Allows(ctx context.Context, origin Origin, path string, userAgent string) bool
}

// Limiter blocks until the origin's bucket grants a token.
type Limiter interface {
	Acquire(ctx context.Context, origin Origin) error
}

// Strategy turns a fetched page into records for one site layout.
type Strategy interface {
	Variant() Variant
	PageURL(base *url.URL, page int) string
	Extract(body []byte, pageURL *url.URL) (Extraction, error)
	// AuthorURL returns the profile page for the record's author, or false
	// when the layout has no profile pages.
	AuthorURL(base *url.URL, rec Record) (string, bool)
	ExtractAuthor(body []byte) (string, bool)
}

// Store hands out persistence sessions. A session is opened per phase of a
// cycle and closed before the engine touches the network again.
type Store interface {
	Open(ctx context.Context) (Sink, error)
}

// Sink is a scoped persistence session.
type Sink interface {
	UpsertRecord(ctx context.Context, rec Record) error
	AuthorExists(ctx context.Context, name string) (bool, error)
	UpsertAuthorProfile(ctx context.Context, profile AuthorProfile) error
	Close() error
}

// RetryPolicy decides whether and when a failed fetch is retried.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Pauser suspends the caller for a duration or until ctx is done.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration) error
}

// IDGenerator produces cycle IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
