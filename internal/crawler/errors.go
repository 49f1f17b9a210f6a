package crawler

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrDisallowed is reported when robots.txt forbids a request.
	ErrDisallowed = errors.New("disallowed by robots.txt")
	// ErrNoSources means the cycle has nothing to crawl.
	ErrNoSources = errors.New("no sources configured")
	// ErrSinkUnavailable means nothing could be persisted this cycle.
	ErrSinkUnavailable = errors.New("persistence sink unavailable")
	// ErrUnknownVariant is returned for a source whose strategy is not registered.
	ErrUnknownVariant = errors.New("unknown extraction strategy")
)

// TransportError covers timeouts, connection failures and non-2xx responses.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether a retry could plausibly succeed.
func (e *TransportError) Temporary() bool {
	if e.Err != nil {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}
