package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveFetch(t *testing.T) {
	before := testutil.ToFloat64(crawlerPagesTotal.WithLabelValues("fetch.example", "ok"))
	beforeBytes := testutil.ToFloat64(crawlerBytesTotal.WithLabelValues("fetch.example"))

	ObserveFetch("https://Fetch.example/page/1/", "ok", 128)
	ObserveFetch("https://fetch.example/page/2/", "ok", 0)

	if got := testutil.ToFloat64(crawlerPagesTotal.WithLabelValues("fetch.example", "ok")) - before; got != 2 {
		t.Errorf("expected 2 page observations, got %f", got)
	}
	if got := testutil.ToFloat64(crawlerBytesTotal.WithLabelValues("fetch.example")) - beforeBytes; got != 128 {
		t.Errorf("expected 128 bytes, got %f", got)
	}
}

func TestObserveExtractionIgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(crawlerRecordsExtractedTotal)
	beforeSkips := testutil.ToFloat64(crawlerParseSkipsTotal)

	ObserveExtraction(0, 0)
	ObserveExtraction(8, 1)

	if got := testutil.ToFloat64(crawlerRecordsExtractedTotal) - before; got != 8 {
		t.Errorf("expected 8 records, got %f", got)
	}
	if got := testutil.ToFloat64(crawlerParseSkipsTotal) - beforeSkips; got != 1 {
		t.Errorf("expected 1 skip, got %f", got)
	}
}

func TestObserveCycleAndDelay(t *testing.T) {
	before := testutil.ToFloat64(crawlerCyclesTotal.WithLabelValues("succeeded"))
	ObserveCycle("succeeded")
	if got := testutil.ToFloat64(crawlerCyclesTotal.WithLabelValues("succeeded")) - before; got != 1 {
		t.Errorf("expected cycle counter to increase by 1, got %f", got)
	}

	ObserveRateLimitDelay("delay.example", 2*time.Second)
	if n := testutil.CollectAndCount(crawlerRateLimitDelaysSeconds); n <= 0 {
		t.Errorf("expected rate limit histogram to be observed, got %d", n)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
