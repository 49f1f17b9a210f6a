// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_pages_total",
			Help: "Total number of page requests, labeled by site and outcome.",
		},
		[]string{"site", "outcome"},
	)

	crawlerBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_bytes_total",
			Help: "Total number of bytes fetched, labeled by site.",
		},
		[]string{"site"},
	)

	crawlerRobotsFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_robots_fetch_total",
			Help: "Total robots.txt fetches, labeled by site and result.",
		},
		[]string{"site", "result"},
	)

	crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawler_rate_limit_delays_seconds",
			Help:    "Histogram of rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	crawlerCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_cycles_total",
			Help: "Total number of crawl cycles, labeled by status.",
		},
		[]string{"status"},
	)

	crawlerRecordsExtractedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_records_extracted_total",
			Help: "Total number of records extracted across all cycles.",
		},
	)

	crawlerParseSkipsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_parse_skips_total",
			Help: "Total number of quote blocks skipped for missing fields.",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch counts one page request and the bytes it returned.
func ObserveFetch(site string, outcome string, bytesFetched int) {
	sanitizedSite := SanitizeSite(site)
	crawlerPagesTotal.WithLabelValues(sanitizedSite, outcome).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveRobotsFetch counts one robots.txt retrieval.
func ObserveRobotsFetch(site string, result string) {
	crawlerRobotsFetchTotal.WithLabelValues(SanitizeSite(site), result).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveCycle increments the cycle counter for the given status.
func ObserveCycle(status string) {
	crawlerCyclesTotal.WithLabelValues(status).Inc()
}

// ObserveExtraction adds a cycle's extraction counters.
func ObserveExtraction(records, skips int) {
	if records > 0 {
		crawlerRecordsExtractedTotal.Add(float64(records))
	}
	if skips > 0 {
		crawlerParseSkipsTotal.Add(float64(skips))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
