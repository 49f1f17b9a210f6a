// Package collyfetcher implements crawler.Fetcher using gocolly. Every fetch
// is gated: robots.txt is consulted first, then the per-origin rate limiter,
// and only then is the request sent.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
	"github.com/JakeFAU/quotes-crawler/internal/metrics"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	robots        crawler.RobotsPolicy
	limiter       crawler.Limiter
	logger        *zap.Logger
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. A nil robots policy allows everything and a nil
// limiter never waits.
func New(cfg Config, robots crawler.RobotsPolicy, limiter crawler.Limiter, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	// robots.txt is enforced by the injected policy, not by colly.
	c.IgnoreRobotsTxt = true
	// Each cycle revisits the same pages.
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		robots:        robots,
		limiter:       limiter,
		logger:        logger,
		baseCollector: c,
	}
}

// Fetch retrieves rawURL. It never returns an error directly: the outcome
// and any failure are carried in the result.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) crawler.FetchResult {
	start := time.Now()
	result := crawler.FetchResult{URL: rawURL}

	u, err := url.Parse(rawURL)
	if err != nil {
		return f.failed(result, start, &crawler.TransportError{URL: rawURL, Err: err})
	}
	origin, err := crawler.OriginOf(u)
	if err != nil {
		return f.failed(result, start, &crawler.TransportError{URL: rawURL, Err: err})
	}

	if f.robots != nil && !f.robots.Allows(ctx, origin, crawler.RequestPath(u), f.baseCollector.UserAgent) {
		result.Outcome = crawler.FetchDisallowed
		result.Err = fmt.Errorf("%w: %s", crawler.ErrDisallowed, rawURL)
		result.Duration = time.Since(start)
		metrics.ObserveFetch(rawURL, string(crawler.FetchDisallowed), 0)
		f.logger.Info("fetch disallowed by robots.txt", zap.String("url", rawURL))
		return result
	}
	if f.limiter != nil {
		if err := f.limiter.Acquire(ctx, origin); err != nil {
			return f.failed(result, start, err)
		}
	}

	var resp *colly.Response
	var fetchErr error
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, &resp, &fetchErr)
	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		if ctx.Err() != nil {
			return f.failed(result, start, err)
		}
		return f.failed(result, start, &crawler.TransportError{URL: rawURL, Err: err})
	}
	if resp == nil {
		return f.failed(result, start, &crawler.TransportError{URL: rawURL, Err: fmt.Errorf("no response")})
	}

	result.URL = resp.Request.URL.String()
	result.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return f.failed(result, start, &crawler.TransportError{URL: rawURL, StatusCode: resp.StatusCode})
	}
	result.Outcome = crawler.FetchOK
	result.Body = append([]byte(nil), resp.Body...)
	result.Duration = time.Since(start)
	metrics.ObserveFetch(rawURL, string(crawler.FetchOK), len(result.Body))
	f.logger.Debug("fetched",
		zap.String("url", result.URL),
		zap.Int("status", result.StatusCode),
		zap.Int("bytes", len(result.Body)),
		zap.Duration("duration", result.Duration),
	)
	return result
}

func (f *Fetcher) failed(result crawler.FetchResult, start time.Time, err error) crawler.FetchResult {
	result.Outcome = crawler.FetchFailed
	result.Err = err
	result.Duration = time.Since(start)
	metrics.ObserveFetch(result.URL, string(crawler.FetchFailed), 0)
	f.logger.Debug("fetch failed", zap.String("url", result.URL), zap.Error(err))
	return result
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, resp **colly.Response, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*resp = r
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*resp = r
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, rawURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
