// Package robots enforces robots.txt allow/disallow rules per origin.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
	"github.com/JakeFAU/quotes-crawler/internal/metrics"
)

const maxRobotsBytes = 1 << 20

// Config controls the gate.
type Config struct {
	// Timeout bounds each robots.txt request.
	Timeout time.Duration
	// TTL is how long a fetched policy stays valid. Zero keeps it for the
	// lifetime of the process.
	TTL time.Duration
}

// Gate fetches, caches and evaluates robots.txt per origin. robots.txt
// requests bypass the rate limiter.
type Gate struct {
	client *http.Client
	cfg    Config
	clock  crawler.Clock
	logger *zap.Logger

	mu      sync.Mutex
	entries map[crawler.Origin]*entry
}

// entry is one origin's policy. Its mutex is held while the policy is being
// fetched so concurrent first callers wait for a single request.
type entry struct {
	mu        sync.Mutex
	data      *robotstxt.RobotsData
	allowAll  bool
	fetchedAt time.Time
	loaded    bool
}

// New builds a Gate. A nil client gets one with cfg.Timeout.
func New(cfg Config, client *http.Client, clock crawler.Clock, logger *zap.Logger) *Gate {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		client:  client,
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
		entries: make(map[crawler.Origin]*entry),
	}
}

// Allows implements crawler.RobotsPolicy. The group for userAgent is used,
// falling back to "*"; the longest matching rule decides and Allow wins a tie.
func (g *Gate) Allows(ctx context.Context, origin crawler.Origin, path string, userAgent string) bool {
	if g == nil {
		return true
	}
	e := g.entryFor(origin)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded || g.expired(e) {
		g.refresh(ctx, origin, userAgent, e)
	}
	if e.allowAll || e.data == nil {
		return true
	}
	group := e.data.FindGroup(userAgent)
	if group == nil {
		return true
	}
	return group.Test(path)
}

func (g *Gate) entryFor(origin crawler.Origin) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[origin]
	if !ok {
		e = &entry{}
		g.entries[origin] = e
	}
	return e
}

func (g *Gate) expired(e *entry) bool {
	if g.cfg.TTL <= 0 {
		return false
	}
	return g.now().Sub(e.fetchedAt) >= g.cfg.TTL
}

// refresh loads robots.txt into e. Any failure leaves the origin allow-all
// until the next refresh.
func (g *Gate) refresh(ctx context.Context, origin crawler.Origin, userAgent string, e *entry) {
	e.loaded = true
	e.fetchedAt = g.now()
	data, err := g.load(ctx, origin, userAgent)
	if err != nil && ctx.Err() != nil {
		// A canceled caller must not pin the origin to allow-all.
		e.loaded = false
		e.data = nil
		e.allowAll = true
		return
	}
	if err != nil {
		e.data = nil
		e.allowAll = true
		metrics.ObserveRobotsFetch(origin.String(), "fail_open")
		g.logger.Warn("robots fetch failed; allowing access", zap.String("origin", origin.String()), zap.Error(err))
		return
	}
	e.data = data
	e.allowAll = false
	metrics.ObserveRobotsFetch(origin.String(), "ok")
	g.logger.Debug("robots policy loaded", zap.String("origin", origin.String()))
}

func (g *Gate) load(ctx context.Context, origin crawler.Origin, userAgent string) (*robotstxt.RobotsData, error) {
	reqCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, origin.URL("/robots.txt"), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			g.logger.Debug("Failed to close robots response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch robots: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromBytes(allowRulesFirst(body))
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return data, nil
}

// allowRulesFirst moves each group's Allow lines ahead of its other lines.
// robotstxt keeps the first of several equally long matches, so this makes
// Allow win ties regardless of the order they were written in.
func allowRulesFirst(body []byte) []byte {
	lines := strings.Split(string(body), "\n")
	out := make([]string, 0, len(lines))
	var allows, rest []string
	flush := func() {
		out = append(out, allows...)
		out = append(out, rest...)
		allows, rest = allows[:0], rest[:0]
	}
	for _, line := range lines {
		switch directive(line) {
		case "user-agent":
			flush()
			out = append(out, line)
		case "allow":
			allows = append(allows, line)
		default:
			rest = append(rest, line)
		}
	}
	flush()
	return []byte(strings.Join(out, "\n"))
}

func directive(line string) string {
	key, _, ok := strings.Cut(line, ":")
	if !ok {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(key, "\ufeff")))
}

func (g *Gate) now() time.Time {
	if g.clock == nil {
		return time.Now().UTC()
	}
	return g.clock.Now()
}

// AllowAll is a RobotsPolicy that never consults robots.txt.
type AllowAll struct{}

// Allows implements crawler.RobotsPolicy.
func (AllowAll) Allows(context.Context, crawler.Origin, string, string) bool { return true }
