package robots

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func robotsServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			atomic.AddInt32(&hits, 1)
			w.WriteHeader(status)
			fmt.Fprint(w, body)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func mustOrigin(t *testing.T, raw string) crawler.Origin {
	t.Helper()
	o, err := crawler.ParseOrigin(raw)
	require.NoError(t, err)
	return o
}

func TestGateAllowsAndDisallows(t *testing.T) {
	t.Parallel()

	srv, _ := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /blocked\n")
	gate := New(Config{Timeout: time.Second}, srv.Client(), nil, zap.NewNop())
	origin := mustOrigin(t, srv.URL)
	ctx := context.Background()

	require.True(t, gate.Allows(ctx, origin, "/allowed", "test-agent"))
	require.False(t, gate.Allows(ctx, origin, "/blocked", "test-agent"))
	require.False(t, gate.Allows(ctx, origin, "/blocked/deeper?page=2", "test-agent"))
}

func TestGateLongestMatchWins(t *testing.T) {
	t.Parallel()

	body := "User-agent: *\nDisallow: /private\nAllow: /private/public\nDisallow: /private/public/secret\n"
	srv, _ := robotsServer(t, http.StatusOK, body)
	gate := New(Config{}, srv.Client(), nil, nil)
	origin := mustOrigin(t, srv.URL)
	ctx := context.Background()

	require.False(t, gate.Allows(ctx, origin, "/private/notes", "agent"))
	require.True(t, gate.Allows(ctx, origin, "/private/public/page", "agent"))
	require.False(t, gate.Allows(ctx, origin, "/private/public/secret/1", "agent"))
	require.True(t, gate.Allows(ctx, origin, "/", "agent"))
}

func TestGateAllowWinsEqualLengthTie(t *testing.T) {
	t.Parallel()

	for name, body := range map[string]string{
		"disallow first": "User-agent: *\nDisallow: /a\nAllow: /a\n",
		"allow first":    "User-agent: *\nAllow: /a\nDisallow: /a\n",
		"across groups":  "User-agent: other\nAllow: /\n\nUser-agent: *\nDisallow: /a\nCrawl-delay: 1\nAllow: /a\n",
	} {
		body := body
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			srv, _ := robotsServer(t, http.StatusOK, body)
			gate := New(Config{}, srv.Client(), nil, nil)
			origin := mustOrigin(t, srv.URL)
			require.True(t, gate.Allows(context.Background(), origin, "/a/page", "agent"))
		})
	}
}

func TestAllowRulesFirst(t *testing.T) {
	t.Parallel()

	in := "User-agent: a\nDisallow: /x\nallow: /x\n\nUser-agent: b\nDisallow: /y\nAllow: /y"
	want := "User-agent: a\nallow: /x\nDisallow: /x\n\nUser-agent: b\nAllow: /y\nDisallow: /y"
	require.Equal(t, want, string(allowRulesFirst([]byte(in))))
}

func TestGateUsesMatchingAgentGroup(t *testing.T) {
	t.Parallel()

	body := "User-agent: quotesbot\nDisallow: /page\n\nUser-agent: *\nDisallow: /author\n"
	srv, _ := robotsServer(t, http.StatusOK, body)
	gate := New(Config{}, srv.Client(), nil, nil)
	origin := mustOrigin(t, srv.URL)
	ctx := context.Background()

	require.False(t, gate.Allows(ctx, origin, "/page/1/", "quotesbot/1.0"))
	require.True(t, gate.Allows(ctx, origin, "/author/Jane-Austen/", "quotesbot/1.0"))

	require.True(t, gate.Allows(ctx, origin, "/page/1/", "otherbot"))
	require.False(t, gate.Allows(ctx, origin, "/author/Jane-Austen/", "otherbot"))
}

func TestGateFailsOpen(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusForbidden} {
		status := status
		t.Run(http.StatusText(status), func(t *testing.T) {
			t.Parallel()
			srv, _ := robotsServer(t, status, "User-agent: *\nDisallow: /\n")
			gate := New(Config{}, srv.Client(), nil, nil)
			require.True(t, gate.Allows(context.Background(), mustOrigin(t, srv.URL), "/anything", "agent"))
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		t.Parallel()
		srv, _ := robotsServer(t, http.StatusOK, "")
		origin := mustOrigin(t, srv.URL)
		srv.Close()
		gate := New(Config{Timeout: 500 * time.Millisecond}, nil, nil, nil)
		require.True(t, gate.Allows(context.Background(), origin, "/anything", "agent"))
	})
}

func TestGateCachesPerOrigin(t *testing.T) {
	t.Parallel()

	srv, hits := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /x\n")
	gate := New(Config{}, srv.Client(), nil, nil)
	origin := mustOrigin(t, srv.URL)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gate.Allows(context.Background(), origin, "/y", "agent")
		}()
	}
	wg.Wait()
	gate.Allows(context.Background(), origin, "/x", "agent")

	require.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestGateRefreshesAfterTTL(t *testing.T) {
	t.Parallel()

	srv, hits := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /x\n")
	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	gate := New(Config{TTL: time.Minute}, srv.Client(), clock, nil)
	origin := mustOrigin(t, srv.URL)
	ctx := context.Background()

	gate.Allows(ctx, origin, "/a", "agent")
	clock.Advance(30 * time.Second)
	gate.Allows(ctx, origin, "/a", "agent")
	require.Equal(t, int32(1), atomic.LoadInt32(hits))

	clock.Advance(31 * time.Second)
	gate.Allows(ctx, origin, "/a", "agent")
	require.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestAllowAll(t *testing.T) {
	t.Parallel()
	require.True(t, AllowAll{}.Allows(context.Background(), crawler.Origin{}, "/", "agent"))
}
