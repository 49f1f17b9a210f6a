package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

// fakeTime is a manual clock whose Pause advances time instead of sleeping.
type fakeTime struct {
	mu     sync.Mutex
	now    time.Time
	pauses []time.Duration
}

func newFakeTime() *fakeTime {
	return &fakeTime{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTime) Pause(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses = append(f.pauses, d)
	f.now = f.now.Add(d)
	return nil
}

type cancelingPauser struct{}

func (cancelingPauser) Pause(context.Context, time.Duration) error { return context.Canceled }

var testOrigin = crawler.Origin{Scheme: "https", Host: "quotes.example"}

func TestLimiterSpacesRequestsPerOrigin(t *testing.T) {
	t.Parallel()

	ft := newFakeTime()
	l := New(Config{Capacity: 1, Refill: 2 * time.Second}, ft, ft)
	start := ft.Now()

	var granted []time.Duration
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(context.Background(), testOrigin))
		granted = append(granted, ft.Now().Sub(start))
	}

	require.Equal(t, []time.Duration{0, 2 * time.Second, 4 * time.Second}, granted)
}

func TestLimiterBurstCapacity(t *testing.T) {
	t.Parallel()

	ft := newFakeTime()
	l := New(Config{Capacity: 3, Refill: time.Second}, ft, ft)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(context.Background(), testOrigin))
	}
	require.Empty(t, ft.pauses)

	require.NoError(t, l.Acquire(context.Background(), testOrigin))
	require.Equal(t, []time.Duration{time.Second}, ft.pauses)
}

func TestLimiterOriginsAreIndependent(t *testing.T) {
	t.Parallel()

	ft := newFakeTime()
	l := New(Config{Capacity: 1, Refill: 2 * time.Second}, ft, ft)
	other := crawler.Origin{Scheme: "https", Host: "other.example"}

	require.NoError(t, l.Acquire(context.Background(), testOrigin))
	require.NoError(t, l.Acquire(context.Background(), other))
	require.Empty(t, ft.pauses)
}

func TestLimiterRefillsOverTime(t *testing.T) {
	t.Parallel()

	ft := newFakeTime()
	l := New(Config{Capacity: 1, Refill: 2 * time.Second}, ft, ft)

	require.NoError(t, l.Acquire(context.Background(), testOrigin))
	ft.mu.Lock()
	ft.now = ft.now.Add(5 * time.Second)
	ft.mu.Unlock()
	require.NoError(t, l.Acquire(context.Background(), testOrigin))
	require.Empty(t, ft.pauses)
}

func TestLimiterCanceledWait(t *testing.T) {
	t.Parallel()

	ft := newFakeTime()
	l := New(Config{Capacity: 1, Refill: 2 * time.Second}, ft, cancelingPauser{})

	require.NoError(t, l.Acquire(context.Background(), testOrigin))
	err := l.Acquire(context.Background(), testOrigin)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = l.Acquire(ctx, testOrigin)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	ft := newFakeTime()
	l := New(Config{Refill: 0}, ft, ft)
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Acquire(context.Background(), testOrigin))
	}
	require.Empty(t, ft.pauses)
}

func TestLimiterConcurrentWaitersShareBucket(t *testing.T) {
	t.Parallel()

	ft := newFakeTime()
	l := New(Config{Capacity: 1, Refill: time.Second}, ft, ft)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Acquire(context.Background(), testOrigin))
		}()
	}
	wg.Wait()

	ft.mu.Lock()
	defer ft.mu.Unlock()
	// Only the first waiter finds a token; at least one other had to wait.
	require.NotEmpty(t, ft.pauses)
}
