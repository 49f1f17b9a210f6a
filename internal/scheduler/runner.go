// Package scheduler triggers crawl cycles on demand and on a fixed interval,
// making sure two cycles never overlap.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

// ErrCycleInProgress is returned when a cycle is requested while one runs.
var ErrCycleInProgress = errors.New("crawl cycle already in progress")

// Triggers recorded on each result.
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerStartup  = "startup"
	TriggerAPI      = "api"
)

// CycleRunner runs one crawl cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (crawler.Summary, error)
}

// Result is the outcome of the most recent finished cycle.
type Result struct {
	Trigger string          `json:"trigger"`
	Summary crawler.Summary `json:"summary"`
	Error   string          `json:"error,omitempty"`
}

// Runner serializes cycles. Background cycles started with Start run under
// the runner's own context and are canceled by Close.
type Runner struct {
	engine CycleRunner
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	last    *Result
}

// New builds a Runner around engine.
func New(engine CycleRunner, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{engine: engine, logger: logger, ctx: ctx, cancel: cancel}
}

// RunOnce runs a cycle synchronously.
func (r *Runner) RunOnce(ctx context.Context, trigger string) (crawler.Summary, error) {
	if !r.acquire() {
		return crawler.Summary{}, ErrCycleInProgress
	}
	return r.run(ctx, trigger)
}

// Start runs a cycle in the background and returns immediately.
func (r *Runner) Start(trigger string) error {
	r.mu.Lock()
	if err := r.ctx.Err(); err != nil {
		r.mu.Unlock()
		return err
	}
	if r.running {
		r.mu.Unlock()
		return ErrCycleInProgress
	}
	r.running = true
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		_, _ = r.run(r.ctx, trigger)
	}()
	return nil
}

// Schedule starts a cycle every interval until ctx is done, plus one right
// away when runOnStart is set. Ticks that land on a running cycle are
// skipped. A zero interval disables the periodic trigger.
func (r *Runner) Schedule(ctx context.Context, interval time.Duration, runOnStart bool) {
	if runOnStart {
		r.startLogged(TriggerStartup)
	}
	if interval <= 0 {
		r.logger.Info("periodic crawl disabled")
		<-ctx.Done()
		return
	}
	r.logger.Info("periodic crawl scheduled", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.startLogged(TriggerSchedule)
		}
	}
}

// Last returns the most recent finished cycle.
func (r *Runner) Last() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Result{}, false
	}
	return *r.last, true
}

// Running reports whether a cycle is in flight.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Close cancels any background cycle and waits for it to finish.
func (r *Runner) Close() {
	// Canceling under mu orders it against Start's wg.Add.
	r.mu.Lock()
	r.cancel()
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Runner) startLogged(trigger string) {
	if err := r.Start(trigger); err != nil {
		r.logger.Warn("crawl cycle not started", zap.String("trigger", trigger), zap.Error(err))
	}
}

func (r *Runner) acquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *Runner) run(ctx context.Context, trigger string) (crawler.Summary, error) {
	summary, err := r.engine.RunCycle(ctx)
	res := &Result{Trigger: trigger, Summary: summary}
	if err != nil {
		res.Error = err.Error()
		r.logger.Error("crawl cycle returned an error", zap.String("trigger", trigger), zap.Error(err))
	}

	r.mu.Lock()
	r.last = res
	r.running = false
	r.mu.Unlock()
	return summary, err
}
