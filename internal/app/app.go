// Package app builds the crawler's dependency graph from configuration and
// runs it either as a one-shot crawl or as a long-lived server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/quotes-crawler/internal/api"
	"github.com/JakeFAU/quotes-crawler/internal/clock/system"
	"github.com/JakeFAU/quotes-crawler/internal/config"
	"github.com/JakeFAU/quotes-crawler/internal/crawler"
	"github.com/JakeFAU/quotes-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/quotes-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/quotes-crawler/internal/id/uuid"
	"github.com/JakeFAU/quotes-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/quotes-crawler/internal/robots"
	"github.com/JakeFAU/quotes-crawler/internal/scheduler"
	"github.com/JakeFAU/quotes-crawler/internal/storage/memory"
	"github.com/JakeFAU/quotes-crawler/internal/storage/postgres"
	"github.com/JakeFAU/quotes-crawler/internal/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     crawler.Store
	engine    *crawler.Engine
	runner    *scheduler.Runner
	apiServer *api.Server
	closers   []func() error
}

// Build creates the application's dependencies. The caller owns logger.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("sources", len(cfg.Crawler.Sources)),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("respect_robots", cfg.Crawler.RespectRobots),
	)

	store, err := a.setupStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = store

	clock := system.New()
	pauser := system.NewPauser()
	fetcher := a.setupFetcher(clock, pauser)

	a.engine = crawler.NewEngine(
		cfg.Engine(),
		fetcher,
		extract.Registry(),
		store,
		clock,
		uuid.NewUUIDGenerator(),
		logger.Named("engine"),
	)
	a.runner = scheduler.New(a.engine, logger.Named("scheduler"))
	a.apiServer = api.NewServer(a.runner, api.Config{APIKey: cfg.Server.APIKey}, logger.Named("api"))
	return a, nil
}

func (a *App) setupStore(ctx context.Context) (crawler.Store, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendMemory:
		a.logger.Warn("using in-memory storage backend; records are lost on exit")
		return memory.NewStore(), nil
	case config.BackendSQLite:
		store, err := sqlite.Open(ctx, a.cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite store init failed: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.logger.Info("using sqlite storage backend", zap.String("path", a.cfg.Storage.SQLitePath))
		return store, nil
	case config.BackendPostgres:
		store, err := postgres.NewStore(ctx, postgres.Config{
			DSN:          a.cfg.Storage.PostgresDSN,
			QuotesTable:  a.cfg.Storage.QuotesTable,
			AuthorsTable: a.cfg.Storage.AuthorsTable,
			MaxConns:     a.cfg.Storage.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
		if err := store.EnsureSchema(ctx); err != nil {
			a.closeAll()
			return nil, fmt.Errorf("postgres schema init failed: %w", err)
		}
		a.logger.Info("using postgres storage backend",
			zap.String("quotes_table", a.cfg.Storage.QuotesTable),
			zap.String("authors_table", a.cfg.Storage.AuthorsTable),
		)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}
}

func (a *App) setupFetcher(clock crawler.Clock, pauser crawler.Pauser) crawler.Fetcher {
	var policy crawler.RobotsPolicy = robots.AllowAll{}
	if a.cfg.Crawler.RespectRobots {
		policy = robots.New(robots.Config{
			Timeout: a.cfg.FetchTimeout(),
			TTL:     a.cfg.RobotsTTL(),
		}, nil, clock, a.logger.Named("robots"))
	} else {
		a.logger.Warn("robots.txt enforcement disabled")
	}

	limiter := ratelimit.New(ratelimit.Config{
		Capacity: a.cfg.Crawler.RateCapacity,
		Refill:   a.cfg.RateRefill(),
	}, clock, pauser)
	a.logger.Info("rate limiter configured",
		zap.Int("capacity", a.cfg.Crawler.RateCapacity),
		zap.Duration("refill", a.cfg.RateRefill()),
	)

	var fetcher crawler.Fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Crawler.UserAgent,
		Timeout:   a.cfg.FetchTimeout(),
	}, policy, limiter, a.logger.Named("fetcher"))

	if a.cfg.Crawler.FetchRetries > 0 {
		fetcher = crawler.NewRetryingFetcher(
			fetcher,
			crawler.NewExponentialRetryPolicy(a.cfg.Crawler.FetchRetries),
			pauser,
			a.logger.Named("retry"),
		)
		a.logger.Info("fetch retries enabled", zap.Int("max_attempts", a.cfg.Crawler.FetchRetries))
	}
	return fetcher
}

// Store exposes the persistence backend.
func (a *App) Store() crawler.Store {
	return a.store
}

// Handler returns the HTTP handler served by Run.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// RunOnce runs a single crawl cycle and returns its summary.
func (a *App) RunOnce(ctx context.Context) (crawler.Summary, error) {
	summary, err := a.runner.RunOnce(ctx, scheduler.TriggerManual)
	if err != nil {
		return summary, fmt.Errorf("run crawl cycle: %w", err)
	}
	return summary, nil
}

// Run serves the HTTP API and the periodic trigger until ctx is canceled or
// the process receives SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go a.runner.Schedule(ctx, a.cfg.Schedule.Interval, a.cfg.Schedule.RunOnStart)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close cancels any running cycle and releases the store.
func (a *App) Close() error {
	if a.runner != nil {
		a.runner.Close()
	}
	err := a.closeAll()
	a.logger.Info("shutdown complete")
	return err
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
