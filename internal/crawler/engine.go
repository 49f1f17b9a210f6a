package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/quotes-crawler/internal/metrics"
)

// Engine runs crawl cycles over the configured sources.
type Engine struct {
	cfg        Config
	fetcher    Fetcher
	strategies map[Variant]Strategy
	store      Store
	clock      Clock
	ids        IDGenerator
	logger     *zap.Logger
}

// NewEngine wires an Engine. Store, clock, ids and logger may be nil.
func NewEngine(
	cfg Config,
	fetcher Fetcher,
	strategies map[Variant]Strategy,
	store Store,
	clock Clock,
	ids IDGenerator,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:        cfg,
		fetcher:    fetcher,
		strategies: strategies,
		store:      store,
		clock:      clock,
		ids:        ids,
		logger:     logger,
	}
}

type sourceResult struct {
	report   SourceReport
	records  []Record
	strategy Strategy
	base     *url.URL
}

// RunCycle performs one complete pass over all sources: fetch, extract,
// resolve new authors and persist. The summary is returned even when err is
// non-nil.
func (e *Engine) RunCycle(ctx context.Context) (Summary, error) {
	summary := Summary{
		CycleID:   e.newCycleID(),
		StartedAt: e.now(),
	}
	logger := e.logger.With(zap.String("cycle_id", summary.CycleID))

	if len(e.cfg.Sources) == 0 {
		logger.Error("crawl cycle aborted", zap.Error(ErrNoSources))
		summary.FinishedAt = e.now()
		metrics.ObserveCycle("failed")
		return summary, ErrNoSources
	}
	logger.Info("crawl cycle started", zap.Int("sources", len(e.cfg.Sources)))

	results := e.crawlSources(ctx, logger)
	for _, res := range results {
		summary.Sources = append(summary.Sources, res.report)
		summary.Records = append(summary.Records, res.records...)
		summary.ParseSkips += res.report.ParseSkips
		if res.report.State == SourceFailed {
			summary.SourceFailures++
		}
		if res.report.Disallowed {
			summary.Disallowed++
		}
	}
	summary.RecordsExtracted = len(summary.Records)
	metrics.ObserveExtraction(summary.RecordsExtracted, summary.ParseSkips)

	if err := ctx.Err(); err != nil {
		logger.Warn("crawl cycle canceled before persistence", zap.Int("records", summary.RecordsExtracted))
		summary.FinishedAt = e.now()
		metrics.ObserveCycle("canceled")
		return summary, fmt.Errorf("crawl cycle canceled: %w", err)
	}
	if summary.RecordsExtracted == 0 {
		logger.Warn("crawl cycle extracted no records",
			zap.Int("source_failures", summary.SourceFailures),
			zap.Int("disallowed", summary.Disallowed),
			zap.Int("parse_skips", summary.ParseSkips),
		)
	}

	err := e.persist(ctx, logger, results, &summary)
	summary.FinishedAt = e.now()

	status := "succeeded"
	if err != nil {
		status = "failed"
		logger.Error("crawl cycle failed", zap.Error(err))
	}
	metrics.ObserveCycle(status)
	logger.Info("crawl cycle finished",
		zap.Int("records_extracted", summary.RecordsExtracted),
		zap.Int("parse_skips", summary.ParseSkips),
		zap.Int("source_failures", summary.SourceFailures),
		zap.Int("records_persisted", summary.RecordsPersisted),
		zap.Int("persist_failures", summary.PersistFailures),
		zap.Int("authors_added", summary.AuthorsAdded),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, err
}

func (e *Engine) crawlSources(ctx context.Context, logger *zap.Logger) []sourceResult {
	results := make([]sourceResult, len(e.cfg.Sources))
	limit := e.cfg.Concurrency
	if limit <= 0 || limit > len(e.cfg.Sources) {
		limit = len(e.cfg.Sources)
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, src := range e.cfg.Sources {
		g.Go(func() error {
			results[i] = e.crawlSource(ctx, src, logger)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// crawlSource walks one source's pages strictly in order until the strategy
// reports no more pages or a fetch fails.
func (e *Engine) crawlSource(ctx context.Context, src Source, logger *zap.Logger) sourceResult {
	res := sourceResult{
		report: SourceReport{
			Source:  src.Label(),
			BaseURL: src.BaseURL,
			Variant: src.Variant,
			State:   SourceStart,
		},
	}
	log := logger.With(zap.String("source", src.Label()))

	strategy, ok := e.strategies[src.Variant]
	if !ok {
		e.fail(log, &res.report, fmt.Errorf("%w: %q", ErrUnknownVariant, src.Variant))
		return res
	}
	base, err := url.Parse(src.BaseURL)
	if err != nil {
		e.fail(log, &res.report, fmt.Errorf("parse base url: %w", err))
		return res
	}
	res.strategy = strategy
	res.base = base

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			e.fail(log, &res.report, err)
			return res
		}
		if e.cfg.MaxPages > 0 && page > e.cfg.MaxPages {
			log.Warn("page cap reached; stopping pagination", zap.Int("max_pages", e.cfg.MaxPages))
			e.transition(log, &res.report, SourceDone, page)
			return res
		}

		pageURL := strategy.PageURL(base, page)
		e.transition(log, &res.report, SourceFetchingPage, page)
		fetched := e.fetcher.Fetch(ctx, pageURL)
		switch fetched.Outcome {
		case FetchOK:
		case FetchDisallowed:
			res.report.Disallowed = true
			e.fail(log.With(zap.String("url", pageURL)), &res.report, ErrDisallowed)
			return res
		default:
			e.fail(log.With(zap.String("url", pageURL), zap.Int("page", page)), &res.report, fetched.Err)
			return res
		}
		res.report.Pages++

		e.transition(log, &res.report, SourceExtracting, page)
		extraction, err := strategy.Extract(fetched.Body, pageLocation(fetched.URL, pageURL))
		if err != nil {
			log.Warn("page could not be parsed; treating as end of pagination",
				zap.String("url", pageURL), zap.Error(err))
			extraction = Extraction{}
		}
		res.records = append(res.records, extraction.Records...)
		res.report.Records += len(extraction.Records)
		res.report.ParseSkips += extraction.Skipped
		if extraction.Skipped > 0 {
			log.Debug("quote blocks skipped", zap.Int("page", page), zap.Int("skipped", extraction.Skipped))
		}
		log.Info("page processed",
			zap.Int("page", page),
			zap.Int("records", len(extraction.Records)),
			zap.Int("source_total", res.report.Records),
		)

		if !extraction.HasMore {
			e.transition(log, &res.report, SourceDone, page)
			return res
		}
	}
}

func (e *Engine) transition(log *zap.Logger, report *SourceReport, to SourceState, page int) {
	log.Debug("source state change",
		zap.String("from", string(report.State)),
		zap.String("to", string(to)),
		zap.Int("page", page),
	)
	report.State = to
}

func (e *Engine) fail(log *zap.Logger, report *SourceReport, err error) {
	if err == nil {
		err = errors.New("unknown fetch failure")
	}
	report.State = SourceFailed
	report.Error = err.Error()
	if errors.Is(err, ErrDisallowed) {
		log.Warn("source abandoned", zap.Error(err))
		return
	}
	log.Error("source abandoned", zap.Int("pages", report.Pages), zap.Error(err))
}

func pageLocation(final, requested string) *url.URL {
	for _, raw := range []string{final, requested} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err == nil {
			return u
		}
	}
	return &url.URL{}
}

func (e *Engine) now() time.Time {
	if e.clock == nil {
		return time.Now().UTC()
	}
	return e.clock.Now()
}

func (e *Engine) newCycleID() string {
	if e.ids == nil {
		return ""
	}
	id, err := e.ids.NewID()
	if err != nil {
		e.logger.Warn("cycle id generation failed", zap.Error(err))
		return ""
	}
	return id
}
