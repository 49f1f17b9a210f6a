package crawler

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"
)

type authorCandidate struct {
	name     string
	url      string
	strategy Strategy
}

// persist hands the cycle's records to the store in two scoped sessions.
// Author pages are fetched between them so no session is held while the
// engine waits on the network.
func (e *Engine) persist(ctx context.Context, logger *zap.Logger, results []sourceResult, summary *Summary) error {
	if e.store == nil {
		logger.Warn("no persistence store configured; records discarded", zap.Int("records", len(summary.Records)))
		return nil
	}

	missing, err := e.persistRecords(ctx, logger, authorCandidates(results), summary)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}

	profiles := e.fetchProfiles(ctx, logger, missing, summary)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("resolve author profiles: %w", err)
	}
	if len(profiles) == 0 {
		return nil
	}
	return e.persistProfiles(ctx, logger, profiles, summary)
}

// persistRecords upserts every record and returns the candidates whose
// author is not yet known to the store.
func (e *Engine) persistRecords(
	ctx context.Context,
	logger *zap.Logger,
	candidates []authorCandidate,
	summary *Summary,
) ([]authorCandidate, error) {
	sink, err := e.store.Open(ctx)
	if err != nil {
		summary.PersistFailures = len(summary.Records)
		return nil, fmt.Errorf("%w: open session: %w", ErrSinkUnavailable, err)
	}
	defer e.closeSink(logger, sink)

	for _, rec := range summary.Records {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("persist records: %w", err)
		}
		if err := sink.UpsertRecord(ctx, rec); err != nil {
			summary.PersistFailures++
			logger.Error("record upsert failed",
				zap.String("author", rec.Author),
				zap.String("source_url", rec.SourceURL),
				zap.Error(err),
			)
			continue
		}
		summary.RecordsPersisted++
	}
	if len(summary.Records) > 0 && summary.RecordsPersisted == 0 {
		return nil, fmt.Errorf("%w: all %d record upserts failed", ErrSinkUnavailable, len(summary.Records))
	}

	var missing []authorCandidate
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("check authors: %w", err)
		}
		exists, err := sink.AuthorExists(ctx, c.name)
		if err != nil {
			summary.AuthorFailures++
			logger.Error("author lookup failed", zap.String("author", c.name), zap.Error(err))
			continue
		}
		if !exists {
			missing = append(missing, c)
		}
	}
	return missing, nil
}

func (e *Engine) fetchProfiles(
	ctx context.Context,
	logger *zap.Logger,
	missing []authorCandidate,
	summary *Summary,
) []AuthorProfile {
	profiles := make([]AuthorProfile, 0, len(missing))
	for _, c := range missing {
		if ctx.Err() != nil {
			return profiles
		}
		log := logger.With(zap.String("author", c.name), zap.String("url", c.url))
		fetched := e.fetcher.Fetch(ctx, c.url)
		if !fetched.OK() {
			summary.AuthorFailures++
			if fetched.Outcome == FetchDisallowed {
				summary.Disallowed++
			}
			log.Warn("author profile fetch failed", zap.String("outcome", string(fetched.Outcome)), zap.Error(fetched.Err))
			continue
		}
		bio, ok := c.strategy.ExtractAuthor(fetched.Body)
		if !ok {
			summary.AuthorFailures++
			log.Warn("author page has no biography")
			continue
		}
		profiles = append(profiles, AuthorProfile{Name: c.name, Biography: bio, URL: c.url})
	}
	return profiles
}

func (e *Engine) persistProfiles(
	ctx context.Context,
	logger *zap.Logger,
	profiles []AuthorProfile,
	summary *Summary,
) error {
	sink, err := e.store.Open(ctx)
	if err != nil {
		summary.AuthorFailures += len(profiles)
		logger.Error("author profiles not persisted", zap.Int("profiles", len(profiles)), zap.Error(err))
		return nil
	}
	defer e.closeSink(logger, sink)

	for _, p := range profiles {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("persist author profiles: %w", err)
		}
		if err := sink.UpsertAuthorProfile(ctx, p); err != nil {
			summary.AuthorFailures++
			logger.Error("author profile upsert failed", zap.String("author", p.Name), zap.Error(err))
			continue
		}
		summary.AuthorsAdded++
	}
	return nil
}

func (e *Engine) closeSink(logger *zap.Logger, sink Sink) {
	if err := sink.Close(); err != nil {
		logger.Warn("closing persistence session failed", zap.Error(err))
	}
}

// authorCandidates lists each distinct author once, in first-seen order, for
// sources whose layout offers profile pages.
func authorCandidates(results []sourceResult) []authorCandidate {
	seen := make(map[string]struct{})
	var out []authorCandidate
	for _, res := range results {
		if res.strategy == nil {
			continue
		}
		for _, rec := range res.records {
			if _, ok := seen[rec.Author]; ok {
				continue
			}
			profileURL, ok := res.strategy.AuthorURL(resolveBase(res.base), rec)
			if !ok {
				continue
			}
			seen[rec.Author] = struct{}{}
			out = append(out, authorCandidate{name: rec.Author, url: profileURL, strategy: res.strategy})
		}
	}
	return out
}

func resolveBase(base *url.URL) *url.URL {
	if base == nil {
		return &url.URL{}
	}
	return base
}
