// Package memory provides an in-process persistence store for development,
// dry runs and tests.
package memory

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

var errClosed = errors.New("memory session is closed")

// Stats counts the calls a Store has served.
type Stats struct {
	Sessions       int
	OpenSessions   int
	RecordUpserts  int
	AuthorLookups  int
	ProfileUpserts int
}

// Store keeps records keyed by (text, author) and profiles keyed by name.
type Store struct {
	mu      sync.RWMutex
	records map[crawler.RecordKey]crawler.Record
	order   []crawler.RecordKey
	authors map[string]crawler.AuthorProfile
	stats   Stats
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		records: make(map[crawler.RecordKey]crawler.Record),
		authors: make(map[string]crawler.AuthorProfile),
	}
}

// Open implements crawler.Store.
func (s *Store) Open(_ context.Context) (crawler.Sink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Sessions++
	s.stats.OpenSessions++
	return &session{store: s}, nil
}

// Records returns the stored records in first-insert order.
func (s *Store) Records() []crawler.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Record, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.records[key])
	}
	return out
}

// Authors returns the stored profiles sorted by name.
func (s *Store) Authors() []crawler.AuthorProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.AuthorProfile, 0, len(s.authors))
	for _, p := range s.authors {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b crawler.AuthorProfile) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Stats returns a snapshot of the call counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

type session struct {
	store  *Store
	closed bool
}

func (c *session) UpsertRecord(_ context.Context, rec crawler.Record) error {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed {
		return errClosed
	}
	s.stats.RecordUpserts++
	key := rec.Key()
	if _, exists := s.records[key]; !exists {
		s.order = append(s.order, key)
	}
	rec.Tags = append([]string(nil), rec.Tags...)
	s.records[key] = rec
	return nil
}

func (c *session) AuthorExists(_ context.Context, name string) (bool, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed {
		return false, errClosed
	}
	s.stats.AuthorLookups++
	_, ok := s.authors[name]
	return ok, nil
}

func (c *session) UpsertAuthorProfile(_ context.Context, profile crawler.AuthorProfile) error {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed {
		return errClosed
	}
	s.stats.ProfileUpserts++
	s.authors[profile.Name] = profile
	return nil
}

func (c *session) Close() error {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	s.stats.OpenSessions--
	return nil
}
