// Package postgres provides Postgres-backed persistence for quotes and
// author profiles.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

// TagSeparator joins a record's tags into the tags column.
const TagSeparator = ", "

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	QuotesTable     string
	AuthorsTable    string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store writes quotes and author profiles into Postgres.
type Store struct {
	pool    pool
	quotes  string
	authors string
}

// NewStore creates a Postgres-backed Store using the provided config.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewStoreWithPool(p, cfg.QuotesTable, cfg.AuthorsTable)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(p pool, quotesTable, authorsTable string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if quotesTable == "" {
		quotesTable = "quotes"
	}
	if authorsTable == "" {
		authorsTable = "authors"
	}
	for _, table := range []string{quotesTable, authorsTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &Store{pool: p, quotes: quotesTable, authors: authorsTable}, nil
}

// EnsureSchema creates the quote and author tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	text TEXT NOT NULL,
	author TEXT NOT NULL,
	tags TEXT NOT NULL DEFAULT '',
	source_url TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (text, author)
)`, s.quotes),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	about TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.authors),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Open implements crawler.Store. A session borrows pool connections per
// statement, so it holds nothing between calls; Open only verifies the
// database is reachable.
func (s *Store) Open(ctx context.Context) (crawler.Sink, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("quote store is not configured")
	}
	if err := s.pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &session{store: s}, nil
}

type session struct {
	store *Store
}

func (c *session) UpsertRecord(ctx context.Context, rec crawler.Record) error {
	query := fmt.Sprintf(`
INSERT INTO %s (text, author, tags, source_url)
VALUES ($1, $2, $3, $4)
ON CONFLICT (text, author) DO UPDATE
SET tags = EXCLUDED.tags, source_url = EXCLUDED.source_url, updated_at = now()`, c.store.quotes)
	if _, err := c.store.pool.Exec(ctx, query, rec.Text, rec.Author, strings.Join(rec.Tags, TagSeparator), rec.SourceURL); err != nil {
		return fmt.Errorf("upsert quote: %w", err)
	}
	return nil
}

func (c *session) AuthorExists(ctx context.Context, name string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE name = $1)`, c.store.authors)
	var exists bool
	if err := c.store.pool.QueryRow(ctx, query, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("lookup author: %w", err)
	}
	return exists, nil
}

func (c *session) UpsertAuthorProfile(ctx context.Context, profile crawler.AuthorProfile) error {
	query := fmt.Sprintf(`
INSERT INTO %s (name, about, url)
VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE
SET about = EXCLUDED.about, url = EXCLUDED.url, updated_at = now()`, c.store.authors)
	if _, err := c.store.pool.Exec(ctx, query, profile.Name, profile.Biography, profile.URL); err != nil {
		return fmt.Errorf("upsert author: %w", err)
	}
	return nil
}

func (c *session) Close() error { return nil }
