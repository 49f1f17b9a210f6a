// Package sqlite persists quotes and author profiles in a local SQLite file
// using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

// TagSeparator joins a record's tags into the tags column.
const TagSeparator = ", "

const schema = `
CREATE TABLE IF NOT EXISTS quotes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	text TEXT NOT NULL,
	author TEXT NOT NULL,
	tags TEXT NOT NULL DEFAULT '',
	source_url TEXT NOT NULL DEFAULT '',
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(text, author)
);

CREATE INDEX IF NOT EXISTS idx_quotes_author ON quotes(author);

CREATE TABLE IF NOT EXISTS authors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	about TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// Store is a crawler.Store backed by a SQLite database file.
type Store struct {
	db *sqlx.DB
}

// Open opens or creates the database at path and ensures the schema exists.
// The parent directory is created when missing.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return newStore(db), nil
}

func newStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Open implements crawler.Store. Each session holds one connection until it
// is closed.
func (s *Store) Open(ctx context.Context) (crawler.Sink, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &session{conn: conn}, nil
}

// CountQuotes returns the number of stored quotes.
func (s *Store) CountQuotes(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM quotes"); err != nil {
		return 0, fmt.Errorf("count quotes: %w", err)
	}
	return n, nil
}

// AuthorBiography returns the stored biography for name.
func (s *Store) AuthorBiography(ctx context.Context, name string) (string, bool, error) {
	var about string
	err := s.db.GetContext(ctx, &about, "SELECT about FROM authors WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get author: %w", err)
	}
	return about, true, nil
}

type session struct {
	conn *sqlx.Conn
}

func (c *session) UpsertRecord(ctx context.Context, rec crawler.Record) error {
	const query = `
	INSERT INTO quotes (text, author, tags, source_url)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(text, author) DO UPDATE SET
		tags = excluded.tags,
		source_url = excluded.source_url,
		updated_at = CURRENT_TIMESTAMP
	`
	if _, err := c.conn.ExecContext(ctx, query, rec.Text, rec.Author, strings.Join(rec.Tags, TagSeparator), rec.SourceURL); err != nil {
		return fmt.Errorf("upsert quote: %w", err)
	}
	return nil
}

func (c *session) AuthorExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := c.conn.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM authors WHERE name = ?)", name)
	if err != nil {
		return false, fmt.Errorf("lookup author: %w", err)
	}
	return exists, nil
}

func (c *session) UpsertAuthorProfile(ctx context.Context, profile crawler.AuthorProfile) error {
	const query = `
	INSERT INTO authors (name, about, url)
	VALUES (?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		about = excluded.about,
		url = excluded.url,
		updated_at = CURRENT_TIMESTAMP
	`
	if _, err := c.conn.ExecContext(ctx, query, profile.Name, profile.Biography, profile.URL); err != nil {
		return fmt.Errorf("upsert author: %w", err)
	}
	return nil
}

func (c *session) Close() error {
	if err := c.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("release connection: %w", err)
	}
	return nil
}
