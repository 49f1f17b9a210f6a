// Package crawler defines core types shared across subsystems.
package crawler

import (
	"time"
)

// Variant names an extraction strategy. The set is closed; sources pick one
// explicitly in configuration.
type Variant string

// Supported extraction variants.
const (
	VariantPaginatedList  Variant = "paginated-list"
	VariantSinglePageList Variant = "single-page-list"
)

// Valid reports whether v is one of the known variants.
func (v Variant) Valid() bool {
	switch v {
	case VariantPaginatedList, VariantSinglePageList:
		return true
	default:
		return false
	}
}

// Source is one configured crawl target.
type Source struct {
	Name    string  `json:"name" mapstructure:"name"`
	BaseURL string  `json:"base_url" mapstructure:"base_url"`
	Variant Variant `json:"strategy" mapstructure:"strategy"`
}

// Label returns the name used in logs and reports.
func (s Source) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.BaseURL
}

// Record is a single extracted quote.
type Record struct {
	Text      string   `json:"text"`
	Author    string   `json:"author"`
	Tags      []string `json:"tags"`
	AuthorURL string   `json:"author_url,omitempty"`
	SourceURL string   `json:"source_url,omitempty"`
}

// Key returns the upsert identity of the record.
func (r Record) Key() RecordKey {
	return RecordKey{Text: r.Text, Author: r.Author}
}

// RecordKey identifies a record for upsert purposes.
type RecordKey struct {
	Text   string
	Author string
}

// AuthorProfile is the secondary lookup stored once per author name.
type AuthorProfile struct {
	Name      string `json:"name"`
	Biography string `json:"biography"`
	URL       string `json:"url,omitempty"`
}

// Extraction is what a strategy yields for one page.
type Extraction struct {
	Records []Record
	Skipped int
	HasMore bool
}

// FetchOutcome tags a FetchResult.
type FetchOutcome string

// Fetch outcomes.
const (
	FetchOK         FetchOutcome = "ok"
	FetchDisallowed FetchOutcome = "disallowed"
	FetchFailed     FetchOutcome = "failed"
)

// FetchResult is the outcome of one gated request.
type FetchResult struct {
	Outcome    FetchOutcome
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
	Err        error
}

// OK reports whether the fetch produced a usable body.
func (r FetchResult) OK() bool {
	return r.Outcome == FetchOK
}

// SourceState is the terminal (or current) state of a source within a cycle.
type SourceState string

// Source states. FetchingPage and Extracting are transient and only show up
// in debug logs.
const (
	SourceStart        SourceState = "start"
	SourceFetchingPage SourceState = "fetching_page"
	SourceExtracting   SourceState = "extracting"
	SourceDone         SourceState = "done"
	SourceFailed       SourceState = "failed"
)

// SourceReport summarizes one source's part of a cycle.
type SourceReport struct {
	Source     string      `json:"source"`
	BaseURL    string      `json:"base_url"`
	Variant    Variant     `json:"strategy"`
	State      SourceState `json:"state"`
	Pages      int         `json:"pages"`
	Records    int         `json:"records"`
	ParseSkips int         `json:"parse_skips"`
	Disallowed bool        `json:"disallowed,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Summary is returned to the caller of a crawl cycle.
type Summary struct {
	CycleID          string         `json:"cycle_id"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       time.Time      `json:"finished_at"`
	RecordsExtracted int            `json:"records_extracted"`
	ParseSkips       int            `json:"parse_skips"`
	SourceFailures   int            `json:"source_failures"`
	Disallowed       int            `json:"disallowed"`
	RecordsPersisted int            `json:"records_persisted"`
	PersistFailures  int            `json:"persist_failures"`
	AuthorsAdded     int            `json:"authors_added"`
	AuthorFailures   int            `json:"author_failures"`
	Sources          []SourceReport `json:"sources"`
	Records          []Record       `json:"-"`
}
