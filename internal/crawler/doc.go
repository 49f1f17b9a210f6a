// Package crawler implements the crawl cycle engine and the contracts its
// collaborators satisfy: the gated fetcher, per-site extraction strategies and
// the persistence sink.
//
// A cycle walks every configured source. Each source is a small state machine
// (start, fetching page n, extracting, then the next page, done or failed);
// pages within a source are fetched strictly in order, while sources may run
// concurrently. A failed or disallowed fetch ends only its own source. Once all
// sources finish, the aggregated records are upserted, authors not yet known
// to the store are resolved with one extra gated fetch each, and a Summary with
// the cycle's counters is returned to the caller.
package crawler
