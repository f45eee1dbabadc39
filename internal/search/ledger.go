package search

import (
	"sync"

	"audiostream/metasearch/internal/domain"
)

const (
	dropQueuedForFallback   = "queued_for_fallback_no_metadata"
	dropEnrichedMetadata    = "enriched_from_metadata"
	dropNoMetadata          = "no_metadata_after_sources"
	dropOpenLibraryMismatch = "openlibrary_query_mismatch"
	dropScrapeEnriched      = "scrape_enriched"
	dropScrapeNoData        = "scrape_no_data"
	dropScrapeException     = "scrape_exception"
)

// DropLedger records, per identifier, why it did or did not become a result.
// Entries are only appended; Snapshot reports the latest reason per identifier.
type DropLedger struct {
	mu      sync.Mutex
	entries map[string][]string
}

func NewDropLedger() *DropLedger {
	return &DropLedger{entries: make(map[string][]string)}
}

func (l *DropLedger) Record(asin, reason string) {
	if l == nil || asin == "" || reason == "" {
		return
	}
	key := domain.NormalizeIdentifier(asin)
	l.mu.Lock()
	l.entries[key] = append(l.entries[key], reason)
	l.mu.Unlock()
}

func (l *DropLedger) Latest(asin string) (string, bool) {
	if l == nil {
		return "", false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	history := l.entries[domain.NormalizeIdentifier(asin)]
	if len(history) == 0 {
		return "", false
	}
	return history[len(history)-1], true
}

func (l *DropLedger) History(asin string) []string {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries[domain.NormalizeIdentifier(asin)]...)
}

func (l *DropLedger) Snapshot() map[string]string {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]string, len(l.entries))
	for key, history := range l.entries {
		if len(history) > 0 {
			out[key] = history[len(history)-1]
		}
	}
	return out
}
