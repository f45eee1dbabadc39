package search

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"audiostream/metasearch/internal/domain"
)

// gaugeStrategy tracks how many fetches run at once.
type gaugeStrategy struct {
	active atomic.Int32
	peak   atomic.Int32
	delay  time.Duration
}

func (g *gaugeStrategy) Name() string { return "gauge" }

func (g *gaugeStrategy) CanHandle(domain.MetadataSourceConfig) bool { return true }

func (g *gaugeStrategy) Fetch(ctx context.Context, asin string, source domain.MetadataSourceConfig, origin string) (*domain.BookMetadata, error) {
	current := g.active.Add(1)
	defer g.active.Add(-1)
	for {
		peak := g.peak.Load()
		if current <= peak || g.peak.CompareAndSwap(peak, current) {
			break
		}
	}
	select {
	case <-time.After(g.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &domain.BookMetadata{Title: "Book " + asin, Authors: []string{"A. Writer"}}, nil
}

func newTestEnricher(strategies []MetadataStrategy, audiblePage PageScraper, concurrency int64) *Enricher {
	health := NewHealthTracker()
	retry := RetryConfig{MaxAttempts: 1}
	return NewEnricher(NewCoordinator(health, retry, strategies...), audiblePage, NewConverter(nil), DefaultPipeline(), health, retry, concurrency)
}

func candidateSet(asins ...string) *CandidateSet {
	set := NewCandidateSet()
	for _, asin := range asins {
		set.Add(asin, "Amazon", RawHit{Title: "Raw " + asin, Author: "Raw Author"})
	}
	return set
}

var gaugeSource = []domain.MetadataSourceConfig{{Name: "Gauge", BaseURL: "https://gauge", Priority: 1, Enabled: true}}

func TestEnrichBoundsConcurrency(t *testing.T) {
	gauge := &gaugeStrategy{delay: 20 * time.Millisecond}
	asins := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		asins = append(asins, fmt.Sprintf("B0BOUND%03d", i))
	}

	out, err := newTestEnricher([]MetadataStrategy{gauge}, nil, 3).Enrich(context.Background(), candidateSet(asins...), gaugeSource, "book", reporter{})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if len(out.Results) != 12 {
		t.Fatalf("expected 12 results, got %d", len(out.Results))
	}
	if peak := gauge.peak.Load(); peak > 3 {
		t.Fatalf("expected at most 3 concurrent fetches, got %d", peak)
	}
}

func TestEnrichUsesAudiblePageAsLastResort(t *testing.T) {
	page := &fakePage{name: "audible-page", records: map[string]*domain.BookMetadata{
		"B0PAGE0001": {Title: "Scraped Title", Authors: []string{"Page Author"}, Narrators: []string{"Page Narrator"}},
	}}
	strategy := &fakeStrategy{name: "Audnexus", host: "audnex.us"}

	out, err := newTestEnricher([]MetadataStrategy{strategy}, page, 0).Enrich(context.Background(), candidateSet("B0PAGE0001"), []domain.MetadataSourceConfig{audnexusSource}, "scraped", reporter{})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if len(out.Results) != 1 || out.Results[0].MetadataSource != "Audible" {
		t.Fatalf("expected page-scraped result, got %+v", out.Results)
	}
	if len(out.Fallback) != 0 {
		t.Fatalf("nothing should be queued, got %v", out.Fallback)
	}
}

func TestEnrichQueuesUnresolvedIdentifiers(t *testing.T) {
	out, err := newTestEnricher(nil, nil, 0).Enrich(context.Background(), candidateSet("B0MISSING1"), nil, "missing", reporter{})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if len(out.Fallback) != 1 || out.Fallback[0] != "B0MISSING1" {
		t.Fatalf("expected identifier on the worklist, got %v", out.Fallback)
	}
	if history := out.Ledger.History("B0MISSING1"); len(history) != 2 || history[1] != dropNoMetadata {
		t.Fatalf("unexpected ledger history %v", history)
	}
}

func TestEnrichOpenLibraryMismatchQueuesWithoutRemoteCalls(t *testing.T) {
	strategy := &fakeStrategy{name: "Audnexus", host: "audnex.us"}
	set := NewCandidateSet()
	book := domain.OpenLibraryBook{Key: "/works/OL9W", Title: "Children of Dune", AuthorNames: []string{"Frank Herbert"}}
	set.AddOpenLibrary(book.Key, book, NewConverter(nil).OpenLibraryCandidate(book))

	out, err := newTestEnricher([]MetadataStrategy{strategy}, nil, 0).Enrich(context.Background(), set, []domain.MetadataSourceConfig{audnexusSource}, "arrakis", reporter{})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if strategy.calls.Load() != 0 {
		t.Fatal("index suggestions must not trigger metadata calls")
	}
	if len(out.Results) != 0 || len(out.Fallback) != 1 {
		t.Fatalf("expected queued suggestion, got results=%v fallback=%v", out.Results, out.Fallback)
	}
	if latest, _ := out.Ledger.Latest(book.Key); latest != dropOpenLibraryMismatch {
		t.Fatalf("unexpected ledger reason %q", latest)
	}
	if got := Worklist(out.Fallback, nil); len(got) != 0 {
		t.Fatalf("work keys are not scrapeable, got %v", got)
	}
}

func TestEnrichRecordsFilterReason(t *testing.T) {
	strategy := &fakeStrategy{name: "Audnexus", host: "audnex.us", records: map[string]*domain.BookMetadata{
		"B0KINDLE01": {Title: "Dune: Kindle Edition", Authors: []string{"Frank Herbert"}},
	}}
	out, err := newTestEnricher([]MetadataStrategy{strategy}, nil, 0).Enrich(context.Background(), candidateSet("B0KINDLE01"), []domain.MetadataSourceConfig{audnexusSource}, "dune", reporter{})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if len(out.Results) != 0 {
		t.Fatalf("expected kindle edition to be filtered, got %+v", out.Results)
	}
	if latest, _ := out.Ledger.Latest("B0KINDLE01"); latest != reasonKindleEdition {
		t.Fatalf("unexpected ledger reason %q", latest)
	}
}

func TestEnrichCancellationReturnsPartialResults(t *testing.T) {
	gauge := &gaugeStrategy{delay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out, err := newTestEnricher([]MetadataStrategy{gauge}, nil, 2).Enrich(ctx, candidateSet("B0CANCEL01", "B0CANCEL02", "B0CANCEL03"), gaugeSource, "x", reporter{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if out.Ledger == nil {
		t.Fatal("ledger must be returned with partial results")
	}
}
