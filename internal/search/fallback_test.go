package search

import (
	"context"
	"errors"
	"testing"

	"audiostream/metasearch/internal/domain"
)

func newTestFallback(page PageScraper) *FallbackScraper {
	return NewFallbackScraper(page, NewConverter(nil), DefaultPipeline(), NewHealthTracker(), RetryConfig{MaxAttempts: 1}, 0)
}

func TestWorklistDedupesAndSkipsEnriched(t *testing.T) {
	pending := []string{"B0WORK0001", "b0work0001", "B0DONE0001", "/works/OL1W", " ", "B0WORK0002"}
	enriched := []domain.CandidateResult{{ASIN: "b0done0001"}}

	got := Worklist(pending, enriched)
	if len(got) != 2 || got[0] != "B0WORK0001" || got[1] != "B0WORK0002" {
		t.Fatalf("unexpected worklist %v", got)
	}
}

func TestFallbackScrapeOutcomes(t *testing.T) {
	page := &fakePage{name: "amazon-page", records: map[string]*domain.BookMetadata{
		"B0FOUND001": {Title: "Found Book", Authors: []string{"A. Writer"}, Source: "Amazon"},
		"B0KINDLE01": {Title: "Found Book Kindle Edition", Authors: []string{"A. Writer"}},
	}}
	set := candidateSet("B0FOUND001", "B0EMPTY001", "B0KINDLE01")
	ledger := NewDropLedger()

	results, err := newTestFallback(page).Scrape(context.Background(), set.IDs, set, ledger, reporter{})
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(results) != 1 || results[0].ASIN != "B0FOUND001" || !results[0].IsEnriched || results[0].MetadataSource != "Amazon" {
		t.Fatalf("unexpected results %+v", results)
	}
	expect := map[string]string{
		"B0FOUND001": dropScrapeEnriched,
		"B0EMPTY001": dropScrapeNoData,
		"B0KINDLE01": reasonKindleEdition,
	}
	for asin, want := range expect {
		if got, _ := ledger.Latest(asin); got != want {
			t.Fatalf("%s: expected %q, got %q", asin, want, got)
		}
	}
}

func TestFallbackScrapeErrorIsRecorded(t *testing.T) {
	page := &fakePage{name: "amazon-page", err: errors.New("captcha page")}
	set := candidateSet("B0ERROR001", "B0ERROR002")
	ledger := NewDropLedger()

	results, err := newTestFallback(page).Scrape(context.Background(), set.IDs, set, ledger, reporter{})
	if err != nil {
		t.Fatalf("provider errors must not abort the wave: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %+v", results)
	}
	if got, _ := ledger.Latest("B0ERROR002"); got != dropScrapeException {
		t.Fatalf("unexpected ledger reason %q", got)
	}
}

func TestFallbackScrapeNoScraper(t *testing.T) {
	results, err := newTestFallback(nil).Scrape(context.Background(), []string{"B0NOPAGE01"}, nil, NewDropLedger(), reporter{})
	if err != nil || results != nil {
		t.Fatalf("expected no-op, got %v %v", results, err)
	}
}
