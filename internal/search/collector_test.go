package search

import (
	"context"
	"errors"
	"testing"

	"audiostream/metasearch/internal/domain"
)

type failingIndex struct{}

func (failingIndex) Search(ctx context.Context, query string, limit int) ([]domain.OpenLibraryBook, error) {
	return nil, errors.New("index unavailable")
}

func newTestCollector(index BookIndex) *Collector {
	return NewCollector(index, NewConverter(nil), NewHealthTracker(), RetryConfig{MaxAttempts: 1})
}

func TestCollectDedupesCaseInsensitively(t *testing.T) {
	amazon := []domain.CatalogHit{{ASIN: "B01234ABCD", Title: "Dune", Author: "Frank Herbert"}}
	audible := []domain.CatalogHit{{ASIN: "b01234abcd", Title: "Dune (Unabridged)", Author: "Frank Herbert", Duration: "21 hrs"}}

	set := newTestCollector(nil).Collect(context.Background(), amazon, audible, "dune", CollectOptions{SkipOpenLibrary: true}, reporter{})
	if set.Len() != 1 || set.IDs[0] != "B01234ABCD" {
		t.Fatalf("expected one identifier with first casing, got %v", set.IDs)
	}
	if set.Raw("b01234abcd").Title != "Dune" {
		t.Fatalf("first source must own the raw fields, got %+v", set.Raw("b01234abcd"))
	}
	if set.Source("B01234ABCD") != "Amazon" {
		t.Fatalf("unexpected source %q", set.Source("B01234ABCD"))
	}
	if hit, ok := set.Secondary("B01234ABCD"); !ok || hit.Duration != "21 hrs" {
		t.Fatalf("expected richer audible row kept as secondary, got %+v %v", hit, ok)
	}
}

func TestCollectSkipsInvalidAndProductHits(t *testing.T) {
	amazon := []domain.CatalogHit{
		{ASIN: "", Title: "No Identifier", Author: "A. Writer"},
		{ASIN: "short", Title: "Bad Identifier", Author: "A. Writer"},
		{ASIN: "B0LAMP0001", Title: "LED Desk Lamp with USB Port", Author: "Brightco"},
		{ASIN: "B0SELLER01", Title: "A Real Book", Author: "Visit the Acme Store"},
		{ASIN: "B0GOOD0001", Title: "A Good Book", Author: "A. Writer"},
	}
	set := newTestCollector(nil).Collect(context.Background(), amazon, nil, "book", CollectOptions{SkipOpenLibrary: true}, reporter{})
	if set.Len() != 1 || set.IDs[0] != "B0GOOD0001" {
		t.Fatalf("expected only the good hit, got %v", set.IDs)
	}
}

func TestCollectAppliesCaps(t *testing.T) {
	amazon := []domain.CatalogHit{
		{ASIN: "B0CAP00001", Title: "One", Author: "A. Writer"},
		{ASIN: "B0CAP00002", Title: "Two", Author: "A. Writer"},
		{ASIN: "B0CAP00003", Title: "Three", Author: "A. Writer"},
	}
	audible := []domain.CatalogHit{
		{ASIN: "B0CAP00004", Title: "Four", Author: "A. Writer"},
		{ASIN: "B0CAP00005", Title: "Five", Author: "A. Writer"},
	}
	set := newTestCollector(nil).Collect(context.Background(), amazon, audible, "x", CollectOptions{AmazonCap: 2, AudibleCap: 1, SkipOpenLibrary: true}, reporter{})
	if set.Len() != 3 {
		t.Fatalf("expected 2 amazon + 1 audible, got %v", set.IDs)
	}
}

func TestCollectAddsOpenLibrarySuggestions(t *testing.T) {
	index := &fakeIndex{books: []domain.OpenLibraryBook{
		{Key: "/works/OL1W", Title: "Dune"},
		{Key: "/works/OL2W", Title: "Dune Messiah"},
		{Title: "Children of Dune"},
		{Key: "/works/OL4W", Title: "God Emperor of Dune"},
	}}
	set := newTestCollector(index).Collect(context.Background(), nil, nil, "dune", CollectOptions{}, reporter{})

	// Only the first three index rows are considered, and the exact query title is skipped.
	if set.Len() != 2 {
		t.Fatalf("expected two suggestions, got %v", set.IDs)
	}
	book, result, ok := set.OpenLibrary("/works/OL2W")
	if !ok || book.Title != "Dune Messiah" || result.MetadataSource != "OpenLibrary" {
		t.Fatalf("unexpected suggestion %+v %+v %v", book, result, ok)
	}
	if set.Source(set.IDs[1]) != "OpenLibrary" || set.IDs[1] == "" {
		t.Fatalf("expected a synthetic key for the keyless row, got %v", set.IDs)
	}
}

func TestCollectSurvivesIndexFailure(t *testing.T) {
	amazon := []domain.CatalogHit{{ASIN: "B0GOOD0001", Title: "A Good Book", Author: "A. Writer"}}
	set := newTestCollector(failingIndex{}).Collect(context.Background(), amazon, nil, "good", CollectOptions{}, reporter{})
	if set.Len() != 1 {
		t.Fatalf("expected catalog hit to survive, got %v", set.IDs)
	}
}
