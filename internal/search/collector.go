package search

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"audiostream/metasearch/internal/domain"
)

const (
	openLibraryFetchLimit  = 5
	openLibrarySuggestions = 3
)

// CandidateSet is the per-query working state: unique identifiers in discovery
// order plus what each source said about them. Lookups are case-insensitive;
// IDs keeps the first casing seen.
type CandidateSet struct {
	IDs []string

	raw         map[string]RawHit
	source      map[string]string
	secondary   map[string]domain.CatalogHit
	openLibrary map[string]openLibraryEntry
}

// openLibraryEntry is an index suggestion already converted into a result.
type openLibraryEntry struct {
	book   domain.OpenLibraryBook
	result domain.CandidateResult
}

func NewCandidateSet() *CandidateSet {
	return &CandidateSet{
		raw:         make(map[string]RawHit),
		source:      make(map[string]string),
		secondary:   make(map[string]domain.CatalogHit),
		openLibrary: make(map[string]openLibraryEntry),
	}
}

// Add registers asin from source. It reports false when the identifier was
// already present; the first source keeps ownership of the raw fields.
func (c *CandidateSet) Add(asin, source string, hit RawHit) bool {
	key := domain.NormalizeIdentifier(asin)
	if key == "" {
		return false
	}
	if _, exists := c.raw[key]; exists {
		return false
	}
	c.IDs = append(c.IDs, strings.TrimSpace(asin))
	c.raw[key] = hit
	c.source[key] = source
	return true
}

func (c *CandidateSet) Len() int {
	return len(c.IDs)
}

func (c *CandidateSet) Raw(asin string) RawHit {
	return c.raw[domain.NormalizeIdentifier(asin)]
}

func (c *CandidateSet) Source(asin string) string {
	return c.source[domain.NormalizeIdentifier(asin)]
}

func (c *CandidateSet) SetSecondary(asin string, hit domain.CatalogHit) {
	c.secondary[domain.NormalizeIdentifier(asin)] = hit
}

func (c *CandidateSet) Secondary(asin string) (domain.CatalogHit, bool) {
	hit, ok := c.secondary[domain.NormalizeIdentifier(asin)]
	return hit, ok
}

// AddOpenLibrary registers an index suggestion under its work key.
func (c *CandidateSet) AddOpenLibrary(key string, book domain.OpenLibraryBook, result domain.CandidateResult) bool {
	raw := RawHit{Title: book.Title, ImageURL: result.ImageURL}
	if len(book.AuthorNames) > 0 {
		raw.Author = book.AuthorNames[0]
	}
	if !c.Add(key, openLibraryName, raw) {
		return false
	}
	c.openLibrary[domain.NormalizeIdentifier(key)] = openLibraryEntry{book: book, result: result}
	return true
}

func (c *CandidateSet) OpenLibrary(asin string) (domain.OpenLibraryBook, domain.CandidateResult, bool) {
	entry, ok := c.openLibrary[domain.NormalizeIdentifier(asin)]
	return entry.book, entry.result, ok
}

// CollectOptions caps each catalog and toggles the index lookup.
type CollectOptions struct {
	AmazonCap       int
	AudibleCap      int
	SkipOpenLibrary bool
}

// Collector merges catalog hits into a CandidateSet.
type Collector struct {
	index     BookIndex
	converter *Converter
	health    *HealthTracker
	retry     RetryConfig
}

func NewCollector(index BookIndex, converter *Converter, health *HealthTracker, retry RetryConfig) *Collector {
	return &Collector{index: index, converter: converter, health: health, retry: retry}
}

// Collect never fails: bad hits are skipped and index failures only mean
// fewer suggestions.
func (c *Collector) Collect(ctx context.Context, amazonHits, audibleHits []domain.CatalogHit, query string, opts CollectOptions, progress reporter) *CandidateSet {
	set := NewCandidateSet()
	slog.Info("collecting candidates",
		slog.String("query", query),
		slog.Int("amazon", len(amazonHits)),
		slog.Int("audible", len(audibleHits)),
	)

	for _, hit := range capHits(amazonHits, opts.AmazonCap) {
		if !acceptHit("amazon", hit) {
			continue
		}
		set.Add(hit.ASIN, "Amazon", RawHit{Title: hit.Title, Author: hit.Author, ImageURL: hit.ImageURL})
	}

	accepted := 0
	for _, hit := range audibleHits {
		if opts.AudibleCap > 0 && accepted >= opts.AudibleCap {
			break
		}
		if strings.TrimSpace(hit.ASIN) == "" || !IsValidASIN(strings.TrimSpace(hit.ASIN)) {
			continue
		}
		accepted++
		if !acceptHit("audible", hit) {
			continue
		}
		set.Add(hit.ASIN, "Audible", RawHit{Title: hit.Title, Author: hit.Author, ImageURL: hit.ImageURL})
		if hit.HasDetail() {
			set.SetSecondary(hit.ASIN, hit)
		}
	}

	if !opts.SkipOpenLibrary && strings.TrimSpace(query) != "" {
		c.collectOpenLibrary(ctx, query, set, progress)
	}
	return set
}

func (c *Collector) collectOpenLibrary(ctx context.Context, query string, set *CandidateSet, progress reporter) {
	if c.index == nil {
		return
	}
	progress.report("Searching OpenLibrary for additional titles", "")
	books, err := callProvider(ctx, c.health, "openlibrary", c.retry, func(ctx context.Context) ([]domain.OpenLibraryBook, error) {
		return c.index.Search(ctx, query, openLibraryFetchLimit)
	})
	if err != nil {
		slog.Warn("openlibrary augmentation failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return
	}

	trimmed := strings.TrimSpace(query)
	for i, book := range books {
		if i >= openLibrarySuggestions {
			break
		}
		title := strings.TrimSpace(book.Title)
		if title == "" || strings.EqualFold(title, trimmed) {
			continue
		}
		slog.Info("openlibrary suggested title", slog.String("title", title))
		progress.report("OpenLibrary found: "+title, "")

		key := strings.TrimSpace(book.Key)
		if key == "" {
			key = uuid.NewString()
			book.Key = key
		}
		set.AddOpenLibrary(key, book, c.converter.OpenLibraryCandidate(book))
	}
}

func acceptHit(provider string, hit domain.CatalogHit) bool {
	asin := strings.TrimSpace(hit.ASIN)
	if asin == "" {
		slog.Info("catalog hit missing identifier",
			slog.String("provider", provider),
			slog.String("title", hit.Title),
		)
		return false
	}
	if !IsValidASIN(asin) {
		slog.Info("catalog hit has invalid identifier",
			slog.String("provider", provider),
			slog.String("asin", asin),
			slog.String("title", hit.Title),
		)
		return false
	}
	if IsProductLikeTitle(hit.Title) || IsSellerArtist(hit.Author) {
		slog.Info("skipping product-like catalog hit",
			slog.String("provider", provider),
			slog.String("asin", asin),
			slog.String("title", hit.Title),
			slog.String("author", hit.Author),
		)
		return false
	}
	return true
}

func capHits(hits []domain.CatalogHit, limit int) []domain.CatalogHit {
	if limit > 0 && len(hits) > limit {
		return hits[:limit]
	}
	return hits
}
