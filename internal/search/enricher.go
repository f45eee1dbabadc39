package search

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"audiostream/metasearch/internal/domain"
	"audiostream/metasearch/internal/metrics"
)

// defaultConcurrency bounds outbound fan-out per wave.
const defaultConcurrency = 5

// EnrichmentResult is the outcome of the enrichment wave.
type EnrichmentResult struct {
	Results  []domain.CandidateResult
	Fallback []string
	Ledger   *DropLedger
}

// Enricher resolves every candidate identifier into a filtered result, or
// queues it for the fallback scraper.
type Enricher struct {
	coordinator *Coordinator
	audiblePage PageScraper
	converter   *Converter
	pipeline    *Pipeline
	health      *HealthTracker
	retry       RetryConfig
	concurrency int64
}

func NewEnricher(coordinator *Coordinator, audiblePage PageScraper, converter *Converter, pipeline *Pipeline, health *HealthTracker, retry RetryConfig, concurrency int64) *Enricher {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Enricher{
		coordinator: coordinator,
		audiblePage: audiblePage,
		converter:   converter,
		pipeline:    pipeline,
		health:      health,
		retry:       retry,
		concurrency: concurrency,
	}
}

// Enrich runs one bounded task per identifier. On cancellation it returns
// whatever finished together with the context error.
func (e *Enricher) Enrich(ctx context.Context, set *CandidateSet, sources []domain.MetadataSourceConfig, query string, progress reporter) (EnrichmentResult, error) {
	out := EnrichmentResult{Ledger: NewDropLedger()}
	if set == nil || set.Len() == 0 {
		return out, nil
	}

	sem := semaphore.NewWeighted(e.concurrency)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for _, id := range set.IDs {
		// Acquire before spawning so at most e.concurrency goroutines exist.
		if err := sem.Acquire(ctx, 1); err != nil {
			fail(err)
			break
		}
		wg.Add(1)
		go func(asin string) {
			defer wg.Done()
			defer sem.Release(1)

			result, ok, needsFallback, err := e.enrichOne(ctx, set, asin, sources, query, out.Ledger, progress)
			if err != nil {
				slog.Info("enrichment cancelled", slog.String("asin", asin))
				fail(err)
				return
			}

			mu.Lock()
			defer mu.Unlock()
			if needsFallback {
				out.Fallback = append(out.Fallback, asin)
			}
			if ok {
				out.Results = append(out.Results, result)
			}
		}(id)
	}
	wg.Wait()

	metrics.EnrichedCandidatesTotal.Add(float64(len(out.Results)))
	return out, firstErr
}

func (e *Enricher) enrichOne(ctx context.Context, set *CandidateSet, asin string, sources []domain.MetadataSourceConfig, query string, ledger *DropLedger, progress reporter) (domain.CandidateResult, bool, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.CandidateResult{}, false, false, err
	}
	progress.report("Enriching ASIN: "+asin, asin)

	if book, result, ok := set.OpenLibrary(asin); ok {
		if !openLibraryMatches(book, query) {
			slog.Info("openlibrary entry does not mention query, queuing for fallback", slog.String("key", asin))
			ledger.Record(asin, dropOpenLibraryMismatch)
			return domain.CandidateResult{}, false, true, nil
		}
		accepted := e.accept(result, asin, ledger, progress)
		return result, accepted, false, nil
	}

	var (
		meta       *domain.BookMetadata
		sourceName string
	)
	if len(sources) > 0 && e.coordinator != nil {
		progress.report("Fetching metadata for ASIN: "+asin, asin)
		var err error
		meta, sourceName, err = e.coordinator.Fetch(ctx, asin, sources, set.Source(asin))
		if err != nil {
			return domain.CandidateResult{}, false, false, err
		}
	}

	if meta == nil && e.audiblePage != nil {
		progress.report("Scraping Audible page for ASIN: "+asin, asin)
		scraped, err := callProvider(ctx, e.health, e.audiblePage.Name(), e.retry, func(ctx context.Context) (*domain.BookMetadata, error) {
			return e.audiblePage.Scrape(ctx, asin)
		})
		switch {
		case err != nil && isCancellation(ctx, err):
			return domain.CandidateResult{}, false, false, ctx.Err()
		case err != nil:
			slog.Warn("audible page scrape failed",
				slog.String("asin", asin),
				slog.String("error", err.Error()),
			)
		case scraped != nil:
			meta = scraped
			sourceName = "Audible"
			progress.report("Found: "+scraped.Title, asin)
		}
	}

	if meta == nil {
		slog.Warn("no metadata after all sources", slog.String("asin", asin))
		ledger.Record(asin, dropQueuedForFallback)
		ledger.Record(asin, dropNoMetadata)
		return domain.CandidateResult{}, false, true, nil
	}

	merged := *meta
	if hit, ok := set.Secondary(asin); ok {
		merged = Merge(merged, MetadataFromCatalogHit(hit))
	}

	result := e.converter.ToCandidate(merged, asin, set.Raw(asin))
	result.IsEnriched = true
	if sourceName != "" {
		result.MetadataSource = sourceName
	}
	slog.Info("enriched candidate",
		slog.String("asin", asin),
		slog.String("title", result.Title),
		slog.String("metadataSource", result.MetadataSource),
	)
	return result, e.accept(result, asin, ledger, progress), false, nil
}

func (e *Enricher) accept(result domain.CandidateResult, asin string, ledger *DropLedger, progress reporter) bool {
	if reason, drop := e.pipeline.Evaluate(result); drop {
		slog.Info("filtered candidate",
			slog.String("asin", asin),
			slog.String("title", result.Title),
			slog.String("reason", reason),
		)
		progress.report("Filtered out: "+result.Title, asin)
		ledger.Record(asin, reason)
		metrics.FilteredCandidatesTotal.WithLabelValues(reason).Inc()
		return false
	}
	ledger.Record(asin, dropEnrichedMetadata)
	return true
}

// openLibraryMatches reports whether query occurs anywhere in the record's
// title, authors, publishers or subjects.
func openLibraryMatches(book domain.OpenLibraryBook, query string) bool {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return false
	}
	parts := []string{book.Title}
	parts = append(parts, book.AuthorNames...)
	parts = append(parts, book.Publishers...)
	parts = append(parts, book.Subjects...)
	haystack := strings.ToLower(strings.Join(parts, " "))
	return strings.Contains(haystack, needle)
}
