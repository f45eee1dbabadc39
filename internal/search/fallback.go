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

// FallbackScraper is the second wave: a direct product-page scrape for every
// identifier the enricher could not resolve.
type FallbackScraper struct {
	scraper     PageScraper
	converter   *Converter
	pipeline    *Pipeline
	health      *HealthTracker
	retry       RetryConfig
	concurrency int64
}

func NewFallbackScraper(scraper PageScraper, converter *Converter, pipeline *Pipeline, health *HealthTracker, retry RetryConfig, concurrency int64) *FallbackScraper {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &FallbackScraper{
		scraper:     scraper,
		converter:   converter,
		pipeline:    pipeline,
		health:      health,
		retry:       retry,
		concurrency: concurrency,
	}
}

// Worklist deduplicates pending identifiers case-insensitively and drops the
// ones already enriched or that are not catalog identifiers.
func Worklist(pending []string, enriched []domain.CandidateResult) []string {
	done := make(map[string]struct{}, len(enriched))
	for _, result := range enriched {
		if result.ASIN != "" {
			done[domain.NormalizeIdentifier(result.ASIN)] = struct{}{}
		}
	}
	out := make([]string, 0, len(pending))
	for _, raw := range pending {
		asin := strings.TrimSpace(raw)
		key := domain.NormalizeIdentifier(asin)
		if key == "" || !IsValidASIN(asin) {
			continue
		}
		if _, ok := done[key]; ok {
			continue
		}
		done[key] = struct{}{}
		out = append(out, asin)
	}
	return out
}

// Scrape resolves the worklist. Per-identifier failures land in the ledger;
// only cancellation is returned.
func (f *FallbackScraper) Scrape(ctx context.Context, worklist []string, set *CandidateSet, ledger *DropLedger, progress reporter) ([]domain.CandidateResult, error) {
	if f == nil || f.scraper == nil || len(worklist) == 0 {
		return nil, nil
	}
	slog.Info("product page fallback started", slog.Int("asins", len(worklist)))

	sem := semaphore.NewWeighted(f.concurrency)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		results  []domain.CandidateResult
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for _, id := range worklist {
		if err := sem.Acquire(ctx, 1); err != nil {
			fail(err)
			break
		}
		wg.Add(1)
		go func(asin string) {
			defer wg.Done()
			defer sem.Release(1)

			result, ok, err := f.scrapeOne(ctx, asin, set, ledger, progress)
			if err != nil {
				fail(err)
				return
			}
			if ok {
				mu.Lock()
				results = append(results, result)
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	slog.Info("product page fallback finished",
		slog.Int("asins", len(worklist)),
		slog.Int("results", len(results)),
	)
	return results, firstErr
}

func (f *FallbackScraper) scrapeOne(ctx context.Context, asin string, set *CandidateSet, ledger *DropLedger, progress reporter) (domain.CandidateResult, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.CandidateResult{}, false, err
	}
	progress.report("Scraping Amazon page for ASIN: "+asin, asin)

	meta, err := callProvider(ctx, f.health, f.scraper.Name(), f.retry, func(ctx context.Context) (*domain.BookMetadata, error) {
		return f.scraper.Scrape(ctx, asin)
	})
	if err != nil {
		if isCancellation(ctx, err) {
			return domain.CandidateResult{}, false, ctx.Err()
		}
		slog.Warn("product page scrape failed",
			slog.String("asin", asin),
			slog.String("error", err.Error()),
		)
		ledger.Record(asin, dropScrapeException)
		return domain.CandidateResult{}, false, nil
	}
	if meta == nil {
		slog.Debug("product page had no usable data", slog.String("asin", asin))
		ledger.Record(asin, dropScrapeNoData)
		return domain.CandidateResult{}, false, nil
	}

	raw := RawHit{}
	if set != nil {
		raw = set.Raw(asin)
	}
	scraped := meta.Clone()
	if IsPlaceholderImage(scraped.ImageURL) && raw.ImageURL != "" && !IsPlaceholderImage(raw.ImageURL) {
		scraped.ImageURL = raw.ImageURL
	}
	if scraped.Source == "" {
		scraped.Source = "Amazon"
	}

	result := f.converter.ToCandidate(scraped, asin, raw)
	result.IsEnriched = true
	result.MetadataSource = scraped.Source

	if reason, drop := f.pipeline.Evaluate(result); drop {
		slog.Debug("filtered scraped result",
			slog.String("asin", asin),
			slog.String("title", result.Title),
			slog.String("reason", reason),
		)
		ledger.Record(asin, reason)
		metrics.FilteredCandidatesTotal.WithLabelValues(reason).Inc()
		return domain.CandidateResult{}, false, nil
	}

	ledger.Record(asin, dropScrapeEnriched)
	progress.report("Found: "+result.Title, asin)
	metrics.ScrapedCandidatesTotal.Inc()
	return result, true, nil
}
