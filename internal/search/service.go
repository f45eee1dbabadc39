package search

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"audiostream/metasearch/internal/domain"
)

const minResultTitleLength = 3

var tracer = otel.Tracer("audiostream/metasearch/search")

// Search runs one query through the whole pipeline. Provider failures only
// shrink the result; the returned error is either a validation error or the
// context's cancellation.
func (s *Service) Search(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error) {
	query := strings.Join(strings.Fields(request.Query), " ")
	if query == "" {
		return domain.SearchResponse{}, ErrInvalidQuery
	}
	if !s.hasProviders() {
		return domain.SearchResponse{}, ErrNoProviders
	}
	request.Query = query

	if s.cacheDisabled || request.NoCache {
		return s.execute(ctx, request)
	}

	startedAt := time.Now()
	cacheKey := buildSearchCacheKey(query, request.Limit, s.settings)
	if cached, ok, needsRefresh := s.cacheLookup(ctx, cacheKey, startedAt); ok {
		if needsRefresh {
			s.refreshCacheAsync(cacheKey, request)
		}
		cached.Cached = true
		cached.ElapsedMS = time.Since(startedAt).Milliseconds()
		return cached, nil
	}

	response, err := s.execute(ctx, request)
	if err != nil {
		return domain.SearchResponse{}, err
	}
	s.cacheStore(ctx, cacheKey, response, time.Now())
	return response, nil
}

func (s *Service) refreshCacheAsync(cacheKey string, request domain.SearchRequest) {
	request.Channel = ""
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout+2*time.Second)
		defer cancel()
		response, err := s.execute(ctx, request)
		if err != nil {
			s.cacheClearRefreshing(cacheKey)
			return
		}
		s.cacheStore(ctx, cacheKey, response, time.Now())
	}()
}

func (s *Service) execute(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error) {
	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	runCtx, span := tracer.Start(runCtx, "search.execute", trace.WithAttributes(attribute.String("search.query", request.Query)))
	defer span.End()

	startedAt := time.Now()
	progress := reporter{hub: s.progress, channel: request.Channel}
	parsed := parseQuery(request.Query)

	var (
		items    []domain.CandidateResult
		statuses []domain.ProviderStatus
		ledger   *DropLedger
		err      error
	)
	if parsed.kind == queryASIN {
		ledger = NewDropLedger()
		items, err = s.lookupASIN(runCtx, parsed.asin, ledger, progress)
	} else {
		items, statuses, ledger, err = s.searchCatalogs(runCtx, parsed, progress)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.SearchResponse{}, err
	}

	items = s.rank(items, parsed.text, s.resultLimit(request.Limit))
	span.SetAttributes(attribute.Int("search.results", len(items)))

	slog.Info("search finished",
		slog.String("query", parsed.text),
		slog.Int("results", len(items)),
		slog.Duration("elapsed", time.Since(startedAt)),
	)
	return domain.SearchResponse{
		Query:       parsed.text,
		Items:       items,
		Providers:   statuses,
		DropReasons: ledger.Snapshot(),
		ElapsedMS:   time.Since(startedAt).Milliseconds(),
		TotalItems:  len(items),
	}, nil
}

func (s *Service) searchCatalogs(ctx context.Context, parsed parsedQuery, progress reporter) ([]domain.CandidateResult, []domain.ProviderStatus, *DropLedger, error) {
	amazonHits, audibleHits, statuses := s.fetchCatalogs(ctx, parsed, progress)
	if err := ctx.Err(); err != nil {
		return nil, statuses, nil, err
	}

	converter := NewConverter(s.images)
	pipeline := DefaultPipeline()
	collector := NewCollector(s.index, converter, s.health, s.retry)
	set := collector.Collect(ctx, amazonHits, audibleHits, parsed.text, CollectOptions{
		AmazonCap:       s.settings.AmazonMaxCandidates,
		AudibleCap:      s.settings.AudibleMaxCandidates,
		SkipOpenLibrary: !s.settings.OpenLibraryEnabled || s.index == nil,
	}, progress)

	enrichCtx, enrichSpan := tracer.Start(ctx, "search.enrich", trace.WithAttributes(attribute.Int("search.candidates", set.Len())))
	enricher := NewEnricher(NewCoordinator(s.health, s.retry, s.strategies...), s.audiblePage, converter, pipeline, s.health, s.retry, s.enrichConcurrency)
	enriched, err := enricher.Enrich(enrichCtx, set, s.sources, parsed.text, progress)
	enrichSpan.SetAttributes(attribute.Int("search.enriched", len(enriched.Results)))
	enrichSpan.End()
	if err != nil {
		return nil, statuses, enriched.Ledger, err
	}

	results := enriched.Results
	worklist := Worklist(enriched.Fallback, results)
	if len(worklist) > 0 && s.amazonPage != nil && s.settings.AmazonEnabled {
		fallbackCtx, fallbackSpan := tracer.Start(ctx, "search.fallback", trace.WithAttributes(attribute.Int("search.worklist", len(worklist))))
		scraper := NewFallbackScraper(s.amazonPage, converter, pipeline, s.health, s.retry, s.fallbackConcurrency)
		scraped, err := scraper.Scrape(fallbackCtx, worklist, set, enriched.Ledger, progress)
		fallbackSpan.SetAttributes(attribute.Int("search.scraped", len(scraped)))
		fallbackSpan.End()
		if err != nil {
			return nil, statuses, enriched.Ledger, err
		}
		results = append(results, scraped...)
	}

	if set.Len() == 0 {
		results = append(results, s.convertRawHits(converter, pipeline, amazonHits, audibleHits, enriched.Ledger)...)
	}
	return results, statuses, enriched.Ledger, nil
}

// fetchCatalogs queries the enabled catalogs concurrently. Failures become
// provider statuses; an ISBN query skips the Audible catalog.
func (s *Service) fetchCatalogs(ctx context.Context, parsed parsedQuery, progress reporter) ([]domain.CatalogHit, []domain.CatalogHit, []domain.ProviderStatus) {
	type catalogTask struct {
		searcher CatalogSearcher
		label    string
		hits     *[]domain.CatalogHit
	}

	var amazonHits, audibleHits []domain.CatalogHit
	tasks := make([]catalogTask, 0, 2)
	if s.amazon != nil && s.settings.AmazonEnabled {
		tasks = append(tasks, catalogTask{searcher: s.amazon, label: "Amazon", hits: &amazonHits})
	}
	if s.audible != nil && s.settings.AudibleEnabled && parsed.kind != queryISBN {
		tasks = append(tasks, catalogTask{searcher: s.audible, label: "Audible", hits: &audibleHits})
	}

	statuses := make([]domain.ProviderStatus, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(index int, task catalogTask) {
			defer wg.Done()
			name := strings.ToLower(task.searcher.Name())
			progress.report("Searching "+task.label+" for: "+parsed.text, "")

			hits, err := callProvider(ctx, s.health, name, s.retry, func(ctx context.Context) ([]domain.CatalogHit, error) {
				return task.searcher.Search(ctx, parsed.text)
			})
			status := domain.ProviderStatus{Name: name, OK: err == nil, Count: len(hits)}
			if err != nil {
				status.Error = err.Error()
				slog.Warn("catalog search failed",
					slog.String("provider", name),
					slog.String("query", parsed.text),
					slog.String("error", err.Error()),
				)
			} else {
				progress.report(task.label+" returned "+strconv.Itoa(len(hits))+" results", "")
			}
			statuses[index] = status
			*task.hits = hits
		}(i, task)
	}
	wg.Wait()
	return amazonHits, audibleHits, statuses
}

// lookupASIN resolves an identifier query directly: metadata sources, then
// the Audible page, then the Amazon page.
func (s *Service) lookupASIN(ctx context.Context, asin string, ledger *DropLedger, progress reporter) ([]domain.CandidateResult, error) {
	slog.Info("direct identifier lookup", slog.String("asin", asin))
	progress.report("Extracting ASIN: "+asin, asin)

	meta, sourceName, err := NewCoordinator(s.health, s.retry, s.strategies...).Fetch(ctx, asin, s.sources, "Audible")
	if err != nil {
		return nil, err
	}

	type pageStep struct {
		page    PageScraper
		enabled bool
		label   string
	}
	steps := []pageStep{
		{page: s.audiblePage, enabled: s.settings.AudibleEnabled, label: "Audible"},
		{page: s.amazonPage, enabled: s.settings.AmazonEnabled, label: "Amazon"},
	}
	for _, step := range steps {
		if meta != nil {
			break
		}
		if step.page == nil || !step.enabled {
			continue
		}
		progress.report("Scraping "+step.label+" for "+asin, asin)
		scraped, err := callProvider(ctx, s.health, step.page.Name(), s.retry, func(ctx context.Context) (*domain.BookMetadata, error) {
			return step.page.Scrape(ctx, asin)
		})
		if err != nil {
			if isCancellation(ctx, err) {
				return nil, ctx.Err()
			}
			slog.Debug("identifier page scrape failed",
				slog.String("asin", asin),
				slog.String("page", step.page.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if scraped != nil {
			meta = scraped
			sourceName = firstNonEmpty(scraped.Source, step.label)
		}
	}

	if meta == nil {
		slog.Warn("identifier lookup found nothing", slog.String("asin", asin))
		ledger.Record(asin, dropNoMetadata)
		return nil, nil
	}
	progress.report("Found audiobook: "+meta.Title, asin)

	source := "Audible"
	if sourceName == "Amazon" {
		source = "Amazon"
	}
	result := NewConverter(s.images).ToCandidate(*meta, asin, RawHit{})
	result.IsEnriched = true
	result.MetadataSource = sourceName
	result.Source = source
	result.ProductURL = productURL(source, asin)

	if strings.EqualFold(result.Title, "Amazon.com") || result.Author == "" || result.Author == unknownAuthor {
		slog.Warn("identifier lookup returned unusable record",
			slog.String("asin", asin),
			slog.String("title", result.Title),
			slog.String("author", result.Author),
		)
		ledger.Record(asin, dropNoMetadata)
		return nil, nil
	}
	if reason, drop := DefaultPipeline().Evaluate(result); drop {
		ledger.Record(asin, reason)
		return nil, nil
	}
	ledger.Record(asin, dropEnrichedMetadata)
	return []domain.CandidateResult{result}, nil
}

// convertRawHits is the last resort when no identifier survived collection.
func (s *Service) convertRawHits(converter *Converter, pipeline *Pipeline, amazonHits, audibleHits []domain.CatalogHit, ledger *DropLedger) []domain.CandidateResult {
	var out []domain.CandidateResult
	add := func(hits []domain.CatalogHit, source string) {
		for _, hit := range hits {
			meta := domain.BookMetadata{Title: hit.Title, ImageURL: hit.ImageURL, Source: source}
			if hit.Author != "" {
				meta.Authors = []string{hit.Author}
			}
			result := converter.ToCandidate(meta, strings.TrimSpace(hit.ASIN), RawHit{Title: hit.Title, Author: hit.Author, ImageURL: hit.ImageURL})
			result.MetadataSource = ""
			if reason, drop := pipeline.Evaluate(result); drop {
				ledger.Record(firstNonEmpty(result.ASIN, result.Title), reason)
				continue
			}
			out = append(out, result)
		}
	}
	add(amazonHits, "Amazon")
	add(audibleHits, "Audible")
	return out
}

// rank drops leftover noise, scores relevance and orders by metadata source
// rank then score.
func (s *Service) rank(items []domain.CandidateResult, query string, limit int) []domain.CandidateResult {
	kept := make([]domain.CandidateResult, 0, len(items))
	for _, item := range items {
		title := strings.TrimSpace(item.Title)
		if IsTitleNoise(title) || len([]rune(title)) < minResultTitleLength {
			continue
		}
		scored := ScoreRelevance(item, query, TitleContainment(query, item.Title), TitleFuzzy(query, item.Title))
		item.Score = scored.Score
		kept = append(kept, item)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		left, right := sourceRank(kept[i].MetadataSource), sourceRank(kept[j].MetadataSource)
		if left != right {
			return left > right
		}
		return kept[i].Score > kept[j].Score
	})
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

func (s *Service) resultLimit(requested int) int {
	limit := s.settings.MaxResults
	if requested > 0 && (limit <= 0 || requested < limit) {
		limit = requested
	}
	return limit
}

// sourceRank orders bibliographic APIs above catalog scrapes above nothing.
func sourceRank(metadataSource string) int {
	switch strings.ToLower(strings.TrimSpace(metadataSource)) {
	case "":
		return 0
	case "amazon", "audible":
		return 1
	default:
		return 2
	}
}
