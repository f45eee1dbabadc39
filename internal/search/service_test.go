package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"audiostream/metasearch/internal/domain"
)

type fakeCatalog struct {
	name  string
	hits  []domain.CatalogHit
	err   error
	calls atomic.Int32
}

func (c *fakeCatalog) Name() string { return c.name }

func (c *fakeCatalog) Search(ctx context.Context, query string) ([]domain.CatalogHit, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return append([]domain.CatalogHit(nil), c.hits...), nil
}

type fakeIndex struct {
	books []domain.OpenLibraryBook
	calls atomic.Int32
}

func (i *fakeIndex) Search(ctx context.Context, query string, limit int) ([]domain.OpenLibraryBook, error) {
	i.calls.Add(1)
	return append([]domain.OpenLibraryBook(nil), i.books...), nil
}

type fakePage struct {
	name    string
	records map[string]*domain.BookMetadata
	err     error

	mu    sync.Mutex
	asins []string
}

func (p *fakePage) Name() string { return p.name }

func (p *fakePage) Scrape(ctx context.Context, asin string) (*domain.BookMetadata, error) {
	p.mu.Lock()
	p.asins = append(p.asins, asin)
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	if record, ok := p.records[domain.NormalizeIdentifier(asin)]; ok {
		copied := record.Clone()
		return &copied, nil
	}
	return nil, nil
}

func (p *fakePage) scraped() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.asins...)
}

type fakeStrategy struct {
	name    string
	host    string
	records map[string]*domain.BookMetadata
	calls   atomic.Int32
}

func (s *fakeStrategy) Name() string { return s.name }

func (s *fakeStrategy) CanHandle(source domain.MetadataSourceConfig) bool {
	return strings.Contains(source.BaseURL, s.host)
}

func (s *fakeStrategy) Fetch(ctx context.Context, asin string, source domain.MetadataSourceConfig, origin string) (*domain.BookMetadata, error) {
	s.calls.Add(1)
	if record, ok := s.records[domain.NormalizeIdentifier(asin)]; ok {
		copied := record.Clone()
		return &copied, nil
	}
	return nil, nil
}

type recordingHub struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
}

func (h *recordingHub) Publish(channel string, event domain.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *recordingHub) count(prefix string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, event := range h.events {
		if strings.HasPrefix(event.Message, prefix) {
			n++
		}
	}
	return n
}

var audnexusSource = domain.MetadataSourceConfig{Name: "Audnexus", BaseURL: "https://api.audnex.us", Priority: 1, Enabled: true}

func noRetry() ServiceOption {
	return WithRetryConfig(RetryConfig{MaxAttempts: 1})
}

func TestSearchDuneScenario(t *testing.T) {
	amazon := &fakeCatalog{name: "Amazon", hits: []domain.CatalogHit{
		{ASIN: "B01234ABCD", Title: "Dune", Author: "Frank Herbert"},
	}}
	audible := &fakeCatalog{name: "Audible", hits: []domain.CatalogHit{
		{ASIN: "b01234abcd", Title: "Dune", Author: "Frank Herbert", Narrator: "Scott Brick; Orlagh Cassidy", Duration: "21 hrs and 2 mins"},
	}}
	index := &fakeIndex{books: []domain.OpenLibraryBook{
		{Key: "/works/OL893415W", Title: "Dune Messiah", AuthorNames: []string{"Frank Herbert"}, Publishers: []string{"Ace"}},
	}}
	strategy := &fakeStrategy{name: "Audnexus", host: "audnex.us", records: map[string]*domain.BookMetadata{
		"B01234ABCD": {Title: "Dune", Authors: []string{"Frank Herbert"}, Publisher: "Macmillan Audio"},
	}}
	hub := &recordingHub{}

	svc := NewService(5*time.Second,
		WithAmazon(amazon, nil),
		WithAudible(audible, nil),
		WithBookIndex(index),
		WithMetadataSources([]domain.MetadataSourceConfig{audnexusSource}, strategy),
		WithBroadcaster(hub),
		WithCacheDisabled(true),
		noRetry(),
	)

	resp, err := svc.Search(context.Background(), domain.SearchRequest{Query: "Dune", Channel: "c1"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := hub.count("Enriching ASIN: "); got != 2 {
		t.Fatalf("expected 2 identifiers to enter enrichment, got %d", got)
	}
	if got := strategy.calls.Load(); got != 1 {
		t.Fatalf("expected one metadata call, got %d", got)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 results, got %+v", resp.Items)
	}

	var dune, messiah *domain.CandidateResult
	for i := range resp.Items {
		switch resp.Items[i].Title {
		case "Dune":
			dune = &resp.Items[i]
		case "Dune Messiah":
			messiah = &resp.Items[i]
		}
	}
	if dune == nil || messiah == nil {
		t.Fatalf("missing expected results: %+v", resp.Items)
	}
	if dune.ASIN != "B01234ABCD" || dune.MetadataSource != "Audnexus" || !dune.IsEnriched {
		t.Fatalf("unexpected catalog result: %+v", *dune)
	}
	if dune.Narrator != "Scott Brick, Orlagh Cassidy" || dune.RuntimeMinutes != 21*60+2 {
		t.Fatalf("expected gaps filled from the audible row, got narrator=%q runtime=%d", dune.Narrator, dune.RuntimeMinutes)
	}
	if !messiah.IsEnriched || messiah.MetadataSource != "OpenLibrary" {
		t.Fatalf("unexpected index result: %+v", *messiah)
	}
	if resp.DropReasons["B01234ABCD"] != dropEnrichedMetadata {
		t.Fatalf("unexpected ledger: %+v", resp.DropReasons)
	}
}

func TestSearchFallbackEscalationRecordsScrapeNoData(t *testing.T) {
	amazon := &fakeCatalog{name: "Amazon", hits: []domain.CatalogHit{
		{ASIN: "B0FALLBACK", Title: "The Lost Archive", Author: "Jane Doe"},
	}}
	strategy := &fakeStrategy{name: "Audnexus", host: "audnex.us"}
	audiblePage := &fakePage{name: "audible-page"}
	amazonPage := &fakePage{name: "amazon-page"}

	svc := NewService(5*time.Second,
		WithAmazon(amazon, amazonPage),
		WithAudible(nil, audiblePage),
		WithMetadataSources([]domain.MetadataSourceConfig{audnexusSource}, strategy),
		WithCacheDisabled(true),
		noRetry(),
	)

	resp, err := svc.Search(context.Background(), domain.SearchRequest{Query: "lost archive"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Items) != 0 {
		t.Fatalf("expected no results, got %+v", resp.Items)
	}
	if got := amazonPage.scraped(); len(got) != 1 || got[0] != "B0FALLBACK" {
		t.Fatalf("expected identifier on the fallback worklist, got %v", got)
	}
	if got := resp.DropReasons["B0FALLBACK"]; got != dropScrapeNoData {
		t.Fatalf("expected %q, got %q", dropScrapeNoData, got)
	}
}

func TestSearchFallbackScrapeProducesResult(t *testing.T) {
	amazon := &fakeCatalog{name: "Amazon", hits: []domain.CatalogHit{
		{ASIN: "B0SCRAPED1", Title: "Red Rising", Author: "Pierce Brown", ImageURL: "https://m.media-amazon.com/images/I/red.jpg"},
	}}
	amazonPage := &fakePage{name: "amazon-page", records: map[string]*domain.BookMetadata{
		"B0SCRAPED1": {Title: "Red Rising", Authors: []string{"Pierce Brown"}, Narrators: []string{"Tim Gerard Reynolds"}, ImageURL: "https://images/grey-pixel.gif"},
	}}

	svc := NewService(5*time.Second,
		WithAmazon(amazon, amazonPage),
		WithCacheDisabled(true),
		noRetry(),
	)

	resp, err := svc.Search(context.Background(), domain.SearchRequest{Query: "red rising"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected one scraped result, got %+v", resp.Items)
	}
	item := resp.Items[0]
	if item.MetadataSource != "Amazon" || !item.IsEnriched {
		t.Fatalf("unexpected scraped result: %+v", item)
	}
	if item.ImageURL != "/api/images/B0SCRAPED1" {
		t.Fatalf("expected image route, got %q", item.ImageURL)
	}
	if resp.DropReasons["B0SCRAPED1"] != dropScrapeEnriched {
		t.Fatalf("unexpected ledger: %+v", resp.DropReasons)
	}
}

func TestSearchProviderFailureDoesNotAbortQuery(t *testing.T) {
	amazon := &fakeCatalog{name: "Amazon", err: errors.New("upstream returned 503")}
	audible := &fakeCatalog{name: "Audible", hits: []domain.CatalogHit{
		{ASIN: "B0AUDIBLE1", Title: "Mistborn", Author: "Brandon Sanderson"},
	}}
	strategy := &fakeStrategy{name: "Audnexus", host: "audnex.us", records: map[string]*domain.BookMetadata{
		"B0AUDIBLE1": {Title: "Mistborn", Authors: []string{"Brandon Sanderson"}},
	}}

	svc := NewService(5*time.Second,
		WithAmazon(amazon, nil),
		WithAudible(audible, nil),
		WithMetadataSources([]domain.MetadataSourceConfig{audnexusSource}, strategy),
		WithCacheDisabled(true),
		noRetry(),
	)

	resp, err := svc.Search(context.Background(), domain.SearchRequest{Query: "mistborn"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ASIN != "B0AUDIBLE1" {
		t.Fatalf("expected the audible result, got %+v", resp.Items)
	}
	var amazonStatus domain.ProviderStatus
	for _, status := range resp.Providers {
		if status.Name == "amazon" {
			amazonStatus = status
		}
	}
	if amazonStatus.OK || amazonStatus.Error == "" {
		t.Fatalf("expected failed amazon status, got %+v", resp.Providers)
	}
}

func TestSearchRawHitsUsedWhenNoIdentifiers(t *testing.T) {
	amazon := &fakeCatalog{name: "Amazon", hits: []domain.CatalogHit{
		{Title: "The Hobbit Unabridged Audiobook", Author: "J.R.R. Tolkien"},
	}}
	svc := NewService(5*time.Second, WithAmazon(amazon, nil), WithCacheDisabled(true), noRetry())

	resp, err := svc.Search(context.Background(), domain.SearchRequest{Query: "hobbit"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].IsEnriched {
		t.Fatalf("expected one unenriched result, got %+v", resp.Items)
	}
}

func TestSearchASINQueryUsesDirectLookup(t *testing.T) {
	amazon := &fakeCatalog{name: "Amazon"}
	audiblePage := &fakePage{name: "audible-page", records: map[string]*domain.BookMetadata{
		"B08G9PRS1K": {Title: "Project Hail Mary", Authors: []string{"Andy Weir"}, Narrators: []string{"Ray Porter"}},
	}}
	svc := NewService(5*time.Second,
		WithAmazon(amazon, nil),
		WithAudible(nil, audiblePage),
		WithCacheDisabled(true),
		noRetry(),
	)

	resp, err := svc.Search(context.Background(), domain.SearchRequest{Query: "asin:b08g9prs1k"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if amazon.calls.Load() != 0 {
		t.Fatal("catalog search should be skipped for identifier queries")
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected one result, got %+v", resp.Items)
	}
	item := resp.Items[0]
	if item.ASIN != "B08G9PRS1K" || item.Source != "Audible" || item.MetadataSource != "Audible" {
		t.Fatalf("unexpected lookup result: %+v", item)
	}
	if item.ProductURL != "https://www.audible.com/pd/B08G9PRS1K" {
		t.Fatalf("unexpected product url %q", item.ProductURL)
	}
}

func TestSearchASINQueryRejectsStorefrontRecord(t *testing.T) {
	amazonPage := &fakePage{name: "amazon-page", records: map[string]*domain.BookMetadata{
		"B08G9PRS1K": {Title: "Amazon.com", Authors: []string{"Andy Weir"}},
	}}
	svc := NewService(5*time.Second, WithAmazon(nil, amazonPage), WithCacheDisabled(true), noRetry())

	resp, err := svc.Search(context.Background(), domain.SearchRequest{Query: "B08G9PRS1K"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Items) != 0 {
		t.Fatalf("expected storefront record to be rejected, got %+v", resp.Items)
	}
}

func TestSearchISBNQuerySkipsAudible(t *testing.T) {
	amazon := &fakeCatalog{name: "Amazon"}
	audible := &fakeCatalog{name: "Audible"}
	svc := NewService(5*time.Second, WithAmazon(amazon, nil), WithAudible(audible, nil), WithCacheDisabled(true), noRetry())

	if _, err := svc.Search(context.Background(), domain.SearchRequest{Query: "978-0-441-17271-9"}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if amazon.calls.Load() != 1 || audible.calls.Load() != 0 {
		t.Fatalf("expected amazon only, got amazon=%d audible=%d", amazon.calls.Load(), audible.calls.Load())
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	svc := NewService(time.Second, WithAmazon(&fakeCatalog{name: "Amazon"}, nil))
	if _, err := svc.Search(context.Background(), domain.SearchRequest{Query: "   "}); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestSearchNoProviders(t *testing.T) {
	svc := NewService(time.Second)
	if _, err := svc.Search(context.Background(), domain.SearchRequest{Query: "dune"}); !errors.Is(err, ErrNoProviders) {
		t.Fatalf("expected ErrNoProviders, got %v", err)
	}
}

func TestSearchCancelledContextUnwinds(t *testing.T) {
	amazon := &fakeCatalog{name: "Amazon", hits: []domain.CatalogHit{
		{ASIN: "B01234ABCD", Title: "Dune", Author: "Frank Herbert"},
	}}
	svc := NewService(5*time.Second, WithAmazon(amazon, nil), WithCacheDisabled(true), noRetry())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Search(ctx, domain.SearchRequest{Query: "dune"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSearchCachesResponses(t *testing.T) {
	amazon := &fakeCatalog{name: "Amazon", hits: []domain.CatalogHit{
		{Title: "Leviathan Wakes Audiobook", Author: "James S. A. Corey"},
	}}
	svc := NewService(5*time.Second, WithAmazon(amazon, nil), noRetry())

	first, err := svc.Search(context.Background(), domain.SearchRequest{Query: "leviathan wakes"})
	if err != nil {
		t.Fatalf("first Search: %v", err)
	}
	second, err := svc.Search(context.Background(), domain.SearchRequest{Query: "  Leviathan   Wakes "})
	if err != nil {
		t.Fatalf("second Search: %v", err)
	}
	if amazon.calls.Load() != 1 {
		t.Fatalf("expected cached second search, got %d catalog calls", amazon.calls.Load())
	}
	if first.Cached || !second.Cached {
		t.Fatalf("unexpected cached flags: first=%v second=%v", first.Cached, second.Cached)
	}

	if _, err := svc.Search(context.Background(), domain.SearchRequest{Query: "leviathan wakes", NoCache: true}); err != nil {
		t.Fatalf("NoCache Search: %v", err)
	}
	if amazon.calls.Load() != 2 {
		t.Fatalf("expected NoCache to bypass the cache, got %d calls", amazon.calls.Load())
	}
}

func TestSearchRespectsMaxResults(t *testing.T) {
	hits := make([]domain.CatalogHit, 0, 4)
	for _, title := range []string{"Foundation Audiobook", "Foundation and Empire Audiobook", "Second Foundation Audiobook", "Foundation's Edge Audiobook"} {
		hits = append(hits, domain.CatalogHit{Title: title, Author: "Isaac Asimov"})
	}
	settings := domain.DefaultSearchSettings()
	settings.MaxResults = 2
	svc := NewService(5*time.Second, WithAmazon(&fakeCatalog{name: "Amazon", hits: hits}, nil), WithSettings(settings), WithCacheDisabled(true), noRetry())

	resp, err := svc.Search(context.Background(), domain.SearchRequest{Query: "foundation"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Items))
	}
}

func TestProvidersSorted(t *testing.T) {
	svc := NewService(time.Second,
		WithAudible(&fakeCatalog{name: "Audible"}, nil),
		WithAmazon(&fakeCatalog{name: "Amazon"}, nil),
		WithBookIndex(&fakeIndex{}),
	)
	providers := svc.Providers()
	if len(providers) != 3 {
		t.Fatalf("expected 3 providers, got %+v", providers)
	}
	if providers[0].Name != "amazon" || providers[1].Name != "audible" || providers[2].Name != "openlibrary" {
		t.Fatalf("unexpected order: %+v", providers)
	}
}

func TestNewServiceDefaultTimeout(t *testing.T) {
	svc := NewService(0)
	if svc.timeout != 45*time.Second {
		t.Fatalf("expected default timeout, got %s", svc.timeout)
	}
}
