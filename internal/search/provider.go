package search

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"audiostream/metasearch/internal/domain"
)

var (
	ErrInvalidQuery = errors.New("query is required")
	ErrNoProviders  = errors.New("no search providers configured")
)

// CatalogSearcher is a product-catalog search page (Amazon, Audible).
type CatalogSearcher interface {
	Name() string
	Search(ctx context.Context, query string) ([]domain.CatalogHit, error)
}

// BookIndex is the open bibliographic index.
type BookIndex interface {
	Search(ctx context.Context, query string, limit int) ([]domain.OpenLibraryBook, error)
}

// PageScraper reads one product page. A nil record with a nil error means the
// page had nothing usable.
type PageScraper interface {
	Name() string
	Scrape(ctx context.Context, asin string) (*domain.BookMetadata, error)
}

// ImageCache stores cover art locally so results can point at a stable route.
type ImageCache interface {
	CachedPath(asin string) (string, bool)
	DownloadAndCache(imageURL, asin string)
}

// Broadcaster delivers progress events; delivery failures are the broadcaster's problem.
type Broadcaster interface {
	Publish(channel string, event domain.ProgressEvent)
}

type Service struct {
	amazon      CatalogSearcher
	audible     CatalogSearcher
	index       BookIndex
	audiblePage PageScraper
	amazonPage  PageScraper
	strategies  []MetadataStrategy
	sources     []domain.MetadataSourceConfig
	settings    domain.SearchSettings
	images      ImageCache
	progress    Broadcaster
	health      *HealthTracker
	retry       RetryConfig
	timeout     time.Duration

	enrichConcurrency   int64
	fallbackConcurrency int64

	cacheDisabled bool
	cacheMu       sync.RWMutex
	cache         map[string]*cachedSearchResponse
	cacheCfg      cacheConfig
	redisCache    *RedisCacheBackend
}

type ServiceOption func(*Service)

func WithAmazon(searcher CatalogSearcher, page PageScraper) ServiceOption {
	return func(s *Service) {
		s.amazon = searcher
		s.amazonPage = page
	}
}

func WithAudible(searcher CatalogSearcher, page PageScraper) ServiceOption {
	return func(s *Service) {
		s.audible = searcher
		s.audiblePage = page
	}
}

func WithBookIndex(index BookIndex) ServiceOption {
	return func(s *Service) {
		s.index = index
	}
}

// WithMetadataSources registers the strategies and the operator's source list.
func WithMetadataSources(sources []domain.MetadataSourceConfig, strategies ...MetadataStrategy) ServiceOption {
	return func(s *Service) {
		s.sources = append([]domain.MetadataSourceConfig(nil), sources...)
		s.strategies = append(s.strategies, strategies...)
	}
}

func WithSettings(settings domain.SearchSettings) ServiceOption {
	return func(s *Service) {
		s.settings = settings
	}
}

func WithImageCache(images ImageCache) ServiceOption {
	return func(s *Service) {
		s.images = images
	}
}

func WithBroadcaster(progress Broadcaster) ServiceOption {
	return func(s *Service) {
		s.progress = progress
	}
}

func WithConcurrency(enrich, fallback int) ServiceOption {
	return func(s *Service) {
		if enrich > 0 {
			s.enrichConcurrency = int64(enrich)
		}
		if fallback > 0 {
			s.fallbackConcurrency = int64(fallback)
		}
	}
}

func WithRetryConfig(cfg RetryConfig) ServiceOption {
	return func(s *Service) {
		s.retry = cfg
	}
}

func WithRedisCache(backend *RedisCacheBackend) ServiceOption {
	return func(s *Service) {
		s.redisCache = backend
	}
}

func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheCfg.cacheTTL = ttl
			s.cacheCfg.staleTTL = ttl * 3
		}
	}
}

func WithCacheDisabled(disabled bool) ServiceOption {
	return func(s *Service) {
		s.cacheDisabled = disabled
	}
}

func NewService(timeout time.Duration, opts ...ServiceOption) *Service {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	svc := &Service{
		settings:            domain.DefaultSearchSettings(),
		health:              NewHealthTracker(),
		retry:               DefaultRetryConfig(),
		timeout:             timeout,
		enrichConcurrency:   defaultConcurrency,
		fallbackConcurrency: defaultConcurrency,
		cache:               make(map[string]*cachedSearchResponse),
		cacheCfg:            defaultCacheConfig(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Providers lists every configured upstream and whether it is switched on.
func (s *Service) Providers() []domain.ProviderInfo {
	var items []domain.ProviderInfo
	if s.amazon != nil {
		items = append(items, domain.ProviderInfo{Name: strings.ToLower(s.amazon.Name()), Label: "Amazon", Kind: "catalog", Enabled: s.settings.AmazonEnabled})
	}
	if s.audible != nil {
		items = append(items, domain.ProviderInfo{Name: strings.ToLower(s.audible.Name()), Label: "Audible", Kind: "catalog", Enabled: s.settings.AudibleEnabled})
	}
	if s.index != nil {
		items = append(items, domain.ProviderInfo{Name: "openlibrary", Label: "OpenLibrary", Kind: "index", Enabled: s.settings.OpenLibraryEnabled})
	}
	for _, source := range s.sources {
		items = append(items, domain.ProviderInfo{Name: strings.ToLower(source.Name), Label: source.Name, Kind: "metadata", Enabled: source.Enabled})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}

func (s *Service) ProviderDiagnostics() []domain.ProviderDiagnostics {
	infos := s.Providers()
	names := make([]string, 0, len(infos)+2)
	for _, info := range infos {
		names = append(names, info.Name)
	}
	if s.amazonPage != nil {
		names = append(names, s.amazonPage.Name())
	}
	if s.audiblePage != nil {
		names = append(names, s.audiblePage.Name())
	}
	return s.health.Diagnostics(names)
}

func (s *Service) hasProviders() bool {
	return s.amazon != nil || s.audible != nil || s.index != nil || s.amazonPage != nil || s.audiblePage != nil || len(s.strategies) > 0
}
