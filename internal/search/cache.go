package search

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"audiostream/metasearch/internal/domain"
	"audiostream/metasearch/internal/metrics"
)

const (
	defaultCacheTTL        = time.Hour
	defaultStaleTTL        = 3 * time.Hour
	defaultCacheMaxEntries = 400
)

type cacheConfig struct {
	cacheTTL        time.Duration
	staleTTL        time.Duration
	cacheMaxEntries int
}

type cachedSearchResponse struct {
	response    domain.SearchResponse
	updatedAt   time.Time
	expiresAt   time.Time
	staleUntil  time.Time
	refreshing  bool
	refreshOnce sync.Once // one background refresh per stale period
}

func defaultCacheConfig() cacheConfig {
	return cacheConfig{
		cacheTTL:        defaultCacheTTL,
		staleTTL:        defaultStaleTTL,
		cacheMaxEntries: defaultCacheMaxEntries,
	}
}

// cacheLookup returns a cached response, whether it was found, and whether the
// caller should refresh it in the background.
func (s *Service) cacheLookup(ctx context.Context, key string, now time.Time) (domain.SearchResponse, bool, bool) {
	if s.redisCache != nil {
		resp, found, err := s.redisCache.Get(ctx, key)
		if err == nil && found {
			metrics.CacheHitsTotal.Inc()
			s.cacheStoreMemoryOnly(key, resp, now)
			return resp, true, false
		}
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	entry, ok := s.cache[key]
	if !ok {
		metrics.CacheMissesTotal.Inc()
		return domain.SearchResponse{}, false, false
	}

	if now.Before(entry.expiresAt) {
		metrics.CacheHitsTotal.Inc()
		return cloneSearchResponse(entry.response), true, false
	}

	if now.Before(entry.staleUntil) {
		metrics.CacheHitsTotal.Inc()
		needsRefresh := false
		entry.refreshOnce.Do(func() {
			needsRefresh = true
			entry.refreshing = true
		})
		return cloneSearchResponse(entry.response), true, needsRefresh
	}

	metrics.CacheMissesTotal.Inc()
	delete(s.cache, key)
	return domain.SearchResponse{}, false, false
}

func (s *Service) cacheStore(ctx context.Context, key string, response domain.SearchResponse, now time.Time) {
	if s.redisCache != nil {
		_ = s.redisCache.Set(ctx, key, response, s.cacheTTL())
	}
	s.cacheStoreMemoryOnly(key, response, now)
}

func (s *Service) cacheStoreMemoryOnly(key string, response domain.SearchResponse, now time.Time) {
	cacheTTL := s.cacheTTL()
	staleTTL := s.cacheCfg.staleTTL
	if staleTTL <= cacheTTL {
		staleTTL = cacheTTL * 3
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.cache[key] = &cachedSearchResponse{
		response:   cloneSearchResponse(response),
		updatedAt:  now,
		expiresAt:  now.Add(cacheTTL),
		staleUntil: now.Add(staleTTL),
	}
	s.trimCacheLocked(now)
}

func (s *Service) cacheTTL() time.Duration {
	if s.cacheCfg.cacheTTL <= 0 {
		return defaultCacheTTL
	}
	return s.cacheCfg.cacheTTL
}

func (s *Service) cacheClearRefreshing(key string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if entry := s.cache[key]; entry != nil {
		entry.refreshing = false
	}
}

func (s *Service) trimCacheLocked(now time.Time) {
	maxEntries := s.cacheCfg.cacheMaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultCacheMaxEntries
	}

	for key, entry := range s.cache {
		if now.After(entry.staleUntil) {
			delete(s.cache, key)
		}
	}

	if len(s.cache) <= maxEntries {
		return
	}

	type pair struct {
		key   string
		entry *cachedSearchResponse
	}
	items := make([]pair, 0, len(s.cache))
	for key, entry := range s.cache {
		items = append(items, pair{key: key, entry: entry})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].entry.updatedAt.Before(items[j].entry.updatedAt)
	})
	for i := 0; i < len(items)-maxEntries; i++ {
		delete(s.cache, items[i].key)
	}
}

func cloneSearchResponse(response domain.SearchResponse) domain.SearchResponse {
	cloned := response
	if response.Items != nil {
		cloned.Items = make([]domain.CandidateResult, len(response.Items))
		for i, item := range response.Items {
			copied := item
			copied.Genres = append([]string(nil), item.Genres...)
			cloned.Items[i] = copied
		}
	}
	if response.Providers != nil {
		cloned.Providers = append([]domain.ProviderStatus(nil), response.Providers...)
	}
	if response.DropReasons != nil {
		cloned.DropReasons = make(map[string]string, len(response.DropReasons))
		for key, value := range response.DropReasons {
			cloned.DropReasons[key] = value
		}
	}
	return cloned
}

// buildSearchCacheKey folds everything that changes a response into one key.
func buildSearchCacheKey(query string, limit int, settings domain.SearchSettings) string {
	flags := make([]string, 0, 3)
	if settings.AmazonEnabled {
		flags = append(flags, "amazon")
	}
	if settings.AudibleEnabled {
		flags = append(flags, "audible")
	}
	if settings.OpenLibraryEnabled {
		flags = append(flags, "openlibrary")
	}
	return strings.Join([]string{
		"q=" + strings.ToLower(strings.Join(strings.Fields(query), " ")),
		"l=" + strconv.Itoa(limit),
		"p=" + strings.Join(flags, ","),
	}, "|")
}
