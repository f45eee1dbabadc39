package app

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"audiostream/metasearch/internal/providers/amazon"
	"audiostream/metasearch/internal/providers/audible"
	"audiostream/metasearch/internal/providers/audimeta"
	"audiostream/metasearch/internal/providers/audnexus"
	"audiostream/metasearch/internal/providers/openlibrary"
	"audiostream/metasearch/internal/providers/torznab"
	"audiostream/metasearch/internal/quality"
	"audiostream/metasearch/internal/releases"
	"audiostream/metasearch/internal/search"
	"audiostream/metasearch/internal/telemetry"
)

func NewLogger(levelRaw, formatRaw string) *slog.Logger {
	options := &slog.HandlerOptions{Level: ParseLogLevel(levelRaw)}
	if strings.ToLower(strings.TrimSpace(formatRaw)) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func ParseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ConnectRedis returns nil when REDIS_URL is unset or the server is not
// reachable; every cache falls back to memory in that case.
func ConnectRedis(ctx context.Context, cfg Config, logger *slog.Logger) *redis.Client {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory cache only", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable, using in-memory cache only", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}

// LoadQualityCatalog reads QUALITY_PROFILES_FILE. Without a file the catalog
// is empty and the built-in default profile applies.
func LoadQualityCatalog(cfg Config, logger *slog.Logger) (*quality.Catalog, error) {
	path := strings.TrimSpace(cfg.QualityProfilesFile)
	if path == "" {
		return &quality.Catalog{}, nil
	}
	catalog, err := quality.LoadProfiles(path)
	if err != nil {
		return nil, err
	}
	logger.Info("quality profiles loaded",
		slog.String("file", path),
		slog.Int("profiles", len(catalog.Profiles)),
		slog.Int("indexers", len(catalog.Indexers)),
	)
	return catalog, nil
}

// SearchOptions assembles the catalog scrapers, bibliographic APIs and caches
// for search.NewService.
func SearchOptions(cfg Config, redisClient *redis.Client) []search.ServiceOption {
	scrapeClient := telemetry.NewHTTPClient(cfg.RequestTimeout)
	apiClient := telemetry.NewHTTPClient(cfg.RequestTimeout)

	amazonProvider := amazon.NewProvider(amazon.Config{
		Endpoint:      cfg.AmazonEndpoint,
		UserAgent:     cfg.UserAgent,
		Client:        scrapeClient,
		RatePerSecond: cfg.ScrapeRatePerSecond,
	})
	audibleProvider := audible.NewProvider(audible.Config{
		Endpoint:      cfg.AudibleEndpoint,
		UserAgent:     cfg.UserAgent,
		Client:        scrapeClient,
		RatePerSecond: cfg.ScrapeRatePerSecond,
	})
	index := openlibrary.NewClient(openlibrary.Config{
		BaseURL:  cfg.OpenLibraryEndpoint,
		Client:   apiClient,
		Redis:    redisClient,
		CacheTTL: cfg.MetadataCacheTTL,
	})
	audimetaClient := audimeta.NewClient(audimeta.Config{
		BaseURL:  cfg.AudimetaEndpoint,
		Region:   cfg.MetadataRegion,
		Client:   apiClient,
		Redis:    redisClient,
		CacheTTL: cfg.MetadataCacheTTL,
	})
	audnexusClient := audnexus.NewClient(audnexus.Config{
		BaseURL:  cfg.AudnexusEndpoint,
		Region:   cfg.MetadataRegion,
		Client:   apiClient,
		Redis:    redisClient,
		CacheTTL: cfg.MetadataCacheTTL,
	})

	opts := []search.ServiceOption{
		search.WithAmazon(amazonProvider, amazonProvider.ProductPage()),
		search.WithAudible(audibleProvider, audibleProvider.ProductPage()),
		search.WithBookIndex(index),
		search.WithMetadataSources(cfg.MetadataSources(),
			search.NewAudimetaStrategy(audimetaClient),
			search.NewAudnexusStrategy(audnexusClient),
		),
		search.WithSettings(cfg.Settings),
		search.WithConcurrency(cfg.EnrichConcurrency, cfg.FallbackConcurrency),
	}
	if cfg.CacheDisabled {
		return append(opts, search.WithCacheDisabled(true))
	}
	opts = append(opts, search.WithCacheTTL(cfg.CacheTTL))
	if redisClient != nil {
		opts = append(opts, search.WithRedisCache(search.NewRedisCacheBackend(redisClient)))
	}
	return opts
}

// ReleaseFinder builds the indexer fan-out. It returns nil when no indexer is
// configured.
func ReleaseFinder(cfg Config, catalog *quality.Catalog) *releases.Finder {
	if len(cfg.Indexers) == 0 {
		return nil
	}
	client := telemetry.NewHTTPClient(cfg.RequestTimeout)
	sources := make([]releases.Source, 0, len(cfg.Indexers))
	for _, indexer := range cfg.Indexers {
		sources = append(sources, torznab.NewProvider(torznab.Config{
			Name:       indexer.Name,
			Endpoint:   indexer.Endpoint,
			APIKey:     indexer.APIKey,
			UserAgent:  cfg.UserAgent,
			Categories: indexer.Categories,
			Usenet:     indexer.Usenet,
			IndexerID:  indexer.ID,
			Client:     client,
		}))
	}
	opts := []releases.Option{releases.WithTimeout(cfg.RequestTimeout)}
	if catalog != nil {
		opts = append(opts, releases.WithIndexers(catalog.IndexerMap()))
	}
	return releases.NewFinder(sources, opts...)
}
