package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"audiostream/metasearch/internal/domain"
)

type Config struct {
	HTTPAddr       string
	RequestTimeout time.Duration
	LogLevel       string
	LogFormat      string
	UserAgent      string

	AmazonEndpoint      string
	AudibleEndpoint     string
	OpenLibraryEndpoint string
	AudnexusEndpoint    string
	AudimetaEndpoint    string
	MetadataRegion      string

	Settings            domain.SearchSettings
	EnrichConcurrency   int
	FallbackConcurrency int
	ScrapeRatePerSecond float64

	RedisURL         string
	CacheTTL         time.Duration
	CacheDisabled    bool
	MetadataCacheTTL time.Duration

	ImageCacheDir       string
	QualityProfilesFile string

	Indexers []IndexerConfig
}

// IndexerConfig is one Torznab or Newznab feed used for release search.
type IndexerConfig struct {
	ID         int
	Name       string
	Endpoint   string
	APIKey     string
	Categories string
	Usenet     bool
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8091"),
		RequestTimeout: time.Duration(getEnvInt("SEARCH_TIMEOUT_SECONDS", 45)) * time.Second,
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent:      getEnv("SEARCH_USER_AGENT", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"),

		AmazonEndpoint:      getEnv("AMAZON_ENDPOINT", "https://www.amazon.com"),
		AudibleEndpoint:     getEnv("AUDIBLE_ENDPOINT", "https://www.audible.com"),
		OpenLibraryEndpoint: getEnv("OPENLIBRARY_ENDPOINT", "https://openlibrary.org"),
		AudnexusEndpoint:    getEnv("AUDNEXUS_ENDPOINT", "https://api.audnex.us"),
		AudimetaEndpoint:    getEnv("AUDIMETA_ENDPOINT", "https://audimeta.de"),
		MetadataRegion:      strings.ToLower(getEnv("METADATA_REGION", "us")),

		Settings: domain.SearchSettings{
			AmazonEnabled:        getEnvBool("SEARCH_AMAZON_ENABLED", true),
			AudibleEnabled:       getEnvBool("SEARCH_AUDIBLE_ENABLED", true),
			OpenLibraryEnabled:   getEnvBool("SEARCH_OPENLIBRARY_ENABLED", true),
			AmazonMaxCandidates:  getEnvInt("SEARCH_AMAZON_MAX_CANDIDATES", 50),
			AudibleMaxCandidates: getEnvInt("SEARCH_AUDIBLE_MAX_CANDIDATES", 50),
			MaxResults:           getEnvInt("SEARCH_MAX_RESULTS", 100),
		},
		EnrichConcurrency:   getEnvInt("SEARCH_ENRICH_CONCURRENCY", 5),
		FallbackConcurrency: getEnvInt("SEARCH_FALLBACK_CONCURRENCY", 5),
		ScrapeRatePerSecond: getEnvFloat("SCRAPE_RATE_PER_SECOND", 2),

		RedisURL:         getEnv("REDIS_URL", ""),
		CacheTTL:         time.Duration(getEnvInt("SEARCH_CACHE_TTL_MINUTES", 60)) * time.Minute,
		CacheDisabled:    getEnvBool("SEARCH_CACHE_DISABLED", false),
		MetadataCacheTTL: time.Duration(getEnvInt("METADATA_CACHE_TTL_HOURS", 72)) * time.Hour,

		ImageCacheDir:       getEnv("IMAGE_CACHE_DIR", "./config/cache/images"),
		QualityProfilesFile: getEnv("QUALITY_PROFILES_FILE", ""),

		Indexers: loadIndexers(),
	}
}

// MetadataSources lists the bibliographic APIs in lookup order.
func (c Config) MetadataSources() []domain.MetadataSourceConfig {
	return []domain.MetadataSourceConfig{
		{Name: "Audimeta", BaseURL: c.AudimetaEndpoint, Priority: 1, Enabled: getEnvBool("METADATA_AUDIMETA_ENABLED", true)},
		{Name: "Audnexus", BaseURL: c.AudnexusEndpoint, Priority: 2, Enabled: getEnvBool("METADATA_AUDNEXUS_ENABLED", true)},
	}
}

// loadIndexers reads TORZNAB_* and NEWZNAB_* feeds. Feeds without an
// endpoint are skipped.
func loadIndexers() []IndexerConfig {
	var out []IndexerConfig
	if endpoint := getEnv("TORZNAB_ENDPOINT", ""); endpoint != "" {
		out = append(out, IndexerConfig{
			ID:         getEnvInt("TORZNAB_INDEXER_ID", 1),
			Name:       getEnv("TORZNAB_NAME", "torznab"),
			Endpoint:   endpoint,
			APIKey:     getEnv("TORZNAB_API_KEY", ""),
			Categories: getEnv("TORZNAB_CATEGORIES", "3030"),
		})
	}
	if endpoint := getEnv("NEWZNAB_ENDPOINT", ""); endpoint != "" {
		out = append(out, IndexerConfig{
			ID:         getEnvInt("NEWZNAB_INDEXER_ID", 2),
			Name:       getEnv("NEWZNAB_NAME", "newznab"),
			Endpoint:   endpoint,
			APIKey:     getEnv("NEWZNAB_API_KEY", ""),
			Categories: getEnv("NEWZNAB_CATEGORIES", "3030"),
			Usenet:     true,
		})
	}
	return out
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
