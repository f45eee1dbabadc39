package audimeta

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"audiostream/metasearch/internal/domain"
	"audiostream/metasearch/internal/providers/common"
)

const (
	DefaultBaseURL = "https://audimeta.de"
	defaultRegion  = "us"
)

type Config struct {
	BaseURL  string
	Region   string
	Client   *http.Client
	Redis    *redis.Client
	CacheTTL time.Duration
}

// Client reads book records from audimeta.de.
type Client struct {
	api    *common.APIClient
	region string
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	region := strings.ToLower(strings.TrimSpace(cfg.Region))
	if region == "" {
		region = defaultRegion
	}
	return &Client{
		api: common.NewAPIClient(common.APIConfig{
			Name:     "audimeta",
			BaseURL:  baseURL,
			Client:   cfg.Client,
			Redis:    cfg.Redis,
			CacheTTL: cfg.CacheTTL,
		}),
		region: region,
	}
}

// GetBook returns nil without error when the ASIN is unknown. useCache=false
// asks audimeta to refresh from Audible and skips the local Redis copy too.
func (c *Client) GetBook(ctx context.Context, asin string, useCache bool) (*domain.AudimetaBook, error) {
	asin = strings.ToUpper(strings.TrimSpace(asin))
	if asin == "" {
		return nil, nil
	}
	cacheKey := ""
	if useCache {
		cacheKey = "book:" + c.region + ":" + asin
	}
	var book domain.AudimetaBook
	err := c.api.GetJSON(ctx, "/book/"+url.PathEscape(asin), url.Values{
		"cache":  {strconv.FormatBool(useCache)},
		"region": {c.region},
	}, cacheKey, &book)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(book.Title) == "" {
		return nil, nil
	}
	return &book, nil
}
