package audnexus

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"audiostream/metasearch/internal/domain"
	"audiostream/metasearch/internal/providers/common"
)

const (
	DefaultBaseURL = "https://api.audnex.us"
	defaultRegion  = "us"
)

type Config struct {
	BaseURL  string
	Region   string
	Client   *http.Client
	Redis    *redis.Client
	CacheTTL time.Duration
}

// Client reads book records from the Audnexus API.
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
			Name:     "audnexus",
			BaseURL:  baseURL,
			Client:   cfg.Client,
			Redis:    cfg.Redis,
			CacheTTL: cfg.CacheTTL,
		}),
		region: region,
	}
}

// GetBook returns nil without error when the ASIN is unknown upstream.
func (c *Client) GetBook(ctx context.Context, asin string) (*domain.AudnexusBook, error) {
	asin = strings.ToUpper(strings.TrimSpace(asin))
	if asin == "" {
		return nil, nil
	}
	var book domain.AudnexusBook
	err := c.api.GetJSON(ctx, "/books/"+url.PathEscape(asin), url.Values{
		"region":      {c.region},
		"seedAuthors": {"0"},
		"update":      {"0"},
	}, "book:"+c.region+":"+asin, &book)
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
