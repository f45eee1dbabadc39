package openlibrary

import (
	"context"
	"errors"
	"fmt"
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
	DefaultBaseURL = "https://openlibrary.org"
	defaultLimit   = 10
	searchFields   = "key,title,author_name,author_key,first_publish_year,isbn,publisher,cover_i,edition_count,language,subject"
)

type Config struct {
	BaseURL  string
	Client   *http.Client
	Redis    *redis.Client
	CacheTTL time.Duration
}

type Client struct {
	api *common.APIClient
}

type searchResponse struct {
	NumFound int                      `json:"numFound"`
	Docs     []domain.OpenLibraryBook `json:"docs"`
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{api: common.NewAPIClient(common.APIConfig{
		Name:     "openlibrary",
		BaseURL:  baseURL,
		Client:   cfg.Client,
		Redis:    cfg.Redis,
		CacheTTL: cfg.CacheTTL,
	})}
}

func (c *Client) Name() string {
	return "OpenLibrary"
}

// Search runs a free-text query against search.json.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.OpenLibraryBook, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.OpenLibraryBook{}, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	var response searchResponse
	cacheKey := fmt.Sprintf("search:%d:%s", limit, strings.ToLower(query))
	err := c.api.GetJSON(ctx, "/search.json", url.Values{
		"q":      {query},
		"limit":  {strconv.Itoa(limit)},
		"fields": {searchFields},
	}, cacheKey, &response)
	if errors.Is(err, common.ErrNotFound) {
		return []domain.OpenLibraryBook{}, nil
	}
	if err != nil {
		return nil, err
	}
	if response.Docs == nil {
		return []domain.OpenLibraryBook{}, nil
	}
	return response.Docs, nil
}
