package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix  = "metasearch:api:"
	maxPayloadBytes = 2 * 1024 * 1024
	defaultCacheTTL = 24 * time.Hour
)

// ErrNotFound means the API has no record for the requested key.
var ErrNotFound = errors.New("metadata record not found")

type APIConfig struct {
	Name     string
	BaseURL  string
	Client   *http.Client
	Redis    *redis.Client
	CacheTTL time.Duration
}

// APIClient performs cached GETs against a JSON metadata API. Responses are
// kept in Redis when a client is configured; 404s are never cached.
type APIClient struct {
	name     string
	baseURL  string
	http     *http.Client
	redis    *redis.Client
	cacheTTL time.Duration
}

func NewAPIClient(cfg APIConfig) *APIClient {
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &APIClient{
		name:     cfg.Name,
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http:     httpClient,
		redis:    cfg.Redis,
		cacheTTL: cacheTTL,
	}
}

// GetJSON decodes path?query into out and returns ErrNotFound on 404. An empty
// cacheKey bypasses the Redis layer.
func (c *APIClient) GetJSON(ctx context.Context, path string, query url.Values, cacheKey string, out any) error {
	redisKey := redisKeyPrefix + c.name + ":" + cacheKey
	if c.redis != nil && cacheKey != "" {
		data, err := c.redis.Get(ctx, redisKey).Bytes()
		if err == nil && json.Unmarshal(data, out) == nil {
			return nil
		}
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return NewStatusError(c.name, resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.name, err)
	}

	if c.redis != nil && cacheKey != "" {
		if err := c.redis.Set(ctx, redisKey, body, c.cacheTTL).Err(); err != nil {
			slog.Debug("api cache write failed", slog.String("api", c.name), slog.String("error", err.Error()))
		}
	}
	return nil
}
