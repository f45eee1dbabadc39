package search

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"audiostream/metasearch/internal/domain"
)

const (
	redisCachePrefix = "metasearch:search:"
	// Bump when SearchResponse changes shape so stale layouts are skipped.
	redisCacheSchema = 2
)

// redisEnvelope wraps a cached response with the layout it was written in.
type redisEnvelope struct {
	Schema   int                   `json:"schema"`
	StoredAt time.Time             `json:"storedAt"`
	Response domain.SearchResponse `json:"response"`
}

// RedisCacheBackend shares search responses between service replicas and CLI
// runs. It is the second tier behind the in-memory cache.
type RedisCacheBackend struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisCacheBackend(client *redis.Client) *RedisCacheBackend {
	return &RedisCacheBackend{client: client, now: time.Now}
}

// Get reports a miss for absent keys and for entries that cannot be used;
// the latter are deleted. Only transport failures are returned as errors.
func (r *RedisCacheBackend) Get(ctx context.Context, key string) (domain.SearchResponse, bool, error) {
	data, err := r.client.Get(ctx, redisCachePrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.SearchResponse{}, false, nil
	}
	if err != nil {
		return domain.SearchResponse{}, false, err
	}

	var envelope redisEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Schema != redisCacheSchema {
		_ = r.Delete(ctx, key)
		return domain.SearchResponse{}, false, nil
	}
	return envelope.Response, true, nil
}

func (r *RedisCacheBackend) Set(ctx context.Context, key string, response domain.SearchResponse, ttl time.Duration) error {
	data, err := json.Marshal(redisEnvelope{
		Schema:   redisCacheSchema,
		StoredAt: r.now().UTC(),
		Response: response,
	})
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisCachePrefix+key, data, ttl).Err()
}

func (r *RedisCacheBackend) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, redisCachePrefix+key).Err()
}
