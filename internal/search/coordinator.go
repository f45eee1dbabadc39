package search

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"audiostream/metasearch/internal/domain"
)

// MetadataStrategy fetches canonical metadata from one kind of metadata API.
// A nil record with a nil error means the API has no entry for the identifier.
type MetadataStrategy interface {
	Name() string
	CanHandle(source domain.MetadataSourceConfig) bool
	Fetch(ctx context.Context, asin string, source domain.MetadataSourceConfig, origin string) (*domain.BookMetadata, error)
}

// AudimetaClient is the audimeta.de book endpoint.
type AudimetaClient interface {
	GetBook(ctx context.Context, asin string, useCache bool) (*domain.AudimetaBook, error)
}

// AudnexusClient is the api.audnex.us book endpoint.
type AudnexusClient interface {
	GetBook(ctx context.Context, asin string) (*domain.AudnexusBook, error)
}

type AudimetaStrategy struct {
	client AudimetaClient
}

func NewAudimetaStrategy(client AudimetaClient) *AudimetaStrategy {
	return &AudimetaStrategy{client: client}
}

func (a *AudimetaStrategy) Name() string { return "Audimeta" }

func (a *AudimetaStrategy) CanHandle(source domain.MetadataSourceConfig) bool {
	return strings.Contains(strings.ToLower(source.BaseURL), "audimeta.de")
}

// Fetch retries once with the upstream cache bypassed when the cached lookup
// comes back empty.
func (a *AudimetaStrategy) Fetch(ctx context.Context, asin string, _ domain.MetadataSourceConfig, origin string) (*domain.BookMetadata, error) {
	book, err := a.client.GetBook(ctx, asin, true)
	if err != nil {
		return nil, err
	}
	if book == nil {
		slog.Debug("audimeta cache miss, retrying uncached", slog.String("asin", asin))
		book, err = a.client.GetBook(ctx, asin, false)
		if err != nil || book == nil {
			return nil, err
		}
	}
	meta := FromAudimeta(*book, asin, origin)
	return &meta, nil
}

type AudnexusStrategy struct {
	client AudnexusClient
}

func NewAudnexusStrategy(client AudnexusClient) *AudnexusStrategy {
	return &AudnexusStrategy{client: client}
}

func (a *AudnexusStrategy) Name() string { return "Audnexus" }

func (a *AudnexusStrategy) CanHandle(source domain.MetadataSourceConfig) bool {
	return strings.Contains(strings.ToLower(source.BaseURL), "audnex.us")
}

func (a *AudnexusStrategy) Fetch(ctx context.Context, asin string, _ domain.MetadataSourceConfig, origin string) (*domain.BookMetadata, error) {
	book, err := a.client.GetBook(ctx, asin)
	if err != nil || book == nil {
		return nil, err
	}
	meta := FromAudnexus(*book, asin, origin)
	return &meta, nil
}

// Coordinator tries the configured metadata sources in priority order and
// stops at the first one that returns a record.
type Coordinator struct {
	strategies []MetadataStrategy
	health     *HealthTracker
	retry      RetryConfig
}

func NewCoordinator(health *HealthTracker, retry RetryConfig, strategies ...MetadataStrategy) *Coordinator {
	return &Coordinator{strategies: strategies, health: health, retry: retry}
}

// Fetch returns the record and the name of the source that produced it, or
// (nil, "", nil) when every source came up empty. The only error it returns is
// the context's.
func (c *Coordinator) Fetch(ctx context.Context, asin string, sources []domain.MetadataSourceConfig, origin string) (*domain.BookMetadata, string, error) {
	for _, source := range orderSources(sources) {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		strategy := c.strategyFor(source)
		if strategy == nil {
			slog.Debug("no strategy for metadata source",
				slog.String("source", source.Name),
				slog.String("baseUrl", source.BaseURL),
			)
			continue
		}

		meta, err := callProvider(ctx, c.health, sourceKey(source), c.retry, func(ctx context.Context) (*domain.BookMetadata, error) {
			return strategy.Fetch(ctx, asin, source, origin)
		})
		if err != nil {
			if isCancellation(ctx, err) {
				return nil, "", ctx.Err()
			}
			slog.Debug("metadata source failed",
				slog.String("source", source.Name),
				slog.String("asin", asin),
				slog.String("error", err.Error()),
			)
			continue
		}
		if meta != nil {
			return meta, source.Name, nil
		}
	}
	return nil, "", nil
}

func (c *Coordinator) strategyFor(source domain.MetadataSourceConfig) MetadataStrategy {
	if c == nil {
		return nil
	}
	for _, strategy := range c.strategies {
		if strategy.CanHandle(source) {
			return strategy
		}
	}
	return nil
}

// orderSources returns the enabled sources sorted by ascending priority.
func orderSources(sources []domain.MetadataSourceConfig) []domain.MetadataSourceConfig {
	out := make([]domain.MetadataSourceConfig, 0, len(sources))
	for _, source := range sources {
		if source.Enabled {
			out = append(out, source)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

func sourceKey(source domain.MetadataSourceConfig) string {
	return strings.ToLower(strings.TrimSpace(source.Name))
}

// isCancellation separates the caller giving up from a provider failing.
func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled)
}
