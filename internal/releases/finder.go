package releases

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"audiostream/metasearch/internal/domain"
	"audiostream/metasearch/internal/quality"
	"audiostream/metasearch/internal/search"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultSourceLimit = 100
	defaultConcurrency = 4
)

var ErrNoSources = errors.New("no release indexers configured")

// Source is one indexer feed that can be searched for downloadable releases.
type Source interface {
	Name() string
	Indexer() domain.Indexer
	SearchReleases(ctx context.Context, query string, limit int) ([]domain.Release, error)
}

// Result is the ranked outcome of one release search.
type Result struct {
	Query     string                  `json:"query"`
	Profile   string                  `json:"profile"`
	Items     []quality.Ranked        `json:"items"`
	Accepted  int                     `json:"accepted"`
	Providers []domain.ProviderStatus `json:"providers"`
	ElapsedMS int64                   `json:"elapsedMs"`
}

// Finder fans a query out to every indexer feed and ranks the combined
// releases against a quality profile.
type Finder struct {
	sources     []Source
	scorer      *quality.Scorer
	overrides   map[int]domain.Indexer
	retry       search.RetryConfig
	timeout     time.Duration
	limit       int
	concurrency int64
}

type Option func(*Finder)

func WithScorer(scorer *quality.Scorer) Option {
	return func(f *Finder) {
		if scorer != nil {
			f.scorer = scorer
		}
	}
}

// WithIndexers overrides the settings sources report for themselves, keyed by
// indexer id, so operators can tune priority and retention in the profile file.
func WithIndexers(indexers map[int]domain.Indexer) Option {
	return func(f *Finder) {
		f.overrides = indexers
	}
}

func WithRetryConfig(cfg search.RetryConfig) Option {
	return func(f *Finder) {
		f.retry = cfg
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(f *Finder) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

func WithSourceLimit(limit int) Option {
	return func(f *Finder) {
		if limit > 0 {
			f.limit = limit
		}
	}
}

func NewFinder(sources []Source, opts ...Option) *Finder {
	finder := &Finder{
		sources:     sources,
		scorer:      quality.NewScorer(),
		retry:       search.DefaultRetryConfig(),
		timeout:     defaultTimeout,
		limit:       defaultSourceLimit,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(finder)
	}
	return finder
}

func (f *Finder) Enabled() bool {
	return f != nil && len(f.sources) > 0
}

// Find searches every source and ranks the union. Source failures surface as
// provider statuses; only an empty query, no sources, or cancellation error out.
func (f *Finder) Find(ctx context.Context, query string, profile domain.QualityProfile) (Result, error) {
	query = strings.Join(strings.Fields(query), " ")
	if query == "" {
		return Result{}, search.ErrInvalidQuery
	}
	if !f.Enabled() {
		return Result{}, ErrNoSources
	}

	runCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	startedAt := time.Now()
	statuses := make([]domain.ProviderStatus, len(f.sources))
	found := make([][]domain.Release, len(f.sources))
	sem := semaphore.NewWeighted(f.concurrency)

	var wg sync.WaitGroup
	for i, source := range f.sources {
		wg.Add(1)
		go func(i int, source Source) {
			defer wg.Done()
			statuses[i] = domain.ProviderStatus{Name: source.Name()}
			if err := sem.Acquire(runCtx, 1); err != nil {
				statuses[i].Error = err.Error()
				return
			}
			defer sem.Release(1)

			var items []domain.Release
			err := search.RetryWithBackoff(runCtx, f.retry, func() error {
				var callErr error
				items, callErr = source.SearchReleases(runCtx, query, f.limit)
				return callErr
			})
			if err != nil {
				slog.Warn("release search failed",
					slog.String("indexer", source.Name()),
					slog.String("error", err.Error()),
				)
				statuses[i].Error = err.Error()
				return
			}
			id := source.Indexer().ID
			for j := range items {
				if items[j].IndexerID == 0 {
					items[j].IndexerID = id
				}
			}
			statuses[i].OK = true
			statuses[i].Count = len(items)
			found[i] = items
		}(i, source)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var all []domain.Release
	for _, items := range found {
		all = append(all, items...)
	}
	ranked := f.scorer.Rank(all, profile, f.indexers())

	accepted := 0
	for _, item := range ranked {
		if !item.Decision.IsRejected() {
			accepted++
		}
	}
	sort.SliceStable(statuses, func(i, j int) bool {
		return statuses[i].Name < statuses[j].Name
	})

	slog.Info("release search finished",
		slog.String("query", query),
		slog.String("profile", profile.Name),
		slog.Int("releases", len(ranked)),
		slog.Int("accepted", accepted),
		slog.Duration("elapsed", time.Since(startedAt)),
	)
	return Result{
		Query:     query,
		Profile:   profile.Name,
		Items:     ranked,
		Accepted:  accepted,
		Providers: statuses,
		ElapsedMS: time.Since(startedAt).Milliseconds(),
	}, nil
}

func (f *Finder) indexers() map[int]domain.Indexer {
	out := make(map[int]domain.Indexer, len(f.sources)+len(f.overrides))
	for _, source := range f.sources {
		indexer := source.Indexer()
		out[indexer.ID] = indexer
	}
	for id, override := range f.overrides {
		out[id] = mergeIndexer(out[id], override)
	}
	return out
}

// mergeIndexer lays the fields an override sets on top of what the source
// reported. Zero values in the override keep the reported value.
func mergeIndexer(base, override domain.Indexer) domain.Indexer {
	if base.ID == 0 {
		base.ID = override.ID
	}
	if override.Name != "" {
		base.Name = override.Name
	}
	if override.Type != "" {
		base.Type = override.Type
	}
	if override.Implementation != "" {
		base.Implementation = override.Implementation
	}
	if override.Priority > 0 {
		base.Priority = override.Priority
	}
	if override.Retention > 0 {
		base.Retention = override.Retention
	}
	return base
}
