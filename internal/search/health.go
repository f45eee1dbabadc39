package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"audiostream/metasearch/internal/domain"
	"audiostream/metasearch/internal/metrics"
)

const (
	providerFailureThreshold = 3
	providerBlockBase        = 2 * time.Minute
	providerBlockMax         = 15 * time.Minute
)

// ErrProviderBlocked is returned without contacting a provider that is
// inside its failure cool-down window.
var ErrProviderBlocked = errors.New("provider temporarily unhealthy")

type providerHealth struct {
	consecutiveFailures int
	blockedUntil        time.Time
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	lastTimeout         bool
	totalRequests       int64
	totalFailures       int64
	timeoutCount        int64
}

// HealthTracker is a per-provider circuit breaker shared by every query.
type HealthTracker struct {
	mu     sync.Mutex
	health map[string]*providerHealth
	now    func() time.Time
}

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{
		health: make(map[string]*providerHealth),
		now:    time.Now,
	}
}

func (h *HealthTracker) isBlocked(providerName string) (bool, time.Time, string) {
	if h == nil {
		return false, time.Time{}, ""
	}
	name := strings.ToLower(strings.TrimSpace(providerName))
	if name == "" {
		return false, time.Time{}, ""
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	state := h.health[name]
	if state == nil {
		return false, time.Time{}, ""
	}
	if state.blockedUntil.IsZero() || h.now().After(state.blockedUntil) {
		return false, time.Time{}, ""
	}
	return true, state.blockedUntil, state.lastError
}

func (h *HealthTracker) record(providerName string, err error, latency time.Duration) {
	if h == nil {
		return
	}
	name := strings.ToLower(strings.TrimSpace(providerName))
	if name == "" {
		return
	}
	// A cancelled query says nothing about the provider.
	if errors.Is(err, context.Canceled) {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	state := h.health[name]
	if state == nil {
		state = &providerHealth{}
		h.health[name] = state
	}
	state.totalRequests++
	if latency > 0 {
		state.lastLatency = latency
		metrics.ProviderRequestDuration.WithLabelValues(name).Observe(latency.Seconds())
	}
	state.lastTimeout = isTimeoutLikeError(err)
	if state.lastTimeout {
		state.timeoutCount++
	}

	if err == nil {
		state.consecutiveFailures = 0
		state.blockedUntil = time.Time{}
		state.lastError = ""
		state.lastSuccessAt = now
		metrics.ProviderRequestsTotal.WithLabelValues(name, "ok").Inc()
		metrics.ProviderAvailable.WithLabelValues(name).Set(1)
		return
	}

	state.consecutiveFailures++
	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()

	status := "error"
	if state.lastTimeout {
		status = "timeout"
	}
	metrics.ProviderRequestsTotal.WithLabelValues(name, status).Inc()

	if state.consecutiveFailures >= providerFailureThreshold {
		state.blockedUntil = now.Add(exponentialBlockDuration(state.consecutiveFailures))
		metrics.ProviderAvailable.WithLabelValues(name).Set(0)
	}
}

// exponentialBlockDuration is base × 2^(failures - threshold), capped at 15min.
func exponentialBlockDuration(consecutiveFailures int) time.Duration {
	exponent := consecutiveFailures - providerFailureThreshold
	if exponent < 0 {
		exponent = 0
	}
	d := providerBlockBase
	for i := 0; i < exponent; i++ {
		d *= 2
		if d > providerBlockMax {
			return providerBlockMax
		}
	}
	return d
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "timeout") || strings.Contains(value, "deadline exceeded")
}

// callProvider runs fn under the provider's circuit breaker with transient-error
// retries, recording the outcome.
func callProvider[T any](ctx context.Context, health *HealthTracker, name string, retry RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if blocked, until, lastErr := health.isBlocked(name); blocked {
		return zero, fmt.Errorf("%w until %s: %s", ErrProviderBlocked, until.UTC().Format(time.RFC3339), lastErr)
	}

	startedAt := time.Now()
	var out T
	err := RetryWithBackoff(ctx, retry, func() error {
		var callErr error
		out, callErr = fn(ctx)
		return callErr
	})
	health.record(name, err, time.Since(startedAt))
	if err != nil {
		return zero, err
	}
	return out, nil
}

// Diagnostics reports the breaker state for the named providers, in name order.
func (h *HealthTracker) Diagnostics(names []string) []domain.ProviderDiagnostics {
	if len(names) == 0 {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	items := make([]domain.ProviderDiagnostics, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		item := domain.ProviderDiagnostics{Name: name}
		if state := h.health[name]; state != nil {
			item.ConsecutiveFailures = state.consecutiveFailures
			if !state.blockedUntil.IsZero() {
				blockedUntil := state.blockedUntil
				item.BlockedUntil = &blockedUntil
			}
			item.LastError = state.lastError
			if !state.lastSuccessAt.IsZero() {
				lastSuccessAt := state.lastSuccessAt
				item.LastSuccessAt = &lastSuccessAt
			}
			if !state.lastFailureAt.IsZero() {
				lastFailureAt := state.lastFailureAt
				item.LastFailureAt = &lastFailureAt
			}
			item.LastLatencyMS = state.lastLatency.Milliseconds()
			item.LastTimeout = state.lastTimeout
			item.TotalRequests = state.totalRequests
			item.TotalFailures = state.totalFailures
			item.TimeoutCount = state.timeoutCount
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}
