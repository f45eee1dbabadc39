package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"audiostream/metasearch/internal/providers/common"
)

func quickRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestRetryRecoversFromRateLimitedAPI(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), quickRetry(3), func() error {
		calls++
		if calls < 3 {
			return &common.StatusError{Source: "audnexus", StatusCode: http.StatusTooManyRequests}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after rate limiting, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryReturnsLastUpstreamFailure(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), quickRetry(2), func() error {
		calls++
		return fmt.Errorf("audimeta lookup: %w", &common.StatusError{Source: "audimeta", StatusCode: http.StatusServiceUnavailable})
	})
	var status *common.StatusError
	if !errors.As(err, &status) || status.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected wrapped 503, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected both attempts used, got %d", calls)
	}
}

func TestRetryStopsOnPermanentProviderErrors(t *testing.T) {
	permanent := []error{
		common.ErrNotFound,
		common.ErrPageNotFound,
		fmt.Errorf("audible product page: %w", common.ErrBotChallenge),
		&common.StatusError{Source: "amazon", StatusCode: http.StatusForbidden},
		errors.New("decode audnexus response: invalid character"),
	}
	for _, failure := range permanent {
		calls := 0
		err := RetryWithBackoff(context.Background(), quickRetry(3), func() error {
			calls++
			return failure
		})
		if !errors.Is(err, failure) || calls != 1 {
			t.Fatalf("%v: expected a single attempt, got %d calls err=%v", failure, calls, err)
		}
	}
}

func TestRetryHonorsCancellationBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 2}
	calls := 0
	err := RetryWithBackoff(ctx, cfg, func() error {
		calls++
		cancel()
		return io.ErrUnexpectedEOF
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("expected cancellation after one call, got %d calls err=%v", calls, err)
	}
}

func TestRetryWaitIsCappedByMaxDelay(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 4, InitialDelay: 20 * time.Millisecond, MaxDelay: 25 * time.Millisecond, Multiplier: 10}
	var stamps []time.Time
	_ = RetryWithBackoff(context.Background(), cfg, func() error {
		stamps = append(stamps, time.Now())
		return errors.New("read tcp: i/o timeout")
	})
	if len(stamps) != 4 {
		t.Fatalf("expected 4 attempts, got %d", len(stamps))
	}
	for i := 2; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap > 200*time.Millisecond {
			t.Fatalf("gap %d of %v ignores the max delay", i, gap)
		}
	}
}

func TestIsTransientErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &common.StatusError{StatusCode: http.StatusTooManyRequests}, true},
		{"bad gateway", &common.StatusError{StatusCode: http.StatusBadGateway}, true},
		{"unauthorized indexer", &common.StatusError{StatusCode: http.StatusUnauthorized}, false},
		{"missing record", fmt.Errorf("audnexus B08G9PRS1K: %w", common.ErrNotFound), false},
		{"captcha", common.ErrBotChallenge, false},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"truncated body", io.ErrUnexpectedEOF, true},
		{"reset", errors.New("read: connection reset by peer"), true},
		{"parse", errors.New("invalid torznab XML"), false},
	}
	for _, tt := range tests {
		if got := isTransientError(tt.err); got != tt.want {
			t.Errorf("%s: isTransientError = %v, want %v", tt.name, got, tt.want)
		}
	}
}
