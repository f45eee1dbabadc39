package search

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"audiostream/metasearch/internal/providers/common"
)

// RetryConfig shapes the backoff between provider attempts.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig allows three attempts spaced roughly 500ms then 1s apart.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryWithBackoff calls fn until it succeeds, fails with a permanent error,
// or runs out of attempts. Waits grow by Multiplier with ±25% jitter and stop
// early when ctx is done.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	attempts := max(cfg.MaxAttempts, 1)
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	wait := cfg.InitialDelay
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= attempts || !isTransientError(err) {
			return err
		}

		pause := applyJitter(wait)
		if cfg.MaxDelay > 0 {
			pause = min(pause, cfg.MaxDelay)
		}
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		wait = time.Duration(float64(wait) * multiplier)
		if cfg.MaxDelay > 0 {
			wait = min(wait, cfg.MaxDelay)
		}
	}
}

func applyJitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.75 + rand.Float64()*0.5))
}

// isTransientError separates failures worth another attempt (network trouble,
// rate limits, upstream 5xx) from answers that will not change: missing
// records, bot walls, client errors, cancellation.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, common.ErrNotFound),
		errors.Is(err, common.ErrPageNotFound),
		errors.Is(err, common.ErrBotChallenge):
		return false
	}

	var status *common.StatusError
	if errors.As(err, &status) {
		return status.Temporary()
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	lower := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "connection reset", "connection refused", "tls handshake", "unexpected eof"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
