// Package resilience provides fault tolerance helpers for external calls.
package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryConfig holds retry policy configuration.
type RetryConfig struct {
	MaxAttempts  int           // Total attempts including the first (default: 3)
	InitialDelay time.Duration // Delay before the first retry (default: 500ms)
	MaxDelay     time.Duration // Cap on backoff delay (default: 30s)
	Multiplier   float64       // Backoff growth factor (default: 2.0)
	Jitter       float64       // Random jitter fraction 0..1 (default: 0.2)
}

// DefaultRetryConfig returns sensible defaults for provider API calls.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// Permanent wraps an error that must not be retried.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// MarkPermanent marks err as non-retryable.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &Permanent{Err: err}
}

// IsPermanent reports whether err was marked non-retryable.
func IsPermanent(err error) bool {
	var p *Permanent
	return errors.As(err, &p)
}

// Retry runs fn with exponential backoff until it succeeds, the attempts are
// exhausted, the error is permanent, or ctx is done. The last error is
// returned, unwrapped from its Permanent marker.
func Retry(ctx context.Context, cfg *RetryConfig, fn func(ctx context.Context) error) error {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var p *Permanent
		if errors.As(lastErr, &p) {
			return p.Err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		sleep := delay
		if cfg.Jitter > 0 {
			jitter := time.Duration(rand.Float64() * cfg.Jitter * float64(delay))
			sleep = delay + jitter
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return lastErr
}
