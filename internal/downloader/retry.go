package downloader

import (
	"context"
	"time"

	"github.com/iconidentify/tikgrabba/internal/config"
	"github.com/iconidentify/tikgrabba/internal/domain"
)

// RetryConfig holds retry configuration for callers of the pipeline.
// Nothing inside the pipeline itself retries.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns sensible defaults for retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  5 * time.Second,
		MaxDelay:      60 * time.Second,
		BackoffFactor: 2.0,
	}
}

// RetryConfigFrom derives a retry configuration from download settings.
// attempts counts the first try.
func RetryConfigFrom(cfg config.DownloadConfig, attempts int) RetryConfig {
	rc := DefaultRetryConfig()
	if attempts > 0 {
		rc.MaxAttempts = attempts
	}
	if cfg.RetryDelay > 0 {
		rc.InitialDelay = cfg.RetryDelay
	}
	if cfg.MaxRetryDelay > 0 {
		rc.MaxDelay = cfg.MaxRetryDelay
	}
	return rc
}

// Retry executes fn with exponential backoff, retrying every error.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	return RetryWithCheck(ctx, cfg, fn, func(error) bool { return true })
}

// RetryTransport retries fn only while it fails with a transport error.
func RetryTransport[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	return RetryWithCheck(ctx, cfg, fn, domain.IsRetryable)
}

// RetryWithCheck executes a function with retry, allowing custom retry decision.
func RetryWithCheck[T any](
	ctx context.Context,
	cfg RetryConfig,
	fn func() (T, error),
	shouldRetry func(error) bool,
) (T, error) {
	var lastErr error
	var zero T

	delay := cfg.InitialDelay
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !shouldRetry(err) {
			break
		}

		// Don't wait after the last attempt
		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return zero, lastErr
}
