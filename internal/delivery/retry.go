package delivery

import (
	"context"
	"time"

	"media-pipeline/internal/logging"
	"media-pipeline/internal/metrics"
)

// RetryConfig bounds the upload retry loop.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the standard upload retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

// putWithRetry runs a backend write with exponential backoff. Writes are
// idempotent (content-addressed keys) so replaying a possibly-succeeded
// attempt is safe.
func putWithRetry(ctx context.Context, b Backend, key string, data []byte, opts PutOptions, cfg RetryConfig) error {
	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := b.Put(ctx, key, data, opts)
		if err == nil {
			if attempt > 0 {
				logging.Info("upload succeeded on retry %d for %s", attempt, key)
			}
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < cfg.MaxRetries {
			metrics.UploadRetries.WithLabelValues(b.Name()).Inc()
			logging.Debug("upload of %s failed, retrying in %v (attempt %d/%d): %v",
				key, backoff, attempt+1, cfg.MaxRetries, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}
	}

	logging.Warn("upload of %s failed after %d retries: %v", key, cfg.MaxRetries, lastErr)
	metrics.UploadErrors.WithLabelValues(b.Name()).Inc()
	return lastErr
}
