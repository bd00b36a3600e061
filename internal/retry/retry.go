// Package retry provides bounded exponential backoff for remote board calls.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	perrors "github.com/p-blackswan/roomsync/internal/errors"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool

	// OnRetry, when set, is called before each sleep with the attempt that
	// just failed (1-based) and its error.
	OnRetry func(attempt int, err error)
}

// DefaultConfig returns the defaults used by the board client.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      true,
	}
}

// Once returns a config that never retries.
func Once() Config {
	return Config{MaxAttempts: 1}
}

// Do executes fn with exponential backoff. Only retryable errors are retried.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !perrors.IsRetryable(lastErr) || attempt == attempts-1 {
			break
		}

		delay := backoff(cfg, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func backoff(cfg Config, attempt int) time.Duration {
	delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(2, float64(attempt)))
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter {
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
	}
	return delay
}
