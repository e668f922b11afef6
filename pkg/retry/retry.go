package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Config holds bounded-retry configuration.
type Config struct {
	MaxAttempts  int           // total attempts, including the first
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // cap on the backoff delay
	Multiplier   float64       // exponential backoff multiplier
	Jitter       bool          // randomize delays to avoid lockstep
}

// DefaultConfig returns a small bounded-retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Do runs fn up to cfg.MaxAttempts times with exponential backoff, stopping
// early on success or context cancellation.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for functions that produce a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var zero T
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("retry cancelled: %w", err)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry cancelled during wait: %w", ctx.Err())
		case <-time.After(delay(cfg, attempt)):
		}
	}

	return zero, fmt.Errorf("max attempts (%d) exceeded: %w", attempts, lastErr)
}

func delay(cfg Config, attempt int) time.Duration {
	d := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if cfg.MaxDelay > 0 && d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}

	duration := time.Duration(d)
	if cfg.Jitter && duration > 0 {
		jitter := duration / 4
		duration = duration - jitter + time.Duration(rand.Int63n(int64(2*jitter)+1))
	}
	return duration
}
