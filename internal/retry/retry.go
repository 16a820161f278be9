// Package retry provides a generic retry helper with exponential or fixed
// backoff, used by the storage providers, the image codec glue and the
// pipeline's storage-visibility wait.
package retry

import (
	"context"
	"errors"
	"time"
)

// Strategy controls how the delay grows between attempts.
type Strategy int

const (
	// Exponential doubles the delay after every failed attempt, capped at MaxDelay.
	Exponential Strategy = iota
	// Fixed keeps the delay constant at BaseDelay.
	Fixed
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the total number of tries, including the first one.
	MaxAttempts int
	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration
	// MaxDelay caps the delay between attempts. Zero means no cap.
	MaxDelay time.Duration
	// Strategy selects the delay growth behavior.
	Strategy Strategy
	// RetryIf decides whether an error is retryable. Nil retries everything.
	RetryIf func(error) bool
	// Timeout bounds the whole operation including sleeps. Zero means no bound.
	Timeout time.Duration
}

// ErrExhausted is returned (joined with the last error) when all attempts fail.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Do runs op until it succeeds, returns an unretryable error, exhausts
// Config.MaxAttempts, or the context is done.
func Do[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	delay := cfg.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return zero, err
		}

		if attempt < cfg.MaxAttempts {
			if err := sleep(ctx, delay); err != nil {
				return zero, err
			}
			if cfg.Strategy == Exponential {
				delay *= 2
				if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
			}
		}
	}

	return zero, errors.Join(ErrExhausted, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Delays returns the backoff schedule a Config produces, one entry per sleep
// between attempts. Useful for logging and tests.
func Delays(cfg Config) []time.Duration {
	if cfg.MaxAttempts < 2 {
		return nil
	}
	out := make([]time.Duration, 0, cfg.MaxAttempts-1)
	delay := cfg.BaseDelay
	for i := 1; i < cfg.MaxAttempts; i++ {
		out = append(out, delay)
		if cfg.Strategy == Exponential {
			delay *= 2
			if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}
	}
	return out
}
