// Package retry implements capped exponential backoff with a caller-supplied
// retryability predicate. The Bitrix client uses it to retry rate-limited
// calls only.
package retry

import (
	"context"
	"math"
	"time"
)

// Config defines backoff behavior.
type Config struct {
	MaxAttempts  int           // total attempts including the first
	InitialDelay time.Duration // backoff base
	MinDelay     time.Duration // floor applied after exponentiation
	MaxDelay     time.Duration // cap applied after exponentiation
	Multiplier   float64
}

// RateLimitConfig returns the policy for Bitrix QUERY_LIMIT_EXCEEDED
// responses: base 1s, floor 4s, cap 60s, 5 attempts.
func RateLimitConfig() *Config {
	return &Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MinDelay:     4 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
	}
}

// Delay computes the wait before retry number attempt (1-based).
func (c *Config) Delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if d < float64(c.MinDelay) {
		d = float64(c.MinDelay)
	}
	return time.Duration(d)
}

// DoWithResult executes fn up to cfg.MaxAttempts times, sleeping between
// attempts, as long as shouldRetry reports the error as transient. The
// first non-retryable error short-circuits; otherwise the last error is
// returned. Context cancellation is honored during waits.
func DoWithResult[T any](ctx context.Context, cfg *Config, shouldRetry func(error) bool, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = RateLimitConfig()
	}

	var result T
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		lastErr = err
		result = r

		if !shouldRetry(err) {
			return result, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-time.After(cfg.Delay(attempt)):
		case <-ctx.Done():
			return result, ctx.Err()
		}
	}

	return result, lastErr
}
