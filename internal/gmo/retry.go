package gmo

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryConfig bounds the retry loop for broker requests.
type RetryConfig struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // lower bound for each backoff sleep
	MaxDelay    time.Duration // upper bound for each backoff sleep
	Budget      time.Duration // cap on the summed backoff delay
}

// DefaultRetryConfig returns the gateway retry policy: at most three
// attempts, decorrelated jitter between them, never more than five
// seconds of added delay in total.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Budget:      5 * time.Second,
	}
}

// withRetry runs op, retrying throttling and transport failures with
// decorrelated jitter. Every other failure kind returns immediately:
// a rejected signature or validation error will fail identically on
// the next attempt.
func withRetry(ctx context.Context, cfg RetryConfig, op func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	delay := cfg.BaseDelay
	var spent time.Duration

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return &Error{Kind: KindCancelled, Op: "retry", Err: ctx.Err()}
		default:
		}

		err := op()
		if err == nil {
			if attempt > 1 {
				log.Info().
					Int("attempt", attempt).
					Msg("Broker request succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		if attempt == cfg.MaxAttempts || spent >= cfg.Budget {
			break
		}

		// Decorrelated jitter: each sleep is drawn from
		// [base, 3*previous], clamped to the per-sleep cap and the
		// remaining budget.
		next := cfg.BaseDelay + time.Duration(rand.Int63n(int64(3*delay)))
		if next > cfg.MaxDelay {
			next = cfg.MaxDelay
		}
		if remaining := cfg.Budget - spent; next > remaining {
			next = remaining
		}
		delay = next
		spent += next

		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", cfg.MaxAttempts).
			Dur("backoff", next).
			Msg("Broker request failed, retrying with backoff")

		select {
		case <-ctx.Done():
			return &Error{Kind: KindCancelled, Op: "retry", Err: ctx.Err()}
		case <-time.After(next):
		}
	}

	return fmt.Errorf("request failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
