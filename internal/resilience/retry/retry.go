// Package retry provides retry utilities with exponential backoff and
// optional jitter for transient failures (spec.md §4.5, resilience layer).
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/northcloud/vulcan-scheduler/internal/infraerrors"
)

var (
	// ErrMaxAttemptsExceeded is returned when max retry attempts are exceeded.
	ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")
	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled during retry")
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
	// Multiplier is the exponential backoff multiplier (default 2.0).
	Multiplier float64
	// Jitter is the fraction (0..1) of each computed delay to randomize,
	// avoiding synchronized retry storms across concurrent callers.
	Jitter float64
	// IsRetryable determines if an error should be retried.
	IsRetryable func(error) bool
}

// DefaultConfig returns a default retry configuration classifying
// transient DomainErrors (per infraerrors.ErrorKind.Transient) as retryable.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
		IsRetryable:  IsTransient,
	}
}

// IsTransient classifies err as retryable using the domain error taxonomy:
// a DomainError is retryable iff its ErrorKind is marked Transient.
// Non-DomainErrors (KindUnexpected) are not retried by default, since an
// unclassified error is more likely a programming bug than a blip.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return infraerrors.KindOf(err).Transient()
}

// Attempt carries per-attempt diagnostics, useful for building
// TransactionMetrics/retry_statistics payloads (spec.md §6).
type Attempt struct {
	Number int
	Err    error
	Delay  time.Duration
}

// Do executes fn with retry logic and exponential backoff plus jitter.
// onAttempt, if non-nil, is invoked after every attempt (success or
// failure) for metrics collection.
func Do(ctx context.Context, config Config, fn func(ctx context.Context) error, onAttempt func(Attempt)) error {
	config = withDefaults(config)

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}

		err := fn(ctx)
		if err == nil {
			if onAttempt != nil {
				onAttempt(Attempt{Number: attempt, Err: nil})
			}
			return nil
		}

		lastErr = err

		if !config.IsRetryable(err) {
			if onAttempt != nil {
				onAttempt(Attempt{Number: attempt, Err: err})
			}
			return err
		}

		if attempt < config.MaxAttempts {
			backoff := backoffDelay(delay, config.Multiplier, attempt, config.MaxDelay, config.Jitter)
			if onAttempt != nil {
				onAttempt(Attempt{Number: attempt, Err: err, Delay: backoff})
			}

			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
			case <-time.After(backoff):
			}
		} else if onAttempt != nil {
			onAttempt(Attempt{Number: attempt, Err: err})
		}
	}

	wrapped := infraerrors.Wrap(infraerrors.KindRetryExhausted,
		fmt.Sprintf("exhausted %d attempts", config.MaxAttempts), lastErr)
	return fmt.Errorf("%w: %w", ErrMaxAttemptsExceeded, wrapped)
}

func withDefaults(c Config) Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.IsRetryable == nil {
		c.IsRetryable = IsTransient
	}
	return c
}

func backoffDelay(initial time.Duration, multiplier float64, attempt int, maxDelay time.Duration, jitter float64) time.Duration {
	d := time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt-1)))
	if d > maxDelay {
		d = maxDelay
	}
	if jitter <= 0 {
		return d
	}

	span := float64(d) * jitter
	offset := (rand.Float64()*2 - 1) * span // uniform in [-span, +span]
	jittered := time.Duration(float64(d) + offset)
	if jittered < 0 {
		jittered = 0
	}
	if jittered > maxDelay {
		jittered = maxDelay
	}
	return jittered
}
