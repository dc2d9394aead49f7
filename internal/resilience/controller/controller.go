// Package controller composes the resilience primitives — circuit breaker,
// retry, timeout, and memory guard — around the solver driver, falling
// back to a sequence of degraded strategies on terminal failure
// (spec.md §4.5).
package controller

import (
	"context"
	"errors"

	"github.com/northcloud/vulcan-scheduler/internal/infraerrors"
	"github.com/northcloud/vulcan-scheduler/internal/resilience/circuitbreaker"
	"github.com/northcloud/vulcan-scheduler/internal/resilience/memguard"
	"github.com/northcloud/vulcan-scheduler/internal/resilience/retry"
	"github.com/northcloud/vulcan-scheduler/internal/resilience/timeout"
)

// Config configures a Controller.
type Config struct {
	Retry          retry.Config
	CircuitBreaker circuitbreaker.Config
	Timeout        timeout.Config
	MemoryLimitMB  int
}

// Controller wraps solve attempts with the full resilience stack.
type Controller struct {
	breakers *circuitbreaker.Registry
	guard    *memguard.Guard
	cfg      Config
}

// New constructs a Controller.
func New(cfg Config) *Controller {
	return &Controller{
		breakers: circuitbreaker.NewRegistry(cfg.CircuitBreaker),
		guard:    memguard.NewGuard(cfg.MemoryLimitMB),
		cfg:      cfg,
	}
}

// Breakers exposes the underlying circuit breaker registry so callers
// (health checks, admin surfaces) can inspect breaker state without the
// controller needing to know about them.
func (c *Controller) Breakers() *circuitbreaker.Registry {
	return c.breakers
}

// Fallback is one degraded strategy tried, in order, after the primary
// path fails. It returns its result plus the quality score it achieves.
type Fallback[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, float64, error)
}

// Outcome decorates the result of Execute with the resilience diagnostics
// required by spec.md §4.5: quality_score, fallback_used,
// circuit_breaker_triggered, retry_attempts, warnings.
type Outcome[T any] struct {
	Value                   T
	QualityScore            float64
	FallbackUsed            bool
	FallbackName            string
	CircuitBreakerTriggered bool
	RetryAttempts           int
	Warnings                []string
}

// Execute runs primary under the key's circuit breaker, retry policy, and
// timeout; if it exhausts retries or the breaker is open, it tries each
// fallback in order, keeping the first success.
func Execute[T any](ctx context.Context, c *Controller, key string, size memguard.ModelSize, primary func(ctx context.Context) (T, float64, error), fallbacks []Fallback[T]) (Outcome[T], error) {
	if err := c.guard.CheckBeforeStart(size); err != nil {
		return tryFallbacks(ctx, fallbacks, []string{err.Error()})
	}

	breaker := c.breakers.Get(key)
	var (
		out       Outcome[T]
		attempts  int
	)

	primaryErr := breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, c.cfg.Retry, func(ctx context.Context) error {
			attempts++
			if err := c.guard.CheckOvershoot(); err != nil {
				return err
			}
			value, score, err := runWithTimeout(ctx, c.cfg.Timeout, primary)
			if err != nil {
				return err
			}
			out = Outcome[T]{Value: value, QualityScore: score, RetryAttempts: attempts}
			return nil
		}, nil)
	})

	if primaryErr == nil {
		out.RetryAttempts = attempts
		return out, nil
	}

	warnings := []string{primaryErr.Error()}
	if errors.Is(primaryErr, circuitbreaker.ErrCircuitOpen) {
		out.CircuitBreakerTriggered = true
	}

	fallbackOut, err := tryFallbacks(ctx, fallbacks, warnings)
	fallbackOut.RetryAttempts = attempts
	fallbackOut.CircuitBreakerTriggered = out.CircuitBreakerTriggered
	return fallbackOut, err
}

func runWithTimeout[T any](ctx context.Context, cfg timeout.Config, fn func(ctx context.Context) (T, float64, error)) (T, float64, error) {
	var (
		value T
		score float64
	)
	if cfg.Ceiling <= 0 {
		value, score, err := fn(ctx)
		return value, score, err
	}

	err := timeout.Run(ctx, cfg, func(ctx context.Context) error {
		v, s, innerErr := fn(ctx)
		value, score = v, s
		return innerErr
	})
	return value, score, err
}

func tryFallbacks[T any](ctx context.Context, fallbacks []Fallback[T], warnings []string) (Outcome[T], error) {
	for _, fb := range fallbacks {
		value, score, err := fb.Run(ctx)
		if err == nil {
			return Outcome[T]{
				Value:        value,
				QualityScore: score,
				FallbackUsed: true,
				FallbackName: fb.Name,
				Warnings:     append(warnings, "fallback succeeded: "+fb.Name),
			}, nil
		}
		warnings = append(warnings, "fallback failed ("+fb.Name+"): "+err.Error())
	}

	var zero T
	return Outcome[T]{Value: zero, FallbackUsed: len(fallbacks) > 0, Warnings: warnings},
		infraerrors.New(infraerrors.KindNoFeasibleSolution, "primary path and all fallbacks failed").
			WithDetails(map[string]any{"warnings": warnings})
}
