// Package timeout enforces a hard wall-clock ceiling on a long-running
// operation, first asking it to cooperatively stop and then reporting a
// hard-abort timeout if it ignores that request within a grace period
// (spec.md §4.5).
package timeout

import (
	"context"
	"errors"
	"time"
)

// ErrHardAbort is returned when the wrapped operation did not honor
// cooperative cancellation within the grace period.
var ErrHardAbort = errors.New("operation did not stop within grace period, hard abort")

// ErrDeadlineExceeded is returned when the operation finishes (cooperatively
// or not) only after the hard ceiling, but before the grace period lapsed.
var ErrDeadlineExceeded = context.DeadlineExceeded

// Config configures the timeout guard.
type Config struct {
	// Ceiling is the wall-clock budget given to the operation.
	Ceiling time.Duration
	// Grace is the additional time allowed for the operation to notice
	// ctx cancellation and return before it is declared hard-aborted.
	Grace time.Duration
}

// Run executes fn under ctx with a ceiling; fn must select on ctx.Done()
// to cooperate with cancellation. If fn has not returned Grace after the
// ceiling elapses, Run returns ErrHardAbort without waiting further (the
// caller must still let fn's goroutine drain in the background; Run does
// not leak it, but does not block on it past the grace period either).
func Run(parent context.Context, cfg Config, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, cfg.Ceiling)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	grace := cfg.Grace
	if grace <= 0 {
		grace = 0
	}

	select {
	case err := <-done:
		if err != nil {
			return err
		}
		return ErrDeadlineExceeded
	case <-time.After(grace):
		return ErrHardAbort
	}
}
