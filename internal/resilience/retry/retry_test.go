package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/northcloud/vulcan-scheduler/internal/infraerrors"
	"github.com/northcloud/vulcan-scheduler/internal/resilience/retry"
)

func TestDoSucceedsWithoutRetryOnFirstAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retry.Do(context.Background(), retry.DefaultConfig(), func(context.Context) error {
		calls++
		return nil
	}, nil)

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesTransientErrorsUntilSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	cfg := retry.Config{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2, IsRetryable: retry.IsTransient}

	err := retry.Do(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return infraerrors.New(infraerrors.KindDatabaseError, "connection reset")
		}
		return nil
	}, nil)

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoDoesNotRetryNonTransientErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retry.Do(context.Background(), retry.DefaultConfig(), func(context.Context) error {
		calls++
		return infraerrors.New(infraerrors.KindValidation, "bad input")
	}, nil)

	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (validation errors should not be retried)", calls)
	}
}

func TestDoReturnsRetryExhaustedAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	cfg := retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2, IsRetryable: retry.IsTransient}
	calls := 0

	err := retry.Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return infraerrors.New(infraerrors.KindDatabaseError, "still down")
	}, nil)

	if !errors.Is(err, retry.ErrMaxAttemptsExceeded) {
		t.Errorf("expected ErrMaxAttemptsExceeded, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if infraerrors.KindOf(err) != infraerrors.KindRetryExhausted {
		t.Errorf("KindOf() = %v, want KindRetryExhausted", infraerrors.KindOf(err))
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry.Do(ctx, retry.DefaultConfig(), func(context.Context) error {
		return infraerrors.New(infraerrors.KindDatabaseError, "down")
	}, nil)

	if !errors.Is(err, retry.ErrContextCancelled) {
		t.Errorf("expected ErrContextCancelled, got %v", err)
	}
}

func TestDoInvokesOnAttemptCallback(t *testing.T) {
	t.Parallel()

	var attempts []retry.Attempt
	cfg := retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2, IsRetryable: retry.IsTransient}

	_ = retry.Do(context.Background(), cfg, func(context.Context) error {
		return infraerrors.New(infraerrors.KindDatabaseError, "down")
	}, func(a retry.Attempt) {
		attempts = append(attempts, a)
	})

	if len(attempts) != 2 {
		t.Fatalf("len(attempts) = %d, want 2", len(attempts))
	}
}
