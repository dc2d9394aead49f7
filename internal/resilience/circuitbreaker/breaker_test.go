package circuitbreaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/northcloud/vulcan-scheduler/internal/resilience/circuitbreaker"
)

func TestBreakerOpensAfterFailureThreshold(t *testing.T) {
	t.Parallel()

	b := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour})
	boom := errors.New("boom")

	_ = b.Execute(context.Background(), func(context.Context) error { return boom })
	_ = b.Execute(context.Background(), func(context.Context) error { return boom })

	if b.State() != circuitbreaker.StateOpen {
		t.Fatalf("State() = %v, want open", b.State())
	}

	err := b.Execute(context.Background(), func(context.Context) error { return nil })
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen while open, got %v", err)
	}
}

func TestBreakerHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	t.Parallel()

	b := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Millisecond})
	boom := errors.New("boom")

	_ = b.Execute(context.Background(), func(context.Context) error { return boom })
	if b.State() != circuitbreaker.StateOpen {
		t.Fatalf("State() = %v, want open", b.State())
	}

	time.Sleep(2 * time.Millisecond)

	_ = b.Execute(context.Background(), func(context.Context) error { return nil })
	if b.State() != circuitbreaker.StateHalfOpen {
		t.Fatalf("State() = %v, want half-open after one success", b.State())
	}

	_ = b.Execute(context.Background(), func(context.Context) error { return nil })
	if b.State() != circuitbreaker.StateClosed {
		t.Fatalf("State() = %v, want closed after success threshold", b.State())
	}
}

func TestBreakerHalfOpenReopensOnFailure(t *testing.T) {
	t.Parallel()

	b := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Millisecond})
	boom := errors.New("boom")

	_ = b.Execute(context.Background(), func(context.Context) error { return boom })
	time.Sleep(2 * time.Millisecond)

	_ = b.Execute(context.Background(), func(context.Context) error { return boom })
	if b.State() != circuitbreaker.StateOpen {
		t.Fatalf("State() = %v, want open again after half-open failure", b.State())
	}
}

func TestRegistryReturnsSameBreakerForSameKey(t *testing.T) {
	t.Parallel()

	reg := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig())
	a := reg.Get("solver")
	b := reg.Get("solver")

	if a != b {
		t.Error("expected Registry.Get to return the same breaker instance for the same key")
	}

	c := reg.Get("database")
	if a == c {
		t.Error("expected distinct breakers for distinct keys")
	}
}

func TestRegistrySnapshotReflectsState(t *testing.T) {
	t.Parallel()

	reg := circuitbreaker.NewRegistry(circuitbreaker.Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour})
	boom := errors.New("boom")
	_ = reg.Get("solver").Execute(context.Background(), func(context.Context) error { return boom })

	snap := reg.Snapshot()
	if snap["solver"].State != circuitbreaker.StateOpen {
		t.Errorf("snapshot state = %v, want open", snap["solver"].State)
	}
}
