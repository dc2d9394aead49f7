package controller_test

import (
	"context"
	"testing"
	"time"

	"github.com/northcloud/vulcan-scheduler/internal/infraerrors"
	"github.com/northcloud/vulcan-scheduler/internal/resilience/circuitbreaker"
	"github.com/northcloud/vulcan-scheduler/internal/resilience/controller"
	"github.com/northcloud/vulcan-scheduler/internal/resilience/memguard"
	"github.com/northcloud/vulcan-scheduler/internal/resilience/retry"
)

func testConfig() controller.Config {
	return controller.Config{
		Retry:          retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2, IsRetryable: retry.IsTransient},
		CircuitBreaker: circuitbreaker.Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour},
		MemoryLimitMB:  4096,
	}
}

func TestExecuteReturnsPrimaryResultOnSuccess(t *testing.T) {
	t.Parallel()

	c := controller.New(testConfig())
	out, err := controller.Execute(context.Background(), c, "solver", memguard.ModelSize{NumTasks: 10, NumMachines: 5, NumOperators: 5},
		func(ctx context.Context) (int, float64, error) { return 42, 1.0, nil },
		nil,
	)

	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out.Value != 42 || out.QualityScore != 1.0 || out.FallbackUsed {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestExecuteFallsBackOnPrimaryFailure(t *testing.T) {
	t.Parallel()

	c := controller.New(testConfig())
	out, err := controller.Execute(context.Background(), c, "solver", memguard.ModelSize{NumTasks: 10, NumMachines: 5, NumOperators: 5},
		func(ctx context.Context) (int, float64, error) {
			return 0, 0, infraerrors.New(infraerrors.KindSolverTimeout, "timed out")
		},
		[]controller.Fallback[int]{
			{Name: "greedy", Run: func(ctx context.Context) (int, float64, error) { return 7, 0.5, nil }},
		},
	)

	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !out.FallbackUsed || out.FallbackName != "greedy" || out.Value != 7 {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestExecuteReturnsErrorWhenAllFallbacksFail(t *testing.T) {
	t.Parallel()

	c := controller.New(testConfig())
	_, err := controller.Execute(context.Background(), c, "solver", memguard.ModelSize{NumTasks: 10, NumMachines: 5, NumOperators: 5},
		func(ctx context.Context) (int, float64, error) {
			return 0, 0, infraerrors.New(infraerrors.KindSolverCrash, "crashed")
		},
		[]controller.Fallback[int]{
			{Name: "greedy", Run: func(ctx context.Context) (int, float64, error) { return 0, 0, infraerrors.New(infraerrors.KindSolverError, "also failed") }},
		},
	)

	if err == nil {
		t.Fatal("expected error when primary and all fallbacks fail")
	}
	if infraerrors.KindOf(err) != infraerrors.KindNoFeasibleSolution {
		t.Errorf("KindOf() = %v, want KindNoFeasibleSolution", infraerrors.KindOf(err))
	}
}

func TestExecuteRejectsOversizedModelBeforeStarting(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MemoryLimitMB = 1
	c := controller.New(cfg)

	called := false
	_, err := controller.Execute(context.Background(), c, "solver", memguard.ModelSize{NumTasks: 1000000, NumMachines: 1000, NumOperators: 1000},
		func(ctx context.Context) (int, float64, error) {
			called = true
			return 1, 1, nil
		},
		nil,
	)

	if called {
		t.Error("expected primary not to be invoked when the memory guard rejects the model upfront")
	}
	if err == nil {
		t.Fatal("expected error for oversized model")
	}
}

func TestExecuteMarksCircuitBreakerTriggered(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.CircuitBreaker.FailureThreshold = 1
	cfg.CircuitBreaker.Timeout = time.Hour
	c := controller.New(cfg)

	fail := func(ctx context.Context) (int, float64, error) {
		return 0, 0, infraerrors.New(infraerrors.KindSolverCrash, "down")
	}

	_, _ = controller.Execute(context.Background(), c, "solver", memguard.ModelSize{}, fail, nil)
	out, err := controller.Execute(context.Background(), c, "solver", memguard.ModelSize{}, fail,
		[]controller.Fallback[int]{{Name: "greedy", Run: func(ctx context.Context) (int, float64, error) { return 1, 0.5, nil }}})

	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !out.CircuitBreakerTriggered {
		t.Error("expected circuit_breaker_triggered once breaker is open")
	}
}
