// Package solver drives the CP-style model built by internal/cpmodel to a
// solution: it passes the caller's Params (wall time, workers, memory) to an
// Engine (the built-in engine applies only MaxTimeSeconds), streams
// intermediate incumbents through a progress channel, classifies
// termination, and extracts per-task assignments plus derived metrics
// (spec.md §4.3).
//
// The engine that ships with this package is a deterministic list-scheduler
// plus bounded local search, not a general-purpose CP-SAT binding: spec.md
// fixes what the model expresses, not which CP engine is linked in, so any
// concrete solver may be swapped in behind the Engine interface without
// touching cpmodel or the resilience/fallback layers.
package solver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/northcloud/vulcan-scheduler/internal/cpmodel"
	"github.com/northcloud/vulcan-scheduler/internal/domain"
)

// Termination classifies how a solve attempt ended (spec.md §4.3).
type Termination string

const (
	TerminationOptimal    Termination = "OPTIMAL"
	TerminationFeasible   Termination = "FEASIBLE"
	TerminationInfeasible Termination = "INFEASIBLE"
	TerminationTimeout    Termination = "TIMEOUT"
	TerminationMemory     Termination = "MEMORY"
	TerminationCrash      Termination = "CRASH"
)

// Params bounds one solve invocation (spec.md §4.3).
type Params struct {
	MaxTimeSeconds float64
	NumWorkers     int
	MemoryLimitMB  int
	RandomSeed     *int64
}

// Assignment is one task's placement in the solved schedule, in integer
// minutes relative to the model's origin.
type Assignment struct {
	TaskID            domain.ID
	JobID             domain.ID
	MachineID         domain.ID
	OperatorIDs       []domain.ID
	StartMinute       int
	EndMinute         int
	SetupMinutes      int
	ProcessingMinutes int // after operator efficiency adjustment
}

// Solution is the full extracted result of a solve attempt (spec.md §4.3).
type Solution struct {
	Assignments         map[domain.ID]Assignment
	MakespanMinutes     int
	JobTardinessMinutes map[domain.ID]int
	TotalCost           float64
	MachineUtilization  map[domain.ID]float64
	OperatorUtilization map[domain.ID]float64
}

// Progress reports one improving incumbent found during the solve, for
// streaming to callers (spec.md §4.3).
type Progress struct {
	IncumbentMakespan int
	QualityScore      float64
	ElapsedSeconds    float64
}

// Engine executes one CP model and returns a solution plus its termination
// classification. Implementations must respect ctx cancellation.
type Engine interface {
	Solve(ctx context.Context, model cpmodel.Model, params Params, progress chan<- Progress) (Solution, Termination, error)
}

// Driver wraps an Engine with the bookkeeping spec.md §4.3 asks of the
// solver driver layer: a uniform entry point the resilience controller can
// retry/time-box without knowing which Engine is behind it.
type Driver struct {
	Engine Engine
}

// New constructs a Driver around engine. A nil engine defaults to the
// built-in deterministic engine.
func New(engine Engine) *Driver {
	if engine == nil {
		engine = NewBuiltinEngine()
	}
	return &Driver{Engine: engine}
}

// Result is what Run returns: the solution plus the termination reason. On
// non-success terminations, Solution is the zero value (spec.md §4.3: "On
// non-success, returns an empty solution and the termination reason").
type Result struct {
	Solution    Solution
	Termination Termination
}

// Run executes the model through the configured Engine, recovering engine
// panics into a CRASH termination rather than propagating them.
func (d *Driver) Run(ctx context.Context, model cpmodel.Model, params Params, progress chan<- Progress) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Termination: TerminationCrash}
			err = fmt.Errorf("solver: engine panicked: %v", r)
		}
	}()

	sol, term, solveErr := d.Engine.Solve(ctx, model, params, progress)
	if term == TerminationOptimal || term == TerminationFeasible {
		return Result{Solution: sol, Termination: term}, nil
	}
	return Result{Termination: term}, solveErr
}

// sortedTaskOrder returns model.Tasks ordered by a priority-dispatch key:
// highest PriorityWeight first, then earliest due date, then lowest
// SequenceInJob. This differs from the greedy fallback's dispatch order,
// which ranks by slack (due minute minus duration) rather than due date.
func sortedTaskOrder(tasks []cpmodel.TaskModel) []cpmodel.TaskModel {
	ordered := append([]cpmodel.TaskModel(nil), tasks...)
	sort.SliceStable(ordered, func(i, k int) bool {
		if ordered[i].PriorityWeight != ordered[k].PriorityWeight {
			return ordered[i].PriorityWeight > ordered[k].PriorityWeight
		}
		if ordered[i].DueMinute != ordered[k].DueMinute {
			return ordered[i].DueMinute < ordered[k].DueMinute
		}
		return ordered[i].SequenceInJob < ordered[k].SequenceInJob
	})
	return ordered
}

// elapsedSince is a small helper kept separate from time.Since call sites
// so tests can reason about it; it exists mainly for readability at call
// sites that report Progress.ElapsedSeconds.
func elapsedSince(start time.Time) float64 {
	return time.Since(start).Seconds()
}
