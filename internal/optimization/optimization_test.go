package optimization_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/northcloud/vulcan-scheduler/internal/apitypes"
	"github.com/northcloud/vulcan-scheduler/internal/calendar"
	"github.com/northcloud/vulcan-scheduler/internal/cpmodel"
	"github.com/northcloud/vulcan-scheduler/internal/domain"
	"github.com/northcloud/vulcan-scheduler/internal/eventbus"
	"github.com/northcloud/vulcan-scheduler/internal/logger"
	"github.com/northcloud/vulcan-scheduler/internal/memstore"
	"github.com/northcloud/vulcan-scheduler/internal/optimization"
	"github.com/northcloud/vulcan-scheduler/internal/repository"
	"github.com/northcloud/vulcan-scheduler/internal/solver"
)

// timeoutEngine is a stub solver.Engine that always reports TIMEOUT with no
// incumbent solution, for exercising the resilience controller's fallback
// ladder (spec.md §8 seed scenario 6) without depending on the built-in
// engine actually exhausting a wall-clock budget.
type timeoutEngine struct{}

func (timeoutEngine) Solve(ctx context.Context, model cpmodel.Model, params solver.Params, progress chan<- solver.Progress) (solver.Solution, solver.Termination, error) {
	return solver.Solution{}, solver.TerminationTimeout, fmt.Errorf("solver: deadline exceeded before any incumbent was found")
}

func repositoriesFrom(jobs *memstore.JobStore, machines *memstore.MachineStore, operators *memstore.OperatorStore) repository.Repositories {
	return repository.Repositories{
		Jobs:      jobs,
		Machines:  machines,
		Operators: operators,
		Schedules: memstore.NewScheduleStore(),
	}
}

func newHarness(t *testing.T) (optimization.Config, *memstore.JobStore, *memstore.MachineStore, *memstore.OperatorStore) {
	t.Helper()

	jobs := memstore.NewJobStore()
	machines := memstore.NewMachineStore()
	operators := memstore.NewOperatorStore()

	cfg := optimization.Config{
		DefaultCalendar: calendar.Config{
			WorkStartHour: 6,
			WorkEndHour:   22,
		},
	}
	return cfg, jobs, machines, operators
}

func TestSolveSingleJobSingleTask(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 5, 6, 0, 0, 0, time.UTC) // a Monday at 6am
	due := now.Add(48 * time.Hour)

	cfg, jobStore, machineStore, operatorStore := newHarness(t)

	job, err := domain.NewJob("JOB001", "Acme", "PN-1", 10, domain.PriorityNormal, due, "tester", now)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	task, err := domain.NewTask(job.ID, "OP_MILL", 10, 60, 10)
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if err := job.AddTask(task); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := jobStore.Create(context.Background(), job); err != nil {
		t.Fatalf("Create job: %v", err)
	}

	machine := &domain.Machine{
		ID:           domain.NewID(),
		MachineCode:  "M1",
		Name:         "Mill 1",
		Status:       domain.MachineAvailable,
		Zone:         "milling",
		Capabilities: []string{"OP_MILL"},
	}
	if err := machineStore.Create(context.Background(), machine); err != nil {
		t.Fatalf("Create machine: %v", err)
	}

	operator := &domain.Operator{
		ID:         domain.NewID(),
		EmployeeID: "E1",
		Name:       "Op One",
		Status:     domain.OperatorAvailable,
		Zone:       "milling",
	}
	if err := operatorStore.Create(context.Background(), operator); err != nil {
		t.Fatalf("Create operator: %v", err)
	}

	repos := repositoriesFrom(jobStore, machineStore, operatorStore)
	svc := optimization.New(repos, eventbus.New(), logger.NewNop(), cfg)

	req := apitypes.SolveRequest{
		ProblemName:       "seed-1",
		ScheduleStartTime: now,
		Jobs: []apitypes.JobRequest{
			{JobNumber: "JOB001", Priority: "NORMAL", DueDate: due, Quantity: 10, TaskSequences: []int{10}},
		},
		OptimizationParameters: apitypes.OptimizationParameters{
			MaxTimeSeconds: 5,
			HorizonDays:    30,
		},
	}

	resp, err := svc.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got message %q", resp.Message)
	}
	if resp.Status != apitypes.StatusOptimal {
		t.Errorf("status = %v, want OPTIMAL", resp.Status)
	}
	if resp.Metrics.MakespanMinutes != 70 {
		t.Errorf("makespan = %v, want 70", resp.Metrics.MakespanMinutes)
	}
	if resp.Metrics.JobsLate != 0 {
		t.Errorf("jobs_late = %d, want 0", resp.Metrics.JobsLate)
	}
}

func TestSolveRejectsTooManyJobs(t *testing.T) {
	t.Parallel()

	cfg, jobStore, machineStore, operatorStore := newHarness(t)
	cfg.Limits = optimization.Limits{MaxJobsPerRequest: 1, MaxTasksPerJob: 100, MaxHorizonDays: 90, MaxSolveSeconds: 60, MaxMemoryMB: 1024, MaxRetryAttempts: 3}

	repos := repositoriesFrom(jobStore, machineStore, operatorStore)
	svc := optimization.New(repos, eventbus.New(), logger.NewNop(), cfg)

	req := apitypes.SolveRequest{
		ProblemName: "too-many",
		Jobs: []apitypes.JobRequest{
			{JobNumber: "A"}, {JobNumber: "B"},
		},
	}

	_, err := svc.Solve(context.Background(), req)
	if err == nil {
		t.Fatal("expected a validation error")
	}
}

// TestSolveNoCapableMachineIsUnsatisfiableNotABuilderError covers
// buildModel's contract when no available machine can perform a task's
// operation: it must flow through as an unsatisfiable task (like an empty
// operator slot already does) and surface through the ordinary
// resilience/fallback path, not as an error returned directly out of
// buildModel ahead of runResilientSolve (cpmodel.Builder.AddTask's
// documented contract).
func TestSolveNoCapableMachineIsUnsatisfiableNotABuilderError(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 5, 6, 0, 0, 0, time.UTC)
	due := now.Add(48 * time.Hour)

	cfg, jobStore, machineStore, operatorStore := newHarness(t)

	job, err := domain.NewJob("JOB002", "Acme", "PN-2", 1, domain.PriorityNormal, due, "tester", now)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	task, err := domain.NewTask(job.ID, "OP_WELD_L3", 10, 60, 0)
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if err := job.AddTask(task); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := jobStore.Create(context.Background(), job); err != nil {
		t.Fatalf("Create job: %v", err)
	}

	repos := repositoriesFrom(jobStore, machineStore, operatorStore)
	svc := optimization.New(repos, eventbus.New(), logger.NewNop(), cfg)

	req := apitypes.SolveRequest{
		ProblemName:       "no-capable-machine",
		ScheduleStartTime: now,
		Jobs: []apitypes.JobRequest{
			{JobNumber: "JOB002", Priority: "NORMAL", DueDate: due, Quantity: 1, TaskSequences: []int{10}},
		},
		OptimizationParameters: apitypes.OptimizationParameters{MaxTimeSeconds: 5, HorizonDays: 30},
	}

	resp, err := svc.Solve(context.Background(), req)
	if err == nil {
		t.Fatal("expected an error: no machine capable of OP_WELD_L3, even after fallbacks")
	}
	if resp.Status != apitypes.StatusInfeasible {
		t.Errorf("status = %v, want INFEASIBLE", resp.Status)
	}
	if !resp.Resilience.FallbackUsed {
		t.Error("expected FallbackUsed=true: fallbacks were attempted and also failed")
	}
}

// TestSolveInfeasibleWhenOperatorLacksRequiredSkillLevel is spec.md §8 seed
// scenario 5: a capable machine exists, but no operator's skill meets the
// task's minimum required level. CP returns INFEASIBLE, every fallback
// (including Relaxed, which only drops preference, not the minimum
// requirement) also fails to cover the skill slot, and the final outcome
// is NO_FEASIBLE_SOLUTION with fallback_used=true.
func TestSolveInfeasibleWhenOperatorLacksRequiredSkillLevel(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 5, 6, 0, 0, 0, time.UTC)
	due := now.Add(48 * time.Hour)

	cfg, jobStore, machineStore, operatorStore := newHarness(t)

	job, err := domain.NewJob("JOB005", "Acme", "PN-5", 1, domain.PriorityNormal, due, "tester", now)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	task, err := domain.NewTask(job.ID, "OP_WELD", 10, 60, 0)
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	requirement, err := domain.AdvancedRequirement("WELD", 0) // minimum level 3
	if err != nil {
		t.Fatalf("AdvancedRequirement: %v", err)
	}
	task.SkillRequirements = []domain.SkillRequirement{requirement}
	if err := job.AddTask(task); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := jobStore.Create(context.Background(), job); err != nil {
		t.Fatalf("Create job: %v", err)
	}

	machine := &domain.Machine{
		ID:           domain.NewID(),
		MachineCode:  "M-WELD",
		Name:         "Welder 1",
		Status:       domain.MachineAvailable,
		Zone:         "welding",
		Capabilities: []string{"OP_WELD"},
	}
	if err := machineStore.Create(context.Background(), machine); err != nil {
		t.Fatalf("Create machine: %v", err)
	}

	weldLevel1, err := domain.BasicSkill("WELD")
	if err != nil {
		t.Fatalf("BasicSkill: %v", err)
	}
	operator := &domain.Operator{
		ID:         domain.NewID(),
		EmployeeID: "E5",
		Name:       "Junior Welder",
		Status:     domain.OperatorAvailable,
		Zone:       "welding",
		Skills:     []domain.Skill{weldLevel1},
	}
	if err := operatorStore.Create(context.Background(), operator); err != nil {
		t.Fatalf("Create operator: %v", err)
	}

	repos := repositoriesFrom(jobStore, machineStore, operatorStore)
	svc := optimization.New(repos, eventbus.New(), logger.NewNop(), cfg)

	req := apitypes.SolveRequest{
		ProblemName:       "seed-5",
		ScheduleStartTime: now,
		Jobs: []apitypes.JobRequest{
			{JobNumber: "JOB005", Priority: "NORMAL", DueDate: due, Quantity: 1, TaskSequences: []int{10}},
		},
		OptimizationParameters: apitypes.OptimizationParameters{MaxTimeSeconds: 5, HorizonDays: 30},
	}

	resp, err := svc.Solve(context.Background(), req)
	if err == nil {
		t.Fatal("expected NO_FEASIBLE_SOLUTION: no operator meets WELD level 3")
	}
	if resp.Status != apitypes.StatusInfeasible {
		t.Errorf("status = %v, want INFEASIBLE", resp.Status)
	}
	if resp.Success {
		t.Error("expected success=false")
	}
	if !resp.Resilience.FallbackUsed {
		t.Error("expected fallback_used=true: every fallback strategy was attempted and also failed")
	}
}

// TestSolvePriorityWeightedTardiness is spec.md §8 seed scenario 4: an
// URGENT job due in 30 minutes and a NORMAL job due in 24 hours each carry
// one 60-minute task sharing a single machine, with the hierarchical
// objective enabled. The URGENT job must be dispatched first; its
// tardiness (30 min) is expected, while the NORMAL job finishes on time.
func TestSolvePriorityWeightedTardiness(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 5, 6, 0, 0, 0, time.UTC)
	urgentDue := now.Add(30 * time.Minute)
	normalDue := now.Add(24 * time.Hour)

	cfg, jobStore, machineStore, operatorStore := newHarness(t)

	urgentJob, err := domain.NewJob("JOB-URGENT", "Acme", "PN-U", 1, domain.PriorityUrgent, urgentDue, "tester", now)
	if err != nil {
		t.Fatalf("NewJob urgent: %v", err)
	}
	urgentTask, err := domain.NewTask(urgentJob.ID, "OP_MILL", 10, 60, 0)
	if err != nil {
		t.Fatalf("NewTask urgent: %v", err)
	}
	if err := urgentJob.AddTask(urgentTask); err != nil {
		t.Fatalf("AddTask urgent: %v", err)
	}
	if err := jobStore.Create(context.Background(), urgentJob); err != nil {
		t.Fatalf("Create urgent job: %v", err)
	}

	normalJob, err := domain.NewJob("JOB-NORMAL", "Acme", "PN-N", 1, domain.PriorityNormal, normalDue, "tester", now)
	if err != nil {
		t.Fatalf("NewJob normal: %v", err)
	}
	normalTask, err := domain.NewTask(normalJob.ID, "OP_MILL", 10, 60, 0)
	if err != nil {
		t.Fatalf("NewTask normal: %v", err)
	}
	if err := normalJob.AddTask(normalTask); err != nil {
		t.Fatalf("AddTask normal: %v", err)
	}
	if err := jobStore.Create(context.Background(), normalJob); err != nil {
		t.Fatalf("Create normal job: %v", err)
	}

	machine := &domain.Machine{
		ID:           domain.NewID(),
		MachineCode:  "M1",
		Name:         "Mill 1",
		Status:       domain.MachineAvailable,
		Zone:         "milling",
		Capabilities: []string{"OP_MILL"},
	}
	if err := machineStore.Create(context.Background(), machine); err != nil {
		t.Fatalf("Create machine: %v", err)
	}

	repos := repositoriesFrom(jobStore, machineStore, operatorStore)
	svc := optimization.New(repos, eventbus.New(), logger.NewNop(), cfg)

	req := apitypes.SolveRequest{
		ProblemName:       "seed-4",
		ScheduleStartTime: now,
		Jobs: []apitypes.JobRequest{
			{JobNumber: "JOB-URGENT", Priority: "URGENT", DueDate: urgentDue, Quantity: 1, TaskSequences: []int{10}},
			{JobNumber: "JOB-NORMAL", Priority: "NORMAL", DueDate: normalDue, Quantity: 1, TaskSequences: []int{10}},
		},
		OptimizationParameters: apitypes.OptimizationParameters{
			MaxTimeSeconds:                 5,
			HorizonDays:                    30,
			EnableHierarchicalOptimization: true,
		},
	}

	resp, err := svc.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got message %q", resp.Message)
	}
	if resp.Metrics.TotalTardinessMinutes != 30 {
		t.Errorf("total tardiness = %v, want 30 (URGENT tardy by 30, NORMAL on time)", resp.Metrics.TotalTardinessMinutes)
	}
	if resp.Metrics.JobsLate != 1 || resp.Metrics.JobsOnTime != 1 {
		t.Errorf("jobs_late=%d jobs_on_time=%d, want 1 and 1", resp.Metrics.JobsLate, resp.Metrics.JobsOnTime)
	}
}

// TestSolveTimeoutFallsBackToGreedyPriority is spec.md §8 seed scenario 6:
// when the solver driver reports TIMEOUT with no incumbent, the resilience
// controller falls back to the greedy-priority-dispatch strategy (the
// first in the escalation order, spec.md §4.4), which succeeds with
// quality_score == 0.5 and status FALLBACK_SUCCESS.
func TestSolveTimeoutFallsBackToGreedyPriority(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 5, 6, 0, 0, 0, time.UTC)
	due := now.Add(48 * time.Hour)

	cfg, jobStore, machineStore, operatorStore := newHarness(t)

	job, err := domain.NewJob("JOB006", "Acme", "PN-6", 1, domain.PriorityNormal, due, "tester", now)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	task, err := domain.NewTask(job.ID, "OP_MILL", 10, 60, 10)
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if err := job.AddTask(task); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := jobStore.Create(context.Background(), job); err != nil {
		t.Fatalf("Create job: %v", err)
	}

	machine := &domain.Machine{
		ID:           domain.NewID(),
		MachineCode:  "M1",
		Name:         "Mill 1",
		Status:       domain.MachineAvailable,
		Zone:         "milling",
		Capabilities: []string{"OP_MILL"},
	}
	if err := machineStore.Create(context.Background(), machine); err != nil {
		t.Fatalf("Create machine: %v", err)
	}

	repos := repositoriesFrom(jobStore, machineStore, operatorStore)
	svc := optimization.New(repos, eventbus.New(), logger.NewNop(), cfg, optimization.WithEngine(timeoutEngine{}))

	req := apitypes.SolveRequest{
		ProblemName:       "seed-6",
		ScheduleStartTime: now,
		Jobs: []apitypes.JobRequest{
			{JobNumber: "JOB006", Priority: "NORMAL", DueDate: due, Quantity: 1, TaskSequences: []int{10}},
		},
		OptimizationParameters: apitypes.OptimizationParameters{MaxTimeSeconds: 0.1, HorizonDays: 30},
	}

	resp, err := svc.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success via fallback, got message %q", resp.Message)
	}
	if resp.Status != apitypes.StatusFallbackSuccess {
		t.Errorf("status = %v, want FALLBACK_SUCCESS", resp.Status)
	}
	if !resp.Resilience.FallbackUsed {
		t.Error("expected fallback_used=true")
	}
	if resp.Resilience.FallbackName != "greedy_priority_dispatch" {
		t.Errorf("fallback_name = %q, want greedy_priority_dispatch", resp.Resilience.FallbackName)
	}
	if resp.Resilience.QualityScore != 0.5 {
		t.Errorf("quality_score = %v, want 0.5", resp.Resilience.QualityScore)
	}
}
