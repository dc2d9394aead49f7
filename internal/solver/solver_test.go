package solver_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/northcloud/vulcan-scheduler/internal/cpmodel"
	"github.com/northcloud/vulcan-scheduler/internal/solver"
)

func oneTaskModel(t *testing.T, horizon int, setup, processing int, nMachines, nOperators int) cpmodel.Model {
	t.Helper()

	taskID := uuid.New()
	jobID := uuid.New()

	machines := make([]cpmodel.CandidateMachine, nMachines)
	for i := range machines {
		machines[i] = cpmodel.CandidateMachine{MachineID: uuid.New(), CostPerMin: 1.0}
	}

	var slots [][]cpmodel.CandidateOperator
	if nOperators > 0 {
		ops := make([]cpmodel.CandidateOperator, nOperators)
		for i := range ops {
			ops[i] = cpmodel.CandidateOperator{OperatorID: uuid.New(), Efficiency: 1.0, RatePerMin: 0.5}
		}
		slots = [][]cpmodel.CandidateOperator{ops}
	}

	return cpmodel.Model{
		HorizonMinutes: horizon,
		Origin:         time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), // a Monday
		Tasks: []cpmodel.TaskModel{
			{
				TaskID:                 taskID,
				JobID:                  jobID,
				SequenceInJob:          10,
				PriorityWeight:         2,
				DueMinute:              horizon,
				SetupMinutes:           setup,
				ProcessingMinutes:      processing,
				CandidateMachines:      machines,
				CandidateOperatorSlots: slots,
			},
		},
	}
}

func TestBuiltinEngineSingleTaskOptimal(t *testing.T) {
	t.Parallel()

	model := oneTaskModel(t, 10000, 10, 60, 1, 1)
	engine := solver.NewBuiltinEngine()

	sol, term, err := engine.Solve(context.Background(), model, solver.Params{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if term != solver.TerminationOptimal {
		t.Fatalf("termination = %v, want OPTIMAL", term)
	}
	if sol.MakespanMinutes != 70 {
		t.Errorf("makespan = %d, want 70", sol.MakespanMinutes)
	}
	for _, a := range sol.Assignments {
		if a.StartMinute != 0 {
			t.Errorf("start = %d, want 0", a.StartMinute)
		}
	}
}

func TestBuiltinEnginePrecedenceChain(t *testing.T) {
	t.Parallel()

	jobID := uuid.New()
	machineID := uuid.New()
	op1, op2 := uuid.New(), uuid.New()

	var tasks []cpmodel.TaskModel
	var taskIDs []uuid.UUID
	for _, seq := range []int{10, 20, 30} {
		id := uuid.New()
		taskIDs = append(taskIDs, id)
		tasks = append(tasks, cpmodel.TaskModel{
			TaskID:             id,
			JobID:              jobID,
			SequenceInJob:      seq,
			PriorityWeight:     2,
			DueMinute:          10000,
			ProcessingMinutes:  60,
			CandidateMachines:  []cpmodel.CandidateMachine{{MachineID: machineID, CostPerMin: 1}},
			CandidateOperatorSlots: [][]cpmodel.CandidateOperator{
				{{OperatorID: op1, Efficiency: 1}, {OperatorID: op2, Efficiency: 1}},
			},
		})
	}

	model := cpmodel.Model{
		HorizonMinutes: 10000,
		Origin:         time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Tasks:          tasks,
		Precedences: []cpmodel.Precedence{
			{PredecessorTaskID: taskIDs[0], SuccessorTaskID: taskIDs[1]},
			{PredecessorTaskID: taskIDs[1], SuccessorTaskID: taskIDs[2]},
		},
	}

	engine := solver.NewBuiltinEngine()
	sol, term, err := engine.Solve(context.Background(), model, solver.Params{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if term == solver.TerminationInfeasible {
		t.Fatalf("unexpected infeasible")
	}
	if sol.MakespanMinutes != 180 {
		t.Errorf("makespan = %d, want 180", sol.MakespanMinutes)
	}

	starts := make(map[uuid.UUID]int)
	for _, id := range taskIDs {
		starts[id] = sol.Assignments[id].StartMinute
	}
	if !(starts[taskIDs[0]] <= starts[taskIDs[1]] && starts[taskIDs[1]] <= starts[taskIDs[2]]) {
		t.Errorf("start times not non-decreasing: %v", starts)
	}
}

func TestBuiltinEngineMachineContention(t *testing.T) {
	t.Parallel()

	machineID := uuid.New()
	opA := uuid.New()

	var tasks []cpmodel.TaskModel
	for i := 0; i < 2; i++ {
		tasks = append(tasks, cpmodel.TaskModel{
			TaskID:            uuid.New(),
			JobID:             uuid.New(),
			SequenceInJob:     10,
			PriorityWeight:    2,
			DueMinute:         1440,
			ProcessingMinutes: 60,
			CandidateMachines: []cpmodel.CandidateMachine{{MachineID: machineID, CostPerMin: 1}},
			CandidateOperatorSlots: [][]cpmodel.CandidateOperator{
				{{OperatorID: opA, Efficiency: 1}},
			},
		})
	}

	model := cpmodel.Model{
		HorizonMinutes: 10000,
		Origin:         time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Tasks:          tasks,
	}

	engine := solver.NewBuiltinEngine()
	sol, _, err := engine.Solve(context.Background(), model, solver.Params{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sol.MakespanMinutes != 120 {
		t.Errorf("makespan = %d, want 120", sol.MakespanMinutes)
	}

	var starts []int
	for _, a := range sol.Assignments {
		starts = append(starts, a.StartMinute)
	}
	if len(starts) != 2 || !((starts[0] == 0 && starts[1] == 60) || (starts[0] == 60 && starts[1] == 0)) {
		t.Errorf("starts = %v, want one at 0 and one at 60", starts)
	}
}

func TestBuiltinEngineInfeasibleWhenNoOperatorCandidate(t *testing.T) {
	t.Parallel()

	model := cpmodel.Model{
		HorizonMinutes: 1000,
		Origin:         time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Tasks: []cpmodel.TaskModel{
			{
				TaskID:                 uuid.New(),
				JobID:                  uuid.New(),
				SequenceInJob:          10,
				DueMinute:              1000,
				ProcessingMinutes:      60,
				CandidateMachines:      []cpmodel.CandidateMachine{{MachineID: uuid.New(), CostPerMin: 1}},
				CandidateOperatorSlots: [][]cpmodel.CandidateOperator{{}}, // required slot, nobody qualifies
			},
		},
	}

	engine := solver.NewBuiltinEngine()
	_, term, err := engine.Solve(context.Background(), model, solver.Params{}, nil)
	if term != solver.TerminationInfeasible {
		t.Fatalf("termination = %v, want INFEASIBLE", term)
	}
	if err == nil {
		t.Error("expected an error alongside INFEASIBLE")
	}
}
