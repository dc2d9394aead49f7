package solver

import (
	"testing"

	"github.com/google/uuid"
	"github.com/northcloud/vulcan-scheduler/internal/cpmodel"
)

// TestObjectiveWeightsTardinessByJobPriority exercises spec.md §4.2's
// hierarchical objective formula directly: w_tard * Σ max(0, end-due) *
// priority_weight(J). A job's priority_weight must scale its own
// tardiness term, not just break dispatch-order ties (internal/fallback
// already covers ordering; this covers the objective itself).
func TestObjectiveWeightsTardinessByJobPriority(t *testing.T) {
	t.Parallel()

	urgentJob := uuid.New()
	lowJob := uuid.New()

	model := cpmodel.Model{
		Objective: cpmodel.ObjectiveWeights{Makespan: 1, Tardiness: 1},
		Tasks: []cpmodel.TaskModel{
			{TaskID: uuid.New(), JobID: urgentJob, PriorityWeight: 4},
			{TaskID: uuid.New(), JobID: lowJob, PriorityWeight: 1},
		},
	}

	sol := Solution{
		MakespanMinutes: 0,
		JobTardinessMinutes: map[uuid.UUID]int{
			urgentJob: 10,
			lowJob:    5,
		},
	}

	got := objective(sol, model)
	want := float64(10*4 + 5*1) // weighted tardiness, makespan and cost are 0
	if got != want {
		t.Fatalf("objective = %v, want %v (unweighted sum would be %v)", got, want, 15.0)
	}
}
