package domain_test

import (
	"testing"
	"time"

	"github.com/northcloud/vulcan-scheduler/internal/domain"
)

func TestNewJobRejectsPastDueDate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	if _, err := domain.NewJob("J-1", "Acme", "P-1", 1, domain.PriorityNormal, past, "alice", now); err == nil {
		t.Error("expected error for due date in the past")
	}
}

func TestNewJobRejectsInvalidQuantity(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)

	if _, err := domain.NewJob("J-1", "Acme", "P-1", 0, domain.PriorityNormal, future, "alice", now); err == nil {
		t.Error("expected error for zero quantity")
	}
}

func TestJobReleaseActivatesFirstTaskOnly(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)

	job, err := domain.NewJob("J-1", "Acme", "P-1", 1, domain.PriorityNormal, future, "alice", now)
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}

	task1, _ := domain.NewTask(job.ID, "OP-10", 10, 30, 5)
	task2, _ := domain.NewTask(job.ID, "OP-20", 20, 45, 5)
	if err := job.AddTask(task1); err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	if err := job.AddTask(task2); err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}

	if err := job.Transition(domain.JobReleased, now); err != nil {
		t.Fatalf("Transition(RELEASED) error = %v", err)
	}

	if task1.Status != domain.TaskReady {
		t.Errorf("task1.Status = %s, want READY", task1.Status)
	}
	if task2.Status != domain.TaskPending {
		t.Errorf("task2.Status = %s, want PENDING (unaffected)", task2.Status)
	}
}

func TestJobAddTaskRejectsDuplicateSequence(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	job, _ := domain.NewJob("J-1", "Acme", "P-1", 1, domain.PriorityNormal, future, "alice", now)

	task1, _ := domain.NewTask(job.ID, "OP-10", 10, 30, 5)
	task2, _ := domain.NewTask(job.ID, "OP-20", 10, 45, 5)

	if err := job.AddTask(task1); err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	if err := job.AddTask(task2); err == nil {
		t.Error("expected error for duplicate sequence_in_job")
	}
}

func TestJobOnTaskCompletedActivatesNext(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	job, _ := domain.NewJob("J-1", "Acme", "P-1", 1, domain.PriorityNormal, future, "alice", now)

	task1, _ := domain.NewTask(job.ID, "OP-10", 10, 30, 5)
	task2, _ := domain.NewTask(job.ID, "OP-20", 20, 45, 5)
	_ = job.AddTask(task1)
	_ = job.AddTask(task2)

	if err := job.Transition(domain.JobReleased, now); err != nil {
		t.Fatalf("Transition(RELEASED) error = %v", err)
	}

	if err := task1.Transition(domain.TaskScheduled, now); err != nil {
		t.Fatalf("Transition(SCHEDULED) error = %v", err)
	}
	if err := task1.Transition(domain.TaskInProgress, now); err != nil {
		t.Fatalf("Transition(IN_PROGRESS) error = %v", err)
	}
	if err := task1.Transition(domain.TaskCompleted, now); err != nil {
		t.Fatalf("Transition(COMPLETED) error = %v", err)
	}

	if err := job.OnTaskCompleted(task1, now); err != nil {
		t.Fatalf("OnTaskCompleted() error = %v", err)
	}
	if task2.Status != domain.TaskReady {
		t.Errorf("task2.Status = %s, want READY", task2.Status)
	}
}

func TestJobOnHoldRemembersPriorStateAndResumes(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	job, _ := domain.NewJob("J-1", "Acme", "P-1", 1, domain.PriorityNormal, future, "alice", now)

	if err := job.Transition(domain.JobReleased, now); err != nil {
		t.Fatalf("Transition(RELEASED) error = %v", err)
	}
	if err := job.Transition(domain.JobInProgress, now); err != nil {
		t.Fatalf("Transition(IN_PROGRESS) error = %v", err)
	}
	if err := job.Transition(domain.JobOnHold, now); err != nil {
		t.Fatalf("Transition(ON_HOLD) error = %v", err)
	}
	if err := job.Transition(domain.JobInProgress, now); err != nil {
		t.Fatalf("resume Transition(IN_PROGRESS) error = %v", err)
	}
	if job.Status != domain.JobInProgress {
		t.Errorf("job.Status = %s, want IN_PROGRESS", job.Status)
	}
}

func TestTaskSetScheduleRejectsEndBeforeStart(t *testing.T) {
	t.Parallel()

	task, _ := domain.NewTask(domain.NewID(), "OP-10", 10, 30, 5)
	start := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(-time.Minute)

	if err := task.SetSchedule(domain.NewID(), start, end); err == nil {
		t.Error("expected error for scheduled_end before scheduled_start")
	}
}

func TestTaskAddOperatorAssignmentRejectsDuplicateActive(t *testing.T) {
	t.Parallel()

	task, _ := domain.NewTask(domain.NewID(), "OP-10", 10, 30, 5)
	operatorID := domain.NewID()
	start := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	a1 := domain.OperatorAssignment{OperatorID: operatorID, AssignmentType: domain.AssignmentFullDuration, PlannedStart: start, PlannedEnd: end}
	a2 := domain.OperatorAssignment{OperatorID: operatorID, AssignmentType: domain.AssignmentSetupOnly, PlannedStart: start, PlannedEnd: end}

	if err := task.AddOperatorAssignment(a1); err != nil {
		t.Fatalf("AddOperatorAssignment() error = %v", err)
	}
	if err := task.AddOperatorAssignment(a2); err == nil {
		t.Error("expected error for a second active assignment to the same operator")
	}
}
