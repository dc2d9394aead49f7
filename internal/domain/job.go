package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/northcloud/vulcan-scheduler/internal/infraerrors"
)

// Job is the aggregate root for a unit of production work (spec.md §3). It
// owns an ordered sequence of Tasks keyed by SequenceInJob.
type Job struct {
	ID             ID        `db:"id"               json:"id"`
	JobNumber      string    `db:"job_number"       json:"job_number"`
	Customer       string    `db:"customer"         json:"customer"`
	PartNumber     string    `db:"part_number"      json:"part_number"`
	Quantity       int       `db:"quantity"         json:"quantity"`
	Priority       Priority  `db:"priority"         json:"priority"`
	Status         JobStatus `db:"status"           json:"status"`
	DueDate        time.Time `db:"due_date"         json:"due_date"`
	PlannedStart   *time.Time `db:"planned_start"   json:"planned_start,omitempty"`
	PlannedEnd     *time.Time `db:"planned_end"     json:"planned_end,omitempty"`
	ActualStart    *time.Time `db:"actual_start"    json:"actual_start,omitempty"`
	ActualEnd      *time.Time `db:"actual_end"      json:"actual_end,omitempty"`
	CreatedBy      string    `db:"created_by"       json:"created_by"`
	CreatedAt      time.Time `db:"created_at"       json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"       json:"updated_at"`

	// heldFrom remembers the status ON_HOLD was entered from, so resuming
	// returns to the correct prior state (spec.md §4.1).
	heldFrom *JobStatus

	Tasks []*Task `db:"-" json:"tasks,omitempty"`
}

// NewJob constructs a Job in PLANNED status. dueDate must be strictly in
// the future relative to now (spec.md §3).
func NewJob(jobNumber, customer, partNumber string, quantity int, priority Priority, dueDate time.Time, createdBy string, now time.Time) (*Job, error) {
	if jobNumber == "" {
		return nil, infraerrors.New(infraerrors.KindValidation, "job_number is required")
	}
	if quantity < 1 {
		return nil, infraerrors.New(infraerrors.KindValidation, "quantity must be >= 1")
	}
	if !priority.Valid() {
		return nil, infraerrors.New(infraerrors.KindValidation, fmt.Sprintf("invalid priority %q", priority))
	}
	if !dueDate.After(now) {
		return nil, infraerrors.New(infraerrors.KindValidation, "due_date must be strictly in the future")
	}

	return &Job{
		ID:         NewID(),
		JobNumber:  jobNumber,
		Customer:   customer,
		PartNumber: partNumber,
		Quantity:   quantity,
		Priority:   priority,
		Status:     JobPlanned,
		DueDate:    dueDate,
		CreatedBy:  createdBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Transition moves the job to a new status, enforcing the legal-transition
// table and any side effects (automatic task activation on RELEASE).
func (j *Job) Transition(to JobStatus, now time.Time) error {
	if to == JobOnHold {
		from := j.Status
		if err := ValidateJobTransition(j.Status, JobOnHold); err != nil {
			return err
		}
		j.heldFrom = &from
		j.Status = JobOnHold
		j.UpdatedAt = now
		return nil
	}

	if j.Status == JobOnHold && to == j.resumeTarget() {
		j.Status = to
		j.heldFrom = nil
		j.UpdatedAt = now
		return nil
	}

	if err := ValidateJobTransition(j.Status, to); err != nil {
		return err
	}

	j.Status = to
	j.UpdatedAt = now

	if to == JobReleased {
		if err := j.releaseFirstTask(now); err != nil {
			return err
		}
	}

	return nil
}

// resumeTarget returns the status an ON_HOLD job returns to.
func (j *Job) resumeTarget() JobStatus {
	if j.heldFrom == nil {
		return JobReleased
	}
	return *j.heldFrom
}

// releaseFirstTask transitions the first task (by SequenceInJob) to READY,
// automatically, as required on job release (spec.md §4.1).
func (j *Job) releaseFirstTask(now time.Time) error {
	ordered := j.OrderedTasks()
	if len(ordered) == 0 {
		return nil
	}
	return ordered[0].Transition(TaskReady, now)
}

// OrderedTasks returns Tasks sorted by SequenceInJob ascending.
func (j *Job) OrderedTasks() []*Task {
	ordered := append([]*Task(nil), j.Tasks...)
	sort.Slice(ordered, func(i, k int) bool {
		return ordered[i].SequenceInJob < ordered[k].SequenceInJob
	})
	return ordered
}

// AddTask appends task to the job after validating sequence uniqueness
// (spec.md §3: task sequences are unique within job).
func (j *Job) AddTask(task *Task) error {
	for _, existing := range j.Tasks {
		if existing.SequenceInJob == task.SequenceInJob {
			return infraerrors.New(infraerrors.KindValidation,
				fmt.Sprintf("sequence_in_job %d already used in job %s", task.SequenceInJob, j.JobNumber))
		}
	}
	task.JobID = j.ID
	j.Tasks = append(j.Tasks, task)
	return nil
}

// OnTaskCompleted advances the next task (by SequenceInJob) to READY,
// automatically, when its immediate predecessor completes (spec.md §4.1).
func (j *Job) OnTaskCompleted(completed *Task, now time.Time) error {
	ordered := j.OrderedTasks()
	for i, t := range ordered {
		if t.ID == completed.ID && i+1 < len(ordered) {
			return ordered[i+1].Transition(TaskReady, now)
		}
	}
	return nil
}

// AssignmentType enumerates how an OperatorAssignment covers a task's
// duration (spec.md §3).
type AssignmentType string

const (
	AssignmentFullDuration   AssignmentType = "FULL_DURATION"
	AssignmentSetupOnly      AssignmentType = "SETUP_ONLY"
	AssignmentProcessingOnly AssignmentType = "PROCESSING_ONLY"
)

// OperatorAssignment is an entity within Task (spec.md §3).
type OperatorAssignment struct {
	TaskID         ID             `db:"task_id"         json:"task_id"`
	OperatorID     ID             `db:"operator_id"     json:"operator_id"`
	AssignmentType AssignmentType `db:"assignment_type" json:"assignment_type"`
	PlannedStart   time.Time      `db:"planned_start"   json:"planned_start"`
	PlannedEnd     time.Time      `db:"planned_end"     json:"planned_end"`
	ActualStart    *time.Time     `db:"actual_start"    json:"actual_start,omitempty"`
	ActualEnd      *time.Time     `db:"actual_end"      json:"actual_end,omitempty"`
}

// Task is an entity within Job (spec.md §3).
type Task struct {
	ID                     ID         `db:"id"                       json:"id"`
	JobID                  ID         `db:"job_id"                   json:"job_id"`
	OperationID            string     `db:"operation_id"             json:"operation_id"`
	SequenceInJob          int        `db:"sequence_in_job"          json:"sequence_in_job"`
	PlannedDurationMinutes float64    `db:"planned_duration_minutes" json:"planned_duration_minutes"`
	SetupDurationMinutes   float64    `db:"setup_duration_minutes"   json:"setup_duration_minutes"`
	Status                 TaskStatus `db:"status"                   json:"status"`
	AssignedMachineID      *ID        `db:"assigned_machine_id"      json:"assigned_machine_id,omitempty"`
	OperatorAssignments    []OperatorAssignment `db:"-" json:"operator_assignments,omitempty"`
	IsCriticalPath         bool       `db:"is_critical_path"         json:"is_critical_path"`
	ReworkCount            int        `db:"rework_count"             json:"rework_count"`
	PlannedStart           *time.Time `db:"planned_start"            json:"planned_start,omitempty"`
	PlannedEnd             *time.Time `db:"planned_end"               json:"planned_end,omitempty"`
	ScheduledStart         *time.Time `db:"scheduled_start"          json:"scheduled_start,omitempty"`
	ScheduledEnd           *time.Time `db:"scheduled_end"            json:"scheduled_end,omitempty"`
	ActualStart            *time.Time `db:"actual_start"             json:"actual_start,omitempty"`
	ActualEnd              *time.Time `db:"actual_end"               json:"actual_end,omitempty"`
	SkillRequirements      []SkillRequirement `db:"-" json:"skill_requirements,omitempty"`
}

// NewTask constructs a Task in PENDING status.
func NewTask(jobID ID, operationID string, sequenceInJob int, plannedDurationMinutes, setupDurationMinutes float64) (*Task, error) {
	if sequenceInJob < 1 || sequenceInJob > 100 {
		return nil, infraerrors.New(infraerrors.KindValidation, "sequence_in_job must be in [1,100]")
	}
	if plannedDurationMinutes <= 0 {
		return nil, infraerrors.New(infraerrors.KindValidation, "planned_duration_minutes must be > 0")
	}
	if setupDurationMinutes < 0 {
		return nil, infraerrors.New(infraerrors.KindValidation, "setup_duration_minutes must be >= 0")
	}

	return &Task{
		ID:                     NewID(),
		JobID:                  jobID,
		OperationID:            operationID,
		SequenceInJob:          sequenceInJob,
		PlannedDurationMinutes: plannedDurationMinutes,
		SetupDurationMinutes:   setupDurationMinutes,
		Status:                 TaskPending,
	}, nil
}

// Transition moves the task to a new status, enforcing the legal-transition
// table, and stamps ActualStart on IN_PROGRESS and ActualEnd on COMPLETED or
// FAILED. The end-after-start invariant is enforced by SetSchedule.
func (t *Task) Transition(to TaskStatus, now time.Time) error {
	if err := ValidateTaskTransition(t.Status, to); err != nil {
		return err
	}
	t.Status = to

	switch to {
	case TaskInProgress:
		t.ActualStart = &now
	case TaskCompleted, TaskFailed:
		t.ActualEnd = &now
	}

	return nil
}

// SetSchedule sets the scheduled start/end and assigned machine, enforcing
// the end > start invariant (spec.md §3).
func (t *Task) SetSchedule(machineID ID, start, end time.Time) error {
	if !end.After(start) {
		return infraerrors.New(infraerrors.KindValidation, "scheduled_end must be after scheduled_start")
	}
	t.AssignedMachineID = &machineID
	t.ScheduledStart = &start
	t.ScheduledEnd = &end
	return nil
}

// DelayMinutes returns the derived delay: the gap between scheduled and
// planned end, or zero if either is unset or the task is early/on-time.
func (t *Task) DelayMinutes() float64 {
	if t.ScheduledEnd == nil || t.PlannedEnd == nil {
		return 0
	}
	delta := t.ScheduledEnd.Sub(*t.PlannedEnd).Minutes()
	if delta < 0 {
		return 0
	}
	return delta
}

// AddOperatorAssignment appends an assignment after enforcing at most one
// active assignment per (task, operator) pair (spec.md §3).
func (t *Task) AddOperatorAssignment(a OperatorAssignment) error {
	for _, existing := range t.OperatorAssignments {
		if existing.OperatorID == a.OperatorID && existing.ActualEnd == nil {
			return infraerrors.New(infraerrors.KindBusinessRuleViolation,
				"operator already has an active assignment on this task")
		}
	}
	a.TaskID = t.ID
	t.OperatorAssignments = append(t.OperatorAssignments, a)
	return nil
}
