package domain

import (
	"fmt"

	"github.com/northcloud/vulcan-scheduler/internal/infraerrors"
)

// JobStatus is the state machine for Job.status (spec.md §4.1).
type JobStatus string

const (
	JobPlanned    JobStatus = "PLANNED"
	JobReleased   JobStatus = "RELEASED"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobCompleted  JobStatus = "COMPLETED"
	JobOnHold     JobStatus = "ON_HOLD"
	JobCancelled  JobStatus = "CANCELLED"
)

// jobTransitions enumerates every legal Job.status transition. ON_HOLD
// carries an implicit "previous state": Job.Transition remembers the state
// a job was held from and only lets it resume to that state, a check this
// static table does not express on its own.
var jobTransitions = map[JobStatus][]JobStatus{
	JobPlanned:    {JobReleased, JobCancelled},
	JobReleased:   {JobInProgress, JobOnHold, JobCancelled},
	JobInProgress: {JobCompleted, JobOnHold, JobCancelled},
	JobOnHold:     {JobReleased, JobInProgress, JobCancelled},
	JobCompleted:  {},
	JobCancelled:  {},
}

// ValidateJobTransition reports a BusinessRuleViolation if from->to is not
// a legal Job.status transition.
func ValidateJobTransition(from, to JobStatus) error {
	allowed, known := jobTransitions[from]
	if !known {
		return infraerrors.New(infraerrors.KindBusinessRuleViolation, fmt.Sprintf("unknown job status: %s", from))
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return infraerrors.New(infraerrors.KindBusinessRuleViolation,
		fmt.Sprintf("illegal job status transition: %s -> %s", from, to))
}

// IsJobTerminal reports whether status has no further legal transitions.
func IsJobTerminal(s JobStatus) bool {
	return s == JobCompleted || s == JobCancelled
}

// TaskStatus is the state machine for Task.status (spec.md §4.1).
type TaskStatus string

const (
	TaskPending     TaskStatus = "PENDING"
	TaskReady       TaskStatus = "READY"
	TaskScheduled   TaskStatus = "SCHEDULED"
	TaskInProgress  TaskStatus = "IN_PROGRESS"
	TaskCompleted   TaskStatus = "COMPLETED"
	TaskFailed      TaskStatus = "FAILED"
	TaskCancelled   TaskStatus = "CANCELLED"
)

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskPending:    {TaskReady, TaskCancelled},
	TaskReady:      {TaskScheduled, TaskCancelled},
	TaskScheduled:  {TaskInProgress, TaskCancelled},
	TaskInProgress: {TaskCompleted, TaskFailed, TaskCancelled},
	TaskCompleted:  {},
	TaskFailed:     {TaskCancelled},
	TaskCancelled:  {},
}

// ValidateTaskTransition reports a BusinessRuleViolation if from->to is not
// a legal Task.status transition.
func ValidateTaskTransition(from, to TaskStatus) error {
	allowed, known := taskTransitions[from]
	if !known {
		return infraerrors.New(infraerrors.KindBusinessRuleViolation, fmt.Sprintf("unknown task status: %s", from))
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return infraerrors.New(infraerrors.KindBusinessRuleViolation,
		fmt.Sprintf("illegal task status transition: %s -> %s", from, to))
}

// IsTaskTerminal reports whether status is a finished outcome: COMPLETED,
// FAILED or CANCELLED. A FAILED task can still move to CANCELLED.
func IsTaskTerminal(s TaskStatus) bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// ScheduleStatus is the state machine for Schedule.status (spec.md §4.1).
type ScheduleStatus string

const (
	ScheduleDraft     ScheduleStatus = "DRAFT"
	SchedulePublished ScheduleStatus = "PUBLISHED"
	ScheduleActive    ScheduleStatus = "ACTIVE"
	ScheduleCompleted ScheduleStatus = "COMPLETED"
	ScheduleCancelled ScheduleStatus = "CANCELLED"
)

var scheduleTransitions = map[ScheduleStatus][]ScheduleStatus{
	ScheduleDraft:     {SchedulePublished, ScheduleCancelled},
	SchedulePublished: {ScheduleActive, ScheduleCancelled},
	ScheduleActive:    {ScheduleCompleted, ScheduleCancelled},
	ScheduleCompleted: {},
	ScheduleCancelled: {},
}

// ValidateScheduleTransition reports a BusinessRuleViolation if from->to is
// not a legal Schedule.status transition.
func ValidateScheduleTransition(from, to ScheduleStatus) error {
	allowed, known := scheduleTransitions[from]
	if !known {
		return infraerrors.New(infraerrors.KindBusinessRuleViolation, fmt.Sprintf("unknown schedule status: %s", from))
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return infraerrors.New(infraerrors.KindBusinessRuleViolation,
		fmt.Sprintf("illegal schedule status transition: %s -> %s", from, to))
}

// IsScheduleTerminal reports whether status has no further legal transitions.
func IsScheduleTerminal(s ScheduleStatus) bool {
	return s == ScheduleCompleted || s == ScheduleCancelled
}
