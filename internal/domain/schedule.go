package domain

import (
	"time"

	"github.com/northcloud/vulcan-scheduler/internal/infraerrors"
)

// ScheduleAssignment is a value object placing one task on one machine with
// one or more operators over a concrete time window (spec.md §3).
type ScheduleAssignment struct {
	TaskID              ID        `json:"task_id"`
	MachineID           ID        `json:"machine_id"`
	OperatorIDs         []ID      `json:"operator_ids"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	SetupDurationMin    float64   `json:"setup_duration_minutes"`
	ProcessingDurationMin float64 `json:"processing_duration_minutes"`
}

// NewScheduleAssignment constructs a ScheduleAssignment, validating that
// end_time = start_time + setup + processing and that operator_ids is
// non-empty when requireOperators is true (spec.md §3).
func NewScheduleAssignment(taskID, machineID ID, operatorIDs []ID, start time.Time, setupMin, processingMin float64, requireOperators bool) (ScheduleAssignment, error) {
	if requireOperators && len(operatorIDs) == 0 {
		return ScheduleAssignment{}, infraerrors.New(infraerrors.KindValidation, "operator_ids must be non-empty when the task requires operators")
	}
	if setupMin < 0 || processingMin < 0 {
		return ScheduleAssignment{}, infraerrors.New(infraerrors.KindValidation, "setup and processing durations must be non-negative")
	}

	end := start.Add(time.Duration((setupMin + processingMin) * float64(time.Minute)))

	return ScheduleAssignment{
		TaskID:                taskID,
		MachineID:             machineID,
		OperatorIDs:           append([]ID(nil), operatorIDs...),
		StartTime:             start,
		EndTime:               end,
		SetupDurationMin:      setupMin,
		ProcessingDurationMin: processingMin,
	}, nil
}

// ConstraintViolation records one violated constraint found during
// validation of a Schedule (spec.md §3, constraint_violations[]).
type ConstraintViolation struct {
	Kind    string `json:"kind"`
	TaskID  ID     `json:"task_id"`
	Message string `json:"message"`
}

// ScheduleMetrics holds the derived performance metrics of a schedule
// (spec.md §3).
type ScheduleMetrics struct {
	MakespanMinutes  float64 `json:"makespan_minutes"`
	TotalTardiness   float64 `json:"total_tardiness_minutes"`
	TotalCost        float64 `json:"total_cost"`
}

// Schedule is the aggregate root produced by optimization (spec.md §3). It
// owns ScheduleAssignments and is immutable once PUBLISHED, except for
// status transitions.
type Schedule struct {
	ID                  ID                          `db:"id"          json:"id"`
	Name                string                      `db:"name"        json:"name"`
	Description         string                      `db:"description" json:"description"`
	StartDate           time.Time                   `db:"start_date"  json:"start_date"`
	EndDate             time.Time                   `db:"end_date"    json:"end_date"`
	JobIDs              []ID                        `db:"-"           json:"job_ids"`
	Status              ScheduleStatus              `db:"status"      json:"status"`
	Assignments         map[ID]ScheduleAssignment    `db:"-"           json:"assignments"`
	ConstraintViolations []ConstraintViolation       `db:"-"           json:"constraint_violations,omitempty"`
	Metrics             ScheduleMetrics              `db:"-"           json:"metrics"`
	CreatedAt           time.Time                   `db:"created_at"  json:"created_at"`
	UpdatedAt           time.Time                   `db:"updated_at"  json:"updated_at"`
}

// NewSchedule constructs a Schedule in DRAFT status.
func NewSchedule(name, description string, start, end time.Time, jobIDs []ID, now time.Time) (*Schedule, error) {
	if !end.After(start) {
		return nil, infraerrors.New(infraerrors.KindValidation, "end_date must be after start_date")
	}

	return &Schedule{
		ID:          NewID(),
		Name:        name,
		Description: description,
		StartDate:   start,
		EndDate:     end,
		JobIDs:      append([]ID(nil), jobIDs...),
		Status:      ScheduleDraft,
		Assignments: make(map[ID]ScheduleAssignment),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsValid reports whether the schedule currently has zero constraint
// violations (spec.md §3, is_valid derived attribute).
func (s *Schedule) IsValid() bool {
	return len(s.ConstraintViolations) == 0
}

// SetAssignment records or replaces the assignment for a task, rejecting
// mutation once the schedule has been PUBLISHED (spec.md §3).
func (s *Schedule) SetAssignment(a ScheduleAssignment) error {
	if s.Status != ScheduleDraft {
		return infraerrors.New(infraerrors.KindBusinessRuleViolation, "schedule assignments can only change while DRAFT")
	}
	s.Assignments[a.TaskID] = a
	return nil
}

// Transition moves the schedule to a new status, enforcing the
// legal-transition table and the PUBLISH precondition (spec.md §4.1):
// publishing requires is_valid and a non-empty assignment set.
func (s *Schedule) Transition(to ScheduleStatus, now time.Time, atOrAfterStartDate bool) error {
	if to == SchedulePublished {
		if !s.IsValid() {
			return infraerrors.New(infraerrors.KindBusinessRuleViolation, "cannot publish an invalid schedule")
		}
		if len(s.Assignments) == 0 {
			return infraerrors.New(infraerrors.KindBusinessRuleViolation, "cannot publish a schedule with no assignments")
		}
	}
	if to == ScheduleActive && !atOrAfterStartDate {
		return infraerrors.New(infraerrors.KindBusinessRuleViolation, "schedule cannot activate before start_date")
	}

	if err := ValidateScheduleTransition(s.Status, to); err != nil {
		return err
	}

	s.Status = to
	s.UpdatedAt = now
	return nil
}

// CanOptimize reports whether the schedule is open to re-optimization
// (spec.md §4.1: optimization is permitted only in DRAFT).
func (s *Schedule) CanOptimize() bool {
	return s.Status == ScheduleDraft
}
