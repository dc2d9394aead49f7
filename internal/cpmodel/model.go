// Package cpmodel translates the domain model (jobs, tasks, machines,
// operators, calendar) into an abstract constraint model the solver
// driver can consume, independent of any specific CP engine (spec.md
// §4.2). Time is modeled in integer minutes relative to the horizon
// origin t0.
package cpmodel

import (
	"fmt"
	"sort"
	"time"

	"github.com/northcloud/vulcan-scheduler/internal/calendar"
	"github.com/northcloud/vulcan-scheduler/internal/domain"
	"github.com/northcloud/vulcan-scheduler/internal/infraerrors"
)

// CandidateMachine is one machine capable of performing a task, with its
// cost rate.
type CandidateMachine struct {
	MachineID  domain.ID
	CostPerMin float64
}

// CandidateOperator is one operator capable of covering a skill slot on a
// task, with the effectiveness-derived processing efficiency and a cost
// rate.
type CandidateOperator struct {
	OperatorID domain.ID
	Efficiency float64 // from Skill.Effectiveness(), used to adjust processing duration
	RatePerMin float64
}

// TaskModel is one task's translation into the constraint model.
type TaskModel struct {
	TaskID                 domain.ID
	JobID                  domain.ID
	SequenceInJob          int
	PriorityWeight         int
	DueMinute              int // due(J) expressed in minutes relative to t0; shared across a job's tasks
	SetupMinutes           int
	ProcessingMinutes      int
	LunchPauseable         bool
	Zone                   string
	CandidateMachines      []CandidateMachine
	CandidateOperatorSlots [][]CandidateOperator // one slot per required skill; each slot lists satisfying operators
}

// Duration returns the nominal (pre-efficiency) duration in minutes.
func (t TaskModel) Duration() int {
	return t.SetupMinutes + t.ProcessingMinutes
}

// Precedence is a cross-job precedence edge: end(pred) <= start(succ).
type Precedence struct {
	PredecessorTaskID domain.ID
	SuccessorTaskID   domain.ID
}

// ZoneLimit caps concurrent in-progress tasks within a production zone
// (WIP constraint, spec.md §4.2).
type ZoneLimit struct {
	Zone     string
	WIPLimit int
}

// ObjectiveWeights configures the hierarchical objective (spec.md §4.2).
type ObjectiveWeights struct {
	Makespan           float64
	Tardiness          float64
	EnableHierarchical bool
	SecondaryTolerance float64 // epsilon
}

// Model is the complete, engine-agnostic constraint model.
type Model struct {
	HorizonMinutes int
	Origin         time.Time
	Calendar       *calendar.BusinessCalendar
	Tasks          []TaskModel
	Precedences    []Precedence
	ZoneLimits     []ZoneLimit
	Objective      ObjectiveWeights
}

// Builder incrementally constructs a Model from domain entities.
type Builder struct {
	model Model
}

// NewBuilder starts a Builder for a horizon of horizonMinutes starting at
// origin, using cal for calendar constraints.
func NewBuilder(origin time.Time, horizonMinutes int, cal *calendar.BusinessCalendar, objective ObjectiveWeights) *Builder {
	return &Builder{model: Model{
		HorizonMinutes: horizonMinutes,
		Origin:         origin,
		Calendar:       cal,
		Objective:      objective,
	}}
}

// AddTask appends a translated task. machines/operatorSlots must be
// non-empty for the task to be satisfiable; an empty set here simply
// yields an unsatisfiable task, which the solver will report as part of
// an INFEASIBLE/NO_FEASIBLE_SOLUTION outcome rather than a builder error.
func (b *Builder) AddTask(task *domain.Task, job *domain.Job, machines []CandidateMachine, operatorSlots [][]CandidateOperator, zone string, lunchPauseable bool) error {
	if task.SequenceInJob < 1 {
		return infraerrors.New(infraerrors.KindValidation, "task sequence_in_job must be >= 1")
	}

	dueMinute := int(job.DueDate.Sub(b.model.Origin).Minutes())

	b.model.Tasks = append(b.model.Tasks, TaskModel{
		TaskID:                 task.ID,
		JobID:                  job.ID,
		SequenceInJob:          task.SequenceInJob,
		PriorityWeight:         job.Priority.Weight(),
		DueMinute:              dueMinute,
		SetupMinutes:           int(task.SetupDurationMinutes),
		ProcessingMinutes:      int(task.PlannedDurationMinutes),
		LunchPauseable:         lunchPauseable,
		Zone:                   zone,
		CandidateMachines:      machines,
		CandidateOperatorSlots: operatorSlots,
	})
	return nil
}

// AddPrecedence adds a cross-job precedence edge.
func (b *Builder) AddPrecedence(predecessor, successor domain.ID) {
	b.model.Precedences = append(b.model.Precedences, Precedence{PredecessorTaskID: predecessor, SuccessorTaskID: successor})
}

// AddZoneLimit adds a WIP limit for zone.
func (b *Builder) AddZoneLimit(zone string, limit int) {
	b.model.ZoneLimits = append(b.model.ZoneLimits, ZoneLimit{Zone: zone, WIPLimit: limit})
}

// Build finalizes the Model, deriving intra-job precedence edges from
// each job's task sequence (spec.md §4.2, intra-job precedence).
func (b *Builder) Build() (Model, error) {
	m := b.model

	byJob := make(map[domain.ID][]TaskModel)
	for _, t := range m.Tasks {
		byJob[t.JobID] = append(byJob[t.JobID], t)
	}
	for _, tasks := range byJob {
		sort.Slice(tasks, func(i, k int) bool { return tasks[i].SequenceInJob < tasks[k].SequenceInJob })
		for i := 0; i < len(tasks)-1; i++ {
			m.Precedences = append(m.Precedences, Precedence{
				PredecessorTaskID: tasks[i].TaskID,
				SuccessorTaskID:   tasks[i+1].TaskID,
			})
		}
	}

	if m.HorizonMinutes <= 0 {
		return Model{}, fmt.Errorf("cpmodel: horizon must be positive")
	}

	return m, nil
}
