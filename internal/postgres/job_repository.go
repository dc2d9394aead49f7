package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/northcloud/vulcan-scheduler/internal/domain"
	"github.com/northcloud/vulcan-scheduler/internal/infraerrors"
)

// JobRepository is a repository.JobRepository backed by PostgreSQL.
// Grounded on crawler/internal/database's sqlx repository idiom: one
// struct wrapping *sqlx.DB (or a transaction-scoped executor), exported
// query-methods per aggregate operation.
//
// Strategic indexes (documented by intent, per spec.md §9's resolution of
// the engine-agnostic-DDL open question):
//   - (status, due_date) on jobs, for ListActive's ordering
//   - (job_id, sequence_in_job) unique on tasks
type JobRepository struct {
	db sqlx.ExtContext
}

// NewJobRepository constructs a JobRepository over conn.
func NewJobRepository(conn *Connection) *JobRepository {
	return &JobRepository{db: conn.DB}
}

// jobRow mirrors the jobs table.
type jobRow struct {
	ID           domain.ID       `db:"id"`
	JobNumber    string          `db:"job_number"`
	Customer     string          `db:"customer"`
	PartNumber   string          `db:"part_number"`
	Quantity     int             `db:"quantity"`
	Priority     string          `db:"priority"`
	Status       string          `db:"status"`
	DueDate      sql.NullTime    `db:"due_date"`
	PlannedStart sql.NullTime    `db:"planned_start"`
	PlannedEnd   sql.NullTime    `db:"planned_end"`
	ActualStart  sql.NullTime    `db:"actual_start"`
	ActualEnd    sql.NullTime    `db:"actual_end"`
	CreatedBy    string          `db:"created_by"`
	CreatedAt    sql.NullTime    `db:"created_at"`
	UpdatedAt    sql.NullTime    `db:"updated_at"`
}

// taskRow mirrors the tasks table. SkillRequirements is stored as JSON
// rather than a normalized table, matching pipeline/internal/database's
// use of a JSON column (metadata) for structured, rarely-queried data.
type taskRow struct {
	ID                     domain.ID       `db:"id"`
	JobID                  domain.ID       `db:"job_id"`
	OperationID            string          `db:"operation_id"`
	SequenceInJob          int             `db:"sequence_in_job"`
	PlannedDurationMinutes float64         `db:"planned_duration_minutes"`
	SetupDurationMinutes   float64         `db:"setup_duration_minutes"`
	Status                 string          `db:"status"`
	AssignedMachineID      *domain.ID      `db:"assigned_machine_id"`
	IsCriticalPath         bool            `db:"is_critical_path"`
	ReworkCount            int             `db:"rework_count"`
	PlannedStart           sql.NullTime    `db:"planned_start"`
	PlannedEnd             sql.NullTime    `db:"planned_end"`
	ScheduledStart         sql.NullTime    `db:"scheduled_start"`
	ScheduledEnd           sql.NullTime    `db:"scheduled_end"`
	ActualStart            sql.NullTime    `db:"actual_start"`
	ActualEnd              sql.NullTime    `db:"actual_end"`
	SkillRequirementsJSON  []byte          `db:"skill_requirements"`
}

type operatorAssignmentRow struct {
	TaskID         domain.ID    `db:"task_id"`
	OperatorID     domain.ID    `db:"operator_id"`
	AssignmentType string       `db:"assignment_type"`
	PlannedStart   sql.NullTime `db:"planned_start"`
	PlannedEnd     sql.NullTime `db:"planned_end"`
	ActualStart    sql.NullTime `db:"actual_start"`
	ActualEnd      sql.NullTime `db:"actual_end"`
}

// skillRequirementDTO is the JSON-serializable projection of a
// domain.SkillRequirement, whose fields are unexported by design
// (spec.md §3: immutable value object with named constructors).
type skillRequirementDTO struct {
	SkillType               string   `json:"skill_type"`
	MinimumLevel             int      `json:"minimum_level"`
	PreferredLevel           *int     `json:"preferred_level,omitempty"`
	YearsExperienceRequired int      `json:"years_experience_required"`
	RequiredCertifications  []string `json:"required_certifications,omitempty"`
}

func marshalSkillRequirements(reqs []domain.SkillRequirement) ([]byte, error) {
	dtos := make([]skillRequirementDTO, 0, len(reqs))
	for _, r := range reqs {
		dtos = append(dtos, skillRequirementDTO{
			SkillType:               r.SkillType(),
			MinimumLevel:            r.MinimumLevel(),
			PreferredLevel:          r.PreferredLevel(),
			YearsExperienceRequired: r.YearsExperienceRequired(),
			RequiredCertifications:  r.RequiredCertifications(),
		})
	}
	return json.Marshal(dtos)
}

func unmarshalSkillRequirements(data []byte) ([]domain.SkillRequirement, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var dtos []skillRequirementDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return nil, fmt.Errorf("unmarshal skill requirements: %w", err)
	}
	out := make([]domain.SkillRequirement, 0, len(dtos))
	for _, d := range dtos {
		req, err := domain.NewSkillRequirement(d.SkillType, d.MinimumLevel, d.PreferredLevel, d.YearsExperienceRequired, d.RequiredCertifications)
		if err != nil {
			return nil, fmt.Errorf("rebuild skill requirement: %w", err)
		}
		out = append(out, req)
	}
	return out, nil
}

func jobFromRow(row jobRow) *domain.Job {
	return &domain.Job{
		ID:           row.ID,
		JobNumber:    row.JobNumber,
		Customer:     row.Customer,
		PartNumber:   row.PartNumber,
		Quantity:     row.Quantity,
		Priority:     domain.Priority(row.Priority),
		Status:       domain.JobStatus(row.Status),
		DueDate:      row.DueDate.Time,
		PlannedStart: nullTimePtr(row.PlannedStart),
		PlannedEnd:   nullTimePtr(row.PlannedEnd),
		ActualStart:  nullTimePtr(row.ActualStart),
		ActualEnd:    nullTimePtr(row.ActualEnd),
		CreatedBy:    row.CreatedBy,
		CreatedAt:    row.CreatedAt.Time,
		UpdatedAt:    row.UpdatedAt.Time,
	}
}

func taskFromRow(row taskRow) (*domain.Task, error) {
	reqs, err := unmarshalSkillRequirements(row.SkillRequirementsJSON)
	if err != nil {
		return nil, err
	}
	return &domain.Task{
		ID:                     row.ID,
		JobID:                  row.JobID,
		OperationID:            row.OperationID,
		SequenceInJob:          row.SequenceInJob,
		PlannedDurationMinutes: row.PlannedDurationMinutes,
		SetupDurationMinutes:   row.SetupDurationMinutes,
		Status:                 domain.TaskStatus(row.Status),
		AssignedMachineID:      row.AssignedMachineID,
		IsCriticalPath:         row.IsCriticalPath,
		ReworkCount:            row.ReworkCount,
		PlannedStart:           nullTimePtr(row.PlannedStart),
		PlannedEnd:             nullTimePtr(row.PlannedEnd),
		ScheduledStart:         nullTimePtr(row.ScheduledStart),
		ScheduledEnd:           nullTimePtr(row.ScheduledEnd),
		ActualStart:            nullTimePtr(row.ActualStart),
		ActualEnd:              nullTimePtr(row.ActualEnd),
		SkillRequirements:      reqs,
	}, nil
}

func assignmentFromRow(row operatorAssignmentRow) domain.OperatorAssignment {
	return domain.OperatorAssignment{
		TaskID:         row.TaskID,
		OperatorID:     row.OperatorID,
		AssignmentType: domain.AssignmentType(row.AssignmentType),
		PlannedStart:   row.PlannedStart.Time,
		PlannedEnd:     row.PlannedEnd.Time,
		ActualStart:    nullTimePtr(row.ActualStart),
		ActualEnd:      nullTimePtr(row.ActualEnd),
	}
}

// GetByID loads a Job with its owned Tasks and each Task's
// OperatorAssignments (spec.md §3: Job owns Tasks, Task owns
// OperatorAssignments).
func (r *JobRepository) GetByID(ctx context.Context, id domain.ID) (*domain.Job, error) {
	var row jobRow
	err := sqlx.GetContext(ctx, r.db, &row, `SELECT * FROM jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, infraerrors.New(infraerrors.KindEntityNotFound, "job not found")
	}
	if err != nil {
		return nil, infraerrors.Wrap(infraerrors.KindDatabaseError, "get job", err)
	}

	job := jobFromRow(row)
	tasks, err := r.loadTasks(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Tasks = tasks
	return job, nil
}

// GetByJobNumber loads a Job by its unique business key.
func (r *JobRepository) GetByJobNumber(ctx context.Context, jobNumber string) (*domain.Job, error) {
	var row jobRow
	err := sqlx.GetContext(ctx, r.db, &row, `SELECT * FROM jobs WHERE job_number = $1`, jobNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, infraerrors.New(infraerrors.KindEntityNotFound, "job not found")
	}
	if err != nil {
		return nil, infraerrors.Wrap(infraerrors.KindDatabaseError, "get job by job_number", err)
	}

	job := jobFromRow(row)
	tasks, err := r.loadTasks(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	job.Tasks = tasks
	return job, nil
}

// ListActive returns every Job not in a terminal status, ordered by
// due_date so callers naturally see the most urgent first — the
// (status, due_date) index exists for this query.
func (r *JobRepository) ListActive(ctx context.Context) ([]*domain.Job, error) {
	var rows []jobRow
	query := `SELECT * FROM jobs WHERE status NOT IN ('COMPLETED', 'CANCELLED') ORDER BY due_date ASC`
	if err := sqlx.SelectContext(ctx, r.db, &rows, query); err != nil {
		return nil, infraerrors.Wrap(infraerrors.KindDatabaseError, "list active jobs", err)
	}

	jobs := make([]*domain.Job, 0, len(rows))
	for _, row := range rows {
		job := jobFromRow(row)
		tasks, err := r.loadTasks(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		job.Tasks = tasks
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (r *JobRepository) loadTasks(ctx context.Context, jobID domain.ID) ([]*domain.Task, error) {
	var rows []taskRow
	query := `SELECT * FROM tasks WHERE job_id = $1 ORDER BY sequence_in_job ASC`
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, jobID); err != nil {
		return nil, infraerrors.Wrap(infraerrors.KindDatabaseError, "list tasks", err)
	}

	tasks := make([]*domain.Task, 0, len(rows))
	for _, row := range rows {
		task, err := taskFromRow(row)
		if err != nil {
			return nil, infraerrors.Wrap(infraerrors.KindDatabaseError, "decode task", err)
		}

		var assignRows []operatorAssignmentRow
		assignQuery := `SELECT * FROM operator_assignments WHERE task_id = $1`
		if err := sqlx.SelectContext(ctx, r.db, &assignRows, assignQuery, task.ID); err != nil {
			return nil, infraerrors.Wrap(infraerrors.KindDatabaseError, "list operator assignments", err)
		}
		for _, ar := range assignRows {
			task.OperatorAssignments = append(task.OperatorAssignments, assignFromRow(ar))
		}

		tasks = append(tasks, task)
	}
	return tasks, nil
}

func assignFromRow(row operatorAssignmentRow) domain.OperatorAssignment {
	return assignmentFromRow(row)
}

// Create inserts job and every owned Task/OperatorAssignment. Callers
// typically invoke this inside a unitofwork.UnitOfWork-scoped
// transaction so the whole aggregate commits atomically.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, job_number, customer, part_number, quantity, priority, status,
			due_date, planned_start, planned_end, actual_start, actual_end, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		job.ID, job.JobNumber, job.Customer, job.PartNumber, job.Quantity, job.Priority, job.Status,
		job.DueDate, job.PlannedStart, job.PlannedEnd, job.ActualStart, job.ActualEnd,
		job.CreatedBy, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "insert job", err)
	}

	for _, task := range job.Tasks {
		if err := r.insertTask(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

func (r *JobRepository) insertTask(ctx context.Context, task *domain.Task) error {
	reqJSON, err := marshalSkillRequirements(task.SkillRequirements)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "marshal skill requirements", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tasks (id, job_id, operation_id, sequence_in_job, planned_duration_minutes,
			setup_duration_minutes, status, assigned_machine_id, is_critical_path, rework_count,
			planned_start, planned_end, scheduled_start, scheduled_end, actual_start, actual_end,
			skill_requirements)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		task.ID, task.JobID, task.OperationID, task.SequenceInJob, task.PlannedDurationMinutes,
		task.SetupDurationMinutes, task.Status, task.AssignedMachineID, task.IsCriticalPath, task.ReworkCount,
		task.PlannedStart, task.PlannedEnd, task.ScheduledStart, task.ScheduledEnd, task.ActualStart, task.ActualEnd,
		reqJSON,
	)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "insert task", err)
	}

	for _, a := range task.OperatorAssignments {
		if err := r.insertOperatorAssignment(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (r *JobRepository) insertOperatorAssignment(ctx context.Context, a domain.OperatorAssignment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO operator_assignments (task_id, operator_id, assignment_type, planned_start, planned_end, actual_start, actual_end)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, a.TaskID, a.OperatorID, a.AssignmentType, a.PlannedStart, a.PlannedEnd, a.ActualStart, a.ActualEnd)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "insert operator assignment", err)
	}
	return nil
}

// Update replaces job's scalar columns and re-synchronizes its Tasks by
// deleting and re-inserting them, the simplest correct strategy given
// tasks have no independent lifecycle outside their owning Job.
func (r *JobRepository) Update(ctx context.Context, job *domain.Job) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET customer=$2, part_number=$3, quantity=$4, priority=$5, status=$6,
			due_date=$7, planned_start=$8, planned_end=$9, actual_start=$10, actual_end=$11, updated_at=$12
		WHERE id = $1
	`, job.ID, job.Customer, job.PartNumber, job.Quantity, job.Priority, job.Status,
		job.DueDate, job.PlannedStart, job.PlannedEnd, job.ActualStart, job.ActualEnd, job.UpdatedAt)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "update job", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return infraerrors.New(infraerrors.KindEntityNotFound, "job not found")
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM operator_assignments WHERE task_id IN (SELECT id FROM tasks WHERE job_id = $1)`, job.ID); err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "clear operator assignments", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE job_id = $1`, job.ID); err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "clear tasks", err)
	}
	for _, task := range job.Tasks {
		if err := r.insertTask(ctx, task); err != nil {
			return err
		}
	}
	return nil
}
