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

// ScheduleRepository is a repository.ScheduleRepository backed by
// PostgreSQL. `schedule_assignments` is a genuine logical table (spec.md
// §6); job_ids, constraint_violations, and metrics are small enough to
// round-trip as JSON columns on `schedules` rather than their own tables,
// the same tradeoff pipeline/internal/database makes for PipelineEvent
// metadata.
type ScheduleRepository struct {
	db sqlx.ExtContext
}

// NewScheduleRepository constructs a ScheduleRepository over conn.
func NewScheduleRepository(conn *Connection) *ScheduleRepository {
	return &ScheduleRepository{db: conn.DB}
}

type scheduleRow struct {
	ID                   domain.ID    `db:"id"`
	Name                 string       `db:"name"`
	Description          string       `db:"description"`
	StartDate            sql.NullTime `db:"start_date"`
	EndDate              sql.NullTime `db:"end_date"`
	Status               string       `db:"status"`
	JobIDsJSON           []byte       `db:"job_ids"`
	ConstraintViolations []byte       `db:"constraint_violations"`
	MetricsJSON          []byte       `db:"metrics"`
	CreatedAt            sql.NullTime `db:"created_at"`
	UpdatedAt            sql.NullTime `db:"updated_at"`
}

// scheduleAssignmentRow mirrors the schedule_assignments table. Indexed
// on (machine_id, start_time, end_time) to support the resource-exclusivity
// property check.
type scheduleAssignmentRow struct {
	ScheduleID            domain.ID `db:"schedule_id"`
	TaskID                domain.ID `db:"task_id"`
	MachineID             domain.ID `db:"machine_id"`
	OperatorIDsJSON       []byte    `db:"operator_ids"`
	StartTime             sql.NullTime `db:"start_time"`
	EndTime               sql.NullTime `db:"end_time"`
	SetupDurationMinutes  float64   `db:"setup_duration_minutes"`
	ProcessingDurationMin float64   `db:"processing_duration_minutes"`
}

func (r *ScheduleRepository) loadAssignments(ctx context.Context, scheduleID domain.ID) (map[domain.ID]domain.ScheduleAssignment, error) {
	var rows []scheduleAssignmentRow
	query := `SELECT * FROM schedule_assignments WHERE schedule_id = $1`
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, scheduleID); err != nil {
		return nil, infraerrors.Wrap(infraerrors.KindDatabaseError, "list schedule assignments", err)
	}

	out := make(map[domain.ID]domain.ScheduleAssignment, len(rows))
	for _, row := range rows {
		var opIDs []domain.ID
		if len(row.OperatorIDsJSON) > 0 {
			if err := json.Unmarshal(row.OperatorIDsJSON, &opIDs); err != nil {
				return nil, infraerrors.Wrap(infraerrors.KindDatabaseError, "unmarshal operator_ids", err)
			}
		}
		out[row.TaskID] = domain.ScheduleAssignment{
			TaskID:                row.TaskID,
			MachineID:             row.MachineID,
			OperatorIDs:           opIDs,
			StartTime:             row.StartTime.Time,
			EndTime:               row.EndTime.Time,
			SetupDurationMin:      row.SetupDurationMinutes,
			ProcessingDurationMin: row.ProcessingDurationMin,
		}
	}
	return out, nil
}

func scheduleFromRow(row scheduleRow) (*domain.Schedule, error) {
	var jobIDs []domain.ID
	if len(row.JobIDsJSON) > 0 {
		if err := json.Unmarshal(row.JobIDsJSON, &jobIDs); err != nil {
			return nil, fmt.Errorf("unmarshal job_ids: %w", err)
		}
	}

	var violations []domain.ConstraintViolation
	if len(row.ConstraintViolations) > 0 {
		if err := json.Unmarshal(row.ConstraintViolations, &violations); err != nil {
			return nil, fmt.Errorf("unmarshal constraint_violations: %w", err)
		}
	}

	var metrics domain.ScheduleMetrics
	if len(row.MetricsJSON) > 0 {
		if err := json.Unmarshal(row.MetricsJSON, &metrics); err != nil {
			return nil, fmt.Errorf("unmarshal metrics: %w", err)
		}
	}

	return &domain.Schedule{
		ID:                   row.ID,
		Name:                 row.Name,
		Description:          row.Description,
		StartDate:            row.StartDate.Time,
		EndDate:              row.EndDate.Time,
		JobIDs:               jobIDs,
		Status:               domain.ScheduleStatus(row.Status),
		ConstraintViolations: violations,
		Metrics:              metrics,
		CreatedAt:            row.CreatedAt.Time,
		UpdatedAt:            row.UpdatedAt.Time,
	}, nil
}

// GetByID loads a Schedule and its ScheduleAssignments.
func (r *ScheduleRepository) GetByID(ctx context.Context, id domain.ID) (*domain.Schedule, error) {
	var row scheduleRow
	err := sqlx.GetContext(ctx, r.db, &row, `SELECT * FROM schedules WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, infraerrors.New(infraerrors.KindEntityNotFound, "schedule not found")
	}
	if err != nil {
		return nil, infraerrors.Wrap(infraerrors.KindDatabaseError, "get schedule", err)
	}

	schedule, err := scheduleFromRow(row)
	if err != nil {
		return nil, infraerrors.Wrap(infraerrors.KindDatabaseError, "decode schedule", err)
	}

	assignments, err := r.loadAssignments(ctx, id)
	if err != nil {
		return nil, err
	}
	schedule.Assignments = assignments
	return schedule, nil
}

// Create inserts a Schedule and every ScheduleAssignment it owns.
func (r *ScheduleRepository) Create(ctx context.Context, s *domain.Schedule) error {
	jobIDs, err := json.Marshal(s.JobIDs)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "marshal job_ids", err)
	}
	violations, err := json.Marshal(s.ConstraintViolations)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "marshal constraint_violations", err)
	}
	metrics, err := json.Marshal(s.Metrics)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "marshal metrics", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO schedules (id, name, description, start_date, end_date, status, job_ids,
			constraint_violations, metrics, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, s.ID, s.Name, s.Description, s.StartDate, s.EndDate, s.Status, jobIDs, violations, metrics, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "insert schedule", err)
	}

	for _, a := range s.Assignments {
		if err := r.insertAssignment(ctx, s.ID, a); err != nil {
			return err
		}
	}
	return nil
}

func (r *ScheduleRepository) insertAssignment(ctx context.Context, scheduleID domain.ID, a domain.ScheduleAssignment) error {
	opIDs, err := json.Marshal(a.OperatorIDs)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "marshal operator_ids", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO schedule_assignments (schedule_id, task_id, machine_id, operator_ids,
			start_time, end_time, setup_duration_minutes, processing_duration_minutes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, scheduleID, a.TaskID, a.MachineID, opIDs, a.StartTime, a.EndTime, a.SetupDurationMin, a.ProcessingDurationMin)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "insert schedule assignment", err)
	}
	return nil
}

// Update replaces a Schedule's scalar columns and re-synchronizes its
// ScheduleAssignments.
func (r *ScheduleRepository) Update(ctx context.Context, s *domain.Schedule) error {
	jobIDs, err := json.Marshal(s.JobIDs)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "marshal job_ids", err)
	}
	violations, err := json.Marshal(s.ConstraintViolations)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "marshal constraint_violations", err)
	}
	metrics, err := json.Marshal(s.Metrics)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "marshal metrics", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE schedules SET name=$2, description=$3, start_date=$4, end_date=$5, status=$6,
			job_ids=$7, constraint_violations=$8, metrics=$9, updated_at=$10
		WHERE id = $1
	`, s.ID, s.Name, s.Description, s.StartDate, s.EndDate, s.Status, jobIDs, violations, metrics, s.UpdatedAt)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "update schedule", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return infraerrors.New(infraerrors.KindEntityNotFound, "schedule not found")
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM schedule_assignments WHERE schedule_id = $1`, s.ID); err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "clear schedule assignments", err)
	}
	for _, a := range s.Assignments {
		if err := r.insertAssignment(ctx, s.ID, a); err != nil {
			return err
		}
	}
	return nil
}
