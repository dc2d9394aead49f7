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

// MachineRepository is a repository.MachineRepository backed by
// PostgreSQL (logical table `machines`, with capabilities as a JSON column
// on it and per-operation skill requirements held in
// `machine_skill_requirements`).
type MachineRepository struct {
	db sqlx.ExtContext
}

// NewMachineRepository constructs a MachineRepository over conn.
func NewMachineRepository(conn *Connection) *MachineRepository {
	return &MachineRepository{db: conn.DB}
}

type machineRow struct {
	ID              domain.ID `db:"id"`
	MachineCode     string    `db:"machine_code"`
	Name            string    `db:"name"`
	AutomationLevel string    `db:"automation_level"`
	Status          string    `db:"status"`
	Zone            string    `db:"zone"`
	Capabilities    []byte    `db:"capabilities"`
}

type machineSkillRequirementRow struct {
	MachineID   domain.ID `db:"machine_id"`
	OperationID string    `db:"operation_id"`
	Requirement []byte    `db:"requirement"`
}

func machineFromRow(row machineRow) (*domain.Machine, error) {
	var caps []string
	if len(row.Capabilities) > 0 {
		if err := json.Unmarshal(row.Capabilities, &caps); err != nil {
			return nil, fmt.Errorf("unmarshal capabilities: %w", err)
		}
	}
	return &domain.Machine{
		ID:              row.ID,
		MachineCode:     row.MachineCode,
		Name:            row.Name,
		AutomationLevel: row.AutomationLevel,
		Status:          domain.MachineStatus(row.Status),
		Zone:            row.Zone,
		Capabilities:    caps,
	}, nil
}

// GetByID loads a Machine including its capabilities and per-operation
// skill requirements.
func (r *MachineRepository) GetByID(ctx context.Context, id domain.ID) (*domain.Machine, error) {
	var row machineRow
	err := sqlx.GetContext(ctx, r.db, &row, `SELECT * FROM machines WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, infraerrors.New(infraerrors.KindEntityNotFound, "machine not found")
	}
	if err != nil {
		return nil, infraerrors.Wrap(infraerrors.KindDatabaseError, "get machine", err)
	}

	machine, err := machineFromRow(row)
	if err != nil {
		return nil, infraerrors.Wrap(infraerrors.KindDatabaseError, "decode machine", err)
	}

	reqs, err := r.loadSkillRequirements(ctx, id)
	if err != nil {
		return nil, err
	}
	machine.SkillRequirements = reqs
	return machine, nil
}

func (r *MachineRepository) loadSkillRequirements(ctx context.Context, machineID domain.ID) (map[string][]domain.SkillRequirement, error) {
	var rows []machineSkillRequirementRow
	query := `SELECT * FROM machine_skill_requirements WHERE machine_id = $1`
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, machineID); err != nil {
		return nil, infraerrors.Wrap(infraerrors.KindDatabaseError, "list machine skill requirements", err)
	}

	out := make(map[string][]domain.SkillRequirement)
	for _, row := range rows {
		reqs, err := unmarshalSkillRequirements(row.Requirement)
		if err != nil {
			return nil, infraerrors.Wrap(infraerrors.KindDatabaseError, "decode machine skill requirement", err)
		}
		out[row.OperationID] = append(out[row.OperationID], reqs...)
	}
	return out, nil
}

// ListAvailable returns every Machine in AVAILABLE status.
func (r *MachineRepository) ListAvailable(ctx context.Context) ([]*domain.Machine, error) {
	var rows []machineRow
	query := `SELECT * FROM machines WHERE status = $1`
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, domain.MachineAvailable); err != nil {
		return nil, infraerrors.Wrap(infraerrors.KindDatabaseError, "list available machines", err)
	}

	machines := make([]*domain.Machine, 0, len(rows))
	for _, row := range rows {
		m, err := machineFromRow(row)
		if err != nil {
			return nil, infraerrors.Wrap(infraerrors.KindDatabaseError, "decode machine", err)
		}
		reqs, err := r.loadSkillRequirements(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		m.SkillRequirements = reqs
		machines = append(machines, m)
	}
	return machines, nil
}

// Create inserts a Machine and its capabilities/skill requirements.
func (r *MachineRepository) Create(ctx context.Context, m *domain.Machine) error {
	caps, err := json.Marshal(m.Capabilities)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "marshal capabilities", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO machines (id, machine_code, name, automation_level, status, zone, capabilities)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, m.ID, m.MachineCode, m.Name, m.AutomationLevel, m.Status, m.Zone, caps)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "insert machine", err)
	}

	for operationID, reqs := range m.SkillRequirements {
		reqJSON, err := marshalSkillRequirements(reqs)
		if err != nil {
			return infraerrors.Wrap(infraerrors.KindDatabaseError, "marshal machine skill requirement", err)
		}
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO machine_skill_requirements (machine_id, operation_id, requirement)
			VALUES ($1,$2,$3)
		`, m.ID, operationID, reqJSON)
		if err != nil {
			return infraerrors.Wrap(infraerrors.KindDatabaseError, "insert machine skill requirement", err)
		}
	}
	return nil
}

// Update replaces a Machine's scalar columns and capabilities.
func (r *MachineRepository) Update(ctx context.Context, m *domain.Machine) error {
	caps, err := json.Marshal(m.Capabilities)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "marshal capabilities", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE machines SET name=$2, automation_level=$3, status=$4, zone=$5, capabilities=$6
		WHERE id = $1
	`, m.ID, m.Name, m.AutomationLevel, m.Status, m.Zone, caps)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "update machine", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return infraerrors.New(infraerrors.KindEntityNotFound, "machine not found")
	}
	return nil
}

// OperatorRepository is a repository.OperatorRepository backed by
// PostgreSQL (logical tables `operators` and `operator_skills`, per
// spec.md §6).
type OperatorRepository struct {
	db sqlx.ExtContext
}

// NewOperatorRepository constructs an OperatorRepository over conn.
func NewOperatorRepository(conn *Connection) *OperatorRepository {
	return &OperatorRepository{db: conn.DB}
}

type operatorRow struct {
	ID         domain.ID `db:"id"`
	EmployeeID string    `db:"employee_id"`
	Name       string    `db:"name"`
	Status     string    `db:"status"`
	Zone       string    `db:"zone"`
}

type skillRow struct {
	OperatorID       domain.ID `db:"operator_id"`
	SkillType        string    `db:"skill_type"`
	Level            int       `db:"level"`
	YearsExperience  int       `db:"years_experience"`
	Certifications   []byte    `db:"certifications"`
}

func (r *OperatorRepository) loadSkills(ctx context.Context, operatorID domain.ID) ([]domain.Skill, error) {
	var rows []skillRow
	query := `SELECT * FROM operator_skills WHERE operator_id = $1`
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, operatorID); err != nil {
		return nil, infraerrors.Wrap(infraerrors.KindDatabaseError, "list operator skills", err)
	}

	skills := make([]domain.Skill, 0, len(rows))
	for _, row := range rows {
		var certs []string
		if len(row.Certifications) > 0 {
			if err := json.Unmarshal(row.Certifications, &certs); err != nil {
				return nil, infraerrors.Wrap(infraerrors.KindDatabaseError, "unmarshal certifications", err)
			}
		}
		skill, err := domain.NewSkill(row.SkillType, row.Level, row.YearsExperience, certs)
		if err != nil {
			return nil, infraerrors.Wrap(infraerrors.KindDatabaseError, "rebuild skill", err)
		}
		skills = append(skills, skill)
	}
	return skills, nil
}

// GetByID loads an Operator and its Skills.
func (r *OperatorRepository) GetByID(ctx context.Context, id domain.ID) (*domain.Operator, error) {
	var row operatorRow
	err := sqlx.GetContext(ctx, r.db, &row, `SELECT * FROM operators WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, infraerrors.New(infraerrors.KindEntityNotFound, "operator not found")
	}
	if err != nil {
		return nil, infraerrors.Wrap(infraerrors.KindDatabaseError, "get operator", err)
	}

	skills, err := r.loadSkills(ctx, id)
	if err != nil {
		return nil, err
	}

	return &domain.Operator{
		ID:         row.ID,
		EmployeeID: row.EmployeeID,
		Name:       row.Name,
		Status:     domain.OperatorStatus(row.Status),
		Zone:       row.Zone,
		Skills:     skills,
	}, nil
}

// ListAvailable returns every Operator in AVAILABLE status.
func (r *OperatorRepository) ListAvailable(ctx context.Context) ([]*domain.Operator, error) {
	var rows []operatorRow
	query := `SELECT * FROM operators WHERE status = $1`
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, domain.OperatorAvailable); err != nil {
		return nil, infraerrors.Wrap(infraerrors.KindDatabaseError, "list available operators", err)
	}

	operators := make([]*domain.Operator, 0, len(rows))
	for _, row := range rows {
		skills, err := r.loadSkills(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		operators = append(operators, &domain.Operator{
			ID:         row.ID,
			EmployeeID: row.EmployeeID,
			Name:       row.Name,
			Status:     domain.OperatorStatus(row.Status),
			Zone:       row.Zone,
			Skills:     skills,
		})
	}
	return operators, nil
}

// Create inserts an Operator and its Skills.
func (r *OperatorRepository) Create(ctx context.Context, o *domain.Operator) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO operators (id, employee_id, name, status, zone)
		VALUES ($1,$2,$3,$4,$5)
	`, o.ID, o.EmployeeID, o.Name, o.Status, o.Zone)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "insert operator", err)
	}

	for _, s := range o.Skills {
		certs, err := json.Marshal(s.Certifications())
		if err != nil {
			return infraerrors.Wrap(infraerrors.KindDatabaseError, "marshal certifications", err)
		}
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO operator_skills (operator_id, skill_type, level, years_experience, certifications)
			VALUES ($1,$2,$3,$4,$5)
		`, o.ID, s.SkillType(), s.Level(), s.YearsExperience(), certs)
		if err != nil {
			return infraerrors.Wrap(infraerrors.KindDatabaseError, "insert operator skill", err)
		}
	}
	return nil
}

// Update replaces an Operator's scalar columns and re-synchronizes Skills.
func (r *OperatorRepository) Update(ctx context.Context, o *domain.Operator) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE operators SET employee_id=$2, name=$3, status=$4, zone=$5 WHERE id = $1
	`, o.ID, o.EmployeeID, o.Name, o.Status, o.Zone)
	if err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "update operator", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return infraerrors.New(infraerrors.KindEntityNotFound, "operator not found")
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM operator_skills WHERE operator_id = $1`, o.ID); err != nil {
		return infraerrors.Wrap(infraerrors.KindDatabaseError, "clear operator skills", err)
	}
	for _, s := range o.Skills {
		certs, err := json.Marshal(s.Certifications())
		if err != nil {
			return infraerrors.Wrap(infraerrors.KindDatabaseError, "marshal certifications", err)
		}
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO operator_skills (operator_id, skill_type, level, years_experience, certifications)
			VALUES ($1,$2,$3,$4,$5)
		`, o.ID, s.SkillType(), s.Level(), s.YearsExperience(), certs)
		if err != nil {
			return infraerrors.Wrap(infraerrors.KindDatabaseError, "insert operator skill", err)
		}
	}
	return nil
}
