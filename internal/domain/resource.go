package domain

import "github.com/northcloud/vulcan-scheduler/internal/infraerrors"

// MachineStatus is Machine's availability state (spec.md §3).
type MachineStatus string

const (
	MachineAvailable   MachineStatus = "AVAILABLE"
	MachineBusy        MachineStatus = "BUSY"
	MachineMaintenance MachineStatus = "MAINTENANCE"
	MachineOffline     MachineStatus = "OFFLINE"
)

// Machine is a schedulable production resource (spec.md §3).
type Machine struct {
	ID              ID            `db:"id"               json:"id"`
	MachineCode     string        `db:"machine_code"     json:"machine_code"`
	Name            string        `db:"name"             json:"name"`
	AutomationLevel string        `db:"automation_level" json:"automation_level"`
	Status          MachineStatus `db:"status"            json:"status"`
	Zone            string        `db:"zone"              json:"zone"`
	Capabilities    []string      `db:"-"                 json:"capabilities,omitempty"`
	// SkillRequirements maps operation_id to the skill requirements needed
	// to operate this machine for that operation.
	SkillRequirements map[string][]SkillRequirement `db:"-" json:"-"`
}

// IsAvailable reports whether the machine can be assigned new work.
func (m Machine) IsAvailable() bool {
	return m.Status == MachineAvailable
}

// HasCapability reports whether the machine can perform operationID.
func (m Machine) HasCapability(operationID string) bool {
	for _, c := range m.Capabilities {
		if c == operationID {
			return true
		}
	}
	return false
}

// OperatorStatus is Operator's availability state (spec.md §3).
type OperatorStatus string

const (
	OperatorAvailable OperatorStatus = "AVAILABLE"
	OperatorAssigned  OperatorStatus = "ASSIGNED"
	OperatorAbsent    OperatorStatus = "ABSENT"
	OperatorOnBreak   OperatorStatus = "ON_BREAK"
)

// Operator is a schedulable person with a set of Skills (spec.md §3).
type Operator struct {
	ID         ID             `db:"id"          json:"id"`
	EmployeeID string         `db:"employee_id" json:"employee_id"`
	Name       string         `db:"name"        json:"name"`
	Status     OperatorStatus `db:"status"      json:"status"`
	Zone       string         `db:"zone"        json:"zone"`
	Skills     []Skill        `db:"-"           json:"skills,omitempty"`
}

// IsAvailable reports whether the operator can be assigned new work.
func (o Operator) IsAvailable() bool {
	return o.Status == OperatorAvailable
}

// BestMatch returns the Skill that best satisfies req, and its match score.
// Returns (Skill{}, 0, false) if no skill satisfies req.
func (o Operator) BestMatch(req SkillRequirement) (Skill, float64, bool) {
	var (
		best      Skill
		bestScore float64
		found     bool
	)
	for _, s := range o.Skills {
		if !req.IsSatisfiedBy(s) {
			continue
		}
		score := req.MatchScore(s)
		if !found || score > bestScore {
			best, bestScore, found = s, score, true
		}
	}
	return best, bestScore, found
}

// SatisfiesRequirement reports whether any of the operator's skills satisfy req.
func (o Operator) SatisfiesRequirement(req SkillRequirement) bool {
	_, _, ok := o.BestMatch(req)
	return ok
}

// ValidateResourceStatus is a small guard used by repositories constructing
// Machine/Operator from storage: rejects unknown status strings rather than
// silently accepting garbage data (spec.md §7, validation errors).
func ValidateResourceStatus[T ~string](status T, valid ...T) error {
	for _, v := range valid {
		if status == v {
			return nil
		}
	}
	return infraerrors.New(infraerrors.KindValidation, "invalid status value")
}
