// Package repository defines the storage-agnostic capability set needed
// by the optimization service and unit of work: one interface per
// aggregate/resource, independent of any concrete database (spec.md §9,
// design note: "keep persistence engine-agnostic").
package repository

import (
	"context"

	"github.com/northcloud/vulcan-scheduler/internal/domain"
)

// JobRepository persists Job aggregates (and their owned Tasks).
type JobRepository interface {
	GetByID(ctx context.Context, id domain.ID) (*domain.Job, error)
	GetByJobNumber(ctx context.Context, jobNumber string) (*domain.Job, error)
	ListActive(ctx context.Context) ([]*domain.Job, error)
	Create(ctx context.Context, job *domain.Job) error
	Update(ctx context.Context, job *domain.Job) error
}

// MachineRepository persists Machine resources.
type MachineRepository interface {
	GetByID(ctx context.Context, id domain.ID) (*domain.Machine, error)
	ListAvailable(ctx context.Context) ([]*domain.Machine, error)
	Create(ctx context.Context, m *domain.Machine) error
	Update(ctx context.Context, m *domain.Machine) error
}

// OperatorRepository persists Operator resources.
type OperatorRepository interface {
	GetByID(ctx context.Context, id domain.ID) (*domain.Operator, error)
	ListAvailable(ctx context.Context) ([]*domain.Operator, error)
	Create(ctx context.Context, o *domain.Operator) error
	Update(ctx context.Context, o *domain.Operator) error
}

// ScheduleRepository persists Schedule aggregates.
type ScheduleRepository interface {
	GetByID(ctx context.Context, id domain.ID) (*domain.Schedule, error)
	Create(ctx context.Context, s *domain.Schedule) error
	Update(ctx context.Context, s *domain.Schedule) error
}

// Repositories bundles every repository the unit of work and
// optimization service need, so callers can pass one value instead of
// four.
type Repositories struct {
	Jobs      JobRepository
	Machines  MachineRepository
	Operators OperatorRepository
	Schedules ScheduleRepository
}
