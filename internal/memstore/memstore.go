// Package memstore provides in-memory repository implementations used by
// tests and by the unit of work's default (non-Postgres) backend.
package memstore

import (
	"context"
	"sync"

	"github.com/northcloud/vulcan-scheduler/internal/domain"
	"github.com/northcloud/vulcan-scheduler/internal/infraerrors"
	"github.com/northcloud/vulcan-scheduler/internal/repository"
)

// JobStore is an in-memory repository.JobRepository.
type JobStore struct {
	mu   sync.RWMutex
	byID map[domain.ID]*domain.Job
}

// NewJobStore constructs an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{byID: make(map[domain.ID]*domain.Job)}
}

func (s *JobStore) GetByID(ctx context.Context, id domain.ID) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.byID[id]
	if !ok {
		return nil, infraerrors.New(infraerrors.KindEntityNotFound, "job not found")
	}
	return j, nil
}

func (s *JobStore) GetByJobNumber(ctx context.Context, jobNumber string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.byID {
		if j.JobNumber == jobNumber {
			return j, nil
		}
	}
	return nil, infraerrors.New(infraerrors.KindEntityNotFound, "job not found")
}

func (s *JobStore) ListActive(ctx context.Context) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Job, 0, len(s.byID))
	for _, j := range s.byID {
		if !domain.IsJobTerminal(j.Status) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *JobStore) Create(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[job.ID]; exists {
		return infraerrors.New(infraerrors.KindValidation, "job already exists")
	}
	s.byID[job.ID] = job
	return nil
}

func (s *JobStore) Update(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[job.ID]; !exists {
		return infraerrors.New(infraerrors.KindEntityNotFound, "job not found")
	}
	s.byID[job.ID] = job
	return nil
}

// MachineStore is an in-memory repository.MachineRepository.
type MachineStore struct {
	mu   sync.RWMutex
	byID map[domain.ID]*domain.Machine
}

func NewMachineStore() *MachineStore {
	return &MachineStore{byID: make(map[domain.ID]*domain.Machine)}
}

func (s *MachineStore) GetByID(ctx context.Context, id domain.ID) (*domain.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, infraerrors.New(infraerrors.KindEntityNotFound, "machine not found")
	}
	return m, nil
}

func (s *MachineStore) ListAvailable(ctx context.Context) ([]*domain.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Machine, 0, len(s.byID))
	for _, m := range s.byID {
		if m.IsAvailable() {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MachineStore) Create(ctx context.Context, m *domain.Machine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[m.ID] = m
	return nil
}

func (s *MachineStore) Update(ctx context.Context, m *domain.Machine) error {
	return s.Create(ctx, m)
}

// OperatorStore is an in-memory repository.OperatorRepository.
type OperatorStore struct {
	mu   sync.RWMutex
	byID map[domain.ID]*domain.Operator
}

func NewOperatorStore() *OperatorStore {
	return &OperatorStore{byID: make(map[domain.ID]*domain.Operator)}
}

func (s *OperatorStore) GetByID(ctx context.Context, id domain.ID) (*domain.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[id]
	if !ok {
		return nil, infraerrors.New(infraerrors.KindEntityNotFound, "operator not found")
	}
	return o, nil
}

func (s *OperatorStore) ListAvailable(ctx context.Context) ([]*domain.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Operator, 0, len(s.byID))
	for _, o := range s.byID {
		if o.IsAvailable() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *OperatorStore) Create(ctx context.Context, o *domain.Operator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[o.ID] = o
	return nil
}

func (s *OperatorStore) Update(ctx context.Context, o *domain.Operator) error {
	return s.Create(ctx, o)
}

// ScheduleStore is an in-memory repository.ScheduleRepository.
type ScheduleStore struct {
	mu   sync.RWMutex
	byID map[domain.ID]*domain.Schedule
}

func NewScheduleStore() *ScheduleStore {
	return &ScheduleStore{byID: make(map[domain.ID]*domain.Schedule)}
}

func (s *ScheduleStore) GetByID(ctx context.Context, id domain.ID) (*domain.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.byID[id]
	if !ok {
		return nil, infraerrors.New(infraerrors.KindEntityNotFound, "schedule not found")
	}
	return sched, nil
}

func (s *ScheduleStore) Create(ctx context.Context, sched *domain.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[sched.ID] = sched
	return nil
}

func (s *ScheduleStore) Update(ctx context.Context, sched *domain.Schedule) error {
	return s.Create(ctx, sched)
}

// NewRepositories bundles fresh in-memory stores into a repository.Repositories.
func NewRepositories() repository.Repositories {
	return repository.Repositories{
		Jobs:      NewJobStore(),
		Machines:  NewMachineStore(),
		Operators: NewOperatorStore(),
		Schedules: NewScheduleStore(),
	}
}
