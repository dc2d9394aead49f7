package postgres

import "github.com/northcloud/vulcan-scheduler/internal/repository"

// NewRepositories bundles PostgreSQL-backed repositories over conn into a
// repository.Repositories, mirroring memstore.NewRepositories so
// cmd/schedulerd can select a backend without touching the rest of the
// wiring.
func NewRepositories(conn *Connection) repository.Repositories {
	return repository.Repositories{
		Jobs:      NewJobRepository(conn),
		Machines:  NewMachineRepository(conn),
		Operators: NewOperatorRepository(conn),
		Schedules: NewScheduleRepository(conn),
	}
}
