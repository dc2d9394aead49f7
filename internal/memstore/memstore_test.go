package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/northcloud/vulcan-scheduler/internal/domain"
	"github.com/northcloud/vulcan-scheduler/internal/infraerrors"
	"github.com/northcloud/vulcan-scheduler/internal/memstore"
)

func TestJobStoreCreateAndGetByID(t *testing.T) {
	t.Parallel()

	store := memstore.NewJobStore()
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	job, err := domain.NewJob("J-1", "Acme", "P-1", 1, domain.PriorityNormal, now.Add(24*time.Hour), "alice", now)
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}

	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.JobNumber != "J-1" {
		t.Errorf("GetByID().JobNumber = %s, want J-1", got.JobNumber)
	}
}

func TestJobStoreGetByIDNotFound(t *testing.T) {
	t.Parallel()

	store := memstore.NewJobStore()
	_, err := store.GetByID(context.Background(), domain.NewID())
	if infraerrors.KindOf(err) != infraerrors.KindEntityNotFound {
		t.Errorf("KindOf() = %v, want KindEntityNotFound", infraerrors.KindOf(err))
	}
}

func TestJobStoreListActiveExcludesTerminal(t *testing.T) {
	t.Parallel()

	store := memstore.NewJobStore()
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	active, _ := domain.NewJob("J-1", "Acme", "P-1", 1, domain.PriorityNormal, now.Add(24*time.Hour), "alice", now)
	cancelled, _ := domain.NewJob("J-2", "Acme", "P-2", 1, domain.PriorityNormal, now.Add(24*time.Hour), "alice", now)
	_ = cancelled.Transition(domain.JobCancelled, now)

	_ = store.Create(context.Background(), active)
	_ = store.Create(context.Background(), cancelled)

	got, err := store.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != active.ID {
		t.Errorf("ListActive() = %+v, want only the active job", got)
	}
}

func TestMachineStoreListAvailable(t *testing.T) {
	t.Parallel()

	store := memstore.NewMachineStore()
	available := &domain.Machine{ID: domain.NewID(), Status: domain.MachineAvailable}
	offline := &domain.Machine{ID: domain.NewID(), Status: domain.MachineOffline}

	_ = store.Create(context.Background(), available)
	_ = store.Create(context.Background(), offline)

	got, err := store.ListAvailable(context.Background())
	if err != nil {
		t.Fatalf("ListAvailable() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != available.ID {
		t.Errorf("ListAvailable() = %+v, want only the available machine", got)
	}
}

func TestNewRepositoriesBundlesAllStores(t *testing.T) {
	t.Parallel()

	repos := memstore.NewRepositories()
	if repos.Jobs == nil || repos.Machines == nil || repos.Operators == nil || repos.Schedules == nil {
		t.Error("expected NewRepositories to populate all four repositories")
	}
}
