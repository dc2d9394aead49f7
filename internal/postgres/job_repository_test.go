package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/northcloud/vulcan-scheduler/internal/domain"
	"github.com/northcloud/vulcan-scheduler/internal/postgres"
)

func newMockConnection(t *testing.T) (*postgres.Connection, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sqlxDB := sqlx.NewDb(db, "postgres")
	return &postgres.Connection{DB: sqlxDB}, mock
}

func TestJobRepositoryGetByIDNotFound(t *testing.T) {
	t.Parallel()

	conn, mock := newMockConnection(t)
	repo := postgres.NewJobRepository(conn)

	id := domain.NewID()
	mock.ExpectQuery("SELECT \\* FROM jobs WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := repo.GetByID(context.Background(), id)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepositoryCreateInsertsJobAndTasks(t *testing.T) {
	t.Parallel()

	conn, mock := newMockConnection(t)
	repo := postgres.NewJobRepository(conn)

	now := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	due := now.Add(48 * time.Hour)

	job, err := domain.NewJob("J-1", "Acme", "P-1", 1, domain.PriorityNormal, due, "alice", now)
	require.NoError(t, err)

	task, err := domain.NewTask(job.ID, "OP-10", 10, 60, 10)
	require.NoError(t, err)
	require.NoError(t, job.AddTask(task))

	mock.ExpectExec("INSERT INTO jobs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO tasks").WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Create(context.Background(), job)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepositoryUpdateNotFound(t *testing.T) {
	t.Parallel()

	conn, mock := newMockConnection(t)
	repo := postgres.NewJobRepository(conn)

	now := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	due := now.Add(48 * time.Hour)
	job, err := domain.NewJob("J-1", "Acme", "P-1", 1, domain.PriorityNormal, due, "alice", now)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE jobs SET").WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.Update(context.Background(), job)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
