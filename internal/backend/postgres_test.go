package backend

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cuongbtq/async-task-api/internal/task"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rowColumns = []string{
	"task_id", "task_name", "args", "status", "result", "error_message",
	"progress_done", "progress_total", "worker_id",
	"created_at", "started_at", "completed_at", "expires_at",
}

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, time.Time) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	now := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	s := NewPostgresStore(sqlx.NewDb(db, "postgres"))
	s.now = func() time.Time { return now }
	return s, mock, now
}

func pendingRow(id string, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(rowColumns).AddRow(
		id, "long_running_task", []byte(`{"name":"build","duration":2}`), "pending", nil, nil,
		0, 0, nil,
		now, nil, nil, now.Add(time.Hour),
	)
}

func TestPostgresStore_Create(t *testing.T) {
	s, mock, now := newMockPostgresStore(t)
	rec := task.NewRecord("8a1d4a37-0c55-4a4e-9a53-6c1f3f2b9a10", task.NameSendEmail, nil, now, time.Hour)

	mock.ExpectExec("INSERT INTO task_results").
		WithArgs(rec.ID, "send_email", []byte("{}"), "pending", rec.CreatedAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Create(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateError(t *testing.T) {
	s, mock, now := newMockPostgresStore(t)
	rec := task.NewRecord("id", task.NameSendEmail, nil, now, 0)

	mock.ExpectExec("INSERT INTO task_results").WillReturnError(errors.New("duplicate key"))

	err := s.Create(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create task result")
}

func TestPostgresStore_Get(t *testing.T) {
	s, mock, now := newMockPostgresStore(t)
	id := "8a1d4a37-0c55-4a4e-9a53-6c1f3f2b9a10"

	mock.ExpectQuery("FROM task_results").
		WithArgs(id, now).
		WillReturnRows(pendingRow(id, now))

	rec, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, task.NameLongRunningTask, rec.Name)
	assert.Equal(t, task.StatusPending, rec.Status)
	assert.JSONEq(t, `{"name":"build","duration":2}`, string(rec.Args))
	assert.Nil(t, rec.StartedAt)
	assert.Equal(t, now.Add(time.Hour), rec.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	s, mock, _ := newMockPostgresStore(t)

	mock.ExpectQuery("FROM task_results").WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, task.ErrNotFound)
}

func TestPostgresStore_Update(t *testing.T) {
	s, mock, now := newMockPostgresStore(t)
	id := "8a1d4a37-0c55-4a4e-9a53-6c1f3f2b9a10"

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(id, now).
		WillReturnRows(pendingRow(id, now))
	mock.ExpectExec("UPDATE task_results").
		WithArgs("started", sqlmock.AnyArg(), sqlmock.AnyArg(), 0, 0, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.Update(context.Background(), id, func(r *task.Record) error { return r.Start("worker-1", now) })
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateTerminalRollsBack(t *testing.T) {
	s, mock, now := newMockPostgresStore(t)
	id := "8a1d4a37-0c55-4a4e-9a53-6c1f3f2b9a10"

	rows := sqlmock.NewRows(rowColumns).AddRow(
		id, "send_email", []byte(`{}`), "success", "Email sent to a@b.c successfully!", nil,
		0, 0, "worker-1",
		now, now, now, nil,
	)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(rows)
	mock.ExpectRollback()

	err := s.Update(context.Background(), id, func(r *task.Record) error { return r.Fail("late", now) })
	assert.ErrorIs(t, err, task.ErrAlreadyTerminal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateNotFound(t *testing.T) {
	s, mock, _ := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := s.Update(context.Background(), "missing", func(r *task.Record) error { return nil })
	assert.ErrorIs(t, err, task.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PurgeExpired(t *testing.T) {
	s, mock, now := newMockPostgresStore(t)

	mock.ExpectExec("DELETE FROM task_results").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	purged, err := s.PurgeExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), purged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()

	s := NewPostgresStore(sqlx.NewDb(db, "postgres"))
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
