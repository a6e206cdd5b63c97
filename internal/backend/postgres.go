package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/async-task-api/internal/task"
	"github.com/jmoiron/sqlx"
)

const taskColumns = `task_id, task_name, args, status, result, error_message,
	progress_done, progress_total, worker_id,
	created_at, started_at, completed_at, expires_at`

// taskRow maps the task_results table
type taskRow struct {
	TaskID        string         `db:"task_id"`
	TaskName      string         `db:"task_name"`
	Args          []byte         `db:"args"`
	Status        string         `db:"status"`
	Result        sql.NullString `db:"result"`
	ErrorMessage  sql.NullString `db:"error_message"`
	ProgressDone  int            `db:"progress_done"`
	ProgressTotal int            `db:"progress_total"`
	WorkerID      sql.NullString `db:"worker_id"`
	CreatedAt     time.Time      `db:"created_at"`
	StartedAt     sql.NullTime   `db:"started_at"`
	CompletedAt   sql.NullTime   `db:"completed_at"`
	ExpiresAt     sql.NullTime   `db:"expires_at"`
}

func (r *taskRow) toRecord() *task.Record {
	rec := &task.Record{
		ID:            r.TaskID,
		Name:          task.Name(r.TaskName),
		Args:          json.RawMessage(r.Args),
		Status:        task.Status(r.Status),
		Result:        r.Result.String,
		Error:         r.ErrorMessage.String,
		ProgressDone:  r.ProgressDone,
		ProgressTotal: r.ProgressTotal,
		WorkerID:      r.WorkerID.String,
		CreatedAt:     r.CreatedAt.UTC(),
	}
	if r.StartedAt.Valid {
		t := r.StartedAt.Time.UTC()
		rec.StartedAt = &t
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time.UTC()
		rec.CompletedAt = &t
	}
	if r.ExpiresAt.Valid {
		rec.ExpiresAt = r.ExpiresAt.Time.UTC()
	}
	return rec
}

// PostgresStore keeps records in the task_results table
type PostgresStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgresStore creates a PostgresStore over an open connection pool
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{
		db:  db,
		now: time.Now,
	}
}

func (s *PostgresStore) Create(ctx context.Context, rec *task.Record) error {
	query := `
		INSERT INTO task_results (
			task_id, task_name, args, status, created_at, expires_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW()
		)
	`

	args := []byte(rec.Args)
	if len(args) == 0 {
		args = []byte("{}")
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		string(rec.Name),
		args,
		string(rec.Status),
		rec.CreatedAt,
		nullTime(rec.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create task result: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*task.Record, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM task_results
		WHERE task_id = $1
		  AND (expires_at IS NULL OR expires_at > $2)
	`

	var row taskRow
	err := s.db.GetContext(ctx, &row, query, id, s.now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, task.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task result: %w", err)
	}
	return row.toRecord(), nil
}

// Update locks the row for the duration of mutate
func (s *PostgresStore) Update(ctx context.Context, id string, mutate func(*task.Record) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	selectQuery := `
		SELECT ` + taskColumns + `
		FROM task_results
		WHERE task_id = $1
		  AND (expires_at IS NULL OR expires_at > $2)
		FOR UPDATE
	`

	var row taskRow
	err = tx.GetContext(ctx, &row, selectQuery, id, s.now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return task.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock task result: %w", err)
	}

	rec := row.toRecord()
	if err := mutate(rec); err != nil {
		return err
	}

	updateQuery := `
		UPDATE task_results
		SET status = $1,
		    result = $2,
		    error_message = $3,
		    progress_done = $4,
		    progress_total = $5,
		    worker_id = $6,
		    started_at = $7,
		    completed_at = $8,
		    updated_at = NOW()
		WHERE task_id = $9
	`

	_, err = tx.ExecContext(ctx, updateQuery,
		string(rec.Status),
		nullString(rec.Result),
		nullString(rec.Error),
		rec.ProgressDone,
		rec.ProgressTotal,
		nullString(rec.WorkerID),
		nullTimePtr(rec.StartedAt),
		nullTimePtr(rec.CompletedAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update task result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit task result: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// PurgeExpired deletes rows past their retention window
func (s *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM task_results
		WHERE expires_at IS NOT NULL
		  AND expires_at <= $1
	`

	result, err := s.db.ExecContext(ctx, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge task results: %w", err)
	}

	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return purged, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
