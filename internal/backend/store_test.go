package backend

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/async-task-api/internal/task"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreSuite checks the behavior every Store implementation shares
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	newRecord := func() *task.Record {
		return task.NewRecord(uuid.NewString(), task.NameLongRunningTask,
			json.RawMessage(`{"name":"build","duration":2}`), time.Now(), time.Hour)
	}

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		rec := newRecord()
		require.NoError(t, s.Create(ctx, rec))

		got, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, task.NameLongRunningTask, got.Name)
		assert.Equal(t, task.StatusPending, got.Status)
		assert.JSONEq(t, string(rec.Args), string(got.Args))
		assert.WithinDuration(t, rec.CreatedAt, got.CreatedAt, time.Millisecond)
		assert.Nil(t, got.Payload())
	})

	t.Run("get unknown", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, task.ErrNotFound)
	})

	t.Run("duplicate create", func(t *testing.T) {
		s := newStore(t)
		rec := newRecord()
		require.NoError(t, s.Create(ctx, rec))
		assert.Error(t, s.Create(ctx, rec))
	})

	t.Run("full lifecycle", func(t *testing.T) {
		s := newStore(t)
		rec := newRecord()
		require.NoError(t, s.Create(ctx, rec))

		require.NoError(t, s.Update(ctx, rec.ID, func(r *task.Record) error { return r.Start("worker-1", time.Now()) }))
		got, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, task.StatusStarted, got.Status)
		assert.Equal(t, "worker-1", got.WorkerID)
		require.NotNil(t, got.StartedAt)

		require.NoError(t, s.Update(ctx, rec.ID, func(r *task.Record) error { return r.SetProgress(1, 2) }))
		require.NoError(t, s.Update(ctx, rec.ID, func(r *task.Record) error {
			return r.Succeed("Task build completed in 2 seconds", time.Now())
		}))

		got, err = s.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, task.StatusSuccess, got.Status)
		assert.Equal(t, 1, got.ProgressDone)
		require.NotNil(t, got.Payload())
		assert.Equal(t, "Task build completed in 2 seconds", *got.Payload())
	})

	t.Run("terminal record is immutable", func(t *testing.T) {
		s := newStore(t)
		rec := newRecord()
		require.NoError(t, s.Create(ctx, rec))
		require.NoError(t, s.Update(ctx, rec.ID, func(r *task.Record) error { return r.Fail("boom", time.Now()) }))

		err := s.Update(ctx, rec.ID, func(r *task.Record) error { return r.Succeed("late", time.Now()) })
		assert.ErrorIs(t, err, task.ErrAlreadyTerminal)

		got, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, task.StatusFailure, got.Status)
		assert.Equal(t, "boom", got.Error)
		assert.Empty(t, got.Result)
	})

	t.Run("mutate error writes nothing", func(t *testing.T) {
		s := newStore(t)
		rec := newRecord()
		require.NoError(t, s.Create(ctx, rec))

		errAbort := errors.New("abort")
		err := s.Update(ctx, rec.ID, func(r *task.Record) error {
			r.Status = task.StatusStarted
			return errAbort
		})
		assert.ErrorIs(t, err, errAbort)

		got, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, task.StatusPending, got.Status)
	})

	t.Run("update unknown", func(t *testing.T) {
		s := newStore(t)
		err := s.Update(ctx, uuid.NewString(), func(r *task.Record) error { return nil })
		assert.ErrorIs(t, err, task.ErrNotFound)
	})

	t.Run("concurrent updates", func(t *testing.T) {
		s := newStore(t)
		rec := newRecord()
		require.NoError(t, s.Create(ctx, rec))

		const writers = 5
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 1; i <= writers; i++ {
			wg.Add(1)
			go func(done int) {
				defer wg.Done()
				errs <- s.Update(ctx, rec.ID, func(r *task.Record) error { return r.SetProgress(done, writers) })
			}(i)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			assert.NoError(t, err)
		}

		got, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, writers, got.ProgressTotal)
		assert.GreaterOrEqual(t, got.ProgressDone, 1)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, newStore(t).Ping(ctx))
	})
}
