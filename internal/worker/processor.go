package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/cuongbtq/async-task-api/internal/queue"
	"github.com/cuongbtq/async-task-api/internal/task"
)

// storeTimeout bounds result backend writes made after the job context ends
const storeTimeout = 5 * time.Second

// processJob runs one job. A nil return means the delivery can be acked:
// the job finished (successfully or not) or was already finished earlier.
func (w *Worker) processJob(ctx context.Context, env *queue.Envelope) error {
	logger := w.logger.With(
		slog.String("task_id", env.ID),
		slog.String("task", string(env.Task)),
	)

	started, err := w.markStarted(ctx, env)
	if err != nil {
		return err
	}
	if !started {
		logger.Info("Task already finished, skipping redelivery")
		return nil
	}

	jobCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	result, execErr := w.executeJob(jobCtx, env, logger)

	// shutdown interrupted the job; leave it started so a redelivery resumes it
	if execErr != nil && ctx.Err() != nil {
		return NewRetryableError(fmt.Errorf("%w: %v", ErrShuttingDown, execErr))
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	if execErr != nil {
		logger.Error("Task failed", slog.Any("error", execErr))
		err = w.store.Update(writeCtx, env.ID, func(rec *task.Record) error {
			return rec.Fail(execErr.Error(), w.now())
		})
	} else {
		logger.Info("Task succeeded", slog.String("result", result))
		err = w.store.Update(writeCtx, env.ID, func(rec *task.Record) error {
			return rec.Succeed(result, w.now())
		})
	}

	if err != nil && !errors.Is(err, task.ErrAlreadyTerminal) {
		// still acked: a requeue would run the job again
		logger.Error("Failed to record task outcome", slog.Any("error", err))
	}

	return nil
}

// markStarted moves the record to started. It reports false when the record
// is already terminal. A record missing from the backend (expired or lost) is
// recreated from the envelope.
func (w *Worker) markStarted(ctx context.Context, env *queue.Envelope) (bool, error) {
	start := func(rec *task.Record) error {
		return rec.Start(w.workerID, w.now())
	}

	err := w.store.Update(ctx, env.ID, start)
	if errors.Is(err, task.ErrNotFound) {
		w.logger.Warn("Task record missing, recreating",
			slog.String("task_id", env.ID),
		)
		rec := task.NewRecord(env.ID, env.Task, env.Args, w.now(), w.resultTTL)
		if err = start(rec); err == nil {
			err = w.store.Create(ctx, rec)
		}
	}

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, task.ErrAlreadyTerminal):
		return false, nil
	default:
		return false, NewRetryableError(fmt.Errorf("failed to mark task started: %w", err))
	}
}

// executeJob runs the job body, reporting progress to the result backend and
// converting panics into errors.
func (w *Worker) executeJob(ctx context.Context, env *queue.Envelope, logger *slog.Logger) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Task panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	progress := func(done, total int) {
		logger.Debug("Recording task progress",
			slog.Int("done", done),
			slog.Int("total", total),
		)
		// best effort
		updErr := w.store.Update(ctx, env.ID, func(rec *task.Record) error {
			return rec.SetProgress(done, total)
		})
		if updErr != nil {
			logger.Debug("Failed to record progress", slog.Any("error", updErr))
		}
	}

	return w.executor.Execute(ctx, env.Task, env.Args, progress)
}
