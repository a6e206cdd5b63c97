package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/async-task-api/internal/backend"
	"github.com/cuongbtq/async-task-api/internal/task"
	"github.com/google/uuid"
)

// Dispatcher implements Client over a broker publisher and a result backend
type Dispatcher struct {
	publisher Publisher
	store     backend.Store
	logger    *slog.Logger
	resultTTL time.Duration
	now       func() time.Time
}

// NewDispatcher creates a Dispatcher. resultTTL bounds how long records are
// retained; zero keeps them forever.
func NewDispatcher(publisher Publisher, store backend.Store, resultTTL time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		store:     store,
		logger:    logger,
		resultTTL: resultTTL,
		now:       time.Now,
	}
}

// Submit records the job as pending, then publishes it. The record is written
// first so the returned identifier resolves immediately.
func (d *Dispatcher) Submit(ctx context.Context, name task.Name, args any) (string, error) {
	if !name.Valid() {
		return "", fmt.Errorf("%w: %s", task.ErrUnknownTask, name)
	}

	rawArgs, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("%w: %v", task.ErrInvalidArgs, err)
	}

	id := uuid.New().String()
	now := d.now()

	rec := task.NewRecord(id, name, rawArgs, now, d.resultTTL)
	if err := d.store.Create(ctx, rec); err != nil {
		d.logger.Error("Failed to create task record",
			slog.String("task_id", id),
			slog.String("task", string(name)),
			slog.Any("error", err),
		)
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	body, err := json.Marshal(Envelope{
		ID:          id,
		Task:        name,
		Args:        rawArgs,
		SubmittedAt: rec.CreatedAt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := d.publisher.PublishWithRetry(ctx, body, ContentType); err != nil {
		d.logger.Error("Failed to publish task",
			slog.String("task_id", id),
			slog.String("task", string(name)),
			slog.Any("error", err),
		)
		d.markEnqueueFailed(id, err)
		return "", fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	d.logger.Info("Task submitted",
		slog.String("task_id", id),
		slog.String("task", string(name)),
	)
	return id, nil
}

// markEnqueueFailed closes out a record whose message never reached the
// broker. It uses a fresh context since the request context may be done.
func (d *Dispatcher) markEnqueueFailed(id string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := d.store.Update(ctx, id, func(rec *task.Record) error {
		return rec.Fail(fmt.Sprintf("enqueue failed: %v", cause), d.now())
	})
	if err != nil {
		d.logger.Warn("Failed to mark unpublished task as failed",
			slog.String("task_id", id),
			slog.Any("error", err),
		)
	}
}

// Status reads the record from the result backend
func (d *Dispatcher) Status(ctx context.Context, id string) (*task.Record, error) {
	rec, err := d.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return rec, nil
}
