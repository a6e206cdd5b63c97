// Package backend stores job records: the result backend that the queue
// client reads and the worker writes.
package backend

import (
	"context"
	"time"

	"github.com/cuongbtq/async-task-api/internal/task"
)

// Store persists task records. Implementations must be safe for concurrent
// use by request goroutines and worker goroutines.
type Store interface {
	// Create inserts a new record
	Create(ctx context.Context, rec *task.Record) error

	// Get returns the record, or task.ErrNotFound when it does not exist or has expired
	Get(ctx context.Context, id string) (*task.Record, error)

	// Update applies mutate to the current record atomically. If mutate returns
	// an error nothing is written and the error is returned.
	Update(ctx context.Context, id string, mutate func(*task.Record) error) error

	// Ping checks the backend is reachable
	Ping(ctx context.Context) error
}

// Purger is implemented by stores that do not expire records on their own
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
