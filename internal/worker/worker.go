// Package worker consumes job envelopes from the broker, runs them through
// the executor and records every transition in the result backend.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/async-task-api/internal/backend"
	"github.com/cuongbtq/async-task-api/internal/task"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// Consumer is the broker surface the worker needs. The RabbitMQ client and
// the memory broker both implement it.
type Consumer interface {
	SetQos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Executor runs a job body. *task.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, name task.Name, args json.RawMessage, progress task.ProgressFunc) (string, error)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Consumer      Consumer
	Store         backend.Store
	Executor      Executor
	WorkerID      string
	Concurrency   int
	PrefetchCount int
	JobTimeout    time.Duration
	ResultTTL     time.Duration
	PurgeInterval time.Duration
}

// Worker represents the background job worker
type Worker struct {
	logger        *slog.Logger
	consumer      Consumer
	store         backend.Store
	executor      Executor
	workerID      string
	concurrency   int
	prefetchCount int
	jobTimeout    time.Duration
	resultTTL     time.Duration
	purgeInterval time.Duration
	now           func() time.Time

	jobsChan chan *jobMessage
	stopChan chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = newWorkerID()
	}

	return &Worker{
		logger:        cfg.Logger.With(slog.String("worker_id", workerID)),
		consumer:      cfg.Consumer,
		store:         cfg.Store,
		executor:      cfg.Executor,
		workerID:      workerID,
		concurrency:   concurrency,
		prefetchCount: prefetch,
		jobTimeout:    cfg.JobTimeout,
		resultTTL:     cfg.ResultTTL,
		purgeInterval: cfg.PurgeInterval,
		now:           time.Now,
		jobsChan:      make(chan *jobMessage),
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// newWorkerID builds a host-qualified identifier, e.g. worker-myhost-1a2b3c4d
func newWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("worker-%s-%s", host, uuid.NewString()[:8])
}

// ID returns the worker identifier recorded on started jobs
func (w *Worker) ID() string {
	return w.workerID
}

// Start consumes and processes jobs until ctx is canceled or Stop is called.
// It returns ErrDeliveriesClosed if the broker closes the delivery channel
// first.
func (w *Worker) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("worker %s already started", w.workerID)
	}
	defer close(w.done)

	w.logger.Info("Starting worker",
		slog.Int("concurrency", w.concurrency),
		slog.Int("prefetch_count", w.prefetchCount),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(w.jobsChan)
		// a closed delivery channel stops the pool as well
		return w.startMessageDispatcher(gctx, deliveries)
	})

	for i := 0; i < w.concurrency; i++ {
		workerNum := i
		g.Go(func() error {
			w.workerLoop(gctx, workerNum)
			return nil
		})
	}

	if purger, ok := w.store.(backend.Purger); ok && w.purgeInterval > 0 {
		g.Go(func() error {
			w.runJanitor(gctx, purger)
			return nil
		})
	}

	w.logger.Info("Worker started")

	err = g.Wait()
	w.logger.Info("Worker stopped")
	return err
}

// Stop signals the worker to finish and waits for Start to return
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	if w.started.Load() {
		<-w.done
	}
}
