package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				w.logger.Debug("Worker goroutine stopping - jobsChan closed",
					slog.String("worker_name", workerName),
				)
				return
			}

			w.handleMessage(ctx, workerName, msg)
		}
	}
}

// handleMessage processes one job and settles its delivery
func (w *Worker) handleMessage(ctx context.Context, workerName string, msg *jobMessage) {
	taskID := msg.envelope.ID

	w.logger.Info("Worker received job",
		slog.String("worker_name", workerName),
		slog.String("task_id", taskID),
		slog.String("task", string(msg.envelope.Task)),
		slog.Uint64("delivery_tag", msg.delivery.DeliveryTag),
		slog.Bool("redelivered", msg.delivery.Redelivered),
	)

	err := w.processJob(ctx, msg.envelope)
	if err == nil {
		if ackErr := msg.delivery.Ack(false); ackErr != nil {
			w.logger.Error("Failed to ACK message",
				slog.String("task_id", taskID),
				slog.Any("error", ackErr),
			)
		}
		return
	}

	requeue := shouldRequeueJob(err)
	w.logger.Warn("Job not completed",
		slog.String("worker_name", workerName),
		slog.String("task_id", taskID),
		slog.Bool("requeue", requeue),
		slog.Any("error", err),
	)

	if nackErr := msg.delivery.Nack(false, requeue); nackErr != nil {
		w.logger.Error("Failed to NACK message",
			slog.String("task_id", taskID),
			slog.Any("error", nackErr),
		)
	}
}

// shouldRequeueJob determines if a job should be requeued based on the error type
func shouldRequeueJob(err error) bool {
	if errors.Is(err, ErrInvalidEnvelope) {
		return false
	}

	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
