package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/async-task-api/internal/queue"
	"github.com/cuongbtq/async-task-api/internal/task"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// jobMessage pairs a decoded envelope with the delivery it arrived in
type jobMessage struct {
	envelope *queue.Envelope
	delivery amqp.Delivery
}

// setupConsumer applies QoS and starts consuming with manual acknowledgement
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	if err := w.consumer.SetQos(w.prefetchCount); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	w.logger.Info("Broker QoS configured",
		slog.Int("prefetch_count", w.prefetchCount),
	)

	deliveries, err := w.consumer.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("Consumer started",
		slog.String("consumer_tag", w.workerID),
	)

	return deliveries, nil
}

// startMessageDispatcher decodes deliveries and hands them to the worker pool
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	w.logger.Info("Message dispatcher started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Error("Broker delivery channel closed")
				return ErrDeliveriesClosed
			}

			env, err := w.decodeDelivery(delivery)
			if err != nil {
				w.logger.Error("Rejecting malformed message",
					slog.Any("error", err),
					slog.String("body", string(delivery.Body)),
				)
				// malformed messages are never requeued
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.Any("error", nackErr),
					)
				}
				continue
			}

			select {
			case w.jobsChan <- &jobMessage{envelope: env, delivery: delivery}:
				w.logger.Debug("Job dispatched to worker pool",
					slog.String("task_id", env.ID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching job")
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.Any("error", nackErr),
					)
				}
				return nil
			}
		}
	}
}

// decodeDelivery parses and checks an envelope. When the body carries a usable
// identifier the record is closed out as failed so callers are not left
// polling a job that will never run.
func (w *Worker) decodeDelivery(delivery amqp.Delivery) (*queue.Envelope, error) {
	env, err := queue.DecodeEnvelope(delivery.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	if _, err := uuid.Parse(env.ID); err != nil {
		return nil, fmt.Errorf("%w: id %q is not a UUID", ErrInvalidEnvelope, env.ID)
	}

	if env.Task == "" {
		err := fmt.Errorf("%w: missing task name", ErrInvalidEnvelope)
		w.recordFailure(env.ID, err)
		return nil, err
	}

	return env, nil
}

// recordFailure marks a record failed outside any job context
func (w *Worker) recordFailure(id string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	err := w.store.Update(ctx, id, func(rec *task.Record) error {
		return rec.Fail(cause.Error(), w.now())
	})
	if err != nil {
		w.logger.Warn("Failed to record task failure",
			slog.String("task_id", id),
			slog.Any("error", err),
		)
	}
}
