// Package queue is the job queue client used by the API gateway: it submits
// jobs to the broker and reads their state from the result backend.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cuongbtq/async-task-api/internal/task"
)

var (
	// ErrBrokerUnavailable is returned when a job cannot be handed to the broker
	ErrBrokerUnavailable = errors.New("broker unavailable")

	// ErrBackendUnavailable is returned when the result backend cannot be reached
	ErrBackendUnavailable = errors.New("result backend unavailable")
)

// ContentType of published envelopes
const ContentType = "application/json"

// Client submits jobs and reports their state
type Client interface {
	// Submit enqueues a job and returns its identifier
	Submit(ctx context.Context, name task.Name, args any) (string, error)

	// Status returns the current record, or task.ErrNotFound
	Status(ctx context.Context, id string) (*task.Record, error)
}

// Publisher hands a message body to the broker. Both the RabbitMQ client and
// the memory broker implement it.
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Envelope is the message published for every job
type Envelope struct {
	ID          string          `json:"id"`
	Task        task.Name       `json:"task"`
	Args        json.RawMessage `json:"args"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// DecodeEnvelope parses a broker message body
func DecodeEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
