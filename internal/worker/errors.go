package worker

import "errors"

var (
	// ErrInvalidEnvelope is returned for broker messages that cannot be decoded
	ErrInvalidEnvelope = errors.New("invalid job envelope")

	// ErrShuttingDown is returned when a job is interrupted by worker shutdown
	ErrShuttingDown = errors.New("worker shutting down")

	// ErrDeliveriesClosed is returned by Start when the broker ends the
	// delivery channel while the worker is still running
	ErrDeliveriesClosed = errors.New("broker delivery channel closed")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
