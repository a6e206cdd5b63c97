package task

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the authoritative state of one submitted job, as kept by the
// result backend.
type Record struct {
	ID            string          `json:"id"`
	Name          Name            `json:"name"`
	Args          json.RawMessage `json:"args,omitempty"`
	Status        Status          `json:"status"`
	Result        string          `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	ProgressDone  int             `json:"progress_done,omitempty"`
	ProgressTotal int             `json:"progress_total,omitempty"`
	WorkerID      string          `json:"worker_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	ExpiresAt     time.Time       `json:"expires_at,omitempty"`
}

// NewRecord builds a pending record. A zero ttl keeps the record forever.
func NewRecord(id string, name Name, args json.RawMessage, now time.Time, ttl time.Duration) *Record {
	r := &Record{
		ID:        id,
		Name:      name,
		Args:      args,
		Status:    StatusPending,
		CreatedAt: now.UTC(),
	}
	if ttl > 0 {
		r.ExpiresAt = r.CreatedAt.Add(ttl)
	}
	return r
}

// Start moves the job to started. Starting an already started job is allowed
// so a redelivered message can resume it.
func (r *Record) Start(workerID string, now time.Time) error {
	if err := r.mutable(); err != nil {
		return err
	}
	t := now.UTC()
	r.Status = StatusStarted
	r.WorkerID = workerID
	r.StartedAt = &t
	return nil
}

// SetProgress records the latest progress observation
func (r *Record) SetProgress(done, total int) error {
	if err := r.mutable(); err != nil {
		return err
	}
	r.ProgressDone = done
	r.ProgressTotal = total
	return nil
}

// Succeed stores the result and makes the record immutable
func (r *Record) Succeed(result string, now time.Time) error {
	if err := r.mutable(); err != nil {
		return err
	}
	t := now.UTC()
	r.Status = StatusSuccess
	r.Result = result
	r.CompletedAt = &t
	return nil
}

// Fail stores the error message and makes the record immutable
func (r *Record) Fail(message string, now time.Time) error {
	if err := r.mutable(); err != nil {
		return err
	}
	t := now.UTC()
	r.Status = StatusFailure
	r.Error = message
	r.CompletedAt = &t
	return nil
}

// Payload is the result value exposed to callers: the result on success, the
// error on failure, nil while the job is still running.
func (r *Record) Payload() *string {
	switch r.Status {
	case StatusSuccess:
		v := r.Result
		return &v
	case StatusFailure:
		v := r.Error
		return &v
	default:
		return nil
	}
}

// Expired reports whether the retention window has passed
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

func (r *Record) mutable() error {
	if r.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, r.ID, r.Status)
	}
	return nil
}
