// Package task holds the job model shared by the API gateway, the queue
// client and the worker: job names, statuses, the persisted record and the
// executor that runs job bodies.
package task

// Name identifies a job type
type Name string

const (
	NameSendEmail       Name = "send_email"
	NameLongRunningTask Name = "long_running_task"
)

// Names lists every job type the executor can run
var Names = []Name{NameSendEmail, NameLongRunningTask}

// Valid reports whether the executor knows the job type
func (n Name) Valid() bool {
	for _, known := range Names {
		if n == known {
			return true
		}
	}
	return false
}

// Status is the lifecycle state of a job
type Status string

const (
	StatusPending Status = "pending"
	StatusStarted Status = "started"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// IsTerminal reports whether no further transitions may occur
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailure
}
