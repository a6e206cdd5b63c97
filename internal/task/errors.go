package task

import "errors"

var (
	// ErrNotFound is returned when no record exists for a job identifier
	ErrNotFound = errors.New("task not found")

	// ErrAlreadyTerminal is returned when mutating a finished job
	ErrAlreadyTerminal = errors.New("task already in a terminal state")

	// ErrUnknownTask is returned for a job name the executor cannot run
	ErrUnknownTask = errors.New("unknown task")

	// ErrInvalidArgs is returned when job arguments cannot be decoded or are incomplete
	ErrInvalidArgs = errors.New("invalid task arguments")
)
