package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/async-task-api/internal/queue"
)

// ReadinessCheck reports whether one dependency is usable
type ReadinessCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger     *slog.Logger
	Queue      queue.Client
	Checks     []ReadinessCheck
	BasePath   string
	AppName    string
	AppVersion string
}

// TaskHandler handles job submission and status requests
type TaskHandler struct {
	logger *slog.Logger
	queue  queue.Client
}

// NewTaskHandler creates a new TaskHandler instance
func NewTaskHandler(deps *Dependencies) *TaskHandler {
	useJSONFieldNames()

	return &TaskHandler{
		logger: deps.Logger,
		queue:  deps.Queue,
	}
}
