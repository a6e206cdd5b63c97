package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/async-task-api/internal/api/dto"
	"github.com/cuongbtq/async-task-api/internal/queue"
	"github.com/cuongbtq/async-task-api/internal/task"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SendEmail handles POST /send-email
// Queues a send_email job and returns its identifier without waiting
func (h *TaskHandler) SendEmail(c *gin.Context) {
	var req dto.SendEmailRequest
	if !bindJSON(c, &req) {
		return
	}

	taskID, err := h.queue.Submit(c.Request.Context(), task.NameSendEmail, task.SendEmailArgs{
		To:      req.To,
		Subject: req.Subject,
		Message: req.Message,
	})
	if err != nil {
		h.submitFailed(c, task.NameSendEmail, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.TaskAcceptedResponse{
		Message: "Email task started",
		TaskID:  taskID,
	})
}

// StartTask handles POST /start-task
// Queues a long_running_task job; duration defaults to 5 seconds
func (h *TaskHandler) StartTask(c *gin.Context) {
	var req dto.StartTaskRequest
	if !bindJSON(c, &req) {
		return
	}

	duration := task.DefaultDuration
	if req.Duration != nil {
		duration = *req.Duration
	}

	taskID, err := h.queue.Submit(c.Request.Context(), task.NameLongRunningTask, task.LongRunningTaskArgs{
		Name:     req.Name,
		Duration: duration,
	})
	if err != nil {
		h.submitFailed(c, task.NameLongRunningTask, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.TaskAcceptedResponse{
		Message: "Task started",
		TaskID:  taskID,
	})
}

func (h *TaskHandler) submitFailed(c *gin.Context, name task.Name, err error) {
	h.logger.Error("Failed to submit task",
		slog.String("task", string(name)),
		slog.Any("error", err),
	)

	switch {
	case errors.Is(err, task.ErrInvalidArgs), errors.Is(err, task.ErrUnknownTask):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid task arguments"})
	case errors.Is(err, queue.ErrBrokerUnavailable):
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "Task queue unavailable"})
	case errors.Is(err, queue.ErrBackendUnavailable):
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "Result backend unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to submit task"})
	}
}

// GetTaskStatus handles GET /task-status/:task_id
// Works the same for every job type
func (h *TaskHandler) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("task_id")

	if _, err := uuid.Parse(taskID); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "task_id must be a valid UUID",
		})
		return
	}

	rec, err := h.queue.Status(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			c.JSON(http.StatusNotFound, dto.TaskStatusResponse{
				TaskID: taskID,
				Status: "not_found",
				Error:  "Task not found",
			})
			return
		}

		h.logger.Error("Failed to get task status",
			slog.String("task_id", taskID),
			slog.Any("error", err),
		)
		if errors.Is(err, queue.ErrBackendUnavailable) {
			c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "Result backend unavailable"})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get task status"})
		return
	}

	resp := dto.TaskStatusResponse{
		TaskID: taskID,
		Status: string(rec.Status),
		Result: rec.Payload(),
	}
	if rec.ProgressTotal > 0 {
		resp.Progress = &dto.ProgressDTO{Done: rec.ProgressDone, Total: rec.ProgressTotal}
	}

	c.JSON(http.StatusOK, resp)
}
