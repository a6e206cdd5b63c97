package dto

// SendEmailRequest is the body of POST /send-email
type SendEmailRequest struct {
	To      string `json:"to" binding:"required"`
	Subject string `json:"subject" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// StartTaskRequest is the body of POST /start-task. Duration is in seconds
// and defaults to 5 when omitted.
type StartTaskRequest struct {
	Name     string `json:"name" binding:"required"`
	Duration *int   `json:"duration,omitempty" binding:"omitempty,min=0"`
}

// TaskAcceptedResponse is returned once a job has been queued
type TaskAcceptedResponse struct {
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
}

// TaskStatusResponse reports the state of a job. Result is null until the
// job finishes; on failure it holds the error message.
type TaskStatusResponse struct {
	TaskID   string       `json:"task_id"`
	Status   string       `json:"status"`
	Result   *string      `json:"result"`
	Progress *ProgressDTO `json:"progress,omitempty"`
	Error    string       `json:"error,omitempty"`
}

type ProgressDTO struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}
