package dto

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type TestResponse struct {
	Message   string   `json:"message"`
	Endpoints []string `json:"endpoints"`
}

// ErrorResponse is the body of every 4xx/5xx response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}
