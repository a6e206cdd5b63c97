package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cuongbtq/async-task-api/internal/api/handler"
	"github.com/cuongbtq/async-task-api/internal/task"
	"github.com/cuongbtq/async-task-api/shared/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQueue struct{}

func (stubQueue) Submit(context.Context, task.Name, any) (string, error) {
	return "00000000-0000-4000-8000-000000000000", nil
}

func (stubQueue) Status(context.Context, string) (*task.Record, error) {
	return nil, task.ErrNotFound
}

func newTestRouter(t *testing.T, basePath string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	return SetupRouter(&handler.Dependencies{
		Logger:     logger.NewNop().Logger,
		Queue:      stubQueue{},
		BasePath:   basePath,
		AppName:    "async-task-api",
		AppVersion: "1.2.3",
	})
}

func serve(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSetupRouter_Routes(t *testing.T) {
	r := newTestRouter(t, "")

	tests := []struct {
		method   string
		target   string
		body     string
		wantCode int
	}{
		{http.MethodGet, "/api/health", "", http.StatusOK},
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/ready", "", http.StatusOK},
		{http.MethodGet, "/api/test", "", http.StatusOK},
		{http.MethodGet, "/", "", http.StatusOK},
		{http.MethodPost, "/api/send-email", `{"to":"a","subject":"b","message":"c"}`, http.StatusAccepted},
		{http.MethodPost, "/api/start-task", `{"name":"build"}`, http.StatusAccepted},
		{http.MethodGet, "/api/task-status/00000000-0000-4000-8000-000000000000", "", http.StatusNotFound},
		{http.MethodGet, "/swagger/doc.json", "", http.StatusOK},
		{http.MethodGet, "/swagger/", "", http.StatusOK},
		{http.MethodGet, "/swagger", "", http.StatusMovedPermanently},
		{http.MethodGet, "/api/v1/jobs", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := serve(r, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
		})
	}
}

func TestSetupRouter_CustomBasePath(t *testing.T) {
	r := newTestRouter(t, "/tasks-api/")

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/tasks-api/health", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/api/health", "").Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(serve(r, http.MethodGet, "/tasks-api/test", "").Body.Bytes(), &body))
	assert.Contains(t, body["endpoints"], "/tasks-api/task-status/{task_id}")
}

func TestSetupRouter_TestEndpointListsAPIRoutes(t *testing.T) {
	w := serve(newTestRouter(t, ""), http.MethodGet, "/api/test", "")

	var body struct {
		Message   string   `json:"message"`
		Endpoints []string `json:"endpoints"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.Equal(t, "Hello from async-task-api!", body.Message)
	assert.Equal(t, []string{
		"/api/health",
		"/api/send-email",
		"/api/start-task",
		"/api/task-status/{task_id}",
		"/api/test",
	}, body.Endpoints)
}

func TestSetupRouter_SwaggerUI(t *testing.T) {
	w := serve(newTestRouter(t, ""), http.MethodGet, "/swagger/", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), `data-url="/swagger/doc.json"`)
}

func TestRequestIDMiddleware(t *testing.T) {
	r := newTestRouter(t, "")

	t.Run("generated", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/health", "")
		assert.Len(t, w.Header().Get(RequestIDHeader), 36)
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
	})
}

func TestCORSMiddleware(t *testing.T) {
	r := newTestRouter(t, "")

	w := serve(r, http.MethodOptions, "/api/send-email", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(r, http.MethodGet, "/health", "")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggerMiddleware(logger.NewNop().Logger))
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	w := serve(r, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
