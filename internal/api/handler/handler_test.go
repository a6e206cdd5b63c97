package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cuongbtq/async-task-api/internal/task"
	"github.com/cuongbtq/async-task-api/shared/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type submission struct {
	name task.Name
	args any
}

// fakeQueue records submissions and serves records from a map
type fakeQueue struct {
	mu          sync.Mutex
	submissions []submission
	records     map[string]*task.Record
	submitErr   error
	statusErr   error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{records: make(map[string]*task.Record)}
}

func (q *fakeQueue) Submit(_ context.Context, name task.Name, args any) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.submitErr != nil {
		return "", q.submitErr
	}
	q.submissions = append(q.submissions, submission{name: name, args: args})
	return uuid.NewString(), nil
}

func (q *fakeQueue) Status(_ context.Context, id string) (*task.Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.statusErr != nil {
		return nil, q.statusErr
	}
	rec, ok := q.records[id]
	if !ok {
		return nil, task.ErrNotFound
	}
	return rec, nil
}

func (q *fakeQueue) submitted() []submission {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]submission(nil), q.submissions...)
}

func testDeps(q *fakeQueue) *Dependencies {
	return &Dependencies{
		Logger:  logger.NewNop().Logger,
		Queue:   q,
		AppName: "test-api",
	}
}

func newTaskEngine(q *fakeQueue) *gin.Engine {
	gin.SetMode(gin.TestMode)

	h := NewTaskHandler(testDeps(q))
	r := gin.New()
	r.POST("/send-email", h.SendEmail)
	r.POST("/start-task", h.StartTask)
	r.GET("/task-status/:task_id", h.GetTaskStatus)
	return r
}

func doRequest(t *testing.T, r http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 && json.Valid(w.Body.Bytes()) {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}
