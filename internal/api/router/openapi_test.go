package router

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fetchDoc(t *testing.T) map[string]any {
	t.Helper()

	w := serve(newTestRouter(t, ""), http.MethodGet, "/swagger/doc.json", "")
	require.Equal(t, http.StatusOK, w.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	return doc
}

// dig walks nested JSON objects by key
func dig(t *testing.T, v any, keys ...string) any {
	t.Helper()

	for _, k := range keys {
		m, ok := v.(map[string]any)
		require.True(t, ok, "expected object at %q", k)
		v, ok = m[k]
		require.True(t, ok, "missing key %q", k)
	}
	return v
}

func TestBuildOpenAPI_Info(t *testing.T) {
	doc := fetchDoc(t)

	assert.Equal(t, "3.0.3", doc["openapi"])
	assert.Equal(t, "async-task-api", dig(t, doc, "info", "title"))
	assert.Equal(t, "1.2.3", dig(t, doc, "info", "version"))
}

func TestBuildOpenAPI_Paths(t *testing.T) {
	doc := fetchDoc(t)
	paths := dig(t, doc, "paths").(map[string]any)

	for _, p := range []string{
		"/api/health", "/api/send-email", "/api/start-task",
		"/api/task-status/{task_id}", "/api/test", "/health", "/ready", "/",
	} {
		assert.Contains(t, paths, p)
	}
	assert.NotContains(t, paths, "/api/task-status/:task_id")

	sendEmail := dig(t, paths, "/api/send-email", "post")
	assert.Equal(t, "Send an email asynchronously", dig(t, sendEmail, "summary"))
	assert.Equal(t, "#/components/schemas/SendEmailRequest",
		dig(t, sendEmail, "requestBody", "content", "application/json", "schema", "$ref"))
	assert.Equal(t, "#/components/schemas/TaskAcceptedResponse",
		dig(t, sendEmail, "responses", "202", "content", "application/json", "schema", "$ref"))
	assert.Equal(t, "#/components/schemas/ErrorResponse",
		dig(t, sendEmail, "responses", "400", "content", "application/json", "schema", "$ref"))

	status := dig(t, paths, "/api/task-status/{task_id}", "get")
	params := dig(t, status, "parameters").([]any)
	require.Len(t, params, 1)
	assert.Equal(t, "task_id", dig(t, params[0], "name"))
	assert.Equal(t, "path", dig(t, params[0], "in"))
	assert.Equal(t, "#/components/schemas/TaskStatusResponse",
		dig(t, status, "responses", "404", "content", "application/json", "schema", "$ref"))

	home := dig(t, paths, "/", "get")
	assert.NotContains(t, dig(t, home, "responses", "200").(map[string]any), "content")
}

func TestBuildOpenAPI_Schemas(t *testing.T) {
	doc := fetchDoc(t)
	schemas := dig(t, doc, "components", "schemas")

	email := dig(t, schemas, "SendEmailRequest")
	assert.Equal(t, []any{"to", "subject", "message"}, dig(t, email, "required"))
	assert.Equal(t, "string", dig(t, email, "properties", "to", "type"))

	start := dig(t, schemas, "StartTaskRequest")
	assert.Equal(t, []any{"name"}, dig(t, start, "required"))
	assert.Equal(t, "integer", dig(t, start, "properties", "duration", "type"))
	assert.Equal(t, true, dig(t, start, "properties", "duration", "nullable"))

	status := dig(t, schemas, "TaskStatusResponse")
	assert.Equal(t, true, dig(t, status, "properties", "result", "nullable"))
	assert.Equal(t, true, dig(t, status, "properties", "progress", "nullable"))
	assert.Equal(t, "integer", dig(t, status, "properties", "progress", "properties", "done", "type"))
	assert.NotContains(t, dig(t, status, "properties", "error").(map[string]any), "nullable")

	test := dig(t, schemas, "TestResponse")
	assert.Equal(t, "array", dig(t, test, "properties", "endpoints", "type"))
	assert.Equal(t, "string", dig(t, test, "properties", "endpoints", "items", "type"))

	ready := dig(t, schemas, "ReadinessResponse")
	assert.Equal(t, "object", dig(t, ready, "properties", "checks", "type"))
}

func TestBuildOpenAPI_ValidDocument(t *testing.T) {
	w := serve(newTestRouter(t, ""), http.MethodGet, "/swagger/doc.json", "")
	require.Equal(t, http.StatusOK, w.Code)

	doc, err := openapi3.NewLoader().LoadFromData(w.Body.Bytes())
	require.NoError(t, err)
	require.NoError(t, doc.Validate(context.Background()))

	op := doc.Paths.Find("/api/start-task").Post
	require.NotNil(t, op)
	body := op.RequestBody.Value.Content.Get("application/json").Schema.Value
	assert.Equal(t, []string{"name"}, body.Required)
	assert.True(t, body.Properties["duration"].Value.Nullable)
}

func TestBuildOpenAPI_DefaultVersion(t *testing.T) {
	doc, err := BuildOpenAPI("svc", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "1.0", doc.Info.Version)
	assert.Zero(t, doc.Paths.Len())
}

func TestOpenAPIPath(t *testing.T) {
	tests := map[string]string{
		"/api/task-status/:task_id": "/api/task-status/{task_id}",
		"/files/*path":              "/files/{path}",
		"/health":                   "/health",
		"/":                         "/",
	}
	for in, want := range tests {
		assert.Equal(t, want, openAPIPath(in), in)
	}
}
