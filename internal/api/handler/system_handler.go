package handler

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/async-task-api/internal/api/dto"
	"github.com/gin-gonic/gin"
)

const readinessTimeout = 2 * time.Second

// DefaultAppName is used when the configuration does not name the service
const DefaultAppName = "async-task-api"

// SwaggerUIPath serves the interactive API documentation
const SwaggerUIPath = "/swagger/"

// Endpoint describes one public route for the landing page and /test
type Endpoint struct {
	Method string
	Path   string
}

// SystemHandler serves health, readiness and informational endpoints
type SystemHandler struct {
	logger    *slog.Logger
	checks    []ReadinessCheck
	appName   string
	endpoints []Endpoint
	docsPath  string
}

// NewSystemHandler creates a SystemHandler
func NewSystemHandler(deps *Dependencies, docsPath string) *SystemHandler {
	appName := deps.AppName
	if appName == "" {
		appName = DefaultAppName
	}

	return &SystemHandler{
		logger:   deps.Logger,
		checks:   deps.Checks,
		appName:  appName,
		docsPath: docsPath,
	}
}

// SetEndpoints sets the routes listed by /test and the landing page
func (h *SystemHandler) SetEndpoints(endpoints []Endpoint) {
	h.endpoints = endpoints
}

// Health handles GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{
		Status:  "healthy",
		Message: "API is running!",
	})
}

// Ready handles GET /ready
// Pings every dependency; 503 if any of them fails
func (h *SystemHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	resp := dto.ReadinessResponse{
		Status: "ready",
		Checks: make(map[string]string, len(h.checks)),
	}
	code := http.StatusOK

	for _, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed",
				slog.String("check", check.Name),
				slog.Any("error", err),
			)
			resp.Checks[check.Name] = err.Error()
			resp.Status = "not_ready"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[check.Name] = "ok"
	}

	c.JSON(code, resp)
}

// Test handles GET /test
func (h *SystemHandler) Test(c *gin.Context) {
	paths := make([]string, 0, len(h.endpoints))
	for _, e := range h.endpoints {
		paths = append(paths, e.Path)
	}

	c.JSON(http.StatusOK, dto.TestResponse{
		Message:   fmt.Sprintf("Hello from %s!", h.appName),
		Endpoints: paths,
	})
}

var homeTemplate = template.Must(template.New("home").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Name}}</title></head>
<body>
<h1>{{.Name}}</h1>
<p>API is running!</p>
<p>Check <a href="{{.UIPath}}">API Documentation</a> (<a href="{{.DocsPath}}">OpenAPI JSON</a>)</p>
<p>Endpoints:</p>
<ul>
{{- range .Endpoints}}
<li>{{.Method}} {{.Path}}</li>
{{- end}}
</ul>
</body>
</html>
`))

var swaggerUITemplate = template.Must(template.New("swagger").Parse(`<!DOCTYPE html>
<html>
<head>
<title>{{.Name}} - API Documentation</title>
<meta charset="utf-8">
<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
<div id="swagger-ui" data-url="{{.DocsPath}}"></div>
<script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>
window.onload = function () {
  var el = document.getElementById("swagger-ui");
  window.ui = SwaggerUIBundle({url: el.dataset.url, dom_id: "#swagger-ui"});
};
</script>
</body>
</html>
`))

// SwaggerUI handles GET /swagger/
// Loads Swagger UI pointed at the generated OpenAPI document
func (h *SystemHandler) SwaggerUI(c *gin.Context) {
	h.renderHTML(c, swaggerUITemplate, map[string]any{
		"Name":     h.appName,
		"DocsPath": h.docsPath,
	})
}

// Home handles GET /
func (h *SystemHandler) Home(c *gin.Context) {
	h.renderHTML(c, homeTemplate, map[string]any{
		"Name":      h.appName,
		"UIPath":    SwaggerUIPath,
		"DocsPath":  h.docsPath,
		"Endpoints": h.endpoints,
	})
}

func (h *SystemHandler) renderHTML(c *gin.Context, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		h.logger.Error("Failed to render page",
			slog.String("template", tmpl.Name()),
			slog.Any("error", err),
		)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
