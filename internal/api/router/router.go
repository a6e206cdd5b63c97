package router

import (
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/cuongbtq/async-task-api/internal/api/dto"
	"github.com/cuongbtq/async-task-api/internal/api/handler"
	"github.com/gin-gonic/gin"
)

const (
	// DefaultBasePath prefixes the task API routes
	DefaultBasePath = "/api"

	docsPath = "/swagger/doc.json"
)

// Route declares one endpoint. The same table registers the gin handlers and
// generates the OpenAPI document.
type Route struct {
	Method  string
	Path    string
	Summary string
	Tag     string
	Handler gin.HandlerFunc

	// Request and Response are zero values of the body types; nil for none
	Request  any
	Response any
	Status   int

	// Errors maps error status codes to their body type
	Errors map[int]any
}

// Routes returns the full route table with absolute paths
func Routes(basePath string, tasks *handler.TaskHandler, system *handler.SystemHandler) []Route {
	api := func(p string) string { return path.Join(basePath, p) }
	errBody := dto.ErrorResponse{}

	return []Route{
		{
			Method: http.MethodGet, Path: api("/health"), Tag: "api",
			Summary: "Health check", Handler: system.Health,
			Response: dto.HealthResponse{}, Status: http.StatusOK,
		},
		{
			Method: http.MethodPost, Path: api("/send-email"), Tag: "api",
			Summary: "Send an email asynchronously", Handler: tasks.SendEmail,
			Request: dto.SendEmailRequest{}, Response: dto.TaskAcceptedResponse{}, Status: http.StatusAccepted,
			Errors: map[int]any{http.StatusBadRequest: errBody, http.StatusServiceUnavailable: errBody},
		},
		{
			Method: http.MethodPost, Path: api("/start-task"), Tag: "api",
			Summary: "Start a long running task", Handler: tasks.StartTask,
			Request: dto.StartTaskRequest{}, Response: dto.TaskAcceptedResponse{}, Status: http.StatusAccepted,
			Errors: map[int]any{http.StatusBadRequest: errBody, http.StatusServiceUnavailable: errBody},
		},
		{
			Method: http.MethodGet, Path: api("/task-status/:task_id"), Tag: "api",
			Summary: "Check task status", Handler: tasks.GetTaskStatus,
			Response: dto.TaskStatusResponse{}, Status: http.StatusOK,
			Errors: map[int]any{
				http.StatusBadRequest:         errBody,
				http.StatusNotFound:           dto.TaskStatusResponse{},
				http.StatusServiceUnavailable: errBody,
			},
		},
		{
			Method: http.MethodGet, Path: api("/test"), Tag: "api",
			Summary: "Test endpoint that returns simple data", Handler: system.Test,
			Response: dto.TestResponse{}, Status: http.StatusOK,
		},
		{
			Method: http.MethodGet, Path: "/health", Tag: "system",
			Summary: "Liveness check", Handler: system.Health,
			Response: dto.HealthResponse{}, Status: http.StatusOK,
		},
		{
			Method: http.MethodGet, Path: "/ready", Tag: "system",
			Summary: "Readiness check", Handler: system.Ready,
			Response: dto.ReadinessResponse{}, Status: http.StatusOK,
			Errors: map[int]any{http.StatusServiceUnavailable: dto.ReadinessResponse{}},
		},
		{
			Method: http.MethodGet, Path: "/", Tag: "system",
			Summary: "Landing page", Handler: system.Home,
			Status: http.StatusOK,
		},
	}
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	basePath := DefaultBasePath
	if deps.BasePath != "" {
		basePath = path.Clean(deps.BasePath)
	}

	taskHandler := handler.NewTaskHandler(deps)
	systemHandler := handler.NewSystemHandler(deps, docsPath)

	routes := Routes(basePath, taskHandler, systemHandler)
	systemHandler.SetEndpoints(apiEndpoints(basePath, routes))

	for _, route := range routes {
		r.Handle(route.Method, route.Path, route.Handler)
	}

	appName := deps.AppName
	if appName == "" {
		appName = handler.DefaultAppName
	}
	doc, err := BuildOpenAPI(appName, deps.AppVersion, routes)
	if err != nil {
		deps.Logger.Error("Failed to build OpenAPI document", slog.Any("error", err))
	}

	r.GET(docsPath, func(c *gin.Context) {
		if doc == nil {
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "API documentation unavailable"})
			return
		}
		c.JSON(http.StatusOK, doc)
	})
	r.GET(handler.SwaggerUIPath, systemHandler.SwaggerUI)

	return r
}

// apiEndpoints lists the routes under basePath in OpenAPI path notation
func apiEndpoints(basePath string, routes []Route) []handler.Endpoint {
	var endpoints []handler.Endpoint
	for _, route := range routes {
		if !strings.HasPrefix(route.Path, basePath+"/") {
			continue
		}
		endpoints = append(endpoints, handler.Endpoint{
			Method: route.Method,
			Path:   openAPIPath(route.Path),
		})
	}
	return endpoints
}
