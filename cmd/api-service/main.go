package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/async-task-api/internal/api/handler"
	"github.com/cuongbtq/async-task-api/internal/api/router"
	"github.com/cuongbtq/async-task-api/internal/bootstrap"
	"github.com/cuongbtq/async-task-api/internal/config"
	"github.com/cuongbtq/async-task-api/internal/queue"
	"github.com/cuongbtq/async-task-api/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("broker", cfg.Broker.Driver),
		slog.String("result_backend", cfg.ResultBackend.Driver),
		slog.Bool("embedded_worker", cfg.Worker.Embedded),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize result backend
	store, err := bootstrap.OpenStore(ctx, cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize result backend: %w", err)
	}
	defer store.Close()

	appLogger.Info("Result backend ready")

	// Initialize broker
	broker, err := bootstrap.OpenBroker(cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}
	defer broker.Close()

	appLogger.Info("Broker connection established")

	var embedded *worker.Worker
	if cfg.Worker.Embedded {
		embedded = bootstrap.NewWorker(cfg, appLogger.Logger, broker, store.Store)
	}

	// Initialize router
	r := initRouter(cfg, appLogger.Logger, broker, store)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("Starting HTTP server",
			slog.String("address", addr),
			slog.String("base_path", cfg.Server.BasePath),
			slog.Duration("read_timeout", cfg.Server.ReadTimeout),
			slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	if embedded != nil {
		g.Go(func() error {
			appLogger.Info("Starting embedded worker",
				slog.String("worker_id", embedded.ID()),
			)
			if err := embedded.Start(gctx); err != nil {
				return fmt.Errorf("embedded worker failed: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Server forced to shutdown",
				slog.Any("error", err),
			)
		}

		if embedded != nil {
			stopWorker(embedded, cfg.Worker.ShutdownTimeout, appLogger.Logger)
		}
		return nil
	})

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	if err := g.Wait(); err != nil {
		appLogger.Error("API service stopped with error",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, broker bootstrap.Broker, store *bootstrap.Store) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	handlerDeps := &handler.Dependencies{
		Logger: logger,
		Queue:  queue.NewDispatcher(broker, store, cfg.ResultBackend.ResultTTL, logger),
		Checks: []handler.ReadinessCheck{
			{Name: "broker", Ping: broker.Ping},
			{Name: "result_backend", Ping: store.Ping},
		},
		BasePath:   cfg.Server.BasePath,
		AppName:    cfg.App.Name,
		AppVersion: cfg.App.Version,
	}

	return router.SetupRouter(handlerDeps)
}

// stopWorker waits for in-flight jobs to be released, up to timeout
func stopWorker(w *worker.Worker, timeout time.Duration, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Embedded worker stopped gracefully")
	case <-time.After(timeout):
		logger.Warn("Embedded worker shutdown timeout exceeded")
	}
}
