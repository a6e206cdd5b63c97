// Package bootstrap builds the process-level dependencies shared by the
// api-service and worker-service binaries from the loaded configuration.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cuongbtq/async-task-api/internal/backend"
	"github.com/cuongbtq/async-task-api/internal/broker"
	"github.com/cuongbtq/async-task-api/internal/config"
	"github.com/cuongbtq/async-task-api/internal/queue"
	"github.com/cuongbtq/async-task-api/internal/task"
	"github.com/cuongbtq/async-task-api/internal/worker"
	"github.com/cuongbtq/async-task-api/shared/logger"
	"github.com/cuongbtq/async-task-api/shared/postgresql"
	"github.com/cuongbtq/async-task-api/shared/rabbitmq"
	"github.com/cuongbtq/async-task-api/shared/redis"
)

// Broker is the message broker surface used by both services.
// *rabbitmq.Client and *broker.Memory implement it.
type Broker interface {
	queue.Publisher
	worker.Consumer
	Ping(ctx context.Context) error
	Close() error
}

// Store is a result backend together with the connection that backs it
type Store struct {
	backend.Store
	closer io.Closer
}

// Close releases the underlying connection, if any
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// OpenBroker connects to the configured broker driver
func OpenBroker(cfg *config.Config, logger *slog.Logger) (Broker, error) {
	switch cfg.Broker.Driver {
	case config.DriverRabbitMQ:
		client, err := initRabbitMQ(&cfg.RabbitMQ, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.DriverMemory:
		logger.Warn("Using in-process memory broker; queued jobs are lost on restart",
			slog.Int("buffer", cfg.Broker.MemoryBuffer),
		)
		return broker.NewMemory(cfg.Broker.MemoryBuffer), nil
	default:
		return nil, fmt.Errorf("unsupported broker driver: %q", cfg.Broker.Driver)
	}
}

// OpenStore connects to the configured result backend
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	switch cfg.ResultBackend.Driver {
	case config.DriverRedis:
		client, err := initRedis(&cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		return &Store{
			Store:  backend.NewRedisStore(client.GetClient(), cfg.ResultBackend.KeyPrefix),
			closer: client,
		}, nil

	case config.DriverPostgres:
		client, err := initPostgreSQL(&cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := client.Migrate(ctx); err != nil {
				client.Close()
				return nil, err
			}
		}
		return &Store{
			Store:  backend.NewPostgresStore(client.GetDB()),
			closer: client,
		}, nil

	case config.DriverMemory:
		logger.Warn("Using in-process memory result backend; task records are lost on restart")
		return &Store{Store: backend.NewMemoryStore()}, nil

	default:
		return nil, fmt.Errorf("unsupported result backend driver: %q", cfg.ResultBackend.Driver)
	}
}

// NewWorker builds a worker consuming from b and recording into store
func NewWorker(cfg *config.Config, logger *slog.Logger, b Broker, store backend.Store) *worker.Worker {
	executor := task.NewExecutor(task.ExecutorConfig{
		TimeUnit:        cfg.Tasks.TimeUnit,
		EmailDelayUnits: cfg.Tasks.EmailDelayUnits,
	}, logger)

	return worker.NewWorker(&worker.Config{
		Logger:        logger,
		Consumer:      b,
		Store:         store,
		Executor:      executor,
		Concurrency:   cfg.Worker.Concurrency,
		PrefetchCount: cfg.Worker.PrefetchCount,
		JobTimeout:    cfg.Worker.JobTimeout,
		ResultTTL:     cfg.ResultBackend.ResultTTL,
		PurgeInterval: cfg.Worker.PurgeInterval,
	})
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initRedis initializes the Redis client
func initRedis(cfg *config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	return redis.NewClient(&redis.Config{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	}, logger)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}
