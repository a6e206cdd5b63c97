package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Broker and result backend drivers
const (
	DriverRabbitMQ = "rabbitmq"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config represents the complete application configuration
type Config struct {
	App           AppConfig           `yaml:"app"`
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Broker        BrokerConfig        `yaml:"broker"`
	RabbitMQ      RabbitMQConfig      `yaml:"rabbitmq"`
	ResultBackend ResultBackendConfig `yaml:"result_backend"`
	Redis         RedisConfig         `yaml:"redis"`
	Database      DatabaseConfig      `yaml:"database"`
	Worker        WorkerConfig        `yaml:"worker"`
	Tasks         TasksConfig         `yaml:"tasks"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	BasePath        string        `yaml:"base_path"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// BrokerConfig selects the message broker
type BrokerConfig struct {
	Driver string `yaml:"driver"`
	// MemoryBuffer is the queue capacity of the memory driver
	MemoryBuffer int `yaml:"memory_buffer"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ResultBackendConfig selects where task records live and for how long
type ResultBackendConfig struct {
	Driver    string        `yaml:"driver"`
	ResultTTL time.Duration `yaml:"result_ttl"`
	KeyPrefix string        `yaml:"key_prefix"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Addr returns host:port
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// WorkerConfig holds worker configuration. Embedded runs the worker inside
// the api-service process.
type WorkerConfig struct {
	Embedded        bool          `yaml:"embedded"`
	Concurrency     int           `yaml:"concurrency"`
	PrefetchCount   int           `yaml:"prefetch_count"`
	JobTimeout      time.Duration `yaml:"job_timeout"` // 0: no limit
	PurgeInterval   time.Duration `yaml:"purge_interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TasksConfig tunes the simulated job bodies
type TasksConfig struct {
	TimeUnit        time.Duration `yaml:"time_unit"`
	EmailDelayUnits int           `yaml:"email_delay_units"`
}

// Load reads the configuration file, expands ${VAR} references from the
// environment, parses it and fills in defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills zero values with defaults
func (c *Config) ApplyDefaults() {
	setDefault(&c.Server.Port, 8080)
	setDefault(&c.Server.BasePath, "/api")
	setDefault(&c.Server.ReadTimeout, 15*time.Second)
	setDefault(&c.Server.WriteTimeout, 15*time.Second)
	setDefault(&c.Server.IdleTimeout, 60*time.Second)
	setDefault(&c.Server.ShutdownTimeout, 30*time.Second)

	setDefault(&c.Logging.Level, "info")
	setDefault(&c.Logging.Format, "console")
	setDefault(&c.Logging.Output, "stdout")

	setDefault(&c.Broker.Driver, DriverRabbitMQ)
	setDefault(&c.Broker.MemoryBuffer, 1024)

	setDefault(&c.RabbitMQ.Port, 5672)
	setDefault(&c.RabbitMQ.VHost, "/")
	setDefault(&c.RabbitMQ.Exchange.Type, "direct")
	setDefault(&c.RabbitMQ.Connection.RetryAttempts, 5)
	setDefault(&c.RabbitMQ.Connection.RetryInterval, 2*time.Second)
	setDefault(&c.RabbitMQ.Connection.Heartbeat, 10*time.Second)
	setDefault(&c.RabbitMQ.Connection.ConnectionTimeout, 10*time.Second)
	setDefault(&c.RabbitMQ.Publish.RetryAttempts, 3)
	setDefault(&c.RabbitMQ.Publish.RetryInterval, 100*time.Millisecond)
	setDefault(&c.RabbitMQ.Publish.BackoffMultiplier, 2.0)

	setDefault(&c.ResultBackend.Driver, DriverRedis)
	setDefault(&c.ResultBackend.ResultTTL, 24*time.Hour)
	setDefault(&c.ResultBackend.KeyPrefix, "tasks:")

	setDefault(&c.Redis.Port, 6379)
	setDefault(&c.Redis.PoolSize, 10)
	setDefault(&c.Redis.DialTimeout, 5*time.Second)
	setDefault(&c.Redis.ReadTimeout, 3*time.Second)
	setDefault(&c.Redis.WriteTimeout, 3*time.Second)

	setDefault(&c.Database.Port, 5432)
	setDefault(&c.Database.SSLMode, "disable")
	setDefault(&c.Database.MaxOpenConns, 10)
	setDefault(&c.Database.MaxIdleConns, 5)
	setDefault(&c.Database.ConnMaxLifetime, 30*time.Minute)
	setDefault(&c.Database.ConnMaxIdleTime, 5*time.Minute)

	setDefault(&c.Worker.Concurrency, 4)
	setDefault(&c.Worker.PrefetchCount, c.Worker.Concurrency)
	setDefault(&c.Worker.PurgeInterval, time.Hour)
	setDefault(&c.Worker.ShutdownTimeout, 30*time.Second)

	setDefault(&c.Tasks.TimeUnit, time.Second)
	setDefault(&c.Tasks.EmailDelayUnits, 3)
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// Validate checks the settings shared by both services: the selected drivers
// and the connection settings they need
func (c *Config) Validate() error {
	switch c.Broker.Driver {
	case DriverRabbitMQ:
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported broker driver: %q", c.Broker.Driver)
	}

	switch c.ResultBackend.Driver {
	case DriverRedis:
		if c.Redis.Host == "" {
			return errors.New("redis host is required")
		}
		if c.Redis.Port < MinPort || c.Redis.Port > MaxPort {
			return fmt.Errorf("invalid redis port: %d (must be between %d and %d)", c.Redis.Port, MinPort, MaxPort)
		}
	case DriverPostgres:
		if err := c.validateDatabase(); err != nil {
			return err
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported result backend driver: %q", c.ResultBackend.Driver)
	}

	if c.ResultBackend.ResultTTL < 0 {
		return errors.New("result_backend result_ttl must not be negative")
	}

	if c.Tasks.TimeUnit < 0 {
		return errors.New("tasks time_unit must not be negative")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return errors.New("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return errors.New("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return errors.New("rabbitmq queue name is required")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return errors.New("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return errors.New("database name is required")
	}

	return nil
}

// ValidateAPIConfig checks everything the api-service needs
func (c *Config) ValidateAPIConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("server base_path must start with '/': %q", c.Server.BasePath)
	}

	// the root already serves /health
	if strings.Trim(c.Server.BasePath, "/") == "" {
		return errors.New("server base_path must not be the root path")
	}

	if !c.Worker.Embedded && c.usesMemoryDriver() {
		return errors.New("memory broker or result backend requires worker.embedded: true")
	}

	if c.Worker.Embedded {
		return c.validateWorker()
	}

	return nil
}

// ValidateWorkerConfig checks everything the worker-service needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.usesMemoryDriver() {
		return errors.New("memory broker and result backend are only available to an embedded worker")
	}

	return c.validateWorker()
}

func (c *Config) validateWorker() error {
	if c.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be greater than 0")
	}

	if c.Worker.PrefetchCount < 0 {
		return errors.New("worker prefetch_count must not be negative")
	}

	if c.Worker.JobTimeout < 0 {
		return errors.New("worker job_timeout must not be negative")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return errors.New("worker shutdown_timeout must be greater than 0")
	}

	return nil
}

func (c *Config) usesMemoryDriver() bool {
	return c.Broker.Driver == DriverMemory || c.ResultBackend.Driver == DriverMemory
}
