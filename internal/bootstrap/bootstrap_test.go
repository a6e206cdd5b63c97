package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/cuongbtq/async-task-api/internal/backend"
	"github.com/cuongbtq/async-task-api/internal/broker"
	"github.com/cuongbtq/async-task-api/internal/config"
	"github.com/cuongbtq/async-task-api/internal/queue"
	"github.com/cuongbtq/async-task-api/internal/task"
	"github.com/cuongbtq/async-task-api/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	cfg := &config.Config{
		Broker:        config.BrokerConfig{Driver: config.DriverMemory},
		ResultBackend: config.ResultBackendConfig{Driver: config.DriverMemory},
		Worker:        config.WorkerConfig{Embedded: true},
		Tasks:         config.TasksConfig{TimeUnit: 5 * time.Millisecond},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestInitLogger(t *testing.T) {
	l, err := InitLogger(&config.LoggingConfig{Level: "debug", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	assert.NotNil(t, l.Logger)
	assert.NoError(t, l.Close())
}

func TestOpenBroker(t *testing.T) {
	log := logger.NewNop().Logger

	b, err := OpenBroker(memoryConfig(), log)
	require.NoError(t, err)
	assert.IsType(t, &broker.Memory{}, b)
	assert.NoError(t, b.Ping(context.Background()))
	assert.NoError(t, b.Close())

	cfg := memoryConfig()
	cfg.Broker.Driver = "kafka"
	_, err = OpenBroker(cfg, log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported broker driver")
}

func TestOpenStore(t *testing.T) {
	log := logger.NewNop().Logger

	store, err := OpenStore(context.Background(), memoryConfig(), log)
	require.NoError(t, err)
	assert.IsType(t, &backend.MemoryStore{}, store.Store)
	assert.Implements(t, (*backend.Purger)(nil), store.Store, "janitor needs the unwrapped store")
	assert.NoError(t, store.Ping(context.Background()))
	assert.NoError(t, store.Close())

	cfg := memoryConfig()
	cfg.ResultBackend.Driver = "mongo"
	_, err = OpenStore(context.Background(), cfg, log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported result backend driver")
}

func TestNewWorker_RunsJobs(t *testing.T) {
	cfg := memoryConfig()
	log := logger.NewNop().Logger

	b, err := OpenBroker(cfg, log)
	require.NoError(t, err)
	store, err := OpenStore(context.Background(), cfg, log)
	require.NoError(t, err)

	w := NewWorker(cfg, log, b, store.Store)
	assert.Regexp(t, `^worker-.+-[0-9a-f]{8}$`, w.ID())

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(context.Background()) }()
	t.Cleanup(func() {
		w.Stop()
		assert.NoError(t, <-errCh)
		_ = b.Close()
	})

	d := queue.NewDispatcher(b, store, cfg.ResultBackend.ResultTTL, log)
	id, err := d.Submit(context.Background(), task.NameLongRunningTask, task.LongRunningTaskArgs{Name: "boot", Duration: 1})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rec, err := d.Status(context.Background(), id)
		return err == nil && rec.Status == task.StatusSuccess
	}, 2*time.Second, 5*time.Millisecond)
}
