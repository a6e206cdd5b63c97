package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/async-task-api/internal/task"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix     = "tasks:"
	maxOptimisticRetries = 10
)

// RedisStore keeps each record as a JSON string under its own key. Key TTL
// enforces retention.
type RedisStore struct {
	rdb    *goredis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a RedisStore. An empty prefix uses "tasks:".
func NewRedisStore(rdb *goredis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{
		rdb:    rdb,
		prefix: prefix,
		now:    time.Now,
	}
}

// metaKey returns the key for a task record: {prefix}meta:{id}
func (s *RedisStore) metaKey(id string) string {
	return s.prefix + "meta:" + id
}

func (s *RedisStore) Create(ctx context.Context, rec *task.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("backend/redis: marshal task %s: %w", rec.ID, err)
	}

	var ttl time.Duration
	if !rec.ExpiresAt.IsZero() {
		ttl = rec.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			return fmt.Errorf("backend/redis: task %s already expired", rec.ID)
		}
	}

	ok, err := s.rdb.SetNX(ctx, s.metaKey(rec.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("backend/redis: create task %s: %w", rec.ID, err)
	}
	if !ok {
		return fmt.Errorf("backend/redis: task %s already exists", rec.ID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*task.Record, error) {
	data, err := s.rdb.Get(ctx, s.metaKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, task.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("backend/redis: get task %s: %w", id, err)
	}
	return decodeRecord(id, data)
}

// Update runs mutate inside WATCH/MULTI and retries when another client
// changed the key in between.
func (s *RedisStore) Update(ctx context.Context, id string, mutate func(*task.Record) error) error {
	key := s.metaKey(id)

	txf := func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return task.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("backend/redis: get task %s: %w", id, err)
		}

		rec, err := decodeRecord(id, data)
		if err != nil {
			return err
		}
		if err := mutate(rec); err != nil {
			return err
		}

		out, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("backend/redis: marshal task %s: %w", id, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, out, goredis.KeepTTL)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxOptimisticRetries; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("backend/redis: update task %s: too much contention", id)
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func decodeRecord(id string, data []byte) (*task.Record, error) {
	var rec task.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("backend/redis: decode task %s: %w", id, err)
	}
	return &rec, nil
}
