package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuongbtq/async-task-api/internal/task"
)

// MemoryStore keeps records in process memory. It backs the embedded
// development mode and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*task.Record
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*task.Record),
		now:     time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, rec *task.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.ID]; ok && !existing.Expired(s.now()) {
		return fmt.Errorf("task %s already exists", rec.ID)
	}
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*task.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok || rec.Expired(s.now()) {
		return nil, task.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, mutate func(*task.Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Expired(s.now()) {
		return task.ErrNotFound
	}

	working := cloneRecord(rec)
	if err := mutate(working); err != nil {
		return err
	}
	s.records[id] = working
	return nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// PurgeExpired drops records past their retention window
func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for id, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, id)
			purged++
		}
	}
	return purged, nil
}

// Len returns the number of stored records, expired ones included
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func cloneRecord(rec *task.Record) *task.Record {
	c := *rec
	if rec.Args != nil {
		c.Args = append([]byte(nil), rec.Args...)
	}
	if rec.StartedAt != nil {
		t := *rec.StartedAt
		c.StartedAt = &t
	}
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
