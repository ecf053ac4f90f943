// Package storage persists buffer snapshots for checkpoint/resume.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotFound indicates the requested snapshot does not exist.
	ErrNotFound = errors.New("snapshot not found")
)

// Record is one persisted buffer snapshot. Payload holds the
// kind-specific snapshot document produced by the replay package.
type Record struct {
	ID        string          `json:"id"`
	BufferID  string          `json:"buffer_id"`
	Kind      string          `json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// SnapshotStore captures the persistence operations the replay service
// relies on.
type SnapshotStore interface {
	Save(ctx context.Context, record Record) error
	Load(ctx context.Context, id string) (Record, error)
	List(ctx context.Context) ([]Record, error)
}

// MemoryStore is an in-memory SnapshotStore for development/testing.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
	}
}

// Save implements SnapshotStore.
func (s *MemoryStore) Save(ctx context.Context, record Record) error {
	if record.ID == "" {
		return fmt.Errorf("record id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return nil
}

// Load implements SnapshotStore.
func (s *MemoryStore) Load(ctx context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return record, nil
}

// List implements SnapshotStore.
func (s *MemoryStore) List(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]Record, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	return records, nil
}
