package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore persists each snapshot as one JSON document under a
// directory, named by its record ID.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a FileStore.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("snapshot directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save implements SnapshotStore.
func (s *FileStore) Save(ctx context.Context, record Record) error {
	if record.ID == "" {
		return fmt.Errorf("record id is required")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding snapshot %s: %w", record.ID, err)
	}

	// Write-then-rename so a crash mid-write never leaves a torn file.
	tmp := s.path(record.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", record.ID, err)
	}
	if err := os.Rename(tmp, s.path(record.ID)); err != nil {
		return fmt.Errorf("committing snapshot %s: %w", record.ID, err)
	}
	return nil
}

// Load implements SnapshotStore.
func (s *FileStore) Load(ctx context.Context, id string) (Record, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Record{}, fmt.Errorf("reading snapshot %s: %w", id, err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("decoding snapshot %s: %w", id, err)
	}
	return record, nil
}

// List implements SnapshotStore.
func (s *FileStore) List(ctx context.Context) ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	records := make([]Record, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		record, err := s.Load(ctx, strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}
