package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Repository persists the ordered queue of operations. Save overwrites the
// whole queue; partial writes must never be observable by a later Load.
type Repository interface {
	Load() ([]Operation, error)
	Save(ops []Operation) error
}

// FileRepository stores the queue as a JSON array in a single file.
// It is the lightweight alternative to the SQLite repository.
type FileRepository struct {
	path string
}

// NewFileRepository creates a repository backed by the file at path.
// The file is created on first Save.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

// Load reads the persisted queue. A missing file is an empty queue.
func (r *FileRepository) Load() ([]Operation, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read queue file: %w", err)
	}

	var ops []Operation
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("failed to parse queue file %s: %w", r.path, err)
	}
	return ops, nil
}

// Save atomically replaces the persisted queue by writing to a temporary
// file and renaming it over the target.
func (r *FileRepository) Save(ops []Operation) error {
	if ops == nil {
		ops = []Operation{}
	}

	data, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("failed to marshal queue: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write queue file: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("failed to replace queue file: %w", err)
	}

	return nil
}
