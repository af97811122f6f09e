package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FileStore persists the catalog as a pretty-printed JSON string array,
// the format the route catalog has always shipped in.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the catalog file. A missing or corrupt file yields an empty
// catalog.
func (s *FileStore) Load(_ context.Context) ([]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, nil
	}

	var routes []string
	if err := json.Unmarshal(data, &routes); err != nil {
		return nil, nil
	}
	return routes, nil
}

// Save writes the catalog atomically via a temp-file rename.
func (s *FileStore) Save(_ context.Context, routes []string) error {
	data, err := json.MarshalIndent(routes, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal routes: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write routes file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace routes file: %w", err)
	}
	return nil
}
