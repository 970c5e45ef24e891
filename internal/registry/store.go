// Package registry implements the shared, append-only, URL-deduplicated
// source index backed by a JSON file.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/histocoin/artifact-miner/internal/miner"
)

// document is the on-disk shape of the registry file.
type document struct {
	Sources []miner.Source `json:"sources"`
}

// Store is the narrow persistence boundary. All dedup and append logic
// lives above it, so a locking or key-value backend can replace it later.
type Store interface {
	Load() ([]miner.Source, error)
	Save([]miner.Source) error
}

// FileStore reads and writes the whole registry file per operation. The
// file is shared mutable state across processes; concurrent writers race
// and the last one wins.
type FileStore struct {
	path string
}

// NewFileStore builds a FileStore for the given path.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("registry path is required")
	}
	return &FileStore{path: path}, nil
}

// Load reads every source from the registry file, materializing an empty
// registry on first use.
func (s *FileStore) Load() ([]miner.Source, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			if initErr := s.Save(nil); initErr != nil {
				return nil, initErr
			}
			return nil, nil
		}
		return nil, fmt.Errorf("read registry file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse registry file: %w", err)
	}
	return doc.Sources, nil
}

// Save rewrites the full registry file.
func (s *FileStore) Save(sources []miner.Source) error {
	doc := document{Sources: sources}
	if doc.Sources == nil {
		doc.Sources = []miner.Source{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create registry directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write registry file: %w", err)
	}
	return nil
}
