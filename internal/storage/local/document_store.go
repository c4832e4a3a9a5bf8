// Package local implements a document backend on the local filesystem.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
)

// Config captures the parameters for the local filesystem backend.
type Config struct {
	Name string
	// Path is the JSON file holding the document.
	Path string `mapstructure:"path" yaml:"path"`
}

// DocumentStore reads and writes the document as a single JSON file.
type DocumentStore struct {
	name string
	path string
	mu   sync.Mutex
}

// New creates a file-backed document store, creating parent directories.
func New(cfg Config) (*DocumentStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("document path is required")
	}
	dir := filepath.Dir(cfg.Path)
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create document directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat document directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("document directory path is not a directory")
	}
	name := cfg.Name
	if name == "" {
		name = "local"
	}
	return &DocumentStore{name: name, path: cfg.Path}, nil
}

// Name identifies the backend in logs and status output.
func (s *DocumentStore) Name() string {
	return s.name
}

// Load reads the document; a missing file yields an empty document.
func (s *DocumentStore) Load(_ context.Context) (schedule.AppState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return schedule.NewAppState(), nil
		}
		return schedule.AppState{}, fmt.Errorf("read document: %w", err)
	}
	state, err := schedule.Decode(data)
	if err != nil {
		return schedule.AppState{}, fmt.Errorf("load %s: %w", s.path, err)
	}
	return state, nil
}

// Save writes the document to a temp file and renames it into place so a
// crash never leaves a truncated document behind.
func (s *DocumentStore) Save(_ context.Context, state schedule.AppState) error {
	data, err := state.Encode()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace document: %w", err)
	}
	return nil
}

// Close implements schedule.Backend; it performs no action.
func (s *DocumentStore) Close() error {
	return nil
}
