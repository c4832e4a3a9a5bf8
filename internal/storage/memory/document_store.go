// Package memory keeps the application document in process memory for
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
)

// DocumentStore stores the encoded document so callers never share slices
// with the stored copy.
type DocumentStore struct {
	name string
	mu   sync.RWMutex
	data []byte
}

// NewDocumentStore creates an empty in-memory backend.
func NewDocumentStore(name string) *DocumentStore {
	return &DocumentStore{name: name}
}

// Name identifies the backend in logs and status output.
func (s *DocumentStore) Name() string {
	return s.name
}

// Load decodes the stored document; an unset store yields an empty document.
func (s *DocumentStore) Load(_ context.Context) (schedule.AppState, error) {
	s.mu.RLock()
	data := s.data
	s.mu.RUnlock()
	state, err := schedule.Decode(data)
	if err != nil {
		return schedule.AppState{}, fmt.Errorf("memory load %s: %w", s.name, err)
	}
	return state, nil
}

// Save replaces the stored document.
func (s *DocumentStore) Save(_ context.Context, state schedule.AppState) error {
	data, err := state.Encode()
	if err != nil {
		return fmt.Errorf("memory save %s: %w", s.name, err)
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

// Close implements schedule.Backend; it performs no action.
func (s *DocumentStore) Close() error {
	return nil
}
