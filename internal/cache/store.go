// Package cache keeps the durable tweet ID to text mapping shared by every
// batch of a run.
package cache

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/tweet-harvester/internal/metrics"
)

// Backend persists the whole mapping.
type Backend interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, entries map[string]string) error
}

// Store is the in-memory view of the cache. An empty string is a recorded
// result, distinct from a missing entry.
type Store struct {
	mu      sync.RWMutex
	entries map[string]string
	backend Backend
	logger  *zap.Logger
}

// NewStore builds an empty Store over backend. backend may be nil for a
// memory-only cache.
func NewStore(backend Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		entries: make(map[string]string),
		backend: backend,
		logger:  logger.Named("cache"),
	}
}

// Load replaces the in-memory mapping with the backend contents.
func (s *Store) Load(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	entries, err := s.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("load cache: %w", err)
	}
	if entries == nil {
		entries = make(map[string]string)
	}
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	s.logger.Info("cache loaded", zap.Int("entries", len(entries)))
	return nil
}

// Save writes a snapshot of the mapping to the backend.
func (s *Store) Save(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	snapshot := s.Snapshot()
	if err := s.backend.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("save cache: %w", err)
	}
	s.logger.Debug("cache saved", zap.Int("entries", len(snapshot)))
	return nil
}

// Lookup reports the recorded text for id and whether any entry exists.
func (s *Store) Lookup(id string) (string, bool) {
	s.mu.RLock()
	text, ok := s.entries[id]
	s.mu.RUnlock()
	metrics.ObserveCacheLookup(ok)
	return text, ok
}

// Get returns the recorded text, or "" when absent.
func (s *Store) Get(id string) string {
	text, _ := s.Lookup(id)
	return text
}

// Put records text for id, replacing any earlier value.
func (s *Store) Put(id, text string) {
	s.mu.Lock()
	s.entries[id] = text
	s.mu.Unlock()
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns a copy of the mapping.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}
