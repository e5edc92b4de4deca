package acl

import (
	"context"
	"sort"
	"sync"
	"time"

	"nakamura/internal/content"
)

type entryKey struct {
	path       string
	principal  string
	capability Capability
}

// MemStore is an in-memory Store used for development and tests.
type MemStore struct {
	mu      sync.RWMutex
	entries map[entryKey]Entry
}

// NewMemStore creates an empty in-memory entry store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[entryKey]Entry)}
}

var _ Store = (*MemStore)(nil)

func (s *MemStore) Upsert(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.UpdatedAt = time.Now()
	s.entries[entryKey{entry.Path, entry.Principal, entry.Capability}] = entry
	return nil
}

func (s *MemStore) EntriesFor(_ context.Context, path string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for k, e := range s.entries {
		if k.path == path {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Principal != out[j].Principal {
			return out[i].Principal < out[j].Principal
		}
		return out[i].Capability < out[j].Capability
	})
	return out, nil
}

func (s *MemStore) RemoveEntries(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.entries {
		if k.path == path || content.IsDescendant(path, k.path) {
			delete(s.entries, k)
		}
	}
	return nil
}

// Len returns the number of stored entries.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
