package authorizable

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store used for development and tests.
type MemStore struct {
	mu   sync.RWMutex
	byID map[string]*Authorizable
}

// NewMemStore creates an empty in-memory authorizable store.
func NewMemStore() *MemStore {
	return &MemStore{byID: make(map[string]*Authorizable)}
}

var _ Store = (*MemStore)(nil)

func (s *MemStore) Create(_ context.Context, a *Authorizable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[a.ID]; ok {
		return ErrAlreadyExists
	}
	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	s.byID[a.ID] = clone(a)
	return nil
}

func (s *MemStore) Get(_ context.Context, id string) (*Authorizable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(a), nil
}

func (s *MemStore) SetProperty(_ context.Context, id, name string, values []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	a.Properties[name] = append([]string{}, values...)
	a.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) RemoveProperty(_ context.Context, id, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	if _, ok := a.Properties[name]; !ok {
		return false, nil
	}
	delete(a.Properties, name)
	a.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemStore) AddMember(_ context.Context, groupID, memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.byID[groupID]
	if !ok {
		return ErrNotFound
	}
	for _, m := range g.Members {
		if m == memberID {
			return nil
		}
	}
	g.Members = append(g.Members, memberID)
	sort.Strings(g.Members)
	return nil
}

func (s *MemStore) RemoveMember(_ context.Context, groupID, memberID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.byID[groupID]
	if !ok {
		return false, ErrNotFound
	}
	for i, m := range g.Members {
		if m == memberID {
			g.Members = append(g.Members[:i], g.Members[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return ErrNotFound
	}
	delete(s.byID, id)

	// Memberships of the removed authorizable go with it.
	for _, g := range s.byID {
		for i, m := range g.Members {
			if m == id {
				g.Members = append(g.Members[:i], g.Members[i+1:]...)
				break
			}
		}
	}
	return nil
}

func clone(a *Authorizable) *Authorizable {
	c := *a
	c.Properties = make(map[string][]string, len(a.Properties))
	for k, v := range a.Properties {
		c.Properties[k] = append([]string{}, v...)
	}
	c.Members = append([]string(nil), a.Members...)
	return &c
}
