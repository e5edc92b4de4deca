package content

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memNode struct {
	createdAt time.Time
	props     map[string]*Property
}

// MemStore is an in-memory Store used for development and tests.
// It is safe for concurrent use.
type MemStore struct {
	mu    sync.RWMutex
	nodes map[string]*memNode
}

// NewMemStore creates an empty in-memory node tree.
func NewMemStore() *MemStore {
	return &MemStore{nodes: make(map[string]*memNode)}
}

var _ Store = (*MemStore)(nil)

func (s *MemStore) ItemExists(_ context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[path]; ok {
		return true, nil
	}
	if n, ok := s.nodes[Parent(path)]; ok {
		_, ok := n.props[LastElement(path)]
		return ok, nil
	}
	return false, nil
}

func (s *MemStore) GetNode(_ context.Context, path string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(path)
}

func (s *MemStore) CreateNode(_ context.Context, path string) (*Node, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, p := range append(Ancestors(path), path) {
		if _, ok := s.nodes[p]; !ok {
			s.nodes[p] = &memNode{createdAt: now, props: make(map[string]*Property)}
		}
	}
	return s.snapshot(path)
}

func (s *MemStore) SetProperty(_ context.Context, nodePath, name string, value Value) (*Property, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[nodePath]
	if !ok {
		return nil, ErrNotFound
	}
	if existing, ok := n.props[name]; ok && existing.Protected {
		return nil, ErrProtected
	}

	p := &Property{
		NodePath: nodePath,
		Name:     name,
		Values:   append([]string{}, value.Values...),
		Multiple: value.Multiple,
	}
	n.props[name] = p
	return p.clone(), nil
}

func (s *MemStore) RemoveProperty(_ context.Context, nodePath, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[nodePath]
	if !ok {
		return ErrNotFound
	}
	p, ok := n.props[name]
	if !ok || p.Protected {
		return ErrNotFound
	}
	delete(n.props, name)
	return nil
}

func (s *MemStore) RemoveNode(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[path]; !ok {
		return ErrNotFound
	}
	for p := range s.nodes {
		if p == path || IsDescendant(path, p) {
			delete(s.nodes, p)
		}
	}
	return nil
}

func (s *MemStore) MakeReferenceable(_ context.Context, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[path]
	if !ok {
		return "", ErrNotFound
	}
	if p, ok := n.props[UUIDProperty]; ok {
		return p.String(), nil
	}
	id := uuid.New().String()
	n.props[UUIDProperty] = &Property{
		NodePath:  path,
		Name:      UUIDProperty,
		Values:    []string{id},
		Protected: true,
	}
	return id, nil
}

func (s *MemStore) FindByProperty(_ context.Context, root, name, value string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var paths []string
	for path, n := range s.nodes {
		if !IsDescendant(root, path) {
			continue
		}
		p, ok := n.props[name]
		if !ok {
			continue
		}
		for _, v := range p.Values {
			if v == value {
				paths = append(paths, path)
				break
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Paths returns every stored node path in sorted order.
func (s *MemStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, len(s.nodes))
	for p := range s.nodes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// snapshot must be called with s.mu held.
func (s *MemStore) snapshot(path string) (*Node, error) {
	n, ok := s.nodes[path]
	if !ok {
		return nil, ErrNotFound
	}
	node := &Node{
		Path:       path,
		CreatedAt:  n.createdAt,
		Properties: make(map[string]*Property, len(n.props)),
	}
	for name, p := range n.props {
		node.Properties[name] = p.clone()
	}
	return node, nil
}
