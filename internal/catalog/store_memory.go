package catalog

import (
	"context"
	"slices"
	"sync"
)

// MemStore keeps products in insertion order. One lock covers the slice so id
// assignment and lookup-then-mutate sequences cannot interleave.
type MemStore struct {
	mu    sync.RWMutex
	items []Product
}

func NewMemStore(seed []Product) *MemStore {
	return &MemStore{items: slices.Clone(seed)}
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) List(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, len(s.items))
	copy(out, s.items)
	return out, nil
}

func (s *MemStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.items), nil
}

func (s *MemStore) Get(ctx context.Context, id int64) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return Product{}, ErrNotFound
	}
	return s.items[i], nil
}

func (s *MemStore) Create(ctx context.Context, f Fields) (Product, error) {
	if err := f.validateCreate(); err != nil {
		return Product{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := newProduct(s.nextID(), f)
	s.items = append(s.items, p)
	return p, nil
}

func (s *MemStore) Update(ctx context.Context, id int64, f Fields) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return Product{}, ErrNotFound
	}
	if err := f.validate(); err != nil {
		return Product{}, err
	}

	s.items[i].apply(f)
	return s.items[i], nil
}

func (s *MemStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	s.items = slices.Delete(s.items, i, i+1)
	return nil
}

func (s *MemStore) indexOf(id int64) int {
	return slices.IndexFunc(s.items, func(p Product) bool { return p.ID == id })
}

// nextID is max(id)+1, or 1 for an empty store. Callers hold the write lock.
func (s *MemStore) nextID() int64 {
	var top int64
	for _, p := range s.items {
		if p.ID > top {
			top = p.ID
		}
	}
	return top + 1
}
