package accuracy

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps predictions in process.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Prediction
	order []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Prediction)}
}

func (s *MemoryStore) Put(_ context.Context, p Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	s.items[p.ID] = p
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.items[id]
	if !ok {
		return Prediction{}, fmt.Errorf("%w: %s", ErrPredictionNotFound, id)
	}
	return p, nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Prediction, 0, len(s.order))
	for _, id := range s.order {
		if p := s.items[id]; f.Match(p) {
			out = append(out, p)
		}
	}
	return out, nil
}
