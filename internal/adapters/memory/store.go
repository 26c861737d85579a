package memory

import (
	"context"
	"sort"
	"sync"

	"funcapp-deploy/internal/core/funcapp"
)

// Store keeps deployment records in process memory. It is used when no
// database is configured.
type Store struct {
	mu   sync.RWMutex
	byID map[string]funcapp.Deployment
}

func New() *Store {
	return &Store{byID: make(map[string]funcapp.Deployment)}
}

func (s *Store) Create(_ context.Context, d *funcapp.Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[d.ID] = *d
	return nil
}

func (s *Store) Save(ctx context.Context, d *funcapp.Deployment) error {
	return s.Create(ctx, d)
}

func (s *Store) Get(_ context.Context, id string) (*funcapp.Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	if !ok {
		return nil, funcapp.ErrNotFound
	}
	return &d, nil
}

// List returns records oldest first.
func (s *Store) List(_ context.Context) ([]funcapp.Deployment, error) {
	s.mu.RLock()
	out := make([]funcapp.Deployment, 0, len(s.byID))
	for _, d := range s.byID {
		out = append(out, d)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
