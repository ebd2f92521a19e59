package job

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository keeps jobs in a map guarded by a RWMutex. Jobs are
// cloned on the way in and out, and lost on restart; use MongoRepository
// to keep them.
type MemoryRepository struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{jobs: make(map[string]*Job)}
}

// Save implements Repository.
func (r *MemoryRepository) Save(_ context.Context, job *Job) error {
	snapshot := job.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[snapshot.ID] = snapshot
	return nil
}

// FindByID implements Repository.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	stored, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrJobNotFound
	}
	return stored.Clone(), nil
}

// List implements Repository. Ties on CreatedAt are broken by ID, which
// sorts by creation time as well for generated IDs.
func (r *MemoryRepository) List(_ context.Context, filter ListFilter) ([]*Job, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	out := make([]*Job, 0, len(r.jobs))
	for _, stored := range r.jobs {
		if filter.matches(stored) {
			out = append(out, stored.Clone())
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Job) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Delete implements Repository.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(r.jobs, id)
	return nil
}
