package service

import (
	"sort"
	"sync"

	"github.com/timmy/deepresearch/internal/domain"
)

// registryEntry pairs the latest job snapshot with the handle of the
// goroutine driving it.
type registryEntry struct {
	job    domain.Job
	handle *jobHandle
}

// Registry maps client-issued job ids to job snapshots and live job handles.
// Snapshots are replaced whole under a single lock, so a status read never
// observes a half-applied transition.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// Put inserts or overwrites the entry for job.ID.
func (r *Registry) Put(job domain.Job, handle *jobHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[job.ID] = &registryEntry{job: job.Clone(), handle: handle}
}

// Get returns a copy of the latest snapshot, or domain.ErrJobNotFound.
func (r *Registry) Get(id string) (domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return domain.Job{}, domain.ErrJobNotFound
	}
	return e.job.Clone(), nil
}

func (r *Registry) handle(id string) (*jobHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// Update applies fn to a working copy of the job and stores the result.
// If fn returns an error the stored snapshot is left untouched.
func (r *Registry) Update(id string, fn func(job *domain.Job) error) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return domain.Job{}, domain.ErrJobNotFound
	}
	next := e.job.Clone()
	if err := fn(&next); err != nil {
		return e.job.Clone(), err
	}
	e.job = next
	return next.Clone(), nil
}

// Delete removes id. Deleting an unknown id is not an error.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// List returns jobs ordered by CreatedAt descending, truncated to limit.
// A limit <= 0 returns every job.
func (r *Registry) List(limit int) []domain.Job {
	r.mu.RLock()
	jobs := make([]domain.Job, 0, len(r.entries))
	for _, e := range r.entries {
		jobs = append(jobs, e.job.Clone())
	}
	r.mu.RUnlock()

	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs
}
