// Package memory is an in-process job store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bramasta/verimedia/internal/domain/analysis"
	domain "github.com/bramasta/verimedia/internal/domain/jobs"
)

type JobRepository struct {
	mu   sync.RWMutex
	jobs map[domain.ID]*domain.Job
}

func NewJobRepository() *JobRepository {
	return &JobRepository{jobs: make(map[domain.ID]*domain.Job)}
}

func (r *JobRepository) Save(_ context.Context, j *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *j
	if j.Result != nil {
		res := *j.Result
		cp.Result = &res
	}
	r.jobs[j.ID] = &cp
	return nil
}

func (r *JobRepository) Get(_ context.Context, id domain.ID) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, analysis.ErrNotFound)
	}
	cp := *j
	if j.Result != nil {
		res := *j.Result
		cp.Result = &res
	}
	return &cp, nil
}

func (r *JobRepository) UpdateState(_ context.Context, id domain.ID, state domain.State, cause string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, analysis.ErrNotFound)
	}
	j.State = state
	j.Cause = cause
	return nil
}

func (r *JobRepository) Latest(_ context.Context, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		cp := *j
		if j.Result != nil {
			res := *j.Result
			cp.Result = &res
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].SubmittedAt.After(out[k].SubmittedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
