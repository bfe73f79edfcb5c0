package backfill

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-ingest/core"

	"github.com/google/uuid"
)

// MemoryJobStore is a process-local BackfillJobStore for tests and
// embedded setups without a persistence client.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]core.BackfillJob
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: map[string]core.BackfillJob{}}
}

func (s *MemoryJobStore) Create(ctx context.Context, job core.BackfillJob) (core.BackfillJob, error) {
	if s == nil {
		return core.BackfillJob{}, fmt.Errorf("%w: memory backfill job store", core.ErrNotConfigured)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(job.ID) == "" {
		job.ID = uuid.NewString()
	}
	s.jobs[job.ID] = job
	return job, nil
}

func (s *MemoryJobStore) Get(ctx context.Context, id string) (core.BackfillJob, error) {
	if s == nil {
		return core.BackfillJob{}, fmt.Errorf("%w: memory backfill job store", core.ErrNotConfigured)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[strings.TrimSpace(id)]
	if !ok {
		return core.BackfillJob{}, fmt.Errorf("%w: %s", core.ErrBackfillJobNotFound, id)
	}
	return job, nil
}

func (s *MemoryJobStore) Update(ctx context.Context, job core.BackfillJob) (core.BackfillJob, error) {
	if s == nil {
		return core.BackfillJob{}, fmt.Errorf("%w: memory backfill job store", core.ErrNotConfigured)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return core.BackfillJob{}, fmt.Errorf("%w: %s", core.ErrBackfillJobNotFound, job.ID)
	}
	s.jobs[job.ID] = job
	return job, nil
}

var _ core.BackfillJobStore = (*MemoryJobStore)(nil)
