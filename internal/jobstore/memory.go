package jobstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kiranshivaraju/scanhunter/pkg/models"
)

// MemoryStore is a process-local Store without expiry. Used for development
// without Redis and in tests.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*models.ScanJob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*models.ScanJob)}
}

func (s *MemoryStore) Create(_ context.Context, job *models.ScanJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = clone(job)
}

// Update drops writes for unknown ids, matching a record that has expired.
func (s *MemoryStore) Update(_ context.Context, id string, opts ...UpdateOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	Apply(job, opts...)
	if job.Results != nil {
		job.Results = clone(&models.ScanJob{Results: job.Results}).Results
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.ScanJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false, nil
	}
	return clone(job), true, nil
}

// clone deep-copies a job so callers never share mutable state with the store.
func clone(job *models.ScanJob) *models.ScanJob {
	b, err := json.Marshal(job)
	if err != nil {
		cp := *job
		return &cp
	}
	var out models.ScanJob
	if err := json.Unmarshal(b, &out); err != nil {
		cp := *job
		return &cp
	}
	return &out
}

var _ Store = (*MemoryStore)(nil)
