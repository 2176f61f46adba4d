// Package jobstore holds the polled, TTL-bounded record of scan jobs.
//
// Writes are best-effort: Create and Update return nothing and never block
// longer than the store's write timeout. If the backing store is unavailable
// the scan carries on and only progress visibility is lost. Each job id has a
// single writer, so Update merges fields without compare-and-swap.
package jobstore

import (
	"context"
	"time"

	"github.com/kiranshivaraju/scanhunter/pkg/models"
)

// DefaultTTL is how long a job record survives its last write.
const DefaultTTL = 24 * time.Hour

// Store is the job-state contract shared by the orchestrator and the API.
type Store interface {
	// Create writes the initial record. Failures are logged, never returned.
	Create(ctx context.Context, job *models.ScanJob)
	// Update merges only the supplied fields into the record and refreshes
	// its TTL. Failures are logged, never returned.
	Update(ctx context.Context, id string, opts ...UpdateOption)
	// Get returns the current record, or found=false if it is absent or expired.
	Get(ctx context.Context, id string) (job *models.ScanJob, found bool, err error)
}

type patch struct {
	status           *models.JobStatus
	currentTool      *models.Tool
	clearCurrentTool bool
	progress         *int
	completedAt      *time.Time
	errMsg           *string
	results          *models.Results
}

// UpdateOption selects one field to change in Update.
type UpdateOption func(*patch)

func WithStatus(s models.JobStatus) UpdateOption {
	return func(p *patch) { p.status = &s }
}

func WithCurrentTool(t models.Tool) UpdateOption {
	return func(p *patch) {
		p.currentTool = &t
		p.clearCurrentTool = false
	}
}

// WithoutCurrentTool clears currentTool.
func WithoutCurrentTool() UpdateOption {
	return func(p *patch) {
		p.currentTool = nil
		p.clearCurrentTool = true
	}
}

func WithProgress(progress int) UpdateOption {
	return func(p *patch) { p.progress = &progress }
}

func WithCompletedAt(t time.Time) UpdateOption {
	return func(p *patch) { p.completedAt = &t }
}

func WithError(msg string) UpdateOption {
	return func(p *patch) { p.errMsg = &msg }
}

// WithResults replaces the whole results map. Results are only ever grown by
// the single writer, so replacing is equivalent to merging here.
func WithResults(r *models.Results) UpdateOption {
	return func(p *patch) { p.results = r }
}

func buildPatch(opts []UpdateOption) *patch {
	p := &patch{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply merges opts into job in place. The orchestrator uses it on its own
// in-memory copy so that copy and the stored record change identically.
func Apply(job *models.ScanJob, opts ...UpdateOption) {
	buildPatch(opts).apply(job)
}

func (p *patch) apply(job *models.ScanJob) {
	if p.status != nil {
		job.Status = *p.status
	}
	if p.currentTool != nil {
		t := *p.currentTool
		job.CurrentTool = &t
	}
	if p.clearCurrentTool {
		job.CurrentTool = nil
	}
	if p.progress != nil {
		job.Progress = *p.progress
	}
	if p.completedAt != nil {
		t := *p.completedAt
		job.CompletedAt = &t
	}
	if p.errMsg != nil {
		job.Error = *p.errMsg
	}
	if p.results != nil {
		job.Results = p.results
	}
}
