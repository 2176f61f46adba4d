package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/kiranshivaraju/scanhunter/internal/cache"
	"github.com/kiranshivaraju/scanhunter/pkg/models"
)

// Hash field names of a job record.
const (
	fieldID           = "id"
	fieldRepoName     = "repoName"
	fieldRepoFullName = "repoFullName"
	fieldStatus       = "status"
	fieldTools        = "tools"
	fieldCurrentTool  = "currentTool"
	fieldProgress     = "progress"
	fieldStartedAt    = "startedAt"
	fieldCompletedAt  = "completedAt"
	fieldError        = "error"
	fieldResults      = "results"
)

// RedisStore keeps each job as a Redis hash so that Update only touches the
// fields it was given.
type RedisStore struct {
	cache   cache.Cache
	ttl     time.Duration
	timeout time.Duration
}

// NewRedisStore creates a RedisStore. Every write resets the record TTL to ttl
// and is abandoned after timeout.
func NewRedisStore(c cache.Cache, ttl, timeout time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RedisStore{cache: c, ttl: ttl, timeout: timeout}
}

// Create writes job as a fresh record, replacing any earlier record with the
// same id.
func (s *RedisStore) Create(ctx context.Context, job *models.ScanJob) {
	fields, err := encodeJob(job)
	if err != nil {
		slog.Warn("job store: encode job", "job_id", job.ID, "error", err)
		return
	}
	wctx, cancel := s.writeContext(ctx)
	defer cancel()

	if err := s.cache.HReplaceWithExpiry(wctx, cache.ScanJobKey(job.ID), fields, s.ttl); err != nil {
		slog.Warn("job store write dropped", "job_id", job.ID, "error", err)
	}
}

// Update merges the given fields into an existing record. Updates for a
// missing or expired record are dropped.
func (s *RedisStore) Update(ctx context.Context, id string, opts ...UpdateOption) {
	fields, err := buildPatch(opts).fields()
	if err != nil {
		slog.Warn("job store: encode update", "job_id", id, "error", err)
		return
	}
	wctx, cancel := s.writeContext(ctx)
	defer cancel()

	ok, err := s.cache.HUpdateWithExpiry(wctx, cache.ScanJobKey(id), fields, s.ttl)
	if err != nil {
		slog.Warn("job store write dropped", "job_id", id, "error", err)
		return
	}
	if !ok && len(fields) > 0 {
		slog.Warn("job store update for missing record dropped", "job_id", id)
	}
}

// writeContext is detached from the caller's cancellation: a shutting-down
// scan still records where it ended up.
func (s *RedisStore) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.ScanJob, bool, error) {
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fields, err := s.cache.HGetAll(rctx, cache.ScanJobKey(id))
	if err != nil {
		return nil, false, fmt.Errorf("get job %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	job, err := decodeJob(fields)
	if err != nil {
		return nil, false, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, true, nil
}

func encodeJob(job *models.ScanJob) (map[string]string, error) {
	tools, err := json.Marshal(job.Tools)
	if err != nil {
		return nil, err
	}
	fields := map[string]string{
		fieldID:           job.ID,
		fieldRepoName:     job.RepoName,
		fieldRepoFullName: job.RepoFullName,
		fieldStatus:       string(job.Status),
		fieldTools:        string(tools),
		fieldCurrentTool:  "",
		fieldProgress:     strconv.Itoa(job.Progress),
		fieldStartedAt:    job.StartedAt.UTC().Format(time.RFC3339Nano),
		fieldError:        job.Error,
	}
	if job.CurrentTool != nil {
		fields[fieldCurrentTool] = string(*job.CurrentTool)
	}
	if job.CompletedAt != nil {
		fields[fieldCompletedAt] = job.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	if job.Results != nil {
		b, err := json.Marshal(job.Results)
		if err != nil {
			return nil, err
		}
		fields[fieldResults] = string(b)
	}
	return fields, nil
}

func (p *patch) fields() (map[string]string, error) {
	fields := make(map[string]string)
	if p.status != nil {
		fields[fieldStatus] = string(*p.status)
	}
	if p.currentTool != nil {
		fields[fieldCurrentTool] = string(*p.currentTool)
	}
	if p.clearCurrentTool {
		fields[fieldCurrentTool] = ""
	}
	if p.progress != nil {
		fields[fieldProgress] = strconv.Itoa(*p.progress)
	}
	if p.completedAt != nil {
		fields[fieldCompletedAt] = p.completedAt.UTC().Format(time.RFC3339Nano)
	}
	if p.errMsg != nil {
		fields[fieldError] = *p.errMsg
	}
	if p.results != nil {
		b, err := json.Marshal(p.results)
		if err != nil {
			return nil, err
		}
		fields[fieldResults] = string(b)
	}
	return fields, nil
}

func decodeJob(fields map[string]string) (*models.ScanJob, error) {
	job := &models.ScanJob{
		ID:           fields[fieldID],
		RepoName:     fields[fieldRepoName],
		RepoFullName: fields[fieldRepoFullName],
		Status:       models.JobStatus(fields[fieldStatus]),
		Error:        fields[fieldError],
	}
	if v := fields[fieldTools]; v != "" {
		if err := json.Unmarshal([]byte(v), &job.Tools); err != nil {
			return nil, fmt.Errorf("tools: %w", err)
		}
	}
	if v := fields[fieldCurrentTool]; v != "" {
		t := models.Tool(v)
		job.CurrentTool = &t
	}
	if v := fields[fieldProgress]; v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("progress: %w", err)
		}
		job.Progress = p
	}
	if v := fields[fieldStartedAt]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("startedAt: %w", err)
		}
		job.StartedAt = t
	}
	if v := fields[fieldCompletedAt]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("completedAt: %w", err)
		}
		job.CompletedAt = &t
	}
	if v := fields[fieldResults]; v != "" {
		var r models.Results
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			return nil, fmt.Errorf("results: %w", err)
		}
		job.Results = &r
	}
	return job, nil
}

// Compile-time check that RedisStore implements Store.
var _ Store = (*RedisStore)(nil)
