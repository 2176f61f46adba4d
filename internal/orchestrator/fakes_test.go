package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/kiranshivaraju/scanhunter/internal/fetcher"
	"github.com/kiranshivaraju/scanhunter/internal/jobstore"
	"github.com/kiranshivaraju/scanhunter/internal/scanner"
	"github.com/kiranshivaraju/scanhunter/pkg/models"
)

// recordingStore is a MemoryStore that keeps a snapshot of the record after
// every write.
type recordingStore struct {
	*jobstore.MemoryStore

	mu        sync.Mutex
	snapshots []models.ScanJob
	// panicOn makes Update panic when the record it would produce matches.
	panicOn func(models.ScanJob) bool
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: jobstore.NewMemoryStore()}
}

func (s *recordingStore) Create(ctx context.Context, job *models.ScanJob) {
	s.MemoryStore.Create(ctx, job)
	s.record(ctx, job.ID)
}

func (s *recordingStore) Update(ctx context.Context, id string, opts ...jobstore.UpdateOption) {
	if s.panicOn != nil {
		if next, ok, _ := s.MemoryStore.Get(ctx, id); ok {
			jobstore.Apply(next, opts...)
			if s.panicOn(*next) {
				panic("job store exploded")
			}
		}
	}
	s.MemoryStore.Update(ctx, id, opts...)
	s.record(ctx, id)
}

func (s *recordingStore) record(ctx context.Context, id string) {
	job, ok, _ := s.MemoryStore.Get(ctx, id)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, *job)
}

func (s *recordingStore) history() []models.ScanJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ScanJob(nil), s.snapshots...)
}

// fakeFetcher writes files into the clone directory, or fails.
type fakeFetcher struct {
	mu    sync.Mutex
	files map[string]string
	err   error
	block chan struct{}
	reqs  []fetcher.CloneRequest
	dirs  []string
}

func (f *fakeFetcher) Clone(ctx context.Context, req fetcher.CloneRequest, dir string) error {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.dirs = append(f.dirs, dir)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	files := f.files
	if files == nil {
		files = map[string]string{"README.md": "fixture\n"}
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// fakeRunner returns a canned result or error.
type fakeRunner struct {
	tool models.Tool
	run  func(ctx context.Context, target scanner.Target) (*models.ToolResult, error)

	mu      sync.Mutex
	calls   int
	targets []scanner.Target
}

func (r *fakeRunner) Tool() models.Tool { return r.tool }

func (r *fakeRunner) Run(ctx context.Context, target scanner.Target) (*models.ToolResult, error) {
	r.mu.Lock()
	r.calls++
	r.targets = append(r.targets, target)
	r.mu.Unlock()
	if r.run != nil {
		return r.run(ctx, target)
	}
	return models.NewToolResult(r.tool, nil), nil
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func findingsRunner(tool models.Tool, findings ...models.Finding) *fakeRunner {
	return &fakeRunner{tool: tool, run: func(context.Context, scanner.Target) (*models.ToolResult, error) {
		return models.NewToolResult(tool, findings), nil
	}}
}

func failingRunner(tool models.Tool, kind error) *fakeRunner {
	return &fakeRunner{tool: tool, run: func(context.Context, scanner.Target) (*models.ToolResult, error) {
		return nil, &scanner.ToolError{Tool: tool, Kind: kind}
	}}
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []models.AlertSummary
	urls  []string
	err   error
	panic bool
}

func (n *fakeNotifier) Notify(_ context.Context, url string, s models.AlertSummary) error {
	n.mu.Lock()
	n.calls = append(n.calls, s)
	n.urls = append(n.urls, url)
	n.mu.Unlock()
	if n.panic {
		panic("notifier exploded")
	}
	return n.err
}

func (n *fakeNotifier) summaries() []models.AlertSummary {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.AlertSummary(nil), n.calls...)
}

type fakeHistory struct {
	mu   sync.Mutex
	runs []*models.ScanRun
	err  error
}

func (h *fakeHistory) RecordScanRun(_ context.Context, run *models.ScanRun) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, run)
	return h.err
}

type fakeArchive struct {
	mu   sync.Mutex
	jobs []string
}

func (a *fakeArchive) Archive(_ context.Context, job *models.ScanJob) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.jobs = append(a.jobs, job.ID)
	return nil
}

func jsonString(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}
