// Package orchestrator drives a scan job end to end: clone, run each
// requested tool in order, aggregate, notify, and always clean up.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/scanhunter/internal/analysis"
	"github.com/kiranshivaraju/scanhunter/internal/fetcher"
	"github.com/kiranshivaraju/scanhunter/internal/jobstore"
	"github.com/kiranshivaraju/scanhunter/internal/notify"
	"github.com/kiranshivaraju/scanhunter/internal/scanner"
	"github.com/kiranshivaraju/scanhunter/pkg/models"
)

var (
	ErrInvalidRequest = errors.New("invalid scan request")
	ErrJobActive      = errors.New("a job with this id is already running")
)

var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

const defaultSideEffectTimeout = 10 * time.Second

// HistoryRecorder keeps a durable row per finished job.
type HistoryRecorder interface {
	RecordScanRun(ctx context.Context, run *models.ScanRun) error
}

// ReportArchive stores the full results of a finished job.
type ReportArchive interface {
	Archive(ctx context.Context, job *models.ScanJob) error
}

// Dependencies are the collaborators of an Orchestrator. History and Archive
// are optional.
type Dependencies struct {
	Store    jobstore.Store
	Runners  map[models.Tool]scanner.Runner
	Fetcher  fetcher.Fetcher
	Notifier notify.Notifier
	History  HistoryRecorder
	Archive  ReportArchive
}

type Config struct {
	// WorkDir is the parent of every per-job ephemeral directory.
	WorkDir string
	// SideEffectTimeout bounds notification, history and archive calls.
	SideEffectTimeout time.Duration
}

// Orchestrator runs scan jobs. Each job runs in its own goroutine; jobs share
// nothing but the job store, where their keys are disjoint.
type Orchestrator struct {
	deps Dependencies
	cfg  Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]struct{}

	now func() time.Time
}

func New(deps Dependencies, cfg Config) *Orchestrator {
	if cfg.SideEffectTimeout <= 0 {
		cfg.SideEffectTimeout = defaultSideEffectTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		active: make(map[string]struct{}),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Start validates req, records the pending job and runs it in the background.
// The returned job is a snapshot of the initial state.
func (o *Orchestrator) Start(ctx context.Context, req models.ScanRequest) (*models.ScanJob, error) {
	job, err := o.newJob(req)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	if _, running := o.active[job.ID]; running {
		o.mu.Unlock()
		return nil, ErrJobActive
	}
	o.active[job.ID] = struct{}{}
	o.wg.Add(1)
	o.mu.Unlock()

	o.deps.Store.Create(ctx, job)
	snapshot := *job

	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.active, job.ID)
			o.mu.Unlock()
		}()
		o.Run(o.ctx, job, req)
	}()

	return &snapshot, nil
}

// Wait blocks until every started job has reached a terminal state.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown waits for running jobs until ctx is done, then cancels them. A
// cancelled job kills its active tool and still finishes with a terminal state.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.cancel()
		<-done
		return ctx.Err()
	}
}

func (o *Orchestrator) newJob(req models.ScanRequest) (*models.ScanJob, error) {
	if req.RepoFullName == "" {
		return nil, fmt.Errorf("%w: repoFullName is required", ErrInvalidRequest)
	}
	if len(req.Tools) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, models.ErrNoTools)
	}
	for _, t := range req.Tools {
		if _, ok := o.deps.Runners[t]; !ok {
			return nil, fmt.Errorf("%w: no runner for tool %q", ErrInvalidRequest, t)
		}
	}

	id := req.JobID
	if id == "" {
		id = uuid.NewString()
	} else if !jobIDPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: job id must match %s", ErrInvalidRequest, jobIDPattern)
	}

	repoName := req.RepoName
	if repoName == "" {
		repoName = req.RepoFullName
	}

	return &models.ScanJob{
		ID:           id,
		RepoName:     repoName,
		RepoFullName: req.RepoFullName,
		Status:       models.JobStatusPending,
		Tools:        append([]models.Tool(nil), req.Tools...),
		StartedAt:    o.now(),
	}, nil
}

// Run executes job synchronously until it is completed or failed. The caller
// owns job; Run is its only writer.
func (o *Orchestrator) Run(ctx context.Context, job *models.ScanJob, req models.ScanRequest) {
	log := slog.With("job_id", job.ID, "repo", job.RepoFullName)
	start := time.Now()

	defer func() {
		log.Info("scan finished", "status", job.Status, "duration_ms", time.Since(start).Milliseconds())
		o.recordHistory(ctx, job)
	}()
	defer o.recoverJob(ctx, job, log)

	ws, err := newWorkspace(o.cfg.WorkDir, job.ID)
	if err != nil {
		o.fail(ctx, job, err.Error())
		return
	}
	defer ws.remove(log)

	o.update(ctx, job, jobstore.WithStatus(models.JobStatusCloning))

	cloneStart := time.Now()
	err = o.deps.Fetcher.Clone(ctx, fetcher.CloneRequest{
		URL:   fetcher.RepoURL(job.RepoFullName),
		Token: req.Credential,
	}, ws.repoDir())
	if err != nil {
		log.Warn("clone failed", "error", err, "duration_ms", time.Since(cloneStart).Milliseconds())
		o.fail(ctx, job, err.Error())
		return
	}
	log.Info("repository cloned", "duration_ms", time.Since(cloneStart).Milliseconds())

	o.update(ctx, job, jobstore.WithStatus(models.JobStatusScanning), jobstore.WithProgress(0))

	results := models.NewResults()
	target := scanner.Target{RepoDir: ws.repoDir(), OutputDir: ws.reportsDir()}
	for i, tool := range job.Tools {
		o.update(ctx, job,
			jobstore.WithCurrentTool(tool),
			jobstore.WithProgress(progress(i, len(job.Tools))),
		)

		res, err := o.runTool(ctx, tool, target)
		if err != nil {
			log.Warn("tool failed", "tool", tool, "error", err)
			results.ToolErrors[tool] = err.Error()
		} else {
			log.Info("tool completed", "tool", tool, "findings", res.Summary.Total, "duration_ms", res.DurationMS)
			results.ByTool[tool] = res
		}
		o.update(ctx, job, jobstore.WithResults(results))
	}

	o.update(ctx, job,
		jobstore.WithStatus(models.JobStatusCompleted),
		jobstore.WithoutCurrentTool(),
		jobstore.WithProgress(100),
		jobstore.WithCompletedAt(o.now()),
	)

	o.notify(ctx, job, req.WebhookURL, log)
	o.archive(ctx, job, log)
}

// runTool runs one tool. A panicking runner counts as that tool crashing.
func (o *Orchestrator) runTool(ctx context.Context, tool models.Tool, target scanner.Target) (res *models.ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &scanner.ToolError{Tool: tool, Kind: scanner.ErrToolCrashed, Detail: fmt.Sprintf("panic: %v", r)}
		}
	}()
	res, err = o.deps.Runners[tool].Run(ctx, target)
	analysis.Annotate(res)
	return res, err
}

// recoverJob turns a panic outside the per-tool boundary into a failed job.
func (o *Orchestrator) recoverJob(ctx context.Context, job *models.ScanJob, log *slog.Logger) {
	r := recover()
	if r == nil {
		return
	}
	log.Error("scan panicked", "error", r, "stack", string(debug.Stack()))
	if job.Status.IsTerminal() {
		return
	}
	o.fail(ctx, job, fmt.Sprintf("internal error: %v", r))
}

func (o *Orchestrator) fail(ctx context.Context, job *models.ScanJob, msg string) {
	o.update(ctx, job,
		jobstore.WithStatus(models.JobStatusFailed),
		jobstore.WithoutCurrentTool(),
		jobstore.WithError(msg),
		jobstore.WithCompletedAt(o.now()),
	)
}

// update writes opts to the store and then applies them to the in-memory job.
// If the write panics the in-memory job keeps its previous state.
func (o *Orchestrator) update(ctx context.Context, job *models.ScanJob, opts ...jobstore.UpdateOption) {
	o.deps.Store.Update(ctx, job.ID, opts...)
	jobstore.Apply(job, opts...)
}

func (o *Orchestrator) notify(ctx context.Context, job *models.ScanJob, webhookURL string, log *slog.Logger) {
	summary := Summarize(job, o.now())
	if summary.Total == 0 {
		log.Info("no findings, skipping alert")
		return
	}
	if o.deps.Notifier == nil {
		return
	}

	nctx, cancel := o.sideEffectContext(ctx)
	defer cancel()
	if err := o.deps.Notifier.Notify(nctx, webhookURL, summary); err != nil {
		if errors.Is(err, notify.ErrNoEndpoint) {
			log.Info("alert not sent", "error", err)
			return
		}
		log.Warn("alert delivery failed", "error", err)
		return
	}
	log.Info("alert sent", "critical", summary.Critical, "total", summary.Total)
}

func (o *Orchestrator) archive(ctx context.Context, job *models.ScanJob, log *slog.Logger) {
	if o.deps.Archive == nil {
		return
	}
	actx, cancel := o.sideEffectContext(ctx)
	defer cancel()
	if err := o.deps.Archive.Archive(actx, job); err != nil {
		log.Warn("report archive failed", "error", err)
	}
}

func (o *Orchestrator) recordHistory(ctx context.Context, job *models.ScanJob) {
	if o.deps.History == nil || !job.Status.IsTerminal() {
		return
	}
	hctx, cancel := o.sideEffectContext(ctx)
	defer cancel()
	if err := o.deps.History.RecordScanRun(hctx, NewScanRun(job)); err != nil {
		slog.Warn("record scan history", "job_id", job.ID, "error", err)
	}
}

// sideEffectContext survives cancellation of ctx, so a job cancelled during
// shutdown still reports where it ended.
func (o *Orchestrator) sideEffectContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.cfg.SideEffectTimeout)
}

// progress is the share of tools finished before the one at index done starts.
func progress(done, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}
