package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/scanhunter/internal/artifacts"
	"github.com/kiranshivaraju/scanhunter/internal/store"
	"github.com/kiranshivaraju/scanhunter/pkg/models"
	"github.com/stretchr/testify/require"
)

// --- scan starter ---

type fakeStarter struct {
	got *models.ScanRequest
	err error
}

func (f *fakeStarter) Start(_ context.Context, req models.ScanRequest) (*models.ScanJob, error) {
	f.got = &req
	if f.err != nil {
		return nil, f.err
	}
	id := req.JobID
	if id == "" {
		id = "generated-id"
	}
	return &models.ScanJob{
		ID:           id,
		RepoName:     req.RepoName,
		RepoFullName: req.RepoFullName,
		Status:       models.JobStatusPending,
		Tools:        req.Tools,
	}, nil
}

// --- credentials ---

type fakeCreds struct {
	values map[string]string
	err    error
}

func (f fakeCreds) GetToken(_ context.Context, name string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	v, ok := f.values[name]
	return v, ok, nil
}

type fakeCredAdmin struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func newFakeCredAdmin() *fakeCredAdmin {
	return &fakeCredAdmin{values: map[string]string{}}
}

func (f *fakeCredAdmin) Put(_ context.Context, name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.values[name] = value
	return nil
}

func (f *fakeCredAdmin) ListCredentialNames(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var names []string
	for n := range f.values {
		names = append(names, n)
	}
	return names, nil
}

func (f *fakeCredAdmin) DeleteCredential(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[name]; !ok {
		return store.ErrNotFound
	}
	delete(f.values, name)
	return nil
}

// --- job store / history ---

type fakeJobs struct {
	jobs map[string]*models.ScanJob
	err  error
}

func (f fakeJobs) Get(_ context.Context, id string) (*models.ScanJob, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	j, ok := f.jobs[id]
	return j, ok, nil
}

type fakeRuns struct {
	runs   []*models.ScanRun
	filter store.ScanRunFilter
	err    error
}

func (f *fakeRuns) GetScanRun(_ context.Context, jobID string) (*models.ScanRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, r := range f.runs {
		if r.JobID == jobID {
			return r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeRuns) ListScanRuns(_ context.Context, filter store.ScanRunFilter) ([]*models.ScanRun, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.runs, nil
}

// --- report archive ---

type fakeReports struct {
	jobs  map[string]*models.ScanJob
	calls int
}

func (f *fakeReports) Fetch(_ context.Context, repoFullName, jobID string) (*models.ScanJob, error) {
	f.calls++
	j, ok := f.jobs[repoFullName+"/"+jobID]
	if !ok {
		return nil, artifacts.ErrReportNotFound
	}
	return j, nil
}

// --- cache ---

type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}
func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}
func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	c.deleted = append(c.deleted, key)
	return nil
}
func (c *memCache) Ping(_ context.Context) error { return nil }
func (c *memCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}
func (c *memCache) HReplaceWithExpiry(_ context.Context, _ string, _ map[string]string, _ time.Duration) error {
	return nil
}
func (c *memCache) HUpdateWithExpiry(_ context.Context, _ string, _ map[string]string, _ time.Duration) (bool, error) {
	return false, nil
}
func (c *memCache) HGetAll(_ context.Context, _ string) (map[string]string, error) {
	return map[string]string{}, nil
}

// --- pinger ---

type pinger struct{ err error }

func (p pinger) Ping(_ context.Context) error { return p.err }

var errBoom = errors.New("boom")

// --- helpers ---

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Meta  map[string]any  `json:"meta"`
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}
