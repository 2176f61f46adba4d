package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/scanhunter/internal/config"
	"github.com/kiranshivaraju/scanhunter/internal/store"
	"github.com/kiranshivaraju/scanhunter/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("scanhunter_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)
	// A second run is a no-op.
	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))

	pool, err := store.Connect(ctx, config.DatabaseConfig{
		URL:             connStr,
		MaxOpenConns:    5,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newRun(jobID, repo string, status models.JobStatus, started time.Time) *models.ScanRun {
	return &models.ScanRun{
		JobID:        jobID,
		RepoName:     repo,
		RepoFullName: "acme/" + repo,
		Status:       status,
		Tools:        []string{"secret-scan", "dependency-scan"},
		StartedAt:    started,
	}
}

// --- Credential Tests ---

func TestCredential_PutAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	require.NoError(t, s.PutCredential(ctx, "github_token", []byte{0x01, 0x02}))

	c, err := s.GetCredential(ctx, "github_token")
	require.NoError(t, err)
	assert.Equal(t, "github_token", c.Name)
	assert.Equal(t, []byte{0x01, 0x02}, c.SealedValue)
	assert.False(t, c.CreatedAt.IsZero())

	// Overwrite keeps created_at and replaces the value.
	require.NoError(t, s.PutCredential(ctx, "github_token", []byte{0x03}))
	c2, err := s.GetCredential(ctx, "github_token")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03}, c2.SealedValue)
	assert.Equal(t, c.CreatedAt, c2.CreatedAt)
	assert.False(t, c2.UpdatedAt.Before(c.UpdatedAt))
}

func TestCredential_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetCredential(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.DeleteCredential(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCredential_ListAndDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	names, err := s.ListCredentialNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, s.PutCredential(ctx, "github_token", []byte("a")))
	require.NoError(t, s.PutCredential(ctx, "alert_webhook_url", []byte("b")))

	names, err = s.ListCredentialNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alert_webhook_url", "github_token"}, names)

	require.NoError(t, s.DeleteCredential(ctx, "github_token"))
	_, err = s.GetCredential(ctx, "github_token")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Scan Run Tests ---

func TestScanRun_RecordAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Microsecond)
	completed := started.Add(42 * time.Second)
	run := newRun("job-1", "widgets", models.JobStatusCompleted, started)
	run.Critical = 2
	run.Total = 7
	run.ToolErrors = 1
	run.CompletedAt = &completed

	require.NoError(t, s.RecordScanRun(ctx, run))

	got, err := s.GetScanRun(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "acme/widgets", got.RepoFullName)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, []string{"secret-scan", "dependency-scan"}, got.Tools)
	assert.Equal(t, 2, got.Critical)
	assert.Equal(t, 7, got.Total)
	assert.Equal(t, 1, got.ToolErrors)
	assert.Nil(t, got.Error)
	assert.True(t, started.Equal(got.StartedAt))
	require.NotNil(t, got.CompletedAt)
	assert.True(t, completed.Equal(*got.CompletedAt))
}

func TestScanRun_RecordIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	run := newRun("job-1", "widgets", models.JobStatusFailed, time.Now().UTC())
	msg := "clone failed"
	run.Error = &msg
	require.NoError(t, s.RecordScanRun(ctx, run))
	require.NoError(t, s.RecordScanRun(ctx, run))

	runs, err := s.ListScanRuns(ctx, store.ScanRunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].Error)
	assert.Equal(t, "clone failed", *runs[0].Error)
}

func TestScanRun_GetNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetScanRun(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestScanRun_ListFiltersAndOrder(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.RecordScanRun(ctx, newRun("a", "widgets", models.JobStatusCompleted, base)))
	require.NoError(t, s.RecordScanRun(ctx, newRun("b", "widgets", models.JobStatusFailed, base.Add(time.Minute))))
	require.NoError(t, s.RecordScanRun(ctx, newRun("c", "gadgets", models.JobStatusCompleted, base.Add(2*time.Minute))))

	all, err := s.ListScanRuns(ctx, store.ScanRunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].JobID, "newest first")
	assert.Equal(t, "a", all[2].JobID)

	widgets, err := s.ListScanRuns(ctx, store.ScanRunFilter{RepoFullName: "acme/widgets"})
	require.NoError(t, err)
	assert.Len(t, widgets, 2)

	failed, err := s.ListScanRuns(ctx, store.ScanRunFilter{RepoFullName: "acme/widgets", Status: models.JobStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].JobID)

	limited, err := s.ListScanRuns(ctx, store.ScanRunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := store.Connect(context.Background(), config.DatabaseConfig{URL: "postgres://%zz"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse database URL")
}
