package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/scanhunter/pkg/models"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Credentials ---

func (s *PostgresStore) PutCredential(ctx context.Context, name string, sealed []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO credentials (name, sealed_value, created_at, updated_at)
		 VALUES ($1, $2, NOW(), NOW())
		 ON CONFLICT (name) DO UPDATE SET sealed_value = EXCLUDED.sealed_value, updated_at = NOW()`,
		name, sealed)
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCredential(ctx context.Context, name string) (*models.Credential, error) {
	var c models.Credential
	err := s.pool.QueryRow(ctx,
		`SELECT name, sealed_value, created_at, updated_at FROM credentials WHERE name = $1`, name,
	).Scan(&c.Name, &c.SealedValue, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) DeleteCredential(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM credentials WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListCredentialNames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM credentials ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan credential name: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// --- Scan Runs ---

const scanRunColumns = `job_id, repo_name, repo_full_name, status, tools, critical, total, tool_errors,
	error_message, started_at, completed_at, created_at`

// RecordScanRun upserts the history row for a job, so recording the same
// terminal job twice is harmless.
func (s *PostgresStore) RecordScanRun(ctx context.Context, run *models.ScanRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scan_runs (job_id, repo_name, repo_full_name, status, tools, critical, total, tool_errors,
		                        error_message, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (job_id) DO UPDATE SET
		   status = EXCLUDED.status,
		   critical = EXCLUDED.critical,
		   total = EXCLUDED.total,
		   tool_errors = EXCLUDED.tool_errors,
		   error_message = EXCLUDED.error_message,
		   completed_at = EXCLUDED.completed_at`,
		run.JobID, run.RepoName, run.RepoFullName, string(run.Status), run.Tools, run.Critical, run.Total,
		run.ToolErrors, run.Error, run.StartedAt, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("record scan run: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetScanRun(ctx context.Context, jobID string) (*models.ScanRun, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+scanRunColumns+` FROM scan_runs WHERE job_id = $1`, jobID)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scan run: %w", err)
	}
	return run, nil
}

func (s *PostgresStore) ListScanRuns(ctx context.Context, filter ScanRunFilter) ([]*models.ScanRun, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if filter.RepoFullName != "" {
		conditions = append(conditions, fmt.Sprintf("repo_full_name = $%d", argIdx))
		args = append(args, filter.RepoFullName)
		argIdx++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(filter.Status))
		argIdx++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := `SELECT ` + scanRunColumns + ` FROM scan_runs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scan runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.ScanRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row pgx.Row) (*models.ScanRun, error) {
	var r models.ScanRun
	var status string
	if err := row.Scan(&r.JobID, &r.RepoName, &r.RepoFullName, &status, &r.Tools, &r.Critical, &r.Total,
		&r.ToolErrors, &r.Error, &r.StartedAt, &r.CompletedAt, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Status = models.JobStatus(status)
	return &r, nil
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
