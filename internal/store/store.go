package store

import (
	"context"
	"errors"

	"github.com/kiranshivaraju/scanhunter/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	PutCredential(ctx context.Context, name string, sealed []byte) error
	GetCredential(ctx context.Context, name string) (*models.Credential, error)
	DeleteCredential(ctx context.Context, name string) error
	ListCredentialNames(ctx context.Context) ([]string, error)

	RecordScanRun(ctx context.Context, run *models.ScanRun) error
	GetScanRun(ctx context.Context, jobID string) (*models.ScanRun, error)
	ListScanRuns(ctx context.Context, filter ScanRunFilter) ([]*models.ScanRun, error)
}

// ScanRunFilter narrows ListScanRuns. Zero values mean no filter.
type ScanRunFilter struct {
	RepoFullName string
	Status       models.JobStatus
	Limit        int
}
