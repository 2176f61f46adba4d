// Package artifacts archives full scan results to S3-compatible object storage.
package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/kiranshivaraju/scanhunter/internal/config"
	"github.com/kiranshivaraju/scanhunter/pkg/models"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrReportNotFound is returned by Fetch when no report was archived for a job.
var ErrReportNotFound = errors.New("archived report not found")

// MinioArchive uploads one JSON report per finished job.
type MinioArchive struct {
	client *minio.Client
	bucket string
}

// NewMinioArchive connects to the object store and makes sure the bucket exists.
func NewMinioArchive(ctx context.Context, cfg config.ArtifactsConfig) (*MinioArchive, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinioArchive{client: cli, bucket: cfg.Bucket}, nil
}

// Archive stores the job record, results included, under ObjectKey(job).
func (a *MinioArchive) Archive(ctx context.Context, job *models.ScanJob) error {
	body, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	key := ObjectKey(job)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// Fetch reads back an archived report.
func (a *MinioArchive) Fetch(ctx context.Context, repoFullName, jobID string) (*models.ScanJob, error) {
	key := ObjectKey(&models.ScanJob{ID: jobID, RepoFullName: repoFullName})
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Close()

	var job models.ScanJob
	if err := json.NewDecoder(obj).Decode(&job); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &job, nil
}

// ObjectKey is reports/<owner>/<repo>/<job id>.json.
func ObjectKey(job *models.ScanJob) string {
	return path.Join("reports", path.Clean("/" + job.RepoFullName)[1:], job.ID+".json")
}
