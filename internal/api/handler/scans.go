package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/scanhunter/internal/api/response"
	"github.com/kiranshivaraju/scanhunter/internal/artifacts"
	"github.com/kiranshivaraju/scanhunter/internal/cache"
	"github.com/kiranshivaraju/scanhunter/internal/credentials"
	"github.com/kiranshivaraju/scanhunter/internal/orchestrator"
	"github.com/kiranshivaraju/scanhunter/internal/store"
	"github.com/kiranshivaraju/scanhunter/pkg/models"
)

const reportCacheTTL = time.Hour

// ScanStarter begins a scan in the background.
type ScanStarter interface {
	Start(ctx context.Context, req models.ScanRequest) (*models.ScanJob, error)
}

// JobReader reads the short-lived job record.
type JobReader interface {
	Get(ctx context.Context, id string) (*models.ScanJob, bool, error)
}

// RunReader reads the durable scan history.
type RunReader interface {
	GetScanRun(ctx context.Context, jobID string) (*models.ScanRun, error)
	ListScanRuns(ctx context.Context, filter store.ScanRunFilter) ([]*models.ScanRun, error)
}

// ReportFetcher reads an archived report.
type ReportFetcher interface {
	Fetch(ctx context.Context, repoFullName, jobID string) (*models.ScanJob, error)
}

// NewStartScanHandler returns an http.HandlerFunc for POST /api/v1/scans.
// The clone token and webhook URL are resolved once per request.
func NewStartScanHandler(starter ScanStarter, creds credentials.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JobID        string   `json:"jobId"`
			RepoName     string   `json:"repoName"`
			RepoFullName string   `json:"repoFullName"`
			Tools        []string `json:"tools"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Invalid JSON body", nil)
			return
		}

		if req.RepoFullName == "" {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "repoFullName is required", nil)
			return
		}

		tools := models.AllTools()
		if len(req.Tools) > 0 {
			parsed, err := models.ParseTools(req.Tools)
			if err != nil {
				response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, err.Error(), nil)
				return
			}
			tools = parsed
		}

		snap, err := credentials.Load(r.Context(), creds, credentials.GitHubToken, credentials.AlertWebhookURL)
		if err != nil {
			slog.Error("loading credentials failed", "error", err)
			response.Error(w, http.StatusServiceUnavailable, response.CodeCredentialsUnavailable,
				"Credentials could not be loaded", nil)
			return
		}
		token, ok := snap.Get(credentials.GitHubToken)
		if !ok {
			response.Error(w, http.StatusPreconditionFailed, response.CodeCredentialNotConfigured,
				"No github_token credential is configured", nil)
			return
		}
		webhookURL, _ := snap.Get(credentials.AlertWebhookURL)

		job, err := starter.Start(r.Context(), models.ScanRequest{
			JobID:        req.JobID,
			RepoName:     req.RepoName,
			RepoFullName: req.RepoFullName,
			Credential:   token,
			Tools:        tools,
			WebhookURL:   webhookURL,
		})
		if err != nil {
			switch {
			case errors.Is(err, orchestrator.ErrInvalidRequest):
				response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, err.Error(), nil)
			case errors.Is(err, orchestrator.ErrJobActive):
				response.Error(w, http.StatusConflict, response.CodeJobActive,
					"A scan with this job id is already running", nil)
			default:
				response.Error(w, http.StatusInternalServerError, response.CodeInternal,
					"An unexpected error occurred", nil)
			}
			return
		}

		slog.Info("scan accepted", "job_id", job.ID, "repo", job.RepoFullName)
		response.Accepted(w, job)
	}
}

// NewGetScanHandler returns an http.HandlerFunc for GET /api/v1/scans/{jobID}.
func NewGetScanHandler(jobs JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")

		job, ok, err := jobs.Get(r.Context(), jobID)
		if err != nil {
			slog.Error("reading job failed", "job_id", jobID, "error", err)
			response.Error(w, http.StatusServiceUnavailable, response.CodeJobStoreUnavailable,
				"The job store is not available", nil)
			return
		}
		if !ok {
			response.Error(w, http.StatusNotFound, response.CodeJobNotFound, "Scan job not found or expired", nil)
			return
		}

		response.JSON(w, job)
	}
}

// NewListScansHandler returns an http.HandlerFunc for GET /api/v1/scans.
// It lists durable scan history, newest first.
func NewListScansHandler(runs RunReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := store.ScanRunFilter{RepoFullName: q.Get("repo")}
		if s := q.Get("status"); s != "" {
			status := models.JobStatus(s)
			if !status.IsTerminal() {
				response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest,
					"status must be completed or failed", nil)
				return
			}
			filter.Status = status
		}
		if l := q.Get("limit"); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil || n < 1 {
				response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest,
					"limit must be a positive integer", nil)
				return
			}
			filter.Limit = n
		}

		list, err := runs.ListScanRuns(r.Context(), filter)
		if err != nil {
			slog.Error("listing scan runs failed", "error", err)
			response.Error(w, http.StatusInternalServerError, response.CodeInternal,
				"An unexpected error occurred", nil)
			return
		}
		filters := map[string]string{}
		if filter.RepoFullName != "" {
			filters["repo"] = filter.RepoFullName
		}
		if filter.Status != "" {
			filters["status"] = string(filter.Status)
		}
		response.List(w, list, response.ListMeta{Limit: filter.Limit, Filters: filters})
	}
}

// NewGetScanRunHandler returns an http.HandlerFunc for GET /api/v1/runs/{jobID}.
func NewGetScanRunHandler(runs RunReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")

		run, err := runs.GetScanRun(r.Context(), jobID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, response.CodeRunNotFound, "Scan run not found", nil)
			return
		}
		if err != nil {
			slog.Error("reading scan run failed", "job_id", jobID, "error", err)
			response.Error(w, http.StatusInternalServerError, response.CodeInternal,
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, run)
	}
}

// NewGetReportHandler returns an http.HandlerFunc for
// GET /api/v1/scans/{jobID}/report. Archived reports never change, so they
// are cached in Redis after the first read.
func NewGetReportHandler(runs RunReader, reports ReportFetcher, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		jobID := chi.URLParam(r, "jobID")
		key := cache.ReportKey(jobID)

		if raw, ok, err := c.Get(ctx, key); err == nil && ok {
			var job models.ScanJob
			if err := json.Unmarshal(raw, &job); err == nil {
				response.JSON(w, &job)
				return
			}
			if err := c.Delete(ctx, key); err != nil {
				slog.Warn("dropping unreadable cached report failed", "job_id", jobID, "error", err)
			}
		} else if err != nil {
			slog.Warn("report cache read failed", "job_id", jobID, "error", err)
		}

		run, err := runs.GetScanRun(ctx, jobID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, response.CodeReportNotFound, "No report for this job", nil)
			return
		}
		if err != nil {
			slog.Error("reading scan run failed", "job_id", jobID, "error", err)
			response.Error(w, http.StatusInternalServerError, response.CodeInternal,
				"An unexpected error occurred", nil)
			return
		}

		job, err := reports.Fetch(ctx, run.RepoFullName, jobID)
		if errors.Is(err, artifacts.ErrReportNotFound) {
			response.Error(w, http.StatusNotFound, response.CodeReportNotFound, "No report for this job", nil)
			return
		}
		if err != nil {
			slog.Error("fetching report failed", "job_id", jobID, "error", err)
			response.Error(w, http.StatusBadGateway, response.CodeArchiveUnavailable,
				"The report archive is not available", nil)
			return
		}

		if raw, err := json.Marshal(job); err == nil {
			if err := c.Set(ctx, key, raw, reportCacheTTL); err != nil {
				slog.Warn("caching report failed", "job_id", jobID, "error", err)
			}
		}

		response.JSON(w, job)
	}
}
