package orchestrator

import (
	"time"

	"github.com/kiranshivaraju/scanhunter/internal/analysis"
	"github.com/kiranshivaraju/scanhunter/pkg/models"
	"github.com/kiranshivaraju/scanhunter/pkg/severity"
)

const topRules = 5

// Summarize folds a job's results into per-category counts for alerting.
// Severities go through severity.Normalize again so the alert can never
// disagree with what the dashboard shows. Every secret counts as critical.
func Summarize(job *models.ScanJob, at time.Time) models.AlertSummary {
	s := models.AlertSummary{
		JobID:        job.ID,
		RepoName:     job.RepoName,
		RepoFullName: job.RepoFullName,
		Timestamp:    at,
	}
	if job.Results == nil {
		return s
	}

	for tool, res := range job.Results.ByTool {
		if res == nil {
			continue
		}
		switch tool {
		case models.ToolDependencyScan:
			for _, f := range res.Findings {
				s.Vulnerabilities.Add(severity.Normalize(string(f.Severity)))
			}
		case models.ToolSecretScan:
			s.Secrets += len(res.Findings)
		case models.ToolStaticAnalysis:
			for _, f := range res.Findings {
				s.CodeIssues.Add(severity.Normalize(string(f.Severity)))
			}
		}
	}

	var counted severity.Counts
	counted.Merge(s.Vulnerabilities)
	counted.Merge(s.CodeIssues)
	s.Critical = counted.Critical + s.Secrets
	s.Total = counted.Total + s.Secrets
	s.ToolErrors = len(job.Results.ToolErrors)
	if s.Total > 0 {
		s.TopRules = analysis.TopRules(job.Results, topRules)
	}
	return s
}

// NewScanRun builds the durable history row for a terminal job.
func NewScanRun(job *models.ScanJob) *models.ScanRun {
	summary := Summarize(job, time.Time{})
	tools := make([]string, len(job.Tools))
	for i, t := range job.Tools {
		tools[i] = string(t)
	}
	run := &models.ScanRun{
		JobID:        job.ID,
		RepoName:     job.RepoName,
		RepoFullName: job.RepoFullName,
		Status:       job.Status,
		Tools:        tools,
		Critical:     summary.Critical,
		Total:        summary.Total,
		ToolErrors:   summary.ToolErrors,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}
	if job.Error != "" {
		msg := job.Error
		run.Error = &msg
	}
	return run
}
