package models

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a ScanJob.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusCloning   JobStatus = "cloning"
	JobStatusScanning  JobStatus = "scanning"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further state changes follow s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ScanJob tracks one scan of one repository. The API returns it on
// POST /api/v1/scans; the dashboard polls GET /api/v1/scans/{job_id} until
// status is completed or failed.
type ScanJob struct {
	ID           string     `json:"id"`
	RepoName     string     `json:"repoName"`
	RepoFullName string     `json:"repoFullName"`
	Status       JobStatus  `json:"status"`
	Tools        []Tool     `json:"tools"`
	CurrentTool  *Tool      `json:"currentTool,omitempty"`
	Progress     int        `json:"progress"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	Error        string     `json:"error,omitempty"`
	Results      *Results   `json:"results,omitempty"`
}

const toolErrorsKey = "toolErrors"

// Results holds per-tool normalized output plus the errors of tools that
// failed without aborting the job. Only tools that actually ran appear.
type Results struct {
	ByTool     map[Tool]*ToolResult
	ToolErrors map[Tool]string
}

// NewResults returns empty, non-nil Results.
func NewResults() *Results {
	return &Results{
		ByTool:     make(map[Tool]*ToolResult),
		ToolErrors: make(map[Tool]string),
	}
}

// MarshalJSON flattens the per-tool results next to a toolErrors map:
// {"secret-scan": {...}, "toolErrors": {"static-analysis": "..."}}.
func (r Results) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.ByTool)+1)
	for tool, res := range r.ByTool {
		out[string(tool)] = res
	}
	errs := r.ToolErrors
	if errs == nil {
		errs = map[Tool]string{}
	}
	out[toolErrorsKey] = errs
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Results) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = *NewResults()
	for k, v := range raw {
		if k == toolErrorsKey {
			if err := json.Unmarshal(v, &r.ToolErrors); err != nil {
				return err
			}
			continue
		}
		var res ToolResult
		if err := json.Unmarshal(v, &res); err != nil {
			return err
		}
		r.ByTool[Tool(k)] = &res
	}
	if r.ToolErrors == nil {
		r.ToolErrors = make(map[Tool]string)
	}
	return nil
}

// ScanRequest is what a caller supplies to start a scan. Credential is a
// short-lived token used once for the clone; WebhookURL, when set, receives
// the completion alert.
type ScanRequest struct {
	JobID        string
	RepoName     string
	RepoFullName string
	Credential   string
	Tools        []Tool
	WebhookURL   string
}
