package models

import (
	"time"

	"github.com/kiranshivaraju/scanhunter/pkg/severity"
)

// AlertSummary is the consolidated, per-category view of a completed scan that
// is handed to the notifier. Secrets count as critical in Critical.
type AlertSummary struct {
	JobID           string          `json:"job_id"`
	RepoName        string          `json:"repo_name"`
	RepoFullName    string          `json:"repo_full_name"`
	Vulnerabilities severity.Counts `json:"vulnerabilities"`
	Secrets         int             `json:"secrets"`
	CodeIssues      severity.Counts `json:"code_issues"`
	Critical        int             `json:"critical"`
	Total           int             `json:"total"`
	ToolErrors      int             `json:"tool_errors"`
	TopRules        []RuleCount     `json:"top_rules,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// RuleCount is how often one rule fired in a job, at the worst severity seen.
type RuleCount struct {
	Tool     Tool           `json:"tool"`
	RuleID   string         `json:"rule_id"`
	Severity severity.Level `json:"severity"`
	Count    int            `json:"count"`
}
