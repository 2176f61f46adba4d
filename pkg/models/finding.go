package models

import "github.com/kiranshivaraju/scanhunter/pkg/severity"

// Finding is a single issue reported by one tool, reduced to a shape shared by
// all tools. Location and identity fields are filled in as the tool provides them.
type Finding struct {
	Severity    severity.Level `json:"severity"`
	RawSeverity string         `json:"raw_severity,omitempty"`
	RuleID      string         `json:"rule_id,omitempty"`
	Title       string         `json:"title,omitempty"`
	File        string         `json:"file,omitempty"`
	Line        int            `json:"line,omitempty"`

	// Dependency findings.
	Package          string `json:"package,omitempty"`
	InstalledVersion string `json:"installed_version,omitempty"`
	FixedVersion     string `json:"fixed_version,omitempty"`

	// Secret findings. Always redacted.
	Match string `json:"match,omitempty"`

	// Fingerprint identifies the same issue across scans.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// ToolResult is the normalized output of one tool run.
type ToolResult struct {
	Tool       Tool            `json:"tool"`
	Findings   []Finding       `json:"findings"`
	Summary    severity.Counts `json:"summary"`
	DurationMS int64           `json:"duration_ms"`
}

// NewToolResult builds a ToolResult and its per-severity summary.
func NewToolResult(tool Tool, findings []Finding) *ToolResult {
	if findings == nil {
		findings = []Finding{}
	}
	r := &ToolResult{Tool: tool, Findings: findings}
	for _, f := range findings {
		r.Summary.Add(f.Severity)
	}
	return r
}
