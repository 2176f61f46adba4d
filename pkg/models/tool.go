// Package models contains shared data models used across the ScanHunter codebase.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// Tool identifies one external scanning tool.
type Tool string

const (
	ToolDependencyScan Tool = "dependency-scan"
	ToolSecretScan     Tool = "secret-scan"
	ToolStaticAnalysis Tool = "static-analysis"
)

// ErrNoTools is returned when a scan request names no tools.
var ErrNoTools = errors.New("at least one tool is required")

// AllTools returns every supported tool in default execution order.
func AllTools() []Tool {
	return []Tool{ToolDependencyScan, ToolSecretScan, ToolStaticAnalysis}
}

// Valid reports whether t is a supported tool identifier.
func (t Tool) Valid() bool {
	switch t {
	case ToolDependencyScan, ToolSecretScan, ToolStaticAnalysis:
		return true
	}
	return false
}

// ParseTools validates raw tool identifiers and returns them in request order
// with duplicates removed.
func ParseTools(raw []string) ([]Tool, error) {
	seen := make(map[Tool]bool, len(raw))
	tools := make([]Tool, 0, len(raw))
	for _, r := range raw {
		t := Tool(strings.TrimSpace(r))
		if !t.Valid() {
			return nil, fmt.Errorf("unknown tool %q: must be one of dependency-scan, secret-scan, static-analysis", r)
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		tools = append(tools, t)
	}
	if len(tools) == 0 {
		return nil, ErrNoTools
	}
	return tools, nil
}
