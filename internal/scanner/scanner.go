// Package scanner wraps each external security-scanning tool behind one
// contract: run against a directory, return normalized findings or a typed
// error from a closed set.
package scanner

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/scanhunter/internal/config"
	"github.com/kiranshivaraju/scanhunter/pkg/models"
)

// Sentinel error kinds. Every error a Runner returns unwraps to exactly one.
var (
	ErrToolNotInstalled = errors.New("tool not installed")
	ErrToolTimeout      = errors.New("tool timed out")
	ErrToolCrashed      = errors.New("tool crashed")
	ErrParse            = errors.New("tool output could not be parsed")
)

// ToolError is the typed failure of one tool run.
type ToolError struct {
	Tool   models.Tool
	Kind   error
	Detail string
	// Hint tells the operator how to fix the problem, e.g. how to install the tool.
	Hint string
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Tool, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Kind }

// Target is what a tool scans and where it may write its report.
type Target struct {
	// RepoDir is the checked-out repository.
	RepoDir string
	// OutputDir receives the tool's report file. It must not be inside RepoDir.
	OutputDir string
}

// Runner runs one external tool.
type Runner interface {
	Tool() models.Tool
	Run(ctx context.Context, target Target) (*models.ToolResult, error)
}

// NewRunners builds one Runner per supported tool.
func NewRunners(cfg config.ToolsConfig) map[models.Tool]Runner {
	return map[models.Tool]Runner{
		models.ToolDependencyScan: NewDependencyRunner(cfg.DependencyScan),
		models.ToolSecretScan:     NewSecretRunner(cfg.SecretScan),
		models.ToolStaticAnalysis: NewStaticRunner(cfg.StaticAnalysis),
	}
}

// CheckInstalled looks up every configured binary and returns the tools that
// are missing. A missing tool only fails the scans that request it.
func CheckInstalled(cfg config.ToolsConfig) map[models.Tool]error {
	missing := make(map[models.Tool]error)
	for tool, c := range map[models.Tool]struct {
		binary, hint string
	}{
		models.ToolDependencyScan: {cfg.DependencyScan.Binary, trivyInstallHint},
		models.ToolSecretScan:     {cfg.SecretScan.Binary, gitleaksInstallHint},
		models.ToolStaticAnalysis: {cfg.StaticAnalysis.Binary, semgrepInstallHint},
	} {
		if _, err := lookPath(tool, c.binary, c.hint); err != nil {
			missing[tool] = err
		}
	}
	return missing
}
