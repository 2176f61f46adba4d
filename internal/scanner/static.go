package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kiranshivaraju/scanhunter/internal/config"
	"github.com/kiranshivaraju/scanhunter/pkg/models"
	"github.com/kiranshivaraju/scanhunter/pkg/severity"
)

const semgrepInstallHint = "install semgrep via `pip install semgrep` or `brew install semgrep`"

var semgrepDefaultArgs = []string{"--config", "auto"}

// StaticRunner runs semgrep's rule-based static analysis.
type StaticRunner struct {
	cfg config.ToolConfig
}

func NewStaticRunner(cfg config.ToolConfig) *StaticRunner {
	return &StaticRunner{cfg: cfg}
}

func (r *StaticRunner) Tool() models.Tool { return models.ToolStaticAnalysis }

func (r *StaticRunner) Run(ctx context.Context, target Target) (*models.ToolResult, error) {
	start := time.Now()
	inv := invocation{
		tool:        models.ToolStaticAnalysis,
		binary:      r.cfg.Binary,
		timeout:     r.cfg.Timeout,
		installHint: semgrepInstallHint,
		args: func(reportPath string) []string {
			args := []string{"scan", "--json", "--output", reportPath, "--quiet"}
			args = append(args, withExtraArgs(r.cfg.Args, semgrepDefaultArgs)...)
			return append(args, target.RepoDir)
		},
	}

	out, err := inv.run(ctx, target.OutputDir)
	if err != nil {
		return nil, err
	}
	findings, err := parseSemgrepReport(out.report, target.RepoDir)
	if err != nil {
		return nil, parseError(models.ToolStaticAnalysis, err)
	}

	res := models.NewToolResult(models.ToolStaticAnalysis, findings)
	res.DurationMS = time.Since(start).Milliseconds()
	return res, nil
}

type semgrepReport struct {
	Results []struct {
		CheckID string `json:"check_id"`
		Path    string `json:"path"`
		Start   struct {
			Line int `json:"line"`
		} `json:"start"`
		Extra struct {
			Message  string `json:"message"`
			Severity string `json:"severity"`
		} `json:"extra"`
	} `json:"results"`
}

func parseSemgrepReport(report []byte, root string) ([]models.Finding, error) {
	if isEmpty(report) {
		return []models.Finding{}, nil
	}
	var rep semgrepReport
	if err := json.Unmarshal(report, &rep); err != nil {
		return nil, fmt.Errorf("decode semgrep report: %w", err)
	}

	findings := make([]models.Finding, 0, len(rep.Results))
	for _, res := range rep.Results {
		findings = append(findings, models.Finding{
			Severity:    severity.Normalize(res.Extra.Severity),
			RawSeverity: res.Extra.Severity,
			RuleID:      res.CheckID,
			Title:       res.Extra.Message,
			File:        relPath(root, res.Path),
			Line:        res.Start.Line,
		})
	}
	return findings, nil
}

var _ Runner = (*StaticRunner)(nil)
