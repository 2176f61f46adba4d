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

const gitleaksInstallHint = "install gitleaks via `brew install gitleaks` or see https://github.com/gitleaks/gitleaks#installing"

// Any exposed secret is treated as critical; gitleaks reports no severity.
const secretSeverity = "critical"

// SecretRunner finds committed secrets with gitleaks. Secret values are
// redacted here and nowhere else sees them.
type SecretRunner struct {
	cfg config.ToolConfig
}

func NewSecretRunner(cfg config.ToolConfig) *SecretRunner {
	return &SecretRunner{cfg: cfg}
}

func (r *SecretRunner) Tool() models.Tool { return models.ToolSecretScan }

func (r *SecretRunner) Run(ctx context.Context, target Target) (*models.ToolResult, error) {
	start := time.Now()
	inv := invocation{
		tool:        models.ToolSecretScan,
		binary:      r.cfg.Binary,
		timeout:     r.cfg.Timeout,
		installHint: gitleaksInstallHint,
		args: func(reportPath string) []string {
			args := []string{"detect", "--source", target.RepoDir, "--no-git", "--no-banner",
				"--report-format", "json", "--report-path", reportPath}
			return append(args, withExtraArgs(r.cfg.Args, nil)...)
		},
	}

	out, err := inv.run(ctx, target.OutputDir)
	if err != nil {
		return nil, err
	}
	findings, err := parseGitleaksReport(out.report, target.RepoDir)
	if err != nil {
		return nil, parseError(models.ToolSecretScan, err)
	}

	res := models.NewToolResult(models.ToolSecretScan, findings)
	res.DurationMS = time.Since(start).Milliseconds()
	return res, nil
}

type gitleaksFinding struct {
	Description string   `json:"Description"`
	File        string   `json:"File"`
	StartLine   int      `json:"StartLine"`
	RuleID      string   `json:"RuleID"`
	Secret      string   `json:"Secret"`
	Tags        []string `json:"Tags"`
}

func parseGitleaksReport(report []byte, root string) ([]models.Finding, error) {
	if isEmpty(report) {
		return []models.Finding{}, nil
	}
	var raw []gitleaksFinding
	if err := json.Unmarshal(report, &raw); err != nil {
		return nil, fmt.Errorf("decode gitleaks report: %w", err)
	}

	findings := make([]models.Finding, 0, len(raw))
	for _, f := range raw {
		findings = append(findings, models.Finding{
			Severity:    severity.Normalize(secretSeverity),
			RawSeverity: secretSeverity,
			RuleID:      f.RuleID,
			Title:       f.Description,
			File:        relPath(root, f.File),
			Line:        f.StartLine,
			Match:       Redact(f.Secret),
		})
	}
	return findings, nil
}

var _ Runner = (*SecretRunner)(nil)
