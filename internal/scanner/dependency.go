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

const trivyInstallHint = "install trivy via `brew install trivy` or see https://aquasecurity.github.io/trivy"

// DependencyRunner finds vulnerable dependencies with trivy's filesystem scanner.
type DependencyRunner struct {
	cfg config.ToolConfig
}

func NewDependencyRunner(cfg config.ToolConfig) *DependencyRunner {
	return &DependencyRunner{cfg: cfg}
}

func (r *DependencyRunner) Tool() models.Tool { return models.ToolDependencyScan }

func (r *DependencyRunner) Run(ctx context.Context, target Target) (*models.ToolResult, error) {
	start := time.Now()
	inv := invocation{
		tool:        models.ToolDependencyScan,
		binary:      r.cfg.Binary,
		timeout:     r.cfg.Timeout,
		installHint: trivyInstallHint,
		args: func(reportPath string) []string {
			args := []string{"fs", "--scanners", "vuln", "--format", "json", "--output", reportPath, "--quiet"}
			args = append(args, withExtraArgs(r.cfg.Args, nil)...)
			return append(args, target.RepoDir)
		},
	}

	out, err := inv.run(ctx, target.OutputDir)
	if err != nil {
		return nil, err
	}
	findings, err := parseTrivyReport(out.report, target.RepoDir)
	if err != nil {
		return nil, parseError(models.ToolDependencyScan, err)
	}

	res := models.NewToolResult(models.ToolDependencyScan, findings)
	res.DurationMS = time.Since(start).Milliseconds()
	return res, nil
}

type trivyReport struct {
	Results []struct {
		Target          string `json:"Target"`
		Vulnerabilities []struct {
			VulnerabilityID  string `json:"VulnerabilityID"`
			PkgName          string `json:"PkgName"`
			InstalledVersion string `json:"InstalledVersion"`
			FixedVersion     string `json:"FixedVersion"`
			Severity         string `json:"Severity"`
			Title            string `json:"Title"`
		} `json:"Vulnerabilities"`
	} `json:"Results"`
}

func parseTrivyReport(report []byte, root string) ([]models.Finding, error) {
	if isEmpty(report) {
		return []models.Finding{}, nil
	}
	var rep trivyReport
	if err := json.Unmarshal(report, &rep); err != nil {
		return nil, fmt.Errorf("decode trivy report: %w", err)
	}

	findings := []models.Finding{}
	for _, res := range rep.Results {
		for _, v := range res.Vulnerabilities {
			findings = append(findings, models.Finding{
				Severity:         severity.Normalize(v.Severity),
				RawSeverity:      v.Severity,
				RuleID:           v.VulnerabilityID,
				Title:            v.Title,
				File:             relPath(root, res.Target),
				Package:          v.PkgName,
				InstalledVersion: v.InstalledVersion,
				FixedVersion:     v.FixedVersion,
			})
		}
	}
	return findings, nil
}

var _ Runner = (*DependencyRunner)(nil)
