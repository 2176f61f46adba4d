package models_test

import (
	"encoding/json"
	"testing"

	"github.com/kiranshivaraju/scanhunter/pkg/models"
	"github.com/kiranshivaraju/scanhunter/pkg/severity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTools_OrderAndDedup(t *testing.T) {
	tools, err := models.ParseTools([]string{"secret-scan", "dependency-scan", "secret-scan"})
	require.NoError(t, err)
	assert.Equal(t, []models.Tool{models.ToolSecretScan, models.ToolDependencyScan}, tools)
}

func TestParseTools_Empty(t *testing.T) {
	_, err := models.ParseTools(nil)
	assert.ErrorIs(t, err, models.ErrNoTools)
}

func TestParseTools_Unknown(t *testing.T) {
	_, err := models.ParseTools([]string{"dependency-scan", "fuzzing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fuzzing")
}

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.True(t, models.JobStatusCompleted.IsTerminal())
	assert.True(t, models.JobStatusFailed.IsTerminal())
	assert.False(t, models.JobStatusPending.IsTerminal())
	assert.False(t, models.JobStatusCloning.IsTerminal())
	assert.False(t, models.JobStatusScanning.IsTerminal())
}

func TestNewToolResult_Summary(t *testing.T) {
	r := models.NewToolResult(models.ToolStaticAnalysis, []models.Finding{
		{Severity: severity.Critical},
		{Severity: severity.Medium},
		{Severity: severity.Medium},
	})
	assert.Equal(t, 3, r.Summary.Total)
	assert.Equal(t, 2, r.Summary.Medium)

	empty := models.NewToolResult(models.ToolSecretScan, nil)
	assert.NotNil(t, empty.Findings)
	assert.Zero(t, empty.Summary.Total)
}

func TestResults_FlatJSONShape(t *testing.T) {
	res := models.NewResults()
	res.ByTool[models.ToolSecretScan] = models.NewToolResult(models.ToolSecretScan, []models.Finding{
		{Severity: severity.Critical, Match: "AKIA...MPLE"},
	})
	res.ToolErrors[models.ToolStaticAnalysis] = "semgrep not installed"

	b, err := json.Marshal(res)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Contains(t, raw, "secret-scan")
	assert.Contains(t, raw, "toolErrors")
	assert.NotContains(t, raw, "static-analysis")

	var back models.Results
	require.NoError(t, json.Unmarshal(b, &back))
	require.Contains(t, back.ByTool, models.ToolSecretScan)
	assert.Equal(t, "AKIA...MPLE", back.ByTool[models.ToolSecretScan].Findings[0].Match)
	assert.Equal(t, "semgrep not installed", back.ToolErrors[models.ToolStaticAnalysis])
}
