package analysis

import (
	"strings"
	"testing"

	"github.com/kiranshivaraju/scanhunter/pkg/models"
	"github.com/kiranshivaraju/scanhunter/pkg/severity"
)

// --- NormalizeTitle tests ---

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "replaces hex addresses",
			input:    "pointer 0x7fff5fc00000 escapes",
			expected: "pointer 0xaddr escapes",
		},
		{
			name:     "replaces UUIDs",
			input:    "token 550e8400-e29b-41d4-a716-446655440000 hardcoded",
			expected: "token uuid hardcoded",
		},
		{
			name:     "replaces bracket and paren numbers",
			input:    "index [42] used in call(7)",
			expected: "index [n] used in call(n)",
		},
		{
			name:     "collapses whitespace and lowercases",
			input:    "  SQL   Injection\tvia  Query  ",
			expected: "sql injection via query",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTitle(tt.input); got != tt.expected {
				t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeTitle_Truncates(t *testing.T) {
	got := NormalizeTitle(strings.Repeat("é", 400))
	if len(got) > maxTitleBytes {
		t.Fatalf("len = %d, want <= %d", len(got), maxTitleBytes)
	}
	if !strings.HasPrefix(strings.Repeat("é", 400), got) {
		t.Fatal("truncation split a rune")
	}
}

// --- Fingerprint tests ---

func TestFingerprint_StableAcrossLineMoves(t *testing.T) {
	a := models.Finding{RuleID: "python.sqli", File: "./app/db.py", Line: 10, Title: "SQL injection (1)"}
	b := models.Finding{RuleID: "PYTHON.SQLI", File: "app/db.py", Line: 42, Title: "sql  injection (2)"}

	if Fingerprint(models.ToolStaticAnalysis, a) != Fingerprint(models.ToolStaticAnalysis, b) {
		t.Fatal("expected equal fingerprints")
	}
}

func TestFingerprint_Distinguishes(t *testing.T) {
	base := models.Finding{RuleID: "CVE-2023-1234", Package: "lodash", InstalledVersion: "4.17.20"}
	other := base
	other.InstalledVersion = "4.17.21"

	if Fingerprint(models.ToolDependencyScan, base) == Fingerprint(models.ToolDependencyScan, other) {
		t.Error("different versions should not collide")
	}
	if Fingerprint(models.ToolDependencyScan, base) == Fingerprint(models.ToolStaticAnalysis, base) {
		t.Error("different tools should not collide")
	}
	if got := Fingerprint(models.ToolDependencyScan, base); len(got) != 64 {
		t.Errorf("fingerprint length = %d, want 64", len(got))
	}
}

func TestAnnotate(t *testing.T) {
	res := models.NewToolResult(models.ToolSecretScan, []models.Finding{
		{RuleID: "aws-access-token", File: "config.py", Match: "AKIA...MPLE"},
		{RuleID: "generic-api-key", File: "config.py", Match: "[REDACTED]"},
	})
	Annotate(res)
	Annotate(nil)

	for i, f := range res.Findings {
		if f.Fingerprint == "" {
			t.Errorf("finding %d has no fingerprint", i)
		}
	}
	if res.Findings[0].Fingerprint == res.Findings[1].Fingerprint {
		t.Error("distinct secrets should have distinct fingerprints")
	}
}

// --- TopRules tests ---

func TestTopRules_OrderAndLimit(t *testing.T) {
	results := models.NewResults()
	results.ByTool[models.ToolStaticAnalysis] = models.NewToolResult(models.ToolStaticAnalysis, []models.Finding{
		{RuleID: "weak-hash", Severity: severity.Medium},
		{RuleID: "weak-hash", Severity: severity.High},
		{RuleID: "sqli", Severity: severity.Critical},
		{RuleID: "sqli", Severity: severity.Critical},
		{RuleID: "debug", Severity: severity.Low},
		{Severity: severity.Low},
	})
	results.ByTool[models.ToolSecretScan] = models.NewToolResult(models.ToolSecretScan, []models.Finding{
		{RuleID: "aws-access-token", Severity: severity.Critical},
	})

	top := TopRules(results, 3)
	if len(top) != 3 {
		t.Fatalf("len = %d, want 3", len(top))
	}
	// Equal counts fall back to severity.
	if top[0].RuleID != "sqli" || top[0].Count != 2 {
		t.Errorf("top[0] = %+v, want sqli x2", top[0])
	}
	if top[1].RuleID != "weak-hash" || top[1].Severity != severity.High {
		t.Errorf("top[1] = %+v, want weak-hash at worst severity high", top[1])
	}
	if top[2].RuleID != "aws-access-token" {
		t.Errorf("top[2] = %+v, want aws-access-token", top[2])
	}
}

func TestTopRules_Empty(t *testing.T) {
	if got := TopRules(nil, 5); got == nil || len(got) != 0 {
		t.Errorf("TopRules(nil) = %v, want empty non-nil", got)
	}
	if got := TopRules(models.NewResults(), 0); got == nil || len(got) != 0 {
		t.Errorf("TopRules(n=0) = %v, want empty non-nil", got)
	}
}

func TestRank(t *testing.T) {
	order := []severity.Level{severity.Critical, severity.High, severity.Medium, severity.Low, severity.Unknown}
	for i := 1; i < len(order); i++ {
		if Rank(order[i-1]) <= Rank(order[i]) {
			t.Errorf("Rank(%s) should exceed Rank(%s)", order[i-1], order[i])
		}
	}
}
