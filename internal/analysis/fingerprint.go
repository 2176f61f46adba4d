// Package analysis derives cross-scan views of findings: a stable fingerprint
// per finding and the rules that fire most often in a job.
package analysis

import (
	"crypto/sha256"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kiranshivaraju/scanhunter/pkg/models"
	"github.com/kiranshivaraju/scanhunter/pkg/severity"
)

// Normalization regexes compiled once at package init.
var (
	reHexAddr    = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	reUUID       = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	reBracketNum = regexp.MustCompile(`\[\d+\]`)
	reParenNum   = regexp.MustCompile(`\(\d+\)`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

const maxTitleBytes = 500

// Fingerprint computes a stable SHA-256 fingerprint for a finding. Line numbers
// are left out so the same issue keeps its fingerprint when code moves.
func Fingerprint(tool models.Tool, f models.Finding) string {
	parts := []string{
		string(tool),
		strings.ToLower(strings.TrimSpace(f.RuleID)),
		cleanFile(f.File),
		f.Package,
		f.InstalledVersion,
		f.Match,
		NormalizeTitle(f.Title),
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return fmt.Sprintf("%x", hash)
}

// Annotate sets the fingerprint on every finding of res.
func Annotate(res *models.ToolResult) {
	if res == nil {
		return
	}
	for i := range res.Findings {
		res.Findings[i].Fingerprint = Fingerprint(res.Tool, res.Findings[i])
	}
}

// NormalizeTitle strips volatile tokens from a finding title.
func NormalizeTitle(title string) string {
	title = reHexAddr.ReplaceAllString(title, "0xADDR")
	title = reUUID.ReplaceAllString(title, "UUID")
	title = reBracketNum.ReplaceAllString(title, "[N]")
	title = reParenNum.ReplaceAllString(title, "(N)")
	title = reWhitespace.ReplaceAllString(title, " ")
	title = strings.ToLower(title)
	title = strings.TrimSpace(title)
	return truncateString(title, maxTitleBytes)
}

// TopRules groups findings by tool and rule and returns the n largest groups,
// sorted by (Count DESC, severity DESC). A group's severity is the worst seen.
// Returns an empty slice when there is nothing to rank (never nil).
func TopRules(results *models.Results, n int) []models.RuleCount {
	if results == nil || n <= 0 {
		return []models.RuleCount{}
	}

	type key struct {
		tool models.Tool
		rule string
	}
	groups := make(map[key]*models.RuleCount)

	for tool, res := range results.ByTool {
		if res == nil {
			continue
		}
		for _, f := range res.Findings {
			if f.RuleID == "" {
				continue
			}
			k := key{tool: tool, rule: f.RuleID}
			g, ok := groups[k]
			if !ok {
				g = &models.RuleCount{Tool: tool, RuleID: f.RuleID, Severity: f.Severity}
				groups[k] = g
			}
			g.Count++
			if Rank(f.Severity) > Rank(g.Severity) {
				g.Severity = f.Severity
			}
		}
	}

	out := make([]models.RuleCount, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if ri, rj := Rank(out[i].Severity), Rank(out[j].Severity); ri != rj {
			return ri > rj
		}
		if out[i].Tool != out[j].Tool {
			return out[i].Tool < out[j].Tool
		}
		return out[i].RuleID < out[j].RuleID
	})

	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Rank maps a severity to a number for ordering. Unknown ranks lowest.
func Rank(l severity.Level) int {
	norm := severity.Normalize(string(l))
	levels := severity.Levels()
	for i, lv := range levels {
		if lv == norm {
			return len(levels) - 1 - i
		}
	}
	return 0
}

func cleanFile(file string) string {
	if file == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean(strings.ReplaceAll(file, "\\", "/")), "./")
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
