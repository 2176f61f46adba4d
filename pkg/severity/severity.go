// Package severity maps the native severity vocabularies of the scanning tools
// onto one shared scale. Both the scan results and the alert summary go through
// Normalize so the two can never disagree.
package severity

import "strings"

// Level is a normalized severity.
type Level string

const (
	Critical Level = "critical"
	High     Level = "high"
	Medium   Level = "medium"
	Low      Level = "low"
	Unknown  Level = "unknown"
)

var table = map[string]Level{
	"critical":      Critical,
	"error":         Critical,
	"severe":        Critical,
	"high":          High,
	"medium":        Medium,
	"warning":       Medium,
	"moderate":      Medium,
	"low":           Low,
	"note":          Low,
	"minor":         Low,
	"info":          Low,
	"informational": Low,
}

// Normalize maps a free-form severity label to a Level. Matching is
// case-insensitive and ignores surrounding whitespace. Anything not in the
// table, including the empty string, is Unknown.
func Normalize(raw string) Level {
	if l, ok := table[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return l
	}
	return Unknown
}

// Levels returns every Level in descending order of severity.
func Levels() []Level {
	return []Level{Critical, High, Medium, Low, Unknown}
}

// Counts tallies findings per Level.
type Counts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Unknown  int `json:"unknown"`
	Total    int `json:"total"`
}

// Add records one finding at level l.
func (c *Counts) Add(l Level) {
	switch l {
	case Critical:
		c.Critical++
	case High:
		c.High++
	case Medium:
		c.Medium++
	case Low:
		c.Low++
	default:
		c.Unknown++
	}
	c.Total++
}

// Merge adds every count in o to c.
func (c *Counts) Merge(o Counts) {
	c.Critical += o.Critical
	c.High += o.High
	c.Medium += o.Medium
	c.Low += o.Low
	c.Unknown += o.Unknown
	c.Total += o.Total
}
