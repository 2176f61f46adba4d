package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/scanhunter/pkg/models"
)

const (
	maxDiagnosticBytes = 4096
	waitDelay          = 10 * time.Second
)

// invocation describes how to start one tool process.
type invocation struct {
	tool        models.Tool
	binary      string
	timeout     time.Duration
	installHint string
	// args builds the argument list given the report path.
	args func(reportPath string) []string
}

// output is what the process left behind.
type output struct {
	report   []byte
	exitCode int
	stderr   string
}

// run starts the tool and returns its report file contents. The report is
// read after the process exits and removed on every path. A non-zero exit is
// not an error: these tools exit non-zero when they find something.
func (inv invocation) run(ctx context.Context, outputDir string) (*output, error) {
	path, err := lookPath(inv.tool, inv.binary, inv.installHint)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outputDir, 0o700); err != nil {
		return nil, &ToolError{Tool: inv.tool, Kind: ErrToolCrashed, Detail: fmt.Sprintf("create output dir: %v", err)}
	}
	reportPath := filepath.Join(outputDir, fmt.Sprintf("%s-%s.json", inv.tool, uuid.NewString()))
	defer func() {
		if err := os.Remove(reportPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("remove tool report", "tool", inv.tool, "path", reportPath, "error", err)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	diag := &limitedBuffer{max: maxDiagnosticBytes}
	cmd := exec.CommandContext(runCtx, path, inv.args(reportPath)...) // #nosec G204
	cmd.Stdout = diag
	cmd.Stderr = diag
	cmd.WaitDelay = waitDelay

	runErr := cmd.Run()
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return nil, &ToolError{Tool: inv.tool, Kind: ErrToolTimeout,
			Detail: fmt.Sprintf("exceeded %s", inv.timeout)}
	case ctx.Err() != nil:
		return nil, &ToolError{Tool: inv.tool, Kind: ErrToolCrashed, Detail: fmt.Sprintf("cancelled: %v", ctx.Err())}
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, &ToolError{Tool: inv.tool, Kind: ErrToolCrashed, Detail: runErr.Error()}
		}
		// -1 means the process did not exit on its own (signal).
		if exitErr.ExitCode() < 0 {
			return nil, &ToolError{Tool: inv.tool, Kind: ErrToolCrashed,
				Detail: fmt.Sprintf("%v: %s", runErr, diag.String())}
		}
		exitCode = exitErr.ExitCode()
	}

	report, err := os.ReadFile(reportPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &ToolError{Tool: inv.tool, Kind: ErrToolCrashed, Detail: fmt.Sprintf("read report: %v", err)}
	}

	out := &output{report: report, exitCode: exitCode, stderr: diag.String()}
	if exitCode != 0 && len(bytes.TrimSpace(report)) == 0 {
		slog.Warn("tool exited non-zero without a report",
			"tool", inv.tool, "exit_code", exitCode, "output", out.stderr)
	}
	return out, nil
}

// lookPath resolves binary on PATH, reporting a missing tool with its install hint.
func lookPath(tool models.Tool, binary, hint string) (string, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", &ToolError{Tool: tool, Kind: ErrToolNotInstalled,
			Detail: fmt.Sprintf("%q not found on PATH", binary), Hint: hint}
	}
	return path, nil
}

// isEmpty reports whether a report carries no content at all.
func isEmpty(report []byte) bool {
	return len(bytes.TrimSpace(report)) == 0
}

// relPath makes file relative to the scanned checkout. The checkout lives in a
// per-run temp dir, so absolute paths would differ between runs of the same
// repository. Paths outside root are kept as reported.
func relPath(root, file string) string {
	if root == "" || !filepath.IsAbs(file) {
		return filepath.ToSlash(file)
	}
	rel, err := filepath.Rel(root, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(file)
	}
	return filepath.ToSlash(rel)
}

func parseError(tool models.Tool, err error) error {
	return &ToolError{Tool: tool, Kind: ErrParse, Detail: err.Error()}
}

// limitedBuffer keeps the first max bytes written to it and discards the rest.
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return strings.TrimSpace(b.buf.String())
}

func withExtraArgs(extra, defaults []string) []string {
	if len(extra) > 0 {
		return extra
	}
	return defaults
}
