package orchestrator

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// workspace is the ephemeral directory a single job owns exclusively. The
// clone goes in repo/ and tool reports in reports/, so reports never land
// inside the scanned tree.
type workspace struct {
	root string
}

func newWorkspace(parent, jobID string) (*workspace, error) {
	if parent == "" {
		parent = os.TempDir()
	}
	if err := os.MkdirAll(parent, 0o700); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	root, err := os.MkdirTemp(parent, "scan-"+jobID+"-")
	if err != nil {
		return nil, fmt.Errorf("create job workspace: %w", err)
	}
	if err := os.Mkdir(filepath.Join(root, "reports"), 0o700); err != nil {
		_ = os.RemoveAll(root)
		return nil, fmt.Errorf("create reports dir: %w", err)
	}
	return &workspace{root: root}, nil
}

func (w *workspace) repoDir() string    { return filepath.Join(w.root, "repo") }
func (w *workspace) reportsDir() string { return filepath.Join(w.root, "reports") }

// remove deletes the workspace. A partially or fully missing tree is fine.
func (w *workspace) remove(log *slog.Logger) {
	if err := os.RemoveAll(w.root); err != nil {
		log.Error("remove job workspace", "path", w.root, "error", err)
	}
}
