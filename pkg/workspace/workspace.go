// Package workspace manages per-job scratch directories.
//
// Every job owns exactly one workspace holding the uploaded input, any
// decomposed page images, and the engine's output scratch area. The
// workspace is deleted unconditionally when the job's processing path
// exits, success or failure.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/pagelens/pagelens/internal/observability"
)

// Workspace is a uniquely named scratch directory tree owned by one job.
type Workspace struct {
	root    string
	removed bool
}

// New creates a fresh workspace under baseDir, creating baseDir itself
// if needed.
func New(baseDir string) (*Workspace, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create runs dir: %w", err)
	}
	dir, err := os.MkdirTemp(baseDir, "pagelens_ocr_*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{root: dir}, nil
}

// Root returns the workspace directory path.
func (w *Workspace) Root() string {
	return w.root
}

// InputPath returns the path for the uploaded input file, preserving
// the original extension. An empty extension defaults to ".png".
func (w *Workspace) InputPath(ext string) string {
	if ext == "" {
		ext = ".png"
	}
	return filepath.Join(w.root, "input"+ext)
}

// PagesDir creates and returns the directory for decomposed page images.
func (w *Workspace) PagesDir() (string, error) {
	dir := filepath.Join(w.root, "pages")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create pages dir: %w", err)
	}
	return dir, nil
}

// OutputDir creates and returns the engine output scratch directory.
func (w *Workspace) OutputDir() (string, error) {
	dir := filepath.Join(w.root, "outputs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create outputs dir: %w", err)
	}
	return dir, nil
}

// Remove deletes the workspace tree. Best-effort: failures are logged
// and never escalated, since the response has already been determined
// by the time cleanup runs. Safe to call more than once.
func (w *Workspace) Remove() {
	if w == nil || w.removed {
		return
	}
	w.removed = true
	if err := os.RemoveAll(w.root); err != nil {
		observability.ServerLogger.Warn("Failed to remove workspace",
			zap.String("dir", w.root),
			zap.Error(err))
	}
}
