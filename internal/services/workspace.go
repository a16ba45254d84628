package services

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Workspace is a job's private working directory.
type Workspace struct {
	Dir string
}

// NewWorkspace creates <base>/<jobID>. Job ids are unique, so two jobs never
// share a directory.
func NewWorkspace(base string, jobID uuid.UUID) (*Workspace, error) {
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, jobID.String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	return &Workspace{Dir: dir}, nil
}

// Path returns a file path inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Cleanup removes the workspace and everything in it.
func (w *Workspace) Cleanup() error {
	if err := os.RemoveAll(w.Dir); err != nil {
		return fmt.Errorf("failed to remove work dir %s: %w", w.Dir, err)
	}
	return nil
}
