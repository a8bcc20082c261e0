// Package workspace prepares isolated per-job checkouts of a repository at
// an exact commit and runs verification commands inside them.
package workspace

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Manager owns job-scoped working directories under a common root.
type Manager struct {
	root string
}

// NewManager ensures the workspace root exists.
func NewManager(root string) (*Manager, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace: root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create root: %w", err)
	}
	return &Manager{root: root}, nil
}

// Prepare creates a fresh directory for the given job identifier.
func (m *Manager) Prepare(jobID string) (string, error) {
	if jobID == "" {
		return "", fmt.Errorf("workspace: job id cannot be empty")
	}
	dir, err := os.MkdirTemp(m.root, jobID+"-")
	if err != nil {
		return "", fmt.Errorf("workspace: create job dir: %w", err)
	}
	return dir, nil
}

// Cleanup removes a job directory. It refuses paths outside the root so a
// bad identifier can never delete unrelated files.
func (m *Manager) Cleanup(dir string) error {
	if dir == "" {
		return nil
	}
	rel, err := filepath.Rel(m.root, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("workspace: refusing to cleanup path outside root: %s", dir)
	}
	return os.RemoveAll(dir)
}

// CloneAtSHA fetches exactly one commit of repoURL into dir and checks it
// out detached. The fetch is depth-1 and ref-scoped, so the workspace holds
// the verified commit and nothing else.
func CloneAtSHA(ctx context.Context, dir, repoURL, sha string) error {
	if repoURL == "" {
		return fmt.Errorf("workspace: repository URL cannot be empty")
	}
	if sha == "" {
		return fmt.Errorf("workspace: sha cannot be empty")
	}
	steps := [][]string{
		{"git", "init", "--quiet"},
		{"git", "remote", "add", "origin", repoURL},
		{"git", "fetch", "--quiet", "--depth", "1", "origin", sha},
		{"git", "checkout", "--quiet", "--detach", "FETCH_HEAD"},
	}
	for _, step := range steps {
		cmd := exec.CommandContext(ctx, step[0], step[1:]...)
		cmd.Dir = dir
		// Never let git prompt for credentials inside a worker.
		cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
		if output, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("workspace: %s: %w: %s", strings.Join(step, " "), err, string(output))
		}
	}
	return nil
}
