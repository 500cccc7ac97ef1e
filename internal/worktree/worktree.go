// Package worktree backs a Session's optional git worktree descriptor
// (spec.md §3: "a path, branch name, and is-main flag for git
// integration"). It creates and removes git worktrees for sessions that
// want an isolated checkout rather than sharing the main clone.
package worktree

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Descriptor is the Session-level worktree record from spec.md §3.
type Descriptor struct {
	Path   string `yaml:"path"`
	Branch string `yaml:"branch"`
	IsMain bool   `yaml:"is_main"`
}

// Repo describes the git repository a session's worktree is carved out
// of: a main checkout directory and the directory worktrees are created
// under.
type Repo struct {
	MainDir      string
	WorktreesDir string
}

// EnsureMainCheckout clones repoURL into r.MainDir if it is not already
// a git checkout. It is a no-op if MainDir already contains a .git
// directory. Clone progress is written to w.
func EnsureMainCheckout(r Repo, repoURL string, w io.Writer) error {
	gitDir := filepath.Join(r.MainDir, ".git")
	if _, err := os.Stat(gitDir); err == nil {
		return nil
	}

	if repoURL == "" {
		return fmt.Errorf("worktree: no repo URL and main checkout %s does not exist", r.MainDir)
	}

	if err := os.MkdirAll(filepath.Dir(r.MainDir), 0o755); err != nil {
		return err
	}

	cmd := exec.Command("git", "clone", repoURL, r.MainDir)
	out, err := cmd.CombinedOutput()
	if w != nil && len(out) > 0 {
		_, _ = w.Write(out)
	}
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail != "" {
			return fmt.Errorf("worktree: git clone %q failed: %s", repoURL, detail)
		}
		return fmt.Errorf("worktree: git clone %q failed: %w", repoURL, err)
	}
	return nil
}

// Create adds a new git worktree for sessionID on branchName, branching
// off the current HEAD of the main checkout. If branchName already
// exists, the worktree checks it out directly rather than creating it
// anew.
func Create(r Repo, sessionID, branchName string) (*Descriptor, error) {
	worktreeDir := filepath.Join(r.WorktreesDir, sessionID)

	if err := os.MkdirAll(r.WorktreesDir, 0o755); err != nil {
		return nil, err
	}

	cmd := exec.Command("git", "-C", r.MainDir, "worktree", "add", "-b", branchName, worktreeDir)
	if err := cmd.Run(); err != nil {
		cmd = exec.Command("git", "-C", r.MainDir, "worktree", "add", worktreeDir, branchName)
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("worktree: git worktree add: %w", err)
		}
	}

	return &Descriptor{Path: worktreeDir, Branch: branchName, IsMain: false}, nil
}

// Remove removes the git worktree and deletes its branch. Errors are
// best-effort: a worktree that failed to create a branch cleanly should
// not block session destruction.
func Remove(r Repo, d *Descriptor) {
	if d == nil || d.IsMain {
		return
	}
	_ = exec.Command("git", "-C", r.MainDir, "worktree", "remove", "--force", d.Path).Run()
	_ = exec.Command("git", "-C", r.MainDir, "branch", "-D", d.Branch).Run()
}

// MainDescriptor returns the Descriptor for the main checkout itself
// (used when a session opts into git integration without wanting an
// isolated worktree).
func MainDescriptor(r Repo, branch string) *Descriptor {
	return &Descriptor{Path: r.MainDir, Branch: branch, IsMain: true}
}

// LoadDescriptor reads a session worktree descriptor previously
// persisted as YAML (e.g. alongside a session checkpoint).
func LoadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("worktree: parse %s: %w", path, err)
	}
	return &d, nil
}

// SaveDescriptor writes d as YAML to path.
func SaveDescriptor(path string, d *Descriptor) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
