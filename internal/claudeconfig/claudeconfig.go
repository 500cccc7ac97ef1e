// Package claudeconfig manages the per-pane Claude config directory
// isolation described in spec.md §4.6 and §6: Claude writes to
// ~/.claude/.claude.json frequently during active use, so concurrent
// Claude panes are each given their own config directory via
// CLAUDE_CONFIG_DIR, to avoid one instance's writes corrupting
// another's session state.
package claudeconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EnvVar is the environment variable Claude reads to locate its config
// directory.
const EnvVar = "CLAUDE_CONFIG_DIR"

const (
	isolationDirName = "claude-configs"
	paneDirPrefix    = "pane-"
)

// baseDir is the parent of every per-pane config directory:
// $XDG_STATE_HOME/ccmux/claude-configs, per spec.md §6.
func baseDir() string {
	return filepath.Join(xdg.StateHome, "ccmux", isolationDirName)
}

// PaneDir returns the config directory path for paneID. It does not
// create the directory; call EnsureDir for that.
func PaneDir(paneID uuid.UUID) string {
	return filepath.Join(baseDir(), paneDirPrefix+paneID.String())
}

// EnsureDir creates paneID's config directory if it does not already
// exist and returns its path.
func EnsureDir(paneID uuid.UUID) (string, error) {
	dir := PaneDir(paneID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("claudeconfig: create %s: %w", dir, err)
		}
	}
	return dir, nil
}

// CleanupDir removes paneID's config directory and its contents. Safe
// to call even if the directory does not exist.
func CleanupDir(paneID uuid.UUID) error {
	dir := PaneDir(paneID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(dir)
}

// ListDirs returns every existing (pane ID, path) pair under the
// isolation base directory. Directory names that don't parse as
// pane-<uuid> are skipped.
func ListDirs() ([]struct {
	PaneID uuid.UUID
	Path   string
}, error) {
	base := baseDir()
	entries, err := os.ReadDir(base)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var dirs []struct {
		PaneID uuid.UUID
		Path   string
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		idStr, ok := strings.CutPrefix(e.Name(), paneDirPrefix)
		if !ok {
			continue
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		dirs = append(dirs, struct {
			PaneID uuid.UUID
			Path   string
		}{PaneID: id, Path: filepath.Join(base, e.Name())})
	}
	return dirs, nil
}

// CleanupOrphaned removes config directories for panes not present in
// activePanes, returning the number of directories removed.
func CleanupOrphaned(activePanes []uuid.UUID) (int, error) {
	dirs, err := ListDirs()
	if err != nil {
		return 0, err
	}

	active := make(map[uuid.UUID]struct{}, len(activePanes))
	for _, id := range activePanes {
		active[id] = struct{}{}
	}

	cleaned := 0
	for _, d := range dirs {
		if _, ok := active[d.PaneID]; ok {
			continue
		}
		if err := os.RemoveAll(d.Path); err != nil {
			log.Warn().Err(err).Str("path", d.Path).Msg("failed to remove orphaned claude config dir")
			continue
		}
		cleaned++
	}
	return cleaned, nil
}

// StartupCleanup is called once at daemon startup to remove config
// directories left over from a crashed prior run, per spec.md §4.6.
func StartupCleanup(activePanes []uuid.UUID) error {
	cleaned, err := CleanupOrphaned(activePanes)
	if err != nil {
		return err
	}
	if cleaned > 0 {
		log.Info().Int("count", cleaned).Msg("cleaned orphaned claude config directories")
	}
	return nil
}
