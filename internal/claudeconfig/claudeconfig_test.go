package claudeconfig_test

import (
	"os"
	"testing"

	"github.com/adrg/xdg"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianremillard/ccmux/internal/claudeconfig"
)

func withTempStateHome(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)
	xdg.Reload()
	t.Cleanup(xdg.Reload)
}

func TestPaneDirIsStableAndUnique(t *testing.T) {
	withTempStateHome(t)
	id1 := uuid.New()
	id2 := uuid.New()

	assert.Equal(t, claudeconfig.PaneDir(id1), claudeconfig.PaneDir(id1))
	assert.NotEqual(t, claudeconfig.PaneDir(id1), claudeconfig.PaneDir(id2))
	assert.Contains(t, claudeconfig.PaneDir(id1), "claude-configs")
	assert.Contains(t, claudeconfig.PaneDir(id1), "pane-"+id1.String())
}

func TestEnsureAndCleanupDir(t *testing.T) {
	withTempStateHome(t)
	id := uuid.New()

	dir, err := claudeconfig.EnsureDir(id)
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, claudeconfig.CleanupDir(id))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestCleanupDirNonexistentIsOk(t *testing.T) {
	withTempStateHome(t)
	assert.NoError(t, claudeconfig.CleanupDir(uuid.New()))
}

func TestCleanupOrphanedRemovesOnlyInactive(t *testing.T) {
	withTempStateHome(t)
	active := uuid.New()
	orphan := uuid.New()

	_, err := claudeconfig.EnsureDir(active)
	require.NoError(t, err)
	_, err = claudeconfig.EnsureDir(orphan)
	require.NoError(t, err)

	cleaned, err := claudeconfig.CleanupOrphaned([]uuid.UUID{active})
	require.NoError(t, err)
	assert.Equal(t, 1, cleaned)

	_, err = os.Stat(claudeconfig.PaneDir(active))
	assert.NoError(t, err)
	_, err = os.Stat(claudeconfig.PaneDir(orphan))
	assert.True(t, os.IsNotExist(err))
}

func TestListDirsIgnoresMalformedNames(t *testing.T) {
	withTempStateHome(t)
	id := uuid.New()
	_, err := claudeconfig.EnsureDir(id)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(claudeconfig.PaneDir(id)+"-not-a-pane-dir-sibling", 0o755))

	dirs, err := claudeconfig.ListDirs()
	require.NoError(t, err)
	assert.Len(t, dirs, 1)
	assert.Equal(t, id, dirs[0].PaneID)
}
