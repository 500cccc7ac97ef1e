package tree_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianremillard/ccmux/internal/tree"
)

func TestCreateSessionWindowPane(t *testing.T) {
	tr := tree.New()
	s := tr.CreateSession("main", nil)
	w, err := tr.CreateWindow(s.ID, "win-0")
	require.NoError(t, err)
	p, err := tr.CreatePane(w.ID, 100)
	require.NoError(t, err)

	gotS, gotW, gotP, err := tr.FindPane(p.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, gotS.ID)
	assert.Equal(t, w.ID, gotW.ID)
	assert.Equal(t, p.ID, gotP.ID)
}

func TestActivePointersSetOnFirstInsert(t *testing.T) {
	tr := tree.New()
	s := tr.CreateSession("main", nil)
	w, _ := tr.CreateWindow(s.ID, "win-0")
	p, _ := tr.CreatePane(w.ID, 100)

	session, _ := tr.GetSession(s.ID)
	require.NotNil(t, session.ActiveWindow)
	assert.Equal(t, w.ID, *session.ActiveWindow)

	_, win, _, _ := tr.FindPane(p.ID)
	require.NotNil(t, win.ActivePane)
	assert.Equal(t, p.ID, *win.ActivePane)
}

// TestRemovePaneReassignsActiveAndRenumbers covers invariant 4 (active
// pointer moves to the first surviving entity) and the dense [0..n)
// renumbering rule from §4.2.
func TestRemovePaneReassignsActiveAndRenumbers(t *testing.T) {
	tr := tree.New()
	s := tr.CreateSession("main", nil)
	w, _ := tr.CreateWindow(s.ID, "win-0")
	p0, _ := tr.CreatePane(w.ID, 100)
	p1, _ := tr.CreatePane(w.ID, 100)
	p2, _ := tr.CreatePane(w.ID, 100)

	require.NoError(t, tr.SetActivePane(w.ID, p0.ID))
	require.NoError(t, tr.RemovePane(p0.ID))

	_, win, _, err := tr.FindPane(p1.ID)
	require.NoError(t, err)
	require.NotNil(t, win.ActivePane)
	assert.Equal(t, p1.ID, *win.ActivePane, "active pane should move to first survivor")

	assert.Equal(t, 0, win.Panes[p1.ID].Index)
	assert.Equal(t, 1, win.Panes[p2.ID].Index)
}

func TestRemoveLastPaneClearsActivePointer(t *testing.T) {
	tr := tree.New()
	s := tr.CreateSession("main", nil)
	w, _ := tr.CreateWindow(s.ID, "win-0")
	p, _ := tr.CreatePane(w.ID, 100)

	require.NoError(t, tr.RemovePane(p.ID))
	_, win, err := tr.FindWindow(w.ID)
	require.NoError(t, err)
	assert.Nil(t, win.ActivePane)
}

func TestRemoveWindowCascadesPanes(t *testing.T) {
	tr := tree.New()
	s := tr.CreateSession("main", nil)
	w, _ := tr.CreateWindow(s.ID, "win-0")
	p0, _ := tr.CreatePane(w.ID, 100)
	p1, _ := tr.CreatePane(w.ID, 100)

	closed, err := tr.RemoveWindow(w.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{p0.ID.String(), p1.ID.String()}, idsToStrings(closed))

	_, _, _, err = tr.FindPane(p0.ID)
	assert.ErrorIs(t, err, tree.ErrPaneNotFound)
}

func idsToStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func TestDestroySessionReturnsAllPanes(t *testing.T) {
	tr := tree.New()
	s := tr.CreateSession("main", nil)
	w0, _ := tr.CreateWindow(s.ID, "win-0")
	w1, _ := tr.CreateWindow(s.ID, "win-1")
	p0, _ := tr.CreatePane(w0.ID, 100)
	p1, _ := tr.CreatePane(w1.ID, 100)

	closed, err := tr.DestroySession(s.ID)
	require.NoError(t, err)
	assert.Len(t, closed, 2)
	assert.Contains(t, closed, p0.ID)
	assert.Contains(t, closed, p1.ID)

	_, err = tr.GetSession(s.ID)
	assert.ErrorIs(t, err, tree.ErrSessionNotFound)
}

func TestFindPaneByNameFirstInsertionWins(t *testing.T) {
	tr := tree.New()
	s := tr.CreateSession("main", nil)
	w, _ := tr.CreateWindow(s.ID, "win-0")
	p0, _ := tr.CreatePane(w.ID, 100)
	p1, _ := tr.CreatePane(w.ID, 100)
	p0.Title = "shell"
	p1.Title = "shell"

	_, _, found, ok := tr.FindPaneByName("shell")
	require.True(t, ok)
	assert.Equal(t, p0.ID, found.ID)
}

func TestNameExists(t *testing.T) {
	tr := tree.New()
	tr.CreateSession("main", nil)
	assert.True(t, tr.NameExists("main"))
	assert.False(t, tr.NameExists("other"))
}
