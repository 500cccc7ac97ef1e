package daemon

// paneops.go implements the tree-mutation + PTY-spawn sequences shared by
// several handlers, always following the two-phase spawn pattern of
// spec.md §5: mutate the tree under its own lock, release it, then spawn
// the PTY.

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ianremillard/ccmux/internal/scrollback"
	"github.com/ianremillard/ccmux/internal/tree"
)

const (
	defaultCols = 80
	defaultRows = 24
)

func (d *Daemon) scrollbackMax() int {
	if d.cfg.Scrollback.MaxLines <= 0 {
		return scrollback.DefaultMaxLines
	}
	return d.cfg.Scrollback.MaxLines
}

// createSession creates a session (and its first window and pane) and
// spawns the pane's PTY, returning all three tree objects.
func (d *Daemon) createSession(name, command, cwd string, env map[string]string) (*tree.Session, *tree.Window, *tree.Pane, error) {
	session := d.tree.CreateSession(name, env)
	window, err := d.tree.CreateWindow(session.ID, "main")
	if err != nil {
		return nil, nil, nil, err
	}
	pane, err := d.tree.CreatePane(window.ID, d.scrollbackMax())
	if err != nil {
		return nil, nil, nil, err
	}
	pane.Cols, pane.Rows = defaultCols, defaultRows

	var cmdline []string
	if command != "" {
		cmdline = []string{"/bin/sh", "-c", command}
	}

	if err := d.spawnPane(session, window, pane, spawnConfig{Command: cmdline, Cwd: cwd, Env: session.Environment}); err != nil {
		return nil, nil, nil, err
	}
	return session, window, pane, nil
}

// createAndSpawnPane creates a pane in window and spawns its PTY,
// following the two-phase pattern: the pane object is created and
// inserted under the tree's own lock inside CreatePane, then the spawn
// happens here with no tree lock held.
func (d *Daemon) createAndSpawnPane(window *tree.Window, command []string, cwd string, env map[string]string) error {
	session, _, err := d.tree.FindWindow(window.ID)
	if err != nil {
		return err
	}
	pane, err := d.tree.CreatePane(window.ID, d.scrollbackMax())
	if err != nil {
		return err
	}
	pane.Cols, pane.Rows = defaultCols, defaultRows

	mergedEnv := map[string]string{}
	for k, v := range session.Environment {
		mergedEnv[k] = v
	}
	for k, v := range env {
		mergedEnv[k] = v
	}

	if err := d.spawnPane(session, window, pane, spawnConfig{Command: command, Cwd: cwd, Env: mergedEnv}); err != nil {
		d.tree.RemovePane(pane.ID)
		return err
	}
	d.clients.BroadcastToSession(session.ID, d.wirePaneCreated(pane, "", false))
	return nil
}

// closePane cascades a pane close: kill its PTY, remove it from the
// tree, and broadcast PaneClosed. Mirrors of the pane are closed too.
func (d *Daemon) closePane(paneID uuid.UUID) error {
	_, _, pane, err := d.tree.FindPane(paneID)
	if err != nil {
		return err
	}
	exitCode := pane.State.ExitCode
	if err := d.tree.RemovePane(paneID); err != nil {
		return err
	}
	d.closePaneInternal(paneID, exitCode, true)
	return nil
}

// destroySession cascades a session destroy across every window and
// pane it contains, killing each pane's PTY and broadcasting
// SessionEnded once complete.
//
// Per the __orchestration__ persistence decision recorded in DESIGN.md,
// the reserved orchestration session is never destroyed this way even
// if every window is individually closed down to zero; callers wanting
// to clear its windows should close them directly rather than calling
// destroySession on it.
func (d *Daemon) destroySession(sessionID uuid.UUID) error {
	session, err := d.tree.GetSession(sessionID)
	if err != nil {
		return err
	}
	if session.Name == OrchestrationSessionName {
		return errors.New("daemon: the orchestration session cannot be destroyed directly")
	}

	closedPanes, err := d.tree.DestroySession(sessionID)
	if err != nil {
		return err
	}
	for _, paneID := range closedPanes {
		d.closePaneInternal(paneID, 0, false)
	}
	d.clients.BroadcastGlobal(sessionEndedMessage(sessionID))
	return nil
}

// closeWindow tears down every pane in windowID, removes the window from
// its session, and broadcasts WindowClosed to the session. Mirrors
// destroySession's pane-cascade shape one level down the tree.
func (d *Daemon) closeWindow(windowID uuid.UUID) error {
	session, _, err := d.tree.FindWindow(windowID)
	if err != nil {
		return err
	}
	closedPanes, err := d.tree.RemoveWindow(windowID)
	if err != nil {
		return err
	}
	for _, paneID := range closedPanes {
		d.closePaneInternal(paneID, 0, false)
	}
	d.clients.BroadcastToSession(session.ID, windowClosedMessage(windowID))
	return nil
}

// ensureOrchestrationSession returns the reserved orchestration session,
// creating it (with no initial pane) on first use.
func (d *Daemon) ensureOrchestrationSession() *tree.Session {
	for _, s := range d.tree.ListSessions() {
		if s.Name == OrchestrationSessionName {
			return s
		}
	}
	return d.tree.CreateSession(OrchestrationSessionName, nil)
}
