package daemon

// focus.go implements the resolution order of spec.md §4.8: when a
// handler needs to resolve an unspecified target, it prefers, in order,
// the requesting client's per-client focus, a global hint for the
// latest human-focused resource, then the first session/window in the
// tree.

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ianremillard/ccmux/internal/registry"
	"github.com/ianremillard/ccmux/internal/tree"
)

var errNoSessionAvailable = errors.New("daemon: no session available to resolve focus against")

// resolveWindow finds the window a handler should operate against when
// the request didn't name one explicitly.
func (d *Daemon) resolveWindow(c *ConnState) (*tree.Session, *tree.Window, error) {
	if client, ok := d.client(c); ok && client.Focus.WindowID != nil {
		if s, w, err := d.tree.FindWindow(*client.Focus.WindowID); err == nil {
			return s, w, nil
		}
	}

	d.mu.Lock()
	lastHumanWindow := d.lastHumanFocusWindow
	d.mu.Unlock()
	if lastHumanWindow != nil {
		if s, w, err := d.tree.FindWindow(*lastHumanWindow); err == nil {
			return s, w, nil
		}
	}

	sessions := d.tree.ListSessions()
	if len(sessions) == 0 {
		return nil, nil, errNoSessionAvailable
	}
	s := sessions[0]
	if len(s.WindowOrder) == 0 {
		return nil, nil, tree.ErrWindowNotFound
	}
	w := s.Windows[s.WindowOrder[0]]
	return s, w, nil
}

// recordFocus updates a client's per-client focus and, for human
// clients, the global last-human-focus hint used by resolveWindow.
func (d *Daemon) recordFocus(c *ConnState, sessionID *uuid.UUID, windowID *uuid.UUID, paneID *uuid.UUID) {
	if client, ok := d.client(c); ok {
		client.Focus = registry.Focus{SessionID: sessionID, WindowID: windowID, PaneID: paneID}
	}
	if c.isHuman() && windowID != nil {
		d.mu.Lock()
		id := *windowID
		d.lastHumanFocusWindow = &id
		d.mu.Unlock()
	}
}
