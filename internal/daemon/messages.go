package daemon

// messages.go builds wire.ServerMessage values from tree objects and
// dispatches the broadcast-only messages of spec.md §4.10.

import (
	"github.com/google/uuid"

	"github.com/ianremillard/ccmux/internal/agent"
	"github.com/ianremillard/ccmux/internal/sideband"
	"github.com/ianremillard/ccmux/internal/tree"
	"github.com/ianremillard/ccmux/internal/wire"
)

func wirePaneState(s tree.PaneState) wire.PaneState {
	kind := "normal"
	switch s.Kind {
	case tree.PaneStateAgent:
		kind = "agent"
	case tree.PaneStateExited:
		kind = "exited"
	}
	return wire.PaneState{Kind: kind, Agent: s.Agent, ExitCode: s.ExitCode}
}

func applyAgentState(pane *tree.Pane, state agent.State) {
	pane.State = tree.AgentState(state.AgentType)
}

func wireAgentActivity(a agent.Activity, custom string) wire.AgentActivity {
	kind := "idle"
	switch a {
	case agent.ActivityProcessing:
		kind = "processing"
	case agent.ActivityGenerating:
		kind = "generating"
	case agent.ActivityToolUse:
		kind = "tool_use"
	case agent.ActivityAwaitingConfirmation:
		kind = "awaiting_confirmation"
	case agent.ActivityCustom:
		kind = "custom"
	}
	return wire.AgentActivity{Kind: kind, Custom: custom}
}

func (d *Daemon) buildPaneInfo(pane *tree.Pane) wire.PaneInfo {
	var stuck bool
	if pr, ok := d.paneRuntimeOf(pane.ID); ok {
		pr.mu.Lock()
		lastOutput := pr.lastOutputAt
		pr.mu.Unlock()
		stuck = d.isStuck(pane, lastOutput)
	}
	return wire.PaneInfo{
		ID:          pane.ID,
		WindowID:    pane.WindowID,
		Index:       pane.Index,
		Cols:        pane.Cols,
		Rows:        pane.Rows,
		State:       wirePaneState(pane.State),
		Title:       pane.Title,
		Cwd:         pane.Cwd,
		StuckStatus: stuck,
		IsMirror:    pane.IsMirror,
		MirrorOf:    pane.MirrorSourceID,
	}
}

func buildWindowInfo(w *tree.Window) wire.WindowInfo {
	return wire.WindowInfo{
		ID:           w.ID,
		SessionID:    w.SessionID,
		Name:         w.Name,
		Index:        w.Index,
		PaneCount:    len(w.PaneOrder),
		ActivePaneID: w.ActivePane,
	}
}

func (d *Daemon) buildSessionInfo(s *tree.Session) wire.SessionInfo {
	return wire.SessionInfo{
		ID:              s.ID,
		Name:            s.Name,
		CreatedAt:       s.CreatedAt.Unix(),
		WindowCount:     len(s.WindowOrder),
		AttachedClients: d.clients.AttachedCount(s.ID),
	}
}

func (d *Daemon) buildAttached(s *tree.Session) wire.Attached {
	windows := make([]wire.WindowInfo, 0, len(s.WindowOrder))
	panes := make([]wire.PaneInfo, 0)
	for _, wid := range s.WindowOrder {
		w := s.Windows[wid]
		windows = append(windows, buildWindowInfo(w))
		for _, pid := range w.PaneOrder {
			panes = append(panes, d.buildPaneInfo(w.Panes[pid]))
		}
	}
	return wire.Attached{
		Session: d.buildSessionInfo(s),
		Windows: windows,
		Panes:   panes,
	}
}

func outputMessage(paneID uuid.UUID, data []byte) wire.ServerMessage {
	return wire.Output{PaneID: paneID, Data: append([]byte(nil), data...)}
}

func viewportUpdatedMessage(paneID uuid.UUID, offset int) wire.ServerMessage {
	return wire.ViewportUpdated{PaneID: paneID, Offset: offset}
}

func notifyAsOutput(paneID uuid.UUID, n sideband.Notify) wire.ServerMessage {
	level := string(n.Level)
	if level == "" {
		level = string(sideband.LevelInfo)
	}
	return wire.Output{PaneID: paneID, Data: []byte("[" + level + "] " + n.Title + ": " + n.Message + "\r\n")}
}

func (d *Daemon) broadcastAgentStateChanged(sessionID, paneID uuid.UUID, state agent.State) {
	msg := wire.AgentStateChanged{
		PaneID: paneID,
		State: wire.AgentState{
			AgentType: state.AgentType,
			Activity:  wireAgentActivity(state.Activity, state.CustomActivity),
			SessionID: state.SessionID,
			Metadata:  state.Metadata,
		},
	}
	d.clients.BroadcastToSession(sessionID, msg)

	_, _, pane, err := d.tree.FindPane(paneID)
	if err == nil {
		d.clients.BroadcastToSession(sessionID, wire.PaneStateChanged{PaneID: paneID, State: wirePaneState(pane.State)})
	}
}

func (d *Daemon) broadcastPaneClosed(sessionID, paneID uuid.UUID, exitCode int) {
	d.clients.BroadcastToSession(sessionID, wire.PaneClosed{PaneID: paneID, ExitCode: exitCode})
}

func (d *Daemon) wirePaneCreated(pane *tree.Pane, direction wire.SplitDirection, shouldFocus bool) wire.ServerMessage {
	return wire.PaneCreated{Pane: d.buildPaneInfo(pane), Direction: direction, ShouldFocus: shouldFocus}
}

func sessionEndedMessage(sessionID uuid.UUID) wire.ServerMessage {
	return wire.SessionEnded{SessionID: sessionID}
}

func windowClosedMessage(windowID uuid.UUID) wire.ServerMessage {
	return wire.WindowClosed{WindowID: windowID}
}
